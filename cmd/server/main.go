package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/partsregistry/registry/internal/cache"
	"github.com/partsregistry/registry/internal/config"
	"github.com/partsregistry/registry/internal/database"
	"github.com/partsregistry/registry/internal/handlers"
	"github.com/partsregistry/registry/internal/metrics"
	"github.com/partsregistry/registry/internal/middleware"
	"github.com/partsregistry/registry/internal/services"
	"github.com/partsregistry/registry/internal/storage"
	"github.com/partsregistry/registry/pkg/logger"
	"github.com/partsregistry/registry/pkg/utils"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	if err := database.Seed(context.Background(), db, cfg.Admin); err != nil {
		log.Fatalf("database seed failed: %v", err)
	}

	var exports services.ObjectUploader
	if cfg.MinIO.Enabled() {
		storageClient, err := storage.NewMinIOClient(cfg.MinIO)
		if err != nil {
			log.Fatalf("minio initialization failed: %v", err)
		}
		if err := storageClient.EnsureBucket(context.Background()); err != nil {
			log.Fatalf("failed ensuring minio bucket: %v", err)
		}
		exports = storageClient
	}

	audit := services.NewAuditService(db, exports)
	audit.StartExporter(cfg.Audit.ExportInterval)

	registry := services.NewRegistry(db, cache.New(cfg.Redis), audit)

	app := fiber.New(fiber.Config{BodyLimit: 10 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS(cfg.Server.CORSOrigins))
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", metrics.Handler())

	handlers.Mount(app, db, registry)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":         cfg.Server.Port,
		"address":      listenAddr,
		"db_driver":    cfg.DB.Driver,
		"redis":        cfg.Redis.Addr != "",
		"audit_export": cfg.MinIO.Enabled(),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}

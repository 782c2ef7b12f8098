package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_DRIVER", "")
	cfg := Load()

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %q", cfg.Server.Port)
	}
	if cfg.Redis.FolderSizeTTL != 5*time.Minute {
		t.Errorf("expected default folder size TTL of 5m, got %s", cfg.Redis.FolderSizeTTL)
	}
	if cfg.MinIO.Enabled() {
		t.Error("expected audit export storage to be disabled without an endpoint")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/registry.db")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("FOLDER_SIZE_CACHE_TTL", "30s")
	t.Setenv("MINIO_ENDPOINT", "minio:9000")
	t.Setenv("JWT_EXPIRATION_HOURS", "not-a-number")

	cfg := Load()

	if cfg.DB.Driver != "sqlite" {
		t.Errorf("expected driver to be lower-cased, got %q", cfg.DB.Driver)
	}
	if cfg.DB.SQLitePath != "/tmp/registry.db" {
		t.Errorf("unexpected sqlite path %q", cfg.DB.SQLitePath)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.DB != 3 {
		t.Errorf("unexpected redis config %+v", cfg.Redis)
	}
	if cfg.Redis.FolderSizeTTL != 30*time.Second {
		t.Errorf("expected 30s TTL, got %s", cfg.Redis.FolderSizeTTL)
	}
	if !cfg.MinIO.Enabled() {
		t.Error("expected audit export storage to be enabled")
	}
	if cfg.JWT.ExpirationHours != 24 {
		t.Errorf("expected invalid int to fall back to 24, got %d", cfg.JWT.ExpirationHours)
	}
}

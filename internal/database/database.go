package database

import (
	"context"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/partsregistry/registry/internal/config"
	"github.com/partsregistry/registry/internal/models"
	"github.com/partsregistry/registry/internal/services"
	"github.com/partsregistry/registry/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Connect(cfg config.DBConfig) (*gorm.DB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Open connects without migrating. SQLite is limited to one connection so
// transactions serialize the way row locks do on postgres.
func Open(cfg config.DBConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := gorm.Open(sqlite.Open(cfg.SQLitePath), &gorm.Config{})
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	case "postgres", "":
		dsn := fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host,
			cfg.Port,
			cfg.User,
			cfg.Password,
			cfg.Name,
			cfg.SSLMode,
		)
		return gorm.Open(postgres.Open(dsn), &gorm.Config{})
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return err
	}

	if db.Dialector.Name() != "postgres" {
		return nil
	}

	for name, check := range map[string]string{
		"permission_target_check":  "(folder_id IS NOT NULL AND entry_id IS NULL) OR (folder_id IS NULL AND entry_id IS NOT NULL)",
		"permission_grantee_check": "(account_id IS NOT NULL AND group_id IS NULL) OR (account_id IS NULL AND group_id IS NOT NULL)",
	} {
		constraint := fmt.Sprintf(`
DO $$
BEGIN
  IF NOT EXISTS (
    SELECT 1
    FROM pg_constraint
    WHERE conname = '%s'
  ) THEN
    ALTER TABLE permissions
    ADD CONSTRAINT %s
    CHECK (%s);
  END IF;
END $$;`, name, name, check)
		if err := db.Exec(constraint).Error; err != nil {
			return err
		}
	}
	return nil
}

// Seed creates the public group and, on an empty database, the first administrator.
func Seed(ctx context.Context, db *gorm.DB, cfg config.AdminConfig) error {
	accounts := services.NewAccountDirectory(db)
	if _, err := accounts.CreateOrRetrievePublicGroup(ctx); err != nil {
		return err
	}

	var count int64
	if err := db.WithContext(ctx).Model(&models.Account{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if cfg.Password == "" {
		logger.Warn("admin_seed_skipped", map[string]interface{}{
			"reason": "ADMIN_PASSWORD is not set",
		})
		return nil
	}

	admin, err := accounts.CreateAccount(ctx, cfg.Email, cfg.Password, "System", "Admin", models.AccountTypeAdmin)
	if err != nil {
		return err
	}
	logger.Info("admin_seeded", map[string]interface{}{
		"email": admin.Email,
	})
	return nil
}

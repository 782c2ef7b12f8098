package database

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/partsregistry/registry/internal/cache"
	"github.com/partsregistry/registry/internal/config"
	"github.com/partsregistry/registry/internal/models"
	"github.com/partsregistry/registry/internal/services"
	"github.com/partsregistry/registry/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedDocument = `
accounts:
  - email: curator@lab.org
    password: curator-pass
    first_name: Cora
    last_name: Curator
  - email: tech@lab.org
    password: tech-pass
groups:
  - name: Cloning
    owner: curator@lab.org
    members: [tech@lab.org]
folders:
  - name: Shared plasmids
    owner: curator@lab.org
    public: true
    shares:
      - group: Cloning
        write: true
`

func TestParseSeedFileRejectsAmbiguousShares(t *testing.T) {
	_, err := ParseSeedFile([]byte(`
folders:
  - name: Strains
    owner: a@lab.org
    shares:
      - account: b@lab.org
        group: Cloning
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one of account or group")

	_, err = ParseSeedFile([]byte("accounts:\n  - email: a@lab.org\n    password: x\n    type: root\n"))
	require.Error(t, err)
}

func TestApplySeedFile(t *testing.T) {
	logger.Init()
	logger.SetOutput(io.Discard)

	db, err := Connect(config.DBConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "registry.db"),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	ctx := context.Background()
	require.NoError(t, Seed(ctx, db, config.AdminConfig{}))

	doc, err := ParseSeedFile([]byte(seedDocument))
	require.NoError(t, err)

	registry := services.NewRegistry(db, cache.Noop{}, nil)
	report, err := ApplySeedFile(ctx, registry, doc)
	require.NoError(t, err)
	assert.Equal(t, SeedReport{Accounts: 2, Groups: 1, Members: 2, Folders: 1, Shares: 2}, *report)

	var folder models.Folder
	require.NoError(t, db.First(&folder, "name = ?", "Shared plasmids").Error)
	assert.Equal(t, models.FolderTypeShared, folder.Type)
	assert.Equal(t, "curator@lab.org", folder.OwnerEmail)

	var grants int64
	require.NoError(t, db.Model(&models.Permission{}).Where("folder_id = ?", folder.ID).Count(&grants).Error)
	assert.Equal(t, int64(2), grants)

	tech, err := registry.Accounts.GetByEmail(ctx, "tech@lab.org")
	require.NoError(t, err)
	assert.Equal(t, models.AccountTypeNormal, tech.Type)
	assert.True(t, registry.Authorizer.CanWrite(ctx, tech.Email, &folder))

	again, err := ApplySeedFile(ctx, registry, doc)
	require.NoError(t, err)
	assert.Equal(t, SeedReport{}, *again)
}

package services

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/partsregistry/registry/internal/cache"
	"github.com/partsregistry/registry/internal/dto"
	"github.com/partsregistry/registry/internal/models"
	"github.com/partsregistry/registry/pkg/logger"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testSetupOnce sync.Once

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testSetupOnce.Do(func() {
		logger.Init()
		logger.SetOutput(io.Discard)
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}
	return db
}

type testEnv struct {
	db         *gorm.DB
	authz      *Authorizer
	propagator *Propagator
	uploads    *BulkUploadService
	entries    *EntryService
	folders    *FolderService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupTestDB(t)
	authz := NewAuthorizer(db)
	propagator := NewPropagator(db, authz)
	uploads := NewBulkUploadService(db, nil)
	return &testEnv{
		db:         db,
		authz:      authz,
		propagator: propagator,
		uploads:    uploads,
		entries:    NewEntryService(db, authz, nil),
		folders:    NewFolderService(db, authz, propagator, uploads, cache.Noop{}, nil),
	}
}

func createTestAccount(t *testing.T, db *gorm.DB, email string, accountType models.AccountType) *models.Account {
	t.Helper()
	account, err := NewAccountDirectory(db).CreateAccount(context.Background(), email, "password123", "Test", "User", accountType)
	if err != nil {
		t.Fatalf("failed creating account %s: %v", email, err)
	}
	return account
}

func createTestGroup(t *testing.T, db *gorm.DB, name string, members ...*models.Account) *models.Group {
	t.Helper()
	group := &models.Group{Name: name}
	require.NoError(t, db.Create(group).Error)
	for _, member := range members {
		addTestMembership(t, db, member.ID, group.ID)
	}
	return group
}

func addTestMembership(t *testing.T, db *gorm.DB, accountID, groupID uuid.UUID) {
	t.Helper()
	require.NoError(t, db.Create(&models.GroupMembership{
		AccountID: accountID,
		GroupID:   groupID,
		Role:      models.GroupRoleMember,
	}).Error)
}

func createTestEntry(t *testing.T, env *testEnv, owner, name string) *models.Entry {
	t.Helper()
	entry, err := env.entries.Create(context.Background(), owner, dto.CreateEntryRequest{Kind: "part", Name: name})
	require.NoError(t, err)
	return entry
}

func createTestFolder(t *testing.T, env *testEnv, owner, name string, entries ...*models.Entry) *models.Folder {
	t.Helper()
	ctx := context.Background()
	folder, err := env.folders.CreatePersonalFolder(ctx, owner, name, "")
	require.NoError(t, err)
	if len(entries) > 0 {
		ids := make([]uuid.UUID, 0, len(entries))
		for _, entry := range entries {
			ids = append(ids, entry.ID)
		}
		_, err := env.folders.AddFolderContents(ctx, owner, folder.ID, ids)
		require.NoError(t, err)
	}
	return folder
}

func reloadFolder(t *testing.T, db *gorm.DB, id uuid.UUID) *models.Folder {
	t.Helper()
	var folder models.Folder
	require.NoError(t, db.First(&folder, "id = ?", id).Error)
	return &folder
}

func entryGrant(t *testing.T, db *gorm.DB, entryID uuid.UUID, grantee models.Grantee) (*models.Permission, bool) {
	t.Helper()
	permission, err := NewPermissionStore(db).Get(context.Background(), models.EntryTarget(entryID), grantee)
	if err != nil {
		require.ErrorIs(t, err, ErrNotFound)
		return nil, false
	}
	return permission, true
}

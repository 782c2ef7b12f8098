package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/partsregistry/registry/internal/dto"
	"github.com/partsregistry/registry/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFolderID(t *testing.T) {
	for _, name := range []string{"available", "drafts", "pending", "shared", "personal", "public", "Shared"} {
		_, err := ParseFolderID(name)
		assert.ErrorIs(t, err, ErrVirtualFolder, name)
	}

	_, err := ParseFolderID("not-a-uuid")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	id := uuid.New()
	parsed, err := ParseFolderID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestFolderService_CreatePersonalFolder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	createTestAccount(t, env.db, "owner@example.com", models.AccountTypeNormal)

	folder, err := env.folders.CreatePersonalFolder(ctx, "Owner@Example.com", "  Plasmids ", "my plasmids")
	require.NoError(t, err)
	assert.Equal(t, "Plasmids", folder.Name)
	assert.Equal(t, "owner@example.com", folder.OwnerEmail)
	assert.Equal(t, models.FolderTypePrivate, folder.Type)

	_, err = env.folders.CreatePersonalFolder(ctx, "owner@example.com", "   ", "")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = env.folders.CreatePersonalFolder(ctx, "ghost@example.com", "Nope", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFolderService_PromoteThenDemote(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	createTestAccount(t, env.db, "a@example.com", models.AccountTypeNormal)
	b := createTestAccount(t, env.db, "b@example.com", models.AccountTypeNormal)
	createTestAccount(t, env.db, "admin@example.com", models.AccountTypeAdmin)
	folder := createTestFolder(t, env, "a@example.com", "F")

	_, err := env.folders.CreateFolderPermission(ctx, "a@example.com", folder.ID, models.AccountGrantee(b.ID), true, false)
	require.NoError(t, err)

	public := models.FolderTypePublic
	promoted, err := env.folders.Update(ctx, "admin@example.com", folder.ID, FolderUpdate{Type: &public})
	require.NoError(t, err)
	assert.Equal(t, models.FolderTypePublic, promoted.Type)
	assert.Empty(t, promoted.OwnerEmail)

	grants, err := NewPermissionStore(env.db).ListForResource(ctx, models.FolderTarget(folder.ID), false)
	require.NoError(t, err)
	assert.Empty(t, grants)

	// Readable by everyone now, writable by nobody but administrators.
	assert.True(t, env.authz.CanRead(ctx, "b@example.com", promoted))
	assert.False(t, env.authz.CanWrite(ctx, "a@example.com", promoted))

	private := models.FolderTypePrivate
	demoted, err := env.folders.Update(ctx, "admin@example.com", folder.ID, FolderUpdate{Type: &private})
	require.NoError(t, err)
	assert.Equal(t, models.FolderTypePrivate, demoted.Type)
	assert.Equal(t, "admin@example.com", demoted.OwnerEmail)
}

func TestFolderService_DemoteOfNonPublicFolderIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	createTestAccount(t, env.db, "a@example.com", models.AccountTypeNormal)
	folder := createTestFolder(t, env, "a@example.com", "F")

	private := models.FolderTypePrivate
	updated, err := env.folders.Update(ctx, "a@example.com", folder.ID, FolderUpdate{Type: &private})
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", updated.OwnerEmail)
	assert.Equal(t, models.FolderTypePrivate, updated.Type)
}

func TestFolderService_UpdateRequiresWrite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	createTestAccount(t, env.db, "a@example.com", models.AccountTypeNormal)
	createTestAccount(t, env.db, "b@example.com", models.AccountTypeNormal)
	folder := createTestFolder(t, env, "a@example.com", "F")

	name := "Renamed"
	_, err := env.folders.Update(ctx, "b@example.com", folder.ID, FolderUpdate{Name: &name})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	blank := " "
	_, err = env.folders.Update(ctx, "a@example.com", folder.ID, FolderUpdate{Name: &blank})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	updated, err := env.folders.Update(ctx, "a@example.com", folder.ID, FolderUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	require.NotNil(t, updated.ModifiedAt)

	upload := models.FolderTypeUpload
	_, err = env.folders.Update(ctx, "a@example.com", folder.ID, FolderUpdate{Type: &upload})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestFolderService_PermissionLifecycleTogglesShared(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	createTestAccount(t, env.db, "a@example.com", models.AccountTypeNormal)
	b := createTestAccount(t, env.db, "b@example.com", models.AccountTypeNormal)
	folder := createTestFolder(t, env, "a@example.com", "F")

	created, err := env.folders.CreateFolderPermission(ctx, "a@example.com", folder.ID, models.AccountGrantee(b.ID), true, false)
	require.NoError(t, err)
	assert.True(t, created.CanRead)
	assert.False(t, created.CanWrite)
	assert.Equal(t, models.FolderTypeShared, reloadFolder(t, env.db, folder.ID).Type)

	grants, err := env.folders.GetPermissions(ctx, "b@example.com", folder.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	require.NotNil(t, grants[0].AccountID)
	assert.Equal(t, b.ID, *grants[0].AccountID)

	err = env.folders.RemoveFolderPermission(ctx, "a@example.com", folder.ID, models.AccountGrantee(b.ID), false)
	require.NoError(t, err)
	assert.Equal(t, models.FolderTypePrivate, reloadFolder(t, env.db, folder.ID).Type)
	assert.False(t, env.authz.CanRead(ctx, "b@example.com", folder))
}

func TestFolderService_RemoveWriteOnlyKeepsRead(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	createTestAccount(t, env.db, "a@example.com", models.AccountTypeNormal)
	b := createTestAccount(t, env.db, "b@example.com", models.AccountTypeNormal)
	folder := createTestFolder(t, env, "a@example.com", "F")

	_, err := env.folders.CreateFolderPermission(ctx, "a@example.com", folder.ID, models.AccountGrantee(b.ID), true, true)
	require.NoError(t, err)

	err = env.folders.RemoveFolderPermission(ctx, "a@example.com", folder.ID, models.AccountGrantee(b.ID), true)
	require.NoError(t, err)

	reloaded := reloadFolder(t, env.db, folder.ID)
	assert.Equal(t, models.FolderTypeShared, reloaded.Type)
	assert.True(t, env.authz.CanRead(ctx, "b@example.com", reloaded))
	assert.False(t, env.authz.CanWrite(ctx, "b@example.com", reloaded))
}

func TestFolderService_CreatePermissionRejectsStranger(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	createTestAccount(t, env.db, "a@example.com", models.AccountTypeNormal)
	b := createTestAccount(t, env.db, "b@example.com", models.AccountTypeNormal)
	folder := createTestFolder(t, env, "a@example.com", "F")

	_, err := env.folders.CreateFolderPermission(ctx, "b@example.com", folder.ID, models.AccountGrantee(b.ID), true, true)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = env.folders.CreateFolderPermission(ctx, "a@example.com", folder.ID, models.AccountGrantee(uuid.New()), true, false)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, models.FolderTypePrivate, reloadFolder(t, env.db, folder.ID).Type)
}

func TestFolderService_PublicReadAccessLeavesOtherGrants(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	createTestAccount(t, env.db, "a@example.com", models.AccountTypeNormal)
	b := createTestAccount(t, env.db, "b@example.com", models.AccountTypeNormal)
	c := createTestAccount(t, env.db, "c@example.com", models.AccountTypeNormal)
	folder := createTestFolder(t, env, "a@example.com", "F")

	_, err := env.folders.CreateFolderPermission(ctx, "a@example.com", folder.ID, models.AccountGrantee(b.ID), true, false)
	require.NoError(t, err)

	grant, err := env.folders.EnablePublicReadAccess(ctx, "a@example.com", folder.ID)
	require.NoError(t, err)
	assert.True(t, grant.CanRead)
	assert.False(t, grant.CanWrite)
	assert.True(t, env.authz.CanRead(ctx, c.Email, folder))

	// Enabling twice is harmless.
	_, err = env.folders.EnablePublicReadAccess(ctx, "a@example.com", folder.ID)
	require.NoError(t, err)

	require.NoError(t, env.folders.DisablePublicReadAccess(ctx, "a@example.com", folder.ID))
	assert.False(t, env.authz.CanRead(ctx, c.Email, folder))

	grants, err := env.folders.GetPermissions(ctx, "a@example.com", folder.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, b.ID, *grants[0].AccountID)

	// Disabling when nothing is public is a no-op.
	require.NoError(t, env.folders.DisablePublicReadAccess(ctx, "a@example.com", folder.ID))
}

func TestFolderService_PublicGroupGrantKeepsFolderPrivate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	createTestAccount(t, env.db, "a@example.com", models.AccountTypeNormal)
	folder := createTestFolder(t, env, "a@example.com", "F")

	_, err := env.folders.EnablePublicReadAccess(ctx, "a@example.com", folder.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FolderTypePrivate, reloadFolder(t, env.db, folder.ID).Type)
}

func TestFolderService_NonAdminCannotRemoveFromPublicFolder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	createTestAccount(t, env.db, "a@example.com", models.AccountTypeNormal)
	b := createTestAccount(t, env.db, "b@example.com", models.AccountTypeNormal)
	createTestAccount(t, env.db, "admin@example.com", models.AccountTypeAdmin)
	e1 := createTestEntry(t, env, "a@example.com", "E1")
	e2 := createTestEntry(t, env, "a@example.com", "E2")
	folder := createTestFolder(t, env, "a@example.com", "F", e1, e2)

	public := models.FolderTypePublic
	_, err := env.folders.Update(ctx, "admin@example.com", folder.ID, FolderUpdate{Type: &public})
	require.NoError(t, err)

	// Even an explicit write grant does not let a non-admin remove contents.
	_, err = env.folders.CreateFolderPermission(ctx, "admin@example.com", folder.ID, models.AccountGrantee(b.ID), true, true)
	require.NoError(t, err)

	_, err = env.folders.RemoveFolderContents(ctx, "b@example.com", folder.ID, []uuid.UUID{e1.ID})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	size, err := env.folders.FolderSize(ctx, folder.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, size)

	_, err = env.folders.RemoveFolderContents(ctx, "admin@example.com", folder.ID, []uuid.UUID{e1.ID})
	require.NoError(t, err)
	size, err = env.folders.FolderSize(ctx, folder.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, size)
}

func TestFolderService_AddContentsRequiresReadableEntries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	createTestAccount(t, env.db, "a@example.com", models.AccountTypeNormal)
	createTestAccount(t, env.db, "b@example.com", models.AccountTypeNormal)
	mine := createTestEntry(t, env, "a@example.com", "Mine")
	theirs := createTestEntry(t, env, "b@example.com", "Theirs")
	folder := createTestFolder(t, env, "a@example.com", "F")

	_, err := env.folders.AddFolderContents(ctx, "a@example.com", folder.ID, []uuid.UUID{mine.ID, theirs.ID})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = env.folders.AddFolderContents(ctx, "a@example.com", folder.ID, []uuid.UUID{uuid.New()})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.folders.AddFolderContents(ctx, "a@example.com", folder.ID, []uuid.UUID{mine.ID})
	require.NoError(t, err)
	// Adding the same entry again does not duplicate it.
	_, err = env.folders.AddFolderContents(ctx, "a@example.com", folder.ID, []uuid.UUID{mine.ID})
	require.NoError(t, err)

	size, err := env.folders.FolderSize(ctx, folder.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, size)
}

func TestFolderService_MoveFolderContents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	createTestAccount(t, env.db, "a@example.com", models.AccountTypeNormal)
	e1 := createTestEntry(t, env, "a@example.com", "E1")
	e2 := createTestEntry(t, env, "a@example.com", "E2")
	source := createTestFolder(t, env, "a@example.com", "Source", e1, e2)
	dest1 := createTestFolder(t, env, "a@example.com", "Dest 1")
	dest2 := createTestFolder(t, env, "a@example.com", "Dest 2")

	moved, err := env.folders.MoveFolderContents(ctx, "a@example.com", source.ID, []uuid.UUID{dest1.ID, dest2.ID}, []uuid.UUID{e1.ID})
	require.NoError(t, err)
	assert.Len(t, moved, 2)

	for id, want := range map[uuid.UUID]int64{source.ID: 1, dest1.ID: 1, dest2.ID: 1} {
		size, err := env.folders.FolderSize(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, size)
	}
}

func TestFolderService_AddEntriesToFoldersChecksEveryFolder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	createTestAccount(t, env.db, "a@example.com", models.AccountTypeNormal)
	createTestAccount(t, env.db, "b@example.com", models.AccountTypeNormal)
	entry := createTestEntry(t, env, "a@example.com", "E")
	mine := createTestFolder(t, env, "a@example.com", "Mine")
	theirs := createTestFolder(t, env, "b@example.com", "Theirs")

	_, err := env.folders.AddEntriesToFolders(ctx, "a@example.com", []uuid.UUID{mine.ID, theirs.ID}, []uuid.UUID{entry.ID})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	size, err := env.folders.FolderSize(ctx, mine.ID)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestFolderService_GetFolderContents(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	createTestAccount(t, env.db, "a@example.com", models.AccountTypeNormal)
	b := createTestAccount(t, env.db, "b@example.com", models.AccountTypeNormal)
	alpha := createTestEntry(t, env, "a@example.com", "Alpha")
	beta := createTestEntry(t, env, "a@example.com", "Beta")
	gone := createTestEntry(t, env, "a@example.com", "Gone")
	folder := createTestFolder(t, env, "a@example.com", "F", alpha, beta, gone)
	require.NoError(t, env.entries.Delete(ctx, "a@example.com", gone.ID))

	_, err := env.folders.CreateFolderPermission(ctx, "a@example.com", folder.ID, models.AccountGrantee(b.ID), true, false)
	require.NoError(t, err)

	details, err := env.folders.GetFolderContents(ctx, "a@example.com", folder.ID, ContentsQuery{Sort: "name", Ascending: true, Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 2, details.Count)
	require.Len(t, details.Contents, 2)
	assert.Equal(t, "Alpha", details.Contents[0].Name)
	assert.Equal(t, "Beta", details.Contents[1].Name)
	assert.True(t, details.CanEdit)
	assert.Len(t, details.Permissions, 1)
	require.NotNil(t, details.Owner)
	assert.Equal(t, "a@example.com", details.Owner.Email)

	asReader, err := env.folders.GetFolderContents(ctx, "b@example.com", folder.ID, ContentsQuery{Sort: "name", Limit: 1})
	require.NoError(t, err)
	assert.False(t, asReader.CanEdit)
	assert.Empty(t, asReader.Permissions)
	require.Len(t, asReader.Contents, 1)
	assert.Equal(t, "Beta", asReader.Contents[0].Name)

	_, err = env.folders.GetFolderContents(ctx, "stranger@example.com", folder.ID, ContentsQuery{})
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestFolderService_DeleteRequiresOwnerOrAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	createTestAccount(t, env.db, "a@example.com", models.AccountTypeNormal)
	b := createTestAccount(t, env.db, "b@example.com", models.AccountTypeNormal)
	entry := createTestEntry(t, env, "a@example.com", "E")
	folder := createTestFolder(t, env, "a@example.com", "F", entry)

	// A write grant is not enough to delete.
	_, err := env.folders.CreateFolderPermission(ctx, "a@example.com", folder.ID, models.AccountGrantee(b.ID), true, true)
	require.NoError(t, err)
	_, err = env.folders.Delete(ctx, "b@example.com", folder.ID, models.FolderTypeShared)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	deleted, err := env.folders.Delete(ctx, "a@example.com", folder.ID, models.FolderTypeShared)
	require.NoError(t, err)
	assert.Equal(t, folder.ID, deleted.ID)

	var grants, members int64
	require.NoError(t, env.db.Model(&models.Permission{}).Where("folder_id = ?", folder.ID).Count(&grants).Error)
	require.NoError(t, env.db.Model(&models.FolderEntry{}).Where("folder_id = ?", folder.ID).Count(&members).Error)
	assert.Zero(t, grants)
	assert.Zero(t, members)

	// The entry itself survives.
	_, err = env.entries.Get(ctx, "a@example.com", entry.ID)
	require.NoError(t, err)

	_, err = env.folders.Get(ctx, "a@example.com", folder.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFolderService_Listings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	createTestAccount(t, env.db, "a@example.com", models.AccountTypeNormal)
	b := createTestAccount(t, env.db, "b@example.com", models.AccountTypeNormal)
	createTestAccount(t, env.db, "admin@example.com", models.AccountTypeAdmin)
	lab := createTestGroup(t, env.db, "Lab", b)

	own := createTestFolder(t, env, "a@example.com", "Own")
	viaAccount := createTestFolder(t, env, "a@example.com", "Via account")
	viaGroup := createTestFolder(t, env, "a@example.com", "Via group")
	open := createTestFolder(t, env, "a@example.com", "Open")
	promoted := createTestFolder(t, env, "a@example.com", "Promoted")

	_, err := env.folders.CreateFolderPermission(ctx, "a@example.com", viaAccount.ID, models.AccountGrantee(b.ID), true, false)
	require.NoError(t, err)
	_, err = env.folders.CreateFolderPermission(ctx, "a@example.com", viaGroup.ID, models.GroupGrantee(lab.ID), true, false)
	require.NoError(t, err)
	_, err = env.folders.EnablePublicReadAccess(ctx, "a@example.com", open.ID)
	require.NoError(t, err)
	public := models.FolderTypePublic
	_, err = env.folders.Update(ctx, "admin@example.com", promoted.ID, FolderUpdate{Type: &public})
	require.NoError(t, err)

	names := func(folders []dto.FolderDetails) []string {
		out := make([]string, 0, len(folders))
		for _, f := range folders {
			out = append(out, f.Name)
		}
		return out
	}

	mine, err := env.folders.GetUserFolders(ctx, "a@example.com")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{own.Name, viaAccount.Name, viaGroup.Name, open.Name}, names(mine))

	shared, err := env.folders.GetSharedFolders(ctx, "b@example.com")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{viaAccount.Name, viaGroup.Name}, names(shared))

	available, err := env.folders.GetAvailableFolders(ctx, "b@example.com")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{open.Name}, names(available))

	publicFolders, err := env.folders.GetPublicFolders(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{promoted.Name}, names(publicFolders))
}

func TestFolderService_GetFolderStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	createTestAccount(t, env.db, "a@example.com", models.AccountTypeNormal)
	b := createTestAccount(t, env.db, "b@example.com", models.AccountTypeNormal)
	createTestEntry(t, env, "a@example.com", "Mine")
	deleted := createTestEntry(t, env, "a@example.com", "Deleted")
	shared := createTestEntry(t, env, "b@example.com", "Shared with a")
	require.NoError(t, env.entries.Delete(ctx, "a@example.com", deleted.ID))

	a, err := NewAccountDirectory(env.db).GetByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	_, err = env.entries.CreatePermission(ctx, b.Email, shared.ID, models.AccountGrantee(a.ID), true, false)
	require.NoError(t, err)
	_, err = env.uploads.CreateDraft(ctx, "a@example.com", "Batch")
	require.NoError(t, err)

	stats, err := env.folders.GetFolderStats(ctx, "a@example.com")
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Available)
	assert.EqualValues(t, 1, stats.Personal)
	assert.EqualValues(t, 1, stats.Shared)
	assert.EqualValues(t, 1, stats.Deleted)
	assert.EqualValues(t, 1, stats.Drafts)
	assert.Zero(t, stats.Pending)
}

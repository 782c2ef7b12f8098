package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/partsregistry/registry/internal/cache"
	"github.com/partsregistry/registry/internal/config"
	"github.com/partsregistry/registry/internal/database"
	"github.com/partsregistry/registry/internal/dto"
	"github.com/partsregistry/registry/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminEmail = "admin@lab.org"

// setupDatabase points registryctl at a fresh sqlite file and returns services
// sharing that file so tests can arrange state before running commands.
func setupDatabase(t *testing.T) *services.Registry {
	t.Helper()

	path := filepath.Join(t.TempDir(), "registry.db")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", path)
	t.Setenv("ADMIN_EMAIL", adminEmail)
	t.Setenv("ADMIN_PASSWORD", "admin-pass")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("MINIO_ENDPOINT", "")

	cfg := config.Load()
	db, err := database.Connect(cfg.DB)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Seed(context.Background(), db, cfg.Admin))

	return services.NewRegistry(db, cache.Noop{}, nil)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func TestSeedCommand(t *testing.T) {
	setupDatabase(t)

	file := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
accounts:
  - email: curator@lab.org
    password: curator-pass
groups:
  - name: Cloning
    owner: curator@lab.org
folders:
  - name: Strains
    owner: curator@lab.org
    shares:
      - group: Cloning
`), 0o600))

	out, err := run(t, "seed", "--file", file, "--json")
	require.NoError(t, err)
	var report database.SeedReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, database.SeedReport{Accounts: 1, Groups: 1, Members: 1, Folders: 1, Shares: 1}, report)

	out, err = run(t, "seed", "--file", file)
	require.NoError(t, err)
	assert.Contains(t, out, "ACCOUNTS")

	_, err = run(t, "seed")
	require.Error(t, err)
}

func TestValidateUploadCommand(t *testing.T) {
	registry := setupDatabase(t)
	ctx := context.Background()

	owner, err := registry.Accounts.CreateAccount(ctx, "tech@lab.org", "tech-pass", "Tia", "Tech", "")
	require.NoError(t, err)
	upload, err := registry.Uploads.CreateDraft(ctx, owner.Email, "Batch")
	require.NoError(t, err)
	_, err = registry.Uploads.AddEntries(ctx, owner.Email, upload.ID, []dto.CreateEntryRequest{{
		Kind:                  "plasmid",
		Name:                  "pTest",
		Creator:               "Tia Tech",
		PrincipalInvestigator: "Dr. PI",
		Status:                "complete",
	}})
	require.NoError(t, err)

	out, err := run(t, "validate-upload", upload.ID.String(), "--actor", owner.Email, "--json")
	require.NoError(t, err)

	var report validationReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.False(t, report.Valid)
	assert.Equal(t, []services.EntryField{services.FieldBioSafetyLevel, services.FieldCreatorEmail}, report.FailedFields)

	out, err = run(t, "validate-upload", upload.ID.String(), "--actor", owner.Email)
	require.NoError(t, err)
	assert.Contains(t, out, "failed validation")
	assert.Contains(t, out, "CREATOR_EMAIL")

	_, err = run(t, "validate-upload", "not-a-uuid")
	require.Error(t, err)
}

func TestPropagateCommand(t *testing.T) {
	registry := setupDatabase(t)

	folder, err := registry.Folders.CreatePersonalFolder(context.Background(), adminEmail, "Plasmids", "")
	require.NoError(t, err)

	out, err := run(t, "propagate", folder.ID.String())
	require.NoError(t, err)
	assert.Contains(t, out, "Propagation complete")

	out, err = run(t, "propagate", folder.ID.String(), "--disable", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"failed": []`)

	_, err = run(t, "propagate", "drafts")
	require.ErrorIs(t, err, services.ErrVirtualFolder)
}

func TestExportAuditRequiresStorage(t *testing.T) {
	setupDatabase(t)

	_, err := run(t, "export-audit")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MINIO_ENDPOINT")
}

package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/partsregistry/registry/internal/metrics"
	"github.com/partsregistry/registry/internal/models"
	"github.com/partsregistry/registry/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Propagator copies folder grants onto the entries a folder contains. Each entry is
// written in its own transaction so a bad entry cannot block the rest; the whole
// operation is idempotent and safe to re-run after a partial failure.
type Propagator struct {
	DB         *gorm.DB
	Authorizer *Authorizer
}

func NewPropagator(db *gorm.DB, authorizer *Authorizer) *Propagator {
	return &Propagator{DB: db, Authorizer: authorizer}
}

// PropagateFolderPermissions applies (enable) or retracts (disable) the folder's current
// grant set on every entry it contains.
func (p *Propagator) PropagateFolderPermissions(ctx context.Context, actor string, folderID uuid.UUID, enable bool) error {
	var folder models.Folder
	if err := p.DB.WithContext(ctx).First(&folder, "id = ?", folderID).Error; err != nil {
		return translate(err, "folder", folderID)
	}
	if err := p.Authorizer.ExpectWrite(ctx, actor, &folder); err != nil {
		return err
	}

	entryIDs, err := folderEntryIDs(p.DB.WithContext(ctx), folderID)
	if err != nil {
		return err
	}
	grants, err := NewPermissionStore(p.DB).ListForResource(ctx, models.FolderTarget(folderID), false)
	if err != nil {
		return err
	}

	logger.InfoWithUser(actor, "propagation_started", map[string]interface{}{
		"folder_id": folderID.String(),
		"enable":    enable,
		"entries":   len(entryIDs),
		"grants":    len(grants),
	})
	return p.apply(ctx, folderID, grants, entryIDs, enable)
}

// PropagateToEntries fans the folder's current grants out onto newly added entries.
func (p *Propagator) PropagateToEntries(ctx context.Context, folder *models.Folder, entryIDs []uuid.UUID) error {
	grants, err := NewPermissionStore(p.DB).ListForResource(ctx, models.FolderTarget(folder.ID), false)
	if err != nil {
		return err
	}
	return p.apply(ctx, folder.ID, grants, entryIDs, true)
}

// PropagateGrant applies or retracts a single folder grant across the folder contents.
func (p *Propagator) PropagateGrant(ctx context.Context, folderID uuid.UUID, grant models.Permission, enable bool) error {
	entryIDs, err := folderEntryIDs(p.DB.WithContext(ctx), folderID)
	if err != nil {
		return err
	}
	return p.apply(ctx, folderID, []models.Permission{grant}, entryIDs, enable)
}

func (p *Propagator) apply(ctx context.Context, folderID uuid.UUID, grants []models.Permission, entryIDs []uuid.UUID, enable bool) error {
	if len(grants) == 0 || len(entryIDs) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { metrics.PropagationDuration.Observe(time.Since(start).Seconds()) }()

	var failures []PropagationFailure
	for _, entryID := range entryIDs {
		err := p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return applyToEntry(ctx, tx, entryID, grants, enable)
		})
		if err != nil {
			metrics.PropagationFailures.Inc()
			logger.Error("propagation_entry_failed", err, map[string]interface{}{
				"folder_id": folderID.String(),
				"entry_id":  entryID.String(),
				"enable":    enable,
			})
			failures = append(failures, PropagationFailure{EntryID: entryID, Err: err})
		}
	}
	if len(failures) > 0 {
		return &PropagationError{FolderID: folderID, Failures: failures}
	}
	return nil
}

func applyToEntry(ctx context.Context, tx *gorm.DB, entryID uuid.UUID, grants []models.Permission, enable bool) error {
	var entry models.Entry
	if err := tx.WithContext(ctx).Select("id").First(&entry, "id = ?", entryID).Error; err != nil {
		return translate(err, "entry", entryID)
	}
	target := models.EntryTarget(entryID)

	for _, grant := range grants {
		grantee, err := grant.Grantee()
		if err != nil {
			return translate(err, "permission", grant.ID)
		}

		var existing models.Permission
		err = tx.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("grant_key = ?", models.GrantKey(target, grantee)).
			First(&existing).Error
		found := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if !enable {
			if found && grant.Covers(existing.CanRead || existing.CanWrite, existing.CanWrite) {
				if err := tx.WithContext(ctx).Delete(&existing).Error; err != nil {
					return err
				}
				metrics.PropagatedGrants.WithLabelValues("removed").Inc()
			}
			continue
		}

		if !found {
			entryGrant, err := models.NewPermission(target, grantee, grant.CanRead, grant.CanWrite)
			if err != nil {
				return translate(err, "permission", grant.ID)
			}
			result := tx.WithContext(ctx).
				Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "grant_key"}}, DoNothing: true}).
				Create(entryGrant)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 1 {
				metrics.PropagatedGrants.WithLabelValues("created").Inc()
				continue
			}
			// A concurrent writer created the row first; fall through to the upgrade check.
			if err := tx.WithContext(ctx).Where("grant_key = ?", entryGrant.GrantKey).First(&existing).Error; err != nil {
				return err
			}
		}
		if existing.Covers(grant.CanRead || grant.CanWrite, grant.CanWrite) {
			metrics.PropagatedGrants.WithLabelValues("unchanged").Inc()
			continue
		}
		if err := tx.WithContext(ctx).Model(&existing).UpdateColumns(map[string]interface{}{
			"can_read":   true,
			"can_write":  existing.CanWrite || grant.CanWrite,
			"updated_at": time.Now(),
		}).Error; err != nil {
			return err
		}
		metrics.PropagatedGrants.WithLabelValues("upgraded").Inc()
	}
	return nil
}

func folderEntryIDs(db *gorm.DB, folderID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := db.Model(&models.FolderEntry{}).
		Where("folder_id = ?", folderID).
		Order("created_at ASC").
		Pluck("entry_id", &ids).Error
	return ids, err
}

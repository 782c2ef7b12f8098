package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/partsregistry/registry/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PermissionStore persists grants. It performs no authorization of its own; callers
// gate it with the Authorizer.
type PermissionStore struct {
	DB *gorm.DB
}

func NewPermissionStore(db *gorm.DB) *PermissionStore {
	return &PermissionStore{DB: db}
}

func targetScope(db *gorm.DB, target models.Target) *gorm.DB {
	if target.Kind == models.ResourceEntry {
		return db.Model(&models.Permission{}).Where("entry_id = ?", target.ID)
	}
	return db.Model(&models.Permission{}).Where("folder_id = ?", target.ID)
}

func granteeScope(db *gorm.DB, grantee models.Grantee) *gorm.DB {
	if grantee.Kind == models.GranteeGroup {
		return db.Where("group_id = ?", grantee.ID)
	}
	return db.Where("account_id = ?", grantee.ID)
}

// Create stores the grant, replacing the flags of an existing grant for the same
// (target, grantee) pair.
func (s *PermissionStore) Create(ctx context.Context, permission *models.Permission) (*models.Permission, error) {
	if permission == nil {
		return nil, invalidArgument("permission is required")
	}
	target, err := permission.Target()
	if err != nil {
		return nil, translate(err, "permission", nil)
	}
	grantee, err := permission.Grantee()
	if err != nil {
		return nil, translate(err, "permission", nil)
	}
	if !target.Valid() || !grantee.Valid() {
		return nil, translate(models.ErrMalformedPermission, "permission", nil)
	}

	err = s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "grant_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"can_read", "can_write", "updated_at"}),
		}).
		Create(permission).Error
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, target, grantee)
}

func (s *PermissionStore) Get(ctx context.Context, target models.Target, grantee models.Grantee) (*models.Permission, error) {
	var permission models.Permission
	err := s.DB.WithContext(ctx).
		Preload("Account").
		Preload("Group").
		Where("grant_key = ?", models.GrantKey(target, grantee)).
		First(&permission).Error
	if err != nil {
		return nil, translate(err, "permission", models.GrantKey(target, grantee))
	}
	return &permission, nil
}

// Remove clears matching grants on target. A nil grantee matches every grantee except
// the public group, whose grant only goes when it is named. includeRead deletes the rows;
// includeWrite alone downgrades them to read-only.
func (s *PermissionStore) Remove(ctx context.Context, target models.Target, grantee *models.Grantee, includeRead, includeWrite bool) (int64, error) {
	if !target.Valid() {
		return 0, invalidArgument("permission target is required")
	}
	if !includeRead && !includeWrite {
		return 0, invalidArgument("nothing to remove")
	}

	query := targetScope(s.DB.WithContext(ctx), target)
	if grantee != nil {
		if !grantee.Valid() {
			return 0, invalidArgument("grantee must be exactly one account or group")
		}
		query = granteeScope(query, *grantee)
	} else {
		query = query.Where("group_id IS NULL OR group_id <> ?", models.PublicGroupID)
	}

	if includeRead {
		result := query.Delete(&models.Permission{})
		return result.RowsAffected, result.Error
	}
	result := query.Where("can_write = ?", true).UpdateColumn("can_write", false)
	return result.RowsAffected, result.Error
}

// ListForResource returns the grants on target. explicitOnly leaves out the public-group
// grant so implicit public access is not counted twice.
func (s *PermissionStore) ListForResource(ctx context.Context, target models.Target, explicitOnly bool) ([]models.Permission, error) {
	query := targetScope(s.DB.WithContext(ctx), target).
		Preload("Account").
		Preload("Group").
		Order("created_at ASC")
	if explicitOnly {
		query = query.Where("group_id IS NULL OR group_id <> ?", models.PublicGroupID)
	}
	var permissions []models.Permission
	if err := query.Find(&permissions).Error; err != nil {
		return nil, err
	}
	return permissions, nil
}

// ClearAll removes every grant on target, the public-group grant included.
func (s *PermissionStore) ClearAll(ctx context.Context, target models.Target) (int64, error) {
	result := targetScope(s.DB.WithContext(ctx), target).Delete(&models.Permission{})
	return result.RowsAffected, result.Error
}

func (s *PermissionStore) IsPublicVisible(ctx context.Context, target models.Target) (bool, error) {
	_, err := s.Get(ctx, target, models.PublicGrantee())
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

func (s *PermissionStore) CountExplicit(ctx context.Context, target models.Target) (int64, error) {
	var count int64
	err := targetScope(s.DB.WithContext(ctx), target).
		Where("group_id IS NULL OR group_id <> ?", models.PublicGroupID).
		Count(&count).Error
	return count, err
}

// TargetsForGrantees lists the ids of resources of the given kind that the account or
// any of the groups holds a grant on.
func (s *PermissionStore) TargetsForGrantees(ctx context.Context, kind models.ResourceKind, accountID uuid.UUID, groupIDs []uuid.UUID) ([]uuid.UUID, error) {
	column := "folder_id"
	if kind == models.ResourceEntry {
		column = "entry_id"
	}

	query := s.DB.WithContext(ctx).Model(&models.Permission{}).Where(column + " IS NOT NULL")
	if len(groupIDs) > 0 {
		query = query.Where("account_id = ? OR group_id IN ?", accountID, groupIDs)
	} else {
		query = query.Where("account_id = ?", accountID)
	}

	var ids []uuid.UUID
	if err := query.Distinct().Pluck(column, &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

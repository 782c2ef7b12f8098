package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/partsregistry/registry/internal/models"
	"github.com/partsregistry/registry/pkg/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AccountDirectory resolves accounts and group membership.
type AccountDirectory struct {
	DB *gorm.DB
}

func NewAccountDirectory(db *gorm.DB) *AccountDirectory {
	return &AccountDirectory{DB: db}
}

func (d *AccountDirectory) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	normalized := models.NormalizeEmail(email)
	if normalized == "" {
		return nil, notFound("account", email)
	}
	var account models.Account
	if err := d.DB.WithContext(ctx).First(&account, "email = ?", normalized).Error; err != nil {
		return nil, translate(err, "account", email)
	}
	return &account, nil
}

func (d *AccountDirectory) Get(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var account models.Account
	if err := d.DB.WithContext(ctx).First(&account, "id = ?", id).Error; err != nil {
		return nil, translate(err, "account", id)
	}
	return &account, nil
}

func (d *AccountDirectory) IsAdministrator(ctx context.Context, email string) bool {
	account, err := d.GetByEmail(ctx, email)
	if err != nil {
		return false
	}
	return account.IsAdmin()
}

// CreateAccount registers a new account. The email is stored normalized.
func (d *AccountDirectory) CreateAccount(ctx context.Context, email, password, firstName, lastName string, accountType models.AccountType) (*models.Account, error) {
	normalized := models.NormalizeEmail(email)
	if normalized == "" || !strings.Contains(normalized, "@") {
		return nil, invalidArgument("email %q is not valid", email)
	}
	if accountType == "" {
		accountType = models.AccountTypeNormal
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}

	account := &models.Account{
		Email:        normalized,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		Type:         accountType,
	}
	if err := d.DB.WithContext(ctx).Create(account).Error; err != nil {
		return nil, err
	}
	return account, nil
}

// CreateOrRetrievePublicGroup is an idempotent get-or-create keyed by the well-known id.
func (d *AccountDirectory) CreateOrRetrievePublicGroup(ctx context.Context) (*models.Group, error) {
	var group models.Group
	err := d.DB.WithContext(ctx).First(&group, "id = ?", models.PublicGroupID).Error
	if err == nil {
		return &group, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	description := "Every account can read what is shared with this group"
	group = models.Group{
		BaseModel:   models.BaseModel{ID: models.PublicGroupID},
		Name:        models.PublicGroupName,
		Description: &description,
	}
	if err := d.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&group).Error; err != nil {
		return nil, err
	}
	if err := d.DB.WithContext(ctx).First(&group, "id = ?", models.PublicGroupID).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

func (d *AccountDirectory) GetGroup(ctx context.Context, id uuid.UUID) (*models.Group, error) {
	var group models.Group
	if err := d.DB.WithContext(ctx).First(&group, "id = ?", id).Error; err != nil {
		return nil, translate(err, "group", id)
	}
	return &group, nil
}

// GroupIDs returns the groups the account is an explicit member of.
func (d *AccountDirectory) GroupIDs(ctx context.Context, accountID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := d.DB.WithContext(ctx).
		Model(&models.GroupMembership{}).
		Where("account_id = ?", accountID).
		Pluck("group_id", &ids).Error
	return ids, err
}

func (d *AccountDirectory) IsMember(ctx context.Context, accountID, groupID uuid.UUID) (bool, error) {
	var count int64
	err := d.DB.WithContext(ctx).
		Model(&models.GroupMembership{}).
		Where("account_id = ? AND group_id = ?", accountID, groupID).
		Count(&count).Error
	return count > 0, err
}

// ResolveGrantee checks that the grantee exists. The public group is created on demand.
func (d *AccountDirectory) ResolveGrantee(ctx context.Context, grantee models.Grantee) error {
	if !grantee.Valid() {
		return invalidArgument("grantee must be exactly one account or group")
	}
	switch {
	case grantee.IsPublicGroup():
		_, err := d.CreateOrRetrievePublicGroup(ctx)
		return err
	case grantee.Kind == models.GranteeAccount:
		_, err := d.Get(ctx, grantee.ID)
		return err
	default:
		_, err := d.GetGroup(ctx, grantee.ID)
		return err
	}
}

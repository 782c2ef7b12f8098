package services

import (
	"context"

	"github.com/partsregistry/registry/internal/metrics"
	"github.com/partsregistry/registry/internal/models"
	"github.com/partsregistry/registry/pkg/logger"
	"gorm.io/gorm"
)

// Authorizer decides read/write eligibility for folders and entries.
type Authorizer struct {
	DB *gorm.DB
}

func NewAuthorizer(db *gorm.DB) *Authorizer {
	return &Authorizer{DB: db}
}

func (a *Authorizer) with(db *gorm.DB) *Authorizer {
	return &Authorizer{DB: db}
}

func (a *Authorizer) CanRead(ctx context.Context, actor string, resource models.Securable) bool {
	read, _ := a.evaluate(ctx, actor, resource)
	return read
}

func (a *Authorizer) CanWrite(ctx context.Context, actor string, resource models.Securable) bool {
	_, write := a.evaluate(ctx, actor, resource)
	return write
}

func (a *Authorizer) ExpectRead(ctx context.Context, actor string, resource models.Securable) error {
	if a.CanRead(ctx, actor, resource) {
		return nil
	}
	return deny(actor, resource, "read")
}

func (a *Authorizer) ExpectWrite(ctx context.Context, actor string, resource models.Securable) error {
	if a.CanWrite(ctx, actor, resource) {
		return nil
	}
	return deny(actor, resource, "write")
}

func deny(actor string, resource models.Securable, access string) error {
	logger.WarnWithUser(actor, "permission_denied", map[string]interface{}{
		"resource_type": string(resource.ResourceKind()),
		"resource_id":   resource.ResourceID().String(),
		"required":      access,
	})
	metrics.PermissionDenied.WithLabelValues(string(resource.ResourceKind()), access).Inc()
	return &PermissionDeniedError{
		Actor:      actor,
		Kind:       resource.ResourceKind(),
		ResourceID: resource.ResourceID(),
		Access:     access,
	}
}

// evaluate applies the rules in order; the first that matches decides.
// Write always implies read.
func (a *Authorizer) evaluate(ctx context.Context, actor string, resource models.Securable) (read, write bool) {
	if resource == nil {
		return false, false
	}
	email := models.NormalizeEmail(actor)
	accounts := NewAccountDirectory(a.DB)

	account, err := accounts.GetByEmail(ctx, email)
	if err != nil {
		account = nil
	}
	if account.IsAdmin() {
		return true, true
	}

	// Public folders are readable by everyone; write still needs an explicit grant.
	public := resource.IsPublicResource()

	if owner := resource.Owner(); owner != "" && email != "" && models.NormalizeEmail(owner) == email {
		return true, true
	}
	if account == nil {
		if !public {
			public, _ = NewPermissionStore(a.DB).IsPublicVisible(ctx, models.TargetOf(resource))
		}
		return public, false
	}

	target := models.TargetOf(resource)
	if grant, found := a.accountGrant(ctx, target, account); found {
		return public || grant.CanRead || grant.CanWrite, grant.CanWrite
	}
	if read, write, found := a.groupGrants(ctx, target, account); found {
		return public || read || write, write
	}
	return public, false
}

func (a *Authorizer) accountGrant(ctx context.Context, target models.Target, account *models.Account) (*models.Permission, bool) {
	var grant models.Permission
	err := a.DB.WithContext(ctx).
		Where("grant_key = ?", models.GrantKey(target, models.AccountGrantee(account.ID))).
		First(&grant).Error
	if err != nil {
		return nil, false
	}
	return &grant, true
}

// groupGrants folds every grant held by the actor's groups into the most permissive
// pair. The public group contributes read to everyone but write only to its explicit members.
func (a *Authorizer) groupGrants(ctx context.Context, target models.Target, account *models.Account) (read, write, found bool) {
	groupIDs, err := NewAccountDirectory(a.DB).GroupIDs(ctx, account.ID)
	if err != nil {
		return false, false, false
	}
	explicitPublicMember := false
	for _, id := range groupIDs {
		if id == models.PublicGroupID {
			explicitPublicMember = true
		}
	}
	if !explicitPublicMember {
		groupIDs = append(groupIDs, models.PublicGroupID)
	}

	var grants []models.Permission
	if err := targetScope(a.DB.WithContext(ctx), target).
		Where("group_id IN ?", groupIDs).
		Find(&grants).Error; err != nil {
		return false, false, false
	}

	for _, grant := range grants {
		found = true
		if grant.CanRead || grant.CanWrite {
			read = true
		}
		if grant.CanWrite && (*grant.GroupID != models.PublicGroupID || explicitPublicMember) {
			write = true
		}
	}
	return read, write, found
}

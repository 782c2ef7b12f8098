package models

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GranteeKind string

const (
	GranteeAccount GranteeKind = "account"
	GranteeGroup   GranteeKind = "group"
)

// Grantee receives a permission: exactly one of an account or a group.
type Grantee struct {
	Kind GranteeKind
	ID   uuid.UUID
}

func AccountGrantee(id uuid.UUID) Grantee {
	return Grantee{Kind: GranteeAccount, ID: id}
}

func GroupGrantee(id uuid.UUID) Grantee {
	return Grantee{Kind: GranteeGroup, ID: id}
}

func PublicGrantee() Grantee {
	return GroupGrantee(PublicGroupID)
}

func (g Grantee) Valid() bool {
	return (g.Kind == GranteeAccount || g.Kind == GranteeGroup) && g.ID != uuid.Nil
}

func (g Grantee) IsPublicGroup() bool {
	return g.Kind == GranteeGroup && g.ID == PublicGroupID
}

func (g Grantee) String() string {
	return string(g.Kind) + ":" + g.ID.String()
}

var ErrMalformedPermission = errors.New("permission must reference exactly one resource and exactly one grantee")

// Permission grants read and/or write on one folder or entry to one account or group.
// The nullable columns are storage only; build rows with NewPermission.
type Permission struct {
	BaseModel
	FolderID  *uuid.UUID `json:"folderID,omitempty" gorm:"type:uuid;index"`
	EntryID   *uuid.UUID `json:"entryID,omitempty" gorm:"type:uuid;index"`
	AccountID *uuid.UUID `json:"accountID,omitempty" gorm:"type:uuid;index"`
	GroupID   *uuid.UUID `json:"groupID,omitempty" gorm:"type:uuid;index"`
	CanRead   bool       `json:"canRead" gorm:"not null;default:false"`
	CanWrite  bool       `json:"canWrite" gorm:"not null;default:false"`
	GrantKey  string     `json:"-" gorm:"type:varchar(120);not null;uniqueIndex"`

	Account *Account `json:"account,omitempty" gorm:"foreignKey:AccountID"`
	Group   *Group   `json:"group,omitempty" gorm:"foreignKey:GroupID"`
}

func (Permission) TableName() string {
	return "permissions"
}

func NewPermission(target Target, grantee Grantee, canRead, canWrite bool) (*Permission, error) {
	if !target.Valid() || !grantee.Valid() {
		return nil, ErrMalformedPermission
	}
	p := &Permission{CanRead: canRead || canWrite, CanWrite: canWrite}
	targetID := target.ID
	switch target.Kind {
	case ResourceFolder:
		p.FolderID = &targetID
	case ResourceEntry:
		p.EntryID = &targetID
	}
	granteeID := grantee.ID
	switch grantee.Kind {
	case GranteeAccount:
		p.AccountID = &granteeID
	case GranteeGroup:
		p.GroupID = &granteeID
	}
	p.GrantKey = GrantKey(target, grantee)
	return p, nil
}

// GrantKey is unique per (target, grantee) pair.
func GrantKey(target Target, grantee Grantee) string {
	return fmt.Sprintf("%s|%s", target, grantee)
}

func (p *Permission) Target() (Target, error) {
	switch {
	case p.FolderID != nil && p.EntryID == nil:
		return FolderTarget(*p.FolderID), nil
	case p.EntryID != nil && p.FolderID == nil:
		return EntryTarget(*p.EntryID), nil
	default:
		return Target{}, ErrMalformedPermission
	}
}

func (p *Permission) Grantee() (Grantee, error) {
	switch {
	case p.AccountID != nil && p.GroupID == nil:
		return AccountGrantee(*p.AccountID), nil
	case p.GroupID != nil && p.AccountID == nil:
		return GroupGrantee(*p.GroupID), nil
	default:
		return Grantee{}, ErrMalformedPermission
	}
}

// Covers reports whether this grant is equal to or greater than the requested one.
func (p *Permission) Covers(canRead, canWrite bool) bool {
	if canWrite && !p.CanWrite {
		return false
	}
	if canRead && !(p.CanRead || p.CanWrite) {
		return false
	}
	return true
}

func (p *Permission) BeforeCreate(tx *gorm.DB) error {
	target, err := p.Target()
	if err != nil {
		return err
	}
	grantee, err := p.Grantee()
	if err != nil {
		return err
	}
	p.GrantKey = GrantKey(target, grantee)
	if p.CanWrite {
		p.CanRead = true
	}
	return p.BaseModel.BeforeCreate(tx)
}

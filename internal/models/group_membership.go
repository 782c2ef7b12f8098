package models

import "github.com/google/uuid"

type GroupMembershipRole string

const (
	GroupRoleOwner  GroupMembershipRole = "owner"
	GroupRoleAdmin  GroupMembershipRole = "admin"
	GroupRoleMember GroupMembershipRole = "member"
)

type GroupMembership struct {
	BaseModel
	AccountID uuid.UUID           `json:"accountID" gorm:"type:uuid;not null;index;uniqueIndex:idx_account_group"`
	GroupID   uuid.UUID           `json:"groupID" gorm:"type:uuid;not null;index;uniqueIndex:idx_account_group"`
	Role      GroupMembershipRole `json:"role" gorm:"type:varchar(20);not null;default:'member'"`
	Account   Account             `json:"account,omitempty" gorm:"foreignKey:AccountID"`
	Group     Group               `json:"group,omitempty" gorm:"foreignKey:GroupID"`
}

package models

import "github.com/google/uuid"

// PublicGroupID identifies the singleton group every account implicitly belongs to
// for read visibility.
var PublicGroupID = uuid.MustParse("8746a64b-abd5-4838-a332-02c356bbeac0")

const PublicGroupName = "Public"

type Group struct {
	BaseModel
	Name        string            `json:"name" gorm:"type:varchar(150);not null"`
	Description *string           `json:"description,omitempty" gorm:"type:text"`
	CreatedByID *uuid.UUID        `json:"createdByID,omitempty" gorm:"type:uuid;index"`
	CreatedBy   *Account          `json:"createdBy,omitempty" gorm:"foreignKey:CreatedByID"`
	Memberships []GroupMembership `json:"memberships,omitempty" gorm:"foreignKey:GroupID"`
}

func (Group) TableName() string {
	return "groups"
}

func (g *Group) IsPublic() bool {
	return g.ID == PublicGroupID
}

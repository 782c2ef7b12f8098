package models

import (
	"time"

	"github.com/google/uuid"
)

type FolderType string

const (
	FolderTypePrivate FolderType = "private"
	FolderTypeShared  FolderType = "shared"
	FolderTypePublic  FolderType = "public"
	// FolderTypeUpload folders are projections of bulk uploads and never stored as folder rows.
	FolderTypeUpload FolderType = "upload"
)

func (t FolderType) Valid() bool {
	switch t {
	case FolderTypePrivate, FolderTypeShared, FolderTypePublic, FolderTypeUpload:
		return true
	default:
		return false
	}
}

type Folder struct {
	BaseModel
	Name                 string     `json:"name" gorm:"type:varchar(255);not null"`
	Description          string     `json:"description" gorm:"type:text;not null;default:''"`
	OwnerEmail           string     `json:"ownerEmail" gorm:"type:varchar(255);not null;default:'';index"`
	Type                 FolderType `json:"type" gorm:"type:varchar(20);not null;default:'private';index"`
	PropagatePermissions bool       `json:"propagatePermissions" gorm:"not null;default:false"`
	ModifiedAt           *time.Time `json:"modifiedAt,omitempty"`
}

func (Folder) TableName() string {
	return "folders"
}

func (f *Folder) ResourceKind() ResourceKind { return ResourceFolder }
func (f *Folder) ResourceID() uuid.UUID      { return f.ID }
func (f *Folder) Owner() string              { return f.OwnerEmail }
func (f *Folder) IsPublicResource() bool     { return f.Type == FolderTypePublic }

// Touch records a modification.
func (f *Folder) Touch(now time.Time) {
	f.ModifiedAt = &now
}

// FolderEntry is the folder content membership row.
type FolderEntry struct {
	FolderID  uuid.UUID `json:"folderID" gorm:"type:uuid;primaryKey"`
	EntryID   uuid.UUID `json:"entryID" gorm:"type:uuid;primaryKey;index"`
	CreatedAt time.Time `json:"createdAt"`
}

func (FolderEntry) TableName() string {
	return "folder_entries"
}

package models

import (
	"time"

	"github.com/google/uuid"
)

type BulkUploadStatus string

const (
	BulkUploadDraft           BulkUploadStatus = "draft"
	BulkUploadPendingApproval BulkUploadStatus = "pending_approval"
	BulkUploadApproved        BulkUploadStatus = "approved"
)

// BulkUpload stages a batch of entry drafts. Its contents live in bulk_upload_entries
// and are looked up when needed.
type BulkUpload struct {
	BaseModel
	Name        string           `json:"name" gorm:"type:varchar(255);not null"`
	AccountID   uuid.UUID        `json:"accountID" gorm:"type:uuid;not null;index"`
	Account     Account          `json:"account,omitempty" gorm:"foreignKey:AccountID"`
	Status      BulkUploadStatus `json:"status" gorm:"type:varchar(30);not null;default:'draft';index"`
	SubmittedAt *time.Time       `json:"submittedAt,omitempty"`
}

func (BulkUpload) TableName() string {
	return "bulk_uploads"
}

type BulkUploadEntry struct {
	BulkUploadID uuid.UUID `json:"bulkUploadID" gorm:"type:uuid;primaryKey"`
	EntryID      uuid.UUID `json:"entryID" gorm:"type:uuid;primaryKey;index"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (BulkUploadEntry) TableName() string {
	return "bulk_upload_entries"
}

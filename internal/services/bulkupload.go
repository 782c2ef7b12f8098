package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/partsregistry/registry/internal/dto"
	"github.com/partsregistry/registry/internal/models"
	"github.com/partsregistry/registry/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BulkUploadService stages drafts and moves them through approval.
type BulkUploadService struct {
	DB    *gorm.DB
	Audit *AuditService
}

func NewBulkUploadService(db *gorm.DB, audit *AuditService) *BulkUploadService {
	return &BulkUploadService{DB: db, Audit: audit}
}

type UploadSummary struct {
	Upload models.BulkUpload
	Count  int64
}

func uploadDenied(actor string, id uuid.UUID, access string) error {
	return deny(actor, uploadResource{id: id}, access)
}

// uploadResource lets upload denials go through the same logging as folders and entries.
type uploadResource struct{ id uuid.UUID }

func (u uploadResource) ResourceKind() models.ResourceKind { return models.ResourceUpload }
func (u uploadResource) ResourceID() uuid.UUID             { return u.id }
func (u uploadResource) Owner() string                     { return "" }
func (u uploadResource) IsPublicResource() bool            { return false }

func (s *BulkUploadService) CreateDraft(ctx context.Context, actor, name string) (*models.BulkUpload, error) {
	account, err := NewAccountDirectory(s.DB).GetByEmail(ctx, actor)
	if err != nil {
		return nil, err
	}
	if isBlank(name) {
		return nil, invalidArgument("upload name is required")
	}
	upload := &models.BulkUpload{
		Name:      name,
		AccountID: account.ID,
		Status:    models.BulkUploadDraft,
	}
	if err := s.DB.WithContext(ctx).Create(upload).Error; err != nil {
		return nil, err
	}
	upload.Account = *account
	s.Audit.Record(ctx, actor, "upload.create", models.Target{Kind: models.ResourceUpload, ID: upload.ID}, map[string]interface{}{
		"upload_name": upload.Name,
	})
	return upload, nil
}

// load fetches the upload and checks that the actor owns it or is an administrator.
func (s *BulkUploadService) load(ctx context.Context, db *gorm.DB, actor string, id uuid.UUID, lock bool) (*models.BulkUpload, *models.Account, error) {
	account, err := NewAccountDirectory(db).GetByEmail(ctx, actor)
	if err != nil {
		return nil, nil, uploadDenied(actor, id, "read")
	}
	query := db.WithContext(ctx).Preload("Account")
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var upload models.BulkUpload
	if err := query.First(&upload, "id = ?", id).Error; err != nil {
		return nil, nil, translate(err, "upload", id)
	}
	if upload.AccountID != account.ID && !account.IsAdmin() {
		return nil, nil, uploadDenied(actor, id, "read")
	}
	return &upload, account, nil
}

func (s *BulkUploadService) Get(ctx context.Context, actor string, id uuid.UUID) (*UploadSummary, error) {
	upload, _, err := s.load(ctx, s.DB, actor, id, false)
	if err != nil {
		return nil, err
	}
	count, err := s.Count(ctx, id)
	if err != nil {
		return nil, err
	}
	return &UploadSummary{Upload: *upload, Count: count}, nil
}

func (s *BulkUploadService) Count(ctx context.Context, id uuid.UUID) (int64, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.BulkUploadEntry{}).
		Joins("JOIN entries ON entries.id = bulk_upload_entries.entry_id").
		Where("bulk_upload_entries.bulk_upload_id = ?", id).
		Where("entries.visibility <> ?", models.VisibilityDeleted).
		Count(&count).Error
	return count, err
}

// AddEntries creates draft entries owned by the actor and attaches them to a draft upload.
func (s *BulkUploadService) AddEntries(ctx context.Context, actor string, id uuid.UUID, requests []dto.CreateEntryRequest) ([]models.Entry, error) {
	if len(requests) == 0 {
		return nil, invalidArgument("at least one entry is required")
	}
	var created []models.Entry
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upload, account, err := s.load(ctx, tx, actor, id, true)
		if err != nil {
			return err
		}
		if upload.Status != models.BulkUploadDraft {
			return invalidArgument("upload %s is no longer a draft", id)
		}
		if upload.AccountID != account.ID {
			return uploadDenied(actor, id, "write")
		}
		for _, req := range requests {
			entry, err := BuildEntry(account.Email, req, models.VisibilityDraft)
			if err != nil {
				return err
			}
			if err := tx.Create(entry).Error; err != nil {
				return err
			}
			if err := tx.Create(&models.BulkUploadEntry{BulkUploadID: id, EntryID: entry.ID}).Error; err != nil {
				return err
			}
			created = append(created, *entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *BulkUploadService) summaries(ctx context.Context, uploads []models.BulkUpload) ([]UploadSummary, error) {
	out := make([]UploadSummary, 0, len(uploads))
	for _, upload := range uploads {
		count, err := s.Count(ctx, upload.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, UploadSummary{Upload: upload, Count: count})
	}
	return out, nil
}

// RetrieveByUser lists the actor's uploads, optionally filtered by status.
func (s *BulkUploadService) RetrieveByUser(ctx context.Context, actor string, status models.BulkUploadStatus) ([]UploadSummary, error) {
	account, err := NewAccountDirectory(s.DB).GetByEmail(ctx, actor)
	if err != nil {
		return nil, err
	}
	query := s.DB.WithContext(ctx).Preload("Account").Where("account_id = ?", account.ID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var uploads []models.BulkUpload
	if err := query.Order("created_at DESC").Find(&uploads).Error; err != nil {
		return nil, err
	}
	return s.summaries(ctx, uploads)
}

// GetPendingUploads lists uploads awaiting approval. Administrators only.
func (s *BulkUploadService) GetPendingUploads(ctx context.Context, actor string) ([]UploadSummary, error) {
	if !NewAccountDirectory(s.DB).IsAdministrator(ctx, actor) {
		return nil, uploadDenied(actor, uuid.Nil, "read")
	}
	var uploads []models.BulkUpload
	if err := s.DB.WithContext(ctx).Preload("Account").
		Where("status = ?", models.BulkUploadPendingApproval).
		Order("submitted_at ASC").
		Find(&uploads).Error; err != nil {
		return nil, err
	}
	return s.summaries(ctx, uploads)
}

// Validate runs the bulk-upload validator against the current contents.
func (s *BulkUploadService) Validate(ctx context.Context, actor string, id uuid.UUID) (bool, []EntryField, error) {
	upload, _, err := s.load(ctx, s.DB, actor, id, false)
	if err != nil {
		return false, nil, err
	}
	validation, err := NewBulkUploadValidation(upload, NewEntryDirectory(s.DB))
	if err != nil {
		return false, nil, err
	}
	valid, err := validation.IsValid(ctx)
	if err != nil {
		return false, nil, err
	}
	return valid, validation.FailedFields(), nil
}

// Submit validates the draft and, when it passes, moves it and its entries to pending
// approval. Failed fields are returned as data; the upload stays a draft.
func (s *BulkUploadService) Submit(ctx context.Context, actor string, id uuid.UUID) ([]EntryField, error) {
	var failed []EntryField
	var name string
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upload, account, err := s.load(ctx, tx, actor, id, true)
		if err != nil {
			return err
		}
		if upload.AccountID != account.ID {
			return uploadDenied(actor, id, "write")
		}
		if upload.Status != models.BulkUploadDraft {
			return invalidArgument("upload %s is not a draft", id)
		}
		name = upload.Name

		validation, err := NewBulkUploadValidation(upload, NewEntryDirectory(tx))
		if err != nil {
			return err
		}
		valid, err := validation.IsValid(ctx)
		if err != nil {
			return err
		}
		if !valid {
			failed = validation.FailedFields()
			return nil
		}

		now := time.Now().UTC()
		if err := tx.Model(&models.BulkUpload{}).Where("id = ?", id).UpdateColumns(map[string]interface{}{
			"status":       models.BulkUploadPendingApproval,
			"submitted_at": now,
			"updated_at":   now,
		}).Error; err != nil {
			return err
		}
		return setUploadVisibility(tx, id, models.VisibilityDraft, models.VisibilityPending)
	})
	if err != nil {
		return nil, err
	}
	if len(failed) > 0 {
		logger.InfoWithUser(actor, "upload_submit_rejected", map[string]interface{}{
			"upload_id":     id.String(),
			"failed_fields": failed,
		})
		return failed, nil
	}
	s.Audit.Record(ctx, actor, "upload.submit", models.Target{Kind: models.ResourceUpload, ID: id}, map[string]interface{}{
		"upload_name": name,
	})
	return nil, nil
}

// Approve publishes a pending upload. Administrators only.
func (s *BulkUploadService) Approve(ctx context.Context, actor string, id uuid.UUID) error {
	var upload *models.BulkUpload
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, account, err := s.load(ctx, tx, actor, id, true)
		if err != nil {
			return err
		}
		if !account.IsAdmin() {
			return uploadDenied(actor, id, "write")
		}
		if loaded.Status != models.BulkUploadPendingApproval {
			return invalidArgument("upload %s is not pending approval", id)
		}
		upload = loaded
		if err := tx.Model(&models.BulkUpload{}).Where("id = ?", id).UpdateColumns(map[string]interface{}{
			"status":     models.BulkUploadApproved,
			"updated_at": time.Now().UTC(),
		}).Error; err != nil {
			return err
		}
		return setUploadVisibility(tx, id, models.VisibilityPending, models.VisibilityOK)
	})
	if err != nil {
		return err
	}
	s.Audit.Record(ctx, actor, "upload.approve", models.Target{Kind: models.ResourceUpload, ID: id}, map[string]interface{}{
		"upload_name":       upload.Name,
		"target_account_id": upload.AccountID.String(),
	})
	return nil
}

// DeleteDraft removes an unapproved upload and marks its draft entries deleted.
func (s *BulkUploadService) DeleteDraft(ctx context.Context, actor string, id uuid.UUID) (*models.BulkUpload, error) {
	var upload *models.BulkUpload
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, _, err := s.load(ctx, tx, actor, id, true)
		if err != nil {
			return err
		}
		if loaded.Status == models.BulkUploadApproved {
			return invalidArgument("approved upload %s cannot be deleted", id)
		}
		upload = loaded

		var entryIDs []uuid.UUID
		if err := tx.Model(&models.BulkUploadEntry{}).Where("bulk_upload_id = ?", id).Pluck("entry_id", &entryIDs).Error; err != nil {
			return err
		}
		if len(entryIDs) > 0 {
			if err := tx.Model(&models.Entry{}).
				Where("id IN ? AND visibility IN ?", entryIDs, []models.Visibility{models.VisibilityDraft, models.VisibilityPending}).
				UpdateColumn("visibility", models.VisibilityDeleted).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("bulk_upload_id = ?", id).Delete(&models.BulkUploadEntry{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.BulkUpload{}, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	s.Audit.Record(ctx, actor, "upload.delete", models.Target{Kind: models.ResourceUpload, ID: id}, map[string]interface{}{
		"upload_name": upload.Name,
	})
	return upload, nil
}

func setUploadVisibility(tx *gorm.DB, uploadID uuid.UUID, from, to models.Visibility) error {
	sub := tx.Model(&models.BulkUploadEntry{}).Select("entry_id").Where("bulk_upload_id = ?", uploadID)
	return tx.Model(&models.Entry{}).
		Where("id IN (?) AND visibility = ?", sub, from).
		UpdateColumn("visibility", to).Error
}

package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/partsregistry/registry/internal/dto"
	"github.com/partsregistry/registry/internal/models"
	"github.com/partsregistry/registry/pkg/logger"
	"gorm.io/gorm"
)

// EntryDirectory reads entries and the counters behind the collection views.
type EntryDirectory struct {
	DB *gorm.DB
}

func NewEntryDirectory(db *gorm.DB) *EntryDirectory {
	return &EntryDirectory{DB: db}
}

func withPayloads(db *gorm.DB) *gorm.DB {
	return db.Preload("SelectionMarkers").Preload("Strain").Preload("Plasmid").Preload("Arabidopsis")
}

func liveEntries(db *gorm.DB) *gorm.DB {
	return db.Where("entries.visibility <> ?", models.VisibilityDeleted)
}

func (d *EntryDirectory) Get(ctx context.Context, id uuid.UUID) (*models.Entry, error) {
	var entry models.Entry
	if err := withPayloads(d.DB.WithContext(ctx)).First(&entry, "id = ?", id).Error; err != nil {
		return nil, translate(err, "entry", id)
	}
	return &entry, nil
}

// GetByIDSet returns the entries in the order of ids, skipping ids that do not resolve.
func (d *EntryDirectory) GetByIDSet(ctx context.Context, ids []uuid.UUID) ([]models.Entry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var entries []models.Entry
	if err := withPayloads(d.DB.WithContext(ctx)).Where("id IN ?", ids).Find(&entries).Error; err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.Entry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}
	ordered := make([]models.Entry, 0, len(entries))
	for _, id := range ids {
		if e, ok := byID[id]; ok {
			ordered = append(ordered, e)
			delete(byID, id)
		}
	}
	return ordered, nil
}

// UploadEntryIDs reads the entry ids attached to a bulk upload at call time.
func (d *EntryDirectory) UploadEntryIDs(ctx context.Context, uploadID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := d.DB.WithContext(ctx).
		Model(&models.BulkUploadEntry{}).
		Where("bulk_upload_id = ?", uploadID).
		Order("created_at ASC").
		Pluck("entry_id", &ids).Error
	return ids, err
}

func (d *EntryDirectory) VisibilityCount(ctx context.Context, visibility models.Visibility) (int64, error) {
	var count int64
	err := d.DB.WithContext(ctx).Model(&models.Entry{}).Where("visibility = ?", visibility).Count(&count).Error
	return count, err
}

func (d *EntryDirectory) VisibleCount(ctx context.Context) (int64, error) {
	return d.VisibilityCount(ctx, models.VisibilityOK)
}

func (d *EntryDirectory) PendingCount(ctx context.Context) (int64, error) {
	return d.VisibilityCount(ctx, models.VisibilityPending)
}

func (d *EntryDirectory) OwnerCount(ctx context.Context, ownerEmail string) (int64, error) {
	var count int64
	err := d.DB.WithContext(ctx).Model(&models.Entry{}).
		Where("owner_email = ? AND visibility = ?", models.NormalizeEmail(ownerEmail), models.VisibilityOK).
		Count(&count).Error
	return count, err
}

func (d *EntryDirectory) DeletedCount(ctx context.Context, ownerEmail string) (int64, error) {
	var count int64
	err := d.DB.WithContext(ctx).Model(&models.Entry{}).
		Where("owner_email = ? AND visibility = ?", models.NormalizeEmail(ownerEmail), models.VisibilityDeleted).
		Count(&count).Error
	return count, err
}

// SharedWithCount counts visible entries other people granted to the account or its groups.
func (d *EntryDirectory) SharedWithCount(ctx context.Context, account *models.Account, groupIDs []uuid.UUID) (int64, error) {
	ids, err := NewPermissionStore(d.DB).TargetsForGrantees(ctx, models.ResourceEntry, account.ID, groupIDs)
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	var count int64
	err = d.DB.WithContext(ctx).Model(&models.Entry{}).
		Where("id IN ? AND owner_email <> ? AND visibility = ?", ids, account.Email, models.VisibilityOK).
		Count(&count).Error
	return count, err
}

// EntryService creates entries and manages their individual grants.
type EntryService struct {
	DB         *gorm.DB
	Authorizer *Authorizer
	Audit      *AuditService
}

func NewEntryService(db *gorm.DB, authorizer *Authorizer, audit *AuditService) *EntryService {
	return &EntryService{DB: db, Authorizer: authorizer, Audit: audit}
}

// BuildEntry turns a request body into an entry with its type-specific payload.
func BuildEntry(owner string, req dto.CreateEntryRequest, visibility models.Visibility) (*models.Entry, error) {
	kind, ok := models.ParseEntryKind(req.Kind)
	if !ok {
		return nil, invalidArgument("unknown entry kind %q", req.Kind)
	}
	entry := &models.Entry{
		Kind:                  kind,
		Name:                  strings.TrimSpace(req.Name),
		Creator:               strings.TrimSpace(req.Creator),
		CreatorEmail:          strings.TrimSpace(req.CreatorEmail),
		PrincipalInvestigator: strings.TrimSpace(req.PrincipalInvestigator),
		ShortDescription:      req.ShortDescription,
		BioSafetyLevel:        req.BioSafetyLevel,
		Status:                strings.TrimSpace(req.Status),
		OwnerEmail:            models.NormalizeEmail(owner),
		Visibility:            visibility,
	}
	for _, name := range req.SelectionMarkers {
		if name = strings.TrimSpace(name); name != "" {
			entry.SelectionMarkers = append(entry.SelectionMarkers, models.SelectionMarker{Name: name})
		}
	}
	applyPayload(entry, req)
	return entry, nil
}

func applyPayload(entry *models.Entry, req dto.CreateEntryRequest) {
	switch entry.Kind {
	case models.EntryKindStrain:
		entry.Strain = &models.StrainData{Host: req.Host, GenotypePhenotype: req.GenotypePhenotype, Plasmids: req.Plasmids}
	case models.EntryKindPlasmid:
		circular := true
		if req.Circular != nil {
			circular = *req.Circular
		}
		entry.Plasmid = &models.PlasmidData{
			Backbone:            req.Backbone,
			OriginOfReplication: req.OriginOfReplication,
			Promoters:           req.Promoters,
			Circular:            circular,
		}
	case models.EntryKindArabidopsis:
		entry.Arabidopsis = &models.ArabidopsisData{Ecotype: req.Ecotype, Generation: req.Generation, Parents: req.Parents}
	}
}

func (s *EntryService) Create(ctx context.Context, actor string, req dto.CreateEntryRequest) (*models.Entry, error) {
	entry, err := BuildEntry(actor, req, models.VisibilityOK)
	if err != nil {
		return nil, err
	}
	if err := s.DB.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, err
	}
	s.Audit.Record(ctx, actor, "entry.create", models.EntryTarget(entry.ID), map[string]interface{}{
		"entry_name": entry.Name,
		"kind":       string(entry.Kind),
	})
	return entry, nil
}

func (s *EntryService) Get(ctx context.Context, actor string, id uuid.UUID) (*models.Entry, error) {
	entry, err := NewEntryDirectory(s.DB).Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.Authorizer.ExpectRead(ctx, actor, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Update replaces the common fields, markers and payload of an entry the actor can write.
func (s *EntryService) Update(ctx context.Context, actor string, id uuid.UUID, req dto.CreateEntryRequest) (*models.Entry, error) {
	var updated *models.Entry
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := NewEntryDirectory(tx).Get(ctx, id)
		if err != nil {
			return err
		}
		if err := s.Authorizer.with(tx).ExpectWrite(ctx, actor, entry); err != nil {
			return err
		}
		next, err := BuildEntry(entry.OwnerEmail, req, entry.Visibility)
		if err != nil {
			return err
		}
		if next.Kind != entry.Kind {
			return invalidArgument("entry kind cannot change from %s to %s", entry.Kind, next.Kind)
		}

		if err := tx.Model(entry).Select(
			"name", "creator", "creator_email", "principal_investigator",
			"short_description", "bio_safety_level", "status",
		).Updates(map[string]interface{}{
			"name":                   next.Name,
			"creator":                next.Creator,
			"creator_email":          next.CreatorEmail,
			"principal_investigator": next.PrincipalInvestigator,
			"short_description":      next.ShortDescription,
			"bio_safety_level":       next.BioSafetyLevel,
			"status":                 next.Status,
		}).Error; err != nil {
			return err
		}

		if err := tx.Where("entry_id = ?", entry.ID).Delete(&models.SelectionMarker{}).Error; err != nil {
			return err
		}
		for i := range next.SelectionMarkers {
			next.SelectionMarkers[i].EntryID = entry.ID
		}
		if len(next.SelectionMarkers) > 0 {
			if err := tx.Create(&next.SelectionMarkers).Error; err != nil {
				return err
			}
		}
		if err := replacePayload(tx, entry, next); err != nil {
			return err
		}

		updated, err = NewEntryDirectory(tx).Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Audit.Record(ctx, actor, "entry.update", models.EntryTarget(id), map[string]interface{}{
		"entry_name": updated.Name,
	})
	return updated, nil
}

func replacePayload(tx *gorm.DB, entry, next *models.Entry) error {
	switch entry.Kind {
	case models.EntryKindStrain:
		if err := tx.Where("entry_id = ?", entry.ID).Delete(&models.StrainData{}).Error; err != nil {
			return err
		}
		next.Strain.EntryID = entry.ID
		return tx.Create(next.Strain).Error
	case models.EntryKindPlasmid:
		if err := tx.Where("entry_id = ?", entry.ID).Delete(&models.PlasmidData{}).Error; err != nil {
			return err
		}
		next.Plasmid.EntryID = entry.ID
		return tx.Create(next.Plasmid).Error
	case models.EntryKindArabidopsis:
		if err := tx.Where("entry_id = ?", entry.ID).Delete(&models.ArabidopsisData{}).Error; err != nil {
			return err
		}
		next.Arabidopsis.EntryID = entry.ID
		return tx.Create(next.Arabidopsis).Error
	}
	return nil
}

// Delete marks the entry deleted. Folder listings and sizes stop counting it.
func (s *EntryService) Delete(ctx context.Context, actor string, id uuid.UUID) error {
	var name string
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := NewEntryDirectory(tx).Get(ctx, id)
		if err != nil {
			return err
		}
		name = entry.Name
		if err := s.Authorizer.with(tx).ExpectWrite(ctx, actor, entry); err != nil {
			return err
		}
		return tx.Model(&models.Entry{}).Where("id = ?", id).
			UpdateColumn("visibility", models.VisibilityDeleted).Error
	})
	if err != nil {
		return err
	}
	s.Audit.Record(ctx, actor, "entry.delete", models.EntryTarget(id), map[string]interface{}{
		"entry_name": name,
	})
	return nil
}

func (s *EntryService) CreatePermission(ctx context.Context, actor string, entryID uuid.UUID, grantee models.Grantee, canRead, canWrite bool) (*models.Permission, error) {
	permission, err := models.NewPermission(models.EntryTarget(entryID), grantee, canRead, canWrite)
	if err != nil {
		return nil, translate(err, "permission", nil)
	}

	var created *models.Permission
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := NewEntryDirectory(tx).Get(ctx, entryID)
		if err != nil {
			return err
		}
		if err := s.Authorizer.with(tx).ExpectWrite(ctx, actor, entry); err != nil {
			return err
		}
		if err := NewAccountDirectory(tx).ResolveGrantee(ctx, grantee); err != nil {
			return err
		}
		created, err = NewPermissionStore(tx).Create(ctx, permission)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.InfoWithUser(actor, "entry_permission_created", map[string]interface{}{
		"entry_id": entryID.String(),
		"grantee":  grantee.String(),
	})
	s.Audit.Record(ctx, actor, "permission.create", models.EntryTarget(entryID), grantDetails(grantee, canRead, canWrite))
	return created, nil
}

func (s *EntryService) RemovePermission(ctx context.Context, actor string, entryID uuid.UUID, grantee models.Grantee, writeOnly bool) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := NewEntryDirectory(tx).Get(ctx, entryID)
		if err != nil {
			return err
		}
		if err := s.Authorizer.with(tx).ExpectWrite(ctx, actor, entry); err != nil {
			return err
		}
		_, err = NewPermissionStore(tx).Remove(ctx, models.EntryTarget(entryID), &grantee, !writeOnly, true)
		return err
	})
	if err != nil {
		return err
	}
	s.Audit.Record(ctx, actor, "permission.delete", models.EntryTarget(entryID), grantDetails(grantee, !writeOnly, true))
	return nil
}

func grantDetails(grantee models.Grantee, canRead, canWrite bool) map[string]interface{} {
	details := map[string]interface{}{
		"can_read":  canRead || canWrite,
		"can_write": canWrite,
	}
	if grantee.Kind == models.GranteeGroup {
		details["group_id"] = grantee.ID.String()
	} else {
		details["account_id"] = grantee.ID.String()
	}
	return details
}

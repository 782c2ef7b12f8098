package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/partsregistry/registry/internal/cache"
	"github.com/partsregistry/registry/internal/dto"
	"github.com/partsregistry/registry/internal/metrics"
	"github.com/partsregistry/registry/internal/models"
	"github.com/partsregistry/registry/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// virtualFolders are computed listings with no folder row behind them.
var virtualFolders = map[string]struct{}{
	"available": {},
	"drafts":    {},
	"pending":   {},
	"shared":    {},
	"personal":  {},
	"public":    {},
}

func IsVirtualFolder(name string) bool {
	_, ok := virtualFolders[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// ParseFolderID rejects virtual folder names before anything touches storage.
func ParseFolderID(raw string) (uuid.UUID, error) {
	if IsVirtualFolder(raw) {
		return uuid.Nil, ErrVirtualFolder
	}
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, invalidArgument("invalid folder id %q", raw)
	}
	return id, nil
}

type FolderService struct {
	DB         *gorm.DB
	Authorizer *Authorizer
	Propagator *Propagator
	Uploads    *BulkUploadService
	Sizes      cache.FolderSizes
	Audit      *AuditService
}

func NewFolderService(db *gorm.DB, authorizer *Authorizer, propagator *Propagator, uploads *BulkUploadService, sizes cache.FolderSizes, audit *AuditService) *FolderService {
	if sizes == nil {
		sizes = cache.Noop{}
	}
	return &FolderService{
		DB:         db,
		Authorizer: authorizer,
		Propagator: propagator,
		Uploads:    uploads,
		Sizes:      sizes,
		Audit:      audit,
	}
}

// FolderUpdate carries the fields to change; nil fields are left alone.
type FolderUpdate struct {
	Name                 *string
	Description          *string
	PropagatePermissions *bool
	Type                 *models.FolderType
}

type ContentsQuery struct {
	Offset    int
	Limit     int
	Sort      string
	Ascending bool
}

var contentSortColumns = map[string]string{
	"created": "entries.created_at",
	"name":    "entries.name",
	"type":    "entries.kind",
	"status":  "entries.status",
}

func lockFolder(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Folder, error) {
	var folder models.Folder
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&folder, "id = ?", id).Error; err != nil {
		return nil, translate(err, "folder", id)
	}
	return &folder, nil
}

func (s *FolderService) getFolder(ctx context.Context, id uuid.UUID) (*models.Folder, error) {
	var folder models.Folder
	if err := s.DB.WithContext(ctx).First(&folder, "id = ?", id).Error; err != nil {
		return nil, translate(err, "folder", id)
	}
	return &folder, nil
}

func folderDetails(folder *models.Folder, extra map[string]interface{}) map[string]interface{} {
	details := map[string]interface{}{
		"folder_name": folder.Name,
		"folder_type": string(folder.Type),
	}
	for k, v := range extra {
		details[k] = v
	}
	return details
}

func (s *FolderService) CreatePersonalFolder(ctx context.Context, actor, name, description string) (*models.Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalidArgument("folder name is required")
	}
	owner := models.NormalizeEmail(actor)
	if _, err := NewAccountDirectory(s.DB).GetByEmail(ctx, owner); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	folder := &models.Folder{
		Name:        name,
		Description: strings.TrimSpace(description),
		OwnerEmail:  owner,
		Type:        models.FolderTypePrivate,
		ModifiedAt:  &now,
	}
	if err := s.DB.WithContext(ctx).Create(folder).Error; err != nil {
		return nil, err
	}

	logger.InfoWithUser(owner, "folder_created", map[string]interface{}{
		"folder_id":   folder.ID.String(),
		"folder_name": folder.Name,
	})
	s.Audit.Record(ctx, actor, "folder.create", models.FolderTarget(folder.ID), folderDetails(folder, nil))
	return folder, nil
}

func (s *FolderService) Get(ctx context.Context, actor string, id uuid.UUID) (*models.Folder, error) {
	folder, err := s.getFolder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.Authorizer.ExpectRead(ctx, actor, folder); err != nil {
		return nil, err
	}
	return folder, nil
}

// Update renames, re-describes, toggles propagation, promotes (type public) or demotes
// (type private) a folder. The folder state is re-read under a row lock so concurrent
// promotions cannot both act. A propagation failure is returned alongside the
// committed folder as a *PropagationError.
func (s *FolderService) Update(ctx context.Context, actor string, id uuid.UUID, update FolderUpdate) (*models.Folder, error) {
	var (
		updated    *models.Folder
		before     models.FolderType
		propagate  *bool
		transition string
	)

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		folder, err := lockFolder(ctx, tx, id)
		if err != nil {
			return err
		}
		before = folder.Type
		if err := s.Authorizer.with(tx).ExpectWrite(ctx, actor, folder); err != nil {
			return err
		}

		now := time.Now().UTC()
		if update.Type != nil {
			switch *update.Type {
			case models.FolderTypePublic:
				if folder.Type != models.FolderTypePublic {
					if err := promote(ctx, tx, folder, now); err != nil {
						return err
					}
					transition = "folder.promote"
				}
			case models.FolderTypePrivate:
				if folder.Type == models.FolderTypePublic {
					if err := demote(ctx, tx, folder, actor, now); err != nil {
						return err
					}
					transition = "folder.demote"
				}
			default:
				return invalidArgument("folder type can only be changed to public or private")
			}
		}

		changes := map[string]interface{}{}
		if update.Name != nil {
			name := strings.TrimSpace(*update.Name)
			if name == "" {
				return invalidArgument("folder name cannot be empty")
			}
			changes["name"] = name
		}
		if update.Description != nil {
			changes["description"] = strings.TrimSpace(*update.Description)
		}
		if update.PropagatePermissions != nil && *update.PropagatePermissions != folder.PropagatePermissions {
			changes["propagate_permissions"] = *update.PropagatePermissions
			propagate = update.PropagatePermissions
		}
		if len(changes) > 0 {
			changes["modified_at"] = now
			changes["updated_at"] = now
			if err := tx.Model(&models.Folder{}).Where("id = ?", id).UpdateColumns(changes).Error; err != nil {
				return err
			}
		}

		var reloaded models.Folder
		if err := tx.First(&reloaded, "id = ?", id).Error; err != nil {
			return err
		}
		updated = &reloaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	if transition != "" {
		metrics.FolderTransitions.WithLabelValues(string(before), string(updated.Type)).Inc()
		logger.InfoWithUser(actor, strings.Replace(transition, ".", "_", 1)+"d", map[string]interface{}{
			"folder_id": id.String(),
			"from":      string(before),
			"to":        string(updated.Type),
		})
		s.Audit.Record(ctx, actor, transition, models.FolderTarget(id), folderDetails(updated, nil))
	} else {
		s.Audit.Record(ctx, actor, "folder.update", models.FolderTarget(id), folderDetails(updated, nil))
	}

	if propagate != nil {
		if err := s.Propagator.PropagateFolderPermissions(ctx, actor, id, *propagate); err != nil {
			return updated, err
		}
	}
	return updated, nil
}

// promote makes the folder public: no owner and no per-grant ACL.
func promote(ctx context.Context, tx *gorm.DB, folder *models.Folder, now time.Time) error {
	if _, err := NewPermissionStore(tx).ClearAll(ctx, models.FolderTarget(folder.ID)); err != nil {
		return err
	}
	return tx.Model(&models.Folder{}).Where("id = ?", folder.ID).UpdateColumns(map[string]interface{}{
		"owner_email": "",
		"type":        models.FolderTypePublic,
		"modified_at": now,
		"updated_at":  now,
	}).Error
}

// demote hands the folder to the actor. Grants added while public keep it shared.
func demote(ctx context.Context, tx *gorm.DB, folder *models.Folder, actor string, now time.Time) error {
	explicit, err := NewPermissionStore(tx).CountExplicit(ctx, models.FolderTarget(folder.ID))
	if err != nil {
		return err
	}
	next := models.FolderTypePrivate
	if explicit > 0 {
		next = models.FolderTypeShared
	}
	return tx.Model(&models.Folder{}).Where("id = ?", folder.ID).UpdateColumns(map[string]interface{}{
		"owner_email": models.NormalizeEmail(actor),
		"type":        next,
		"modified_at": now,
		"updated_at":  now,
	}).Error
}

// Delete removes a folder with its grants and memberships. UPLOAD-type requests are
// redirected to the bulk-upload subsystem.
func (s *FolderService) Delete(ctx context.Context, actor string, id uuid.UUID, folderType models.FolderType) (*dto.FolderDetails, error) {
	if folderType == models.FolderTypeUpload {
		upload, err := s.Uploads.DeleteDraft(ctx, actor, id)
		if err != nil {
			return nil, err
		}
		details := dto.BulkUpload(upload, 0)
		return &details, nil
	}

	var deleted *models.Folder
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		folder, err := lockFolder(ctx, tx, id)
		if err != nil {
			return err
		}
		isAdmin := NewAccountDirectory(tx).IsAdministrator(ctx, actor)
		isOwner := folder.OwnerEmail != "" && models.NormalizeEmail(folder.OwnerEmail) == models.NormalizeEmail(actor)
		if !isAdmin && !isOwner {
			return deny(actor, folder, "delete")
		}
		if _, err := NewPermissionStore(tx).ClearAll(ctx, models.FolderTarget(id)); err != nil {
			return err
		}
		if err := tx.Where("folder_id = ?", id).Delete(&models.FolderEntry{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Folder{}, "id = ?", id).Error; err != nil {
			return err
		}
		deleted = folder
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Sizes.Invalidate(ctx, id)
	logger.InfoWithUser(actor, "folder_deleted", map[string]interface{}{
		"folder_id":   id.String(),
		"folder_name": deleted.Name,
	})
	s.Audit.Record(ctx, actor, "folder.delete", models.FolderTarget(id), folderDetails(deleted, nil))
	details := dto.Folder(deleted)
	return &details, nil
}

// readableEntries loads the entries and checks the actor may read every one of them.
func (s *FolderService) readableEntries(ctx context.Context, tx *gorm.DB, actor string, entryIDs []uuid.UUID) error {
	if len(entryIDs) == 0 {
		return invalidArgument("at least one entry is required")
	}
	var entries []models.Entry
	if err := tx.WithContext(ctx).Where("id IN ?", entryIDs).Find(&entries).Error; err != nil {
		return err
	}
	found := make(map[uuid.UUID]*models.Entry, len(entries))
	for i := range entries {
		found[entries[i].ID] = &entries[i]
	}
	authz := s.Authorizer.with(tx)
	for _, id := range entryIDs {
		entry, ok := found[id]
		if !ok || !entry.IsLive() {
			return notFound("entry", id)
		}
		if err := authz.ExpectRead(ctx, actor, entry); err != nil {
			return err
		}
	}
	return nil
}

func addMembership(ctx context.Context, tx *gorm.DB, folderID uuid.UUID, entryIDs []uuid.UUID, now time.Time) error {
	rows := make([]models.FolderEntry, 0, len(entryIDs))
	for _, id := range entryIDs {
		rows = append(rows, models.FolderEntry{FolderID: folderID, EntryID: id, CreatedAt: now})
	}
	if err := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error; err != nil {
		return err
	}
	return touch(tx, folderID, now)
}

func touch(tx *gorm.DB, folderID uuid.UUID, now time.Time) error {
	return tx.Model(&models.Folder{}).Where("id = ?", folderID).UpdateColumns(map[string]interface{}{
		"modified_at": now,
		"updated_at":  now,
	}).Error
}

// expectContentWrite guards membership removal: public folders need an administrator.
func expectContentWrite(ctx context.Context, tx *gorm.DB, authz *Authorizer, actor string, folder *models.Folder) error {
	if folder.Type == models.FolderTypePublic && !NewAccountDirectory(tx).IsAdministrator(ctx, actor) {
		return deny(actor, folder, "write")
	}
	return authz.ExpectWrite(ctx, actor, folder)
}

// AddFolderContents appends entries to a folder. When the folder propagates permissions,
// its grants are fanned out onto the new entries after the membership commits.
func (s *FolderService) AddFolderContents(ctx context.Context, actor string, folderID uuid.UUID, entryIDs []uuid.UUID) (*models.Folder, error) {
	var folder *models.Folder
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockFolder(ctx, tx, folderID)
		if err != nil {
			return err
		}
		if err := s.Authorizer.with(tx).ExpectWrite(ctx, actor, locked); err != nil {
			return err
		}
		if err := s.readableEntries(ctx, tx, actor, entryIDs); err != nil {
			return err
		}
		if err := addMembership(ctx, tx, folderID, entryIDs, time.Now().UTC()); err != nil {
			return err
		}
		folder = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Sizes.Invalidate(ctx, folderID)
	s.Audit.Record(ctx, actor, "folder.add_entries", models.FolderTarget(folderID), folderDetails(folder, map[string]interface{}{
		"entry_count": len(entryIDs),
	}))
	if folder.PropagatePermissions {
		if err := s.Propagator.PropagateToEntries(ctx, folder, entryIDs); err != nil {
			return folder, err
		}
	}
	return folder, nil
}

// AddEntriesToFolders adds the same entries to several folders. The actor must be able
// to write every destination before anything is added.
func (s *FolderService) AddEntriesToFolders(ctx context.Context, actor string, folderIDs, entryIDs []uuid.UUID) ([]models.Folder, error) {
	if len(folderIDs) == 0 {
		return nil, invalidArgument("at least one folder is required")
	}
	for _, id := range folderIDs {
		folder, err := s.getFolder(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := s.Authorizer.ExpectWrite(ctx, actor, folder); err != nil {
			return nil, err
		}
	}

	folders := make([]models.Folder, 0, len(folderIDs))
	var propagationErrs []error
	for _, id := range folderIDs {
		folder, err := s.AddFolderContents(ctx, actor, id, entryIDs)
		var perr *PropagationError
		if errors.As(err, &perr) {
			propagationErrs = append(propagationErrs, err)
		} else if err != nil {
			return folders, err
		}
		folders = append(folders, *folder)
	}
	return folders, errors.Join(propagationErrs...)
}

// MoveFolderContents detaches entries from source and attaches them to every destination
// in one transaction.
func (s *FolderService) MoveFolderContents(ctx context.Context, actor string, sourceID uuid.UUID, destinationIDs, entryIDs []uuid.UUID) ([]models.Folder, error) {
	if len(destinationIDs) == 0 {
		return nil, invalidArgument("at least one destination folder is required")
	}
	var destinations []models.Folder
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		authz := s.Authorizer.with(tx)
		source, err := lockFolder(ctx, tx, sourceID)
		if err != nil {
			return err
		}
		if err := expectContentWrite(ctx, tx, authz, actor, source); err != nil {
			return err
		}
		if err := s.readableEntries(ctx, tx, actor, entryIDs); err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := tx.Where("folder_id = ? AND entry_id IN ?", sourceID, entryIDs).Delete(&models.FolderEntry{}).Error; err != nil {
			return err
		}
		if err := touch(tx, sourceID, now); err != nil {
			return err
		}
		for _, id := range destinationIDs {
			if id == sourceID {
				continue
			}
			dest, err := lockFolder(ctx, tx, id)
			if err != nil {
				return err
			}
			if err := authz.ExpectWrite(ctx, actor, dest); err != nil {
				return err
			}
			if err := addMembership(ctx, tx, id, entryIDs, now); err != nil {
				return err
			}
			destinations = append(destinations, *dest)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Sizes.Invalidate(ctx, append([]uuid.UUID{sourceID}, destinationIDs...)...)
	var propagationErrs []error
	for i := range destinations {
		if destinations[i].PropagatePermissions {
			if err := s.Propagator.PropagateToEntries(ctx, &destinations[i], entryIDs); err != nil {
				propagationErrs = append(propagationErrs, err)
			}
		}
	}
	return destinations, errors.Join(propagationErrs...)
}

// RemoveFolderContents detaches entries. Public folders accept this from administrators only.
func (s *FolderService) RemoveFolderContents(ctx context.Context, actor string, folderID uuid.UUID, entryIDs []uuid.UUID) (*models.Folder, error) {
	if len(entryIDs) == 0 {
		return nil, invalidArgument("at least one entry is required")
	}
	var folder *models.Folder
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockFolder(ctx, tx, folderID)
		if err != nil {
			return err
		}
		if err := expectContentWrite(ctx, tx, s.Authorizer.with(tx), actor, locked); err != nil {
			return err
		}
		if err := tx.Where("folder_id = ? AND entry_id IN ?", folderID, entryIDs).Delete(&models.FolderEntry{}).Error; err != nil {
			return err
		}
		folder = locked
		return touch(tx, folderID, time.Now().UTC())
	})
	if err != nil {
		return nil, err
	}
	s.Sizes.Invalidate(ctx, folderID)
	s.Audit.Record(ctx, actor, "folder.remove_entries", models.FolderTarget(folderID), folderDetails(folder, map[string]interface{}{
		"entry_count": len(entryIDs),
	}))
	return folder, nil
}

func liveContents(db *gorm.DB, folderID uuid.UUID) *gorm.DB {
	return liveEntries(db.Model(&models.Entry{}).
		Joins("JOIN folder_entries ON folder_entries.entry_id = entries.id").
		Where("folder_entries.folder_id = ?", folderID))
}

// FolderSize counts the live entries of a folder.
func (s *FolderService) FolderSize(ctx context.Context, folderID uuid.UUID) (int64, error) {
	if size, ok := s.Sizes.Get(ctx, folderID); ok {
		return size, nil
	}
	var size int64
	if err := liveContents(s.DB.WithContext(ctx), folderID).Count(&size).Error; err != nil {
		return 0, err
	}
	s.Sizes.Set(ctx, folderID, size)
	return size, nil
}

// GetFolderContents returns one page of live entries plus, for writers, the explicit grants.
func (s *FolderService) GetFolderContents(ctx context.Context, actor string, folderID uuid.UUID, query ContentsQuery) (*dto.FolderDetails, error) {
	folder, err := s.Get(ctx, actor, folderID)
	if err != nil {
		return nil, err
	}

	details := dto.Folder(folder)
	if details.Count, err = s.FolderSize(ctx, folderID); err != nil {
		return nil, err
	}

	column, ok := contentSortColumns[query.Sort]
	if !ok {
		column = contentSortColumns["created"]
	}
	direction := " DESC"
	if query.Ascending {
		direction = " ASC"
	}
	if query.Limit <= 0 {
		query.Limit = 20
	}

	var entries []models.Entry
	if err := withPayloads(liveContents(s.DB.WithContext(ctx), folderID)).
		Order(column + direction).
		Offset(query.Offset).
		Limit(query.Limit).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	details.Contents = dto.Parts(entries)

	store := NewPermissionStore(s.DB)
	details.CanEdit = s.Authorizer.CanWrite(ctx, actor, folder)
	if details.CanEdit {
		permissions, err := store.ListForResource(ctx, models.FolderTarget(folderID), true)
		if err != nil {
			return nil, err
		}
		details.Permissions = dto.Permissions(permissions)
	}
	public, err := store.IsPublicVisible(ctx, models.FolderTarget(folderID))
	if err != nil {
		return nil, err
	}
	details.PublicReadAccess = public || folder.Type == models.FolderTypePublic

	if folder.OwnerEmail != "" {
		if owner, err := NewAccountDirectory(s.DB).GetByEmail(ctx, folder.OwnerEmail); err == nil {
			details.Owner = dto.Account(owner)
		}
	}
	return &details, nil
}

func (s *FolderService) summaries(ctx context.Context, folders []models.Folder) ([]dto.FolderDetails, error) {
	out := make([]dto.FolderDetails, 0, len(folders))
	for i := range folders {
		details := dto.Folder(&folders[i])
		size, err := s.FolderSize(ctx, folders[i].ID)
		if err != nil {
			return nil, err
		}
		details.Count = size
		out = append(out, details)
	}
	return out, nil
}

// GetUserFolders lists the actor's own private and shared folders.
func (s *FolderService) GetUserFolders(ctx context.Context, actor string) ([]dto.FolderDetails, error) {
	var folders []models.Folder
	if err := s.DB.WithContext(ctx).
		Where("owner_email = ? AND type IN ?", models.NormalizeEmail(actor),
			[]models.FolderType{models.FolderTypePrivate, models.FolderTypeShared}).
		Order("created_at DESC").
		Find(&folders).Error; err != nil {
		return nil, err
	}
	return s.summaries(ctx, folders)
}

// GetSharedFolders lists folders other accounts granted to the actor or the actor's groups.
func (s *FolderService) GetSharedFolders(ctx context.Context, actor string) ([]dto.FolderDetails, error) {
	accounts := NewAccountDirectory(s.DB)
	account, err := accounts.GetByEmail(ctx, actor)
	if err != nil {
		return nil, err
	}
	groupIDs, err := accounts.GroupIDs(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	explicitGroups := groupIDs[:0]
	for _, id := range groupIDs {
		if id != models.PublicGroupID {
			explicitGroups = append(explicitGroups, id)
		}
	}
	ids, err := NewPermissionStore(s.DB).TargetsForGrantees(ctx, models.ResourceFolder, account.ID, explicitGroups)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []dto.FolderDetails{}, nil
	}
	var folders []models.Folder
	if err := s.DB.WithContext(ctx).
		Where("id IN ? AND owner_email <> ? AND type <> ?", ids, account.Email, models.FolderTypePublic).
		Order("created_at DESC").
		Find(&folders).Error; err != nil {
		return nil, err
	}
	return s.summaries(ctx, folders)
}

func publicGrantTargets(db *gorm.DB, column string) *gorm.DB {
	return db.Model(&models.Permission{}).
		Select(column).
		Where("group_id = ? AND "+column+" IS NOT NULL", models.PublicGroupID)
}

// GetAvailableFolders lists folders any account can read through the public group.
func (s *FolderService) GetAvailableFolders(ctx context.Context, actor string) ([]dto.FolderDetails, error) {
	var folders []models.Folder
	if err := s.DB.WithContext(ctx).
		Where("id IN (?)", publicGrantTargets(s.DB, "folder_id")).
		Order("created_at DESC").
		Find(&folders).Error; err != nil {
		return nil, err
	}
	return s.summaries(ctx, folders)
}

func (s *FolderService) GetPublicFolders(ctx context.Context) ([]dto.FolderDetails, error) {
	var folders []models.Folder
	if err := s.DB.WithContext(ctx).
		Where("type = ?", models.FolderTypePublic).
		Order("name ASC").
		Find(&folders).Error; err != nil {
		return nil, err
	}
	return s.summaries(ctx, folders)
}

// GetPublicEntries pages through visible entries shared with the public group.
func (s *FolderService) GetPublicEntries(ctx context.Context, offset, limit int) ([]dto.PartData, int64, error) {
	query := s.DB.WithContext(ctx).Model(&models.Entry{}).
		Where("id IN (?) AND visibility = ?", publicGrantTargets(s.DB, "entry_id"), models.VisibilityOK)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var entries []models.Entry
	if err := withPayloads(query).Order("created_at DESC").Offset(offset).Limit(limit).Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return dto.Parts(entries), total, nil
}

func uploadFolders(summaries []UploadSummary) []dto.FolderDetails {
	out := make([]dto.FolderDetails, 0, len(summaries))
	for i := range summaries {
		out = append(out, dto.BulkUpload(&summaries[i].Upload, summaries[i].Count))
	}
	return out
}

// GetBulkUploadDrafts projects the actor's draft uploads as UPLOAD-type folders.
func (s *FolderService) GetBulkUploadDrafts(ctx context.Context, actor string) ([]dto.FolderDetails, error) {
	drafts, err := s.Uploads.RetrieveByUser(ctx, actor, models.BulkUploadDraft)
	if err != nil {
		return nil, err
	}
	return uploadFolders(drafts), nil
}

// GetPendingBulkUploads projects uploads awaiting approval. Administrators only.
func (s *FolderService) GetPendingBulkUploads(ctx context.Context, actor string) ([]dto.FolderDetails, error) {
	pending, err := s.Uploads.GetPendingUploads(ctx, actor)
	if err != nil {
		return nil, err
	}
	return uploadFolders(pending), nil
}

// GetPendingEntries pages through entries awaiting approval. Administrators only.
func (s *FolderService) GetPendingEntries(ctx context.Context, actor string, offset, limit int) ([]dto.PartData, int64, error) {
	if !NewAccountDirectory(s.DB).IsAdministrator(ctx, actor) {
		return nil, 0, deny(actor, uploadResource{}, "read")
	}
	query := s.DB.WithContext(ctx).Model(&models.Entry{}).Where("visibility = ?", models.VisibilityPending)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var entries []models.Entry
	if err := withPayloads(query).Order("created_at ASC").Offset(offset).Limit(limit).Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return dto.Parts(entries), total, nil
}

// GetFolderStats returns the counters shown beside the built-in collections.
func (s *FolderService) GetFolderStats(ctx context.Context, actor string) (*dto.CollectionStats, error) {
	accounts := NewAccountDirectory(s.DB)
	account, err := accounts.GetByEmail(ctx, actor)
	if err != nil {
		return nil, err
	}
	groupIDs, err := accounts.GroupIDs(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	entries := NewEntryDirectory(s.DB)

	stats := &dto.CollectionStats{}
	if stats.Available, err = entries.VisibleCount(ctx); err != nil {
		return nil, err
	}
	if stats.Personal, err = entries.OwnerCount(ctx, account.Email); err != nil {
		return nil, err
	}
	if stats.Shared, err = entries.SharedWithCount(ctx, account, groupIDs); err != nil {
		return nil, err
	}
	if stats.Deleted, err = entries.DeletedCount(ctx, account.Email); err != nil {
		return nil, err
	}
	if err := s.DB.WithContext(ctx).Model(&models.BulkUpload{}).
		Where("account_id = ? AND status = ?", account.ID, models.BulkUploadDraft).
		Count(&stats.Drafts).Error; err != nil {
		return nil, err
	}
	if account.IsAdmin() {
		if stats.Pending, err = entries.PendingCount(ctx); err != nil {
			return nil, err
		}
	}
	return stats, nil
}

// GetPermissions lists the explicit grants on a folder the actor can read.
func (s *FolderService) GetPermissions(ctx context.Context, actor string, folderID uuid.UUID) ([]models.Permission, error) {
	if _, err := s.Get(ctx, actor, folderID); err != nil {
		return nil, err
	}
	return NewPermissionStore(s.DB).ListForResource(ctx, models.FolderTarget(folderID), true)
}

// CreateFolderPermission grants access on a folder. The first explicit grant turns a
// private folder shared in the same transaction.
func (s *FolderService) CreateFolderPermission(ctx context.Context, actor string, folderID uuid.UUID, grantee models.Grantee, canRead, canWrite bool) (*models.Permission, error) {
	permission, err := models.NewPermission(models.FolderTarget(folderID), grantee, canRead, canWrite)
	if err != nil {
		return nil, translate(err, "permission", nil)
	}

	var (
		created *models.Permission
		folder  *models.Folder
		shared  bool
	)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockFolder(ctx, tx, folderID)
		if err != nil {
			return err
		}
		if err := s.Authorizer.with(tx).ExpectWrite(ctx, actor, locked); err != nil {
			return err
		}
		if err := NewAccountDirectory(tx).ResolveGrantee(ctx, grantee); err != nil {
			return err
		}
		if created, err = NewPermissionStore(tx).Create(ctx, permission); err != nil {
			return err
		}
		if locked.Type == models.FolderTypePrivate && !grantee.IsPublicGroup() {
			now := time.Now().UTC()
			if err := tx.Model(&models.Folder{}).Where("id = ?", folderID).UpdateColumns(map[string]interface{}{
				"type":        models.FolderTypeShared,
				"modified_at": now,
				"updated_at":  now,
			}).Error; err != nil {
				return err
			}
			locked.Type = models.FolderTypeShared
			shared = true
		}
		folder = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	if shared {
		metrics.FolderTransitions.WithLabelValues(string(models.FolderTypePrivate), string(models.FolderTypeShared)).Inc()
	}
	logger.InfoWithUser(actor, "folder_permission_created", map[string]interface{}{
		"folder_id": folderID.String(),
		"grantee":   grantee.String(),
		"can_write": created.CanWrite,
	})
	s.Audit.Record(ctx, actor, "permission.create", models.FolderTarget(folderID),
		folderDetails(folder, grantDetails(grantee, created.CanRead, created.CanWrite)))

	if folder.PropagatePermissions {
		if err := s.Propagator.PropagateGrant(ctx, folderID, *created, true); err != nil {
			return created, err
		}
	}
	return created, nil
}

// RemoveFolderPermission removes a grant, or with writeOnly downgrades it to read.
// Losing the last explicit grant turns a shared folder private again.
func (s *FolderService) RemoveFolderPermission(ctx context.Context, actor string, folderID uuid.UUID, grantee models.Grantee, writeOnly bool) error {
	if !grantee.Valid() {
		return invalidArgument("grantee must be exactly one account or group")
	}
	var (
		removed *models.Permission
		folder  *models.Folder
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockFolder(ctx, tx, folderID)
		if err != nil {
			return err
		}
		if err := s.Authorizer.with(tx).ExpectWrite(ctx, actor, locked); err != nil {
			return err
		}
		store := NewPermissionStore(tx)
		if removed, err = store.Get(ctx, models.FolderTarget(folderID), grantee); err != nil {
			return err
		}
		if _, err := store.Remove(ctx, models.FolderTarget(folderID), &grantee, !writeOnly, true); err != nil {
			return err
		}
		if locked.Type == models.FolderTypeShared {
			remaining, err := store.CountExplicit(ctx, models.FolderTarget(folderID))
			if err != nil {
				return err
			}
			if remaining == 0 {
				now := time.Now().UTC()
				if err := tx.Model(&models.Folder{}).Where("id = ?", folderID).UpdateColumns(map[string]interface{}{
					"type":        models.FolderTypePrivate,
					"modified_at": now,
					"updated_at":  now,
				}).Error; err != nil {
					return err
				}
				metrics.FolderTransitions.WithLabelValues(string(models.FolderTypeShared), string(models.FolderTypePrivate)).Inc()
			}
		}
		folder = locked
		return nil
	})
	if err != nil {
		return err
	}

	s.Audit.Record(ctx, actor, "permission.delete", models.FolderTarget(folderID),
		folderDetails(folder, grantDetails(grantee, !writeOnly, true)))

	if !folder.PropagatePermissions {
		return nil
	}
	if err := s.Propagator.PropagateGrant(ctx, folderID, *removed, false); err != nil {
		return err
	}
	if writeOnly {
		downgraded := *removed
		downgraded.CanRead, downgraded.CanWrite = true, false
		return s.Propagator.PropagateGrant(ctx, folderID, downgraded, true)
	}
	return nil
}

// EnablePublicReadAccess grants the public group read on the folder.
func (s *FolderService) EnablePublicReadAccess(ctx context.Context, actor string, folderID uuid.UUID) (*models.Permission, error) {
	var (
		grant  *models.Permission
		folder *models.Folder
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockFolder(ctx, tx, folderID)
		if err != nil {
			return err
		}
		if err := s.Authorizer.with(tx).ExpectWrite(ctx, actor, locked); err != nil {
			return err
		}
		if _, err := NewAccountDirectory(tx).CreateOrRetrievePublicGroup(ctx); err != nil {
			return err
		}
		store := NewPermissionStore(tx)
		target := models.FolderTarget(folderID)
		if existing, err := store.Get(ctx, target, models.PublicGrantee()); err == nil {
			grant, folder = existing, locked
			return nil
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		permission, err := models.NewPermission(target, models.PublicGrantee(), true, false)
		if err != nil {
			return err
		}
		if grant, err = store.Create(ctx, permission); err != nil {
			return err
		}
		folder = locked
		return touch(tx, folderID, time.Now().UTC())
	})
	if err != nil {
		return nil, err
	}

	s.Audit.Record(ctx, actor, "folder.public_on", models.FolderTarget(folderID), folderDetails(folder, nil))
	if folder.PropagatePermissions {
		if err := s.Propagator.PropagateGrant(ctx, folderID, *grant, true); err != nil {
			return grant, err
		}
	}
	return grant, nil
}

// DisablePublicReadAccess removes only the public-group grant; other grants are untouched.
func (s *FolderService) DisablePublicReadAccess(ctx context.Context, actor string, folderID uuid.UUID) error {
	var (
		removed *models.Permission
		folder  *models.Folder
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockFolder(ctx, tx, folderID)
		if err != nil {
			return err
		}
		if err := s.Authorizer.with(tx).ExpectWrite(ctx, actor, locked); err != nil {
			return err
		}
		folder = locked
		store := NewPermissionStore(tx)
		target := models.FolderTarget(folderID)
		existing, err := store.Get(ctx, target, models.PublicGrantee())
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		public := models.PublicGrantee()
		if _, err := store.Remove(ctx, target, &public, true, true); err != nil {
			return err
		}
		removed = existing
		return touch(tx, folderID, time.Now().UTC())
	})
	if err != nil || removed == nil {
		return err
	}

	s.Audit.Record(ctx, actor, "folder.public_off", models.FolderTarget(folderID), folderDetails(folder, nil))
	if folder.PropagatePermissions {
		return s.Propagator.PropagateGrant(ctx, folderID, *removed, false)
	}
	return nil
}

// RetryPropagation re-runs propagation in the direction of the folder's current flag.
func (s *FolderService) RetryPropagation(ctx context.Context, actor string, folderID uuid.UUID) error {
	folder, err := s.getFolder(ctx, folderID)
	if err != nil {
		return err
	}
	return s.Propagator.PropagateFolderPermissions(ctx, actor, folderID, folder.PropagatePermissions)
}

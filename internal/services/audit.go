package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/partsregistry/registry/internal/models"
	"github.com/partsregistry/registry/pkg/logger"
	"gorm.io/gorm"
)

type AuditEntry struct {
	AccountID    *uuid.UUID
	ActorEmail   string
	Action       string
	ResourceType string
	ResourceID   *uuid.UUID
	Details      map[string]interface{}
	IPAddress    string
	RequestID    string
}

// ObjectUploader is the object storage the exporter ships NDJSON batches to.
type ObjectUploader interface {
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
}

// AuditService records registry mutations off the request path and derives
// per-account activity feed items from them.
type AuditService struct {
	DB      *gorm.DB
	Storage ObjectUploader
	queue   chan models.AuditLog
}

func NewAuditService(db *gorm.DB, storage ObjectUploader) *AuditService {
	s := &AuditService{
		DB:      db,
		Storage: storage,
		queue:   make(chan models.AuditLog, 1000),
	}
	go s.processQueue()
	return s
}

// Record queues an audit row for actor acting on target. Safe on a nil service.
func (s *AuditService) Record(ctx context.Context, actor, action string, target models.Target, details map[string]interface{}) {
	if s == nil {
		return
	}
	entry := AuditEntry{
		ActorEmail:   models.NormalizeEmail(actor),
		Action:       action,
		ResourceType: string(target.Kind),
		Details:      details,
	}
	if target.ID != uuid.Nil {
		id := target.ID
		entry.ResourceID = &id
	}
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		entry.RequestID = requestID
	}
	if ip, ok := ctx.Value(ClientIPKey).(string); ok {
		entry.IPAddress = ip
	}
	s.LogAsync(entry)
}

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	ClientIPKey  contextKey = "client_ip"
)

func (s *AuditService) LogAsync(entry AuditEntry) {
	if s == nil {
		return
	}
	row := models.AuditLog{
		AccountID:    entry.AccountID,
		ActorEmail:   entry.ActorEmail,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		Details:      entry.Details,
		IPAddress:    entry.IPAddress,
		RequestID:    entry.RequestID,
		CreatedAt:    time.Now().UTC(),
	}

	select {
	case s.queue <- row:
	default:
		logger.Warn("audit_queue_full", map[string]interface{}{
			"action":  entry.Action,
			"dropped": true,
		})
	}
}

func (s *AuditService) processQueue() {
	for row := range s.queue {
		s.persist(row)
	}
}

func (s *AuditService) persist(row models.AuditLog) {
	if row.AccountID == nil && row.ActorEmail != "" {
		var account models.Account
		if err := s.DB.Select("id").First(&account, "email = ?", row.ActorEmail).Error; err == nil {
			row.AccountID = &account.ID
		}
	}
	if err := s.DB.Create(&row).Error; err != nil {
		logger.Error("audit_log_insert_failed", err, map[string]interface{}{
			"action": row.Action,
		})
		return
	}
	s.generateActivities(row)
}

func (s *AuditService) generateActivities(log models.AuditLog) {
	if log.AccountID == nil {
		return
	}

	var otherActivities []models.Activity

	switch log.Action {
	case "permission.create":
		otherActivities = s.activitiesForGrant(log, "%s shared %s \"%s\" with you")
	case "permission.delete":
		otherActivities = s.activitiesForGrant(log, "%s revoked your access to %s \"%s\"")
	case "upload.approve":
		otherActivities = s.activitiesForUploadOwner(log)
	case "group.member_add":
		otherActivities = s.activitiesForTargetAccount(log, "%s added you to \"%s\"")
	case "group.member_remove":
		otherActivities = s.activitiesForTargetAccount(log, "%s removed you from \"%s\"")
	}

	for i := range otherActivities {
		if otherActivities[i].AccountID == *log.AccountID {
			continue
		}
		if err := s.DB.Create(&otherActivities[i]).Error; err != nil {
			logger.Error("activity_insert_failed", err, map[string]interface{}{
				"action":     log.Action,
				"account_id": otherActivities[i].AccountID.String(),
			})
		}
	}

	if self := s.selfActivityForAction(log); self != nil {
		if err := s.DB.Create(self).Error; err != nil {
			logger.Error("self_activity_insert_failed", err, map[string]interface{}{
				"action": log.Action,
			})
		}
	}
}

func resourceName(log models.AuditLog) string {
	for _, key := range []string{"folder_name", "entry_name", "upload_name", "group_name"} {
		if name := detailString(log.Details, key); name != "" {
			return name
		}
	}
	return ""
}

var selfMessages = map[string]string{
	"folder.create":     "You created collection \"%s\"",
	"folder.update":     "You updated collection \"%s\"",
	"folder.delete":     "You deleted collection \"%s\"",
	"folder.promote":    "You made collection \"%s\" public",
	"folder.demote":     "You made collection \"%s\" private",
	"folder.public_on":  "You enabled public read access on \"%s\"",
	"folder.public_off": "You disabled public read access on \"%s\"",
	"permission.create": "You shared \"%s\"",
	"permission.delete": "You revoked access to \"%s\"",
	"entry.create":      "You created entry \"%s\"",
	"entry.update":      "You updated entry \"%s\"",
	"entry.delete":      "You deleted entry \"%s\"",
	"upload.create":     "You started bulk upload \"%s\"",
	"upload.submit":     "You submitted bulk upload \"%s\" for approval",
	"upload.approve":    "You approved bulk upload \"%s\"",
	"upload.delete":     "You deleted bulk upload \"%s\"",
	"group.create":      "You created group \"%s\"",
	"group.delete":      "You deleted group \"%s\"",
}

func (s *AuditService) selfActivityForAction(log models.AuditLog) *models.Activity {
	if log.AccountID == nil {
		return nil
	}

	name := resourceName(log)
	resourceType := log.ResourceType
	var message string

	switch log.Action {
	case "account.register":
		message = "Welcome to the registry"
		resourceType = "account"
		name = "Account"
	case "account.login":
		message = "You signed in"
		resourceType = "account"
		name = "Account"
	default:
		format, ok := selfMessages[log.Action]
		if !ok {
			return nil
		}
		message = fmt.Sprintf(format, name)
	}

	return &models.Activity{
		AccountID:    *log.AccountID,
		ActorID:      *log.AccountID,
		Action:       log.Action,
		ResourceType: resourceType,
		ResourceID:   log.ResourceID,
		ResourceName: name,
		Message:      message,
	}
}

// activitiesForGrant notifies the grantee account, or every member of the grantee group.
// The public group is not fanned out.
func (s *AuditService) activitiesForGrant(log models.AuditLog, format string) []models.Activity {
	if log.ResourceID == nil {
		return nil
	}
	name := resourceName(log)
	actorName := s.getActorName(*log.AccountID)
	message := fmt.Sprintf(format, actorName, log.ResourceType, name)

	var recipients []uuid.UUID
	if raw := detailString(log.Details, "account_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil
		}
		recipients = []uuid.UUID{id}
	} else if raw := detailString(log.Details, "group_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil || id == models.PublicGroupID {
			return nil
		}
		recipients = s.getGroupMemberIDs(id)
	}

	result := make([]models.Activity, 0, len(recipients))
	for _, id := range recipients {
		result = append(result, models.Activity{
			AccountID:    id,
			ActorID:      *log.AccountID,
			Action:       log.Action,
			ResourceType: log.ResourceType,
			ResourceID:   log.ResourceID,
			ResourceName: name,
			Message:      message,
		})
	}
	return result
}

func (s *AuditService) activitiesForUploadOwner(log models.AuditLog) []models.Activity {
	return s.activitiesForTargetAccount(log, "%s approved your bulk upload \"%s\"")
}

func (s *AuditService) activitiesForTargetAccount(log models.AuditLog, format string) []models.Activity {
	raw := detailString(log.Details, "target_account_id")
	if raw == "" {
		return nil
	}
	targetID, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	name := resourceName(log)
	return []models.Activity{{
		AccountID:    targetID,
		ActorID:      *log.AccountID,
		Action:       log.Action,
		ResourceType: log.ResourceType,
		ResourceID:   log.ResourceID,
		ResourceName: name,
		Message:      fmt.Sprintf(format, s.getActorName(*log.AccountID), name),
	}}
}

func (s *AuditService) getActorName(accountID uuid.UUID) string {
	var account models.Account
	if err := s.DB.Select("first_name", "last_name", "email").First(&account, "id = ?", accountID).Error; err != nil {
		return "Someone"
	}
	if name := account.FullName(); name != "" {
		return name
	}
	return account.Email
}

func (s *AuditService) getGroupMemberIDs(groupID uuid.UUID) []uuid.UUID {
	var ids []uuid.UUID
	s.DB.Model(&models.GroupMembership{}).Where("group_id = ?", groupID).Pluck("account_id", &ids)
	return ids
}

// StartExporter runs a background goroutine that periodically exports
// new audit log rows to object storage as NDJSON files.
func (s *AuditService) StartExporter(interval time.Duration) {
	if s.Storage == nil {
		logger.Info("audit_exporter_disabled", map[string]interface{}{
			"reason": "no storage client configured",
		})
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for range ticker.C {
			if _, err := s.Export(context.Background()); err != nil {
				logger.Error("audit_export_failed", err, nil)
			}
		}
	}()

	logger.Info("audit_exporter_started", map[string]interface{}{
		"interval": interval.String(),
	})
}

// Export ships audit rows newer than the cursor and advances it. It returns the
// number of rows exported.
func (s *AuditService) Export(ctx context.Context) (int, error) {
	if s == nil || s.Storage == nil {
		return 0, errors.New("audit export storage is not configured")
	}

	var cursor models.AuditExportCursor
	err := s.DB.WithContext(ctx).First(&cursor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cursor = models.AuditExportCursor{
			LastExportAt: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		}
		if err := s.DB.WithContext(ctx).Create(&cursor).Error; err != nil {
			return 0, fmt.Errorf("create export cursor: %w", err)
		}
	} else if err != nil {
		return 0, fmt.Errorf("load export cursor: %w", err)
	}

	var logs []models.AuditLog
	if err := s.DB.WithContext(ctx).Where("created_at > ?", cursor.LastExportAt).
		Order("created_at ASC").
		Limit(10000).
		Find(&logs).Error; err != nil {
		return 0, fmt.Errorf("query audit rows: %w", err)
	}
	if len(logs) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, log := range logs {
		if err := enc.Encode(log); err != nil {
			logger.Error("audit_export_encode_failed", err, map[string]interface{}{
				"log_id": log.ID.String(),
			})
		}
	}

	now := time.Now().UTC()
	objectName := fmt.Sprintf("audit-logs/%s/%s.ndjson",
		now.Format("2006/01/02"),
		now.Format("15-04-05"),
	)
	if err := s.Storage.Upload(ctx, objectName, &buf, int64(buf.Len()), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("upload %s: %w", objectName, err)
	}

	lastCreatedAt := logs[len(logs)-1].CreatedAt
	if err := s.DB.WithContext(ctx).Model(&cursor).Updates(map[string]interface{}{
		"last_export_at": lastCreatedAt,
		"exported_count": gorm.Expr("exported_count + ?", len(logs)),
	}).Error; err != nil {
		return 0, fmt.Errorf("advance export cursor: %w", err)
	}

	logger.Info("audit_export_success", map[string]interface{}{
		"object_name": objectName,
		"count":       len(logs),
	})
	return len(logs), nil
}

func detailString(details map[string]interface{}, key string) string {
	if details == nil {
		return ""
	}
	v, ok := details[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Sprintf("%v", v)
	}
	return s
}

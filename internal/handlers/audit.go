package handlers

import (
	"encoding/csv"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/partsregistry/registry/internal/models"
	"github.com/partsregistry/registry/internal/services"
	"github.com/partsregistry/registry/pkg/logger"
	"github.com/partsregistry/registry/pkg/utils"
	"gorm.io/gorm"
)

type AuditHandler struct {
	DB    *gorm.DB
	Audit *services.AuditService
}

func NewAuditHandler(db *gorm.DB, audit *services.AuditService) *AuditHandler {
	return &AuditHandler{DB: db, Audit: audit}
}

// ExportMyLog downloads the caller's own audit trail as csv (default) or json.
func (h *AuditHandler) ExportMyLog(c *fiber.Ctx) error {
	currentAccount, err := requireAccount(c)
	if currentAccount == nil {
		return err
	}

	format := strings.ToLower(strings.TrimSpace(c.Query("format", "csv")))
	if format != "csv" && format != "json" {
		return utils.Error(c, fiber.StatusBadRequest, "format must be csv or json")
	}

	var logs []models.AuditLog
	if err := h.DB.Where("account_id = ? OR actor_email = ?", currentAccount.ID, currentAccount.Email).
		Order("created_at DESC").
		Limit(10000).
		Find(&logs).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading audit logs")
	}

	if format == "json" {
		c.Set("Content-Type", "application/json")
		c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "audit-log.json"))
		return c.JSON(fiber.Map{"success": true, "data": logs})
	}

	c.Set("Content-Type", "text/csv")
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "audit-log.csv"))

	writer := csv.NewWriter(c.Response().BodyWriter())
	_ = writer.Write([]string{"Timestamp", "Action", "Resource Type", "Resource ID", "IP Address", "Details"})

	for _, log := range logs {
		resourceID := ""
		if log.ResourceID != nil {
			resourceID = log.ResourceID.String()
		}

		_ = writer.Write([]string{
			log.CreatedAt.Format(time.RFC3339),
			log.Action,
			log.ResourceType,
			resourceID,
			log.IPAddress,
			formatDetails(log.Details),
		})
	}

	writer.Flush()
	return nil
}

// formatDetails renders details as sorted k=v pairs so exports are stable.
func formatDetails(details map[string]interface{}) string {
	if len(details) == 0 {
		return ""
	}
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, details[k]))
	}
	return strings.Join(parts, "; ")
}

// Export ships pending audit rows to object storage now instead of waiting for
// the next exporter tick. Administrators only.
func (h *AuditHandler) Export(c *fiber.Ctx) error {
	currentAccount, err := requireAccount(c)
	if currentAccount == nil {
		return err
	}

	count, err := h.Audit.Export(c.UserContext())
	if err != nil {
		logger.ErrorWithUser(currentAccount.Email, "audit_export_failed", err, nil)
		return utils.Error(c, fiber.StatusServiceUnavailable, "audit export failed")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"exported": count})
}

type ActivitiesHandler struct {
	DB *gorm.DB
}

func NewActivitiesHandler(db *gorm.DB) *ActivitiesHandler {
	return &ActivitiesHandler{DB: db}
}

// List pages through the caller's activity feed, newest first. ?unread=true
// narrows to unread items.
func (h *ActivitiesHandler) List(c *fiber.Ctx) error {
	currentAccount, err := requireAccount(c)
	if currentAccount == nil {
		return err
	}

	pagination := utils.ParsePagination(c)
	query := h.DB.Model(&models.Activity{}).Where("account_id = ?", currentAccount.ID)
	if c.QueryBool("unread", false) {
		query = query.Where("is_read = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting activities")
	}

	var activities []models.Activity
	if err := utils.ApplyPagination(query.Preload("Actor").Order("created_at DESC"), pagination).
		Find(&activities).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing activities")
	}

	return utils.Paginated(c, activities, pagination.Page, pagination.Limit, total)
}

func (h *ActivitiesHandler) UnreadCount(c *fiber.Ctx) error {
	currentAccount, err := requireAccount(c)
	if currentAccount == nil {
		return err
	}

	var count int64
	if err := h.DB.Model(&models.Activity{}).
		Where("account_id = ? AND is_read = ?", currentAccount.ID, false).
		Count(&count).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting activities")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"count": count})
}

func (h *ActivitiesHandler) MarkRead(c *fiber.Ctx) error {
	currentAccount, err := requireAccount(c)
	if currentAccount == nil {
		return err
	}

	activityID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid activity id")
	}

	result := h.DB.Model(&models.Activity{}).
		Where("id = ? AND account_id = ?", activityID, currentAccount.ID).
		Update("is_read", true)
	if result.Error != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating activity")
	}
	if result.RowsAffected == 0 {
		return utils.Error(c, fiber.StatusNotFound, "activity not found")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "activity marked as read"})
}

func (h *ActivitiesHandler) MarkAllRead(c *fiber.Ctx) error {
	currentAccount, err := requireAccount(c)
	if currentAccount == nil {
		return err
	}

	result := h.DB.Model(&models.Activity{}).
		Where("account_id = ? AND is_read = ?", currentAccount.ID, false).
		Update("is_read", true)
	if result.Error != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating activities")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"updated": result.RowsAffected})
}

package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/partsregistry/registry/internal/models"
	"github.com/partsregistry/registry/internal/services"
	"github.com/partsregistry/registry/pkg/logger"
	"github.com/partsregistry/registry/pkg/utils"
	"gorm.io/gorm"
)

type GroupsHandler struct {
	DB    *gorm.DB
	Audit *services.AuditService
}

func NewGroupsHandler(db *gorm.DB, audit *services.AuditService) *GroupsHandler {
	return &GroupsHandler{DB: db, Audit: audit}
}

func groupTarget(id uuid.UUID) models.Target {
	return models.Target{Kind: models.ResourceGroup, ID: id}
}

type createGroupRequest struct {
	Name        string  `json:"name" validate:"not_blank,max=150"`
	Description *string `json:"description"`
}

func (h *GroupsHandler) Create(c *fiber.Ctx) error {
	currentAccount, err := requireAccount(c)
	if currentAccount == nil {
		return err
	}

	var req createGroupRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}

	group := models.Group{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		CreatedByID: &currentAccount.ID,
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&group).Error; err != nil {
			return err
		}

		membership := models.GroupMembership{
			AccountID: currentAccount.ID,
			GroupID:   group.ID,
			Role:      models.GroupRoleOwner,
		}
		return tx.Create(&membership).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating group")
	}

	logger.InfoWithUser(currentAccount.Email, "group_created", map[string]interface{}{
		"group_id":   group.ID.String(),
		"group_name": group.Name,
	})
	h.Audit.Record(requestContext(c), currentAccount.Email, "group.create", groupTarget(group.ID), map[string]interface{}{
		"group_name": group.Name,
	})

	return utils.Success(c, fiber.StatusCreated, group)
}

func (h *GroupsHandler) List(c *fiber.Ctx) error {
	currentAccount, err := requireAccount(c)
	if currentAccount == nil {
		return err
	}

	var groups []models.Group
	if err := h.DB.
		Model(&models.Group{}).
		Preload("Memberships").
		Joins("JOIN group_memberships ON group_memberships.group_id = groups.id").
		Where("group_memberships.account_id = ?", currentAccount.ID).
		Order("groups.created_at DESC").
		Find(&groups).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing groups")
	}

	return utils.Success(c, fiber.StatusOK, groups)
}

func (h *GroupsHandler) Get(c *fiber.Ctx) error {
	currentAccount, err := requireAccount(c)
	if currentAccount == nil {
		return err
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	if _, err := h.getMembership(groupID, currentAccount.ID); err != nil && !currentAccount.IsAdmin() {
		return h.membershipError(c, err)
	}

	var group models.Group
	if err := h.DB.Preload("Memberships.Account").First(&group, "id = ?", groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "group not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading group")
	}

	return utils.Success(c, fiber.StatusOK, group)
}

type updateGroupRequest struct {
	Name        *string `json:"name" validate:"omitempty,not_blank,max=150"`
	Description *string `json:"description"`
}

func (h *GroupsHandler) Update(c *fiber.Ctx) error {
	currentAccount, err := requireAccount(c)
	if currentAccount == nil {
		return err
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}
	if groupID == models.PublicGroupID {
		return utils.Error(c, fiber.StatusForbidden, "the public group cannot be modified")
	}

	membership, err := h.getMembership(groupID, currentAccount.ID)
	if err != nil {
		return h.membershipError(c, err)
	}
	if membership.Role != models.GroupRoleOwner && membership.Role != models.GroupRoleAdmin {
		return utils.Error(c, fiber.StatusForbidden, "insufficient permissions")
	}

	var req updateGroupRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		trimmed := strings.TrimSpace(*req.Description)
		if trimmed == "" {
			updates["description"] = nil
		} else {
			updates["description"] = trimmed
		}
	}

	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	result := h.DB.Model(&models.Group{}).Where("id = ?", groupID).Updates(updates)
	if result.Error != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating group")
	}
	if result.RowsAffected == 0 {
		return utils.Error(c, fiber.StatusNotFound, "group not found")
	}

	var updated models.Group
	if err := h.DB.First(&updated, "id = ?", groupID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading updated group")
	}

	return utils.Success(c, fiber.StatusOK, updated)
}

// Delete removes the group, its memberships and every grant made to it. Folders
// left without explicit grants fall back to private.
func (h *GroupsHandler) Delete(c *fiber.Ctx) error {
	currentAccount, err := requireAccount(c)
	if currentAccount == nil {
		return err
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}
	if groupID == models.PublicGroupID {
		return utils.Error(c, fiber.StatusForbidden, "the public group cannot be deleted")
	}

	membership, err := h.getMembership(groupID, currentAccount.ID)
	if err != nil {
		return h.membershipError(c, err)
	}
	if membership.Role != models.GroupRoleOwner {
		return utils.Error(c, fiber.StatusForbidden, "only group owner can delete the group")
	}

	var group models.Group
	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&group, "id = ?", groupID).Error; err != nil {
			return err
		}

		var folderIDs []uuid.UUID
		if err := tx.Model(&models.Permission{}).
			Where("group_id = ? AND folder_id IS NOT NULL", groupID).
			Pluck("folder_id", &folderIDs).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", groupID).Delete(&models.Permission{}).Error; err != nil {
			return err
		}

		store := services.NewPermissionStore(tx)
		for _, folderID := range folderIDs {
			remaining, err := store.CountExplicit(c.UserContext(), models.FolderTarget(folderID))
			if err != nil {
				return err
			}
			if remaining > 0 {
				continue
			}
			if err := tx.Model(&models.Folder{}).
				Where("id = ? AND type = ?", folderID, models.FolderTypeShared).
				UpdateColumn("type", models.FolderTypePrivate).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("group_id = ?", groupID).Delete(&models.GroupMembership{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Group{}, "id = ?", groupID).Error
	})
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting group")
	}

	h.Audit.Record(requestContext(c), currentAccount.Email, "group.delete", groupTarget(groupID), map[string]interface{}{
		"group_name": group.Name,
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "group deleted"})
}

type addMemberRequest struct {
	AccountID uuid.UUID                  `json:"accountID"`
	Role      models.GroupMembershipRole `json:"role"`
}

func (h *GroupsHandler) AddMember(c *fiber.Ctx) error {
	currentAccount, err := requireAccount(c)
	if currentAccount == nil {
		return err
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}
	if groupID == models.PublicGroupID && !currentAccount.IsAdmin() {
		return utils.Error(c, fiber.StatusForbidden, "only administrators manage the public group")
	}

	var req addMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.AccountID == uuid.Nil {
		return utils.Error(c, fiber.StatusBadRequest, "accountID is required")
	}
	if req.Role == "" {
		req.Role = models.GroupRoleMember
	}
	if req.Role != models.GroupRoleOwner && req.Role != models.GroupRoleAdmin && req.Role != models.GroupRoleMember {
		return utils.Error(c, fiber.StatusBadRequest, "invalid role")
	}

	if groupID != models.PublicGroupID {
		actorMembership, err := h.getMembership(groupID, currentAccount.ID)
		if err != nil {
			return h.membershipError(c, err)
		}
		if actorMembership.Role != models.GroupRoleOwner && actorMembership.Role != models.GroupRoleAdmin {
			return utils.Error(c, fiber.StatusForbidden, "insufficient permissions")
		}
		if actorMembership.Role == models.GroupRoleAdmin && req.Role != models.GroupRoleMember {
			return utils.Error(c, fiber.StatusForbidden, "admins can only add members with member role")
		}
	}

	var group models.Group
	if err := h.DB.First(&group, "id = ?", groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "group not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading group")
	}

	var account models.Account
	if err := h.DB.First(&account, "id = ?", req.AccountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "account not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading account")
	}

	membership := models.GroupMembership{
		AccountID: req.AccountID,
		GroupID:   groupID,
		Role:      req.Role,
	}

	if err := h.DB.Create(&membership).Error; err != nil {
		return utils.Error(c, fiber.StatusConflict, "account is already a member")
	}

	h.Audit.Record(requestContext(c), currentAccount.Email, "group.member_add", groupTarget(groupID), map[string]interface{}{
		"group_name":        group.Name,
		"target_account_id": req.AccountID.String(),
		"role":              string(req.Role),
	})

	return utils.Success(c, fiber.StatusCreated, membership)
}

func (h *GroupsHandler) RemoveMember(c *fiber.Ctx) error {
	currentAccount, err := requireAccount(c)
	if currentAccount == nil {
		return err
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}
	accountID, err := parseUUID(c.Params("accountId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid account id")
	}

	targetMembership, err := h.getMembership(groupID, accountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "member not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading target membership")
	}

	if groupID == models.PublicGroupID {
		if !currentAccount.IsAdmin() {
			return utils.Error(c, fiber.StatusForbidden, "only administrators manage the public group")
		}
	} else {
		actorMembership, err := h.getMembership(groupID, currentAccount.ID)
		if err != nil {
			return h.membershipError(c, err)
		}
		if targetMembership.Role == models.GroupRoleOwner {
			return utils.Error(c, fiber.StatusForbidden, "cannot remove group owner")
		}
		if actorMembership.Role != models.GroupRoleOwner && actorMembership.Role != models.GroupRoleAdmin {
			return utils.Error(c, fiber.StatusForbidden, "insufficient permissions")
		}
		if actorMembership.Role == models.GroupRoleAdmin && targetMembership.Role == models.GroupRoleAdmin {
			return utils.Error(c, fiber.StatusForbidden, "admins cannot remove other admins")
		}
	}

	var group models.Group
	if err := h.DB.First(&group, "id = ?", groupID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading group")
	}

	if err := h.DB.Delete(&models.GroupMembership{}, "id = ?", targetMembership.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed removing member")
	}

	h.Audit.Record(requestContext(c), currentAccount.Email, "group.member_remove", groupTarget(groupID), map[string]interface{}{
		"group_name":        group.Name,
		"target_account_id": accountID.String(),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "member removed"})
}

type updateMemberRoleRequest struct {
	Role models.GroupMembershipRole `json:"role"`
}

func (h *GroupsHandler) UpdateMemberRole(c *fiber.Ctx) error {
	currentAccount, err := requireAccount(c)
	if currentAccount == nil {
		return err
	}

	groupID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}
	accountID, err := parseUUID(c.Params("accountId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid account id")
	}

	actorMembership, err := h.getMembership(groupID, currentAccount.ID)
	if err != nil {
		return h.membershipError(c, err)
	}
	if actorMembership.Role != models.GroupRoleOwner && actorMembership.Role != models.GroupRoleAdmin {
		return utils.Error(c, fiber.StatusForbidden, "insufficient permissions")
	}

	targetMembership, err := h.getMembership(groupID, accountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "member not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading target membership")
	}
	if targetMembership.Role == models.GroupRoleOwner {
		return utils.Error(c, fiber.StatusForbidden, "cannot change owner role")
	}

	var req updateMemberRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.Role != models.GroupRoleAdmin && req.Role != models.GroupRoleMember {
		return utils.Error(c, fiber.StatusBadRequest, "invalid role")
	}
	if actorMembership.Role == models.GroupRoleAdmin && req.Role != models.GroupRoleMember {
		return utils.Error(c, fiber.StatusForbidden, "admins can only set member role")
	}

	if err := h.DB.Model(&models.GroupMembership{}).Where("id = ?", targetMembership.ID).Update("role", req.Role).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating member role")
	}

	targetMembership.Role = req.Role
	return utils.Success(c, fiber.StatusOK, targetMembership)
}

func (h *GroupsHandler) getMembership(groupID, accountID uuid.UUID) (*models.GroupMembership, error) {
	var membership models.GroupMembership
	err := h.DB.First(&membership, "group_id = ? AND account_id = ?", groupID, accountID).Error
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

func (h *GroupsHandler) membershipError(c *fiber.Ctx, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.Error(c, fiber.StatusForbidden, "group access denied")
	}
	return utils.Error(c, fiber.StatusInternalServerError, "failed validating membership")
}

package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/partsregistry/registry/internal/dto"
	"github.com/partsregistry/registry/internal/models"
	"github.com/partsregistry/registry/pkg/logger"
	"github.com/partsregistry/registry/pkg/utils"
	"gorm.io/gorm"
)

// AccountsHandler serves account lookups for sharing dialogs and account
// administration.
type AccountsHandler struct {
	DB *gorm.DB
}

func NewAccountsHandler(db *gorm.DB) *AccountsHandler {
	return &AccountsHandler{DB: db}
}

func searchAccounts(db *gorm.DB, search string) *gorm.DB {
	query := db.Model(&models.Account{})
	if search != "" {
		searchValue := "%" + strings.ToLower(search) + "%"
		query = query.Where(
			"LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?",
			searchValue,
			searchValue,
			searchValue,
		)
	}
	return query
}

func accountInfos(accounts []models.Account) []*dto.AccountInfo {
	out := make([]*dto.AccountInfo, 0, len(accounts))
	for i := range accounts {
		out = append(out, dto.Account(&accounts[i]))
	}
	return out
}

func (h *AccountsHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)
	query := searchAccounts(h.DB, strings.TrimSpace(c.Query("search")))

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting accounts")
	}

	var accounts []models.Account
	if err := utils.ApplyPagination(query.Order("created_at DESC"), p).Find(&accounts).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing accounts")
	}

	return utils.Paginated(c, accountInfos(accounts), p.Page, p.Limit, total)
}

func (h *AccountsHandler) Search(c *fiber.Ctx) error {
	search := strings.TrimSpace(c.Query("search"))
	limit := c.QueryInt("limit", 5)
	if limit < 1 || limit > 50 {
		limit = 50
	}

	var accounts []models.Account
	if err := searchAccounts(h.DB, search).Order("email ASC").Limit(limit).Find(&accounts).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed searching accounts")
	}

	return utils.Success(c, fiber.StatusOK, accountInfos(accounts))
}

func (h *AccountsHandler) Get(c *fiber.Ctx) error {
	accountID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid account id")
	}

	var account models.Account
	if err := h.DB.First(&account, "id = ?", accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "account not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching account")
	}

	return utils.Success(c, fiber.StatusOK, dto.Account(&account))
}

type updateAccountRequest struct {
	FirstName *string             `json:"firstName" validate:"omitempty,not_blank,max=100"`
	LastName  *string             `json:"lastName" validate:"omitempty,not_blank,max=100"`
	Type      *models.AccountType `json:"type" validate:"omitempty,oneof=admin normal"`
}

func (h *AccountsHandler) Update(c *fiber.Ctx) error {
	accountID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid account id")
	}

	var req updateAccountRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}

	updates := map[string]interface{}{}
	if req.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*req.LastName)
	}
	if req.Type != nil {
		updates["type"] = *req.Type
	}

	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	result := h.DB.Model(&models.Account{}).Where("id = ?", accountID).Updates(updates)
	if result.Error != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating account")
	}
	if result.RowsAffected == 0 {
		return utils.Error(c, fiber.StatusNotFound, "account not found")
	}

	var account models.Account
	if err := h.DB.First(&account, "id = ?", accountID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching updated account")
	}

	if req.Type != nil {
		logger.Info("account_type_changed", map[string]interface{}{
			"account_id": account.ID.String(),
			"type":       string(account.Type),
		})
	}

	return utils.Success(c, fiber.StatusOK, dto.Account(&account))
}

package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/partsregistry/registry/internal/dto"
	"github.com/partsregistry/registry/internal/models"
	"github.com/partsregistry/registry/internal/services"
	"github.com/partsregistry/registry/pkg/logger"
	"github.com/partsregistry/registry/pkg/utils"
	"gorm.io/gorm"
)

type AuthHandler struct {
	Accounts *services.AccountDirectory
	Audit    *services.AuditService
}

func NewAuthHandler(db *gorm.DB, audit *services.AuditService) *AuthHandler {
	return &AuthHandler{Accounts: services.NewAccountDirectory(db), Audit: audit}
}

func accountTarget(account *models.Account) models.Target {
	return models.Target{Kind: models.ResourceAccount, ID: account.ID}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}

	ctx := requestContext(c)
	if _, err := h.Accounts.GetByEmail(ctx, req.Email); err == nil {
		return utils.Error(c, fiber.StatusConflict, "email already registered")
	} else if !errors.Is(err, services.ErrNotFound) {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking email")
	}

	account, err := h.Accounts.CreateAccount(ctx, req.Email, req.Password, req.FirstName, req.LastName, models.AccountTypeNormal)
	if err != nil {
		if errors.Is(err, services.ErrInvalidArgument) {
			return utils.Error(c, fiber.StatusBadRequest, err.Error())
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating account")
	}

	token, err := utils.GenerateToken(account)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to generate token")
	}

	logger.InfoWithUser(account.Email, "account_registered", map[string]interface{}{
		"account_id": account.ID.String(),
	})
	h.Audit.Record(ctx, account.Email, "account.register", accountTarget(account), nil)

	return utils.Success(c, fiber.StatusCreated, fiber.Map{
		"token":   token,
		"account": dto.Account(account),
	})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}

	ctx := requestContext(c)
	account, err := h.Accounts.GetByEmail(ctx, req.Email)
	if err != nil || !utils.CheckPassword(req.Password, account.PasswordHash) {
		logger.Warn("login_failed", map[string]interface{}{
			"email": models.NormalizeEmail(req.Email),
			"ip":    c.IP(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
	}

	token, err := utils.GenerateToken(account)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to generate token")
	}

	h.Audit.Record(ctx, account.Email, "account.login", accountTarget(account), nil)

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"token":   token,
		"account": dto.Account(account),
	})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	account, err := requireAccount(c)
	if account == nil {
		return err
	}
	return utils.Success(c, fiber.StatusOK, dto.Account(account))
}

package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/partsregistry/registry/internal/models"
	"github.com/partsregistry/registry/pkg/logger"
	"github.com/partsregistry/registry/pkg/utils"
	"gorm.io/gorm"
)

const currentAccountKey = "currentAccount"

type AuthMiddleware struct {
	DB *gorm.DB
}

func NewAuthMiddleware(db *gorm.DB) *AuthMiddleware {
	return &AuthMiddleware{DB: db}
}

func CORS(origins string) fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	})
}

func bearerToken(c *fiber.Ctx) (string, bool) {
	authHeader := c.Get("Authorization")
	tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
	if tokenString == authHeader || tokenString == "" {
		return "", false
	}
	return tokenString, true
}

func (a *AuthMiddleware) RequireAuth(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		logger.Warn("jwt_missing_header", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "missing authorization header")
	}

	tokenString, ok := bearerToken(c)
	if !ok {
		logger.Warn("jwt_invalid_format", map[string]interface{}{
			"ip":          c.IP(),
			"path":        c.Path(),
			"auth_header": authHeader[:min(len(authHeader), 20)] + "...",
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid authorization format")
	}

	claims, err := utils.ValidateToken(tokenString)
	if err != nil {
		logger.Warn("jwt_validation_failed", map[string]interface{}{
			"ip":    c.IP(),
			"path":  c.Path(),
			"error": err.Error(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid or expired token")
	}

	var account models.Account
	if err := a.DB.First(&account, "id = ?", claims.AccountID).Error; err != nil {
		logger.Warn("jwt_account_not_found", map[string]interface{}{
			"ip":         c.IP(),
			"path":       c.Path(),
			"account_id": claims.AccountID.String(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "account not found")
	}

	setCurrentAccount(c, &account)
	return c.Next()
}

// OptionalAuth identifies the caller when a valid token is present and lets
// anonymous requests through otherwise.
func (a *AuthMiddleware) OptionalAuth(c *fiber.Ctx) error {
	tokenString, ok := bearerToken(c)
	if !ok {
		return c.Next()
	}

	claims, err := utils.ValidateToken(tokenString)
	if err != nil {
		return c.Next()
	}

	var account models.Account
	if err := a.DB.First(&account, "id = ?", claims.AccountID).Error; err != nil {
		return c.Next()
	}

	setCurrentAccount(c, &account)
	return c.Next()
}

func setCurrentAccount(c *fiber.Ctx, account *models.Account) {
	c.Locals(currentAccountKey, account)
	c.Locals(logger.ActorLocal, account.Email)
}

func AdminOnly(c *fiber.Ctx) error {
	account := GetCurrentAccount(c)
	if account == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	if !account.IsAdmin() {
		return utils.Error(c, fiber.StatusForbidden, "admin access required")
	}
	return c.Next()
}

func GetCurrentAccount(c *fiber.Ctx) *models.Account {
	account, ok := c.Locals(currentAccountKey).(*models.Account)
	if !ok {
		return nil
	}
	return account
}

// Actor is the email every service call is made with; empty for anonymous callers.
func Actor(c *fiber.Ctx) string {
	if account := GetCurrentAccount(c); account != nil {
		return account.Email
	}
	return ""
}

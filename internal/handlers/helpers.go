package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/partsregistry/registry/internal/middleware"
	"github.com/partsregistry/registry/internal/models"
	"github.com/partsregistry/registry/internal/services"
	"github.com/partsregistry/registry/internal/validator"
	"github.com/partsregistry/registry/pkg/logger"
	"github.com/partsregistry/registry/pkg/utils"
)

var requestValidator = validator.New()

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

func parseUUIDs(values []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(values))
	seen := make(map[uuid.UUID]struct{}, len(values))
	for _, value := range values {
		id, err := parseUUID(value)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

// bind parses and validates a JSON body. It writes the 400 itself and reports false
// when the caller should stop.
func bind(c *fiber.Ctx, req interface{}) (bool, error) {
	if err := c.BodyParser(req); err != nil {
		return false, utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := requestValidator.Validate(req); err != nil {
		return false, utils.Error(c, fiber.StatusBadRequest, validator.Message(err))
	}
	return true, nil
}

// requestContext carries the request id and client address into audit rows.
func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if requestID, ok := c.Locals("requestID").(string); ok {
		ctx = context.WithValue(ctx, services.RequestIDKey, requestID)
	}
	return context.WithValue(ctx, services.ClientIPKey, c.IP())
}

func grantee(kind, rawID string) (models.Grantee, error) {
	id, err := parseUUID(rawID)
	if err != nil {
		return models.Grantee{}, err
	}
	if models.GranteeKind(kind) == models.GranteeGroup {
		return models.GroupGrantee(id), nil
	}
	return models.AccountGrantee(id), nil
}

// writeServiceError maps service errors onto the response envelope. Denials look
// like missing resources so callers cannot probe for what exists.
func writeServiceError(c *fiber.Ctx, err error, resource string) error {
	var propagation *services.PropagationError
	switch {
	case errors.As(err, &propagation):
		return propagationIncomplete(c, err)
	case errors.Is(err, services.ErrVirtualFolder):
		return utils.Error(c, fiber.StatusBadRequest, "virtual folders cannot be addressed by id")
	case errors.Is(err, services.ErrInvalidArgument):
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrNotFound), errors.Is(err, services.ErrPermissionDenied):
		return utils.Error(c, fiber.StatusNotFound, resource+" not found")
	default:
		logger.ErrorWithUser(middleware.Actor(c), "request_failed", err, map[string]interface{}{
			"path":     c.Path(),
			"resource": resource,
		})
		return utils.Error(c, fiber.StatusInternalServerError, "internal server error")
	}
}

// propagationIncomplete reports a committed change whose fan-out to folder contents
// partly failed. Re-running propagation completes it.
func propagationIncomplete(c *fiber.Ctx, err error) error {
	var failed []string
	for unwrapped := []error{err}; len(unwrapped) > 0; {
		next := unwrapped[0]
		unwrapped = unwrapped[1:]
		if perr, ok := next.(*services.PropagationError); ok {
			for _, f := range perr.Failures {
				failed = append(failed, f.EntryID.String())
			}
			continue
		}
		if joined, ok := next.(interface{ Unwrap() []error }); ok {
			unwrapped = append(unwrapped, joined.Unwrap()...)
		}
	}
	return c.Status(fiber.StatusMultiStatus).JSON(fiber.Map{
		"success":       false,
		"error":         "change saved but permission propagation is incomplete; retry propagation",
		"failedEntries": failed,
	})
}

// respond writes data, downgrading to a propagation report when the fan-out failed.
func respond(c *fiber.Ctx, status int, data interface{}, err error, resource string) error {
	if err == nil {
		return utils.Success(c, status, data)
	}
	var propagation *services.PropagationError
	if errors.As(err, &propagation) && data != nil {
		return propagationIncomplete(c, err)
	}
	return writeServiceError(c, err, resource)
}

func requireAccount(c *fiber.Ctx) (*models.Account, error) {
	account := middleware.GetCurrentAccount(c)
	if account == nil {
		return nil, utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return account, nil
}

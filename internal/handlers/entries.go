package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/partsregistry/registry/internal/dto"
	"github.com/partsregistry/registry/internal/middleware"
	"github.com/partsregistry/registry/internal/services"
	"github.com/partsregistry/registry/pkg/utils"
)

type EntriesHandler struct {
	Entries *services.EntryService
}

func NewEntriesHandler(entries *services.EntryService) *EntriesHandler {
	return &EntriesHandler{Entries: entries}
}

func (h *EntriesHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateEntryRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}

	entry, err := h.Entries.Create(requestContext(c), middleware.Actor(c), req)
	if err != nil {
		return writeServiceError(c, err, "entry")
	}
	return utils.Success(c, fiber.StatusCreated, dto.Part(entry))
}

func (h *EntriesHandler) Get(c *fiber.Ctx) error {
	entryID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid entry id")
	}

	entry, err := h.Entries.Get(requestContext(c), middleware.Actor(c), entryID)
	if err != nil {
		return writeServiceError(c, err, "entry")
	}
	return utils.Success(c, fiber.StatusOK, dto.Part(entry))
}

func (h *EntriesHandler) Update(c *fiber.Ctx) error {
	entryID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid entry id")
	}

	var req dto.CreateEntryRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}

	entry, err := h.Entries.Update(requestContext(c), middleware.Actor(c), entryID, req)
	if err != nil {
		return writeServiceError(c, err, "entry")
	}
	return utils.Success(c, fiber.StatusOK, dto.Part(entry))
}

func (h *EntriesHandler) Delete(c *fiber.Ctx) error {
	entryID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid entry id")
	}

	if err := h.Entries.Delete(requestContext(c), middleware.Actor(c), entryID); err != nil {
		return writeServiceError(c, err, "entry")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "entry deleted"})
}

func (h *EntriesHandler) CreatePermission(c *fiber.Ctx) error {
	entryID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid entry id")
	}

	var req dto.PermissionRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}
	target, err := grantee(req.GranteeType, req.GranteeID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid grantee id")
	}

	permission, err := h.Entries.CreatePermission(requestContext(c), middleware.Actor(c), entryID, target, req.CanRead, req.CanWrite)
	if err != nil {
		return writeServiceError(c, err, "entry")
	}
	return utils.Success(c, fiber.StatusCreated, dto.Permission(permission))
}

func (h *EntriesHandler) RemovePermission(c *fiber.Ctx) error {
	entryID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid entry id")
	}

	var req dto.RemovePermissionRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}
	target, err := grantee(req.GranteeType, req.GranteeID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid grantee id")
	}

	if err := h.Entries.RemovePermission(requestContext(c), middleware.Actor(c), entryID, target, req.WriteOnly); err != nil {
		return writeServiceError(c, err, "permission")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "permission removed"})
}

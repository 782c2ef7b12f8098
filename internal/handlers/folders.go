package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/partsregistry/registry/internal/dto"
	"github.com/partsregistry/registry/internal/middleware"
	"github.com/partsregistry/registry/internal/models"
	"github.com/partsregistry/registry/internal/services"
	"github.com/partsregistry/registry/pkg/logger"
	"github.com/partsregistry/registry/pkg/utils"
)

type FoldersHandler struct {
	Folders *services.FolderService
}

func NewFoldersHandler(folders *services.FolderService) *FoldersHandler {
	return &FoldersHandler{Folders: folders}
}

func (h *FoldersHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateFolderRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}

	folder, err := h.Folders.CreatePersonalFolder(requestContext(c), middleware.Actor(c), req.Name, req.Description)
	if err != nil {
		return writeServiceError(c, err, "account")
	}
	return utils.Success(c, fiber.StatusCreated, dto.Folder(folder))
}

func (h *FoldersHandler) ListPersonal(c *fiber.Ctx) error {
	folders, err := h.Folders.GetUserFolders(requestContext(c), middleware.Actor(c))
	if err != nil {
		return writeServiceError(c, err, "folder")
	}
	return utils.Success(c, fiber.StatusOK, folders)
}

func (h *FoldersHandler) ListShared(c *fiber.Ctx) error {
	folders, err := h.Folders.GetSharedFolders(requestContext(c), middleware.Actor(c))
	if err != nil {
		return writeServiceError(c, err, "folder")
	}
	return utils.Success(c, fiber.StatusOK, folders)
}

func (h *FoldersHandler) ListAvailable(c *fiber.Ctx) error {
	folders, err := h.Folders.GetAvailableFolders(requestContext(c), middleware.Actor(c))
	if err != nil {
		return writeServiceError(c, err, "folder")
	}
	return utils.Success(c, fiber.StatusOK, folders)
}

func (h *FoldersHandler) ListPublic(c *fiber.Ctx) error {
	folders, err := h.Folders.GetPublicFolders(requestContext(c))
	if err != nil {
		return writeServiceError(c, err, "folder")
	}
	return utils.Success(c, fiber.StatusOK, folders)
}

func (h *FoldersHandler) ListPublicEntries(c *fiber.Ctx) error {
	pagination := utils.ParsePagination(c)
	entries, total, err := h.Folders.GetPublicEntries(requestContext(c), pagination.Offset, pagination.Limit)
	if err != nil {
		return writeServiceError(c, err, "entry")
	}
	return utils.Paginated(c, entries, pagination.Page, pagination.Limit, total)
}

func (h *FoldersHandler) ListDrafts(c *fiber.Ctx) error {
	folders, err := h.Folders.GetBulkUploadDrafts(requestContext(c), middleware.Actor(c))
	if err != nil {
		return writeServiceError(c, err, "upload")
	}
	return utils.Success(c, fiber.StatusOK, folders)
}

func (h *FoldersHandler) ListPending(c *fiber.Ctx) error {
	folders, err := h.Folders.GetPendingBulkUploads(requestContext(c), middleware.Actor(c))
	if err != nil {
		return writeServiceError(c, err, "upload")
	}
	return utils.Success(c, fiber.StatusOK, folders)
}

func (h *FoldersHandler) ListPendingEntries(c *fiber.Ctx) error {
	pagination := utils.ParsePagination(c)
	entries, total, err := h.Folders.GetPendingEntries(requestContext(c), middleware.Actor(c), pagination.Offset, pagination.Limit)
	if err != nil {
		return writeServiceError(c, err, "entry")
	}
	return utils.Paginated(c, entries, pagination.Page, pagination.Limit, total)
}

func (h *FoldersHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.Folders.GetFolderStats(requestContext(c), middleware.Actor(c))
	if err != nil {
		return writeServiceError(c, err, "account")
	}
	return utils.Success(c, fiber.StatusOK, stats)
}

// Contents returns one page of a folder. Query: page, limit, sort (created, name,
// type, status) and asc.
func (h *FoldersHandler) Contents(c *fiber.Ctx) error {
	folderID, err := services.ParseFolderID(c.Params("id"))
	if err != nil {
		return writeServiceError(c, err, "folder")
	}

	pagination := utils.ParsePagination(c)
	details, err := h.Folders.GetFolderContents(requestContext(c), middleware.Actor(c), folderID, services.ContentsQuery{
		Offset:    pagination.Offset,
		Limit:     pagination.Limit,
		Sort:      strings.ToLower(c.Query("sort", "created")),
		Ascending: c.QueryBool("asc", false),
	})
	if err != nil {
		return writeServiceError(c, err, "folder")
	}
	return utils.Success(c, fiber.StatusOK, details)
}

func (h *FoldersHandler) Update(c *fiber.Ctx) error {
	folderID, err := services.ParseFolderID(c.Params("id"))
	if err != nil {
		return writeServiceError(c, err, "folder")
	}

	var req dto.UpdateFolderRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}
	if req.Name == nil && req.Description == nil && req.PropagatePermissions == nil && req.Type == nil {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	update := services.FolderUpdate{
		Name:                 req.Name,
		Description:          req.Description,
		PropagatePermissions: req.PropagatePermissions,
	}
	if req.Type != nil {
		// Promotion and demotion are admin-only; denials read as not found.
		if !middleware.GetCurrentAccount(c).IsAdmin() {
			logger.WarnWithUser(middleware.Actor(c), "folder_type_change_denied", map[string]interface{}{
				"folder_id": folderID.String(),
				"type":      *req.Type,
			})
			return utils.Error(c, fiber.StatusNotFound, "folder not found")
		}
		folderType := models.FolderType(*req.Type)
		update.Type = &folderType
	}

	folder, err := h.Folders.Update(requestContext(c), middleware.Actor(c), folderID, update)
	if folder == nil {
		return writeServiceError(c, err, "folder")
	}
	return respond(c, fiber.StatusOK, dto.Folder(folder), err, "folder")
}

// Delete removes a folder. With ?type=upload the id names a draft bulk upload.
func (h *FoldersHandler) Delete(c *fiber.Ctx) error {
	folderID, err := services.ParseFolderID(c.Params("id"))
	if err != nil {
		return writeServiceError(c, err, "folder")
	}

	folderType := models.FolderType(strings.ToLower(c.Query("type", string(models.FolderTypePrivate))))
	if !folderType.Valid() {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folder type")
	}

	details, err := h.Folders.Delete(requestContext(c), middleware.Actor(c), folderID, folderType)
	if err != nil {
		return writeServiceError(c, err, "folder")
	}
	return utils.Success(c, fiber.StatusOK, details)
}

func (h *FoldersHandler) AddEntries(c *fiber.Ctx) error {
	folderID, err := services.ParseFolderID(c.Params("id"))
	if err != nil {
		return writeServiceError(c, err, "folder")
	}

	var req dto.EntriesRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}
	entryIDs, err := parseUUIDs(req.EntryIDs)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid entry id")
	}

	folder, err := h.Folders.AddFolderContents(requestContext(c), middleware.Actor(c), folderID, entryIDs)
	if folder == nil {
		return writeServiceError(c, err, "folder")
	}
	return respond(c, fiber.StatusOK, dto.Folder(folder), err, "folder")
}

func (h *FoldersHandler) RemoveEntries(c *fiber.Ctx) error {
	folderID, err := services.ParseFolderID(c.Params("id"))
	if err != nil {
		return writeServiceError(c, err, "folder")
	}

	var req dto.EntriesRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}
	entryIDs, err := parseUUIDs(req.EntryIDs)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid entry id")
	}

	folder, err := h.Folders.RemoveFolderContents(requestContext(c), middleware.Actor(c), folderID, entryIDs)
	if err != nil {
		return writeServiceError(c, err, "folder")
	}
	return utils.Success(c, fiber.StatusOK, dto.Folder(folder))
}

func (h *FoldersHandler) AddToFolders(c *fiber.Ctx) error {
	var req dto.AddToFoldersRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}
	folderIDs, err := parseUUIDs(req.FolderIDs)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folder id")
	}
	entryIDs, err := parseUUIDs(req.EntryIDs)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid entry id")
	}

	folders, err := h.Folders.AddEntriesToFolders(requestContext(c), middleware.Actor(c), folderIDs, entryIDs)
	if folders == nil {
		return writeServiceError(c, err, "folder")
	}
	return respond(c, fiber.StatusOK, folderList(folders), err, "folder")
}

func (h *FoldersHandler) Move(c *fiber.Ctx) error {
	sourceID, err := services.ParseFolderID(c.Params("id"))
	if err != nil {
		return writeServiceError(c, err, "folder")
	}

	var req dto.MoveEntriesRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}
	destinationIDs, err := parseUUIDs(req.DestinationIDs)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid folder id")
	}
	entryIDs, err := parseUUIDs(req.EntryIDs)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid entry id")
	}

	folders, err := h.Folders.MoveFolderContents(requestContext(c), middleware.Actor(c), sourceID, destinationIDs, entryIDs)
	if folders == nil {
		return writeServiceError(c, err, "folder")
	}
	return respond(c, fiber.StatusOK, folderList(folders), err, "folder")
}

func folderList(folders []models.Folder) []dto.FolderDetails {
	out := make([]dto.FolderDetails, 0, len(folders))
	for i := range folders {
		out = append(out, dto.Folder(&folders[i]))
	}
	return out
}

func (h *FoldersHandler) ListPermissions(c *fiber.Ctx) error {
	folderID, err := services.ParseFolderID(c.Params("id"))
	if err != nil {
		return writeServiceError(c, err, "folder")
	}

	permissions, err := h.Folders.GetPermissions(requestContext(c), middleware.Actor(c), folderID)
	if err != nil {
		return writeServiceError(c, err, "folder")
	}
	return utils.Success(c, fiber.StatusOK, dto.Permissions(permissions))
}

func (h *FoldersHandler) CreatePermission(c *fiber.Ctx) error {
	folderID, err := services.ParseFolderID(c.Params("id"))
	if err != nil {
		return writeServiceError(c, err, "folder")
	}

	var req dto.PermissionRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}
	target, err := grantee(req.GranteeType, req.GranteeID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid grantee id")
	}

	permission, err := h.Folders.CreateFolderPermission(requestContext(c), middleware.Actor(c), folderID, target, req.CanRead, req.CanWrite)
	if permission == nil {
		return writeServiceError(c, err, "folder")
	}
	return respond(c, fiber.StatusCreated, dto.Permission(permission), err, "folder")
}

func (h *FoldersHandler) RemovePermission(c *fiber.Ctx) error {
	folderID, err := services.ParseFolderID(c.Params("id"))
	if err != nil {
		return writeServiceError(c, err, "folder")
	}

	var req dto.RemovePermissionRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}
	target, err := grantee(req.GranteeType, req.GranteeID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid grantee id")
	}

	err = h.Folders.RemoveFolderPermission(requestContext(c), middleware.Actor(c), folderID, target, req.WriteOnly)
	return respond(c, fiber.StatusOK, fiber.Map{"message": "permission removed"}, err, "permission")
}

func (h *FoldersHandler) EnablePublicAccess(c *fiber.Ctx) error {
	folderID, err := services.ParseFolderID(c.Params("id"))
	if err != nil {
		return writeServiceError(c, err, "folder")
	}

	permission, err := h.Folders.EnablePublicReadAccess(requestContext(c), middleware.Actor(c), folderID)
	if permission == nil {
		return writeServiceError(c, err, "folder")
	}
	return respond(c, fiber.StatusOK, dto.Permission(permission), err, "folder")
}

func (h *FoldersHandler) DisablePublicAccess(c *fiber.Ctx) error {
	folderID, err := services.ParseFolderID(c.Params("id"))
	if err != nil {
		return writeServiceError(c, err, "folder")
	}

	err = h.Folders.DisablePublicReadAccess(requestContext(c), middleware.Actor(c), folderID)
	return respond(c, fiber.StatusOK, fiber.Map{"message": "public read access disabled"}, err, "folder")
}

func (h *FoldersHandler) RetryPropagation(c *fiber.Ctx) error {
	folderID, err := services.ParseFolderID(c.Params("id"))
	if err != nil {
		return writeServiceError(c, err, "folder")
	}

	err = h.Folders.RetryPropagation(requestContext(c), middleware.Actor(c), folderID)
	return respond(c, fiber.StatusOK, fiber.Map{"message": "permissions propagated"}, err, "folder")
}

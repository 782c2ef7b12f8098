package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/partsregistry/registry/internal/dto"
	"github.com/partsregistry/registry/internal/middleware"
	"github.com/partsregistry/registry/internal/models"
	"github.com/partsregistry/registry/internal/services"
	"github.com/partsregistry/registry/pkg/utils"
)

type UploadsHandler struct {
	Uploads *services.BulkUploadService
}

func NewUploadsHandler(uploads *services.BulkUploadService) *UploadsHandler {
	return &UploadsHandler{Uploads: uploads}
}

func uploadInfos(summaries []services.UploadSummary) []dto.BulkUploadInfo {
	out := make([]dto.BulkUploadInfo, 0, len(summaries))
	for i := range summaries {
		out = append(out, dto.Upload(&summaries[i].Upload, summaries[i].Count))
	}
	return out
}

func validationResult(valid bool, failed []services.EntryField) dto.ValidationResult {
	fields := make([]string, 0, len(failed))
	for _, f := range failed {
		fields = append(fields, string(f))
	}
	return dto.ValidationResult{Valid: valid, FailedFields: fields}
}

func (h *UploadsHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateUploadRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}

	upload, err := h.Uploads.CreateDraft(requestContext(c), middleware.Actor(c), req.Name)
	if err != nil {
		return writeServiceError(c, err, "account")
	}
	return utils.Success(c, fiber.StatusCreated, dto.Upload(upload, 0))
}

// ListMine lists the caller's uploads. ?status narrows to draft, pending_approval or approved.
func (h *UploadsHandler) ListMine(c *fiber.Ctx) error {
	status := models.BulkUploadStatus(strings.ToLower(strings.TrimSpace(c.Query("status"))))
	switch status {
	case "", models.BulkUploadDraft, models.BulkUploadPendingApproval, models.BulkUploadApproved:
	default:
		return utils.Error(c, fiber.StatusBadRequest, "invalid status")
	}

	summaries, err := h.Uploads.RetrieveByUser(requestContext(c), middleware.Actor(c), status)
	if err != nil {
		return writeServiceError(c, err, "account")
	}
	return utils.Success(c, fiber.StatusOK, uploadInfos(summaries))
}

func (h *UploadsHandler) ListPending(c *fiber.Ctx) error {
	summaries, err := h.Uploads.GetPendingUploads(requestContext(c), middleware.Actor(c))
	if err != nil {
		return writeServiceError(c, err, "upload")
	}
	return utils.Success(c, fiber.StatusOK, uploadInfos(summaries))
}

func (h *UploadsHandler) Get(c *fiber.Ctx) error {
	uploadID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid upload id")
	}

	summary, err := h.Uploads.Get(requestContext(c), middleware.Actor(c), uploadID)
	if err != nil {
		return writeServiceError(c, err, "upload")
	}
	return utils.Success(c, fiber.StatusOK, dto.Upload(&summary.Upload, summary.Count))
}

func (h *UploadsHandler) AddEntries(c *fiber.Ctx) error {
	uploadID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid upload id")
	}

	var req dto.UploadEntriesRequest
	if ok, err := bind(c, &req); !ok {
		return err
	}

	entries, err := h.Uploads.AddEntries(requestContext(c), middleware.Actor(c), uploadID, req.Entries)
	if err != nil {
		return writeServiceError(c, err, "upload")
	}
	return utils.Success(c, fiber.StatusCreated, dto.Parts(entries))
}

func (h *UploadsHandler) Validate(c *fiber.Ctx) error {
	uploadID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid upload id")
	}

	valid, failed, err := h.Uploads.Validate(requestContext(c), middleware.Actor(c), uploadID)
	if err != nil {
		return writeServiceError(c, err, "upload")
	}
	return utils.Success(c, fiber.StatusOK, validationResult(valid, failed))
}

// Submit moves a draft to pending approval. A draft that fails validation is
// answered with 422 and the failed field categories.
func (h *UploadsHandler) Submit(c *fiber.Ctx) error {
	uploadID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid upload id")
	}

	failed, err := h.Uploads.Submit(requestContext(c), middleware.Actor(c), uploadID)
	if err != nil {
		return writeServiceError(c, err, "upload")
	}
	if len(failed) > 0 {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"success": false,
			"error":   "upload failed validation",
			"data":    validationResult(false, failed),
		})
	}
	return utils.Success(c, fiber.StatusOK, validationResult(true, nil))
}

func (h *UploadsHandler) Approve(c *fiber.Ctx) error {
	uploadID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid upload id")
	}

	if err := h.Uploads.Approve(requestContext(c), middleware.Actor(c), uploadID); err != nil {
		return writeServiceError(c, err, "upload")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "upload approved"})
}

func (h *UploadsHandler) Delete(c *fiber.Ctx) error {
	uploadID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid upload id")
	}

	upload, err := h.Uploads.DeleteDraft(requestContext(c), middleware.Actor(c), uploadID)
	if err != nil {
		return writeServiceError(c, err, "upload")
	}
	return utils.Success(c, fiber.StatusOK, dto.Upload(upload, 0))
}

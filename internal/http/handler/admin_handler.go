package handler

import (
	"context"
	"errors"
	"regexp"

	"github.com/gofiber/fiber/v2"
	"github.com/qrtrail/qrtrail/internal/app/model"
	"github.com/qrtrail/qrtrail/internal/app/repository"
	"github.com/qrtrail/qrtrail/internal/app/service"
	"go.uber.org/zap"
)

// referencePattern mirrors the charset accepted on the public scan URL.
var referencePattern = regexp.MustCompile(`^[_a-zA-Z0-9-]+$`)

// AdminDeps groups dependencies required by the management API handlers.
type AdminDeps struct {
	Logger      *zap.Logger
	CodeService service.CodeService
	Exporter    *CSVExporter
}

// AdminHandler implements the management API: code CRUD, scan inspection,
// toggling, scan reset and CSV export. It is a pass-through over the store;
// none of the redirect decision logic lives here.
type AdminHandler struct {
	logger      *zap.Logger
	codeService service.CodeService
	exporter    *CSVExporter
}

// NewAdminHandler creates a management API handler with the provided dependencies.
func NewAdminHandler(deps AdminDeps) *AdminHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{
		logger:      logger,
		codeService: deps.CodeService,
		exporter:    deps.Exporter,
	}
}

// Register wires the management routes onto the provided router (expected to
// already be scoped under /api).
func (h *AdminHandler) Register(router fiber.Router) {
	codes := router.Group("/codes")
	{
		codes.Post("/", h.CreateCode)
		codes.Get("/", h.ListCodes)
		codes.Get("/:reference", h.GetCode)
		codes.Patch("/:reference", h.UpdateCode)
		codes.Post("/:reference/toggle", h.ToggleCode)
		codes.Delete("/:reference", h.DeleteCode)
		codes.Post("/:reference/reset", h.ResetScans)
		codes.Get("/:reference/scans", h.ListScans)
	}

	export := router.Group("/export")
	{
		export.Get("/codes.csv", h.ExportCodes)
		export.Get("/scans.csv", h.ExportScans)
	}
}

// CreateCodeRequest represents the request body for creating a code.
type CreateCodeRequest struct {
	Reference      string `json:"reference"`
	Name           string `json:"name"`
	DestinationURL string `json:"destination_url"`
	Active         *bool  `json:"active,omitempty"`
}

// CodeResponse represents a code in API responses.
type CodeResponse struct {
	Reference      string `json:"reference"`
	Name           string `json:"name"`
	DestinationURL string `json:"destination_url"`
	Active         bool   `json:"active"`
}

func codeResponse(code *model.Code) CodeResponse {
	return CodeResponse{
		Reference:      code.Reference,
		Name:           code.Name,
		DestinationURL: code.DestinationURL,
		Active:         code.Active,
	}
}

// CreateCode handles POST /api/codes
func (h *AdminHandler) CreateCode(c *fiber.Ctx) error {
	var req CreateCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if !referencePattern.MatchString(req.Reference) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "reference must contain only letters, digits, '-' and '_'",
		})
	}
	if req.DestinationURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "destination_url is required",
		})
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	code, err := h.codeService.CreateCode(h.ctx(c), service.CreateCodeInput{
		Reference:      req.Reference,
		Name:           req.Name,
		DestinationURL: req.DestinationURL,
		Active:         active,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateReference) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "reference already exists",
			})
		}
		h.logger.Error("failed to create code", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to create code",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(codeResponse(code))
}

// ListCodes handles GET /api/codes
func (h *AdminHandler) ListCodes(c *fiber.Ctx) error {
	limit := 20
	offset := 0

	if parsed := c.QueryInt("limit"); parsed > 0 && parsed <= 100 {
		limit = parsed
	}
	if parsed := c.QueryInt("offset"); parsed > 0 {
		offset = parsed
	}

	codes, err := h.codeService.ListCodes(h.ctx(c), limit, offset)
	if err != nil {
		h.logger.Error("failed to list codes", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list codes",
		})
	}

	return c.JSON(fiber.Map{
		"codes":  codes,
		"limit":  limit,
		"offset": offset,
		"count":  len(codes),
	})
}

// GetCode handles GET /api/codes/:reference
func (h *AdminHandler) GetCode(c *fiber.Ctx) error {
	ref := c.Params("reference")

	code, err := h.codeService.GetCode(h.ctx(c), ref)
	if err != nil {
		return h.codeError(c, "failed to get code", ref, err)
	}

	return c.JSON(code)
}

// UpdateCodeRequest represents the request body for editing a code. The
// reference itself cannot be changed.
type UpdateCodeRequest struct {
	Name           *string `json:"name,omitempty"`
	DestinationURL *string `json:"destination_url,omitempty"`
	Active         *bool   `json:"active,omitempty"`
}

// UpdateCode handles PATCH /api/codes/:reference
func (h *AdminHandler) UpdateCode(c *fiber.Ctx) error {
	ref := c.Params("reference")

	var req UpdateCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if req.DestinationURL != nil && *req.DestinationURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "destination_url cannot be empty",
		})
	}

	code, err := h.codeService.UpdateCode(h.ctx(c), ref, service.UpdateCodeInput{
		Name:           req.Name,
		DestinationURL: req.DestinationURL,
		Active:         req.Active,
	})
	if err != nil {
		return h.codeError(c, "failed to update code", ref, err)
	}

	return c.JSON(codeResponse(code))
}

// ToggleCode handles POST /api/codes/:reference/toggle
func (h *AdminHandler) ToggleCode(c *fiber.Ctx) error {
	ref := c.Params("reference")

	code, err := h.codeService.ToggleCode(h.ctx(c), ref)
	if err != nil {
		return h.codeError(c, "failed to toggle code", ref, err)
	}

	return c.JSON(codeResponse(code))
}

// DeleteCode handles DELETE /api/codes/:reference — removes the code and all
// its scans.
func (h *AdminHandler) DeleteCode(c *fiber.Ctx) error {
	ref := c.Params("reference")

	if err := h.codeService.DeleteCode(h.ctx(c), ref); err != nil {
		return h.codeError(c, "failed to delete code", ref, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// ResetScans handles POST /api/codes/:reference/reset — clears the scan
// history but keeps the code.
func (h *AdminHandler) ResetScans(c *fiber.Ctx) error {
	ref := c.Params("reference")

	deleted, err := h.codeService.ResetScans(h.ctx(c), ref)
	if err != nil {
		return h.codeError(c, "failed to reset scans", ref, err)
	}

	return c.JSON(fiber.Map{
		"reference": ref,
		"deleted":   deleted,
	})
}

// ListScans handles GET /api/codes/:reference/scans
func (h *AdminHandler) ListScans(c *fiber.Ctx) error {
	ref := c.Params("reference")

	limit := 50
	offset := 0
	if parsed := c.QueryInt("limit"); parsed > 0 && parsed <= 500 {
		limit = parsed
	}
	if parsed := c.QueryInt("offset"); parsed > 0 {
		offset = parsed
	}

	scans, err := h.codeService.ListScans(h.ctx(c), ref, limit, offset)
	if err != nil {
		return h.codeError(c, "failed to list scans", ref, err)
	}

	return c.JSON(fiber.Map{
		"reference": ref,
		"scans":     scans,
		"limit":     limit,
		"offset":    offset,
		"count":     len(scans),
	})
}

// ExportCodes handles GET /api/export/codes.csv
func (h *AdminHandler) ExportCodes(c *fiber.Ctx) error {
	return h.export(c, "codes")
}

// ExportScans handles GET /api/export/scans.csv
func (h *AdminHandler) ExportScans(c *fiber.Ctx) error {
	return h.export(c, "scans")
}

func (h *AdminHandler) export(c *fiber.Ctx, table string) error {
	out, err := h.exporter.Export(h.ctx(c), table)
	if err != nil {
		h.logger.Error("csv export failed", zap.String("table", table), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "export failed",
		})
	}

	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+out.Filename+`"`)
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	return c.Send(out.Data)
}

func (h *AdminHandler) codeError(c *fiber.Ctx, msg, ref string, err error) error {
	if errors.Is(err, repository.ErrCodeNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "code not found",
		})
	}
	h.logger.Error(msg, zap.Error(err), zap.String("reference", ref))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": msg,
	})
}

func (h *AdminHandler) ctx(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}

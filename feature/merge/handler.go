package merge

import (
	"errors"

	"kb-bridge/core/conflict"
	"kb-bridge/core/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for merges.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the merge routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/merge")
	group.Post("/preview", h.HandlePreview)
	group.Post("/execute", h.HandleExecute)
}

// errorStatus maps a service error to an HTTP status.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return fiber.StatusBadRequest
	case errors.Is(err, conflict.ErrCollaboratorFailure), errors.Is(err, conflict.ErrAnalysisUnavailable):
		return fiber.StatusBadGateway
	case errors.Is(err, conflict.ErrIdentityMismatch):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// HandlePreview previews a merge.
// @Summary Preview Merge
// @Description Detects the conflicts of merging source_ref into target_ref without writing anything.
// @Tags merge
// @Accept json
// @Produce json
// @Param request body PreviewRequest true "Refs to merge"
// @Success 200 {object} conflict.PreviewResult "Merge Preview"
// @Failure 400 {object} map[string]string "Bad Request"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /merge/preview [post]
func (h *Handler) HandlePreview(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	var req PreviewRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	res, err := h.service.Preview(c.UserContext(), req)
	if err != nil {
		l.Error("Merge preview failed", zap.Error(err))
		return c.Status(errorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(res)
}

// HandleExecute executes a merge.
// @Summary Execute Merge
// @Description Merges source_ref into target_ref as one commit. Resolutions may be a list, a "resolutions" object or a flat map of conflict ids. Nothing is written when any conflict fails to resolve.
// @Tags merge
// @Accept json
// @Produce json
// @Param request body ExecuteRequest true "Refs and resolutions"
// @Success 200 {object} conflict.ExecutionResult "Execution Result"
// @Failure 400 {object} map[string]string "Bad Request"
// @Failure 502 {object} map[string]string "Store Failure"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /merge/execute [post]
func (h *Handler) HandleExecute(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	var req ExecuteRequest
	payload, err := conflict.ParseRequestPayload(c.Body(), &req, "source_ref", "target_ref", "message")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	req.Resolutions = payload

	res, err := h.service.Execute(c.UserContext(), req)
	if err != nil {
		l.Error("Merge execution failed", zap.Error(err))
		return c.Status(errorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(res)
}

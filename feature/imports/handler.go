package imports

import (
	"errors"

	"kb-bridge/core/conflict"
	"kb-bridge/core/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// RequestBody is the body of both import endpoints. Execute bodies also
// carry resolutions in any accepted shape next to these fields.
type RequestBody struct {
	ForeignPath           string `json:"foreign_path,omitempty" yaml:"foreign_path"`
	ForeignObject         string `json:"foreign_object,omitempty" yaml:"foreign_object"`
	Filter                any    `json:"filter,omitempty" yaml:"filter"`
	IncludeAutoResolvable bool   `json:"include_auto_resolvable,omitempty" yaml:"include_auto_resolvable"`
	DetailedDiff          bool   `json:"detailed_diff,omitempty" yaml:"detailed_diff"`
}

var bodyFields = []string{"foreign_path", "foreign_object", "filter", "include_auto_resolvable", "detailed_diff"}

// ParseRequestBody splits a request body into its fields, filter and
// resolution payload.
func ParseRequestBody(data []byte) (RequestBody, Filter, conflict.ResolutionPayload, error) {
	var body RequestBody
	payload, err := conflict.ParseRequestPayload(data, &body, bodyFields...)
	if err != nil {
		return body, Filter{}, payload, err
	}
	filter, err := FilterFromValue(body.Filter)
	return body, filter, payload, err
}

// Handler handles HTTP requests for imports.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the import routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/import")
	group.Post("/preview", h.HandlePreview)
	group.Post("/execute", h.HandleExecute)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, conflict.ErrInvalidFilter):
		return fiber.StatusBadRequest
	case errors.Is(err, conflict.ErrCollaboratorFailure):
		return fiber.StatusBadGateway
	case errors.Is(err, conflict.ErrIdentityMismatch):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// HandlePreview previews an import.
// @Summary Preview Import
// @Description Lists what importing a foreign store would add and which documents conflict with the local store.
// @Tags import
// @Accept json
// @Produce json
// @Param request body RequestBody true "Foreign store and filter"
// @Success 200 {object} conflict.PreviewResult "Import Preview"
// @Failure 400 {object} map[string]string "Invalid Filter"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /import/preview [post]
func (h *Handler) HandlePreview(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	body, filter, _, err := ParseRequestBody(c.Body())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	res, err := h.service.Preview(c.UserContext(), PreviewRequest{
		Source:                ForeignSource{Path: body.ForeignPath, Object: body.ForeignObject},
		Filter:                filter,
		IncludeAutoResolvable: body.IncludeAutoResolvable,
		DetailedDiff:          body.DetailedDiff,
	})
	if err != nil {
		l.Error("Import preview failed", zap.Error(err))
		return c.Status(errorStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(res)
}

// HandleExecute executes an import.
// @Summary Execute Import
// @Description Imports a foreign store, writing one batch per target collection. Resolutions may be a list, a "resolutions" object or a flat map of conflict ids.
// @Tags import
// @Accept json
// @Produce json
// @Param request body RequestBody true "Foreign store, filter and resolutions"
// @Success 200 {object} conflict.ExecutionResult "Execution Result"
// @Failure 400 {object} map[string]string "Invalid Filter"
// @Failure 502 {object} map[string]string "Store Failure"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /import/execute [post]
func (h *Handler) HandleExecute(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	body, filter, payload, err := ParseRequestBody(c.Body())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	res, err := h.service.Execute(c.UserContext(), ExecuteRequest{
		Source:      ForeignSource{Path: body.ForeignPath, Object: body.ForeignObject},
		Filter:      filter,
		Resolutions: payload,
	})
	if err != nil {
		l.Error("Import execution failed", zap.Error(err))
		return c.Status(errorStatus(err)).JSON(fiber.Map{"error": err.Error(), "result": res})
	}
	return c.JSON(res)
}

package integrity

import (
	"errors"

	"kb-bridge/core/logger"
	"kb-bridge/feature/imports"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for integrity checks.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the integrity routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/integrity")
	group.Get("/", h.HandleIntegrityCheck)
	group.Get("/schema", h.HandleSchemaCheck)
	group.Get("/structure", h.HandleStructureCheck)
	group.Get("/collections", h.HandleCollectionsCheck)
}

func foreignSource(c *fiber.Ctx) imports.ForeignSource {
	return imports.ForeignSource{Path: c.Query("foreign_path"), Object: c.Query("foreign_object")}
}

func checkError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	if errors.Is(err, ErrNotConfigured) {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// HandleIntegrityCheck triggers all integrity checks.
// @Summary Run All Integrity Checks
// @Description Performs every configured check (Schema, Structure, and Collections when a foreign store is given).
// @Tags integrity
// @Produce json
// @Param foreign_path query string false "Foreign store path"
// @Param foreign_object query string false "Foreign store object key"
// @Success 200 {object} map[string]interface{} "Combined Report"
// @Router /integrity [get]
func (h *Handler) HandleIntegrityCheck(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)
	l.Info("Triggering all integrity checks")
	return c.JSON(h.service.Report(c.UserContext(), foreignSource(c)))
}

// HandleSchemaCheck checks the versioned store schema.
// @Summary Check Versioned Schema
// @Description Checks that every document table has a key column and reports its content column.
// @Tags integrity
// @Produce json
// @Success 200 {object} checks.SchemaReport "Schema Report"
// @Failure 503 {object} map[string]string "Not Configured"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /integrity/schema [get]
func (h *Handler) HandleSchemaCheck(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	report, err := h.service.CheckSchema(c.UserContext())
	if err != nil {
		l.Error("Schema check failed", zap.Error(err))
		return checkError(c, err)
	}
	return c.JSON(report)
}

// HandleStructureCheck lists foreign store snapshots.
// @Summary Check Foreign Structure
// @Description Checks the storage bucket and lists the foreign store snapshots under the foreign prefix.
// @Tags integrity
// @Produce json
// @Success 200 {object} checks.StructureReport "Structure Report"
// @Failure 503 {object} map[string]string "Not Configured"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /integrity/structure [get]
func (h *Handler) HandleStructureCheck(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	report, err := h.service.CheckStructure(c.UserContext())
	if err != nil {
		l.Error("Structure check failed", zap.Error(err))
		return checkError(c, err)
	}
	if len(report.Snapshots) == 0 {
		l.Warn("No foreign snapshots found", zap.String("prefix", report.Prefix))
	}
	return c.JSON(report)
}

// HandleCollectionsCheck inspects foreign collection configurations.
// @Summary Check Collection Configurations
// @Description Opens a foreign store and reports collections with unreadable or untyped configurations.
// @Tags integrity
// @Produce json
// @Param foreign_path query string false "Foreign store path"
// @Param foreign_object query string false "Foreign store object key"
// @Success 200 {object} checks.CollectionReport "Collection Report"
// @Failure 400 {object} map[string]string "Missing Foreign Store"
// @Failure 500 {object} map[string]string "Internal Server Error"
// @Router /integrity/collections [get]
func (h *Handler) HandleCollectionsCheck(c *fiber.Ctx) error {
	l := logger.WithRayID(h.service.logger, c)

	src := foreignSource(c)
	if src.Path == "" && src.Object == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "foreign_path or foreign_object is required"})
	}
	report, err := h.service.CheckCollections(c.UserContext(), src)
	if err != nil {
		l.Error("Collection check failed", zap.Error(err))
		return checkError(c, err)
	}
	return c.JSON(report)
}

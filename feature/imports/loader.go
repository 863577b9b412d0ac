package imports

import (
	"kb-bridge/core/conflict"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Feature implements the loader.Feature interface.
type Feature struct {
	service *Service
	handler *Handler
}

// NewFeature creates a new Import feature.
func NewFeature(engine *conflict.Engine, opener ForeignOpener, local LocalStore, book Bookkeeper, parallelism int, logger *zap.Logger) *Feature {
	svc := NewService(engine, opener, local, book, parallelism, logger)
	return &Feature{service: svc, handler: NewHandler(svc)}
}

// Name returns the name of the feature.
func (f *Feature) Name() string {
	return "import"
}

// IsEnabled reports whether a local store is configured.
func (f *Feature) IsEnabled() bool {
	return f.service.local != nil && f.service.opener != nil
}

// Load registers the feature's routes.
func (f *Feature) Load(app fiber.Router) error {
	f.handler.RegisterRoutes(app)
	return nil
}

// Service returns the feature's service, used by the CLI.
func (f *Feature) Service() *Service {
	return f.service
}

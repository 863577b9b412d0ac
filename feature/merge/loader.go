package merge

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

// NewFeature creates a new Merge feature.
func NewFeature(engine *conflict.Engine, store conflict.VersionedStore, recorder ResolutionRecorder, author string, logger *zap.Logger) *Feature {
	svc := NewService(engine, store, recorder, author, logger)
	return &Feature{service: svc, handler: NewHandler(svc)}
}

// Name returns the name of the feature.
func (f *Feature) Name() string {
	return "merge"
}

// IsEnabled reports whether a store is configured.
func (f *Feature) IsEnabled() bool {
	return f.service.store != nil
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

package integrity

import (
	"context"
	"errors"
	"fmt"

	"kb-bridge/core/storage"
	"kb-bridge/feature/imports"
	"kb-bridge/feature/integrity/checks"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNotConfigured is returned by a check whose collaborator is missing.
var ErrNotConfigured = errors.New("not configured")

// Options wires the collaborators of the integrity checks. Any of them may be
// left unset, which disables the matching check.
type Options struct {
	// DB is the versioned store connection; nil for the git backend.
	DB             *gorm.DB
	ExcludedTables []string
	ContentFields  []string

	Client storage.Client
	Bucket string
	Prefix string

	Opener imports.ForeignOpener
	Logger *zap.Logger
}

// Service handles integrity checks.
type Service struct {
	opts   Options
	logger *zap.Logger
}

// NewService creates a new integrity service.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{opts: opts, logger: logger}
}

// CheckSchema inspects the document tables of the versioned store.
func (s *Service) CheckSchema(ctx context.Context) (*checks.SchemaReport, error) {
	if s.opts.DB == nil {
		return nil, fmt.Errorf("versioned schema: %w", ErrNotConfigured)
	}
	return checks.CheckVersionedSchema(s.opts.DB.WithContext(ctx), s.opts.ExcludedTables, s.opts.ContentFields)
}

// CheckStructure lists the foreign store snapshots in object storage.
func (s *Service) CheckStructure(ctx context.Context) (*checks.StructureReport, error) {
	if s.opts.Client == nil {
		return nil, fmt.Errorf("object storage: %w", ErrNotConfigured)
	}
	return checks.CheckForeignStructure(ctx, s.opts.Client, s.opts.Bucket, s.opts.Prefix)
}

// CheckCollections opens a foreign store and inspects its collection
// configurations.
func (s *Service) CheckCollections(ctx context.Context, src imports.ForeignSource) (*checks.CollectionReport, error) {
	if s.opts.Opener == nil {
		return nil, fmt.Errorf("foreign stores: %w", ErrNotConfigured)
	}
	store, err := s.opts.Opener.OpenForeign(ctx, src)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	inspector, ok := store.(checks.ConfigInspector)
	if !ok {
		return nil, fmt.Errorf("foreign store %s does not expose its collection configuration", store.Ref())
	}
	return checks.CheckCollectionConfigs(ctx, store.Ref(), inspector)
}

// Report runs every check. Failed checks are reported in place instead of
// failing the whole report. The collection check runs only when src names a
// foreign store.
func (s *Service) Report(ctx context.Context, src imports.ForeignSource) map[string]any {
	report := make(map[string]any)

	if schema, err := s.CheckSchema(ctx); err != nil {
		report["schema"] = statusOf(err)
	} else {
		report["schema"] = schema
	}

	if structure, err := s.CheckStructure(ctx); err != nil {
		report["structure"] = statusOf(err)
	} else {
		report["structure"] = structure
	}

	if src.Path != "" || src.Object != "" {
		if cols, err := s.CheckCollections(ctx, src); err != nil {
			report["collections"] = statusOf(err)
		} else {
			report["collections"] = cols
		}
	}
	return report
}

func statusOf(err error) map[string]any {
	if errors.Is(err, ErrNotConfigured) {
		return map[string]any{"status": "skipped", "reason": err.Error()}
	}
	return map[string]any{"status": "error", "error": err.Error()}
}

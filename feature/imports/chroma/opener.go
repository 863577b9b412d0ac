package chroma

import (
	"context"
	"errors"
	"os"

	"kb-bridge/feature/imports"

	"go.uber.org/zap"
)

// Opener opens foreign Chroma stores from disk or object storage.
type Opener struct {
	fetcher *Fetcher
	logger  *zap.Logger
}

var _ imports.ForeignOpener = (*Opener)(nil)

// NewOpener creates an opener. fetcher may be nil when object storage is not
// configured.
func NewOpener(fetcher *Fetcher, logger *zap.Logger) *Opener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Opener{fetcher: fetcher, logger: logger}
}

// OpenForeign implements imports.ForeignOpener.
func (o *Opener) OpenForeign(ctx context.Context, src imports.ForeignSource) (imports.ForeignStore, error) {
	if src.Path != "" {
		return Open(src.Path, o.logger)
	}
	if src.Object == "" {
		return nil, errors.New("no foreign store given")
	}
	if o.fetcher == nil {
		return nil, errors.New("object storage is not configured")
	}

	dir, err := os.MkdirTemp("", "kb-bridge-foreign-")
	if err != nil {
		return nil, err
	}
	local, err := o.fetcher.Fetch(ctx, src.Object, dir)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	store, err := Open(local, o.logger)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	store.ref = src.Object
	store.cleanup = func() error { return os.RemoveAll(dir) }
	return store, nil
}

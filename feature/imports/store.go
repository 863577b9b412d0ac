package imports

import (
	"context"

	"kb-bridge/core/conflict"
)

// Distance spaces understood by both stores.
const (
	SpaceL2     = "l2"
	SpaceCosine = "cosine"
	SpaceIP     = "ip"
)

// Document is one stored document. Embedding may be empty when the store does
// not keep vectors next to the text.
type Document struct {
	ID        string
	Content   string
	Metadata  map[string]any
	Embedding []float32
}

// Snapshot converts a document into the engine's value type.
func (d Document) Snapshot() conflict.Snapshot {
	return conflict.Present(d.Content, d.Metadata)
}

// CollectionConfig is the index configuration of a collection.
type CollectionConfig struct {
	// Space is the distance metric; empty means unknown.
	Space string
	// Dimension is the embedding width; 0 means unknown.
	Dimension int
	// Legacy is set for foreign configurations written without a type tag.
	Legacy bool
	// Invalid holds the parse error of an unreadable configuration.
	Invalid string
}

// Compatible reports why a foreign configuration cannot be imported into a
// local one. An empty reason means it can.
func (c CollectionConfig) Compatible(local CollectionConfig) string {
	switch {
	case c.Invalid != "":
		return "foreign configuration is unreadable: " + c.Invalid
	case c.Space != "" && local.Space != "" && c.Space != local.Space:
		return "distance space " + c.Space + " does not match local " + local.Space
	case c.Dimension > 0 && local.Dimension > 0 && c.Dimension != local.Dimension:
		return "embedding dimension differs from the local collection"
	}
	return ""
}

// Collection describes one collection of a store.
type Collection struct {
	Name   string
	Config CollectionConfig
	Count  int
}

// ForeignStore is a read-only foreign vector store.
type ForeignStore interface {
	// Ref names the store for results, such as the path it was opened from.
	Ref() string
	ListCollections(ctx context.Context) ([]Collection, error)
	Documents(ctx context.Context, collection string) ([]Document, error)
	Close() error
}

// ForeignSource locates a foreign store: a local path or an object key.
type ForeignSource struct {
	Path   string `json:"foreign_path,omitempty" yaml:"foreign_path,omitempty"`
	Object string `json:"foreign_object,omitempty" yaml:"foreign_object,omitempty"`
}

// ForeignOpener opens foreign stores.
type ForeignOpener interface {
	OpenForeign(ctx context.Context, src ForeignSource) (ForeignStore, error)
}

// LocalStore is the local semantic store documents are imported into.
type LocalStore interface {
	// Ref names the store for results.
	Ref() string
	// Collection returns a local collection; ok is false when it does not exist.
	Collection(ctx context.Context, name string) (c Collection, ok bool, err error)
	// Documents returns the documents of ids that exist in the collection.
	Documents(ctx context.Context, collection string, ids []string) (map[string]Document, error)
	CreateCollection(ctx context.Context, c Collection) error
	// WriteBatch inserts or replaces every document in one call.
	WriteBatch(ctx context.Context, collection string, docs []Document) error
}

// Bookkeeper is the local record of deletions and earlier resolutions.
type Bookkeeper interface {
	DeletedIDs(ctx context.Context, collection string, ids []string) (map[string]bool, error)
	RecordedResolutions(ctx context.Context, conflictIDs []string) (map[string]conflict.RecordedResolution, error)
	RecordResolutions(ctx context.Context, executionID string, conflicts []conflict.Conflict, outcomes []conflict.ResolutionOutcome) error
}

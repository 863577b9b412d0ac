package conflict

import "context"

// VersionedStore is the read side of a branch-capable document store.
// Implementations live next to the backend they wrap (Dolt, git).
type VersionedStore interface {
	// Name returns a stable name for the store, used to scope cached snapshots.
	Name() string

	// MergeBase returns the common ancestor commit of two refs.
	MergeBase(ctx context.Context, ours, theirs string) (string, error)

	// ChangedTables lists the tables that differ between two refs.
	ChangedTables(ctx context.Context, from, to string) ([]string, error)

	// ChangedDocuments returns the documents of one table that differ between
	// two refs, keyed by document id.
	ChangedDocuments(ctx context.Context, table, from, to string) (map[string]ChangeType, error)

	// Snapshot reads one document as of a ref. A missing document yields an
	// Absent snapshot and a nil error.
	Snapshot(ctx context.Context, table, documentID, ref string) (Snapshot, error)
}

// RefResolver is implemented by stores that can pin a mutable ref (a branch
// name) to an immutable commit. Snapshots are only cached for pinned refs.
type RefResolver interface {
	ResolveRef(ctx context.Context, ref string) (string, error)
}

// ConflictSummarizer is implemented by stores that compute merge conflicts
// natively. Rows are parsed with ParseRawConflictRow.
type ConflictSummarizer interface {
	// ConflictTables lists the tables that would conflict if theirs was merged into ours.
	ConflictTables(ctx context.Context, ours, theirs string) ([]string, error)

	// ConflictRows returns the raw conflict rows of one table.
	ConflictRows(ctx context.Context, table, ours, theirs string) ([]map[string]any, error)
}

// DocumentWrite is one row-level change applied during write-back.
type DocumentWrite struct {
	Table      string
	DocumentID string
	Content    *string
	Metadata   map[string]any
	Delete     bool
}

// MergeApply describes a merge to record in the versioned store.
type MergeApply struct {
	SourceRef string
	TargetRef string
	MergeBase string
	Message   string
	Author    string
	Writes    []DocumentWrite
}

// MergeWriter records a merge of theirs into ours with the resolved writes
// applied on top, as one commit.
type MergeWriter interface {
	ApplyMerge(ctx context.Context, req MergeApply) (commitRef string, err error)
}

// DeletionChecker reports documents deleted on purpose from the local store.
// The engine only reads from it.
type DeletionChecker interface {
	IsLocallyDeleted(ctx context.Context, documentID, collection string) (bool, error)
}

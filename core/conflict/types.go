package conflict

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"go.uber.org/zap"
)

// Scenario identifies the workflow that produced a conflict.
type Scenario string

const (
	// ScenarioMerge is a merge between two branches of the versioned store.
	ScenarioMerge Scenario = "merge"
	// ScenarioImport is an import from a foreign semantic store into the local one.
	ScenarioImport Scenario = "import"
)

// ChangeType is the kind of change a diff reports for one document.
type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

// ConflictType classifies a disagreement between two divergent copies.
type ConflictType string

const (
	// TypeContentModification means the primary content differs between both sides.
	TypeContentModification ConflictType = "content_modification"
	// TypeMetadataConflict means both sides carry identical content but different metadata.
	TypeMetadataConflict ConflictType = "metadata_conflict"
	// TypeAddAdd means both sides added the same identifier with no ancestor.
	TypeAddAdd ConflictType = "add_add"
	// TypeDeleteModify means one side deleted the document while the other changed it.
	TypeDeleteModify ConflictType = "delete_modify"
	// TypeCollectionMismatch means an import target exists locally with an incompatible structure.
	TypeCollectionMismatch ConflictType = "collection_mismatch"
	// TypeIDCollision means two source collections carry the same identifier for one target.
	TypeIDCollision ConflictType = "id_collision"
)

// ResolutionType is a resolution strategy tag.
//
// Ours is always the target side (the branch being merged into, or the local
// store) and theirs the source side (the branch being merged, or the foreign
// store). The import vocabulary names the same roles source/target.
type ResolutionType string

const (
	ResolutionKeepOurs   ResolutionType = "keep_ours"
	ResolutionKeepTheirs ResolutionType = "keep_theirs"
	ResolutionKeepSource ResolutionType = "keep_source"
	ResolutionKeepTarget ResolutionType = "keep_target"
	ResolutionFieldMerge ResolutionType = "field_merge"
	ResolutionMerge      ResolutionType = "merge"
	ResolutionCustom     ResolutionType = "custom"
	ResolutionSkip       ResolutionType = "skip"
	ResolutionAuto       ResolutionType = "auto_resolve"
)

// OutcomeAction is what a resolved conflict asks the write-back step to do.
type OutcomeAction string

const (
	ActionWrite   OutcomeAction = "write"
	ActionDelete  OutcomeAction = "delete"
	ActionSkip    OutcomeAction = "skip"
	ActionProceed OutcomeAction = "proceed"
)

// ContentField is the field name under which the primary content takes part in
// field-level comparisons.
const ContentField = "document"

// Snapshot is the state of one document at one point in time.
type Snapshot struct {
	// Exists is false when the document did not exist at that point.
	Exists bool `json:"exists"`

	// Content is the primary content. Nil while Exists is true means the raw
	// content was not captured and only field data is known.
	Content *string `json:"content,omitempty"`

	// Metadata holds every other field of the document.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Hash is the sha256 of Content, empty when Content is nil.
	Hash string `json:"hash,omitempty"`
}

// Absent returns the snapshot of a document that does not exist.
func Absent() Snapshot {
	return Snapshot{}
}

// Present returns the snapshot of an existing document with known content.
func Present(content string, metadata map[string]any) Snapshot {
	c := content
	return Snapshot{
		Exists:   true,
		Content:  &c,
		Metadata: metadata,
		Hash:     ContentHash(content),
	}
}

// FieldsOnly returns the snapshot of an existing document whose content was not
// captured separately from its fields.
func FieldsOnly(fields map[string]any) Snapshot {
	return Snapshot{Exists: true, Metadata: fields}
}

// HasContent reports whether the snapshot exists and carries raw content.
func (s Snapshot) HasContent() bool {
	return s.Exists && s.Content != nil
}

// ContentString returns the content or an empty string.
func (s Snapshot) ContentString() string {
	if s.Content == nil {
		return ""
	}
	return *s.Content
}

// ContentHash returns the hex sha256 of content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Candidate is a document present in some state in both divergent copies and
// changed relative to the ancestor by at least one side.
type Candidate struct {
	Table            string
	SourceCollection string
	TargetCollection string
	DocumentID       string
	Base             Snapshot
	Ours             Snapshot
	Theirs           Snapshot
}

// SourceVersion is one foreign version of a colliding document.
type SourceVersion struct {
	Collection string   `json:"collection"`
	Snapshot   Snapshot `json:"snapshot"`
}

// FieldDiff describes one field that differs between the three snapshots.
type FieldDiff struct {
	Field         string `json:"field"`
	Base          any    `json:"base,omitempty"`
	Ours          any    `json:"ours,omitempty"`
	Theirs        any    `json:"theirs,omitempty"`
	OursChanged   bool   `json:"ours_changed"`
	TheirsChanged bool   `json:"theirs_changed"`
}

// Conflict is a classified candidate with its deterministic identity.
type Conflict struct {
	// ConflictID is stable across calls for the same defining attributes.
	ConflictID string   `json:"conflict_id"`
	Scenario   Scenario `json:"scenario"`

	Type ConflictType `json:"type"`

	// Table is the versioned table (merge only).
	Table string `json:"table,omitempty"`

	// Collection is the logical collection read from the document payload. It
	// is informational and never part of the identity.
	Collection string `json:"collection,omitempty"`

	SourceCollection string `json:"source_collection,omitempty"`
	TargetCollection string `json:"target_collection,omitempty"`

	DocumentID string `json:"document_id"`

	AutoResolvable      bool             `json:"auto_resolvable"`
	SuggestedResolution ResolutionType   `json:"suggested_resolution"`
	ResolutionOptions   []ResolutionType `json:"resolution_options"`

	Base   Snapshot `json:"base"`
	Ours   Snapshot `json:"ours"`
	Theirs Snapshot `json:"theirs"`

	// Sources lists every foreign version of an id collision, sorted by collection.
	Sources []SourceVersion `json:"sources,omitempty"`

	FieldDiffs []FieldDiff `json:"field_diffs,omitempty"`
	Warnings   []string    `json:"warnings,omitempty"`

	// PreviouslyResolved marks an import conflict already settled by an earlier
	// execution whose source content has not changed since.
	PreviouslyResolved bool           `json:"previously_resolved,omitempty"`
	RecordedResolution ResolutionType `json:"recorded_resolution,omitempty"`
}

// ResolutionRequest asks for one conflict to be resolved with a strategy.
type ResolutionRequest struct {
	ConflictID     string         `json:"conflict_id" yaml:"conflict_id"`
	ResolutionType ResolutionType `json:"resolution_type" yaml:"resolution_type"`
	CustomContent  *string        `json:"custom_content,omitempty" yaml:"custom_content,omitempty"`
	CustomMetadata map[string]any `json:"custom_metadata,omitempty" yaml:"custom_metadata,omitempty"`
}

// ResolutionOutcome records how a single conflict was resolved.
type ResolutionOutcome struct {
	ConflictID string         `json:"conflict_id"`
	DocumentID string         `json:"document_id"`
	Collection string         `json:"collection,omitempty"`
	Type       ConflictType   `json:"type,omitempty"`
	Resolution ResolutionType `json:"resolution,omitempty"`
	Action     OutcomeAction  `json:"action,omitempty"`
	Success    bool           `json:"success"`

	Content  *string        `json:"content,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`

	// SourceCollection names the foreign collection whose version won (imports).
	SourceCollection string `json:"source_collection,omitempty"`

	// Confidence is set for field merges (0-100).
	Confidence int `json:"confidence,omitempty"`

	Error     string    `json:"error,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Warnings  []string  `json:"warnings,omitempty"`
}

// BatchOptions controls how unlisted conflicts are resolved.
type BatchOptions struct {
	// AutoResolveRemaining resolves unlisted auto-resolvable conflicts with their suggestion.
	AutoResolveRemaining bool

	// DefaultStrategy applies to every unlisted conflict not handled above.
	DefaultStrategy ResolutionType
}

// BatchResolutionResult is the per-conflict result of a resolution batch.
type BatchResolutionResult struct {
	Outcomes  []ResolutionOutcome `json:"outcomes"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
}

// ChangesPreview counts the non-conflicting effects of applying a request.
type ChangesPreview struct {
	Adds               int `json:"adds"`
	Updates            int `json:"updates"`
	Deletes            int `json:"deletes"`
	Skips              int `json:"skips"`
	CollectionsCreated int `json:"collections_created"`
	// Pending counts imports held by an unresolved collection mismatch.
	Pending int `json:"pending,omitempty"`
}

// PreviewResult is returned by merge and import previews.
type PreviewResult struct {
	Success   bool     `json:"success"`
	Scenario  Scenario `json:"scenario"`
	SourceRef string   `json:"source_ref"`
	TargetRef string   `json:"target_ref"`
	MergeBase string   `json:"merge_base,omitempty"`

	// Verified is false when the analysis could not be grounded (e.g. no merge
	// base). Callers must treat an empty unverified result with suspicion.
	Verified bool `json:"verified"`

	Conflicts               []Conflict `json:"conflicts"`
	TotalConflictsDetected  int        `json:"total_conflicts_detected"`
	AutoResolvableCount     int        `json:"auto_resolvable_count"`
	ManualCount             int        `json:"manual_count"`
	PreviouslyResolvedCount int        `json:"previously_resolved_count,omitempty"`

	CanAutoMerge  *bool `json:"can_auto_merge,omitempty"`
	CanAutoImport *bool `json:"can_auto_import,omitempty"`

	RecommendedAction   string         `json:"recommended_action"`
	Message             string         `json:"message"`
	ChangesPreview      ChangesPreview `json:"changes_preview"`
	AffectedCollections []string       `json:"affected_collections,omitempty"`
	Warnings            []string       `json:"warnings,omitempty"`
}

// ExecutionResult is returned by merge and import executions.
type ExecutionResult struct {
	Success     bool     `json:"success"`
	Scenario    Scenario `json:"scenario"`
	ExecutionID string   `json:"execution_id,omitempty"`
	SourceRef   string   `json:"source_ref"`
	TargetRef   string   `json:"target_ref"`

	DocumentsImported  int `json:"documents_imported"`
	DocumentsUpdated   int `json:"documents_updated"`
	DocumentsDeleted   int `json:"documents_deleted"`
	DocumentsSkipped   int `json:"documents_skipped"`
	CollectionsCreated int `json:"collections_created"`

	ConflictsResolved   int                    `json:"conflicts_resolved"`
	ConflictsFailed     int                    `json:"conflicts_failed"`
	ResolutionBreakdown map[ResolutionType]int `json:"resolution_breakdown"`

	// CommitRef is the commit that recorded a merge, when one was created.
	CommitRef string `json:"commit_ref,omitempty"`

	Outcomes []ResolutionOutcome `json:"outcomes"`
	Message  string              `json:"message"`
	Warnings []string            `json:"warnings,omitempty"`
}

// EngineConfig carries everything an analysis needs. It replaces any ambient
// or global configuration and is passed explicitly to every call.
type EngineConfig struct {
	// ExcludedTables are wildcard patterns of internal tables never analyzed.
	ExcludedTables []string

	// ContentFields are the field names, in priority order, that hold the
	// primary content in raw rows.
	ContentFields []string

	// Parallelism bounds concurrent per-table diffs.
	Parallelism int

	// PreferNativeSummary consults a ConflictSummarizer before diffing.
	PreferNativeSummary bool

	// CallTimeout bounds each collaborator call. Zero disables the bound.
	CallTimeout time.Duration

	// Cache memoizes snapshots fetched at resolved (immutable) refs.
	Cache *SnapshotCache

	Logger *zap.Logger
}

// DefaultContentFields are the content column names recognized out of the box.
var DefaultContentFields = []string{"content", "document", "document_text", "text"}

// DefaultExcludedTables are infrastructure tables that are never user-facing.
var DefaultExcludedTables = []string{"dolt_*", "sync_*", "kb_*"}

func (c EngineConfig) withDefaults() EngineConfig {
	if len(c.ContentFields) == 0 {
		c.ContentFields = DefaultContentFields
	}
	if c.ExcludedTables == nil {
		c.ExcludedTables = DefaultExcludedTables
	}
	if c.Parallelism <= 0 {
		c.Parallelism = 1
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

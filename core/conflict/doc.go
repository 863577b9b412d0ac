// Package conflict provides the conflict detection and resolution engine shared by
// branch merges of the versioned store and imports from a foreign semantic store.
//
// Both workflows compare a common ancestor (or, for imports, the absence of one)
// against two divergent copies of the same logical document and decide,
// deterministically, how to reconcile them.
//
// # Architecture
//
// The engine is built from small pure pieces wired together by the Engine:
//
// 1. Diff: for a merge, computes the changed document sets between the merge base
//    and each side per table, intersects them and fetches the three snapshots of
//    every candidate through a VersionedStore collaborator.
//
// 2. Classifier: assigns each candidate a ConflictType and decides whether it is
//    auto-resolvable. Classification never fails; on doubt it answers "manual".
//
// 3. Field merge: proposes a merged field set with a confidence score for
//    conflicts where a field-level reconciliation is allowed.
//
// 4. Identity: derives a stable conflict id from the conflict's defining
//    attributes so a preview call and a later execute call agree without any
//    shared state.
//
// 5. Resolution: applies explicit and default strategies to every conflict of
//    an analysis and reports per-conflict success or failure.
//
// # Collaborators
//
// The engine owns no storage. VersionedStore, ConflictSummarizer, MergeWriter
// and DeletionChecker are narrow interfaces implemented by feature packages
// (feature/merge/dolt, feature/merge/gitstore, core/bookkeeping). Optional
// capabilities are detected with type assertions.
//
// # Usage Example
//
//	engine := conflict.NewEngine(conflict.EngineConfig{Parallelism: 4})
//	analysis, err := engine.AnalyzeMerge(ctx, store, "feature", "main")
//	preview := analysis.Preview(conflict.PreviewOptions{IncludeAutoResolvable: true})
//
//	batch := engine.ApplyResolutions(analysis.Conflicts, requests, conflict.BatchOptions{
//	    AutoResolveRemaining: true,
//	    DefaultStrategy:      conflict.ResolutionSkip,
//	})
package conflict

package conflict

import (
	"fmt"
	"sort"
)

// Recommended actions reported by previews.
const (
	ActionRecommendMerge       = "merge"
	ActionRecommendAutoMerge   = "auto_merge"
	ActionRecommendImport      = "import"
	ActionRecommendAutoImport  = "auto_import"
	ActionRecommendResolve     = "resolve_conflicts"
	ActionRecommendVerifyBase  = "verify_merge_base"
	ActionRecommendNothingToDo = "none"
)

// PreviewOptions controls what a preview lists.
type PreviewOptions struct {
	// IncludeAutoResolvable lists auto-resolvable conflicts too. They are
	// always counted.
	IncludeAutoResolvable bool

	// Detailed keeps per-field diffs on listed conflicts.
	Detailed bool
}

func boolPtr(b bool) *bool { return &b }

type conflictCounts struct {
	total, auto, manual, previously int
}

func countConflicts(conflicts []Conflict) conflictCounts {
	var n conflictCounts
	for _, c := range conflicts {
		if c.PreviouslyResolved {
			n.previously++
			continue
		}
		n.total++
		if c.AutoResolvable {
			n.auto++
		} else {
			n.manual++
		}
	}
	return n
}

func listConflicts(conflicts []Conflict, opts PreviewOptions) []Conflict {
	out := make([]Conflict, 0, len(conflicts))
	for _, c := range conflicts {
		if c.PreviouslyResolved {
			continue
		}
		if c.AutoResolvable && !opts.IncludeAutoResolvable {
			continue
		}
		if !opts.Detailed {
			c.FieldDiffs = nil
		}
		out = append(out, c)
	}
	return out
}

// Preview summarizes a merge analysis for display.
func (a *MergeAnalysis) Preview(opts PreviewOptions) PreviewResult {
	n := countConflicts(a.Conflicts)
	res := PreviewResult{
		Success:                true,
		Scenario:               ScenarioMerge,
		SourceRef:              a.SourceRef,
		TargetRef:              a.TargetRef,
		MergeBase:              a.MergeBase,
		Verified:               a.Verified,
		Conflicts:              listConflicts(a.Conflicts, opts),
		TotalConflictsDetected: n.total,
		AutoResolvableCount:    n.auto,
		ManualCount:            n.manual,
		CanAutoMerge:           boolPtr(a.Verified && n.manual == 0),
		ChangesPreview:         a.Changes,
		Warnings:               a.Warnings,
	}
	res.AffectedCollections = affectedTables(a)

	switch {
	case !a.Verified:
		res.RecommendedAction = ActionRecommendVerifyBase
		res.Message = fmt.Sprintf("Could not verify a merge base for %s and %s; conflicts were not analyzed", a.SourceRef, a.TargetRef)
	case n.total == 0:
		res.RecommendedAction = ActionRecommendMerge
		res.Message = fmt.Sprintf("No conflicts merging %s into %s", a.SourceRef, a.TargetRef)
	case n.manual == 0:
		res.RecommendedAction = ActionRecommendAutoMerge
		res.Message = fmt.Sprintf("%d conflicts, all auto-resolvable", n.total)
	default:
		res.RecommendedAction = ActionRecommendResolve
		res.Message = fmt.Sprintf("%d conflicts, %d need manual resolution", n.total, n.manual)
	}
	return res
}

func affectedTables(a *MergeAnalysis) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, c := range a.Conflicts {
		if _, ok := seen[c.Table]; !ok {
			seen[c.Table] = struct{}{}
			out = append(out, c.Table)
		}
	}
	sort.Strings(out)
	return out
}

// Preview summarizes an import analysis for display.
func (a *ImportAnalysis) Preview(opts PreviewOptions) PreviewResult {
	n := countConflicts(a.Conflicts)
	res := PreviewResult{
		Success:                 true,
		Scenario:                ScenarioImport,
		SourceRef:               a.SourceRef,
		TargetRef:               a.TargetRef,
		Verified:                true,
		Conflicts:               listConflicts(a.Conflicts, opts),
		TotalConflictsDetected:  n.total,
		AutoResolvableCount:     n.auto,
		ManualCount:             n.manual,
		PreviouslyResolvedCount: n.previously,
		CanAutoImport:           boolPtr(n.manual == 0),
		ChangesPreview:          a.Changes,
		AffectedCollections:     a.AffectedCollections,
		Warnings:                a.Warnings,
	}
	switch {
	case n.total == 0 && a.Changes.Adds == 0:
		res.RecommendedAction = ActionRecommendNothingToDo
		res.Message = "Nothing to import"
	case n.total == 0:
		res.RecommendedAction = ActionRecommendImport
		res.Message = fmt.Sprintf("%d documents to import into %d collections, no conflicts", a.Changes.Adds, len(a.AffectedCollections))
	case n.manual == 0:
		res.RecommendedAction = ActionRecommendAutoImport
		res.Message = fmt.Sprintf("%d conflicts, all auto-resolvable", n.total)
	default:
		res.RecommendedAction = ActionRecommendResolve
		res.Message = fmt.Sprintf("%d conflicts, %d need manual resolution", n.total, n.manual)
	}
	return res
}

// NewExecutionResult fills the conflict counters of an execution from a batch.
func NewExecutionResult(s Scenario, sourceRef, targetRef string, batch BatchResolutionResult) ExecutionResult {
	res := ExecutionResult{
		Scenario:            s,
		SourceRef:           sourceRef,
		TargetRef:           targetRef,
		ConflictsResolved:   batch.Succeeded,
		ConflictsFailed:     batch.Failed,
		ResolutionBreakdown: make(map[ResolutionType]int),
		Outcomes:            batch.Outcomes,
	}
	if res.Outcomes == nil {
		res.Outcomes = []ResolutionOutcome{}
	}
	for _, o := range batch.Outcomes {
		if o.Success {
			res.ResolutionBreakdown[o.Resolution]++
		}
	}
	return res
}

// PlanMergeWrites turns a fully successful batch into row writes. Skipped
// conflicts keep the target version.
func PlanMergeWrites(a *MergeAnalysis, batch BatchResolutionResult) ([]DocumentWrite, ChangesPreview) {
	byID := make(map[string]Conflict, len(a.Conflicts))
	for _, c := range a.Conflicts {
		byID[c.ConflictID] = c
	}
	var writes []DocumentWrite
	var counts ChangesPreview
	for _, o := range batch.Outcomes {
		c, ok := byID[o.ConflictID]
		if !ok || !o.Success {
			continue
		}
		w := DocumentWrite{Table: c.Table, DocumentID: c.DocumentID}
		switch o.Action {
		case ActionWrite:
			w.Content, w.Metadata = o.Content, o.Metadata
			if c.Ours.Exists {
				counts.Updates++
			} else {
				counts.Adds++
			}
		case ActionDelete:
			w.Delete = true
			counts.Deletes++
		default:
			counts.Skips++
			if !c.Ours.Exists {
				w.Delete = true
			} else {
				w.Content, w.Metadata = c.Ours.Content, c.Ours.Metadata
			}
		}
		writes = append(writes, w)
	}
	return writes, counts
}

// ImportedDocument is one document to write into a local collection.
type ImportedDocument struct {
	ID               string
	SourceCollection string
	Content          string
	Metadata         map[string]any
	Update           bool
}

// TargetWrite groups every write of one local collection.
type TargetWrite struct {
	Target    string
	Create    bool
	Documents []ImportedDocument
}

// ImportWritePlan is the write-back of an import, one batch per target.
type ImportWritePlan struct {
	Targets  []TargetWrite
	Imported int
	Updated  int
	Skipped  int
	Warnings []string
}

// PlanImportWrites combines non-conflicting additions with resolved conflicts
// into one write batch per target. A collection mismatch that was skipped or
// failed drops every document of its source collection. An id collision kept
// on the source side writes the first version whose source is not dropped.
func PlanImportWrites(a *ImportAnalysis, batch BatchResolutionResult) ImportWritePlan {
	outcomes := make(map[string]ResolutionOutcome, len(batch.Outcomes))
	for _, o := range batch.Outcomes {
		outcomes[o.ConflictID] = o
	}
	conflicts := make(map[string]Conflict, len(a.Conflicts))
	for _, c := range a.Conflicts {
		conflicts[c.ConflictID] = c
	}

	var plan ImportWritePlan
	for _, tp := range a.Plans {
		blocked := make(map[string]bool)
		for _, id := range tp.ConflictIDs {
			c := conflicts[id]
			if c.Type != TypeCollectionMismatch {
				continue
			}
			if o, ok := outcomes[id]; !ok || !o.Success || o.Action != ActionProceed {
				blocked[c.SourceCollection] = true
			}
		}

		tw := TargetWrite{Target: tp.Target, Create: tp.Create}
		for _, doc := range tp.Adds {
			if blocked[doc.SourceCollection] {
				plan.Skipped++
				continue
			}
			tw.Documents = append(tw.Documents, ImportedDocument{
				ID:               doc.DocumentID,
				SourceCollection: doc.SourceCollection,
				Content:          doc.Snapshot.ContentString(),
				Metadata:         doc.Snapshot.Metadata,
			})
			plan.Imported++
		}
		plan.Skipped += len(tp.Unchanged)

		for _, id := range tp.ConflictIDs {
			c := conflicts[id]
			if c.Type == TypeCollectionMismatch {
				continue
			}
			o, ok := outcomes[id]
			if !ok || !o.Success || o.Action != ActionWrite || canonical(o.Resolution) == ResolutionKeepOurs {
				plan.Skipped++
				continue
			}
			doc := ImportedDocument{
				ID:               c.DocumentID,
				SourceCollection: o.SourceCollection,
				Content:          derefString(o.Content),
				Metadata:         o.Metadata,
				Update:           c.Ours.Exists,
			}
			if doc.SourceCollection == "" {
				doc.SourceCollection = c.SourceCollection
			}
			if c.Type == TypeIDCollision {
				if !collisionDocument(c, o, blocked, &doc) {
					plan.Skipped++
					continue
				}
				if doc.SourceCollection != "" && doc.SourceCollection != o.SourceCollection {
					plan.Warnings = append(plan.Warnings, fmt.Sprintf(
						"document %s in %s taken from %s: %s is skipped by its collection mismatch",
						c.DocumentID, tp.Target, doc.SourceCollection, o.SourceCollection))
				}
			} else if blocked[doc.SourceCollection] {
				plan.Skipped++
				continue
			}
			tw.Documents = append(tw.Documents, doc)
			if c.Ours.Exists {
				plan.Updated++
			} else {
				plan.Imported++
			}
		}

		if len(tw.Documents) == 0 {
			continue
		}
		sort.Slice(tw.Documents, func(i, j int) bool { return tw.Documents[i].ID < tw.Documents[j].ID })
		plan.Targets = append(plan.Targets, tw)
	}
	return plan
}

// collisionDocument fills doc for a resolved id collision. Custom content
// belongs to no source. A kept source version is replaced by the next one
// when its collection is blocked; false means every version is blocked.
func collisionDocument(c Conflict, o ResolutionOutcome, blocked map[string]bool, doc *ImportedDocument) bool {
	if canonical(o.Resolution) != ResolutionKeepTheirs {
		doc.SourceCollection = ""
		return true
	}
	for _, v := range c.Sources {
		if blocked[v.Collection] {
			continue
		}
		doc.SourceCollection = v.Collection
		doc.Content = v.Snapshot.ContentString()
		doc.Metadata = v.Snapshot.Metadata
		return true
	}
	return false
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

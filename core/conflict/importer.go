package conflict

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// ForeignDocument is one document read from a foreign source collection.
type ForeignDocument struct {
	SourceCollection string
	DocumentID       string
	Snapshot         Snapshot
}

// CollectionMismatch records why a source collection does not fit its target.
type CollectionMismatch struct {
	SourceCollection string
	Reason           string
}

// RecordedResolution is a decision persisted by an earlier import.
type RecordedResolution struct {
	Resolution ResolutionType
	SourceHash string
}

// TargetBatch is everything known about one local target collection before
// an import: the pooled foreign documents of every source mapped to it and the
// local state of the same identifiers.
type TargetBatch struct {
	Target       string
	TargetExists bool

	Foreign []ForeignDocument

	// Local holds the local snapshots of the foreign ids that exist locally.
	Local map[string]Snapshot

	// LocallyDeleted holds the foreign ids deleted on purpose from the target.
	LocallyDeleted map[string]bool

	Mismatches []CollectionMismatch

	// Recorded maps conflict ids to decisions of earlier imports.
	Recorded map[string]RecordedResolution

	Warnings []string
}

// TargetPlan is the analyzed state of one target collection.
type TargetPlan struct {
	Target string
	Create bool

	// Adds are foreign documents that do not exist locally and are not in conflict.
	Adds []ForeignDocument

	// Unchanged lists ids identical on both sides.
	Unchanged []string

	ConflictIDs []string
}

// ImportAnalysis is the result of analyzing an import.
type ImportAnalysis struct {
	SourceRef string
	TargetRef string

	Conflicts []Conflict
	Plans     []TargetPlan
	Changes   ChangesPreview

	AffectedCollections []string
	Warnings            []string
}

// AnalyzeImport classifies every foreign document of every target batch.
// Documents from several sources sharing an id in one target are flagged as
// a single id collision. Batches are analyzed in target order.
func (e *Engine) AnalyzeImport(ctx context.Context, sourceRef, targetRef string, batches []TargetBatch) (*ImportAnalysis, error) {
	a := &ImportAnalysis{SourceRef: sourceRef, TargetRef: targetRef}
	sorted := append([]TargetBatch(nil), batches...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Target < sorted[j].Target })

	for _, batch := range sorted {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		plan, conflicts := e.analyzeTarget(batch)
		a.Plans = append(a.Plans, plan)
		a.Conflicts = append(a.Conflicts, conflicts...)
		a.Warnings = append(a.Warnings, batch.Warnings...)

		// Adds from a mismatched source only land if the mismatch is kept.
		held := make(map[string]int)
		for _, m := range batch.Mismatches {
			held[m.SourceCollection] = 0
		}
		adds := 0
		for _, doc := range plan.Adds {
			if _, ok := held[doc.SourceCollection]; ok {
				held[doc.SourceCollection]++
				continue
			}
			adds++
		}
		for _, m := range batch.Mismatches {
			if n := held[m.SourceCollection]; n > 0 {
				a.Changes.Pending += n
				a.Warnings = append(a.Warnings, fmt.Sprintf(
					"%d documents from %s wait on its collection mismatch with %s", n, m.SourceCollection, batch.Target))
				held[m.SourceCollection] = 0
			}
		}

		a.Changes.Adds += adds
		a.Changes.Skips += len(plan.Unchanged)
		for _, c := range conflicts {
			if c.Ours.Exists {
				a.Changes.Updates++
			}
		}
		if plan.Create && (adds > 0 || len(conflicts) > 0) {
			a.Changes.CollectionsCreated++
		}
		if adds > 0 || len(conflicts) > 0 {
			a.AffectedCollections = append(a.AffectedCollections, batch.Target)
		}
	}

	e.log.Info("Import analysis complete",
		zap.String("source", sourceRef),
		zap.Int("targets", len(a.Plans)),
		zap.Int("conflicts", len(a.Conflicts)),
		zap.Int("adds", a.Changes.Adds),
	)
	return a, nil
}

func (e *Engine) analyzeTarget(batch TargetBatch) (TargetPlan, []Conflict) {
	fields := e.cfg.ContentFields
	plan := TargetPlan{Target: batch.Target, Create: !batch.TargetExists}
	var conflicts []Conflict

	for _, m := range batch.Mismatches {
		c := Conflict{
			Scenario:            ScenarioImport,
			Type:                TypeCollectionMismatch,
			SourceCollection:    m.SourceCollection,
			TargetCollection:    batch.Target,
			SuggestedResolution: ResolutionSkip,
			ResolutionOptions:   OptionsFor(ScenarioImport, TypeCollectionMismatch),
			Warnings:            []string{m.Reason},
		}
		c.ConflictID = c.computeID()
		conflicts = append(conflicts, c)
	}

	byID := make(map[string][]ForeignDocument)
	for _, doc := range batch.Foreign {
		dup := false
		for _, existing := range byID[doc.DocumentID] {
			if existing.SourceCollection == doc.SourceCollection {
				dup = true
				break
			}
		}
		if !dup {
			byID[doc.DocumentID] = append(byID[doc.DocumentID], doc)
		}
	}
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		versions := byID[id]
		sort.Slice(versions, func(i, j int) bool { return versions[i].SourceCollection < versions[j].SourceCollection })
		local, hasLocal := batch.Local[id]
		if !hasLocal {
			local = Absent()
		}

		if len(versions) > 1 {
			conflicts = append(conflicts, e.collision(batch.Target, id, local, versions))
			continue
		}

		doc := versions[0]
		t, isConflict := classifyImport(local, doc.Snapshot, batch.LocallyDeleted[id], fields)
		if !isConflict {
			if local.Exists {
				plan.Unchanged = append(plan.Unchanged, id)
			} else {
				plan.Adds = append(plan.Adds, doc)
			}
			continue
		}

		auto := IsAutoResolvable(t, Absent(), local, doc.Snapshot, fields)
		c := Conflict{
			Scenario:            ScenarioImport,
			Type:                t,
			SourceCollection:    doc.SourceCollection,
			TargetCollection:    batch.Target,
			Collection:          batch.Target,
			DocumentID:          id,
			AutoResolvable:      auto,
			SuggestedResolution: suggestImport(t, auto),
			ResolutionOptions:   OptionsFor(ScenarioImport, t),
			Base:                Absent(),
			Ours:                local,
			Theirs:              doc.Snapshot,
			FieldDiffs:          DiffFields(Absent(), local, doc.Snapshot, fields),
		}
		if t == TypeDeleteModify {
			c.Warnings = append(c.Warnings, "document was deleted locally; importing it would restore it")
		}
		c.ConflictID = c.computeID()
		conflicts = append(conflicts, c)
	}

	for i := range conflicts {
		c := &conflicts[i]
		if rec, ok := batch.Recorded[c.ConflictID]; ok && rec.SourceHash == recordHash(*c) {
			c.PreviouslyResolved = true
			c.RecordedResolution = localize(ScenarioImport, rec.Resolution)
		}
		plan.ConflictIDs = append(plan.ConflictIDs, c.ConflictID)
	}
	return plan, conflicts
}

func (e *Engine) collision(target, id string, local Snapshot, versions []ForeignDocument) Conflict {
	fields := e.cfg.ContentFields
	sources := make([]SourceVersion, len(versions))
	names := make([]string, len(versions))
	allSame := true
	for i, v := range versions {
		sources[i] = SourceVersion{Collection: v.SourceCollection, Snapshot: v.Snapshot}
		names[i] = v.SourceCollection
		if i > 0 && !Identical(versions[0].Snapshot, v.Snapshot, fields) {
			allSame = false
		}
	}
	auto := allSame && (!local.Exists || Identical(local, versions[0].Snapshot, fields))

	c := Conflict{
		Scenario:            ScenarioImport,
		Type:                TypeIDCollision,
		SourceCollection:    CollisionSourceKey(names),
		TargetCollection:    target,
		Collection:          target,
		DocumentID:          id,
		AutoResolvable:      auto,
		SuggestedResolution: ResolutionSkip,
		ResolutionOptions:   OptionsFor(ScenarioImport, TypeIDCollision),
		Base:                Absent(),
		Ours:                local,
		Theirs:              versions[0].Snapshot,
		Sources:             sources,
	}
	if auto {
		c.SuggestedResolution = ResolutionKeepSource
	} else {
		c.Warnings = append(c.Warnings, fmt.Sprintf("id %s is carried by %d source collections with different content", id, len(versions)))
	}
	c.ConflictID = c.computeID()
	return c
}

func suggestImport(t ConflictType, auto bool) ResolutionType {
	switch t {
	case TypeMetadataConflict:
		return ResolutionMerge
	case TypeDeleteModify:
		return ResolutionKeepTarget
	default:
		if auto {
			return ResolutionKeepSource
		}
		return ResolutionKeepTarget
	}
}

// recordHash fingerprints the foreign side of an import conflict. A recorded
// decision only applies while this value is unchanged.
func recordHash(c Conflict) string {
	if c.Type == TypeCollectionMismatch {
		return ContentHash(c.SourceCollection + "|" + c.TargetCollection)
	}
	if c.Type == TypeIDCollision {
		var all string
		for _, s := range c.Sources {
			all += s.Collection + "|" + s.Snapshot.Hash + "|"
		}
		return ContentHash(all)
	}
	return c.Theirs.Hash
}

// RecordHash returns the fingerprint stored with a resolution of c.
func RecordHash(c Conflict) string {
	return recordHash(c)
}

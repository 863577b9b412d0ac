package conflict

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"kb-bridge/core/utils"
	"kb-bridge/core/wildcard"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Engine runs merge and import analyses. It holds no state between calls
// besides its configuration and the optional snapshot cache.
type Engine struct {
	cfg      EngineConfig
	log      *zap.Logger
	excluded []*wildcard.Pattern
}

// NewEngine creates an engine. Invalid exclusion patterns are logged and ignored.
func NewEngine(cfg EngineConfig) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{cfg: cfg, log: cfg.Logger.Named("conflict")}
	for _, raw := range cfg.ExcludedTables {
		p, err := wildcard.Compile(raw)
		if err != nil {
			e.log.Warn("Ignoring invalid table exclusion pattern", zap.String("pattern", raw), zap.Error(err))
			continue
		}
		e.excluded = append(e.excluded, p)
	}
	return e
}

// ContentFields returns the content field names the engine recognizes.
func (e *Engine) ContentFields() []string {
	return e.cfg.ContentFields
}

// Excluded reports whether a table is internal and never analyzed.
func (e *Engine) Excluded(table string) bool {
	return wildcard.MatchAny(e.excluded, table)
}

// ApplyResolutions resolves a batch of conflicts with the engine's content fields.
func (e *Engine) ApplyResolutions(conflicts []Conflict, requests []ResolutionRequest, opts BatchOptions) BatchResolutionResult {
	return ApplyResolutions(conflicts, requests, opts, e.cfg.ContentFields)
}

// MergeAnalysis is the result of analyzing a merge of SourceRef into TargetRef.
type MergeAnalysis struct {
	SourceRef string
	TargetRef string
	MergeBase string

	// Verified is false when the merge base could not be determined. The
	// analysis then carries no conflicts and must not be trusted as clean.
	Verified bool

	// Native is true when conflicts came from the store's own summary.
	Native bool

	Conflicts []Conflict
	Changes   ChangesPreview
	Warnings  []string

	// ResolvedSource and ResolvedTarget are the commits the refs pointed at
	// during analysis, when the store can pin refs.
	ResolvedSource string
	ResolvedTarget string
}

type docKey struct {
	table string
	id    string
}

// AnalyzeMerge detects the conflicts of merging sourceRef into targetRef.
// Ours is the target, theirs the source.
//
// An undeterminable merge base is reported as an unverified analysis with a
// warning and zero conflicts, never as an error. The native conflict summary
// is used first when enabled; any failure or empty answer from it falls back
// to the diff-based detection.
func (e *Engine) AnalyzeMerge(ctx context.Context, store VersionedStore, sourceRef, targetRef string) (*MergeAnalysis, error) {
	log := e.log.With(
		zap.String("store", store.Name()),
		zap.String("source", sourceRef),
		zap.String("target", targetRef),
	)
	a := &MergeAnalysis{SourceRef: sourceRef, TargetRef: targetRef}

	ours, theirs := targetRef, sourceRef
	pinned := false
	if r, ok := store.(RefResolver); ok {
		o, oErr := e.resolveRef(ctx, r, ours)
		t, tErr := e.resolveRef(ctx, r, theirs)
		if oErr == nil && tErr == nil {
			ours, theirs, pinned = o, t, true
			a.ResolvedTarget, a.ResolvedSource = o, t
		} else if ctx.Err() != nil {
			return nil, ctx.Err()
		} else {
			log.Debug("Could not pin refs, snapshots will not be cached", zap.Error(errors.Join(oErr, tErr)))
		}
	}

	base, err := e.mergeBase(ctx, store, ours, theirs)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("Merge base could not be determined", zap.Error(err))
		a.Warnings = append(a.Warnings, fmt.Sprintf("merge base of %s and %s could not be determined: %v", sourceRef, targetRef, err))
		return a, nil
	}
	a.MergeBase = base
	a.Verified = true

	theirsChanges, err := e.changes(ctx, store, base, theirs)
	if err != nil {
		return nil, err
	}

	var candidates []Candidate
	if e.cfg.PreferNativeSummary {
		if s, ok := store.(ConflictSummarizer); ok {
			native, err := e.nativeCandidates(ctx, s, ours, theirs)
			switch {
			case err != nil:
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				log.Warn("Native conflict summary unavailable, falling back to diff", zap.Error(err))
			case len(native) == 0:
				log.Debug("Native conflict summary empty, falling back to diff")
			default:
				candidates = native
				a.Native = true
			}
		}
	}

	if !a.Native {
		oursChanges, err := e.changes(ctx, store, base, ours)
		if err != nil {
			return nil, err
		}
		candidates, err = e.diffCandidates(ctx, store, base, ours, theirs, pinned, oursChanges, theirsChanges)
		if err != nil {
			return nil, err
		}
	}

	a.Conflicts = e.buildMergeConflicts(candidates)
	a.Changes = countChanges(theirsChanges, a.Conflicts)
	for _, c := range a.Conflicts {
		if !contentComputable(c.Base, c.Ours, c.Theirs) {
			a.Warnings = append(a.Warnings, "some conflicts carry no content column; auto-resolution was decided from field data")
			break
		}
	}

	log.Info("Merge analysis complete",
		zap.String("merge_base", base),
		zap.Bool("native", a.Native),
		zap.Int("conflicts", len(a.Conflicts)),
	)
	return a, nil
}

func (e *Engine) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.CallTimeout > 0 {
		return context.WithTimeout(ctx, e.cfg.CallTimeout)
	}
	return context.WithCancel(ctx)
}

func wrapCollaborator(op, table, id string, err error) error {
	var ce *Error
	if errors.As(err, &ce) || errors.Is(err, context.Canceled) {
		return err
	}
	return NewCollaboratorError(op, table, id, err)
}

func (e *Engine) resolveRef(ctx context.Context, r RefResolver, ref string) (string, error) {
	cctx, cancel := e.callCtx(ctx)
	defer cancel()
	return r.ResolveRef(cctx, ref)
}

func (e *Engine) mergeBase(ctx context.Context, store VersionedStore, ours, theirs string) (string, error) {
	cctx, cancel := e.callCtx(ctx)
	defer cancel()
	base, err := store.MergeBase(cctx, ours, theirs)
	if err != nil {
		return "", err
	}
	if base == "" {
		return "", errors.New("store returned an empty merge base")
	}
	return base, nil
}

// changes lists the changed documents per user table between two refs.
func (e *Engine) changes(ctx context.Context, store VersionedStore, from, to string) (map[string]map[string]ChangeType, error) {
	cctx, cancel := e.callCtx(ctx)
	tables, err := store.ChangedTables(cctx, from, to)
	cancel()
	if err != nil {
		return nil, wrapCollaborator("changed_tables", "", "", err)
	}

	var user []string
	for _, t := range tables {
		if !e.Excluded(t) {
			user = append(user, t)
		}
	}

	results := make([]map[string]ChangeType, len(user))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Parallelism)
	for i, table := range user {
		g.Go(func() error {
			cctx, cancel := e.callCtx(gctx)
			defer cancel()
			docs, err := store.ChangedDocuments(cctx, table, from, to)
			if err != nil {
				return wrapCollaborator("changed_documents", table, "", err)
			}
			results[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]map[string]ChangeType, len(user))
	for i, table := range user {
		if len(results[i]) > 0 {
			out[table] = results[i]
		}
	}
	return out, nil
}

func (e *Engine) snapshot(ctx context.Context, store VersionedStore, table, id, ref string, cacheable bool) (Snapshot, error) {
	load := func(ctx context.Context) (Snapshot, error) {
		cctx, cancel := e.callCtx(ctx)
		defer cancel()
		s, err := store.Snapshot(cctx, table, id, ref)
		if err != nil {
			return Snapshot{}, wrapCollaborator("snapshot", table, id, err)
		}
		return s, nil
	}
	if !cacheable {
		return load(ctx)
	}
	return e.cfg.Cache.Get(ctx, snapshotKey(store.Name(), table, id, ref), load)
}

// diffCandidates intersects both change sets per table and fetches the three
// snapshots of every document changed on both sides.
func (e *Engine) diffCandidates(
	ctx context.Context,
	store VersionedStore,
	base, ours, theirs string,
	pinned bool,
	oursChanges, theirsChanges map[string]map[string]ChangeType,
) ([]Candidate, error) {
	tables := make([]string, 0, len(theirsChanges))
	for table := range theirsChanges {
		if _, ok := oursChanges[table]; ok {
			tables = append(tables, table)
		}
	}
	sort.Strings(tables)

	perTable := make([][]Candidate, len(tables))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Parallelism)
	for i, table := range tables {
		g.Go(func() error {
			var ids []string
			for id := range theirsChanges[table] {
				if _, ok := oursChanges[table][id]; ok {
					ids = append(ids, id)
				}
			}
			sort.Strings(ids)

			for _, id := range ids {
				b, err := e.snapshot(gctx, store, table, id, base, true)
				if err != nil {
					return err
				}
				o, err := e.snapshot(gctx, store, table, id, ours, pinned)
				if err != nil {
					return err
				}
				t, err := e.snapshot(gctx, store, table, id, theirs, pinned)
				if err != nil {
					return err
				}
				perTable[i] = append(perTable[i], Candidate{
					Table:      table,
					DocumentID: id,
					Base:       b,
					Ours:       o,
					Theirs:     t,
				})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Candidate
	for _, c := range perTable {
		out = append(out, c...)
	}
	return out, nil
}

// nativeCandidates reads the store's own conflict summary. Every failure is
// reported as KindAnalysisUnavailable so the caller can fall back.
func (e *Engine) nativeCandidates(ctx context.Context, s ConflictSummarizer, ours, theirs string) ([]Candidate, error) {
	cctx, cancel := e.callCtx(ctx)
	tables, err := s.ConflictTables(cctx, ours, theirs)
	cancel()
	if err != nil {
		return nil, NewAnalysisUnavailable("conflict_tables", err)
	}
	sort.Strings(tables)

	var out []Candidate
	for _, table := range tables {
		if e.Excluded(table) {
			continue
		}
		cctx, cancel := e.callCtx(ctx)
		rows, err := s.ConflictRows(cctx, table, ours, theirs)
		cancel()
		if err != nil {
			return nil, NewAnalysisUnavailable("conflict_rows", err)
		}
		for _, row := range rows {
			parsed, err := ParseRawConflictRow(table, row, e.cfg.ContentFields)
			if err != nil {
				return nil, NewAnalysisUnavailable("parse_conflict_row", err)
			}
			out = append(out, parsed.Candidate())
		}
	}
	return out, nil
}

func (e *Engine) buildMergeConflicts(candidates []Candidate) []Conflict {
	fields := e.cfg.ContentFields
	out := make([]Conflict, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, cand := range candidates {
		if IsConvergent(cand, fields) {
			continue
		}
		t := Classify(cand, fields)
		auto := IsAutoResolvable(t, cand.Base, cand.Ours, cand.Theirs, fields)
		c := Conflict{
			Scenario:       ScenarioMerge,
			Type:           t,
			Table:          cand.Table,
			Collection:     payloadCollection(cand),
			DocumentID:     cand.DocumentID,
			AutoResolvable: auto,
			SuggestedResolution: suggestMerge(t, auto,
				viewOf(cand.Base, fields), viewOf(cand.Ours, fields), viewOf(cand.Theirs, fields)),
			ResolutionOptions: OptionsFor(ScenarioMerge, t),
			Base:              cand.Base,
			Ours:              cand.Ours,
			Theirs:            cand.Theirs,
			FieldDiffs:        DiffFields(cand.Base, cand.Ours, cand.Theirs, fields),
		}
		c.ConflictID = c.computeID()
		if _, dup := seen[c.ConflictID]; dup {
			continue
		}
		seen[c.ConflictID] = struct{}{}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Table != out[j].Table {
			return out[i].Table < out[j].Table
		}
		return out[i].DocumentID < out[j].DocumentID
	})
	return out
}

// collectionFields name the payload fields holding a logical collection.
var collectionFields = []string{"collection_name", "collection"}

func payloadCollection(c Candidate) string {
	for _, s := range []Snapshot{c.Ours, c.Theirs, c.Base} {
		for _, f := range collectionFields {
			if v := utils.ToString(s.Metadata[f]); v != "" {
				return v
			}
		}
	}
	return ""
}

// countChanges counts the source-side changes that are not in conflict.
func countChanges(changes map[string]map[string]ChangeType, conflicts []Conflict) ChangesPreview {
	conflicted := make(map[docKey]struct{}, len(conflicts))
	for _, c := range conflicts {
		conflicted[docKey{c.Table, c.DocumentID}] = struct{}{}
	}
	var p ChangesPreview
	for table, docs := range changes {
		for id, ct := range docs {
			if _, ok := conflicted[docKey{table, id}]; ok {
				continue
			}
			switch ct {
			case ChangeAdded:
				p.Adds++
			case ChangeRemoved:
				p.Deletes++
			default:
				p.Updates++
			}
		}
	}
	return p
}

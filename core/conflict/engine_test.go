package conflict

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory versioned store keyed by ref, table and document id.
type fakeStore struct {
	base    string
	baseErr error
	refs    map[string]map[string]map[string]Snapshot

	snapshotCalls atomic.Int32
}

func (s *fakeStore) Name() string { return "fake" }

func (s *fakeStore) MergeBase(ctx context.Context, ours, theirs string) (string, error) {
	return s.base, s.baseErr
}

func (s *fakeStore) ChangedTables(ctx context.Context, from, to string) ([]string, error) {
	seen := make(map[string]struct{})
	for table := range s.refs[from] {
		seen[table] = struct{}{}
	}
	for table := range s.refs[to] {
		seen[table] = struct{}{}
	}
	var out []string
	for table := range seen {
		docs, _ := s.ChangedDocuments(ctx, table, from, to)
		if len(docs) > 0 {
			out = append(out, table)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *fakeStore) ChangedDocuments(ctx context.Context, table, from, to string) (map[string]ChangeType, error) {
	f, t := s.refs[from][table], s.refs[to][table]
	out := make(map[string]ChangeType)
	for id, ts := range t {
		fs, ok := f[id]
		switch {
		case !ok:
			out[id] = ChangeAdded
		case !Identical(fs, ts, DefaultContentFields):
			out[id] = ChangeModified
		}
	}
	for id := range f {
		if _, ok := t[id]; !ok {
			out[id] = ChangeRemoved
		}
	}
	return out, nil
}

func (s *fakeStore) Snapshot(ctx context.Context, table, id, ref string) (Snapshot, error) {
	s.snapshotCalls.Add(1)
	snap, ok := s.refs[ref][table][id]
	if !ok {
		return Absent(), nil
	}
	return snap, nil
}

// pinnedStore resolves every ref to itself so snapshots become cacheable.
type pinnedStore struct {
	*fakeStore
}

func (s pinnedStore) ResolveRef(ctx context.Context, ref string) (string, error) {
	return ref, nil
}

// nativeStore adds a native conflict summary to the fake store.
type nativeStore struct {
	*fakeStore
	rows map[string][]map[string]any
	err  error
}

func (s nativeStore) ConflictTables(ctx context.Context, ours, theirs string) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []string
	for table := range s.rows {
		out = append(out, table)
	}
	return out, nil
}

func (s nativeStore) ConflictRows(ctx context.Context, table, ours, theirs string) ([]map[string]any, error) {
	return s.rows[table], nil
}

func meta(kv ...any) map[string]any {
	m := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i].(string)] = kv[i+1]
	}
	return m
}

// newThreeWayStore builds a store with refs "base", "main" (ours) and "feature" (theirs).
func newThreeWayStore(table string, base, ours, theirs map[string]Snapshot) *fakeStore {
	return &fakeStore{
		base: "base",
		refs: map[string]map[string]map[string]Snapshot{
			"base":    {table: base},
			"main":    {table: ours},
			"feature": {table: theirs},
		},
	}
}

func TestAnalyzeMerge_OnlySourceChangedContent(t *testing.T) {
	store := newThreeWayStore("documents",
		map[string]Snapshot{"doc1": Present("v1", meta("tag", "a"))},
		map[string]Snapshot{"doc1": Present("v1", meta("tag", "b"))},
		map[string]Snapshot{"doc1": Present("v2", meta("tag", "a"))},
	)
	engine := NewEngine(EngineConfig{})

	a, err := engine.AnalyzeMerge(context.Background(), store, "feature", "main")
	require.NoError(t, err)
	require.True(t, a.Verified)
	require.Len(t, a.Conflicts, 1)

	c := a.Conflicts[0]
	assert.Equal(t, TypeContentModification, c.Type)
	assert.True(t, c.AutoResolvable)
	assert.Equal(t, ResolutionFieldMerge, c.SuggestedResolution)
	assert.Equal(t, MergeConflictID("documents", "doc1", TypeContentModification), c.ConflictID)

	batch := engine.ApplyResolutions(a.Conflicts, nil, BatchOptions{AutoResolveRemaining: true})
	require.Equal(t, 1, batch.Succeeded)
	out := batch.Outcomes[0]
	assert.Equal(t, "v2", *out.Content)
	assert.Equal(t, "b", out.Metadata["tag"])
	assert.Equal(t, 100, out.Confidence)
}

func TestAnalyzeMerge_BothChangedContent(t *testing.T) {
	store := newThreeWayStore("documents",
		map[string]Snapshot{"doc1": Present("v1", nil)},
		map[string]Snapshot{"doc1": Present("ours text", nil)},
		map[string]Snapshot{"doc1": Present("theirs text", nil)},
	)
	engine := NewEngine(EngineConfig{})

	a, err := engine.AnalyzeMerge(context.Background(), store, "feature", "main")
	require.NoError(t, err)
	require.Len(t, a.Conflicts, 1)

	c := a.Conflicts[0]
	assert.Equal(t, TypeContentModification, c.Type)
	assert.False(t, c.AutoResolvable)
	assert.Equal(t, ResolutionKeepOurs, c.SuggestedResolution)

	preview := a.Preview(PreviewOptions{})
	assert.Equal(t, 1, preview.ManualCount)
	assert.False(t, *preview.CanAutoMerge)
	assert.Equal(t, ActionRecommendResolve, preview.RecommendedAction)

	// Manual conflicts are not auto-resolved and fail without a default.
	batch := engine.ApplyResolutions(a.Conflicts, nil, BatchOptions{AutoResolveRemaining: true})
	assert.Equal(t, 0, batch.Succeeded)
	assert.Equal(t, 1, batch.Failed)
	assert.Equal(t, KindInvalidResolution, batch.Outcomes[0].ErrorKind)
}

func TestAnalyzeMerge_OnlyOneSideChangedIsNotCandidate(t *testing.T) {
	store := newThreeWayStore("documents",
		map[string]Snapshot{"doc1": Present("v1", nil), "doc2": Present("x", nil)},
		map[string]Snapshot{"doc1": Present("v1", nil), "doc2": Present("y", nil)},
		map[string]Snapshot{"doc1": Present("v2", nil), "doc2": Present("x", nil)},
	)
	engine := NewEngine(EngineConfig{})

	a, err := engine.AnalyzeMerge(context.Background(), store, "feature", "main")
	require.NoError(t, err)
	assert.Empty(t, a.Conflicts)
	assert.Equal(t, 1, a.Changes.Updates)

	preview := a.Preview(PreviewOptions{})
	assert.True(t, *preview.CanAutoMerge)
	assert.Equal(t, ActionRecommendMerge, preview.RecommendedAction)
}

func TestAnalyzeMerge_ConvergentChangesAreNotConflicts(t *testing.T) {
	store := newThreeWayStore("documents",
		map[string]Snapshot{"doc1": Present("v1", nil), "doc2": Present("gone", nil)},
		map[string]Snapshot{"doc1": Present("same", meta("k", 1))},
		map[string]Snapshot{"doc1": Present("same", meta("k", 1))},
	)
	engine := NewEngine(EngineConfig{})

	a, err := engine.AnalyzeMerge(context.Background(), store, "feature", "main")
	require.NoError(t, err)
	assert.Empty(t, a.Conflicts)
}

func TestAnalyzeMerge_DeleteModify(t *testing.T) {
	store := newThreeWayStore("documents",
		map[string]Snapshot{"doc1": Present("v1", nil)},
		map[string]Snapshot{},
		map[string]Snapshot{"doc1": Present("v2", nil)},
	)
	engine := NewEngine(EngineConfig{})

	a, err := engine.AnalyzeMerge(context.Background(), store, "feature", "main")
	require.NoError(t, err)
	require.Len(t, a.Conflicts, 1)

	c := a.Conflicts[0]
	assert.Equal(t, TypeDeleteModify, c.Type)
	assert.False(t, c.AutoResolvable)
	assert.Equal(t, ResolutionKeepTheirs, c.SuggestedResolution)
	assert.NotContains(t, c.ResolutionOptions, ResolutionFieldMerge)

	batch := engine.ApplyResolutions(a.Conflicts, []ResolutionRequest{
		{ConflictID: c.ConflictID, ResolutionType: ResolutionFieldMerge},
	}, BatchOptions{})
	assert.Equal(t, 1, batch.Failed)

	batch = engine.ApplyResolutions(a.Conflicts, []ResolutionRequest{
		{ConflictID: c.ConflictID, ResolutionType: ResolutionKeepOurs},
	}, BatchOptions{})
	require.Equal(t, 1, batch.Succeeded)
	assert.Equal(t, ActionDelete, batch.Outcomes[0].Action)
}

func TestAnalyzeMerge_AddAdd(t *testing.T) {
	store := newThreeWayStore("documents",
		map[string]Snapshot{},
		map[string]Snapshot{"a": Present("same", meta("k", 1)), "b": Present("x", nil)},
		map[string]Snapshot{"a": Present("same", meta("k", 2)), "b": Present("y", nil)},
	)
	engine := NewEngine(EngineConfig{})

	a, err := engine.AnalyzeMerge(context.Background(), store, "feature", "main")
	require.NoError(t, err)
	require.Len(t, a.Conflicts, 2)

	assert.Equal(t, "a", a.Conflicts[0].DocumentID)
	assert.Equal(t, TypeAddAdd, a.Conflicts[0].Type)
	assert.True(t, a.Conflicts[0].AutoResolvable)
	assert.Equal(t, ResolutionFieldMerge, a.Conflicts[0].SuggestedResolution)

	assert.Equal(t, "b", a.Conflicts[1].DocumentID)
	assert.Equal(t, TypeAddAdd, a.Conflicts[1].Type)
	assert.False(t, a.Conflicts[1].AutoResolvable)
}

func TestAnalyzeMerge_MergeBaseUnavailable(t *testing.T) {
	store := &fakeStore{baseErr: fmt.Errorf("no common ancestor")}
	engine := NewEngine(EngineConfig{})

	a, err := engine.AnalyzeMerge(context.Background(), store, "feature", "main")
	require.NoError(t, err)
	assert.False(t, a.Verified)
	assert.Empty(t, a.Conflicts)
	require.Len(t, a.Warnings, 1)
	assert.Contains(t, a.Warnings[0], "no common ancestor")

	preview := a.Preview(PreviewOptions{})
	assert.False(t, preview.Verified)
	assert.False(t, *preview.CanAutoMerge)
	assert.Equal(t, ActionRecommendVerifyBase, preview.RecommendedAction)
}

func TestAnalyzeMerge_ExcludesInternalTables(t *testing.T) {
	store := &fakeStore{
		base: "base",
		refs: map[string]map[string]map[string]Snapshot{
			"base":    {"dolt_schemas": {"x": Present("1", nil)}},
			"main":    {"dolt_schemas": {"x": Present("2", nil)}},
			"feature": {"dolt_schemas": {"x": Present("3", nil)}},
		},
	}
	engine := NewEngine(EngineConfig{})

	a, err := engine.AnalyzeMerge(context.Background(), store, "feature", "main")
	require.NoError(t, err)
	assert.Empty(t, a.Conflicts)
	assert.True(t, engine.Excluded("dolt_schemas"))
	assert.False(t, engine.Excluded("documents"))
}

func TestAnalyzeMerge_DeterministicAcrossCalls(t *testing.T) {
	newStore := func() *fakeStore {
		return newThreeWayStore("documents",
			map[string]Snapshot{"d1": Present("a", nil), "d2": Present("b", nil)},
			map[string]Snapshot{"d1": Present("a1", nil), "d2": Present("b1", nil)},
			map[string]Snapshot{"d1": Present("a2", nil), "d2": Present("b2", nil)},
		)
	}

	first, err := NewEngine(EngineConfig{Parallelism: 4}).AnalyzeMerge(context.Background(), newStore(), "feature", "main")
	require.NoError(t, err)
	second, err := NewEngine(EngineConfig{}).AnalyzeMerge(context.Background(), newStore(), "feature", "main")
	require.NoError(t, err)

	require.Len(t, first.Conflicts, 2)
	for i := range first.Conflicts {
		assert.Equal(t, first.Conflicts[i].ConflictID, second.Conflicts[i].ConflictID)
		assert.NoError(t, VerifyIdentity(first.Conflicts[i]))
	}
}

func TestAnalyzeMerge_NativeSummary(t *testing.T) {
	base := newThreeWayStore("documents",
		map[string]Snapshot{"d1": Present("a", nil)},
		map[string]Snapshot{"d1": Present("b", nil)},
		map[string]Snapshot{"d1": Present("c", nil)},
	)

	t.Run("native rows are used", func(t *testing.T) {
		store := nativeStore{fakeStore: base, rows: map[string][]map[string]any{
			"documents": {{
				"base_id":          "d1",
				"base_content":     []byte("a"),
				"our_id":           "d1",
				"our_content":      "b",
				"our_diff_type":    "modified",
				"their_id":         "d1",
				"their_content":    "c",
				"their_diff_type":  "modified",
				"dolt_conflict_id": "xyz",
			}},
		}}
		a, err := NewEngine(EngineConfig{PreferNativeSummary: true}).AnalyzeMerge(context.Background(), store, "feature", "main")
		require.NoError(t, err)
		assert.True(t, a.Native)
		require.Len(t, a.Conflicts, 1)
		assert.Equal(t, "d1", a.Conflicts[0].DocumentID)
		assert.Equal(t, "a", a.Conflicts[0].Base.ContentString())
	})

	t.Run("native failure falls back to diff", func(t *testing.T) {
		store := nativeStore{fakeStore: base, err: fmt.Errorf("procedure not found")}
		a, err := NewEngine(EngineConfig{PreferNativeSummary: true}).AnalyzeMerge(context.Background(), store, "feature", "main")
		require.NoError(t, err)
		assert.False(t, a.Native)
		require.Len(t, a.Conflicts, 1)
	})

	t.Run("unparseable rows fall back to diff", func(t *testing.T) {
		store := nativeStore{fakeStore: base, rows: map[string][]map[string]any{
			"documents": {{"our_content": "b"}},
		}}
		a, err := NewEngine(EngineConfig{PreferNativeSummary: true}).AnalyzeMerge(context.Background(), store, "feature", "main")
		require.NoError(t, err)
		assert.False(t, a.Native)
		require.Len(t, a.Conflicts, 1)
	})

	t.Run("both paths give the same identity", func(t *testing.T) {
		native := nativeStore{fakeStore: base, rows: map[string][]map[string]any{
			"documents": {{"base_id": "d1", "base_content": "a", "our_id": "d1", "our_content": "b", "their_id": "d1", "their_content": "c"}},
		}}
		a1, err := NewEngine(EngineConfig{PreferNativeSummary: true}).AnalyzeMerge(context.Background(), native, "feature", "main")
		require.NoError(t, err)
		a2, err := NewEngine(EngineConfig{}).AnalyzeMerge(context.Background(), base, "feature", "main")
		require.NoError(t, err)
		assert.Equal(t, a2.Conflicts[0].ConflictID, a1.Conflicts[0].ConflictID)
	})
}

func TestAnalyzeMerge_CachesPinnedSnapshots(t *testing.T) {
	store := newThreeWayStore("documents",
		map[string]Snapshot{"d1": Present("a", nil)},
		map[string]Snapshot{"d1": Present("b", nil)},
		map[string]Snapshot{"d1": Present("c", nil)},
	)
	cache := NewSnapshotCache(128, time.Minute)
	engine := NewEngine(EngineConfig{Cache: cache})

	_, err := engine.AnalyzeMerge(context.Background(), pinnedStore{store}, "feature", "main")
	require.NoError(t, err)
	calls := store.snapshotCalls.Load()
	assert.Equal(t, int32(3), calls)
	assert.Equal(t, 3, cache.Len())

	_, err = engine.AnalyzeMerge(context.Background(), pinnedStore{store}, "feature", "main")
	require.NoError(t, err)
	assert.Equal(t, calls, store.snapshotCalls.Load())

	// Unpinned refs are read again; only the base is cached.
	_, err = engine.AnalyzeMerge(context.Background(), store, "feature", "main")
	require.NoError(t, err)
	assert.Equal(t, calls+2, store.snapshotCalls.Load())
}

func TestAnalyzeMerge_ContextCanceled(t *testing.T) {
	store := &fakeStore{baseErr: context.Canceled}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine(EngineConfig{}).AnalyzeMerge(ctx, store, "feature", "main")
	assert.ErrorIs(t, err, context.Canceled)
}

package merge

import (
	"context"
	"errors"
	"sort"
	"testing"

	"kb-bridge/core/conflict"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeStore is an in-memory versioned store. Changes are recorded relative
// to the merge base per ref.
type fakeStore struct {
	base      string
	baseErr   error
	tablesErr error
	docs      map[string]map[string]map[string]conflict.Snapshot
	changes   map[string]map[string]map[string]conflict.ChangeType

	applied  *conflict.MergeApply
	applyErr error
}

func (f *fakeStore) Name() string { return "fake" }

func (f *fakeStore) MergeBase(ctx context.Context, ours, theirs string) (string, error) {
	return f.base, f.baseErr
}

func (f *fakeStore) ChangedTables(ctx context.Context, from, to string) ([]string, error) {
	if f.tablesErr != nil {
		return nil, f.tablesErr
	}
	var out []string
	for t := range f.changes[to] {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeStore) ChangedDocuments(ctx context.Context, table, from, to string) (map[string]conflict.ChangeType, error) {
	return f.changes[to][table], nil
}

func (f *fakeStore) Snapshot(ctx context.Context, table, documentID, ref string) (conflict.Snapshot, error) {
	if s, ok := f.docs[ref][table][documentID]; ok {
		return s, nil
	}
	return conflict.Absent(), nil
}

func (f *fakeStore) ApplyMerge(ctx context.Context, req conflict.MergeApply) (string, error) {
	if f.applyErr != nil {
		return "", f.applyErr
	}
	f.applied = &req
	return "commit_1", nil
}

type fakeRecorder struct {
	executionID string
	outcomes    []conflict.ResolutionOutcome
}

func (r *fakeRecorder) RecordResolutions(ctx context.Context, executionID string, conflicts []conflict.Conflict, outcomes []conflict.ResolutionOutcome) error {
	r.executionID = executionID
	r.outcomes = outcomes
	return nil
}

// newDivergentStore: doc_1 edited on both branches, doc_2 added on feature.
func newDivergentStore() *fakeStore {
	return &fakeStore{
		base: "base",
		docs: map[string]map[string]map[string]conflict.Snapshot{
			"base": {"docs": {
				"doc_1": conflict.Present("v1", map[string]any{"title": "a"}),
			}},
			"main": {"docs": {
				"doc_1": conflict.Present("v2a", map[string]any{"title": "a"}),
			}},
			"feature": {"docs": {
				"doc_1": conflict.Present("v2b", map[string]any{"title": "a"}),
				"doc_2": conflict.Present("new", nil),
			}},
		},
		changes: map[string]map[string]map[string]conflict.ChangeType{
			"main":    {"docs": {"doc_1": conflict.ChangeModified}},
			"feature": {"docs": {"doc_1": conflict.ChangeModified, "doc_2": conflict.ChangeAdded}},
		},
	}
}

func newTestService(store conflict.VersionedStore, rec ResolutionRecorder) *Service {
	engine := conflict.NewEngine(conflict.EngineConfig{})
	return NewService(engine, store, rec, "kb-bridge <kb-bridge@localhost>", zap.NewNop())
}

func TestPreview(t *testing.T) {
	svc := newTestService(newDivergentStore(), nil)

	res, err := svc.Preview(context.Background(), PreviewRequest{SourceRef: "feature", TargetRef: "main"})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.True(t, res.Verified)
	assert.Equal(t, 1, res.TotalConflictsDetected)
	assert.Equal(t, 1, res.ManualCount)
	assert.Equal(t, conflict.ActionRecommendResolve, res.RecommendedAction)
	assert.Equal(t, 1, res.ChangesPreview.Adds)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, conflict.MergeConflictID("docs", "doc_1", conflict.TypeContentModification), res.Conflicts[0].ConflictID)
	assert.Empty(t, res.Conflicts[0].FieldDiffs)
}

func TestPreview_Detailed(t *testing.T) {
	svc := newTestService(newDivergentStore(), nil)

	res, err := svc.Preview(context.Background(), PreviewRequest{SourceRef: "feature", TargetRef: "main", DetailedDiff: true})
	require.NoError(t, err)
	require.Len(t, res.Conflicts, 1)
	assert.NotEmpty(t, res.Conflicts[0].FieldDiffs)
}

func TestPreview_UnverifiedBase(t *testing.T) {
	store := newDivergentStore()
	store.baseErr = errors.New("no common ancestor")
	svc := newTestService(store, nil)

	res, err := svc.Preview(context.Background(), PreviewRequest{SourceRef: "feature", TargetRef: "main"})
	require.NoError(t, err)

	assert.False(t, res.Verified)
	assert.Zero(t, res.TotalConflictsDetected)
	assert.Equal(t, conflict.ActionRecommendVerifyBase, res.RecommendedAction)
	assert.NotEmpty(t, res.Warnings)
}

func TestPreview_StoreFailureIsBestEffort(t *testing.T) {
	store := newDivergentStore()
	store.tablesErr = errors.New("connection reset")
	svc := newTestService(store, nil)

	res, err := svc.Preview(context.Background(), PreviewRequest{SourceRef: "feature", TargetRef: "main"})
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "connection reset")
}

func TestPreview_InvalidRequest(t *testing.T) {
	svc := newTestService(newDivergentStore(), nil)

	_, err := svc.Preview(context.Background(), PreviewRequest{SourceRef: "feature"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.Preview(context.Background(), PreviewRequest{SourceRef: "main", TargetRef: "main"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestExecute_UnresolvedWritesNothing(t *testing.T) {
	store := newDivergentStore()
	svc := newTestService(store, nil)

	res, err := svc.Execute(context.Background(), ExecuteRequest{SourceRef: "feature", TargetRef: "main"})
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, 1, res.ConflictsFailed)
	assert.Nil(t, store.applied)
	assert.Contains(t, res.Message, "nothing was merged")
}

func TestExecute_KeepTheirs(t *testing.T) {
	store := newDivergentStore()
	rec := &fakeRecorder{}
	svc := newTestService(store, rec)
	id := conflict.MergeConflictID("docs", "doc_1", conflict.TypeContentModification)

	res, err := svc.Execute(context.Background(), ExecuteRequest{
		SourceRef: "feature",
		TargetRef: "main",
		Resolutions: conflict.ResolutionPayload{Requests: []conflict.ResolutionRequest{
			{ConflictID: id, ResolutionType: conflict.ResolutionKeepTheirs},
		}},
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "commit_1", res.CommitRef)
	assert.Equal(t, 1, res.ConflictsResolved)
	assert.Equal(t, 1, res.DocumentsImported)
	assert.Equal(t, 1, res.DocumentsUpdated)
	assert.Equal(t, 1, res.ResolutionBreakdown[conflict.ResolutionKeepTheirs])

	require.NotNil(t, store.applied)
	assert.Equal(t, "feature", store.applied.SourceRef)
	assert.Equal(t, "main", store.applied.TargetRef)
	assert.Equal(t, "base", store.applied.MergeBase)
	assert.Equal(t, "Merge feature into main", store.applied.Message)
	require.Len(t, store.applied.Writes, 1)
	require.NotNil(t, store.applied.Writes[0].Content)
	assert.Equal(t, "v2b", *store.applied.Writes[0].Content)

	assert.Equal(t, res.ExecutionID, rec.executionID)
	assert.Len(t, rec.outcomes, 1)
}

func TestExecute_DefaultStrategy(t *testing.T) {
	store := newDivergentStore()
	svc := newTestService(store, nil)

	res, err := svc.Execute(context.Background(), ExecuteRequest{
		SourceRef:   "feature",
		TargetRef:   "main",
		Message:     "sync",
		Resolutions: conflict.ResolutionPayload{DefaultStrategy: conflict.ResolutionKeepOurs},
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	require.NotNil(t, store.applied)
	assert.Equal(t, "sync", store.applied.Message)
	require.Len(t, store.applied.Writes, 1)
	assert.Equal(t, "v2a", *store.applied.Writes[0].Content)
}

func TestExecute_UnverifiedBaseIsError(t *testing.T) {
	store := newDivergentStore()
	store.baseErr = errors.New("no common ancestor")
	svc := newTestService(store, nil)

	_, err := svc.Execute(context.Background(), ExecuteRequest{SourceRef: "feature", TargetRef: "main"})
	assert.ErrorIs(t, err, conflict.ErrAnalysisUnavailable)
	assert.Nil(t, store.applied)
}

func TestExecute_WriteFailure(t *testing.T) {
	store := newDivergentStore()
	store.applyErr = errors.New("merge aborted")
	svc := newTestService(store, nil)

	res, err := svc.Execute(context.Background(), ExecuteRequest{
		SourceRef:   "feature",
		TargetRef:   "main",
		Resolutions: conflict.ResolutionPayload{DefaultStrategy: conflict.ResolutionSkip},
	})
	assert.ErrorIs(t, err, conflict.ErrCollaboratorFailure)
	assert.False(t, res.Success)
}

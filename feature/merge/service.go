package merge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"kb-bridge/core/conflict"
	"kb-bridge/core/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidRequest is returned for requests missing a ref or carrying a
// malformed resolution payload.
var ErrInvalidRequest = errors.New("invalid merge request")

// ResolutionRecorder stores the resolutions of an execution for audit.
type ResolutionRecorder interface {
	RecordResolutions(ctx context.Context, executionID string, conflicts []conflict.Conflict, outcomes []conflict.ResolutionOutcome) error
}

// PreviewRequest asks what merging SourceRef into TargetRef would conflict on.
type PreviewRequest struct {
	SourceRef             string `json:"source_ref" yaml:"source_ref"`
	TargetRef             string `json:"target_ref" yaml:"target_ref"`
	IncludeAutoResolvable bool   `json:"include_auto_resolvable" yaml:"include_auto_resolvable"`
	DetailedDiff          bool   `json:"detailed_diff" yaml:"detailed_diff"`
}

// ExecuteRequest merges SourceRef into TargetRef with the given resolutions.
type ExecuteRequest struct {
	SourceRef   string                     `json:"source_ref" yaml:"source_ref"`
	TargetRef   string                     `json:"target_ref" yaml:"target_ref"`
	Message     string                     `json:"message,omitempty" yaml:"message,omitempty"`
	Resolutions conflict.ResolutionPayload `json:"-" yaml:"-"`
}

func validateRefs(source, target string) error {
	source, target = strings.TrimSpace(source), strings.TrimSpace(target)
	if source == "" || target == "" {
		return fmt.Errorf("%w: source_ref and target_ref are required", ErrInvalidRequest)
	}
	if source == target {
		return fmt.Errorf("%w: source_ref and target_ref must differ", ErrInvalidRequest)
	}
	return nil
}

// Service runs merge previews and executions against one versioned store.
type Service struct {
	engine   *conflict.Engine
	store    conflict.VersionedStore
	recorder ResolutionRecorder
	author   string
	logger   *zap.Logger
}

// NewService creates a merge service. recorder may be nil.
func NewService(engine *conflict.Engine, store conflict.VersionedStore, recorder ResolutionRecorder, author string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		engine:   engine,
		store:    store,
		recorder: recorder,
		author:   author,
		logger:   logger,
	}
}

// Preview analyzes a merge without writing anything. Store failures are
// reported on an unsuccessful result; only a malformed request or a
// cancelled context returns an error.
func (s *Service) Preview(ctx context.Context, req PreviewRequest) (conflict.PreviewResult, error) {
	if err := validateRefs(req.SourceRef, req.TargetRef); err != nil {
		return conflict.PreviewResult{}, err
	}

	start := time.Now()
	a, err := s.engine.AnalyzeMerge(ctx, s.store, req.SourceRef, req.TargetRef)
	metrics.ObserveDuration(conflict.ScenarioMerge, metrics.PhaseAnalyze, start)
	if err != nil {
		if ctx.Err() != nil {
			return conflict.PreviewResult{}, ctx.Err()
		}
		s.logger.Error("Merge preview failed",
			zap.String("source", req.SourceRef),
			zap.String("target", req.TargetRef),
			zap.Error(err))
		return conflict.PreviewResult{
			Success:           false,
			Scenario:          conflict.ScenarioMerge,
			SourceRef:         req.SourceRef,
			TargetRef:         req.TargetRef,
			Conflicts:         []conflict.Conflict{},
			RecommendedAction: conflict.ActionRecommendVerifyBase,
			Message:           "Merge analysis failed: " + err.Error(),
			Warnings:          []string{err.Error()},
		}, nil
	}
	metrics.RecordConflicts(conflict.ScenarioMerge, a.Conflicts)

	return a.Preview(conflict.PreviewOptions{
		IncludeAutoResolvable: req.IncludeAutoResolvable,
		Detailed:              req.DetailedDiff,
	}), nil
}

// Execute analyzes the merge again, resolves every conflict and records the
// merge as one commit. Nothing is written when any conflict fails to resolve.
func (s *Service) Execute(ctx context.Context, req ExecuteRequest) (conflict.ExecutionResult, error) {
	if err := validateRefs(req.SourceRef, req.TargetRef); err != nil {
		return conflict.ExecutionResult{}, err
	}
	writer, ok := s.store.(conflict.MergeWriter)
	if !ok {
		return conflict.ExecutionResult{}, fmt.Errorf("store %s cannot record merges", s.store.Name())
	}
	log := s.logger.With(zap.String("source", req.SourceRef), zap.String("target", req.TargetRef))

	start := time.Now()
	a, err := s.engine.AnalyzeMerge(ctx, s.store, req.SourceRef, req.TargetRef)
	metrics.ObserveDuration(conflict.ScenarioMerge, metrics.PhaseAnalyze, start)
	if err != nil {
		return conflict.ExecutionResult{}, err
	}
	if !a.Verified {
		return conflict.ExecutionResult{}, conflict.NewAnalysisUnavailable("merge execute",
			fmt.Errorf("merge base of %s and %s could not be verified", req.SourceRef, req.TargetRef))
	}
	for _, c := range a.Conflicts {
		if err := conflict.VerifyIdentity(c); err != nil {
			return conflict.ExecutionResult{}, err
		}
	}
	metrics.RecordConflicts(conflict.ScenarioMerge, a.Conflicts)

	start = time.Now()
	batch := s.engine.ApplyResolutions(a.Conflicts, req.Resolutions.Requests, req.Resolutions.Options())
	metrics.ObserveDuration(conflict.ScenarioMerge, metrics.PhaseResolve, start)
	metrics.RecordResolutions(conflict.ScenarioMerge, batch)

	res := conflict.NewExecutionResult(conflict.ScenarioMerge, req.SourceRef, req.TargetRef, batch)
	res.ExecutionID = uuid.NewString()
	res.Warnings = a.Warnings
	if batch.Failed > 0 {
		res.Message = fmt.Sprintf("%d of %d conflicts could not be resolved; nothing was merged", batch.Failed, len(batch.Outcomes))
		log.Warn("Merge not applied", zap.Int("failed", batch.Failed))
		return res, nil
	}

	writes, counts := conflict.PlanMergeWrites(a, batch)
	source := a.ResolvedSource
	if source == "" {
		source = req.SourceRef
	}
	message := req.Message
	if message == "" {
		message = fmt.Sprintf("Merge %s into %s", req.SourceRef, req.TargetRef)
	}

	start = time.Now()
	commit, err := writer.ApplyMerge(ctx, conflict.MergeApply{
		SourceRef: source,
		TargetRef: req.TargetRef,
		MergeBase: a.MergeBase,
		Message:   message,
		Author:    s.author,
		Writes:    writes,
	})
	metrics.ObserveDuration(conflict.ScenarioMerge, metrics.PhaseWrite, start)
	if err != nil {
		if conflict.KindOf(err) == "" {
			err = conflict.NewCollaboratorError("apply merge", "", "", err)
		}
		log.Error("Merge write failed", zap.Error(err))
		return res, err
	}
	metrics.RecordWriteBatch(req.TargetRef)

	res.Success = true
	res.CommitRef = commit
	res.DocumentsImported = a.Changes.Adds + counts.Adds
	res.DocumentsUpdated = a.Changes.Updates + counts.Updates
	res.DocumentsDeleted = a.Changes.Deletes + counts.Deletes
	res.DocumentsSkipped = counts.Skips
	res.Message = fmt.Sprintf("Merged %s into %s, %d conflicts resolved", req.SourceRef, req.TargetRef, batch.Succeeded)

	if s.recorder != nil {
		if err := s.recorder.RecordResolutions(ctx, res.ExecutionID, a.Conflicts, batch.Outcomes); err != nil {
			log.Warn("Could not record resolutions", zap.Error(err))
			res.Warnings = append(res.Warnings, "resolutions were not recorded: "+err.Error())
		}
	}

	log.Info("Merge executed",
		zap.String("execution_id", res.ExecutionID),
		zap.String("commit", commit),
		zap.Int("conflicts_resolved", batch.Succeeded))
	return res, nil
}

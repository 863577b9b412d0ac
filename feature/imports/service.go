package imports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kb-bridge/core/conflict"
	"kb-bridge/core/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PreviewRequest asks what importing a foreign store would do.
type PreviewRequest struct {
	Source                ForeignSource
	Filter                Filter
	IncludeAutoResolvable bool
	DetailedDiff          bool
}

// ExecuteRequest imports a foreign store with the given resolutions.
type ExecuteRequest struct {
	Source      ForeignSource
	Filter      Filter
	Resolutions conflict.ResolutionPayload
}

// Service runs import previews and executions into one local store.
type Service struct {
	engine      *conflict.Engine
	opener      ForeignOpener
	local       LocalStore
	book        Bookkeeper
	parallelism int
	logger      *zap.Logger
}

// NewService creates an import service. book may be nil, in which case local
// deletions and earlier resolutions are not consulted.
func NewService(engine *conflict.Engine, opener ForeignOpener, local LocalStore, book Bookkeeper, parallelism int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if parallelism <= 0 {
		parallelism = 1
	}
	return &Service{
		engine:      engine,
		opener:      opener,
		local:       local,
		book:        book,
		parallelism: parallelism,
		logger:      logger,
	}
}

type analysis struct {
	*conflict.ImportAnalysis
	gathered *gathered
}

// analyze opens the foreign store, reads everything the filter selects and
// runs the import analysis. The filter is validated before any store call.
func (s *Service) analyze(ctx context.Context, src ForeignSource, filter Filter) (*analysis, error) {
	if _, err := filter.compile(); err != nil {
		return nil, err
	}
	if src.Path == "" && src.Object == "" {
		return nil, conflict.NewInvalidFilter("foreign_path or foreign_object is required")
	}

	start := time.Now()
	defer metrics.ObserveDuration(conflict.ScenarioImport, metrics.PhaseAnalyze, start)

	foreign, err := s.opener.OpenForeign(ctx, src)
	if err != nil {
		return nil, conflict.NewCollaboratorError("open foreign store", "", "", err)
	}
	defer foreign.Close()

	collections, err := foreign.ListCollections(ctx)
	if err != nil {
		return nil, conflict.NewCollaboratorError("list foreign collections", "", "", err)
	}
	names := make([]string, 0, len(collections))
	for _, c := range collections {
		names = append(names, c.Name)
	}
	mappings, err := filter.Expand(names)
	if err != nil {
		return nil, err
	}

	g, err := s.gather(ctx, foreign, mappings, collections)
	if err != nil {
		return nil, err
	}
	if len(mappings) == 0 {
		g.warnings = append(g.warnings, "filter matched no foreign collection")
	}

	a, err := s.engine.AnalyzeImport(ctx, foreign.Ref(), s.local.Ref(), g.batches)
	if err != nil {
		return nil, err
	}
	recorded, err := s.withRecorded(ctx, g.batches, a.Conflicts)
	if err != nil {
		return nil, err
	}
	if recorded {
		if a, err = s.engine.AnalyzeImport(ctx, foreign.Ref(), s.local.Ref(), g.batches); err != nil {
			return nil, err
		}
	}
	a.Warnings = append(g.warnings, a.Warnings...)
	return &analysis{ImportAnalysis: a, gathered: g}, nil
}

// Preview analyzes an import without writing anything. Only an invalid
// filter or a cancelled context returns an error; store failures are
// reported on an unsuccessful result.
func (s *Service) Preview(ctx context.Context, req PreviewRequest) (conflict.PreviewResult, error) {
	a, err := s.analyze(ctx, req.Source, req.Filter)
	if err != nil {
		if errors.Is(err, conflict.ErrInvalidFilter) || ctx.Err() != nil {
			return conflict.PreviewResult{}, err
		}
		s.logger.Error("Import preview failed", zap.Error(err))
		return conflict.PreviewResult{
			Success:           false,
			Scenario:          conflict.ScenarioImport,
			SourceRef:         sourceLabel(req.Source),
			TargetRef:         s.local.Ref(),
			Conflicts:         []conflict.Conflict{},
			RecommendedAction: conflict.ActionRecommendNothingToDo,
			Message:           "Import analysis failed: " + err.Error(),
			Warnings:          []string{err.Error()},
		}, nil
	}
	metrics.RecordConflicts(conflict.ScenarioImport, a.Conflicts)
	return a.Preview(conflict.PreviewOptions{
		IncludeAutoResolvable: req.IncludeAutoResolvable,
		Detailed:              req.DetailedDiff,
	}), nil
}

func sourceLabel(src ForeignSource) string {
	if src.Path != "" {
		return src.Path
	}
	return src.Object
}

// Execute analyzes the import again, resolves the open conflicts and writes
// one batch per target collection, creating missing targets first.
func (s *Service) Execute(ctx context.Context, req ExecuteRequest) (conflict.ExecutionResult, error) {
	a, err := s.analyze(ctx, req.Source, req.Filter)
	if err != nil {
		return conflict.ExecutionResult{}, err
	}
	var open []conflict.Conflict
	for _, c := range a.Conflicts {
		if err := conflict.VerifyIdentity(c); err != nil {
			return conflict.ExecutionResult{}, err
		}
		if !c.PreviouslyResolved {
			open = append(open, c)
		}
	}
	metrics.RecordConflicts(conflict.ScenarioImport, open)

	start := time.Now()
	batch := s.engine.ApplyResolutions(open, req.Resolutions.Requests, req.Resolutions.Options())
	metrics.ObserveDuration(conflict.ScenarioImport, metrics.PhaseResolve, start)
	metrics.RecordResolutions(conflict.ScenarioImport, batch)

	plan := conflict.PlanImportWrites(a.ImportAnalysis, batch)
	res := conflict.NewExecutionResult(conflict.ScenarioImport, a.SourceRef, a.TargetRef, batch)
	res.ExecutionID = uuid.NewString()
	res.Warnings = append(append([]string(nil), a.Warnings...), plan.Warnings...)
	log := s.logger.With(zap.String("execution_id", res.ExecutionID), zap.String("source", a.SourceRef))

	// Every batch is computed; abandon here rather than write part of it.
	if err := ctx.Err(); err != nil {
		return res, err
	}

	start = time.Now()
	for _, tw := range plan.Targets {
		if err := s.writeTarget(ctx, tw, a.gathered); err != nil {
			log.Error("Import write failed", zap.String("target", tw.Target), zap.Error(err))
			res.Message = fmt.Sprintf("Import stopped at collection %s: %d documents written before the failure", tw.Target, res.DocumentsImported+res.DocumentsUpdated)
			return res, err
		}
		metrics.RecordWriteBatch(tw.Target)
		if tw.Create {
			res.CollectionsCreated++
		}
		for _, d := range tw.Documents {
			if d.Update {
				res.DocumentsUpdated++
			} else {
				res.DocumentsImported++
			}
		}
	}
	metrics.ObserveDuration(conflict.ScenarioImport, metrics.PhaseWrite, start)
	res.DocumentsSkipped = plan.Skipped

	if s.book != nil {
		if err := s.book.RecordResolutions(ctx, res.ExecutionID, open, batch.Outcomes); err != nil {
			log.Warn("Could not record resolutions", zap.Error(err))
			res.Warnings = append(res.Warnings, "resolutions were not recorded: "+err.Error())
		}
	}

	res.Success = batch.Failed == 0
	res.Message = fmt.Sprintf("Imported %d and updated %d documents in %d collections", res.DocumentsImported, res.DocumentsUpdated, len(plan.Targets))
	if batch.Failed > 0 {
		res.Message += fmt.Sprintf("; %d conflicts could not be resolved", batch.Failed)
	}
	log.Info("Import executed",
		zap.Int("imported", res.DocumentsImported),
		zap.Int("updated", res.DocumentsUpdated),
		zap.Int("skipped", res.DocumentsSkipped),
		zap.Int("failed", batch.Failed))
	return res, nil
}

// writeTarget hands every document of one target to the local store in a
// single call.
func (s *Service) writeTarget(ctx context.Context, tw conflict.TargetWrite, g *gathered) error {
	docs := make([]Document, 0, len(tw.Documents))
	for _, d := range tw.Documents {
		doc := Document{ID: d.ID, Content: d.Content, Metadata: d.Metadata}
		// A vector only travels with the text it was computed from.
		if src, ok := g.foreign[d.SourceCollection][d.ID]; ok && src.Content == d.Content {
			doc.Embedding = src.Embedding
		}
		docs = append(docs, doc)
	}

	if tw.Create {
		cfg := g.configs[tw.Documents[0].SourceCollection]
		cfg.Legacy, cfg.Invalid = false, ""
		if cfg.Dimension == 0 {
			for _, d := range docs {
				if len(d.Embedding) > 0 {
					cfg.Dimension = len(d.Embedding)
					break
				}
			}
		}
		if err := s.local.CreateCollection(ctx, Collection{Name: tw.Target, Config: cfg}); err != nil {
			return conflict.NewCollaboratorError("create collection", tw.Target, "", err)
		}
	}
	if err := s.local.WriteBatch(ctx, tw.Target, docs); err != nil {
		return conflict.NewCollaboratorError("write batch", tw.Target, "", err)
	}
	return nil
}

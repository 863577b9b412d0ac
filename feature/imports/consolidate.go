package imports

import (
	"context"
	"fmt"
	"sort"

	"kb-bridge/core/conflict"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// gathered is everything read for one import before analysis.
type gathered struct {
	batches  []conflict.TargetBatch
	foreign  map[string]map[string]Document
	configs  map[string]CollectionConfig
	warnings []string
}

// gather reads the foreign documents selected by the mappings, pools them
// per target and loads the matching local state.
func (s *Service) gather(ctx context.Context, foreign ForeignStore, mappings []Mapping, collections []Collection) (*gathered, error) {
	g := &gathered{
		foreign: make(map[string]map[string]Document),
		configs: make(map[string]CollectionConfig),
	}
	for _, c := range collections {
		g.configs[c.Name] = c.Config
		if c.Config.Legacy {
			g.warnings = append(g.warnings, fmt.Sprintf("foreign collection %s has a configuration without _type (written by an older store version)", c.Name))
		}
	}

	// Each source is read once, however many targets it feeds.
	sources := make([]string, 0, len(mappings))
	for _, m := range mappings {
		if _, ok := g.foreign[m.Source]; !ok {
			g.foreign[m.Source] = nil
			sources = append(sources, m.Source)
		}
	}
	read := make([]map[string]Document, len(sources))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.parallelism)
	for i, src := range sources {
		eg.Go(func() error {
			docs, err := foreign.Documents(egCtx, src)
			if err != nil {
				return conflict.NewCollaboratorError("read foreign documents", src, "", err)
			}
			byID := make(map[string]Document, len(docs))
			for _, d := range docs {
				byID[d.ID] = d
			}
			read[i] = byID
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	for i, src := range sources {
		g.foreign[src] = read[i]
	}

	byTarget := make(map[string][]Mapping)
	var targets []string
	for _, m := range mappings {
		if _, ok := byTarget[m.Target]; !ok {
			targets = append(targets, m.Target)
		}
		byTarget[m.Target] = append(byTarget[m.Target], m)
	}
	sort.Strings(targets)

	for _, target := range targets {
		batch, err := s.targetBatch(ctx, target, byTarget[target], g)
		if err != nil {
			return nil, err
		}
		g.batches = append(g.batches, batch)
	}
	return g, nil
}

func (s *Service) targetBatch(ctx context.Context, target string, mappings []Mapping, g *gathered) (conflict.TargetBatch, error) {
	batch := conflict.TargetBatch{Target: target}

	local, exists, err := s.local.Collection(ctx, target)
	if err != nil {
		return batch, conflict.NewCollaboratorError("read local collection", target, "", err)
	}
	batch.TargetExists = exists

	seen := make(map[string]bool)
	var ids []string
	for _, m := range mappings {
		cfg := g.configs[m.Source]
		if exists {
			if reason := cfg.Compatible(local.Config); reason != "" {
				batch.Mismatches = append(batch.Mismatches, conflict.CollectionMismatch{SourceCollection: m.Source, Reason: reason})
			}
		} else if cfg.Invalid != "" {
			batch.Mismatches = append(batch.Mismatches, conflict.CollectionMismatch{
				SourceCollection: m.Source,
				Reason:           "foreign configuration is unreadable: " + cfg.Invalid,
			})
		}

		docs := g.foreign[m.Source]
		docIDs := make([]string, 0, len(docs))
		for id := range docs {
			docIDs = append(docIDs, id)
		}
		sort.Strings(docIDs)
		for _, id := range docIDs {
			if !m.Includes(id) {
				continue
			}
			batch.Foreign = append(batch.Foreign, conflict.ForeignDocument{
				SourceCollection: m.Source,
				DocumentID:       id,
				Snapshot:         docs[id].Snapshot(),
			})
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	if exists && len(ids) > 0 {
		docs, err := s.local.Documents(ctx, target, ids)
		if err != nil {
			return batch, conflict.NewCollaboratorError("read local documents", target, "", err)
		}
		batch.Local = make(map[string]conflict.Snapshot, len(docs))
		for id, d := range docs {
			batch.Local[id] = d.Snapshot()
		}
	}
	if s.book != nil && len(ids) > 0 {
		deleted, err := s.book.DeletedIDs(ctx, target, ids)
		if err != nil {
			return batch, conflict.NewCollaboratorError("read deletions", target, "", err)
		}
		batch.LocallyDeleted = deleted
	}

	s.logger.Debug("Target batch gathered",
		zap.String("target", target),
		zap.Bool("exists", exists),
		zap.Int("foreign_documents", len(batch.Foreign)),
		zap.Int("local_documents", len(batch.Local)),
		zap.Int("mismatches", len(batch.Mismatches)))
	return batch, nil
}

// keepsLocal reports whether a recorded decision left the local side as it
// was. Only those are remembered; any other decision already wrote the
// foreign version.
func keepsLocal(r conflict.ResolutionType) bool {
	switch r {
	case conflict.ResolutionSkip, conflict.ResolutionKeepTarget, conflict.ResolutionKeepOurs:
		return true
	}
	return false
}

// withRecorded attaches the earlier resolutions of the analyzed conflicts to
// their batches. It reports whether any were found.
func (s *Service) withRecorded(ctx context.Context, batches []conflict.TargetBatch, conflicts []conflict.Conflict) (bool, error) {
	if s.book == nil || len(conflicts) == 0 {
		return false, nil
	}
	ids := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		ids = append(ids, c.ConflictID)
	}
	recorded, err := s.book.RecordedResolutions(ctx, ids)
	if err != nil {
		return false, conflict.NewCollaboratorError("read recorded resolutions", "", "", err)
	}
	if len(recorded) == 0 {
		return false, nil
	}
	byTarget := make(map[string]map[string]conflict.RecordedResolution)
	for _, c := range conflicts {
		r, ok := recorded[c.ConflictID]
		if !ok || !keepsLocal(r.Resolution) {
			continue
		}
		if byTarget[c.TargetCollection] == nil {
			byTarget[c.TargetCollection] = make(map[string]conflict.RecordedResolution)
		}
		byTarget[c.TargetCollection][c.ConflictID] = r
	}
	for i := range batches {
		batches[i].Recorded = byTarget[batches[i].Target]
	}
	return len(byTarget) > 0, nil
}

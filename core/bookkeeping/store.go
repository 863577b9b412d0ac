package bookkeeping

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"kb-bridge/core/conflict"
	"kb-bridge/core/database"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	dbFileName   = "bookkeeping.db"
	lockFileName = "bookkeeping.lock"

	lockRetryDelay = 50 * time.Millisecond

	// idChunkSize keeps IN lists under sqlite's variable limit.
	idChunkSize = 500
)

// ErrLocked is returned when the write lock could not be acquired in time.
var ErrLocked = errors.New("bookkeeping store is locked by another process")

// Store reads and writes bookkeeping records.
type Store struct {
	db          *gorm.DB
	lock        *flock.Flock
	lockTimeout time.Duration
	mu          sync.Mutex
	log         *zap.Logger
}

// Open opens (creating if needed) the store under cfg.Path.
func Open(cfg Config, log *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create bookkeeping dir: %w", err)
	}
	db, err := database.Connect(database.Config{
		Driver: "sqlite",
		Name:   filepath.Join(cfg.Path, dbFileName),
	})
	if err != nil {
		return nil, fmt.Errorf("open bookkeeping db: %w", err)
	}
	return New(db, filepath.Join(cfg.Path, lockFileName), cfg.LockTimeout, log)
}

// New wraps an existing connection. The schema is migrated on the way in.
func New(db *gorm.DB, lockPath string, lockTimeout time.Duration, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if lockTimeout <= 0 {
		lockTimeout = 10 * time.Second
	}
	if err := db.AutoMigrate(&Deletion{}, &Resolution{}); err != nil {
		return nil, fmt.Errorf("migrate bookkeeping schema: %w", err)
	}
	return &Store{
		db:          db,
		lock:        flock.New(lockPath),
		lockTimeout: lockTimeout,
		log:         log.Named("bookkeeping"),
	}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// withLock runs fn while holding both the in-process mutex and the file lock.
func (s *Store) withLock(ctx context.Context, fn func(tx *gorm.DB) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lctx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	locked, err := s.lock.TryLockContext(lctx, lockRetryDelay)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil || !locked {
		return fmt.Errorf("%w: %s", ErrLocked, s.lock.Path())
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.log.Warn("Failed to release bookkeeping lock", zap.Error(err))
		}
	}()

	return s.db.WithContext(ctx).Transaction(fn)
}

// IsLocallyDeleted reports whether documentID was deleted on purpose from collection.
func (s *Store) IsLocallyDeleted(ctx context.Context, documentID, collection string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Deletion{}).
		Where("collection = ? AND document_id = ?", collection, documentID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check deletion of %s/%s: %w", collection, documentID, err)
	}
	return count > 0, nil
}

// DeletedIDs returns which of ids were deleted on purpose from collection.
func (s *Store) DeletedIDs(ctx context.Context, collection string, ids []string) (map[string]bool, error) {
	out := make(map[string]bool)
	for start := 0; start < len(ids); start += idChunkSize {
		end := min(start+idChunkSize, len(ids))
		var found []string
		err := s.db.WithContext(ctx).Model(&Deletion{}).
			Where("collection = ? AND document_id IN ?", collection, ids[start:end]).
			Pluck("document_id", &found).Error
		if err != nil {
			return nil, fmt.Errorf("load deletions of %s: %w", collection, err)
		}
		for _, id := range found {
			out[id] = true
		}
	}
	return out, nil
}

// RecordDeletion marks a document as deleted on purpose. Recording it twice is a no-op.
func (s *Store) RecordDeletion(ctx context.Context, collection, documentID, reason string) error {
	if collection == "" || documentID == "" {
		return errors.New("collection and document id are required")
	}
	return s.withLock(ctx, func(tx *gorm.DB) error {
		d := Deletion{Collection: collection, DocumentID: documentID, Reason: reason, DeletedAt: time.Now().UTC()}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&d).Error
	})
}

// ClearDeletion forgets a deletion so the document may be imported again.
func (s *Store) ClearDeletion(ctx context.Context, collection, documentID string) error {
	return s.withLock(ctx, func(tx *gorm.DB) error {
		return tx.Where("collection = ? AND document_id = ?", collection, documentID).Delete(&Deletion{}).Error
	})
}

// ListDeletions lists deletions, optionally narrowed to one collection.
func (s *Store) ListDeletions(ctx context.Context, collection string) ([]Deletion, error) {
	var out []Deletion
	q := s.db.WithContext(ctx).Order("collection, document_id")
	if collection != "" {
		q = q.Where("collection = ?", collection)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list deletions: %w", err)
	}
	return out, nil
}

// RecordResolutions stores the successful outcomes of an execution.
func (s *Store) RecordResolutions(ctx context.Context, executionID string, conflicts []conflict.Conflict, outcomes []conflict.ResolutionOutcome) error {
	byID := make(map[string]conflict.Conflict, len(conflicts))
	for _, c := range conflicts {
		byID[c.ConflictID] = c
	}
	now := time.Now().UTC()
	var rows []Resolution
	for _, o := range outcomes {
		c, ok := byID[o.ConflictID]
		if !ok || !o.Success {
			continue
		}
		collection := c.Table
		if c.Scenario == conflict.ScenarioImport {
			collection = c.TargetCollection
		}
		rows = append(rows, Resolution{
			ConflictID:  c.ConflictID,
			Scenario:    string(c.Scenario),
			Type:        string(c.Type),
			Collection:  collection,
			DocumentID:  c.DocumentID,
			Resolution:  string(o.Resolution),
			SourceHash:  conflict.RecordHash(c),
			ExecutionID: executionID,
			ResolvedAt:  now,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	return s.withLock(ctx, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "conflict_id"}},
			UpdateAll: true,
		}).CreateInBatches(rows, 200).Error
	})
}

// RecordedResolutions returns earlier decisions for the given conflict ids.
func (s *Store) RecordedResolutions(ctx context.Context, conflictIDs []string) (map[string]conflict.RecordedResolution, error) {
	out := make(map[string]conflict.RecordedResolution)
	for start := 0; start < len(conflictIDs); start += idChunkSize {
		end := min(start+idChunkSize, len(conflictIDs))
		var rows []Resolution
		if err := s.db.WithContext(ctx).Where("conflict_id IN ?", conflictIDs[start:end]).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("load recorded resolutions: %w", err)
		}
		for _, r := range rows {
			out[r.ConflictID] = conflict.RecordedResolution{
				Resolution: conflict.ResolutionType(r.Resolution),
				SourceHash: r.SourceHash,
			}
		}
	}
	return out, nil
}

// ResolutionsByExecution lists the decisions recorded by one execution.
func (s *Store) ResolutionsByExecution(ctx context.Context, executionID string) ([]Resolution, error) {
	var out []Resolution
	err := s.db.WithContext(ctx).Where("execution_id = ?", executionID).Order("conflict_id").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("load resolutions of execution %s: %w", executionID, err)
	}
	return out, nil
}

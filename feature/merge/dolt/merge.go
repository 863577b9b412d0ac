package dolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"kb-bridge/core/conflict"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ApplyMerge implements conflict.MergeWriter.
func (s *Store) ApplyMerge(ctx context.Context, req conflict.MergeApply) (string, error) {
	if err := checkRef(req.SourceRef); err != nil {
		return "", err
	}
	if err := checkRef(req.TargetRef); err != nil {
		return "", err
	}

	// Resolve table layouts before pinning a connection.
	infos := make(map[string]tableInfo)
	for _, w := range req.Writes {
		if _, ok := infos[w.Table]; ok {
			continue
		}
		info, err := s.table(ctx, w.Table)
		if err != nil {
			return "", err
		}
		infos[w.Table] = info
	}

	log := s.log.With(zap.String("source", req.SourceRef), zap.String("target", req.TargetRef))
	var commit string
	err := s.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		tx := conn.Session(&gorm.Session{SkipDefaultTransaction: true})
		if err := tx.Exec("SET @@autocommit = 0").Error; err != nil {
			return err
		}
		defer tx.Exec("SET @@autocommit = 1")

		merged := false
		fail := func(err error) error {
			if merged {
				if aerr := tx.Exec("CALL DOLT_MERGE('--abort')").Error; aerr != nil {
					log.Warn("Failed to abort merge", zap.Error(aerr))
				}
			}
			if rerr := tx.Exec("ROLLBACK").Error; rerr != nil {
				log.Warn("Failed to roll back merge", zap.Error(rerr))
			}
			return err
		}

		if err := tx.Exec("CALL DOLT_CHECKOUT(?)", req.TargetRef).Error; err != nil {
			return fail(fmt.Errorf("checkout %s: %w", req.TargetRef, err))
		}
		if err := tx.Exec("CALL DOLT_MERGE('--no-ff', '--no-commit', ?)", req.SourceRef).Error; err != nil {
			return fail(fmt.Errorf("merge %s into %s: %w", req.SourceRef, req.TargetRef, err))
		}
		merged = true

		var conflicted []string
		if err := tx.Raw("SELECT `table` FROM dolt_conflicts").Scan(&conflicted).Error; err != nil {
			return fail(fmt.Errorf("list merge conflicts: %w", err))
		}
		for _, table := range conflicted {
			if err := tx.Exec("CALL DOLT_CONFLICTS_RESOLVE('--ours', ?)", table).Error; err != nil {
				return fail(fmt.Errorf("resolve conflicts of %s: %w", table, err))
			}
		}

		for _, w := range req.Writes {
			if err := ctx.Err(); err != nil {
				return fail(err)
			}
			if err := applyWrite(tx, infos[w.Table], w); err != nil {
				return fail(conflict.NewCollaboratorError("write", w.Table, w.DocumentID, err))
			}
		}

		msg := req.Message
		if msg == "" {
			msg = fmt.Sprintf("Merge %s into %s", req.SourceRef, req.TargetRef)
		}
		args := []any{"-A", "-m", msg}
		q := "CALL DOLT_COMMIT(?, ?, ?)"
		if req.Author != "" {
			q = "CALL DOLT_COMMIT(?, ?, ?, ?, ?)"
			args = append(args, "--author", req.Author)
		}
		if err := tx.Raw(q, args...).Scan(&commit).Error; err != nil {
			return fail(fmt.Errorf("commit merge: %w", err))
		}
		if commit == "" {
			return fail(errors.New("commit merge: no commit hash returned"))
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	log.Info("Merge committed", zap.String("commit", commit), zap.Int("writes", len(req.Writes)))
	return commit, nil
}

// applyWrite upserts or deletes one resolved row. Fields unknown to the table
// are dropped.
func applyWrite(tx *gorm.DB, info tableInfo, w conflict.DocumentWrite) error {
	table := quoteIdent(w.Table)
	if w.Delete {
		return tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, quoteIdent(info.key)), w.DocumentID).Error
	}

	row := map[string]any{info.key: w.DocumentID}
	for k, v := range w.Metadata {
		if !info.columns[k] || k == info.key {
			continue
		}
		cv, err := columnValue(v)
		if err != nil {
			return fmt.Errorf("field %s: %w", k, err)
		}
		row[k] = cv
	}
	if w.Content != nil && info.content != "" {
		row[info.content] = *w.Content
	}

	updates := make([]string, 0, len(row))
	for k := range row {
		if k != info.key {
			updates = append(updates, k)
		}
	}
	sort.Strings(updates)
	onConflict := clause.OnConflict{DoNothing: true}
	if len(updates) > 0 {
		onConflict = clause.OnConflict{DoUpdates: clause.AssignmentColumns(updates)}
	}
	return tx.Table(w.Table).Clauses(onConflict).Create(row).Error
}

// columnValue stores nested values as JSON text.
func columnValue(v any) (any, error) {
	switch v.(type) {
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return v, nil
	}
}

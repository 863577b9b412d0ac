package dolt

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"kb-bridge/core/conflict"
	"kb-bridge/core/database"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// errNoSuchTable is the MySQL error number Dolt returns for a table missing at a ref.
const errNoSuchTable = 1146

var refPattern = regexp.MustCompile(`^[A-Za-z0-9_./@~^-]+$`)

// tableInfo is the layout of one document table.
type tableInfo struct {
	key     string
	content string
	columns map[string]bool
}

// Store reads and merges documents kept in Dolt tables.
type Store struct {
	db            *gorm.DB
	name          string
	contentFields []string
	log           *zap.Logger

	mu     sync.Mutex
	tables map[string]tableInfo
}

// New wraps a connection to a Dolt SQL server. name scopes cached snapshots
// and is usually the database name.
func New(db *gorm.DB, name string, contentFields []string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	if len(contentFields) == 0 {
		contentFields = conflict.DefaultContentFields
	}
	return &Store{
		db:            db,
		name:          name,
		contentFields: contentFields,
		log:           log.Named("dolt"),
		tables:        make(map[string]tableInfo),
	}
}

// Name implements conflict.VersionedStore.
func (s *Store) Name() string {
	return "dolt:" + s.name
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func checkRef(ref string) error {
	if !refPattern.MatchString(ref) {
		return fmt.Errorf("invalid ref %q", ref)
	}
	return nil
}

func isNoSuchTable(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == errNoSuchTable {
		return true
	}
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "table not found")
}

// table returns the key and content columns of a table, read once.
func (s *Store) table(ctx context.Context, table string) (tableInfo, error) {
	s.mu.Lock()
	info, ok := s.tables[table]
	s.mu.Unlock()
	if ok {
		return info, nil
	}

	cols, err := database.GetTableColumns(s.db.WithContext(ctx), table)
	if err != nil {
		return tableInfo{}, err
	}
	info = tableInfo{columns: make(map[string]bool, len(cols))}
	for _, c := range cols {
		info.columns[c.Field] = true
		if c.Key == "PRI" && info.key == "" {
			info.key = c.Field
		}
	}
	if info.key == "" {
		for _, name := range conflict.IDFields {
			if info.columns[name] {
				info.key = name
				break
			}
		}
	}
	if info.key == "" {
		return tableInfo{}, fmt.Errorf("table %s has no primary key or id column", table)
	}
	for _, name := range s.contentFields {
		if info.columns[name] {
			info.content = name
			break
		}
	}

	s.mu.Lock()
	s.tables[table] = info
	s.mu.Unlock()
	return info, nil
}

// ResolveRef pins a branch or tag to its commit hash.
func (s *Store) ResolveRef(ctx context.Context, ref string) (string, error) {
	var hash string
	if err := s.db.WithContext(ctx).Raw("SELECT HASHOF(?)", ref).Scan(&hash).Error; err != nil {
		return "", fmt.Errorf("resolve %s: %w", ref, err)
	}
	if hash == "" {
		return "", fmt.Errorf("resolve %s: unknown ref", ref)
	}
	return hash, nil
}

// MergeBase implements conflict.VersionedStore.
func (s *Store) MergeBase(ctx context.Context, ours, theirs string) (string, error) {
	var base string
	if err := s.db.WithContext(ctx).Raw("SELECT DOLT_MERGE_BASE(?, ?)", ours, theirs).Scan(&base).Error; err != nil {
		return "", fmt.Errorf("merge base of %s and %s: %w", ours, theirs, err)
	}
	if base == "" {
		return "", fmt.Errorf("%s and %s share no history", ours, theirs)
	}
	return base, nil
}

// ChangedTables implements conflict.VersionedStore. Tables whose schema
// changed without data changes are left out.
func (s *Store) ChangedTables(ctx context.Context, from, to string) ([]string, error) {
	type summaryRow struct {
		FromTableName string
		ToTableName   string
		DataChange    bool
	}
	var rows []summaryRow
	err := s.db.WithContext(ctx).
		Raw("SELECT from_table_name, to_table_name, data_change FROM DOLT_DIFF_SUMMARY(?, ?)", from, to).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("diff summary %s..%s: %w", from, to, err)
	}

	seen := make(map[string]bool)
	var tables []string
	for _, r := range rows {
		if !r.DataChange {
			continue
		}
		name := r.ToTableName
		if name == "" {
			name = r.FromTableName
		}
		if name != "" && !seen[name] {
			seen[name] = true
			tables = append(tables, name)
		}
	}
	sort.Strings(tables)
	return tables, nil
}

// ChangedDocuments implements conflict.VersionedStore.
func (s *Store) ChangedDocuments(ctx context.Context, table, from, to string) (map[string]conflict.ChangeType, error) {
	info, err := s.table(ctx, table)
	if err != nil {
		return nil, err
	}

	type diffRow struct {
		FromID   *string
		ToID     *string
		DiffType string
	}
	q := fmt.Sprintf("SELECT %s AS from_id, %s AS to_id, diff_type FROM DOLT_DIFF(?, ?, ?)",
		quoteIdent("from_"+info.key), quoteIdent("to_"+info.key))
	var rows []diffRow
	if err := s.db.WithContext(ctx).Raw(q, from, to, table).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("diff %s %s..%s: %w", table, from, to, err)
	}

	out := make(map[string]conflict.ChangeType, len(rows))
	for _, r := range rows {
		id := ""
		if r.ToID != nil {
			id = *r.ToID
		} else if r.FromID != nil {
			id = *r.FromID
		}
		if id == "" {
			continue
		}
		out[id] = conflict.ChangeType(r.DiffType)
	}
	return out, nil
}

// Snapshot implements conflict.VersionedStore.
func (s *Store) Snapshot(ctx context.Context, table, documentID, ref string) (conflict.Snapshot, error) {
	if err := checkRef(ref); err != nil {
		return conflict.Snapshot{}, err
	}
	info, err := s.table(ctx, table)
	if err != nil {
		return conflict.Snapshot{}, err
	}

	q := fmt.Sprintf("SELECT * FROM %s AS OF '%s' WHERE %s = ? LIMIT 1", quoteIdent(table), ref, quoteIdent(info.key))
	var rows []map[string]any
	if err := s.db.WithContext(ctx).Raw(q, documentID).Find(&rows).Error; err != nil {
		if isNoSuchTable(err) {
			return conflict.Absent(), nil
		}
		return conflict.Snapshot{}, fmt.Errorf("read %s/%s at %s: %w", table, documentID, ref, err)
	}
	if len(rows) == 0 {
		return conflict.Absent(), nil
	}
	return conflict.RowSnapshot(rows[0], s.contentFields), nil
}

// ConflictTables implements conflict.ConflictSummarizer.
func (s *Store) ConflictTables(ctx context.Context, ours, theirs string) ([]string, error) {
	var tables []string
	err := s.db.WithContext(ctx).
		Raw("SELECT `table` FROM DOLT_PREVIEW_MERGE_CONFLICTS_SUMMARY(?, ?) WHERE num_data_conflicts > 0", ours, theirs).
		Scan(&tables).Error
	if err != nil {
		return nil, conflict.NewAnalysisUnavailable("dolt conflict summary", err)
	}
	sort.Strings(tables)
	return tables, nil
}

// ConflictRows implements conflict.ConflictSummarizer. Rows carry base_,
// our_ and their_ columns plus our_diff_type and their_diff_type.
func (s *Store) ConflictRows(ctx context.Context, table, ours, theirs string) ([]map[string]any, error) {
	var rows []map[string]any
	err := s.db.WithContext(ctx).
		Raw("SELECT * FROM DOLT_PREVIEW_MERGE_CONFLICTS(?, ?, ?)", ours, theirs, table).
		Find(&rows).Error
	if err != nil {
		return nil, conflict.NewAnalysisUnavailable("dolt conflict rows of "+table, err)
	}
	return rows, nil
}

var (
	_ conflict.VersionedStore     = (*Store)(nil)
	_ conflict.RefResolver        = (*Store)(nil)
	_ conflict.ConflictSummarizer = (*Store)(nil)
	_ conflict.MergeWriter        = (*Store)(nil)
)

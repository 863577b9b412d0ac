package dolt

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"kb-bridge/core/conflict"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to open mock sql db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	dialector := gormmysql.New(gormmysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	})
	gormDB, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("Failed to open gorm db: %v", err)
	}
	return gormDB, mock
}

func expectColumns(mock sqlmock.Sqlmock, table string) {
	rows := sqlmock.NewRows([]string{"Field", "Type", "Null", "Key", "Default", "Extra"}).
		AddRow("doc_id", "varchar(64)", "NO", "PRI", nil, "").
		AddRow("content", "longtext", "YES", "", nil, "").
		AddRow("title", "varchar(255)", "YES", "", nil, "").
		AddRow("tags", "json", "YES", "", nil, "")
	mock.ExpectQuery(regexp.QuoteMeta("SHOW COLUMNS FROM `" + table + "`")).WillReturnRows(rows)
}

func TestStore_ResolveRefAndMergeBase(t *testing.T) {
	db, mock := setupMockDB(t)
	s := New(db, "kb", nil, nil)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT HASHOF(?)")).WithArgs("main").
		WillReturnRows(sqlmock.NewRows([]string{"hash"}).AddRow("abc123"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT DOLT_MERGE_BASE(?, ?)")).WithArgs("abc123", "def456").
		WillReturnRows(sqlmock.NewRows([]string{"base"}).AddRow("base789"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT DOLT_MERGE_BASE(?, ?)")).WithArgs("a", "b").
		WillReturnRows(sqlmock.NewRows([]string{"base"}).AddRow(""))

	hash, err := s.ResolveRef(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, "abc123", hash)

	base, err := s.MergeBase(ctx, "abc123", "def456")
	require.NoError(t, err)
	assert.Equal(t, "base789", base)

	_, err = s.MergeBase(ctx, "a", "b")
	assert.Error(t, err)

	assert.Equal(t, "dolt:kb", s.Name())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ChangedTables(t *testing.T) {
	db, mock := setupMockDB(t)
	s := New(db, "kb", nil, nil)

	rows := sqlmock.NewRows([]string{"from_table_name", "to_table_name", "data_change"}).
		AddRow("notes", "notes", true).
		AddRow("", "archive", true).
		AddRow("legacy", "", true).
		AddRow("schema_only", "schema_only", false)
	mock.ExpectQuery(regexp.QuoteMeta("FROM DOLT_DIFF_SUMMARY(?, ?)")).WithArgs("base", "ours").WillReturnRows(rows)

	tables, err := s.ChangedTables(context.Background(), "base", "ours")
	require.NoError(t, err)
	assert.Equal(t, []string{"archive", "legacy", "notes"}, tables)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ChangedDocuments(t *testing.T) {
	db, mock := setupMockDB(t)
	s := New(db, "kb", nil, nil)

	expectColumns(mock, "notes")
	rows := sqlmock.NewRows([]string{"from_id", "to_id", "diff_type"}).
		AddRow(nil, "doc_1", "added").
		AddRow("doc_2", "doc_2", "modified").
		AddRow("doc_3", nil, "removed")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT `from_doc_id` AS from_id, `to_doc_id` AS to_id, diff_type FROM DOLT_DIFF(?, ?, ?)")).
		WithArgs("base", "theirs", "notes").
		WillReturnRows(rows)

	changes, err := s.ChangedDocuments(context.Background(), "notes", "base", "theirs")
	require.NoError(t, err)
	assert.Equal(t, map[string]conflict.ChangeType{
		"doc_1": conflict.ChangeAdded,
		"doc_2": conflict.ChangeModified,
		"doc_3": conflict.ChangeRemoved,
	}, changes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Snapshot(t *testing.T) {
	db, mock := setupMockDB(t)
	s := New(db, "kb", nil, nil)
	ctx := context.Background()

	expectColumns(mock, "notes")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `notes` AS OF 'abc123' WHERE `doc_id` = ? LIMIT 1")).
		WithArgs("doc_1").
		WillReturnRows(sqlmock.NewRows([]string{"doc_id", "content", "title"}).AddRow("doc_1", []byte("hello"), "Greeting"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `notes` AS OF 'abc123'")).
		WithArgs("doc_2").
		WillReturnRows(sqlmock.NewRows([]string{"doc_id", "content", "title"}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `notes` AS OF 'base'")).
		WithArgs("doc_1").
		WillReturnError(&mysql.MySQLError{Number: errNoSuchTable, Message: "table not found: notes"})

	snap, err := s.Snapshot(ctx, "notes", "doc_1", "abc123")
	require.NoError(t, err)
	assert.True(t, snap.Exists)
	assert.Equal(t, "hello", snap.ContentString())
	assert.Equal(t, map[string]any{"title": "Greeting"}, snap.Metadata)

	snap, err = s.Snapshot(ctx, "notes", "doc_2", "abc123")
	require.NoError(t, err)
	assert.False(t, snap.Exists)

	snap, err = s.Snapshot(ctx, "notes", "doc_1", "base")
	require.NoError(t, err)
	assert.False(t, snap.Exists)

	_, err = s.Snapshot(ctx, "notes", "doc_1", "main'; DROP TABLE notes; --")
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_NativeConflicts(t *testing.T) {
	db, mock := setupMockDB(t)
	s := New(db, "kb", nil, nil)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("FROM DOLT_PREVIEW_MERGE_CONFLICTS_SUMMARY(?, ?)")).
		WithArgs("ours", "theirs").
		WillReturnRows(sqlmock.NewRows([]string{"table"}).AddRow("notes"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM DOLT_PREVIEW_MERGE_CONFLICTS(?, ?, ?)")).
		WithArgs("ours", "theirs", "notes").
		WillReturnRows(sqlmock.NewRows([]string{
			"base_doc_id", "base_content", "our_doc_id", "our_content", "our_diff_type",
			"their_doc_id", "their_content", "their_diff_type", "dolt_conflict_id",
		}).AddRow("doc_1", "v1", "doc_1", "v2a", "modified", "doc_1", "v2b", "modified", "x1"))

	tables, err := s.ConflictTables(ctx, "ours", "theirs")
	require.NoError(t, err)
	assert.Equal(t, []string{"notes"}, tables)

	rows, err := s.ConflictRows(ctx, "notes", "ours", "theirs")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	raw, err := conflict.ParseRawConflictRow("notes", rows[0], conflict.DefaultContentFields)
	require.NoError(t, err)
	assert.Equal(t, "doc_1", raw.DocumentID)
	assert.Equal(t, "v2a", raw.Ours.ContentString())
	assert.Equal(t, "v2b", raw.Theirs.ContentString())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_NativeConflictsUnavailable(t *testing.T) {
	db, mock := setupMockDB(t)
	s := New(db, "kb", nil, nil)

	mock.ExpectQuery("DOLT_PREVIEW_MERGE_CONFLICTS_SUMMARY").WillReturnError(errors.New("function not found"))

	_, err := s.ConflictTables(context.Background(), "ours", "theirs")
	assert.ErrorIs(t, err, conflict.ErrAnalysisUnavailable)
}

package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"kb-bridge/feature/imports"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, "pgvector", 384, nil), mock
}

func TestStore_Collection(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery("SELECT (.+) FROM kb_collections c").
		WithArgs("notes").
		WillReturnRows(sqlmock.NewRows([]string{"name", "space", "dimension", "count"}).AddRow("notes", "cosine", 384, 12))

	c, ok, err := s.Collection(context.Background(), "notes")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, imports.Collection{Name: "notes", Config: imports.CollectionConfig{Space: "cosine", Dimension: 384}, Count: 12}, c)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CollectionMissing(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery("SELECT (.+) FROM kb_collections c").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, ok, err := s.Collection(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_Documents(t *testing.T) {
	s, mock := newMock(t)

	ids := []string{"doc_1", "doc_2"}
	mock.ExpectQuery("SELECT id, content, metadata FROM kb_documents").
		WithArgs("notes", pq.Array(ids)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "content", "metadata"}).
			AddRow("doc_1", "hello", []byte(`{"page":3}`)).
			AddRow("doc_2", "world", nil))

	docs, err := s.Documents(context.Background(), "notes", ids)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, map[string]any{"page": float64(3)}, docs["doc_1"].Metadata)
	assert.Nil(t, docs["doc_2"].Metadata)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DocumentsNoIDs(t *testing.T) {
	s, mock := newMock(t)

	docs, err := s.Documents(context.Background(), "notes", nil)
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateCollection(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec("INSERT INTO kb_collections").
		WithArgs("notes", "l2", 384).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.CreateCollection(context.Background(), imports.Collection{Name: "notes"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WriteBatch(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO kb_documents")
	prep.ExpectExec().
		WithArgs("notes", "doc_1", "hello", []byte(`{"page":3}`), pgvector.NewVector([]float32{1, 2}), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs("notes", "doc_2", "world", nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.WriteBatch(context.Background(), "notes", []imports.Document{
		{ID: "doc_1", Content: "hello", Metadata: map[string]any{"page": 3}, Embedding: []float32{1, 2}},
		{ID: "doc_2", Content: "world"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WriteBatchRollsBack(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO kb_documents")
	prep.ExpectExec().WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.WriteBatch(context.Background(), "notes", []imports.Document{{ID: "doc_1", Content: "x"}})
	assert.ErrorContains(t, err, "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_EnsureSchema(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS kb_collections").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

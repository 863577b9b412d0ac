// Package pgstore is the local semantic store: collections of documents with
// pgvector embeddings in Postgres.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"kb-bridge/feature/imports"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

const schema = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS kb_collections (
	name       TEXT PRIMARY KEY,
	space      TEXT NOT NULL DEFAULT 'l2',
	dimension  INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS kb_documents (
	collection TEXT NOT NULL REFERENCES kb_collections(name) ON DELETE CASCADE,
	id         TEXT NOT NULL,
	content    TEXT NOT NULL,
	metadata   JSONB,
	embedding  vector,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
);`

// Store implements imports.LocalStore on Postgres.
type Store struct {
	db               *sql.DB
	ref              string
	defaultDimension int
	logger           *zap.Logger
}

var _ imports.LocalStore = (*Store)(nil)

// Open connects to dsn with the lib/pq driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping vector store: %w", err)
	}
	return db, nil
}

// New wraps db. ref names the store in results; defaultDimension is used for
// collections created without a known embedding width.
func New(db *sql.DB, ref string, defaultDimension int, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, ref: ref, defaultDimension: defaultDimension, logger: logger}
}

// EnsureSchema creates the tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create vector store schema: %w", err)
	}
	return nil
}

// Ref implements imports.LocalStore.
func (s *Store) Ref() string {
	return s.ref
}

// Collection implements imports.LocalStore.
func (s *Store) Collection(ctx context.Context, name string) (imports.Collection, bool, error) {
	query := `
		SELECT c.name, c.space, c.dimension, COUNT(d.id)
		FROM kb_collections c
		LEFT JOIN kb_documents d ON d.collection = c.name
		WHERE c.name = $1
		GROUP BY c.name, c.space, c.dimension
	`
	var c imports.Collection
	err := s.db.QueryRowContext(ctx, query, name).Scan(&c.Name, &c.Config.Space, &c.Config.Dimension, &c.Count)
	if err == sql.ErrNoRows {
		return imports.Collection{}, false, nil
	}
	if err != nil {
		return imports.Collection{}, false, err
	}
	return c, true, nil
}

// Documents implements imports.LocalStore. Embeddings are not read.
func (s *Store) Documents(ctx context.Context, collection string, ids []string) (map[string]imports.Document, error) {
	out := make(map[string]imports.Document, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := `
		SELECT id, content, metadata
		FROM kb_documents
		WHERE collection = $1 AND id = ANY($2)
	`
	rows, err := s.db.QueryContext(ctx, query, collection, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var d imports.Document
		var meta []byte
		if err := rows.Scan(&d.ID, &d.Content, &meta); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &d.Metadata); err != nil {
				return nil, fmt.Errorf("document %s/%s has unreadable metadata: %w", collection, d.ID, err)
			}
		}
		out[d.ID] = d
	}
	return out, rows.Err()
}

// CreateCollection implements imports.LocalStore.
func (s *Store) CreateCollection(ctx context.Context, c imports.Collection) error {
	space := c.Config.Space
	if space == "" {
		space = imports.SpaceL2
	}
	dim := c.Config.Dimension
	if dim == 0 {
		dim = s.defaultDimension
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kb_collections (name, space, dimension) VALUES ($1, $2, $3) ON CONFLICT (name) DO NOTHING`,
		c.Name, space, dim)
	if err != nil {
		return err
	}
	s.logger.Info("Created collection", zap.String("collection", c.Name), zap.String("space", space), zap.Int("dimension", dim))
	return nil
}

// WriteBatch implements imports.LocalStore. All documents are upserted in a
// single transaction.
func (s *Store) WriteBatch(ctx context.Context, collection string, docs []imports.Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO kb_documents (collection, id, content, metadata, embedding, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (collection, id) DO UPDATE
		SET content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding,
			updated_at = EXCLUDED.updated_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, d := range docs {
		var meta any
		if len(d.Metadata) > 0 {
			b, err := json.Marshal(d.Metadata)
			if err != nil {
				return fmt.Errorf("encode metadata of %s: %w", d.ID, err)
			}
			meta = b
		}
		var embedding any
		if len(d.Embedding) > 0 {
			embedding = pgvector.NewVector(d.Embedding)
		}
		if _, err := stmt.ExecContext(ctx, collection, d.ID, d.Content, meta, embedding, now); err != nil {
			return fmt.Errorf("write %s/%s: %w", collection, d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Debug("Wrote batch", zap.String("collection", collection), zap.Int("documents", len(docs)))
	return nil
}

// Collections lists every local collection.
func (s *Store) Collections(ctx context.Context) ([]imports.Collection, error) {
	query := `
		SELECT c.name, c.space, c.dimension, COUNT(d.id)
		FROM kb_collections c
		LEFT JOIN kb_documents d ON d.collection = c.name
		GROUP BY c.name, c.space, c.dimension
		ORDER BY c.name
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []imports.Collection
	for rows.Next() {
		var c imports.Collection
		if err := rows.Scan(&c.Name, &c.Config.Space, &c.Config.Dimension, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

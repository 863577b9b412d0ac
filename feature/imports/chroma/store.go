package chroma

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"

	"kb-bridge/core/database"
	"kb-bridge/feature/imports"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// documentKey holds the document text in embedding metadata.
const documentKey = "chroma:document"

// Store is a read-only view of one Chroma database.
type Store struct {
	db      *gorm.DB
	ref     string
	log     *zap.Logger
	cleanup func() error
}

var _ imports.ForeignStore = (*Store)(nil)

// Open discovers the database under path and opens it read-only.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	file, err := Discover(path)
	if err != nil {
		return nil, err
	}
	db, err := database.Connect(database.Config{
		Driver: "sqlite",
		Name:   "file:" + file + "?mode=ro",
	})
	if err != nil {
		return nil, fmt.Errorf("open chroma database %s: %w", file, err)
	}
	missing, err := database.HasColumns(db, "collections", "id", "name")
	if err != nil || len(missing) > 0 {
		closeDB(db)
		return nil, fmt.Errorf("%s is not a chroma database: collections table missing or incomplete", file)
	}
	log.Debug("Opened chroma database", zap.String("path", file))
	return &Store{db: db, ref: path, log: log.Named("chroma")}, nil
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ref returns the path the store was opened from.
func (s *Store) Ref() string {
	return s.ref
}

// Close closes the database and removes any fetched copy.
func (s *Store) Close() error {
	err := closeDB(s.db)
	if s.cleanup != nil {
		if cerr := s.cleanup(); err == nil {
			err = cerr
		}
	}
	return err
}

type collectionRow struct {
	ID        string
	Name      string
	Config    *string
	Dimension *int64
}

// configColumn finds the configuration column, which was renamed across versions.
func (s *Store) configColumn() (string, bool, error) {
	cols, err := database.GetTableColumns(s.db, "collections")
	if err != nil {
		return "", false, err
	}
	var cfg string
	var dim bool
	for _, c := range cols {
		switch c.Field {
		case "configuration_json_str", "config_json_str":
			cfg = c.Field
		case "dimension":
			dim = true
		}
	}
	return cfg, dim, nil
}

func (s *Store) collectionRows(ctx context.Context) ([]collectionRow, error) {
	cfgCol, hasDim, err := s.configColumn()
	if err != nil {
		return nil, err
	}
	cfgExpr, dimExpr := "NULL", "NULL"
	if cfgCol != "" {
		cfgExpr = cfgCol
	}
	if hasDim {
		dimExpr = "dimension"
	}
	var rows []collectionRow
	q := fmt.Sprintf("SELECT id, name, %s AS config, %s AS dimension FROM collections ORDER BY name", cfgExpr, dimExpr)
	if err := s.db.WithContext(ctx).Raw(q).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("list chroma collections: %w", err)
	}
	return rows, nil
}

type metadataRow struct {
	Key         string
	StringValue *string
	IntValue    *int64
	FloatValue  *float64
	BoolValue   *bool
}

func (r metadataRow) value() any {
	switch {
	case r.StringValue != nil:
		return *r.StringValue
	case r.IntValue != nil:
		return *r.IntValue
	case r.FloatValue != nil:
		return *r.FloatValue
	case r.BoolValue != nil:
		return *r.BoolValue
	}
	return nil
}

// collectionMetadata reads the per-collection metadata table of older stores.
func (s *Store) collectionMetadata(ctx context.Context, collectionID string) map[string]any {
	var rows []metadataRow
	err := s.db.WithContext(ctx).Raw(
		"SELECT key, str_value AS string_value, int_value, float_value, bool_value FROM collection_metadata WHERE collection_id = ?",
		collectionID,
	).Scan(&rows).Error
	if err != nil {
		return nil
	}
	out := make(map[string]any, len(rows))
	for _, r := range rows {
		out[r.Key] = r.value()
	}
	return out
}

// ListCollections implements imports.ForeignStore.
func (s *Store) ListCollections(ctx context.Context) ([]imports.Collection, error) {
	rows, err := s.collectionRows(ctx)
	if err != nil {
		return nil, err
	}

	type countRow struct {
		CollectionID string
		N            int
	}
	var counts []countRow
	counted := make(map[string]int)
	err = s.db.WithContext(ctx).Raw(
		"SELECT s.collection AS collection_id, COUNT(e.id) AS n FROM segments s JOIN embeddings e ON e.segment_id = s.id WHERE s.scope = 'METADATA' GROUP BY s.collection",
	).Scan(&counts).Error
	if err != nil {
		s.log.Warn("Could not count chroma documents", zap.Error(err))
	}
	for _, c := range counts {
		counted[c.CollectionID] = c.N
	}

	out := make([]imports.Collection, 0, len(rows))
	for _, r := range rows {
		raw := ""
		if r.Config != nil {
			raw = *r.Config
		}
		out = append(out, imports.Collection{
			Name:   r.Name,
			Config: collectionConfig(r.Name, raw, s.collectionMetadata(ctx, r.ID), r.Dimension),
			Count:  counted[r.ID],
		})
	}
	return out, nil
}

// ConfigReports inspects the stored configuration of every collection.
func (s *Store) ConfigReports(ctx context.Context) ([]ConfigReport, error) {
	rows, err := s.collectionRows(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ConfigReport, 0, len(rows))
	for _, r := range rows {
		raw := ""
		if r.Config != nil {
			raw = *r.Config
		}
		_, rep := inspectConfig(r.Name, raw)
		out = append(out, rep)
	}
	return out, nil
}

// Tables lists the tables of the database.
func (s *Store) Tables() ([]string, error) {
	return database.ListTables(s.db)
}

func (s *Store) collectionID(ctx context.Context, name string) (string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Raw("SELECT id FROM collections WHERE name = ?", name).Scan(&ids).Error; err != nil {
		return "", fmt.Errorf("find chroma collection %s: %w", name, err)
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("chroma collection %s not found", name)
	}
	return ids[0], nil
}

type documentRow struct {
	RowID       int64
	EmbeddingID string
	metadataRow
}

// Documents implements imports.ForeignStore. Documents are sorted by id.
func (s *Store) Documents(ctx context.Context, collection string) ([]imports.Document, error) {
	id, err := s.collectionID(ctx, collection)
	if err != nil {
		return nil, err
	}

	var rows []documentRow
	err = s.db.WithContext(ctx).Raw(`
		SELECT e.id AS row_id, e.embedding_id, COALESCE(m.key, '') AS key, m.string_value, m.int_value, m.float_value, m.bool_value
		FROM embeddings e
		JOIN segments s ON e.segment_id = s.id
		LEFT JOIN embedding_metadata m ON m.id = e.id
		WHERE s.collection = ? AND s.scope = 'METADATA'
		ORDER BY e.embedding_id, m.key`, id).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("read chroma collection %s: %w", collection, err)
	}

	byID := make(map[string]*imports.Document)
	var order []string
	for _, r := range rows {
		d, ok := byID[r.EmbeddingID]
		if !ok {
			d = &imports.Document{ID: r.EmbeddingID, Metadata: map[string]any{}}
			byID[r.EmbeddingID] = d
			order = append(order, r.EmbeddingID)
		}
		switch {
		case r.Key == "":
		case r.Key == documentKey:
			if r.StringValue != nil {
				d.Content = *r.StringValue
			}
		case strings.HasPrefix(r.Key, "chroma:"):
		default:
			d.Metadata[r.Key] = r.value()
		}
	}

	vectors := s.vectors(ctx, id)
	out := make([]imports.Document, 0, len(order))
	for _, docID := range order {
		d := byID[docID]
		if len(d.Metadata) == 0 {
			d.Metadata = nil
		}
		d.Embedding = vectors[docID]
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Queue operations that carry a vector.
const (
	opAdd    = 0
	opUpdate = 1
	opUpsert = 2
	opDelete = 3
)

type queueRow struct {
	ID        string
	Operation int
	Vector    []byte
	Encoding  *string
}

// vectors recovers the latest vector of every document from the write-ahead
// queue. Stores that compacted their queue yield none.
func (s *Store) vectors(ctx context.Context, collectionID string) map[string][]float32 {
	var rows []queueRow
	err := s.db.WithContext(ctx).Raw(
		"SELECT id, operation, vector, encoding FROM embeddings_queue WHERE topic LIKE ? ORDER BY seq_id",
		"%/"+collectionID,
	).Scan(&rows).Error
	if err != nil {
		s.log.Debug("No vectors recovered", zap.String("collection_id", collectionID), zap.Error(err))
		return nil
	}
	out := make(map[string][]float32)
	for _, r := range rows {
		switch r.Operation {
		case opDelete:
			delete(out, r.ID)
		case opAdd, opUpdate, opUpsert:
			if v, ok := decodeVector(r.Vector, r.Encoding); ok {
				out[r.ID] = v
			}
		}
	}
	return out
}

// decodeVector reads a little-endian float32 vector.
func decodeVector(b []byte, encoding *string) ([]float32, bool) {
	if encoding != nil && !strings.EqualFold(*encoding, "FLOAT32") {
		return nil, false
	}
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, false
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, true
}

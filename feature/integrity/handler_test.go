package integrity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"kb-bridge/core/database"
	"kb-bridge/core/storage/mocks"
	"kb-bridge/feature/imports"
	"kb-bridge/feature/imports/chroma"

	"github.com/gofiber/fiber/v2"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type inspectableStore struct {
	reports []chroma.ConfigReport
	closed  bool
}

func (s *inspectableStore) Ref() string { return "team" }
func (s *inspectableStore) ListCollections(ctx context.Context) ([]imports.Collection, error) {
	return nil, nil
}
func (s *inspectableStore) Documents(ctx context.Context, collection string) ([]imports.Document, error) {
	return nil, nil
}
func (s *inspectableStore) Close() error {
	s.closed = true
	return nil
}
func (s *inspectableStore) ConfigReports(ctx context.Context) ([]chroma.ConfigReport, error) {
	return s.reports, nil
}

type stubOpener struct {
	store imports.ForeignStore
	err   error
}

func (o stubOpener) OpenForeign(ctx context.Context, src imports.ForeignSource) (imports.ForeignStore, error) {
	return o.store, o.err
}

func testDB(t *testing.T) *gorm.DB {
	db, err := database.Connect(database.Config{Driver: "sqlite", Name: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.Exec("CREATE TABLE documents (doc_id TEXT PRIMARY KEY, content TEXT)").Error)
	return db
}

func setupTestApp(t *testing.T, opts Options) *fiber.App {
	app := fiber.New()
	f := NewFeature(opts)
	require.NoError(t, f.Load(app))
	return app
}

func getJSON(t *testing.T, app *fiber.App, url string) (int, map[string]any) {
	resp, err := app.Test(httptest.NewRequest("GET", url, nil))
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestLoader(t *testing.T) {
	f := NewFeature(Options{})
	assert.Equal(t, "integrity", f.Name())
	assert.False(t, f.IsEnabled())

	f = NewFeature(Options{Client: new(mocks.Client)})
	assert.True(t, f.IsEnabled())
}

func TestHandleSchemaCheck(t *testing.T) {
	app := setupTestApp(t, Options{DB: testDB(t), ExcludedTables: []string{"dolt_*"}})

	status, body := getJSON(t, app, "/integrity/schema")
	assert.Equal(t, 200, status)
	assert.Equal(t, true, body["matched"])
	tables := body["tables"].(map[string]any)
	assert.Equal(t, "ok", tables["documents"].(map[string]any)["status"])
}

func TestHandleSchemaCheck_NotConfigured(t *testing.T) {
	app := setupTestApp(t, Options{Client: new(mocks.Client)})

	status, body := getJSON(t, app, "/integrity/schema")
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Contains(t, body["error"], "not configured")
}

func TestHandleStructureCheck(t *testing.T) {
	client := new(mocks.Client)
	client.On("BucketExists", mock.Anything, "knowledge").Return(true, nil)
	client.On("ListObjects", mock.Anything, "knowledge", mock.Anything).
		Return(mocks.ObjectChannel(minio.ObjectInfo{Key: "foreign/team/chroma.sqlite3"}))
	app := setupTestApp(t, Options{Client: client, Bucket: "knowledge", Prefix: "foreign/"})

	status, body := getJSON(t, app, "/integrity/structure")
	assert.Equal(t, 200, status)
	assert.Equal(t, []any{"team"}, body["snapshots"])
}

func TestHandleCollectionsCheck(t *testing.T) {
	store := &inspectableStore{reports: []chroma.ConfigReport{{Collection: "notes", Valid: true, HasType: true}}}
	app := setupTestApp(t, Options{Opener: stubOpener{store: store}})

	status, body := getJSON(t, app, "/integrity/collections?foreign_path=/data/team")
	assert.Equal(t, 200, status)
	assert.Equal(t, "ok", body["status"])
	assert.True(t, store.closed)

	status, _ = getJSON(t, app, "/integrity/collections")
	assert.Equal(t, 400, status)
}

func TestHandleIntegrityCheck(t *testing.T) {
	client := new(mocks.Client)
	client.On("BucketExists", mock.Anything, "knowledge").Return(false, errors.New("unreachable"))
	app := setupTestApp(t, Options{
		DB:     testDB(t),
		Client: client,
		Bucket: "knowledge",
		Opener: stubOpener{err: errors.New("no such file")},
	})

	status, body := getJSON(t, app, "/integrity?foreign_path=/missing")
	assert.Equal(t, 200, status)
	assert.Equal(t, true, body["schema"].(map[string]any)["matched"])
	assert.Equal(t, "error", body["structure"].(map[string]any)["status"])
	assert.Equal(t, "error", body["collections"].(map[string]any)["status"])
}

func TestReport_SkipsUnconfigured(t *testing.T) {
	svc := NewService(Options{})
	report := svc.Report(context.Background(), imports.ForeignSource{})

	assert.Equal(t, "skipped", report["schema"].(map[string]any)["status"])
	assert.Equal(t, "skipped", report["structure"].(map[string]any)["status"])
	assert.NotContains(t, report, "collections")
}

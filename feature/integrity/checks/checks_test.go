package checks

import (
	"context"
	"errors"
	"testing"

	"kb-bridge/core/database"
	"kb-bridge/core/storage/mocks"
	"kb-bridge/feature/imports/chroma"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCheckVersionedSchema(t *testing.T) {
	db, err := database.Connect(database.Config{Driver: "sqlite", Name: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.Exec("CREATE TABLE documents (doc_id TEXT PRIMARY KEY, content TEXT, tags TEXT)").Error)
	require.NoError(t, db.Exec("CREATE TABLE settings (id INTEGER, value TEXT)").Error)
	require.NoError(t, db.Exec("CREATE TABLE notes (title TEXT, body TEXT)").Error)
	require.NoError(t, db.Exec("CREATE TABLE sync_state (k TEXT)").Error)

	report, err := CheckVersionedSchema(db, []string{"dolt_*", "sync_*"}, nil)
	require.NoError(t, err)

	assert.False(t, report.Matched)
	assert.Equal(t, []string{"sync_state"}, report.Excluded)
	assert.Equal(t, TableReport{KeyColumn: "doc_id", ContentColumn: "content", Status: "ok"}, report.Tables["documents"])
	assert.Equal(t, TableReport{KeyColumn: "id", Status: "fields_only"}, report.Tables["settings"])
	assert.Equal(t, "error", report.Tables["notes"].Status)
}

func TestCheckVersionedSchema_Errors(t *testing.T) {
	_, err := CheckVersionedSchema(nil, nil, nil)
	assert.Error(t, err)

	db, err := database.Connect(database.Config{Driver: "sqlite", Name: ":memory:"})
	require.NoError(t, err)
	_, err = CheckVersionedSchema(db, []string{""}, nil)
	assert.Error(t, err)
}

func TestCheckForeignStructure(t *testing.T) {
	t.Run("Bucket Missing", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", mock.Anything, "knowledge").Return(false, nil)

		_, err := CheckForeignStructure(context.Background(), client, "knowledge", "foreign/")
		assert.ErrorContains(t, err, "does not exist")
	})

	t.Run("Snapshots", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", mock.Anything, "knowledge").Return(true, nil)
		client.ExpectListing("knowledge", "foreign/",
			"foreign/team/chroma.sqlite3",
			"foreign/team/0a1b/data_level0.bin",
			"foreign/archive.sqlite3",
			"foreign/readme.txt",
		)

		report, err := CheckForeignStructure(context.Background(), client, "knowledge", "foreign/")
		require.NoError(t, err)
		assert.Equal(t, []string{"archive.sqlite3", "team"}, report.Snapshots)
	})

	t.Run("List Error", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("BucketExists", mock.Anything, "knowledge").Return(true, nil)
		client.On("ListObjects", mock.Anything, "knowledge", mock.Anything).
			Return(mocks.ObjectChannel(minio.ObjectInfo{Err: errors.New("denied")}))

		_, err := CheckForeignStructure(context.Background(), client, "knowledge", "foreign/")
		assert.ErrorContains(t, err, "denied")
	})
}

type fakeInspector struct {
	reports []chroma.ConfigReport
	err     error
}

func (f fakeInspector) ConfigReports(ctx context.Context) ([]chroma.ConfigReport, error) {
	return f.reports, f.err
}

func TestCheckCollectionConfigs(t *testing.T) {
	report, err := CheckCollectionConfigs(context.Background(), "team", fakeInspector{reports: []chroma.ConfigReport{
		{Collection: "a", Valid: true, HasType: true},
		{Collection: "b", Valid: true, InferredType: "CollectionConfigurationInternal"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "legacy", report.Status)
	assert.Equal(t, []string{"b"}, report.Legacy)
	assert.Empty(t, report.Invalid)

	report, err = CheckCollectionConfigs(context.Background(), "team", fakeInspector{reports: []chroma.ConfigReport{
		{Collection: "b", Valid: true},
		{Collection: "c", Error: "unexpected end of JSON input"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "error", report.Status)
	assert.Equal(t, []string{"c"}, report.Invalid)

	_, err = CheckCollectionConfigs(context.Background(), "team", fakeInspector{err: errors.New("locked")})
	assert.Error(t, err)
}

package merge

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"kb-bridge/core/conflict"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(store *fakeStore) *fiber.App {
	app := fiber.New()
	NewHandler(newTestService(store, nil)).RegisterRoutes(app)
	return app
}

func post(t *testing.T, app *fiber.App, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestHandlePreview(t *testing.T) {
	app := setupTestApp(newDivergentStore())

	status, body := post(t, app, "/merge/preview", `{"source_ref": "feature", "target_ref": "main"}`)

	assert.Equal(t, 200, status)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 1, body["manual_count"])
	assert.Equal(t, conflict.ActionRecommendResolve, body["recommended_action"])
}

func TestHandlePreview_BadRequest(t *testing.T) {
	app := setupTestApp(newDivergentStore())

	status, body := post(t, app, "/merge/preview", `{"source_ref": "feature"}`)

	assert.Equal(t, 400, status)
	assert.Contains(t, body["error"], "target_ref")
}

func TestHandleExecute_FlatMap(t *testing.T) {
	store := newDivergentStore()
	app := setupTestApp(store)
	id := conflict.MergeConflictID("docs", "doc_1", conflict.TypeContentModification)

	status, body := post(t, app, "/merge/execute",
		`{"sourceRef": "feature", "targetRef": "main", "`+id+`": "keep_ours"}`)

	assert.Equal(t, 200, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "commit_1", body["commit_ref"])
	require.NotNil(t, store.applied)
}

func TestHandleExecute_BadResolution(t *testing.T) {
	app := setupTestApp(newDivergentStore())

	status, _ := post(t, app, "/merge/execute",
		`{"source_ref": "feature", "target_ref": "main", "conf_abc": "overwrite"}`)

	assert.Equal(t, 400, status)
}

func TestHandleExecute_StoreFailure(t *testing.T) {
	store := newDivergentStore()
	store.baseErr = errors.New("no common ancestor")
	app := setupTestApp(store)

	status, body := post(t, app, "/merge/execute", `{"source_ref": "feature", "target_ref": "main"}`)

	assert.Equal(t, 502, status)
	assert.Contains(t, body["error"], "analysis_unavailable")
}

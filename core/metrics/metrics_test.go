package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"kb-bridge/core/conflict"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordConflicts(t *testing.T) {
	before := testutil.ToFloat64(conflictsDetected.WithLabelValues("merge", "add_add"))
	RecordConflicts(conflict.ScenarioMerge, []conflict.Conflict{
		{Type: conflict.TypeAddAdd},
		{Type: conflict.TypeAddAdd},
		{Type: conflict.TypeDeleteModify},
	})
	assert.Equal(t, before+2, testutil.ToFloat64(conflictsDetected.WithLabelValues("merge", "add_add")))
}

func TestRecordResolutions(t *testing.T) {
	ok := testutil.ToFloat64(resolutionsTotal.WithLabelValues("import", "skip", "success"))
	failed := testutil.ToFloat64(resolutionsTotal.WithLabelValues("import", "skip", "failure"))

	RecordResolutions(conflict.ScenarioImport, conflict.BatchResolutionResult{Outcomes: []conflict.ResolutionOutcome{
		{Resolution: conflict.ResolutionSkip, Success: true},
		{Resolution: conflict.ResolutionSkip},
	}})

	assert.Equal(t, ok+1, testutil.ToFloat64(resolutionsTotal.WithLabelValues("import", "skip", "success")))
	assert.Equal(t, failed+1, testutil.ToFloat64(resolutionsTotal.WithLabelValues("import", "skip", "failure")))
}

func TestRecordWriteBatch(t *testing.T) {
	before := testutil.ToFloat64(writebackBatches.WithLabelValues("notes"))
	RecordWriteBatch("notes")
	assert.Equal(t, before+1, testutil.ToFloat64(writebackBatches.WithLabelValues("notes")))
}

func TestHandler(t *testing.T) {
	ObserveDuration(conflict.ScenarioMerge, PhaseAnalyze, time.Now())

	app := fiber.New()
	app.Use(Middleware())
	app.Get("/metrics", Handler())

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "kbbridge_analysis_duration_seconds")
}

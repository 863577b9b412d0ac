package metrics

import (
	"strconv"
	"time"

	"kb-bridge/core/conflict"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	conflictsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kbbridge_conflicts_detected_total",
			Help: "Total number of conflicts detected by analyses",
		},
		[]string{"scenario", "type"},
	)

	resolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kbbridge_resolutions_total",
			Help: "Total number of conflict resolutions applied",
		},
		[]string{"scenario", "resolution", "status"},
	)

	analysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kbbridge_analysis_duration_seconds",
			Help:    "Duration of analysis and execution phases in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 9),
		},
		[]string{"scenario", "phase"},
	)

	writebackBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kbbridge_writeback_batches_total",
			Help: "Total number of batched write-back calls per target collection",
		},
		[]string{"target"},
	)

	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kbbridge_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "route", "status"},
	)
)

// Phases timed by ObserveDuration.
const (
	PhaseAnalyze = "analyze"
	PhaseResolve = "resolve"
	PhaseWrite   = "write"
)

// RecordConflicts counts the conflicts of one analysis by type.
func RecordConflicts(s conflict.Scenario, conflicts []conflict.Conflict) {
	for _, c := range conflicts {
		conflictsDetected.WithLabelValues(string(s), string(c.Type)).Inc()
	}
}

// RecordResolutions counts the outcomes of one resolution batch.
func RecordResolutions(s conflict.Scenario, batch conflict.BatchResolutionResult) {
	for _, o := range batch.Outcomes {
		status := "success"
		if !o.Success {
			status = "failure"
		}
		resolutionsTotal.WithLabelValues(string(s), string(o.Resolution), status).Inc()
	}
}

// ObserveDuration records the time spent in one phase since start.
func ObserveDuration(s conflict.Scenario, phase string, start time.Time) {
	analysisDuration.WithLabelValues(string(s), phase).Observe(time.Since(start).Seconds())
}

// RecordWriteBatch counts one batched write-back into target.
func RecordWriteBatch(target string) {
	writebackBatches.WithLabelValues(target).Inc()
}

// Middleware counts requests by matched route.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		requestsTotal.WithLabelValues(c.Method(), c.Route().Path, strconv.Itoa(status)).Inc()
		return err
	}
}

// Handler serves the default registry in the Prometheus text format.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

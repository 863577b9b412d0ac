// Package metrics exposes Prometheus collectors for conflict analyses,
// resolutions and write-back batches.
//
// Collectors are registered on the default registry at init through promauto
// and served by Handler on GET /metrics.
package metrics

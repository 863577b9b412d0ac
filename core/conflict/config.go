package conflict

import (
	"time"

	"go.uber.org/zap"
)

// Config holds the engine settings read from configuration.
type Config struct {
	// ExcludedTables are wildcard patterns of internal tables.
	ExcludedTables []string `mapstructure:"excluded_tables" default:"dolt_*,sync_*,kb_*"`
	// ContentFields are the column names holding primary content, in priority order.
	ContentFields []string `mapstructure:"content_fields" default:"content,document,document_text,text"`
	// Parallelism bounds concurrent per-table diffs.
	Parallelism int `mapstructure:"parallelism" default:"4"`
	// SnapshotCacheSize is the number of cached snapshots; 0 disables the cache.
	SnapshotCacheSize int `mapstructure:"snapshot_cache_size" default:"4096"`
	// SnapshotCacheTTL is how long a cached snapshot is kept.
	SnapshotCacheTTL time.Duration `mapstructure:"snapshot_cache_ttl" default:"5m"`
	// PreferNativeSummary asks the store for its own conflict summary first.
	PreferNativeSummary bool `mapstructure:"prefer_native_summary" default:"true"`
	// CallTimeout bounds each store call.
	CallTimeout time.Duration `mapstructure:"call_timeout" default:"30s"`
}

// EngineConfig builds the runtime engine configuration, including a fresh
// snapshot cache.
func (c Config) EngineConfig(log *zap.Logger) EngineConfig {
	return EngineConfig{
		ExcludedTables:      c.ExcludedTables,
		ContentFields:       c.ContentFields,
		Parallelism:         c.Parallelism,
		PreferNativeSummary: c.PreferNativeSummary,
		CallTimeout:         c.CallTimeout,
		Cache:               NewSnapshotCache(c.SnapshotCacheSize, c.SnapshotCacheTTL),
		Logger:              log,
	}
}

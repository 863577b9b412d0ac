// Package config provides configuration management for kb-bridge.
//
// It utilizes Viper for loading configuration from environment variables and
// an optional .env file. Defaults come from the `default` struct tags of each
// section and are registered by reflection, so every key can be overridden by
// an environment variable named after its path (engine.call_timeout becomes
// ENGINE_CALL_TIMEOUT).
//
// # Configuration Structure
//
//   - Server: HTTP port, API key, body limit
//   - Log: level and encoding
//   - Database: Dolt SQL server connection
//   - VCS: versioned store backend (dolt or git) and commit author
//   - VectorStore: local pgvector store DSN
//   - Bookkeeping: deletion and resolution tracking directory
//   - Storage: MinIO/S3 bucket holding foreign store snapshots
//   - Engine: conflict engine settings (exclusions, content fields, parallelism, cache, timeouts)
//
// List values such as engine.excluded_tables are comma separated.
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	engine := conflict.NewEngine(cfg.Engine.EngineConfig(logg))
package config

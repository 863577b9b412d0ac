package bookkeeping

import "time"

// Config holds configuration for the bookkeeping store.
type Config struct {
	// Path is the directory holding the database file and its lock.
	Path string `mapstructure:"path" default:".kb-bridge"`
	// LockTimeout bounds how long a writer waits for the file lock.
	LockTimeout time.Duration `mapstructure:"lock_timeout" default:"10s"`
}

package storage

import "time"

// Config holds the object storage settings. Foreign store snapshots are
// read from Bucket under ForeignPrefix.
type Config struct {
	Endpoint  string `mapstructure:"endpoint" default:"localhost:9000"`
	AccessKey string `mapstructure:"access_key" default:"minioadmin"`
	SecretKey string `mapstructure:"secret_key" default:"minioadmin"`
	// UseSSL is implied by an https:// endpoint.
	UseSSL         bool   `mapstructure:"use_ssl" default:"false"`
	Bucket         string `mapstructure:"bucket" default:"knowledge"`
	Region         string `mapstructure:"region" default:""`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" default:"30"`
	ForeignPrefix  string `mapstructure:"foreign_prefix" default:"foreign/"`
}

// Timeout returns the connection timeout, 30s when unset.
func (c Config) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

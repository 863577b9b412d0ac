package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"kb-bridge/core/bookkeeping"
	"kb-bridge/core/conflict"
	"kb-bridge/core/database"
	"kb-bridge/core/logger"
	"kb-bridge/core/server"
	"kb-bridge/core/storage"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the whole application configuration, one section per concern.
type Config struct {
	Server server.Config `mapstructure:"server"`
	Log    logger.Config `mapstructure:"log"`
	// Database is the Dolt SQL server connection.
	Database    database.Config    `mapstructure:"database"`
	VCS         VCSConfig          `mapstructure:"vcs"`
	VectorStore VectorStoreConfig  `mapstructure:"vectorstore"`
	Bookkeeping bookkeeping.Config `mapstructure:"bookkeeping"`
	// Storage is the object store foreign snapshots are fetched from.
	Storage storage.Config  `mapstructure:"storage"`
	Engine  conflict.Config `mapstructure:"engine"`
}

// LoadConfig reads <path>/.env, then the environment, on top of the defaults
// declared in struct tags. Nested keys map to upper-case variables joined by
// underscores: engine.call_timeout is ENGINE_CALL_TIMEOUT.
func LoadConfig(path string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Overload(filepath.Join(path, ".env"))

	v := viper.New()
	registerDefaults(v, reflect.TypeOf(Config{}), "")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// registerDefaults sets every tagged field's default, empty ones included,
// so AutomaticEnv can find the key.
func registerDefaults(v *viper.Viper, t reflect.Type, prefix string) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}
		// time.Duration is an int64, so only real structs recurse.
		if field.Type.Kind() == reflect.Struct {
			registerDefaults(v, field.Type, key)
			continue
		}
		v.SetDefault(key, field.Tag.Get("default"))
	}
}

func (c *Config) validate() error {
	switch c.VCS.Backend {
	case "dolt", "git":
	default:
		return fmt.Errorf("vcs.backend must be dolt or git, got %q", c.VCS.Backend)
	}
	if c.Engine.Parallelism < 1 {
		return fmt.Errorf("engine.parallelism must be at least 1, got %d", c.Engine.Parallelism)
	}
	if c.VectorStore.Dimension < 1 {
		return fmt.Errorf("vectorstore.dimension must be positive, got %d", c.VectorStore.Dimension)
	}
	return nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "dolt", cfg.VCS.Backend)
	assert.Equal(t, 10*time.Second, cfg.Bookkeeping.LockTimeout)
	assert.Equal(t, []string{"dolt_*", "sync_*", "kb_*"}, cfg.Engine.ExcludedTables)
	assert.Equal(t, []string{"content", "document", "document_text", "text"}, cfg.Engine.ContentFields)
	assert.Equal(t, 4, cfg.Engine.Parallelism)
	assert.Equal(t, 5*time.Minute, cfg.Engine.SnapshotCacheTTL)
	assert.True(t, cfg.Engine.PreferNativeSummary)
	assert.Equal(t, "foreign/", cfg.Storage.ForeignPrefix)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ENGINE_PARALLELISM", "8")
	t.Setenv("ENGINE_CALL_TIMEOUT", "2s")
	t.Setenv("ENGINE_EXCLUDED_TABLES", "dolt_*,audit_*")
	t.Setenv("VCS_BACKEND", "git")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Engine.Parallelism)
	assert.Equal(t, 2*time.Second, cfg.Engine.CallTimeout)
	assert.Equal(t, []string{"dolt_*", "audit_*"}, cfg.Engine.ExcludedTables)
	assert.Equal(t, "git", cfg.VCS.Backend)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SERVER_API_KEY=secret\nBOOKKEEPING_PATH=/var/lib/kb\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("SERVER_API_KEY")
		os.Unsetenv("BOOKKEEPING_PATH")
	})

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.Server.ApiKey)
	assert.Equal(t, "/var/lib/kb", cfg.Bookkeeping.Path)
}

func TestVCSConfig_Author(t *testing.T) {
	c := VCSConfig{AuthorName: "Ann", AuthorEmail: "ann@example.com"}
	assert.Equal(t, "Ann <ann@example.com>", c.Author())
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"Backend", "VCS_BACKEND", "svn", "vcs.backend"},
		{"Parallelism", "ENGINE_PARALLELISM", "0", "engine.parallelism"},
		{"Dimension", "VECTORSTORE_DIMENSION", "-1", "vectorstore.dimension"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := LoadConfig(t.TempDir())
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

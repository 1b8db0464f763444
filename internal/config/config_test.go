package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crfloyd/git-frisky/internal/config"
)

func TestLoad_NoFile_UsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, config.Default(), cfg)
}

func TestLoad_ExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frisky.yaml")
	content := `git:
  backend: libgit2
  write_timeout: 30s
history:
  limit: 50
watch:
  debounce: 150ms
logging:
  format: json
storage:
  db_path: /tmp/frisky-test.db
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "libgit2", cfg.Git.Backend)
	assert.Equal(t, config.DefaultBinary, cfg.Git.Binary)
	assert.Equal(t, 30*time.Second, cfg.Git.WriteTimeout)
	assert.Equal(t, config.DefaultReadTimeout, cfg.Git.ReadTimeout)
	assert.Equal(t, 50, cfg.History.Limit)
	assert.Equal(t, 150*time.Millisecond, cfg.Watch.Debounce)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/tmp/frisky-test.db", cfg.ResolvedDBPath())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frisky.yaml")
	require.NoError(t, os.WriteFile(path, []byte("history:\n  limit: 50\n"), 0o600))
	t.Setenv("FRISKY_HISTORY_LIMIT", "7")
	t.Setenv("FRISKY_GIT_BINARY", "/usr/local/bin/git")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.History.Limit)
	assert.Equal(t, "/usr/local/bin/git", cfg.Git.Binary)
}

func TestLoad_InvalidValue_ReturnsValidationError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frisky.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0o600))

	_, err := config.Load(path)
	assert.ErrorIs(t, err, config.ErrInvalidLogLevel)
}

func TestLoad_MissingExplicitFile_ReturnsError(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate_ZeroConfig_NoError(t *testing.T) {
	t.Parallel()

	cfg := config.Config{}
	require.NoError(t, cfg.Validate())
}

func TestValidate_Negatives_ReturnSentinels(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   error
	}{
		{"read timeout", func(c *config.Config) { c.Git.ReadTimeout = -1 }, config.ErrInvalidReadTimeout},
		{"write timeout", func(c *config.Config) { c.Git.WriteTimeout = -1 }, config.ErrInvalidWriteTimeout},
		{"history limit", func(c *config.Config) { c.History.Limit = -1 }, config.ErrInvalidHistoryLimit},
		{"debounce", func(c *config.Config) { c.Watch.Debounce = -time.Second }, config.ErrInvalidDebounce},
		{"backend", func(c *config.Config) { c.Git.Backend = "   " }, config.ErrEmptyBackend},
		{"format", func(c *config.Config) { c.Logging.Format = "xml" }, config.ErrInvalidLogFormat},
	}
	for _, tc := range cases {
		cfg := config.Default()
		tc.mutate(cfg)
		assert.ErrorIs(t, cfg.Validate(), tc.want, tc.name)
	}
}

func TestDataPaths(t *testing.T) {
	t.Parallel()

	assert.Equal(t, config.AppName, filepath.Base(config.DataDir()))
	assert.Equal(t, filepath.Join(config.DataDir(), config.DBFileName), config.DBPath())

	cfg := config.Default()
	assert.Equal(t, config.DBPath(), cfg.ResolvedDBPath())
}

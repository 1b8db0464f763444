package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// AppName is the application name, also used for the data directory.
	AppName = "git-frisky"

	// AppVersion is the current release.
	AppVersion = "0.3.0"

	// AppBundleID is the macOS bundle identifier.
	AppBundleID = "com.crfloyd.git-frisky"

	// DBFileName is the SQLite file name.
	DBFileName = "frisky.db"
)

// Defaults.
const (
	DefaultBackend      = "gitcli"
	DefaultBinary       = "git"
	DefaultReadTimeout  = 8 * time.Second
	DefaultWriteTimeout = 12 * time.Second
	DefaultHistoryLimit = 500
	DefaultDebounce     = 300 * time.Millisecond
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
)

// Config is the top-level configuration.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	Git     GitConfig     `mapstructure:"git"`
	History HistoryConfig `mapstructure:"history"`
	Watch   WatchConfig   `mapstructure:"watch"`
	Logging LoggingConfig `mapstructure:"logging"`
	Storage StorageConfig `mapstructure:"storage"`
}

// GitConfig selects and tunes the repository backend.
type GitConfig struct {
	Backend      string        `mapstructure:"backend"`
	Binary       string        `mapstructure:"binary"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// HistoryConfig holds commit log settings.
type HistoryConfig struct {
	Limit int `mapstructure:"limit"`
}

// WatchConfig holds file watcher settings.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StorageConfig holds persistence settings. An empty DBPath means DBPath().
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// Sentinel errors for configuration validation.
var (
	// ErrEmptyBackend indicates git.backend is blank.
	ErrEmptyBackend = errors.New("git.backend must not be empty")
	// ErrInvalidReadTimeout indicates git.read_timeout is negative.
	ErrInvalidReadTimeout = errors.New("git.read_timeout must be non-negative")
	// ErrInvalidWriteTimeout indicates git.write_timeout is negative.
	ErrInvalidWriteTimeout = errors.New("git.write_timeout must be non-negative")
	// ErrInvalidHistoryLimit indicates history.limit is negative.
	ErrInvalidHistoryLimit = errors.New("history.limit must be non-negative")
	// ErrInvalidDebounce indicates watch.debounce is negative.
	ErrInvalidDebounce = errors.New("watch.debounce must be non-negative")
	// ErrInvalidLogLevel indicates logging.level is not a known level.
	ErrInvalidLogLevel = errors.New("logging.level must be debug, info, warn or error")
	// ErrInvalidLogFormat indicates logging.format is not text or json.
	ErrInvalidLogFormat = errors.New("logging.format must be text or json")
)

// Validate checks value ranges. Zero values are accepted and mean "use the
// default".
func (c *Config) Validate() error {
	if c.Git.Backend != "" && strings.TrimSpace(c.Git.Backend) == "" {
		return ErrEmptyBackend
	}
	if c.Git.ReadTimeout < 0 {
		return ErrInvalidReadTimeout
	}
	if c.Git.WriteTimeout < 0 {
		return ErrInvalidWriteTimeout
	}
	if c.History.Limit < 0 {
		return ErrInvalidHistoryLimit
	}
	if c.Watch.Debounce < 0 {
		return ErrInvalidDebounce
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Logging.Level)
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.Logging.Format)
	}
	return nil
}

// ResolvedDBPath returns the configured database path or the default one.
func (c *Config) ResolvedDBPath() string {
	if p := strings.TrimSpace(c.Storage.DBPath); p != "" {
		return p
	}
	return DBPath()
}

// DataDir returns the application data root, under the OS user config dir.
func DataDir() string {
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, AppName)
}

// DBPath returns the default SQLite file path.
func DBPath() string {
	return filepath.Join(DataDir(), DBFileName)
}

// LogDir returns the log directory.
func LogDir() string {
	return filepath.Join(DataDir(), "logs")
}

// EnsureDataDirs creates the data directories if missing.
func EnsureDataDirs() error {
	for _, dir := range []string{DataDir(), LogDir()} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return nil
}

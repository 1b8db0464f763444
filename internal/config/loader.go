package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// configName is the config file name without extension.
const configName = ".frisky"

// configType is the config file format.
const configType = "yaml"

// envPrefix is the environment variable prefix, e.g. FRISKY_GIT_BACKEND.
const envPrefix = "FRISKY"

// Load reads configuration from file, env vars and defaults.
// If configPath is non-empty it is used as the explicit config file path;
// otherwise .frisky.yaml is searched in CWD and $HOME. A missing config file
// is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	applyDefaults(v)

	v.SetConfigType(configType)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Git: GitConfig{
			Backend:      DefaultBackend,
			Binary:       DefaultBinary,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
		},
		History: HistoryConfig{Limit: DefaultHistoryLimit},
		Watch:   WatchConfig{Debounce: DefaultDebounce},
		Logging: LoggingConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
	}
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("git.backend", DefaultBackend)
	v.SetDefault("git.binary", DefaultBinary)
	v.SetDefault("git.read_timeout", DefaultReadTimeout)
	v.SetDefault("git.write_timeout", DefaultWriteTimeout)

	v.SetDefault("history.limit", DefaultHistoryLimit)

	v.SetDefault("watch.debounce", DefaultDebounce)

	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.format", DefaultLogFormat)

	v.SetDefault("storage.db_path", "")
}

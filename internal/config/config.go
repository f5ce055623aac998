// Package config loads gridsync application settings.
//
// Settings come from gridsync.yaml and GRIDSYNC_* environment variables,
// with environment variables taking precedence:
//
//	data_dir: .gridsync
//	tracker:
//	  url: https://jira.example.com
//	  username: bot
//	  token: secret        # GRIDSYNC_TRACKER_TOKEN
//	log:
//	  file: gridsync.log
//	  level: info
//	watch:
//	  debounce: 500ms
//	acl:
//	  payroll: [alice, bob]
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file name without extension.
const FileName = "gridsync"

// Defaults.
const (
	DefaultDataDir       = ".gridsync"
	DefaultLogLevel      = "info"
	DefaultLogMaxSizeMB  = 10
	DefaultLogMaxBackups = 3
	DefaultDebounce      = 500 * time.Millisecond
)

// Config is the application configuration.
type Config struct {
	DataDir string              `mapstructure:"data_dir"`
	Tracker TrackerConfig       `mapstructure:"tracker"`
	Log     LogConfig           `mapstructure:"log"`
	Watch   WatchConfig         `mapstructure:"watch"`
	ACL     map[string][]string `mapstructure:"acl"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// TrackerConfig holds the JIRA connection.
type TrackerConfig struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Token    string `mapstructure:"token"`
}

// Configured reports whether a tracker URL is set.
func (t TrackerConfig) Configured() bool {
	return t.URL != ""
}

// LogConfig controls the watch process log file.
type LogConfig struct {
	File       string `mapstructure:"file"`
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// WatchConfig controls the watch process.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// Load reads the configuration. An explicit path must exist; otherwise
// gridsync.yaml is looked up in each of searchDirs and then in
// $HOME/.config/gridsync, and a missing file leaves the defaults.
func Load(path string, searchDirs ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("GRIDSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		for _, dir := range searchDirs {
			if dir != "" {
				v.AddConfigPath(dir)
			}
		}
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", FileName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	cfg.Tracker.URL = strings.TrimRight(cfg.Tracker.URL, "/")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", DefaultDataDir)
	v.SetDefault("tracker.url", "")
	v.SetDefault("tracker.username", "")
	v.SetDefault("tracker.token", "")
	v.SetDefault("log.file", "")
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.max_size_mb", DefaultLogMaxSizeMB)
	v.SetDefault("log.max_backups", DefaultLogMaxBackups)
	v.SetDefault("watch.debounce", DefaultDebounce)
}

// Package config loads tasksync settings from a config file, TASKSYNC_*
// environment variables and built-in defaults, in increasing order of
// precedence: defaults, file, environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mschirtzinger/tasksync/internal/schema"
)

// EnvPrefix prefixes every environment override, e.g. TASKSYNC_SYNC_INTERVAL.
const EnvPrefix = "TASKSYNC"

// Store backends.
const (
	BackendLocal  = "local"
	BackendRemote = "remote"
)

// Config is the full tasksync configuration.
type Config struct {
	Owner     string          `mapstructure:"owner"`
	DataDir   string          `mapstructure:"data_dir"`
	Log       LogConfig       `mapstructure:"log"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Placement PlacementConfig `mapstructure:"placement"`
	Store     StoreConfig     `mapstructure:"store"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Watch     WatchConfig     `mapstructure:"watch"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// SyncConfig controls the scheduler and materializer.
type SyncConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	DefaultDueOffset time.Duration `mapstructure:"default_due_offset"`
}

// PlacementConfig controls which lists receive new tasks.
type PlacementConfig struct {
	DefaultListNames []string `mapstructure:"default_list_names"`
}

// StoreConfig selects where tasks and lists live.
type StoreConfig struct {
	Backend      string        `mapstructure:"backend"`
	BaseURL      string        `mapstructure:"base_url"`
	SessionToken string        `mapstructure:"session_token"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// DashboardConfig controls the WebSocket view feed.
type DashboardConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// WatchConfig controls file source watching in the daemon.
type WatchConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	dataDir := ".tasksync"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".tasksync")
	}

	return &Config{
		Owner:   defaultOwner(),
		DataDir: dataDir,
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Sync: SyncConfig{
			Interval:         time.Hour,
			DefaultDueOffset: 7 * 24 * time.Hour,
		},
		Placement: PlacementConfig{
			DefaultListNames: append([]string(nil), schema.DefaultRecurringListNames...),
		},
		Store: StoreConfig{
			Backend: BackendLocal,
			Timeout: 30 * time.Second,
		},
		Dashboard: DashboardConfig{
			Enabled: false,
			Port:    8080,
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: 500 * time.Millisecond,
		},
	}
}

func defaultOwner() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "local"
}

// DefaultPath is where Load looks when no path is given.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".tasksync", "config.yaml")
	}
	return filepath.Join(dir, "tasksync", "config.yaml")
}

// DatabasePath is the embedded store file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "tasksync.db")
}

// Load reads configuration. With an empty path the default location is used
// and a missing file is not an error; an explicit path must exist. The file
// format follows the extension (yaml, yml, toml, json).
func Load(path string) (*Config, error) {
	v := newViper()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound), errors.Is(err, os.ErrNotExist):
			if explicit {
				return nil, fmt.Errorf("config file %s not found", path)
			}
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := DefaultConfig()
	v.SetDefault("owner", d.Owner)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("sync.interval", d.Sync.Interval)
	v.SetDefault("sync.default_due_offset", d.Sync.DefaultDueOffset)
	v.SetDefault("placement.default_list_names", d.Placement.DefaultListNames)
	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.base_url", d.Store.BaseURL)
	v.SetDefault("store.session_token", d.Store.SessionToken)
	v.SetDefault("store.timeout", d.Store.Timeout)
	v.SetDefault("dashboard.enabled", d.Dashboard.Enabled)
	v.SetDefault("dashboard.port", d.Dashboard.Port)
	v.SetDefault("watch.enabled", d.Watch.Enabled)
	v.SetDefault("watch.debounce", d.Watch.Debounce)
	return v
}

func (c *Config) normalize() {
	c.Owner = strings.TrimSpace(c.Owner)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if strings.HasPrefix(c.DataDir, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			c.DataDir = filepath.Join(home, c.DataDir[2:])
		}
	}

	// A single env value such as "Daily,Weekly" arrives as one element.
	if len(c.Placement.DefaultListNames) == 1 && strings.Contains(c.Placement.DefaultListNames[0], ",") {
		parts := strings.Split(c.Placement.DefaultListNames[0], ",")
		c.Placement.DefaultListNames = c.Placement.DefaultListNames[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				c.Placement.DefaultListNames = append(c.Placement.DefaultListNames, p)
			}
		}
	}
}

// Package config loads taskd settings from taskd.toml, TASKD_* environment
// variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// FileName is the config file name searched for without an explicit path.
const FileName = "taskd.toml"

// Keys.
const (
	KeyDBPath        = "db.path"
	KeyDBChunkSize   = "db.chunk_size"
	KeyCacheDir      = "cache.dir"
	KeyPrefsPath     = "prefs.path"
	KeySyncDebounce  = "sync.debounce"
	KeySyncSchedule  = "sync.schedule"
	KeyDashboardPort = "dashboard.port"
	KeyLogFile       = "log.file"
	KeyLogLevel      = "log.level"
)

// Config is the effective configuration.
type Config struct {
	DB        DBConfig        `mapstructure:"db"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Prefs     PrefsConfig     `mapstructure:"prefs"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Log       LogConfig       `mapstructure:"log"`
}

// DBConfig configures the task store.
type DBConfig struct {
	Path      string `mapstructure:"path"`
	ChunkSize int    `mapstructure:"chunk_size"`
}

// CacheConfig configures the offline calendar object cache.
type CacheConfig struct {
	Dir string `mapstructure:"dir"`
}

// PrefsConfig configures the preferences file.
type PrefsConfig struct {
	Path string `mapstructure:"path"`
}

// SyncConfig configures sync triggering.
type SyncConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
	Schedule string        `mapstructure:"schedule"` // cron spec, empty disables
}

// DashboardConfig configures the websocket notifier.
type DashboardConfig struct {
	Port int `mapstructure:"port"`
}

// Addr returns the listen address for the notifier.
func (d DashboardConfig) Addr() string {
	return fmt.Sprintf(":%d", d.Port)
}

// LogConfig configures logging.
type LogConfig struct {
	File  string `mapstructure:"file"` // empty logs to stderr
	Level string `mapstructure:"level"`
}

// DataDir returns the directory holding the database and prefs.
func DataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "taskd")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "taskd")
	}
	return ".taskd"
}

// ConfigDir returns the directory searched for taskd.toml.
func ConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "taskd")
	}
	return ".taskd"
}

func cacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "taskd", "vtodo")
	}
	return filepath.Join(DataDir(), "vtodo")
}

// Default returns the built-in defaults.
func Default() *Config {
	data := DataDir()
	return &Config{
		DB:        DBConfig{Path: filepath.Join(data, "tasks.db"), ChunkSize: 900},
		Cache:     CacheConfig{Dir: cacheDir()},
		Prefs:     PrefsConfig{Path: filepath.Join(data, "prefs.yaml")},
		Sync:      SyncConfig{Debounce: time.Second, Schedule: "@every 15m"},
		Dashboard: DashboardConfig{Port: 7433},
		Log:       LogConfig{Level: "info"},
	}
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	def := Default()
	v.SetDefault(KeyDBPath, def.DB.Path)
	v.SetDefault(KeyDBChunkSize, def.DB.ChunkSize)
	v.SetDefault(KeyCacheDir, def.Cache.Dir)
	v.SetDefault(KeyPrefsPath, def.Prefs.Path)
	v.SetDefault(KeySyncDebounce, def.Sync.Debounce)
	v.SetDefault(KeySyncSchedule, def.Sync.Schedule)
	v.SetDefault(KeyDashboardPort, def.Dashboard.Port)
	v.SetDefault(KeyLogFile, def.Log.File)
	v.SetDefault(KeyLogLevel, def.Log.Level)

	v.SetEnvPrefix("TASKD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file into v and returns the validated result.
// An explicit file must exist; otherwise taskd.toml is optional and
// searched for in ConfigDir and the working directory.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("toml")
		v.AddConfigPath(ConfigDir())
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks if the Config has valid field values.
func (c *Config) Validate() error {
	if c.DB.Path == "" {
		return fmt.Errorf("%s is required", KeyDBPath)
	}
	if c.DB.ChunkSize <= 0 {
		return fmt.Errorf("%s must be positive, got %d", KeyDBChunkSize, c.DB.ChunkSize)
	}
	if c.Sync.Debounce < 0 {
		return fmt.Errorf("%s must not be negative, got %s", KeySyncDebounce, c.Sync.Debounce)
	}
	if c.Sync.Schedule != "" {
		if _, err := cron.ParseStandard(c.Sync.Schedule); err != nil {
			return fmt.Errorf("invalid %s: %w", KeySyncSchedule, err)
		}
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("invalid %s: %d", KeyDashboardPort, c.Dashboard.Port)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid %s: %w", KeyLogLevel, err)
	}
	return nil
}

// file mirrors Config in the on-disk TOML layout.
type file struct {
	DB struct {
		Path      string `toml:"path"`
		ChunkSize int    `toml:"chunk_size"`
	} `toml:"db"`
	Cache struct {
		Dir string `toml:"dir"`
	} `toml:"cache"`
	Prefs struct {
		Path string `toml:"path"`
	} `toml:"prefs"`
	Sync struct {
		Debounce string `toml:"debounce"`
		Schedule string `toml:"schedule"`
	} `toml:"sync"`
	Dashboard struct {
		Port int `toml:"port"`
	} `toml:"dashboard"`
	Log struct {
		File  string `toml:"file"`
		Level string `toml:"level"`
	} `toml:"log"`
}

// Encode writes c as TOML.
func (c *Config) Encode(w io.Writer) error {
	var f file
	f.DB.Path = c.DB.Path
	f.DB.ChunkSize = c.DB.ChunkSize
	f.Cache.Dir = c.Cache.Dir
	f.Prefs.Path = c.Prefs.Path
	f.Sync.Debounce = c.Sync.Debounce.String()
	f.Sync.Schedule = c.Sync.Schedule
	f.Dashboard.Port = c.Dashboard.Port
	f.Log.File = c.Log.File
	f.Log.Level = c.Log.Level
	return toml.NewEncoder(w).Encode(f)
}

// WriteFile writes c to path. It refuses to overwrite an existing file.
func WriteFile(path string, c *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if err := c.Encode(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return f.Close()
}

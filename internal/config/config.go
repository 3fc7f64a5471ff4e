// Package config loads the aqsync configuration: a YAML config file read
// through viper (with AQSYNC_* environment overrides) and a TOML accounts
// file holding per-user calendar credentials.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the process-wide configuration.
type Config struct {
	// DBPath is the entity store location: a SQLite file path or a
	// libsql:// URL for a hosted replica.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`

	// AccountsPath is the TOML accounts file (per-user calendar credentials).
	AccountsPath string `mapstructure:"accounts_path" yaml:"accounts_path"`

	Calendar     CalendarConfig     `mapstructure:"calendar" yaml:"calendar"`
	Sync         SyncConfig         `mapstructure:"sync" yaml:"sync"`
	Daemon       DaemonConfig       `mapstructure:"daemon" yaml:"daemon"`
	Dashboard    DashboardConfig    `mapstructure:"dashboard" yaml:"dashboard"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity" yaml:"connectivity"`
	Log          LogConfig          `mapstructure:"log" yaml:"log"`
}

// CalendarConfig configures the remote calendar client.
type CalendarConfig struct {
	// BaseURL is the calendar API root.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// Timeout bounds each HTTP attempt.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// MaxRetries is the retry count after the first attempt (1..3).
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`
}

// SyncConfig configures the sync engine.
type SyncConfig struct {
	// ExportNew publishes never-mapped local entities as new remote events.
	ExportNew bool `mapstructure:"export_new" yaml:"export_new"`
}

// DaemonConfig configures the polling daemon.
type DaemonConfig struct {
	// PollCron is the cron expression for scheduled sync cycles.
	PollCron string `mapstructure:"poll_cron" yaml:"poll_cron"`

	// Debounce is how long a webhook-triggered user waits in the queue so
	// rapid notification bursts collapse into one sync.
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

// DashboardConfig configures the HTTP/WebSocket dashboard.
type DashboardConfig struct {
	Port int `mapstructure:"port" yaml:"port"`
}

// ConnectivityConfig configures the online-state probe.
type ConnectivityConfig struct {
	ProbeURL string        `mapstructure:"probe_url" yaml:"probe_url"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// LogConfig configures daemon file logging. An empty File logs to stderr
// only.
type LogConfig struct {
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// DefaultConfig returns sensible defaults rooted under ~/.aqsync.
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	root := filepath.Join(home, ".aqsync")

	return &Config{
		DBPath:       filepath.Join(root, "aqsync.db"),
		AccountsPath: filepath.Join(root, "accounts.toml"),
		Calendar: CalendarConfig{
			BaseURL:    "https://www.googleapis.com/calendar/v3",
			Timeout:    15 * time.Second,
			MaxRetries: 2,
		},
		Sync: SyncConfig{
			ExportNew: true,
		},
		Daemon: DaemonConfig{
			PollCron: "*/5 * * * *",
			Debounce: 3 * time.Second,
		},
		Dashboard: DashboardConfig{
			Port: 8080,
		},
		Connectivity: ConnectivityConfig{
			ProbeURL: "https://www.googleapis.com/generate_204",
			Interval: 30 * time.Second,
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 30,
		},
	}
}

// Load reads the config file at path, layering AQSYNC_* environment
// variables over it. A missing file is not an error: defaults plus
// environment apply.
//
// Example:
//
//	cfg, err := config.Load("~/.aqsync/config.yaml")
func Load(path string) (*Config, error) {
	def := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("AQSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("db_path", def.DBPath)
	v.SetDefault("accounts_path", def.AccountsPath)
	v.SetDefault("calendar.base_url", def.Calendar.BaseURL)
	v.SetDefault("calendar.timeout", def.Calendar.Timeout)
	v.SetDefault("calendar.max_retries", def.Calendar.MaxRetries)
	v.SetDefault("sync.export_new", def.Sync.ExportNew)
	v.SetDefault("daemon.poll_cron", def.Daemon.PollCron)
	v.SetDefault("daemon.debounce", def.Daemon.Debounce)
	v.SetDefault("dashboard.port", def.Dashboard.Port)
	v.SetDefault("connectivity.probe_url", def.Connectivity.ProbeURL)
	v.SetDefault("connectivity.interval", def.Connectivity.Interval)
	v.SetDefault("log.file", def.Log.File)
	v.SetDefault("log.max_size_mb", def.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", def.Log.MaxBackups)
	v.SetDefault("log.max_age_days", def.Log.MaxAgeDays)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, statErr := os.Stat(path); statErr == nil {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
			// Missing file: fall through to defaults + env.
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.Calendar.BaseURL == "" {
		return fmt.Errorf("calendar.base_url is required")
	}
	if c.Calendar.Timeout <= 0 {
		return fmt.Errorf("calendar.timeout must be positive (got %v)", c.Calendar.Timeout)
	}
	if c.Calendar.MaxRetries < 1 || c.Calendar.MaxRetries > 3 {
		return fmt.Errorf("calendar.max_retries must be between 1 and 3 (got %d)", c.Calendar.MaxRetries)
	}
	if c.Daemon.PollCron == "" {
		return fmt.Errorf("daemon.poll_cron is required")
	}
	if c.Daemon.Debounce < 0 {
		return fmt.Errorf("daemon.debounce must not be negative (got %v)", c.Daemon.Debounce)
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port %d out of range", c.Dashboard.Port)
	}
	return nil
}

// WriteDefault renders the default configuration as YAML at path, creating
// parent directories. Refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to render default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

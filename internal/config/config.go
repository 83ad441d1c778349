package config

import (
	"errors"
	"io/fs"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultActionUUID is the action identifier declared in the plugin manifest
const DefaultActionUUID = "com.ramwich.smartthings.control"

// Config represents the plugin configuration
type Config struct {
	Plugin          PluginConfig      `yaml:"plugin"`
	SmartThings     SmartThingsConfig `yaml:"smartthings"`
	Dispatch        DispatchConfig    `yaml:"dispatch"`
	Database        DatabaseConfig    `yaml:"database"`
	Log             LogConfig         `yaml:"log"`
	History         HistoryConfig     `yaml:"history"`
	Healthcheck     HealthcheckConfig `yaml:"healthcheck"`
	EventBus        EventBusConfig    `yaml:"eventbus"`
	ShutdownTimeout Duration          `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// PluginConfig contains host-facing settings
type PluginConfig struct {
	ActionUUID  string   `yaml:"action_uuid"`  // Only events for this action are dispatched
	DialTimeout Duration `yaml:"dial_timeout"` // Timeout for connecting to the host
}

// SmartThingsConfig contains cloud API settings
type SmartThingsConfig struct {
	BaseURL   string   `yaml:"base_url"`
	Timeout   Duration `yaml:"timeout"`    // HTTP timeout for API requests
	PacingRPS *float64 `yaml:"pacing_rps"` // Pacing of sequential group calls, 0 = unpaced
}

// DefaultPacingRPS applies when pacing_rps is absent
const DefaultPacingRPS = 10.0

// GetPacingRPS returns the configured pacing; zero or negative disables it
func (c *SmartThingsConfig) GetPacingRPS() float64 {
	if c.PacingRPS == nil {
		return DefaultPacingRPS
	}
	return *c.PacingRPS
}

// DispatchConfig contains follow-up refresh delays
type DispatchConfig struct {
	DeviceRefreshDelay Duration `yaml:"device_refresh_delay"`
	GroupRefreshDelay  Duration `yaml:"group_refresh_delay"`
	SceneRefreshDelay  Duration `yaml:"scene_refresh_delay"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level      string `yaml:"level"`
	Colors     bool   `yaml:"colors"`
	UseJSON    bool   `yaml:"json"`
	File       string `yaml:"file"` // Rotating log file, "-" logs to stderr only
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// GetLevel returns the configured level
func (c *LogConfig) GetLevel() string {
	return c.Level
}

// HistoryConfig contains key-press history settings
type HistoryConfig struct {
	Enabled         bool     `yaml:"enabled"`
	RetentionDays   int      `yaml:"retention_days"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
}

// Retention returns the retention period
func (c *HistoryConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// HealthcheckConfig contains health check server settings
type HealthcheckConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// GetHost returns the listen host
func (c *HealthcheckConfig) GetHost() string {
	return c.Host
}

// GetPort returns the listen port
func (c *HealthcheckConfig) GetPort() int {
	return c.Port
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// GetShutdownTimeout returns the shutdown timeout
func (c *Config) GetShutdownTimeout() time.Duration {
	return c.ShutdownTimeout.Duration()
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file.
// A missing file is not an error: the host launches the plugin without one.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		expanded := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, err
		}
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	// Plugin defaults
	if cfg.Plugin.ActionUUID == "" {
		cfg.Plugin.ActionUUID = DefaultActionUUID
	}
	if cfg.Plugin.DialTimeout == 0 {
		cfg.Plugin.DialTimeout = Duration(10 * time.Second)
	}

	// SmartThings defaults
	if cfg.SmartThings.BaseURL == "" {
		cfg.SmartThings.BaseURL = "https://api.smartthings.com/v1"
	}
	if cfg.SmartThings.Timeout == 0 {
		cfg.SmartThings.Timeout = Duration(30 * time.Second)
	}

	// Refresh delays
	if cfg.Dispatch.DeviceRefreshDelay == 0 {
		cfg.Dispatch.DeviceRefreshDelay = Duration(800 * time.Millisecond)
	}
	if cfg.Dispatch.GroupRefreshDelay == 0 {
		cfg.Dispatch.GroupRefreshDelay = Duration(1000 * time.Millisecond)
	}
	if cfg.Dispatch.SceneRefreshDelay == 0 {
		cfg.Dispatch.SceneRefreshDelay = Duration(800 * time.Millisecond)
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "./stdeck.sqlite"
	}

	// Log defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.File == "" {
		cfg.Log.File = "stdeck.log"
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 10
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 3
	}
	if cfg.Log.MaxAgeDays == 0 {
		cfg.Log.MaxAgeDays = 28
	}

	// History defaults
	if cfg.History.RetentionDays == 0 {
		cfg.History.RetentionDays = 30
	}
	if cfg.History.CleanupInterval == 0 {
		cfg.History.CleanupInterval = Duration(24 * time.Hour)
	}

	// Healthcheck defaults
	if cfg.Healthcheck.Port == 0 {
		cfg.Healthcheck.Port = 9090
	}
	if cfg.Healthcheck.Host == "" {
		cfg.Healthcheck.Host = "127.0.0.1"
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}

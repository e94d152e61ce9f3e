// Package config provides configuration management for the wheel ledger.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"wheel-ledger/internal/logging"
)

// Supported ledger backends.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Quotes   QuotesConfig   `mapstructure:"quotes"`
	UI       UIConfig       `mapstructure:"ui"`

	// Dir is the directory the config was loaded from.
	Dir string `mapstructure:"-"`
}

// DatabaseConfig selects and locates the ledger backend.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite, postgres
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// EngineConfig holds campaign engine settings.
type EngineConfig struct {
	MaxChainDepth     int   `mapstructure:"max_chain_depth"`
	AlertDTEThreshold int   `mapstructure:"alert_dte_threshold"`
	DefaultUserID     int64 `mapstructure:"default_user_id"`
}

// QuotesConfig holds the static quote table and its cache lifetime.
type QuotesConfig struct {
	CacheTTL time.Duration     `mapstructure:"cache_ttl"`
	Prices   map[string]string `mapstructure:"prices"`
}

// UIConfig holds terminal output settings.
type UIConfig struct {
	ColorEnabled bool `mapstructure:"color_enabled"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/wheel-ledger"
	}
	return filepath.Join(home, ".config", "wheel-ledger")
}

// ConfigPath returns the config file path inside configDir.
func ConfigPath(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, "config.toml")
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", filepath.Join(configDir, "wheel.db"))
	v.SetDefault("database.dsn", "")

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.console", true)
	v.SetDefault("log.file", false)
	v.SetDefault("log.file_path", filepath.Join(configDir, "logs", "wheel.log"))
	v.SetDefault("log.max_size", 20)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)

	v.SetDefault("engine.max_chain_depth", 100)
	v.SetDefault("engine.alert_dte_threshold", 5)
	v.SetDefault("engine.default_user_id", 1)

	v.SetDefault("quotes.cache_ttl", "30s")

	v.SetDefault("ui.color_enabled", true)
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config.toml is replaced by the commented template before loading.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
		if err := createTemplateConfig(configDir); err != nil {
			return nil, err
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
	}

	cfg := &Config{Dir: configDir}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file is present.
func Default(configDir string) *Config {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	v := viper.New()
	setDefaults(v, configDir)
	cfg := &Config{Dir: configDir}
	_ = v.Unmarshal(cfg)
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WHEEL_DB_DRIVER"); v != "" {
		cfg.Database.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("WHEEL_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("WHEEL_DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
		if os.Getenv("WHEEL_DB_DRIVER") == "" {
			cfg.Database.Driver = DriverPostgres
		}
	}
	if v := os.Getenv("WHEEL_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("WHEEL_USER_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Engine.DefaultUserID = id
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid database driver: %q (must be 'sqlite' or 'postgres')", c.Database.Driver)
	}

	if c.Engine.MaxChainDepth <= 0 {
		return fmt.Errorf("engine.max_chain_depth must be positive")
	}
	if c.Engine.AlertDTEThreshold < 0 {
		return fmt.Errorf("engine.alert_dte_threshold must be non-negative")
	}
	if c.Quotes.CacheTTL < 0 {
		return fmt.Errorf("quotes.cache_ttl must be non-negative")
	}

	return nil
}

// Logging converts the log section to a logging.LogConfig.
func (c *Config) Logging() logging.LogConfig {
	return logging.LogConfig{
		Level:      c.Log.Level,
		Console:    c.Log.Console,
		File:       c.Log.File,
		FilePath:   c.Log.FilePath,
		MaxSize:    c.Log.MaxSize,
		MaxBackups: c.Log.MaxBackups,
		MaxAge:     c.Log.MaxAge,
	}
}

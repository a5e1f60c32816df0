package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Engine      EngineConfig    `mapstructure:"engine"`
	Storage     StorageConfig   `mapstructure:"storage"`
	Telegram    TelegramConfig  `mapstructure:"telegram"`
	KillStats   KillStatsConfig `mapstructure:"killstats"`
	Monitor     MonitorConfig   `mapstructure:"monitor"`
	HTTP        HTTPConfig      `mapstructure:"http"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	CatalogPath string          `mapstructure:"catalog_path"`
}

// EngineConfig holds spawn-chance calculation settings
type EngineConfig struct {
	DayStartHour          int    `mapstructure:"day_start_hour"`
	DefaultAppearanceHour int    `mapstructure:"default_appearance_hour"`
	HistoryWindow         int    `mapstructure:"history_window"`
	Precision             int    `mapstructure:"precision"`
	StrictHistory         bool   `mapstructure:"strict_history"`
	Timezone              string `mapstructure:"timezone"`
	Concurrency           int    `mapstructure:"concurrency"`
}

// StorageConfig selects the appearance store backend
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// KillStatsConfig holds the kill statistics importer configuration
type KillStatsConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	APIBaseURL        string        `mapstructure:"api_base_url"`
	World             string        `mapstructure:"world"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	MaxRetries        int           `mapstructure:"max_retries"`
	SyncHour          int           `mapstructure:"sync_hour"`
}

// MonitorConfig holds scheduled re-evaluation and notification settings
type MonitorConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Threshold    float64       `mapstructure:"threshold"` // chance percent at which a boss is due
	Cooldown     time.Duration `mapstructure:"cooldown"`
}

// HTTPConfig holds the JSON API settings
type HTTPConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Addr             string        `mapstructure:"addr"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	CORSAllowOrigins []string      `mapstructure:"cors_allow_origins"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Load reads configuration from file and environment variables. A .env file in
// the working directory is loaded first when present. An empty path uses defaults
// and environment variables only.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Enable environment variable override, e.g. SPAWN_ORACLE_TELEGRAM_BOT_TOKEN
	v.SetEnvPrefix("SPAWN_ORACLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Engine defaults
	v.SetDefault("engine.day_start_hour", 10)
	v.SetDefault("engine.default_appearance_hour", 15)
	v.SetDefault("engine.history_window", 25)
	v.SetDefault("engine.precision", 2)
	v.SetDefault("engine.strict_history", false)
	v.SetDefault("engine.timezone", "Europe/Berlin")
	v.SetDefault("engine.concurrency", 4)

	// Storage defaults
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", "./data/spawnoracle.db")
	v.SetDefault("storage.dsn", "")

	// Telegram defaults
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Kill statistics defaults
	v.SetDefault("killstats.enabled", false)
	v.SetDefault("killstats.api_base_url", "https://api.tibiadata.com")
	v.SetDefault("killstats.world", "")
	v.SetDefault("killstats.timeout", "30s")
	v.SetDefault("killstats.requests_per_minute", 30)
	v.SetDefault("killstats.max_retries", 3)
	v.SetDefault("killstats.sync_hour", 11)

	// Monitor defaults
	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.poll_interval", "30m")
	v.SetDefault("monitor.threshold", 50.0)
	v.SetDefault("monitor.cooldown", "12h")

	// HTTP defaults
	v.SetDefault("http.enabled", false)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "10s")
	v.SetDefault("http.cors_allow_origins", []string{"*"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)

	v.SetDefault("catalog_path", "")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Engine config
	if c.Engine.DayStartHour < 0 || c.Engine.DayStartHour > 23 {
		return fmt.Errorf("engine.day_start_hour must be between 0 and 23")
	}
	if c.Engine.DefaultAppearanceHour < c.Engine.DayStartHour || c.Engine.DefaultAppearanceHour > 23 {
		return fmt.Errorf("engine.default_appearance_hour must be between engine.day_start_hour and 23")
	}
	if c.Engine.HistoryWindow < 2 {
		return fmt.Errorf("engine.history_window must be at least 2")
	}
	if c.Engine.Precision < 0 || c.Engine.Precision > 6 {
		return fmt.Errorf("engine.precision must be between 0 and 6")
	}
	if c.Engine.Concurrency < 1 {
		return fmt.Errorf("engine.concurrency must be at least 1")
	}
	if _, err := time.LoadLocation(c.Engine.Timezone); err != nil {
		return fmt.Errorf("engine.timezone is invalid: %w", err)
	}

	// Validate Storage config
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver must be one of: sqlite, postgres")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate KillStats config
	if c.KillStats.Enabled {
		if c.KillStats.APIBaseURL == "" {
			return fmt.Errorf("killstats.api_base_url is required when killstats is enabled")
		}
		if c.KillStats.World == "" {
			return fmt.Errorf("killstats.world is required when killstats is enabled")
		}
		if c.KillStats.RequestsPerMinute < 1 {
			return fmt.Errorf("killstats.requests_per_minute must be at least 1")
		}
	}
	if c.KillStats.SyncHour < 0 || c.KillStats.SyncHour > 23 {
		return fmt.Errorf("killstats.sync_hour must be between 0 and 23")
	}

	// Validate Monitor config
	if c.Monitor.Enabled {
		if c.Monitor.PollInterval < 1*time.Minute {
			return fmt.Errorf("monitor.poll_interval must be at least 1 minute")
		}
		if c.Monitor.Threshold <= 0 || c.Monitor.Threshold > 100 {
			return fmt.Errorf("monitor.threshold must be greater than 0 and at most 100")
		}
	}

	// Validate HTTP config
	if c.HTTP.Enabled && c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required when http is enabled")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// Location returns the configured engine time zone
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Engine.Timezone)
}

package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	AdminTokenHash  string        `mapstructure:"admin_token_hash"` // bcrypt hash; empty leaves admin routes open
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// TelemetryConfig holds operation tracking and budget defaults
type TelemetryConfig struct {
	EnableCostTracking        bool          `mapstructure:"enable_cost_tracking"`
	EnablePerformanceTracking bool          `mapstructure:"enable_performance_tracking"`
	BudgetAlertThreshold      float64       `mapstructure:"budget_alert_threshold"`
	DefaultDailyBudgetUSD     float64       `mapstructure:"default_daily_budget_usd"`
	DefaultMonthlyBudgetUSD   float64       `mapstructure:"default_monthly_budget_usd"`
	PricePer1KTokens          float64       `mapstructure:"price_per_1k_tokens"`
	SampleResources           bool          `mapstructure:"sample_resources"`
	ExceededAlertInterval     time.Duration `mapstructure:"exceeded_alert_interval"` // 0 alerts on every update
}

// AlertsConfig holds alert delivery configuration
type AlertsConfig struct {
	RedisURL      string `mapstructure:"redis_url"` // Empty disables Redis delivery
	RedisPassword string `mapstructure:"redis_password"`
	Channel       string `mapstructure:"channel"`
}

// MonitorConfig holds budget monitor configuration
type MonitorConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "text"
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Config file is optional
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	return unmarshal(v)
}

// LoadFromEnv loads configuration primarily from environment variables
func LoadFromEnv() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from .env file if it exists
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // Ignore error if .env doesn't exist

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	// Read from environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Bind specific environment variables
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.path", "./data/governor.db")

	// Telemetry defaults
	v.SetDefault("telemetry.enable_cost_tracking", true)
	v.SetDefault("telemetry.enable_performance_tracking", true)
	v.SetDefault("telemetry.budget_alert_threshold", 0.8)
	v.SetDefault("telemetry.default_daily_budget_usd", 10.0)
	v.SetDefault("telemetry.default_monthly_budget_usd", 300.0)
	v.SetDefault("telemetry.price_per_1k_tokens", 0.002)
	v.SetDefault("telemetry.sample_resources", false)
	v.SetDefault("telemetry.exceeded_alert_interval", time.Duration(0))

	// Alert delivery defaults
	v.SetDefault("alerts.channel", "governor:budget-alerts")

	// Monitor defaults
	v.SetDefault("monitor.interval", time.Minute)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func bindEnvVars(v *viper.Viper) {
	// Helper to bind and log errors (BindEnv errors are non-fatal but should be logged)
	bindEnv := func(key string, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			slog.Warn("failed to bind environment variable",
				slog.String("key", key),
				slog.String("env_var", envVar),
				slog.String("error", err.Error()))
		}
	}

	// Database path
	bindEnv("database.path", "DATABASE_PATH")

	// Server config
	bindEnv("server.host", "SERVER_HOST")
	bindEnv("server.port", "SERVER_PORT")
	bindEnv("server.admin_token_hash", "ADMIN_TOKEN_HASH")

	// Telemetry
	bindEnv("telemetry.enable_cost_tracking", "ENABLE_COST_TRACKING")
	bindEnv("telemetry.enable_performance_tracking", "ENABLE_PERFORMANCE_TRACKING")
	bindEnv("telemetry.budget_alert_threshold", "BUDGET_ALERT_THRESHOLD")
	bindEnv("telemetry.default_daily_budget_usd", "DEFAULT_DAILY_BUDGET_USD")
	bindEnv("telemetry.default_monthly_budget_usd", "DEFAULT_MONTHLY_BUDGET_USD")
	bindEnv("telemetry.price_per_1k_tokens", "PRICE_PER_1K_TOKENS")

	// Alert delivery
	bindEnv("alerts.redis_url", "REDIS_URL")
	bindEnv("alerts.redis_password", "REDIS_PASSWORD")

	// Logging
	bindEnv("logging.level", "LOG_LEVEL")
	bindEnv("logging.format", "LOG_FORMAT")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	t := c.Telemetry

	if t.BudgetAlertThreshold <= 0 || t.BudgetAlertThreshold > 1 {
		return fmt.Errorf("budget_alert_threshold must be in (0, 1], got %v", t.BudgetAlertThreshold)
	}
	if t.DefaultDailyBudgetUSD <= 0 {
		return fmt.Errorf("default_daily_budget_usd must be positive, got %v", t.DefaultDailyBudgetUSD)
	}
	if t.DefaultMonthlyBudgetUSD <= 0 {
		return fmt.Errorf("default_monthly_budget_usd must be positive, got %v", t.DefaultMonthlyBudgetUSD)
	}
	if t.PricePer1KTokens < 0 {
		return fmt.Errorf("price_per_1k_tokens must not be negative, got %v", t.PricePer1KTokens)
	}
	if t.ExceededAlertInterval < 0 {
		return fmt.Errorf("exceeded_alert_interval must not be negative")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}

	return nil
}

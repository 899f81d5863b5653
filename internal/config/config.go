// Package config provides configuration management for the option sentinel.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Engine      EngineConfig  `mapstructure:"engine"`
	Costing     CostingConfig `mapstructure:"costing"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
	Logging     LoggingConfig `mapstructure:"logging"`
	Credentials Credentials   `mapstructure:"-"` // Loaded separately
}

// EngineConfig holds supervisor and order parameters.
type EngineConfig struct {
	CycleInterval     time.Duration `mapstructure:"cycle_interval"`
	SubscribeInterval time.Duration `mapstructure:"subscribe_interval"`
	SummaryInterval   time.Duration `mapstructure:"summary_interval"`
	Exchanges         []string      `mapstructure:"exchanges"`
	Products          []string      `mapstructure:"products"`
	TickSize          float64       `mapstructure:"tick_size"`
	SellMargin        float64       `mapstructure:"sell_margin"`
	PriceEpsilon      float64       `mapstructure:"price_epsilon"`
}

// CostingConfig holds the dual-engine costing policy knobs.
type CostingConfig struct {
	UseExecutions      bool          `mapstructure:"use_executions"`
	LookbackDays       int           `mapstructure:"lookback_days"`
	SyntheticBootstrap bool          `mapstructure:"synthetic_bootstrap"`
	CoverageRatio      float64       `mapstructure:"coverage_ratio"`
	DeferWindow        time.Duration `mapstructure:"defer_window"`
	DedupCapacity      int           `mapstructure:"dedup_capacity"`
}

// MetricsConfig holds prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// Credentials holds API credentials.
type Credentials struct {
	Kite KiteCredentials `mapstructure:"kite"`
}

// KiteCredentials holds Zerodha Kite Connect API credentials.
type KiteCredentials struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	UserID    string `mapstructure:"user_id"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/option-sentinel"
	}
	return filepath.Join(home, ".config", "option-sentinel")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir string, target *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if terr := createTemplateConfig(configDir); terr != nil {
				return terr
			}
			// Run on defaults until the template is edited
			return v.Unmarshal(target)
		}
		return err
	}

	return v.Unmarshal(target)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.cycle_interval", 3*time.Second)
	v.SetDefault("engine.subscribe_interval", 10*time.Second)
	v.SetDefault("engine.summary_interval", 60*time.Second)
	v.SetDefault("engine.exchanges", []string{"NFO", "BFO"})
	v.SetDefault("engine.products", []string{"NRML", "MIS"})
	v.SetDefault("engine.tick_size", 0.05)
	v.SetDefault("engine.sell_margin", 0.25)
	v.SetDefault("engine.price_epsilon", 1e-6)

	v.SetDefault("costing.use_executions", true)
	v.SetDefault("costing.lookback_days", 45)
	v.SetDefault("costing.synthetic_bootstrap", true)
	v.SetDefault("costing.coverage_ratio", 0.95)
	v.SetDefault("costing.defer_window", 2*time.Second)
	v.SetDefault("costing.dedup_capacity", 10000)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen", ":9107")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.file_path", filepath.Join(DefaultConfigDir(), "logs", "sentinel.log"))
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 7)
	v.SetDefault("logging.max_age", 30)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KITE_API_KEY"); v != "" {
		cfg.Credentials.Kite.APIKey = v
	}
	if v := os.Getenv("KITE_API_SECRET"); v != "" {
		cfg.Credentials.Kite.APISecret = v
	}
	if v := os.Getenv("KITE_USER_ID"); v != "" {
		cfg.Credentials.Kite.UserID = v
	}
	if v := os.Getenv("SENTINEL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SENTINEL_METRICS_LISTEN"); v != "" {
		cfg.Metrics.Listen = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Engine.CycleInterval <= 0 {
		return fmt.Errorf("engine.cycle_interval must be positive")
	}
	if c.Engine.SubscribeInterval <= 0 {
		return fmt.Errorf("engine.subscribe_interval must be positive")
	}
	if c.Engine.TickSize <= 0 {
		return fmt.Errorf("engine.tick_size must be positive")
	}
	if c.Engine.SellMargin < 0 {
		return fmt.Errorf("engine.sell_margin must be non-negative")
	}
	if len(c.Engine.Exchanges) == 0 {
		return fmt.Errorf("engine.exchanges must not be empty")
	}
	if len(c.Engine.Products) == 0 {
		return fmt.Errorf("engine.products must not be empty")
	}
	if c.Costing.CoverageRatio <= 0 || c.Costing.CoverageRatio > 1 {
		return fmt.Errorf("costing.coverage_ratio must be in (0, 1]")
	}
	if c.Costing.LookbackDays <= 0 {
		return fmt.Errorf("costing.lookback_days must be positive")
	}
	if c.Costing.DedupCapacity <= 0 {
		return fmt.Errorf("costing.dedup_capacity must be positive")
	}
	return nil
}

// PlaceProduct returns the product type used for placed orders: the first
// configured product.
func (c *Config) PlaceProduct() string {
	return c.Engine.Products[0]
}

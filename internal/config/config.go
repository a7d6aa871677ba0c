// Package config provides configuration management for the chart engine.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "candlelens/internal/errors"
)

// Config holds all application configuration.
type Config struct {
	DataSource DataSourceConfig `mapstructure:"datasource"`
	Chart      ChartConfig      `mapstructure:"chart"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Scoring    ScoringConfig    `mapstructure:"scoring"`
	Store      StoreConfig      `mapstructure:"store"`
	Log        LogConfig        `mapstructure:"log"`

	// Dir is the directory the configuration was loaded from.
	Dir string `mapstructure:"-"`
}

// DataSourceConfig holds the remote data service settings.
type DataSourceConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	UserAgent  string        `mapstructure:"user_agent"`
	MinPeriods int           `mapstructure:"min_periods"`
}

// ChartConfig holds chart defaults.
type ChartConfig struct {
	DefaultDays int             `mapstructure:"default_days"`
	MinDays     int             `mapstructure:"min_days"`
	MaxDays     int             `mapstructure:"max_days"`
	Width       int             `mapstructure:"width"`
	Height      int             `mapstructure:"height"`
	Overlays    map[string]bool `mapstructure:"overlays"` // overlay key -> visible
}

// CacheConfig selects the response cache backend.
type CacheConfig struct {
	Backend       string        `mapstructure:"backend"` // none, memory, buntdb, redis
	Path          string        `mapstructure:"path"`
	TTL           time.Duration `mapstructure:"ttl"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
}

// Probability bounds accepted for scoring.
const (
	MinProbabilityFloor   = 0.05
	MaxProbabilityCeiling = 0.95
)

// ScoringConfig holds the pattern scoring constants.
type ScoringConfig struct {
	MomentumWeight float64 `mapstructure:"momentum_weight"`
	BreadthWeight  float64 `mapstructure:"breadth_weight"`
	LowVolWeight   float64 `mapstructure:"lowvol_weight"`
	EqBondWeight   float64 `mapstructure:"eqbond_weight"`
	TrendKappa     float64 `mapstructure:"trend_kappa"`
	ReversalKappa  float64 `mapstructure:"reversal_kappa"`
	Spread         float64 `mapstructure:"spread"`
	MinProbability float64 `mapstructure:"min_probability"`
	MaxProbability float64 `mapstructure:"max_probability"`
	BreadthSign    float64 `mapstructure:"breadth_sign"`
	LowVolSign     float64 `mapstructure:"lowvol_sign"`
	EqBondSign     float64 `mapstructure:"eqbond_sign"`
}

// StoreConfig holds the score journal location.
type StoreConfig struct {
	Path string `mapstructure:"path"`
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

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/candlelens"
	}
	return filepath.Join(home, ".config", "candlelens")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config.toml is replaced by a template and the defaults are used.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// .env values feed the environment overrides below
	if err := godotenv.Load(filepath.Join(configDir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{Dir: configDir}
	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target *Config) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
		if err := createTemplateConfig(configDir, name); err != nil {
			return err
		}
	}

	return v.Unmarshal(target)
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("datasource.base_url", "http://127.0.0.1:5000")
	v.SetDefault("datasource.timeout", 15*time.Second)
	v.SetDefault("datasource.user_agent", "candlelens/"+Version)
	v.SetDefault("datasource.min_periods", 5)

	v.SetDefault("chart.default_days", 30)
	v.SetDefault("chart.min_days", 10)
	v.SetDefault("chart.max_days", 100)
	v.SetDefault("chart.width", 1280)
	v.SetDefault("chart.height", 720)
	v.SetDefault("chart.overlays", map[string]bool{})

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.path", filepath.Join(configDir, "cache.db"))
	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("cache.redis_addr", "127.0.0.1:6379")
	v.SetDefault("cache.redis_db", 0)

	v.SetDefault("scoring.momentum_weight", 0.35)
	v.SetDefault("scoring.breadth_weight", 0.30)
	v.SetDefault("scoring.lowvol_weight", 0.20)
	v.SetDefault("scoring.eqbond_weight", 0.15)
	v.SetDefault("scoring.trend_kappa", 0.90)
	v.SetDefault("scoring.reversal_kappa", 0.75)
	v.SetDefault("scoring.spread", 0.45)
	v.SetDefault("scoring.min_probability", 0.05)
	v.SetDefault("scoring.max_probability", 0.95)
	v.SetDefault("scoring.breadth_sign", 1.0)
	v.SetDefault("scoring.lowvol_sign", 1.0)
	v.SetDefault("scoring.eqbond_sign", 1.0)

	v.SetDefault("store.path", filepath.Join(configDir, "scores.db"))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)
	v.SetDefault("log.file", false)
	v.SetDefault("log.file_path", filepath.Join(configDir, "logs", "candlelens.log"))
	v.SetDefault("log.max_size", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 14)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CANDLELENS_BASE_URL"); v != "" {
		cfg.DataSource.BaseURL = v
	}
	if v := os.Getenv("CANDLELENS_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("CANDLELENS_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("CANDLELENS_REDIS_PASSWORD"); v != "" {
		cfg.Cache.RedisPassword = v
	}
	if v := os.Getenv("CANDLELENS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataSource.BaseURL == "" {
		return invalid("datasource.base_url must be set")
	}

	if c.Chart.MinDays < 1 || c.Chart.MaxDays < c.Chart.MinDays {
		return invalid("chart day window invalid: min=%d max=%d", c.Chart.MinDays, c.Chart.MaxDays)
	}
	if c.Chart.DefaultDays < c.Chart.MinDays || c.Chart.DefaultDays > c.Chart.MaxDays {
		return invalid("chart.default_days must be between %d and %d", c.Chart.MinDays, c.Chart.MaxDays)
	}

	switch c.Cache.Backend {
	case "none", "memory", "buntdb", "redis":
	default:
		return invalid("invalid cache backend: %s (must be none, memory, buntdb or redis)", c.Cache.Backend)
	}

	// Scores are reported on [5, 95]; wider bounds would break that range.
	s := c.Scoring
	if s.MinProbability < MinProbabilityFloor || s.MaxProbability > MaxProbabilityCeiling || s.MinProbability >= s.MaxProbability {
		return invalid("scoring probability bounds must lie within [%.2f, %.2f], got [%v, %v]",
			MinProbabilityFloor, MaxProbabilityCeiling, s.MinProbability, s.MaxProbability)
	}
	total := s.MomentumWeight + s.BreadthWeight + s.LowVolWeight + s.EqBondWeight
	if total <= 0 {
		return invalid("scoring weights must sum to a positive value")
	}

	return nil
}

func invalid(format string, args ...interface{}) error {
	return apperrors.Wrapf(apperrors.ErrConfigInvalid, format, args...)
}

// ValidateDays checks a requested day window against the chart bounds.
// A zero MaxDays leaves the window unbounded above.
func (c ChartConfig) ValidateDays(days int) error {
	if days < c.MinDays || (c.MaxDays > 0 && days > c.MaxDays) {
		return apperrors.NewValidationError("days", days,
			fmt.Sprintf("must be between %d and %d", c.MinDays, c.MaxDays))
	}
	return nil
}

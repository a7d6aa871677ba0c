package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "candlelens/internal/errors"
)

func TestLoad_CreatesTemplateAndUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "config.toml")); err != nil {
		t.Errorf("expected template config.toml to be written: %v", err)
	}
	if cfg.Chart.DefaultDays != 30 {
		t.Errorf("DefaultDays = %d, want 30", cfg.Chart.DefaultDays)
	}
	if cfg.Scoring.MomentumWeight != 0.35 {
		t.Errorf("MomentumWeight = %v, want 0.35", cfg.Scoring.MomentumWeight)
	}
	if cfg.Cache.TTL != time.Hour {
		t.Errorf("Cache.TTL = %v, want 1h", cfg.Cache.TTL)
	}
	if cfg.Dir != dir {
		t.Errorf("Dir = %q, want %q", cfg.Dir, dir)
	}
}

func TestLoad_ReadsFileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	content := `
[datasource]
base_url = "http://charts.local:9000"

[chart]
default_days = 60

[chart.overlays]
ma20 = true

[cache]
backend = "buntdb"
`
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("CANDLELENS_LOG_LEVEL=debug\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CANDLELENS_BASE_URL", "http://override:1234")
	t.Setenv("CANDLELENS_LOG_LEVEL", "")
	os.Unsetenv("CANDLELENS_LOG_LEVEL")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.DataSource.BaseURL != "http://override:1234" {
		t.Errorf("BaseURL = %q, want env override", cfg.DataSource.BaseURL)
	}
	if cfg.Chart.DefaultDays != 60 {
		t.Errorf("DefaultDays = %d, want 60", cfg.Chart.DefaultDays)
	}
	if !cfg.Chart.Overlays["ma20"] {
		t.Errorf("expected ma20 overlay enabled, got %v", cfg.Chart.Overlays)
	}
	if cfg.Cache.Backend != "buntdb" {
		t.Errorf("Backend = %q, want buntdb", cfg.Cache.Backend)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug from .env", cfg.Log.Level)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			DataSource: DataSourceConfig{BaseURL: "http://x"},
			Chart:      ChartConfig{DefaultDays: 30, MinDays: 10, MaxDays: 100},
			Cache:      CacheConfig{Backend: "memory"},
			Scoring: ScoringConfig{
				MomentumWeight: 0.35, BreadthWeight: 0.3, LowVolWeight: 0.2, EqBondWeight: 0.15,
				MinProbability: 0.05, MaxProbability: 0.95,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"empty base url", func(c *Config) { c.DataSource.BaseURL = "" }, true},
		{"default days out of range", func(c *Config) { c.Chart.DefaultDays = 5 }, true},
		{"max below min", func(c *Config) { c.Chart.MaxDays = 5 }, true},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "memcached" }, true},
		{"inverted bounds", func(c *Config) { c.Scoring.MinProbability = 0.9; c.Scoring.MaxProbability = 0.1 }, true},
		{"max probability above ceiling", func(c *Config) { c.Scoring.MaxProbability = 1 }, true},
		{"min probability below floor", func(c *Config) { c.Scoring.MinProbability = 0 }, true},
		{"narrower bounds", func(c *Config) { c.Scoring.MinProbability, c.Scoring.MaxProbability = 0.2, 0.8 }, false},
		{"zero weights", func(c *Config) {
			c.Scoring.MomentumWeight, c.Scoring.BreadthWeight, c.Scoring.LowVolWeight, c.Scoring.EqBondWeight = 0, 0, 0, 0
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !apperrors.Is(err, apperrors.ErrConfigInvalid) {
				t.Errorf("Validate() error = %v, want ErrConfigInvalid", err)
			}
		})
	}
}

func TestValidateDays(t *testing.T) {
	c := ChartConfig{MinDays: 10, MaxDays: 100}
	for _, d := range []int{10, 50, 100} {
		if err := c.ValidateDays(d); err != nil {
			t.Errorf("ValidateDays(%d) unexpected error %v", d, err)
		}
	}
	for _, d := range []int{0, 9, 101} {
		if err := c.ValidateDays(d); !apperrors.Is(err, apperrors.ErrInputValidation) {
			t.Errorf("ValidateDays(%d) error = %v, want validation error", d, err)
		}
	}
	if err := (ChartConfig{MinDays: 10}).ValidateDays(500); err != nil {
		t.Errorf("unbounded window rejected 500: %v", err)
	}
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Detector  DetectorConfig  `yaml:"detector"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Alerting  AlertingConfig  `yaml:"alerting"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SnapshotConfig points at the fleet snapshot file written by the data-access layer
type SnapshotConfig struct {
	Path         string `yaml:"path"`
	Format       string `yaml:"format"` // "json" or "yaml"; empty means detect from extension
	PollInterval int    `yaml:"poll_interval_ms"`
}

// MinAcceptanceThreshold is the lowest confidence an anomaly may be stored with.
// detector.acceptance_threshold can raise it but never lower it.
const MinAcceptanceThreshold = 0.70

// DetectorConfig contains anomaly detection settings
type DetectorConfig struct {
	AcceptanceThreshold float64 `yaml:"acceptance_threshold"` // candidates below this confidence are dropped
	EngineTempLimit     float64 `yaml:"engine_temp_limit"`    // °C
	EngineTempZScore    float64 `yaml:"engine_temp_zscore"`
	RetentionDays       int     `yaml:"retention_days"`
	RetentionInterval   int     `yaml:"retention_interval_minutes"`
	ScanWorkers         int     `yaml:"scan_workers"`
}

// DashboardConfig contains web dashboard settings
type DashboardConfig struct {
	Port        int    `yaml:"port"`
	Host        string `yaml:"host"`
	RecentLimit int    `yaml:"recent_limit"`
	// AllowedOrigins is passed to CORS and the websocket origin check; "*" allows any
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// AlertingConfig configures the redis channel new anomalies are published on
type AlertingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	RedisAddr string `yaml:"redis_addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	Channel   string `yaml:"channel"`
	// RateLimit caps notifications per second; 0 disables the limit
	RateLimit  float64 `yaml:"rate_limit"`
	MaxRetries int     `yaml:"max_retries"`
}

// LoggingConfig controls zerolog output
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
	// File enables a rotated JSON log file next to the stderr output
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// RetentionTick returns the interval between history pruning passes
func (dc DetectorConfig) RetentionTick() time.Duration {
	return time.Duration(dc.RetentionInterval) * time.Minute
}

// SnapshotPoll returns the fallback polling interval of the snapshot watcher
func (sc SnapshotConfig) SnapshotPoll() time.Duration {
	return time.Duration(sc.PollInterval) * time.Millisecond
}

// LoadConfig loads configuration from a YAML file and applies environment overrides
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// .env is optional
	_ = godotenv.Load()
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Snapshot: SnapshotConfig{
			Path:         "fleet.json",
			PollInterval: 1000,
		},
		Detector: DetectorConfig{
			AcceptanceThreshold: MinAcceptanceThreshold,
			EngineTempLimit:     100,
			EngineTempZScore:    2.5,
			RetentionDays:       30,
			RetentionInterval:   60,
			ScanWorkers:         1,
		},
		Dashboard: DashboardConfig{
			Port:           8080,
			Host:           "localhost",
			RecentLimit:    50,
			AllowedOrigins: []string{"*"},
		},
		Alerting: AlertingConfig{
			Enabled:    false,
			RedisAddr:  "localhost:6379",
			Channel:    "fleet_anomalies",
			RateLimit:  50,
			MaxRetries: 3,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Validate reports the first invalid setting
func (c *Config) Validate() error {
	d := c.Detector
	if d.AcceptanceThreshold < MinAcceptanceThreshold || d.AcceptanceThreshold > 1 {
		return fmt.Errorf("detector.acceptance_threshold must be within [%v,1], got %v", MinAcceptanceThreshold, d.AcceptanceThreshold)
	}
	if d.EngineTempZScore <= 0 {
		return fmt.Errorf("detector.engine_temp_zscore must be positive, got %v", d.EngineTempZScore)
	}
	if d.RetentionDays < 1 {
		return fmt.Errorf("detector.retention_days must be at least 1, got %d", d.RetentionDays)
	}
	if d.ScanWorkers < 1 {
		return fmt.Errorf("detector.scan_workers must be at least 1, got %d", d.ScanWorkers)
	}
	if c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port out of range: %d", c.Dashboard.Port)
	}
	if c.Alerting.Enabled && c.Alerting.RedisAddr == "" {
		return errors.New("alerting.redis_addr is required when alerting is enabled")
	}
	if c.Alerting.RateLimit < 0 {
		return fmt.Errorf("alerting.rate_limit must not be negative, got %v", c.Alerting.RateLimit)
	}
	if c.Alerting.MaxRetries < 0 {
		return fmt.Errorf("alerting.max_retries must not be negative, got %d", c.Alerting.MaxRetries)
	}
	switch c.Snapshot.Format {
	case "", "json", "yaml", "yml":
	default:
		return fmt.Errorf("snapshot.format must be json or yaml, got %q", c.Snapshot.Format)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("FLEETWATCH_SNAPSHOT_PATH"); v != "" {
		cfg.Snapshot.Path = v
	}
	if v := os.Getenv("FLEETWATCH_REDIS_ADDR"); v != "" {
		cfg.Alerting.RedisAddr = v
		cfg.Alerting.Enabled = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FLEETWATCH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Dashboard.Port = port
		}
	}
}

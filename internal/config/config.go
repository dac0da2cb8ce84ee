// Package config loads the server configuration from YAML with environment
// overrides for deploy-time values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/plugng/plug-backend/pkg/logger"
)

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig         `yaml:"server"`
	Database DatabaseConfig       `yaml:"database"`
	Redis    RedisConfig          `yaml:"redis"`
	Logging  logger.LoggingConfig `yaml:"logging"`
	Policy   PolicyConfig         `yaml:"policy"`
	Jobs     JobsConfig           `yaml:"jobs"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimitPerSec int           `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
}

type DatabaseConfig struct {
	// DSN is a lib/pq connection string. Empty selects the in-memory store.
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type RedisConfig struct {
	// Addr enables the shared notification suppression store. Empty keeps
	// the in-process one.
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PolicyConfig tunes the business rules that have product-level knobs.
type PolicyConfig struct {
	AutoPendingApplicants           int           `yaml:"auto_pending_applicants"`
	ProfessionalMonthlyApplications int           `yaml:"professional_monthly_applications"`
	DuplicateTitleWindow            time.Duration `yaml:"duplicate_title_window"`
	RequireReviewBeforeApply        bool          `yaml:"require_review_before_apply"`
}

type JobsConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Spec             string        `yaml:"spec"`
	ExpiryWindow     time.Duration `yaml:"expiry_window"`
	PlanExpiryWindow time.Duration `yaml:"plan_expiry_window"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimitPerSec: 50,
			RateLimitBurst:  100,
		},
		Logging: logger.LoggingConfig{Level: "info", Format: "json"},
		Policy: PolicyConfig{
			AutoPendingApplicants:           40,
			ProfessionalMonthlyApplications: 10,
			DuplicateTitleWindow:            10 * time.Minute,
		},
		Jobs: JobsConfig{
			Enabled:          true,
			Spec:             "0 0 * * *",
			ExpiryWindow:     48 * time.Hour,
			PlanExpiryWindow: 72 * time.Hour,
		},
	}
}

// Load reads CONFIG_PATH (default config.yaml) and applies environment
// overrides. A missing file yields the defaults.
func Load() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	return LoadFromPath(path)
}

// LoadFromPath loads the configuration from an explicit path.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(cfg)

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

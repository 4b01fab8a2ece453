// Package config loads service configuration from a YAML file with
// environment variable overrides. A .env file, when present, is folded into
// the environment first.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/novadex/wallet-layer/pkg/logger"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig         `yaml:"server"`
	Database  DatabaseConfig       `yaml:"database"`
	Authority AuthorityConfig      `yaml:"authority"`
	RateLimit RateLimitConfig      `yaml:"rateLimit"`
	Dedup     DedupConfig          `yaml:"dedup"`
	Audit     AuditConfig          `yaml:"audit"`
	Logging   logger.LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
}

type DatabaseConfig struct {
	// DSN is a lib/pq connection string. Empty selects the in-memory store.
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"maxOpenConns"`
	MaxIdleConns int    `yaml:"maxIdleConns"`
}

type AuthorityConfig struct {
	BaseURL       string        `yaml:"baseUrl"`
	SubmitTimeout time.Duration `yaml:"submitTimeout"`
	StatusTimeout time.Duration `yaml:"statusTimeout"`
	// RefreshInterval drives the background status reconciler. Zero uses the
	// default, a negative value disables it.
	RefreshInterval time.Duration `yaml:"refreshInterval"`
}

type RateLimitConfig struct {
	Enabled bool `yaml:"enabled"`
}

type DedupConfig struct {
	Window time.Duration `yaml:"window"`
}

type AuditConfig struct {
	// File receives the JSONL audit trail. Empty keeps audit in memory only.
	File string `yaml:"file"`
	// RingSize bounds the in-memory tail served over the admin surface.
	RingSize int `yaml:"ringSize"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Authority: AuthorityConfig{
			BaseURL:       "http://localhost:3001",
			SubmitTimeout: 10 * time.Second,
			StatusTimeout: 5 * time.Second,
		},
		RateLimit: RateLimitConfig{Enabled: true},
		Dedup:     DedupConfig{Window: 5 * time.Second},
		Audit:     AuditConfig{RingSize: 1000},
		Logging: logger.LoggingConfig{
			Level:   "info",
			Format:  "json",
			Service: "wallet-layer",
		},
	}
}

// Load reads path (when non-empty) over the defaults, then applies
// environment overrides. A .env file in the working directory is honored.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("WALLET_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("WALLET_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("WALLET_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("WALLET_AUTHORITY_URL"); v != "" {
		cfg.Authority.BaseURL = v
	}
	if v := os.Getenv("WALLET_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("WALLET_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("WALLET_AUDIT_FILE"); v != "" {
		cfg.Audit.File = v
	}
	if v := os.Getenv("WALLET_RATELIMIT_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.RateLimit.Enabled = b
		}
	}
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Authority.BaseURL == "" {
		return fmt.Errorf("authority base url is required")
	}
	if c.Dedup.Window < 0 {
		return fmt.Errorf("dedup window must not be negative")
	}
	if c.Audit.RingSize < 0 {
		return fmt.Errorf("audit ring size must not be negative")
	}
	return nil
}

// Addr is the server's listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

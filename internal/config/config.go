// Package config loads the server configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// environment variables. The result is validated before use.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	minProductionSecretLen = 32
)

// ErrMissingSecret is returned when production starts without JWT_SECRET.
var ErrMissingSecret = errors.New("JWT_SECRET must be set in production")

// Config holds the application configuration.
type Config struct {
	Env               string        `yaml:"env"`
	ServerPort        int           `yaml:"port"`
	DatabaseDriver    string        `yaml:"database_driver"`
	DatabaseURL       string        `yaml:"database_url"`
	JWTSecret         string        `yaml:"jwt_secret"`
	TokenTTL          time.Duration `yaml:"token_ttl"`
	BcryptCost        int           `yaml:"bcrypt_cost"`
	CORSOrigins       []string      `yaml:"cors_origins"`
	LogLevel          string        `yaml:"log_level"`
	LogFormat         string        `yaml:"log_format"` // "console" or "json"
	AuthRatePerMinute int           `yaml:"auth_rate_per_minute"`
	AuthBurst         int           `yaml:"auth_burst"`
	EventRetention    time.Duration `yaml:"event_retention"`
	PruneSchedule     string        `yaml:"prune_schedule"`
	// TrustProxy makes the server take the client address from
	// X-Forwarded-For / X-Real-IP. Enable it only behind a reverse proxy
	// that overwrites those headers.
	TrustProxy bool `yaml:"trust_proxy"`

	// EphemeralSecret is true when no secret was configured and a random
	// one was generated for this process. Never true in production.
	EphemeralSecret bool `yaml:"-"`
}

// Defaults returns a Config with every default filled in.
func Defaults() Config {
	return Config{
		Env:               EnvDevelopment,
		ServerPort:        5000,
		DatabaseDriver:    DriverSQLite,
		DatabaseURL:       "./goals.db",
		TokenTTL:          30 * 24 * time.Hour,
		BcryptCost:        bcrypt.DefaultCost,
		CORSOrigins:       []string{"http://localhost:3000"},
		LogLevel:          "info",
		LogFormat:         "console",
		AuthRatePerMinute: 10,
		AuthBurst:         5,
		EventRetention:    90 * 24 * time.Hour,
		PruneSchedule:     "@daily",
	}
}

// IsProduction reports whether the server runs with APP_ENV=production.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Load builds the configuration. configPath may be empty, in which case
// CONFIG_FILE is consulted; without either no file is read.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if configPath == "" {
		configPath = os.Getenv("CONFIG_FILE")
	}
	if configPath != "" {
		if err := loadYAMLFile(configPath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", configPath, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	if cfg.JWTSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return nil, err
		}
		cfg.JWTSecret = secret
		cfg.EphemeralSecret = true
	}
	return &cfg, nil
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	switch c.Env {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		return fmt.Errorf("unknown APP_ENV %q", c.Env)
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid port %d", c.ServerPort)
	}
	switch c.DatabaseDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unknown database driver %q", c.DatabaseDriver)
	}
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL must not be empty")
	}
	if c.IsProduction() {
		if c.JWTSecret == "" {
			return ErrMissingSecret
		}
		if len(c.JWTSecret) < minProductionSecretLen {
			return fmt.Errorf("JWT_SECRET must be at least %d bytes in production", minProductionSecretLen)
		}
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("invalid token ttl %s", c.TokenTTL)
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost %d out of range", c.BcryptCost)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log format %q", c.LogFormat)
	}
	if c.AuthRatePerMinute < 0 || c.AuthBurst < 0 {
		return errors.New("auth rate limits must not be negative")
	}
	if c.EventRetention <= 0 {
		return fmt.Errorf("invalid event retention %s", c.EventRetention)
	}
	if _, err := cron.ParseStandard(c.PruneSchedule); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", c.PruneSchedule, err)
	}
	return nil
}

func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnv(cfg *Config) error {
	cfg.Env = getEnv("APP_ENV", cfg.Env)
	cfg.DatabaseDriver = getEnv("DATABASE_DRIVER", cfg.DatabaseDriver)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.PruneSchedule = getEnv("PRUNE_SCHEDULE", cfg.PruneSchedule)

	if origins, ok := os.LookupEnv("CORS_ORIGINS"); ok {
		cfg.CORSOrigins = splitList(origins)
	}

	var err error
	if cfg.TrustProxy, err = envBool("TRUST_PROXY", cfg.TrustProxy); err != nil {
		return err
	}
	if cfg.ServerPort, err = envInt("PORT", cfg.ServerPort); err != nil {
		return err
	}
	if cfg.BcryptCost, err = envInt("BCRYPT_COST", cfg.BcryptCost); err != nil {
		return err
	}
	if cfg.AuthRatePerMinute, err = envInt("AUTH_RATE_PER_MINUTE", cfg.AuthRatePerMinute); err != nil {
		return err
	}
	if cfg.AuthBurst, err = envInt("AUTH_BURST", cfg.AuthBurst); err != nil {
		return err
	}
	if cfg.TokenTTL, err = envDuration("TOKEN_TTL", cfg.TokenTTL); err != nil {
		return err
	}
	if cfg.EventRetention, err = envDuration("EVENT_RETENTION", cfg.EventRetention); err != nil {
		return err
	}
	return nil
}

// Helper to get an environment variable with a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating development secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback)
//
// Matching tolerances live here rather than in process-wide state so the
// same engine can run with different thresholds in tests and in production.
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	dbPath := cfg.Storage.DatabasePath
//	engine := matcher.NewScorer(cfg.Matching.ToMatcherConfig())
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/ledgerline/ledgerline-backend/internal/domain/matcher"
	"github.com/ledgerline/ledgerline-backend/internal/domain/similarity"
)

// Config represents the entire application configuration.
type Config struct {
	Storage       StorageConfig       `yaml:"storage"`
	API           APIConfig           `yaml:"api"`
	Matching      MatchingConfig      `yaml:"matching"`
	Import        ImportConfig        `yaml:"import"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// StorageConfig holds database configuration.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// APIConfig holds HTTP server configuration.
type APIConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// MatchingConfig holds every tolerance of the matching engine.
type MatchingConfig struct {
	MaxEditDistance    int     `yaml:"max_edit_distance"`
	MinTokenOverlap    float64 `yaml:"min_token_overlap"`
	DescriptionWeight  float64 `yaml:"description_weight"`
	AmountWeight       float64 `yaml:"amount_weight"`
	DateWeight         float64 `yaml:"date_weight"`
	AmountTolerancePct float64 `yaml:"amount_tolerance_pct"`
	DateWindowDays     int     `yaml:"date_window_days"`
	AcceptThreshold    float64 `yaml:"accept_threshold"`
	RejectThreshold    float64 `yaml:"reject_threshold"`
	AmbiguityEpsilon   float64 `yaml:"ambiguity_epsilon"`
}

// ImportConfig holds batch import settings.
type ImportConfig struct {
	Workers int `yaml:"workers"`
}

// ObservabilityConfig holds observability settings.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ToMatcherConfig converts the YAML block into the engine's config value.
func (m MatchingConfig) ToMatcherConfig() matcher.Config {
	return matcher.Config{
		Similarity: similarity.Thresholds{
			MaxEditDistance: m.MaxEditDistance,
			MinTokenOverlap: m.MinTokenOverlap,
		},
		DescriptionWeight:  m.DescriptionWeight,
		AmountWeight:       m.AmountWeight,
		DateWeight:         m.DateWeight,
		AmountTolerancePct: m.AmountTolerancePct,
		DateWindowDays:     m.DateWindowDays,
		AcceptThreshold:    m.AcceptThreshold,
		RejectThreshold:    m.RejectThreshold,
		AmbiguityEpsilon:   m.AmbiguityEpsilon,
	}
}

// Load reads and parses the config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${LEDGERLINE_DB_PATH})
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() *Config {
	cfg := &Config{
		Storage: StorageConfig{
			DatabasePath: getEnv("LEDGERLINE_DB_PATH", "ledgerline.db"),
		},
		API: APIConfig{
			Port: getEnvInt("LEDGERLINE_PORT", 8080),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "text"),
			},
		},
	}
	cfg.applyDefaults()
	return cfg
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables.
func LoadOrEnv() *Config {
	return LoadOrEnvWithPath("config.yaml")
}

// LoadOrEnvWithPath tries to load from the specified path, falls back to
// environment variables.
func LoadOrEnvWithPath(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

// applyDefaults fills zero values with production defaults. The matching
// block mirrors matcher.DefaultConfig so a config file only needs the knobs
// it changes.
func (c *Config) applyDefaults() {
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "ledgerline.db"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if len(c.API.AllowedOrigins) == 0 {
		c.API.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	if c.Import.Workers <= 0 {
		c.Import.Workers = 4
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}

	def := matcher.DefaultConfig()
	m := &c.Matching
	if m.MaxEditDistance == 0 {
		m.MaxEditDistance = def.Similarity.MaxEditDistance
	}
	if m.MinTokenOverlap == 0 {
		m.MinTokenOverlap = def.Similarity.MinTokenOverlap
	}
	if m.DescriptionWeight == 0 {
		m.DescriptionWeight = def.DescriptionWeight
	}
	if m.AmountWeight == 0 {
		m.AmountWeight = def.AmountWeight
	}
	if m.DateWeight == 0 {
		m.DateWeight = def.DateWeight
	}
	if m.AmountTolerancePct == 0 {
		m.AmountTolerancePct = def.AmountTolerancePct
	}
	if m.DateWindowDays == 0 {
		m.DateWindowDays = def.DateWindowDays
	}
	if m.AcceptThreshold == 0 {
		m.AcceptThreshold = def.AcceptThreshold
	}
	if m.RejectThreshold == 0 {
		m.RejectThreshold = def.RejectThreshold
	}
	if m.AmbiguityEpsilon == 0 {
		m.AmbiguityEpsilon = def.AmbiguityEpsilon
	}
}

// getEnv retrieves an environment variable with a fallback default.
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default.
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

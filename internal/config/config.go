// Package config handles loading of runtime settings and of the mapping
// tables that drive the schema transformer.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BartekS5/catalog-migrator/pkg/models"
)

// Config holds all configuration for the application. Values come from
// defaults, then the optional YAML file, then environment variables.
type Config struct {
	SourceURL            string        `yaml:"source_url"`
	PriceSecret          string        `yaml:"price_history_secret"`
	MongoConnString      string        `yaml:"mongo_connection_string"`
	MongoDatabase        string        `yaml:"mongo_database"`
	SQLConnString        string        `yaml:"sql_connection_string"`
	RedisURL             string        `yaml:"redis_url"`
	CheckpointPath       string        `yaml:"checkpoint_db"`
	MappingFile          string        `yaml:"mapping_file"`
	LogFile              string        `yaml:"log_file"`
	LogLevel             string        `yaml:"log_level"`
	DefaultGeo           string        `yaml:"default_geo"`
	DefaultCurrency      string        `yaml:"default_currency"`
	BatchSize            int           `yaml:"batch_size"`
	FetchTimeout         time.Duration `yaml:"fetch_timeout"`
	ImportTimeout        time.Duration `yaml:"import_timeout"`
	MediaTimeout         time.Duration `yaml:"media_timeout"`
	RetryDelay           time.Duration `yaml:"retry_delay"`
	RequestsPerSecond    float64       `yaml:"requests_per_second"`
	RebuildIdentityIndex bool          `yaml:"rebuild_identity_index"`
}

// ConfigurationError is fatal and reported before any fetch begins.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Field, e.Reason)
}

// Defaults returns the built-in settings.
func Defaults() *Config {
	return &Config{
		MongoDatabase:     "catalog",
		CheckpointPath:    ".migrator/checkpoints.db",
		LogFile:           "migration.log",
		LogLevel:          "info",
		DefaultGeo:        "US",
		DefaultCurrency:   "USD",
		BatchSize:         50,
		FetchTimeout:      30 * time.Second,
		ImportTimeout:     120 * time.Second,
		MediaTimeout:      30 * time.Second,
		RetryDelay:        3 * time.Second,
		RequestsPerSecond: 2,
	}
}

// LoadConfig loads application settings (the .env file is loaded in main).
func LoadConfig() (*Config, error) {
	cfg := Defaults()
	if err := loadYAMLConfig(cfg, getEnv("MIGRATOR_CONFIG", "")); err != nil {
		return nil, err
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidateSource checks the settings needed to talk to the legacy API.
func (c *Config) ValidateSource(job models.Job) error {
	if strings.TrimSpace(c.SourceURL) == "" {
		return &ConfigurationError{Field: "SOURCE_URL", Reason: "is not set"}
	}
	if !strings.HasPrefix(c.SourceURL, "http://") && !strings.HasPrefix(c.SourceURL, "https://") {
		return &ConfigurationError{Field: "SOURCE_URL", Reason: "must be an http(s) URL"}
	}
	if job == models.JobPriceHistory && c.PriceSecret == "" {
		return &ConfigurationError{Field: "PRICE_HISTORY_SECRET", Reason: "is not set"}
	}
	return nil
}

// Validate checks that everything the given job needs is present.
func (c *Config) Validate(job models.Job, dryRun bool) error {
	if err := c.ValidateSource(job); err != nil {
		return err
	}
	if c.BatchSize < 1 {
		return &ConfigurationError{Field: "BATCH_SIZE", Reason: "must be at least 1"}
	}
	if c.MongoConnString == "" {
		return &ConfigurationError{Field: "MONGO_CONNECTION_STRING", Reason: "is not set"}
	}

	if job == models.JobPriceHistory && c.SQLConnString == "" && !dryRun {
		return &ConfigurationError{Field: "SQL_CONNECTION_STRING", Reason: "is not set"}
	}
	return nil
}

// TrimmedSourceURL returns the source without a trailing slash.
func (c *Config) TrimmedSourceURL() string {
	return strings.TrimRight(c.SourceURL, "/")
}

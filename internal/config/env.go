package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnv overrides cfg with any environment variables that are set.
func applyEnv(cfg *Config) error {
	setString(&cfg.SourceURL, "SOURCE_URL")
	cfg.PriceSecret = getEnvOrFile("PRICE_HISTORY_SECRET", "PRICE_HISTORY_SECRET_FILE", cfg.PriceSecret)
	setString(&cfg.MongoConnString, "MONGO_CONNECTION_STRING")
	setString(&cfg.MongoDatabase, "MONGO_DATABASE")
	setString(&cfg.SQLConnString, "SQL_CONNECTION_STRING")
	setString(&cfg.RedisURL, "REDIS_URL")
	setString(&cfg.CheckpointPath, "CHECKPOINT_DB")
	setString(&cfg.MappingFile, "MAPPING_FILE")
	setString(&cfg.LogFile, "LOG_FILE")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.DefaultGeo, "DEFAULT_GEO")
	setString(&cfg.DefaultCurrency, "DEFAULT_CURRENCY")

	if v := os.Getenv("BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &ConfigurationError{Field: "BATCH_SIZE", Reason: fmt.Sprintf("is not a number: %q", v)}
		}
		cfg.BatchSize = n
	}
	if v := os.Getenv("REQUESTS_PER_SECOND"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return &ConfigurationError{Field: "REQUESTS_PER_SECOND", Reason: fmt.Sprintf("is not a number: %q", v)}
		}
		cfg.RequestsPerSecond = f
	}
	if v := os.Getenv("REBUILD_IDENTITY_INDEX"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return &ConfigurationError{Field: "REBUILD_IDENTITY_INDEX", Reason: fmt.Sprintf("is not a boolean: %q", v)}
		}
		cfg.RebuildIdentityIndex = b
	}

	durations := map[string]*time.Duration{
		"FETCH_TIMEOUT":  &cfg.FetchTimeout,
		"IMPORT_TIMEOUT": &cfg.ImportTimeout,
		"MEDIA_TIMEOUT":  &cfg.MediaTimeout,
		"RETRY_DELAY":    &cfg.RetryDelay,
	}
	for key, dst := range durations {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return &ConfigurationError{Field: key, Reason: fmt.Sprintf("is not a duration: %q", v)}
		}
		*dst = d
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getEnvOrFile reads key, or the contents of the file named by fileKey.
func getEnvOrFile(key, fileKey, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	if path := os.Getenv(fileKey); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			return strings.TrimSpace(string(data))
		}
	}
	return def
}

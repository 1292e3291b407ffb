package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BartekS5/catalog-migrator/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "migrator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
source_url: https://yaml.example.com/wp-json/legacy/v1
batch_size: 25
retry_delay: 5s
default_geo: GB
`), 0644))

	t.Setenv("MIGRATOR_CONFIG", path)
	t.Setenv("SOURCE_URL", "https://env.example.com/wp-json/legacy/v1")
	t.Setenv("FETCH_TIMEOUT", "10s")
	t.Setenv("REBUILD_IDENTITY_INDEX", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com/wp-json/legacy/v1", cfg.SourceURL)
	assert.Equal(t, 25, cfg.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.RetryDelay)
	assert.Equal(t, 10*time.Second, cfg.FetchTimeout)
	assert.Equal(t, "GB", cfg.DefaultGeo)
	assert.Equal(t, "USD", cfg.DefaultCurrency)
	assert.True(t, cfg.RebuildIdentityIndex)
}

func TestLoadConfigRejectsBadNumbers(t *testing.T) {
	t.Setenv("MIGRATOR_CONFIG", "")
	t.Setenv("BATCH_SIZE", "lots")

	_, err := LoadConfig()
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "BATCH_SIZE", cfgErr.Field)
}

func TestPriceSecretFromFile(t *testing.T) {
	dir := t.TempDir()
	secretPath := filepath.Join(dir, "secret")
	require.NoError(t, os.WriteFile(secretPath, []byte("s3cret\n"), 0600))

	t.Setenv("MIGRATOR_CONFIG", "")
	t.Setenv("PRICE_HISTORY_SECRET", "")
	t.Setenv("PRICE_HISTORY_SECRET_FILE", secretPath)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.PriceSecret)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Defaults()
		cfg.SourceURL = "https://old.example.com/wp-json/legacy/v1/"
		cfg.MongoConnString = "mongodb://localhost:27017"
		cfg.SQLConnString = "sqlserver://sa:pw@localhost"
		cfg.PriceSecret = "secret"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		job    models.Job
		dryRun bool
		field  string
	}{
		{name: "valid products", job: models.JobProducts},
		{name: "valid prices", job: models.JobPriceHistory},
		{name: "missing source", mutate: func(c *Config) { c.SourceURL = "" }, job: models.JobProducts, field: "SOURCE_URL"},
		{name: "source not http", mutate: func(c *Config) { c.SourceURL = "ftp://x" }, job: models.JobProducts, field: "SOURCE_URL"},
		{name: "missing secret", mutate: func(c *Config) { c.PriceSecret = "" }, job: models.JobPriceHistory, field: "PRICE_HISTORY_SECRET"},
		{name: "secret not needed for products", mutate: func(c *Config) { c.PriceSecret = "" }, job: models.JobProducts},
		{name: "missing sql store", mutate: func(c *Config) { c.SQLConnString = "" }, job: models.JobPriceHistory, field: "SQL_CONNECTION_STRING"},
		{name: "sql store optional in dry run", mutate: func(c *Config) { c.SQLConnString = "" }, job: models.JobPriceHistory, dryRun: true},
		{name: "bad batch size", mutate: func(c *Config) { c.BatchSize = 0 }, job: models.JobProducts, field: "BATCH_SIZE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := cfg.Validate(tt.job, tt.dryRun)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}

	assert.Equal(t, "https://old.example.com/wp-json/legacy/v1", valid().TrimmedSourceURL())
}

func TestLoadMappingBuiltIn(t *testing.T) {
	m, err := LoadMapping("")
	require.NoError(t, err)

	assert.Equal(t, "product_type", m.TypeField)
	assert.Contains(t, m.DirectCopy, "brand")
	assert.Equal(t, "performance_top_speed_tested", m.Rename["performance:top_speed_tested"])
	assert.Equal(t, "front_spring", m.ValueMaps["suspension"]["Front Spring"])

	var order []models.ProductType
	for _, tc := range m.Types {
		order = append(order, tc.Type)
	}
	assert.Equal(t, []models.ProductType{
		models.TypeEUC, models.TypeEskateboard, models.TypeHoverboard, models.TypeEbike, models.TypeScooter,
	}, order)

	scooter, ok := m.ForType(models.TypeScooter)
	require.True(t, ok)
	assert.Contains(t, scooter.Keywords, "apollo")
	euc, _ := m.ForType(models.TypeEUC)
	assert.Equal(t, models.StrategyCopy, euc.Strategy)
}

func TestLoadMappingFile(t *testing.T) {
	_, err := LoadMapping(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read mapping file")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("types: [{type: x, strategy: weird}]"), 0644))
	_, err = LoadMapping(path)
	assert.ErrorContains(t, err, "unknown strategy")
}

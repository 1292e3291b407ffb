package cli

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/BartekS5/catalog-migrator/internal/config"
	"github.com/BartekS5/catalog-migrator/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MIGRATOR_CONFIG", "SOURCE_URL", "PRICE_HISTORY_SECRET", "PRICE_HISTORY_SECRET_FILE",
		"MONGO_CONNECTION_STRING", "SQL_CONNECTION_STRING", "REDIS_URL", "BATCH_SIZE",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("LOG_FILE", filepath.Join(t.TempDir(), "migration.log"))
	t.Setenv("CHECKPOINT_DB", filepath.Join(t.TempDir(), "checkpoints.db"))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRootRegistersCommands(t *testing.T) {
	root := NewRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"migrate-products", "migrate-single", "migrate-price-history", "test-connection"})

	for _, flag := range []string{"mapping", "report", "metrics-addr"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}

	prices, _, err := root.Find([]string{"migrate-price-history"})
	require.NoError(t, err)
	for _, flag := range []string{"source", "batch-size", "start-page", "end-page", "resume", "dry-run", "geo", "currency"} {
		assert.NotNil(t, prices.Flags().Lookup(flag), flag)
	}
}

func TestMissingSourceFailsBeforeConnecting(t *testing.T) {
	isolateEnv(t)

	_, err := execute(t, "migrate-products")

	var cfgErr *config.ConfigurationError
	require.True(t, errors.As(err, &cfgErr), "got %v", err)
	assert.Equal(t, "SOURCE_URL", cfgErr.Field)
}

func TestMigrateSingleNeedsIdentifier(t *testing.T) {
	isolateEnv(t)

	_, err := execute(t, "migrate-single")
	assert.Error(t, err)
}

func TestTestConnectionReportsCount(t *testing.T) {
	isolateEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/products" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("X-WP-Total", "42")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	out, err := execute(t, "test-connection", "--source", srv.URL)

	require.NoError(t, err)
	assert.Contains(t, out, "products: 42 records available")
}

func TestTestConnectionPriceHistoryNeedsSecret(t *testing.T) {
	isolateEnv(t)

	_, err := execute(t, "test-connection", "price-history", "--source", "https://legacy.test")

	var cfgErr *config.ConfigurationError
	require.True(t, errors.As(err, &cfgErr), "got %v", err)
	assert.Equal(t, "PRICE_HISTORY_SECRET", cfgErr.Field)
}

func TestTestConnectionRejectsUnknownJob(t *testing.T) {
	isolateEnv(t)

	_, err := execute(t, "test-connection", "orders")
	assert.Error(t, err)
}

func TestFlagsOverrideConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.SourceURL = "https://env.test"

	opts := &MigrateOptions{Source: "https://flag.test", Secret: "s3cret", BatchSize: 10, Geo: "GB", Currency: "GBP"}
	opts.apply(cfg, &GlobalOptions{MappingFile: "custom.yaml"})

	assert.Equal(t, "https://flag.test", cfg.SourceURL)
	assert.Equal(t, "s3cret", cfg.PriceSecret)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, "GB", cfg.DefaultGeo)
	assert.Equal(t, "GBP", cfg.DefaultCurrency)
	assert.Equal(t, "custom.yaml", cfg.MappingFile)

	untouched := config.Defaults()
	(&MigrateOptions{}).apply(untouched, &GlobalOptions{})
	assert.Equal(t, config.Defaults(), untouched)
}

func TestPrintSummary(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	var buf bytes.Buffer

	printSummary(&buf, &models.MigrationSummary{
		Job:            models.JobProducts,
		TotalFetched:   6,
		Migrated:       4,
		Created:        3,
		Updated:        1,
		Errors:         1,
		ImagesFailed:   1,
		PagesProcessed: 2,
		TotalPages:     3,
		FailedPages:    []int{2},
		StartedAt:      start,
		FinishedAt:     start.Add(1500 * time.Millisecond),
	})

	out := buf.String()
	assert.Contains(t, out, "products summary")
	assert.Regexp(t, `Migrated\s+4`, out)
	assert.Regexp(t, `Images\s+0 attached, 0 skipped, 1 failed`, out)
	assert.Regexp(t, `Pages\s+2 of 3`, out)
	assert.Regexp(t, `Failed pages\s+2`, out)
	assert.Regexp(t, `Duration\s+1.5s`, out)
	assert.NotContains(t, out, "Imported")
}

func TestWarningExitPointsAtLog(t *testing.T) {
	err := &WarningExit{Errors: 3, LogFile: "migration.log"}
	assert.Equal(t, "migration finished with 3 errors, see migration.log for details", err.Error())
}

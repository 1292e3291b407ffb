package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/BartekS5/catalog-migrator/internal/checkpoint"
	"github.com/BartekS5/catalog-migrator/internal/config"
	"github.com/BartekS5/catalog-migrator/internal/etl"
	"github.com/BartekS5/catalog-migrator/internal/observability"
	"github.com/BartekS5/catalog-migrator/internal/report"
	"github.com/BartekS5/catalog-migrator/internal/source"
	"github.com/BartekS5/catalog-migrator/pkg/database"
	"github.com/BartekS5/catalog-migrator/pkg/logger"
	"github.com/BartekS5/catalog-migrator/pkg/models"
	"github.com/spf13/cobra"
)

const defaultCloseTimeout = 5 * time.Second

// WarningExit is returned when a run finished but recorded errors. The
// process exits with a distinct status so schedulers can tell it apart from
// a run that could not start.
type WarningExit struct {
	Errors  int
	LogFile string
}

func (e *WarningExit) Error() string {
	if e.LogFile == "" {
		return fmt.Sprintf("migration finished with %d errors", e.Errors)
	}
	return fmt.Sprintf("migration finished with %d errors, see %s for details", e.Errors, e.LogFile)
}

func loadConfig(g *GlobalOptions, opts *MigrateOptions) (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	opts.apply(cfg, g)
	return cfg, nil
}

func newSourceClient(cfg *config.Config, job models.Job) *source.Client {
	opts := source.Options{
		BaseURL:           cfg.TrimmedSourceURL(),
		Timeout:           cfg.FetchTimeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}
	if job == models.JobPriceHistory {
		opts.Secret = cfg.PriceSecret
		opts.Timeout = cfg.ImportTimeout
	}
	return source.NewClient(opts)
}

func testConnection(cmd *cobra.Command, g *GlobalOptions, opts *MigrateOptions, job models.Job) (int, error) {
	cfg, err := loadConfig(g, opts)
	if err != nil {
		return 0, err
	}
	if err := cfg.ValidateSource(job); err != nil {
		return 0, err
	}
	if err := logger.InitLogger(cfg.LogFile, cfg.LogLevel); err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer logger.Close()

	return etl.CheckConnection(cmd.Context(), newSourceClient(cfg, job), job, logger.NewRunLog(nil))
}

// runtime holds everything one run is wired to.
type runtime struct {
	cfg     *config.Config
	log     *logger.RunLog
	orch    *etl.Orchestrator
	closers []func()
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func newRuntime(ctx context.Context, cfg *config.Config, g *GlobalOptions, job models.Job, dryRun bool) (*runtime, error) {
	rt := &runtime{cfg: cfg, log: logger.NewRunLog(nil)}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	mapping, err := config.LoadMapping(cfg.MappingFile)
	if err != nil {
		return nil, err
	}

	mongoClient, err := database.ConnectMongo(cfg.MongoConnString)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), defaultCloseTimeout)
		defer cancel()
		mongoClient.Disconnect(disconnectCtx)
	})

	content, err := etl.NewMongoStore(mongoClient, cfg.MongoDatabase)
	if err != nil {
		return nil, err
	}
	if !dryRun {
		if err := content.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("failed to create content store indexes: %w", err)
		}
	}
	stores := etl.Stores{Products: content, Taxonomy: content, Media: content}

	if job == models.JobPriceHistory && cfg.SQLConnString != "" {
		sqlDB, err := database.ConnectSQL(cfg.SQLConnString)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() { sqlDB.Close() })
		prices := etl.NewSQLPriceStore(sqlDB)
		if !dryRun {
			if err := prices.EnsureSchema(ctx); err != nil {
				return nil, err
			}
		}
		stores.Prices = prices
	}

	orch, err := etl.NewOrchestrator(newSourceClient(cfg, job), stores, mapping, rt.log)
	if err != nil {
		return nil, err
	}
	orch.SourceKey = cfg.TrimmedSourceURL()
	orch.RetryDelay = cfg.RetryDelay
	orch.RebuildIdentityIndex = cfg.RebuildIdentityIndex
	if orch.Sideloader != nil {
		orch.Sideloader.Timeout = cfg.MediaTimeout
	}

	if !dryRun {
		if cfg.RedisURL != "" {
			redisClient, err := database.ConnectRedis(cfg.RedisURL)
			if err != nil {
				return nil, err
			}
			rt.closers = append(rt.closers, func() { redisClient.Close() })
			orch.Locker = etl.NewRedisLocker(redisClient)
		} else {
			orch.Locker = etl.NewMongoLocker(mongoClient.Database(cfg.MongoDatabase))
		}
	}

	if cfg.CheckpointPath != "" {
		cp, err := checkpoint.Open(cfg.CheckpointPath)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() { cp.Close() })
		orch.Checkpoints = cp
	}

	if g.MetricsAddr != "" {
		orch.Metrics = observability.NewMetrics()
		metricsCtx, cancel := context.WithCancel(ctx)
		rt.closers = append(rt.closers, cancel)
		go func() {
			if err := orch.Metrics.Serve(metricsCtx, g.MetricsAddr); err != nil {
				logger.Warn("Metrics endpoint stopped: %v", err)
			}
		}()
	}

	rt.orch = orch
	ok = true
	return rt, nil
}

func runMigration(cmd *cobra.Command, g *GlobalOptions, opts *MigrateOptions, job models.Job) error {
	cfg, err := loadConfig(g, opts)
	if err != nil {
		return err
	}
	if err := cfg.Validate(job, opts.DryRun); err != nil {
		return err
	}
	if err := logger.InitLogger(cfg.LogFile, cfg.LogLevel); err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logger.Close()

	ctx := cmd.Context()
	rt, err := newRuntime(ctx, cfg, g, job, opts.DryRun)
	if err != nil {
		return err
	}
	defer rt.Close()

	summary, err := rt.orch.Run(ctx, job, etl.RunOptions{
		BatchSize:  cfg.BatchSize,
		StartPage:  opts.StartPage,
		EndPage:    opts.EndPage,
		Resume:     opts.Resume,
		DryRun:     opts.DryRun,
		Identifier: opts.Identifier,
		Defaults:   etl.PriceDefaults{Geo: cfg.DefaultGeo, Currency: cfg.DefaultCurrency},
	})
	if err != nil {
		return err
	}

	printSummary(cmd.OutOrStdout(), summary)

	if g.ReportFile != "" {
		if err := report.Save(g.ReportFile, summary, rt.log.Entries()); err != nil {
			logger.Warn("Could not write report: %v", err)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", g.ReportFile)
		}
	}

	if summary.Errors > 0 {
		return &WarningExit{Errors: summary.Errors, LogFile: cfg.LogFile}
	}
	return nil
}

// printSummary renders the counters that apply to the job as an aligned table.
func printSummary(w io.Writer, s *models.MigrationSummary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	title := string(s.Job)
	if s.DryRun {
		title += " (dry run)"
	}
	fmt.Fprintf(tw, "\n%s summary\t\n", title)
	fmt.Fprintf(tw, "Fetched\t%d\n", s.TotalFetched)

	if s.Job == models.JobPriceHistory {
		fmt.Fprintf(tw, "Imported\t%d\n", s.Imported)
	} else {
		fmt.Fprintf(tw, "Migrated\t%d\n", s.Migrated)
		fmt.Fprintf(tw, "Created\t%d\n", s.Created)
		fmt.Fprintf(tw, "Updated\t%d\n", s.Updated)
		fmt.Fprintf(tw, "Images\t%d attached, %d skipped, %d failed\n", s.ImagesAttached, s.ImagesSkipped, s.ImagesFailed)
	}
	fmt.Fprintf(tw, "Skipped\t%d\n", s.Skipped)
	fmt.Fprintf(tw, "Errors\t%d\n", s.Errors)
	fmt.Fprintf(tw, "Pages\t%d of %d\n", s.PagesProcessed, s.TotalPages)
	if len(s.FailedPages) > 0 {
		pages := make([]string, len(s.FailedPages))
		for i, p := range s.FailedPages {
			pages[i] = fmt.Sprint(p)
		}
		fmt.Fprintf(tw, "Failed pages\t%s\n", strings.Join(pages, ", "))
	}
	fmt.Fprintf(tw, "Duration\t%s\n", s.Duration().Round(time.Millisecond))
	tw.Flush()
}

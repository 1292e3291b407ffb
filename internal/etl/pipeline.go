package etl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BartekS5/catalog-migrator/internal/observability"
	"github.com/BartekS5/catalog-migrator/internal/source"
	"github.com/BartekS5/catalog-migrator/pkg/logger"
	"github.com/BartekS5/catalog-migrator/pkg/models"
	"github.com/google/uuid"
)

// RunOptions parameterise one migration run.
type RunOptions struct {
	BatchSize  int
	StartPage  int
	EndPage    int
	Resume     bool
	DryRun     bool
	Defaults   PriceDefaults
	Identifier string
}

// Stores are the write targets of a migration. Media and Taxonomy are
// optional; Prices may be nil for dry runs.
type Stores struct {
	Products ProductStore
	Taxonomy TaxonomyStore
	Media    MediaStore
	Prices   PriceHistoryStore
}

// Orchestrator drives paged migrations from the legacy API into the local
// stores. Pages are processed strictly one after another.
type Orchestrator struct {
	Source      Source
	Stores      Stores
	Transformer *Transformer
	Classifier  *Classifier
	Sideloader  *MediaSideloader

	Locker      Locker
	Checkpoints CheckpointStore
	Metrics     *observability.Metrics

	// SourceKey identifies the legacy source in checkpoints.
	SourceKey            string
	RetryDelay           time.Duration
	LockTTL              time.Duration
	RebuildIdentityIndex bool

	log   logger.Logger
	sleep func(context.Context, time.Duration) error
	now   func() time.Time
}

func NewOrchestrator(src Source, stores Stores, mapping *models.MappingConfig, log logger.Logger) (*Orchestrator, error) {
	if stores.Products == nil {
		return nil, errors.New("a product store is required")
	}
	transformer, err := NewTransformer(mapping, log)
	if err != nil {
		return nil, fmt.Errorf("invalid mapping tables: %w", err)
	}

	o := &Orchestrator{
		Source:      src,
		Stores:      stores,
		Transformer: transformer,
		Classifier:  NewClassifier(mapping),
		RetryDelay:  3 * time.Second,
		LockTTL:     12 * time.Hour,
		log:         log,
		sleep:       sleepContext,
		now:         time.Now,
	}
	if stores.Media != nil {
		o.Sideloader = NewMediaSideloader(src, stores.Media, 0, log)
	}
	return o, nil
}

// TestConnection checks that the source is reachable and returns the number
// of records it reports for job. Nothing is written.
func (o *Orchestrator) TestConnection(ctx context.Context, job models.Job) (int, error) {
	return CheckConnection(ctx, o.Source, job, o.log)
}

// CheckConnection is TestConnection without an orchestrator, for callers
// that have no stores configured.
func CheckConnection(ctx context.Context, src Source, job models.Job, log logger.Logger) (int, error) {
	if job == models.JobPriceHistory {
		stats, err := src.PriceHistoryCount(ctx)
		if err != nil {
			return 0, err
		}
		log.Info("Connection OK: %d price records for %d products (%s to %s)",
			int64(stats.TotalRecords), int64(stats.UniqueProducts), stats.OldestDate, stats.NewestDate)
		return int(stats.TotalRecords), nil
	}

	page, err := src.Products(ctx, 1, 1)
	if err != nil {
		return 0, err
	}
	log.Info("Connection OK: %d products", page.TotalCount)
	return page.TotalCount, nil
}

// Run executes one migration job and returns its summary. Record and page
// failures only show up in the summary and the log; the returned error is
// reserved for runs that cannot start.
func (o *Orchestrator) Run(ctx context.Context, job models.Job, opts RunOptions) (*models.MigrationSummary, error) {
	if opts.BatchSize < 1 {
		opts.BatchSize = 50
	}
	if opts.StartPage < 1 {
		opts.StartPage = 1
	}

	switch job {
	case models.JobProducts:
	case models.JobSingle:
		if strings.TrimSpace(opts.Identifier) == "" {
			return nil, errors.New("single-product migration needs an identifier")
		}
	case models.JobPriceHistory:
		if o.Stores.Prices == nil && !opts.DryRun {
			return nil, errors.New("price history store is not configured")
		}
	default:
		return nil, fmt.Errorf("unknown job %q", job)
	}

	if !opts.DryRun && o.Locker != nil {
		release, err := o.Locker.Acquire(ctx, lockName(job), o.LockTTL)
		if err != nil {
			if errors.Is(err, ErrRunLocked) {
				return nil, fmt.Errorf("%s: %w", job, ErrRunLocked)
			}
			return nil, fmt.Errorf("failed to acquire run lock: %w", err)
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := release(releaseCtx); err != nil {
				o.log.Warning("Could not release run lock: %v", err)
			}
		}()
	}

	summary := &models.MigrationSummary{
		RunID:     uuid.NewString(),
		Job:       job,
		DryRun:    opts.DryRun,
		StartPage: opts.StartPage,
		StartedAt: o.now(),
	}
	if opts.DryRun {
		o.log.DryRun("Dry run: nothing will be written")
	}

	switch job {
	case models.JobProducts:
		o.MigrateProducts(ctx, opts, summary)
	case models.JobSingle:
		o.MigrateSingle(ctx, opts, summary)
	case models.JobPriceHistory:
		o.MigratePriceHistory(ctx, opts, summary)
	}

	summary.FinishedAt = o.now()
	o.logSummary(summary)
	return summary, nil
}

// MigrateProducts migrates every product page into summary.
func (o *Orchestrator) MigrateProducts(ctx context.Context, opts RunOptions, summary *models.MigrationSummary) {
	runPages(ctx, o, opts, summary, pageRun[models.RemoteProductRecord]{
		job: models.JobProducts,
		fetch: func(ctx context.Context, page int) (*source.Page[models.RemoteProductRecord], error) {
			return o.Source.Products(ctx, page, opts.BatchSize)
		},
		handle: func(ctx context.Context, rec *models.RemoteProductRecord) {
			o.migrateProduct(ctx, rec, opts.DryRun, summary)
		},
	})
}

// MigrateSingle migrates one product by id or slug through the same path a
// bulk run uses, as a page of one.
func (o *Orchestrator) MigrateSingle(ctx context.Context, opts RunOptions, summary *models.MigrationSummary) {
	identifier := strings.TrimSpace(opts.Identifier)
	o.log.Info("Migrating single product '%s'", identifier)

	page, err := fetchWithRetry(ctx, o, models.JobSingle, 1, func(ctx context.Context, _ int) (*source.Page[models.RemoteProductRecord], error) {
		rec, err := o.Source.Product(ctx, identifier)
		if err != nil {
			return nil, err
		}
		return &source.Page[models.RemoteProductRecord]{
			Number:     1,
			Records:    []models.RemoteProductRecord{*rec},
			TotalCount: 1,
			TotalPages: 1,
		}, nil
	})
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			o.log.Error("Product '%s' was not found on the source", identifier)
		} else {
			o.log.Error("Fetching product '%s' failed: %v", identifier, err)
		}
		summary.Errors++
		o.Metrics.Record(string(models.JobSingle), "error")
		return
	}

	summary.TotalPages = 1
	summary.TotalFetched += len(page.Records)
	for i := range page.Records {
		o.migrateProduct(ctx, &page.Records[i], opts.DryRun, summary)
	}
	summary.PagesProcessed++
}

// MigratePriceHistory imports every price-history page into summary.
func (o *Orchestrator) MigratePriceHistory(ctx context.Context, opts RunOptions, summary *models.MigrationSummary) {
	resolver := NewIdentityResolver(o.Stores.Products, o.log)
	if err := resolver.Build(ctx); err != nil {
		o.log.Error("Could not build the product identity index: %v", err)
		summary.Errors++
		return
	}
	importer := NewPriceImporter(o.Stores.Prices, resolver, opts.DryRun, o.log)
	job := string(models.JobPriceHistory)
	first := true

	runPages(ctx, o, opts, summary, pageRun[models.RemotePriceRecord]{
		job: models.JobPriceHistory,
		fetch: func(ctx context.Context, page int) (*source.Page[models.RemotePriceRecord], error) {
			return o.Source.PriceHistory(ctx, page, opts.BatchSize)
		},
		beforePage: func(ctx context.Context, page int) {
			if o.RebuildIdentityIndex && !first {
				if err := resolver.Rebuild(ctx); err != nil {
					o.log.Warning("Identity index refresh before page %d failed, keeping the previous index: %v", page, err)
				}
			}
			first = false
		},
		handle: func(ctx context.Context, rec *models.RemotePriceRecord) {
			outcome := importer.Import(ctx, rec, opts.Defaults)
			switch outcome {
			case PriceImported:
				summary.Imported++
			case PriceFailed:
				summary.Errors++
			default:
				summary.Skipped++
			}
			o.Metrics.Record(job, outcome.String())
		},
	})
}

func (o *Orchestrator) migrateProduct(ctx context.Context, rec *models.RemoteProductRecord, dryRun bool, summary *models.MigrationSummary) {
	job := string(summary.Job)
	slug := strings.TrimSpace(rec.Slug)
	if slug == "" {
		o.log.Warning("Skipping product %d: %v", rec.ID, &ValidationError{Field: "slug", Reason: "missing"})
		summary.Skipped++
		o.Metrics.Record(job, "skipped")
		return
	}

	pt, ok := o.Classifier.Classify(rec)
	if !ok {
		o.log.Warning("Skipping %s: could not determine product type", slug)
		summary.Skipped++
		o.Metrics.Record(job, "skipped")
		return
	}

	structured := o.Transformer.Transform(rec, pt)

	existing, err := o.Stores.Products.FindBySlug(ctx, slug)
	if err != nil {
		o.log.Error("Lookup of %s failed: %v", slug, err)
		summary.Errors++
		o.Metrics.Record(job, "error")
		return
	}
	if existing != nil && existing.RemoteID != 0 && existing.RemoteID != rec.ID {
		o.log.Warning("Slug %s belongs to remote product %d but is now claimed by remote product %d; updating the local entity",
			slug, existing.RemoteID, rec.ID)
	}

	entity := &models.LocalProductEntity{}
	if existing != nil {
		*entity = *existing
	}
	entity.RemoteID = rec.ID
	entity.Slug = slug
	entity.Title = rec.Title
	entity.Status = rec.Status
	entity.Type = pt
	entity.StructuredFields = structured

	if dryRun {
		action := "create"
		if existing != nil {
			action = "update"
			summary.Updated++
		} else {
			summary.Created++
		}
		o.log.DryRun("Would %s %s '%s' as %s", action, slug, rec.Title, pt)
	} else {
		created, err := o.Stores.Products.CreateOrUpdate(ctx, entity)
		if err != nil {
			o.log.Error("%v", &WriteError{Op: "save " + slug, Err: err})
			summary.Errors++
			o.Metrics.Record(job, "error")
			return
		}
		if created {
			summary.Created++
		} else {
			summary.Updated++
		}
		o.assignTaxonomies(ctx, entity, rec, pt)
	}

	switch outcome := o.ensureImage(ctx, entity, rec, dryRun); outcome {
	case ImageAttached:
		summary.ImagesAttached++
		o.Metrics.Image(outcome.String())
	case ImageFailed:
		summary.ImagesFailed++
		o.Metrics.Image(outcome.String())
	default:
		summary.ImagesSkipped++
	}

	summary.Migrated++
	o.Metrics.Record(job, "migrated")
	if !dryRun {
		o.log.Success("Migrated %s as %s (id %d)", slug, pt, entity.ID)
	}
}

func (o *Orchestrator) ensureImage(ctx context.Context, entity *models.LocalProductEntity, rec *models.RemoteProductRecord, dryRun bool) ImageOutcome {
	if o.Sideloader == nil {
		return ImageSkipped
	}
	return o.Sideloader.EnsureImage(ctx, entity, rec, dryRun)
}

func (o *Orchestrator) assignTaxonomies(ctx context.Context, entity *models.LocalProductEntity, rec *models.RemoteProductRecord, pt models.ProductType) {
	if o.Stores.Taxonomy == nil {
		return
	}
	typeTerm := string(pt)
	if tc, ok := o.Transformer.Config.ForType(pt); ok && tc.Label != "" {
		typeTerm = tc.Label
	}
	terms := [][2]string{
		{"product_type", typeTerm},
		{"brand", rec.FieldBag.String("brand", "")},
	}
	for _, term := range terms {
		if term[1] == "" {
			continue
		}
		if err := o.Stores.Taxonomy.Assign(ctx, entity.ID, term[0], term[1]); err != nil {
			o.log.Warning("Could not assign %s '%s' to %s: %v", term[0], term[1], entity.Slug, err)
		}
	}
}

func (o *Orchestrator) logSummary(s *models.MigrationSummary) {
	msg := fmt.Sprintf("%s finished in %s: fetched %d, migrated %d, imported %d, skipped %d, errors %d",
		s.Job, s.Duration().Round(time.Millisecond), s.TotalFetched, s.Migrated, s.Imported, s.Skipped, s.Errors)
	switch {
	case s.Errors > 0:
		o.log.Warning("%s. Failed pages: %v. See the log for details.", msg, s.FailedPages)
	case s.DryRun:
		o.log.DryRun("%s", msg)
	default:
		o.log.Success("%s", msg)
	}
}

type pageRun[T any] struct {
	job        models.Job
	fetch      func(ctx context.Context, page int) (*source.Page[T], error)
	handle     func(ctx context.Context, rec *T)
	beforePage func(ctx context.Context, page int)
}

// runPages walks pages from the start page to the last page reported by the
// source. A page that still fails after one retry is recorded and skipped.
// The run stops early only when the total is unknown because the first page
// could not be fetched.
func runPages[T any](ctx context.Context, o *Orchestrator, opts RunOptions, summary *models.MigrationSummary, r pageRun[T]) {
	job := string(r.job)
	retryPages, start, savedTotal := o.resumePoint(ctx, r.job, opts)
	summary.StartPage = start

	o.log.Info("Starting %s migration. Batch Size: %d, Start Page: %d, DryRun: %v", job, opts.BatchSize, start, opts.DryRun)

	started := o.now()
	processed := 0
	// A resumed run starts from the page count saved with the checkpoint so
	// it never walks past the end when every retried page fails again.
	total, known := savedTotal, savedTotal > 0
	summary.TotalPages = total

	process := func(page int) (*source.Page[T], bool) {
		if r.beforePage != nil {
			r.beforePage(ctx, page)
		}
		res, err := fetchWithRetry(ctx, o, r.job, page, r.fetch)
		if err != nil {
			o.log.Error("Page %d failed after retry: %v", page, err)
			summary.Errors++
			summary.FailedPages = append(summary.FailedPages, page)
			o.Metrics.Page(job, "failed")
			o.checkpoint(ctx, r.job, page, 0, false, opts.DryRun)
			return nil, false
		}

		summary.TotalFetched += len(res.Records)
		for i := range res.Records {
			if ctx.Err() != nil {
				o.log.Warning("Run interrupted during page %d", page)
				return nil, false
			}
			r.handle(ctx, &res.Records[i])
		}
		processed += len(res.Records)
		summary.PagesProcessed++
		if res.TotalPages > 0 {
			total, known = res.TotalPages, true
			summary.TotalPages = total
		}
		o.Metrics.Page(job, "ok")
		o.checkpoint(ctx, r.job, page, res.TotalPages, true, opts.DryRun)

		rate := 0.0
		if elapsed := o.now().Sub(started).Seconds(); elapsed > 0 {
			rate = float64(processed) / elapsed
		}
		shown := "?"
		if known {
			shown = fmt.Sprint(total)
		}
		o.log.Info("Page %d/%s done. Fetched: %d. Rate: %.2f records/sec", page, shown, summary.TotalFetched, rate)
		return res, true
	}

	for _, page := range retryPages {
		if ctx.Err() != nil {
			return
		}
		o.log.Info("Retrying previously failed page %d", page)
		process(page)
	}

	completed := false
	for page := start; ; page++ {
		if known && page > total {
			completed = true
			break
		}
		if opts.EndPage > 0 && page > opts.EndPage {
			break
		}
		if ctx.Err() != nil {
			o.log.Warning("Run interrupted before page %d", page)
			break
		}

		res, ok := process(page)
		if !ok {
			if ctx.Err() != nil {
				break
			}
			if !known {
				o.log.Error("Total page count is unknown after page %d failed; stopping", page)
				break
			}
			continue
		}

		if res.TotalPages == 0 && len(res.Records) < opts.BatchSize {
			// No totals reported: a short page is the last one.
			completed = true
			break
		}
	}

	if completed && !opts.DryRun && len(summary.FailedPages) == 0 && o.Checkpoints != nil {
		if err := o.Checkpoints.Clear(ctx, r.job, o.SourceKey); err != nil {
			o.log.Warning("Could not clear checkpoint: %v", err)
		}
	}
}

// fetchWithRetry retries a failed fetch once after RetryDelay. Not-found
// answers are final.
func fetchWithRetry[T any](ctx context.Context, o *Orchestrator, job models.Job, page int, fetch func(context.Context, int) (*source.Page[T], error)) (*source.Page[T], error) {
	begin := time.Now()
	res, err := fetch(ctx, page)
	o.Metrics.ObserveFetch(string(job), time.Since(begin))
	if err == nil || errors.Is(err, source.ErrNotFound) {
		return res, err
	}

	o.log.Warning("Fetching page %d failed, retrying in %s: %v", page, o.RetryDelay, err)
	o.Metrics.Page(string(job), "retried")
	if serr := o.sleep(ctx, o.RetryDelay); serr != nil {
		return nil, err
	}

	begin = time.Now()
	res, err = fetch(ctx, page)
	o.Metrics.ObserveFetch(string(job), time.Since(begin))
	return res, err
}

// resumePoint returns the failed pages to retry, the first page of the main
// loop and the saved page count (0 when unknown). Without --resume it is just
// the requested start page.
func (o *Orchestrator) resumePoint(ctx context.Context, job models.Job, opts RunOptions) ([]int, int, int) {
	start := opts.StartPage
	if !opts.Resume || o.Checkpoints == nil {
		return nil, start, 0
	}

	cp, err := o.Checkpoints.Resume(ctx, job, o.SourceKey)
	if err != nil {
		o.log.Warning("Could not read checkpoint, starting at page %d: %v", start, err)
		return nil, start, 0
	}
	if cp.NextPage > start {
		start = cp.NextPage
	}
	var retry []int
	for _, p := range cp.FailedPages {
		if p < start {
			retry = append(retry, p)
		}
	}
	o.log.Info("Resuming %s at page %d with %d failed pages to retry", job, start, len(retry))
	return retry, start, cp.TotalPages
}

func (o *Orchestrator) checkpoint(ctx context.Context, job models.Job, page, totalPages int, ok, dryRun bool) {
	if dryRun || o.Checkpoints == nil {
		return
	}
	var err error
	if ok {
		err = o.Checkpoints.MarkCompleted(ctx, job, o.SourceKey, page, totalPages)
	} else {
		err = o.Checkpoints.MarkFailed(ctx, job, o.SourceKey, page)
	}
	if err != nil {
		o.log.Warning("Could not save checkpoint for page %d: %v", page, err)
	}
}

// lockName groups jobs that write the same store under one lock.
func lockName(job models.Job) string {
	if job == models.JobSingle {
		job = models.JobProducts
	}
	return "catalog-migrator:" + string(job)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

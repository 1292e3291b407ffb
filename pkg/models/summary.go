package models

import "time"

// Job names a migration kind. Checkpoints and locks are keyed by it.
type Job string

const (
	JobProducts     Job = "products"
	JobSingle       Job = "single-product"
	JobPriceHistory Job = "price-history"
)

// Checkpoint is the saved progress of a job against one source. TotalPages
// is the last page count the source reported, 0 when it never reported one.
type Checkpoint struct {
	NextPage    int
	TotalPages  int
	FailedPages []int
}

// MigrationSummary accumulates counters over one run. It is never reset mid-run.
type MigrationSummary struct {
	RunID          string    `json:"run_id"`
	Job            Job       `json:"job"`
	TotalFetched   int       `json:"total_fetched"`
	Migrated       int       `json:"migrated"`
	Imported       int       `json:"imported"`
	Created        int       `json:"created"`
	Updated        int       `json:"updated"`
	Skipped        int       `json:"skipped"`
	Errors         int       `json:"errors"`
	ImagesAttached int       `json:"images_attached"`
	ImagesSkipped  int       `json:"images_skipped"`
	ImagesFailed   int       `json:"images_failed"`
	PagesProcessed int       `json:"pages_processed"`
	TotalPages     int       `json:"total_pages"`
	FailedPages    []int     `json:"failed_pages,omitempty"`
	StartPage      int       `json:"start_page"`
	DryRun         bool      `json:"dry_run"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Add folds the record-level counters of other into s. Used to combine a
// resumed run with the run it continues.
func (s *MigrationSummary) Add(other *MigrationSummary) {
	s.TotalFetched += other.TotalFetched
	s.Migrated += other.Migrated
	s.Imported += other.Imported
	s.Created += other.Created
	s.Updated += other.Updated
	s.Skipped += other.Skipped
	s.Errors += other.Errors
	s.ImagesAttached += other.ImagesAttached
	s.ImagesSkipped += other.ImagesSkipped
	s.ImagesFailed += other.ImagesFailed
	s.PagesProcessed += other.PagesProcessed
	s.FailedPages = append(s.FailedPages, other.FailedPages...)
}

// Duration of the run; zero while it is still in progress.
func (s *MigrationSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Level of a LogEntry.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelSuccess Level = "success"
	LevelDryRun  Level = "dry-run"
)

// LogEntry is one line of the append-only run log.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
}

// Package checkpoint persists page progress of migration runs in a local
// SQLite file so an interrupted run can be resumed.
package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/BartekS5/catalog-migrator/pkg/database"
	"github.com/BartekS5/catalog-migrator/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	job TEXT NOT NULL,
	source TEXT NOT NULL,
	last_page INTEGER NOT NULL,
	total_pages INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (job, source)
);
CREATE TABLE IF NOT EXISTS failed_pages (
	job TEXT NOT NULL,
	source TEXT NOT NULL,
	page INTEGER NOT NULL,
	failed_at DATETIME NOT NULL,
	PRIMARY KEY (job, source, page)
);`

// Store keeps, per job and source, the highest completed page and the pages
// that failed.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the checkpoint database at path.
func Open(path string) (*Store, error) {
	db, err := database.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create checkpoint tables: %w", err)
	}
	if err := addTotalPages(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

// addTotalPages upgrades checkpoint files written before the page count was
// stored.
func addTotalPages(db *sql.DB) error {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM pragma_table_info('checkpoints') WHERE name = 'total_pages'").Scan(&n)
	if err != nil {
		return fmt.Errorf("inspect checkpoint table: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := db.Exec("ALTER TABLE checkpoints ADD COLUMN total_pages INTEGER NOT NULL DEFAULT 0"); err != nil {
		return fmt.Errorf("upgrade checkpoint table: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Resume returns the page after the last completed one, the last known page
// count and the failed pages in ascending order. Without a checkpoint it
// returns page 1.
func (s *Store) Resume(ctx context.Context, job models.Job, source string) (models.Checkpoint, error) {
	var last, total int
	err := s.db.QueryRowContext(ctx,
		"SELECT last_page, total_pages FROM checkpoints WHERE job = ? AND source = ?", string(job), source,
	).Scan(&last, &total)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return models.Checkpoint{}, fmt.Errorf("read checkpoint: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT page FROM failed_pages WHERE job = ? AND source = ? ORDER BY page", string(job), source)
	if err != nil {
		return models.Checkpoint{}, fmt.Errorf("read failed pages: %w", err)
	}
	defer rows.Close()

	cp := models.Checkpoint{NextPage: last + 1, TotalPages: total}
	for rows.Next() {
		var p int
		if err := rows.Scan(&p); err != nil {
			return models.Checkpoint{}, err
		}
		cp.FailedPages = append(cp.FailedPages, p)
	}
	return cp, rows.Err()
}

// MarkCompleted records page as done. The stored last page never moves
// backwards, so retried pages do not rewind a checkpoint. A totalPages of 0
// keeps the previously saved page count.
func (s *Store) MarkCompleted(ctx context.Context, job models.Job, source string, page, totalPages int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO checkpoints (job, source, last_page, total_pages, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (job, source) DO UPDATE SET
			last_page = MAX(last_page, excluded.last_page),
			total_pages = CASE WHEN excluded.total_pages > 0 THEN excluded.total_pages ELSE total_pages END,
			updated_at = excluded.updated_at`,
		string(job), source, page, totalPages, s.now().UTC())
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM failed_pages WHERE job = ? AND source = ? AND page = ?", string(job), source, page); err != nil {
		return fmt.Errorf("clear failed page: %w", err)
	}
	return tx.Commit()
}

// MarkFailed records page for a retry on the next resumed run.
func (s *Store) MarkFailed(ctx context.Context, job models.Job, source string, page int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO failed_pages (job, source, page, failed_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (job, source, page) DO UPDATE SET failed_at = excluded.failed_at`,
		string(job), source, page, s.now().UTC())
	if err != nil {
		return fmt.Errorf("save failed page: %w", err)
	}
	return nil
}

// Clear forgets all progress of job against source.
func (s *Store) Clear(ctx context.Context, job models.Job, source string) error {
	for _, table := range []string{"checkpoints", "failed_pages"} {
		if _, err := s.db.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE job = ? AND source = ?", string(job), source); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

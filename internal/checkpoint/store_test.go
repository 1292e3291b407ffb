package checkpoint

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/BartekS5/catalog-migrator/pkg/database"
	"github.com/BartekS5/catalog-migrator/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const src = "https://legacy.test"

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "checkpoints.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestResumeWithoutCheckpoint(t *testing.T) {
	s := openTemp(t)

	cp, err := s.Resume(context.Background(), models.JobProducts, src)

	require.NoError(t, err)
	assert.Equal(t, 1, cp.NextPage)
	assert.Zero(t, cp.TotalPages)
	assert.Empty(t, cp.FailedPages)
}

func TestProgressIsTrackedPerJobAndSource(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	require.NoError(t, s.MarkCompleted(ctx, models.JobProducts, src, 1, 0))
	require.NoError(t, s.MarkFailed(ctx, models.JobProducts, src, 2))
	require.NoError(t, s.MarkCompleted(ctx, models.JobProducts, src, 3, 0))
	require.NoError(t, s.MarkFailed(ctx, models.JobProducts, src, 5))
	require.NoError(t, s.MarkCompleted(ctx, models.JobPriceHistory, src, 9, 0))

	cp, err := s.Resume(ctx, models.JobProducts, src)
	require.NoError(t, err)
	assert.Equal(t, 4, cp.NextPage)
	assert.Equal(t, []int{2, 5}, cp.FailedPages)

	cp, err = s.Resume(ctx, models.JobProducts, "https://other.test")
	require.NoError(t, err)
	assert.Equal(t, 1, cp.NextPage)

	cp, err = s.Resume(ctx, models.JobPriceHistory, src)
	require.NoError(t, err)
	assert.Equal(t, 10, cp.NextPage)
}

func TestRetriedPageDoesNotRewind(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	require.NoError(t, s.MarkFailed(ctx, models.JobProducts, src, 2))
	require.NoError(t, s.MarkCompleted(ctx, models.JobProducts, src, 6, 0))
	require.NoError(t, s.MarkCompleted(ctx, models.JobProducts, src, 2, 0))

	cp, err := s.Resume(ctx, models.JobProducts, src)
	require.NoError(t, err)
	assert.Equal(t, 7, cp.NextPage)
	assert.Empty(t, cp.FailedPages)
}

func TestClear(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	require.NoError(t, s.MarkCompleted(ctx, models.JobProducts, src, 4, 0))
	require.NoError(t, s.MarkFailed(ctx, models.JobProducts, src, 2))
	require.NoError(t, s.MarkCompleted(ctx, models.JobPriceHistory, src, 3, 0))
	require.NoError(t, s.Clear(ctx, models.JobProducts, src))

	cp, err := s.Resume(ctx, models.JobProducts, src)
	require.NoError(t, err)
	assert.Equal(t, 1, cp.NextPage)
	assert.Empty(t, cp.FailedPages)

	cp, err = s.Resume(ctx, models.JobPriceHistory, src)
	require.NoError(t, err)
	assert.Equal(t, 4, cp.NextPage)
}

func TestTotalPagesSurviveRetriesWithoutTotals(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	require.NoError(t, s.MarkCompleted(ctx, models.JobProducts, src, 1, 3))
	require.NoError(t, s.MarkFailed(ctx, models.JobProducts, src, 2))
	require.NoError(t, s.MarkCompleted(ctx, models.JobProducts, src, 3, 3))
	require.NoError(t, s.MarkCompleted(ctx, models.JobProducts, src, 2, 0))

	cp, err := s.Resume(ctx, models.JobProducts, src)
	require.NoError(t, err)
	assert.Equal(t, 4, cp.NextPage)
	assert.Equal(t, 3, cp.TotalPages)
	assert.Empty(t, cp.FailedPages)

	require.NoError(t, s.MarkCompleted(ctx, models.JobProducts, src, 4, 5))
	cp, err = s.Resume(ctx, models.JobProducts, src)
	require.NoError(t, err)
	assert.Equal(t, 5, cp.TotalPages)
}

func TestOpenUpgradesFileWithoutTotalPages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := database.OpenSQLite(path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE checkpoints (
		job TEXT NOT NULL,
		source TEXT NOT NULL,
		last_page INTEGER NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (job, source)
	)`)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO checkpoints VALUES ('products', ?, 2, CURRENT_TIMESTAMP)", src)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	cp, err := s.Resume(context.Background(), models.JobProducts, src)
	require.NoError(t, err)
	assert.Equal(t, 3, cp.NextPage)
	assert.Zero(t, cp.TotalPages)
}

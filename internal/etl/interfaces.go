package etl

import (
	"context"
	"time"

	"github.com/BartekS5/catalog-migrator/internal/source"
	"github.com/BartekS5/catalog-migrator/pkg/models"
)

// Source is the read side of a migration: the legacy API.
type Source interface {
	Products(ctx context.Context, page, perPage int) (*source.Page[models.RemoteProductRecord], error)
	Product(ctx context.Context, identifier string) (*models.RemoteProductRecord, error)
	MediaURL(ctx context.Context, id int64) (string, error)
	PriceHistory(ctx context.Context, page, perPage int) (*source.Page[models.RemotePriceRecord], error)
	PriceHistoryCount(ctx context.Context) (*models.PriceHistoryStats, error)
}

// ProductStore persists LocalProductEntity values. Lookups return nil, nil
// when nothing matches.
type ProductStore interface {
	FindBySlug(ctx context.Context, slug string) (*models.LocalProductEntity, error)
	FindByID(ctx context.Context, id int64) (*models.LocalProductEntity, error)
	// CreateOrUpdate upserts by slug and sets entity.ID. It reports whether
	// a new entity was created.
	CreateOrUpdate(ctx context.Context, entity *models.LocalProductEntity) (bool, error)
	ScanIdentities(ctx context.Context) ([]models.ProductIdentity, error)
	Count(ctx context.Context) (int64, error)
}

type TaxonomyStore interface {
	Assign(ctx context.Context, entityID int64, taxonomy, value string) error
}

// MediaStore downloads an image and attaches it to the entity without
// replacing an image that is already there.
type MediaStore interface {
	SideloadAndAttach(ctx context.Context, url string, entity *models.LocalProductEntity) (*models.MediaRef, error)
}

// PriceHistoryStore upserts rows keyed on (product, date, geo, currency).
type PriceHistoryStore interface {
	Upsert(ctx context.Context, row models.LocalPriceRow) (bool, error)
}

// Locker hands out advisory run locks. Acquire returns ErrRunLocked when
// another holder has the lock.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error)
}

// CheckpointStore remembers which pages of a job have been processed.
type CheckpointStore interface {
	Resume(ctx context.Context, job models.Job, source string) (models.Checkpoint, error)
	MarkCompleted(ctx context.Context, job models.Job, source string, page, totalPages int) error
	MarkFailed(ctx context.Context, job models.Job, source string, page int) error
	Clear(ctx context.Context, job models.Job, source string) error
}

package etl

import (
	"context"
	"strings"

	"github.com/BartekS5/catalog-migrator/pkg/logger"
	"github.com/BartekS5/catalog-migrator/pkg/models"
)

// ImportOutcome is the result of importing one price record.
type ImportOutcome int

const (
	PriceSkipped ImportOutcome = iota
	PriceImported
	PriceFailed
)

func (o ImportOutcome) String() string {
	switch o {
	case PriceImported:
		return "imported"
	case PriceFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// PriceDefaults are stamped onto legacy records that predate geo pricing.
type PriceDefaults struct {
	Geo      string
	Currency string
}

// PriceImporter validates and upserts price observations.
type PriceImporter struct {
	Store     PriceHistoryStore
	Resolver  *IdentityResolver
	Validator *Validator
	DryRun    bool
	log       logger.Logger
}

func NewPriceImporter(store PriceHistoryStore, resolver *IdentityResolver, dryRun bool, log logger.Logger) *PriceImporter {
	return &PriceImporter{
		Store:     store,
		Resolver:  resolver,
		Validator: NewValidator(),
		DryRun:    dryRun,
		log:       log,
	}
}

// Import validates rec and upserts it. Invalid or unresolvable records are
// skipped without touching the store. In dry-run mode a valid record is
// reported as imported but not written.
func (p *PriceImporter) Import(ctx context.Context, rec *models.RemotePriceRecord, defaults PriceDefaults) ImportOutcome {
	price, date, err := p.Validator.ValidatePrice(rec)
	if err != nil {
		p.log.Warning("Skipping price for product %d: %v", int64(rec.ProductID), err)
		return PriceSkipped
	}

	productID, ok := p.Resolver.Resolve(ctx, rec)
	if !ok {
		p.log.Info("Skipping price for product %d (%s): product not migrated yet", int64(rec.ProductID), rec.ProductSlug)
		return PriceSkipped
	}

	row := models.LocalPriceRow{
		ProductID: productID,
		Price:     price,
		Currency:  pick(rec.Currency, defaults.Currency),
		Domain:    strings.TrimSpace(rec.Domain),
		Geo:       pick(rec.Geo, defaults.Geo),
		Date:      date,
	}

	if p.DryRun {
		p.log.DryRun("Would import %s %s for product %d on %s (%s)",
			row.Price.StringFixed(2), row.Currency, row.ProductID, row.Date.Format("2006-01-02"), row.Geo)
		return PriceImported
	}

	if _, err := p.Store.Upsert(ctx, row); err != nil {
		werr := &WriteError{Op: "upsert price", Err: err}
		p.log.Error("Price for product %d on %s: %v", row.ProductID, row.Date.Format("2006-01-02"), werr)
		return PriceFailed
	}
	return PriceImported
}

func pick(value, def string) string {
	if v := strings.ToUpper(strings.TrimSpace(value)); v != "" {
		return v
	}
	return strings.ToUpper(strings.TrimSpace(def))
}

package etl

import (
	"strings"
	"time"

	"github.com/BartekS5/catalog-migrator/pkg/models"
	"github.com/BartekS5/catalog-migrator/pkg/utils"
	"github.com/shopspring/decimal"
)

// Validator checks price records before they reach the identity lookup.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// ValidatePrice checks that the record has a positive price and a parseable
// date. The date is returned truncated to the day.
func (v *Validator) ValidatePrice(rec *models.RemotePriceRecord) (decimal.Decimal, time.Time, error) {
	if !rec.Price.Valid {
		return decimal.Decimal{}, time.Time{}, &ValidationError{Field: "price", Reason: "missing"}
	}
	if !rec.Price.Decimal.IsPositive() {
		return decimal.Decimal{}, time.Time{}, &ValidationError{Field: "price", Reason: "must be greater than zero, got " + rec.Price.Decimal.String()}
	}

	raw := strings.TrimSpace(rec.Date)
	if raw == "" {
		return decimal.Decimal{}, time.Time{}, &ValidationError{Field: "date", Reason: "missing"}
	}
	date, err := utils.ConvertDateTime(raw)
	if err != nil {
		return decimal.Decimal{}, time.Time{}, &ValidationError{Field: "date", Reason: err.Error()}
	}

	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	return rec.Price.Decimal, day, nil
}

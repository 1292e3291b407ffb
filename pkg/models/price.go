package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FlexInt decodes integers the legacy API sometimes sends as strings.
// Anything unparseable decodes to zero.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = FlexInt(i)
		return nil
	}
	if fl, err := strconv.ParseFloat(s, 64); err == nil {
		*f = FlexInt(int64(fl))
		return nil
	}
	*f = 0
	return nil
}

// PriceValue is an optional price. Null, blank and malformed values decode
// as invalid instead of failing the whole page.
type PriceValue struct {
	decimal.NullDecimal
}

func (p *PriceValue) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	s = strings.ReplaceAll(s, ",", "")
	p.Valid = false
	if s == "" || s == "null" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	p.Decimal, p.Valid = d, true
	return nil
}

// NewPriceValue is a convenience constructor for callers building records by hand.
func NewPriceValue(s string) PriceValue {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return PriceValue{}
	}
	return PriceValue{decimal.NewNullDecimal(d)}
}

// RemotePriceRecord is one historical price observation from the legacy API.
type RemotePriceRecord struct {
	ProductID   FlexInt    `json:"product_id"`
	ProductSlug string     `json:"product_slug,omitempty"`
	Price       PriceValue `json:"price"`
	Currency    string     `json:"currency,omitempty"`
	Domain      string     `json:"domain"`
	Geo         string     `json:"geo,omitempty"`
	Date        string     `json:"date"`
}

// LocalPriceRow is a stored price observation.
type LocalPriceRow struct {
	ProductID int64
	Price     decimal.Decimal
	Currency  string
	Domain    string
	Geo       string
	Date      time.Time
}

// PriceKey is the uniqueness key of a LocalPriceRow.
type PriceKey struct {
	ProductID int64
	Date      string
	Geo       string
	Currency  string
}

func (r LocalPriceRow) Key() PriceKey {
	return PriceKey{
		ProductID: r.ProductID,
		Date:      r.Date.Format("2006-01-02"),
		Geo:       r.Geo,
		Currency:  r.Currency,
	}
}

// PriceHistoryStats is the response of the price-history count endpoint.
type PriceHistoryStats struct {
	TotalRecords   FlexInt `json:"total_records"`
	UniqueProducts FlexInt `json:"unique_products"`
	OldestDate     string  `json:"oldest_date"`
	NewestDate     string  `json:"newest_date"`
}

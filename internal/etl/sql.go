package etl

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/BartekS5/catalog-migrator/pkg/models"
)

// SQLPriceStore keeps price history in SQL Server.
type SQLPriceStore struct {
	DB *sql.DB
}

func NewSQLPriceStore(db *sql.DB) *SQLPriceStore {
	return &SQLPriceStore{DB: db}
}

const createPriceHistory = `
IF OBJECT_ID(N'dbo.price_history', N'U') IS NULL
BEGIN
	CREATE TABLE dbo.price_history (
		id BIGINT IDENTITY(1,1) PRIMARY KEY,
		product_id BIGINT NOT NULL,
		price DECIMAL(12, 2) NOT NULL,
		currency NVARCHAR(3) NOT NULL,
		domain NVARCHAR(255) NOT NULL,
		geo NVARCHAR(8) NOT NULL,
		date DATE NOT NULL,
		updated_at DATETIME2 NOT NULL DEFAULT SYSUTCDATETIME(),
		CONSTRAINT uq_price_history UNIQUE (product_id, date, geo, currency)
	)
END`

// EnsureSchema creates the price_history table if it does not exist.
func (s *SQLPriceStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, createPriceHistory); err != nil {
		return fmt.Errorf("failed to create price_history: %w", err)
	}
	return nil
}

const mergePriceRow = `
MERGE dbo.price_history WITH (HOLDLOCK) AS t
USING (SELECT @p1 AS product_id, CAST(@p2 AS DATE) AS date, @p3 AS geo, @p4 AS currency) AS s
	ON t.product_id = s.product_id AND t.date = s.date AND t.geo = s.geo AND t.currency = s.currency
WHEN MATCHED THEN
	UPDATE SET price = @p5, domain = @p6, updated_at = SYSUTCDATETIME()
WHEN NOT MATCHED THEN
	INSERT (product_id, price, currency, domain, geo, date)
	VALUES (s.product_id, @p5, s.currency, @p6, s.geo, s.date)
OUTPUT $action;`

// Upsert inserts row or updates price and domain of the row with the same
// (product_id, date, geo, currency). It reports whether a row was inserted.
func (s *SQLPriceStore) Upsert(ctx context.Context, row models.LocalPriceRow) (bool, error) {
	var action string
	err := s.DB.QueryRowContext(ctx, mergePriceRow,
		row.ProductID,
		row.Date.Format("2006-01-02"),
		row.Geo,
		row.Currency,
		row.Price.StringFixed(2),
		row.Domain,
	).Scan(&action)
	if err != nil {
		return false, err
	}
	return action == "INSERT", nil
}

// Count returns the number of stored rows.
func (s *SQLPriceStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.DB.QueryRowContext(ctx, "SELECT COUNT_BIG(*) FROM dbo.price_history").Scan(&n)
	return n, err
}

// PriceFor returns the stored price of one key, for checks after a run.
func (s *SQLPriceStore) PriceFor(ctx context.Context, key models.PriceKey) (string, error) {
	var price string
	err := s.DB.QueryRowContext(ctx,
		"SELECT CAST(price AS NVARCHAR(32)) FROM dbo.price_history WHERE product_id = @p1 AND date = @p2 AND geo = @p3 AND currency = @p4",
		key.ProductID, key.Date, key.Geo, key.Currency,
	).Scan(&price)
	return price, err
}

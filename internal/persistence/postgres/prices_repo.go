package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/defirisk/lendvar/internal/domain"
	"github.com/defirisk/lendvar/internal/persistence"
)

type pricesRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPricesRepo creates a PostgreSQL-backed PriceStore.
func NewPricesRepo(db *sqlx.DB, timeout time.Duration) persistence.PriceStore {
	return &pricesRepo{db: db, timeout: timeout}
}

func (r *pricesRepo) UpsertHistoricalPrices(ctx context.Context, prices []persistence.HistoricalPrice) error {
	if len(prices) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO historical_prices (symbol, date, close_price)
		VALUES ($1, $2, $3)
		ON CONFLICT (symbol, date)
		DO UPDATE SET close_price = EXCLUDED.close_price`)
	if err != nil {
		return fmt.Errorf("failed to prepare price upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range prices {
		if _, err := stmt.ExecContext(ctx, p.Symbol, p.Date, p.Close); err != nil {
			return fmt.Errorf("failed to upsert price %s@%s: %w",
				p.Symbol, p.Date.Format("2006-01-02"), err)
		}
	}
	return tx.Commit()
}

func (r *pricesRepo) ListSeries(ctx context.Context, windowDays int) ([]*domain.AssetSeries, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []persistence.HistoricalPrice
	query := `
		SELECT symbol, date, close_price
		FROM historical_prices
		WHERE date >= CURRENT_DATE - $1 * INTERVAL '1 day'
		ORDER BY symbol ASC, date ASC`
	if err := r.db.SelectContext(ctx, &rows, query, windowDays); err != nil {
		return nil, fmt.Errorf("failed to list historical prices: %w", err)
	}

	var series []*domain.AssetSeries
	var cur *domain.AssetSeries
	for _, row := range rows {
		if cur == nil || cur.Symbol != row.Symbol {
			cur = &domain.AssetSeries{Symbol: row.Symbol}
			series = append(series, cur)
		}
		cur.Points = append(cur.Points, domain.PricePoint{Date: row.Date, Close: row.Close})
	}
	for _, s := range series {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("stored series invalid: %w", err)
		}
	}
	return series, nil
}

func (r *pricesRepo) CurrentPrices(ctx context.Context) (map[string]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []persistence.AssetPrice
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT symbol, price_usd, last_updated FROM asset_prices`); err != nil {
		return nil, fmt.Errorf("failed to load current prices: %w", err)
	}
	prices := make(map[string]float64, len(rows))
	for _, row := range rows {
		prices[row.Symbol] = row.PriceUSD
	}
	return prices, nil
}

func (r *pricesRepo) UpsertCurrentPrices(ctx context.Context, prices map[string]float64) error {
	if len(prices) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO asset_prices (symbol, price_usd, last_updated)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (symbol)
		DO UPDATE SET price_usd = EXCLUDED.price_usd, last_updated = CURRENT_TIMESTAMP`)
	if err != nil {
		return fmt.Errorf("failed to prepare spot price upsert: %w", err)
	}
	defer stmt.Close()

	for symbol, price := range prices {
		if _, err := stmt.ExecContext(ctx, symbol, price); err != nil {
			return fmt.Errorf("failed to upsert spot price %s: %w", symbol, err)
		}
	}
	return tx.Commit()
}

func (r *pricesRepo) SaveVolatility(ctx context.Context, stats []persistence.VolatilityRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Volatility snapshots fully replace the previous computation.
	if _, err := tx.ExecContext(ctx, `TRUNCATE TABLE asset_volatility`); err != nil {
		return fmt.Errorf("failed to clear asset_volatility: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO asset_volatility (
			symbol, current_price, min_price, max_price, price_range_pct,
			daily_volatility, annualized_volatility, annualized_volatility_pct,
			days_analyzed, last_updated
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, CURRENT_TIMESTAMP)`)
	if err != nil {
		return fmt.Errorf("failed to prepare volatility insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range stats {
		_, err := stmt.ExecContext(ctx,
			s.Symbol, s.CurrentPrice, s.MinPrice, s.MaxPrice, s.PriceRangePct,
			s.DailyVol, s.AnnualizedVol, s.AnnualizedVolPct, s.DaysAnalyzed)
		if err != nil {
			return fmt.Errorf("failed to insert volatility for %s: %w", s.Symbol, err)
		}
	}
	return tx.Commit()
}

func (r *pricesRepo) SaveCovariance(ctx context.Context, cells []persistence.CovarianceRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `TRUNCATE TABLE asset_covariance`); err != nil {
		return fmt.Errorf("failed to clear asset_covariance: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO asset_covariance (asset1, asset2, covariance, correlation)
		VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return fmt.Errorf("failed to prepare covariance insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range cells {
		if _, err := stmt.ExecContext(ctx, c.Asset1, c.Asset2, c.Covariance, c.Correlation); err != nil {
			return fmt.Errorf("failed to insert covariance %s/%s: %w", c.Asset1, c.Asset2, err)
		}
	}
	return tx.Commit()
}

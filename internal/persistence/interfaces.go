// Package persistence defines the storage contracts for price history,
// borrower portfolios, and finished simulation runs. The risk core never
// touches these interfaces: all I/O completes before a run's data is handed
// to the engine, and a completed run is handed back here afterward.
package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/defirisk/lendvar/internal/domain"
)

// HistoricalPrice is one stored daily close.
type HistoricalPrice struct {
	Symbol string    `db:"symbol"`
	Date   time.Time `db:"date"`
	Close  float64   `db:"close_price"`
}

// AssetPrice is a current spot price snapshot.
type AssetPrice struct {
	Symbol    string    `db:"symbol"`
	PriceUSD  float64   `db:"price_usd"`
	UpdatedAt time.Time `db:"last_updated"`
}

// VolatilityRecord mirrors the asset_volatility table: one immutable
// snapshot per asset per recomputation.
type VolatilityRecord struct {
	Symbol           string    `db:"symbol"`
	CurrentPrice     float64   `db:"current_price"`
	MinPrice         float64   `db:"min_price"`
	MaxPrice         float64   `db:"max_price"`
	PriceRangePct    float64   `db:"price_range_pct"`
	DailyVol         float64   `db:"daily_volatility"`
	AnnualizedVol    float64   `db:"annualized_volatility"`
	AnnualizedVolPct float64   `db:"annualized_volatility_pct"`
	DaysAnalyzed     int       `db:"days_analyzed"`
	UpdatedAt        time.Time `db:"last_updated"`
}

// CovarianceRecord is one (asset, asset) cell of the covariance and
// correlation matrices.
type CovarianceRecord struct {
	Asset1      string  `db:"asset1"`
	Asset2      string  `db:"asset2"`
	Covariance  float64 `db:"covariance"`
	Correlation float64 `db:"correlation"`
}

// RunRecord is the stored metadata and statistics of one simulation run.
type RunRecord struct {
	RunID      uuid.UUID `db:"run_id"`
	NScenarios int       `db:"n_scenarios"`
	NUsers     int       `db:"n_users"`
	Seed       int64     `db:"random_seed"`
	State      string    `db:"state"`
	VaR95      float64   `db:"var_95"`
	VaR99      float64   `db:"var_99"`
	VaR999     float64   `db:"var_99_9"`
	ES95       float64   `db:"es_95"`
	ES99       float64   `db:"es_99"`
	MeanLoss   float64   `db:"mean_bad_debt"`
	MedianLoss float64   `db:"median_bad_debt"`
	StdLoss    float64   `db:"std_bad_debt"`
	MaxLoss    float64   `db:"max_bad_debt"`
	ProbOfLoss float64   `db:"prob_of_loss"`
	StartedAt  time.Time `db:"started_at"`
	FinishedAt time.Time `db:"finished_at"`
}

// ScenarioLoss is one scenario's aggregate bad debt within a run.
type ScenarioLoss struct {
	RunID      uuid.UUID `db:"run_id"`
	ScenarioID int       `db:"scenario_id"`
	BadDebtUSD float64   `db:"total_bad_debt"`
}

// SimulatedPrice is one asset's simulated price within one scenario,
// stored for trajectory analysis and debugging.
type SimulatedPrice struct {
	RunID          uuid.UUID `db:"run_id"`
	ScenarioID     int       `db:"scenario_id"`
	Symbol         string    `db:"asset_symbol"`
	CurrentPrice   float64   `db:"current_price"`
	SimulatedPrice float64   `db:"simulated_price"`
	ReturnPct      float64   `db:"return_pct"`
}

// PriceStore persists and serves historical and current prices plus the
// derived volatility/covariance snapshots.
type PriceStore interface {
	// UpsertHistoricalPrices stores daily closes idempotently on
	// (symbol, date).
	UpsertHistoricalPrices(ctx context.Context, prices []HistoricalPrice) error

	// ListSeries returns one ordered AssetSeries per stored symbol over the
	// trailing window.
	ListSeries(ctx context.Context, windowDays int) ([]*domain.AssetSeries, error)

	// CurrentPrices returns the latest spot snapshot per symbol.
	CurrentPrices(ctx context.Context) (map[string]float64, error)

	// UpsertCurrentPrices replaces the spot snapshot for the given symbols.
	UpsertCurrentPrices(ctx context.Context, prices map[string]float64) error

	SaveVolatility(ctx context.Context, stats []VolatilityRecord) error
	SaveCovariance(ctx context.Context, cells []CovarianceRecord) error
}

// PortfolioStore serves the fixed-point-in-time borrower book. The engine
// treats the result as read-only and never re-fetches mid-run.
type PortfolioStore interface {
	// TopBorrowers returns up to limit users with debt, largest debt first,
	// with their position snapshots attached.
	TopBorrowers(ctx context.Context, limit int) ([]*domain.User, error)

	EModeCategories(ctx context.Context) ([]domain.EModeCategory, error)

	// ReplacePortfolio atomically replaces the stored snapshot with a fresh
	// fetch.
	ReplacePortfolio(ctx context.Context, users []*domain.User, emodes []domain.EModeCategory) error
}

// RunStore persists completed simulation runs: metadata with statistics,
// the full loss vector, and optionally the simulated price trajectories.
type RunStore interface {
	InsertRun(ctx context.Context, rec RunRecord) error
	InsertScenarioLosses(ctx context.Context, losses []ScenarioLoss) error
	InsertSimulatedPrices(ctx context.Context, prices []SimulatedPrice) error
	GetRun(ctx context.Context, id uuid.UUID) (*RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
}

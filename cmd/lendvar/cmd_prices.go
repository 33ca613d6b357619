package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/defirisk/lendvar/internal/config"
	"github.com/defirisk/lendvar/internal/data"
	"github.com/defirisk/lendvar/internal/domain"
	"github.com/defirisk/lendvar/internal/metrics"
	"github.com/defirisk/lendvar/internal/persistence"
	"github.com/defirisk/lendvar/internal/persistence/postgres"
	"github.com/defirisk/lendvar/internal/risk"
)

func newPricesCmd(met *metrics.Registry) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prices",
		Short: "Fetch price history and recompute volatility and covariance",
		Long: `Fetches daily close prices for the modeled asset set from CoinGecko,
stores them, and recomputes the per-asset volatility and pairwise
covariance snapshots the simulation samples from.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrices(cmd, met)
		},
	}
	cmd.Flags().Int("days", 0, "Historical window in days (0 uses the configured window)")
	return cmd
}

func runPrices(cmd *cobra.Command, met *metrics.Registry) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	days := cfg.CoinGecko.WindowDays
	if flagDays, _ := cmd.Flags().GetInt("days"); flagDays > 0 {
		days = flagDays
	}

	db, err := postgres.Open(ctx, postgres.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return err
	}
	store := postgres.NewPricesRepo(db, cfg.Database.QueryTimeout)

	var cache *data.Cache
	if cfg.Redis.Addr != "" {
		cache, err = data.NewCache(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.DefaultTTL, log.Logger, met)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, fetching without cache")
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	client := data.NewCoinGeckoClient(data.CoinGeckoConfig{
		BaseURL:        cfg.CoinGecko.BaseURL,
		APIKey:         cfg.CoinGecko.APIKey,
		RequestsPerSec: cfg.CoinGecko.RequestsPerSec,
		Timeout:        cfg.CoinGecko.Timeout,
	}, cache, log.Logger, met)

	series, err := client.FetchAll(ctx, data.DefaultAssetMapping, days)
	if err != nil {
		return err
	}
	if len(series) == 0 {
		return fmt.Errorf("no price series fetched")
	}

	var historical []persistence.HistoricalPrice
	current := make(map[string]float64, len(series))
	for _, s := range series {
		for _, p := range s.Points {
			historical = append(historical, persistence.HistoricalPrice{
				Symbol: s.Symbol, Date: p.Date, Close: p.Close,
			})
		}
		current[s.Symbol] = s.LastClose()
	}
	if err := store.UpsertHistoricalPrices(ctx, historical); err != nil {
		return err
	}
	if err := store.UpsertCurrentPrices(ctx, current); err != nil {
		return err
	}

	if err := recomputeRiskStats(ctx, store, series, cfg); err != nil {
		return err
	}

	log.Info().
		Int("assets", len(series)).
		Int("prices", len(historical)).
		Int("window_days", days).
		Msg("price data refreshed")
	return nil
}

// recomputeRiskStats replaces the stored volatility and covariance snapshots
// from the freshly fetched series. Assets without enough history are skipped
// from the volatility table and excluded from the covariance estimate.
func recomputeRiskStats(ctx context.Context, store persistence.PriceStore, series []*domain.AssetSeries, cfg *config.Config) error {
	var vols []persistence.VolatilityRecord
	var usable []*domain.AssetSeries
	for _, s := range series {
		stat, err := risk.EstimateVolatility(s)
		if err != nil {
			log.Warn().Err(err).Str("symbol", s.Symbol).Msg("skipping asset for volatility")
			continue
		}
		usable = append(usable, s)
		vols = append(vols, persistence.VolatilityRecord{
			Symbol:           stat.Symbol,
			CurrentPrice:     stat.CurrentPrice,
			MinPrice:         stat.MinPrice,
			MaxPrice:         stat.MaxPrice,
			PriceRangePct:    stat.PriceRangePct,
			DailyVol:         stat.DailyVol,
			AnnualizedVol:    stat.AnnualizedVol,
			AnnualizedVolPct: stat.AnnualizedVol * 100,
			DaysAnalyzed:     stat.SampleSize + 1,
		})
	}
	if err := store.SaveVolatility(ctx, vols); err != nil {
		return err
	}

	cov, err := risk.EstimateCovariance(usable, cfg.Simulation.MinOverlapDays)
	if err != nil {
		return fmt.Errorf("covariance estimation failed: %w", err)
	}
	var cells []persistence.CovarianceRecord
	for _, a := range cov.Symbols {
		for _, b := range cov.Symbols {
			c, _ := cov.Covariance(a, b)
			r, _ := cov.Correlation(a, b)
			cells = append(cells, persistence.CovarianceRecord{
				Asset1: a, Asset2: b, Covariance: c, Correlation: r,
			})
		}
	}
	if err := store.SaveCovariance(ctx, cells); err != nil {
		return err
	}

	log.Info().
		Int("volatility_rows", len(vols)).
		Int("covariance_cells", len(cells)).
		Msg("risk statistics recomputed")
	return nil
}

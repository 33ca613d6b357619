package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/defirisk/lendvar/internal/data"
	"github.com/defirisk/lendvar/internal/metrics"
	"github.com/defirisk/lendvar/internal/persistence/postgres"
)

func newPositionsCmd(met *metrics.Registry) *cobra.Command {
	return &cobra.Command{
		Use:   "positions",
		Short: "Snapshot the borrower book from the protocol subgraph",
		Long: `Pages through every user with outstanding debt on the protocol
subgraph and atomically replaces the stored portfolio snapshot,
including per-position liquidation thresholds, collateral usage flags,
and efficiency-mode categories.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPositions(cmd, met)
		},
	}
}

func runPositions(cmd *cobra.Command, met *metrics.Registry) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
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

	prices, err := postgres.NewPricesRepo(db, cfg.Database.QueryTimeout).CurrentPrices(ctx)
	if err != nil {
		return err
	}
	if len(prices) == 0 {
		log.Warn().Msg("no stored spot prices, snapshot USD valuations will be zero; run `lendvar prices` first")
	}

	client := data.NewSubgraphClient(data.SubgraphConfig{
		URL:       cfg.Subgraph.URL,
		BatchSize: cfg.Subgraph.BatchSize,
		Timeout:   cfg.Subgraph.Timeout,
	}, log.Logger, met)

	users, emodes, err := client.FetchPortfolio(ctx, prices)
	if err != nil {
		return err
	}

	portfolio := postgres.NewPortfolioRepo(db, cfg.Database.QueryTimeout)
	if err := portfolio.ReplacePortfolio(ctx, users, emodes); err != nil {
		return err
	}

	log.Info().
		Int("users", len(users)).
		Int("emode_categories", len(emodes)).
		Msg("portfolio snapshot stored")
	return nil
}

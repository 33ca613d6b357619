package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/defirisk/lendvar/internal/metrics"
	"github.com/defirisk/lendvar/internal/persistence"
	"github.com/defirisk/lendvar/internal/persistence/postgres"
	"github.com/defirisk/lendvar/internal/report"
	"github.com/defirisk/lendvar/internal/risk"
)

func newSimulateCmd(met *metrics.Registry) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the Monte Carlo simulation and store the results",
		Long: `Loads the stored price history and borrower snapshot, samples
correlated price scenarios, scores every borrower's solvency under each
scenario, and stores the run with its loss distribution and VaR
statistics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd, met)
		},
	}
	cmd.Flags().Int("scenarios", 0, "Scenario count (0 uses the configured value)")
	cmd.Flags().Int64("seed", -1, "Random seed (negative draws one from the clock)")
	cmd.Flags().Int("top-n", 0, "Number of largest borrowers to score (0 uses the configured value)")
	cmd.Flags().Bool("store-trajectories", false, "Also store every scenario's simulated prices")
	return cmd
}

// resolveSeed picks the run seed. An explicitly set flag wins over the
// configured seed, and a negative result draws one from the clock so
// ad-hoc runs differ while staying reproducible from the run record.
func resolveSeed(flagSet bool, flagSeed, cfgSeed int64) (seed int64, drawn bool) {
	seed = cfgSeed
	if flagSet {
		seed = flagSeed
	}
	if seed < 0 {
		return time.Now().UnixNano(), true
	}
	return seed, false
}

func runSimulate(cmd *cobra.Command, met *metrics.Registry) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	scenarios := cfg.Simulation.Scenarios
	if n, _ := cmd.Flags().GetInt("scenarios"); n > 0 {
		scenarios = n
	}
	flagSeed, _ := cmd.Flags().GetInt64("seed")
	seed, drawn := resolveSeed(cmd.Flags().Changed("seed"), flagSeed, cfg.Simulation.Seed)
	if drawn {
		// The drawn seed ends up on the run record, so the run stays
		// reproducible after the fact.
		log.Info().Int64("seed", seed).Msg("drew random seed from clock")
	}
	topN := cfg.Subgraph.TopN
	if n, _ := cmd.Flags().GetInt("top-n"); n > 0 {
		topN = n
	}
	storeTrajectories := cfg.Simulation.StoreTrajectories
	if set, _ := cmd.Flags().GetBool("store-trajectories"); set {
		storeTrajectories = true
	}
	policy, err := risk.ParseFallbackPolicy(cfg.Simulation.FallbackPolicy)
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

	prices := postgres.NewPricesRepo(db, cfg.Database.QueryTimeout)
	portfolio := postgres.NewPortfolioRepo(db, cfg.Database.QueryTimeout)
	runs := postgres.NewRunsRepo(db, cfg.Database.QueryTimeout)

	series, err := prices.ListSeries(ctx, cfg.CoinGecko.WindowDays)
	if err != nil {
		return err
	}
	if len(series) == 0 {
		return fmt.Errorf("no stored price history; run `lendvar prices` first")
	}
	current, err := prices.CurrentPrices(ctx)
	if err != nil {
		return err
	}
	users, err := portfolio.TopBorrowers(ctx, topN)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		return fmt.Errorf("no stored borrowers; run `lendvar positions` first")
	}
	emodes, err := portfolio.EModeCategories(ctx)
	if err != nil {
		return err
	}

	engine := risk.NewEngine(log.Logger, met)
	run, runErr := engine.Run(ctx, risk.Params{
		Scenarios:   scenarios,
		Seed:        seed,
		Confidences: cfg.Simulation.Confidences,
		Workers:     cfg.Simulation.Workers,
		MinOverlap:  cfg.Simulation.MinOverlapDays,
		Fallback:    policy,
	}, series, users, emodes, current)

	// Failed runs are stored too: the run history should show what was
	// attempted, not only what succeeded.
	rec, err := persistence.RunToRecord(run)
	if err != nil {
		return err
	}
	if err := runs.InsertRun(ctx, rec); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("simulation failed: %w", runErr)
	}

	if err := runs.InsertScenarioLosses(ctx, persistence.RunLosses(run)); err != nil {
		return err
	}
	if storeTrajectories {
		if err := runs.InsertSimulatedPrices(ctx, persistence.RunTrajectories(run, current)); err != nil {
			return err
		}
	}

	return report.WriteRun(os.Stdout, &rec)
}

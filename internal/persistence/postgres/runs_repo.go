package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/defirisk/lendvar/internal/persistence"
)

// lossBatchSize bounds multi-row inserts; 10k scenarios × k assets of
// trajectories would otherwise exceed the pq parameter limit.
const lossBatchSize = 1000

type runsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRunsRepo creates a PostgreSQL-backed RunStore.
func NewRunsRepo(db *sqlx.DB, timeout time.Duration) persistence.RunStore {
	return &runsRepo{db: db, timeout: timeout}
}

func (r *runsRepo) InsertRun(ctx context.Context, rec persistence.RunRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO simulation_runs (
			run_id, n_scenarios, n_users, random_seed, state,
			var_95, var_99, var_99_9, es_95, es_99,
			mean_bad_debt, median_bad_debt, std_bad_debt, max_bad_debt,
			prob_of_loss, started_at, finished_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := r.db.ExecContext(ctx, query,
		rec.RunID, rec.NScenarios, rec.NUsers, rec.Seed, rec.State,
		rec.VaR95, rec.VaR99, rec.VaR999, rec.ES95, rec.ES99,
		rec.MeanLoss, rec.MedianLoss, rec.StdLoss, rec.MaxLoss,
		rec.ProbOfLoss, rec.StartedAt, rec.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", rec.RunID, err)
	}
	return nil
}

func (r *runsRepo) InsertScenarioLosses(ctx context.Context, losses []persistence.ScenarioLoss) error {
	if len(losses) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(losses)/10000+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO scenario_results (run_id, scenario_id, total_bad_debt)
		VALUES ($1, $2, $3)`)
	if err != nil {
		return fmt.Errorf("failed to prepare scenario insert: %w", err)
	}
	defer stmt.Close()

	for _, l := range losses {
		if _, err := stmt.ExecContext(ctx, l.RunID, l.ScenarioID, l.BadDebtUSD); err != nil {
			return fmt.Errorf("failed to insert scenario %d loss: %w", l.ScenarioID, err)
		}
	}
	return tx.Commit()
}

func (r *runsRepo) InsertSimulatedPrices(ctx context.Context, prices []persistence.SimulatedPrice) error {
	if len(prices) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(prices)/10000+1))
	defer cancel()

	for start := 0; start < len(prices); start += lossBatchSize {
		end := start + lossBatchSize
		if end > len(prices) {
			end = len(prices)
		}
		if err := r.insertPriceBatch(ctx, prices[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (r *runsRepo) insertPriceBatch(ctx context.Context, batch []persistence.SimulatedPrice) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO simulated_prices (
			run_id, scenario_id, asset_symbol, current_price,
			simulated_price, return_pct
		)
		VALUES ($1, $2, $3, $4, $5, $6)`)
	if err != nil {
		return fmt.Errorf("failed to prepare price insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range batch {
		_, err := stmt.ExecContext(ctx,
			p.RunID, p.ScenarioID, p.Symbol,
			p.CurrentPrice, p.SimulatedPrice, p.ReturnPct)
		if err != nil {
			return fmt.Errorf("failed to insert simulated price %s/%d: %w", p.Symbol, p.ScenarioID, err)
		}
	}
	return tx.Commit()
}

func (r *runsRepo) GetRun(ctx context.Context, id uuid.UUID) (*persistence.RunRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rec persistence.RunRecord
	query := `
		SELECT run_id, n_scenarios, n_users, random_seed, state,
		       var_95, var_99, var_99_9, es_95, es_99,
		       mean_bad_debt, median_bad_debt, std_bad_debt, max_bad_debt,
		       prob_of_loss, started_at, finished_at
		FROM simulation_runs
		WHERE run_id = $1`
	if err := r.db.GetContext(ctx, &rec, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run %s not found", id)
		}
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return &rec, nil
}

func (r *runsRepo) ListRuns(ctx context.Context, limit int) ([]persistence.RunRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var recs []persistence.RunRecord
	query := `
		SELECT run_id, n_scenarios, n_users, random_seed, state,
		       var_95, var_99, var_99_9, es_95, es_99,
		       mean_bad_debt, median_bad_debt, std_bad_debt, max_bad_debt,
		       prob_of_loss, started_at, finished_at
		FROM simulation_runs
		ORDER BY started_at DESC
		LIMIT $1`
	if err := r.db.SelectContext(ctx, &recs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return recs, nil
}

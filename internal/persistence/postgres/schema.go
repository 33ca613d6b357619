package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_address VARCHAR(42) PRIMARY KEY,
		user_emode_category INTEGER DEFAULT 0,
		total_debt_usd DECIMAL(20, 2),
		total_collateral_usd DECIMAL(20, 2),
		last_updated TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS positions (
		id SERIAL PRIMARY KEY,
		user_address VARCHAR(42) REFERENCES users(user_address),
		symbol VARCHAR(20),
		side VARCHAR(20),
		amount DECIMAL(30, 18),
		amount_usd DECIMAL(20, 2),
		liquidation_threshold DECIMAL(5, 4),
		usage_as_collateral_enabled BOOLEAN,
		emode_category_id INTEGER,
		last_updated TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS emode_categories (
		id INTEGER PRIMARY KEY,
		label VARCHAR(64),
		ltv DECIMAL(5, 4),
		liquidation_threshold DECIMAL(5, 4),
		liquidation_bonus DECIMAL(5, 4)
	)`,
	`CREATE TABLE IF NOT EXISTS asset_prices (
		symbol VARCHAR(20) PRIMARY KEY,
		price_usd DECIMAL(20, 8),
		last_updated TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS historical_prices (
		id SERIAL PRIMARY KEY,
		symbol VARCHAR(20) NOT NULL,
		date DATE NOT NULL,
		close_price DECIMAL(20, 8) NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, date)
	)`,
	`CREATE TABLE IF NOT EXISTS asset_volatility (
		symbol VARCHAR(20) PRIMARY KEY,
		current_price DECIMAL(20, 8),
		min_price DECIMAL(20, 8),
		max_price DECIMAL(20, 8),
		price_range_pct DECIMAL(10, 4),
		daily_volatility DECIMAL(10, 8),
		annualized_volatility DECIMAL(10, 8),
		annualized_volatility_pct DECIMAL(10, 4),
		days_analyzed INTEGER,
		last_updated TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS asset_covariance (
		asset1 VARCHAR(20),
		asset2 VARCHAR(20),
		covariance DECIMAL(15, 10),
		correlation DECIMAL(8, 6),
		last_updated TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (asset1, asset2)
	)`,
	`CREATE TABLE IF NOT EXISTS simulation_runs (
		run_id UUID PRIMARY KEY,
		n_scenarios INTEGER NOT NULL,
		n_users INTEGER NOT NULL,
		random_seed BIGINT NOT NULL,
		state VARCHAR(32) NOT NULL,
		var_95 DECIMAL(20, 2),
		var_99 DECIMAL(20, 2),
		var_99_9 DECIMAL(20, 2),
		es_95 DECIMAL(20, 2),
		es_99 DECIMAL(20, 2),
		mean_bad_debt DECIMAL(20, 2),
		median_bad_debt DECIMAL(20, 2),
		std_bad_debt DECIMAL(20, 2),
		max_bad_debt DECIMAL(20, 2),
		prob_of_loss DECIMAL(6, 4),
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS scenario_results (
		run_id UUID REFERENCES simulation_runs(run_id),
		scenario_id INTEGER NOT NULL,
		total_bad_debt DECIMAL(20, 2) NOT NULL,
		PRIMARY KEY (run_id, scenario_id)
	)`,
	`CREATE TABLE IF NOT EXISTS simulated_prices (
		run_id UUID REFERENCES simulation_runs(run_id),
		scenario_id INTEGER NOT NULL,
		asset_symbol VARCHAR(20) NOT NULL,
		current_price DECIMAL(20, 8),
		simulated_price DECIMAL(20, 8),
		return_pct DECIMAL(12, 6),
		PRIMARY KEY (run_id, scenario_id, asset_symbol)
	)`,
}

// EnsureSchema creates all lendvar tables if they do not exist. Safe to run
// on every startup.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

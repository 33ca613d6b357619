package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defirisk/lendvar/internal/persistence"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func sampleRecord() persistence.RunRecord {
	now := time.Now().UTC()
	return persistence.RunRecord{
		RunID:      uuid.New(),
		NScenarios: 1000,
		NUsers:     50,
		Seed:       42,
		State:      "COMPLETE",
		VaR95:      12000,
		VaR99:      30000,
		VaR999:     55000,
		ES95:       20000,
		ES99:       42000,
		MeanLoss:   800,
		MedianLoss: 0,
		StdLoss:    4100,
		MaxLoss:    61000,
		ProbOfLoss: 0.12,
		StartedAt:  now.Add(-time.Minute),
		FinishedAt: now,
	}
}

func TestInsertRun(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRunsRepo(db, time.Second)
	rec := sampleRecord()

	mock.ExpectExec(`INSERT INTO simulation_runs`).
		WithArgs(rec.RunID, rec.NScenarios, rec.NUsers, rec.Seed, rec.State,
			rec.VaR95, rec.VaR99, rec.VaR999, rec.ES95, rec.ES99,
			rec.MeanLoss, rec.MedianLoss, rec.StdLoss, rec.MaxLoss,
			rec.ProbOfLoss, rec.StartedAt, rec.FinishedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.InsertRun(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertScenarioLossesUsesOneTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRunsRepo(db, time.Second)
	runID := uuid.New()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO scenario_results`)
	for i := 0; i < 3; i++ {
		prep.ExpectExec().
			WithArgs(runID, i, float64(i)*100).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	losses := []persistence.ScenarioLoss{
		{RunID: runID, ScenarioID: 0, BadDebtUSD: 0},
		{RunID: runID, ScenarioID: 1, BadDebtUSD: 100},
		{RunID: runID, ScenarioID: 2, BadDebtUSD: 200},
	}
	require.NoError(t, repo.InsertScenarioLosses(context.Background(), losses))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertScenarioLossesEmptyIsNoop(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRunsRepo(db, time.Second)

	require.NoError(t, repo.InsertScenarioLosses(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRun(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRunsRepo(db, time.Second)
	rec := sampleRecord()

	rows := sqlmock.NewRows([]string{
		"run_id", "n_scenarios", "n_users", "random_seed", "state",
		"var_95", "var_99", "var_99_9", "es_95", "es_99",
		"mean_bad_debt", "median_bad_debt", "std_bad_debt", "max_bad_debt",
		"prob_of_loss", "started_at", "finished_at",
	}).AddRow(
		rec.RunID, rec.NScenarios, rec.NUsers, rec.Seed, rec.State,
		rec.VaR95, rec.VaR99, rec.VaR999, rec.ES95, rec.ES99,
		rec.MeanLoss, rec.MedianLoss, rec.StdLoss, rec.MaxLoss,
		rec.ProbOfLoss, rec.StartedAt, rec.FinishedAt,
	)
	mock.ExpectQuery(`(?s)SELECT .+ FROM simulation_runs\s+WHERE run_id = \$1`).
		WithArgs(rec.RunID).
		WillReturnRows(rows)

	got, err := repo.GetRun(context.Background(), rec.RunID)
	require.NoError(t, err)
	assert.Equal(t, rec.VaR99, got.VaR99)
	assert.Equal(t, rec.State, got.State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRunsRepo(db, time.Second)
	id := uuid.New()

	mock.ExpectQuery(`(?s)SELECT .+ FROM simulation_runs`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"run_id"}))

	_, err := repo.GetRun(context.Background(), id)
	assert.ErrorContains(t, err, "not found")
}

func TestListRunsOrdersByStart(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRunsRepo(db, time.Second)
	rec := sampleRecord()

	rows := sqlmock.NewRows([]string{"run_id", "n_scenarios", "state"}).
		AddRow(rec.RunID, rec.NScenarios, rec.State)
	mock.ExpectQuery(`(?s)SELECT .+ FROM simulation_runs\s+ORDER BY started_at DESC\s+LIMIT \$1`).
		WithArgs(5).
		WillReturnRows(rows)

	recs, err := repo.ListRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, rec.RunID, recs[0].RunID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLifecyclePath(t *testing.T) {
	run := NewSimulationRun(42, 1000)
	assert.Equal(t, RunCreated, run.State)
	assert.Equal(t, int64(42), run.Seed)
	assert.False(t, run.StartedAt.IsZero())
	assert.True(t, run.FinishedAt.IsZero())

	require.NoError(t, run.Transition(RunScenariosGenerated))
	require.NoError(t, run.Transition(RunScoring))
	require.NoError(t, run.Transition(RunComplete))

	assert.True(t, run.State.Terminal())
	assert.False(t, run.FinishedAt.IsZero())
}

func TestRunRejectsSkippedStates(t *testing.T) {
	run := NewSimulationRun(1, 10)

	err := run.Transition(RunScoring)
	require.Error(t, err)
	assert.Equal(t, RunCreated, run.State)

	err = run.Transition(RunComplete)
	require.Error(t, err)
	assert.Equal(t, RunCreated, run.State)
}

func TestRunTerminalStatesAreFinal(t *testing.T) {
	run := NewSimulationRun(1, 10)
	require.NoError(t, run.Transition(RunScenariosGenerated))
	require.NoError(t, run.Transition(RunScoring))
	require.NoError(t, run.Transition(RunComplete))

	assert.Error(t, run.Transition(RunScoring))
	assert.Error(t, run.Transition(RunFailed))
	assert.Equal(t, RunComplete, run.State)
}

func TestRunFailFromAnyNonTerminalState(t *testing.T) {
	cause := errors.New("covariance blew up")

	run := NewSimulationRun(1, 10)
	run.Fail(cause)
	assert.Equal(t, RunFailed, run.State)
	assert.ErrorIs(t, run.Err, cause)
	assert.False(t, run.FinishedAt.IsZero())

	// Fail on a terminal run is a no-op.
	other := errors.New("later failure")
	run.Fail(other)
	assert.ErrorIs(t, run.Err, cause)
}

func TestRunStatsByConfidence(t *testing.T) {
	stats := &RunStats{VaR: []VaRPoint{
		{Confidence: 95, VaR: 100, ES: 120},
		{Confidence: 99, VaR: 200, ES: 240},
	}}

	p, ok := stats.ByConfidence(99)
	require.True(t, ok)
	assert.Equal(t, 200.0, p.VaR)

	_, ok = stats.ByConfidence(99.9)
	assert.False(t, ok)
}

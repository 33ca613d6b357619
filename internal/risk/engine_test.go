package risk

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defirisk/lendvar/internal/domain"
)

func engineFixture() ([]*domain.AssetSeries, []*domain.User, map[string]float64) {
	series := []*domain.AssetSeries{
		seriesOf("WETH", 3000, 3090, 2940, 3030, 3150, 2910, 3020, 2970, 3120, 3060, 3000, 2930),
		seriesOf("WBTC", 50000, 51000, 49500, 50500, 52000, 49000, 50200, 49800, 51500, 50700, 50000, 49200),
	}
	users := []*domain.User{
		{
			Address: "0x1",
			Collateral: []domain.Position{{
				Symbol: "WETH", Amount: 10,
				LiquidationThreshold: 0.8, CollateralEnabled: true,
			}},
			Debt: []domain.Position{{Symbol: "USDC", Amount: 25000}},
		},
		{
			Address: "0x2",
			Collateral: []domain.Position{{
				Symbol: "WBTC", Amount: 1,
				LiquidationThreshold: 0.75, CollateralEnabled: true,
			}},
			Debt: []domain.Position{{Symbol: "WETH", Amount: 11}},
		},
	}
	current := map[string]float64{"WETH": 2930, "WBTC": 49200, "USDC": 1}
	return series, users, current
}

func testParams() Params {
	return Params{
		Scenarios:   200,
		Seed:        42,
		Confidences: []float64{95, 99, 99.9},
		Workers:     4,
		MinOverlap:  10,
		Fallback:    FallbackHold,
	}
}

func TestEngineRunCompletes(t *testing.T) {
	series, users, current := engineFixture()
	engine := NewEngine(zerolog.Nop(), nil)

	run, err := engine.Run(context.Background(), testParams(), series, users, nil, current)
	require.NoError(t, err)

	assert.Equal(t, domain.RunComplete, run.State)
	assert.Len(t, run.Scenarios, 200)
	assert.Len(t, run.Losses, 200)
	assert.Equal(t, 2, run.NUsers)
	assert.False(t, run.FinishedAt.IsZero())
	require.NotNil(t, run.Stats)
	require.Len(t, run.Stats.VaR, 3)
	for _, p := range run.Stats.VaR {
		assert.GreaterOrEqual(t, p.ES, p.VaR)
	}
}

func TestEngineRunDeterministicForSeed(t *testing.T) {
	series, users, current := engineFixture()
	engine := NewEngine(zerolog.Nop(), nil)

	first, err := engine.Run(context.Background(), testParams(), series, users, nil, current)
	require.NoError(t, err)
	second, err := engine.Run(context.Background(), testParams(), series, users, nil, current)
	require.NoError(t, err)

	assert.Equal(t, first.Losses, second.Losses)
	assert.Equal(t, first.Stats, second.Stats)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestEngineRunFailsOnZeroScenarios(t *testing.T) {
	series, users, current := engineFixture()
	engine := NewEngine(zerolog.Nop(), nil)

	params := testParams()
	params.Scenarios = 0
	run, err := engine.Run(context.Background(), params, series, users, nil, current)

	require.ErrorIs(t, err, domain.ErrEmptyRun)
	assert.Equal(t, domain.RunFailed, run.State)
	assert.ErrorIs(t, run.Err, domain.ErrEmptyRun)
}

func TestEngineRunFailsOnEmptyAssetUniverse(t *testing.T) {
	_, users, current := engineFixture()
	engine := NewEngine(zerolog.Nop(), nil)

	run, err := engine.Run(context.Background(), testParams(), nil, users, nil, current)

	require.ErrorIs(t, err, domain.ErrNoSeries)
	assert.Equal(t, domain.RunFailed, run.State)
	assert.ErrorIs(t, run.Err, domain.ErrNoSeries)
}

func TestEngineRunFailsOnMissingBasePrice(t *testing.T) {
	series, users, _ := engineFixture()
	engine := NewEngine(zerolog.Nop(), nil)

	run, err := engine.Run(context.Background(), testParams(), series, users, nil,
		map[string]float64{"WETH": 2930}) // no WBTC price

	require.Error(t, err)
	assert.Equal(t, domain.RunFailed, run.State)
	assert.Empty(t, run.Scenarios)
}

func TestEngineRunCancelledKeepsPartialLosses(t *testing.T) {
	series, users, current := engineFixture()
	engine := NewEngine(zerolog.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	run, err := engine.Run(ctx, testParams(), series, users, nil, current)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.RunFailed, run.State)
	assert.Len(t, run.Losses, 200)
	assert.Nil(t, run.Stats)
}

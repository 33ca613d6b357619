package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defirisk/lendvar/internal/domain"
)

func borrower(collateralEnabled bool) *domain.User {
	return &domain.User{
		Address: "0xabc",
		Collateral: []domain.Position{{
			Symbol:               "WETH",
			Side:                 domain.SideCollateral,
			Amount:               1.5,
			LiquidationThreshold: 0.5,
			CollateralEnabled:    collateralEnabled,
		}},
		Debt: []domain.Position{{
			Symbol: "USDC",
			Side:   domain.SideDebt,
			Amount: 100,
		}},
	}
}

func TestShortfallBasicCase(t *testing.T) {
	// Debt $100, collateral $150 at LT 0.5 recovers $75: shortfall $25.
	eval := NewEvaluator(FallbackHold, nil, nil)
	sc := domain.Scenario{ID: 0, Prices: map[string]float64{"WETH": 100, "USDC": 1}}

	loss, err := eval.Shortfall(borrower(true), &sc)
	require.NoError(t, err)
	assert.InDelta(t, 25.0, loss, 1e-12)
}

func TestShortfallDisabledCollateralContributesNothing(t *testing.T) {
	eval := NewEvaluator(FallbackHold, nil, nil)
	sc := domain.Scenario{ID: 0, Prices: map[string]float64{"WETH": 100, "USDC": 1}}

	loss, err := eval.Shortfall(borrower(false), &sc)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, loss, 1e-12)
}

func TestShortfallNeverNegative(t *testing.T) {
	eval := NewEvaluator(FallbackHold, nil, nil)
	// Collateral easily covers the debt.
	sc := domain.Scenario{ID: 0, Prices: map[string]float64{"WETH": 1000, "USDC": 1}}

	loss, err := eval.Shortfall(borrower(true), &sc)
	require.NoError(t, err)
	assert.Equal(t, 0.0, loss)
}

func TestShortfallEModeOverridesThreshold(t *testing.T) {
	user := borrower(true)
	user.EModeCategoryID = 1
	eval := NewEvaluator(FallbackHold, nil, []domain.EModeCategory{
		{ID: 1, Label: "ETH correlated", LiquidationThreshold: 0.93},
	})
	sc := domain.Scenario{ID: 0, Prices: map[string]float64{"WETH": 100, "USDC": 1}}

	// Recoverable becomes 150 x 0.93 = 139.5, covering the $100 debt.
	loss, err := eval.Shortfall(user, &sc)
	require.NoError(t, err)
	assert.Equal(t, 0.0, loss)
}

func TestShortfallUnknownEModeKeepsBaseThreshold(t *testing.T) {
	user := borrower(true)
	user.EModeCategoryID = 9
	eval := NewEvaluator(FallbackHold, nil, []domain.EModeCategory{
		{ID: 1, LiquidationThreshold: 0.93},
	})
	sc := domain.Scenario{ID: 0, Prices: map[string]float64{"WETH": 100, "USDC": 1}}

	loss, err := eval.Shortfall(user, &sc)
	require.NoError(t, err)
	assert.InDelta(t, 25.0, loss, 1e-12)
}

func TestShortfallFallbackPolicies(t *testing.T) {
	user := borrower(true)
	// USDC is not in the scenario's modeled set.
	sc := domain.Scenario{ID: 3, Prices: map[string]float64{"WETH": 100}}

	hold := NewEvaluator(FallbackHold, map[string]float64{"USDC": 1}, nil)
	loss, err := hold.Shortfall(user, &sc)
	require.NoError(t, err)
	assert.InDelta(t, 25.0, loss, 1e-12)

	reject := NewEvaluator(FallbackReject, map[string]float64{"USDC": 1}, nil)
	_, err = reject.Shortfall(user, &sc)
	var missing *domain.MissingPriceError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "USDC", missing.Symbol)
	assert.Equal(t, 3, missing.ScenarioID)

	// Hold with no last-known price still fails.
	bare := NewEvaluator(FallbackHold, nil, nil)
	_, err = bare.Shortfall(user, &sc)
	require.ErrorAs(t, err, &missing)
}

func TestShortfallIsPure(t *testing.T) {
	eval := NewEvaluator(FallbackHold, nil, nil)
	user := borrower(true)
	sc := domain.Scenario{ID: 0, Prices: map[string]float64{"WETH": 100, "USDC": 1}}

	first, err := eval.Shortfall(user, &sc)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		again, err := eval.Shortfall(user, &sc)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	// Inputs are untouched.
	assert.Equal(t, 1.5, user.Collateral[0].Amount)
	assert.Equal(t, map[string]float64{"WETH": 100, "USDC": 1}, sc.Prices)
}

func TestParseFallbackPolicy(t *testing.T) {
	p, err := ParseFallbackPolicy("hold")
	require.NoError(t, err)
	assert.Equal(t, FallbackHold, p)

	p, err = ParseFallbackPolicy("reject")
	require.NoError(t, err)
	assert.Equal(t, FallbackReject, p)

	_, err = ParseFallbackPolicy("zero")
	assert.Error(t, err)
}

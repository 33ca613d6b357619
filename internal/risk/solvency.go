package risk

import (
	"fmt"

	"github.com/defirisk/lendvar/internal/domain"
)

// FallbackPolicy controls pricing of position assets outside the modeled
// set, which have no simulated price in any scenario.
type FallbackPolicy int

const (
	// FallbackHold substitutes the asset's last-known price with zero
	// volatility. The position contributes its current value in every
	// scenario.
	FallbackHold FallbackPolicy = iota
	// FallbackReject returns MissingPriceError for any unmodeled asset.
	FallbackReject
)

// ParseFallbackPolicy maps the configuration string to a policy.
func ParseFallbackPolicy(s string) (FallbackPolicy, error) {
	switch s {
	case "hold", "":
		return FallbackHold, nil
	case "reject":
		return FallbackReject, nil
	}
	return FallbackHold, fmt.Errorf("unknown fallback policy %q (want hold or reject)", s)
}

// Evaluator computes a single user's shortfall under a single scenario.
// It is a pure function of (user, scenario): no I/O, no mutation, and no
// per-call heap allocation beyond scalar accumulators, since it sits in
// the users × scenarios hot loop.
type Evaluator struct {
	policy   FallbackPolicy
	fallback map[string]float64 // last-known prices for unmodeled assets
	emodeLT  map[int]float64    // category ID -> overriding liquidation threshold
}

// NewEvaluator builds an evaluator. fallbackPrices are the current prices
// used under FallbackHold; emodes supplies efficiency-mode categories whose
// liquidation thresholds override position-level thresholds for opted-in
// users.
func NewEvaluator(policy FallbackPolicy, fallbackPrices map[string]float64, emodes []domain.EModeCategory) *Evaluator {
	lt := make(map[int]float64, len(emodes))
	for _, c := range emodes {
		lt[c.ID] = c.LiquidationThreshold
	}
	return &Evaluator{policy: policy, fallback: fallbackPrices, emodeLT: lt}
}

// Shortfall computes the user's bad debt under the scenario:
//
//	debt        = Σ debt positions:            amount × price
//	recoverable = Σ enabled collateral:        amount × price × LT
//	shortfall   = max(0, debt − recoverable)
//
// Collateral with CollateralEnabled == false contributes nothing regardless
// of amount. When the user is in an E-Mode category with a known threshold,
// that threshold replaces each enabled position's base LT. Shortfall can
// increase when a collateral price rises alongside a debt price: solvency
// is evaluated at the shock endpoint only, with no intra-path liquidation.
// That is a scope boundary of the model, not a defect to correct here.
func (e *Evaluator) Shortfall(user *domain.User, scenario *domain.Scenario) (float64, error) {
	var debt float64
	for i := range user.Debt {
		p := &user.Debt[i]
		price, err := e.price(p.Symbol, scenario)
		if err != nil {
			return 0, err
		}
		debt += p.Amount * price
	}

	emodeLT, hasEmode := 0.0, false
	if user.EModeCategoryID > 0 {
		emodeLT, hasEmode = e.emodeLT[user.EModeCategoryID]
	}

	var recoverable float64
	for i := range user.Collateral {
		p := &user.Collateral[i]
		if !p.CollateralEnabled {
			continue
		}
		price, err := e.price(p.Symbol, scenario)
		if err != nil {
			return 0, err
		}
		lt := p.LiquidationThreshold
		if hasEmode {
			lt = emodeLT
		}
		recoverable += p.Amount * price * lt
	}

	if debt <= recoverable {
		return 0, nil
	}
	return debt - recoverable, nil
}

func (e *Evaluator) price(symbol string, scenario *domain.Scenario) (float64, error) {
	if p, ok := scenario.Prices[symbol]; ok {
		return p, nil
	}
	if e.policy == FallbackHold {
		if p, ok := e.fallback[symbol]; ok {
			return p, nil
		}
	}
	return 0, &domain.MissingPriceError{Symbol: symbol, ScenarioID: scenario.ID}
}

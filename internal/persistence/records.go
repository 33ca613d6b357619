package persistence

import (
	"fmt"
	"math"

	"github.com/defirisk/lendvar/internal/domain"
)

// RunToRecord flattens a terminal simulation run into its stored form. The
// fixed VaR columns mirror the reporting schema; confidence levels beyond
// 95/99/99.9 live only in the in-memory stats.
func RunToRecord(run *domain.SimulationRun) (RunRecord, error) {
	if !run.State.Terminal() {
		return RunRecord{}, fmt.Errorf("run %s not terminal (state %s)", run.ID, run.State)
	}
	rec := RunRecord{
		RunID:      run.ID,
		NScenarios: run.NScenarios,
		NUsers:     run.NUsers,
		Seed:       run.Seed,
		State:      string(run.State),
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
	if run.Stats == nil {
		return rec, nil
	}
	rec.MeanLoss = run.Stats.Mean
	rec.MedianLoss = run.Stats.Median
	rec.StdLoss = run.Stats.StdDev
	rec.MaxLoss = run.Stats.Max
	rec.ProbOfLoss = run.Stats.ProbOfLoss
	if p, ok := run.Stats.ByConfidence(95); ok {
		rec.VaR95, rec.ES95 = p.VaR, p.ES
	}
	if p, ok := run.Stats.ByConfidence(99); ok {
		rec.VaR99, rec.ES99 = p.VaR, p.ES
	}
	if p, ok := run.Stats.ByConfidence(99.9); ok {
		rec.VaR999 = p.VaR
	}
	return rec, nil
}

// RunLosses flattens the loss vector into per-scenario rows.
func RunLosses(run *domain.SimulationRun) []ScenarioLoss {
	out := make([]ScenarioLoss, 0, len(run.Losses))
	for i, l := range run.Losses {
		out = append(out, ScenarioLoss{RunID: run.ID, ScenarioID: i, BadDebtUSD: l})
	}
	return out
}

// RunTrajectories flattens every scenario's simulated prices into storage
// rows. ReturnPct is recovered from the price ratio, matching the log
// return that generated it.
func RunTrajectories(run *domain.SimulationRun, basePrices map[string]float64) []SimulatedPrice {
	var out []SimulatedPrice
	for _, sc := range run.Scenarios {
		for sym, price := range sc.Prices {
			base := basePrices[sym]
			row := SimulatedPrice{
				RunID:          run.ID,
				ScenarioID:     sc.ID,
				Symbol:         sym,
				CurrentPrice:   base,
				SimulatedPrice: price,
			}
			if base > 0 {
				row.ReturnPct = math.Log(price/base) * 100
			}
			out = append(out, row)
		}
	}
	return out
}

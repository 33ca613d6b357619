package risk

import (
	"context"
	"math"
	"runtime"
	"sort"
	"sync"

	"github.com/defirisk/lendvar/internal/domain"
)

// Aggregator scores every (user, scenario) pair and reduces the grid into a
// per-scenario loss vector. Each evaluation is independent and
// side-effect-free, so the grid is decomposed by scenario: a worker owns a
// scenario end-to-end and produces one scalar, the scenario's total bad
// debt. Workers write disjoint indices of the loss vector, so no locking is
// needed, and the merge is deterministic regardless of completion order.
type Aggregator struct {
	eval    *Evaluator
	workers int
}

// NewAggregator builds an aggregator running the given evaluator across
// workers goroutines. workers <= 0 means GOMAXPROCS.
func NewAggregator(eval *Evaluator, workers int) *Aggregator {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Aggregator{eval: eval, workers: workers}
}

// Score evaluates all users under all scenarios and returns the loss
// vector, indexed by scenario ID. Cancellation is coarse-grained: a
// cancelled context stops scheduling further scenarios, and already-scored
// entries remain valid for partial statistics, but the caller must not
// report such a run as complete.
func (a *Aggregator) Score(ctx context.Context, users []*domain.User, scenarios []domain.Scenario) ([]float64, error) {
	losses := make([]float64, len(scenarios))

	jobs := make(chan int)
	errCh := make(chan error, a.workers)
	var wg sync.WaitGroup

	for w := 0; w < a.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				var total float64
				for _, u := range users {
					loss, err := a.eval.Shortfall(u, &scenarios[idx])
					if err != nil {
						select {
						case errCh <- err:
						default:
						}
						return
					}
					total += loss
				}
				losses[idx] = total
			}
		}()
	}

	var schedErr error
dispatch:
	for i := range scenarios {
		select {
		case <-ctx.Done():
			schedErr = ctx.Err()
			break dispatch
		case err := <-errCh:
			schedErr = err
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if schedErr == nil {
		select {
		case err := <-errCh:
			schedErr = err
		default:
		}
	}
	if schedErr != nil {
		return losses, schedErr
	}
	return losses, nil
}

// ComputeStats derives VaR, expected shortfall, and summary statistics from
// a loss vector at the given confidence levels (percentiles, e.g. 95, 99,
// 99.9). Fails with ErrEmptyRun on an empty vector. A vector of all zeros
// (a run with no users) is a valid degenerate distribution.
func ComputeStats(losses []float64, confidences []float64) (*domain.RunStats, error) {
	n := len(losses)
	if n == 0 {
		return nil, domain.ErrEmptyRun
	}

	sorted := append([]float64(nil), losses...)
	sort.Float64s(sorted)

	stats := &domain.RunStats{
		Mean:   meanOf(sorted),
		Median: Percentile(sorted, 50),
		StdDev: populationStdDev(sorted),
		Min:    sorted[0],
		Max:    sorted[n-1],
	}

	lossCount := 0
	for _, l := range sorted {
		if l > 0 {
			lossCount++
		}
	}
	stats.ProbOfLoss = float64(lossCount) / float64(n)

	for _, c := range confidences {
		v := Percentile(sorted, c)
		stats.VaR = append(stats.VaR, domain.VaRPoint{
			Confidence: c,
			VaR:        v,
			ES:         expectedShortfall(sorted, v),
		})
	}
	return stats, nil
}

// Percentile computes the p-th percentile (0..100) of a sorted vector by
// linear interpolation between closest order statistics:
//
//	idx = p/100 × (n−1), result = v[⌊idx⌋] + frac × (v[⌈idx⌉] − v[⌊idx⌋])
//
// This is the interpolation rule numpy's percentile defaults to, pinned
// here so results are reproducible across implementations.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(idx))
	upper := int(math.Ceil(idx))
	if lower < 0 {
		return sorted[0]
	}
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	if lower == upper {
		return sorted[lower]
	}
	frac := idx - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

// expectedShortfall is the mean of all losses at or beyond the VaR cutoff.
// With the cutoff interpolated between order statistics there is always at
// least one qualifying loss (the maximum), so ES ≥ VaR holds.
func expectedShortfall(sorted []float64, varCutoff float64) float64 {
	var sum float64
	count := 0
	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i] < varCutoff {
			break
		}
		sum += sorted[i]
		count++
	}
	if count == 0 {
		return varCutoff
	}
	return sum / float64(count)
}

// populationStdDev divides by n, not n−1: the loss vector is the complete
// realized distribution for the run, not a sample of a larger one.
func populationStdDev(values []float64) float64 {
	mean := meanOf(values)
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)))
}

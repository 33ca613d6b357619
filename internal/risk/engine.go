package risk

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/defirisk/lendvar/internal/domain"
	"github.com/defirisk/lendvar/internal/metrics"
)

// Params are the explicit inputs of one simulation run. Nothing here is
// read from ambient state: two engines with identical Params and inputs
// produce identical runs.
type Params struct {
	Scenarios   int
	Seed        int64
	Confidences []float64 // percentile levels, e.g. 95, 99, 99.9
	Workers     int       // scoring goroutines, <= 0 means GOMAXPROCS
	MinOverlap  int       // minimum shared return dates per asset pair
	Fallback    FallbackPolicy
}

// Engine runs the full pipeline: covariance estimation, scenario
// generation, solvency scoring, and statistics. It owns the run state
// machine; persistence of a finished run belongs to the caller.
type Engine struct {
	log zerolog.Logger
	met *metrics.Registry
}

// NewEngine builds an engine. met may be nil when no instrumentation is
// wanted (tests, one-shot CLI runs without a metrics endpoint).
func NewEngine(log zerolog.Logger, met *metrics.Registry) *Engine {
	return &Engine{
		log: log.With().Str("component", "risk_engine").Logger(),
		met: met,
	}
}

// Run executes one simulation over the given borrower book. series is the
// historical price window for the modeled assets; currentPrices values both
// the scenario base vector and the hold-fallback for unmodeled position
// assets. The returned run is in state COMPLETE, or FAILED with Err set,
// in which case the error is also returned.
func (e *Engine) Run(
	ctx context.Context,
	params Params,
	series []*domain.AssetSeries,
	users []*domain.User,
	emodes []domain.EModeCategory,
	currentPrices map[string]float64,
) (*domain.SimulationRun, error) {
	run := domain.NewSimulationRun(params.Seed, params.Scenarios)
	run.NUsers = len(users)

	e.log.Info().
		Str("run_id", run.ID.String()).
		Int("scenarios", params.Scenarios).
		Int64("seed", params.Seed).
		Int("users", len(users)).
		Int("assets", len(series)).
		Msg("starting simulation run")

	if e.met != nil {
		e.met.ActiveRuns.Inc()
		defer e.met.ActiveRuns.Dec()
	}
	started := time.Now()

	if params.Scenarios <= 0 {
		err := domain.ErrEmptyRun
		run.Fail(err)
		e.observeTerminal(run, started)
		return run, err
	}

	cov, err := step(e, "estimate_covariance", func() (*CovarianceMatrix, error) {
		return EstimateCovariance(series, params.MinOverlap)
	})
	if err != nil {
		run.Fail(err)
		e.observeTerminal(run, started)
		return run, err
	}

	gen, err := step(e, "build_generator", func() (*Generator, error) {
		return NewGenerator(cov, currentPrices, params.Seed)
	})
	if err != nil {
		run.Fail(err)
		e.observeTerminal(run, started)
		return run, err
	}

	scenarios, err := step(e, "generate_scenarios", func() ([]domain.Scenario, error) {
		return gen.Generate(params.Scenarios)
	})
	if err != nil {
		run.Fail(err)
		e.observeTerminal(run, started)
		return run, err
	}
	run.Scenarios = scenarios
	if err := run.Transition(domain.RunScenariosGenerated); err != nil {
		run.Fail(err)
		e.observeTerminal(run, started)
		return run, err
	}

	if err := run.Transition(domain.RunScoring); err != nil {
		run.Fail(err)
		e.observeTerminal(run, started)
		return run, err
	}
	eval := NewEvaluator(params.Fallback, currentPrices, emodes)
	agg := NewAggregator(eval, params.Workers)
	losses, err := step(e, "score_scenarios", func() ([]float64, error) {
		return agg.Score(ctx, users, scenarios)
	})
	if err != nil {
		// A cancelled run keeps its partial losses for the caller but is
		// never reported COMPLETE.
		run.Losses = losses
		run.Fail(err)
		e.observeTerminal(run, started)
		return run, err
	}
	run.Losses = losses
	if e.met != nil {
		e.met.ScenariosScored.Add(float64(len(losses)))
	}

	stats, err := step(e, "compute_stats", func() (*domain.RunStats, error) {
		return ComputeStats(losses, params.Confidences)
	})
	if err != nil {
		run.Fail(err)
		e.observeTerminal(run, started)
		return run, err
	}
	run.Stats = stats

	if err := run.Transition(domain.RunComplete); err != nil {
		run.Fail(err)
		e.observeTerminal(run, started)
		return run, err
	}
	e.observeTerminal(run, started)

	e.log.Info().
		Str("run_id", run.ID.String()).
		Dur("elapsed", time.Since(started)).
		Float64("mean_loss", stats.Mean).
		Float64("max_loss", stats.Max).
		Msg("simulation run complete")
	return run, nil
}

// step runs one pipeline stage with duration instrumentation.
func step[T any](e *Engine, name string, fn func() (T, error)) (T, error) {
	started := time.Now()
	out, err := fn()
	if e.met != nil {
		e.met.StepDuration.WithLabelValues(name).Observe(time.Since(started).Seconds())
	}
	if err != nil {
		e.log.Error().Err(err).Str("step", name).Msg("simulation step failed")
		return out, err
	}
	e.log.Debug().Str("step", name).Dur("elapsed", time.Since(started)).Msg("simulation step done")
	return out, nil
}

func (e *Engine) observeTerminal(run *domain.SimulationRun, started time.Time) {
	if e.met == nil {
		if run.State == domain.RunFailed && run.Err != nil {
			e.log.Error().Err(run.Err).Str("run_id", run.ID.String()).Msg("simulation run failed")
		}
		return
	}
	e.met.RunsTotal.WithLabelValues(string(run.State)).Inc()
	e.met.RunDuration.Observe(time.Since(started).Seconds())
	if run.State == domain.RunFailed && run.Err != nil {
		e.log.Error().Err(run.Err).Str("run_id", run.ID.String()).Msg("simulation run failed")
	}
}

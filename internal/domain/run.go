package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Scenario is one simulated joint price realization across all modeled
// assets. Immutable after generation; ID is the scenario's index within its
// run and is stable for persistence and debugging.
type Scenario struct {
	ID     int
	Prices map[string]float64
}

// RunState is the lifecycle state of a SimulationRun.
type RunState string

const (
	RunCreated            RunState = "CREATED"
	RunScenariosGenerated RunState = "SCENARIOS_GENERATED"
	RunScoring            RunState = "SCORING"
	RunComplete           RunState = "COMPLETE"
	RunFailed             RunState = "FAILED"
)

var runTransitions = map[RunState][]RunState{
	RunCreated:            {RunScenariosGenerated, RunFailed},
	RunScenariosGenerated: {RunScoring, RunFailed},
	RunScoring:            {RunComplete, RunFailed},
}

// Terminal reports whether no further transition is allowed from s.
func (s RunState) Terminal() bool { return s == RunComplete || s == RunFailed }

// VaRPoint is the value-at-risk and expected shortfall at one confidence
// level, in USD of protocol bad debt.
type VaRPoint struct {
	Confidence float64 // e.g. 95, 99, 99.9
	VaR        float64
	ES         float64
}

// RunStats summarizes a completed run's loss distribution. StdDev is the
// population standard deviation: the loss vector is the full realized set
// for the run, not a sample from it.
type RunStats struct {
	Mean       float64
	Median     float64
	StdDev     float64
	Min        float64
	Max        float64
	ProbOfLoss float64 // share of scenarios with loss > 0
	VaR        []VaRPoint
}

// ByConfidence returns the VaR point for the given confidence level.
func (s *RunStats) ByConfidence(confidence float64) (VaRPoint, bool) {
	for _, p := range s.VaR {
		if p.Confidence == confidence {
			return p, true
		}
	}
	return VaRPoint{}, false
}

// SimulationRun is one Monte Carlo run: fixed parameters, generated
// scenarios, the realized loss vector, and derived statistics. Created in
// state CREATED and never mutated after reaching a terminal state; a new
// run supersedes it.
type SimulationRun struct {
	ID         uuid.UUID
	Seed       int64
	NScenarios int
	NUsers     int
	State      RunState
	StartedAt  time.Time
	FinishedAt time.Time

	Scenarios []Scenario
	Losses    []float64 // per-scenario aggregate bad debt, index = scenario ID
	Stats     *RunStats

	// Err records the failure cause for State == FAILED.
	Err error
}

// NewSimulationRun fixes a run's parameters. Scenario generation and scoring
// advance the state from here.
func NewSimulationRun(seed int64, nScenarios int) *SimulationRun {
	return &SimulationRun{
		ID:         uuid.New(),
		Seed:       seed,
		NScenarios: nScenarios,
		State:      RunCreated,
		StartedAt:  time.Now().UTC(),
	}
}

// Transition advances the run state, rejecting any move out of a terminal
// state or not on the lifecycle path.
func (r *SimulationRun) Transition(to RunState) error {
	for _, allowed := range runTransitions[r.State] {
		if allowed == to {
			r.State = to
			if to.Terminal() {
				r.FinishedAt = time.Now().UTC()
			}
			return nil
		}
	}
	return fmt.Errorf("invalid run transition %s -> %s", r.State, to)
}

// Fail moves the run to FAILED recording the cause. No-op if already
// terminal.
func (r *SimulationRun) Fail(err error) {
	if r.State.Terminal() {
		return
	}
	r.Err = err
	r.State = RunFailed
	r.FinishedAt = time.Now().UTC()
}

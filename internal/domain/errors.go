package domain

import (
	"errors"
	"fmt"
	"time"
)

// InsufficientDataError reports a price series too short to estimate from.
// A series with fewer than 2 points cannot form a single return; one with
// fewer than 3 points forms a return but no Bessel-corrected variance. The
// two cases are distinguished by Reason.
type InsufficientDataError struct {
	Symbol       string
	Observations int
	Reason       string
	From, To     time.Time
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: %d observations (%s), range %s..%s",
		e.Symbol, e.Observations, e.Reason,
		e.From.Format("2006-01-02"), e.To.Format("2006-01-02"))
}

// MisalignedSeriesError reports an asset pair whose return series share too
// few dates for a covariance estimate.
type MisalignedSeriesError struct {
	SymbolA, SymbolB string
	Overlap          int
	MinOverlap       int
}

func (e *MisalignedSeriesError) Error() string {
	return fmt.Sprintf("misaligned series %s/%s: %d overlapping dates, need %d",
		e.SymbolA, e.SymbolB, e.Overlap, e.MinOverlap)
}

// NonPositiveSemidefiniteError reports a covariance matrix that cannot
// parameterize a multivariate normal draw.
type NonPositiveSemidefiniteError struct {
	Dim           int
	MinEigenvalue float64
	Tolerance     float64
}

func (e *NonPositiveSemidefiniteError) Error() string {
	return fmt.Sprintf("covariance matrix (%dx%d) not positive semi-definite: min eigenvalue %g below tolerance %g",
		e.Dim, e.Dim, e.MinEigenvalue, e.Tolerance)
}

// MissingPriceError reports a position asset with no simulated price and no
// configured fallback. Silently pricing such an asset at zero would
// understate debt; treating it as unrecoverable would overstate shortfall.
type MissingPriceError struct {
	Symbol     string
	ScenarioID int
}

func (e *MissingPriceError) Error() string {
	return fmt.Sprintf("no simulated or fallback price for %s in scenario %d", e.Symbol, e.ScenarioID)
}

// ErrEmptyRun is returned when statistics are requested for a run with zero
// scenarios. A run over zero users is valid (all losses are zero); a run
// over zero scenarios has no loss distribution at all.
var ErrEmptyRun = errors.New("simulation run has no scenarios")

// ErrNoSeries is returned when a covariance estimate is requested over an
// empty asset universe. There is nothing to align, so no typed per-pair
// error applies.
var ErrNoSeries = errors.New("no asset series to model")

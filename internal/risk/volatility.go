// Package risk implements the Monte Carlo VaR core: volatility and
// covariance estimation from daily price history, correlated scenario
// generation, per-user solvency evaluation, and loss aggregation into
// VaR / expected-shortfall statistics.
package risk

import (
	"math"

	"github.com/defirisk/lendvar/internal/domain"
)

// TradingDaysPerYear scales daily volatility to annualized. Crypto markets
// trade every calendar day, so 365 rather than the equity 252.
const TradingDaysPerYear = 365

// VolatilityStat is an immutable snapshot of one asset's estimated
// volatility over a historical window. Recomputed whenever the window
// changes.
type VolatilityStat struct {
	Symbol        string
	DailyVol      float64
	AnnualizedVol float64
	SampleSize    int // number of returns used

	CurrentPrice  float64
	MinPrice      float64
	MaxPrice      float64
	PriceRangePct float64
}

// EstimateVolatility computes the sample standard deviation of an asset's
// daily log returns with Bessel's correction, plus the annualized figure.
// A series of constant prices yields exactly zero volatility. Fails with
// InsufficientDataError when the series cannot form a return (T < 2) or
// cannot form a variance estimate (T < 3).
func EstimateVolatility(series *domain.AssetSeries) (VolatilityStat, error) {
	from, to := series.DateRange()
	if series.Len() < 2 {
		return VolatilityStat{}, &domain.InsufficientDataError{
			Symbol:       series.Symbol,
			Observations: series.Len(),
			Reason:       "cannot form any return",
			From:         from, To: to,
		}
	}
	if series.Len() < 3 {
		return VolatilityStat{}, &domain.InsufficientDataError{
			Symbol:       series.Symbol,
			Observations: series.Len(),
			Reason:       "cannot form variance estimate",
			From:         from, To: to,
		}
	}

	returns := series.LogReturns()
	daily := sampleStdDev(returnValues(&returns))

	minP, maxP := series.Points[0].Close, series.Points[0].Close
	for _, p := range series.Points[1:] {
		minP = math.Min(minP, p.Close)
		maxP = math.Max(maxP, p.Close)
	}

	return VolatilityStat{
		Symbol:        series.Symbol,
		DailyVol:      daily,
		AnnualizedVol: daily * math.Sqrt(TradingDaysPerYear),
		SampleSize:    returns.Len(),
		CurrentPrice:  series.LastClose(),
		MinPrice:      minP,
		MaxPrice:      maxP,
		PriceRangePct: (maxP - minP) / minP * 100,
	}, nil
}

func returnValues(rs *domain.ReturnSeries) []float64 {
	vals := make([]float64, len(rs.Returns))
	for i, r := range rs.Returns {
		vals[i] = r.Return
	}
	return vals
}

// sampleStdDev is the Bessel-corrected standard deviation: the divisor is
// len(values)-1. Callers guarantee len(values) >= 2.
func sampleStdDev(values []float64) float64 {
	mean := meanOf(values)
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)-1))
}

func meanOf(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

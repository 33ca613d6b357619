// Package domain holds the data model shared by the risk engine, the data
// feeds, and the persistence layer: price series, borrower portfolios,
// simulated scenarios, and simulation runs.
package domain

import (
	"fmt"
	"math"
	"time"
)

// PricePoint is one daily close for an asset.
type PricePoint struct {
	Date  time.Time
	Close float64
}

// AssetSeries is an ordered daily close-price history for a single asset.
// Dates must be strictly increasing and prices strictly positive.
type AssetSeries struct {
	Symbol string
	Points []PricePoint
}

// Validate checks the series invariants: strictly increasing dates, no
// duplicate dates, all prices > 0.
func (s *AssetSeries) Validate() error {
	for i, p := range s.Points {
		if p.Close <= 0 {
			return fmt.Errorf("series %s: non-positive close %g at %s",
				s.Symbol, p.Close, p.Date.Format("2006-01-02"))
		}
		if i > 0 && !s.Points[i-1].Date.Before(p.Date) {
			return fmt.Errorf("series %s: dates not strictly increasing at %s",
				s.Symbol, p.Date.Format("2006-01-02"))
		}
	}
	return nil
}

// Len returns the number of price observations.
func (s *AssetSeries) Len() int { return len(s.Points) }

// DateRange returns the first and last observation dates. Zero times for an
// empty series.
func (s *AssetSeries) DateRange() (time.Time, time.Time) {
	if len(s.Points) == 0 {
		return time.Time{}, time.Time{}
	}
	return s.Points[0].Date, s.Points[len(s.Points)-1].Date
}

// LastClose returns the most recent close price, or 0 for an empty series.
func (s *AssetSeries) LastClose() float64 {
	if len(s.Points) == 0 {
		return 0
	}
	return s.Points[len(s.Points)-1].Close
}

// ReturnPoint is one daily log return, dated by the later of the two closes
// it was computed from.
type ReturnPoint struct {
	Date   time.Time
	Return float64
}

// ReturnSeries is the log-return transform of an AssetSeries. Its length is
// one less than the source series.
type ReturnSeries struct {
	Symbol  string
	Returns []ReturnPoint
}

// LogReturns computes r_t = ln(P_t / P_{t-1}) for each consecutive pair of
// closes. The caller is responsible for validating the series first; a
// series with fewer than two points yields an empty return series.
func (s *AssetSeries) LogReturns() ReturnSeries {
	rs := ReturnSeries{Symbol: s.Symbol}
	if len(s.Points) < 2 {
		return rs
	}
	rs.Returns = make([]ReturnPoint, 0, len(s.Points)-1)
	for i := 1; i < len(s.Points); i++ {
		rs.Returns = append(rs.Returns, ReturnPoint{
			Date:   s.Points[i].Date,
			Return: math.Log(s.Points[i].Close / s.Points[i-1].Close),
		})
	}
	return rs
}

// Len returns the number of return observations.
func (r ReturnSeries) Len() int { return len(r.Returns) }

package risk

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/defirisk/lendvar/internal/domain"
)

// CovarianceMatrix is the symmetric covariance and correlation of daily log
// returns across the modeled asset set. Symbols are sorted so matrix layout
// is deterministic for a given input set.
type CovarianceMatrix struct {
	Symbols []string
	index   map[string]int
	cov     *mat.SymDense
	corr    *mat.SymDense
}

// Dim returns the number of modeled assets.
func (m *CovarianceMatrix) Dim() int { return len(m.Symbols) }

// Covariance returns the covariance between two assets' daily returns.
func (m *CovarianceMatrix) Covariance(a, b string) (float64, bool) {
	i, okA := m.index[a]
	j, okB := m.index[b]
	if !okA || !okB {
		return 0, false
	}
	return m.cov.At(i, j), true
}

// Correlation returns the correlation between two assets' daily returns,
// clipped to [-1, 1].
func (m *CovarianceMatrix) Correlation(a, b string) (float64, bool) {
	i, okA := m.index[a]
	j, okB := m.index[b]
	if !okA || !okB {
		return 0, false
	}
	return m.corr.At(i, j), true
}

// Sym exposes the covariance matrix for sampling. Callers must not mutate.
func (m *CovarianceMatrix) Sym() *mat.SymDense { return m.cov }

// EstimateCovariance builds the covariance/correlation matrix for a set of
// asset series. Each pair is aligned on the intersection of its return
// dates before estimating; missing dates are never zero-filled, which would
// drag correlations toward zero. Fails with MisalignedSeriesError when any
// pair retains fewer than minOverlap shared dates, with
// InsufficientDataError when any single series cannot support a variance
// estimate on its own, and with ErrNoSeries for an empty asset set.
func EstimateCovariance(series []*domain.AssetSeries, minOverlap int) (*CovarianceMatrix, error) {
	if len(series) == 0 {
		return nil, domain.ErrNoSeries
	}
	symbols := make([]string, 0, len(series))
	bySymbol := make(map[string]*domain.AssetSeries, len(series))
	for _, s := range series {
		symbols = append(symbols, s.Symbol)
		bySymbol[s.Symbol] = s
	}
	sort.Strings(symbols)

	// Per-symbol date-keyed returns, dates kept sorted for stable
	// intersection order.
	returnsByDate := make(map[string]map[int64]float64, len(symbols))
	datesBySymbol := make(map[string][]int64, len(symbols))
	for _, sym := range symbols {
		s := bySymbol[sym]
		if _, err := EstimateVolatility(s); err != nil {
			return nil, err
		}
		rs := s.LogReturns()
		byDate := make(map[int64]float64, rs.Len())
		dates := make([]int64, 0, rs.Len())
		for _, r := range rs.Returns {
			d := dayKey(r.Date)
			byDate[d] = r.Return
			dates = append(dates, d)
		}
		returnsByDate[sym] = byDate
		datesBySymbol[sym] = dates
	}

	n := len(symbols)
	cov := mat.NewSymDense(n, nil)
	corr := mat.NewSymDense(n, nil)

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			a, b := symbols[i], symbols[j]
			ra, rb := alignedPair(datesBySymbol[a], returnsByDate[a], returnsByDate[b])
			if len(ra) < minOverlap {
				return nil, &domain.MisalignedSeriesError{
					SymbolA: a, SymbolB: b,
					Overlap: len(ra), MinOverlap: minOverlap,
				}
			}
			c := stat.Covariance(ra, rb, nil)
			cov.SetSym(i, j, c)
			if i == j {
				corr.SetSym(i, j, 1.0)
			} else {
				sa := sampleStdDev(ra)
				sb := sampleStdDev(rb)
				corr.SetSym(i, j, clipCorrelation(c, sa, sb))
			}
		}
	}

	return &CovarianceMatrix{
		Symbols: symbols,
		index:   indexOf(symbols),
		cov:     cov,
		corr:    corr,
	}, nil
}

// alignedPair gathers the two return vectors over the dates both symbols
// observed, in a's date order.
func alignedPair(datesA []int64, retA, retB map[int64]float64) ([]float64, []float64) {
	va := make([]float64, 0, len(datesA))
	vb := make([]float64, 0, len(datesA))
	for _, d := range datesA {
		b, ok := retB[d]
		if !ok {
			continue
		}
		va = append(va, retA[d])
		vb = append(vb, b)
	}
	return va, vb
}

// clipCorrelation normalizes covariance by the product of standard
// deviations and clips to [-1, 1] to guard against floating-point
// overshoot. Degenerate (zero-variance) series correlate at 0.
func clipCorrelation(cov, stdA, stdB float64) float64 {
	if stdA == 0 || stdB == 0 {
		return 0
	}
	r := cov / (stdA * stdB)
	if r > 1 {
		return 1
	}
	if r < -1 {
		return -1
	}
	return r
}

func indexOf(symbols []string) map[string]int {
	idx := make(map[string]int, len(symbols))
	for i, s := range symbols {
		idx[s] = i
	}
	return idx
}

// dayKey collapses a timestamp to its UTC calendar day for alignment.
func dayKey(t time.Time) int64 {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix()
}

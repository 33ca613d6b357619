package risk

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/defirisk/lendvar/internal/domain"
)

// psdTolerance is the relative eigenvalue tolerance below which a
// covariance matrix is rejected rather than repaired. Eigenvalues in
// [-tol*λmax, 0) are treated as numerical noise and clamped to zero;
// anything more negative means the matrix is genuinely not PSD.
const psdTolerance = 1e-8

// Generator draws correlated price scenarios from a multivariate normal
// return model, r ~ N(0, Σ). Zero drift is deliberate: the model evaluates
// one-day shock endpoints, not expected-return paths. All entropy consumed
// by a run flows through this one component, so determinism is a local
// contract: the same seed, Σ, base prices, and N reproduce scenarios
// bit-for-bit.
type Generator struct {
	cov        *CovarianceMatrix
	basePrices []float64 // aligned with cov.Symbols
	transform  *mat.Dense
	rng        *rand.Rand
}

// NewGenerator prepares a sampling transform from the covariance matrix via
// eigen-decomposition: Σ = Q Λ Qᵀ, transform = Q diag(√λ). Near-singular
// matrices (highly correlated asset sets) are tolerated by clamping tiny
// negative eigenvalues to zero; a matrix whose most negative eigenvalue
// exceeds tolerance fails with NonPositiveSemidefiniteError instead of
// propagating NaNs into every downstream statistic.
func NewGenerator(cov *CovarianceMatrix, basePrices map[string]float64, seed int64) (*Generator, error) {
	n := cov.Dim()
	if n == 0 {
		return nil, fmt.Errorf("covariance matrix has no assets")
	}

	base := make([]float64, n)
	for i, sym := range cov.Symbols {
		p, ok := basePrices[sym]
		if !ok || p <= 0 {
			return nil, fmt.Errorf("no positive base price for modeled asset %s", sym)
		}
		base[i] = p
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(cov.Sym(), true); !ok {
		return nil, &domain.NonPositiveSemidefiniteError{Dim: n, MinEigenvalue: math.NaN(), Tolerance: psdTolerance}
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	var maxEig float64
	for _, v := range vals {
		maxEig = math.Max(maxEig, v)
	}
	floor := -psdTolerance * math.Max(maxEig, 1)
	for i, v := range vals {
		if v < floor {
			return nil, &domain.NonPositiveSemidefiniteError{Dim: n, MinEigenvalue: v, Tolerance: floor}
		}
		if v < 0 {
			vals[i] = 0
		}
	}

	// transform = Q diag(sqrt(λ)); then r = transform · z for z ~ N(0, I).
	scaled := mat.NewDense(n, n, nil)
	for j := 0; j < n; j++ {
		s := math.Sqrt(vals[j])
		for i := 0; i < n; i++ {
			scaled.Set(i, j, vecs.At(i, j)*s)
		}
	}

	return &Generator{
		cov:        cov,
		basePrices: base,
		transform:  scaled,
		rng:        rand.New(rand.NewSource(seed)),
	}, nil
}

// Symbols returns the modeled asset set in matrix order.
func (g *Generator) Symbols() []string { return g.cov.Symbols }

// Generate draws n independent correlated return vectors and maps each to a
// price scenario P_i = P₀ ⊙ exp(r_i). Scenario IDs are the draw indices.
// Draw order is scenario-major, asset-minor, so output is reproducible for
// a fixed seed.
func (g *Generator) Generate(n int) ([]domain.Scenario, error) {
	if n <= 0 {
		return nil, domain.ErrEmptyRun
	}
	k := g.cov.Dim()
	scenarios := make([]domain.Scenario, n)
	z := make([]float64, k)
	r := make([]float64, k)

	for i := 0; i < n; i++ {
		for j := range z {
			z[j] = g.rng.NormFloat64()
		}
		mulVec(r, g.transform, z)

		prices := make(map[string]float64, k)
		for j, sym := range g.cov.Symbols {
			prices[sym] = g.basePrices[j] * math.Exp(r[j])
		}
		scenarios[i] = domain.Scenario{ID: i, Prices: prices}
	}
	return scenarios, nil
}

// mulVec computes dst = m · v without allocating.
func mulVec(dst []float64, m *mat.Dense, v []float64) {
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		var sum float64
		for j := 0; j < cols; j++ {
			sum += m.At(i, j) * v[j]
		}
		dst[i] = sum
	}
}

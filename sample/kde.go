package sample

import (
	"errors"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrTooFewPoints reports an attempt to fit a density estimate on
// fewer than two points.
var ErrTooFewPoints = errors.New("sample: kde needs at least two points")

// gaussianKDE is a Gaussian kernel density estimate over d-dimensional
// points with Scott's-rule bandwidth. Sampling works by picking a data
// point uniformly and perturbing it with correlated Gaussian noise
// drawn from the scaled sample covariance.
type gaussianKDE struct {
	points [][]float64
	dim    int

	// Lower Cholesky factor of h^2 * cov when the covariance is
	// positive definite, otherwise a per-dimension bandwidth fallback.
	lower *mat.TriDense
	diag  []float64
}

// fitKDE estimates the density of the given points. Every point must
// have the same dimension.
func fitKDE(points [][]float64) (*gaussianKDE, error) {
	n := len(points)
	if n < 2 {
		return nil, ErrTooFewPoints
	}

	d := len(points[0])
	flat := make([]float64, 0, n*d)
	for _, p := range points {
		flat = append(flat, p...)
	}

	x := mat.NewDense(n, d, flat)

	// Scott's rule: h = n^(-1/(d+4)) scales the sample covariance.
	h := math.Pow(float64(n), -1/float64(d+4))

	cov := mat.NewSymDense(d, nil)
	stat.CovarianceMatrix(cov, x, nil)
	cov.ScaleSym(h*h, cov)

	k := &gaussianKDE{points: points, dim: d}

	var chol mat.Cholesky
	if chol.Factorize(cov) {
		k.lower = mat.NewTriDense(d, mat.Lower, nil)
		chol.LTo(k.lower)
		return k, nil
	}

	// Degenerate covariance (clustered or near-duplicate points):
	// fall back to independent per-dimension bandwidths.
	k.diag = make([]float64, d)
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		mat.Col(col, j, x)
		k.diag[j] = h * stat.StdDev(col, nil)
	}

	return k, nil
}

// sample draws one point from the estimated density.
func (k *gaussianKDE) sample(rng *rand.Rand) []float64 {
	base := k.points[rng.Intn(len(k.points))]

	out := make([]float64, k.dim)

	if k.lower != nil {
		z := make([]float64, k.dim)
		for j := range z {
			z[j] = rng.NormFloat64()
		}

		for r := 0; r < k.dim; r++ {
			v := base[r]
			for c := 0; c <= r; c++ {
				v += k.lower.At(r, c) * z[c]
			}
			out[r] = v
		}

		return out
	}

	for j := range out {
		out[j] = base[j] + k.diag[j]*rng.NormFloat64()
	}

	return out
}

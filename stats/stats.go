// Package stats computes summary statistics over bank-construction
// diagnostics such as per-round acceptance ratios or post-hoc match
// distributions.
package stats

import "math"

// Summary holds single-pass summary statistics of a sample.
type Summary struct {
	Count    int
	Mean     float64
	Min      float64
	MinPos   int
	Max      float64
	MaxPos   int
	Variance float64
	StdDev   float64
	Skewness float64
	Last     float64
}

// emptySummary returns a zero-valued Summary with NaN moments.
func emptySummary() Summary {
	return Summary{
		Mean:     math.NaN(),
		Min:      math.NaN(),
		Max:      math.NaN(),
		Variance: math.NaN(),
		StdDev:   math.NaN(),
		Skewness: math.NaN(),
		Last:     math.NaN(),
	}
}

// Calculate computes all summary statistics in a single pass using
// Welford's online algorithm for numerical stability on the higher
// moments.
func Calculate(values []float64) Summary {
	n := len(values)
	if n == 0 {
		return emptySummary()
	}

	s := Summary{
		Count: n,
		Min:   values[0],
		Max:   values[0],
		Last:  values[n-1],
	}

	var mean, m2, m3 float64

	for i, v := range values {
		if v < s.Min {
			s.Min = v
			s.MinPos = i
		}

		if v > s.Max {
			s.Max = v
			s.MaxPos = i
		}

		// Welford update for mean and second/third central moments.
		count := float64(i + 1)
		delta := v - mean
		deltaN := delta / count
		term := delta * deltaN * float64(i)

		mean += deltaN
		m3 += term*deltaN*(count-2) - 3*deltaN*m2
		m2 += term
	}

	s.Mean = mean

	nf := float64(n)
	s.Variance = m2 / nf
	s.StdDev = math.Sqrt(s.Variance)

	if s.Variance > 0 {
		s.Skewness = math.Sqrt(nf) * m3 / math.Pow(m2, 1.5)
	}

	return s
}

package stats

import (
	"math"
	"testing"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestCalculateEmpty(t *testing.T) {
	s := Calculate(nil)

	if s.Count != 0 {
		t.Errorf("Count = %d, want 0", s.Count)
	}

	for name, v := range map[string]float64{
		"Mean":     s.Mean,
		"Min":      s.Min,
		"Max":      s.Max,
		"Variance": s.Variance,
		"StdDev":   s.StdDev,
		"Skewness": s.Skewness,
		"Last":     s.Last,
	} {
		if !math.IsNaN(v) {
			t.Errorf("%s = %g, want NaN", name, v)
		}
	}
}

func TestCalculate(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		mean     float64
		min      float64
		minPos   int
		max      float64
		maxPos   int
		variance float64
		skewness float64
		last     float64
	}{
		{"single", []float64{3.5}, 3.5, 3.5, 0, 3.5, 0, 0, 0, 3.5},
		{"constant", []float64{2, 2, 2, 2}, 2, 2, 0, 2, 0, 0, 0, 2},
		{"ramp", []float64{1, 2, 3, 4, 5}, 3, 1, 0, 5, 4, 2, 0, 5},
		{"skewed", []float64{1, 1, 1, 5}, 2, 1, 0, 5, 3, 3, 2 * 24 / math.Pow(12, 1.5), 5},
		{"duplicates", []float64{2, 1, 1, 3, 3}, 2, 1, 1, 3, 3, 0.8, 0, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Calculate(tt.values)

			if s.Count != len(tt.values) {
				t.Errorf("Count = %d, want %d", s.Count, len(tt.values))
			}

			if !almostEqual(s.Mean, tt.mean, 1e-12) {
				t.Errorf("Mean = %g, want %g", s.Mean, tt.mean)
			}

			if s.Min != tt.min || s.MinPos != tt.minPos {
				t.Errorf("Min = %g at %d, want %g at %d", s.Min, s.MinPos, tt.min, tt.minPos)
			}

			if s.Max != tt.max || s.MaxPos != tt.maxPos {
				t.Errorf("Max = %g at %d, want %g at %d", s.Max, s.MaxPos, tt.max, tt.maxPos)
			}

			if !almostEqual(s.Variance, tt.variance, 1e-12) {
				t.Errorf("Variance = %g, want %g", s.Variance, tt.variance)
			}

			if !almostEqual(s.StdDev, math.Sqrt(tt.variance), 1e-12) {
				t.Errorf("StdDev = %g, want %g", s.StdDev, math.Sqrt(tt.variance))
			}

			if !almostEqual(s.Skewness, tt.skewness, 1e-12) {
				t.Errorf("Skewness = %g, want %g", s.Skewness, tt.skewness)
			}

			if s.Last != tt.last {
				t.Errorf("Last = %g, want %g", s.Last, tt.last)
			}
		})
	}
}

func TestCalculateStability(t *testing.T) {
	// A large offset must not wreck the variance of a small spread.
	values := make([]float64, 1000)
	for i := range values {
		values[i] = 1e9 + float64(i%2)
	}

	s := Calculate(values)

	if !almostEqual(s.Variance, 0.25, 1e-6) {
		t.Errorf("Variance = %g, want 0.25", s.Variance)
	}
}

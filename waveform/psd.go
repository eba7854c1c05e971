package waveform

import (
	"errors"
	"math"
)

// Errors returned by PSD constructors.
var (
	ErrEmptyPSD       = errors.New("waveform: psd must have at least one bin")
	ErrInvalidDeltaF  = errors.New("waveform: frequency resolution must be positive")
	ErrNonPositivePSD = errors.New("waveform: psd values must be positive")
)

// PSD is a one-sided noise power spectral density sampled on a uniform
// frequency grid, bin k at frequency k*DeltaF. It is immutable after
// construction and shared by reference between the generator and its
// templates.
type PSD struct {
	DeltaF float64
	Data   []float64
}

// Len returns the number of frequency bins.
func (p *PSD) Len() int { return len(p.Data) }

// FlatPSD returns a white-noise PSD with unit power in every bin.
// Matches against a flat PSD reduce to plain overlaps, which keeps
// small synthetic tests easy to reason about.
func FlatPSD(deltaF float64, bins int) (*PSD, error) {
	if deltaF <= 0 {
		return nil, ErrInvalidDeltaF
	}

	if bins <= 0 {
		return nil, ErrEmptyPSD
	}

	data := make([]float64, bins)
	for i := range data {
		data[i] = 1
	}

	return &PSD{DeltaF: deltaF, Data: data}, nil
}

// AnalyticPSD returns an early-advanced-detector-shaped analytic noise
// curve:
//
//	Sn(f) = S0 * (x^-4.14 - 5*x^-2 + 111*(1 - x^2 + x^4/2)/(1 + x^2/2))
//
// with x = f/215 Hz. Bins below fFloor are set to the fFloor value so
// the whitening filter stays finite at DC.
func AnalyticPSD(deltaF float64, bins int, fFloor float64) (*PSD, error) {
	if deltaF <= 0 {
		return nil, ErrInvalidDeltaF
	}

	if bins <= 0 {
		return nil, ErrEmptyPSD
	}

	if fFloor <= 0 {
		fFloor = 10
	}

	const s0 = 1e-49

	curve := func(f float64) float64 {
		x := f / 215
		x2 := x * x
		return s0 * (math.Pow(x, -4.14) - 5/x2 + 111*(1-x2+x2*x2/2)/(1+x2/2))
	}

	floor := curve(fFloor)

	data := make([]float64, bins)
	for k := range data {
		f := float64(k) * deltaF
		if f < fFloor {
			data[k] = floor
			continue
		}
		data[k] = curve(f)
	}

	return &PSD{DeltaF: deltaF, Data: data}, nil
}

// PSDFromSeries wraps an externally supplied PSD sampled at deltaF.
// The slice is copied; every value must be positive.
func PSDFromSeries(deltaF float64, data []float64) (*PSD, error) {
	if deltaF <= 0 {
		return nil, ErrInvalidDeltaF
	}

	if len(data) == 0 {
		return nil, ErrEmptyPSD
	}

	out := make([]float64, len(data))
	for i, v := range data {
		if v <= 0 {
			return nil, ErrNonPositivePSD
		}
		out[i] = v
	}

	return &PSD{DeltaF: deltaF, Data: out}, nil
}

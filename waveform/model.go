package waveform

import (
	"errors"
	"fmt"
	"math"
)

// ErrModelRejected reports parameters the waveform model cannot
// synthesize. Callers building a bank should skip the candidate,
// not abort.
var ErrModelRejected = errors.New("waveform: model rejected parameters")

// Model synthesizes a frequency-domain waveform for a parameter set.
//
// Synthesize fills h[k] for k in [kMin, kMax) with the un-whitened
// strain at frequency k*deltaF and leaves the remaining bins zero.
// len(h) is the full one-sided bin count. Implementations return
// [ErrModelRejected] (possibly wrapped) for parameter sets outside
// their domain of validity.
type Model interface {
	Synthesize(h []complex128, deltaF float64, kMin, kMax int, p Params) error
}

// TaylorF2 is a stationary-phase-approximation inspiral model: a
// frequency-domain chirp with amplitude proportional to f^(-7/6) and a
// post-Newtonian phase truncated at 3.5PN order, including the leading
// aligned-spin-orbit term.
//
// It stands in for an externally supplied waveform generator: the bank
// machinery only depends on [Model].
type TaylorF2 struct{}

// Synthesize implements [Model].
//
// The phase is the SPA expansion in v = (pi*M*f)^(1/3):
//
//	psi(f) = 3/(128*eta*v^5) * (1 + c2*v^2 + c3*v^3 + c4*v^4 + ...)
//
// with the usual PN coefficients; an overall amplitude scale
// Mc^(5/6)*f^(-7/6) shapes the spectrum. Absolute amplitude is
// irrelevant here because templates are normalized downstream.
func (TaylorF2) Synthesize(h []complex128, deltaF float64, kMin, kMax int, p Params) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrModelRejected, err)
	}

	eta := p.Eta()
	if eta > 0.25+1e-9 {
		return ErrModelRejected
	}

	mSec := p.TotalMass() * MTSun
	mc := p.ChirpMass()
	delta := (p[ParamMass1] - p[ParamMass2]) / p.TotalMass()
	chi1 := p[ParamSpin1z]
	chi2 := p[ParamSpin2z]

	// Leading spin-orbit coupling entering the 1.5PN phase term.
	beta := (113.0/12.0)*(chi1+chi2)/2 + (113.0/12.0)*delta*(chi1-chi2)/2 -
		(76.0/12.0)*eta*(chi1+chi2)/2

	// PN phase coefficients (non-spinning part).
	c2 := 3715.0/756.0 + 55.0/9.0*eta
	c3 := -16*math.Pi + 4*beta
	c4 := 15293365.0/508032.0 + 27145.0/504.0*eta + 3085.0/72.0*eta*eta

	amp := math.Pow(mc, 5.0/6.0)

	if kMin < 1 {
		kMin = 1
	}
	if kMax > len(h) {
		kMax = len(h)
	}
	if kMin >= kMax {
		return ErrModelRejected
	}

	for k := kMin; k < kMax; k++ {
		f := float64(k) * deltaF
		v := math.Cbrt(math.Pi * mSec * f)
		v2 := v * v
		v5 := v2 * v2 * v

		psi := 3 / (128 * eta * v5) * (1 + c2*v2 + c3*v2*v + c4*v2*v2)

		a := amp * math.Pow(f, -7.0/6.0)
		s, c := math.Sincos(psi)
		h[k] = complex(a*c, -a*s)
	}

	return nil
}

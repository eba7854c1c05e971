package waveform

import (
	"errors"
	"math"
	"sort"
)

// Errors returned by parameter handling.
var (
	ErrMissingMass  = errors.New("waveform: params must contain mass1 and mass2")
	ErrInvalidFLow  = errors.New("waveform: low-frequency cutoff must be positive")
	ErrInvalidMass  = errors.New("waveform: component masses must be positive")
	ErrInvalidSpin  = errors.New("waveform: dimensionless spins must lie in [-1, 1]")
	ErrInvalidRange = errors.New("waveform: parameter range must satisfy min < max")
)

// MTSun is the solar mass expressed in seconds (G*Msun/c^3).
const MTSun = 4.925491025543576e-06

// Well-known parameter names.
const (
	ParamMass1  = "mass1"
	ParamMass2  = "mass2"
	ParamSpin1z = "spin1z"
	ParamSpin2z = "spin2z"
)

// Params is a named parameter vector describing one compact-binary
// candidate. Masses are in solar masses, spins are dimensionless
// aligned components. Unknown keys are carried through untouched so
// downstream tables keep every column they were given.
type Params map[string]float64

// Clone returns an independent copy of p.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Names returns the parameter names in sorted order.
func (p Params) Names() []string {
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Validate checks that the mass and spin entries describe a physical
// system.
func (p Params) Validate() error {
	m1, ok1 := p[ParamMass1]
	m2, ok2 := p[ParamMass2]
	if !ok1 || !ok2 {
		return ErrMissingMass
	}

	if m1 <= 0 || m2 <= 0 {
		return ErrInvalidMass
	}

	for _, key := range []string{ParamSpin1z, ParamSpin2z} {
		if s, ok := p[key]; ok && (s < -1 || s > 1) {
			return ErrInvalidSpin
		}
	}

	return nil
}

// TotalMass returns mass1 + mass2 in solar masses.
func (p Params) TotalMass() float64 {
	return p[ParamMass1] + p[ParamMass2]
}

// ChirpMass returns the chirp mass Mc = (m1*m2)^(3/5) / (m1+m2)^(1/5).
func (p Params) ChirpMass() float64 {
	m1, m2 := p[ParamMass1], p[ParamMass2]

	mt := m1 + m2
	if mt <= 0 {
		return 0
	}

	return math.Pow(m1*m2, 0.6) / math.Pow(mt, 0.2)
}

// Eta returns the symmetric mass ratio m1*m2 / (m1+m2)^2, in (0, 0.25].
func (p Params) Eta() float64 {
	m1, m2 := p[ParamMass1], p[ParamMass2]

	mt := m1 + m2
	if mt <= 0 {
		return 0
	}

	return m1 * m2 / (mt * mt)
}

// MassRatio returns q = max(m1,m2) / min(m1,m2), always >= 1 for
// physical masses.
func (p Params) MassRatio() float64 {
	m1, m2 := p[ParamMass1], p[ParamMass2]
	if m1 < m2 {
		m1, m2 = m2, m1
	}

	if m2 <= 0 {
		return math.Inf(1)
	}

	return m1 / m2
}

// Tau0 returns the Newtonian chirp time in seconds from the given
// low-frequency cutoff:
//
//	tau0 = 5 / (256 * pi * fLow * eta) * (pi * M * fLow)^(-5/3)
//
// with M the total mass in seconds. Tau0 is the leading-order time a
// signal spends above fLow and serves as the locality coordinate for
// bank windowing.
func (p Params) Tau0(fLow float64) float64 {
	eta := p.Eta()
	if eta <= 0 || fLow <= 0 {
		return 0
	}

	mSec := p.TotalMass() * MTSun

	return 5 / (256 * math.Pi * fLow * eta) * math.Pow(math.Pi*mSec*fLow, -5.0/3.0)
}

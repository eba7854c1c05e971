// Package sample draws candidate parameter sets for stochastic bank
// construction, either uniformly over configured ranges or from a
// kernel density estimate fitted to recently accepted templates.
package sample

import (
	"errors"
	"math"
	"math/rand"
	"sort"

	"github.com/hjlee6674/pycbc/waveform"
)

// Errors returned during sampler construction.
var (
	ErrNoRanges     = errors.New("sample: at least one parameter range is required")
	ErrBadRange     = errors.New("sample: parameter range must satisfy min < max")
	ErrBadTolerance = errors.New("sample: tolerance must be positive")
	ErrBadFLow      = errors.New("sample: low-frequency cutoff must be positive")
)

// Mode selects the proposal distribution for a sampling round.
type Mode int

// Sampling modes.
const (
	ModeUniform Mode = iota // independent uniform draws over the ranges
	ModeKDE                 // resample a KDE of recent acceptances
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ModeUniform:
		return "uniform"
	case ModeKDE:
		return "kde"
	default:
		return "unknown"
	}
}

// Range is an inclusive lower, exclusive upper draw interval.
type Range struct {
	Min float64
	Max float64
}

// Config describes the proposal distribution and the cuts applied to
// raw draws.
type Config struct {
	// Ranges gives the free parameters and their uniform draw
	// intervals. KDE proposals are clipped back to these intervals
	// by rejection.
	Ranges map[string]Range

	// Fixed holds parameters pinned to a constant value. They are
	// excluded from the KDE fit and re-applied to every draw.
	Fixed map[string]float64

	// FLow is the low-frequency cutoff used for chirp-time
	// windowing of draws.
	FLow float64

	// Tolerance sets the batch size of a sampling round to
	// round(1/Tolerance).
	Tolerance float64

	// RetryCap bounds the number of raw draws a single
	// DrawInWindow call may spend. Zero selects the default of
	// 1000. Tests set a small cap for determinism.
	RetryCap int

	// HistoryCap bounds how many recent acceptances feed the KDE.
	// Zero selects the default of 300.
	HistoryCap int

	// Cuts applied after each draw; zero values disable a cut.
	MaxMassRatio float64
	MaxTotalMass float64
	MinChirpMass float64
	MaxChirpMass float64

	// Constraint, when non-nil, must return true for a draw to
	// survive.
	Constraint func(waveform.Params) bool

	// ChirpTime overrides how a draw's chirp time is computed for
	// windowing. Nil selects Params.Tau0 at FLow.
	ChirpTime func(waveform.Params) float64

	// Seed initializes the private random stream.
	Seed int64
}

const (
	defaultRetryCap   = 1000
	defaultHistoryCap = 300
)

// Sampler draws candidate parameter sets. It owns a private random
// stream and the acceptance history backing the KDE mode; it is not
// safe for concurrent use.
type Sampler struct {
	cfg   Config
	rng   *rand.Rand
	names []string // sorted free parameter names

	history  []waveform.Params
	kde      *gaussianKDE
	kdeStale bool
}

// NewSampler validates cfg and builds a Sampler.
func NewSampler(cfg Config) (*Sampler, error) {
	if len(cfg.Ranges) == 0 {
		return nil, ErrNoRanges
	}

	for _, r := range cfg.Ranges {
		if r.Min >= r.Max {
			return nil, ErrBadRange
		}
	}

	if cfg.Tolerance <= 0 {
		return nil, ErrBadTolerance
	}

	if cfg.FLow <= 0 {
		return nil, ErrBadFLow
	}

	if cfg.RetryCap <= 0 {
		cfg.RetryCap = defaultRetryCap
	}

	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = defaultHistoryCap
	}

	names := make([]string, 0, len(cfg.Ranges))
	for name := range cfg.Ranges {
		names = append(names, name)
	}
	sort.Strings(names)

	return &Sampler{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		names: names,
	}, nil
}

// BatchSize returns the number of candidates a full sampling round
// aims for: round(1/tolerance), at least one.
func (s *Sampler) BatchSize() int {
	n := int(math.Round(1 / s.cfg.Tolerance))
	if n < 1 {
		n = 1
	}

	return n
}

// Record appends accepted parameter sets to the KDE history, keeping
// only the most recent HistoryCap entries.
func (s *Sampler) Record(ps ...waveform.Params) {
	if len(ps) == 0 {
		return
	}

	s.history = append(s.history, ps...)
	if excess := len(s.history) - s.cfg.HistoryCap; excess > 0 {
		s.history = append(s.history[:0], s.history[excess:]...)
	}

	s.kdeStale = true
}

// HistoryLen returns the number of recorded acceptances available to
// the KDE.
func (s *Sampler) HistoryLen() int { return len(s.history) }

// DrawInWindow draws candidates whose chirp time lies in [lo, hi),
// accumulating until a full batch is collected or the retry budget is
// exhausted, in which case the short (possibly empty) batch is
// returned. A window with hi <= lo disables the chirp-time filter.
func (s *Sampler) DrawInWindow(mode Mode, lo, hi float64) []waveform.Params {
	want := s.BatchSize()
	out := make([]waveform.Params, 0, want)

	for attempt := 0; attempt < s.cfg.RetryCap && len(out) < want; attempt++ {
		p, ok := s.draw(mode)
		if !ok || !s.survivesCuts(p) {
			continue
		}

		if hi > lo {
			if tau0 := s.chirpTime(p); tau0 < lo || tau0 >= hi {
				continue
			}
		}

		out = append(out, p)
	}

	return out
}

// chirpTime returns the windowing coordinate of a draw.
func (s *Sampler) chirpTime(p waveform.Params) float64 {
	if s.cfg.ChirpTime != nil {
		return s.cfg.ChirpTime(p)
	}

	return p.Tau0(s.cfg.FLow)
}

// draw proposes one parameter set in the requested mode. KDE draws
// fall back to uniform until at least two acceptances are recorded.
func (s *Sampler) draw(mode Mode) (waveform.Params, bool) {
	if mode == ModeKDE && len(s.history) >= 2 {
		return s.drawKDE()
	}

	return s.drawUniform(), true
}

func (s *Sampler) drawUniform() waveform.Params {
	p := make(waveform.Params, len(s.names)+len(s.cfg.Fixed))

	for _, name := range s.names {
		r := s.cfg.Ranges[name]
		p[name] = r.Min + s.rng.Float64()*(r.Max-r.Min)
	}

	s.applyFixed(p)

	return p
}

func (s *Sampler) drawKDE() (waveform.Params, bool) {
	if s.kdeStale || s.kde == nil {
		points := make([][]float64, 0, len(s.history))
		for _, h := range s.history {
			row := make([]float64, len(s.names))
			for j, name := range s.names {
				row[j] = h[name]
			}
			points = append(points, row)
		}

		kde, err := fitKDE(points)
		if err != nil {
			return s.drawUniform(), true
		}

		s.kde = kde
		s.kdeStale = false
	}

	row := s.kde.sample(s.rng)

	p := make(waveform.Params, len(s.names)+len(s.cfg.Fixed))
	for j, name := range s.names {
		r := s.cfg.Ranges[name]
		if row[j] < r.Min || row[j] >= r.Max {
			return nil, false
		}
		p[name] = row[j]
	}

	s.applyFixed(p)

	return p, true
}

func (s *Sampler) applyFixed(p waveform.Params) {
	for name, v := range s.cfg.Fixed {
		p[name] = v
	}
}

// survivesCuts applies the configured mass-ratio, total-mass,
// chirp-mass and predicate cuts. Mass cuts only apply to draws that
// carry mass parameters; abstract parameter spaces pass through.
func (s *Sampler) survivesCuts(p waveform.Params) bool {
	_, hasM1 := p[waveform.ParamMass1]
	_, hasM2 := p[waveform.ParamMass2]

	if hasM1 || hasM2 {
		if p.Validate() != nil {
			return false
		}

		if s.cfg.MaxMassRatio > 0 && p.MassRatio() > s.cfg.MaxMassRatio {
			return false
		}

		if s.cfg.MaxTotalMass > 0 && p.TotalMass() > s.cfg.MaxTotalMass {
			return false
		}

		mc := p.ChirpMass()
		if s.cfg.MinChirpMass > 0 && mc < s.cfg.MinChirpMass {
			return false
		}

		if s.cfg.MaxChirpMass > 0 && mc > s.cfg.MaxChirpMass {
			return false
		}
	}

	if s.cfg.Constraint != nil && !s.cfg.Constraint(p) {
		return false
	}

	return true
}

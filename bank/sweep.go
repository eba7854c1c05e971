package bank

import (
	"errors"

	"go.uber.org/zap"

	"github.com/hjlee6674/pycbc/sample"
)

// Errors returned by sweep configuration.
var (
	ErrInvalidWindow    = errors.New("bank: sweep window must satisfy start < end and crawl > 0")
	ErrInvalidTolerance = errors.New("bank: tolerance must lie in (0, 1)")
	ErrNilBank          = errors.New("bank: bank must not be nil")
	ErrNilSampler       = errors.New("bank: sampler must not be nil")
	ErrNilGenerator     = errors.New("bank: generator must not be nil")
)

// State names the phase the sweep driver is in.
type State int

// Sweep states.
const (
	StateUniformRound State = iota
	StateKDERound
	StateConverged
	StateDone
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateUniformRound:
		return "uniform-round"
	case StateKDERound:
		return "kde-round"
	case StateConverged:
		return "converged"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// SweepConfig controls the chirp-time region sweep.
type SweepConfig struct {
	// Tau0Start and Tau0End delimit the sweep in chirp time.
	Tau0Start float64
	Tau0End   float64

	// Crawl is the region width; regions advance by Crawl/2 so
	// consecutive regions overlap by half and boundary effects are
	// absorbed by the next region.
	Crawl float64

	// Tolerance is the acceptance ratio below which a region counts
	// as converged.
	Tolerance float64

	// MinUniformRounds is how many uniform rounds run before the
	// acceptance ratio is trusted as a convergence metric. Zero
	// selects the default of 10.
	MinUniformRounds int

	// MinKDEBankSize is the bank size above which KDE refinement
	// rounds are interleaved. Zero selects the default of 10.
	MinKDEBankSize int

	// Logger receives region and round diagnostics. Nil selects a
	// nop logger.
	Logger *zap.Logger
}

// Sweeper drives bank construction over overlapping chirp-time
// regions, alternating uniform and KDE sampling rounds until each
// region converges, then culling templates the sweep has moved past.
type Sweeper struct {
	bank    *Bank
	sampler *sample.Sampler
	gen     Generator
	cfg     SweepConfig
	log     *zap.Logger

	state   State
	regions int
	ratios  []float64 // acceptance ratio of every round, in order
}

// NewSweeper validates the configuration and builds a Sweeper.
func NewSweeper(b *Bank, s *sample.Sampler, gen Generator, cfg SweepConfig) (*Sweeper, error) {
	if b == nil {
		return nil, ErrNilBank
	}

	if s == nil {
		return nil, ErrNilSampler
	}

	if gen == nil {
		return nil, ErrNilGenerator
	}

	if cfg.Tau0Start >= cfg.Tau0End || cfg.Crawl <= 0 {
		return nil, ErrInvalidWindow
	}

	if cfg.Tolerance <= 0 || cfg.Tolerance >= 1 {
		return nil, ErrInvalidTolerance
	}

	if cfg.MinUniformRounds <= 0 {
		cfg.MinUniformRounds = 10
	}

	if cfg.MinKDEBankSize <= 0 {
		cfg.MinKDEBankSize = 10
	}

	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Sweeper{
		bank:    b,
		sampler: s,
		gen:     gen,
		cfg:     cfg,
		log:     cfg.Logger,
		state:   StateUniformRound,
	}, nil
}

// State returns the driver's current phase.
func (s *Sweeper) State() State { return s.state }

// Regions returns the number of regions completed so far.
func (s *Sweeper) Regions() int { return s.regions }

// Ratios returns the acceptance ratio of every sampling round run so
// far, in order.
func (s *Sweeper) Ratios() []float64 { return s.ratios }

// Run sweeps regions [start, start+crawl) from Tau0Start until
// Tau0End, advancing by crawl/2. A uniform round that produces no
// candidates at all while the bank is non-empty means the reachable
// parameter space is exhausted and ends the sweep early.
func (s *Sweeper) Run() error {
	active := true

	for start := s.cfg.Tau0Start; active && start < s.cfg.Tau0End; start += s.cfg.Crawl / 2 {
		s.log.Info("starting region",
			zap.Float64("tau0_lo", start),
			zap.Float64("tau0_hi", start+s.cfg.Crawl),
			zap.Int("bank_size", s.bank.Len()))

		if err := s.buildRegion(start, start+s.cfg.Crawl, &active); err != nil {
			s.state = StateDone
			return err
		}

		s.state = StateConverged
		s.regions++

		// Two bucket widths behind the window is beyond the ±1
		// bucket comparison horizon, so those templates can never
		// be compared against again.
		if thr := s.bank.cfg.Tau0Threshold; thr > 0 {
			s.bank.Cull(start - 2*thr)
		}
	}

	s.state = StateDone

	s.log.Info("sweep finished",
		zap.Int("regions", s.regions),
		zap.Int("bank_size", s.bank.Len()))

	return nil
}

// buildRegion runs sampling rounds on one region until the uniform
// acceptance ratio drops to the tolerance.
func (s *Sweeper) buildRegion(lo, hi float64, active *bool) error {
	round := 0

	for {
		round++
		s.state = StateUniformRound

		cands := s.sampler.DrawInWindow(sample.ModeUniform, lo, hi)
		if len(cands) == 0 && s.bank.Len() > 0 {
			// Retry budget exhausted with nothing in-window:
			// the space this sweep can reach is filled.
			s.log.Info("sampler exhausted, ending sweep",
				zap.Float64("tau0_lo", lo),
				zap.Float64("tau0_hi", hi))
			*active = false
			return nil
		}

		added, ratio, err := s.bank.CheckParams(s.gen, cands)
		if err != nil {
			return err
		}

		s.sampler.Record(added...)
		s.ratios = append(s.ratios, ratio)

		s.log.Debug("uniform round",
			zap.Int("round", round),
			zap.Int("drawn", len(cands)),
			zap.Int("added", len(added)),
			zap.Float64("ratio", ratio),
			zap.Int("bank_size", s.bank.Len()))

		if s.bank.Len() > s.cfg.MinKDEBankSize {
			if err := s.kdeRounds(lo, hi); err != nil {
				return err
			}
		}

		if round > s.cfg.MinUniformRounds && ratio <= s.cfg.Tolerance {
			s.log.Info("region converged",
				zap.Int("rounds", round),
				zap.Float64("ratio", ratio),
				zap.Int("bank_size", s.bank.Len()))
			return nil
		}
	}
}

// kdeRounds runs KDE refinement rounds while they stay productive:
// as long as the current round's acceptance ratio exceeds half the
// first KDE round's ratio, density-guided sampling is still finding
// uncovered pockets.
func (s *Sweeper) kdeRounds(lo, hi float64) error {
	s.state = StateKDERound
	first := -1.0

	for {
		cands := s.sampler.DrawInWindow(sample.ModeKDE, lo, hi)
		if len(cands) == 0 {
			return nil
		}

		added, ratio, err := s.bank.CheckParams(s.gen, cands)
		if err != nil {
			return err
		}

		s.sampler.Record(added...)
		s.ratios = append(s.ratios, ratio)

		s.log.Debug("kde round",
			zap.Int("drawn", len(cands)),
			zap.Int("added", len(added)),
			zap.Float64("ratio", ratio),
			zap.Int("bank_size", s.bank.Len()))

		if first < 0 {
			first = ratio
		}

		if first <= 0 || ratio <= first/2 {
			return nil
		}
	}
}

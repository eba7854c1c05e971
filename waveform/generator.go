package waveform

import (
	"errors"
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-vecmath"
)

// Errors returned by the generator.
var (
	ErrInvalidSampleRate = errors.New("waveform: sample rate must be positive")
	ErrInvalidDuration   = errors.New("waveform: duration must be positive")
	ErrCutoffOrder       = errors.New("waveform: low cutoff must be less than high cutoff")
	ErrNilModel          = errors.New("waveform: model must not be nil")
	ErrNilPSD            = errors.New("waveform: psd must not be nil")
	ErrPSDGrid           = errors.New("waveform: psd grid does not cover the generator grid")
	ErrZeroWaveform      = errors.New("waveform: model produced a zero waveform")
	ErrCulledTemplate    = errors.New("waveform: template has been culled")
	ErrGridMismatch      = errors.New("waveform: templates live on different frequency grids")
)

// Template is one whitened, normalized frequency-domain waveform with
// the parameters that produced it.
//
// Sigma is the pre-normalization sensitivity norm sqrt(4*deltaF*sum|h|^2);
// ratios of sigmas bound the achievable match between two templates.
// Tau0 is the Newtonian chirp time at the generator's low cutoff.
//
// Cull drops the waveform array to free memory once no further match
// computations against the template are expected; a culled template
// keeps Params, Tau0 and Sigma, which is all the output table needs.
type Template struct {
	Params Params
	Tau0   float64
	Sigma  float64

	freq   []complex128 // one-sided whitened spectrum, unit self-overlap
	n      int          // full FFT length freq belongs to
	culled bool
}

// NewTemplate wraps externally supplied metadata as a live template
// without a waveform array. [Generator.Match] rejects such templates;
// custom [bank] matchers that compute matches from parameters alone do
// not need the array.
func NewTemplate(p Params, tau0, sigma float64) *Template {
	return &Template{Params: p.Clone(), Tau0: tau0, Sigma: sigma}
}

// Culled reports whether the waveform array has been dropped.
func (t *Template) Culled() bool { return t.culled }

// Cull irreversibly discards the waveform array. Params, Tau0 and
// Sigma survive.
func (t *Template) Cull() {
	t.freq = nil
	t.culled = true
}

// Config holds the time/frequency grid and band limits for waveform
// generation. The FFT length is the smallest power of two holding
// SampleRate*Duration samples; the frequency resolution follows as
// SampleRate / fftLen.
type Config struct {
	SampleRate float64 // Hz
	Duration   float64 // buffer length in seconds
	FLow       float64 // low-frequency cutoff in Hz
	FHigh      float64 // high-frequency cutoff in Hz
}

// Validate checks the Config fields.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return ErrInvalidSampleRate
	}

	if c.Duration <= 0 {
		return ErrInvalidDuration
	}

	if c.FLow <= 0 || c.FHigh <= 0 || c.FLow >= c.FHigh {
		return ErrCutoffOrder
	}

	return nil
}

// fftLen returns the full FFT length for the configured grid.
func (c *Config) fftLen() int {
	return nextPowerOf2(int(math.Round(c.SampleRate * c.Duration)))
}

// Grid returns the one-sided bin count and frequency resolution the
// config implies, so callers can construct a matching PSD before the
// generator exists.
func (c *Config) Grid() (bins int, deltaF float64) {
	n := c.fftLen()
	return n/2 + 1, c.SampleRate / float64(n)
}

// Generator produces templates on a fixed frequency grid and computes
// matches between them via FFT correlation.
//
// A Generator owns scratch buffers and an FFT plan; it is not safe for
// concurrent use. Bank construction is single-threaded, so nothing is
// lost.
type Generator struct {
	cfg    Config
	model  Model
	psd    *PSD
	plan   *algofft.Plan[complex128]
	n      int // full FFT length
	bins   int // one-sided bin count, n/2 + 1
	kMin   int // first generated bin
	kMax   int // one past the last generated bin
	deltaF float64
	whiten []float64 // 1/sqrt(Sn) on the one-sided grid

	// scratch for Generate and Match
	re, im, mag []float64
	corr, tdom  []complex128
}

// NewGenerator builds a Generator for the given grid, waveform model
// and noise spectrum. The PSD must be sampled at the generator's
// frequency resolution and cover at least the one-sided grid.
func NewGenerator(cfg Config, model Model, psd *PSD) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if model == nil {
		return nil, ErrNilModel
	}

	if psd == nil {
		return nil, ErrNilPSD
	}

	n := cfg.fftLen()
	bins := n/2 + 1
	deltaF := cfg.SampleRate / float64(n)

	if psd.Len() < bins {
		return nil, ErrPSDGrid
	}

	if relDiff(psd.DeltaF, deltaF) > 1e-9 {
		return nil, ErrPSDGrid
	}

	plan, err := algofft.NewPlan64(n)
	if err != nil {
		return nil, fmt.Errorf("waveform: failed to create FFT plan: %w", err)
	}

	g := &Generator{
		cfg:    cfg,
		model:  model,
		psd:    psd,
		plan:   plan,
		n:      n,
		bins:   bins,
		deltaF: deltaF,
		kMin:   int(math.Ceil(cfg.FLow / deltaF)),
		kMax:   bins,
		re:     make([]float64, n),
		im:     make([]float64, n),
		mag:    make([]float64, n),
		corr:   make([]complex128, n),
		tdom:   make([]complex128, n),
	}

	if k := int(cfg.FHigh / deltaF); k+1 < g.kMax {
		g.kMax = k + 1
	}

	g.whiten = make([]float64, bins)
	for k := g.kMin; k < g.kMax; k++ {
		g.whiten[k] = 1 / math.Sqrt(psd.Data[k])
	}

	return g, nil
}

// FLow returns the configured low-frequency cutoff, recorded alongside
// the output bank.
func (g *Generator) FLow() float64 { return g.cfg.FLow }

// DeltaF returns the frequency resolution of the template grid.
func (g *Generator) DeltaF() float64 { return g.deltaF }

// Generate synthesizes, whitens and normalizes a template for p.
//
// Model rejections propagate (wrapped) so callers can skip the
// candidate; any returned template has unit self-overlap.
func (g *Generator) Generate(p Params) (*Template, error) {
	h := make([]complex128, g.bins)

	if err := g.model.Synthesize(h, g.deltaF, g.kMin, g.kMax, p); err != nil {
		return nil, fmt.Errorf("waveform: generate: %w", err)
	}

	for k := g.kMin; k < g.kMax; k++ {
		w := g.whiten[k]
		h[k] = complex(real(h[k])*w, imag(h[k])*w)
	}

	// Band-limit: anything the model left outside [kMin, kMax) is noise.
	for k := 0; k < g.kMin; k++ {
		h[k] = 0
	}
	for k := g.kMax; k < g.bins; k++ {
		h[k] = 0
	}

	re, im := g.re[:g.bins], g.im[:g.bins]
	for k, c := range h {
		re[k] = real(c)
		im[k] = imag(c)
	}

	power := vecmath.DotProduct(re, re) + vecmath.DotProduct(im, im)
	if power <= 0 || math.IsNaN(power) || math.IsInf(power, 0) {
		return nil, ErrZeroWaveform
	}

	scale := 1 / math.Sqrt(power)
	for k := range h {
		h[k] = complex(real(h[k])*scale, imag(h[k])*scale)
	}

	return &Template{
		Params: p.Clone(),
		Tau0:   p.Tau0(g.cfg.FLow),
		Sigma:  math.Sqrt(4 * g.deltaF * power),
		freq:   h,
		n:      g.n,
	}, nil
}

// Match returns the maximum-overlap match between two normalized
// templates: the correlation spectrum a*conj(b) is inverse-transformed
// and the peak complex magnitude over all relative time shifts is the
// match. Taking the magnitude also maximizes over relative phase.
//
// The result lies in [0, 1] up to small numerical overshoot.
func (g *Generator) Match(a, b *Template) (float64, error) {
	if a.Culled() || b.Culled() || a.freq == nil || b.freq == nil {
		return 0, ErrCulledTemplate
	}

	if a.n != g.n || b.n != g.n {
		return 0, ErrGridMismatch
	}

	for k := 0; k < g.bins; k++ {
		bc := b.freq[k]
		g.corr[k] = a.freq[k] * complex(real(bc), -imag(bc))
	}
	for k := g.bins; k < g.n; k++ {
		g.corr[k] = 0
	}

	if err := g.plan.Inverse(g.tdom, g.corr); err != nil {
		return 0, fmt.Errorf("waveform: inverse FFT failed: %w", err)
	}

	for i, c := range g.tdom {
		g.re[i] = real(c)
		g.im[i] = imag(c)
	}
	vecmath.Power(g.mag, g.re, g.im)

	// Inverse includes the 1/n factor; undo it so unit self-overlap
	// maps to a match of exactly one at zero lag.
	return float64(g.n) * math.Sqrt(vecmath.MaxAbs(g.mag)), nil
}

// relDiff returns |a-b| / max(|a|, |b|), zero when both are zero.
func relDiff(a, b float64) float64 {
	d := math.Abs(a - b)
	if d == 0 {
		return 0
	}

	m := math.Max(math.Abs(a), math.Abs(b))

	return d / m
}

// nextPowerOf2 returns the smallest power of two >= n.
func nextPowerOf2(n int) int {
	if n <= 1 {
		return 1
	}

	p := 1
	for p < n {
		p <<= 1
	}

	return p
}

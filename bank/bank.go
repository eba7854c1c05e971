// Package bank implements an online stochastic template bank: candidates
// are offered one at a time and accepted only when no existing template
// already matches them above the minimal-match threshold. A
// triangle-inequality bound on matches prunes most of the pairwise
// comparisons a naive membership test would need.
package bank

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hjlee6674/pycbc/waveform"
)

// Errors returned by bank construction and insertion.
var (
	ErrInvalidMinimalMatch = errors.New("bank: minimal match must lie in (0, 1)")
	ErrInvalidSlack        = errors.New("bank: slack must be non-negative")
	ErrNilMatcher          = errors.New("bank: matcher must not be nil")
	ErrNilTemplate         = errors.New("bank: template must not be nil")
)

// Matcher computes the match between two templates.
// *waveform.Generator satisfies it.
type Matcher interface {
	Match(a, b *waveform.Template) (float64, error)
}

// Generator extends Matcher with template synthesis; the concrete
// implementation is *waveform.Generator.
type Generator interface {
	Matcher
	Generate(p waveform.Params) (*waveform.Template, error)
}

// DefaultSlack is the safety margin added to every triangle-inequality
// bound update. The value is inherited from long-standing practice;
// its exact numerical derivation is unverified, which is why it is a
// configuration knob rather than a constant.
const DefaultSlack = 0.10

// Config controls bank membership testing.
type Config struct {
	// MinimalMatch is the redundancy threshold: a candidate
	// matching any template above it is rejected.
	MinimalMatch float64

	// UseSigmaBound enables the cheap sigma-ratio prefilter
	// min(sigma_a/sigma_b, sigma_b/sigma_a), a valid upper bound on
	// the match derived from relative sensitivities.
	UseSigmaBound bool

	// Tau0Threshold, when positive, is the chirp-time bucket width:
	// membership tests only compare against templates whose bucket
	// lies within one of the candidate's. Zero disables temporal
	// windowing.
	Tau0Threshold float64

	// Slack is the additive safety margin on triangle-bound
	// updates. Zero selects DefaultSlack.
	Slack float64

	// Logger receives per-candidate diagnostics. Nil selects a nop
	// logger.
	Logger *zap.Logger
}

// entry is one accepted template with its pruning metadata.
//
// bounds[i] is a proven upper bound on the true match between this
// entry and the bank entry at index against[i]; the soundness of the
// whole pruning scheme rests on that inequality never being violated.
// Culling clears both slices together with the waveform.
type entry struct {
	tmpl    *waveform.Template
	bucket  int
	against []int
	bounds  []float64
}

func (e *entry) addBound(idx int, bound float64) {
	e.against = append(e.against, idx)
	e.bounds = append(e.bounds, bound)
}

// Bank is an ordered template sequence, insertion order being
// acceptance order. It is exclusively owned by a single goroutine.
type Bank struct {
	cfg     Config
	matcher Matcher
	log     *zap.Logger

	entries []*entry

	// buckets maps a chirp-time bucket to the indices of entries
	// whose own bucket lies within one of it, so a candidate's
	// comparison set is a single lookup.
	buckets map[int][]int

	// pending carries the bound vector computed by the most recent
	// negative Contains result until Insert attaches it.
	pendingTmpl    *waveform.Template
	pendingAgainst []int
	pendingBounds  []float64
}

// NewBank builds an empty bank.
func NewBank(cfg Config, matcher Matcher) (*Bank, error) {
	if cfg.MinimalMatch <= 0 || cfg.MinimalMatch >= 1 {
		return nil, ErrInvalidMinimalMatch
	}

	if cfg.Slack < 0 {
		return nil, ErrInvalidSlack
	}

	if cfg.Slack == 0 {
		cfg.Slack = DefaultSlack
	}

	if matcher == nil {
		return nil, ErrNilMatcher
	}

	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Bank{
		cfg:     cfg,
		matcher: matcher,
		log:     cfg.Logger,
		buckets: make(map[int][]int),
	}, nil
}

// Len returns the number of templates, culled ones included.
func (b *Bank) Len() int { return len(b.entries) }

// Template returns the template at insertion index i.
func (b *Bank) Template(i int) *waveform.Template { return b.entries[i].tmpl }

// Params returns one parameter set per template, in insertion order.
func (b *Bank) Params() []waveform.Params {
	out := make([]waveform.Params, len(b.entries))
	for i, e := range b.entries {
		out[i] = e.tmpl.Params
	}

	return out
}

// bucketOf maps a chirp time to its bucket index.
func (b *Bank) bucketOf(tau0 float64) int {
	if b.cfg.Tau0Threshold <= 0 {
		return 0
	}

	return int(tau0 / b.cfg.Tau0Threshold)
}

// Contains reports whether the candidate is redundant: whether some
// existing template matches it above the minimal match.
//
// The test is a branch-and-bound search. Every live template starts
// with a provisional match bound of one (optionally tightened by the
// sigma-ratio bound), the candidate set is restricted to neighboring
// chirp-time buckets when configured, and the worklist is processed in
// reverse insertion order since recent insertions are the likeliest
// near-duplicates. Each computed match m against template j tightens,
// via the triangle inequality, the bound for every template j itself
// holds bounds against:
//
//	bound(cand, k) <= bound(j, k) - m + 1 + slack
//
// Templates whose bound falls to 1 - 2*(1 - minimalMatch) or below
// provably cannot reach the threshold and leave the worklist. A match
// above threshold exits immediately; an exhausted worklist means the
// candidate is new, and its final bound vector is kept for the
// following Insert.
func (b *Bank) Contains(c *waveform.Template) (bool, error) {
	if c == nil {
		return false, ErrNilTemplate
	}

	n := len(b.entries)
	cutoff := 2*b.cfg.MinimalMatch - 1

	prov := make([]float64, n)
	for i := range prov {
		prov[i] = 1
	}

	var compared []int
	if b.cfg.Tau0Threshold > 0 {
		compared = b.buckets[b.bucketOf(c.Tau0)]
	} else {
		compared = make([]int, n)
		for i := range compared {
			compared[i] = i
		}
	}

	worklist := make([]int, 0, len(compared))
	for _, idx := range compared {
		e := b.entries[idx]
		if e.tmpl.Culled() {
			continue
		}

		if b.cfg.UseSigmaBound {
			r := sigmaBound(c.Sigma, e.tmpl.Sigma)
			if r < prov[idx] {
				prov[idx] = r
			}
		}

		if prov[idx] > cutoff {
			worklist = append(worklist, idx)
		}
	}

	for len(worklist) > 0 {
		j := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		if prov[j] <= cutoff {
			continue
		}

		m, err := b.matcher.Match(c, b.entries[j].tmpl)
		if err != nil {
			return false, fmt.Errorf("bank: match against template %d: %w", j, err)
		}

		if m > b.cfg.MinimalMatch {
			return true, nil
		}

		// The computed match is the tightest bound there is.
		prov[j] = m

		ej := b.entries[j]
		for i, k := range ej.against {
			nb := ej.bounds[i] - m + 1 + b.cfg.Slack
			if nb < prov[k] {
				prov[k] = nb
			}
		}

		live := worklist[:0]
		for _, k := range worklist {
			if prov[k] > cutoff {
				live = append(live, k)
			}
		}
		worklist = live
	}

	b.pendingTmpl = c
	b.pendingAgainst = make([]int, 0, len(compared))
	b.pendingBounds = make([]float64, 0, len(compared))
	for _, idx := range compared {
		if b.entries[idx].tmpl.Culled() {
			continue
		}
		b.pendingAgainst = append(b.pendingAgainst, idx)
		b.pendingBounds = append(b.pendingBounds, prov[idx])
	}

	return false, nil
}

// Insert appends the template and updates the bucket index for the
// buckets {b-1, b, b+1}. If t is the template the preceding Contains
// cleared, its bound vector is attached and mirrored onto the compared
// templates so future candidates prune against it.
func (b *Bank) Insert(t *waveform.Template) error {
	if t == nil {
		return ErrNilTemplate
	}

	e := &entry{tmpl: t, bucket: b.bucketOf(t.Tau0)}

	if t == b.pendingTmpl {
		e.against = b.pendingAgainst
		e.bounds = b.pendingBounds
		b.pendingTmpl = nil
		b.pendingAgainst = nil
		b.pendingBounds = nil
	}

	idx := len(b.entries)
	b.entries = append(b.entries, e)

	for i, k := range e.against {
		if other := b.entries[k]; !other.tmpl.Culled() {
			other.addBound(idx, e.bounds[i])
		}
	}

	for bk := e.bucket - 1; bk <= e.bucket+1; bk++ {
		b.buckets[bk] = append(b.buckets[bk], idx)
	}

	return nil
}

// Cull replaces every template with chirp time below tau0Threshold by
// its lightweight stand-in: the waveform array and the bound vector
// are freed, parameters, chirp time and sigma survive. Culled
// templates no longer serve as comparison bases, so this is
// irreversible but safe once the sweep has moved past them.
func (b *Bank) Cull(tau0Threshold float64) {
	culled := 0

	for _, e := range b.entries {
		if e.tmpl.Culled() || e.tmpl.Tau0 >= tau0Threshold {
			continue
		}

		e.tmpl.Cull()
		e.against = nil
		e.bounds = nil
		culled++
	}

	if culled > 0 {
		b.log.Info("culled templates",
			zap.Int("count", culled),
			zap.Float64("tau0_below", tau0Threshold))
	}
}

// CheckParams generates a template for every candidate parameter set,
// skipping (and logging) ones the waveform model rejects, and inserts
// each that is not already covered. It returns the newly inserted
// parameter sets and the fraction of attempted candidates that were
// added, the convergence signal for the sweep driver.
func (b *Bank) CheckParams(gen Generator, cands []waveform.Params) ([]waveform.Params, float64, error) {
	if len(cands) == 0 {
		return nil, 0, nil
	}

	var added []waveform.Params

	for _, p := range cands {
		t, err := gen.Generate(p)
		if err != nil {
			b.log.Debug("skipping candidate", zap.Error(err))
			continue
		}

		redundant, err := b.Contains(t)
		if err != nil {
			return added, 0, err
		}

		if redundant {
			continue
		}

		if err := b.Insert(t); err != nil {
			return added, 0, err
		}

		added = append(added, t.Params)
	}

	return added, float64(len(added)) / float64(len(cands)), nil
}

// sigmaBound is the sensitivity-ratio upper bound on the match between
// two templates.
func sigmaBound(a, b float64) float64 {
	if a <= 0 || b <= 0 {
		return 1
	}

	if a < b {
		return a / b
	}

	return b / a
}

// Package config loads the brutebank run configuration from a YAML
// file and applies defaults. Command-line flags override file values.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Errors returned by configuration validation.
var (
	ErrMinimalMatch = errors.New("config: minimal_match must lie in (0, 1)")
	ErrRangeOrder   = errors.New("config: parameter range must satisfy min < max")
	ErrNoRanges     = errors.New("config: at least one parameter range is required")
	ErrGrid         = errors.New("config: sample_rate, duration, f_low and f_high must be positive with f_low < f_high")
	ErrSweepWindow  = errors.New("config: tau0 sweep must satisfy start < end and crawl > 0")
	ErrUnknownPSD   = errors.New("config: unknown psd model")
	ErrUnknownModel = errors.New("config: unknown approximant")
)

// PSD model names accepted in the configuration.
const (
	PSDFlat  = "flat"
	PSDALIGO = "aligo"
)

// Approximant names accepted in the configuration.
const ModelTaylorF2 = "taylorf2"

// Range is a [min, max) draw interval for one parameter.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Config is the in-memory representation of a brutebank run file.
type Config struct {
	MinimalMatch  float64 `yaml:"minimal_match"`
	Tolerance     float64 `yaml:"tolerance,omitempty"`
	EnableSigma   bool    `yaml:"enable_sigma_bound,omitempty"`
	Tau0Threshold float64 `yaml:"tau0_threshold,omitempty"`
	Tau0Start     float64 `yaml:"tau0_start,omitempty"`
	Tau0End       float64 `yaml:"tau0_end,omitempty"`
	Tau0Crawl     float64 `yaml:"tau0_crawl,omitempty"`

	SampleRate  float64 `yaml:"sample_rate,omitempty"`
	Duration    float64 `yaml:"duration,omitempty"`
	FLow        float64 `yaml:"f_low,omitempty"`
	FHigh       float64 `yaml:"f_high,omitempty"`
	PSD         string  `yaml:"psd,omitempty"`
	Approximant string  `yaml:"approximant,omitempty"`

	Seed int64 `yaml:"seed,omitempty"`

	MaxMassRatio float64 `yaml:"max_q,omitempty"`
	MaxTotalMass float64 `yaml:"max_mtotal,omitempty"`
	MinChirpMass float64 `yaml:"min_mchirp,omitempty"`
	MaxChirpMass float64 `yaml:"max_mchirp,omitempty"`

	Ranges map[string]Range   `yaml:"ranges,omitempty"`
	Fixed  map[string]float64 `yaml:"fixed,omitempty"`

	InputBank string `yaml:"input_bank,omitempty"`
	Output    string `yaml:"output,omitempty"`
}

// Default returns the configuration a run starts from before the file
// and flags are applied.
func Default() *Config {
	return &Config{
		MinimalMatch: 0.97,
		SampleRate:   2048,
		Duration:     32,
		FLow:         20,
		FHigh:        1024,
		PSD:          PSDALIGO,
		Approximant:  ModelTaylorF2,
	}
}

// Load reads a YAML run file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, nil
}

// EffectiveTolerance returns the configured tolerance, or the derived
// default (1 - minimal_match) / 10 when unset.
func (c *Config) EffectiveTolerance() float64 {
	if c.Tolerance > 0 {
		return c.Tolerance
	}

	return (1 - c.MinimalMatch) / 10
}

// Validate eagerly checks every precondition that would otherwise
// surface mid-run. It must be called before the main loop starts.
func (c *Config) Validate() error {
	if c.MinimalMatch <= 0 || c.MinimalMatch >= 1 {
		return ErrMinimalMatch
	}

	if len(c.Ranges) == 0 {
		return ErrNoRanges
	}

	for name, r := range c.Ranges {
		if r.Min >= r.Max {
			return fmt.Errorf("%w: %s", ErrRangeOrder, name)
		}
	}

	if c.SampleRate <= 0 || c.Duration <= 0 || c.FLow <= 0 || c.FLow >= c.FHigh {
		return ErrGrid
	}

	if c.Tau0Start != 0 || c.Tau0End != 0 || c.Tau0Crawl != 0 {
		if c.Tau0Start >= c.Tau0End || c.Tau0Crawl <= 0 {
			return ErrSweepWindow
		}
	}

	switch c.PSD {
	case PSDFlat, PSDALIGO:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPSD, c.PSD)
	}

	if c.Approximant != ModelTaylorF2 {
		return fmt.Errorf("%w: %q", ErrUnknownModel, c.Approximant)
	}

	return nil
}

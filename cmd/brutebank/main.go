// Command brutebank builds a stochastic compact-binary template bank.
//
// Usage:
//
//	brutebank [flags] -output bank.yaml
//
// Candidates are drawn uniformly over the configured parameter ranges
// (refined by KDE resampling of recent acceptances), and a candidate
// joins the bank only when no existing template matches it above the
// minimal match. The sweep walks overlapping chirp-time regions so
// finalized templates can be culled and memory stays bounded.
//
// Examples:
//
//	brutebank -output bank.yaml -mass1-min 1.2 -mass1-max 2 -mass2-min 1.2 -mass2-max 2
//	brutebank -config run.yaml -min-match 0.98 -seed 7 -output bank.yaml
//	brutebank -output bank.yaml -input-bank seed.yaml -tau0-threshold 10 -sigma-bound
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/hjlee6674/pycbc/bank"
	"github.com/hjlee6674/pycbc/internal/bankio"
	"github.com/hjlee6674/pycbc/internal/config"
	"github.com/hjlee6674/pycbc/sample"
	"github.com/hjlee6674/pycbc/stats"
	"github.com/hjlee6674/pycbc/waveform"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type rangeFlags struct {
	name     string
	min, max *float64
}

func run() error {
	configPath := flag.String("config", "", "YAML run file; flags override its values")
	output := flag.String("output", "", "output bank file (required)")
	inputBank := flag.String("input-bank", "", "starting bank to extend")

	minMatch := flag.Float64("min-match", 0.97, "minimal match threshold")
	tolerance := flag.Float64("tolerance", 0, "convergence tolerance (default (1-min-match)/10)")
	sigmaBound := flag.Bool("sigma-bound", false, "enable the sigma-ratio match prefilter")

	tau0Threshold := flag.Float64("tau0-threshold", 0, "chirp-time bucket width in seconds (0 disables windowing)")
	tau0Start := flag.Float64("tau0-start", 0, "sweep start chirp time in seconds")
	tau0End := flag.Float64("tau0-end", 0, "sweep end chirp time in seconds")
	tau0Crawl := flag.Float64("tau0-crawl", 0, "sweep region width in seconds")

	sampleRate := flag.Float64("sample-rate", 2048, "sample rate in Hz")
	duration := flag.Float64("duration", 32, "waveform buffer length in seconds")
	fLow := flag.Float64("f-low", 20, "low-frequency cutoff in Hz")
	fHigh := flag.Float64("f-high", 1024, "high-frequency cutoff in Hz")
	psdName := flag.String("psd", config.PSDALIGO, "noise model: flat or aligo")
	approximant := flag.String("approximant", config.ModelTaylorF2, "waveform model")

	seed := flag.Int64("seed", 0, "random seed")
	maxQ := flag.Float64("max-q", 0, "maximum mass ratio (0 disables)")
	maxMTotal := flag.Float64("max-mtotal", 0, "maximum total mass (0 disables)")
	minMChirp := flag.Float64("min-mchirp", 0, "minimum chirp mass (0 disables)")
	maxMChirp := flag.Float64("max-mchirp", 0, "maximum chirp mass (0 disables)")

	verbose := flag.Bool("v", false, "debug logging")

	ranges := []rangeFlags{
		{name: waveform.ParamMass1,
			min: flag.Float64("mass1-min", 0, "mass1 range lower bound"),
			max: flag.Float64("mass1-max", 0, "mass1 range upper bound")},
		{name: waveform.ParamMass2,
			min: flag.Float64("mass2-min", 0, "mass2 range lower bound"),
			max: flag.Float64("mass2-max", 0, "mass2 range upper bound")},
		{name: waveform.ParamSpin1z,
			min: flag.Float64("spin1z-min", 0, "spin1z range lower bound"),
			max: flag.Float64("spin1z-max", 0, "spin1z range upper bound")},
		{name: waveform.ParamSpin2z,
			min: flag.Float64("spin2z-min", 0, "spin2z range lower bound"),
			max: flag.Float64("spin2z-max", 0, "spin2z range upper bound")},
	}

	fixed := map[string]float64{}
	flag.Func("fixed", "pin a parameter, e.g. -fixed spin1z=0 (repeatable)", func(s string) error {
		name, val, ok := strings.Cut(s, "=")
		if !ok {
			return errors.New("want name=value")
		}
		v, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return err
		}
		fixed[strings.TrimSpace(name)] = v
		return nil
	})

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: brutebank [flags] -output bank.yaml\n\n")
		fmt.Fprintf(os.Stderr, "Builds a stochastic template bank over the configured parameter ranges.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	// Explicitly set flags win over the run file.
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	apply := func(name string, dst *float64, v float64) {
		if set[name] {
			*dst = v
		}
	}

	apply("min-match", &cfg.MinimalMatch, *minMatch)
	apply("tolerance", &cfg.Tolerance, *tolerance)
	apply("tau0-threshold", &cfg.Tau0Threshold, *tau0Threshold)
	apply("tau0-start", &cfg.Tau0Start, *tau0Start)
	apply("tau0-end", &cfg.Tau0End, *tau0End)
	apply("tau0-crawl", &cfg.Tau0Crawl, *tau0Crawl)
	apply("sample-rate", &cfg.SampleRate, *sampleRate)
	apply("duration", &cfg.Duration, *duration)
	apply("f-low", &cfg.FLow, *fLow)
	apply("f-high", &cfg.FHigh, *fHigh)
	apply("max-q", &cfg.MaxMassRatio, *maxQ)
	apply("max-mtotal", &cfg.MaxTotalMass, *maxMTotal)
	apply("min-mchirp", &cfg.MinChirpMass, *minMChirp)
	apply("max-mchirp", &cfg.MaxChirpMass, *maxMChirp)

	if set["sigma-bound"] {
		cfg.EnableSigma = *sigmaBound
	}
	if set["seed"] {
		cfg.Seed = *seed
	}
	if set["psd"] {
		cfg.PSD = *psdName
	}
	if set["approximant"] {
		cfg.Approximant = *approximant
	}
	if set["input-bank"] {
		cfg.InputBank = *inputBank
	}
	if set["output"] {
		cfg.Output = *output
	}

	for _, r := range ranges {
		if set[r.name+"-min"] || set[r.name+"-max"] {
			if cfg.Ranges == nil {
				cfg.Ranges = map[string]config.Range{}
			}
			cfg.Ranges[r.name] = config.Range{Min: *r.min, Max: *r.max}
		}
	}
	for name, v := range fixed {
		if cfg.Fixed == nil {
			cfg.Fixed = map[string]float64{}
		}
		cfg.Fixed[name] = v
	}

	// Fatal precondition checks before any work starts.
	if cfg.Output == "" {
		return errors.New("brutebank: -output is required")
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := newLogger(*verbose)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	return build(cfg, log)
}

func newLogger(verbose bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{"stderr"}
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	return zcfg.Build()
}

func build(cfg *config.Config, log *zap.Logger) error {
	wcfg := waveform.Config{
		SampleRate: cfg.SampleRate,
		Duration:   cfg.Duration,
		FLow:       cfg.FLow,
		FHigh:      cfg.FHigh,
	}

	bins, deltaF := wcfg.Grid()

	var (
		psd *waveform.PSD
		err error
	)
	switch cfg.PSD {
	case config.PSDFlat:
		psd, err = waveform.FlatPSD(deltaF, bins)
	default:
		psd, err = waveform.AnalyticPSD(deltaF, bins, cfg.FLow/2)
	}
	if err != nil {
		return err
	}

	gen, err := waveform.NewGenerator(wcfg, waveform.TaylorF2{}, psd)
	if err != nil {
		return err
	}

	bk, err := bank.NewBank(bank.Config{
		MinimalMatch:  cfg.MinimalMatch,
		UseSigmaBound: cfg.EnableSigma,
		Tau0Threshold: cfg.Tau0Threshold,
		Logger:        log,
	}, gen)
	if err != nil {
		return err
	}

	sranges := make(map[string]sample.Range, len(cfg.Ranges))
	for name, r := range cfg.Ranges {
		sranges[name] = sample.Range{Min: r.Min, Max: r.Max}
	}

	sampler, err := sample.NewSampler(sample.Config{
		Ranges:       sranges,
		Fixed:        cfg.Fixed,
		FLow:         cfg.FLow,
		Tolerance:    cfg.EffectiveTolerance(),
		MaxMassRatio: cfg.MaxMassRatio,
		MaxTotalMass: cfg.MaxTotalMass,
		MinChirpMass: cfg.MinChirpMass,
		MaxChirpMass: cfg.MaxChirpMass,
		Seed:         cfg.Seed,
	})
	if err != nil {
		return err
	}

	if cfg.InputBank != "" {
		if err := seedBank(bk, sampler, gen, cfg.InputBank, log); err != nil {
			return err
		}
	}

	start, end, crawl := sweepWindow(cfg)

	sweeper, err := bank.NewSweeper(bk, sampler, gen, bank.SweepConfig{
		Tau0Start: start,
		Tau0End:   end,
		Crawl:     crawl,
		Tolerance: cfg.EffectiveTolerance(),
		Logger:    log,
	})
	if err != nil {
		return err
	}

	if err := sweeper.Run(); err != nil {
		return err
	}

	if err := bankio.Write(cfg.Output, cfg.FLow, bk.Params()); err != nil {
		return err
	}

	printSummary(os.Stdout, bk, sweeper)

	return nil
}

// seedBank inserts a previously built bank without membership tests;
// its templates are trusted.
func seedBank(bk *bank.Bank, sampler *sample.Sampler, gen *waveform.Generator, path string, log *zap.Logger) error {
	_, params, err := bankio.Read(path)
	if err != nil {
		return err
	}

	for _, p := range params {
		t, err := gen.Generate(p)
		if err != nil {
			log.Warn("skipping unloadable seed template", zap.Error(err))
			continue
		}

		if err := bk.Insert(t); err != nil {
			return err
		}
	}

	sampler.Record(params...)

	log.Info("seeded starting bank",
		zap.String("path", path),
		zap.Int("templates", bk.Len()))

	return nil
}

// sweepWindow returns the configured chirp-time sweep, or one derived
// from the mass ranges: the lightest system sets the longest chirp
// time and the heaviest the shortest.
func sweepWindow(cfg *config.Config) (start, end, crawl float64) {
	if cfg.Tau0End > cfg.Tau0Start && cfg.Tau0Crawl > 0 {
		return cfg.Tau0Start, cfg.Tau0End, cfg.Tau0Crawl
	}

	at := func(pick func(config.Range) float64) waveform.Params {
		p := waveform.Params{}
		for name, r := range cfg.Ranges {
			p[name] = pick(r)
		}
		for name, v := range cfg.Fixed {
			p[name] = v
		}
		return p
	}

	longest := at(func(r config.Range) float64 { return r.Min }).Tau0(cfg.FLow)
	shortest := at(func(r config.Range) float64 { return r.Max }).Tau0(cfg.FLow)

	// One region covering everything; the margin keeps boundary
	// candidates inside the window.
	span := longest - shortest
	if span <= 0 {
		span = 1
	}

	return shortest - 0.01*span, longest + 0.01*span, 1.02 * span
}

func printSummary(w *os.File, bk *bank.Bank, sw *bank.Sweeper) {
	rs := stats.Calculate(sw.Ratios())

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "templates\t%d\n", bk.Len())
	fmt.Fprintf(tw, "regions\t%d\n", sw.Regions())
	fmt.Fprintf(tw, "rounds\t%d\n", rs.Count)
	if rs.Count > 0 {
		fmt.Fprintf(tw, "acceptance mean\t%.4f\n", rs.Mean)
		fmt.Fprintf(tw, "acceptance last\t%.4f\n", rs.Last)
	}
	tw.Flush() //nolint:errcheck
}

package waveform

import (
	"errors"
	"math"
	"testing"
)

func testConfig() Config {
	return Config{SampleRate: 256, Duration: 8, FLow: 20, FHigh: 128}
}

func testGenerator(t *testing.T) *Generator {
	t.Helper()

	cfg := testConfig()
	bins, deltaF := cfg.Grid()

	psd, err := FlatPSD(deltaF, bins)
	if err != nil {
		t.Fatal(err)
	}

	gen, err := NewGenerator(cfg, TaylorF2{}, psd)
	if err != nil {
		t.Fatal(err)
	}

	return gen
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{"valid", Config{256, 8, 20, 128}, nil},
		{"zero sample rate", Config{0, 8, 20, 128}, ErrInvalidSampleRate},
		{"zero duration", Config{256, 0, 20, 128}, ErrInvalidDuration},
		{"zero f low", Config{256, 8, 0, 128}, ErrCutoffOrder},
		{"inverted cutoffs", Config{256, 8, 128, 20}, ErrCutoffOrder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if err != tt.wantErr {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigGrid(t *testing.T) {
	cfg := testConfig()

	bins, deltaF := cfg.Grid()
	if bins != 1025 {
		t.Errorf("bins = %d, want 1025", bins)
	}

	if deltaF != 0.125 {
		t.Errorf("deltaF = %g, want 0.125", deltaF)
	}
}

func TestNewGeneratorRejectsBadPSD(t *testing.T) {
	cfg := testConfig()
	bins, deltaF := cfg.Grid()

	short, err := FlatPSD(deltaF, bins/2)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewGenerator(cfg, TaylorF2{}, short); !errors.Is(err, ErrPSDGrid) {
		t.Errorf("short psd: err = %v, want ErrPSDGrid", err)
	}

	wrongGrid, err := FlatPSD(deltaF*2, bins)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewGenerator(cfg, TaylorF2{}, wrongGrid); !errors.Is(err, ErrPSDGrid) {
		t.Errorf("wrong deltaF: err = %v, want ErrPSDGrid", err)
	}

	ok, err := FlatPSD(deltaF, bins)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := NewGenerator(cfg, nil, ok); !errors.Is(err, ErrNilModel) {
		t.Errorf("nil model: err = %v, want ErrNilModel", err)
	}

	if _, err := NewGenerator(cfg, TaylorF2{}, nil); !errors.Is(err, ErrNilPSD) {
		t.Errorf("nil psd: err = %v, want ErrNilPSD", err)
	}
}

func TestGenerate(t *testing.T) {
	gen := testGenerator(t)

	tmpl, err := gen.Generate(Params{ParamMass1: 1.4, ParamMass2: 1.4})
	if err != nil {
		t.Fatal(err)
	}

	if tmpl.Culled() {
		t.Error("fresh template reports culled")
	}

	if tmpl.Sigma <= 0 {
		t.Errorf("Sigma = %g, want positive", tmpl.Sigma)
	}

	if tmpl.Tau0 <= 0 {
		t.Errorf("Tau0 = %g, want positive", tmpl.Tau0)
	}
}

func TestGenerateRejection(t *testing.T) {
	gen := testGenerator(t)

	_, err := gen.Generate(Params{ParamMass1: -1, ParamMass2: 1.4})
	if !errors.Is(err, ErrModelRejected) {
		t.Errorf("err = %v, want ErrModelRejected", err)
	}
}

func TestSelfMatchIsUnity(t *testing.T) {
	gen := testGenerator(t)

	tmpl, err := gen.Generate(Params{ParamMass1: 1.4, ParamMass2: 1.35})
	if err != nil {
		t.Fatal(err)
	}

	m, err := gen.Match(tmpl, tmpl)
	if err != nil {
		t.Fatal(err)
	}

	if math.Abs(m-1) > 1e-6 {
		t.Errorf("self match = %g, want 1", m)
	}
}

func TestMatchIdenticalParams(t *testing.T) {
	gen := testGenerator(t)

	p := Params{ParamMass1: 1.5, ParamMass2: 1.2}

	a, err := gen.Generate(p)
	if err != nil {
		t.Fatal(err)
	}

	b, err := gen.Generate(p)
	if err != nil {
		t.Fatal(err)
	}

	m, err := gen.Match(a, b)
	if err != nil {
		t.Fatal(err)
	}

	if math.Abs(m-1) > 1e-6 {
		t.Errorf("match = %g, want 1", m)
	}
}

func TestMatchSeparatesDistantMasses(t *testing.T) {
	gen := testGenerator(t)

	a, err := gen.Generate(Params{ParamMass1: 1.4, ParamMass2: 1.4})
	if err != nil {
		t.Fatal(err)
	}

	b, err := gen.Generate(Params{ParamMass1: 3.0, ParamMass2: 2.9})
	if err != nil {
		t.Fatal(err)
	}

	m, err := gen.Match(a, b)
	if err != nil {
		t.Fatal(err)
	}

	if m >= 0.9 {
		t.Errorf("match = %g, want well below 0.9 for distant masses", m)
	}

	if m < 0 || m > 1.001 {
		t.Errorf("match = %g, outside [0, 1]", m)
	}
}

func TestMatchSymmetric(t *testing.T) {
	gen := testGenerator(t)

	a, err := gen.Generate(Params{ParamMass1: 1.4, ParamMass2: 1.4})
	if err != nil {
		t.Fatal(err)
	}

	b, err := gen.Generate(Params{ParamMass1: 1.6, ParamMass2: 1.5})
	if err != nil {
		t.Fatal(err)
	}

	ab, err := gen.Match(a, b)
	if err != nil {
		t.Fatal(err)
	}

	ba, err := gen.Match(b, a)
	if err != nil {
		t.Fatal(err)
	}

	if math.Abs(ab-ba) > 1e-9 {
		t.Errorf("match not symmetric: %g vs %g", ab, ba)
	}
}

func TestMatchCulledTemplate(t *testing.T) {
	gen := testGenerator(t)

	a, err := gen.Generate(Params{ParamMass1: 1.4, ParamMass2: 1.4})
	if err != nil {
		t.Fatal(err)
	}

	b, err := gen.Generate(Params{ParamMass1: 1.5, ParamMass2: 1.4})
	if err != nil {
		t.Fatal(err)
	}

	b.Cull()

	if !b.Culled() {
		t.Fatal("Cull() did not mark template")
	}

	if _, err := gen.Match(a, b); !errors.Is(err, ErrCulledTemplate) {
		t.Errorf("err = %v, want ErrCulledTemplate", err)
	}

	// Culled templates keep their table row.
	if b.Params[ParamMass1] != 1.5 || b.Sigma <= 0 || b.Tau0 <= 0 {
		t.Error("Cull() dropped params, sigma or tau0")
	}
}

func TestCullPreservesParamsExactly(t *testing.T) {
	gen := testGenerator(t)

	p := Params{ParamMass1: 1.44444444449, ParamMass2: 1.40000000001}

	tmpl, err := gen.Generate(p)
	if err != nil {
		t.Fatal(err)
	}

	before := tmpl.Params.Clone()
	tmpl.Cull()

	for k, v := range before {
		if tmpl.Params[k] != v {
			t.Errorf("param %s changed across cull: %v != %v", k, tmpl.Params[k], v)
		}
	}
}

func TestSpinChangesWaveform(t *testing.T) {
	gen := testGenerator(t)

	a, err := gen.Generate(Params{ParamMass1: 5, ParamMass2: 5, ParamSpin1z: 0, ParamSpin2z: 0})
	if err != nil {
		t.Fatal(err)
	}

	b, err := gen.Generate(Params{ParamMass1: 5, ParamMass2: 5, ParamSpin1z: 0.95, ParamSpin2z: 0.95})
	if err != nil {
		t.Fatal(err)
	}

	m, err := gen.Match(a, b)
	if err != nil {
		t.Fatal(err)
	}

	if m > 0.999 {
		t.Errorf("match = %g, spins had no effect", m)
	}
}

func TestNextPowerOf2(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {1024, 1024}, {1025, 2048},
	}

	for _, tt := range tests {
		if got := nextPowerOf2(tt.in); got != tt.want {
			t.Errorf("nextPowerOf2(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

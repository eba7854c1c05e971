// Package bankio reads and writes template banks as a columnar table
// of named parameter arrays, one row per template, plus the recorded
// low-frequency cutoff.
package bankio

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/hjlee6674/pycbc/waveform"
)

// Errors returned by bank IO.
var (
	ErrNoTemplates   = errors.New("bankio: bank has no templates")
	ErrRaggedColumns = errors.New("bankio: parameter columns have differing lengths")
)

// File is the on-disk bank layout.
type File struct {
	FLower     float64              `yaml:"f_lower"`
	Parameters map[string][]float64 `yaml:"parameters"`
}

// Write persists the bank to path. The column set is the union of the
// parameter names over all templates; a value a template does not
// carry is stored as NaN.
func Write(path string, fLower float64, params []waveform.Params) error {
	if len(params) == 0 {
		return ErrNoTemplates
	}

	columns := make(map[string][]float64)
	for _, p := range params {
		for name := range p {
			if _, ok := columns[name]; !ok {
				columns[name] = nil
			}
		}
	}

	for name := range columns {
		col := make([]float64, len(params))
		for i, p := range params {
			v, ok := p[name]
			if !ok {
				v = math.NaN()
			}
			col[i] = v
		}
		columns[name] = col
	}

	data, err := yaml.Marshal(File{FLower: fLower, Parameters: columns})
	if err != nil {
		return fmt.Errorf("bankio: marshal bank: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("bankio: write %s: %w", path, err)
	}

	return nil
}

// Read loads a bank table, returning the recorded low-frequency
// cutoff and one parameter set per row.
func Read(path string) (float64, []waveform.Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, nil, fmt.Errorf("bankio: read %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return 0, nil, fmt.Errorf("bankio: parse %s: %w", path, err)
	}

	if len(f.Parameters) == 0 {
		return f.FLower, nil, nil
	}

	names := make([]string, 0, len(f.Parameters))
	for name := range f.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := len(f.Parameters[names[0]])
	for _, name := range names {
		if len(f.Parameters[name]) != rows {
			return 0, nil, ErrRaggedColumns
		}
	}

	params := make([]waveform.Params, rows)
	for i := range params {
		p := make(waveform.Params, len(names))
		for _, name := range names {
			p[name] = f.Parameters[name][i]
		}
		params[i] = p
	}

	return f.FLower, params, nil
}

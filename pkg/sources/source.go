// Package sources loads calibration samples from the places they are kept:
// the built-in reference run, JSON documents on disk or behind an HTTP
// endpoint, SQLite databases and whitespace-separated column files.
//
// Every source is read once at start-up and produces an immutable
// calibration.TrainingSet.
package sources

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/HatiCode/dosimap/pkg/calibration"
)

// Source produces a training set.
type Source interface {
	// Load reads the samples and validates them. It should respect context
	// cancellation where the underlying medium allows it.
	Load(ctx context.Context) (*calibration.TrainingSet, error)

	// Name returns a short identifier such as "json" or "sqlite".
	Name() string
}

// Default gjson paths for JSON documents shaped like
// {"samples": [{"duration": 25, "cumulativeTime": 625, "measurement": 102}, ...]}.
const (
	DefaultDurationPath = "samples.#.duration"
	DefaultTimePath     = "samples.#.cumulativeTime"
	DefaultValuePath    = "samples.#.measurement"
)

// Paths locates the three parallel sample arrays inside a JSON document.
type Paths struct {
	Duration       string
	CumulativeTime string
	Measurement    string
}

func (p Paths) withDefaults() Paths {
	if p.Duration == "" {
		p.Duration = DefaultDurationPath
	}
	if p.CumulativeTime == "" {
		p.CumulativeTime = DefaultTimePath
	}
	if p.Measurement == "" {
		p.Measurement = DefaultValuePath
	}
	return p
}

// extract pulls the sample arrays out of doc with gjson.
func extract(doc []byte, p Paths) ([]calibration.Sample, error) {
	p = p.withDefaults()
	if !gjson.ValidBytes(doc) {
		return nil, fmt.Errorf("document is not valid JSON")
	}

	columns := make([][]gjson.Result, 3)
	for k, path := range []string{p.Duration, p.CumulativeTime, p.Measurement} {
		r := gjson.GetBytes(doc, path)
		if !r.Exists() {
			return nil, fmt.Errorf("path %q not found in document", path)
		}
		columns[k] = r.Array()
	}

	n := len(columns[0])
	if len(columns[1]) != n || len(columns[2]) != n {
		return nil, fmt.Errorf("column lengths differ: %d durations, %d cumulative times, %d measurements",
			n, len(columns[1]), len(columns[2]))
	}

	samples := make([]calibration.Sample, n)
	for i := range samples {
		for k, col := range columns {
			if col[i].Type != gjson.Number {
				return nil, fmt.Errorf("sample %d: column %d is %s, want a number", i, k, col[i].Type)
			}
		}
		samples[i] = calibration.Sample{
			Duration:       columns[0][i].Float(),
			CumulativeTime: columns[1][i].Float(),
			Measurement:    columns[2][i].Float(),
		}
	}
	return samples, nil
}

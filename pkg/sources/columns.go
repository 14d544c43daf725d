package sources

import (
	"context"
	"fmt"

	"github.com/phil-mansfield/table"

	"github.com/HatiCode/dosimap/pkg/calibration"
)

// Columns reads samples from a whitespace-separated text file, one sample
// per line. Lines starting with '#' are comments.
type Columns struct {
	// Path is the file to read (required).
	Path string

	// Columns holds the zero-based indices of the duration, cumulative time
	// and measurement columns.
	Columns [3]int
}

func (c *Columns) Name() string { return "columns" }

// Load implements Source.
func (c *Columns) Load(ctx context.Context) (*calibration.TrainingSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cols, err := table.ReadTable(c.Path, c.Columns[:], nil)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.Path, err)
	}
	if len(cols) != 3 {
		return nil, fmt.Errorf("read %s: got %d columns, want 3", c.Path, len(cols))
	}

	samples := make([]calibration.Sample, len(cols[0]))
	for i := range samples {
		samples[i] = calibration.Sample{
			Duration:       cols[0][i],
			CumulativeTime: cols[1][i],
			Measurement:    cols[2][i],
		}
	}
	return calibration.New(samples)
}

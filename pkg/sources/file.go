package sources

import (
	"context"
	"fmt"
	"os"

	"github.com/HatiCode/dosimap/pkg/calibration"
)

// JSONFile reads samples from a JSON document on disk.
//
// Example document (default paths):
//
//	{"samples": [
//	    {"duration": 25, "cumulativeTime": 625, "measurement": 102},
//	    {"duration": 25, "cumulativeTime": 1250, "measurement": 110}
//	]}
type JSONFile struct {
	// Path is the file to read (required).
	Path string

	// Paths are gjson paths to the sample columns. Empty fields use the
	// Default*Path constants.
	Paths Paths
}

func (f *JSONFile) Name() string { return "json" }

// Load implements Source.
func (f *JSONFile) Load(ctx context.Context) (*calibration.TrainingSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Path, err)
	}
	samples, err := extract(doc, f.Paths)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Path, err)
	}
	return calibration.New(samples)
}

// Package calibration holds the immutable set of calibration measurements
// that every estimate in dosimap is derived from.
//
// A Sample maps a valve actuation duration and a cumulative valve-open time
// (both in milliseconds) to a measured TDS₀ concentration. A TrainingSet is
// validated once at construction and never mutated afterwards, so it can be
// shared by any number of readers without locking.
package calibration

import (
	"errors"
	"fmt"
	"math"
)

// ErrDegenerateTrainingSet is returned when a set of samples cannot support
// a triangulation: too few points, all points collinear, non-finite values,
// negative measurements or duplicate coordinates. Negative measurements are
// refused because -1 marks an out-of-domain table cell.
var ErrDegenerateTrainingSet = errors.New("degenerate training set")

// MinSamples is the smallest number of samples that can span a triangle.
const MinSamples = 3

// Sample is a single calibration measurement.
type Sample struct {
	Duration       float64 `json:"duration"`
	CumulativeTime float64 `json:"cumulativeTime"`
	Measurement    float64 `json:"measurement"`
}

// TrainingSet is an ordered, validated, read-only collection of samples.
type TrainingSet struct {
	samples []Sample
}

// New validates samples and returns a TrainingSet holding its own copy of
// them. The returned error wraps ErrDegenerateTrainingSet.
func New(samples []Sample) (*TrainingSet, error) {
	if len(samples) < MinSamples {
		return nil, fmt.Errorf("%w: need at least %d samples, got %d",
			ErrDegenerateTrainingSet, MinSamples, len(samples))
	}

	seen := make(map[[2]float64]int, len(samples))
	for i, s := range samples {
		if !finite(s.Duration) || !finite(s.CumulativeTime) || !finite(s.Measurement) {
			return nil, fmt.Errorf("%w: sample %d has non-finite values (%v, %v) -> %v",
				ErrDegenerateTrainingSet, i, s.Duration, s.CumulativeTime, s.Measurement)
		}
		if s.Measurement < 0 {
			return nil, fmt.Errorf("%w: sample %d has negative measurement %v",
				ErrDegenerateTrainingSet, i, s.Measurement)
		}
		key := [2]float64{s.Duration, s.CumulativeTime}
		if j, ok := seen[key]; ok {
			return nil, fmt.Errorf("%w: samples %d and %d share coordinates (%v, %v)",
				ErrDegenerateTrainingSet, j, i, s.Duration, s.CumulativeTime)
		}
		seen[key] = i
	}

	if collinear(samples) {
		return nil, fmt.Errorf("%w: all %d samples are collinear", ErrDegenerateTrainingSet, len(samples))
	}

	owned := make([]Sample, len(samples))
	copy(owned, samples)
	return &TrainingSet{samples: owned}, nil
}

// Len returns the number of samples.
func (ts *TrainingSet) Len() int {
	return len(ts.samples)
}

// At returns the i-th sample.
func (ts *TrainingSet) At(i int) Sample {
	return ts.samples[i]
}

// Coordinates returns the input coordinates as two parallel slices.
// The slices are copies; callers may modify them.
func (ts *TrainingSet) Coordinates() (durations, cumulativeTimes []float64) {
	durations = make([]float64, len(ts.samples))
	cumulativeTimes = make([]float64, len(ts.samples))
	for i, s := range ts.samples {
		durations[i] = s.Duration
		cumulativeTimes[i] = s.CumulativeTime
	}
	return durations, cumulativeTimes
}

// Measurements returns the measured values, index-aligned with Coordinates.
func (ts *TrainingSet) Measurements() []float64 {
	out := make([]float64, len(ts.samples))
	for i, s := range ts.samples {
		out[i] = s.Measurement
	}
	return out
}

// Samples returns a copy of all samples in their original order.
func (ts *TrainingSet) Samples() []Sample {
	out := make([]Sample, len(ts.samples))
	copy(out, ts.samples)
	return out
}

// Durations returns the distinct durations present in the set, in order of
// first appearance.
func (ts *TrainingSet) Durations() []float64 {
	var out []float64
	seen := make(map[float64]bool)
	for _, s := range ts.samples {
		if !seen[s.Duration] {
			seen[s.Duration] = true
			out = append(out, s.Duration)
		}
	}
	return out
}

// collinear reports whether every sample lies on the line through the
// first sample and the sample farthest from it. The tolerance is relative
// to the extent of the point set.
func collinear(samples []Sample) bool {
	a := samples[0]
	far, farDist := -1, 0.0
	for i := 1; i < len(samples); i++ {
		dx := samples[i].Duration - a.Duration
		dy := samples[i].CumulativeTime - a.CumulativeTime
		if d := dx*dx + dy*dy; d > farDist {
			far, farDist = i, d
		}
	}
	if far < 0 {
		return true
	}

	b := samples[far]
	ux, uy := b.Duration-a.Duration, b.CumulativeTime-a.CumulativeTime
	tol := 1e-12 * farDist
	for _, s := range samples {
		cross := ux*(s.CumulativeTime-a.CumulativeTime) - uy*(s.Duration-a.Duration)
		if math.Abs(cross) > tol {
			return false
		}
	}
	return true
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

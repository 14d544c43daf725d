// Package lut precomputes a dense, quantized lookup table over an estimator
// for consumers that can only do array lookups, and encodes it as JSON, a
// binary blob or a C source listing.
package lut

import (
	"errors"
	"fmt"
	"math"
)

// OutOfDomainSentinel marks cells outside the estimator's domain. Valid
// measurements are never negative.
const OutOfDomainSentinel = -1.0

// MaxCells bounds the size of a single table.
const MaxCells = 1 << 24

// ErrInvalidAxis is returned for axes that cannot describe a grid.
var ErrInvalidAxis = errors.New("invalid axis")

// Axis quantizes one input dimension: bucket i sits at Min + i×Step.
type Axis struct {
	Min   float64 `json:"min"`
	Step  float64 `json:"step"`
	Count int     `json:"count"`
}

// Validate reports whether a describes at least one bucket.
func (a Axis) Validate() error {
	if math.IsNaN(a.Min) || math.IsInf(a.Min, 0) {
		return fmt.Errorf("%w: min %v", ErrInvalidAxis, a.Min)
	}
	if !(a.Step > 0) || math.IsInf(a.Step, 0) {
		return fmt.Errorf("%w: step must be > 0, got %v", ErrInvalidAxis, a.Step)
	}
	if a.Count <= 0 || a.Count > MaxCells {
		return fmt.Errorf("%w: count %d", ErrInvalidAxis, a.Count)
	}
	return nil
}

// Value returns the coordinate of bucket i.
func (a Axis) Value(i int) float64 {
	return a.Min + float64(i)*a.Step
}

// Max returns the coordinate of the last bucket.
func (a Axis) Max() float64 {
	return a.Value(a.Count - 1)
}

// Index maps v to its nearest bucket. ok is false when v rounds to a bucket
// outside the axis.
func (a Axis) Index(v float64) (i int, ok bool) {
	f := math.Round((v - a.Min) / a.Step)
	if math.IsNaN(f) || f < 0 || f >= float64(a.Count) {
		return 0, false
	}
	return int(f), true
}

// Table is a generated lookup table. Values is row-major with one row per
// duration bucket: cell (i, j) is Values[i×CumulativeTime.Count + j].
type Table struct {
	Duration       Axis      `json:"duration"`
	CumulativeTime Axis      `json:"cumulativeTime"`
	Sentinel       float64   `json:"sentinel"`
	Values         []float64 `json:"values"`
}

// Validate checks that the axes and the cell count agree.
func (t *Table) Validate() error {
	if err := t.Duration.Validate(); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	if err := t.CumulativeTime.Validate(); err != nil {
		return fmt.Errorf("cumulative time: %w", err)
	}
	if n := t.Duration.Count * t.CumulativeTime.Count; n > MaxCells {
		return fmt.Errorf("%w: %d cells exceed limit %d", ErrInvalidAxis, n, MaxCells)
	} else if len(t.Values) != n {
		return fmt.Errorf("%w: %d values for %d cells", ErrInvalidAxis, len(t.Values), n)
	}
	return nil
}

// At returns cell (i, j). It panics when either index is out of range.
func (t *Table) At(i, j int) float64 {
	if i < 0 || i >= t.Duration.Count || j < 0 || j >= t.CumulativeTime.Count {
		panic(fmt.Sprintf("lut: cell (%d, %d) outside %dx%d table",
			i, j, t.Duration.Count, t.CumulativeTime.Count))
	}
	return t.Values[i*t.CumulativeTime.Count+j]
}

// Lookup returns the value of the bucket nearest to (duration,
// cumulativeTime), the way a firmware consumer reads the table. ok is false
// outside the grid or on a sentinel cell.
func (t *Table) Lookup(duration, cumulativeTime float64) (v float64, ok bool) {
	i, ok := t.Duration.Index(duration)
	if !ok {
		return 0, false
	}
	j, ok := t.CumulativeTime.Index(cumulativeTime)
	if !ok {
		return 0, false
	}
	v = t.At(i, j)
	if v == t.Sentinel {
		return 0, false
	}
	return v, true
}

// OutOfDomain counts sentinel cells.
func (t *Table) OutOfDomain() int {
	n := 0
	for _, v := range t.Values {
		if v == t.Sentinel {
			n++
		}
	}
	return n
}

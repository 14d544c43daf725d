// Package interp implements piecewise-linear interpolation over scattered
// calibration samples.
//
// An Interpolator triangulates the sample coordinates once (Delaunay, over the
// convex hull of the samples) and answers queries by locating the triangle
// containing the query point and blending the three vertex measurements with
// barycentric weights. The surface is continuous across triangle edges but its
// gradient is not, so callers must tolerate kinks.
//
// Queries outside the convex hull are never extrapolated: they come back with
// Prediction.InDomain set to false. That is ordinary data, not an error.
//
// Example:
//
//	in, err := interp.New(calibration.Reference())
//	p, err := in.Evaluate(125, 10750)
//	if err == nil && p.InDomain {
//	    fmt.Printf("Predicted TDS₀: %.2f ppm\n", p.Value)
//	}
package interp

import (
	"errors"
	"fmt"
	"math"

	"github.com/HatiCode/dosimap/pkg/calibration"
)

var (
	// ErrInvalidQuery is returned for NaN or infinite query coordinates.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrOutOfDomain is returned by Prediction.Err for queries outside the
	// convex hull of the training coordinates.
	ErrOutOfDomain = errors.New("query outside interpolation domain")
)

// Prediction is the result of evaluating the surface at one point.
type Prediction struct {
	// Value is the interpolated measurement. It is zero when InDomain is false.
	Value float64 `json:"value"`

	// InDomain is false when the query lies outside the convex hull of the
	// training coordinates.
	InDomain bool `json:"inDomain"`
}

// Err returns ErrOutOfDomain for out-of-domain predictions and nil otherwise.
func (p Prediction) Err() error {
	if !p.InDomain {
		return ErrOutOfDomain
	}
	return nil
}

// Estimator is anything that predicts a measurement from a valve duration
// and a cumulative valve-open time.
type Estimator interface {
	Evaluate(duration, cumulativeTime float64) (Prediction, error)
}

var _ Estimator = &Interpolator{}

// Interpolator is a linear interpolator over a triangulated training set.
// It is immutable after construction and safe for concurrent use.
type Interpolator struct {
	values []float64
	frame  frame
	tr     *triangulation
	loc    *locator
}

// New triangulates the coordinates of ts. This is the only expensive step;
// every later query reuses the triangulation.
func New(ts *calibration.TrainingSet) (*Interpolator, error) {
	if ts == nil {
		return nil, fmt.Errorf("%w: nil training set", calibration.ErrDegenerateTrainingSet)
	}

	xs, ys := ts.Coordinates()
	f := newFrame(xs, ys)
	pts := make([]point, len(xs))
	for i := range xs {
		pts[i] = f.apply(xs[i], ys[i])
	}

	tr, err := triangulate(pts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", calibration.ErrDegenerateTrainingSet, err)
	}

	return &Interpolator{
		values: ts.Measurements(),
		frame:  f,
		tr:     tr,
		loc:    newLocator(tr),
	}, nil
}

// Name returns the estimator identifier.
func (in *Interpolator) Name() string {
	return "linear"
}

// Evaluate returns the interpolated measurement at (duration, cumulativeTime).
func (in *Interpolator) Evaluate(duration, cumulativeTime float64) (Prediction, error) {
	if !finite(duration) || !finite(cumulativeTime) {
		return Prediction{}, fmt.Errorf("%w: (%v, %v)", ErrInvalidQuery, duration, cumulativeTime)
	}

	t, w := in.loc.locate(in.frame.apply(duration, cumulativeTime))
	if t < 0 {
		return Prediction{}, nil
	}

	tri := in.tr.tris[t]
	v := w[0]*in.values[tri[0]] + w[1]*in.values[tri[1]] + w[2]*in.values[tri[2]]
	return Prediction{Value: v, InDomain: true}, nil
}

// EvaluateAll evaluates the interpolator at every (durations[i],
// cumulativeTimes[i]) pair. If an output slice is given, results are written
// to it (and it is still returned as a convenience). Only the first output
// slice is used.
func (in *Interpolator) EvaluateAll(durations, cumulativeTimes []float64, out ...[]Prediction) ([]Prediction, error) {
	if len(durations) != len(cumulativeTimes) {
		return nil, fmt.Errorf("%w: %d durations but %d cumulative times",
			ErrInvalidQuery, len(durations), len(cumulativeTimes))
	}
	if len(out) == 0 || len(out[0]) < len(durations) {
		out = [][]Prediction{make([]Prediction, len(durations))}
	}
	for i := range durations {
		p, err := in.Evaluate(durations[i], cumulativeTimes[i])
		if err != nil {
			return nil, err
		}
		out[0][i] = p
	}
	return out[0][:len(durations)], nil
}

// NumTriangles returns the number of triangles in the triangulation.
func (in *Interpolator) NumTriangles() int {
	return len(in.tr.tris)
}

// Triangles returns the vertex indices of every triangle, in
// counter-clockwise order. Indices refer to the training set order.
func (in *Interpolator) Triangles() [][3]int {
	out := make([][3]int, len(in.tr.tris))
	copy(out, in.tr.tris)
	return out
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

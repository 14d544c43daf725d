// Package report renders predicted-concentration charts with gonum/plot.
package report

import (
	"errors"
	"fmt"
	"io"
	"math"
	"slices"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/HatiCode/dosimap/pkg/dosing"
	"github.com/HatiCode/dosimap/pkg/interp"
)

// Default PNG size.
const (
	DefaultWidth  = 8 * vg.Inch
	DefaultHeight = 5 * vg.Inch
)

var (
	// ErrNoData is returned when a chart would have nothing to draw.
	ErrNoData = errors.New("no data to plot")
	// ErrInvalidRange is returned for an empty or non-finite sampling range.
	ErrInvalidRange = errors.New("invalid sampling range")
)

// Series is one duration's predicted curve, split into segments wherever
// the prediction leaves the calibrated domain.
type Series struct {
	Duration float64
	Segments []plotter.XYs
}

// Points returns the number of in-domain points across all segments.
func (s Series) Points() int {
	n := 0
	for _, seg := range s.Segments {
		n += len(seg)
	}
	return n
}

// Times returns from, from+step, ... up to and including to.
func Times(from, to, step float64) ([]float64, error) {
	ts := dosing.Candidates(from, to, step)
	if len(ts) == 0 {
		return nil, fmt.Errorf("%w: from %v to %v step %v", ErrInvalidRange, from, to, step)
	}
	return ts, nil
}

// Sample evaluates est along the given cumulative times at a fixed duration.
func Sample(est interp.Estimator, duration float64, times []float64) (Series, error) {
	s := Series{Duration: duration}
	var cur plotter.XYs
	for _, t := range times {
		p, err := est.Evaluate(duration, t)
		if err != nil {
			return Series{}, fmt.Errorf("evaluate (%v, %v): %w", duration, t, err)
		}
		if !p.InDomain || math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			if len(cur) > 0 {
				s.Segments = append(s.Segments, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, plotter.XY{X: t, Y: p.Value})
	}
	if len(cur) > 0 {
		s.Segments = append(s.Segments, cur)
	}
	return s, nil
}

// Curves plots the predicted value against cumulative time for each
// duration.
func Curves(est interp.Estimator, durations, times []float64) (*plot.Plot, error) {
	if len(durations) == 0 || len(times) == 0 {
		return nil, ErrNoData
	}

	p := newPlot("Predicted TDS₀ by valve time")
	drawn := 0
	for i, d := range durations {
		s, err := Sample(est, d, times)
		if err != nil {
			return nil, err
		}
		if err := addSeries(p, s, i); err != nil {
			return nil, err
		}
		drawn += s.Points()
	}
	if drawn == 0 {
		return nil, fmt.Errorf("%w: every point is out of domain", ErrNoData)
	}
	return p, nil
}

// Trajectory plots a controller run: the curves of every duration the run
// used, the target band and the chosen steps.
func Trajectory(est interp.Estimator, res dosing.Result, cfg dosing.Config, step float64) (*plot.Plot, error) {
	if len(res.Trajectory) == 0 {
		return nil, ErrNoData
	}

	var durations []float64
	maxTime := 0.0
	for _, s := range res.Trajectory {
		if !slices.Contains(durations, s.Duration) {
			durations = append(durations, s.Duration)
		}
		maxTime = math.Max(maxTime, s.CumulativeTime)
	}
	times, err := Times(0, maxTime, step)
	if err != nil {
		return nil, err
	}

	p := newPlot(fmt.Sprintf("Dosing run (%d steps, %s)", len(res.Trajectory), res.Reason))
	for i, d := range durations {
		s, err := Sample(est, d, times)
		if err != nil {
			return nil, err
		}
		if err := addSeries(p, s, i); err != nil {
			return nil, err
		}
	}

	for _, h := range []struct {
		label string
		value float64
	}{
		{"target", cfg.TargetValue},
		{"band", cfg.TargetMin},
		{"", cfg.TargetMax},
	} {
		l, err := plotter.NewLine(plotter.XYs{{X: 0, Y: h.value}, {X: maxTime, Y: h.value}})
		if err != nil {
			return nil, fmt.Errorf("band line: %w", err)
		}
		l.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		p.Add(l)
		if h.label != "" {
			p.Legend.Add(h.label, l)
		}
	}

	pts := make(plotter.XYs, len(res.Trajectory))
	for i, s := range res.Trajectory {
		pts[i] = plotter.XY{X: s.CumulativeTime, Y: s.Predicted}
	}
	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, fmt.Errorf("trajectory points: %w", err)
	}
	sc.GlyphStyle.Radius = vg.Points(3)
	sc.GlyphStyle.Shape = plotutil.Shape(0)
	p.Add(sc)
	p.Legend.Add("chosen steps", sc)
	return p, nil
}

// WritePNG renders p as a PNG of the given size.
func WritePNG(w io.Writer, p *plot.Plot, width, height vg.Length) error {
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("render png: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

func newPlot(title string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "cumulative time (ms)"
	p.Y.Label.Text = "TDS₀ (ppm)"
	p.Legend.Top = true
	p.Add(plotter.NewGrid())
	return p
}

func addSeries(p *plot.Plot, s Series, i int) error {
	c := plotutil.Color(i)
	for j, seg := range s.Segments {
		l, err := plotter.NewLine(seg)
		if err != nil {
			return fmt.Errorf("curve %v ms: %w", s.Duration, err)
		}
		l.LineStyle.Color = c
		l.LineStyle.Width = vg.Points(1.5)
		p.Add(l)
		if j == 0 {
			p.Legend.Add(fmt.Sprintf("%g ms", s.Duration), l)
		}
	}
	return nil
}

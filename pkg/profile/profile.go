// Package profile reads dosing and table-generation settings from an INI
// file:
//
//	[controller]
//	min-duration = 25
//	cycle-scale = 25
//	candidate-from = 25
//	candidate-to = 300
//	candidate-step = 1
//	target = 100
//	target-min = 90
//	target-max = 120
//	max-iterations = 1000
//
//	[grid "duration"]
//	min = 25
//	step = 1
//	count = 276
//
//	[grid "cumulative-time"]
//	min = 0
//	step = 250
//	count = 201
//
//	[table]
//	name = default
//	workers = 4
//
// Explicit candidates may be listed with repeated "candidate = ..." lines;
// they take precedence over the candidate-from/to/step range.
package profile

import (
	"fmt"

	"gopkg.in/gcfg.v1"

	"github.com/HatiCode/dosimap/pkg/dosing"
	"github.com/HatiCode/dosimap/pkg/lut"
)

// Grid axis names.
const (
	DurationAxis       = "duration"
	CumulativeTimeAxis = "cumulative-time"
)

type ControllerConfig struct {
	MinDuration float64 `gcfg:"min-duration"`
	CycleScale  float64 `gcfg:"cycle-scale"`

	Candidate     []float64 `gcfg:"candidate"`
	CandidateFrom float64   `gcfg:"candidate-from"`
	CandidateTo   float64   `gcfg:"candidate-to"`
	CandidateStep float64   `gcfg:"candidate-step"`

	Target        float64 `gcfg:"target"`
	TargetMin     float64 `gcfg:"target-min"`
	TargetMax     float64 `gcfg:"target-max"`
	MaxIterations int     `gcfg:"max-iterations"`
}

type GridAxis struct {
	Min   float64 `gcfg:"min"`
	Step  float64 `gcfg:"step"`
	Count int     `gcfg:"count"`
}

type TableConfig struct {
	Name    string `gcfg:"name"`
	Workers int    `gcfg:"workers"`
}

// Profile is a parsed profile file.
type Profile struct {
	Controller ControllerConfig
	Grid       map[string]*GridAxis
	Table      TableConfig
}

var defaultAxes = map[string]GridAxis{
	DurationAxis:       {Min: 25, Step: 1, Count: 276},
	CumulativeTimeAxis: {Min: 0, Step: 250, Count: 201},
}

// Default returns the profile of the reference calibration run.
func Default() *Profile {
	p := &Profile{
		Controller: ControllerConfig{
			MinDuration:   25,
			CycleScale:    25,
			CandidateFrom: 25,
			CandidateTo:   300,
			CandidateStep: 1,
			Target:        100,
			TargetMin:     90,
			TargetMax:     120,
			MaxIterations: dosing.DefaultMaxIterations,
		},
		Grid:  map[string]*GridAxis{},
		Table: TableConfig{Name: "default"},
	}
	p.fillGrid()
	return p
}

// Load reads the profile at path over the defaults and validates it.
func Load(path string) (*Profile, error) {
	p := Default()
	if err := gcfg.FatalOnly(gcfg.ReadFileInto(p, path)); err != nil {
		return nil, fmt.Errorf("read profile %s: %w", path, err)
	}
	if err := p.CheckInit(); err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}

// Parse is Load for an in-memory profile.
func Parse(text string) (*Profile, error) {
	p := Default()
	if err := gcfg.FatalOnly(gcfg.ReadStringInto(p, text)); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	if err := p.CheckInit(); err != nil {
		return nil, err
	}
	return p, nil
}

// CheckInit fills in grid defaults and validates every section.
func (p *Profile) CheckInit() error {
	p.fillGrid()

	for name := range p.Grid {
		if _, ok := defaultAxes[name]; !ok {
			return fmt.Errorf("unknown grid %q (must be %q or %q)", name, DurationAxis, CumulativeTimeAxis)
		}
	}
	for name, g := range p.Grid {
		if err := g.axis().Validate(); err != nil {
			return fmt.Errorf("grid %q: %w", name, err)
		}
	}

	c := p.Controller
	if len(c.Candidate) == 0 {
		if c.CandidateStep <= 0 {
			return fmt.Errorf("controller: candidate-step must be > 0, got %g", c.CandidateStep)
		}
		if c.CandidateTo < c.CandidateFrom {
			return fmt.Errorf("controller: candidate-to %g < candidate-from %g", c.CandidateTo, c.CandidateFrom)
		}
	}
	if err := p.DosingConfig().Validate(); err != nil {
		return fmt.Errorf("controller: %w", err)
	}

	if p.Table.Name == "" {
		p.Table.Name = "default"
	}
	if p.Table.Workers < 0 {
		return fmt.Errorf("table: workers must be >= 0, got %d", p.Table.Workers)
	}
	return nil
}

// DosingConfig converts the [controller] section.
func (p *Profile) DosingConfig() dosing.Config {
	c := p.Controller
	candidates := append([]float64(nil), c.Candidate...)
	if len(candidates) == 0 {
		candidates = dosing.Candidates(c.CandidateFrom, c.CandidateTo, c.CandidateStep)
	}
	return dosing.Config{
		MinDuration:        c.MinDuration,
		CycleScale:         c.CycleScale,
		CandidateDurations: candidates,
		TargetValue:        c.Target,
		TargetMin:          c.TargetMin,
		TargetMax:          c.TargetMax,
		MaxIterations:      c.MaxIterations,
	}
}

// Axes returns the table grid.
func (p *Profile) Axes() (duration, cumulativeTime lut.Axis) {
	p.fillGrid()
	return p.Grid[DurationAxis].axis(), p.Grid[CumulativeTimeAxis].axis()
}

// fillGrid adds missing axes and fills unset step and count fields. A
// section that only sets count keeps min at zero.
func (p *Profile) fillGrid() {
	if p.Grid == nil {
		p.Grid = map[string]*GridAxis{}
	}
	for name, def := range defaultAxes {
		g, ok := p.Grid[name]
		if !ok || g == nil {
			d := def
			p.Grid[name] = &d
			continue
		}
		if g.Step == 0 {
			g.Step = def.Step
		}
		if g.Count == 0 {
			g.Count = def.Count
		}
	}
}

func (g *GridAxis) axis() lut.Axis {
	return lut.Axis{Min: g.Min, Step: g.Step, Count: g.Count}
}

package profile

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/HatiCode/dosimap/pkg/dosing"
	"github.com/HatiCode/dosimap/pkg/lut"
)

func TestDefault_MatchesDosingDefaults(t *testing.T) {
	p := Default()
	if err := p.CheckInit(); err != nil {
		t.Fatalf("CheckInit() error = %v", err)
	}

	got := p.DosingConfig()
	want := dosing.DefaultConfig()
	if got.MinDuration != want.MinDuration || got.CycleScale != want.CycleScale ||
		got.TargetValue != want.TargetValue || got.TargetMin != want.TargetMin ||
		got.TargetMax != want.TargetMax || got.MaxIterations != want.MaxIterations {
		t.Errorf("DosingConfig() = %+v, want %+v", got, want)
	}
	if !slices.Equal(got.CandidateDurations, want.CandidateDurations) {
		t.Errorf("candidates differ: got %d values, want %d", len(got.CandidateDurations), len(want.CandidateDurations))
	}

	d, c := p.Axes()
	if d != (lut.Axis{Min: 25, Step: 1, Count: 276}) {
		t.Errorf("duration axis = %+v", d)
	}
	if c != (lut.Axis{Min: 0, Step: 250, Count: 201}) {
		t.Errorf("cumulative-time axis = %+v", c)
	}
	if p.Table.Name != "default" {
		t.Errorf("table name = %q", p.Table.Name)
	}
}

func TestLoad_ExampleProfile(t *testing.T) {
	p, err := Load(filepath.Join("..", "..", "examples", "profiles", "default.ini"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	def := Default()
	if p.Controller.Target != def.Controller.Target || p.Controller.CycleScale != def.Controller.CycleScale {
		t.Errorf("controller = %+v", p.Controller)
	}
	d, c := p.Axes()
	dd, dc := def.Axes()
	if d != dd || c != dc {
		t.Errorf("axes = %+v %+v, want %+v %+v", d, c, dd, dc)
	}
}

func TestParse_Overrides(t *testing.T) {
	p, err := Parse(`
[controller]
target = 110
target-min = 95
cycle-scale = 10
max-iterations = 50

[grid "duration"]
min = 5
step = 5
count = 60

[table]
name = tank-a
workers = 3
`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	cfg := p.DosingConfig()
	if cfg.TargetValue != 110 || cfg.TargetMin != 95 || cfg.TargetMax != 120 {
		t.Errorf("targets = %v %v %v", cfg.TargetValue, cfg.TargetMin, cfg.TargetMax)
	}
	if cfg.CycleScale != 10 || cfg.MaxIterations != 50 {
		t.Errorf("cycleScale = %v, maxIterations = %d", cfg.CycleScale, cfg.MaxIterations)
	}
	if cfg.MinDuration != 25 {
		t.Errorf("unset min-duration = %v, want default 25", cfg.MinDuration)
	}

	d, c := p.Axes()
	if d != (lut.Axis{Min: 5, Step: 5, Count: 60}) {
		t.Errorf("duration axis = %+v", d)
	}
	if c != (lut.Axis{Min: 0, Step: 250, Count: 201}) {
		t.Errorf("missing cumulative-time axis = %+v, want default", c)
	}
	if p.Table.Name != "tank-a" || p.Table.Workers != 3 {
		t.Errorf("table = %+v", p.Table)
	}
}

func TestParse_Candidates(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []float64
	}{
		{
			name: "explicit list",
			text: "[controller]\ncandidate = 40\ncandidate = 20\ncandidate = 30\n",
			want: []float64{40, 20, 30},
		},
		{
			name: "range",
			text: "[controller]\ncandidate-from = 10\ncandidate-to = 50\ncandidate-step = 20\n",
			want: []float64{10, 30, 50},
		},
		{
			name: "explicit list wins over range",
			text: "[controller]\ncandidate-from = 10\ncandidate-to = 50\ncandidate = 7\n",
			want: []float64{7},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(tt.text)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got := p.DosingConfig().CandidateDurations; !slices.Equal(got, tt.want) {
				t.Errorf("candidates = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr string
	}{
		{name: "unknown grid", text: "[grid \"flow\"]\nmin = 1\nstep = 1\ncount = 2\n", wantErr: "unknown grid"},
		{name: "negative count", text: "[grid \"duration\"]\ncount = -3\n", wantErr: "count"},
		{name: "negative step", text: "[grid \"cumulative-time\"]\nstep = -1\n", wantErr: "step"},
		{name: "band inverted", text: "[controller]\ntarget-min = 130\n", wantErr: "targetMin"},
		{name: "zero cycle scale", text: "[controller]\ncycle-scale = 0\n", wantErr: "cycleScale"},
		{name: "bad candidate step", text: "[controller]\ncandidate-step = 0\n", wantErr: "candidate-step"},
		{name: "reversed candidate range", text: "[controller]\ncandidate-from = 300\ncandidate-to = 25\n", wantErr: "candidate-to"},
		{name: "negative workers", text: "[table]\nworkers = -1\n", wantErr: "workers"},
		{name: "not a number", text: "[controller]\ntarget = lots\n", wantErr: "parse profile"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			if err == nil {
				t.Fatal("Parse() error = nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.ini"))
	if err == nil {
		t.Fatal("Load() error = nil for missing file")
	}
}

func TestLoad_TempFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.ini")
	if err := os.WriteFile(path, []byte("[controller]\ntarget = 105\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if p.Controller.Target != 105 {
		t.Errorf("target = %v", p.Controller.Target)
	}
}

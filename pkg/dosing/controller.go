// Package dosing simulates a sequence of valve actuation cycles, greedily
// choosing at each cycle the duration whose next predicted measurement lands
// closest to a target value.
package dosing

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/HatiCode/dosimap/pkg/interp"
)

// DefaultMaxIterations caps a run when Config.MaxIterations is not set.
const DefaultMaxIterations = 1000

var (
	// ErrInvalidConfig is returned by Validate and Run for unusable configs.
	ErrInvalidConfig = errors.New("invalid controller config")

	// ErrNoViableCandidate marks a cycle where every candidate duration was
	// out of domain. It is logged and counted in Result.Stalls; it never
	// aborts a run.
	ErrNoViableCandidate = errors.New("no viable candidate duration")
)

// Config defines one controller run.
type Config struct {
	// MinDuration is the valve duration of the first cycle (ms).
	MinDuration float64 `json:"minDuration"`

	// CycleScale converts a duration into the cumulative time one cycle adds:
	// cumulativeTime += duration × CycleScale. Must be > 0.
	CycleScale float64 `json:"cycleScale"`

	// CandidateDurations are scanned in order at every cycle. The first
	// candidate with the smallest deviation wins, so order matters.
	// An empty list is allowed and behaves like a run where no candidate is
	// ever viable.
	CandidateDurations []float64 `json:"candidateDurations"`

	// TargetValue is the measurement the selection steers towards.
	TargetValue float64 `json:"targetValue"`

	// TargetMin and TargetMax bound the acceptance band (inclusive). A run
	// ends the first time the current prediction leaves the band.
	TargetMin float64 `json:"targetMin"`
	TargetMax float64 `json:"targetMax"`

	// MaxIterations bounds the number of cycles. If <= 0, defaults to
	// DefaultMaxIterations.
	MaxIterations int `json:"maxIterations"`
}

// DefaultConfig returns the configuration of the reference calibration run:
// 25 ms start, cycle scale 25, candidates 25–300 ms in 1 ms steps, target 100
// with an acceptance band of [90, 120].
func DefaultConfig() Config {
	return Config{
		MinDuration:        25,
		CycleScale:         25,
		CandidateDurations: Candidates(25, 300, 1),
		TargetValue:        100,
		TargetMin:          90,
		TargetMax:          120,
		MaxIterations:      DefaultMaxIterations,
	}
}

// Candidates returns from, from+step, ... up to and including to. Values are
// computed as from + i×step so they do not accumulate rounding error.
func Candidates(from, to, step float64) []float64 {
	if step <= 0 || to < from || !finite(from) || !finite(to) || !finite(step) {
		return nil
	}
	n := int(math.Floor((to-from)/step+1e-9)) + 1
	out := make([]float64, n)
	for i := range out {
		out[i] = from + float64(i)*step
	}
	return out
}

// Validate reports the first problem with c.
func (c Config) Validate() error {
	for name, v := range map[string]float64{
		"minDuration": c.MinDuration,
		"cycleScale":  c.CycleScale,
		"targetValue": c.TargetValue,
		"targetMin":   c.TargetMin,
		"targetMax":   c.TargetMax,
	} {
		if !finite(v) {
			return fmt.Errorf("%w: %s must be finite", ErrInvalidConfig, name)
		}
	}
	if c.MinDuration < 0 {
		return fmt.Errorf("%w: minDuration must be >= 0, got %v", ErrInvalidConfig, c.MinDuration)
	}
	if c.CycleScale <= 0 {
		return fmt.Errorf("%w: cycleScale must be > 0, got %v", ErrInvalidConfig, c.CycleScale)
	}
	if c.TargetMin > c.TargetMax {
		return fmt.Errorf("%w: targetMin %v > targetMax %v", ErrInvalidConfig, c.TargetMin, c.TargetMax)
	}
	for i, d := range c.CandidateDurations {
		if !finite(d) || d < 0 {
			return fmt.Errorf("%w: candidate %d is %v", ErrInvalidConfig, i, d)
		}
	}
	return nil
}

// Overrides replaces selected fields of a Config. Nil fields keep the base
// value.
type Overrides struct {
	TargetValue   *float64 `json:"targetValue,omitempty"`
	TargetMin     *float64 `json:"targetMin,omitempty"`
	TargetMax     *float64 `json:"targetMax,omitempty"`
	MaxIterations *int     `json:"maxIterations,omitempty"`
}

// Apply returns base with the set overrides applied. The candidate slice is
// shared with base.
func (o Overrides) Apply(base Config) Config {
	if o.TargetValue != nil {
		base.TargetValue = *o.TargetValue
	}
	if o.TargetMin != nil {
		base.TargetMin = *o.TargetMin
	}
	if o.TargetMax != nil {
		base.TargetMax = *o.TargetMax
	}
	if o.MaxIterations != nil {
		base.MaxIterations = *o.MaxIterations
	}
	return base
}

// Step is one recorded cycle: the duration in force, the cumulative time at
// which it was evaluated and the prediction there.
type Step struct {
	Duration       float64 `json:"duration"`
	CumulativeTime float64 `json:"cumulativeTime"`
	Predicted      float64 `json:"predicted"`
}

// Reason tells why a run ended.
type Reason string

const (
	ReasonBandExit     Reason = "band-exit"
	ReasonOutOfDomain  Reason = "out-of-domain"
	ReasonIterationCap Reason = "iteration-cap"
)

// Result is the outcome of a run.
type Result struct {
	Trajectory []Step `json:"trajectory"`
	Reason     Reason `json:"reason"`

	// Stalls counts cycles where no candidate was viable. The duration was
	// kept and cumulative time still advanced.
	Stalls int `json:"stalls"`
}

// Controller runs the greedy duration selection against an estimator.
// It holds no run state and may be reused.
type Controller struct {
	est    interp.Estimator
	logger *slog.Logger
}

// New returns a Controller. A nil logger falls back to slog.Default.
func New(est interp.Estimator, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{est: est, logger: logger.With("component", "dosing")}
}

// Run simulates cycles until the prediction leaves the acceptance band, the
// state leaves the estimator's domain, or MaxIterations cycles have run.
// Each cycle costs one evaluation per candidate.
func (c *Controller) Run(cfg Config) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}

	duration := cfg.MinDuration
	cumulative := duration * cfg.CycleScale
	res := Result{Reason: ReasonIterationCap}

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		if !finite(cumulative) {
			res.Reason = ReasonOutOfDomain
			break
		}
		p, err := c.est.Evaluate(duration, cumulative)
		if err != nil {
			return res, fmt.Errorf("evaluate cycle %d: %w", iter, err)
		}
		if !p.InDomain {
			res.Reason = ReasonOutOfDomain
			break
		}
		if p.Value < cfg.TargetMin || p.Value > cfg.TargetMax {
			res.Reason = ReasonBandExit
			break
		}

		res.Trajectory = append(res.Trajectory, Step{
			Duration:       duration,
			CumulativeTime: cumulative,
			Predicted:      p.Value,
		})

		next, err := c.choose(cfg, cumulative)
		switch {
		case errors.Is(err, ErrNoViableCandidate):
			res.Stalls++
			c.logger.Warn("keeping duration",
				"cycle", iter,
				"duration", duration,
				"cumulativeTime", cumulative,
				"error", err,
			)
			next = duration
		case err != nil:
			return res, fmt.Errorf("select cycle %d: %w", iter, err)
		}

		duration = next
		cumulative += next * cfg.CycleScale
	}

	c.logger.Debug("run finished",
		"reason", res.Reason,
		"steps", len(res.Trajectory),
		"stalls", res.Stalls,
	)
	return res, nil
}

// choose scans the candidates in order and returns the one whose next
// prediction deviates least from the target.
func (c *Controller) choose(cfg Config, cumulative float64) (float64, error) {
	best, bestDev := 0.0, math.Inf(1)
	found := false

	for _, cand := range cfg.CandidateDurations {
		next := cumulative + cand*cfg.CycleScale
		if !finite(next) {
			continue
		}
		p, err := c.est.Evaluate(cand, next)
		if err != nil {
			return 0, err
		}
		if !p.InDomain {
			continue
		}
		if dev := math.Abs(p.Value - cfg.TargetValue); dev < bestDev {
			best, bestDev, found = cand, dev, true
		}
	}

	if !found {
		return 0, fmt.Errorf("%w: %d candidates at cumulative time %v",
			ErrNoViableCandidate, len(cfg.CandidateDurations), cumulative)
	}
	return best, nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/HatiCode/dosimap/cmd/predictor/metrics"
	"github.com/HatiCode/dosimap/pkg/dosing"
	"github.com/HatiCode/dosimap/pkg/interp"
	"github.com/HatiCode/dosimap/pkg/lut"
	"github.com/HatiCode/dosimap/pkg/profile"
	"github.com/HatiCode/dosimap/pkg/sources"
	"github.com/HatiCode/dosimap/pkg/storage"
)

var errNotReady = errors.New("predictor not ready: calibration not loaded")

// Predictor owns the interpolator built from one calibration source.
//
// Build runs once at start-up:
//
//	load source → triangulate → generate table → store snapshot
//
// After Build succeeds the predictor answers point evaluations and dosing
// plans from the in-memory interpolator; the generated table is served from
// the store.
type Predictor struct {
	source    sources.Source
	store     storage.Store
	profile   *profile.Profile
	tableName string
	workers   int
	logger    *slog.Logger
	metrics   *metrics.Metrics

	est      atomic.Pointer[interp.Interpolator]
	snapshot atomic.Pointer[storage.Snapshot]
}

// New creates a Predictor. It is not ready until Build returns nil.
func New(
	source sources.Source,
	store storage.Store,
	prof *profile.Profile,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Predictor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Predictor{
		source:    source,
		store:     store,
		profile:   prof,
		tableName: prof.Table.Name,
		workers:   prof.Table.Workers,
		logger:    logger,
		metrics:   m,
	}
}

// Build loads the training set, triangulates it, generates the lookup
// table and stores it.
func (p *Predictor) Build(ctx context.Context) error {
	start := time.Now()

	ts, err := p.source.Load(ctx)
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordError("source", "load_failed")
		}
		return fmt.Errorf("load %s source: %w", p.source.Name(), err)
	}

	est, err := interp.New(ts)
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordError("interp", "build_failed")
		}
		return fmt.Errorf("build interpolator: %w", err)
	}
	buildDuration := time.Since(start)
	if p.metrics != nil {
		p.metrics.RecordBuild(buildDuration.Seconds(), ts.Len())
	}
	p.logger.Info("interpolator built",
		"source", p.source.Name(),
		"samples", ts.Len(),
		"triangles", est.NumTriangles(),
		"duration_ms", buildDuration.Milliseconds(),
	)

	table, genDuration, err := p.generate(ctx, est)
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordError("table", "generate_failed")
		}
		return fmt.Errorf("generate table: %w", err)
	}

	snapshot := storage.Snapshot{
		Name:        p.tableName,
		GeneratedAt: time.Now(),
		Source:      p.source.Name(),
		Samples:     ts.Len(),
		Table:       *table,
	}
	if err := p.store.Put(ctx, snapshot); err != nil {
		if p.metrics != nil {
			p.metrics.RecordError("store", "put_failed")
		}
		return fmt.Errorf("store table %q: %w", p.tableName, err)
	}

	p.snapshot.Store(&snapshot)
	p.est.Store(est)
	p.logger.Info("predictor ready",
		"table", p.tableName,
		"cells", len(table.Values),
		"out_of_domain", table.OutOfDomain(),
		"generate_ms", genDuration.Milliseconds(),
		"total_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (p *Predictor) generate(ctx context.Context, est interp.Estimator) (*lut.Table, time.Duration, error) {
	start := time.Now()

	d, c := p.profile.Axes()
	table, err := lut.NewGenerator(est, p.workers, p.logger).Generate(ctx, d, c)
	if err != nil {
		return nil, 0, err
	}

	duration := time.Since(start)
	if p.metrics != nil {
		p.metrics.RecordTable(duration.Seconds(), table.OutOfDomain())
	}
	return table, duration, nil
}

// KeepStored puts the built table again every interval until ctx is done,
// so a store with a TTL keeps serving it.
func (p *Predictor) KeepStored(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := p.snapshot.Load()
			if snapshot == nil {
				continue
			}
			if err := p.store.Put(ctx, *snapshot); err != nil && ctx.Err() == nil {
				if p.metrics != nil {
					p.metrics.RecordError("store", "refresh_failed")
				}
				p.logger.Warn("failed to refresh stored table", "table", p.tableName, "error", err)
			}
		}
	}
}

// Ready reports whether Build has completed.
func (p *Predictor) Ready() error {
	if p.est.Load() == nil {
		return errNotReady
	}
	return nil
}

// TableName returns the name the generated table is stored under.
func (p *Predictor) TableName() string {
	return p.tableName
}

// Evaluate predicts the measurement at one point.
func (p *Predictor) Evaluate(duration, cumulativeTime float64) (interp.Prediction, error) {
	est := p.est.Load()
	if est == nil {
		return interp.Prediction{}, errNotReady
	}

	pred, err := est.Evaluate(duration, cumulativeTime)
	if p.metrics != nil {
		switch {
		case err != nil:
			p.metrics.RecordEvaluation(metrics.ResultInvalid)
		case pred.InDomain:
			p.metrics.RecordEvaluation(metrics.ResultInDomain)
		default:
			p.metrics.RecordEvaluation(metrics.ResultOutOfDomain)
		}
	}
	return pred, err
}

// Plan runs the dosing controller with the profile's settings and the
// given overrides.
func (p *Predictor) Plan(ctx context.Context, o dosing.Overrides) (dosing.Result, error) {
	est := p.est.Load()
	if est == nil {
		return dosing.Result{}, errNotReady
	}
	if err := ctx.Err(); err != nil {
		return dosing.Result{}, err
	}

	cfg := o.Apply(p.profile.DosingConfig())
	res, err := dosing.New(est, p.logger).Run(cfg)
	if err != nil {
		if p.metrics != nil && !errors.Is(err, dosing.ErrInvalidConfig) {
			p.metrics.RecordError("dosing", "run_failed")
		}
		return res, err
	}

	if p.metrics != nil {
		p.metrics.RecordPlan(len(res.Trajectory), res.Stalls)
	}
	p.logger.Debug("plan complete",
		"steps", len(res.Trajectory),
		"reason", res.Reason,
		"stalls", res.Stalls,
	)
	return res, nil
}

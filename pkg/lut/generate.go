package lut

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/HatiCode/dosimap/pkg/interp"
)

// Generator evaluates an estimator over a quantized grid.
type Generator struct {
	est     interp.Estimator
	workers int
	logger  *slog.Logger
}

// NewGenerator returns a Generator that evaluates rows on up to workers
// goroutines. workers <= 0 means runtime.GOMAXPROCS(0). The estimator must be
// safe for concurrent use.
func NewGenerator(est interp.Estimator, workers int, logger *slog.Logger) *Generator {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{est: est, workers: workers, logger: logger.With("component", "lut")}
}

// Generate fills a table over duration × cumulativeTime. Out-of-domain and
// non-finite predictions become OutOfDomainSentinel. Every cell depends only
// on its own coordinates, so the result does not depend on scheduling.
func (g *Generator) Generate(ctx context.Context, duration, cumulativeTime Axis) (*Table, error) {
	t := &Table{
		Duration:       duration,
		CumulativeTime: cumulativeTime,
		Sentinel:       OutOfDomainSentinel,
	}
	if err := duration.Validate(); err != nil {
		return nil, fmt.Errorf("duration: %w", err)
	}
	if err := cumulativeTime.Validate(); err != nil {
		return nil, fmt.Errorf("cumulative time: %w", err)
	}
	if n := duration.Count * cumulativeTime.Count; n > MaxCells {
		return nil, fmt.Errorf("%w: %d cells exceed limit %d", ErrInvalidAxis, n, MaxCells)
	}

	start := time.Now()
	cols := cumulativeTime.Count
	t.Values = make([]float64, duration.Count*cols)

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)

	for i := 0; i < duration.Count; i++ {
		if gctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d := duration.Value(i)
			row := t.Values[i*cols : (i+1)*cols]
			for j := range row {
				p, err := g.est.Evaluate(d, cumulativeTime.Value(j))
				if err != nil {
					return fmt.Errorf("cell (%d, %d): %w", i, j, err)
				}
				if !p.InDomain || math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
					row[j] = OutOfDomainSentinel
					continue
				}
				row[j] = p.Value
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.logger.Debug("table generated",
		"rows", duration.Count,
		"cols", cols,
		"outOfDomain", t.OutOfDomain(),
		"workers", g.workers,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return t, nil
}

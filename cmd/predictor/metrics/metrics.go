// Package metrics provides Prometheus instrumentation for the predictor.
//
// Metrics exposed:
//   - dosimap_interpolator_build_seconds: time to load the source and triangulate
//   - dosimap_evaluations_total: point evaluations by result
//   - dosimap_table_generate_seconds: time to generate the lookup table
//   - dosimap_table_out_of_domain_cells: sentinel cells in the current table
//   - dosimap_training_samples: size of the loaded training set
//   - dosimap_plan_steps: trajectory length of dosing plans
//   - dosimap_rpc_seconds: gRPC call latency by method and status code
//   - dosimap_errors_total: errors by component and reason
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Evaluation results.
const (
	ResultInDomain    = "in_domain"
	ResultOutOfDomain = "out_of_domain"
	ResultInvalid     = "invalid"
)

// Metrics holds all Prometheus metrics for the predictor.
type Metrics struct {
	BuildSeconds          prometheus.Histogram
	EvaluationsTotal      *prometheus.CounterVec
	TableGenerateSeconds  prometheus.Histogram
	TableOutOfDomainCells prometheus.Gauge
	TrainingSamples       prometheus.Gauge
	PlanSteps             prometheus.Histogram
	RPCSeconds            *prometheus.HistogramVec
	ErrorsTotal           *prometheus.CounterVec
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BuildSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "dosimap_interpolator_build_seconds",
			Help:    "Time spent loading calibration data and triangulating it",
			Buckets: prometheus.DefBuckets,
		}),

		EvaluationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dosimap_evaluations_total",
			Help: "Point evaluations by result",
		}, []string{"result"}),

		TableGenerateSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "dosimap_table_generate_seconds",
			Help:    "Time spent generating the lookup table",
			Buckets: prometheus.DefBuckets,
		}),

		TableOutOfDomainCells: f.NewGauge(prometheus.GaugeOpts{
			Name: "dosimap_table_out_of_domain_cells",
			Help: "Cells of the current table holding the out-of-domain sentinel",
		}),

		TrainingSamples: f.NewGauge(prometheus.GaugeOpts{
			Name: "dosimap_training_samples",
			Help: "Number of samples in the loaded training set",
		}),

		PlanSteps: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "dosimap_plan_steps",
			Help:    "Trajectory length of dosing plans",
			Buckets: prometheus.ExponentialBuckets(1, 2, 11),
		}),

		RPCSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dosimap_rpc_seconds",
			Help:    "gRPC call latency by method and status code",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "code"}),

		ErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dosimap_errors_total",
			Help: "Total number of errors by component and reason",
		}, []string{"component", "reason"}),
	}
}

// RecordBuild records the time spent building the interpolator.
func (m *Metrics) RecordBuild(seconds float64, samples int) {
	m.BuildSeconds.Observe(seconds)
	m.TrainingSamples.Set(float64(samples))
}

// RecordEvaluation counts one evaluation.
func (m *Metrics) RecordEvaluation(result string) {
	m.EvaluationsTotal.WithLabelValues(result).Inc()
}

// RecordTable records a table generation.
func (m *Metrics) RecordTable(seconds float64, outOfDomain int) {
	m.TableGenerateSeconds.Observe(seconds)
	m.TableOutOfDomainCells.Set(float64(outOfDomain))
}

// RecordPlan records a finished dosing plan. Stalled cycles are counted as
// dosing errors.
func (m *Metrics) RecordPlan(steps, stalls int) {
	m.PlanSteps.Observe(float64(steps))
	if stalls > 0 {
		m.ErrorsTotal.WithLabelValues("dosing", "no_viable_candidate").Add(float64(stalls))
	}
}

// RecordRPC records one gRPC call.
func (m *Metrics) RecordRPC(method, code string, seconds float64) {
	m.RPCSeconds.WithLabelValues(method, code).Observe(seconds)
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}

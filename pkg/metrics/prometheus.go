package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder exposes screener metrics via Prometheus
// ⭐ SSOT: 메트릭 정의는 여기서만
type Recorder struct {
	registry *prometheus.Registry

	modelInvocations *prometheus.CounterVec
	modelFailures    *prometheus.CounterVec
	modelsSkipped    *prometheus.CounterVec
	coverage         prometheus.Gauge
	backtestRuns     *prometheus.CounterVec
	backtestTrades   *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	latency          *prometheus.HistogramVec
}

// New creates a recorder backed by its own registry
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		modelInvocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "screener_model_invocations_total",
				Help: "Scoring model invocations by outcome",
			},
			[]string{"model", "outcome"}, // outcome: signal, no_data, error
		),
		modelFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "screener_model_failures_total",
				Help: "Scoring model invocation failures",
			},
			[]string{"model"},
		),
		modelsSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "screener_models_skipped_total",
				Help: "Models skipped for a whole aggregation run",
			},
			[]string{"model"},
		),
		coverage: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "screener_consensus_coverage_ratio",
				Help: "Share of model/ticker pairs that produced an evaluation in the last run",
			},
		),
		backtestRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "screener_backtest_runs_total",
				Help: "Backtest runs by model and status",
			},
			[]string{"model", "status"},
		),
		backtestTrades: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "screener_backtest_trades_total",
				Help: "Closed simulated trades by exit reason",
			},
			[]string{"exit_reason"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "screener_store_cache_lookups_total",
				Help: "Time series cache lookups by result",
			},
			[]string{"layer", "result"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "screener_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// Handler serves the registry in Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry (tests)
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// RecordModelInvocation records one model/ticker evaluation outcome
func (r *Recorder) RecordModelInvocation(model, outcome string) {
	if r == nil {
		return
	}
	r.modelInvocations.WithLabelValues(model, outcome).Inc()
	if outcome == "error" {
		r.modelFailures.WithLabelValues(model).Inc()
	}
}

// RecordModelSkipped records a model dropped from an aggregation run
func (r *Recorder) RecordModelSkipped(model string) {
	if r == nil {
		return
	}
	r.modelsSkipped.WithLabelValues(model).Inc()
}

// RecordCoverage records the coverage ratio of the last aggregation
func (r *Recorder) RecordCoverage(ratio float64) {
	if r == nil {
		return
	}
	r.coverage.Set(ratio)
}

// RecordBacktest records a finished backtest run
func (r *Recorder) RecordBacktest(model, status string) {
	if r == nil {
		return
	}
	r.backtestRuns.WithLabelValues(model, status).Inc()
}

// RecordTrade records a closed simulated trade
func (r *Recorder) RecordTrade(exitReason string) {
	if r == nil {
		return
	}
	r.backtestTrades.WithLabelValues(exitReason).Inc()
}

// RecordCacheLookup records a cache hit or miss
func (r *Recorder) RecordCacheLookup(layer string, hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(layer, result).Inc()
}

// RecordLatency records operation latency in seconds
func (r *Recorder) RecordLatency(op string, seconds float64) {
	if r == nil {
		return
	}
	r.latency.WithLabelValues(op).Observe(seconds)
}

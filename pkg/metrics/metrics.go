// Package metrics defines the Prometheus collectors for training runs and
// exposes an HTTP handler for scraping. Every recording method is safe to
// call on a nil *Metrics so components can run without instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for a run.
type Metrics struct {
	TrialsTotal         *prometheus.CounterVec
	TrainingDuration    *prometheus.HistogramVec
	TrainingIterations  prometheus.Histogram
	DocumentsInferred   prometheus.Counter
	FoldCoherence       *prometheus.GaugeVec
	FoldsFailedTotal    *prometheus.CounterVec
	SelectedTopics      *prometheus.GaugeVec
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	ExportedRowsTotal   *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them on reg. A nil reg uses the
// process-wide default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		TrialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lda_trials_total",
				Help: "Training trials by outcome (ok, failed).",
			},
			[]string{"status"},
		),
		TrainingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lda_training_duration_seconds",
				Help:    "Wall time of a single training trial by topic count.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"k"},
		),
		TrainingIterations: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lda_training_iterations",
				Help:    "Variational passes run before a trial stopped.",
				Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
			},
		),
		DocumentsInferred: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lda_documents_inferred_total",
				Help: "Held-out documents assigned a topic distribution.",
			},
		),
		FoldCoherence: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "crossval_fold_coherence",
				Help: "Held-out coherence of each fold's chosen model.",
			},
			[]string{"fold"},
		),
		FoldsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crossval_folds_failed_total",
				Help: "Folds that produced no model, by failure kind.",
			},
			[]string{"reason"},
		),
		SelectedTopics: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "crossval_selected_topics",
				Help: "Topic count chosen for each fold.",
			},
			[]string{"fold"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "model_cache_hits_total",
				Help: "Trained models served from the cache.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "model_cache_misses_total",
				Help: "Model cache lookups that required training.",
			},
		),
		ExportedRowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "export_rows_total",
				Help: "Rows written per export sink.",
			},
			[]string{"sink"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.TrialsTotal,
		m.TrainingDuration,
		m.TrainingIterations,
		m.DocumentsInferred,
		m.FoldCoherence,
		m.FoldsFailedTotal,
		m.SelectedTopics,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.ExportedRowsTotal,
		m.CircuitBreakerState,
	)
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	} else {
		m.gatherer = prometheus.DefaultGatherer
	}
	return m
}

// ObserveTrial records one finished training trial.
func (m *Metrics) ObserveTrial(k int, d time.Duration, iterations int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.TrialsTotal.WithLabelValues("failed").Inc()
		return
	}
	m.TrialsTotal.WithLabelValues("ok").Inc()
	m.TrainingDuration.WithLabelValues(strconv.Itoa(k)).Observe(d.Seconds())
	m.TrainingIterations.Observe(float64(iterations))
}

func (m *Metrics) AddInferred(n int) {
	if m == nil {
		return
	}
	m.DocumentsInferred.Add(float64(n))
}

// ObserveFold records the outcome of one fold.
func (m *Metrics) ObserveFold(fold, k int, coherence float64) {
	if m == nil {
		return
	}
	label := strconv.Itoa(fold)
	m.FoldCoherence.WithLabelValues(label).Set(coherence)
	m.SelectedTopics.WithLabelValues(label).Set(float64(k))
}

func (m *Metrics) FoldFailed(reason string) {
	if m == nil {
		return
	}
	m.FoldsFailedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.CacheMissesTotal.Inc()
}

func (m *Metrics) AddExported(sink string, rows int) {
	if m == nil {
		return
	}
	m.ExportedRowsTotal.WithLabelValues(sink).Add(float64(rows))
}

func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// Handler returns the Prometheus scrape HTTP handler for the registry the
// collectors were registered on.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

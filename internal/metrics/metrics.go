// Package metrics exposes Prometheus instrumentation for the assessment pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all Sentinela metrics on a dedicated Prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	AssessmentsTotal   *prometheus.CounterVec
	AssessmentDuration *prometheus.HistogramVec
	EntitiesByLevel    *prometheus.GaugeVec
	CacheResults       *prometheus.CounterVec
	ExpensesIngested   prometheus.Counter
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

// New creates and registers every metric.
func New() *Registry {
	m := &Registry{
		reg: prometheus.NewRegistry(),

		AssessmentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinela_assessments_total",
				Help: "Assessments run, by outcome",
			},
			[]string{"result"},
		),

		AssessmentDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentinela_assessment_phase_seconds",
				Help:    "Duration of each assessment phase in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"phase"},
		),

		EntitiesByLevel: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sentinela_entities_by_risk_level",
				Help: "Entities in the latest assessment, by risk level",
			},
			[]string{"dataset", "level"},
		),

		CacheResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinela_cache_requests_total",
				Help: "Assessment cache lookups, by result",
			},
			[]string{"result"},
		),

		ExpensesIngested: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sentinela_expenses_ingested_total",
				Help: "Ledger lines persisted",
			},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinela_http_requests_total",
				Help: "HTTP requests, by method, route and status",
			},
			[]string{"method", "route", "status"},
		),

		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentinela_http_request_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}

	m.reg.MustRegister(
		m.AssessmentsTotal,
		m.AssessmentDuration,
		m.EntitiesByLevel,
		m.CacheResults,
		m.ExpensesIngested,
		m.HTTPRequests,
		m.HTTPDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObservePhase records how long an assessment phase took.
func (m *Registry) ObservePhase(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.AssessmentDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// RecordAssessment counts an assessment outcome: "ok", "cached" or "error".
func (m *Registry) RecordAssessment(result string) {
	if m == nil {
		return
	}
	m.AssessmentsTotal.WithLabelValues(result).Inc()
}

// SetLevelCounts publishes the risk level distribution of a dataset.
func (m *Registry) SetLevelCounts(dataset string, counts map[string]int) {
	if m == nil {
		return
	}
	for level, n := range counts {
		m.EntitiesByLevel.WithLabelValues(dataset, level).Set(float64(n))
	}
}

// RecordCache counts a cache hit or miss.
func (m *Registry) RecordCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheResults.WithLabelValues(result).Inc()
}

// AddExpenses counts persisted ledger lines.
func (m *Registry) AddExpenses(n int) {
	if m == nil {
		return
	}
	m.ExpensesIngested.Add(float64(n))
}

// ObserveHTTP records one served request.
func (m *Registry) ObserveHTTP(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}

// Gatherer exposes the underlying registry, mainly for tests.
func (m *Registry) Gatherer() prometheus.Gatherer {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

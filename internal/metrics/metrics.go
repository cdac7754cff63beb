// Package metrics exposes Prometheus collectors for the recommendation engine
// and the HTTP surface:
//   - oncology_recommendations_total{cancer_type,outcome}
//   - oncology_narratives_total{source}
//   - oncology_llm_request_duration_seconds{provider,status}
//   - oncology_knowledge_base_loads_total{cancer_type,result}
//   - http_request_total, http_request_duration_seconds, http_request_in_flight
//   - rate_limiter_buckets_total
//
// Collectors live on their own registry so tests and multiple servers in one
// process do not collide on the global default.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oncology-therapy-mcp-server/internal/domain"
)

// Metrics holds every collector registered by the service.
type Metrics struct {
	registry *prometheus.Registry

	Recommendations    *prometheus.CounterVec
	Narratives         *prometheus.CounterVec
	LLMRequestDuration *prometheus.HistogramVec
	KnowledgeBaseLoads *prometheus.CounterVec

	HTTPRequestTotals       *prometheus.CounterVec
	HTTPRequestDuration     *prometheus.HistogramVec
	HTTPRequestInFlight     prometheus.Gauge
	RateLimiterBucketsTotal prometheus.Gauge
}

// New creates and registers all collectors on a fresh registry, together
// with the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Recommendations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oncology_recommendations_total",
				Help: "Recommendation requests by cancer type and outcome",
			},
			[]string{"cancer_type", "outcome"},
		),
		Narratives: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oncology_narratives_total",
				Help: "Composed narratives by source",
			},
			[]string{"source"},
		),
		LLMRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oncology_llm_request_duration_seconds",
				Help:    "LLM provider call latency",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 40, 60},
			},
			[]string{"provider", "status"},
		),
		KnowledgeBaseLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oncology_knowledge_base_loads_total",
				Help: "Knowledge base loads that reached the source",
			},
			[]string{"cancer_type", "result"},
		),
		HTTPRequestTotals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_request_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "path"},
		),
		HTTPRequestInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_request_in_flight",
				Help: "Current in-flight requests",
			},
		),
		RateLimiterBucketsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rate_limiter_buckets_total",
				Help: "Number of per-client rate limiter buckets",
			},
		),
	}

	m.registry.MustRegister(
		m.Recommendations,
		m.Narratives,
		m.LLMRequestDuration,
		m.KnowledgeBaseLoads,
		m.HTTPRequestTotals,
		m.HTTPRequestDuration,
		m.HTTPRequestInFlight,
		m.RateLimiterBucketsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRecommendation matches service.OutcomeObserver.
func (m *Metrics) ObserveRecommendation(cancerType domain.CancerType, outcome string, _ time.Duration) {
	label := string(cancerType)
	if !cancerType.IsValid() {
		label = "unknown"
	}
	m.Recommendations.WithLabelValues(label, outcome).Inc()
}

// ObserveNarrative matches service.NarrativeObserver.
func (m *Metrics) ObserveNarrative(source domain.NarrativeSource) {
	m.Narratives.WithLabelValues(string(source)).Inc()
}

// ObserveLLMCall matches llm.CallObserver.
func (m *Metrics) ObserveLLMCall(provider, status string, duration time.Duration) {
	m.LLMRequestDuration.WithLabelValues(provider, status).Observe(duration.Seconds())
}

// ObserveKnowledgeBaseLoad matches knowledgebase.LoadObserver.
func (m *Metrics) ObserveKnowledgeBaseLoad(cancerType domain.CancerType, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.KnowledgeBaseLoads.WithLabelValues(string(cancerType), result).Inc()
}

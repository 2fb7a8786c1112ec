package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vidrepo/internal/store"
)

const namespace = "vidrepo"

// Metrics groups the collectors exported on /metrics. It uses its own
// registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	Commits         *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	StageFailures   *prometheus.CounterVec
	AssetsIngested  *prometheus.CounterVec
	AssetsInFlight  prometheus.Gauge
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	EventSubscribed prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_total",
			Help:      "Commits created, by author.",
		}, []string{"author"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_stage_duration_seconds",
			Help:      "Time spent in each ingestion stage.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"stage"}),
		StageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_stage_failures_total",
			Help:      "Collaborator failures substituted with empty results.",
		}, []string{"stage"}),
		AssetsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assets_ingested_total",
			Help:      "Assets that reached a terminal status, by kind.",
		}, []string{"kind"}),
		AssetsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "assets_in_flight",
			Help:      "Assets currently moving through the pipeline.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests, by route and status code.",
		}, []string{"route", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		EventSubscribed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_subscribers",
			Help:      "Open websocket event streams.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Commits,
		m.StageDuration,
		m.StageFailures,
		m.AssetsIngested,
		m.AssetsInFlight,
		m.HTTPRequests,
		m.HTTPDuration,
		m.EventSubscribed,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// CommitCreated counts a commit. It satisfies commit.Observer.
func (m *Metrics) CommitCreated(_ context.Context, _ *store.Repository, c store.Commit) error {
	if m == nil {
		return nil
	}
	m.Commits.WithLabelValues(c.Author).Inc()
	return nil
}

// ObserveStage records how long a pipeline stage took.
func (m *Metrics) ObserveStage(stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// StageFailed counts a substituted collaborator failure.
func (m *Metrics) StageFailed(stage string) {
	if m == nil {
		return
	}
	m.StageFailures.WithLabelValues(stage).Inc()
}

// AssetStarted and AssetFinished bracket one pipeline run.
func (m *Metrics) AssetStarted() {
	if m == nil {
		return
	}
	m.AssetsInFlight.Inc()
}

func (m *Metrics) AssetFinished(kind store.AssetKind, status store.AssetStatus) {
	if m == nil {
		return
	}
	m.AssetsInFlight.Dec()
	if status.IsTerminal() {
		m.AssetsIngested.WithLabelValues(string(kind)).Inc()
	}
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "service_alerts"

type Metrics struct {
	registry *prometheus.Registry

	runs                 *prometheus.CounterVec
	runDuration          prometheus.Histogram
	outcomes             *prometheus.CounterVec
	invalidRecords       prometheus.Counter
	artifacts            *prometheus.CounterVec
	notifications        *prometheus.CounterVec
	collaboratorFailures *prometheus.CounterVec
	snapshotEntries      prometheus.Gauge
	lastSuccessTS        prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.runs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Pipeline runs by kind and result",
	}, []string{"kind", "result"})
	m.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Time spent in a pipeline run",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})
	m.outcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alerts_classified_total",
		Help:      "Alerts classified by reconciliation outcome",
	}, []string{"outcome"})
	m.invalidRecords = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "invalid_records_total",
		Help:      "Raw records excluded by validation",
	})
	m.artifacts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "artifacts_total",
		Help:      "Artifact writes by result",
	}, []string{"result"})
	m.notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Change notifications by result",
	}, []string{"result"})
	m.collaboratorFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "collaborator_failures_total",
		Help:      "Geocoder and summariser calls that left their field empty",
	}, []string{"collaborator", "reason"})
	m.snapshotEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "snapshot_entries",
		Help:      "Alerts known to the snapshot store after the last run",
	})
	m.lastSuccessTS = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last successful run",
	})

	m.registry.MustRegister(
		m.runs, m.runDuration, m.outcomes, m.invalidRecords, m.artifacts,
		m.notifications, m.collaboratorFailures, m.snapshotEntries, m.lastSuccessTS,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRun(kind, result string, duration time.Duration) {
	m.runs.WithLabelValues(kind, result).Inc()
	m.runDuration.Observe(duration.Seconds())
	if result == "success" {
		m.lastSuccessTS.Set(float64(time.Now().Unix()))
	}
}

func (m *Metrics) AddOutcome(outcome string, n int) {
	m.outcomes.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) AddInvalid(n int) {
	m.invalidRecords.Add(float64(n))
}

func (m *Metrics) AddArtifacts(result string, n int) {
	m.artifacts.WithLabelValues(result).Add(float64(n))
}

func (m *Metrics) IncNotification(result string) {
	m.notifications.WithLabelValues(result).Inc()
}

func (m *Metrics) IncCollaboratorFailure(collaborator, reason string) {
	m.collaboratorFailures.WithLabelValues(collaborator, reason).Inc()
}

func (m *Metrics) SetSnapshotEntries(n int) {
	m.snapshotEntries.Set(float64(n))
}

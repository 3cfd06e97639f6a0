// Package metrics exposes sync pass and queue metrics to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/fieldsync/internal/engine"
)

const namespace = "fieldsync"

// Metrics is an engine.Recorder backed by a dedicated Prometheus registry.
type Metrics struct {
	registry *prometheus.Registry

	passes        *prometheus.CounterVec
	passDuration  prometheus.Histogram
	entries       *prometheus.CounterVec
	syncedIDs     prometheus.Counter
	pendingDepth  prometheus.Gauge
	quarantined   prometheus.Gauge
	online        prometheus.Gauge
	lastPassStamp prometheus.Gauge
}

var _ engine.Recorder = (*Metrics)(nil)

// New creates Metrics on a fresh registry that also carries the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		passes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_passes_total",
			Help:      "Sync passes by result (completed, auth_aborted, offline, skipped).",
		}, []string{"result"}),
		passDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_pass_duration_seconds",
			Help:      "Wall time of sync passes that replayed at least one entry.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		entries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_entries_total",
			Help:      "Replayed queue entries by table, action and outcome.",
		}, []string{"table", "action", "outcome"}),
		syncedIDs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_id_mappings_total",
			Help:      "Client ids remapped to server ids.",
		}),
		pendingDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_entries",
			Help:      "Pending entries in user-facing tables.",
		}),
		quarantined: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quarantined_entries",
			Help:      "Entries in quarantine.",
		}),
		online: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online",
			Help:      "1 when the remote store is considered reachable.",
		}),
		lastPassStamp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_pass_timestamp_seconds",
			Help:      "Unix time the last non-skipped pass finished.",
		}),
	}
}

// PassFinished implements engine.Recorder.
func (m *Metrics) PassFinished(r *engine.PassResult) {
	switch {
	case r.Skipped:
		m.passes.WithLabelValues("skipped").Inc()
		return
	case r.Offline:
		m.passes.WithLabelValues("offline").Inc()
	case r.AuthAborted():
		m.passes.WithLabelValues("auth_aborted").Inc()
	default:
		m.passes.WithLabelValues("completed").Inc()
	}
	m.lastPassStamp.SetToCurrentTime()
	if r.Attempted > 0 {
		m.passDuration.Observe(r.Duration.Seconds())
	}
	m.syncedIDs.Add(float64(len(r.SyncedIDs)))
}

// EntryFinished implements engine.Recorder.
func (m *Metrics) EntryFinished(table, action, outcome string) {
	m.entries.WithLabelValues(table, action, outcome).Inc()
}

// ObserveStatus records queue depths and connectivity.
func (m *Metrics) ObserveStatus(st engine.Status) {
	m.pendingDepth.Set(float64(st.Pending))
	m.quarantined.Set(float64(st.Quarantined))
	if st.Online {
		m.online.Set(1)
	} else {
		m.online.Set(0)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

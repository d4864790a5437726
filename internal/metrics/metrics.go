// Package metrics - prometheus-метрики кэша деревьев и сервиса.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "comment_tree"

// Metrics реализует treecache.Recorder и service.Recorder.
type Metrics struct {
	hits       prometheus.Counter
	misses     prometheus.Counter
	rebuilds   *prometheus.CounterVec
	rebuildDur prometheus.Histogram
	dropped    *prometheus.CounterVec
	snapshots  prometheus.Gauge
	stale      *prometheus.CounterVec
}

// New регистрирует метрики в reg (nil - prometheus.DefaultRegisterer).
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		hits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Tree cache lookups served from memory.",
		}),
		misses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Tree cache lookups that required a rebuild.",
		}),
		rebuilds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "rebuilds_total",
			Help:      "Snapshot rebuilds from the comment store by result.",
		}, []string{"result"}),
		rebuildDur: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "rebuild_duration_seconds",
			Help:      "Time spent loading and linking a discussion.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "dropped_total",
			Help:      "Snapshots removed from the cache by reason.",
		}, []string{"reason"}),
		snapshots: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "snapshots",
			Help:      "Snapshots currently held in memory.",
		}),
		stale: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "expand",
			Name:      "stale_rebuilds_total",
			Help:      "Rebuilds forced while expanding a marker, by reason.",
		}, []string{"reason"}),
	}
}

func (m *Metrics) Hit()  { m.hits.Inc() }
func (m *Metrics) Miss() { m.misses.Inc() }

// Rebuilt учитывает пересборку; длительность пишется только для успешных.
func (m *Metrics) Rebuilt(d time.Duration, err error) {
	if err != nil {
		m.rebuilds.WithLabelValues("error").Inc()
		return
	}

	m.rebuilds.WithLabelValues("ok").Inc()
	m.rebuildDur.Observe(d.Seconds())
}

func (m *Metrics) Dropped(reason string) { m.dropped.WithLabelValues(reason).Inc() }

func (m *Metrics) Size(n int) { m.snapshots.Set(float64(n)) }

func (m *Metrics) StaleRebuild(reason string) { m.stale.WithLabelValues(reason).Inc() }

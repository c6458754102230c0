package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// fetch/match cycle.
type Metrics struct {
	FetchAttempts    *prometheus.CounterVec   // labels: class, outcome
	FetchDuration    *prometheus.HistogramVec // labels: class
	CacheLookups     *prometheus.CounterVec   // labels: result={hit,miss}
	CyclesCompleted  prometheus.Counter
	SnoozesScheduled prometheus.Counter
	CoordinatorState prometheus.Gauge // 0=off 1=idle 2=awaiting_network 3=snoozed 4=done
	AlarmEnabled     prometheus.Gauge

	MatchesFound         *prometheus.CounterVec // labels: scope={local,global}
	NotificationsEmitted *prometheus.CounterVec // labels: policy
	BroadcastMessages    prometheus.Counter
	RecordsPruned        prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FetchAttempts,
		m.FetchDuration,
		m.CacheLookups,
		m.CyclesCompleted,
		m.SnoozesScheduled,
		m.CoordinatorState,
		m.AlarmEnabled,
		m.MatchesFound,
		m.NotificationsEmitted,
		m.BroadcastMessages,
		m.RecordsPruned,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "geohash",
			Name:      "fetch_attempts_total",
			Help:      "Index fetch attempts by graticule class and outcome.",
		}, []string{"class", "outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "geohash",
			Name:      "fetch_duration_seconds",
			Help:      "Index source request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"class"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "geohash",
			Name:      "cache_lookups_total",
			Help:      "Stock cache lookups by result.",
		}, []string{"result"}),
		CyclesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "geohash",
			Name:      "cycles_completed_total",
			Help:      "Fully resolved daily fetch cycles.",
		}),
		SnoozesScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "geohash",
			Name:      "snoozes_scheduled_total",
			Help:      "Retry wakes scheduled after not-posted or transient results.",
		}),
		CoordinatorState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "geohash",
			Name:      "coordinator_state",
			Help:      "Current coordinator state (0=off 1=idle 2=awaiting_network 3=snoozed 4=done).",
		}),
		AlarmEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "geohash",
			Name:      "alarm_enabled",
			Help:      "1 when the daily fetch alarm is registered, 0 otherwise.",
		}),
		MatchesFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "geohash",
			Name:      "matches_found_total",
			Help:      "Known locations within threshold of a destination, by scope.",
		}, []string{"scope"}),
		NotificationsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "geohash",
			Name:      "notifications_emitted_total",
			Help:      "Notifications posted after a matching pass, by grouping policy.",
		}, []string{"policy"}),
		BroadcastMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "geohash",
			Name:      "broadcast_messages_total",
			Help:      "Destination records published to the broadcast topic.",
		}),
		RecordsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "geohash",
			Name:      "records_pruned_total",
			Help:      "Stock records removed by the retention sweep.",
		}),
	}
}

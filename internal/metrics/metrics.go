// Package metrics exposes Prometheus instrumentation of the market client.
package metrics

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ubc-biztech/btx/internal/domain"
)

const namespace = "btx"

var connectionStates = []domain.ConnectionState{
	domain.ConnectionDisconnected,
	domain.ConnectionConnecting,
	domain.ConnectionConnected,
	domain.ConnectionError,
}

// Metrics collectors of one exchange view, registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Snapshots      prometheus.Counter
	SnapshotErrors prometheus.Counter
	FetchErrors    *prometheus.CounterVec
	PushMessages   *prometheus.CounterVec
	DroppedPoints  *prometheus.CounterVec
	Trades         *prometheus.CounterVec
	Projects       prometheus.Gauge
	Connection     *prometheus.GaugeVec
}

// New creates the collectors. With withRuntime set, Go runtime and process
// collectors are registered as well.
func New(withRuntime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Snapshots fetched and applied.",
		}),
		SnapshotErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_errors_total",
			Help:      "Snapshot fetches that failed.",
		}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Failed reads by resource.",
		}, []string{"resource"}),
		PushMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_messages_total",
			Help:      "Push price updates by merge result.",
		}, []string{"result"}),
		DroppedPoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_points_total",
			Help:      "Price points rejected by the history merge.",
		}, []string{"channel"}),
		Trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Trade commands by side and outcome.",
		}, []string{"side", "result"}),
		Projects: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "projects",
			Help:      "Projects tracked locally.",
		}),
		Connection: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "push_connection_state",
			Help:      "1 for the current push connection state, 0 otherwise.",
		}, []string{"state"}),
	}

	m.registry.MustRegister(
		m.Snapshots,
		m.SnapshotErrors,
		m.FetchErrors,
		m.PushMessages,
		m.DroppedPoints,
		m.Trades,
		m.Projects,
		m.Connection,
	)
	if withRuntime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m.SetConnectionState(domain.ConnectionDisconnected)
	return m
}

// SetConnectionState marks state as the only active connection state.
func (m *Metrics) SetConnectionState(state domain.ConnectionState) {
	for _, s := range connectionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.Connection.WithLabelValues(string(s)).Set(v)
	}
}

// TradeResult records one trade command outcome.
func (m *Metrics) TradeResult(side domain.TradeSide, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Trades.WithLabelValues(side.String(), result).Inc()
}

// BroadcastStats delivery counters of a market event broadcaster.
type BroadcastStats interface {
	Subscribers() int
	Dropped() uint64
}

// WatchBroadcaster exports the subscriber count and dropped deliveries of b.
// Only one broadcaster can be watched per registry.
func (m *Metrics) WatchBroadcaster(b BroadcastStats) error {
	subscribers := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "event_subscribers",
		Help:      "Active market event subscriptions.",
	}, func() float64 { return float64(b.Subscribers()) })
	dropped := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "event_deliveries_dropped_total",
		Help:      "Market events skipped because a subscriber was slow.",
	}, func() float64 { return float64(b.Dropped()) })

	if err := m.registry.Register(subscribers); err != nil {
		return errors.Wrap(err, "register event subscribers")
	}
	if err := m.registry.Register(dropped); err != nil {
		m.registry.Unregister(subscribers)
		return errors.Wrap(err, "register dropped events")
	}
	return nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

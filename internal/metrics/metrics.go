// Package metrics holds the Prometheus collectors shared by the services.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cloutmarket"

// Metrics is the collector set.
type Metrics struct {
	registry *prometheus.Registry

	// refresh loop
	RefreshCycles   prometheus.Counter
	RefreshSkipped  prometheus.Counter
	CycleDuration   prometheus.Histogram
	SignalFallbacks prometheus.Counter
	CircuitTrips    prometheus.Counter

	// trading
	OrdersAccepted *prometheus.CounterVec
	OrdersRejected *prometheus.CounterVec
	Trades         *prometheus.CounterVec
	OrdersExpired  prometheus.Counter

	// events
	EventsTriggered *prometheus.CounterVec
	EventsDropped   prometheus.Counter

	// adapters
	CheckpointErrors prometheus.Counter
	PublishErrors    prometheus.Counter
	WSClients        prometheus.Gauge
}

// New creates the collectors and registers them, along with the Go and
// process collectors, on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		RefreshCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "cycles_total",
			Help:      "Completed price refresh cycles",
		}),
		RefreshSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "skipped_total",
			Help:      "Refresh ticks skipped because a cycle was still running",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "cycle_duration_seconds",
			Help:      "Refresh cycle duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		SignalFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "signal_fallbacks_total",
			Help:      "Instruments priced from the synthetic estimate",
		}),
		CircuitTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "circuit_breaker_trips_total",
			Help:      "Percent changes clamped by the circuit breaker",
		}),

		OrdersAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "orders_accepted_total",
			Help:      "Accepted orders by kind",
		}, []string{"kind"}),
		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "orders_rejected_total",
			Help:      "Rejected orders by reason",
		}, []string{"reason"}),
		Trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "trades_total",
			Help:      "Executed trades by counterparty",
		}, []string{"counterparty"}),
		OrdersExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "orders_expired_total",
			Help:      "Resting orders removed on expiry",
		}),

		EventsTriggered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "triggered_total",
			Help:      "Market events triggered by type",
		}, []string{"type"}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Market events dropped because the subscriber channel was full",
		}),

		CheckpointErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "checkpoint_errors_total",
			Help:      "Failed checkpoint writes",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "publish",
			Name:      "errors_total",
			Help:      "Failed price feed writes",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "websocket_clients",
			Help:      "Connected websocket clients",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RefreshCycles,
		m.RefreshSkipped,
		m.CycleDuration,
		m.SignalFallbacks,
		m.CircuitTrips,
		m.OrdersAccepted,
		m.OrdersRejected,
		m.Trades,
		m.OrdersExpired,
		m.EventsTriggered,
		m.EventsDropped,
		m.CheckpointErrors,
		m.PublishErrors,
		m.WSClients,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

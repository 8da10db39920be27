// Package metrics exposes the server's Prometheus collectors: HTTP request
// counts and latency per endpoint family, event-fabric socket gauges, and
// simulation counters. One Collector is created at startup and threaded to
// the layers that record into it.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sectorwars/gameserver/internal/infrastructure/config"
)

// Collector owns the registry and every metric the server records.
type Collector struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	fabricSockets       prometheus.Gauge
	fabricSubscriptions prometheus.Gauge
	fabricDelivered     *prometheus.CounterVec
	fabricDropped       prometheus.Counter

	combatRounds prometheus.Counter
	colonyTicks  prometheus.Counter
	trades       *prometheus.CounterVec
	travels      *prometheus.CounterVec
}

// NewCollector builds and registers every metric under the configured
// namespace.
func NewCollector(cfg config.MetricsConfig) *Collector {
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "sectorwars"
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	c := &Collector{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by endpoint family, method and status code",
		}, []string{"family", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by endpoint family",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"family"}),
		fabricSockets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "fabric",
			Name:      "sockets",
			Help:      "Connected WebSocket count",
		}),
		fabricSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "fabric",
			Name:      "subscriptions",
			Help:      "Open subscription scope count across all sockets",
		}),
		fabricDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fabric",
			Name:      "events_delivered_total",
			Help:      "Events enqueued to sockets, split by durability",
		}, []string{"durable"}),
		fabricDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fabric",
			Name:      "events_dropped_total",
			Help:      "Events dropped past the outbound high-water mark",
		}),
		combatRounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "combat_rounds_total",
			Help:      "Combat rounds resolved",
		}),
		colonyTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "colony_ticks_total",
			Help:      "Planet colony ticks applied",
		}),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "trades_total",
			Help:      "Market fills by direction",
		}, []string{"direction"}),
		travels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "travels_total",
			Help:      "Inter-region travels by terminal state",
		}, []string{"status"}),
	}
	registry.MustRegister(
		c.httpRequests, c.httpDuration,
		c.fabricSockets, c.fabricSubscriptions, c.fabricDelivered, c.fabricDropped,
		c.combatRounds, c.colonyTicks, c.trades, c.travels,
	)
	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one finished request.
func (c *Collector) ObserveHTTP(family, method string, status int, elapsed time.Duration) {
	c.httpRequests.WithLabelValues(family, method, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(family).Observe(elapsed.Seconds())
}

// Fabric gauge updates; the hub calls these through its Counters port.

func (c *Collector) SocketOpened()      { c.fabricSockets.Inc() }
func (c *Collector) SocketClosed()      { c.fabricSockets.Dec() }
func (c *Collector) ScopeSubscribed()   { c.fabricSubscriptions.Inc() }
func (c *Collector) ScopeUnsubscribed() { c.fabricSubscriptions.Dec() }

func (c *Collector) EventDelivered(durable bool) {
	c.fabricDelivered.WithLabelValues(strconv.FormatBool(durable)).Inc()
}

func (c *Collector) EventDropped() { c.fabricDropped.Inc() }

// Simulation counters, incremented by the scheduler jobs.

func (c *Collector) CombatRoundResolved()    { c.combatRounds.Inc() }
func (c *Collector) ColonyTickApplied()      { c.colonyTicks.Inc() }
func (c *Collector) TradeFilled(dir string)  { c.trades.WithLabelValues(dir).Inc() }
func (c *Collector) TravelSettled(st string) { c.travels.WithLabelValues(st).Inc() }

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the engine.
	Registry = prometheus.NewRegistry()

	// HTTPRequests counts requests by method, path, and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)

	// EventsEnqueued counts events accepted into trip queues by kind.
	EventsEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "events_enqueued_total", Help: "Events enqueued by kind."},
		[]string{"kind"},
	)
	// EventsDelivered counts events handed out via poll by kind.
	EventsDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "events_delivered_total", Help: "Events delivered to clients by kind."},
		[]string{"kind"},
	)
	// EventsSuppressed counts events the pipeline held back, by reason.
	EventsSuppressed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "events_suppressed_total", Help: "Events suppressed by the pipeline, by reason."},
		[]string{"reason"},
	)

	// ActionsDispatched counts user actions by type and outcome.
	ActionsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "actions_dispatched_total", Help: "User actions dispatched by type and outcome."},
		[]string{"action", "outcome"},
	)

	// ReshufflesApplied counts applied reshuffle strategies by kind and outcome.
	ReshufflesApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "reshuffles_applied_total", Help: "Reshuffle apply attempts by strategy and outcome."},
		[]string{"strategy", "outcome"},
	)
	// ReshufflesUndone counts undo attempts by outcome.
	ReshufflesUndone = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "reshuffles_undone_total", Help: "Reshuffle undo attempts by outcome."},
		[]string{"outcome"},
	)

	// ActiveTrips tracks the number of initialized trip sessions.
	ActiveTrips = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "active_trips", Help: "Number of active trip sessions."},
	)
)

var regOnce sync.Once

// RegisterDefault registers all collectors on the engine registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(EventsEnqueued)
		Registry.MustRegister(EventsDelivered)
		Registry.MustRegister(EventsSuppressed)
		Registry.MustRegister(ActionsDispatched)
		Registry.MustRegister(ReshufflesApplied)
		Registry.MustRegister(ReshufflesUndone)
		Registry.MustRegister(ActiveTrips)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Package metrics provides the github.com/prometheus/client_golang-backed
// implementation of hassclient.Metrics, instrumenting WS session lifecycle
// and command activity instead of HTTP request metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry implements hassclient.Metrics against its own prometheus
// registry, so the demo CLI can expose it over /metrics without pulling in
// the global default registry's process/go collectors twice.
type Registry struct {
	reg *prometheus.Registry

	connState       prometheus.Gauge
	pendingCommands prometheus.Gauge
	commandDuration *prometheus.HistogramVec
	commandsTotal   *prometheus.CounterVec
	eventsReceived  prometheus.Counter
	eventsDropped   prometheus.Counter
}

// NewRegistry constructs a Registry with the six hassws metrics named in
// this repository's specification, registered against a fresh
// prometheus.Registry (not the global DefaultRegisterer).
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		connState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hassws_session_state",
			Help: "Current hassclient.Session lifecycle state, as its integer ConnState value.",
		}),
		pendingCommands: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hassws_pending_commands",
			Help: "Number of commands awaiting a server reply.",
		}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hassws_command_duration_seconds",
			Help:    "Latency of command round-trips, by command type.",
			Buckets: prometheus.DefBuckets,
		}, []string{"command"}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hassws_commands_total",
			Help: "Commands sent, by type and outcome.",
		}, []string{"command", "outcome"}),
		eventsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hassws_events_received_total",
			Help: "Events delivered to the session's event channel.",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hassws_events_dropped_total",
			Help: "Events dropped because the event channel was full.",
		}),
	}

	reg.MustRegister(
		r.connState,
		r.pendingCommands,
		r.commandDuration,
		r.commandsTotal,
		r.eventsReceived,
		r.eventsDropped,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return r
}

// Gatherer exposes the underlying registry for promhttp.HandlerFor.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

func (r *Registry) SetConnState(state int) { r.connState.Set(float64(state)) }

func (r *Registry) SetPendingCommands(n int) { r.pendingCommands.Set(float64(n)) }

func (r *Registry) ObserveCommandDuration(commandType string, d time.Duration) {
	r.commandDuration.WithLabelValues(commandType).Observe(d.Seconds())
}

func (r *Registry) IncCommandsTotal(commandType, outcome string) {
	r.commandsTotal.WithLabelValues(commandType, outcome).Inc()
}

func (r *Registry) IncEventsReceived() { r.eventsReceived.Inc() }

func (r *Registry) IncEventsDropped() { r.eventsDropped.Inc() }

package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "caro"

type Metrics struct {
	registry *prometheus.Registry

	OnlinePlayers    prometheus.Gauge
	LiveSessions     prometheus.Gauge
	Terminations     *prometheus.CounterVec
	MessagesReceived *prometheus.CounterVec
	RejectedInputs   *prometheus.CounterVec
	EventsDropped    *prometheus.CounterVec
	MessageLatency   prometheus.Histogram
}

func NewMetrics() *Metrics {
	that := &Metrics{
		registry: prometheus.NewRegistry(),
		OnlinePlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_players",
			Help:      "Number of connected players",
		}),
		LiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_sessions",
			Help:      "Number of sessions held in memory",
		}),
		Terminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_terminations_total",
			Help:      "Terminated sessions by final phase and cause",
		}, []string{"phase", "cause"}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Inbound websocket messages by action",
		}, []string{"action"}),
		RejectedInputs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_inputs_total",
			Help:      "Inbound intents rejected by a session, by action and error kind",
		}, []string{"action", "kind"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Outbound events dropped because a client could not keep up",
		}, []string{"kind"}),
		MessageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_latency_seconds",
			Help:      "Websocket message processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
	}

	that.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		that.OnlinePlayers,
		that.LiveSessions,
		that.Terminations,
		that.MessagesReceived,
		that.RejectedInputs,
		that.EventsDropped,
		that.MessageLatency,
	)

	return that
}

func (that *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(that.registry, promhttp.HandlerOpts{Registry: that.registry})
}

func (that *Metrics) IncOnlinePlayers() {
	that.OnlinePlayers.Inc()
}

func (that *Metrics) DecOnlinePlayers() {
	that.OnlinePlayers.Dec()
}

func (that *Metrics) SetLiveSessions(n int) {
	that.LiveSessions.Set(float64(n))
}

func (that *Metrics) ObserveTermination(phase, cause string) {
	that.Terminations.WithLabelValues(phase, cause).Inc()
}

func (that *Metrics) IncMessagesReceived(action string) {
	that.MessagesReceived.WithLabelValues(action).Inc()
}

func (that *Metrics) IncRejectedInput(action, kind string) {
	that.RejectedInputs.WithLabelValues(action, kind).Inc()
}

func (that *Metrics) IncEventsDropped(kind string) {
	that.EventsDropped.WithLabelValues(kind).Inc()
}

func (that *Metrics) ObserveMessageLatency(duration time.Duration) {
	that.MessageLatency.Observe(duration.Seconds())
}

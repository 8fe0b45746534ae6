package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultNamespace = "scribble"
	defaultSubsystem = "client"
)

type Config struct {
	// Namespace is the metrics namespace (default: "scribble").
	Namespace string

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Metrics holds the client collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	reconnects      prometheus.Counter
	connectionState prometheus.Gauge
	framesReceived  *prometheus.CounterVec
	framesDropped   *prometheus.CounterVec
	framesUnhandled *prometheus.CounterVec
	messagesSent    *prometheus.CounterVec
	strokes         *prometheus.CounterVec
	heartbeatRTT    prometheus.Gauge
}

func New(cfg Config) *Metrics {
	if cfg.Namespace == "" {
		cfg.Namespace = defaultNamespace
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(cfg.Registry)

	return &Metrics{
		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: defaultSubsystem,
			Name:      "reconnect_attempts_total",
			Help:      "Total number of scheduled reconnection attempts",
		}),
		connectionState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: defaultSubsystem,
			Name:      "connection_state",
			Help:      "Connection state: 0 disconnected, 1 connecting, 2 connected, 3 reconnecting, 4 failed",
		}),
		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: defaultSubsystem,
			Name:      "frames_received_total",
			Help:      "Inbound frames decoded, by message type",
		}, []string{"type"}),
		framesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: defaultSubsystem,
			Name:      "frames_dropped_total",
			Help:      "Inbound frames dropped, by reason",
		}, []string{"reason"}),
		framesUnhandled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: defaultSubsystem,
			Name:      "frames_unhandled_total",
			Help:      "Inbound frames with no registered handler, by message type",
		}, []string{"type"}),
		messagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: defaultSubsystem,
			Name:      "messages_sent_total",
			Help:      "Outbound messages queued for transmission, by message type",
		}, []string{"type"}),
		strokes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: defaultSubsystem,
			Name:      "strokes_total",
			Help:      "Strokes by direction: sent, rendered, suppressed",
		}, []string{"direction"}),
		heartbeatRTT: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: defaultSubsystem,
			Name:      "heartbeat_rtt_seconds",
			Help:      "Round trip time of the last answered heartbeat",
		}),
	}
}

func (m *Metrics) ReconnectAttempt() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) ConnectionState(state int) {
	if m == nil {
		return
	}
	m.connectionState.Set(float64(state))
}

func (m *Metrics) FrameReceived(msgType string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(msgType).Inc()
}

func (m *Metrics) FrameDropped(reason string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) FrameUnhandled(msgType string) {
	if m == nil {
		return
	}
	m.framesUnhandled.WithLabelValues(msgType).Inc()
}

func (m *Metrics) MessageSent(msgType string) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(msgType).Inc()
}

func (m *Metrics) Stroke(direction string) {
	if m == nil {
		return
	}
	m.strokes.WithLabelValues(direction).Inc()
}

func (m *Metrics) HeartbeatRTT(d time.Duration) {
	if m == nil {
		return
	}
	m.heartbeatRTT.Set(d.Seconds())
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "edgeagent"

// PrometheusRecorder implements Recorder using Prometheus collectors.
type PrometheusRecorder struct {
	connectAttempts     *prometheus.CounterVec
	restarts            prometheus.Counter
	connected           prometheus.Gauge
	messagesRouted      *prometheus.CounterVec
	decodeErrors        prometheus.Counter
	dispatches          *prometheus.CounterVec
	publishes           *prometheus.CounterVec
	supportedOperations prometheus.Gauge
}

// NewPrometheusRecorder registers the agent collectors with reg.
// Registering twice on the same registry panics.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		connectAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connect_attempts_total",
				Help:      "Broker connection attempts by result (success, failed, refused).",
			},
			[]string{"result"},
		),
		restarts: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "restarts_total",
				Help:      "Full restarts of the connect and registration sequence.",
			},
		),
		connected: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "connected",
				Help:      "1 while the broker session is connected.",
			},
		),
		messagesRouted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_routed_total",
				Help:      "Inbound messages decoded and fanned out, by message id.",
			},
			[]string{"message_id"},
		),
		decodeErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decode_errors_total",
				Help:      "Inbound payloads dropped because they could not be decoded.",
			},
		),
		dispatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_total",
				Help:      "Listener invocations by listener and outcome (ok, error, panic).",
			},
			[]string{"listener", "status"},
		),
		publishes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "publish_total",
				Help:      "Outbound messages by message id and outcome.",
			},
			[]string{"message_id", "status"},
		),
		supportedOperations: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "supported_operations",
				Help:      "Operations announced in the last registration.",
			},
		),
	}
}

// ConnectAttempt counts one connection attempt.
func (p *PrometheusRecorder) ConnectAttempt(result string) {
	p.connectAttempts.WithLabelValues(result).Inc()
}

// Restart counts one full restart.
func (p *PrometheusRecorder) Restart() {
	p.restarts.Inc()
}

// SetConnected sets the connected gauge.
func (p *PrometheusRecorder) SetConnected(connected bool) {
	if connected {
		p.connected.Set(1)
		return
	}
	p.connected.Set(0)
}

// MessageRouted counts one routed inbound message.
func (p *PrometheusRecorder) MessageRouted(messageID string) {
	p.messagesRouted.WithLabelValues(messageID).Inc()
}

// DecodeError counts one dropped payload.
func (p *PrometheusRecorder) DecodeError() {
	p.decodeErrors.Inc()
}

// Dispatch counts one listener invocation.
func (p *PrometheusRecorder) Dispatch(listener, status string) {
	p.dispatches.WithLabelValues(listener, status).Inc()
}

// Publish counts one outbound message.
func (p *PrometheusRecorder) Publish(messageID, status string) {
	p.publishes.WithLabelValues(messageID, status).Inc()
}

// SetSupportedOperations records the number of announced operations.
func (p *PrometheusRecorder) SetSupportedOperations(n int) {
	p.supportedOperations.Set(float64(n))
}

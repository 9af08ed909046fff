package monitoring

import (
	"time"

	"livecast/internal/core/domain"
	"livecast/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	sessionsActive prometheus.Gauge
	sessionsTotal  prometheus.Counter

	roomMembers *prometheus.GaugeVec

	eventsHandled *prometheus.CounterVec
	eventDuration *prometheus.HistogramVec
	errorsSent    *prometheus.CounterVec

	deliveries *prometheus.CounterVec

	counterOps        *prometheus.CounterVec
	counterOpDuration *prometheus.HistogramVec
}

var _ ports.MetricsRecorder = (*PrometheusCollector)(nil)

// NewPrometheusCollector registers the collector's metrics on reg.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)

	return &PrometheusCollector{
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "livecast_sessions_active",
			Help: "Number of open WebSocket sessions",
		}),

		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "livecast_sessions_total",
			Help: "Total number of WebSocket sessions established",
		}),

		roomMembers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "livecast_room_members",
			Help: "Sessions joined to each room on this instance",
		}, []string{"room"}),

		eventsHandled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livecast_events_handled_total",
			Help: "Client events handled, by event type",
		}, []string{"type"}),

		eventDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "livecast_event_duration_seconds",
			Help:    "Time spent handling a client event",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"type"}),

		errorsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livecast_errors_sent_total",
			Help: "Error events sent to clients, by code",
		}, []string{"code"}),

		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livecast_broadcast_deliveries_total",
			Help: "Per-session frame deliveries from room broadcasts",
		}, []string{"type", "result"}),

		counterOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "livecast_counter_ops_total",
			Help: "Counter store operations, by outcome",
		}, []string{"op", "result"}),

		counterOpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "livecast_counter_op_duration_seconds",
			Help:    "Latency of counter store operations",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"op"}),
	}
}

func (p *PrometheusCollector) SessionOpened() {
	p.sessionsActive.Inc()
	p.sessionsTotal.Inc()
}

func (p *PrometheusCollector) SessionClosed() {
	p.sessionsActive.Dec()
}

// RoomMembers drops the series once a room empties so label cardinality
// follows live rooms.
func (p *PrometheusCollector) RoomMembers(room domain.RoomID, members int) {
	if members <= 0 {
		p.roomMembers.DeleteLabelValues(string(room))
		return
	}
	p.roomMembers.WithLabelValues(string(room)).Set(float64(members))
}

func (p *PrometheusCollector) EventHandled(eventType string, d time.Duration) {
	p.eventsHandled.WithLabelValues(eventType).Inc()
	p.eventDuration.WithLabelValues(eventType).Observe(d.Seconds())
}

func (p *PrometheusCollector) ErrorSent(code string) {
	p.errorsSent.WithLabelValues(code).Inc()
}

func (p *PrometheusCollector) Broadcast(eventType string, report domain.DeliveryReport) {
	if report.Delivered > 0 {
		p.deliveries.WithLabelValues(eventType, "delivered").Add(float64(report.Delivered))
	}
	if report.Failed > 0 {
		p.deliveries.WithLabelValues(eventType, "failed").Add(float64(report.Failed))
	}
}

func (p *PrometheusCollector) CounterOp(op string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.counterOps.WithLabelValues(op, result).Inc()
	p.counterOpDuration.WithLabelValues(op).Observe(d.Seconds())
}

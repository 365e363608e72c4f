package adapter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments both listeners. A nil *Metrics disables
// collection; every method is nil-safe so call sites stay unconditional.
type Metrics struct {
	connections       *prometheus.GaugeVec
	connectionsTotal  *prometheus.CounterVec
	framesTotal       *prometheus.CounterVec
	frameDuration     *prometheus.HistogramVec
	loginsTotal       *prometheus.CounterVec
	sessionsActive    prometheus.Gauge
	notificationsSent prometheus.Counter
	notificationsLost prometheus.Counter
	transfersTotal    *prometheus.CounterVec
	transferBytes     *prometheus.CounterVec
}

// NewMetrics registers the server's collectors on the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		connections: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "halcyon_connections_active",
				Help: "Currently open connections by protocol",
			},
			[]string{"protocol"},
		),
		connectionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "halcyon_connections_total",
				Help: "Accepted connections by protocol",
			},
			[]string{"protocol"},
		),
		framesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "halcyon_frames_total",
				Help: "Processed request frames by transaction name and outcome",
			},
			[]string{"tran", "outcome"}, // outcome: "ok", "error"
		),
		frameDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "halcyon_frame_duration_seconds",
				Help:    "Request frame handling duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tran"},
		),
		loginsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "halcyon_logins_total",
				Help: "Login attempts by outcome",
			},
			[]string{"outcome"}, // "ok", "denied"
		),
		sessionsActive: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "halcyon_sessions_active",
				Help: "Sessions past a successful login",
			},
		),
		notificationsSent: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "halcyon_notifications_sent_total",
				Help: "Notification frames delivered to clients",
			},
		),
		notificationsLost: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "halcyon_notifications_lost_total",
				Help: "Notifications dropped on lagging subscribers",
			},
		),
		transfersTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "halcyon_transfers_total",
				Help: "File transfers by direction and outcome",
			},
			[]string{"direction", "outcome"}, // direction: "download", "upload"
		),
		transferBytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "halcyon_transfer_bytes_total",
				Help: "Payload bytes moved by direction",
			},
			[]string{"direction"},
		),
	}
}

// NullMetrics returns a disabled collector set.
func NullMetrics() *Metrics { return nil }

func (m *Metrics) ConnectionOpened(protocol string) {
	if m == nil {
		return
	}
	m.connectionsTotal.WithLabelValues(protocol).Inc()
	m.connections.WithLabelValues(protocol).Inc()
}

func (m *Metrics) ConnectionClosed(protocol string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(protocol).Dec()
}

func (m *Metrics) FrameHandled(tran string, seconds float64, failed bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.framesTotal.WithLabelValues(tran, outcome).Inc()
	m.frameDuration.WithLabelValues(tran).Observe(seconds)
}

func (m *Metrics) Login(ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "denied"
	}
	m.loginsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

func (m *Metrics) NotificationSent() {
	if m == nil {
		return
	}
	m.notificationsSent.Inc()
}

func (m *Metrics) NotificationsLost(n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.notificationsLost.Add(float64(n))
}

func (m *Metrics) TransferDone(direction string, failed bool, bytes int64) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.transfersTotal.WithLabelValues(direction, outcome).Inc()
	if bytes > 0 {
		m.transferBytes.WithLabelValues(direction).Add(float64(bytes))
	}
}

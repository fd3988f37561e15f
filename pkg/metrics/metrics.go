package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	NotificationsCreated *prometheus.CounterVec
	NotificationsRead    *prometheus.CounterVec
	NotificationsDeleted *prometheus.CounterVec
	StorageErrors        *prometheus.CounterVec
	SessionResolutions   *prometheus.CounterVec
	EventsPublished      *prometheus.CounterVec
}

// NewMetrics creates and registers all application metrics. A nil registerer
// means the default registry.
func NewMetrics(namespace, subsystem string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		NotificationsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "notifications_created_total",
			Help:      "Total number of notifications created",
		}, []string{"type"}),
		NotificationsRead: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "notifications_read_total",
			Help:      "Total number of notifications flipped to read",
		}, []string{"mode"}),
		NotificationsDeleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "notifications_deleted_total",
			Help:      "Total number of notifications deleted",
		}, []string{"mode"}),
		StorageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "storage_errors_total",
			Help:      "Total number of failed storage operations",
		}, []string{"operation"}),
		SessionResolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "session_resolutions_total",
			Help:      "Bearer credential resolutions by outcome",
		}, []string{"result"}),
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_published_total",
			Help:      "Lifecycle events handed to the broker",
		}, []string{"event", "status"}),
	}
}

// The helpers below are safe on a nil *Metrics.

func (m *Metrics) Created(notificationType string) {
	if m != nil {
		m.NotificationsCreated.WithLabelValues(notificationType).Inc()
	}
}

func (m *Metrics) Read(mode string, n int64) {
	if m != nil && n > 0 {
		m.NotificationsRead.WithLabelValues(mode).Add(float64(n))
	}
}

func (m *Metrics) Deleted(mode string, n int64) {
	if m != nil && n > 0 {
		m.NotificationsDeleted.WithLabelValues(mode).Add(float64(n))
	}
}

func (m *Metrics) StorageError(operation string) {
	if m != nil {
		m.StorageErrors.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) Session(result string) {
	if m != nil {
		m.SessionResolutions.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Event(event string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.EventsPublished.WithLabelValues(event, status).Inc()
}

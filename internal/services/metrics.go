package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the domain Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Inbound events by kind and outcome
	Events *prometheus.CounterVec

	// Classifier
	Classifications   *prometheus.CounterVec
	ClassifierLatency prometheus.Histogram
	ClassifierErrors  *prometheus.CounterVec

	// Notes
	NotesCreated prometheus.Counter

	// Maintenance
	Reminders    *prometheus.CounterVec
	StatusSyncs  *prometheus.CounterVec
	AutoParks    prometheus.Counter
	RateLimited  prometheus.Counter
	ChatAPIError *prometheus.CounterVec
}

// NewMetrics registers the domain metrics with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "paranotes_events_total",
			Help: "Inbound chat events by kind and outcome",
		}, []string{"kind", "outcome"}),

		Classifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "paranotes_classifications_total",
			Help: "Classifier results by intent and category",
		}, []string{"intent", "category"}),

		// up to a minute for slow models
		ClassifierLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "paranotes_classifier_duration_seconds",
			Help:    "Classifier call latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 60},
		}),

		ClassifierErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "paranotes_classifier_errors_total",
			Help: "Classifier failures that resolved to the fallback, by reason",
		}, []string{"reason"}),

		NotesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "paranotes_notes_created_total",
			Help: "Notes created from chat messages",
		}),

		Reminders: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "paranotes_reminders_total",
			Help: "Reminder deliveries by result",
		}, []string{"result"}),

		StatusSyncs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "paranotes_status_syncs_total",
			Help: "Status mirrors to chat by direction and result",
		}, []string{"direction", "result"}),

		AutoParks: factory.NewCounter(prometheus.CounterOpts{
			Name: "paranotes_auto_parks_total",
			Help: "Notes parked after exhausting reminders",
		}),

		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "paranotes_rate_limited_events_total",
			Help: "Events dropped by the per-user rate limit",
		}),

		ChatAPIError: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "paranotes_chat_api_errors_total",
			Help: "Chat API call failures by method",
		}, []string{"method"}),
	}
}

// RecordEvent records a routed event
func (m *Metrics) RecordEvent(kind, outcome string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(kind, outcome).Inc()
}

// RecordClassification records a classifier result
func (m *Metrics) RecordClassification(intent, category string, seconds float64) {
	if m == nil {
		return
	}
	m.Classifications.WithLabelValues(intent, category).Inc()
	m.ClassifierLatency.Observe(seconds)
}

// RecordClassifierError records a classifier failure
func (m *Metrics) RecordClassifierError(reason string) {
	if m == nil {
		return
	}
	m.ClassifierErrors.WithLabelValues(reason).Inc()
}

// RecordNoteCreated records a new note
func (m *Metrics) RecordNoteCreated() {
	if m == nil {
		return
	}
	m.NotesCreated.Inc()
}

// RecordReminder records a reminder attempt
func (m *Metrics) RecordReminder(result string) {
	if m == nil {
		return
	}
	m.Reminders.WithLabelValues(result).Inc()
}

// RecordStatusSync records a status mirror attempt
func (m *Metrics) RecordStatusSync(direction, result string) {
	if m == nil {
		return
	}
	m.StatusSyncs.WithLabelValues(direction, result).Inc()
}

// RecordAutoPark records a parked note
func (m *Metrics) RecordAutoPark() {
	if m == nil {
		return
	}
	m.AutoParks.Inc()
}

// RecordRateLimited records a dropped event
func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}

// RecordChatAPIError records a failed chat API call
func (m *Metrics) RecordChatAPIError(method string) {
	if m == nil {
		return
	}
	m.ChatAPIError.WithLabelValues(method).Inc()
}

// README: Prometheus collectors for dispatch, event fan-out and location updates.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Transitions     *prometheus.CounterVec
	CommandErrors   *prometheus.CounterVec
	ConflictRetries prometheus.Counter
	HistoryErrors   prometheus.Counter
	EventsPublished *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec
	DeliveryRetries prometheus.Counter
	LocationUpdates *prometheus.CounterVec
	Subscribers     prometheus.Gauge
}

// New registers the collectors on reg. Pass a fresh prometheus.NewRegistry() in tests.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ride_transitions_total",
			Help:      "Persisted ride status transitions.",
		}, []string{"from", "to"}),
		CommandErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_command_errors_total",
			Help:      "Dispatch commands that returned an error.",
		}, []string{"command"}),
		ConflictRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_conflict_retries_total",
			Help:      "Optimistic version conflicts that triggered a re-read.",
		}),
		HistoryErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ride_history_write_errors_total",
			Help:      "Persisted transitions whose history entry could not be written.",
		}),
		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain events accepted by the broadcaster.",
		}, []string{"type"}),
		EventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Domain event deliveries that were dropped.",
		}, []string{"reason"}),
		DeliveryRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_delivery_retries_total",
			Help:      "Subscriber delivery attempts that were retried.",
		}),
		LocationUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_updates_total",
			Help:      "Driver position pings by outcome.",
		}, []string{"result"}),
		Subscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_subscribers",
			Help:      "Currently attached event subscribers.",
		}),
	}
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) CommandError(command string) {
	if m == nil {
		return
	}
	m.CommandErrors.WithLabelValues(command).Inc()
}

func (m *Metrics) ConflictRetry() {
	if m == nil {
		return
	}
	m.ConflictRetries.Inc()
}

func (m *Metrics) HistoryWriteError() {
	if m == nil {
		return
	}
	m.HistoryErrors.Inc()
}

func (m *Metrics) EventPublished(eventType string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

func (m *Metrics) EventDropped(reason string) {
	if m == nil {
		return
	}
	m.EventsDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) DeliveryRetry() {
	if m == nil {
		return
	}
	m.DeliveryRetries.Inc()
}

func (m *Metrics) LocationUpdate(result string) {
	if m == nil {
		return
	}
	m.LocationUpdates.WithLabelValues(result).Inc()
}

func (m *Metrics) SubscriberDelta(d float64) {
	if m == nil {
		return
	}
	m.Subscribers.Add(d)
}

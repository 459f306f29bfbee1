package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters for reservation and lifecycle outcomes.
type BookingMetrics struct {
	reservationsTotal *prometheus.CounterVec
	transitionsTotal  *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		reservationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "careloop",
			Subsystem: "booking",
			Name:      "reservations_total",
			Help:      "Total slot reservation attempts",
		}, []string{"outcome"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "careloop",
			Subsystem: "booking",
			Name:      "transitions_total",
			Help:      "Total appointment state transitions",
		}, []string{"to_status", "outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.reservationsTotal, m.transitionsTotal)
	return m
}

func (m *BookingMetrics) ObserveReservation(outcome string) {
	if m == nil {
		return
	}
	m.reservationsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveTransition(toStatus, outcome string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(toStatus, outcome).Inc()
}

// HubMetrics tracks notification fan-out health.
type HubMetrics struct {
	deliveredTotal  *prometheus.CounterVec
	subscriberGauge prometheus.Gauge
}

func NewHubMetrics(reg prometheus.Registerer) *HubMetrics {
	m := &HubMetrics{
		deliveredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "careloop",
			Subsystem: "notifications",
			Name:      "delivered_total",
			Help:      "Live notification deliveries by result",
		}, []string{"result"}),
		subscriberGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "careloop",
			Subsystem: "notifications",
			Name:      "live_subscribers",
			Help:      "Currently connected notification subscribers",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.deliveredTotal, m.subscriberGauge)
	return m
}

func (m *HubMetrics) ObserveDelivery(result string) {
	if m == nil {
		return
	}
	m.deliveredTotal.WithLabelValues(result).Inc()
}

func (m *HubMetrics) SubscriberConnected() {
	if m == nil {
		return
	}
	m.subscriberGauge.Inc()
}

func (m *HubMetrics) SubscriberDisconnected() {
	if m == nil {
		return
	}
	m.subscriberGauge.Dec()
}

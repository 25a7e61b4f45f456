package booking

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes counters/histograms for the booking engine.
type Metrics struct {
	bookingsTotal        *prometheus.CounterVec
	bookingConflicts     prometheus.Counter
	availabilityRequests prometheus.Counter
	availabilitySlots    prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zentra",
			Subsystem: "booking",
			Name:      "bookings_total",
			Help:      "Total booking attempts by outcome status",
		}, []string{"status"}),
		bookingConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zentra",
			Subsystem: "booking",
			Name:      "conflicts_total",
			Help:      "Total booking attempts that lost a slot race",
		}),
		availabilityRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zentra",
			Subsystem: "booking",
			Name:      "availability_requests_total",
			Help:      "Total availability queries",
		}),
		availabilitySlots: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "zentra",
			Subsystem: "booking",
			Name:      "availability_slot_count",
			Help:      "Number of free slots returned per availability query",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64},
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.bookingConflicts, m.availabilityRequests, m.availabilitySlots)
	return m
}

func (m *Metrics) ObserveBooking(status string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveConflict() {
	if m == nil {
		return
	}
	m.bookingConflicts.Inc()
}

func (m *Metrics) ObserveAvailability(slotCount int) {
	if m == nil {
		return
	}
	m.availabilityRequests.Inc()
	m.availabilitySlots.Observe(float64(slotCount))
}

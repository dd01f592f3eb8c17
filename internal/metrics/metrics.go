package metrics

import "github.com/prometheus/client_golang/prometheus"

// Scheduling exposes counters for booking and queue flows. A nil *Scheduling
// is valid and records nothing.
type Scheduling struct {
	bookingsTotal    *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	autoConfirmed    prometheus.Counter
	migratedTotal    prometheus.Counter
	lockWait         *prometheus.HistogramVec
}

func NewScheduling(reg prometheus.Registerer) *Scheduling {
	m := &Scheduling{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Booking attempts by origin and result",
		}, []string{"origin", "result"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "scheduling",
			Name:      "transitions_total",
			Help:      "Status transitions by entity and target status",
		}, []string{"entity", "status"}),
		autoConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "scheduling",
			Name:      "auto_confirmed_total",
			Help:      "Pending appointments confirmed by the system actor",
		}),
		migratedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "scheduling",
			Name:      "queue_migrated_total",
			Help:      "Queue entries created by the schedule migrator",
		}),
		lockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dental",
			Subsystem: "scheduling",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for a dentist-day lock",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.transitionsTotal, m.autoConfirmed, m.migratedTotal, m.lockWait)
	return m
}

func (m *Scheduling) ObserveBooking(origin, result string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(origin, result).Inc()
}

func (m *Scheduling) ObserveTransition(entity, status string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(entity, status).Inc()
}

func (m *Scheduling) ObserveAutoConfirm(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.autoConfirmed.Add(float64(n))
}

func (m *Scheduling) ObserveMigrated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.migratedTotal.Add(float64(n))
}

func (m *Scheduling) ObserveLockWait(result string, seconds float64) {
	if m == nil {
		return
	}
	m.lockWait.WithLabelValues(result).Observe(seconds)
}

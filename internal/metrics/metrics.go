package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "p5glab",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	bookingsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "p5glab",
			Name:      "bookings_created_total",
			Help:      "Bookings created per experiment.",
		},
		[]string{"exp_key"},
	)

	bookingsCancelled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "p5glab",
			Name:      "bookings_cancelled_total",
			Help:      "Bookings cancelled per experiment.",
		},
		[]string{"exp_key"},
	)

	bookingConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "p5glab",
			Name:      "booking_conflicts_total",
			Help:      "Create attempts rejected for overlap.",
		},
		[]string{"exp_key"},
	)

	activations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "p5glab",
			Name:      "activations_total",
			Help:      "Authorized restart triggers per experiment.",
		},
		[]string{"exp_key"},
	)

	slotQueries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "p5glab",
			Name:      "slot_queries_total",
			Help:      "Slot availability queries.",
		},
	)

	scriptRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "p5glab",
			Name:      "script_runs_total",
			Help:      "Restart script executions by result.",
		},
		[]string{"exp_key", "result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			bookingsCreated,
			bookingsCancelled,
			bookingConflicts,
			activations,
			slotQueries,
			scriptRuns,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncBookingCreated(expKey string) {
	bookingsCreated.WithLabelValues(expKey).Inc()
}

func IncBookingCancelled(expKey string) {
	bookingsCancelled.WithLabelValues(expKey).Inc()
}

func IncBookingConflict(expKey string) {
	bookingConflicts.WithLabelValues(expKey).Inc()
}

func IncActivation(expKey string) {
	activations.WithLabelValues(expKey).Inc()
}

func IncSlotQuery() {
	slotQueries.Inc()
}

func IncScriptRun(expKey, result string) {
	scriptRuns.WithLabelValues(expKey, result).Inc()
}

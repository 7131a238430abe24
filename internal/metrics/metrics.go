package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	portalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peran",
			Name:      "portal_requests_total",
			Help:      "Count of customer portal requests by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)

	portalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "peran",
			Name:      "portal_request_duration_seconds",
			Help:      "Latency of customer portal requests.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peran",
			Name:      "portal_cache_lookups_total",
			Help:      "Redis cache lookups for public catalog endpoints.",
		},
		[]string{"result"},
	)

	bookingCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peran",
			Name:      "booking_created_total",
			Help:      "Count of booking submissions by outcome.",
		},
		[]string{"status"},
	)

	bookingCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "peran",
			Name:      "booking_cancelled_total",
			Help:      "Count of bookings cancelled by managers.",
		},
	)

	managerDecision = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peran",
			Name:      "manager_decision_total",
			Help:      "Count of manager actions over bookings.",
		},
		[]string{"decision"},
	)

	slotsOffered = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "peran",
			Name:      "slots_offered",
			Help:      "Number of free slots offered per availability computation.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64},
		},
	)

	staleSlotResults = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "peran",
			Name:      "slot_results_discarded_total",
			Help:      "Slot computations dropped because newer input superseded them.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "peran",
			Name:      "http_requests_total",
			Help:      "Count of HTTP API requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "peran",
			Name:      "booking_sessions_active",
			Help:      "Booking form sessions currently held in memory.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			portalRequests,
			portalLatency,
			cacheLookups,
			bookingCreated,
			bookingCancelled,
			managerDecision,
			slotsOffered,
			staleSlotResults,
			httpRequests,
			activeSessions,
		)
	})
}

// ObservePortalRequest records one portal round trip.
func ObservePortalRequest(endpoint, outcome string, elapsed time.Duration) {
	portalRequests.WithLabelValues(endpoint, outcome).Inc()
	portalLatency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func IncCacheLookup(hit bool) {
	if hit {
		cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	cacheLookups.WithLabelValues("miss").Inc()
}

func IncBookingCreated(status string) {
	bookingCreated.WithLabelValues(status).Inc()
}

func IncBookingCancelled() {
	bookingCancelled.Inc()
}

func IncManagerDecision(decision string) {
	managerDecision.WithLabelValues(decision).Inc()
}

func ObserveSlotsOffered(n int) {
	slotsOffered.Observe(float64(n))
}

func IncStaleSlotResult() {
	staleSlotResults.Inc()
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

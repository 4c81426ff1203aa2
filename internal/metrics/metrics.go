package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stagepass_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stagepass_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	reservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stagepass_reservations_total",
		Help: "Reserve and cancel attempts by result",
	}, []string{"operation", "result"})

	ticketsReserved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stagepass_tickets_reserved_total",
		Help: "Tickets taken out of inventory by successful reservations",
	})

	ticketsReleased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stagepass_tickets_released_total",
		Help: "Tickets returned to inventory by cancellations",
	})

	sideChannelFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stagepass_side_channel_failures_total",
		Help: "Post-commit notifications that failed",
	}, []string{"channel"})
)

func ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// ObserveReservation counts a reserve or cancel outcome such as "ok",
// "insufficient" or "not_found".
func ObserveReservation(operation, result string) {
	reservationsTotal.WithLabelValues(operation, result).Inc()
}

func AddTicketsReserved(n int) {
	ticketsReserved.Add(float64(n))
}

func AddTicketsReleased(n int) {
	ticketsReleased.Add(float64(n))
}

func ObserveSideChannelFailure(channel string) {
	sideChannelFailures.WithLabelValues(channel).Inc()
}

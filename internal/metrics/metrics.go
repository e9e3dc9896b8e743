package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Enrollment workflow metrics
	EnrollmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corkboard_enrollments_total",
			Help: "Enrollment requests by outcome (created, waitlisted, conflict, not_found, error)",
		},
		[]string{"outcome"},
	)

	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corkboard_enrollment_decisions_total",
			Help: "Admin decisions by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	CancellationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corkboard_enrollment_cancellations_total",
			Help: "Enrollment cancellations by the status the enrollment had",
		},
		[]string{"status"},
	)

	// Reminder metrics
	RemindersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corkboard_reminders_total",
			Help: "Reminder emails by window and result (sent, failed, skipped)",
		},
		[]string{"window", "result"},
	)

	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "corkboard_reminder_sweep_duration_seconds",
			Help:    "Duration of a reminder sweep",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Delivery metrics
	EmailsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corkboard_emails_total",
			Help: "Outbound emails by stage (enqueued, enqueue_failed, sent, failed, dead_lettered)",
		},
		[]string{"stage"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corkboard_notifications_total",
			Help: "In-app notifications by type and result",
		},
		[]string{"type", "result"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corkboard_api_requests_total",
			Help: "Total number of API requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "corkboard_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func init() {
	prometheus.MustRegister(EnrollmentsTotal)
	prometheus.MustRegister(DecisionsTotal)
	prometheus.MustRegister(CancellationsTotal)
	prometheus.MustRegister(RemindersTotal)
	prometheus.MustRegister(SweepDuration)
	prometheus.MustRegister(EmailsTotal)
	prometheus.MustRegister(NotificationsTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency per matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		APIRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		APIRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Timer helps measure operation duration
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration since the timer started
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the counters shared by the gobarber services. A nil *Collector is valid and
// records nothing, so tests and tools can skip metrics entirely.
type Collector struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlightGauge   prometheus.Gauge

	BookingsTotal      *prometheus.CounterVec
	CancellationsTotal *prometheus.CounterVec
	NotificationErrors prometheus.Counter

	OutboxPublishedTotal *prometheus.CounterVec
	MailsTotal           *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewCollector registers every metric on reg. Passing nil uses a fresh registry so repeated
// construction in tests never panics on duplicate registration.
func NewCollector(serviceName string, reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	ns := sanitize(serviceName)
	return &Collector{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code.",
		}, []string{"method", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method"}),

		InFlightGauge: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),

		BookingsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome (booked or the rejection reason).",
		}, []string{"outcome"}),

		CancellationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "scheduling",
			Name:      "cancellations_total",
			Help:      "Cancellation attempts by outcome (canceled or the rejection reason).",
		}, []string{"outcome"}),

		NotificationErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "scheduling",
			Name:      "notification_errors_total",
			Help:      "Bookings persisted whose provider notification failed.",
		}),

		OutboxPublishedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Outbox events relayed to Kafka by result.",
		}, []string{"result"}),

		MailsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "mailer",
			Name:      "mails_total",
			Help:      "Cancellation mails by result (sent, failed, duplicate).",
		}, []string{"result"}),

		gatherer: reg,
	}
}

func (c *Collector) ObserveBooking(outcome string) {
	if c == nil {
		return
	}
	c.BookingsTotal.WithLabelValues(outcome).Inc()
}

func (c *Collector) ObserveCancellation(outcome string) {
	if c == nil {
		return
	}
	c.CancellationsTotal.WithLabelValues(outcome).Inc()
}

func (c *Collector) ObserveNotificationError() {
	if c == nil {
		return
	}
	c.NotificationErrors.Inc()
}

func (c *Collector) ObserveOutbox(result string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.OutboxPublishedTotal.WithLabelValues(result).Add(float64(n))
}

func (c *Collector) ObserveMail(result string) {
	if c == nil {
		return
	}
	c.MailsTotal.WithLabelValues(result).Inc()
}

// Middleware records request count, latency and in-flight requests.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	if c == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.InFlightGauge.Inc()
		defer c.InFlightGauge.Dec()

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		c.RequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		c.RequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func sanitize(name string) string {
	out := []byte(name)
	for i, b := range out {
		if !(b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '_') {
			out[i] = '_'
		}
	}
	return string(out)
}

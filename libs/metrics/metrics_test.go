package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveBooking(t *testing.T) {
	c := NewCollector("booking-service", prometheus.NewRegistry())
	c.ObserveBooking("booked")
	c.ObserveBooking("booked")
	c.ObserveBooking("slot_conflict")

	expected := `
# HELP booking_service_scheduling_bookings_total Booking attempts by outcome (booked or the rejection reason).
# TYPE booking_service_scheduling_bookings_total counter
booking_service_scheduling_bookings_total{outcome="booked"} 2
booking_service_scheduling_bookings_total{outcome="slot_conflict"} 1
`
	if err := testutil.CollectAndCompare(c.BookingsTotal, strings.NewReader(expected)); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.ObserveBooking("booked")
	c.ObserveCancellation("canceled")
	c.ObserveNotificationError()
	c.ObserveOutbox("ok", 3)
	c.ObserveMail("sent")

	h := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected passthrough, got %d", rec.Code)
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	c := NewCollector("svc", nil)
	h := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/x", nil))

	if got := testutil.ToFloat64(c.RequestsTotal.WithLabelValues("POST", "201")); got != 1 {
		t.Fatalf("requests_total = %v, want 1", got)
	}

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "svc_http_requests_total") {
		t.Fatalf("metrics output missing request counter: %s", body)
	}
}

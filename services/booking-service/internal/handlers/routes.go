package handlers

import (
	"net/http"

	"github.com/md-rashed-zaman/gobarber/libs/httpx"
)

// Register mounts the authenticated API on mux. requireUser resolves the caller id.
func Register(mux *http.ServeMux, appts *AppointmentHandler, notes *NotificationHandler, requireUser httpx.Middleware) {
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, requireUser(fn))
	}
	handle("GET /api/v1/appointments", appts.List)
	handle("POST /api/v1/appointments", appts.Create)
	handle("DELETE /api/v1/appointments/{id}", appts.Cancel)
	handle("GET /api/v1/providers/{id}/availability", appts.Availability)
	if notes != nil {
		handle("GET /api/v1/notifications", notes.List)
		handle("PUT /api/v1/notifications/{id}", notes.MarkRead)
	}
}

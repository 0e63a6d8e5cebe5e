package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/gobarber/libs/auth"
	"github.com/md-rashed-zaman/gobarber/libs/httpx"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/scheduling"
)

// Scheduler is the engine surface the HTTP layer drives.
type Scheduler interface {
	Book(ctx context.Context, req scheduling.BookRequest) (scheduling.BookResult, error)
	Cancel(ctx context.Context, customerID, appointmentID string) (model.Appointment, error)
	ListActive(ctx context.Context, customerID string, page int) ([]model.AppointmentView, error)
	Availability(ctx context.Context, providerID string, day time.Time) ([]availability.Slot, error)
}

type AppointmentHandler struct {
	engine Scheduler
	logger *slog.Logger
}

func NewAppointmentHandler(engine Scheduler, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{engine: engine, logger: logger}
}

type createAppointmentRequest struct {
	ProviderID string `json:"provider_id"`
	Date       string `json:"date"`
}

type createAppointmentResponse struct {
	model.Appointment
	NotificationSent bool `json:"notification_sent"`
}

type availabilityResponse struct {
	ProviderID string              `json:"provider_id"`
	Date       string              `json:"date"`
	Slots      []availability.Slot `json:"slots"`
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httpx.WriteError(w, http.StatusBadRequest, "page must be a positive integer")
			return
		}
		page = n
	}

	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	views, err := h.engine.ListActive(r.Context(), caller, page)
	if err != nil {
		h.writeSchedulingError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, views)
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	providerID, err := parseID(req.ProviderID)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "provider_id must be a uuid")
		return
	}
	date, err := time.Parse(time.RFC3339, strings.TrimSpace(req.Date))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "date must be an RFC 3339 timestamp")
		return
	}

	res, err := h.engine.Book(r.Context(), scheduling.BookRequest{
		CustomerID: caller,
		ProviderID: providerID,
		Date:       date,
	})
	if err != nil {
		h.writeSchedulingError(w, r, err)
		return
	}
	if res.NotificationErr != nil {
		h.logger.Warn("appointment booked without provider notification", "err", res.NotificationErr, "appointment_id", res.Appointment.ID)
	}
	httpx.WriteJSON(w, http.StatusCreated, createAppointmentResponse{
		Appointment:      res.Appointment,
		NotificationSent: res.NotificationErr == nil,
	})
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "appointment id must be a uuid")
		return
	}

	appt, err := h.engine.Cancel(r.Context(), caller, id)
	if err != nil {
		h.writeSchedulingError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

func (h *AppointmentHandler) Availability(w http.ResponseWriter, r *http.Request) {
	providerID, err := parseID(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "provider id must be a uuid")
		return
	}
	rawDate := strings.TrimSpace(r.URL.Query().Get("date"))
	day, err := time.Parse(time.DateOnly, rawDate)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	slots, err := h.engine.Availability(r.Context(), providerID, day)
	if err != nil {
		h.writeSchedulingError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, availabilityResponse{ProviderID: providerID, Date: rawDate, Slots: slots})
}

func (h *AppointmentHandler) writeSchedulingError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("scheduling request failed", "err", err, "path", r.URL.Path, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, status, "storage unavailable, retry later")
		return
	}
	var rej *scheduling.RejectionError
	if errors.As(err, &rej) {
		httpx.WriteError(w, status, rej.Reason.Error())
		return
	}
	httpx.WriteError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, scheduling.ErrSelfBooking),
		errors.Is(err, scheduling.ErrNotAProvider),
		errors.Is(err, scheduling.ErrForbidden),
		errors.Is(err, scheduling.ErrTooLate):
		return http.StatusUnauthorized
	case errors.Is(err, scheduling.ErrPastDate),
		errors.Is(err, scheduling.ErrSlotConflict):
		return http.StatusBadRequest
	case errors.Is(err, scheduling.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, scheduling.ErrAlreadyCanceled):
		return http.StatusConflict
	case errors.Is(err, scheduling.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// callerID returns the authenticated user id in canonical uuid form so it compares equal to
// ids parsed from the request and ids read back from the database. A non-uuid caller gets 401.
func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := parseID(auth.UserIDFromContext(r.Context()))
	if err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, "caller id must be a uuid")
		return "", false
	}
	return id, true
}

func parseID(raw string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

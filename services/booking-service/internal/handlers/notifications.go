package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/gobarber/libs/httpx"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/notify"
)

const notificationPageSize = 20

type NotificationHandler struct {
	store  notify.Store
	logger *slog.Logger
}

func NewNotificationHandler(store notify.Store, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{store: store, logger: logger}
}

// List returns the caller's latest notifications, newest first.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	items, err := h.store.ListForRecipient(r.Context(), caller, notificationPageSize)
	if err != nil {
		h.logger.Error("list notifications failed", "err", err)
		httpx.WriteError(w, http.StatusServiceUnavailable, "storage unavailable, retry later")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerID(w, r)
	if !ok {
		return
	}
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "notification id must be a uuid")
		return
	}
	n, err := h.store.MarkRead(r.Context(), id, caller)
	if errors.Is(err, notify.ErrNotFound) {
		httpx.WriteError(w, http.StatusNotFound, "notification not found")
		return
	}
	if err != nil {
		h.logger.Error("mark notification read failed", "err", err)
		httpx.WriteError(w, http.StatusServiceUnavailable, "storage unavailable, retry later")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, n)
}

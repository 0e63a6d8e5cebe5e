package scheduling

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrSelfBooking        = errors.New("cannot book an appointment with yourself")
	ErrNotAProvider       = errors.New("target user is not a provider")
	ErrPastDate           = errors.New("past dates are not permitted")
	ErrSlotConflict       = errors.New("appointment date is not available")
	ErrForbidden          = errors.New("not allowed to cancel this appointment")
	ErrTooLate            = errors.New("appointments can only be canceled before the cancellation deadline")
	ErrAlreadyCanceled    = errors.New("appointment already canceled")
	ErrNotFound           = errors.New("appointment not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// RejectionError is a business-rule refusal. It unwraps to one of the sentinels above.
type RejectionError struct {
	Reason        error
	AppointmentID string
	ProviderID    string
	Slot          time.Time
}

func (e *RejectionError) Error() string {
	switch {
	case e.AppointmentID != "":
		return fmt.Sprintf("%v (appointment %s)", e.Reason, e.AppointmentID)
	case !e.Slot.IsZero():
		return fmt.Sprintf("%v (provider %s, slot %s)", e.Reason, e.ProviderID, e.Slot.Format(time.RFC3339))
	default:
		return e.Reason.Error()
	}
}

func (e *RejectionError) Unwrap() error { return e.Reason }

// NotificationError reports a booking that was persisted but whose provider notification failed.
type NotificationError struct {
	AppointmentID string
	Err           error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify provider for appointment %s: %v", e.AppointmentID, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}

// outcome is the metrics label for a Book/Cancel result.
func outcome(err error, success string) string {
	switch {
	case err == nil:
		return success
	case errors.Is(err, ErrSelfBooking):
		return "self_booking"
	case errors.Is(err, ErrNotAProvider):
		return "not_a_provider"
	case errors.Is(err, ErrPastDate):
		return "past_date"
	case errors.Is(err, ErrSlotConflict):
		return "slot_conflict"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrTooLate):
		return "too_late"
	case errors.Is(err, ErrAlreadyCanceled):
		return "already_canceled"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

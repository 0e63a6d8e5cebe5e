package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/model"
)

// Dispatcher writes the provider's in-app notification for a new booking.
type Dispatcher struct {
	store    Store
	renderer *Renderer
	clock    clock.Clock
}

func NewDispatcher(store Store, renderer *Renderer, clk clock.Clock) *Dispatcher {
	return &Dispatcher{store: store, renderer: renderer, clock: clk}
}

func (d *Dispatcher) NotifyBooking(ctx context.Context, appt model.Appointment, customerName string) error {
	n := model.Notification{
		ID:            uuid.NewString(),
		RecipientID:   appt.ProviderID,
		AppointmentID: appt.ID,
		Content:       d.renderer.Render(customerName, appt.ScheduledAt),
		CreatedAt:     d.clock.Now(),
	}
	if err := d.store.Insert(ctx, n); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	return nil
}

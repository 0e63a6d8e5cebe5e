package scheduling

import "github.com/md-rashed-zaman/gobarber/services/booking-service/internal/model"

// CancellationJobKey names the background job and the Kafka topic it travels on.
const CancellationJobKey = "booking.appointment.cancelled.v1"

type Party struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// CancellationJob is the payload the mail worker needs to tell the provider about a cancellation.
type CancellationJob struct {
	Appointment model.Appointment `json:"appointment"`
	Provider    Party             `json:"provider"`
	Customer    Party             `json:"customer"`
}

func (j CancellationJob) AggregateType() string { return "appointment" }
func (j CancellationJob) AggregateID() string   { return j.Appointment.ID }

package model

import "time"

type Appointment struct {
	ID          string     `json:"id"`
	CustomerID  string     `json:"customer_id"`
	ProviderID  string     `json:"provider_id"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	CanceledAt  *time.Time `json:"canceled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (a Appointment) Active() bool { return a.CanceledAt == nil }

func (a Appointment) IsPast(now time.Time) bool {
	return a.ScheduledAt.Before(now)
}

// IsCancelable reports whether now is strictly before the cancellation deadline.
func (a Appointment) IsCancelable(now time.Time, lead time.Duration) bool {
	return a.Active() && now.Before(a.ScheduledAt.Add(-lead))
}

// ProviderSummary is the provider projection returned alongside a customer's appointments.
type ProviderSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type AppointmentView struct {
	Appointment
	Provider   ProviderSummary `json:"provider"`
	Past       bool            `json:"past"`
	Cancelable bool            `json:"cancelable"`
}

package model

import "time"

type User struct {
	ID         string
	Name       string
	Email      string
	Provider   bool
	AvatarPath string
}

// Notification is the in-app message written to a provider for each new booking.
type Notification struct {
	ID            string    `json:"id"`
	RecipientID   string    `json:"recipient_id"`
	AppointmentID string    `json:"appointment_id"`
	Content       string    `json:"content"`
	Read          bool      `json:"read"`
	CreatedAt     time.Time `json:"created_at"`
}

package storage

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/md-rashed-zaman/gobarber/libs/db"
)

type Delivery struct {
	EventID       string
	AppointmentID string
	Recipient     string
	Subject       string
	Status        string
	Error         string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, d Delivery) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO mail_deliveries (event_id, appointment_id, recipient, subject, status, error)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
	`, d.EventID, d.AppointmentID, d.Recipient, d.Subject, d.Status, d.Error)
	return err
}

//go:embed schema.sql
var schema string

func Migrate(ctx context.Context, q db.Querier) error {
	if _, err := q.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply mailer schema: %w", err)
	}
	return nil
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/gobarber/libs/db"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/model"
)

// Ledger is the Postgres-backed appointment store. Slot uniqueness is enforced by the
// appointments_provider_slot_active_uniq partial index, not by the read-then-write in callers.
type Ledger struct {
	pool       *db.Pool
	avatarBase string
}

func NewLedger(pool *db.Pool, avatarBaseURL string) *Ledger {
	return &Ledger{pool: pool, avatarBase: avatarBaseURL}
}

const appointmentColumns = `id::text, customer_id::text, provider_id::text, scheduled_at, canceled_at, created_at`

func (l *Ledger) IsSlotTaken(ctx context.Context, providerID string, slot time.Time) (bool, error) {
	var taken bool
	err := l.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE provider_id = $1 AND scheduled_at = $2 AND canceled_at IS NULL
		)
	`, providerID, slot.UTC()).Scan(&taken)
	return taken, err
}

func (l *Ledger) Record(ctx context.Context, appt model.Appointment) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO appointments (id, customer_id, provider_id, scheduled_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, appt.ID, appt.CustomerID, appt.ProviderID, appt.ScheduledAt.UTC(), appt.CreatedAt.UTC())
	if IsSlotViolation(err) {
		return ErrSlotTaken
	}
	return err
}

func (l *Ledger) FindByID(ctx context.Context, id string) (model.Appointment, error) {
	return findByID(ctx, l.pool, id)
}

func findByID(ctx context.Context, q db.Querier, id string) (model.Appointment, error) {
	appt, err := scanAppointment(q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
	if isNoRows(err) {
		return model.Appointment{}, ErrNotFound
	}
	return appt, err
}

// CancelHook runs inside the cancel's transaction with the updated appointment. A non-nil
// error rolls the cancel back.
type CancelHook func(ctx context.Context, q db.Querier, canceled model.Appointment) error

// MarkCanceled sets canceled_at only while it is still NULL, so two concurrent cancels resolve
// to exactly one winner. then, when set, commits or rolls back together with the update.
func (l *Ledger) MarkCanceled(ctx context.Context, id string, at time.Time, then CancelHook) (model.Appointment, error) {
	var canceled model.Appointment
	err := l.pool.InTx(ctx, func(tx pgx.Tx) error {
		appt, err := scanAppointment(tx.QueryRow(ctx, `
			UPDATE appointments
			SET canceled_at = $2
			WHERE id = $1 AND canceled_at IS NULL
			RETURNING `+appointmentColumns,
			id, at.UTC()))
		if db.HasCode(err, db.CodeInvalidText) {
			return ErrNotFound
		}
		if errors.Is(err, pgx.ErrNoRows) {
			if _, err := findByID(ctx, tx, id); err != nil {
				return err
			}
			return ErrAlreadyCanceled
		}
		if err != nil {
			return err
		}
		if then != nil {
			if err := then(ctx, tx, appt); err != nil {
				return err
			}
		}
		canceled = appt
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return canceled, nil
}

func (l *Ledger) ListActiveByCustomer(ctx context.Context, customerID string, limit, offset int) ([]model.AppointmentView, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT a.id::text, a.customer_id::text, a.provider_id::text, a.scheduled_at, a.canceled_at, a.created_at,
			p.name, COALESCE(f.path, '')
		FROM appointments a
		JOIN users p ON p.id = a.provider_id
		LEFT JOIN files f ON f.id = p.avatar_id
		WHERE a.customer_id = $1 AND a.canceled_at IS NULL
		ORDER BY a.scheduled_at ASC
		LIMIT $2 OFFSET $3
	`, customerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	views := []model.AppointmentView{}
	for rows.Next() {
		var v model.AppointmentView
		var avatarPath string
		if err := rows.Scan(
			&v.ID,
			&v.CustomerID,
			&v.ProviderID,
			&v.ScheduledAt,
			&v.CanceledAt,
			&v.CreatedAt,
			&v.Provider.Name,
			&avatarPath,
		); err != nil {
			return nil, err
		}
		v.ScheduledAt = v.ScheduledAt.UTC()
		v.Provider.ID = v.ProviderID
		v.Provider.AvatarURL = AvatarURL(l.avatarBase, avatarPath)
		views = append(views, v)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return views, nil
}

// ListProviderSlots returns the active slot starts for a provider within [from, to).
func (l *Ledger) ListProviderSlots(ctx context.Context, providerID string, from, to time.Time) ([]time.Time, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT scheduled_at
		FROM appointments
		WHERE provider_id = $1
			AND canceled_at IS NULL
			AND scheduled_at >= $2
			AND scheduled_at < $3
		ORDER BY scheduled_at ASC
	`, providerID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		slots = append(slots, t.UTC())
	}
	return slots, rows.Err()
}

// AvatarURL joins the public files base with a stored avatar path; empty paths stay empty.
func AvatarURL(base, path string) string {
	if path == "" {
		return ""
	}
	if base == "" {
		return path
	}
	return fmt.Sprintf("%s/%s", trimSlash(base), path)
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (model.Appointment, error) {
	var appt model.Appointment
	err := row.Scan(
		&appt.ID,
		&appt.CustomerID,
		&appt.ProviderID,
		&appt.ScheduledAt,
		&appt.CanceledAt,
		&appt.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.ScheduledAt = appt.ScheduledAt.UTC()
	return appt, nil
}

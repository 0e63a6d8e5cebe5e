package storage

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/gobarber/libs/db"
)

var (
	ErrNotFound        = errors.New("appointment not found")
	ErrSlotTaken       = errors.New("slot already has an active appointment")
	ErrAlreadyCanceled = errors.New("appointment already canceled")
)

const activeSlotConstraint = "appointments_provider_slot_active_uniq"

// IsSlotViolation reports whether err is the partial unique index on active provider slots.
func IsSlotViolation(err error) bool {
	return db.HasCode(err, db.CodeUniqueViolation) && db.ConstraintName(err) == activeSlotConstraint
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || db.HasCode(err, db.CodeInvalidText)
}

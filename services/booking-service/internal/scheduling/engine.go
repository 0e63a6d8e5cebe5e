package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/gobarber/libs/db"
	"github.com/md-rashed-zaman/gobarber/libs/metrics"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/directory"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Ledger is the authoritative appointment store. Record must reject a second active
// appointment for the same provider and slot with storage.ErrSlotTaken. MarkCanceled must only
// succeed while the appointment is active and must commit the hook's writes atomically with it.
type Ledger interface {
	IsSlotTaken(ctx context.Context, providerID string, slot time.Time) (bool, error)
	Record(ctx context.Context, appt model.Appointment) error
	FindByID(ctx context.Context, id string) (model.Appointment, error)
	MarkCanceled(ctx context.Context, id string, at time.Time, then storage.CancelHook) (model.Appointment, error)
	ListActiveByCustomer(ctx context.Context, customerID string, limit, offset int) ([]model.AppointmentView, error)
	ListProviderSlots(ctx context.Context, providerID string, from, to time.Time) ([]time.Time, error)
}

type Notifier interface {
	NotifyBooking(ctx context.Context, appt model.Appointment, customerName string) error
}

// JobQueue persists background jobs. EnqueueIn writes through q so the job shares the caller's
// transaction; a nil q lets the queue use its own connection.
type JobQueue interface {
	EnqueueIn(ctx context.Context, q db.Querier, key string, payload any) error
}

type Dependencies struct {
	Ledger    Ledger
	Directory directory.Lookup
	Clock     clock.Clock
	Notifier  Notifier
	Jobs      JobQueue
	Logger    *slog.Logger
	Metrics   *metrics.Collector
}

type Config struct {
	CancelLeadTime   time.Duration
	PageSize         int
	WorkdayStartHour int
	WorkdayEndHour   int
}

func (c Config) withDefaults() Config {
	if c.CancelLeadTime <= 0 {
		c.CancelLeadTime = 2 * time.Hour
	}
	if c.PageSize <= 0 {
		c.PageSize = 20
	}
	if c.WorkdayEndHour <= 0 || c.WorkdayEndHour > 23 || c.WorkdayStartHour < 0 || c.WorkdayStartHour > c.WorkdayEndHour {
		c.WorkdayStartHour, c.WorkdayEndHour = 8, 19
	}
	return c
}

// Engine applies the booking and cancellation rules. It holds no mutable state; every
// decision reads the ledger and the clock at call time.
type Engine struct {
	deps   Dependencies
	cfg    Config
	tracer trace.Tracer
}

func NewEngine(deps Dependencies, cfg Config) *Engine {
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Engine{
		deps:   deps,
		cfg:    cfg.withDefaults(),
		tracer: otel.Tracer("booking-service/scheduling"),
	}
}

func (e *Engine) CancelLeadTime() time.Duration { return e.cfg.CancelLeadTime }

type BookRequest struct {
	CustomerID string
	ProviderID string
	Date       time.Time
}

// BookResult carries the stored appointment. NotificationErr is set when the appointment was
// persisted but the provider could not be notified.
type BookResult struct {
	Appointment     model.Appointment
	NotificationErr error
}

func (e *Engine) Book(ctx context.Context, req BookRequest) (BookResult, error) {
	ctx, span := e.tracer.Start(ctx, "scheduling.Book", trace.WithAttributes(
		attribute.String("appointment.provider_id", req.ProviderID),
	))
	defer span.End()

	res, err := e.book(ctx, req)
	e.deps.Metrics.ObserveBooking(outcome(err, "booked"))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return BookResult{}, err
	}
	span.SetAttributes(attribute.String("appointment.id", res.Appointment.ID))
	return res, nil
}

func (e *Engine) book(ctx context.Context, req BookRequest) (BookResult, error) {
	if req.CustomerID == req.ProviderID {
		return BookResult{}, &RejectionError{Reason: ErrSelfBooking, ProviderID: req.ProviderID}
	}

	if err := e.requireProvider(ctx, req.ProviderID); err != nil {
		return BookResult{}, err
	}

	now := e.deps.Clock.Now()
	slot := clock.NormalizeToHourStart(req.Date)
	if slot.Before(now) {
		return BookResult{}, &RejectionError{Reason: ErrPastDate, ProviderID: req.ProviderID, Slot: slot}
	}

	taken, err := e.deps.Ledger.IsSlotTaken(ctx, req.ProviderID, slot)
	if err != nil {
		return BookResult{}, storageErr("check slot", err)
	}
	if taken {
		return BookResult{}, &RejectionError{Reason: ErrSlotConflict, ProviderID: req.ProviderID, Slot: slot}
	}

	appt := model.Appointment{
		ID:          uuid.NewString(),
		CustomerID:  req.CustomerID,
		ProviderID:  req.ProviderID,
		ScheduledAt: slot,
		CreatedAt:   now,
	}
	if err := e.deps.Ledger.Record(ctx, appt); err != nil {
		if errors.Is(err, storage.ErrSlotTaken) {
			return BookResult{}, &RejectionError{Reason: ErrSlotConflict, ProviderID: req.ProviderID, Slot: slot}
		}
		return BookResult{}, storageErr("record appointment", err)
	}

	res := BookResult{Appointment: appt}
	if err := e.notify(ctx, appt); err != nil {
		res.NotificationErr = &NotificationError{AppointmentID: appt.ID, Err: err}
		e.deps.Metrics.ObserveNotificationError()
		e.deps.Logger.Warn("provider notification failed", "err", err, "appointment_id", appt.ID)
	}
	return res, nil
}

func (e *Engine) notify(ctx context.Context, appt model.Appointment) error {
	if e.deps.Notifier == nil {
		return nil
	}
	customer, err := e.deps.Directory.Lookup(ctx, appt.CustomerID)
	if err != nil {
		return err
	}
	return e.deps.Notifier.NotifyBooking(ctx, appt, customer.Name)
}

func (e *Engine) requireProvider(ctx context.Context, providerID string) error {
	provider, err := e.deps.Directory.Lookup(ctx, providerID)
	if errors.Is(err, directory.ErrUserNotFound) || (err == nil && !provider.Provider) {
		return &RejectionError{Reason: ErrNotAProvider, ProviderID: providerID}
	}
	if err != nil {
		return storageErr("lookup provider", err)
	}
	return nil
}

func (e *Engine) Cancel(ctx context.Context, customerID, appointmentID string) (model.Appointment, error) {
	ctx, span := e.tracer.Start(ctx, "scheduling.Cancel", trace.WithAttributes(
		attribute.String("appointment.id", appointmentID),
	))
	defer span.End()

	appt, err := e.cancel(ctx, customerID, appointmentID)
	e.deps.Metrics.ObserveCancellation(outcome(err, "canceled"))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.Appointment{}, err
	}
	return appt, nil
}

func (e *Engine) cancel(ctx context.Context, customerID, appointmentID string) (model.Appointment, error) {
	appt, err := e.deps.Ledger.FindByID(ctx, appointmentID)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Appointment{}, &RejectionError{Reason: ErrNotFound, AppointmentID: appointmentID}
	}
	if err != nil {
		return model.Appointment{}, storageErr("load appointment", err)
	}

	if appt.CustomerID != customerID {
		return model.Appointment{}, &RejectionError{Reason: ErrForbidden, AppointmentID: appt.ID}
	}

	now := e.deps.Clock.Now()
	if !now.Before(appt.ScheduledAt.Add(-e.cfg.CancelLeadTime)) {
		return model.Appointment{}, &RejectionError{Reason: ErrTooLate, AppointmentID: appt.ID, Slot: appt.ScheduledAt}
	}
	if !appt.Active() {
		return model.Appointment{}, &RejectionError{Reason: ErrAlreadyCanceled, AppointmentID: appt.ID}
	}

	var enqueue storage.CancelHook
	if e.deps.Jobs != nil {
		job := e.cancellationJob(ctx, appt)
		enqueue = func(ctx context.Context, q db.Querier, canceled model.Appointment) error {
			job.Appointment = canceled
			if err := e.deps.Jobs.EnqueueIn(ctx, q, CancellationJobKey, job); err != nil {
				return fmt.Errorf("enqueue cancellation job: %w", err)
			}
			return nil
		}
	}
	canceled, err := e.deps.Ledger.MarkCanceled(ctx, appt.ID, now, enqueue)
	switch {
	case errors.Is(err, storage.ErrAlreadyCanceled):
		return model.Appointment{}, &RejectionError{Reason: ErrAlreadyCanceled, AppointmentID: appt.ID}
	case errors.Is(err, storage.ErrNotFound):
		return model.Appointment{}, &RejectionError{Reason: ErrNotFound, AppointmentID: appt.ID}
	case err != nil:
		return model.Appointment{}, storageErr("cancel appointment", err)
	}
	return canceled, nil
}

// cancellationJob resolves the parties before the cancel transaction opens. Lookup failures
// leave the party with its id only.
func (e *Engine) cancellationJob(ctx context.Context, appt model.Appointment) CancellationJob {
	job := CancellationJob{
		Appointment: appt,
		Provider:    Party{ID: appt.ProviderID},
		Customer:    Party{ID: appt.CustomerID},
	}
	if p, err := e.deps.Directory.Lookup(ctx, appt.ProviderID); err == nil {
		job.Provider = Party{ID: p.ID, Name: p.Name, Email: p.Email}
	} else {
		e.deps.Logger.Warn("provider lookup for cancellation job failed", "err", err, "appointment_id", appt.ID)
	}
	if c, err := e.deps.Directory.Lookup(ctx, appt.CustomerID); err == nil {
		job.Customer = Party{ID: c.ID, Name: c.Name}
	} else {
		e.deps.Logger.Warn("customer lookup for cancellation job failed", "err", err, "appointment_id", appt.ID)
	}
	return job
}

// ListActive returns one page (1-based) of the customer's active appointments in slot order.
func (e *Engine) ListActive(ctx context.Context, customerID string, page int) ([]model.AppointmentView, error) {
	if page < 1 {
		page = 1
	}
	views, err := e.deps.Ledger.ListActiveByCustomer(ctx, customerID, e.cfg.PageSize, (page-1)*e.cfg.PageSize)
	if err != nil {
		return nil, storageErr("list appointments", err)
	}
	now := e.deps.Clock.Now()
	for i := range views {
		views[i].Past = views[i].IsPast(now)
		views[i].Cancelable = views[i].IsCancelable(now, e.cfg.CancelLeadTime)
	}
	return views, nil
}

// Availability lists the provider's hourly slots for the UTC calendar day containing day.
func (e *Engine) Availability(ctx context.Context, providerID string, day time.Time) ([]availability.Slot, error) {
	if err := e.requireProvider(ctx, providerID); err != nil {
		return nil, err
	}
	y, m, d := day.UTC().Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	from := midnight.Add(time.Duration(e.cfg.WorkdayStartHour) * time.Hour)
	to := midnight.Add(time.Duration(e.cfg.WorkdayEndHour+1) * time.Hour)

	taken, err := e.deps.Ledger.ListProviderSlots(ctx, providerID, from, to)
	if err != nil {
		return nil, storageErr("list provider slots", err)
	}
	return availability.Slots(from, to, time.Hour, availability.Hourly(taken), e.deps.Clock.Now()), nil
}

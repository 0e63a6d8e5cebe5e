package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff/v5"
	"github.com/md-rashed-zaman/gobarber/libs/kafkax"
	"github.com/md-rashed-zaman/gobarber/libs/metrics"
	"github.com/md-rashed-zaman/gobarber/services/mailer-service/internal/email"
	"github.com/md-rashed-zaman/gobarber/services/mailer-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

type DeliveryLog interface {
	Insert(ctx context.Context, d storage.Delivery) error
}

// Worker turns cancellation jobs into provider mails. Malformed jobs are rejected with a
// permanent error; send failures are returned as-is so the consumer retries them.
type Worker struct {
	sender   email.Sender
	renderer *Renderer
	log      DeliveryLog
	logger   *slog.Logger
	metrics  *metrics.Collector
}

func NewWorker(sender email.Sender, renderer *Renderer, log DeliveryLog, logger *slog.Logger, m *metrics.Collector) *Worker {
	return &Worker{sender: sender, renderer: renderer, log: log, logger: logger, metrics: m}
}

func (w *Worker) Handle(ctx context.Context, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)

	var job CancellationJob
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		w.metrics.ObserveMail("rejected")
		return backoff.Permanent(fmt.Errorf("decode cancellation job: %w", err))
	}
	m, err := w.renderer.Cancellation(job)
	if err != nil {
		w.metrics.ObserveMail("rejected")
		w.record(ctx, storage.Delivery{EventID: meta.EventID, AppointmentID: job.Appointment.ID, Status: "rejected", Error: err.Error()})
		return backoff.Permanent(err)
	}

	if err := w.sender.Send(ctx, m); err != nil {
		w.metrics.ObserveMail("failed")
		w.record(ctx, storage.Delivery{
			EventID:       meta.EventID,
			AppointmentID: job.Appointment.ID,
			Recipient:     m.ToAddr,
			Subject:       m.Subject,
			Status:        "failed",
			Error:         err.Error(),
		})
		return fmt.Errorf("send cancellation mail for %s: %w", job.Appointment.ID, err)
	}
	w.metrics.ObserveMail("sent")
	w.record(ctx, storage.Delivery{
		EventID:       meta.EventID,
		AppointmentID: job.Appointment.ID,
		Recipient:     m.ToAddr,
		Subject:       m.Subject,
		Status:        "sent",
	})
	w.logger.Info("cancellation mail sent", "appointment_id", job.Appointment.ID, "event_id", meta.EventID)
	return nil
}

// record is best effort; a failed write never changes the outcome of the attempt.
func (w *Worker) record(ctx context.Context, d storage.Delivery) {
	if w.log == nil {
		return
	}
	if err := w.log.Insert(ctx, d); err != nil {
		w.logger.Warn("delivery log write failed", "err", err, "appointment_id", d.AppointmentID)
	}
}

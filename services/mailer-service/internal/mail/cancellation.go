package mail

import (
	"fmt"
	"strings"
	"time"

	"github.com/goodsign/monday"
	"github.com/md-rashed-zaman/gobarber/services/mailer-service/internal/email"
)

// CancellationJob mirrors the payload booking-service enqueues on
// booking.appointment.cancelled.v1.
type CancellationJob struct {
	Appointment struct {
		ID          string     `json:"id"`
		ScheduledAt time.Time  `json:"scheduled_at"`
		CanceledAt  *time.Time `json:"canceled_at"`
	} `json:"appointment"`
	Provider struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"provider"`
	Customer struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"customer"`
}

type template struct {
	subject string
	layout  string
	body    string
}

var templates = map[monday.Locale]template{
	monday.LocalePtBR: {
		subject: "Agendamento cancelado",
		layout:  "dia 02 de January, às 15:04h",
		body:    "Olá, %s\n\nHouve um cancelamento no seguinte horário, confira os detalhes abaixo:\n\nCliente: %s\nData/hora: %s\n\nO horário está novamente disponível para novos agendamentos.\n\nEquipe GoBarber",
	},
	monday.LocaleEnUS: {
		subject: "Appointment canceled",
		layout:  "January 02 at 15:04",
		body:    "Hello, %s\n\nAn appointment was canceled, see the details below:\n\nCustomer: %s\nDate/time: %s\n\nThe slot is open again for new bookings.\n\nThe GoBarber team",
	},
}

type Renderer struct {
	locale monday.Locale
	tmpl   template
	loc    *time.Location
}

func NewRenderer(locale string, loc *time.Location) (*Renderer, error) {
	l := monday.Locale(locale)
	t, ok := templates[l]
	if !ok {
		return nil, fmt.Errorf("unsupported mail locale %q", locale)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Renderer{locale: l, tmpl: t, loc: loc}, nil
}

// Cancellation renders the provider-facing mail. It fails when the job lacks a recipient.
func (r *Renderer) Cancellation(job CancellationJob) (email.Message, error) {
	to := strings.TrimSpace(job.Provider.Email)
	if to == "" {
		return email.Message{}, fmt.Errorf("appointment %s: provider email missing", job.Appointment.ID)
	}
	if job.Appointment.ScheduledAt.IsZero() {
		return email.Message{}, fmt.Errorf("appointment %s: scheduled_at missing", job.Appointment.ID)
	}
	customer := job.Customer.Name
	if customer == "" {
		customer = job.Customer.ID
	}
	when := monday.Format(job.Appointment.ScheduledAt.In(r.loc), r.tmpl.layout, r.locale)
	return email.Message{
		ToName:  job.Provider.Name,
		ToAddr:  to,
		Subject: r.tmpl.subject,
		Body:    fmt.Sprintf(r.tmpl.body, job.Provider.Name, customer, when),
	}, nil
}

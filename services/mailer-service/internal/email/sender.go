package email

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

type Message struct {
	ToName  string
	ToAddr  string
	Subject string
	Body    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender sends email via SMTP, authenticating only when a username is configured
// (Mailpit and local relays accept unauthenticated mail).
type SMTPSender struct {
	addr     string
	host     string
	from     string
	username string
	password string
	timeout  time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     string
	From     string
	Username string
	Password string
	Timeout  time.Duration
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	host := strings.TrimSpace(cfg.Host)
	port := strings.TrimSpace(cfg.Port)
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = "Equipe GoBarber <noreply@gobarber.local>"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMTPSender{
		addr:     net.JoinHostPort(host, port),
		host:     host,
		from:     from,
		username: cfg.Username,
		password: cfg.Password,
		timeout:  cfg.Timeout,
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}
	raw := buildMessage(s.from, formatAddress(msg.ToName, msg.ToAddr), msg.Subject, msg.Body)

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(s.addr, auth, envelopeAddress(s.from), []string{msg.ToAddr}, []byte(raw))
	}()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("smtp send: %w", ctx.Err())
	}
}

func formatAddress(name, addr string) string {
	if name == "" {
		return addr
	}
	return fmt.Sprintf("%s <%s>", name, addr)
}

// envelopeAddress strips a display name, keeping the bare address for MAIL FROM.
func envelopeAddress(from string) string {
	if i := strings.LastIndex(from, "<"); i >= 0 {
		if j := strings.LastIndex(from, ">"); j > i {
			return from[i+1 : j]
		}
	}
	return from
}

func buildMessage(from, to, subject, body string) string {
	// Minimal RFC 5322 message; enough for Mailpit and most SMTP relays.
	return fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		from,
		to,
		subject,
		body,
	)
}

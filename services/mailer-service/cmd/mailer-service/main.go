package main

import (
	"context"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/gobarber/libs/config"
	"github.com/md-rashed-zaman/gobarber/libs/db"
	"github.com/md-rashed-zaman/gobarber/libs/httpx"
	"github.com/md-rashed-zaman/gobarber/libs/kafkax"
	"github.com/md-rashed-zaman/gobarber/libs/metrics"
	otelx "github.com/md-rashed-zaman/gobarber/libs/otel"
	"github.com/md-rashed-zaman/gobarber/libs/runtime"
	"github.com/md-rashed-zaman/gobarber/services/mailer-service/internal/consumer"
	"github.com/md-rashed-zaman/gobarber/services/mailer-service/internal/email"
	"github.com/md-rashed-zaman/gobarber/services/mailer-service/internal/inbox"
	"github.com/md-rashed-zaman/gobarber/services/mailer-service/internal/mail"
	"github.com/md-rashed-zaman/gobarber/services/mailer-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "mailer-service")
	port, err := config.Port("PORT", "8085")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	maxTries, err := config.Int("MAIL_MAX_TRIES", 5)
	if err != nil {
		panic(err)
	}
	retryInitial, err := config.Duration("MAIL_RETRY_INITIAL", 500*time.Millisecond)
	if err != nil {
		panic(err)
	}
	smtpTimeout, err := config.Duration("SMTP_TIMEOUT", 10*time.Second)
	if err != nil {
		panic(err)
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: 4})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if config.Bool("DB_AUTO_MIGRATE", false) {
		if err := storage.Migrate(ctx, pool); err != nil {
			logger.Error("schema migration failed", "err", err)
			panic(err)
		}
	}

	collector := metrics.NewCollector(service, prometheus.NewRegistry())

	renderer, err := mail.NewRenderer(config.String("MAIL_LOCALE", "pt_BR"), nil)
	if err != nil {
		panic(err)
	}
	sender := email.NewSMTPSender(email.SMTPConfig{
		Host:     config.String("SMTP_HOST", "mailpit"),
		Port:     config.String("SMTP_PORT", "1025"),
		From:     config.String("SMTP_FROM", "Equipe GoBarber <noreply@gobarber.local>"),
		Username: config.String("SMTP_USERNAME", ""),
		Password: config.String("SMTP_PASSWORD", ""),
		Timeout:  smtpTimeout,
	})
	worker := mail.NewWorker(sender, renderer, storage.NewRepository(pool), logger, collector)

	brokers := config.String("KAFKA_BROKERS", "")
	eventConsumer := consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "mailer-service"),
		Topic:   config.String("KAFKA_CONSUME_TOPIC", "booking.appointment.cancelled.v1"),
		Retry: consumer.RetryConfig{
			InitialInterval: retryInitial,
			MaxTries:        uint(maxTries),
		},
	}, worker.Handle)
	go eventConsumer.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.Handle("GET /metrics", collector.Handler())
	handler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "mailer")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

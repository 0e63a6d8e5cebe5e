package main

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/gobarber/libs/auth"
	"github.com/md-rashed-zaman/gobarber/libs/config"
	"github.com/md-rashed-zaman/gobarber/libs/db"
	"github.com/md-rashed-zaman/gobarber/libs/grpcx"
	"github.com/md-rashed-zaman/gobarber/libs/httpx"
	"github.com/md-rashed-zaman/gobarber/libs/kafkax"
	"github.com/md-rashed-zaman/gobarber/libs/metrics"
	otelx "github.com/md-rashed-zaman/gobarber/libs/otel"
	"github.com/md-rashed-zaman/gobarber/libs/runtime"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/directory"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/scheduling"
	"github.com/md-rashed-zaman/gobarber/services/booking-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	cancelLead, err := config.Duration("CANCEL_LEAD_TIME", 2*time.Hour)
	if err != nil {
		panic(err)
	}
	pageSize, err := config.Int("APPOINTMENTS_PAGE_SIZE", 20)
	if err != nil {
		panic(err)
	}
	workdayStart, err := config.Int("WORKDAY_START_HOUR", 8)
	if err != nil {
		panic(err)
	}
	workdayEnd, err := config.Int("WORKDAY_END_HOUR", 19)
	if err != nil {
		panic(err)
	}
	rateLimit, err := config.Int("RATE_LIMIT_PER_MINUTE", 120)
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
	pool, err := db.Open(ctx, dbURL, db.Options{})
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

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(service, reg)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}

	brokers := config.String("KAFKA_BROKERS", "")
	if strings.TrimSpace(brokers) != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	var users directory.Lookup = directory.NewPostgres(pool)
	var limiter httpx.Middleware
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr, Password: config.String("REDIS_PASSWORD", "")})
		defer rdb.Close()
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})

		userTTL, err := config.Duration("USER_CACHE_TTL", 5*time.Minute)
		if err != nil {
			panic(err)
		}
		users = directory.NewCached(users, rdb, userTTL, logger)
		limiter = httpx.NewRedisRateLimiter(rdb, rateLimit, time.Minute, "gobarber:rl", httpx.ClientIP).
			Middleware(logger, true)
	} else {
		limiter = httpx.NewRateLimiter(rateLimit, time.Minute, httpx.ClientIP).Middleware()
	}

	clk := clock.System{}
	renderer, err := notify.NewRenderer(config.String("NOTIFICATION_LOCALE", "pt_BR"), nil)
	if err != nil {
		panic(err)
	}
	notifications := notify.NewPostgresStore(pool)
	outboxRepo := outbox.NewRepository()

	engine := scheduling.NewEngine(scheduling.Dependencies{
		Ledger:    storage.NewLedger(pool, config.String("AVATAR_BASE_URL", "")),
		Directory: users,
		Clock:     clk,
		Notifier:  notify.NewDispatcher(notifications, renderer, clk),
		Jobs:      outbox.NewQueue(pool, outboxRepo),
		Logger:    logger,
		Metrics:   collector,
	}, scheduling.Config{
		CancelLeadTime:   cancelLead,
		PageSize:         pageSize,
		WorkdayStartHour: workdayStart,
		WorkdayEndHour:   workdayEnd,
	})

	publisher := outbox.NewPublisher(pool, outboxRepo, logger, collector, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go publisher.Run(ctx)

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("GET /metrics", collector.Handler())
	handlers.Register(mux,
		handlers.NewAppointmentHandler(engine, logger),
		handlers.NewNotificationHandler(notifications, logger),
		auth.RequireUser(config.String("JWT_SECRET", ""), nil),
	)

	httpHandler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		collector.Middleware,
		limiter,
		httpx.WithBodyLimit(64<<10),
		httpx.WithTimeout(10*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpcx.NewServer()
	health := grpcx.RegisterHealth(grpcServer, service)
	go grpcx.WatchReadiness(ctx, logger, health, service, 10*time.Second, readyChecks...)
	go func() {
		lis, err := net.Listen("tcp", ":"+grpcPort)
		if err != nil {
			logger.Error("grpc listen failed", "err", err)
			return
		}
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

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
	grpcServer.GracefulStop()
	logger.Info("servers stopped")
}

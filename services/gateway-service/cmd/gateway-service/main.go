package main

import (
	"context"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/md-rashed-zaman/gobarber/libs/auth"
	"github.com/md-rashed-zaman/gobarber/libs/config"
	"github.com/md-rashed-zaman/gobarber/libs/grpcx"
	"github.com/md-rashed-zaman/gobarber/libs/httpx"
	"github.com/md-rashed-zaman/gobarber/libs/metrics"
	otelx "github.com/md-rashed-zaman/gobarber/libs/otel"
	"github.com/md-rashed-zaman/gobarber/libs/runtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "gateway-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		logger.Error("config error", "err", err)
		return
	}
	bookingURL, err := url.Parse(config.String("BOOKING_URL", "http://booking-service:8083"))
	if err != nil {
		logger.Error("invalid BOOKING_URL", "err", err)
		return
	}
	bodyLimit, err := config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20)
	if err != nil || bodyLimit <= 0 {
		bodyLimit = 1 << 20
	}
	requestTimeout, err := config.Duration("REQUEST_TIMEOUT", 10*time.Second)
	if err != nil || requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}
	limitPerMinute, err := config.Int("RATE_LIMIT_PER_MINUTE", 60)
	if err != nil || limitPerMinute <= 0 {
		limitPerMinute = 60
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

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(service, reg)

	var readyChecks []runtime.ReadyCheck
	if addr := config.String("BOOKING_GRPC_ADDR", "booking-service:9083"); addr != "" {
		conn, err := grpcx.NewClient(addr, grpcx.ClientOptions{})
		if err != nil {
			logger.Error("booking grpc client failed", "err", err, "addr", addr)
			return
		}
		defer func() { _ = conn.Close() }()
		readyChecks = append(readyChecks, grpcx.HealthCheck("booking", conn, config.String("BOOKING_GRPC_SERVICE", "booking-service")))
	}
	var rateLimitMW httpx.Middleware
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
		})
		defer func() { _ = rdb.Close() }()
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})

		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "gobarber:gw"), httpx.ClientIP)
		rateLimitMW = rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		logger.Info("rate limiting enabled (redis)", "per_minute", limitPerMinute, "redis_addr", addr)
	} else {
		rateLimitMW = httpx.NewRateLimiter(limitPerMinute, time.Minute, httpx.ClientIP).Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", limitPerMinute)
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("GET /metrics", collector.Handler())
	registerRoutes(mux, bookingURL, jwtSecret, time.Now)

	handler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		collector.Middleware,
		httpx.WithBodyLimit(int64(bodyLimit)),
		httpx.WithTimeout(requestTimeout),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, "gateway")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr, "booking_url", bookingURL.String())
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

// registerRoutes mounts every booking-service route behind token verification.
func registerRoutes(mux *http.ServeMux, bookingURL *url.URL, jwtSecret string, now func() time.Time) {
	bookingProxy := httputil.NewSingleHostReverseProxy(bookingURL)
	bookingProxy.Transport = otelhttp.NewTransport(http.DefaultTransport)

	protected := requireAuth(bookingProxy, jwtSecret, now)
	for _, prefix := range []string{"/api/v1/appointments", "/api/v1/providers", "/api/v1/notifications"} {
		registerProxy(mux, prefix, protected)
	}
}

func registerProxy(mux *http.ServeMux, prefix string, handler http.Handler) {
	mux.Handle(prefix, handler)
	mux.Handle(prefix+"/", handler)
}

// requireAuth verifies the bearer token and forwards the caller id as X-User-Id.
// Any client-supplied X-User-Id is discarded.
func requireAuth(next http.Handler, jwtSecret string, now func() time.Time) http.Handler {
	verify := auth.RequireUser(jwtSecret, now)
	return verify(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Del(auth.UserIDHeader)
		r.Header.Set(auth.UserIDHeader, auth.UserIDFromContext(r.Context()))
		next.ServeHTTP(w, r)
	}))
}

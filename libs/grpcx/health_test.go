package grpcx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/md-rashed-zaman/gobarber/libs/runtime"
)

func TestHealthFollowsReadiness(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer lis.Close()

	srv := NewServer()
	hs := RegisterHealth(srv, "booking")
	go func() {
		_ = srv.Serve(lis)
	}()
	defer srv.Stop()

	var healthy atomic.Bool
	healthy.Store(true)
	check := runtime.ReadyCheck{Name: "db", Check: func(context.Context) error {
		if healthy.Load() {
			return nil
		}
		return errors.New("db down")
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	go WatchReadiness(ctx, logger, hs, "booking", 10*time.Millisecond, check)

	conn, err := NewClient(lis.Addr().String(), ClientOptions{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer conn.Close()
	ready := HealthCheck("booking", conn, "booking")

	waitFor := func(wantReady bool) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			err := ready.Check(ctx)
			cancel()
			if (err == nil) == wantReady {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		t.Fatalf("health check never reported ready=%v", wantReady)
	}

	waitFor(true)
	healthy.Store(false)
	waitFor(false)
}

func TestHealthCheckUnknownService(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer lis.Close()

	srv := NewServer()
	RegisterHealth(srv, "booking")
	go func() {
		_ = srv.Serve(lis)
	}()
	defer srv.Stop()

	conn, err := NewClient(lis.Addr().String(), ClientOptions{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := HealthCheck("mailer", conn, "mailer").Check(ctx); err == nil {
		t.Fatal("expected an error for a service the server does not know")
	}
	if err := HealthCheck("booking", conn, "booking").Check(ctx); err == nil {
		t.Fatal("expected NOT_SERVING before the first readiness pass")
	}
}

package handler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type stubPinger struct {
	down atomic.Bool
}

func (p *stubPinger) Ping(ctx context.Context) error {
	if p.down.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func status(t *testing.T, h *HealthReporter, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := h.server.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("health check %q: %v", service, err)
	}
	return resp.GetStatus()
}

func TestHealthReporter_Check(t *testing.T) {
	store := &stubPinger{}
	h := NewHealthReporter(store, zaptest.NewLogger(t))
	if got := status(t, h, LedgerService); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected NOT_SERVING before the first check, got %v", got)
	}

	if got := h.Check(context.Background()); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %v", got)
	}
	if got := status(t, h, LedgerService); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("expected ledger SERVING, got %v", got)
	}

	store.down.Store(true)
	h.Check(context.Background())
	if got := status(t, h, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected NOT_SERVING, got %v", got)
	}
	if got := status(t, h, LedgerService); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected ledger NOT_SERVING, got %v", got)
	}
}

func TestHealthReporter_Run(t *testing.T) {
	store := &stubPinger{}
	h := NewHealthReporter(store, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	waitFor(t, h, healthpb.HealthCheckResponse_SERVING)
	store.down.Store(true)
	waitFor(t, h, healthpb.HealthCheckResponse_NOT_SERVING)

	cancel()
	<-done
}

func waitFor(t *testing.T, h *HealthReporter, want healthpb.HealthCheckResponse_ServingStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for status(t, h, LedgerService) != want {
		if time.Now().After(deadline) {
			t.Fatalf("status never switched to %v", want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

package handler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// LedgerService is the name reported by the gRPC health service for the ledger.
const LedgerService = "stockledger.Ledger"

// HealthReporter publishes the store's reachability through grpc.health.v1.
type HealthReporter struct {
	server *health.Server
	store  Pinger
	log    *zap.Logger
}

// NewHealthReporter starts with the ledger NOT_SERVING until the first check.
func NewHealthReporter(store Pinger, log *zap.Logger) *HealthReporter {
	server := health.NewServer()
	server.SetServingStatus(LedgerService, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthReporter{server: server, store: store, log: log}
}

func (h *HealthReporter) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Check pings the store once and updates both the overall and ledger status.
func (h *HealthReporter) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if err := h.store.Ping(ctx); err != nil {
		h.log.Warn("store ping failed", zap.Error(err))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(LedgerService, status)
	return status
}

// Run checks the store every interval until ctx is done, then marks the
// server as shutting down.
func (h *HealthReporter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.check(ctx, interval)
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-ticker.C:
			h.check(ctx, interval)
		}
	}
}

func (h *HealthReporter) check(ctx context.Context, timeout time.Duration) {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	h.Check(pingCtx)
}

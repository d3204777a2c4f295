package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/rl1809/stock-ledger/internal/adapter/handler"
	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/config"
	"github.com/rl1809/stock-ledger/internal/core/service"
	"github.com/rl1809/stock-ledger/internal/logger"
	"github.com/rl1809/stock-ledger/internal/metrics"
	"github.com/rl1809/stock-ledger/internal/port"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logCfg := cfg.Logger
	if cfg.Development() {
		logCfg.Development = true
	}
	appLogger, err := logger.New(logCfg)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer appLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store
	store, err := openStore(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("failed to open store", zap.Error(err))
	}
	defer store.Close()

	// Service options
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	opts := []service.Option{
		service.WithLogger(appLogger),
		service.WithMetrics(metrics.NewRecorder(reg)),
	}

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			appLogger.Fatal("failed to connect redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		defer rdb.Close()
		appLogger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))

		cache := storage.NewRedisAdapter(rdb, cfg.Cache.IdempotencyTTL, cfg.Cache.RecipeCostTTL)
		opts = append(opts, service.WithIdempotency(cache), service.WithCostCache(cache))
	}

	ledger := service.NewLedger(store, opts...)
	services := handler.Services{
		Ledger:          ledger,
		Purchases:       service.NewPurchaseService(store, ledger, opts...),
		Production:      service.NewProductionService(store, ledger, opts...),
		Sales:           service.NewSalesService(store, ledger, opts...),
		Autoconsumption: service.NewAutoconsumptionService(store, ledger, opts...),
		Catalog:         service.NewRecipeCatalog(store, opts...),
		Costs:           service.NewRecipeCostCalculator(store, opts...),
		Reports:         service.NewReports(store, opts...),
	}

	// gRPC health
	grpcServer := grpc.NewServer()
	healthReporter := handler.NewHealthReporter(store, appLogger)
	healthReporter.Register(grpcServer)
	reflection.Register(grpcServer)
	go healthReporter.Run(ctx, cfg.GRPC.HealthInterval)

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		appLogger.Fatal("failed to listen", zap.String("addr", cfg.GRPC.Addr), zap.Error(err))
	}
	go func() {
		appLogger.Info("gRPC server listening", zap.String("addr", cfg.GRPC.Addr))
		if err := grpcServer.Serve(lis); err != nil {
			appLogger.Error("gRPC server error", zap.Error(err))
		}
	}()

	// HTTP
	mux := http.NewServeMux()
	handler.NewHTTPHandler(services, store, appLogger).Register(mux)
	if cfg.Metrics.Enabled {
		mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}
	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: mux,
	}
	go func() {
		appLogger.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("HTTP server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	appLogger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("HTTP shutdown", zap.Error(err))
	}
	appLogger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	appLogger.Info("gRPC server stopped")
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (port.Store, error) {
	if cfg.Database.Driver == "memory" {
		log.Warn("using in-memory store, data is lost on exit")
		return storage.NewMemoryStore(cfg.Database.LockTimeout), nil
	}

	db, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	log.Info("connected to database", zap.String("driver", cfg.Database.Driver))

	if cfg.Database.Migrate {
		if err := storage.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}
	store, err := storage.NewSQLStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

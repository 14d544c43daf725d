// Command predictor serves TDS₀ predictions from a calibration dataset.
//
// At start-up it loads the calibration source once, triangulates it,
// generates the configured lookup table and stores it. It then serves:
//
//   - HTTP on -listen: /predict, /plan, /table/current, /healthz, /metrics
//   - gRPC on -grpc-listen: dosimap.v1.Predictor and grpc.health.v1.Health
//
// Usage:
//
//	predictor -source=json -source-path=samples.json -profile=default.ini
//
// Environment variables:
//
//	LISTEN         - HTTP listen address (default: :8081)
//	GRPC_LISTEN    - gRPC listen address (default: :50051)
//	SOURCE         - Calibration source kind (default: builtin)
//	SOURCE_PATH    - Calibration file or database path
//	SOURCE_*       - Source settings, e.g. SOURCE_URL, SOURCE_VALUE_PATH
//	PROFILE        - Dosing profile INI file
//	STORAGE        - Table storage: memory or redis (default: memory)
//	REDIS_ADDR     - Redis address (default: localhost:6379)
//	REDIS_TTL      - Redis table TTL, refreshed while running (default: 0, no expiry)
//	LOG_LEVEL      - Logging level: debug, info, warn, error (default: info)
//	LOG_FORMAT     - Logging format: text, json (default: text)
//	TLS_CERT_FILE  - gRPC server certificate; with TLS_KEY_FILE and
//	                 TLS_CA_FILE enables mutual TLS
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/HatiCode/dosimap/cmd/predictor/config"
	"github.com/HatiCode/dosimap/cmd/predictor/metrics"
	"github.com/HatiCode/dosimap/cmd/predictor/router"
	"github.com/HatiCode/dosimap/pkg/httpx"
	"github.com/HatiCode/dosimap/pkg/logger"
	"github.com/HatiCode/dosimap/pkg/profile"
	"github.com/HatiCode/dosimap/pkg/rpc"
	"github.com/HatiCode/dosimap/pkg/sources"
	"github.com/HatiCode/dosimap/pkg/storage"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg := config.ParseFlags()

	log, err := logger.New(os.Stderr, cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("predictor failed", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func run(cfg *config.Config, log *slog.Logger) error {
	log.Info("starting dosimap predictor",
		"version", version,
		"source", cfg.Source,
		"storage", cfg.Storage,
		"listen", cfg.Listen,
		"grpc_listen", cfg.GRPCListen,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prof, err := loadProfile(cfg)
	if err != nil {
		return err
	}

	src, err := sources.New(cfg.Source, cfg.SourceConfig)
	if err != nil {
		return fmt.Errorf("create source: %w", err)
	}

	store, closeStore, err := newStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	m := metrics.New(prometheus.DefaultRegisterer)
	pred := New(src, store, prof, log, m)

	var opts []grpc.ServerOption
	if cfg.TLS.Enabled() {
		tlsConfig, err := cfg.TLS.Server()
		if err != nil {
			return fmt.Errorf("grpc tls: %w", err)
		}
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsConfig)))
		log.Info("grpc mutual TLS enabled", "cert", cfg.TLS.CertFile, "ca", cfg.TLS.CAFile)
	}

	grpcServer := grpc.NewServer(opts...)
	rpc.Register(grpcServer, rpc.NewServer(pred, log, m))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(rpc.ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.GRPCListen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCListen, err)
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("grpc server listening", "address", cfg.GRPCListen)
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	mux := router.SetupRoutes(pred, store, prometheus.DefaultGatherer, log)
	handler := httpx.Chain(mux, httpx.RecoveryMiddleware(log), httpx.LoggingMiddleware(log))
	httpServer := httpx.NewServer(cfg.Listen, handler, log)
	go func() {
		if err := httpServer.Run(ctx); err != nil {
			errCh <- err
		}
	}()

	if err := pred.Build(ctx); err != nil {
		grpcServer.Stop()
		return err
	}
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(rpc.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	if ttl := cfg.StoreTTL(); ttl > 0 {
		go pred.KeepStored(ctx, ttl/2)
	}

	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-errCh:
		stop()
		grpcServer.Stop()
		return err
	}

	healthServer.Shutdown()
	log.Info("shutting down grpc server")
	grpcServer.GracefulStop()
	return nil
}

func loadProfile(cfg *config.Config) (*profile.Profile, error) {
	prof := profile.Default()
	if cfg.Profile != "" {
		var err error
		if prof, err = profile.Load(cfg.Profile); err != nil {
			return nil, err
		}
	}
	if cfg.TableName != "" {
		prof.Table.Name = cfg.TableName
	}
	if cfg.Workers > 0 {
		prof.Table.Workers = cfg.Workers
	}
	if err := prof.CheckInit(); err != nil {
		return nil, fmt.Errorf("profile: %w", err)
	}
	return prof, nil
}

// newStore returns the configured store and a function releasing it.
func newStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.Store, func(), error) {
	switch cfg.Storage {
	case "redis":
		rs, err := storage.NewRedisStore(ctx, storage.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.RedisTTL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		log.Info("using redis storage", "addr", cfg.RedisAddr, "db", cfg.RedisDB, "ttl", cfg.RedisTTL)
		return rs, func() {
			if err := rs.Close(); err != nil {
				log.Error("failed to close store", "error", err)
			}
		}, nil
	default:
		ms := storage.NewMemoryStore(cfg.MemoryTTL)
		if cfg.MemoryTTL > 0 {
			go ms.Janitor(ctx, cfg.MemoryTTL/2)
		}
		log.Info("using in-memory storage", "ttl", cfg.MemoryTTL)
		return ms, func() {}, nil
	}
}

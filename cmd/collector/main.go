// Command collector serves the tracking ingestion API along with the
// notification, points and dwell-statistics endpoints.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RoofStorm/tiger-engagement/internal/analytics"
	"github.com/RoofStorm/tiger-engagement/internal/api"
	"github.com/RoofStorm/tiger-engagement/internal/auth"
	"github.com/RoofStorm/tiger-engagement/internal/config"
	"github.com/RoofStorm/tiger-engagement/internal/ingest"
	"github.com/RoofStorm/tiger-engagement/internal/notification"
	"github.com/RoofStorm/tiger-engagement/internal/points"
	"github.com/RoofStorm/tiger-engagement/internal/query"
	"github.com/RoofStorm/tiger-engagement/migrations"
	"github.com/RoofStorm/tiger-engagement/pkg/kafka"
	"github.com/RoofStorm/tiger-engagement/pkg/logger"
	"github.com/RoofStorm/tiger-engagement/pkg/postgres"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

const (
	serviceName     = "collector"
	shutdownTimeout = 10 * time.Second
	tokenIssuer     = "tiger-nhip-song"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	log = logger.WithService(log, serviceName)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, log)
	stop()

	if err != nil {
		log.Error("collector exited", zap.Error(err))
		logger.Sync(log)
		os.Exit(1)
	}
	log.Info("collector stopped")
	logger.Sync(log)
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	db, err := postgres.New(postgres.Config{
		DSN:             cfg.Postgres.PostgresDSN(),
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
	}, log)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Postgres.AutoMigrate {
		if err := postgres.Migrate(cfg.Postgres.PostgresDSN(), migrations.FS, log); err != nil {
			return err
		}
	}

	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:          cfg.Kafka.Brokers,
		Topic:            cfg.Kafka.Topic,
		Retries:          cfg.Kafka.ProducerRetries,
		Timeout:          cfg.Kafka.ProducerTimeout,
		RequiredAcks:     cfg.Kafka.RequiredAcks,
		Compression:      cfg.Kafka.CompressionType,
		IdempotentWrites: cfg.Kafka.IdempotentWrites,
		MaxMessageBytes:  cfg.Kafka.MaxMessageBytes,
	}, log)
	if err != nil {
		return err
	}
	defer producer.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db.DB.DB, "postgres"),
	)

	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           buildRouter(cfg, db, producer, registry, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc on %s: %w", cfg.GRPCPort, err)
	}
	grpcServer, healthServer := newGRPCServer(log)

	errs := make(chan error, 2)
	go func() {
		log.Info("grpc listening", zap.String("port", cfg.GRPCPort))
		if err := grpcServer.Serve(listener); err != nil {
			errs <- fmt.Errorf("serve grpc: %w", err)
		}
	}()
	go func() {
		log.Info("http listening", zap.String("port", cfg.HTTPPort), zap.String("environment", cfg.Environment))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("serve http: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case serveErr = <-errs:
	}

	markNotServing(healthServer)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	stopGRPC(shutdownCtx, grpcServer, log)

	return serveErr
}

func buildRouter(cfg *config.Config, db *postgres.DB, producer *kafka.Producer, registry *prometheus.Registry, log *zap.Logger) http.Handler {
	metrics := api.NewMetrics(registry)
	clock := clockwork.NewRealClock()

	ingestService := ingest.NewService(ingest.NewRepository(db, log), producer, metrics, clock, log)
	notificationService := notification.NewService(notification.NewRepository(db.DB, log), log)
	pointsService := points.NewService(points.NewRepository(db, log), clock, log)
	queryService := query.NewService(analytics.NewRepository(db.DB, log), log)

	var limiter *api.IPRateLimiter
	if cfg.RateLimit.RPS > 0 {
		limiter = api.NewIPRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}

	return api.NewRouter(api.Deps{
		Public: []api.Registrar{
			ingest.NewHandler(ingestService, log),
			query.NewHandler(queryService, log),
		},
		Authenticated: []api.Registrar{
			notification.NewHandler(notificationService, log),
			points.NewHandler(pointsService, log),
		},
		Auth:       auth.NewAuthenticator(cfg.JWTSecret, tokenIssuer, log),
		RateLimit:  limiter,
		Metrics:    metrics,
		Gatherer:   registry,
		Health:     db,
		CORSOrigin: cfg.CORSOrigin,
		Logger:     log,
	})
}

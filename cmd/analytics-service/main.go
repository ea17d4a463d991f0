// Command analytics-service consumes tracked events from Kafka and folds
// them into hourly dwell summaries.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RoofStorm/tiger-engagement/internal/analytics"
	"github.com/RoofStorm/tiger-engagement/internal/config"
	"github.com/RoofStorm/tiger-engagement/pkg/kafka"
	"github.com/RoofStorm/tiger-engagement/pkg/logger"
	"github.com/RoofStorm/tiger-engagement/pkg/postgres"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	cacheCleanupInterval = time.Hour
	drainTimeout         = 30 * time.Second
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
	log = logger.WithService(log, "analytics-service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, log)
	stop()

	if err != nil {
		log.Error("analytics service exited", zap.Error(err))
		logger.Sync(log)
		os.Exit(1)
	}
	log.Info("analytics service stopped")
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

	summaries := analytics.NewService(analytics.NewRepository(db.DB, log), clockwork.NewRealClock(), log)

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:           cfg.Kafka.Brokers,
		Topics:            []string{cfg.Kafka.Topic},
		GroupID:           cfg.Kafka.ConsumerGroup,
		AutoCommit:        true,
		CommitInterval:    time.Second,
		SessionTimeout:    10 * time.Second,
		RebalanceStrategy: "sticky",
	}, summaries.CreateMessageHandler(), log)
	if err != nil {
		return err
	}
	defer consumer.Close()

	log.Info("consuming tracked events",
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("group", cfg.Kafka.ConsumerGroup),
	)

	done := make(chan error, 1)
	go func() { done <- consumer.Start(ctx) }()
	go summaries.RunCleanup(ctx, cacheCleanupInterval)

	select {
	case <-consumer.WaitReady():
		log.Info("first partition assignment received")
	case <-ctx.Done():
	}

	<-ctx.Done()
	log.Info("shutdown requested, draining consumer")

	select {
	case err := <-done:
		return err
	case <-time.After(drainTimeout):
		return fmt.Errorf("consumer did not stop within %s", drainTimeout)
	}
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/erp-event-pipeline/internal/app"
	"github.com/example/erp-event-pipeline/internal/config"
	"github.com/example/erp-event-pipeline/internal/consumer"
	"github.com/example/erp-event-pipeline/internal/infrastructure/kafka"
	"github.com/example/erp-event-pipeline/internal/infrastructure/redis"
	"github.com/example/erp-event-pipeline/internal/infrastructure/store"
	"github.com/sirupsen/logrus"
)

const (
	reconcileInterval = time.Minute
	reconcileBatch    = 50
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Consumer] Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[Consumer] Invalid config: %v", err)
	}
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("[Consumer] Invalid log level: %v", err)
	}

	logger.WithFields(logrus.Fields{
		"kafka": cfg.Kafka.Brokers,
		"topic": cfg.Kafka.Topic,
		"group": cfg.Kafka.GroupID,
	}).Info("starting sale completion consumer")

	db, err := store.ConnectPostgres(cfg.Postgres.URL)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to PostgreSQL")
	}
	defer db.Close()
	if err := store.Migrate(ctx, db); err != nil {
		logger.WithError(err).Fatal("failed to migrate schema")
	}

	codec, err := app.NewCodec()
	if err != nil {
		logger.WithError(err).Fatal("failed to build codec")
	}

	var locker consumer.PostingLocker
	if cfg.Redis.Addr != "" {
		rdb, err := redis.Connect(ctx, cfg.Redis.Addr)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to Redis")
		}
		defer rdb.Close()
		locker = redis.NewPostingLocker(rdb, cfg.Posting.LockTTL, logger)
	}

	// The relay is not registered here: events read from Kafka are not
	// published again.
	a, err := app.New(store.NewPostgresTransactor(db), app.PostgresStores(db, codec), codec, logger, app.Options{
		Locker:          locker,
		EngineOptions:   cfg.EngineOptions(),
		ConsumerTimeout: cfg.Dispatch.ConsumerTimeout,
		MaxDepth:        cfg.Dispatch.MaxDepth,
		MaxAttempts:     cfg.Dispatch.MaxAttempts,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to wire pipeline")
	}

	reader := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, logger)
	defer reader.Close()

	go a.RunReconciler(ctx, reconcileInterval, reconcileBatch)

	go func() {
		logger.WithField("topic", cfg.Kafka.Topic).Info("listening for events")
		if err := reader.Consume(ctx, a.HandleMessage); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("consumer stopped")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancel()
}

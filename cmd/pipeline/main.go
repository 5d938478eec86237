// Command pipeline completes the sales listed in a JSON fixture through the
// in-process pipeline. Without DATABASE_URL it runs on in-memory stores.
//
//	pipeline fixture.json
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/example/erp-event-pipeline/internal/app"
	"github.com/example/erp-event-pipeline/internal/command"
	"github.com/example/erp-event-pipeline/internal/config"
	"github.com/example/erp-event-pipeline/internal/consumer"
	"github.com/example/erp-event-pipeline/internal/domain/inventory"
	"github.com/example/erp-event-pipeline/internal/domain/ledger"
	"github.com/example/erp-event-pipeline/internal/infrastructure/kafka"
	"github.com/example/erp-event-pipeline/internal/infrastructure/redis"
	"github.com/example/erp-event-pipeline/internal/infrastructure/store"
	"github.com/example/erp-event-pipeline/internal/uow"
	"github.com/sirupsen/logrus"
)

type customerRef struct {
	TenantID   string `json:"tenant_id"`
	CustomerID string `json:"customer_id"`
}

// fixture seeds reference data before the sales run.
type fixture struct {
	Accounts  []ledger.Account       `json:"accounts"`
	Levels    []inventory.Level      `json:"levels"`
	Customers []customerRef          `json:"customers"`
	Sales     []command.CompleteSale `json:"sales"`
}

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: %s fixture.json", os.Args[0])
	}
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Pipeline] Failed to load config: %v", err)
	}
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("[Pipeline] Invalid log level: %v", err)
	}

	fx, err := readFixture(os.Args[1])
	if err != nil {
		logger.WithError(err).Fatal("failed to read fixture")
	}

	codec, err := app.NewCodec()
	if err != nil {
		logger.WithError(err).Fatal("failed to build codec")
	}

	var (
		transactor uow.Transactor
		stores     app.Stores
	)
	if cfg.Postgres.URL != "" {
		db, err := store.ConnectPostgres(cfg.Postgres.URL)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to PostgreSQL")
		}
		defer db.Close()
		if err := store.Migrate(ctx, db); err != nil {
			logger.WithError(err).Fatal("failed to migrate schema")
		}
		transactor, stores = store.NewPostgresTransactor(db), app.PostgresStores(db, codec)
		logger.Info("using PostgreSQL stores")
	} else {
		transactor, stores = uow.NewMemoryTransactor(), app.MemoryStores()
		logger.Info("using in-memory stores")
	}

	opts := app.Options{
		EngineOptions:   cfg.EngineOptions(),
		ConsumerTimeout: cfg.Dispatch.ConsumerTimeout,
		MaxDepth:        cfg.Dispatch.MaxDepth,
		MaxAttempts:     cfg.Dispatch.MaxAttempts,
	}
	if cfg.Redis.Addr != "" {
		rdb, err := redis.Connect(ctx, cfg.Redis.Addr)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to Redis")
		}
		defer rdb.Close()
		opts.Locker = redis.NewPostingLocker(rdb, cfg.Posting.LockTTL, logger)
	} else {
		opts.Locker = consumer.NewLocalLocker()
	}
	if cfg.Kafka.Relay {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer producer.Close()
		opts.Publisher = producer
	}

	a, err := app.New(transactor, stores, codec, logger, opts)
	if err != nil {
		logger.WithError(err).Fatal("failed to wire pipeline")
	}

	if err := seed(ctx, stores, fx); err != nil {
		logger.WithError(err).Fatal("failed to seed fixture")
	}

	for i, cmd := range fx.Sales {
		s, err := a.Commands.CompleteSale(ctx, cmd)
		if err != nil {
			logger.WithField("sale", i).WithError(err).Error("sale rejected")
			continue
		}
		logger.WithFields(logrus.Fields{
			"sale_id":   s.ID,
			"tenant_id": s.TenantID,
			"total":     s.TotalAmount.String(),
		}).Info("sale completed")
	}

	failures, err := stores.Failures.ListFailures(ctx, 0)
	if err != nil {
		logger.WithError(err).Fatal("failed to list consumer failures")
	}
	for _, f := range failures {
		logger.WithFields(logrus.Fields{
			"consumer": f.Consumer,
			"policy":   f.Policy,
			"event_id": f.Event.ID,
		}).Warn(f.Error)
	}
}

func readFixture(path string) (*fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var fx fixture
	if err := json.Unmarshal(raw, &fx); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &fx, nil
}

func seed(ctx context.Context, stores app.Stores, fx *fixture) error {
	for _, acc := range fx.Accounts {
		if err := stores.Accounts.SaveAccount(ctx, acc); err != nil {
			return fmt.Errorf("account %s: %w", acc.Code, err)
		}
	}
	for i := range fx.Levels {
		if err := stores.Stock.SaveLevel(ctx, &fx.Levels[i]); err != nil {
			return fmt.Errorf("level %s/%s: %w", fx.Levels[i].ItemID, fx.Levels[i].ShopID, err)
		}
	}
	for _, c := range fx.Customers {
		if err := stores.Customers.CreateCustomer(ctx, c.TenantID, c.CustomerID); err != nil {
			return fmt.Errorf("customer %s: %w", c.CustomerID, err)
		}
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/example/erp-event-pipeline/internal/posting"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Env      string   `yaml:"env" env:"ENV" env-default:"local"`
	LogLevel string   `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Postgres PG       `yaml:"postgres"`
	Kafka    Kafka    `yaml:"kafka"`
	Redis    Redis    `yaml:"redis"`
	Dispatch Dispatch `yaml:"dispatch"`
	Posting  Posting  `yaml:"posting"`
}

type PG struct {
	URL string `yaml:"url" env:"DATABASE_URL"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:"," env-default:"localhost:9092"`
	Topic   string   `yaml:"topic" env:"KAFKA_TOPIC" env-default:"erp-events"`
	GroupID string   `yaml:"group_id" env:"KAFKA_CONSUMER_GROUP" env-default:"erp-consumers"`
	// Relay publishes committed events to Topic from the write side.
	Relay bool `yaml:"relay" env:"KAFKA_RELAY" env-default:"false"`
}

type Redis struct {
	Addr string `yaml:"addr" env:"REDIS_ADDR"`
}

type Dispatch struct {
	ConsumerTimeout time.Duration `yaml:"consumer_timeout" env:"CONSUMER_TIMEOUT" env-default:"10s"`
	MaxDepth        int           `yaml:"max_depth" env:"DISPATCH_MAX_DEPTH" env-default:"8"`

	// MaxAttempts is how many failed redeliveries dead-letter a failure.
	MaxAttempts int `yaml:"max_attempts" env:"RECONCILE_MAX_ATTEMPTS" env-default:"5"`
}

// Posting holds the chart-of-accounts codes. Tenants override single codes.
type Posting struct {
	LockTTL  time.Duration                   `yaml:"lock_ttl" env:"POSTING_LOCK_TTL" env-default:"30s"`
	Accounts posting.AccountCodes            `yaml:"accounts"`
	Tenants  map[string]posting.AccountCodes `yaml:"tenants"`
}

// Load reads the YAML file named by CONFIG_PATH when it is set, then the
// environment. Environment values win.
func Load() (*Config, error) {
	var cfg Config

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		return &cfg, nil
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	return &cfg, nil
}

var ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")

// Validate checks the settings a Postgres-backed run needs.
func (c *Config) Validate() error {
	if c.Postgres.URL == "" {
		return ErrMissingDatabaseURL
	}
	if c.Dispatch.MaxDepth <= 0 {
		return fmt.Errorf("dispatch max depth must be positive, got %d", c.Dispatch.MaxDepth)
	}
	return nil
}

// EngineOptions turns the account code settings into posting engine options.
func (c *Config) EngineOptions() []posting.Option {
	opts := []posting.Option{posting.WithCodes(c.Posting.Accounts)}
	for tenantID, codes := range c.Posting.Tenants {
		opts = append(opts, posting.WithTenantCodes(tenantID, codes))
	}
	return opts
}

// NewLogger returns a JSON logger writing to stdout at the given level.
func NewLogger(level string) (*logrus.Logger, error) {
	return newLogger(level, os.Stdout)
}

func newLogger(level string, out io.Writer) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(lvl)
	logger.SetOutput(out)
	return logger, nil
}

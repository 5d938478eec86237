package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type MessageHandler func(ctx context.Context, key, value []byte) error

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	minFetchBackoff = 200 * time.Millisecond
	maxFetchBackoff = 5 * time.Second
)

type Consumer struct {
	reader MessageReader
	logger *logrus.Logger
	wait   func(ctx context.Context, d time.Duration) error
}

func NewConsumer(brokers []string, topic, groupID string, logger *logrus.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return NewConsumerWithReader(reader, logger)
}

func NewConsumerWithReader(reader MessageReader, logger *logrus.Logger) *Consumer {
	return &Consumer{reader: reader, logger: logger, wait: sleep}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Consume feeds messages to handler until ctx is done. The offset is committed
// after the handler returns, whatever its result: handler failures are
// reconciled out of band, not by redelivering the whole partition. Fetch
// errors back off exponentially up to maxFetchBackoff.
func (c *Consumer) Consume(ctx context.Context, handler MessageHandler) error {
	backoff := minFetchBackoff
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.WithFields(logrus.Fields{
					"component": "kafka_consumer",
					"backoff":   backoff.String(),
				}).WithError(err).Error("error reading message")
				if err := c.wait(ctx, backoff); err != nil {
					return err
				}
				backoff = min(backoff*2, maxFetchBackoff)
				continue
			}
			backoff = minFetchBackoff

			log := c.logger.WithFields(logrus.Fields{
				"component": "kafka_consumer",
				"topic":     msg.Topic,
				"partition": msg.Partition,
				"offset":    msg.Offset,
			})
			if err := handler(ctx, msg.Key, msg.Value); err != nil {
				log.WithError(err).Error("error handling message")
			}
			if err := c.reader.CommitMessages(context.WithoutCancel(ctx), msg); err != nil {
				log.WithError(err).Error("error committing offset")
			}
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

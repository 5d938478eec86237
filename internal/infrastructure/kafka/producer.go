package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

var ErrBrokerUnavailable = errors.New("kafka publish circuit open")

// MessageWriter is the part of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer MessageWriter
	cb     *gobreaker.CircuitBreaker
	logger *logrus.Logger
}

func NewProducer(brokers []string, topic string, logger *logrus.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
	return NewProducerWithWriter(writer, logger)
}

// NewProducerWithWriter wraps an existing writer in the publish circuit breaker.
func NewProducerWithWriter(writer MessageWriter, logger *logrus.Logger) *Producer {
	settings := gobreaker.Settings{
		Name:        "KafkaPublish",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"component": "kafka_producer",
				"breaker":   name,
				"from":      from.String(),
				"to":        to.String(),
			}).Warn("circuit breaker state changed")
		},
	}
	return &Producer{
		writer: writer,
		cb:     gobreaker.NewCircuitBreaker(settings),
		logger: logger,
	}
}

// Publish writes one already encoded message. Messages with the same key land
// on the same partition.
func (p *Producer) Publish(ctx context.Context, key string, value []byte) error {
	_, err := p.cb.Execute(func() (interface{}, error) {
		return nil, p.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(key),
			Value: value,
			Time:  time.Now(),
		})
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	return err
}

// State reports the breaker state, for health output.
func (p *Producer) State() string {
	return p.cb.State().String()
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

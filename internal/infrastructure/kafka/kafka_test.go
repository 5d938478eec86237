package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	mu        sync.Mutex
	fetchErrs []error
	queue     []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		return kafka.Message{}, err
	}
	if len(r.queue) == 0 {
		r.cancel()
		return kafka.Message{}, context.Canceled
	}
	msg := r.queue[0]
	r.queue = r.queue[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

// ============================================
// Producer Tests
// ============================================

func TestProducer_Publish(t *testing.T) {
	logger, _ := test.NewNullLogger()
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, logger)

	err := p.Publish(context.Background(), "evt-1", []byte(`{"kind":"SaleCompleted"}`))

	require.NoError(t, err)
	require.Len(t, w.messages, 1)
	assert.Equal(t, "evt-1", string(w.messages[0].Key))
	assert.Equal(t, "closed", p.State())
}

func TestProducer_Publish_BreakerOpens(t *testing.T) {
	logger, hook := test.NewNullLogger()
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewProducerWithWriter(w, logger)

	for i := 0; i < 5; i++ {
		err := p.Publish(context.Background(), "k", []byte("v"))
		assert.NotErrorIs(t, err, ErrBrokerUnavailable)
	}

	err := p.Publish(context.Background(), "k", []byte("v"))

	assert.ErrorIs(t, err, ErrBrokerUnavailable)
	assert.Equal(t, "open", p.State())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "circuit breaker state changed", hook.LastEntry().Message)
}

// ============================================
// Consumer Tests
// ============================================

func TestConsumer_Consume_CommitsAfterHandler(t *testing.T) {
	logger, hook := test.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &fakeReader{
		queue: []kafka.Message{
			{Key: []byte("a"), Value: []byte("1"), Offset: 10},
			{Key: []byte("b"), Value: []byte("2"), Offset: 11},
		},
		cancel: cancel,
	}
	c := NewConsumerWithReader(r, logger)

	var seen []string
	err := c.Consume(ctx, func(ctx context.Context, key, value []byte) error {
		seen = append(seen, string(key))
		if string(key) == "b" {
			return errors.New("decode failed")
		}
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a", "b"}, seen)
	assert.Equal(t, []int64{10, 11}, r.committed)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "error handling message", hook.LastEntry().Message)
}

func TestConsumer_Consume_FetchErrorsBackOff(t *testing.T) {
	logger, _ := test.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	brokerDown := errors.New("broker down")
	r := &fakeReader{
		fetchErrs: []error{brokerDown, brokerDown, brokerDown, brokerDown, brokerDown, brokerDown},
		queue:     []kafka.Message{{Key: []byte("a"), Offset: 1}},
		cancel:    cancel,
	}
	c := NewConsumerWithReader(r, logger)
	var waits []time.Duration
	c.wait = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	var handled int
	err := c.Consume(ctx, func(ctx context.Context, key, value []byte) error {
		handled++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, handled)
	assert.Equal(t, []time.Duration{
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1600 * time.Millisecond,
		3200 * time.Millisecond,
		5 * time.Second,
	}, waits)
}

func TestConsumer_Consume_BackoffStopsOnCancel(t *testing.T) {
	logger, _ := test.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())
	r := &fakeReader{fetchErrs: []error{errors.New("broker down")}, cancel: cancel}
	c := NewConsumerWithReader(r, logger)
	c.wait = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	err := c.Consume(ctx, func(ctx context.Context, key, value []byte) error { return nil })

	assert.ErrorIs(t, err, context.Canceled)
}

package consumer

import (
	"context"
	"fmt"

	"github.com/example/erp-event-pipeline/internal/event"
	"github.com/sirupsen/logrus"
)

// Publisher sends an encoded envelope to another service.
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// EventRelay forwards committed events as versioned envelopes, keyed by
// event id, for consumers running in other processes.
type EventRelay struct {
	codec     *event.Codec
	publisher Publisher
	logger    *logrus.Logger
}

func NewEventRelay(codec *event.Codec, publisher Publisher, logger *logrus.Logger) *EventRelay {
	return &EventRelay{codec: codec, publisher: publisher, logger: logger}
}

func (c *EventRelay) Handle(ctx context.Context, e event.Event) error {
	raw, err := c.codec.Encode(e)
	if err != nil {
		return err
	}
	if err := c.publisher.Publish(ctx, e.ID, raw); err != nil {
		return fmt.Errorf("relay %s %s: %w", e.Kind, e.ID, err)
	}
	c.logger.WithFields(logrus.Fields{
		"component": NameEventRelay,
		"kind":      e.Kind,
		"event_id":  e.ID,
	}).Debug("event relayed")
	return nil
}

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/erp-event-pipeline/internal/event"
)

var (
	ErrConsumerPanic      = errors.New("consumer panicked")
	ErrConsumerTimeout    = errors.New("consumer timed out")
	ErrDispatchCancelled  = errors.New("dispatch cancelled")
	ErrSubscriptionAbsent = errors.New("subscription not registered")
)

// ConsumerError is one failed consumer invocation.
type ConsumerError struct {
	Consumer string
	Kind     string
	EventID  string
	Policy   Policy
	Err      error
}

func (e *ConsumerError) Error() string {
	return fmt.Sprintf("consumer %s (%s) failed on %s %s: %v", e.Consumer, e.Policy, e.Kind, e.EventID, e.Err)
}

func (e *ConsumerError) Unwrap() error {
	return e.Err
}

// Failure is what gets recorded for out-of-band reconciliation.
type Failure struct {
	ID         string      `json:"id"`
	Consumer   string      `json:"consumer"`
	Policy     string      `json:"policy"`
	Event      event.Event `json:"event"`
	Error      string      `json:"error"`
	OccurredAt time.Time   `json:"occurred_at"`

	// Attempts counts failed redeliveries. Dead failures are no longer retried.
	Attempts int  `json:"attempts"`
	Dead     bool `json:"dead"`
}

// FailureRecorder persists consumer failures so they can be retried later.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, f Failure) error
}

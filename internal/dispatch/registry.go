package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/example/erp-event-pipeline/internal/event"
)

// Policy decides what a consumer failure means for the dispatch call.
type Policy int

const (
	// Blocking failures are collected and reported once every consumer of the event ran.
	Blocking Policy = iota
	// BestEffort failures are logged and recorded, never reported.
	BestEffort
)

func (p Policy) String() string {
	switch p {
	case Blocking:
		return "blocking"
	case BestEffort:
		return "best_effort"
	}
	return "unknown"
}

var (
	ErrRegistryFrozen        = errors.New("subscription registry is frozen")
	ErrDuplicateSubscription = errors.New("subscription already registered")
	ErrInvalidSubscription   = errors.New("invalid subscription")
)

// Consumer handles one event.
type Consumer interface {
	Handle(ctx context.Context, e event.Event) error
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(ctx context.Context, e event.Event) error

func (f ConsumerFunc) Handle(ctx context.Context, e event.Event) error {
	return f(ctx, e)
}

// Subscription binds an event kind to a consumer.
type Subscription struct {
	Kind     string
	Name     string
	Consumer Consumer
	Policy   Policy
	Rank     int
	Timeout  time.Duration

	// FollowUps are re-run after a successful redelivery of this subscription.
	FollowUps []string
}

type SubscriptionOption func(*Subscription)

// WithFollowUps names subscriptions of the same kind whose outcome depends on
// this one. Redeliver runs them again once this subscription succeeds.
func WithFollowUps(names ...string) SubscriptionOption {
	return func(s *Subscription) {
		s.FollowUps = append(s.FollowUps, names...)
	}
}

// WithTimeout overrides the dispatcher default timeout for one consumer.
func WithTimeout(d time.Duration) SubscriptionOption {
	return func(s *Subscription) {
		s.Timeout = d
	}
}

// Registry is the static event kind -> ordered consumers table.
// It is filled at startup and read-only once frozen.
type Registry struct {
	mu     sync.RWMutex
	frozen bool
	subs   map[string][]Subscription
}

func NewRegistry() *Registry {
	return &Registry{subs: make(map[string][]Subscription)}
}

// Register appends a consumer for kind. Registration order is dispatch order.
func (r *Registry) Register(kind, name string, consumer Consumer, policy Policy, opts ...SubscriptionOption) error {
	if kind == "" || name == "" || consumer == nil {
		return fmt.Errorf("%w: kind=%q name=%q", ErrInvalidSubscription, kind, name)
	}
	if policy != Blocking && policy != BestEffort {
		return fmt.Errorf("%w: unknown policy %d", ErrInvalidSubscription, policy)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRegistryFrozen
	}
	for _, s := range r.subs[kind] {
		if s.Name == name {
			return fmt.Errorf("%w: %s/%s", ErrDuplicateSubscription, kind, name)
		}
	}

	sub := Subscription{
		Kind:     kind,
		Name:     name,
		Consumer: consumer,
		Policy:   policy,
		Rank:     len(r.subs[kind]),
	}
	for _, opt := range opts {
		opt(&sub)
	}
	r.subs[kind] = append(r.subs[kind], sub)
	return nil
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Subscriptions returns the consumers of kind in registration order.
func (r *Registry) Subscriptions(kind string) []Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Subscription(nil), r.subs[kind]...)
}

// Lookup finds one subscription by kind and name.
func (r *Registry) Lookup(kind, name string) (Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.subs[kind] {
		if s.Name == name {
			return s, true
		}
	}
	return Subscription{}, false
}

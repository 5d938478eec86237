package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/erp-event-pipeline/internal/event"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
)

const DefaultConsumerTimeout = 10 * time.Second

// Dispatcher delivers committed events to their registered consumers,
// synchronously and in registration order.
type Dispatcher struct {
	registry *Registry
	logger   *logrus.Logger
	recorder FailureRecorder
	timeout  time.Duration
	tracer   trace.Tracer
	now      func() time.Time
}

type Option func(*Dispatcher)

func WithFailureRecorder(r FailureRecorder) Option {
	return func(d *Dispatcher) {
		d.recorder = r
	}
}

// WithDefaultTimeout applies to subscriptions registered without their own.
// Zero disables the default.
func WithDefaultTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.timeout = timeout
	}
}

// NewDispatcher freezes the registry; no subscription can be added afterwards.
func NewDispatcher(registry *Registry, logger *logrus.Logger, opts ...Option) *Dispatcher {
	registry.Freeze()
	d := &Dispatcher{
		registry: registry,
		logger:   logger,
		timeout:  DefaultConsumerTimeout,
		tracer:   otel.Tracer("dispatch/dispatcher"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch delivers every event in order. For each event every consumer is
// attempted; Blocking failures are joined into the returned error while
// BestEffort failures are only logged and recorded. A cancelled ctx stops
// scheduling further consumers but never interrupts a running one.
func (d *Dispatcher) Dispatch(ctx context.Context, events []event.Event) error {
	var errs error
	for i, e := range events {
		if err := ctx.Err(); err != nil {
			d.logger.WithFields(logrus.Fields{
				"component": "dispatcher",
				"skipped":   len(events) - i,
			}).WithError(err).Warn("dispatch cancelled")
			return multierr.Append(errs, fmt.Errorf("%w: %w", ErrDispatchCancelled, err))
		}
		errs = multierr.Append(errs, d.dispatchEvent(ctx, e))
	}
	return errs
}

func (d *Dispatcher) dispatchEvent(ctx context.Context, e event.Event) error {
	subs := d.registry.Subscriptions(e.Kind)
	if len(subs) == 0 {
		d.logger.WithFields(logrus.Fields{
			"component": "dispatcher",
			"kind":      e.Kind,
			"event_id":  e.ID,
		}).Debug("no consumers registered")
		return nil
	}

	var errs error
	for i, sub := range subs {
		if err := ctx.Err(); err != nil {
			d.logger.WithFields(logrus.Fields{
				"component": "dispatcher",
				"kind":      e.Kind,
				"event_id":  e.ID,
				"skipped":   len(subs) - i,
			}).WithError(err).Warn("dispatch cancelled between consumers")
			return multierr.Append(errs, fmt.Errorf("%w: %w", ErrDispatchCancelled, err))
		}

		err := d.invoke(ctx, sub, e)
		if err == nil {
			continue
		}

		cerr := &ConsumerError{
			Consumer: sub.Name,
			Kind:     e.Kind,
			EventID:  e.ID,
			Policy:   sub.Policy,
			Err:      err,
		}
		log := d.logger.WithFields(logrus.Fields{
			"component": "dispatcher",
			"consumer":  sub.Name,
			"policy":    sub.Policy.String(),
			"kind":      e.Kind,
			"event_id":  e.ID,
			"tenant_id": e.TenantID,
		}).WithError(err)

		switch {
		case sub.Policy == Blocking:
			log.Error("consumer failed")
			errs = multierr.Append(errs, cerr)
		case errors.Is(err, ErrConsumerTimeout):
			log.Debug("best-effort consumer timed out")
		default:
			log.Warn("best-effort consumer failed")
		}
		d.record(ctx, sub, e, err)
	}
	return errs
}

// invoke runs one consumer in isolation: its own deadline, detached from the
// caller's cancellation, with panics turned into errors.
func (d *Dispatcher) invoke(ctx context.Context, sub Subscription, e event.Event) (err error) {
	cctx := context.WithoutCancel(ctx)
	timeout := sub.Timeout
	if timeout == 0 {
		timeout = d.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(cctx, timeout)
		defer cancel()
	}

	cctx, span := d.tracer.Start(cctx, "Dispatcher.invoke")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.kind", e.Kind),
		attribute.String("event.id", e.ID),
		attribute.String("consumer.name", sub.Name),
		attribute.String("consumer.policy", sub.Policy.String()),
	)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrConsumerPanic, r)
		}
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && cctx.Err() != nil {
				err = fmt.Errorf("%w after %s: %w", ErrConsumerTimeout, timeout, err)
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	return sub.Consumer.Handle(cctx, e)
}

func (d *Dispatcher) record(ctx context.Context, sub Subscription, e event.Event, cause error) {
	if d.recorder == nil {
		return
	}
	f := Failure{
		ID:         uuid.New().String(),
		Consumer:   sub.Name,
		Policy:     sub.Policy.String(),
		Event:      e,
		Error:      cause.Error(),
		OccurredAt: d.now(),
	}
	if err := d.recorder.RecordFailure(context.WithoutCancel(ctx), f); err != nil {
		d.logger.WithFields(logrus.Fields{
			"component": "dispatcher",
			"consumer":  sub.Name,
			"event_id":  e.ID,
		}).WithError(err).Error("failed to record consumer failure")
	}
}

// Redeliver retries a recorded failure against the same consumer. Consumers
// are idempotent, so redelivering an event that partially succeeded is safe.
// On success the subscription's follow-ups run again; their failures are
// recorded as new failures and do not fail the redelivery.
func (d *Dispatcher) Redeliver(ctx context.Context, f Failure) error {
	sub, ok := d.registry.Lookup(f.Event.Kind, f.Consumer)
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrSubscriptionAbsent, f.Event.Kind, f.Consumer)
	}
	if err := d.invoke(ctx, sub, f.Event); err != nil {
		return &ConsumerError{
			Consumer: sub.Name,
			Kind:     f.Event.Kind,
			EventID:  f.Event.ID,
			Policy:   sub.Policy,
			Err:      err,
		}
	}
	d.logger.WithFields(logrus.Fields{
		"component": "dispatcher",
		"consumer":  sub.Name,
		"event_id":  f.Event.ID,
		"failure":   f.ID,
	}).Info("redelivered event")

	d.followUp(ctx, sub, f.Event)
	return nil
}

func (d *Dispatcher) followUp(ctx context.Context, sub Subscription, e event.Event) {
	for _, name := range sub.FollowUps {
		next, ok := d.registry.Lookup(e.Kind, name)
		log := d.logger.WithFields(logrus.Fields{
			"component": "dispatcher",
			"consumer":  name,
			"after":     sub.Name,
			"event_id":  e.ID,
		})
		if !ok {
			log.Warn("follow-up subscription not registered")
			continue
		}
		if err := d.invoke(ctx, next, e); err != nil {
			log.WithError(err).Error("follow-up consumer failed")
			d.record(ctx, next, e, err)
		}
	}
}

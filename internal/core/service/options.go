// Package service implements the core business logic.
package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/petcare/petcare-payments/internal/core/domain"
	"github.com/petcare/petcare-payments/internal/core/ports"
)

// Option customizes a service.
type Option func(*options)

type options struct {
	loggerf func(format string, args ...any)
	now     func() time.Time
}

// WithLogger replaces log.Printf.
func WithLogger(loggerf func(format string, args ...any)) Option {
	return func(o *options) {
		if loggerf != nil {
			o.loggerf = loggerf
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		loggerf: log.Printf,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) clock() time.Time {
	return o.now().UTC()
}

const maxUpdateAttempts = 3

// updateWithRetry reruns a reservation mutation that lost an optimistic
// version race.
func updateWithRetry(ctx context.Context, store ports.ReservationStore, id int64, fn domain.EscrowMutation) (*domain.EscrowSnapshot, error) {
	var lastErr error
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		snap, err := store.UpdateInTx(ctx, id, fn)
		if err == nil || !errors.Is(err, domain.ErrConcurrentUpdate) {
			return snap, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// publish sends an event and only logs failures.
func publish(ctx context.Context, o options, publisher ports.EventPublisher, event domain.ReservationEvent) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, event); err != nil {
		o.loggerf("level=warn msg=\"event publish failed\" type=%s reservation_id=%d err=%q",
			event.Type, event.ReservationID, err.Error())
	}
}

package service

import (
	"context"
	"errors"
	"time"

	"github.com/petcare/petcare-payments/internal/core/domain"
	"github.com/petcare/petcare-payments/internal/core/ports"
)

const (
	defaultPayoutLease     = 2 * time.Minute
	defaultPayoutBatchSize = 20
	defaultPayoutAttempts  = 8
)

// DispatcherSettings tunes the payout worker.
type DispatcherSettings struct {
	// MaxAttempts is the number of transfer attempts before an order is DEAD.
	MaxAttempts int
	// BatchSize bounds the orders claimed per run.
	BatchSize int
	// Lease is how long a claimed order stays SENDING before another worker may reclaim it.
	Lease time.Duration
}

// PayoutDispatcher delivers payout orders from the outbox to the transfer endpoint.
type PayoutDispatcher struct {
	outbox    ports.PayoutOutbox
	transfers ports.PayoutTransferer
	publisher ports.EventPublisher
	settings  DispatcherSettings
	opts      options
}

// NewPayoutDispatcher creates a dispatcher. Zero settings fall back to defaults.
func NewPayoutDispatcher(
	outbox ports.PayoutOutbox,
	transfers ports.PayoutTransferer,
	publisher ports.EventPublisher,
	settings DispatcherSettings,
	opts ...Option,
) *PayoutDispatcher {
	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = defaultPayoutAttempts
	}
	if settings.BatchSize <= 0 {
		settings.BatchSize = defaultPayoutBatchSize
	}
	if settings.Lease <= 0 {
		settings.Lease = defaultPayoutLease
	}
	return &PayoutDispatcher{
		outbox:    outbox,
		transfers: transfers,
		publisher: publisher,
		settings:  settings,
		opts:      newOptions(opts),
	}
}

// Dispatch sends the payout of one reservation if it is due and unclaimed.
// An order that is already sent or held by another worker is not an error.
func (d *PayoutDispatcher) Dispatch(ctx context.Context, reservationID int64) error {
	order, err := d.outbox.Claim(ctx, reservationID, d.opts.clock(), d.settings.Lease)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return d.send(ctx, order)
}

// RunOnce claims and sends every due order. It returns the number sent.
func (d *PayoutDispatcher) RunOnce(ctx context.Context) (int, error) {
	orders, err := d.outbox.ClaimDue(ctx, d.opts.clock(), d.settings.Lease, d.settings.BatchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range orders {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		if err := d.send(ctx, &orders[i]); err == nil {
			sent++
		}
	}
	return sent, nil
}

// Run calls RunOnce every interval until ctx is cancelled.
func (d *PayoutDispatcher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.opts.loggerf("level=info msg=\"payout worker started\" interval=%s", interval)
	for {
		select {
		case <-ctx.Done():
			d.opts.loggerf("level=info msg=\"payout worker stopped\"")
			return
		case <-ticker.C:
			n, err := d.RunOnce(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				d.opts.loggerf("level=error msg=\"payout run failed\" err=%q", err.Error())
			}
			if n > 0 {
				d.opts.loggerf("level=info msg=\"payout run\" sent=%d", n)
			}
		}
	}
}

// send makes one transfer attempt for a claimed order and records the outcome.
// Reservation and payment state are never touched.
func (d *PayoutDispatcher) send(ctx context.Context, order *domain.PayoutOrder) error {
	receipt, err := d.transfers.Transfer(ctx, domain.TransferRequest{
		ReservationID:  order.ReservationID,
		Destination:    order.Destination,
		Amount:         order.Net,
		Currency:       order.Currency,
		Reference:      order.Reference(),
		IdempotencyKey: order.IdempotencyKey,
	})
	now := d.opts.clock()

	if err != nil {
		status := domain.PayoutFailed
		next := now.Add(domain.PayoutBackoff(order.Attempts))
		if order.Attempts >= d.settings.MaxAttempts {
			status = domain.PayoutDead
		}
		if markErr := d.outbox.MarkFailed(ctx, order.ID, status, err.Error(), next); markErr != nil {
			d.opts.loggerf("level=error msg=\"mark payout failed\" reservation_id=%d err=%q", order.ReservationID, markErr.Error())
		}
		d.opts.loggerf("level=warn msg=\"payout attempt failed\" reservation_id=%d attempt=%d status=%s err=%q",
			order.ReservationID, order.Attempts, status, err.Error())
		if status == domain.PayoutDead {
			publish(ctx, d.opts, d.publisher, payoutEvent(domain.EventPayoutFailed, order, now))
		}
		return err
	}

	if err := d.outbox.MarkSent(ctx, order.ID, receipt.TransferID, now); err != nil {
		d.opts.loggerf("level=error msg=\"mark payout sent failed\" reservation_id=%d transfer_id=%s err=%q",
			order.ReservationID, receipt.TransferID, err.Error())
		return err
	}
	d.opts.loggerf("level=info msg=\"payout sent\" reservation_id=%d net=%s transfer_id=%s",
		order.ReservationID, order.Net.StringFixed(2), receipt.TransferID)
	publish(ctx, d.opts, d.publisher, payoutEvent(domain.EventPayoutSent, order, now))
	return nil
}

func payoutEvent(eventType string, order *domain.PayoutOrder, at time.Time) domain.ReservationEvent {
	return domain.ReservationEvent{
		Type:          eventType,
		ReservationID: order.ReservationID,
		State:         domain.ReservationFinalized,
		PaymentStatus: domain.PaymentReleased,
		Amount:        order.Net.StringFixed(2),
		Currency:      order.Currency,
		OccurredAt:    at,
	}
}

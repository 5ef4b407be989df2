package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/petcare/petcare-payments/internal/core/domain"
	"github.com/petcare/petcare-payments/internal/core/service"
)

// releaseWithFailingTransfer finalizes a reservation while the transfer
// endpoint is down, leaving a FAILED payout order behind.
func releaseWithFailingTransfer(t *testing.T, e *testEnv, r *domain.Reservation) {
	t.Helper()
	e.transfers.On("Transfer", mock.Anything, mock.Anything).Return(nil, errors.New("bank offline")).Once()
	e.payReservation(t, r)
	ctx := context.Background()
	_, err := e.escrow.ConfirmCompletion(ctx, service.ConfirmInput{ReservationID: r.ID, CallerID: providerAccount, ProviderSide: true})
	require.NoError(t, err)
	_, err = e.escrow.ConfirmCompletion(ctx, service.ConfirmInput{ReservationID: r.ID, CallerID: requesterAccount})
	require.NoError(t, err)
}

func TestPayoutDispatcher_RetriesWithBackoff(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	r := e.createReservation(t, 3)
	releaseWithFailingTransfer(t, e, r)

	order, err := e.payouts.FindByReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutFailed, order.Status)
	assert.Equal(t, baseTime.Add(30*time.Second), order.NextAttemptAt.UTC())

	var keys []string
	e.transfers.On("Transfer", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { keys = append(keys, args.Get(1).(domain.TransferRequest).IdempotencyKey) }).
		Return(&domain.TransferReceipt{TransferID: "tr-2"}, nil)

	// Not due yet.
	n, err := e.dispatcher.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	e.clock.Advance(31 * time.Second)
	n, err = e.dispatcher.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	order, err = e.payouts.FindByReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutSent, order.Status)
	assert.Equal(t, 2, order.Attempts)
	assert.Equal(t, []string{order.IdempotencyKey}, keys)

	// Sent orders are never sent again.
	e.clock.Advance(time.Hour)
	n, err = e.dispatcher.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, e.dispatcher.Dispatch(ctx, r.ID))
	e.transfers.AssertNumberOfCalls(t, "Transfer", 2)
}

func TestPayoutDispatcher_DeadAfterMaxAttempts(t *testing.T) {
	e := newTestEnv(t, withMaxAttempts(2))
	ctx := context.Background()
	r := e.createReservation(t, 3)
	releaseWithFailingTransfer(t, e, r)

	e.transfers.On("Transfer", mock.Anything, mock.Anything).Return(nil, errors.New("still offline"))

	e.clock.Advance(time.Minute)
	n, err := e.dispatcher.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	order, err := e.payouts.FindByReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutDead, order.Status)
	assert.Equal(t, 2, order.Attempts)
	assert.Equal(t, 1, e.publisher.count(domain.EventPayoutFailed))

	// Dead orders wait for an operator.
	e.clock.Advance(2 * time.Hour)
	n, err = e.dispatcher.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := e.reservations.FindByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationFinalized, got.State)
}

func TestPayoutDispatcher_Requeue(t *testing.T) {
	e := newTestEnv(t, withMaxAttempts(1))
	ctx := context.Background()
	r := e.createReservation(t, 3)
	releaseWithFailingTransfer(t, e, r)

	order, err := e.payouts.FindByReservation(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PayoutDead, order.Status)

	require.NoError(t, e.payouts.Requeue(ctx, r.ID, e.clock.Now()))
	e.transfers.On("Transfer", mock.Anything, mock.Anything).Return(&domain.TransferReceipt{TransferID: "tr-3"}, nil)

	require.NoError(t, e.dispatcher.Dispatch(ctx, r.ID))

	order, err = e.payouts.FindByReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PayoutSent, order.Status)
	assert.Equal(t, "tr-3", order.TransferID)
}

func TestPayoutDispatcher_RunStopsOnCancel(t *testing.T) {
	e := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		e.dispatcher.Run(ctx, 10*time.Millisecond)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

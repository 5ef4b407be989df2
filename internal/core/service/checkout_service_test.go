package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/petcare/petcare-payments/internal/core/domain"
	"github.com/petcare/petcare-payments/internal/core/service"
)

func TestCheckoutService_RequestPayLink(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	r := e.createReservation(t, 3)

	var sent domain.PreferenceRequest
	e.gateway.On("CreatePreference", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(domain.PreferenceRequest) }).
		Return(preferenceFor(r.ID), nil)

	link, err := e.checkout.RequestPayLink(ctx, service.PayLinkInput{ReservationID: r.ID, CallerID: requesterAccount, PayerEmail: "owner@example.com"})
	require.NoError(t, err)

	assert.Equal(t, preferenceFor(r.ID).InitPoint, link.PayLink)
	assert.Equal(t, "pref-1", link.PreferenceID)
	assert.True(t, link.Amount.Equal(decimal.NewFromInt(1100)))
	assert.Equal(t, "ARS", link.Currency)

	assert.True(t, sent.Amount.Equal(decimal.NewFromInt(1100)))
	assert.Equal(t, "owner@example.com", sent.PayerEmail)
	id, ok := domain.ParseCorrelationToken(sent.ExternalReference)
	require.True(t, ok)
	assert.Equal(t, r.ID, id)
	assert.Equal(t, r.ID, sent.Metadata[domain.MetadataReservationKey])

	payment, err := e.payments.FindByReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, payment.Status)
	assert.Equal(t, "cvu-provider-2", payment.PayoutDestination)
	assert.Equal(t, sent.ExternalReference, payment.ExternalReference)
}

func TestCheckoutService_RequestPayLink_ReusesPendingPayment(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	r := e.createReservation(t, 3)

	e.gateway.On("CreatePreference", mock.Anything, mock.Anything).Return(preferenceFor(r.ID), nil).Once()
	e.gateway.On("CreatePreference", mock.Anything, mock.Anything).Return(&domain.Preference{ID: "pref-again", InitPoint: "https://pay.example/again"}, nil).Once()

	first, err := e.checkout.RequestPayLink(ctx, service.PayLinkInput{ReservationID: r.ID})
	require.NoError(t, err)
	e.clock.Advance(time.Minute)
	second, err := e.checkout.RequestPayLink(ctx, service.PayLinkInput{ReservationID: r.ID})
	require.NoError(t, err)

	assert.Equal(t, first.PaymentID, second.PaymentID)
	assert.Equal(t, "pref-again", second.PreferenceID)

	payment, err := e.payments.FindByReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/again", payment.PayLink)
	e.gateway.AssertNumberOfCalls(t, "CreatePreference", 2)
}

func TestCheckoutService_RequestPayLink_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("destination missing", func(t *testing.T) {
		e := newTestEnv(t)
		r, err := e.reservationSvc.CreateReservation(ctx, service.CreateReservationInput{
			RequesterID: 1, ProviderID: 7, SubjectID: 3, ServiceID: 9,
		})
		require.NoError(t, err)

		_, err = e.checkout.RequestPayLink(ctx, service.PayLinkInput{ReservationID: r.ID})
		assert.ErrorIs(t, err, domain.ErrPayoutDestinationMissing)
		assert.Equal(t, domain.CodePayoutDestinationMissing, domain.ErrorCode(err))
		e.gateway.AssertNotCalled(t, "CreatePreference", mock.Anything, mock.Anything)
	})

	t.Run("zero total", func(t *testing.T) {
		e := newTestEnv(t)
		r, err := e.reservationSvc.CreateReservation(ctx, service.CreateReservationInput{
			RequesterID: 1, ProviderID: 2, SubjectID: 3, ServiceID: 8,
		})
		require.NoError(t, err)

		_, err = e.checkout.RequestPayLink(ctx, service.PayLinkInput{ReservationID: r.ID})
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	})

	t.Run("gateway failure", func(t *testing.T) {
		e := newTestEnv(t)
		r := e.createReservation(t, 3)
		e.gateway.On("CreatePreference", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

		_, err := e.checkout.RequestPayLink(ctx, service.PayLinkInput{ReservationID: r.ID})
		assert.ErrorIs(t, err, domain.ErrPaymentGatewayError)
		assert.Equal(t, domain.CodeUpstreamGateway, domain.ErrorCode(err))

		_, err = e.payments.FindByReservation(ctx, r.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("not the requester", func(t *testing.T) {
		e := newTestEnv(t)
		r := e.createReservation(t, 3)

		_, err := e.checkout.RequestPayLink(ctx, service.PayLinkInput{ReservationID: r.ID, CallerID: providerAccount})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("already paid", func(t *testing.T) {
		e := newTestEnv(t)
		r := e.createReservation(t, 3)
		e.payReservation(t, r)

		_, err := e.checkout.RequestPayLink(ctx, service.PayLinkInput{ReservationID: r.ID})
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("cancelled", func(t *testing.T) {
		e := newTestEnv(t)
		r := e.createReservation(t, 3)
		_, err := e.reservationSvc.CancelReservation(ctx, r.ID, requesterAccount)
		require.NoError(t, err)

		_, err = e.checkout.RequestPayLink(ctx, service.PayLinkInput{ReservationID: r.ID})
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("unknown reservation", func(t *testing.T) {
		e := newTestEnv(t)
		_, err := e.checkout.RequestPayLink(ctx, service.PayLinkInput{ReservationID: 404})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

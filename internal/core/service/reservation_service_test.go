package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petcare/petcare-payments/internal/core/domain"
	"github.com/petcare/petcare-payments/internal/core/service"
)

func TestReservationService_CreateReservation(t *testing.T) {
	e := newTestEnv(t)

	r := e.createReservation(t, 3)

	assert.NotZero(t, r.ID)
	assert.Equal(t, domain.ReservationPendingPayment, r.State)
	assert.True(t, r.Subtotal.Equal(decimal.NewFromInt(1000)))
	assert.True(t, r.Commission.Equal(decimal.NewFromInt(100)))
	assert.True(t, r.Total.Equal(decimal.NewFromInt(1100)))
	assert.Equal(t, baseTime.Add(24*time.Hour), r.ScheduledAt)
	assert.Equal(t, 1, e.publisher.count(domain.EventReservationCreated))
}

func TestReservationService_CreateReservation_Validation(t *testing.T) {
	tests := []struct {
		name    string
		input   service.CreateReservationInput
		wantErr error
	}{
		{
			name:    "missing ids",
			input:   service.CreateReservationInput{RequesterID: 1},
			wantErr: domain.ErrInvalidRequest,
		},
		{
			name:    "unknown requester",
			input:   service.CreateReservationInput{RequesterID: 77, ProviderID: 2, SubjectID: 3, ServiceID: 4},
			wantErr: domain.ErrNotFound,
		},
		{
			name:    "pet of another owner",
			input:   service.CreateReservationInput{RequesterID: 1, ProviderID: 2, SubjectID: 6, ServiceID: 4},
			wantErr: domain.ErrForbidden,
		},
		{
			name:    "service of another provider",
			input:   service.CreateReservationInput{RequesterID: 1, ProviderID: 2, SubjectID: 3, ServiceID: 9},
			wantErr: domain.ErrNotFound,
		},
		{
			name:    "caller is not the requester",
			input:   service.CreateReservationInput{CallerID: strangerAccount, RequesterID: 1, ProviderID: 2, SubjectID: 3, ServiceID: 4},
			wantErr: domain.ErrForbidden,
		},
		{
			name:    "invalid quantity",
			input:   service.CreateReservationInput{RequesterID: 1, ProviderID: 2, SubjectID: 3, ServiceID: 4, Quantity: -1},
			wantErr: domain.ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)
			_, err := e.reservationSvc.CreateReservation(context.Background(), tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestReservationService_CreateReservation_NegativePrice(t *testing.T) {
	e := newTestEnv(t)
	e.directory.offerings[[2]int64{2, 4}].UnitPrice = decimal.NewFromInt(-5)

	_, err := e.reservationSvc.CreateReservation(context.Background(), service.CreateReservationInput{
		RequesterID: 1, ProviderID: 2, SubjectID: 3, ServiceID: 4,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestReservationService_CreateReservation_LinkedAccount(t *testing.T) {
	e := newTestEnv(t)

	r, err := e.reservationSvc.CreateReservation(context.Background(), service.CreateReservationInput{
		CallerID: requesterLinked, RequesterID: 1, ProviderID: 2, SubjectID: 3, ServiceID: 4,
	})
	require.NoError(t, err)

	view, err := e.reservationSvc.GetReservation(context.Background(), r.ID, requesterLinked)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleRequester, view.Role)
}

func TestReservationService_DuplicateReservation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	first := e.createReservation(t, 3)

	_, err := e.reservationSvc.CreateReservation(ctx, service.CreateReservationInput{
		RequesterID: 1, ProviderID: 2, SubjectID: 3, ServiceID: 4,
	})
	assert.ErrorIs(t, err, domain.ErrConflict)

	// Another pet is a different tuple.
	e.createReservation(t, 5)

	// Cancelling frees the tuple.
	_, err = e.reservationSvc.CancelReservation(ctx, first.ID, requesterAccount)
	require.NoError(t, err)
	again := e.createReservation(t, 3)
	assert.NotEqual(t, first.ID, again.ID)
}

func TestReservationService_ConcurrentCreate(t *testing.T) {
	e := newTestEnv(t)
	const workers = 6

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.reservationSvc.CreateReservation(context.Background(), service.CreateReservationInput{
				RequesterID: 1, ProviderID: 2, SubjectID: 3, ServiceID: 4,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, domain.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, conflicts)
}

func TestReservationService_GetReservation_Scoping(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	r := e.createReservation(t, 3)
	e.issuePayLink(t, r)

	requesterView, err := e.reservationSvc.GetReservation(ctx, r.ID, requesterAccount)
	require.NoError(t, err)
	require.NotNil(t, requesterView.Payment)
	assert.NotEmpty(t, requesterView.Payment.PayLink)

	providerView, err := e.reservationSvc.GetReservation(ctx, r.ID, providerAccount)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleProvider, providerView.Role)
	assert.Empty(t, providerView.Payment.PayLink)

	_, err = e.reservationSvc.GetReservation(ctx, r.ID, strangerAccount)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = e.reservationSvc.GetReservation(ctx, 404, requesterAccount)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReservationService_ListReservations(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.createReservation(t, 3)
	e.createReservation(t, 5)

	list, err := e.reservationSvc.ListReservations(ctx, requesterAccount, domain.RoleRequester, 1, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = e.reservationSvc.ListReservations(ctx, providerAccount, domain.RoleProvider, 2, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = e.reservationSvc.ListReservations(ctx, strangerAccount, domain.RoleProvider, 2, 10, 0)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestReservationService_RepriceOffering(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	pending := e.createReservation(t, 3)
	e.issuePayLink(t, pending)
	paid := e.createReservation(t, 5)
	e.payReservation(t, paid)

	n, err := e.reservationSvc.RepriceOffering(ctx, 2, 4, decimal.NewFromInt(2000))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := e.reservations.FindByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.True(t, got.Total.Equal(decimal.NewFromInt(2200)))
	payment, err := e.payments.FindByReservation(ctx, pending.ID)
	require.NoError(t, err)
	assert.True(t, payment.Amount.Equal(decimal.NewFromInt(2200)))

	untouched, err := e.reservations.FindByID(ctx, paid.ID)
	require.NoError(t, err)
	assert.True(t, untouched.Total.Equal(decimal.NewFromInt(1100)))

	_, err = e.reservationSvc.RepriceOffering(ctx, 2, 4, decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestReservationService_CancelReservation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	r := e.createReservation(t, 3)

	_, err := e.reservationSvc.CancelReservation(ctx, r.ID, strangerAccount)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	got, err := e.reservationSvc.CancelReservation(ctx, r.ID, providerAccount)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationCancelled, got.State)
	assert.Equal(t, 1, e.publisher.count(domain.EventReservationCancelled))

	_, err = e.reservationSvc.CancelReservation(ctx, r.ID, requesterAccount)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	paid := e.createReservation(t, 5)
	e.payReservation(t, paid)
	_, err = e.reservationSvc.CancelReservation(ctx, paid.ID, requesterAccount)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestReservationService_StartService(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	r := e.createReservation(t, 3)

	_, err := e.reservationSvc.StartService(ctx, r.ID, providerAccount)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	e.payReservation(t, r)

	_, err = e.reservationSvc.StartService(ctx, r.ID, requesterAccount)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	got, err := e.reservationSvc.StartService(ctx, r.ID, providerAccount)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationInProgress, got.State)
}

package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/petcare/petcare-payments/internal/adapters/storage"
	"github.com/petcare/petcare-payments/internal/adapters/storage/storagetest"
	"github.com/petcare/petcare-payments/internal/core/domain"
	"github.com/petcare/petcare-payments/internal/core/service"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// Accounts used across the tests.
const (
	requesterAccount = int64(100)
	requesterLinked  = int64(101)
	providerAccount  = int64(200)
	strangerAccount  = int64(999)
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreatePreference(ctx context.Context, req domain.PreferenceRequest) (*domain.Preference, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Preference), args.Error(1)
}

func (m *MockGateway) GetPayment(ctx context.Context, paymentID string) (*domain.GatewayPayment, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	// Callers may mutate the payment; hand out a copy.
	p := *args.Get(0).(*domain.GatewayPayment)
	return &p, args.Error(1)
}

func (m *MockGateway) GetMerchantOrder(ctx context.Context, orderID string) (*domain.GatewayOrder, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GatewayOrder), args.Error(1)
}

type MockTransferer struct {
	mock.Mock
}

func (m *MockTransferer) Transfer(ctx context.Context, req domain.TransferRequest) (*domain.TransferReceipt, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TransferReceipt), args.Error(1)
}

type stubVerifier struct {
	outcome domain.SignatureOutcome
}

func (v stubVerifier) Verify(_, _, _ string) domain.SignatureOutcome {
	return v.outcome
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.ReservationEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.ReservationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

type fakeDirectory struct {
	requesters map[int64]*domain.Party
	providers  map[int64]*domain.Provider
	subjects   map[int64]*domain.Subject
	offerings  map[[2]int64]*domain.Offering
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		requesters: map[int64]*domain.Party{
			1: {ID: 1, AccountID: requesterAccount, LinkedAccountID: requesterLinked},
		},
		providers: map[int64]*domain.Provider{
			2: {ID: 2, AccountID: providerAccount, PayoutDestination: "cvu-provider-2"},
			7: {ID: 7, AccountID: 700},
		},
		subjects: map[int64]*domain.Subject{
			3: {ID: 3, OwnerID: 1},
			5: {ID: 5, OwnerID: 1},
			6: {ID: 6, OwnerID: 42},
		},
		offerings: map[[2]int64]*domain.Offering{
			{2, 4}: {ID: 4, ProviderID: 2, Title: "Dog walking", UnitPrice: decimal.NewFromInt(1000)},
			{2, 8}: {ID: 8, ProviderID: 2, Title: "Free trial", UnitPrice: decimal.Zero},
			{7, 9}: {ID: 9, ProviderID: 7, Title: "Grooming", UnitPrice: decimal.NewFromInt(500)},
		},
	}
}

func (d *fakeDirectory) GetRequester(_ context.Context, id int64) (*domain.Party, error) {
	if p, ok := d.requesters[id]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("requester %d: %w", id, domain.ErrNotFound)
}

func (d *fakeDirectory) GetProvider(_ context.Context, id int64) (*domain.Provider, error) {
	if p, ok := d.providers[id]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("provider %d: %w", id, domain.ErrNotFound)
}

func (d *fakeDirectory) GetSubject(_ context.Context, id int64) (*domain.Subject, error) {
	if s, ok := d.subjects[id]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("pet %d: %w", id, domain.ErrNotFound)
}

func (d *fakeDirectory) GetOffering(_ context.Context, providerID, serviceID int64) (*domain.Offering, error) {
	if o, ok := d.offerings[[2]int64{providerID, serviceID}]; ok {
		return o, nil
	}
	return nil, fmt.Errorf("service %d of provider %d: %w", serviceID, providerID, domain.ErrNotFound)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	clock     *testClock
	directory *fakeDirectory
	gateway   *MockGateway
	transfers *MockTransferer
	publisher *recordingPublisher

	db           *gorm.DB
	reservations *storage.ReservationRepository
	payments     *storage.PaymentRepository
	reviews      *storage.ReviewRepository
	payouts      *storage.PayoutRepository
	webhooks     *storage.WebhookEventRepository

	reservationSvc *service.ReservationService
	checkout       *service.CheckoutService
	reconciler     *service.WebhookReconciler
	escrow         *service.EscrowService
	dispatcher     *service.PayoutDispatcher
	reviewSvc      *service.ReviewService
}

type envOption func(*envConfig)

type envConfig struct {
	verifier      stubVerifier
	rejectInvalid bool
	maxAttempts   int
}

func withSignature(outcome domain.SignatureOutcome, reject bool) envOption {
	return func(c *envConfig) {
		c.verifier = stubVerifier{outcome: outcome}
		c.rejectInvalid = reject
	}
}

func withMaxAttempts(n int) envOption {
	return func(c *envConfig) { c.maxAttempts = n }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	cfg := envConfig{
		verifier:      stubVerifier{outcome: domain.SignatureVerified},
		rejectInvalid: true,
		maxAttempts:   3,
	}
	for _, o := range opts {
		o(&cfg)
	}

	db := storagetest.NewDB(t)
	e := &testEnv{
		clock:        &testClock{now: baseTime},
		directory:    newFakeDirectory(),
		gateway:      new(MockGateway),
		transfers:    new(MockTransferer),
		publisher:    &recordingPublisher{},
		db:           db,
		reservations: storage.NewReservationRepository(db),
		payments:     storage.NewPaymentRepository(db),
		reviews:      storage.NewReviewRepository(db),
		payouts:      storage.NewPayoutRepository(db),
		webhooks:     storage.NewWebhookEventRepository(db),
	}

	svcOpts := []service.Option{
		service.WithClock(e.clock.Now),
		service.WithLogger(func(format string, args ...any) {}),
	}
	pct := decimal.NewFromInt(10)

	e.reservationSvc = service.NewReservationService(e.reservations, e.payments, e.directory, e.publisher, pct, 24*time.Hour, svcOpts...)
	e.checkout = service.NewCheckoutService(e.reservations, e.payments, e.directory, e.gateway, "ARS", svcOpts...)
	e.reconciler = service.NewWebhookReconciler(cfg.verifier, e.gateway, e.reservations, e.payments, e.webhooks, e.publisher, cfg.rejectInvalid, svcOpts...)
	e.dispatcher = service.NewPayoutDispatcher(e.payouts, e.transfers, e.publisher, service.DispatcherSettings{
		MaxAttempts: cfg.maxAttempts,
		BatchSize:   10,
		Lease:       time.Minute,
	}, svcOpts...)
	e.escrow = service.NewEscrowService(e.reservations, e.publisher, e.dispatcher, pct, svcOpts...)
	e.reviewSvc = service.NewReviewService(e.reservations, e.reviews, svcOpts...)
	return e
}

// createReservation books subject for service 4 of provider 2 (price 1000).
func (e *testEnv) createReservation(t *testing.T, subjectID int64) *domain.Reservation {
	t.Helper()
	r, err := e.reservationSvc.CreateReservation(context.Background(), service.CreateReservationInput{
		CallerID:    requesterAccount,
		RequesterID: 1,
		ProviderID:  2,
		SubjectID:   subjectID,
		ServiceID:   4,
	})
	require.NoError(t, err)
	return r
}

func preferenceFor(id int64) *domain.Preference {
	return &domain.Preference{
		ID:               fmt.Sprintf("pref-%d", id),
		InitPoint:        fmt.Sprintf("https://pay.example/checkout/%d", id),
		SandboxInitPoint: fmt.Sprintf("https://sandbox.pay.example/checkout/%d", id),
	}
}

// issuePayLink expects one preference for the reservation and requests the link.
func (e *testEnv) issuePayLink(t *testing.T, r *domain.Reservation) *service.PayLink {
	t.Helper()
	e.gateway.On("CreatePreference", mock.Anything, mock.MatchedBy(func(req domain.PreferenceRequest) bool {
		return req.Metadata[domain.MetadataReservationKey] == r.ID
	})).Return(preferenceFor(r.ID), nil)

	link, err := e.checkout.RequestPayLink(context.Background(), service.PayLinkInput{
		ReservationID: r.ID,
		CallerID:      requesterAccount,
		PayerEmail:    "owner@example.com",
	})
	require.NoError(t, err)
	return link
}

func approvedPayment(reservationID int64) *domain.GatewayPayment {
	return &domain.GatewayPayment{
		ID:                fmt.Sprintf("mp-%d", reservationID),
		Status:            domain.GatewayStatusApproved,
		ExternalReference: domain.CorrelationToken(reservationID, baseTime),
		Metadata:          map[string]any{domain.MetadataReservationKey: float64(reservationID)},
		Amount:            decimal.NewFromInt(1100),
		Currency:          "ARS",
	}
}

// payReservation issues a pay link and delivers an approved payment webhook.
func (e *testEnv) payReservation(t *testing.T, r *domain.Reservation) {
	t.Helper()
	e.issuePayLink(t, r)
	gp := approvedPayment(r.ID)
	e.gateway.On("GetPayment", mock.Anything, gp.ID).Return(gp, nil)

	result, err := e.reconciler.Handle(context.Background(), domain.WebhookNotification{
		Topic:      domain.TopicPayment,
		ResourceID: gp.ID,
	})
	require.NoError(t, err)
	require.Equal(t, domain.WebhookApplied, result.Outcome)
}

// expectTransfers makes every transfer succeed.
func (e *testEnv) expectTransfers() {
	e.transfers.On("Transfer", mock.Anything, mock.Anything).
		Return(&domain.TransferReceipt{TransferID: "tr-1", Status: "accepted"}, nil)
}

// finalize pays the reservation and confirms it from both sides.
func (e *testEnv) finalize(t *testing.T, r *domain.Reservation) {
	t.Helper()
	e.payReservation(t, r)
	ctx := context.Background()
	_, err := e.escrow.ConfirmCompletion(ctx, service.ConfirmInput{ReservationID: r.ID, CallerID: providerAccount, ProviderSide: true})
	require.NoError(t, err)
	res, err := e.escrow.ConfirmCompletion(ctx, service.ConfirmInput{ReservationID: r.ID, CallerID: requesterAccount})
	require.NoError(t, err)
	require.True(t, res.Released)
}

// Package ports defines the interfaces (ports) for the reservation and escrow service.
// These are contracts that adapters must implement.
package ports

import (
	"context"
	"time"

	"github.com/petcare/petcare-payments/internal/core/domain"
)

// ReservationStore persists reservations. UpdateInTx is the only way to
// change a reservation, its payment or its payout order after creation.
type ReservationStore interface {
	// Create inserts a reservation. A second active reservation for the
	// same tuple fails with domain.ErrConflict.
	Create(ctx context.Context, r *domain.Reservation) error

	FindByID(ctx context.Context, id int64) (*domain.Reservation, error)

	// FindActiveDuplicate returns the non-terminal reservation for key, or domain.ErrNotFound.
	FindActiveDuplicate(ctx context.Context, key domain.ReservationKey) (*domain.Reservation, error)

	ListByParty(ctx context.Context, role domain.PartyRole, partyID int64, limit, offset int) ([]domain.Reservation, error)

	// ListPendingByOffering returns the ids of PENDING_PAYMENT reservations for a provider's service.
	ListPendingByOffering(ctx context.Context, providerID, serviceID int64) ([]int64, error)

	// UpdateInTx locks the reservation, loads its payment and payout order,
	// applies fn and persists the result in one transaction.
	UpdateInTx(ctx context.Context, reservationID int64, fn domain.EscrowMutation) (*domain.EscrowSnapshot, error)
}

// PaymentLedger reads escrow payments.
type PaymentLedger interface {
	FindByReservation(ctx context.Context, reservationID int64) (*domain.Payment, error)
	FindByPreferenceID(ctx context.Context, preferenceID string) (*domain.Payment, error)
	FindByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*domain.Payment, error)
}

// ReviewStore persists reviews.
type ReviewStore interface {
	// Create fails with domain.ErrConflict when the role already reviewed the reservation.
	Create(ctx context.Context, review *domain.Review) error
	ExistsForRole(ctx context.Context, reservationID int64, role domain.PartyRole) (bool, error)
	ListByReservation(ctx context.Context, reservationID int64) ([]domain.Review, error)
}

// PayoutOutbox is the durable queue of payouts owed to providers.
type PayoutOutbox interface {
	FindByReservation(ctx context.Context, reservationID int64) (*domain.PayoutOrder, error)

	// Claim takes the order of a reservation for sending. It returns
	// domain.ErrNotFound when the order is absent, sent or held by another worker.
	Claim(ctx context.Context, reservationID int64, now time.Time, lease time.Duration) (*domain.PayoutOrder, error)

	// ClaimDue takes up to limit orders whose next attempt is due.
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]domain.PayoutOrder, error)

	MarkSent(ctx context.Context, id int64, transferID string, at time.Time) error
	MarkFailed(ctx context.Context, id int64, status domain.PayoutStatus, lastErr string, nextAttempt time.Time) error
	List(ctx context.Context, status domain.PayoutStatus, limit int) ([]domain.PayoutOrder, error)

	// Requeue makes a DEAD or FAILED order due immediately.
	Requeue(ctx context.Context, reservationID int64, now time.Time) error
}

// WebhookEventLog records every gateway notification.
type WebhookEventLog interface {
	Record(ctx context.Context, event *domain.WebhookEvent) error
	ListByOutcome(ctx context.Context, outcome domain.WebhookOutcome, limit int) ([]domain.WebhookEvent, error)
}

// PaymentGateway defines the interface for interacting with Mercado Pago.
type PaymentGateway interface {
	// CreatePreference creates a Checkout Pro preference.
	CreatePreference(ctx context.Context, req domain.PreferenceRequest) (*domain.Preference, error)

	// GetPayment retrieves payment details by ID.
	GetPayment(ctx context.Context, paymentID string) (*domain.GatewayPayment, error)

	// GetMerchantOrder retrieves a merchant order by ID.
	GetMerchantOrder(ctx context.Context, orderID string) (*domain.GatewayOrder, error)
}

// WebhookVerifier checks the x-signature of a gateway notification.
type WebhookVerifier interface {
	Verify(signature, requestID, resourceID string) domain.SignatureOutcome
}

// Directory resolves parties, pets and services owned by the profile/catalog service.
type Directory interface {
	GetRequester(ctx context.Context, id int64) (*domain.Party, error)
	GetProvider(ctx context.Context, id int64) (*domain.Provider, error)
	GetSubject(ctx context.Context, id int64) (*domain.Subject, error)
	GetOffering(ctx context.Context, providerID, serviceID int64) (*domain.Offering, error)
}

// PayoutTransferer moves money to a provider's payout account.
type PayoutTransferer interface {
	Transfer(ctx context.Context, req domain.TransferRequest) (*domain.TransferReceipt, error)
}

// EventPublisher publishes reservation lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.ReservationEvent) error
}

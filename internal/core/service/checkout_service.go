package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/petcare/petcare-payments/internal/core/domain"
	"github.com/petcare/petcare-payments/internal/core/ports"
)

// CheckoutService issues gateway pay links for pending reservations.
type CheckoutService struct {
	reservations ports.ReservationStore
	payments     ports.PaymentLedger
	directory    ports.Directory
	gateway      ports.PaymentGateway
	currency     string
	opts         options
}

// NewCheckoutService creates a new checkout service.
func NewCheckoutService(
	reservations ports.ReservationStore,
	payments ports.PaymentLedger,
	directory ports.Directory,
	gateway ports.PaymentGateway,
	currency string,
	opts ...Option,
) *CheckoutService {
	return &CheckoutService{
		reservations: reservations,
		payments:     payments,
		directory:    directory,
		gateway:      gateway,
		currency:     currency,
		opts:         newOptions(opts),
	}
}

// PayLinkInput asks for a checkout link. CallerID, when set, must be the requester.
type PayLinkInput struct {
	ReservationID int64
	CallerID      int64
	PayerEmail    string
}

// PayLink is the checkout handed to the requester.
type PayLink struct {
	ReservationID  int64           `json:"reservation_id"`
	PaymentID      int64           `json:"payment_id"`
	PreferenceID   string          `json:"preference_id"`
	PayLink        string          `json:"pay_link"`
	SandboxPayLink string          `json:"sandbox_pay_link,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
}

// RequestPayLink creates a checkout preference for the reservation total and
// records it on the reservation's PENDING payment, creating that payment on
// first use.
func (s *CheckoutService) RequestPayLink(ctx context.Context, in PayLinkInput) (*PayLink, error) {
	reservation, err := s.reservations.FindByID(ctx, in.ReservationID)
	if err != nil {
		return nil, err
	}
	if in.CallerID != 0 {
		if err := reservation.AuthorizeAs(in.CallerID, domain.RoleRequester); err != nil {
			return nil, err
		}
	}
	if err := checkPayable(reservation); err != nil {
		return nil, err
	}

	existing, err := s.payments.FindByReservation(ctx, reservation.ID)
	switch {
	case err == nil:
		if existing.Status != domain.PaymentPending {
			return nil, domain.NewServiceError(domain.ErrInvalidState,
				fmt.Sprintf("payment for reservation %d is %s", reservation.ID, existing.Status), domain.CodeInvalidState)
		}
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	provider, err := s.directory.GetProvider(ctx, reservation.ProviderID)
	if err != nil {
		return nil, err
	}
	destination := strings.TrimSpace(provider.PayoutDestination)
	if destination == "" {
		return nil, domain.NewServiceError(domain.ErrPayoutDestinationMissing,
			fmt.Sprintf("provider %d has no payout destination", provider.ID), domain.CodePayoutDestinationMissing)
	}

	token := domain.CorrelationToken(reservation.ID, s.opts.clock())
	pref, err := s.gateway.CreatePreference(ctx, domain.PreferenceRequest{
		Title:             fmt.Sprintf("Reservation #%d", reservation.ID),
		Description:       "Pet care service",
		Amount:            reservation.Total,
		Currency:          s.currency,
		PayerEmail:        in.PayerEmail,
		ExternalReference: token,
		Metadata: map[string]any{
			domain.MetadataReservationKey: reservation.ID,
		},
	})
	if err != nil {
		s.opts.loggerf("level=error msg=\"create preference failed\" reservation_id=%d err=%q", reservation.ID, err.Error())
		return nil, gatewayError(err)
	}

	// The gateway call ran outside the transaction; the state is checked again under the lock.
	snap, err := updateWithRetry(ctx, s.reservations, reservation.ID, func(snap *domain.EscrowSnapshot) error {
		if err := checkPayable(snap.Reservation); err != nil {
			return err
		}
		if snap.Payment == nil {
			snap.Payment = domain.NewPendingPayment(snap.Reservation, s.currency, destination)
		}
		return snap.Payment.Reissue(pref, token, snap.Reservation.Total, destination)
	})
	if err != nil {
		return nil, err
	}

	s.opts.loggerf("level=info msg=\"pay link issued\" reservation_id=%d preference_id=%s amount=%s",
		reservation.ID, pref.ID, snap.Payment.Amount.StringFixed(2))

	return &PayLink{
		ReservationID:  reservation.ID,
		PaymentID:      snap.Payment.ID,
		PreferenceID:   snap.Payment.PreferenceID,
		PayLink:        snap.Payment.PayLink,
		SandboxPayLink: snap.Payment.SandboxPayLink,
		Amount:         snap.Payment.Amount,
		Currency:       snap.Payment.Currency,
	}, nil
}

func checkPayable(r *domain.Reservation) error {
	if r.State != domain.ReservationPendingPayment {
		return domain.NewServiceError(domain.ErrInvalidState,
			fmt.Sprintf("reservation %d is %s", r.ID, r.State), domain.CodeInvalidState)
	}
	if !r.Total.IsPositive() {
		return domain.NewServiceError(domain.ErrInvalidAmount,
			fmt.Sprintf("reservation %d total must be positive", r.ID), domain.CodeInvalidAmount)
	}
	return nil
}

func gatewayError(err error) error {
	if errors.Is(err, domain.ErrPaymentGatewayError) {
		return err
	}
	return domain.NewServiceError(fmt.Errorf("%w: %v", domain.ErrPaymentGatewayError, err),
		"payment gateway unavailable", domain.CodeUpstreamGateway)
}

package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/petcare/petcare-payments/internal/core/domain"
	"github.com/petcare/petcare-payments/internal/core/ports"
)

// PayoutTrigger sends the payout of a just-finalized reservation.
type PayoutTrigger interface {
	Dispatch(ctx context.Context, reservationID int64) error
}

// EscrowService records completion confirmations and releases the escrow
// once both parties have confirmed.
type EscrowService struct {
	reservations  ports.ReservationStore
	publisher     ports.EventPublisher
	payouts       PayoutTrigger
	commissionPct decimal.Decimal
	opts          options
}

// NewEscrowService creates a new escrow service. payouts may be nil, in
// which case the payout worker picks the order up on its next run.
func NewEscrowService(
	reservations ports.ReservationStore,
	publisher ports.EventPublisher,
	payouts PayoutTrigger,
	commissionPct decimal.Decimal,
	opts ...Option,
) *EscrowService {
	return &EscrowService{
		reservations:  reservations,
		publisher:     publisher,
		payouts:       payouts,
		commissionPct: commissionPct,
		opts:          newOptions(opts),
	}
}

// ConfirmInput is one party's completion confirmation.
type ConfirmInput struct {
	ReservationID int64
	CallerID      int64
	ProviderSide  bool
}

// ConfirmResult reports the reservation after a confirmation.
type ConfirmResult struct {
	ReservationID        int64                   `json:"reservation_id"`
	State                domain.ReservationState `json:"state"`
	ConfirmedByRequester bool                    `json:"confirmed_by_requester"`
	ConfirmedByProvider  bool                    `json:"confirmed_by_provider"`
	Released             bool                    `json:"released"`
	AlreadyFinalized     bool                    `json:"already_finalized"`
	PaymentStatus        domain.PaymentStatus    `json:"payment_status,omitempty"`
	Message              string                  `json:"message"`
}

// Confirmation messages.
const (
	MessageAlreadyFinalized = "reservation already finalized"
	MessageWaitingOther     = "confirmation recorded, waiting on the other party"
	MessageReleased         = "both parties confirmed, escrow released"
)

// ConfirmCompletion records the caller's confirmation. When it completes the
// pair, the reservation is finalized, the payment released and the payout
// order queued in the same transaction. Confirming a finalized reservation
// is a no-op.
func (s *EscrowService) ConfirmCompletion(ctx context.Context, in ConfirmInput) (*ConfirmResult, error) {
	role := domain.RoleRequester
	if in.ProviderSide {
		role = domain.RoleProvider
	}

	var released, already bool
	snap, err := updateWithRetry(ctx, s.reservations, in.ReservationID, func(snap *domain.EscrowSnapshot) error {
		released, already = false, false
		r := snap.Reservation
		if err := r.AuthorizeAs(in.CallerID, role); err != nil {
			return err
		}
		if r.State == domain.ReservationFinalized {
			already = true
			return nil
		}
		if _, err := r.Confirm(role); err != nil {
			return err
		}
		if !r.BothConfirmed() {
			return nil
		}

		if snap.Payment == nil || snap.Payment.Status != domain.PaymentPaid {
			return domain.NewServiceError(domain.ErrInvalidState,
				fmt.Sprintf("reservation %d has no captured payment to release", r.ID), domain.CodeInvalidState)
		}
		now := s.opts.clock()
		if err := r.Finalize(); err != nil {
			return err
		}
		if err := snap.Payment.Release(now); err != nil {
			return err
		}
		order, err := domain.NewPayoutOrder(snap.Payment, s.commissionPct, uuid.NewString(), now)
		if err != nil {
			return err
		}
		snap.Payout = order
		released = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	r := snap.Reservation
	result := &ConfirmResult{
		ReservationID:        r.ID,
		State:                r.State,
		ConfirmedByRequester: r.ConfirmedByRequester,
		ConfirmedByProvider:  r.ConfirmedByProvider,
		Released:             released,
		AlreadyFinalized:     already,
	}
	switch {
	case already:
		result.Message = MessageAlreadyFinalized
	case released:
		result.Message = MessageReleased
	default:
		result.Message = MessageWaitingOther
	}
	if snap.Payment != nil {
		result.PaymentStatus = snap.Payment.Status
	}

	if !released {
		s.opts.loggerf("level=info msg=\"completion confirmed\" reservation_id=%d role=%s state=%s", r.ID, role, r.State)
		return result, nil
	}

	s.opts.loggerf("level=info msg=\"escrow released\" reservation_id=%d gross=%s net=%s",
		r.ID, snap.Payout.Gross.StringFixed(2), snap.Payout.Net.StringFixed(2))
	publish(ctx, s.opts, s.publisher, domain.NewReservationEvent(domain.EventReservationFinalized, r, snap.Payment, s.opts.clock()))

	if s.payouts != nil {
		if err := s.payouts.Dispatch(ctx, r.ID); err != nil {
			s.opts.loggerf("level=warn msg=\"immediate payout failed, worker will retry\" reservation_id=%d err=%q", r.ID, err.Error())
		}
	}
	return result, nil
}

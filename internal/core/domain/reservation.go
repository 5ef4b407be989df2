package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ReservationKey identifies the tuple that may hold at most one active reservation.
type ReservationKey struct {
	RequesterID int64
	ProviderID  int64
	SubjectID   int64
	ServiceID   int64
}

func (k ReservationKey) String() string {
	return fmt.Sprintf("%d:%d:%d:%d", k.RequesterID, k.ProviderID, k.SubjectID, k.ServiceID)
}

// NewReservation builds a PENDING_PAYMENT reservation from resolved parties and pricing.
func NewReservation(requester *Party, provider *Provider, subject *Subject, offering *Offering, scheduledAt time.Time, pricing Pricing) *Reservation {
	r := &Reservation{
		RequesterID:        requester.ID,
		RequesterAccountID: requester.AccountID,
		RequesterLinkedID:  requester.LinkedAccountID,
		ProviderID:         provider.ID,
		ProviderAccountID:  provider.AccountID,
		ProviderLinkedID:   provider.LinkedAccountID,
		SubjectID:          subject.ID,
		ServiceID:          offering.ID,
		ScheduledAt:        scheduledAt,
		State:              ReservationPendingPayment,
	}
	r.applyPricing(pricing)
	key := r.Key().String()
	r.ActiveKey = &key
	return r
}

// Key returns the duplicate-detection tuple of the reservation.
func (r *Reservation) Key() ReservationKey {
	return ReservationKey{
		RequesterID: r.RequesterID,
		ProviderID:  r.ProviderID,
		SubjectID:   r.SubjectID,
		ServiceID:   r.ServiceID,
	}
}

// RoleOf returns the caller's side of the reservation. Linked accounts act
// for the party they are linked to.
func (r *Reservation) RoleOf(callerID int64) (PartyRole, bool) {
	if callerID == 0 {
		return "", false
	}
	if callerID == r.RequesterAccountID || callerID == r.RequesterLinkedID {
		return RoleRequester, true
	}
	if callerID == r.ProviderAccountID || callerID == r.ProviderLinkedID {
		return RoleProvider, true
	}
	return "", false
}

// AuthorizeAs returns ErrForbidden unless callerID acts for role.
func (r *Reservation) AuthorizeAs(callerID int64, role PartyRole) error {
	got, ok := r.RoleOf(callerID)
	if !ok || got != role {
		return NewServiceError(ErrForbidden,
			fmt.Sprintf("caller %d is not the %s of reservation %d", callerID, role, r.ID), CodeForbidden)
	}
	return nil
}

func (r *Reservation) transition(next ReservationState) error {
	if !r.State.CanTransitionTo(next) {
		return NewServiceError(ErrInvalidState,
			fmt.Sprintf("reservation %d cannot move from %s to %s", r.ID, r.State, next), CodeInvalidState)
	}
	r.State = next
	if next.IsTerminal() {
		r.ActiveKey = nil
	}
	return nil
}

// MarkPaid moves a pending reservation to PAID. It reports false when the
// reservation was already past payment.
func (r *Reservation) MarkPaid() (bool, error) {
	if r.State.IsPaid() {
		return false, nil
	}
	if err := r.transition(ReservationPaid); err != nil {
		return false, err
	}
	return true, nil
}

// Start moves a paid reservation to IN_PROGRESS.
func (r *Reservation) Start() error {
	return r.transition(ReservationInProgress)
}

// Cancel ends a reservation that has not been paid.
func (r *Reservation) Cancel() error {
	return r.transition(ReservationCancelled)
}

// Confirm records a party's completion confirmation. It reports false when
// that side had already confirmed.
func (r *Reservation) Confirm(role PartyRole) (bool, error) {
	switch r.State {
	case ReservationPendingPayment:
		return false, NewServiceError(ErrPaymentNotYetProcessed,
			fmt.Sprintf("reservation %d has not been paid", r.ID), CodePaymentNotYetProcessed)
	case ReservationPaid, ReservationInProgress:
	default:
		return false, NewServiceError(ErrInvalidState,
			fmt.Sprintf("reservation %d is %s", r.ID, r.State), CodeInvalidState)
	}

	switch role {
	case RoleProvider:
		if r.ConfirmedByProvider {
			return false, nil
		}
		r.ConfirmedByProvider = true
	case RoleRequester:
		if r.ConfirmedByRequester {
			return false, nil
		}
		r.ConfirmedByRequester = true
	default:
		return false, NewServiceError(ErrInvalidRequest, "unknown party role "+string(role), CodeValidation)
	}
	return true, nil
}

// BothConfirmed reports whether both parties have confirmed completion.
func (r *Reservation) BothConfirmed() bool {
	return r.ConfirmedByProvider && r.ConfirmedByRequester
}

// Finalize closes a reservation both parties confirmed.
func (r *Reservation) Finalize() error {
	if !r.BothConfirmed() {
		return NewServiceError(ErrInvalidState,
			fmt.Sprintf("reservation %d is missing a confirmation", r.ID), CodeInvalidState)
	}
	if err := r.transition(ReservationFinalized); err != nil {
		return err
	}
	r.Effected = true
	return nil
}

// Reprice recomputes the amounts of a reservation that is still awaiting payment.
func (r *Reservation) Reprice(unitPrice, commissionPct decimal.Decimal) error {
	if r.State != ReservationPendingPayment {
		return NewServiceError(ErrInvalidState,
			fmt.Sprintf("reservation %d is %s", r.ID, r.State), CodeInvalidState)
	}
	pricing, err := CalculatePricing(unitPrice, r.Quantity, commissionPct)
	if err != nil {
		return err
	}
	r.applyPricing(pricing)
	return nil
}

func (r *Reservation) applyPricing(p Pricing) {
	r.UnitPrice = p.UnitPrice
	r.Quantity = p.Quantity
	r.Subtotal = p.Subtotal
	r.Commission = p.Commission
	r.Total = p.Total
}

// EscrowSnapshot is the reservation, its payment and any payout order as
// loaded inside one storage transaction.
type EscrowSnapshot struct {
	Reservation *Reservation
	Payment     *Payment
	Payout      *PayoutOrder
}

// EscrowMutation changes a snapshot in place. Returning an error rolls the
// transaction back.
type EscrowMutation func(s *EscrowSnapshot) error

// ReservationView is what a party sees of a reservation.
type ReservationView struct {
	Reservation
	Role    PartyRole `json:"role"`
	Payment *Payment  `json:"payment,omitempty"`
}

// NewReservationView scopes a reservation to the caller's role. Only the
// requester sees the pay link.
func NewReservationView(r *Reservation, p *Payment, role PartyRole) *ReservationView {
	view := &ReservationView{Reservation: *r, Role: role}
	if p != nil {
		pc := *p
		if role != RoleRequester {
			pc.PayLink = ""
			pc.SandboxPayLink = ""
		}
		view.Payment = &pc
	}
	return view
}

package domain

// ReservationState is the lifecycle state of a reservation.
type ReservationState string

const (
	ReservationPendingPayment ReservationState = "PENDING_PAYMENT"
	ReservationPaid           ReservationState = "PAID"
	ReservationInProgress     ReservationState = "IN_PROGRESS"
	ReservationFinalized      ReservationState = "FINALIZED"
	ReservationCancelled      ReservationState = "CANCELLED"
)

var reservationTransitions = map[ReservationState][]ReservationState{
	ReservationPendingPayment: {ReservationPaid, ReservationCancelled},
	ReservationPaid:           {ReservationInProgress, ReservationFinalized},
	ReservationInProgress:     {ReservationFinalized},
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s ReservationState) CanTransitionTo(next ReservationState) bool {
	for _, allowed := range reservationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s ReservationState) IsTerminal() bool {
	return s == ReservationFinalized || s == ReservationCancelled
}

// IsPaid reports whether the payment for the reservation has been captured.
func (s ReservationState) IsPaid() bool {
	return s == ReservationPaid || s == ReservationInProgress || s == ReservationFinalized
}

func (s ReservationState) Valid() bool {
	switch s {
	case ReservationPendingPayment, ReservationPaid, ReservationInProgress, ReservationFinalized, ReservationCancelled:
		return true
	}
	return false
}

// PaymentStatus is the escrow status of a payment. It only moves forward.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentReleased PaymentStatus = "RELEASED"
)

var paymentRank = map[PaymentStatus]int{
	PaymentPending:  0,
	PaymentPaid:     1,
	PaymentReleased: 2,
}

// CanAdvanceTo reports whether next is the direct successor of s.
func (s PaymentStatus) CanAdvanceTo(next PaymentStatus) bool {
	cur, ok := paymentRank[s]
	if !ok {
		return false
	}
	n, ok := paymentRank[next]
	return ok && n == cur+1
}

// AtLeast reports whether s is other or a later status.
func (s PaymentStatus) AtLeast(other PaymentStatus) bool {
	return paymentRank[s] >= paymentRank[other]
}

// PartyRole identifies which side of a reservation an actor is on.
type PartyRole string

const (
	RoleRequester PartyRole = "requester"
	RoleProvider  PartyRole = "provider"
)

func (r PartyRole) Valid() bool {
	return r == RoleRequester || r == RoleProvider
}

// Counterpart returns the other side of the reservation.
func (r PartyRole) Counterpart() PartyRole {
	if r == RoleProvider {
		return RoleRequester
	}
	return RoleProvider
}

// SignatureOutcome is the result of verifying a webhook signature.
type SignatureOutcome string

const (
	SignatureVerified           SignatureOutcome = "verified"
	SignatureUnverifiedNoSecret SignatureOutcome = "unverified_no_secret"
	SignatureInvalid            SignatureOutcome = "invalid"
)

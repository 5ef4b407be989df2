package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// NewPendingPayment creates the escrow payment row for a reservation.
func NewPendingPayment(r *Reservation, currency, destination string) *Payment {
	return &Payment{
		ReservationID:     r.ID,
		Amount:            r.Total,
		Currency:          currency,
		Status:            PaymentPending,
		PayoutDestination: destination,
	}
}

// Reissue points a pending payment at a freshly created checkout.
func (p *Payment) Reissue(pref *Preference, externalReference string, amount decimal.Decimal, destination string) error {
	if p.Status != PaymentPending {
		return NewServiceError(ErrInvalidState,
			fmt.Sprintf("payment %d is %s", p.ID, p.Status), CodeInvalidState)
	}
	p.PreferenceID = pref.ID
	p.PayLink = pref.InitPoint
	p.SandboxPayLink = pref.SandboxInitPoint
	p.ExternalReference = externalReference
	p.Amount = amount
	p.PayoutDestination = destination
	return nil
}

// ApplyGatewayResult records the gateway's view of the payment. Only an
// approved result advances a PENDING payment; anything else never moves the
// status backwards. It reports whether the status changed.
func (p *Payment) ApplyGatewayResult(gatewayPaymentID string, approved bool, at time.Time) bool {
	if p.Status != PaymentPending {
		return false
	}
	if gatewayPaymentID != "" {
		id := gatewayPaymentID
		p.GatewayPaymentID = &id
	}
	if !approved {
		return false
	}
	p.Status = PaymentPaid
	paidAt := at
	p.PaidAt = &paidAt
	return true
}

// IsOtherCapture reports whether gatewayPaymentID is a different capture
// than the one already recorded on a settled payment.
func (p *Payment) IsOtherCapture(gatewayPaymentID string) bool {
	if p.Status == PaymentPending || gatewayPaymentID == "" {
		return false
	}
	return p.GatewayID() != gatewayPaymentID
}

// GatewayID returns the recorded gateway payment id, or "" when none is set.
func (p *Payment) GatewayID() string {
	if p.GatewayPaymentID == nil {
		return ""
	}
	return *p.GatewayPaymentID
}

// Release moves a captured payment to RELEASED.
func (p *Payment) Release(at time.Time) error {
	if !p.Status.CanAdvanceTo(PaymentReleased) {
		return NewServiceError(ErrInvalidState,
			fmt.Sprintf("payment %d is %s and cannot be released", p.ID, p.Status), CodeInvalidState)
	}
	p.Status = PaymentReleased
	releasedAt := at
	p.ReleasedAt = &releasedAt
	return nil
}

// NewPayoutOrder builds the outbox row for a released payment.
func NewPayoutOrder(p *Payment, commissionPct decimal.Decimal, idempotencyKey string, now time.Time) (*PayoutOrder, error) {
	if p.Status != PaymentReleased {
		return nil, NewServiceError(ErrInvalidState,
			fmt.Sprintf("payment %d is %s", p.ID, p.Status), CodeInvalidState)
	}
	if p.PayoutDestination == "" {
		return nil, NewServiceError(ErrPayoutDestinationMissing,
			fmt.Sprintf("payment %d has no payout destination", p.ID), CodePayoutDestinationMissing)
	}
	return &PayoutOrder{
		ReservationID:  p.ReservationID,
		PaymentID:      p.ID,
		Destination:    p.PayoutDestination,
		Gross:          p.Amount,
		Net:            NetPayout(p.Amount, commissionPct),
		Currency:       p.Currency,
		Status:         PayoutPending,
		NextAttemptAt:  now,
		IdempotencyKey: idempotencyKey,
	}, nil
}

// Reference is the transfer reference sent with the payout.
func (o *PayoutOrder) Reference() string {
	return fmt.Sprintf("payout-reservation-%d", o.ReservationID)
}

// PayoutBackoff is the delay before retry number attempt (1-based):
// 30s doubled per attempt, capped at one hour.
func PayoutBackoff(attempt int) time.Duration {
	const (
		base    = 30 * time.Second
		ceiling = time.Hour
	)
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	return d
}

package domain

import "time"

// Event names published to the broker.
const (
	EventReservationCreated   = "reservation.created"
	EventReservationCancelled = "reservation.cancelled"
	EventPaymentApproved      = "payment.approved"
	EventReservationFinalized = "reservation.finalized"
	EventPayoutSent           = "payout.sent"
	EventPayoutFailed         = "payout.failed"
)

// ReservationEvent is the lifecycle message consumed by the notification service.
type ReservationEvent struct {
	Type          string           `json:"type"`
	ReservationID int64            `json:"reservation_id"`
	RequesterID   int64            `json:"requester_id"`
	ProviderID    int64            `json:"provider_id"`
	State         ReservationState `json:"state"`
	PaymentStatus PaymentStatus    `json:"payment_status,omitempty"`
	Amount        string           `json:"amount,omitempty"`
	Currency      string           `json:"currency,omitempty"`
	OccurredAt    time.Time        `json:"occurred_at"`
}

// NewReservationEvent builds an event from the current reservation and payment.
func NewReservationEvent(eventType string, r *Reservation, p *Payment, at time.Time) ReservationEvent {
	ev := ReservationEvent{
		Type:          eventType,
		ReservationID: r.ID,
		RequesterID:   r.RequesterID,
		ProviderID:    r.ProviderID,
		State:         r.State,
		Amount:        r.Total.StringFixed(2),
		OccurredAt:    at.UTC(),
	}
	if p != nil {
		ev.PaymentStatus = p.Status
		ev.Currency = p.Currency
	}
	return ev
}

// Webhook topics handled by the reconciler.
const (
	TopicPayment            = "payment"
	TopicMerchantOrder      = "merchant_order"
	TopicMerchantOrderWebhk = "topic_merchant_order_wh"
)

// WebhookNotification is a gateway notification normalized from query
// parameters and body.
type WebhookNotification struct {
	Topic      string
	ResourceID string
	Action     string
	Signature  string
	RequestID  string
}

// IsPayment reports whether the notification is about a payment.
func (n WebhookNotification) IsPayment() bool {
	return n.Topic == TopicPayment
}

// IsMerchantOrder reports whether the notification is about a merchant order.
func (n WebhookNotification) IsMerchantOrder() bool {
	return n.Topic == TopicMerchantOrder || n.Topic == TopicMerchantOrderWebhk
}

// WebhookResult is what the reconciler did with a notification.
type WebhookResult struct {
	Outcome          WebhookOutcome
	SignatureOutcome SignatureOutcome
	ReservationID    int64
	GatewayPaymentID string
}

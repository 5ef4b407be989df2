// Package domain contains the core business entities for the reservation and
// escrow service. This is the innermost layer; the only dependency is the
// decimal type used for money.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Reservation is a booked service between a requester and a provider for one subject.
type Reservation struct {
	ID                   int64            `gorm:"primaryKey" json:"id"`
	RequesterID          int64            `gorm:"not null;index" json:"requester_id"`
	RequesterAccountID   int64            `gorm:"not null" json:"-"`
	RequesterLinkedID    int64            `gorm:"not null;default:0" json:"-"`
	ProviderID           int64            `gorm:"not null;index" json:"provider_id"`
	ProviderAccountID    int64            `gorm:"not null" json:"-"`
	ProviderLinkedID     int64            `gorm:"not null;default:0" json:"-"`
	SubjectID            int64            `gorm:"not null" json:"subject_id"`
	ServiceID            int64            `gorm:"not null;index" json:"service_id"`
	ScheduledAt          time.Time        `gorm:"not null" json:"scheduled_at"`
	Quantity             int              `gorm:"not null;default:1" json:"quantity"`
	UnitPrice            decimal.Decimal  `gorm:"type:numeric(14,2);not null" json:"unit_price"`
	Subtotal             decimal.Decimal  `gorm:"type:numeric(14,2);not null" json:"subtotal"`
	Commission           decimal.Decimal  `gorm:"type:numeric(14,2);not null" json:"commission"`
	Total                decimal.Decimal  `gorm:"type:numeric(14,2);not null" json:"total"`
	State                ReservationState `gorm:"type:varchar(20);not null;index" json:"state"`
	ConfirmedByRequester bool             `gorm:"not null;default:false" json:"confirmed_by_requester"`
	ConfirmedByProvider  bool             `gorm:"not null;default:false" json:"confirmed_by_provider"`
	Effected             bool             `gorm:"not null;default:false" json:"effected"`
	ActiveKey            *string          `gorm:"size:128;uniqueIndex" json:"-"`
	Version              int64            `gorm:"not null;default:0" json:"-"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// Payment is the single escrow payment of a reservation.
type Payment struct {
	ID                int64           `gorm:"primaryKey" json:"id"`
	ReservationID     int64           `gorm:"not null;uniqueIndex" json:"reservation_id"`
	Amount            decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Currency          string          `gorm:"size:3;not null" json:"currency"`
	Status            PaymentStatus   `gorm:"type:varchar(20);not null;index" json:"status"`
	PayLink           string          `gorm:"type:text" json:"pay_link,omitempty"`
	SandboxPayLink    string          `gorm:"type:text" json:"sandbox_pay_link,omitempty"`
	PreferenceID      string          `gorm:"size:128;index" json:"preference_id,omitempty"`
	ExternalReference string          `gorm:"size:128;index" json:"external_reference,omitempty"`
	GatewayPaymentID  *string         `gorm:"size:64;index" json:"gateway_payment_id,omitempty"`
	PayoutDestination string          `gorm:"size:255" json:"-"`
	PaidAt            *time.Time      `json:"paid_at,omitempty"`
	ReleasedAt        *time.Time      `json:"released_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Review is one party's rating of a finalized reservation.
type Review struct {
	ID            int64     `gorm:"primaryKey" json:"id"`
	ReservationID int64     `gorm:"not null;uniqueIndex:ux_reviews_reservation_role,priority:1" json:"reservation_id"`
	Role          PartyRole `gorm:"type:varchar(16);not null;uniqueIndex:ux_reviews_reservation_role,priority:2" json:"role"`
	AuthorID      int64     `gorm:"not null" json:"author_id"`
	Rating        int       `gorm:"not null" json:"rating"`
	Comment       string    `gorm:"type:text" json:"comment,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// PayoutStatus is the delivery status of a payout order.
type PayoutStatus string

const (
	PayoutPending PayoutStatus = "PENDING"
	PayoutSending PayoutStatus = "SENDING"
	PayoutSent    PayoutStatus = "SENT"
	PayoutFailed  PayoutStatus = "FAILED"
	PayoutDead    PayoutStatus = "DEAD"
)

// PayoutOrder is the durable record of a payout owed to a provider. It is
// written in the same transaction that releases the payment.
type PayoutOrder struct {
	ID             int64           `gorm:"primaryKey" json:"id"`
	ReservationID  int64           `gorm:"not null;uniqueIndex" json:"reservation_id"`
	PaymentID      int64           `gorm:"not null" json:"payment_id"`
	Destination    string          `gorm:"size:255;not null" json:"destination"`
	Gross          decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"gross"`
	Net            decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"net"`
	Currency       string          `gorm:"size:3;not null" json:"currency"`
	Status         PayoutStatus    `gorm:"type:varchar(16);not null;index" json:"status"`
	Attempts       int             `gorm:"not null;default:0" json:"attempts"`
	NextAttemptAt  time.Time       `gorm:"not null;index" json:"next_attempt_at"`
	LockedUntil    *time.Time      `json:"locked_until,omitempty"`
	LastError      string          `gorm:"type:text" json:"last_error,omitempty"`
	IdempotencyKey string          `gorm:"size:64;not null;uniqueIndex" json:"idempotency_key"`
	TransferID     string          `gorm:"size:128" json:"transfer_id,omitempty"`
	SentAt         *time.Time      `json:"sent_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// WebhookOutcome is how a notification was handled.
type WebhookOutcome string

const (
	WebhookApplied           WebhookOutcome = "applied"
	WebhookDuplicate         WebhookOutcome = "duplicate"
	WebhookIgnored           WebhookOutcome = "ignored"
	WebhookNoApprovedPayment WebhookOutcome = "no_approved_payment"
	WebhookNotApproved       WebhookOutcome = "not_approved"
	WebhookUnreconciled      WebhookOutcome = "unreconciled"
	WebhookGatewayError      WebhookOutcome = "gateway_error"
	WebhookRejected          WebhookOutcome = "rejected"
)

// WebhookEvent is the audit row kept for every gateway notification.
// Unreconciled rows are the manual reconciliation queue.
type WebhookEvent struct {
	ID               int64            `gorm:"primaryKey" json:"id"`
	Topic            string           `gorm:"size:64;not null" json:"topic"`
	ResourceID       string           `gorm:"size:64;index" json:"resource_id"`
	RequestID        string           `gorm:"size:128" json:"request_id,omitempty"`
	SignatureOutcome SignatureOutcome `gorm:"type:varchar(32);not null" json:"signature_outcome"`
	Outcome          WebhookOutcome   `gorm:"type:varchar(32);not null;index" json:"outcome"`
	ReservationID    *int64           `gorm:"index" json:"reservation_id,omitempty"`
	Detail           string           `gorm:"type:text" json:"detail,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// Party is a resolved requester profile.
type Party struct {
	ID              int64
	AccountID       int64
	LinkedAccountID int64
}

// Provider is a resolved provider profile.
type Provider struct {
	ID                int64
	AccountID         int64
	LinkedAccountID   int64
	PayoutDestination string
}

// Subject is the pet a service is reserved for.
type Subject struct {
	ID      int64
	OwnerID int64
}

// Offering is a provider's service with its current unit price.
type Offering struct {
	ID         int64
	ProviderID int64
	Title      string
	UnitPrice  decimal.Decimal
}

// PreferenceRequest is what the gateway needs to build a hosted checkout.
type PreferenceRequest struct {
	Title             string
	Description       string
	Amount            decimal.Decimal
	Currency          string
	PayerEmail        string
	ExternalReference string
	Metadata          map[string]any
}

// Preference is a hosted checkout created at the gateway.
type Preference struct {
	ID               string
	InitPoint        string
	SandboxInitPoint string
}

// Gateway payment statuses this service acts on.
const (
	GatewayStatusApproved = "approved"
)

// GatewayPayment is a payment as reported by the gateway.
type GatewayPayment struct {
	ID                string
	Status            string
	StatusDetail      string
	ExternalReference string
	PreferenceID      string
	Metadata          map[string]any
	Amount            decimal.Decimal
	Currency          string
	PaymentMethod     string
	PayerEmail        string
}

// Approved reports whether the gateway captured the payment.
func (p *GatewayPayment) Approved() bool {
	return p.Status == GatewayStatusApproved
}

// GatewayOrder is a merchant order aggregating the payments of a preference.
type GatewayOrder struct {
	ID                string
	PreferenceID      string
	ExternalReference string
	Payments          []GatewayOrderPayment
}

// GatewayOrderPayment is a payment summary inside a merchant order.
type GatewayOrderPayment struct {
	ID     string
	Status string
}

// ApprovedPaymentID returns the first approved payment of the order.
func (o *GatewayOrder) ApprovedPaymentID() (string, bool) {
	for _, p := range o.Payments {
		if p.Status == GatewayStatusApproved && p.ID != "" {
			return p.ID, true
		}
	}
	return "", false
}

// TransferRequest is a payout handed to the transfer endpoint.
type TransferRequest struct {
	ReservationID  int64           `json:"reservation_id"`
	Destination    string          `json:"destination"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Reference      string          `json:"reference"`
	IdempotencyKey string          `json:"-"`
}

// TransferReceipt is the transfer endpoint's acknowledgement.
type TransferReceipt struct {
	TransferID string `json:"id"`
	Status     string `json:"status"`
}

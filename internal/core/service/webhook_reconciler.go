package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/petcare/petcare-payments/internal/core/domain"
	"github.com/petcare/petcare-payments/internal/core/ports"
)

// WebhookReconciler applies gateway notifications to local payments and reservations.
type WebhookReconciler struct {
	verifier      ports.WebhookVerifier
	gateway       ports.PaymentGateway
	reservations  ports.ReservationStore
	payments      ports.PaymentLedger
	eventLog      ports.WebhookEventLog
	publisher     ports.EventPublisher
	resolvers     []domain.ReservationResolver
	rejectInvalid bool
	opts          options
}

// NewWebhookReconciler creates a reconciler using the default resolver order.
func NewWebhookReconciler(
	verifier ports.WebhookVerifier,
	gateway ports.PaymentGateway,
	reservations ports.ReservationStore,
	payments ports.PaymentLedger,
	eventLog ports.WebhookEventLog,
	publisher ports.EventPublisher,
	rejectInvalid bool,
	opts ...Option,
) *WebhookReconciler {
	return &WebhookReconciler{
		verifier:      verifier,
		gateway:       gateway,
		reservations:  reservations,
		payments:      payments,
		eventLog:      eventLog,
		publisher:     publisher,
		resolvers:     domain.DefaultResolvers(),
		rejectInvalid: rejectInvalid,
		opts:          newOptions(opts),
	}
}

// Handle processes one notification. It only returns an error for a
// malformed notification or a rejected signature; every other outcome is
// reported in the result and recorded in the event log.
func (w *WebhookReconciler) Handle(ctx context.Context, n domain.WebhookNotification) (domain.WebhookResult, error) {
	n.Topic = strings.TrimSpace(n.Topic)
	n.ResourceID = strings.TrimSpace(n.ResourceID)
	if n.Topic == "" {
		return domain.WebhookResult{}, domain.NewServiceError(domain.ErrInvalidRequest,
			"notification type is required", domain.CodeValidation)
	}
	if (n.IsPayment() || n.IsMerchantOrder()) && n.ResourceID == "" {
		return domain.WebhookResult{}, domain.NewServiceError(domain.ErrInvalidRequest,
			"notification resource id is required", domain.CodeValidation)
	}

	// Step 1: Verify the signature
	result := domain.WebhookResult{SignatureOutcome: w.verifier.Verify(n.Signature, n.RequestID, n.ResourceID)}
	switch result.SignatureOutcome {
	case domain.SignatureInvalid:
		w.opts.loggerf("level=warn msg=\"webhook signature invalid\" topic=%s resource_id=%s request_id=%s",
			n.Topic, n.ResourceID, n.RequestID)
		if w.rejectInvalid {
			result.Outcome = domain.WebhookRejected
			w.record(ctx, n, result, "invalid signature")
			return result, domain.ErrWebhookValidationFailed
		}
	case domain.SignatureUnverifiedNoSecret:
		w.opts.loggerf("level=warn msg=\"webhook signature not checked, no secret configured\" topic=%s resource_id=%s",
			n.Topic, n.ResourceID)
	}

	// Step 2: Fetch the payment the notification is about
	var (
		gp     *domain.GatewayPayment
		detail string
	)
	switch {
	case n.IsPayment():
		p, err := w.gateway.GetPayment(ctx, n.ResourceID)
		if err != nil {
			return w.gatewayFailure(ctx, n, result, "get payment", err), nil
		}
		gp = p
	case n.IsMerchantOrder():
		order, err := w.gateway.GetMerchantOrder(ctx, n.ResourceID)
		if err != nil {
			return w.gatewayFailure(ctx, n, result, "get merchant order", err), nil
		}
		paymentID, ok := order.ApprovedPaymentID()
		if !ok {
			result.Outcome = domain.WebhookNoApprovedPayment
			w.record(ctx, n, result, fmt.Sprintf("merchant order %s has no approved payment", order.ID))
			return result, nil
		}
		p, err := w.gateway.GetPayment(ctx, paymentID)
		if err != nil {
			return w.gatewayFailure(ctx, n, result, "get payment", err), nil
		}
		if p.PreferenceID == "" {
			p.PreferenceID = order.PreferenceID
		}
		if p.ExternalReference == "" {
			p.ExternalReference = order.ExternalReference
		}
		gp = p
	default:
		w.opts.loggerf("level=info msg=\"webhook ignored\" topic=%s resource_id=%s", n.Topic, n.ResourceID)
		result.Outcome = domain.WebhookIgnored
		w.record(ctx, n, result, "")
		return result, nil
	}
	result.GatewayPaymentID = gp.ID

	// Step 3: Find the local payment
	payment, via := w.lookupPayment(ctx, gp)
	if payment == nil {
		w.opts.loggerf("level=warn msg=\"webhook unreconciled, manual reconciliation required\" topic=%s gateway_payment_id=%s external_reference=%q status=%s",
			n.Topic, gp.ID, gp.ExternalReference, gp.Status)
		result.Outcome = domain.WebhookUnreconciled
		w.record(ctx, n, result, "no local payment matches")
		return result, nil
	}
	result.ReservationID = payment.ReservationID

	if gp.Approved() && !gp.Amount.IsZero() && !gp.Amount.Equal(payment.Amount) {
		w.opts.loggerf("level=warn msg=\"gateway amount differs from payment amount\" reservation_id=%d gateway_amount=%s amount=%s",
			payment.ReservationID, gp.Amount.StringFixed(2), payment.Amount.StringFixed(2))
	}

	// Step 4: Apply the result under the reservation lock
	var changed, cancelled, secondCapture bool
	snap, err := updateWithRetry(ctx, w.reservations, payment.ReservationID, func(snap *domain.EscrowSnapshot) error {
		changed, cancelled, secondCapture = false, false, false
		if snap.Payment == nil {
			return domain.NewServiceError(domain.ErrNotFound,
				fmt.Sprintf("reservation %d has no payment", snap.Reservation.ID), domain.CodeNotFound)
		}
		changed = snap.Payment.ApplyGatewayResult(gp.ID, gp.Approved(), w.opts.clock())
		if !changed {
			secondCapture = gp.Approved() && snap.Payment.IsOtherCapture(gp.ID)
			return nil
		}
		if snap.Reservation.State == domain.ReservationCancelled {
			cancelled = true
			return nil
		}
		_, err := snap.Reservation.MarkPaid()
		return err
	})
	if err != nil {
		w.opts.loggerf("level=error msg=\"webhook apply failed\" reservation_id=%d gateway_payment_id=%s err=%q",
			payment.ReservationID, gp.ID, err.Error())
		result.Outcome = domain.WebhookUnreconciled
		w.record(ctx, n, result, "apply failed: "+err.Error())
		return result, nil
	}

	switch {
	case !gp.Approved():
		result.Outcome = domain.WebhookNotApproved
		detail = "gateway status " + gp.Status
	case secondCapture:
		w.opts.loggerf("level=warn msg=\"second approved payment for paid reservation, manual reconciliation required\" reservation_id=%d gateway_payment_id=%s stored_gateway_payment_id=%s",
			payment.ReservationID, gp.ID, snap.Payment.GatewayID())
		result.Outcome = domain.WebhookUnreconciled
		detail = "second approved payment for paid reservation"
	case !changed:
		result.Outcome = domain.WebhookDuplicate
	case cancelled:
		w.opts.loggerf("level=warn msg=\"payment approved for cancelled reservation, manual reconciliation required\" reservation_id=%d gateway_payment_id=%s",
			payment.ReservationID, gp.ID)
		result.Outcome = domain.WebhookUnreconciled
		detail = "payment approved for cancelled reservation"
	default:
		result.Outcome = domain.WebhookApplied
		w.opts.loggerf("level=info msg=\"payment approved\" reservation_id=%d gateway_payment_id=%s matched_by=%s",
			payment.ReservationID, gp.ID, via)
		publish(ctx, w.opts, w.publisher,
			domain.NewReservationEvent(domain.EventPaymentApproved, snap.Reservation, snap.Payment, w.opts.clock()))
	}

	w.record(ctx, n, result, detail)
	return result, nil
}

// lookupPayment runs the resolver strategies in order, then falls back to
// the preference id and the gateway payment id.
func (w *WebhookReconciler) lookupPayment(ctx context.Context, gp *domain.GatewayPayment) (*domain.Payment, string) {
	for _, r := range w.resolvers {
		id, ok := r.Resolve(gp)
		if !ok {
			continue
		}
		p, err := w.payments.FindByReservation(ctx, id)
		if err == nil {
			return p, r.Name
		}
		if !errors.Is(err, domain.ErrNotFound) {
			w.opts.loggerf("level=error msg=\"payment lookup failed\" strategy=%s reservation_id=%d err=%q", r.Name, id, err.Error())
		}
	}

	if gp.PreferenceID != "" {
		if p, err := w.payments.FindByPreferenceID(ctx, gp.PreferenceID); err == nil {
			return p, "preference_id"
		}
	}
	if gp.ID != "" {
		if p, err := w.payments.FindByGatewayPaymentID(ctx, gp.ID); err == nil {
			return p, "gateway_payment_id"
		}
	}
	return nil, ""
}

func (w *WebhookReconciler) gatewayFailure(ctx context.Context, n domain.WebhookNotification, result domain.WebhookResult, op string, err error) domain.WebhookResult {
	w.opts.loggerf("level=error msg=\"webhook %s failed\" topic=%s resource_id=%s err=%q", op, n.Topic, n.ResourceID, err.Error())
	result.Outcome = domain.WebhookGatewayError
	w.record(ctx, n, result, op+": "+err.Error())
	return result
}

func (w *WebhookReconciler) record(ctx context.Context, n domain.WebhookNotification, result domain.WebhookResult, detail string) {
	if w.eventLog == nil {
		return
	}
	event := &domain.WebhookEvent{
		Topic:            n.Topic,
		ResourceID:       n.ResourceID,
		RequestID:        n.RequestID,
		SignatureOutcome: result.SignatureOutcome,
		Outcome:          result.Outcome,
		Detail:           detail,
	}
	if result.ReservationID != 0 {
		id := result.ReservationID
		event.ReservationID = &id
	}
	if err := w.eventLog.Record(ctx, event); err != nil {
		w.opts.loggerf("level=error msg=\"record webhook event failed\" topic=%s resource_id=%s err=%q",
			n.Topic, n.ResourceID, err.Error())
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/petcare/petcare-payments/internal/core/domain"
	"github.com/petcare/petcare-payments/internal/core/ports"
)

// ReservationService creates reservations and runs the lifecycle steps that
// happen outside payment and escrow.
type ReservationService struct {
	reservations  ports.ReservationStore
	payments      ports.PaymentLedger
	directory     ports.Directory
	publisher     ports.EventPublisher
	commissionPct decimal.Decimal
	defaultLead   time.Duration
	opts          options
}

// NewReservationService creates a new reservation service.
func NewReservationService(
	reservations ports.ReservationStore,
	payments ports.PaymentLedger,
	directory ports.Directory,
	publisher ports.EventPublisher,
	commissionPct decimal.Decimal,
	defaultLead time.Duration,
	opts ...Option,
) *ReservationService {
	return &ReservationService{
		reservations:  reservations,
		payments:      payments,
		directory:     directory,
		publisher:     publisher,
		commissionPct: commissionPct,
		defaultLead:   defaultLead,
		opts:          newOptions(opts),
	}
}

// CreateReservationInput is a booking request. CallerID, when set, must be
// the requester's account or its linked account.
type CreateReservationInput struct {
	CallerID    int64
	RequesterID int64
	ProviderID  int64
	SubjectID   int64
	ServiceID   int64
	ScheduledAt *time.Time
	Quantity    int
}

// CreateReservation validates the tuple, prices it and stores a
// PENDING_PAYMENT reservation.
func (s *ReservationService) CreateReservation(ctx context.Context, in CreateReservationInput) (*domain.Reservation, error) {
	if in.RequesterID <= 0 || in.ProviderID <= 0 || in.SubjectID <= 0 || in.ServiceID <= 0 {
		return nil, domain.NewServiceError(domain.ErrInvalidRequest,
			"requester_id, provider_id, subject_id and service_id are required", domain.CodeValidation)
	}
	if in.Quantity == 0 {
		in.Quantity = 1
	}

	requester, err := s.directory.GetRequester(ctx, in.RequesterID)
	if err != nil {
		return nil, err
	}
	if in.CallerID != 0 && in.CallerID != requester.AccountID && in.CallerID != requester.LinkedAccountID {
		return nil, domain.NewServiceError(domain.ErrForbidden,
			"caller cannot book for this requester", domain.CodeForbidden)
	}

	provider, err := s.directory.GetProvider(ctx, in.ProviderID)
	if err != nil {
		return nil, err
	}
	subject, err := s.directory.GetSubject(ctx, in.SubjectID)
	if err != nil {
		return nil, err
	}
	if subject.OwnerID != requester.ID {
		return nil, domain.NewServiceError(domain.ErrForbidden,
			fmt.Sprintf("pet %d does not belong to requester %d", subject.ID, requester.ID), domain.CodeForbidden)
	}
	offering, err := s.directory.GetOffering(ctx, provider.ID, in.ServiceID)
	if err != nil {
		return nil, err
	}
	if offering.ProviderID != provider.ID {
		return nil, domain.NewServiceError(domain.ErrNotFound,
			fmt.Sprintf("provider %d does not offer service %d", provider.ID, in.ServiceID), domain.CodeNotFound)
	}

	key := domain.ReservationKey{
		RequesterID: requester.ID,
		ProviderID:  provider.ID,
		SubjectID:   subject.ID,
		ServiceID:   offering.ID,
	}
	existing, err := s.reservations.FindActiveDuplicate(ctx, key)
	switch {
	case err == nil:
		return nil, domain.NewServiceError(domain.ErrConflict,
			fmt.Sprintf("reservation %d is already active for this pet and service", existing.ID), domain.CodeConflict)
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	pricing, err := domain.CalculatePricing(offering.UnitPrice, in.Quantity, s.commissionPct)
	if err != nil {
		return nil, err
	}

	scheduledAt := s.opts.clock().Add(s.defaultLead)
	if in.ScheduledAt != nil && !in.ScheduledAt.IsZero() {
		scheduledAt = in.ScheduledAt.UTC()
	}

	reservation := domain.NewReservation(requester, provider, subject, offering, scheduledAt, pricing)
	if err := s.reservations.Create(ctx, reservation); err != nil {
		return nil, err
	}

	s.opts.loggerf("level=info msg=\"reservation created\" reservation_id=%d requester_id=%d provider_id=%d total=%s",
		reservation.ID, reservation.RequesterID, reservation.ProviderID, reservation.Total.StringFixed(2))
	publish(ctx, s.opts, s.publisher, domain.NewReservationEvent(domain.EventReservationCreated, reservation, nil, s.opts.clock()))

	return reservation, nil
}

// GetReservation returns the caller's view of a reservation.
func (s *ReservationService) GetReservation(ctx context.Context, id, callerID int64) (*domain.ReservationView, error) {
	reservation, err := s.reservations.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	role, ok := reservation.RoleOf(callerID)
	if !ok {
		return nil, domain.NewServiceError(domain.ErrForbidden,
			fmt.Sprintf("caller is not a party to reservation %d", id), domain.CodeForbidden)
	}

	payment, err := s.payments.FindByReservation(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	return domain.NewReservationView(reservation, payment, role), nil
}

// ListReservations lists a party's reservations. The caller must act for that party.
func (s *ReservationService) ListReservations(ctx context.Context, callerID int64, role domain.PartyRole, partyID int64, limit, offset int) ([]domain.Reservation, error) {
	if !role.Valid() || partyID <= 0 {
		return nil, domain.NewServiceError(domain.ErrInvalidRequest, "role and party_id are required", domain.CodeValidation)
	}

	var accountID, linkedID int64
	switch role {
	case domain.RoleRequester:
		p, err := s.directory.GetRequester(ctx, partyID)
		if err != nil {
			return nil, err
		}
		accountID, linkedID = p.AccountID, p.LinkedAccountID
	case domain.RoleProvider:
		p, err := s.directory.GetProvider(ctx, partyID)
		if err != nil {
			return nil, err
		}
		accountID, linkedID = p.AccountID, p.LinkedAccountID
	}
	if callerID == 0 || (callerID != accountID && callerID != linkedID) {
		return nil, domain.NewServiceError(domain.ErrForbidden, "caller cannot list these reservations", domain.CodeForbidden)
	}

	return s.reservations.ListByParty(ctx, role, partyID, limit, offset)
}

// RepriceOffering applies a provider's new unit price to every reservation
// of that service still awaiting payment. It returns how many were repriced.
func (s *ReservationService) RepriceOffering(ctx context.Context, providerID, serviceID int64, unitPrice decimal.Decimal) (int, error) {
	if unitPrice.IsNegative() {
		return 0, domain.NewServiceError(domain.ErrInvalidAmount, "unit price must not be negative", domain.CodeInvalidAmount)
	}

	ids, err := s.reservations.ListPendingByOffering(ctx, providerID, serviceID)
	if err != nil {
		return 0, err
	}

	repriced := 0
	for _, id := range ids {
		changed := false
		_, err := updateWithRetry(ctx, s.reservations, id, func(snap *domain.EscrowSnapshot) error {
			changed = false
			if snap.Reservation.State != domain.ReservationPendingPayment {
				return nil
			}
			if err := snap.Reservation.Reprice(unitPrice, s.commissionPct); err != nil {
				return err
			}
			if snap.Payment != nil && snap.Payment.Status == domain.PaymentPending {
				snap.Payment.Amount = snap.Reservation.Total
			}
			changed = true
			return nil
		})
		if err != nil {
			return repriced, fmt.Errorf("reprice reservation %d: %w", id, err)
		}
		if changed {
			repriced++
		}
	}

	s.opts.loggerf("level=info msg=\"offering repriced\" provider_id=%d service_id=%d unit_price=%s reservations=%d",
		providerID, serviceID, unitPrice.StringFixed(2), repriced)
	return repriced, nil
}

// CancelReservation cancels an unpaid reservation on behalf of either party.
func (s *ReservationService) CancelReservation(ctx context.Context, id, callerID int64) (*domain.Reservation, error) {
	snap, err := updateWithRetry(ctx, s.reservations, id, func(snap *domain.EscrowSnapshot) error {
		if _, ok := snap.Reservation.RoleOf(callerID); !ok {
			return domain.NewServiceError(domain.ErrForbidden,
				fmt.Sprintf("caller is not a party to reservation %d", id), domain.CodeForbidden)
		}
		return snap.Reservation.Cancel()
	})
	if err != nil {
		return nil, err
	}

	s.opts.loggerf("level=info msg=\"reservation cancelled\" reservation_id=%d", id)
	publish(ctx, s.opts, s.publisher, domain.NewReservationEvent(domain.EventReservationCancelled, snap.Reservation, snap.Payment, s.opts.clock()))
	return snap.Reservation, nil
}

// StartService marks a paid reservation as in progress. Only the provider may start it.
func (s *ReservationService) StartService(ctx context.Context, id, callerID int64) (*domain.Reservation, error) {
	snap, err := updateWithRetry(ctx, s.reservations, id, func(snap *domain.EscrowSnapshot) error {
		if err := snap.Reservation.AuthorizeAs(callerID, domain.RoleProvider); err != nil {
			return err
		}
		return snap.Reservation.Start()
	})
	if err != nil {
		return nil, err
	}
	return snap.Reservation, nil
}

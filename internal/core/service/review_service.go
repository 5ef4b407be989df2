package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/petcare/petcare-payments/internal/core/domain"
	"github.com/petcare/petcare-payments/internal/core/ports"
)

// ReviewService gates and stores post-service reviews.
type ReviewService struct {
	reservations ports.ReservationStore
	reviews      ports.ReviewStore
	opts         options
}

// NewReviewService creates a new review service.
func NewReviewService(reservations ports.ReservationStore, reviews ports.ReviewStore, opts ...Option) *ReviewService {
	return &ReviewService{
		reservations: reservations,
		reviews:      reviews,
		opts:         newOptions(opts),
	}
}

// Eligibility is the review gate as seen by one caller.
type Eligibility struct {
	ReservationID int64            `json:"reservation_id"`
	Role          domain.PartyRole `json:"role"`
	CanReview     bool             `json:"can_review"`
}

// CanReview evaluates the gate for a role.
func (s *ReviewService) CanReview(ctx context.Context, reservationID int64, role domain.PartyRole) (bool, error) {
	reservation, err := s.reservations.FindByID(ctx, reservationID)
	if err != nil {
		return false, err
	}
	reviewed, err := s.reviews.ExistsForRole(ctx, reservationID, role)
	if err != nil {
		return false, err
	}
	return domain.CanReview(reservation, role, reviewed), nil
}

// Eligibility evaluates the gate for the caller's role in the reservation.
func (s *ReviewService) Eligibility(ctx context.Context, reservationID, callerID int64) (*Eligibility, error) {
	reservation, err := s.reservations.FindByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	role, ok := reservation.RoleOf(callerID)
	if !ok {
		return nil, domain.NewServiceError(domain.ErrForbidden,
			fmt.Sprintf("caller is not a party to reservation %d", reservationID), domain.CodeForbidden)
	}
	reviewed, err := s.reviews.ExistsForRole(ctx, reservationID, role)
	if err != nil {
		return nil, err
	}
	return &Eligibility{
		ReservationID: reservationID,
		Role:          role,
		CanReview:     domain.CanReview(reservation, role, reviewed),
	}, nil
}

// SubmitReviewInput is a review written by one party.
type SubmitReviewInput struct {
	ReservationID int64
	CallerID      int64
	Role          domain.PartyRole
	Rating        int
	Comment       string
}

// SubmitReview stores a review. A role reviews a reservation at most once,
// and only after it is finalized and effected.
func (s *ReviewService) SubmitReview(ctx context.Context, in SubmitReviewInput) (*domain.Review, error) {
	if !in.Role.Valid() {
		return nil, domain.NewServiceError(domain.ErrInvalidRequest,
			"role must be requester or provider", domain.CodeValidation)
	}
	reservation, err := s.reservations.FindByID(ctx, in.ReservationID)
	if err != nil {
		return nil, err
	}
	if err := reservation.AuthorizeAs(in.CallerID, in.Role); err != nil {
		return nil, err
	}

	reviewed, err := s.reviews.ExistsForRole(ctx, reservation.ID, in.Role)
	if err != nil {
		return nil, err
	}
	if reviewed {
		return nil, domain.NewServiceError(domain.ErrConflict,
			fmt.Sprintf("%s already reviewed reservation %d", in.Role, reservation.ID), domain.CodeConflict)
	}
	if !domain.CanReview(reservation, in.Role, false) {
		return nil, domain.NewServiceError(domain.ErrInvalidState,
			fmt.Sprintf("reservation %d is not finalized", reservation.ID), domain.CodeInvalidState)
	}

	review, err := domain.NewReview(reservation.ID, in.Role, in.CallerID, in.Rating, strings.TrimSpace(in.Comment))
	if err != nil {
		return nil, err
	}
	if err := s.reviews.Create(ctx, review); err != nil {
		return nil, err
	}

	s.opts.loggerf("level=info msg=\"review submitted\" reservation_id=%d role=%s rating=%d",
		reservation.ID, review.Role, review.Rating)
	return review, nil
}

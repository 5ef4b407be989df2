package domain

import "fmt"

const (
	MinRating = 1
	MaxRating = 5
)

// CanReview reports whether role may review the reservation: it must be
// finalized and effected, and that role must not have reviewed it yet.
func CanReview(r *Reservation, role PartyRole, alreadyReviewed bool) bool {
	if r == nil || !role.Valid() {
		return false
	}
	return r.State == ReservationFinalized && r.Effected && !alreadyReviewed
}

// NewReview validates and builds a review.
func NewReview(reservationID int64, role PartyRole, authorID int64, rating int, comment string) (*Review, error) {
	if !role.Valid() {
		return nil, NewServiceError(ErrInvalidRequest, "unknown role "+string(role), CodeValidation)
	}
	if rating < MinRating || rating > MaxRating {
		return nil, NewServiceError(ErrInvalidRequest,
			fmt.Sprintf("rating must be between %d and %d", MinRating, MaxRating), CodeValidation)
	}
	return &Review{
		ReservationID: reservationID,
		Role:          role,
		AuthorID:      authorID,
		Rating:        rating,
		Comment:       comment,
	}, nil
}

package storage

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/petcare/petcare-payments/internal/core/domain"
)

type ReviewRepository struct {
	db *gorm.DB
}

func NewReviewRepository(db *gorm.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

func (r *ReviewRepository) Create(ctx context.Context, review *domain.Review) error {
	if err := r.db.WithContext(ctx).Create(review).Error; err != nil {
		if isUniqueConstraintError(err) {
			return domain.NewServiceError(domain.ErrConflict,
				fmt.Sprintf("%s already reviewed reservation %d", review.Role, review.ReservationID), domain.CodeConflict)
		}
		return err
	}
	return nil
}

func (r *ReviewRepository) ExistsForRole(ctx context.Context, reservationID int64, role domain.PartyRole) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Review{}).
		Where("reservation_id = ? AND role = ?", reservationID, role).
		Count(&count).Error
	return count > 0, err
}

func (r *ReviewRepository) ListByReservation(ctx context.Context, reservationID int64) ([]domain.Review, error) {
	var list []domain.Review
	err := r.db.WithContext(ctx).
		Where("reservation_id = ?", reservationID).
		Order("id").
		Find(&list).Error
	return list, err
}

package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/petcare/petcare-payments/internal/core/domain"
)

// PayoutRepository implements ports.PayoutOutbox.
type PayoutRepository struct {
	db *gorm.DB
}

func NewPayoutRepository(db *gorm.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

func (r *PayoutRepository) FindByReservation(ctx context.Context, reservationID int64) (*domain.PayoutOrder, error) {
	var order domain.PayoutOrder
	if err := r.db.WithContext(ctx).Where("reservation_id = ?", reservationID).First(&order).Error; err != nil {
		return nil, notFound(err, "payout for reservation %d", reservationID)
	}
	return &order, nil
}

// claimable matches orders that are due, plus SENDING orders whose worker
// lease expired.
func claimable(db *gorm.DB, now time.Time) *gorm.DB {
	return db.Where(
		"((status IN ? AND next_attempt_at <= ?) OR (status = ? AND locked_until < ?))",
		[]domain.PayoutStatus{domain.PayoutPending, domain.PayoutFailed}, now,
		domain.PayoutSending, now,
	)
}

func (r *PayoutRepository) claim(where *gorm.DB, now time.Time, lease time.Duration) (bool, error) {
	lockedUntil := now.Add(lease)
	result := where.
		Model(&domain.PayoutOrder{}).
		Updates(map[string]any{
			"status":       domain.PayoutSending,
			"attempts":     gorm.Expr("attempts + 1"),
			"locked_until": lockedUntil,
			"updated_at":   now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *PayoutRepository) Claim(ctx context.Context, reservationID int64, now time.Time, lease time.Duration) (*domain.PayoutOrder, error) {
	where := claimable(r.db.WithContext(ctx).Where("reservation_id = ?", reservationID), now)
	ok, err := r.claim(where, now, lease)
	if err != nil {
		return nil, fmt.Errorf("claim payout for reservation %d: %w", reservationID, err)
	}
	if !ok {
		return nil, domain.NewServiceError(domain.ErrNotFound,
			fmt.Sprintf("no claimable payout for reservation %d", reservationID), domain.CodeNotFound)
	}
	return r.FindByReservation(ctx, reservationID)
}

func (r *PayoutRepository) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]domain.PayoutOrder, error) {
	if limit <= 0 {
		limit = 20
	}

	var ids []int64
	err := claimable(r.db.WithContext(ctx).Model(&domain.PayoutOrder{}), now).
		Order("next_attempt_at, id").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list due payouts: %w", err)
	}

	claimed := make([]domain.PayoutOrder, 0, len(ids))
	for _, id := range ids {
		ok, err := r.claim(claimable(r.db.WithContext(ctx).Where("id = ?", id), now), now, lease)
		if err != nil {
			return claimed, fmt.Errorf("claim payout %d: %w", id, err)
		}
		if !ok {
			continue
		}
		var order domain.PayoutOrder
		if err := r.db.WithContext(ctx).First(&order, id).Error; err != nil {
			return claimed, err
		}
		claimed = append(claimed, order)
	}
	return claimed, nil
}

func (r *PayoutRepository) MarkSent(ctx context.Context, id int64, transferID string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&domain.PayoutOrder{}).
		Where("id = ? AND status = ?", id, domain.PayoutSending).
		Updates(map[string]any{
			"status":       domain.PayoutSent,
			"transfer_id":  transferID,
			"sent_at":      at,
			"locked_until": nil,
			"last_error":   "",
			"updated_at":   at,
		}).Error
}

func (r *PayoutRepository) MarkFailed(ctx context.Context, id int64, status domain.PayoutStatus, lastErr string, nextAttempt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&domain.PayoutOrder{}).
		Where("id = ? AND status = ?", id, domain.PayoutSending).
		Updates(map[string]any{
			"status":          status,
			"last_error":      lastErr,
			"next_attempt_at": nextAttempt,
			"locked_until":    nil,
			"updated_at":      time.Now().UTC(),
		}).Error
}

func (r *PayoutRepository) List(ctx context.Context, status domain.PayoutStatus, limit int) ([]domain.PayoutOrder, error) {
	if limit <= 0 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Order("id DESC").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var list []domain.PayoutOrder
	err := q.Find(&list).Error
	return list, err
}

func (r *PayoutRepository) Requeue(ctx context.Context, reservationID int64, now time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&domain.PayoutOrder{}).
		Where("reservation_id = ? AND status IN ?", reservationID, []domain.PayoutStatus{domain.PayoutFailed, domain.PayoutDead}).
		Updates(map[string]any{
			"status":          domain.PayoutPending,
			"attempts":        0,
			"next_attempt_at": now,
			"updated_at":      now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.NewServiceError(domain.ErrNotFound,
			fmt.Sprintf("no failed payout for reservation %d", reservationID), domain.CodeNotFound)
	}
	return nil
}

package storage

import (
	"context"

	"gorm.io/gorm"

	"github.com/petcare/petcare-payments/internal/core/domain"
)

// WebhookEventRepository implements ports.WebhookEventLog.
type WebhookEventRepository struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

func (r *WebhookEventRepository) Record(ctx context.Context, event *domain.WebhookEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *WebhookEventRepository) ListByOutcome(ctx context.Context, outcome domain.WebhookOutcome, limit int) ([]domain.WebhookEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var list []domain.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("outcome = ?", outcome).
		Order("id DESC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

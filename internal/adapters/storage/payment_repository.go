package storage

import (
	"context"

	"gorm.io/gorm"

	"github.com/petcare/petcare-payments/internal/core/domain"
)

// PaymentRepository implements ports.PaymentLedger. Writes go through
// ReservationRepository.UpdateInTx so they share the reservation's transaction.
type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) FindByReservation(ctx context.Context, reservationID int64) (*domain.Payment, error) {
	var p domain.Payment
	if err := r.db.WithContext(ctx).Where("reservation_id = ?", reservationID).First(&p).Error; err != nil {
		return nil, notFound(err, "payment for reservation %d", reservationID)
	}
	return &p, nil
}

func (r *PaymentRepository) FindByPreferenceID(ctx context.Context, preferenceID string) (*domain.Payment, error) {
	var p domain.Payment
	if err := r.db.WithContext(ctx).Where("preference_id = ?", preferenceID).First(&p).Error; err != nil {
		return nil, notFound(err, "payment for preference %s", preferenceID)
	}
	return &p, nil
}

func (r *PaymentRepository) FindByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (*domain.Payment, error) {
	var p domain.Payment
	if err := r.db.WithContext(ctx).Where("gateway_payment_id = ?", gatewayPaymentID).First(&p).Error; err != nil {
		return nil, notFound(err, "payment with gateway id %s", gatewayPaymentID)
	}
	return &p, nil
}

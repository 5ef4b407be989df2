package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/petcare/petcare-payments/internal/core/domain"
)

// ReservationRepository implements ports.ReservationStore.
type ReservationRepository struct {
	db *gorm.DB
}

func NewReservationRepository(db *gorm.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

// Create inserts the reservation. The unique active_key index rejects a
// second non-terminal reservation for the same tuple.
func (r *ReservationRepository) Create(ctx context.Context, res *domain.Reservation) error {
	if err := r.db.WithContext(ctx).Create(res).Error; err != nil {
		if isUniqueConstraintError(err) {
			return domain.NewServiceError(domain.ErrConflict,
				fmt.Sprintf("an active reservation already exists for %s", res.Key()), domain.CodeConflict)
		}
		return err
	}
	return nil
}

func (r *ReservationRepository) FindByID(ctx context.Context, id int64) (*domain.Reservation, error) {
	var res domain.Reservation
	if err := r.db.WithContext(ctx).First(&res, id).Error; err != nil {
		return nil, notFound(err, "reservation %d", id)
	}
	return &res, nil
}

func (r *ReservationRepository) FindActiveDuplicate(ctx context.Context, key domain.ReservationKey) (*domain.Reservation, error) {
	var res domain.Reservation
	err := r.db.WithContext(ctx).
		Where("active_key = ?", key.String()).
		First(&res).Error
	if err != nil {
		return nil, notFound(err, "active reservation %s", key)
	}
	return &res, nil
}

func (r *ReservationRepository) ListByParty(ctx context.Context, role domain.PartyRole, partyID int64, limit, offset int) ([]domain.Reservation, error) {
	column := "requester_id"
	if role == domain.RoleProvider {
		column = "provider_id"
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var list []domain.Reservation
	err := r.db.WithContext(ctx).
		Where(column+" = ?", partyID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&list).Error
	return list, err
}

func (r *ReservationRepository) ListPendingByOffering(ctx context.Context, providerID, serviceID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&domain.Reservation{}).
		Where("provider_id = ? AND service_id = ? AND state = ?", providerID, serviceID, domain.ReservationPendingPayment).
		Order("id").
		Pluck("id", &ids).Error
	return ids, err
}

// UpdateInTx runs fn against the locked reservation and persists every part
// of the snapshot in the same transaction. The reservation row is written
// with a version check so a lost race surfaces as domain.ErrConcurrentUpdate
// even where row locks are not available.
func (r *ReservationRepository) UpdateInTx(ctx context.Context, reservationID int64, fn domain.EscrowMutation) (*domain.EscrowSnapshot, error) {
	var snap *domain.EscrowSnapshot

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s, err := loadSnapshot(tx, reservationID)
		if err != nil {
			return err
		}
		version := s.Reservation.Version

		if err := fn(s); err != nil {
			return err
		}

		if err := saveReservation(tx, s.Reservation, version); err != nil {
			return err
		}
		if s.Payment != nil {
			if err := tx.Save(s.Payment).Error; err != nil {
				if isUniqueConstraintError(err) {
					return domain.NewServiceError(domain.ErrConflict,
						fmt.Sprintf("payment for reservation %d already exists", reservationID), domain.CodeConflict)
				}
				return fmt.Errorf("save payment: %w", err)
			}
		}
		if s.Payout != nil && s.Payout.ID == 0 {
			if err := tx.Create(s.Payout).Error; err != nil {
				if isUniqueConstraintError(err) {
					return domain.NewServiceError(domain.ErrConflict,
						fmt.Sprintf("payout for reservation %d already exists", reservationID), domain.CodeConflict)
				}
				return fmt.Errorf("create payout order: %w", err)
			}
		}

		snap = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func loadSnapshot(tx *gorm.DB, reservationID int64) (*domain.EscrowSnapshot, error) {
	var res domain.Reservation
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&res, reservationID).Error; err != nil {
		return nil, notFound(err, "reservation %d", reservationID)
	}
	s := &domain.EscrowSnapshot{Reservation: &res}

	var payment domain.Payment
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("reservation_id = ?", reservationID).
		First(&payment).Error
	switch {
	case err == nil:
		s.Payment = &payment
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("load payment: %w", err)
	}

	var order domain.PayoutOrder
	err = tx.Where("reservation_id = ?", reservationID).First(&order).Error
	switch {
	case err == nil:
		s.Payout = &order
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("load payout order: %w", err)
	}

	return s, nil
}

func saveReservation(tx *gorm.DB, res *domain.Reservation, version int64) error {
	now := time.Now().UTC()
	result := tx.Model(&domain.Reservation{}).
		Where("id = ? AND version = ?", res.ID, version).
		Updates(map[string]any{
			"state":                  res.State,
			"confirmed_by_requester": res.ConfirmedByRequester,
			"confirmed_by_provider":  res.ConfirmedByProvider,
			"effected":               res.Effected,
			"active_key":             res.ActiveKey,
			"quantity":               res.Quantity,
			"unit_price":             res.UnitPrice,
			"subtotal":               res.Subtotal,
			"commission":             res.Commission,
			"total":                  res.Total,
			"version":                version + 1,
			"updated_at":             now,
		})
	if result.Error != nil {
		if isUniqueConstraintError(result.Error) {
			return domain.NewServiceError(domain.ErrConflict,
				fmt.Sprintf("an active reservation already exists for %s", res.Key()), domain.CodeConflict)
		}
		return fmt.Errorf("save reservation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("reservation %d: %w", res.ID, domain.ErrConcurrentUpdate)
	}
	res.Version = version + 1
	res.UpdatedAt = now
	return nil
}

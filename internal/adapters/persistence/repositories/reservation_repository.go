package repositories

import (
	"context"
	"time"

	"school-library/internal/adapters/persistence/models"
	"school-library/internal/core/domain"

	"gorm.io/gorm"
)

// reservationRepository implements ReservationRepository interface
type reservationRepository struct {
	db *gorm.DB
}

// NewReservationRepository creates a new reservation repository
func NewReservationRepository(db *gorm.DB) ReservationRepository {
	return &reservationRepository{db: db}
}

func (r *reservationRepository) Create(ctx context.Context, reservation *models.Reservation) error {
	return r.db.WithContext(ctx).Omit("Member", "Item").Create(reservation).Error
}

func (r *reservationRepository) GetByID(ctx context.Context, id uint) (*models.Reservation, error) {
	var reservation models.Reservation
	err := r.db.WithContext(ctx).
		Preload("Member").
		Preload("Item", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Where("id = ?", id).
		First(&reservation).Error
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

// List lists reservations, oldest first so the queue order is visible
func (r *reservationRepository) List(ctx context.Context, filter ReservationFilter, offset, limit int) ([]*models.Reservation, int64, error) {
	var reservations []*models.Reservation
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Reservation{})
	if filter.MemberID != 0 {
		query = query.Where("member_id = ?", filter.MemberID)
	}
	if filter.ItemID != 0 {
		query = query.Where("item_id = ?", filter.ItemID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Preload("Member").
		Preload("Item", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Order("reserved_at ASC, id ASC").
		Offset(offset).Limit(limit).
		Find(&reservations).Error
	if err != nil {
		return nil, 0, err
	}
	return reservations, total, nil
}

func (r *reservationRepository) ListByMember(ctx context.Context, memberID uint) ([]*models.Reservation, error) {
	var reservations []*models.Reservation
	err := r.db.WithContext(ctx).
		Preload("Item", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Where("member_id = ?", memberID).
		Order("reserved_at DESC, id DESC").
		Find(&reservations).Error
	return reservations, err
}

func (r *reservationRepository) ListAll(ctx context.Context) ([]*models.Reservation, error) {
	var reservations []*models.Reservation
	err := r.db.WithContext(ctx).
		Preload("Member").
		Preload("Item", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Order("id ASC").
		Find(&reservations).Error
	return reservations, err
}

func (r *reservationRepository) ExistsActive(ctx context.Context, memberID, itemID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Reservation{}).
		Where("member_id = ? AND item_id = ? AND status = ?", memberID, itemID, domain.ReservationStatusActive).
		Count(&count).Error
	return count > 0, err
}

func (r *reservationRepository) Resolve(ctx context.Context, id uint, status string, at time.Time, loanID *uint) (bool, error) {
	updates := map[string]interface{}{
		"status":      status,
		"resolved_at": at,
	}
	if loanID != nil {
		updates["loan_id"] = *loanID
	}
	res := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("id = ? AND status = ?", id, domain.ReservationStatusActive).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CancelActiveByItem cancels the queue of an item being withdrawn
func (r *reservationRepository) CancelActiveByItem(ctx context.Context, itemID uint, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("item_id = ? AND status = ?", itemID, domain.ReservationStatusActive).
		Updates(map[string]interface{}{
			"status":      domain.ReservationStatusCancelled,
			"resolved_at": at,
		})
	return res.RowsAffected, res.Error
}

func (r *reservationRepository) DeleteByMember(ctx context.Context, memberID uint) error {
	return r.db.WithContext(ctx).Where("member_id = ?", memberID).Delete(&models.Reservation{}).Error
}

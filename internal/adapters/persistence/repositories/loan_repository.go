package repositories

import (
	"context"
	"time"

	"school-library/internal/adapters/persistence/models"
	"school-library/internal/core/domain"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// loanRepository implements LoanRepository interface
type loanRepository struct {
	db *gorm.DB
}

// NewLoanRepository creates a new loan repository
func NewLoanRepository(db *gorm.DB) LoanRepository {
	return &loanRepository{db: db}
}

func (r *loanRepository) Create(ctx context.Context, loan *models.Loan) error {
	return r.db.WithContext(ctx).Omit("Member", "Item").Create(loan).Error
}

// GetByID gets a loan with its member and item
func (r *loanRepository) GetByID(ctx context.Context, id uint) (*models.Loan, error) {
	var loan models.Loan
	err := r.db.WithContext(ctx).
		Preload("Member").
		Preload("Item", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Where("id = ?", id).
		First(&loan).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

// List lists loans, newest first
func (r *loanRepository) List(ctx context.Context, filter LoanFilter, offset, limit int) ([]*models.Loan, int64, error) {
	var loans []*models.Loan
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Loan{})
	if filter.MemberID != 0 {
		query = query.Where("member_id = ?", filter.MemberID)
	}
	if filter.ItemID != 0 {
		query = query.Where("item_id = ?", filter.ItemID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.OverdueAt != nil {
		query = query.Where("returned_at IS NULL AND due_at < ?", *filter.OverdueAt)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Preload("Member").
		Preload("Item", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Order("borrowed_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&loans).Error
	if err != nil {
		return nil, 0, err
	}
	return loans, total, nil
}

// ListByMember returns every loan of a member, open and returned
func (r *loanRepository) ListByMember(ctx context.Context, memberID uint) ([]*models.Loan, error) {
	var loans []*models.Loan
	err := r.db.WithContext(ctx).
		Preload("Item", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Where("member_id = ?", memberID).
		Order("borrowed_at DESC, id DESC").
		Find(&loans).Error
	return loans, err
}

func (r *loanRepository) ListOpen(ctx context.Context) ([]*models.Loan, error) {
	var loans []*models.Loan
	err := r.db.WithContext(ctx).
		Where("returned_at IS NULL").
		Order("id ASC").
		Find(&loans).Error
	return loans, err
}

func (r *loanRepository) ListAll(ctx context.Context) ([]*models.Loan, error) {
	var loans []*models.Loan
	err := r.db.WithContext(ctx).
		Preload("Member").
		Preload("Item", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Order("id ASC").
		Find(&loans).Error
	return loans, err
}

func (r *loanRepository) CountOpenByMember(ctx context.Context, memberID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Loan{}).
		Where("member_id = ? AND returned_at IS NULL", memberID).
		Count(&count).Error
	return count, err
}

func (r *loanRepository) CountOpenByItem(ctx context.Context, itemID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Loan{}).
		Where("item_id = ? AND returned_at IS NULL", itemID).
		Count(&count).Error
	return count, err
}

// Close records the return. It reports false when the loan was already closed.
func (r *loanRepository) Close(ctx context.Context, id uint, returnedAt time.Time, fine decimal.Decimal) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("id = ? AND returned_at IS NULL", id).
		Updates(map[string]interface{}{
			"returned_at": returnedAt,
			"status":      domain.LoanStatusReturned,
			"fine":        fine,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Renew bumps the renewal count from renewals to renewals+1 and moves the
// due date. It reports false when another renewal or a return got there first.
func (r *loanRepository) Renew(ctx context.Context, id uint, renewals int, dueAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("id = ? AND returned_at IS NULL AND renewals = ?", id, renewals).
		Updates(map[string]interface{}{
			"renewals": renewals + 1,
			"due_at":   dueAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateFine stores the accrued fine of an open loan
func (r *loanRepository) UpdateFine(ctx context.Context, id uint, fine decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("id = ? AND returned_at IS NULL", id).
		Update("fine", fine).Error
}

func (r *loanRepository) SettleFine(ctx context.Context, id uint, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Loan{}).
		Where("id = ? AND fine_settled_at IS NULL", id).
		Update("fine_settled_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *loanRepository) DeleteByMember(ctx context.Context, memberID uint) error {
	return r.db.WithContext(ctx).Where("member_id = ?", memberID).Delete(&models.Loan{}).Error
}

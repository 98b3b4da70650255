package repositories

import (
	"context"
	"strings"

	"school-library/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

// itemSortOrders maps accepted sort keys to ORDER BY clauses
var itemSortOrders = map[string]string{
	"":       "title ASC",
	"title":  "title ASC",
	"-title": "title DESC",
	"author": "author ASC",
	"year":   "publication_year ASC",
	"-year":  "publication_year DESC",
	"newest": "created_at DESC",
}

// itemRepository implements ItemRepository interface
type itemRepository struct {
	db *gorm.DB
}

// NewItemRepository creates a new item repository
func NewItemRepository(db *gorm.DB) ItemRepository {
	return &itemRepository{db: db}
}

func (r *itemRepository) Create(ctx context.Context, item *models.Item) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *itemRepository) GetByID(ctx context.Context, id uint) (*models.Item, error) {
	var item models.Item
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *itemRepository) Update(ctx context.Context, item *models.Item) error {
	return r.db.WithContext(ctx).Save(item).Error
}

// Delete soft deletes an item so loan history keeps its reference
func (r *itemRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Item{}, id).Error
}

// List filters the catalog
func (r *itemRepository) List(ctx context.Context, filter ItemFilter, offset, limit int) ([]*models.Item, int64, error) {
	var items []*models.Item
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Item{})
	if filter.Search != "" {
		like := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where(
			"LOWER(title) LIKE ? OR LOWER(author) LIKE ? OR LOWER(summary) LIKE ? OR isbn LIKE ?",
			like, like, like, like,
		)
	}
	if filter.Category != "" {
		query = query.Where("LOWER(category) = ?", strings.ToLower(filter.Category))
	}
	if filter.Author != "" {
		query = query.Where("LOWER(author) LIKE ?", "%"+strings.ToLower(filter.Author)+"%")
	}
	if filter.Available != nil {
		query = query.Where("available = ?", *filter.Available)
	}
	if filter.YearFrom > 0 {
		query = query.Where("publication_year >= ?", filter.YearFrom)
	}
	if filter.YearTo > 0 {
		query = query.Where("publication_year <= ?", filter.YearTo)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order, ok := itemSortOrders[filter.Sort]
	if !ok {
		order = itemSortOrders[""]
	}

	if err := query.Order(order).Order("id ASC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *itemRepository) ListAll(ctx context.Context) ([]*models.Item, error) {
	var items []*models.Item
	err := r.db.WithContext(ctx).Order("id ASC").Find(&items).Error
	return items, err
}

// Categories returns the distinct non-empty categories
func (r *itemRepository) Categories(ctx context.Context) ([]string, error) {
	var categories []string
	err := r.db.WithContext(ctx).
		Model(&models.Item{}).
		Where("category <> ''").
		Distinct().
		Order("category ASC").
		Pluck("category", &categories).Error
	return categories, err
}

func (r *itemRepository) ExistsByISBN(ctx context.Context, isbn string, excludeID uint) (bool, error) {
	var count int64
	query := r.db.WithContext(ctx).Unscoped().Model(&models.Item{}).Where("isbn = ?", isbn)
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}
	err := query.Count(&count).Error
	return count > 0, err
}

func (r *itemRepository) MarkUnavailable(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Item{}).
		Where("id = ? AND available = ?", id, true).
		Update("available", false)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *itemRepository) MarkAvailable(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).
		Model(&models.Item{}).
		Where("id = ?", id).
		Update("available", true).Error
}

package repositories

import (
	"context"

	"school-library/internal/adapters/persistence/models"

	"gorm.io/gorm"
)

// policyRepository implements PolicyRepository interface
type policyRepository struct {
	db *gorm.DB
}

// NewPolicyRepository creates a new policy repository
func NewPolicyRepository(db *gorm.DB) PolicyRepository {
	return &policyRepository{db: db}
}

// Get returns the singleton row or gorm.ErrRecordNotFound
func (r *policyRepository) Get(ctx context.Context) (*models.PolicyConfig, error) {
	var policy models.PolicyConfig
	err := r.db.WithContext(ctx).Where("id = ?", models.PolicySingletonID).First(&policy).Error
	if err != nil {
		return nil, err
	}
	return &policy, nil
}

func (r *policyRepository) Create(ctx context.Context, policy *models.PolicyConfig) error {
	policy.ID = models.PolicySingletonID
	return r.db.WithContext(ctx).Create(policy).Error
}

func (r *policyRepository) Save(ctx context.Context, policy *models.PolicyConfig) error {
	policy.ID = models.PolicySingletonID
	return r.db.WithContext(ctx).Save(policy).Error
}

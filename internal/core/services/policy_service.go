package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"school-library/internal/adapters/persistence/models"
	"school-library/internal/adapters/persistence/repositories"
	"school-library/internal/core/domain"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PolicyService reads and updates the lending policy
type PolicyService struct {
	repo repositories.PolicyRepository
}

// NewPolicyService creates a new policy service
func NewPolicyService(repo repositories.PolicyRepository) *PolicyService {
	return &PolicyService{repo: repo}
}

// UpdatePolicyInput carries a partial policy update
type UpdatePolicyInput struct {
	MaxLoans             *int             `json:"max_loans"`
	LoanDurationDays     *int             `json:"loan_duration_days"`
	MaxRenewals          *int             `json:"max_renewals"`
	RenewalExtensionDays *int             `json:"renewal_extension_days"`
	DailyFineRate        *decimal.Decimal `json:"daily_fine_rate"`
}

// Current returns the stored policy, creating it with defaults on first use.
// It is read on every decision so updates apply immediately.
func (s *PolicyService) Current(ctx context.Context) (domain.Policy, error) {
	row, err := s.load(ctx)
	if err != nil {
		return domain.Policy{}, err
	}
	return row.ToDomain(), nil
}

func (s *PolicyService) load(ctx context.Context) (*models.PolicyConfig, error) {
	row, err := s.repo.Get(ctx)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load policy: %w", err)
	}

	row = &models.PolicyConfig{}
	row.Apply(domain.DefaultPolicy())
	if err := s.repo.Create(ctx, row); err != nil {
		// another request created it first
		existing, getErr := s.repo.Get(ctx)
		if getErr != nil {
			return nil, fmt.Errorf("create default policy: %w", err)
		}
		return existing, nil
	}

	log.Println("✅ Default loan policy created")
	return row, nil
}

// Update applies a partial update after validation
func (s *PolicyService) Update(ctx context.Context, actor domain.Actor, input *UpdatePolicyInput) (domain.Policy, error) {
	if !actor.Can(domain.CapManagePolicy) {
		return domain.Policy{}, domain.ErrForbidden
	}

	row, err := s.load(ctx)
	if err != nil {
		return domain.Policy{}, err
	}

	policy := row.ToDomain()
	if input.MaxLoans != nil {
		policy.MaxLoans = *input.MaxLoans
	}
	if input.LoanDurationDays != nil {
		policy.LoanDurationDays = *input.LoanDurationDays
	}
	if input.MaxRenewals != nil {
		policy.MaxRenewals = *input.MaxRenewals
	}
	if input.RenewalExtensionDays != nil {
		policy.RenewalExtensionDays = *input.RenewalExtensionDays
	}
	if input.DailyFineRate != nil {
		policy.DailyFineRate = *input.DailyFineRate
	}

	if err := policy.Validate(); err != nil {
		return domain.Policy{}, err
	}

	row.Apply(policy)
	updatedBy := actor.UserID
	row.UpdatedBy = &updatedBy
	if err := s.repo.Save(ctx, row); err != nil {
		return domain.Policy{}, fmt.Errorf("save policy: %w", err)
	}

	log.Printf("✅ Loan policy updated by %s: %+v", actor.Username, policy)
	return policy, nil
}

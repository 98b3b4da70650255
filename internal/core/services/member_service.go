package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"school-library/internal/adapters/persistence/models"
	"school-library/internal/adapters/persistence/repositories"
	"school-library/internal/core/domain"
	"school-library/internal/pkg/password"

	"gorm.io/gorm"
)

// Member service errors
var (
	ErrMemberHasOpenLoans   = errors.New("member still has items on loan")
	ErrMemberHasUnpaidFines = errors.New("member still has unpaid fines")
	ErrInvalidStatus        = errors.New("status must be Active or Inactive")
)

// MemberService manages the member registry
type MemberService struct {
	repos *repositories.Repositories
}

// NewMemberService creates a new member service
func NewMemberService(repos *repositories.Repositories) *MemberService {
	return &MemberService{repos: repos}
}

// CreateMemberInput represents a new member. With CreateAccount a linked,
// already confirmed login is created as well.
type CreateMemberInput struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	ClassGroup      string `json:"class_group"`
	Status          string `json:"status"`
	CreateAccount   bool   `json:"create_account"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// UpdateMemberInput represents a partial member update
type UpdateMemberInput struct {
	FirstName  *string `json:"first_name"`
	LastName   *string `json:"last_name"`
	Email      *string `json:"email"`
	Phone      *string `json:"phone"`
	ClassGroup *string `json:"class_group"`
	Status     *string `json:"status"`
}

// MemberCreated is the result of Create
type MemberCreated struct {
	Member *models.MemberResponse `json:"member"`
	User   *models.UserResponse   `json:"user,omitempty"`
	// GeneratedPassword is returned once when no password was given
	GeneratedPassword string `json:"generated_password,omitempty"`
}

// Create adds a member and optionally its login account. If the account
// cannot be created the member is removed again.
func (s *MemberService) Create(ctx context.Context, actor domain.Actor, input *CreateMemberInput) (*MemberCreated, error) {
	if !actor.Can(domain.CapManageMembers) {
		return nil, domain.ErrForbidden
	}

	// 1. Validate member fields
	if err := required("first_name", input.FirstName, "last_name", input.LastName, "email", input.Email); err != nil {
		return nil, err
	}
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	status, err := memberStatus(input.Status)
	if err != nil {
		return nil, err
	}

	taken, err := s.repos.Members.ExistsByEmail(ctx, email, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEmailAlreadyExists
	}

	// 2. Create member
	member := &models.Member{
		FirstName:  strings.TrimSpace(input.FirstName),
		LastName:   strings.TrimSpace(input.LastName),
		Email:      email,
		Phone:      strings.TrimSpace(input.Phone),
		ClassGroup: strings.TrimSpace(input.ClassGroup),
		Status:     status,
	}
	if err := s.repos.Members.Create(ctx, member); err != nil {
		return nil, fmt.Errorf("create member: %w", err)
	}
	result := &MemberCreated{Member: member.ToResponse()}

	if !input.CreateAccount {
		log.Printf("✅ Member created: %s (id %d)", member.FullName(), member.ID)
		return result, nil
	}

	// 3. Create the linked account, compensating on failure
	user, generated, err := s.createAccount(ctx, member, input)
	if err != nil {
		if derr := s.repos.Members.Delete(ctx, member.ID); derr != nil {
			log.Printf("❌ Failed to remove member %d after account error: %v", member.ID, derr)
		}
		return nil, err
	}
	user.Member = member
	result.User = user.ToResponse()
	result.GeneratedPassword = generated

	log.Printf("✅ Member created with account: %s (user %s)", member.FullName(), user.Username)
	return result, nil
}

func (s *MemberService) createAccount(ctx context.Context, member *models.Member, input *CreateMemberInput) (*models.User, string, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" {
		username = strings.SplitN(member.Email, "@", 2)[0]
	}
	username, err := validateUsername(username)
	if err != nil {
		return nil, "", err
	}

	secret, generated := input.Password, ""
	if secret == "" {
		secret = password.Random()
		generated = secret
	} else if err := validateNewPassword(input.Password, input.ConfirmPassword); err != nil {
		return nil, "", err
	}

	if err := checkAccountFree(ctx, s.repos, username, member.Email); err != nil {
		return nil, "", err
	}

	hashed, err := password.Hash(secret)
	if err != nil {
		return nil, "", err
	}
	user := &models.User{
		MemberID:  &member.ID,
		Username:  username,
		Email:     member.Email,
		Password:  hashed,
		Role:      domain.RoleMember.String(),
		IsActive:  true,
		Confirmed: true,
	}
	if err := s.repos.Users.Create(ctx, user); err != nil {
		return nil, "", fmt.Errorf("create account: %w", err)
	}
	return user, generated, nil
}

// Get returns one member
func (s *MemberService) Get(ctx context.Context, actor domain.Actor, id uint) (*models.Member, error) {
	if !actor.Owns(id) && !actor.Can(domain.CapManageMembers) {
		return nil, domain.ErrForbidden
	}
	member, err := s.repos.Members.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, ErrMemberNotFound)
	}
	return member, nil
}

// List lists members with filters
func (s *MemberService) List(ctx context.Context, actor domain.Actor, filter repositories.MemberFilter, offset, limit int) ([]*models.Member, int64, error) {
	if !actor.Can(domain.CapManageMembers) {
		return nil, 0, domain.ErrForbidden
	}
	return s.repos.Members.List(ctx, filter, offset, limit)
}

// Update changes member fields. A new email is copied to the linked account.
func (s *MemberService) Update(ctx context.Context, actor domain.Actor, id uint, input *UpdateMemberInput) (*models.Member, error) {
	if !actor.Can(domain.CapManageMembers) {
		return nil, domain.ErrForbidden
	}

	var member *models.Member
	err := s.repos.Transaction(ctx, func(tx *repositories.Repositories) error {
		var err error
		member, err = tx.Members.GetByID(ctx, id)
		if err != nil {
			return notFound(err, ErrMemberNotFound)
		}

		if input.FirstName != nil {
			if strings.TrimSpace(*input.FirstName) == "" {
				return &fieldError{field: "first_name"}
			}
			member.FirstName = strings.TrimSpace(*input.FirstName)
		}
		if input.LastName != nil {
			if strings.TrimSpace(*input.LastName) == "" {
				return &fieldError{field: "last_name"}
			}
			member.LastName = strings.TrimSpace(*input.LastName)
		}
		if input.Phone != nil {
			member.Phone = strings.TrimSpace(*input.Phone)
		}
		if input.ClassGroup != nil {
			member.ClassGroup = strings.TrimSpace(*input.ClassGroup)
		}
		if input.Status != nil {
			status, err := memberStatus(*input.Status)
			if err != nil {
				return err
			}
			member.Status = status
		}

		if input.Email != nil {
			email, err := normalizeEmail(*input.Email)
			if err != nil {
				return err
			}
			if email != member.Email {
				taken, err := tx.Members.ExistsByEmail(ctx, email, member.ID)
				if err != nil {
					return err
				}
				if taken {
					return ErrEmailAlreadyExists
				}
				if err := syncAccountEmail(ctx, tx, member.ID, email); err != nil {
					return err
				}
				member.Email = email
			}
		}

		return tx.Members.Update(ctx, member)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("✅ Member updated: %d by %s", member.ID, actor.Username)
	return member, nil
}

// Delete removes a member without open loans or unpaid fines, together
// with its history. A linked account is kept but unlinked.
func (s *MemberService) Delete(ctx context.Context, actor domain.Actor, id uint) error {
	if !actor.Can(domain.CapManageMembers) {
		return domain.ErrForbidden
	}

	err := s.repos.Transaction(ctx, func(tx *repositories.Repositories) error {
		if _, err := tx.Members.GetByID(ctx, id); err != nil {
			return notFound(err, ErrMemberNotFound)
		}
		open, err := tx.Loans.CountOpenByMember(ctx, id)
		if err != nil {
			return err
		}
		if open > 0 {
			return ErrMemberHasOpenLoans
		}

		// Only returned loans remain, so every fine is already fixed
		loans, err := tx.Loans.ListByMember(ctx, id)
		if err != nil {
			return err
		}
		var history domain.Standing
		for _, l := range loans {
			history.Loans = append(history.Loans, l.Snapshot())
		}
		if history.UnpaidFines().IsPositive() {
			return ErrMemberHasUnpaidFines
		}
		return purgeMember(ctx, tx, id)
	})
	if err != nil {
		return err
	}

	log.Printf("🗑️ Member deleted: %d by %s", id, actor.Username)
	return nil
}

// syncAccountEmail copies a member's new email onto its linked account
func syncAccountEmail(ctx context.Context, tx *repositories.Repositories, memberID uint, email string) error {
	user, err := tx.Users.GetByMemberID(ctx, memberID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if user.Email == email {
		return nil
	}
	exists, err := tx.Users.ExistsByEmail(ctx, email)
	if err != nil {
		return err
	}
	if exists {
		return ErrEmailAlreadyExists
	}
	user.Email = email
	return tx.Users.Update(ctx, user)
}

func memberStatus(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "active":
		return domain.MemberStatusActive, nil
	case "inactive":
		return domain.MemberStatusInactive, nil
	default:
		return "", ErrInvalidStatus
	}
}

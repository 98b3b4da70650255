package services

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"

	"school-library/internal/adapters/persistence/models"
	"school-library/internal/adapters/persistence/repositories"
	"school-library/internal/adapters/storage"
	"school-library/internal/core/domain"
	"school-library/internal/pkg/password"
)

// User service errors
var (
	ErrOldPasswordWrong    = errors.New("current password is incorrect")
	ErrCannotChangeOwnRole = errors.New("cannot change your own role")
)

// UserService handles profile and account management
type UserService struct {
	repos *repositories.Repositories
	files FileStore
}

// NewUserService creates a new user service
func NewUserService(repos *repositories.Repositories, files FileStore) *UserService {
	return &UserService{repos: repos, files: files}
}

// UpdateProfileInput represents update profile input (for self).
// CurrentPassword is checked when supplied.
type UpdateProfileInput struct {
	Username        *string `json:"username"`
	Email           *string `json:"email"`
	Phone           *string `json:"phone"`
	CurrentPassword string  `json:"current_password"`
}

// ChangePasswordInput represents change password input
type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Profile returns the caller's account with its member record
func (s *UserService) Profile(ctx context.Context, actor domain.Actor) (*models.User, error) {
	user, err := s.repos.Users.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	return user, nil
}

// UpdateProfile changes username, email or phone. Email changes are mirrored
// onto the linked member record.
func (s *UserService) UpdateProfile(ctx context.Context, actor domain.Actor, input *UpdateProfileInput) (*models.User, error) {
	err := s.repos.Transaction(ctx, func(tx *repositories.Repositories) error {
		user, err := tx.Users.GetByID(ctx, actor.UserID)
		if err != nil {
			return notFound(err, ErrUserNotFound)
		}

		// 1. Current password, when given, must match
		if input.CurrentPassword != "" && !password.Verify(input.CurrentPassword, user.Password) {
			return ErrOldPasswordWrong
		}

		// 2. Username
		if input.Username != nil {
			username, err := validateUsername(*input.Username)
			if err != nil {
				return err
			}
			if username != user.Username {
				exists, err := tx.Users.ExistsByUsername(ctx, username)
				if err != nil {
					return err
				}
				if exists {
					return ErrUserAlreadyExists
				}
				user.Username = username
			}
		}

		// 3. Email
		if input.Email != nil {
			email, err := normalizeEmail(*input.Email)
			if err != nil {
				return err
			}
			if email != user.Email {
				exists, err := tx.Users.ExistsByEmail(ctx, email)
				if err != nil {
					return err
				}
				if exists {
					return ErrEmailAlreadyExists
				}
				if user.Member != nil {
					taken, err := tx.Members.ExistsByEmail(ctx, email, user.Member.ID)
					if err != nil {
						return err
					}
					if taken {
						return ErrEmailAlreadyExists
					}
					user.Member.Email = email
				}
				user.Email = email
			}
		}

		// 4. Phone lives on the member record
		if input.Phone != nil && user.Member != nil {
			user.Member.Phone = strings.TrimSpace(*input.Phone)
		}

		if user.Member != nil {
			if err := tx.Members.Update(ctx, user.Member); err != nil {
				return err
			}
		}
		return tx.Users.Update(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("✅ Profile updated: user %d", actor.UserID)
	return s.Profile(ctx, actor)
}

// ChangePassword changes the caller's password and revokes other sessions
func (s *UserService) ChangePassword(ctx context.Context, actor domain.Actor, input *ChangePasswordInput) error {
	user, err := s.repos.Users.GetByID(ctx, actor.UserID)
	if err != nil {
		return notFound(err, ErrUserNotFound)
	}

	if !password.Verify(input.CurrentPassword, user.Password) {
		return ErrOldPasswordWrong
	}
	if err := validateNewPassword(input.NewPassword, input.ConfirmPassword); err != nil {
		return err
	}

	hashed, err := password.Hash(input.NewPassword)
	if err != nil {
		return err
	}
	user.Password = hashed
	if err := s.repos.Users.Update(ctx, user); err != nil {
		return err
	}
	if err := s.repos.RefreshTokens.RevokeAllByUserID(ctx, user.ID); err != nil {
		return err
	}

	log.Printf("✅ Password changed: user %d", user.ID)
	return nil
}

// SetAvatar stores a new profile image and removes the previous one
func (s *UserService) SetAvatar(ctx context.Context, actor domain.Actor, filename string, r io.Reader) (*models.User, error) {
	user, err := s.repos.Users.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}

	name, err := s.files.Save(storage.KindAvatar, filename, r)
	if err != nil {
		return nil, err
	}

	previous := user.Image
	user.Image = name
	if err := s.repos.Users.Update(ctx, user); err != nil {
		s.files.Remove(name)
		return nil, err
	}
	if err := s.files.Remove(previous); err != nil {
		log.Printf("⚠️ Failed to remove old avatar %s: %v", previous, err)
	}

	return user, nil
}

// DeleteAccount removes the caller's account after a password check. The
// linked member goes with it, together with its loans and reservations;
// items still on loan become available again.
func (s *UserService) DeleteAccount(ctx context.Context, actor domain.Actor, currentPassword string) error {
	user, err := s.repos.Users.GetByID(ctx, actor.UserID)
	if err != nil {
		return notFound(err, ErrUserNotFound)
	}
	if !password.Verify(currentPassword, user.Password) {
		return ErrOldPasswordWrong
	}

	err = s.repos.Transaction(ctx, func(tx *repositories.Repositories) error {
		if err := tx.RefreshTokens.DeleteByUserID(ctx, user.ID); err != nil {
			return err
		}
		if err := tx.Users.HardDelete(ctx, user.ID); err != nil {
			return err
		}
		if user.MemberID == nil {
			return nil
		}
		return purgeMember(ctx, tx, *user.MemberID)
	})
	if err != nil {
		return err
	}

	if err := s.files.Remove(user.Image); err != nil {
		log.Printf("⚠️ Failed to remove avatar %s: %v", user.Image, err)
	}

	log.Printf("🗑️ Account deleted: %s", user.Username)
	return nil
}

// ListUsers lists accounts for administrators
func (s *UserService) ListUsers(ctx context.Context, actor domain.Actor, filter repositories.UserFilter, offset, limit int) ([]*models.User, int64, error) {
	if !actor.Can(domain.CapManageAccounts) {
		return nil, 0, domain.ErrForbidden
	}
	return s.repos.Users.List(ctx, filter, offset, limit)
}

// SetRole changes another account's role
func (s *UserService) SetRole(ctx context.Context, actor domain.Actor, userID uint, role string) (*models.User, error) {
	if !actor.Can(domain.CapManageAccounts) {
		return nil, domain.ErrForbidden
	}
	if userID == actor.UserID {
		return nil, ErrCannotChangeOwnRole
	}

	parsed, err := domain.ParseRole(role)
	if err != nil {
		return nil, err
	}

	user, err := s.repos.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	user.Role = parsed.String()
	if err := s.repos.Users.Update(ctx, user); err != nil {
		return nil, err
	}

	log.Printf("✅ Role of %s set to %s by %s", user.Username, parsed, actor.Username)
	return user, nil
}

// purgeMember deletes a member with its loans and reservations, releasing
// items that were still out
func purgeMember(ctx context.Context, tx *repositories.Repositories, memberID uint) error {
	loans, err := tx.Loans.ListByMember(ctx, memberID)
	if err != nil {
		return err
	}
	for _, l := range loans {
		if l.IsOpen() {
			if err := tx.Items.MarkAvailable(ctx, l.ItemID); err != nil {
				return err
			}
		}
	}
	if err := tx.Users.UnlinkMember(ctx, memberID); err != nil {
		return err
	}
	if err := tx.Reservations.DeleteByMember(ctx, memberID); err != nil {
		return err
	}
	if err := tx.Loans.DeleteByMember(ctx, memberID); err != nil {
		return err
	}
	return tx.Members.Delete(ctx, memberID)
}

package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"school-library/internal/adapters/persistence/models"
	"school-library/internal/adapters/persistence/repositories"

	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// Verification errors
var (
	ErrInvalidCode      = errors.New("invalid verification code")
	ErrCodeExpired      = errors.New("verification code expired")
	ErrAlreadyConfirmed = errors.New("account already confirmed")
	ErrResendThrottled  = errors.New("please wait before requesting another code")
)

const (
	codeLength   = 6
	codeValidFor = 30 * time.Minute
	// resend allowance per identifier
	resendEvery = time.Minute
	resendBurst = 3
	// limiters are pruned once the map grows past this size
	maxLimiters = 1024
)

// VerificationService issues and checks email confirmation codes.
// Codes live on the user row so they survive restarts.
type VerificationService struct {
	users    repositories.UserRepository
	notifier *NotificationService
	now      func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewVerificationService creates a new verification service
func NewVerificationService(users repositories.UserRepository, notifier *NotificationService) *VerificationService {
	return &VerificationService{
		users:    users,
		notifier: notifier,
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
	}
}

// SetClock replaces the time source
func (s *VerificationService) SetClock(now func() time.Time) {
	s.now = now
}

// Issue stores a fresh code on the user and mails it.
// The returned flag reports whether the email went out.
func (s *VerificationService) Issue(ctx context.Context, user *models.User) (bool, error) {
	code, err := generateCode(codeLength)
	if err != nil {
		return false, fmt.Errorf("generate code: %w", err)
	}

	expires := s.now().UTC().Add(codeValidFor)
	user.ConfirmationCode = code
	user.ConfirmationExpires = &expires
	if err := s.users.Update(ctx, user); err != nil {
		return false, err
	}

	return s.notifier.SendVerificationCode(ctx, user, code, codeValidFor) == nil, nil
}

// Verify confirms the account identified by username or email
func (s *VerificationService) Verify(ctx context.Context, login, code string) (*models.User, error) {
	user, err := s.users.GetByLogin(ctx, strings.TrimSpace(login))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if user.Confirmed {
		return nil, ErrAlreadyConfirmed
	}

	// 1. Code must match
	if user.ConfirmationCode == "" || user.ConfirmationCode != strings.TrimSpace(code) {
		return nil, ErrInvalidCode
	}

	// 2. Code must still be valid
	if user.ConfirmationExpires == nil || s.now().After(*user.ConfirmationExpires) {
		return nil, ErrCodeExpired
	}

	user.Confirmed = true
	user.ConfirmationCode = ""
	user.ConfirmationExpires = nil
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Resend issues a new code, throttled per identifier
func (s *VerificationService) Resend(ctx context.Context, login string) (bool, error) {
	login = strings.TrimSpace(login)
	if !s.allow(strings.ToLower(login)) {
		return false, ErrResendThrottled
	}

	user, err := s.users.GetByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrUserNotFound
		}
		return false, err
	}
	if user.Confirmed {
		return false, ErrAlreadyConfirmed
	}
	return s.Issue(ctx, user)
}

func (s *VerificationService) allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.limiters) > maxLimiters {
		for k, l := range s.limiters {
			if l.Tokens() >= resendBurst {
				delete(s.limiters, k)
			}
		}
	}

	limiter, ok := s.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(resendEvery), resendBurst)
		s.limiters[key] = limiter
	}
	return limiter.Allow()
}

// generateCode generates a cryptographically secure numeric code
func generateCode(length int) (string, error) {
	var b strings.Builder
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

package services

import (
	"context"
	"errors"
	"log"
	"strings"

	"school-library/internal/adapters/persistence/models"
	"school-library/internal/adapters/persistence/repositories"
	"school-library/internal/config"
	"school-library/internal/core/domain"
	"school-library/internal/pkg/jwt"
	"school-library/internal/pkg/password"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Auth errors
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUserAlreadyExists    = errors.New("username already taken")
	ErrEmailAlreadyExists   = errors.New("email already registered")
	ErrInvalidToken         = errors.New("invalid token")
	ErrTokenExpired         = errors.New("token expired")
	ErrTokenRevoked         = errors.New("token revoked")
	ErrUserInactive         = errors.New("user account is inactive")
	ErrVerificationRequired = errors.New("account email is not verified")
	ErrAdminExists          = errors.New("an administrator already exists")
)

// AuthService handles authentication business logic
type AuthService struct {
	repos    *repositories.Repositories
	verifier *VerificationService
	cfg      *config.Config
}

// NewAuthService creates a new auth service
func NewAuthService(repos *repositories.Repositories, verifier *VerificationService, cfg *config.Config) *AuthService {
	return &AuthService{
		repos:    repos,
		verifier: verifier,
		cfg:      cfg,
	}
}

// RegisterInput represents self-registration input
type RegisterInput struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Phone           string `json:"phone"`
	ClassGroup      string `json:"class_group"`
}

// LoginInput represents login input. Login is a username or an email.
type LoginInput struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// VerifyInput represents a verification code submission
type VerifyInput struct {
	Login string `json:"login"`
	Code  string `json:"code"`
}

// SetupAdminInput represents first-run administrator input
type SetupAdminInput struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// TokenPair represents access and refresh tokens
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// AuthResponse represents authentication response
type AuthResponse struct {
	User         *models.UserResponse `json:"user"`
	AccessToken  string               `json:"access_token,omitempty"`
	RefreshToken string               `json:"refresh_token,omitempty"`
	// EmailSent is set when a verification code was issued
	EmailSent *bool `json:"email_sent,omitempty"`
}

// Register creates an unconfirmed account with a linked member record and
// mails a verification code. Mail failure does not fail registration.
func (s *AuthService) Register(ctx context.Context, input *RegisterInput) (*AuthResponse, error) {
	// 1. Validate input
	if err := required("first_name", input.FirstName, "last_name", input.LastName); err != nil {
		return nil, err
	}
	username, err := validateUsername(input.Username)
	if err != nil {
		return nil, err
	}
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	if err := validateNewPassword(input.Password, input.ConfirmPassword); err != nil {
		return nil, err
	}

	// 2. Hash password
	hashedPassword, err := password.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	// 3. Create member and account together
	user := &models.User{
		Username: username,
		Email:    email,
		Password: hashedPassword,
		Role:     domain.RoleMember.String(),
		IsActive: true,
	}
	err = s.repos.Transaction(ctx, func(tx *repositories.Repositories) error {
		if err := checkAccountFree(ctx, tx, username, email); err != nil {
			return err
		}
		taken, err := tx.Members.ExistsByEmail(ctx, email, 0)
		if err != nil {
			return err
		}
		if taken {
			return ErrEmailAlreadyExists
		}

		member := &models.Member{
			FirstName:  strings.TrimSpace(input.FirstName),
			LastName:   strings.TrimSpace(input.LastName),
			Email:      email,
			Phone:      strings.TrimSpace(input.Phone),
			ClassGroup: strings.TrimSpace(input.ClassGroup),
			Status:     domain.MemberStatusActive,
		}
		if err := tx.Members.Create(ctx, member); err != nil {
			return err
		}

		user.MemberID = &member.ID
		user.Member = member
		return tx.Users.Create(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	// 4. Issue verification code
	sent, err := s.verifier.Issue(ctx, user)
	if err != nil {
		return nil, err
	}

	log.Printf("✅ User registered: %s (member %d)", user.Username, user.LinkedMemberID())

	return &AuthResponse{User: user.ToResponse(), EmailSent: &sent}, nil
}

// Login authenticates a user. An unconfirmed non-admin account gets a new
// verification code and ErrVerificationRequired together with the response.
func (s *AuthService) Login(ctx context.Context, input *LoginInput) (*AuthResponse, error) {
	// 1. Find user by username or email
	user, err := s.repos.Users.GetByLogin(ctx, strings.TrimSpace(input.Login))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	// 2. Verify password
	if !password.Verify(input.Password, user.Password) {
		return nil, domain.ErrInvalidCredentials
	}

	// 3. Check if user is active
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	// 4. Unconfirmed accounts must verify first
	if !user.Confirmed && user.Role != domain.RoleAdmin.String() {
		sent, err := s.verifier.Issue(ctx, user)
		if err != nil {
			return nil, err
		}
		log.Printf("📧 Verification required for %s", user.Username)
		return &AuthResponse{User: user.ToResponse(), EmailSent: &sent}, ErrVerificationRequired
	}

	log.Printf("✅ User logged in: %s", user.Username)
	return s.issueSession(ctx, user.ID)
}

// Verify confirms an account with its code and starts a session
func (s *AuthService) Verify(ctx context.Context, input *VerifyInput) (*AuthResponse, error) {
	if err := required("login", input.Login, "code", input.Code); err != nil {
		return nil, err
	}

	user, err := s.verifier.Verify(ctx, input.Login, input.Code)
	if err != nil {
		return nil, err
	}

	log.Printf("✅ Account verified: %s", user.Username)
	return s.issueSession(ctx, user.ID)
}

// ResendCode issues a new verification code
func (s *AuthService) ResendCode(ctx context.Context, login string) (bool, error) {
	if err := required("login", login); err != nil {
		return false, err
	}
	return s.verifier.Resend(ctx, login)
}

// RefreshToken refreshes the access token using refresh token
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	// 1. Validate refresh token JWT
	claims, err := jwt.ValidateRefreshToken(refreshToken, s.cfg.JWT.RefreshSecret)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	// 2. Find token in DB by hash
	storedToken, err := s.repos.RefreshTokens.GetByTokenHash(ctx, password.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	// 3. Check if token is revoked or expired
	if storedToken.IsRevoked() {
		return nil, ErrTokenRevoked
	}
	if storedToken.IsExpired() {
		return nil, ErrTokenExpired
	}
	if storedToken.UserID != claims.UserID {
		return nil, ErrInvalidToken
	}

	// 4. Revoke old refresh token (token rotation)
	if err := s.repos.RefreshTokens.RevokeByTokenHash(ctx, storedToken.TokenHash); err != nil {
		return nil, err
	}

	log.Printf("✅ Token refreshed for user ID: %d", claims.UserID)
	return s.issueSession(ctx, claims.UserID)
}

// Logout revokes the refresh token
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if err := s.repos.RefreshTokens.RevokeByTokenHash(ctx, password.HashToken(refreshToken)); err != nil {
		return err
	}

	log.Printf("✅ User logged out")
	return nil
}

// LogoutAll revokes all refresh tokens for a user
func (s *AuthService) LogoutAll(ctx context.Context, userID uint) error {
	if err := s.repos.RefreshTokens.RevokeAllByUserID(ctx, userID); err != nil {
		return err
	}

	log.Printf("✅ All sessions revoked for user ID: %d", userID)
	return nil
}

// SetupAdmin creates the first administrator. It fails once any admin exists.
func (s *AuthService) SetupAdmin(ctx context.Context, input *SetupAdminInput) (*models.User, error) {
	username, err := validateUsername(input.Username)
	if err != nil {
		return nil, err
	}
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	if err := validateNewPassword(input.Password, input.ConfirmPassword); err != nil {
		return nil, err
	}
	hashedPassword, err := password.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:  username,
		Email:     email,
		Password:  hashedPassword,
		Role:      domain.RoleAdmin.String(),
		IsActive:  true,
		Confirmed: true,
	}
	err = s.repos.Transaction(ctx, func(tx *repositories.Repositories) error {
		admins, err := tx.Users.CountByRole(ctx, domain.RoleAdmin.String())
		if err != nil {
			return err
		}
		if admins > 0 {
			return ErrAdminExists
		}
		if err := checkAccountFree(ctx, tx, username, email); err != nil {
			return err
		}
		return tx.Users.Create(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("✅ Administrator created: %s", user.Username)
	return user, nil
}

// NeedsSetup reports whether no administrator exists yet
func (s *AuthService) NeedsSetup(ctx context.Context) (bool, error) {
	admins, err := s.repos.Users.CountByRole(ctx, domain.RoleAdmin.String())
	return admins == 0, err
}

// ValidateAccessToken validates an access token
func (s *AuthService) ValidateAccessToken(accessToken string) (*jwt.Claims, error) {
	return jwt.ValidateAccessToken(accessToken, s.cfg.JWT.Secret)
}

// GetUserByID gets a user by ID
func (s *AuthService) GetUserByID(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.repos.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	return user, nil
}

// issueSession reloads the user, mints a token pair and stores the refresh hash
func (s *AuthService) issueSession(ctx context.Context, userID uint) (*AuthResponse, error) {
	user, err := s.repos.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	tokens, err := s.generateTokens(user)
	if err != nil {
		return nil, err
	}
	if err := s.storeRefreshToken(ctx, user.ID, tokens.RefreshToken); err != nil {
		return nil, err
	}

	return &AuthResponse{
		User:         user.ToResponse(),
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}, nil
}

// generateTokens generates access and refresh tokens
func (s *AuthService) generateTokens(user *models.User) (*TokenPair, error) {
	accessToken, err := jwt.GenerateAccessToken(
		user.ID,
		user.LinkedMemberID(),
		user.Username,
		user.Role,
		s.cfg.JWT.Secret,
		s.cfg.JWT.AccessTokenMins,
	)
	if err != nil {
		return nil, err
	}

	refreshToken, err := jwt.GenerateRefreshToken(
		user.ID,
		uuid.New().String(),
		s.cfg.JWT.RefreshSecret,
		s.cfg.JWT.RefreshTokenDays,
	)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// storeRefreshToken stores a refresh token in the database
func (s *AuthService) storeRefreshToken(ctx context.Context, userID uint, refreshToken string) error {
	token := &models.RefreshToken{
		UserID:    userID,
		TokenHash: password.HashToken(refreshToken),
		ExpiresAt: jwt.GetExpiryTime(s.cfg.JWT.RefreshTokenDays),
	}
	return s.repos.RefreshTokens.Create(ctx, token)
}

// checkAccountFree rejects a username or email already used by an account
func checkAccountFree(ctx context.Context, repos *repositories.Repositories, username, email string) error {
	exists, err := repos.Users.ExistsByUsername(ctx, username)
	if err != nil {
		return err
	}
	if exists {
		return ErrUserAlreadyExists
	}
	exists, err = repos.Users.ExistsByEmail(ctx, email)
	if err != nil {
		return err
	}
	if exists {
		return ErrEmailAlreadyExists
	}
	return nil
}

package services

import (
	"testing"
	"time"

	"school-library/internal/adapters/persistence/models"
	"school-library/internal/adapters/storage"
	"school-library/internal/core/domain"
	"school-library/internal/pkg/jwt"
	"school-library/internal/testing/testdb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type accounts struct {
	tdb      *testdb.TestDB
	mailer   *fakeMailer
	clock    *fakeClock
	verifier *VerificationService
	auth     *AuthService
	users    *UserService
	members  *MemberService
	files    *storage.Local
}

func newAccounts(t *testing.T) *accounts {
	t.Helper()
	tdb := testdb.New(t)
	clock := newClock()
	mailer := &fakeMailer{}

	files, err := storage.NewLocal(t.TempDir(), 1)
	require.NoError(t, err)

	verifier := NewVerificationService(tdb.Repos.Users, NewNotificationService(mailer))
	verifier.SetClock(clock.Now)

	return &accounts{
		tdb:      tdb,
		mailer:   mailer,
		clock:    clock,
		verifier: verifier,
		auth:     NewAuthService(tdb.Repos, verifier, testConfig()),
		users:    NewUserService(tdb.Repos, files),
		members:  NewMemberService(tdb.Repos),
		files:    files,
	}
}

func registerInput(username string) *RegisterInput {
	return &RegisterInput{
		Username:        username,
		Email:           username + "@school.test",
		Password:        "correct-horse",
		ConfirmPassword: "correct-horse",
		FirstName:       "Ada",
		LastName:        "Lovelace",
		ClassGroup:      "5B",
	}
}

// registerConfirmed registers and verifies an account
func (a *accounts) registerConfirmed(t *testing.T, username string) *AuthResponse {
	t.Helper()
	ctx := a.tdb.Context(t)
	_, err := a.auth.Register(ctx, registerInput(username))
	require.NoError(t, err)
	session, err := a.auth.Verify(ctx, &VerifyInput{Login: username, Code: a.mailer.lastCode()})
	require.NoError(t, err)
	return session
}

func TestRegister_VerifyAndLogin(t *testing.T) {
	a := newAccounts(t)
	ctx := a.tdb.Context(t)

	resp, err := a.auth.Register(ctx, registerInput("ada"))
	require.NoError(t, err)
	require.NotNil(t, resp.EmailSent)
	assert.True(t, *resp.EmailSent)
	assert.False(t, resp.User.Confirmed)
	assert.Empty(t, resp.AccessToken)
	require.NotNil(t, resp.User.MemberID)

	member, err := a.tdb.Repos.Members.GetByID(ctx, *resp.User.MemberID)
	require.NoError(t, err)
	assert.Equal(t, "ada@school.test", member.Email)
	assert.Equal(t, "5B", member.ClassGroup)
	assert.Equal(t, domain.MemberStatusActive, member.Status)

	first := a.mailer.lastCode()
	require.Len(t, first, 6)
	assert.Equal(t, []string{"ada@school.test"}, a.mailer.last().To)

	// unconfirmed login re-issues a code
	pending, err := a.auth.Login(ctx, &LoginInput{Login: "ada", Password: "correct-horse"})
	assert.ErrorIs(t, err, ErrVerificationRequired)
	require.NotNil(t, pending)
	assert.True(t, *pending.EmailSent)
	assert.Equal(t, 2, a.mailer.count())
	code := a.mailer.lastCode()

	if code != first {
		_, err = a.auth.Verify(ctx, &VerifyInput{Login: "ada", Code: first})
		assert.ErrorIs(t, err, ErrInvalidCode)
	}

	session, err := a.auth.Verify(ctx, &VerifyInput{Login: "ada@school.test", Code: code})
	require.NoError(t, err)
	assert.True(t, session.User.Confirmed)
	assert.NotEmpty(t, session.AccessToken)

	claims, err := jwt.ValidateAccessToken(session.AccessToken, testConfig().JWT.Secret)
	require.NoError(t, err)
	assert.Equal(t, *resp.User.MemberID, claims.MemberID)
	assert.Equal(t, "member", claims.Role)

	_, err = a.auth.Verify(ctx, &VerifyInput{Login: "ada", Code: code})
	assert.ErrorIs(t, err, ErrAlreadyConfirmed)

	loggedIn, err := a.auth.Login(ctx, &LoginInput{Login: "ada", Password: "correct-horse"})
	require.NoError(t, err)
	assert.NotEmpty(t, loggedIn.RefreshToken)

	_, err = a.auth.Login(ctx, &LoginInput{Login: "ada", Password: "wrong-password"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = a.auth.Login(ctx, &LoginInput{Login: "nobody", Password: "correct-horse"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestRegister_Validation(t *testing.T) {
	a := newAccounts(t)
	ctx := a.tdb.Context(t)

	_, err := a.auth.Register(ctx, registerInput("ada"))
	require.NoError(t, err)

	dupName := registerInput("ada")
	dupName.Email = "other@school.test"
	_, err = a.auth.Register(ctx, dupName)
	assert.ErrorIs(t, err, ErrUserAlreadyExists)

	dupEmail := registerInput("ada2")
	dupEmail.Email = "ADA@school.test"
	_, err = a.auth.Register(ctx, dupEmail)
	assert.ErrorIs(t, err, ErrEmailAlreadyExists)

	mismatch := registerInput("bob")
	mismatch.ConfirmPassword = "something-else"
	_, err = a.auth.Register(ctx, mismatch)
	assert.ErrorIs(t, err, ErrPasswordMismatch)

	weak := registerInput("carl")
	weak.Password, weak.ConfirmPassword = "short", "short"
	_, err = a.auth.Register(ctx, weak)
	assert.ErrorIs(t, err, ErrWeakPassword)

	badEmail := registerInput("dora")
	badEmail.Email = "not-an-email"
	_, err = a.auth.Register(ctx, badEmail)
	assert.ErrorIs(t, err, ErrInvalidEmail)

	noName := registerInput("emil")
	noName.FirstName = " "
	_, err = a.auth.Register(ctx, noName)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	var users int64
	require.NoError(t, a.tdb.DB.Model(&models.User{}).Count(&users).Error)
	assert.Equal(t, int64(1), users)
}

func TestRegister_MailDisabled(t *testing.T) {
	a := newAccounts(t)
	a.mailer.disabled = true

	resp, err := a.auth.Register(a.tdb.Context(t), registerInput("ada"))
	require.NoError(t, err)
	assert.False(t, *resp.EmailSent)
	assert.Zero(t, a.mailer.count())
}

func TestVerify_Expired(t *testing.T) {
	a := newAccounts(t)
	ctx := a.tdb.Context(t)

	_, err := a.auth.Register(ctx, registerInput("ada"))
	require.NoError(t, err)
	code := a.mailer.lastCode()

	a.clock.Advance(31 * time.Minute)
	_, err = a.auth.Verify(ctx, &VerifyInput{Login: "ada", Code: code})
	assert.ErrorIs(t, err, ErrCodeExpired)

	sent, err := a.auth.ResendCode(ctx, "ada")
	require.NoError(t, err)
	assert.True(t, sent)

	_, err = a.auth.Verify(ctx, &VerifyInput{Login: "ada", Code: a.mailer.lastCode()})
	assert.NoError(t, err)
}

func TestResendCode(t *testing.T) {
	a := newAccounts(t)
	ctx := a.tdb.Context(t)

	_, err := a.auth.Register(ctx, registerInput("ada"))
	require.NoError(t, err)

	for i := 0; i < resendBurst; i++ {
		_, err := a.auth.ResendCode(ctx, "ada")
		require.NoError(t, err)
	}
	_, err = a.auth.ResendCode(ctx, "ADA")
	assert.ErrorIs(t, err, ErrResendThrottled)

	_, err = a.auth.ResendCode(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)

	a.registerConfirmed(t, "bob")
	_, err = a.auth.ResendCode(ctx, "bob")
	assert.ErrorIs(t, err, ErrAlreadyConfirmed)

	_, err = a.auth.ResendCode(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRefreshToken_Rotation(t *testing.T) {
	a := newAccounts(t)
	ctx := a.tdb.Context(t)
	session := a.registerConfirmed(t, "ada")

	rotated, err := a.auth.RefreshToken(ctx, session.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, session.RefreshToken, rotated.RefreshToken)

	_, err = a.auth.RefreshToken(ctx, session.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	_, err = a.auth.RefreshToken(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	require.NoError(t, a.auth.Logout(ctx, rotated.RefreshToken))
	_, err = a.auth.RefreshToken(ctx, rotated.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	other, err := a.auth.Login(ctx, &LoginInput{Login: "ada", Password: "correct-horse"})
	require.NoError(t, err)
	require.NoError(t, a.auth.LogoutAll(ctx, other.User.ID))
	_, err = a.auth.RefreshToken(ctx, other.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestLogin_Inactive(t *testing.T) {
	a := newAccounts(t)
	ctx := a.tdb.Context(t)
	session := a.registerConfirmed(t, "ada")

	require.NoError(t, a.tdb.DB.Model(&models.User{}).Where("id = ?", session.User.ID).Update("is_active", false).Error)
	_, err := a.auth.Login(ctx, &LoginInput{Login: "ada", Password: "correct-horse"})
	assert.ErrorIs(t, err, ErrUserInactive)
}

func TestSetupAdmin(t *testing.T) {
	a := newAccounts(t)
	ctx := a.tdb.Context(t)

	needs, err := a.auth.NeedsSetup(ctx)
	require.NoError(t, err)
	assert.True(t, needs)

	input := &SetupAdminInput{
		Username:        "head",
		Email:           "head@school.test",
		Password:        "admin-password",
		ConfirmPassword: "admin-password",
	}
	admin, err := a.auth.SetupAdmin(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin.String(), admin.Role)
	assert.True(t, admin.Confirmed)
	assert.Nil(t, admin.MemberID)

	input.Username, input.Email = "second", "second@school.test"
	_, err = a.auth.SetupAdmin(ctx, input)
	assert.ErrorIs(t, err, ErrAdminExists)

	needs, err = a.auth.NeedsSetup(ctx)
	require.NoError(t, err)
	assert.False(t, needs)

	session, err := a.auth.Login(ctx, &LoginInput{Login: "head@school.test", Password: "admin-password"})
	require.NoError(t, err)
	claims, err := a.auth.ValidateAccessToken(session.AccessToken)
	require.NoError(t, err)
	assert.Zero(t, claims.MemberID)
	assert.Equal(t, "admin", claims.Role)
}

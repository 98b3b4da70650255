package services

import (
	"strings"
	"testing"

	"school-library/internal/adapters/persistence/models"
	"school-library/internal/adapters/persistence/repositories"
	"school-library/internal/adapters/storage"
	"school-library/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func actorOf(resp *AuthResponse) domain.Actor {
	role, _ := domain.ParseRole(resp.User.Role)
	actor := domain.Actor{UserID: resp.User.ID, Username: resp.User.Username, Role: role}
	if resp.User.MemberID != nil {
		actor.MemberID = *resp.User.MemberID
	}
	return actor
}

func strPtr(s string) *string { return &s }

func TestUpdateProfile(t *testing.T) {
	a := newAccounts(t)
	ctx := a.tdb.Context(t)
	ada := actorOf(a.registerConfirmed(t, "ada"))
	a.registerConfirmed(t, "bob")

	user, err := a.users.UpdateProfile(ctx, ada, &UpdateProfileInput{
		Email: strPtr("Ada.L@School.test"),
		Phone: strPtr(" 555-0101 "),
	})
	require.NoError(t, err)
	assert.Equal(t, "ada.l@school.test", user.Email)
	require.NotNil(t, user.Member)
	assert.Equal(t, "ada.l@school.test", user.Member.Email)
	assert.Equal(t, "555-0101", user.Member.Phone)

	member, err := a.tdb.Repos.Members.GetByID(ctx, ada.MemberID)
	require.NoError(t, err)
	assert.Equal(t, "ada.l@school.test", member.Email)

	_, err = a.users.UpdateProfile(ctx, ada, &UpdateProfileInput{Username: strPtr("bob")})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)

	_, err = a.users.UpdateProfile(ctx, ada, &UpdateProfileInput{Email: strPtr("bob@school.test")})
	assert.ErrorIs(t, err, ErrEmailAlreadyExists)

	_, err = a.users.UpdateProfile(ctx, ada, &UpdateProfileInput{Username: strPtr("a d")})
	assert.ErrorIs(t, err, ErrInvalidUsername)

	_, err = a.users.UpdateProfile(ctx, ada, &UpdateProfileInput{Username: strPtr("ada2"), CurrentPassword: "nope-nope"})
	assert.ErrorIs(t, err, ErrOldPasswordWrong)

	user, err = a.users.UpdateProfile(ctx, ada, &UpdateProfileInput{Username: strPtr("ada2"), CurrentPassword: "correct-horse"})
	require.NoError(t, err)
	assert.Equal(t, "ada2", user.Username)
}

func TestChangePassword(t *testing.T) {
	a := newAccounts(t)
	ctx := a.tdb.Context(t)
	session := a.registerConfirmed(t, "ada")
	ada := actorOf(session)

	err := a.users.ChangePassword(ctx, ada, &ChangePasswordInput{
		CurrentPassword: "wrong-one",
		NewPassword:     "new-password-1",
		ConfirmPassword: "new-password-1",
	})
	assert.ErrorIs(t, err, ErrOldPasswordWrong)

	err = a.users.ChangePassword(ctx, ada, &ChangePasswordInput{
		CurrentPassword: "correct-horse",
		NewPassword:     "new-password-1",
		ConfirmPassword: "new-password-2",
	})
	assert.ErrorIs(t, err, ErrPasswordMismatch)

	require.NoError(t, a.users.ChangePassword(ctx, ada, &ChangePasswordInput{
		CurrentPassword: "correct-horse",
		NewPassword:     "new-password-1",
		ConfirmPassword: "new-password-1",
	}))

	_, err = a.auth.RefreshToken(ctx, session.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	_, err = a.auth.Login(ctx, &LoginInput{Login: "ada", Password: "correct-horse"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = a.auth.Login(ctx, &LoginInput{Login: "ada", Password: "new-password-1"})
	assert.NoError(t, err)
}

func TestSetAvatar(t *testing.T) {
	a := newAccounts(t)
	ctx := a.tdb.Context(t)
	ada := actorOf(a.registerConfirmed(t, "ada"))

	first, err := a.users.SetAvatar(ctx, ada, "Me.PNG", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first.Image, "avatars/"))

	f, err := a.files.Open(first.Image)
	require.NoError(t, err)
	f.Close()

	second, err := a.users.SetAvatar(ctx, ada, "me.jpg", strings.NewReader("jpg-bytes"))
	require.NoError(t, err)
	assert.NotEqual(t, first.Image, second.Image)

	_, err = a.files.Open(first.Image)
	assert.Error(t, err, "previous avatar is removed")

	_, err = a.users.SetAvatar(ctx, ada, "script.exe", strings.NewReader("x"))
	assert.ErrorIs(t, err, storage.ErrUnsupportedType)

	profile, err := a.users.Profile(ctx, ada)
	require.NoError(t, err)
	assert.Equal(t, second.Image, profile.Image)
}

func TestDeleteAccount(t *testing.T) {
	a := newAccounts(t)
	ctx := a.tdb.Context(t)
	ada := actorOf(a.registerConfirmed(t, "ada"))

	item := a.tdb.Item(t, "Dune", true)
	now := newClock().Now()
	a.tdb.Loan(t, ada.MemberID, item.ID, now, now.AddDate(0, 0, 14))
	require.False(t, a.tdb.Available(t, item.ID))

	assert.ErrorIs(t, a.users.DeleteAccount(ctx, ada, "wrong-password"), ErrOldPasswordWrong)
	require.NoError(t, a.users.DeleteAccount(ctx, ada, "correct-horse"))

	assert.True(t, a.tdb.Available(t, item.ID))

	var users, members, loans int64
	require.NoError(t, a.tdb.DB.Unscoped().Model(&models.User{}).Count(&users).Error)
	require.NoError(t, a.tdb.DB.Model(&models.Member{}).Count(&members).Error)
	require.NoError(t, a.tdb.DB.Model(&models.Loan{}).Count(&loans).Error)
	assert.Zero(t, users)
	assert.Zero(t, members)
	assert.Zero(t, loans)

	_, err := a.auth.Login(ctx, &LoginInput{Login: "ada", Password: "correct-horse"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestSetRole(t *testing.T) {
	a := newAccounts(t)
	ctx := a.tdb.Context(t)
	ada := actorOf(a.registerConfirmed(t, "ada"))

	admin, err := a.auth.SetupAdmin(ctx, &SetupAdminInput{
		Username:        "head",
		Email:           "head@school.test",
		Password:        "admin-password",
		ConfirmPassword: "admin-password",
	})
	require.NoError(t, err)
	adminAct := domain.Actor{UserID: admin.ID, Username: admin.Username, Role: domain.RoleAdmin}

	_, err = a.users.SetRole(ctx, staffActor, ada.UserID, "staff")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = a.users.SetRole(ctx, adminAct, admin.ID, "member")
	assert.ErrorIs(t, err, ErrCannotChangeOwnRole)

	_, err = a.users.SetRole(ctx, adminAct, ada.UserID, "librarian")
	assert.ErrorIs(t, err, domain.ErrUnknownRole)

	promoted, err := a.users.SetRole(ctx, adminAct, ada.UserID, "Staff")
	require.NoError(t, err)
	assert.Equal(t, "staff", promoted.Role)

	session, err := a.auth.Login(ctx, &LoginInput{Login: "ada", Password: "correct-horse"})
	require.NoError(t, err)
	claims, err := a.auth.ValidateAccessToken(session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "staff", claims.Role)

	users, total, err := a.users.ListUsers(ctx, adminAct, repositories.UserFilter{Role: "staff"}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, users, 1)
	assert.Equal(t, "ada", users[0].Username)

	_, _, err = a.users.ListUsers(ctx, staffActor, repositories.UserFilter{}, 0, 10)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

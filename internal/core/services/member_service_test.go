package services

import (
	"testing"

	"school-library/internal/adapters/persistence/models"
	"school-library/internal/adapters/persistence/repositories"
	"school-library/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemberCreate(t *testing.T) {
	a := newAccounts(t)
	ctx := a.tdb.Context(t)

	t.Run("plain member", func(t *testing.T) {
		created, err := a.members.Create(ctx, staffActor, &CreateMemberInput{
			FirstName:  "Grace",
			LastName:   "Hopper",
			Email:      "Grace@School.test",
			ClassGroup: "6A",
		})
		require.NoError(t, err)
		assert.Equal(t, "grace@school.test", created.Member.Email)
		assert.Equal(t, domain.MemberStatusActive, created.Member.Status)
		assert.Equal(t, "Grace Hopper", created.Member.FullName)
		assert.Nil(t, created.User)
	})

	t.Run("with generated account", func(t *testing.T) {
		created, err := a.members.Create(ctx, staffActor, &CreateMemberInput{
			FirstName:     "Alan",
			LastName:      "Turing",
			Email:         "alan@school.test",
			Status:        "inactive",
			CreateAccount: true,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.MemberStatusInactive, created.Member.Status)
		require.NotNil(t, created.User)
		assert.Equal(t, "alan", created.User.Username)
		assert.True(t, created.User.Confirmed)
		assert.Equal(t, created.Member.ID, *created.User.MemberID)
		require.NotEmpty(t, created.GeneratedPassword)

		session, err := a.auth.Login(ctx, &LoginInput{Login: "alan", Password: created.GeneratedPassword})
		require.NoError(t, err)
		assert.NotEmpty(t, session.AccessToken)
	})

	t.Run("account failure removes member", func(t *testing.T) {
		_, err := a.members.Create(ctx, staffActor, &CreateMemberInput{
			FirstName:       "Alan",
			LastName:        "Clone",
			Email:           "clone@school.test",
			CreateAccount:   true,
			Username:        "alan",
			Password:        "long-enough-1",
			ConfirmPassword: "long-enough-1",
		})
		assert.ErrorIs(t, err, ErrUserAlreadyExists)

		_, err = a.tdb.Repos.Members.GetByEmail(ctx, "clone@school.test")
		assert.Error(t, err, "member is compensated away")
	})

	t.Run("rejections", func(t *testing.T) {
		_, err := a.members.Create(ctx, memberActor(1), &CreateMemberInput{FirstName: "X", LastName: "Y", Email: "x@school.test"})
		assert.ErrorIs(t, err, domain.ErrForbidden)

		_, err = a.members.Create(ctx, staffActor, &CreateMemberInput{FirstName: "X", Email: "x@school.test"})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		_, err = a.members.Create(ctx, staffActor, &CreateMemberInput{FirstName: "X", LastName: "Y", Email: "grace@school.test"})
		assert.ErrorIs(t, err, ErrEmailAlreadyExists)

		_, err = a.members.Create(ctx, staffActor, &CreateMemberInput{FirstName: "X", LastName: "Y", Email: "x@school.test", Status: "suspended"})
		assert.ErrorIs(t, err, ErrInvalidStatus)
	})
}

func TestMemberUpdate_SyncsAccountEmail(t *testing.T) {
	a := newAccounts(t)
	ctx := a.tdb.Context(t)
	ada := actorOf(a.registerConfirmed(t, "ada"))
	other := a.tdb.Member(t, "Other", "Person")

	member, err := a.members.Update(ctx, staffActor, ada.MemberID, &UpdateMemberInput{
		Email:      strPtr("ada.new@school.test"),
		ClassGroup: strPtr("7C"),
		Status:     strPtr("Inactive"),
	})
	require.NoError(t, err)
	assert.Equal(t, "ada.new@school.test", member.Email)
	assert.Equal(t, "7C", member.ClassGroup)
	assert.Equal(t, domain.MemberStatusInactive, member.Status)

	user, err := a.tdb.Repos.Users.GetByID(ctx, ada.UserID)
	require.NoError(t, err)
	assert.Equal(t, "ada.new@school.test", user.Email)

	_, err = a.members.Update(ctx, staffActor, ada.MemberID, &UpdateMemberInput{Email: strPtr(other.Email)})
	assert.ErrorIs(t, err, ErrEmailAlreadyExists)

	_, err = a.members.Update(ctx, staffActor, ada.MemberID, &UpdateMemberInput{FirstName: strPtr("  ")})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = a.members.Update(ctx, staffActor, 9999, &UpdateMemberInput{})
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestMemberGetAndList(t *testing.T) {
	a := newAccounts(t)
	ctx := a.tdb.Context(t)
	ada := a.tdb.Member(t, "Ada", "Lovelace")
	bob := a.tdb.Member(t, "Bob", "Builder")

	got, err := a.members.Get(ctx, memberActor(ada.ID), ada.ID)
	require.NoError(t, err)
	assert.Equal(t, ada.Email, got.Email)

	_, err = a.members.Get(ctx, memberActor(ada.ID), bob.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = a.members.Get(ctx, staffActor, 9999)
	assert.ErrorIs(t, err, ErrMemberNotFound)

	members, total, err := a.members.List(ctx, staffActor, repositories.MemberFilter{Search: "bob"}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, members, 1)
	assert.Equal(t, bob.ID, members[0].ID)

	_, _, err = a.members.List(ctx, memberActor(ada.ID), repositories.MemberFilter{}, 0, 10)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestMemberDelete(t *testing.T) {
	a := newAccounts(t)
	ctx := a.tdb.Context(t)
	ada := actorOf(a.registerConfirmed(t, "ada"))
	now := newClock().Now()

	open := a.tdb.Item(t, "Dune", true)
	loan := a.tdb.Loan(t, ada.MemberID, open.ID, now, now.AddDate(0, 0, 14))
	assert.ErrorIs(t, a.members.Delete(ctx, staffActor, ada.MemberID), ErrMemberHasOpenLoans)

	require.NoError(t, a.tdb.DB.Model(&models.Loan{}).Where("id = ?", loan.ID).
		Updates(map[string]interface{}{"returned_at": now, "status": domain.LoanStatusReturned}).Error)
	old := a.tdb.Item(t, "Emma", true)
	late := a.tdb.ReturnedLoan(t, ada.MemberID, old.ID, now.AddDate(0, 0, -20), now.AddDate(0, 0, -18), "1.00")

	assert.ErrorIs(t, a.members.Delete(ctx, memberActor(ada.MemberID), ada.MemberID), domain.ErrForbidden)

	// an unsettled fine keeps the member and its history
	assert.ErrorIs(t, a.members.Delete(ctx, staffActor, ada.MemberID), ErrMemberHasUnpaidFines)
	var kept int64
	require.NoError(t, a.tdb.DB.Model(&models.Loan{}).Where("member_id = ?", ada.MemberID).Count(&kept).Error)
	assert.Equal(t, int64(2), kept)

	settled, err := a.tdb.Repos.Loans.SettleFine(ctx, late.ID, now)
	require.NoError(t, err)
	require.True(t, settled)
	require.NoError(t, a.members.Delete(ctx, staffActor, ada.MemberID))

	_, err = a.tdb.Repos.Members.GetByID(ctx, ada.MemberID)
	assert.Error(t, err)

	var loans int64
	require.NoError(t, a.tdb.DB.Model(&models.Loan{}).Where("member_id = ?", ada.MemberID).Count(&loans).Error)
	assert.Zero(t, loans)

	// the account survives without its member link
	user, err := a.tdb.Repos.Users.GetByID(ctx, ada.UserID)
	require.NoError(t, err)
	assert.Nil(t, user.MemberID)

	assert.ErrorIs(t, a.members.Delete(ctx, staffActor, ada.MemberID), ErrMemberNotFound)
}

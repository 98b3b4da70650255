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

func intPtr(v int) *int { return &v }

func newCatalog(t *testing.T) (*CatalogService, *accounts) {
	t.Helper()
	a := newAccounts(t)
	return NewCatalogService(a.tdb.Repos, a.files), a
}

func TestItemStatus(t *testing.T) {
	assert.Nil(t, ItemStatus(""))
	assert.Nil(t, ItemStatus("all"))
	require.NotNil(t, ItemStatus("Available"))
	assert.True(t, *ItemStatus("available"))
	assert.False(t, *ItemStatus("borrowed"))
}

func TestNormalizeISBN(t *testing.T) {
	assert.Equal(t, "9780441172719", normalizeISBN(" 978-0-441-17271-9 "))
	assert.Equal(t, "044117271X", normalizeISBN("0 441 17271 x"))
}

func TestCatalogCreateAndUpdate(t *testing.T) {
	catalog, a := newCatalog(t)
	ctx := a.tdb.Context(t)

	item, err := catalog.Create(ctx, staffActor, &ItemInput{
		Title:           strPtr(" Dune "),
		Author:          strPtr("Frank Herbert"),
		ISBN:            strPtr("978-0-441-17271-9"),
		PublicationYear: intPtr(1965),
		Category:        strPtr("Science Fiction"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Dune", item.Title)
	require.NotNil(t, item.ISBN)
	assert.Equal(t, "9780441172719", *item.ISBN)
	assert.True(t, item.Available)

	_, err = catalog.Create(ctx, memberActor(1), &ItemInput{Title: strPtr("X"), Author: strPtr("Y")})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = catalog.Create(ctx, staffActor, &ItemInput{Title: strPtr("X")})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = catalog.Create(ctx, staffActor, &ItemInput{Title: strPtr("X"), Author: strPtr("Y"), ISBN: strPtr("9780441172719")})
	assert.ErrorIs(t, err, ErrDuplicateISBN)

	_, err = catalog.Create(ctx, staffActor, &ItemInput{Title: strPtr("X"), Author: strPtr("Y"), ISBN: strPtr("12345")})
	assert.ErrorIs(t, err, ErrInvalidISBN)

	_, err = catalog.Create(ctx, staffActor, &ItemInput{Title: strPtr("X"), Author: strPtr("Y"), PublicationYear: intPtr(3000)})
	assert.ErrorIs(t, err, ErrInvalidYear)

	// keeping its own ISBN is not a duplicate
	updated, err := catalog.Update(ctx, staffActor, item.ID, &ItemInput{
		ISBN:    strPtr("9780441172719"),
		Summary: strPtr("Spice and sandworms."),
	})
	require.NoError(t, err)
	assert.Equal(t, "Dune", updated.Title)
	assert.Equal(t, "Spice and sandworms.", updated.Summary)
	assert.Equal(t, 1965, updated.PublicationYear)

	cleared, err := catalog.Update(ctx, staffActor, item.ID, &ItemInput{ISBN: strPtr("")})
	require.NoError(t, err)
	assert.Nil(t, cleared.ISBN)

	_, err = catalog.Update(ctx, staffActor, item.ID, &ItemInput{Author: strPtr(" ")})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = catalog.Update(ctx, staffActor, 9999, &ItemInput{})
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestCatalogListAndCategories(t *testing.T) {
	catalog, a := newCatalog(t)
	ctx := a.tdb.Context(t)
	a.tdb.Item(t, "Dune", true)
	a.tdb.Item(t, "Emma", false)
	_, err := catalog.Create(ctx, staffActor, &ItemInput{Title: strPtr("Cosmos"), Author: strPtr("Carl Sagan"), Category: strPtr("Science")})
	require.NoError(t, err)

	items, total, err := catalog.List(ctx, repositories.ItemFilter{Available: ItemStatus("available")}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, items, 2)

	items, total, err = catalog.List(ctx, repositories.ItemFilter{Search: "sagan"}, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "Cosmos", items[0].Title)

	categories, err := catalog.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Fiction", "Science"}, categories)
}

func TestCatalogDelete(t *testing.T) {
	catalog, a := newCatalog(t)
	ctx := a.tdb.Context(t)
	now := newClock().Now()
	m := a.tdb.Member(t, "Ada", "Lovelace")
	other := a.tdb.Member(t, "Bob", "Builder")

	lent := a.tdb.Item(t, "Dune", true)
	a.tdb.Loan(t, m.ID, lent.ID, now, now.AddDate(0, 0, 14))
	assert.ErrorIs(t, catalog.Delete(ctx, staffActor, lent.ID), ErrItemOnLoan)

	reserved := a.tdb.Item(t, "Emma", true)
	reservation := &models.Reservation{
		MemberID:   other.ID,
		ItemID:     reserved.ID,
		ReservedAt: now,
		Status:     domain.ReservationStatusActive,
	}
	require.NoError(t, a.tdb.DB.Omit("Member", "Item").Create(reservation).Error)

	assert.ErrorIs(t, catalog.Delete(ctx, memberActor(m.ID), reserved.ID), domain.ErrForbidden)
	require.NoError(t, catalog.Delete(ctx, staffActor, reserved.ID))

	_, err := catalog.Get(ctx, reserved.ID)
	assert.ErrorIs(t, err, ErrItemNotFound)

	var stored models.Reservation
	require.NoError(t, a.tdb.DB.First(&stored, reservation.ID).Error)
	assert.Equal(t, domain.ReservationStatusCancelled, stored.Status)
	assert.NotNil(t, stored.ResolvedAt)

	assert.ErrorIs(t, catalog.Delete(ctx, staffActor, reserved.ID), ErrItemNotFound)
}

func TestCatalogAttachments(t *testing.T) {
	catalog, a := newCatalog(t)
	ctx := a.tdb.Context(t)
	item := a.tdb.Item(t, "Dune", true)

	withContent, err := catalog.AttachContent(ctx, staffActor, item.ID, "Dune Full Text.pdf", strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(withContent.ContentFile, "content/"))
	assert.True(t, strings.HasSuffix(withContent.ContentFile, "dune_full_text.pdf"))

	_, err = catalog.AttachContent(ctx, staffActor, item.ID, "cover.png", strings.NewReader("x"))
	assert.ErrorIs(t, err, storage.ErrUnsupportedType)

	withCover, err := catalog.AttachCover(ctx, staffActor, item.ID, "cover.png", strings.NewReader("png"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(withCover.CoverImage, "covers/"))
	assert.Equal(t, withContent.ContentFile, withCover.ContentFile)

	replaced, err := catalog.AttachContent(ctx, staffActor, item.ID, "second.pdf", strings.NewReader("%PDF-1.5"))
	require.NoError(t, err)
	_, err = a.files.Open(withContent.ContentFile)
	assert.Error(t, err, "replaced content is removed")
	f, err := a.files.Open(replaced.ContentFile)
	require.NoError(t, err)
	f.Close()

	_, err = catalog.AttachCover(ctx, memberActor(1), item.ID, "cover.png", strings.NewReader("png"))
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestHeldItemIDs(t *testing.T) {
	catalog, a := newCatalog(t)
	ctx := a.tdb.Context(t)
	now := newClock().Now()
	m := a.tdb.Member(t, "Ada", "Lovelace")
	held := a.tdb.Item(t, "Dune", true)
	returned := a.tdb.Item(t, "Emma", true)
	a.tdb.Loan(t, m.ID, held.ID, now, now.AddDate(0, 0, 14))
	a.tdb.ReturnedLoan(t, m.ID, returned.ID, now.AddDate(0, 0, -3), now.AddDate(0, 0, -4), "0")

	ids, err := catalog.HeldItemIDs(ctx, memberActor(m.ID))
	require.NoError(t, err)
	assert.Equal(t, []uint{held.ID}, ids)

	ids, err = catalog.HeldItemIDs(ctx, staffActor)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

package testdb

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"school-library/internal/adapters/persistence/models"
	"school-library/internal/core/domain"

	"github.com/shopspring/decimal"
)

// Member inserts an active member
func (tdb *TestDB) Member(t *testing.T, first, last string) *models.Member {
	t.Helper()
	m := &models.Member{
		FirstName: first,
		LastName:  last,
		Email:     strings.ToLower(fmt.Sprintf("%s.%s@school.test", first, last)),
		Status:    domain.MemberStatusActive,
	}
	if err := tdb.DB.Create(m).Error; err != nil {
		t.Fatalf("testdb: create member: %v", err)
	}
	return m
}

// Item inserts a catalog item
func (tdb *TestDB) Item(t *testing.T, title string, available bool) *models.Item {
	t.Helper()
	item := &models.Item{
		Title:     title,
		Author:    "Anon",
		Category:  "Fiction",
		Available: available,
	}
	if err := tdb.DB.Create(item).Error; err != nil {
		t.Fatalf("testdb: create item: %v", err)
	}
	return item
}

// Loan inserts a loan row as given and marks the item unavailable when open
func (tdb *TestDB) Loan(t *testing.T, memberID, itemID uint, borrowedAt, dueAt time.Time) *models.Loan {
	t.Helper()
	loan := &models.Loan{
		MemberID:   memberID,
		ItemID:     itemID,
		BorrowedAt: borrowedAt.UTC(),
		DueAt:      dueAt.UTC(),
		Status:     domain.LoanStatusActive,
		Fine:       decimal.Zero,
	}
	if err := tdb.DB.Omit("Member", "Item").Create(loan).Error; err != nil {
		t.Fatalf("testdb: create loan: %v", err)
	}
	if err := tdb.DB.Model(&models.Item{}).Where("id = ?", itemID).Update("available", false).Error; err != nil {
		t.Fatalf("testdb: mark item: %v", err)
	}
	return loan
}

// ReturnedLoan inserts a closed loan carrying fine
func (tdb *TestDB) ReturnedLoan(t *testing.T, memberID, itemID uint, dueAt, returnedAt time.Time, fine string) *models.Loan {
	t.Helper()
	returned := returnedAt.UTC()
	loan := &models.Loan{
		MemberID:   memberID,
		ItemID:     itemID,
		BorrowedAt: dueAt.AddDate(0, 0, -14).UTC(),
		DueAt:      dueAt.UTC(),
		ReturnedAt: &returned,
		Status:     domain.LoanStatusReturned,
		Fine:       decimal.RequireFromString(fine),
	}
	if err := tdb.DB.Omit("Member", "Item").Create(loan).Error; err != nil {
		t.Fatalf("testdb: create returned loan: %v", err)
	}
	return loan
}

// Reload re-reads a loan
func (tdb *TestDB) Reload(t *testing.T, loanID uint) *models.Loan {
	t.Helper()
	var loan models.Loan
	if err := tdb.DB.First(&loan, loanID).Error; err != nil {
		t.Fatalf("testdb: reload loan %d: %v", loanID, err)
	}
	return &loan
}

// Available reports the stored availability of an item
func (tdb *TestDB) Available(t *testing.T, itemID uint) bool {
	t.Helper()
	var item models.Item
	if err := tdb.DB.Unscoped().First(&item, itemID).Error; err != nil {
		t.Fatalf("testdb: reload item %d: %v", itemID, err)
	}
	return item.Available
}

package services

import (
	"context"
	"errors"
	"os"
	"regexp"
	"sync"
	"testing"
	"time"

	"school-library/internal/adapters/mail"
	"school-library/internal/config"
	"school-library/internal/core/domain"
	"school-library/internal/pkg/password"

	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	password.SetCost(bcrypt.MinCost)
	os.Exit(m.Run())
}

// fakeClock is a settable time source
type fakeClock struct {
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 9, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func (c *fakeClock) AdvanceDays(n int) { c.now = c.now.AddDate(0, 0, n) }

func memberActor(memberID uint) domain.Actor {
	return domain.Actor{UserID: 1000 + memberID, MemberID: memberID, Username: "member", Role: domain.RoleMember}
}

var staffActor = domain.Actor{UserID: 1, Username: "librarian", Role: domain.RoleStaff}

var adminActor = domain.Actor{UserID: 2, Username: "admin", Role: domain.RoleAdmin}

// fakeMailer records messages instead of sending them
type fakeMailer struct {
	mu       sync.Mutex
	disabled bool
	fail     bool
	sent     []*mail.Message
}

func (m *fakeMailer) Enabled() bool { return !m.disabled }

func (m *fakeMailer) Send(_ context.Context, msg *mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("smtp: connection refused")
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *fakeMailer) last() *mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return nil
	}
	return m.sent[len(m.sent)-1]
}

var codePattern = regexp.MustCompile(`\b\d{6}\b`)

// lastCode extracts the verification code from the latest message
func (m *fakeMailer) lastCode() string {
	msg := m.last()
	if msg == nil {
		return ""
	}
	return codePattern.FindString(msg.Body)
}

func testConfig() *config.Config {
	return &config.Config{
		AppMode: "dev",
		JWT: config.JWTConfig{
			Secret:           "test-access-secret",
			RefreshSecret:    "test-refresh-secret",
			AccessTokenMins:  15,
			RefreshTokenDays: 7,
		},
		Mail: config.MailConfig{LibraryAddress: "library@school.test"},
	}
}

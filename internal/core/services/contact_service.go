package services

import (
	"context"
	"errors"
	"log"
	"strings"

	"school-library/internal/adapters/persistence/repositories"
	"school-library/internal/core/domain"

	"gorm.io/gorm"
)

// ErrContactFromAdmin rejects contact messages that claim an administrator address
var ErrContactFromAdmin = errors.New("this email address cannot be used for contact messages")

// ContactService forwards public contact form messages to the library
type ContactService struct {
	users    repositories.UserRepository
	notifier *NotificationService
	to       string
}

// NewContactService creates a new contact service
func NewContactService(users repositories.UserRepository, notifier *NotificationService, libraryAddress string) *ContactService {
	return &ContactService{users: users, notifier: notifier, to: libraryAddress}
}

// Submit validates and mails a contact message. The flag reports delivery.
func (s *ContactService) Submit(ctx context.Context, msg *ContactMessage) (bool, error) {
	if err := required("name", msg.Name, "email", msg.Email, "subject", msg.Subject, "message", msg.Message); err != nil {
		return false, err
	}
	email, err := normalizeEmail(msg.Email)
	if err != nil {
		return false, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil && user.Role == domain.RoleAdmin.String():
		return false, ErrContactFromAdmin
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return false, err
	}

	out := &ContactMessage{
		Name:    strings.TrimSpace(msg.Name),
		Email:   email,
		Subject: strings.TrimSpace(msg.Subject),
		Message: strings.TrimSpace(msg.Message),
	}
	if err := s.notifier.SendContact(ctx, s.to, out); err != nil {
		return false, nil
	}

	log.Printf("📧 Contact message from %s forwarded", email)
	return true, nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"school-library/internal/adapters/mail"
	"school-library/internal/adapters/persistence/models"
)

// NotificationService composes and sends library emails.
// Delivery failures are returned to the caller, which decides whether the
// operation still succeeds; they are never fatal to the request.
type NotificationService struct {
	mailer Mailer
}

// NewNotificationService creates a new notification service
func NewNotificationService(mailer Mailer) *NotificationService {
	return &NotificationService{mailer: mailer}
}

// IsEnabled checks if notification is enabled
func (s *NotificationService) IsEnabled() bool {
	return s.mailer != nil && s.mailer.Enabled()
}

func (s *NotificationService) send(ctx context.Context, msg *mail.Message) error {
	if !s.IsEnabled() {
		log.Printf("⚠️ Mail disabled, not sending %q to %v", msg.Subject, msg.To)
		return mail.ErrDisabled
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		log.Printf("❌ Failed to send %q to %v: %v", msg.Subject, msg.To, err)
		return err
	}
	return nil
}

// SendVerificationCode mails a confirmation code to a new account
func (s *NotificationService) SendVerificationCode(ctx context.Context, user *models.User, code string, validFor time.Duration) error {
	body := fmt.Sprintf(`Hello %s,

Your library account verification code is: %s

The code is valid for %d minutes.
If you did not create an account, you can ignore this message.`,
		user.Username, code, int(validFor.Minutes()))

	return s.send(ctx, &mail.Message{
		To:      []string{user.Email},
		Subject: "Your library verification code",
		Body:    body,
	})
}

// SendOverdueReminder reminds a member of their overdue loans
func (s *NotificationService) SendOverdueReminder(ctx context.Context, member *models.Member, loans []*models.Loan) error {
	if member == nil || len(loans) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\nThe following items are overdue:\n\n", member.FullName())
	for _, l := range loans {
		title := fmt.Sprintf("item #%d", l.ItemID)
		if l.Item != nil {
			title = l.Item.Title
		}
		fmt.Fprintf(&b, "  - %s (due %s, fine so far %s)\n", title, l.DueAt.Format("2006-01-02"), l.Fine.StringFixed(2))
	}
	b.WriteString("\nPlease return them to the library as soon as possible.")

	return s.send(ctx, &mail.Message{
		To:      []string{member.Email},
		Subject: "Overdue library items",
		Body:    b.String(),
	})
}

// ContactMessage is a message from the public contact form
type ContactMessage struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// SendContact forwards a contact form message to the library address
func (s *NotificationService) SendContact(ctx context.Context, to string, msg *ContactMessage) error {
	if to == "" {
		return errors.New("no library address configured")
	}
	body := fmt.Sprintf("From: %s <%s>\n\n%s", msg.Name, msg.Email, msg.Message)
	return s.send(ctx, &mail.Message{
		To:      []string{to},
		ReplyTo: msg.Email,
		Subject: "[Contact] " + msg.Subject,
		Body:    body,
	})
}

package services

import (
	"context"
	"io"

	"school-library/internal/adapters/mail"
	"school-library/internal/adapters/storage"
)

// Mailer delivers email. mail.SMTPMailer implements it.
type Mailer interface {
	Enabled() bool
	Send(ctx context.Context, msg *mail.Message) error
}

// FileStore keeps uploaded files. storage.Local implements it.
type FileStore interface {
	Save(kind storage.Kind, originalName string, r io.Reader) (string, error)
	Remove(name string) error
}

package services

import (
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"

	"school-library/internal/core/domain"
	"school-library/internal/pkg/password"
)

// Validation errors
var (
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrInvalidUsername  = errors.New("username must be 3 to 80 characters")
	ErrWeakPassword     = errors.New("password must be at least 8 characters")
	ErrPasswordMismatch = errors.New("passwords do not match")
)

// normalizeEmail trims, validates and lower-cases an address
func normalizeEmail(s string) (string, error) {
	s = strings.TrimSpace(s)
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(s), nil
}

func validateUsername(s string) (string, error) {
	s = strings.TrimSpace(s)
	if n := utf8.RuneCountInString(s); n < 3 || n > 80 || strings.ContainsAny(s, " @") {
		return "", ErrInvalidUsername
	}
	return s, nil
}

func validateNewPassword(pw, confirm string) error {
	if !password.ValidatePassword(pw) {
		return ErrWeakPassword
	}
	if pw != confirm {
		return ErrPasswordMismatch
	}
	return nil
}

// required takes name/value pairs and reports the first blank one
func required(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return &fieldError{field: pairs[i]}
		}
	}
	return nil
}

type fieldError struct {
	field string
}

func (e *fieldError) Error() string {
	return e.field + " is required"
}

func (e *fieldError) Unwrap() error {
	return domain.ErrInvalidInput
}

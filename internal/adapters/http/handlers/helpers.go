package handlers

import (
	"errors"
	"log"
	"strconv"

	"school-library/internal/adapters/storage"
	"school-library/internal/core/domain"
	"school-library/internal/core/services"
	"school-library/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// errUnauthenticated is returned by actorFrom when the auth locals are missing
var errUnauthenticated = errors.New("unauthenticated")

// actorFrom builds the caller identity from the locals set by the auth
// middleware
func actorFrom(c *fiber.Ctx) (domain.Actor, error) {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		return domain.Actor{}, errUnauthenticated
	}
	roleName, _ := c.Locals("role").(string)
	role, err := domain.ParseRole(roleName)
	if err != nil {
		return domain.Actor{}, errUnauthenticated
	}
	memberID, _ := c.Locals("memberID").(uint)
	username, _ := c.Locals("username").(string)

	return domain.Actor{
		UserID:   userID,
		MemberID: memberID,
		Username: username,
		Role:     role,
	}, nil
}

// paramID parses a numeric path parameter
func paramID(c *fiber.Ctx, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Params(name), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// queryID parses an optional numeric query parameter; 0 means absent
func queryID(c *fiber.Ctx, name string) uint {
	id, err := strconv.ParseUint(c.Query(name), 10, 32)
	if err != nil {
		return 0
	}
	return uint(id)
}

var notFoundErrors = []error{
	domain.ErrNotFound,
	services.ErrUserNotFound,
	services.ErrMemberNotFound,
	services.ErrItemNotFound,
	services.ErrLoanNotFound,
	services.ErrReservationNotFound,
}

var conflictErrors = []error{
	domain.ErrDuplicateEntry,
	services.ErrUserAlreadyExists,
	services.ErrEmailAlreadyExists,
	services.ErrDuplicateISBN,
	services.ErrItemOnLoan,
	services.ErrMemberHasOpenLoans,
	services.ErrMemberHasUnpaidFines,
	services.ErrAdminExists,
	services.ErrAlreadyConfirmed,
	services.ErrConcurrentUpdate,
}

var badRequestErrors = []error{
	domain.ErrInvalidInput,
	domain.ErrInvalidPolicy,
	domain.ErrUnknownRole,
	services.ErrInvalidEmail,
	services.ErrInvalidUsername,
	services.ErrWeakPassword,
	services.ErrPasswordMismatch,
	services.ErrInvalidStatus,
	services.ErrInvalidYear,
	services.ErrInvalidISBN,
	services.ErrInvalidDueDate,
	services.ErrInvalidCode,
	services.ErrCodeExpired,
	services.ErrOldPasswordWrong,
	services.ErrCannotChangeOwnRole,
	services.ErrUnknownReport,
	services.ErrUnknownFormat,
	services.ErrContactFromAdmin,
	storage.ErrUnsupportedType,
	storage.ErrTooLarge,
	storage.ErrInvalidName,
}

var unauthorizedErrors = []error{
	errUnauthenticated,
	domain.ErrUnauthorized,
	domain.ErrInvalidCredentials,
	services.ErrInvalidToken,
	services.ErrTokenExpired,
	services.ErrTokenRevoked,
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// fail maps a service error onto the response envelope. Policy rejections
// answer 409 with their code; unknown errors are logged and answer 500 with
// the fallback message.
func fail(c *fiber.Ctx, err error, fallback string) error {
	if handled, rerr := response.Rejected(c, err); handled {
		return rerr
	}

	switch {
	case isAny(err, unauthorizedErrors):
		return response.Unauthorized(c, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		return response.Forbidden(c, "You don't have permission to access this resource")
	case errors.Is(err, services.ErrUserInactive), errors.Is(err, services.ErrNoLinkedMember):
		return response.Forbidden(c, err.Error())
	case errors.Is(err, services.ErrResendThrottled):
		return response.TooManyRequests(c, err.Error())
	case isAny(err, notFoundErrors):
		return response.NotFound(c, err.Error())
	case isAny(err, conflictErrors):
		return response.Conflict(c, err.Error())
	case isAny(err, badRequestErrors):
		return response.BadRequest(c, err.Error())
	default:
		log.Printf("❌ %s %s: %v", c.Method(), c.Path(), err)
		return response.InternalServerError(c, fallback)
	}
}

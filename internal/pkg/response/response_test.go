package response

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"school-library/internal/core/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, app *fiber.App, path string) (int, Response) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", path, nil))
	require.NoError(t, err)

	var body Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestRejected(t *testing.T) {
	app := fiber.New()
	app.Get("/rejected", func(c *fiber.Ctx) error {
		_, err := Rejected(c, domain.Reject(domain.ErrLoanLimitReached, "loan limit reached (3 of 3)"))
		return err
	})
	app.Get("/other", func(c *fiber.Ctx) error {
		if ok, err := Rejected(c, errors.New("boom")); ok {
			return err
		}
		return InternalServerError(c, "failed")
	})

	status, body := decode(t, app, "/rejected")
	assert.Equal(t, fiber.StatusConflict, status)
	assert.False(t, body.Success)
	assert.Equal(t, "loan_limit_reached", body.Code)
	assert.Equal(t, "loan limit reached (3 of 3)", body.Error)

	status, body = decode(t, app, "/other")
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Empty(t, body.Code)
}

func TestSuccessEnvelope(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return Created(c, "done", fiber.Map{"id": 1})
	})

	status, body := decode(t, app, "/")
	assert.Equal(t, fiber.StatusCreated, status)
	assert.True(t, body.Success)
	assert.Equal(t, "done", body.Message)
}

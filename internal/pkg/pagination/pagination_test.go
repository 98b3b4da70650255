package pagination

import (
	"io"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name             string
		page, limit      int
		wantPage, wantLm int
		wantOffset       int
	}{
		{"defaults", 0, 0, 1, DefaultLimit, 0},
		{"third page", 3, 10, 3, 10, 20},
		{"limit clamped", 1, 500, 1, MaxLimit, 0},
		{"negative page", -4, 5, 1, 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.page, tt.limit)
			assert.Equal(t, tt.wantPage, p.Page)
			assert.Equal(t, tt.wantLm, p.Limit)
			assert.Equal(t, tt.wantOffset, p.Offset)
		})
	}
}

func TestGetMeta(t *testing.T) {
	m := GetMeta(New(2, 10), 25)
	assert.Equal(t, 3, m.TotalPages)
	assert.True(t, m.HasNext)
	assert.True(t, m.HasPrev)

	empty := GetMeta(New(1, 10), 0)
	assert.Equal(t, 0, empty.TotalPages)
	assert.False(t, empty.HasNext)
}

func TestGetParams(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		p := GetParams(c)
		return c.SendString(strconv.Itoa(p.Page) + "," + strconv.Itoa(p.Limit))
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/?page=2&per_page=5", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "2,5", string(body))
}

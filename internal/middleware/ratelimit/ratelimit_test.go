package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(rl *RateLimiter) *fiber.App {
	app := fiber.New()
	app.Use(rl.Middleware())
	app.Get("/api/v1/health", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/api/v1/dashboard/pipeline", func(c *fiber.Ctx) error { return c.SendString("ok") })
	return app
}

func get(t *testing.T, app *fiber.App, path, user string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestMiddlewareLimitsPerKey(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 2, ExemptPrefixes: []string{"/api/v1/health"}})
	defer rl.Stop()

	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }
	app := newApp(rl)

	assert.Equal(t, http.StatusOK, get(t, app, "/api/v1/dashboard/pipeline", "u1").StatusCode)
	assert.Equal(t, http.StatusOK, get(t, app, "/api/v1/dashboard/pipeline", "u1").StatusCode)

	resp := get(t, app, "/api/v1/dashboard/pipeline", "u1")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "30", resp.Header.Get("Retry-After"))

	assert.Equal(t, http.StatusOK, get(t, app, "/api/v1/dashboard/pipeline", "u2").StatusCode)

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, get(t, app, "/api/v1/health", "u1").StatusCode)
	}

	clock = clock.Add(30 * time.Second)
	assert.Equal(t, http.StatusOK, get(t, app, "/api/v1/dashboard/pipeline", "u1").StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, get(t, app, "/api/v1/dashboard/pipeline", "u1").StatusCode)
}

func TestAllowRefillsUpToCapacity(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 3})
	defer rl.Stop()

	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		ok, _ := rl.allow("k")
		require.True(t, ok)
	}
	ok, wait := rl.allow("k")
	assert.False(t, ok)
	assert.Equal(t, 20*time.Second, wait)

	clock = clock.Add(time.Hour)
	for i := 0; i < 3; i++ {
		ok, _ := rl.allow("k")
		assert.True(t, ok)
	}
	ok, _ = rl.allow("k")
	assert.False(t, ok)
}

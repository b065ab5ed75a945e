package middleware

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/walletledger/internal/httpx"
	"github.com/congo-pay/walletledger/internal/logging"
	"github.com/congo-pay/walletledger/internal/model"
)

type stubVerifier struct {
	actor model.Actor
}

func (s stubVerifier) Authenticate(_ context.Context, token string) (model.Actor, error) {
	if token != "good" {
		return model.Actor{}, errors.New("invalid token")
	}
	return s.actor, nil
}

func TestJWTAuthSetsActor(t *testing.T) {
	actor := model.Actor{ID: uuid.New(), OrgID: uuid.New()}
	app := fiber.New()
	app.Use(JWTAuth(stubVerifier{actor: actor}))
	app.Get("/me", func(c *fiber.Ctx) error {
		got, err := httpx.Actor(c)
		if err != nil {
			return err
		}
		return c.SendString(got.OrgID.String())
	})

	req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(fiber.MethodGet, "/me", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer bad")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(fiber.MethodGet, "/me", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer good")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRateLimitPerKey(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	app := fiber.New()
	app.Post("/login", RateLimit(cache, "login", 2, ByEmailOrIP, logging.Discard()), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	post := func(email string) int {
		req := httptest.NewRequest(fiber.MethodPost, "/login", strings.NewReader(`{"email":"`+email+`"}`))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusOK, post("a@example.com"))
	assert.Equal(t, fiber.StatusOK, post("A@example.com"))
	assert.Equal(t, fiber.StatusTooManyRequests, post("a@example.com"))
	assert.Equal(t, fiber.StatusOK, post("b@example.com"))

	mr.FastForward(61 * time.Second)
	assert.Equal(t, fiber.StatusOK, post("a@example.com"))
}

func TestRateLimitFailsOpen(t *testing.T) {
	cache := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	t.Cleanup(func() { cache.Close() })

	app := fiber.New()
	app.Get("/x", RateLimit(cache, "x", 1, ByActor, logging.Discard()), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/x", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
}

func TestRequestIDPropagates(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(httpx.RequestID(c))
	})

	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "req-1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "req-1", resp.Header.Get(requestIDHeader))

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))

	req = httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, strings.Repeat("a", 100))
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.NotEqual(t, strings.Repeat("a", 100), resp.Header.Get(requestIDHeader))
	_, err = uuid.Parse(resp.Header.Get(requestIDHeader))
	assert.NoError(t, err)
}

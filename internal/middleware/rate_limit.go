package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/walletledger/internal/httpx"
)

// KeyFunc derives the bucket a request is counted against.
type KeyFunc func(c *fiber.Ctx) string

// ByActor counts requests per authenticated actor, falling back to client IP.
func ByActor(c *fiber.Ctx) string {
	if actor, err := httpx.Actor(c); err == nil {
		return actor.ID.String()
	}
	return c.IP()
}

// ByEmailOrIP counts login attempts per submitted email, falling back to IP.
func ByEmailOrIP(c *fiber.Ctx) string {
	var req struct {
		Email string `json:"email"`
	}
	_ = c.BodyParser(&req)
	if email := strings.ToLower(strings.TrimSpace(req.Email)); email != "" {
		return email
	}
	return c.IP()
}

// RateLimit allows maxPerMin requests per key in a fixed one minute window.
// It is a no-op without Redis and fails open on cache errors.
func RateLimit(cache *redis.Client, name string, maxPerMin int, keyFn KeyFunc, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cache == nil || maxPerMin <= 0 {
			return c.Next()
		}
		key := "rl:" + name + ":" + keyFn(c)
		cnt, err := cache.Incr(c.UserContext(), key).Result()
		if err != nil {
			logger.Warn("rate limit lookup failed", slog.String("limit", name), slog.Any("error", err))
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many requests, try again later")
		}
		return c.Next()
	}
}

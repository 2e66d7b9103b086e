package middleware

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	loginRatePrefix  = "rl:login:"
	loginRateWindow  = time.Minute
	loginRateTimeout = time.Second
)

// LoginRateLimit caps login attempts per username, or per client IP when the body names
// none, within a one minute window. A successful login clears the counter.
func LoginRateLimit(cache *redis.Client, maxPerMin int, logger *slog.Logger) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		key := loginRatePrefix + loginSubject(c)

		ctx, cancel := context.WithTimeout(c.UserContext(), loginRateTimeout)
		defer cancel()
		attempts, err := cache.Incr(ctx, key).Result()
		if err != nil {
			logger.Warn("login rate limit unavailable", slog.Any("error", err))
			return c.Next()
		}
		if attempts == 1 {
			cache.Expire(ctx, key, loginRateWindow)
		}
		if attempts > int64(maxPerMin) {
			retry := loginRateWindow
			if ttl, err := cache.TTL(ctx, key).Result(); err == nil && ttl > 0 {
				retry = ttl
			}
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(retry.Round(time.Second)/time.Second)))
			return fiber.NewError(fiber.StatusTooManyRequests, "too many login attempts, try again later")
		}

		if err := c.Next(); err != nil {
			return err
		}
		if c.Response().StatusCode() == fiber.StatusOK {
			resetCtx, resetCancel := context.WithTimeout(context.Background(), loginRateTimeout)
			defer resetCancel()
			cache.Del(resetCtx, key)
		}
		return nil
	}
}

func loginSubject(c *fiber.Ctx) string {
	var req struct {
		Username string `json:"username"`
	}
	_ = c.BodyParser(&req)
	if subject := strings.ToLower(strings.TrimSpace(req.Username)); subject != "" {
		return subject
	}
	return c.IP()
}

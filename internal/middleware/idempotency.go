package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idempotencyPrefix    = "idempotency:v2:"
	idempotencyTimeout   = 2 * time.Second
	maxIdempotencyKeyLen = 255
)

// idempotencyRecord is what Redis holds per key. A record without Status is a
// reservation for a request still being processed.
type idempotencyRecord struct {
	Fingerprint string            `json:"fingerprint"`
	Status      int               `json:"status,omitempty"`
	Body        string            `json:"body,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

func (r idempotencyRecord) pending() bool { return r.Status == 0 }

// Idempotency replays the stored response for a repeated Idempotency-Key. Keys are scoped
// to the authenticated caller, and reusing a key with a different request body is rejected.
// Failed requests release their key so the caller may retry.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch strings.ToUpper(c.Method()) {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		key := strings.TrimSpace(c.Get(idempotencyKeyHeader))
		if key == "" {
			return fiber.NewError(fiber.StatusBadRequest, "missing Idempotency-Key header")
		}
		if len(key) > maxIdempotencyKeyLen {
			return fiber.NewError(fiber.StatusBadRequest, "Idempotency-Key header too long")
		}

		cacheKey := idempotencyPrefix + key
		if uid, _ := c.Locals(LocalUserID).(string); uid != "" {
			cacheKey = idempotencyPrefix + uid + ":" + key
		}
		fingerprint := requestFingerprint(c)
		log := logger.With(slog.String("idempotency_key", key))

		ctx, cancel := context.WithTimeout(context.Background(), idempotencyTimeout)
		defer cancel()

		reserved, err := cache.SetNX(ctx, cacheKey, encodeRecord(idempotencyRecord{Fingerprint: fingerprint}), ttl).Result()
		if err != nil {
			log.Error("idempotency reservation failed", slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency store failure")
		}
		if !reserved {
			return replay(ctx, c, cache, cacheKey, fingerprint, log)
		}

		if err := c.Next(); err != nil {
			release(cache, cacheKey)
			return err
		}
		if c.Response().StatusCode() >= fiber.StatusInternalServerError {
			release(cache, cacheKey)
			return nil
		}

		record := idempotencyRecord{
			Fingerprint: fingerprint,
			Status:      c.Response().StatusCode(),
			Body:        string(c.Response().Body()),
			Headers:     map[string]string{},
		}
		c.Response().Header.VisitAll(func(k, v []byte) {
			record.Headers[string(k)] = string(v)
		})

		persistCtx, persistCancel := context.WithTimeout(context.Background(), idempotencyTimeout)
		defer persistCancel()
		if err := cache.Set(persistCtx, cacheKey, encodeRecord(record), ttl).Err(); err != nil {
			log.Error("failed to persist idempotent response", slog.Any("error", err))
			release(cache, cacheKey)
		}
		return nil
	}
}

func replay(ctx context.Context, c *fiber.Ctx, cache *redis.Client, cacheKey, fingerprint string, log *slog.Logger) error {
	raw, err := cache.Get(ctx, cacheKey).Result()
	if errors.Is(err, redis.Nil) {
		return fiber.NewError(fiber.StatusConflict, "duplicate request, retry")
	}
	if err != nil {
		log.Error("idempotency lookup failed", slog.Any("error", err))
		return fiber.NewError(fiber.StatusInternalServerError, "idempotency store failure")
	}

	var stored idempotencyRecord
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		log.Warn("failed to decode stored idempotent response", slog.Any("error", err))
		return fiber.NewError(fiber.StatusConflict, "duplicate request")
	}
	if stored.Fingerprint != fingerprint {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "Idempotency-Key reused with a different request")
	}
	if stored.pending() {
		return fiber.NewError(fiber.StatusConflict, "duplicate request currently processing")
	}

	for header, value := range stored.Headers {
		if strings.EqualFold(header, fiber.HeaderContentLength) {
			continue
		}
		c.Set(header, value)
	}
	c.Set("Idempotent-Replayed", "true")
	return c.Status(stored.Status).SendString(stored.Body)
}

func release(cache *redis.Client, cacheKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), idempotencyTimeout)
	defer cancel()
	cache.Del(ctx, cacheKey)
}

func requestFingerprint(c *fiber.Ctx) string {
	h := sha256.New()
	h.Write([]byte(c.Method()))
	h.Write([]byte{0})
	h.Write([]byte(c.Path()))
	h.Write([]byte{0})
	h.Write(c.Body())
	return hex.EncodeToString(h.Sum(nil))
}

func encodeRecord(r idempotencyRecord) string {
	raw, _ := json.Marshal(r)
	return string(raw)
}

package infra

import (
	"fmt"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// NewEmbeddedRedis starts an in-process Redis for development runs without REDIS_URL, so
// sessions, idempotency and login throttling behave as they do against a real server.
// Data lives only as long as the process.
func NewEmbeddedRedis() (*redis.Client, func(), error) {
	srv, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("start embedded redis: %w", err)
	}
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	stop := func() {
		_ = client.Close()
		srv.Close()
	}
	return client, stop, nil
}

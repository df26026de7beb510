package cache

import (
	"context"
	"fmt"
	"time"

	"boxoffice/internal/shared/config"

	"github.com/redis/go-redis/v9"
)

// Address resolves host:port from the redis section.
func Address(rc config.RedisConfig) string {
	if rc.Addr != "" {
		return rc.Addr
	}
	return rc.Host + ":" + rc.Port
}

// NewClient connects to Redis and verifies the connection. The same client
// backs the ledger, the cache, rate limiting and idempotency keys.
func NewClient(ctx context.Context, rc config.RedisConfig) (*redis.Client, error) {
	address := Address(rc)
	if address == ":" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: rc.Password,
		DB:       rc.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", address, err)
	}
	return client, nil
}

package db

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the optional Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	TLS      bool
}

// ConnectRedis returns a verified Redis client, or nil when no address is
// configured. Callers treat a nil client as "cache disabled".
func ConnectRedis(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	if opts.Addr == "" {
		return nil, nil
	}

	cfg := &redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
	}
	if opts.TLS {
		cfg.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(cfg)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("db: redis ping: %w", err)
	}

	return client, nil
}

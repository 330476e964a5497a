package session

import (
	"context"
	"fmt"
	"io"
	"time"

	backend "github.com/redis/go-redis/v9"

	coreconfig "github.com/m3rciful/scenariobot/core/config"
)

// Backend bundles the configured store and locker with whatever must be closed on shutdown.
type Backend struct {
	Store  Store
	Locker *Locker
	closer io.Closer
}

// Close releases the backend connection, if any.
func (b *Backend) Close() error {
	if b == nil || b.closer == nil {
		return nil
	}
	return b.closer.Close()
}

// FromConfig builds the session backend selected by cfg.Backend. The Redis variant pings the server first.
func FromConfig(ctx context.Context, cfg coreconfig.SessionConfig) (*Backend, error) {
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	switch cfg.Backend {
	case "", coreconfig.SessionMemory:
		return &Backend{Store: NewMemoryStore(ttl), Locker: NewLocker(nil)}, nil
	case coreconfig.SessionRedis:
		client := backend.NewClient(&backend.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}
		return &Backend{
			Store:  NewRedisStore(client, WithTTL(ttl)),
			Locker: NewLocker(NewRedisLocker(client, defaultRedisPrefix)),
			closer: client,
		}, nil
	default:
		return nil, fmt.Errorf("session: unknown backend %q", cfg.Backend)
	}
}

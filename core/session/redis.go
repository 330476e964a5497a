package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "scenariobot:session:"

// RedisStore keeps records as JSON strings under prefix+key.
type RedisStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// RedisOption customizes a RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithTTL expires records that were not saved for ttl.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *backend.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: defaultRedisPrefix, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load fetches and decodes the record for key.
func (s *RedisStore) Load(ctx context.Context, key string) (Record, error) {
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, backend.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("redis get %s: %w", key, err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("decode session %s: %w", key, err)
	}
	return rec, nil
}

// Save encodes rec and writes it with the configured TTL.
func (s *RedisStore) Save(ctx context.Context, key string, rec Record) error {
	rec.UpdatedAt = s.now().UTC()
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", key, err)
	}
	if err := s.client.Set(ctx, s.prefix+key, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes the record for key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

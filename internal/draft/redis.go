package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/packfinderz-storefront/pkg/redis"
)

// RedisStore persists the draft in Redis with a TTL, for deployments
// where the storefront shell shares state across devices.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func (r *RedisStore) Save(ctx context.Context, d Draft) error {
	encoded, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	return r.client.Set(ctx, r.client.DraftKey(Key), encoded, r.ttl)
}

func (r *RedisStore) Load(ctx context.Context) (*Draft, bool, error) {
	raw, err := r.client.Get(ctx, r.client.DraftKey(Key))
	if err != nil {
		if redis.IsNil(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var d Draft
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, false, fmt.Errorf("decode draft: %w", err)
	}
	return &d, true, nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.client.DraftKey(Key))
}

package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type redisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func (m *redisCache) GetTile(ctx context.Context, key string) (*TileRecord, error) {
	item, err := m.client.Get(ctx, buildKey(key)).Bytes()
	if err == redis.Nil {
		// Cache miss
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("error getting from redis: %w", err)
	}

	rec, err := unmarshallData(item)
	if err != nil {
		return nil, fmt.Errorf("error unmarshalling from redis: %w", err)
	}

	return rec, nil
}

func (m *redisCache) SetTile(ctx context.Context, rec *TileRecord) error {
	marshalled, err := marshallData(rec)
	if err != nil {
		return fmt.Errorf("error marshalling to redis: %w", err)
	}

	err = m.client.Set(ctx, buildKey(rec.Key), marshalled, m.ttl).Err()
	if err != nil {
		return fmt.Errorf("error setting to redis: %w", err)
	}

	return nil
}

func (m *redisCache) DeleteTile(ctx context.Context, key string) error {
	if err := m.client.Del(ctx, buildKey(key)).Err(); err != nil {
		return fmt.Errorf("error deleting from redis: %w", err)
	}
	return nil
}

// NewRedisCache expires records after ttl, or never when ttl is zero.
func NewRedisCache(client redis.UniversalClient, ttl time.Duration) Cache {
	return &redisCache{
		client: client,
		ttl:    ttl,
	}
}

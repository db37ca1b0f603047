package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

type memcacheClient struct {
	client *memcache.Client
	ttl    time.Duration
}

func (m *memcacheClient) GetTile(_ context.Context, key string) (*TileRecord, error) {
	item, err := m.client.Get(buildKey(key))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return nil, nil
		}

		return nil, fmt.Errorf("error getting from memcache: %w", err)
	}

	rec, err := unmarshallData(item.Value)
	if err != nil {
		return nil, fmt.Errorf("error unmarshalling from memcache: %w", err)
	}

	return rec, nil
}

func (m *memcacheClient) SetTile(_ context.Context, rec *TileRecord) error {
	marshalled, err := marshallData(rec)
	if err != nil {
		return fmt.Errorf("error marshalling to memcache: %w", err)
	}

	err = m.client.Set(&memcache.Item{
		Key:        buildKey(rec.Key),
		Value:      marshalled,
		Expiration: int32(m.ttl / time.Second),
	})
	if err != nil {
		return fmt.Errorf("error setting to memcache: %w", err)
	}

	return nil
}

func (m *memcacheClient) DeleteTile(_ context.Context, key string) error {
	err := m.client.Delete(buildKey(key))
	if err != nil && err != memcache.ErrCacheMiss {
		return fmt.Errorf("error deleting from memcache: %w", err)
	}
	return nil
}

// NewMemcacheCache expires records after ttl, or never when ttl is zero.
func NewMemcacheCache(client *memcache.Client, ttl time.Duration) Cache {
	return &memcacheClient{
		client: client,
		ttl:    ttl,
	}
}

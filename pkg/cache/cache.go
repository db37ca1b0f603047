package cache

import (
	"context"
	"crypto/md5"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// TileRecord notes that a tile was durably written under Key.
type TileRecord struct {
	Key          string    `msgpack:"key" dynamodbav:"key"`
	ContentType  string    `msgpack:"content_type" dynamodbav:"content_type"`
	CacheControl string    `msgpack:"cache_control" dynamodbav:"cache_control"`
	WrittenAt    time.Time `msgpack:"written_at" dynamodbav:"written_at"`
}

// Cache remembers written tiles so that repeat requests can be redirected
// without rendering. A nil record from GetTile is a miss.
type Cache interface {
	GetTile(ctx context.Context, key string) (*TileRecord, error)
	SetTile(ctx context.Context, rec *TileRecord) error
	DeleteTile(ctx context.Context, key string) error
}

// NilCache implements the Cache interface with no-ops.
type NilCache struct {
}

func (n NilCache) GetTile(_ context.Context, _ string) (*TileRecord, error) {
	return nil, nil
}

func (n NilCache) SetTile(_ context.Context, _ *TileRecord) error {
	return nil
}

func (n NilCache) DeleteTile(_ context.Context, _ string) error {
	return nil
}

// memcache limits keys to 250 bytes
const maxKeyLength = 250

func buildKey(key string) string {
	k := "tile:" + key
	if len(k) > maxKeyLength {
		k = fmt.Sprintf("tile:%x", md5.Sum([]byte(key)))
	}
	return k
}

func marshallData(rec *TileRecord) ([]byte, error) {
	return msgpack.Marshal(rec)
}

func unmarshallData(data []byte) (*TileRecord, error) {
	rec := &TileRecord{}
	if err := msgpack.Unmarshal(data, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

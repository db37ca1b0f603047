package storage

import "context"

// Storage is the durable tile store. A container is a bucket for S3 and a
// subdirectory for file storage.
type Storage interface {
	Put(ctx context.Context, container, key string, obj *Object) error
	Delete(ctx context.Context, container, key string) error
	HealthCheck() error
}

type Object struct {
	Body         []byte
	ContentType  string
	CacheControl string
	Metadata     map[string]string
}

package writer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/imkira/go-interpol"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/openterrain/tilegate/pkg/cache"
	"github.com/openterrain/tilegate/pkg/hosts"
	"github.com/openterrain/tilegate/pkg/log"
	"github.com/openterrain/tilegate/pkg/queue"
	"github.com/openterrain/tilegate/pkg/storage"
	"github.com/openterrain/tilegate/pkg/tile"
)

const (
	DefaultCacheControl = "public, max-age=2592000"
	DefaultContentType  = "application/octet-stream"
	DefaultKeyPattern   = "{prefix}/{z}/{x}/{y}{scale}.{ext}"
	DefaultScheme       = "http"
)

// Notifier is told about every enqueued invalidation, so that a drain can
// start without waiting for its next tick.
type Notifier interface {
	Notify()
}

type Config struct {
	Storage storage.Storage
	Queue   queue.Queue
	QueueID string
	Hosts   *hosts.Selector

	// optional
	Cache      cache.Cache
	Templates  *Templates
	Notifier   Notifier
	Scheme     string
	KeyPattern string
	// format to content type, used when the source sends none
	Mime   map[string]string
	Logger log.JsonLogger
}

// Writer persists rendered tiles and builds the redirect locations
// pointing at them.
type Writer struct {
	storage    storage.Storage
	queue      queue.Queue
	queueID    string
	hosts      *hosts.Selector
	cache      cache.Cache
	templates  *Templates
	notifier   Notifier
	scheme     string
	keyPattern string
	mime       map[string]string
	logger     log.JsonLogger
	tracer     trace.Tracer
	now        func() time.Time
}

// Result describes a successful write.
type Result struct {
	Key          string
	Location     string
	ContentType  string
	CacheControl string

	// Stale is set for tiles written with max-age=0.
	Stale           bool
	Enqueued        bool
	IsEnqueueError  bool
	IsCacheSetError bool
}

func New(cfg Config) (*Writer, error) {
	if cfg.Storage == nil || cfg.Queue == nil || cfg.Hosts == nil {
		return nil, errors.New("writer needs storage, queue and hosts")
	}

	w := &Writer{
		storage:    cfg.Storage,
		queue:      cfg.Queue,
		queueID:    cfg.QueueID,
		hosts:      cfg.Hosts,
		cache:      cfg.Cache,
		templates:  cfg.Templates,
		notifier:   cfg.Notifier,
		scheme:     cfg.Scheme,
		keyPattern: cfg.KeyPattern,
		mime:       cfg.Mime,
		logger:     cfg.Logger,
		tracer:     otel.Tracer("github.com/openterrain/tilegate/pkg/writer"),
		now:        time.Now,
	}
	if w.cache == nil {
		w.cache = cache.NilCache{}
	}
	if w.scheme == "" {
		w.scheme = DefaultScheme
	}
	if w.keyPattern == "" {
		w.keyPattern = DefaultKeyPattern
	}
	if w.logger == nil {
		w.logger = &log.NilJsonLogger{}
	}

	if _, err := w.ObjectKey(tile.Key{Scale: 1, Format: "png"}, "prefix"); err != nil {
		return nil, fmt.Errorf("invalid key pattern %q: %w", w.keyPattern, err)
	}

	return w, nil
}

// ObjectKey is the storage key of k below prefix. An empty prefix yields a
// key without a leading slash.
func (w *Writer) ObjectKey(k tile.Key, prefix string) (string, error) {
	key, err := interpol.WithMap(w.keyPattern, map[string]string{
		"prefix": prefix,
		"z":      strconv.Itoa(k.Z),
		"x":      strconv.Itoa(k.X),
		"y":      strconv.Itoa(k.Y),
		"scale":  k.ScaleSuffix(),
		"ext":    tile.NormalizeFormat(k.Format),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(key, "/"), nil
}

// Location is the public URL of key on one of the front end hosts.
func (w *Writer) Location(key string) string {
	return fmt.Sprintf("%s://%s/%s", w.scheme, w.hosts.Select(), key)
}

// Cached returns the record of an earlier write of key, or nil.
func (w *Writer) Cached(ctx context.Context, key string) (*cache.TileRecord, error) {
	return w.cache.GetTile(ctx, key)
}

// Persist writes data for k to bucket and returns where it can be fetched
// from. When the effective cache control has max-age=0 an invalidation job
// for the new object is enqueued, best effort.
func (w *Writer) Persist(ctx context.Context, k tile.Key, data []byte, header http.Header, bucket, prefix string) (result *Result, err error) {
	ctx, span := w.tracer.Start(ctx, "writer.persist", trace.WithAttributes(
		attribute.String("bucket", bucket),
		attribute.String("tile", k.String()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "persist failed")
		}
		span.End()
	}()

	key, err := w.ObjectKey(k, prefix)
	if err != nil {
		return nil, &StorageWriteError{Bucket: bucket, Key: k.FileName(), Err: err}
	}
	span.SetAttributes(attribute.String("key", key))

	contentType := header.Get("Content-Type")
	if contentType == "" {
		contentType = w.mime[tile.NormalizeFormat(k.Format)]
	}
	if contentType == "" {
		contentType = DefaultContentType
	}

	cacheControl := header.Get("Cache-Control")
	if cacheControl == "" {
		cacheControl = DefaultCacheControl
	}

	metadata, err := w.templates.Render(Params{Prefix: prefix, Scale: k.Scale, X: k.X, Y: k.Y, Z: k.Z})
	if err != nil {
		return nil, &StorageWriteError{Bucket: bucket, Key: key, Err: err}
	}

	obj := &storage.Object{
		Body:         data,
		ContentType:  contentType,
		CacheControl: cacheControl,
		Metadata:     metadata,
	}
	if err := w.storage.Put(ctx, bucket, key, obj); err != nil {
		return nil, &StorageWriteError{Bucket: bucket, Key: key, Err: err}
	}

	result = &Result{
		Key:          key,
		ContentType:  contentType,
		CacheControl: cacheControl,
	}

	if maxAge, ok := MaxAge(cacheControl); ok && maxAge == 0 {
		result.Stale = true
		w.invalidate(ctx, bucket, key, result)
	} else {
		w.remember(ctx, result)
	}

	result.Location = w.Location(key)
	return result, nil
}

func (w *Writer) invalidate(ctx context.Context, bucket, key string, result *Result) {
	body, err := queue.Job{Bucket: bucket, Key: key}.Encode()
	if err == nil {
		err = w.queue.Send(ctx, w.queueID, body)
	}
	if err != nil {
		result.IsEnqueueError = true
		w.logger.Error(log.LogCategory_QueueError, "Failed to enqueue invalidation of %s/%s: %s", bucket, key, err)
		return
	}

	result.Enqueued = true
	if w.notifier != nil {
		w.notifier.Notify()
	}
}

func (w *Writer) remember(ctx context.Context, result *Result) {
	err := w.cache.SetTile(ctx, &cache.TileRecord{
		Key:          result.Key,
		ContentType:  result.ContentType,
		CacheControl: result.CacheControl,
		WrittenAt:    w.now().UTC(),
	})
	if err != nil {
		result.IsCacheSetError = true
		w.logger.Warning(log.LogCategory_CacheError, "Failed to record %s in cache: %s", result.Key, err)
	}
}

package writer

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/openterrain/tilegate/pkg/cache"
	"github.com/openterrain/tilegate/pkg/hosts"
	"github.com/openterrain/tilegate/pkg/log"
	"github.com/openterrain/tilegate/pkg/queue"
	"github.com/openterrain/tilegate/pkg/storage"
	"github.com/openterrain/tilegate/pkg/tile"
)

type put struct {
	container, key string
	obj            *storage.Object
}

type fakeStorage struct {
	puts   []put
	putErr error
}

func (f *fakeStorage) Put(_ context.Context, container, key string, obj *storage.Object) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.puts = append(f.puts, put{container, key, obj})
	return nil
}

func (f *fakeStorage) Delete(_ context.Context, _, _ string) error {
	return nil
}

func (f *fakeStorage) HealthCheck() error {
	return nil
}

type failingQueue struct {
	queue.Queue
}

func (f *failingQueue) Send(_ context.Context, _, _ string) error {
	return errors.New("queue unavailable")
}

type fakeCache struct {
	cache.NilCache
	records map[string]*cache.TileRecord
}

func (f *fakeCache) SetTile(_ context.Context, rec *cache.TileRecord) error {
	f.records[rec.Key] = rec
	return nil
}

type countingNotifier struct {
	n int
}

func (c *countingNotifier) Notify() {
	c.n++
}

type fixture struct {
	storage  *fakeStorage
	queue    *queue.MemoryQueue
	cache    *fakeCache
	notifier *countingNotifier
	writer   *Writer
}

func newFixture(t *testing.T, templates map[string]string) *fixture {
	selector, err := hosts.New([]string{"a.tiles.example.com"})
	if err != nil {
		t.Fatalf("Unable to create selector: %s", err)
	}
	tpls, err := NewTemplates(templates)
	if err != nil {
		t.Fatalf("Unable to create templates: %s", err)
	}

	f := &fixture{
		storage:  &fakeStorage{},
		queue:    queue.NewMemoryQueue(),
		cache:    &fakeCache{records: make(map[string]*cache.TileRecord)},
		notifier: &countingNotifier{},
	}
	f.writer, err = New(Config{
		Storage:   f.storage,
		Queue:     f.queue,
		QueueID:   "invalidations",
		Hosts:     selector,
		Cache:     f.cache,
		Templates: tpls,
		Notifier:  f.notifier,
		Mime:      map[string]string{"png": "image/png"},
		Logger:    &log.NilJsonLogger{},
	})
	if err != nil {
		t.Fatalf("Unable to create writer: %s", err)
	}
	return f
}

func (f *fixture) jobs(t *testing.T) []queue.Job {
	messages, err := f.queue.Receive(context.Background(), "invalidations", 100, 0)
	if err != nil {
		t.Fatalf("Unable to receive: %s", err)
	}
	var jobs []queue.Job
	for _, m := range messages {
		j, err := queue.DecodeJob(m.Body)
		if err != nil {
			t.Fatalf("Unable to decode job: %s", err)
		}
		jobs = append(jobs, j)
	}
	return jobs
}

var key = tile.Key{Z: 3, X: 2, Y: 1, Scale: 1, Format: "png"}

func TestPersistMaxAgeZeroEnqueuesOnce(t *testing.T) {
	f := newFixture(t, nil)
	header := http.Header{"Cache-Control": {"max-age=0"}}

	result, err := f.writer.Persist(context.Background(), key, []byte("png"), header, "tiles", "terrain")
	if err != nil {
		t.Fatalf("Unexpected persist error: %s", err)
	}
	if !result.Stale || !result.Enqueued {
		t.Fatalf("Expected stale, enqueued result, got %#v", result)
	}

	jobs := f.jobs(t)
	if len(jobs) != 1 {
		t.Fatalf("Expected exactly one job, got %#v", jobs)
	}
	if jobs[0].Bucket != "tiles" || jobs[0].Key != "terrain/3/2/1.png" {
		t.Fatalf("Unexpected job %#v", jobs[0])
	}
	if f.notifier.n != 1 {
		t.Fatalf("Expected one notification, got %d", f.notifier.n)
	}
	if len(f.cache.records) != 0 {
		t.Fatalf("Did not expect stale tile to be recorded")
	}
}

func TestPersistNoInvalidation(t *testing.T) {
	for _, header := range []http.Header{
		{"Cache-Control": {"max-age=2592000"}},
		{},
	} {
		f := newFixture(t, nil)

		result, err := f.writer.Persist(context.Background(), key, []byte("png"), header, "tiles", "terrain")
		if err != nil {
			t.Fatalf("Unexpected persist error: %s", err)
		}
		if result.Stale || result.Enqueued {
			t.Fatalf("Did not expect invalidation for %#v", header)
		}
		if jobs := f.jobs(t); len(jobs) != 0 {
			t.Fatalf("Expected no jobs for %#v, got %#v", header, jobs)
		}
		if f.notifier.n != 0 {
			t.Fatalf("Expected no notification")
		}
		if _, ok := f.cache.records["terrain/3/2/1.png"]; !ok {
			t.Fatalf("Expected fresh tile to be recorded")
		}
	}
}

func TestPersistDefaults(t *testing.T) {
	f := newFixture(t, nil)

	result, err := f.writer.Persist(context.Background(), key, []byte("png"), http.Header{}, "tiles", "terrain")
	if err != nil {
		t.Fatalf("Unexpected persist error: %s", err)
	}

	if len(f.storage.puts) != 1 {
		t.Fatalf("Expected one put, got %d", len(f.storage.puts))
	}
	p := f.storage.puts[0]
	if p.container != "tiles" || p.key != "terrain/3/2/1.png" {
		t.Fatalf("Unexpected put target %s/%s", p.container, p.key)
	}
	if p.obj.CacheControl != DefaultCacheControl {
		t.Fatalf("Expected default cache control, got %#v", p.obj.CacheControl)
	}
	if p.obj.ContentType != "image/png" {
		t.Fatalf("Expected content type from mime map, got %#v", p.obj.ContentType)
	}
	if result.Location != "http://a.tiles.example.com/terrain/3/2/1.png" {
		t.Fatalf("Unexpected location %#v", result.Location)
	}

	jpg := tile.Key{Z: 0, X: 0, Y: 0, Scale: 1, Format: "jpg"}
	if _, err := f.writer.Persist(context.Background(), jpg, nil, http.Header{}, "tiles", "terrain"); err != nil {
		t.Fatalf("Unexpected persist error: %s", err)
	}
	if ct := f.storage.puts[1].obj.ContentType; ct != DefaultContentType {
		t.Fatalf("Expected fallback content type, got %#v", ct)
	}
}

func TestPersistUpstreamHeaders(t *testing.T) {
	f := newFixture(t, nil)
	header := http.Header{
		"Content-Type":  {"image/webp"},
		"Cache-Control": {"public, max-age=60"},
	}
	if _, err := f.writer.Persist(context.Background(), key, []byte("png"), header, "tiles", "terrain"); err != nil {
		t.Fatalf("Unexpected persist error: %s", err)
	}
	p := f.storage.puts[0]
	if p.obj.ContentType != "image/webp" || p.obj.CacheControl != "public, max-age=60" {
		t.Fatalf("Expected upstream headers to be copied, got %#v", p.obj)
	}
}

func TestObjectKeyLayout(t *testing.T) {
	f := newFixture(t, nil)
	cases := []struct {
		key    tile.Key
		prefix string
		want   string
	}{
		{tile.Key{Z: 3, X: 2, Y: 1, Scale: 1, Format: "png"}, "terrain", "terrain/3/2/1.png"},
		{tile.Key{Z: 3, X: 2, Y: 1, Scale: 2, Format: "png"}, "terrain", "terrain/3/2/1@2x.png"},
		{tile.Key{Z: 3, X: 2, Y: 1, Scale: 1, Format: "png8"}, "terrain", "terrain/3/2/1.png"},
		{tile.Key{Z: 0, X: 0, Y: 0, Scale: 1, Format: "jpg"}, "", "0/0/0.jpg"},
	}
	for _, c := range cases {
		got, err := f.writer.ObjectKey(c.key, c.prefix)
		if err != nil {
			t.Fatalf("Unexpected key error: %s", err)
		}
		if got != c.want {
			t.Fatalf("Expected key %#v, got %#v", c.want, got)
		}
	}
}

func TestPersistEnqueueFailureIsSwallowed(t *testing.T) {
	selector, _ := hosts.New([]string{"a"})
	store := &fakeStorage{}
	w, err := New(Config{Storage: store, Queue: &failingQueue{}, Hosts: selector})
	if err != nil {
		t.Fatalf("Unable to create writer: %s", err)
	}

	header := http.Header{"Cache-Control": {"no-cache, max-age=0"}}
	result, err := w.Persist(context.Background(), key, []byte("png"), header, "tiles", "terrain")
	if err != nil {
		t.Fatalf("Expected enqueue failure to be swallowed, got %s", err)
	}
	if !result.IsEnqueueError || result.Enqueued {
		t.Fatalf("Expected enqueue error to be flagged, got %#v", result)
	}
	if len(store.puts) != 1 {
		t.Fatalf("Expected the tile to be written")
	}
}

func TestPersistStorageFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.storage.putErr = errors.New("slow down")

	header := http.Header{"Cache-Control": {"max-age=0"}}
	_, err := f.writer.Persist(context.Background(), key, []byte("png"), header, "tiles", "terrain")
	var swe *StorageWriteError
	if !errors.As(err, &swe) {
		t.Fatalf("Expected StorageWriteError, got %#v", err)
	}
	if swe.Key != "terrain/3/2/1.png" {
		t.Fatalf("Unexpected key in error %#v", swe.Key)
	}
	if jobs := f.jobs(t); len(jobs) != 0 {
		t.Fatalf("Expected no job after a failed write, got %#v", jobs)
	}
}

func TestPersistRendersMetadata(t *testing.T) {
	f := newFixture(t, map[string]string{
		"Surrogate-Key": "{{.prefix}} {{.prefix}}/{{.zoom}}",
		"Tile":          "{{.z}}/{{.x}}/{{.y}}@{{.scale}}x",
	})

	k := tile.Key{Z: 3, X: 2, Y: 1, Scale: 2, Format: "png"}
	if _, err := f.writer.Persist(context.Background(), k, []byte("png"), http.Header{}, "tiles", "terrain"); err != nil {
		t.Fatalf("Unexpected persist error: %s", err)
	}
	metadata := f.storage.puts[0].obj.Metadata
	if metadata["Surrogate-Key"] != "terrain terrain/3" || metadata["Tile"] != "3/2/1@2x" {
		t.Fatalf("Unexpected metadata %#v", metadata)
	}
}

func TestTemplateProbeFailure(t *testing.T) {
	if _, err := NewTemplates(map[string]string{"X-Bad": "{{.missing}}"}); err == nil {
		t.Fatalf("Expected unknown parameter to fail at construction")
	}
	if _, err := NewTemplates(map[string]string{"X-Bad": "{{.z"}); err == nil {
		t.Fatalf("Expected malformed template to fail at construction")
	}
	tpls, err := NewTemplates(nil)
	if err != nil {
		t.Fatalf("Unexpected error for no templates: %s", err)
	}
	if m, err := tpls.Render(Params{}); m != nil || err != nil {
		t.Fatalf("Expected no metadata, got %#v %v", m, err)
	}
}

func TestNewRejectsBrokenKeyPattern(t *testing.T) {
	selector, _ := hosts.New([]string{"a"})
	_, err := New(Config{
		Storage:    &fakeStorage{},
		Queue:      queue.NewMemoryQueue(),
		Hosts:      selector,
		KeyPattern: "{prefix}/{hash}/{z}/{x}/{y}.{ext}",
	})
	if err == nil || !strings.Contains(err.Error(), "key pattern") {
		t.Fatalf("Expected key pattern error, got %v", err)
	}
}

func TestMaxAge(t *testing.T) {
	cases := []struct {
		value string
		age   int64
		ok    bool
	}{
		{"max-age=0", 0, true},
		{"public, max-age=2592000", 2592000, true},
		{"public, MAX-AGE = 60", 60, true},
		{`max-age="0"`, 0, true},
		{"s-maxage=0, public", 0, false},
		{"no-cache", 0, false},
		{"", 0, false},
		{"max-age=soon", 0, false},
	}
	for _, c := range cases {
		age, ok := MaxAge(c.value)
		if age != c.age || ok != c.ok {
			t.Fatalf("MaxAge(%q) = %d, %v; expected %d, %v", c.value, age, ok, c.age, c.ok)
		}
	}
}

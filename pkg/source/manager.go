package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/openterrain/tilegate/pkg/log"
	"github.com/openterrain/tilegate/pkg/tile"
)

// DefaultAttempts is the total number of attempts, including the first one.
const DefaultAttempts = 3

// Tile is a successfully fetched upstream tile.
type Tile struct {
	Data     []byte
	Header   http.Header
	Info     Info
	Attempts int
	Duration FetchDuration
}

// FetchDuration holds the stage timings of the successful attempt.
type FetchDuration struct {
	Acquire, Info, Tile time.Duration
}

// Manager wraps every interaction with an upstream source in the retry and
// recycle policy: any failure to acquire a handle, read its info or fetch a
// tile closes the handle and starts over with a fresh one, without delay.
// Validation failures end the fetch immediately.
type Manager struct {
	loader   Loader
	attempts int
	logger   log.JsonLogger
	tracer   trace.Tracer
}

func NewManager(loader Loader, logger log.JsonLogger) *Manager {
	return &Manager{
		loader:   loader,
		attempts: DefaultAttempts,
		logger:   logger,
		tracer:   otel.Tracer("github.com/openterrain/tilegate/pkg/source"),
	}
}

// Fetch validates k against the info of the source for d and returns the
// rendered tile.
func (m *Manager) Fetch(ctx context.Context, d Descriptor, k tile.Key) (*Tile, error) {
	var lastErr error
	var lastStage Stage

	for attempt := 1; attempt <= m.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, &UpstreamError{Stage: lastStage, Attempts: attempt - 1, Err: err}
		}

		t, stage, err := m.fetchOnce(ctx, d, k, attempt)
		if err == nil {
			t.Attempts = attempt
			return t, nil
		}

		var ve *ValidationError
		if errors.As(err, &ve) {
			return nil, err
		}

		lastErr, lastStage = err, stage
		m.logger.Warning(log.LogCategory_UpstreamError, "Attempt %d/%d for %s from %s failed at %s: %s", attempt, m.attempts, k, d.URI, stage, err)
	}

	return nil, &UpstreamError{Stage: lastStage, Attempts: m.attempts, Err: lastErr}
}

func (m *Manager) fetchOnce(ctx context.Context, d Descriptor, k tile.Key, attempt int) (t *Tile, stage Stage, err error) {
	ctx, span := m.tracer.Start(ctx, "source.fetch", trace.WithAttributes(
		attribute.String("source", d.URI),
		attribute.String("tile", k.String()),
		attribute.Int("attempt", attempt),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, stage.String())
		}
		span.End()
	}()

	t = &Tile{}

	start := time.Now()
	h, err := m.loader.Load(ctx, d)
	t.Duration.Acquire = time.Since(start)
	if err != nil {
		return nil, StageAcquire, err
	}

	start = time.Now()
	info, err := h.Info(ctx)
	t.Duration.Info = time.Since(start)
	if err != nil {
		m.recycle(h, d)
		return nil, StageInfo, err
	}
	t.Info = info.WithDefaults()

	if err := Validate(t.Info, k); err != nil {
		return nil, StageNil, err
	}

	start = time.Now()
	data, header, err := h.Tile(ctx, k.Z, k.X, k.Y)
	t.Duration.Tile = time.Since(start)
	if err != nil {
		m.recycle(h, d)
		return nil, StageTile, err
	}

	t.Data = data
	t.Header = header
	if t.Header == nil {
		t.Header = make(http.Header)
	}
	return t, StageNil, nil
}

// Info reads the metadata of the source for d under the same retry policy
// as Fetch.
func (m *Manager) Info(ctx context.Context, d Descriptor) (Info, error) {
	var lastErr error
	var lastStage Stage

	for attempt := 1; attempt <= m.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Info{}, &UpstreamError{Stage: lastStage, Attempts: attempt - 1, Err: err}
		}

		h, err := m.loader.Load(ctx, d)
		if err != nil {
			lastErr, lastStage = err, StageAcquire
			continue
		}

		info, err := h.Info(ctx)
		if err != nil {
			m.recycle(h, d)
			lastErr, lastStage = err, StageInfo
			continue
		}

		return info.WithDefaults(), nil
	}

	return Info{}, &UpstreamError{Stage: lastStage, Attempts: m.attempts, Err: lastErr}
}

func (m *Manager) recycle(h Handle, d Descriptor) {
	if err := h.Close(); err != nil {
		m.logger.Warning(log.LogCategory_UpstreamError, "Failed to close source %s: %s", d.URI, err)
	}
}

// Validate checks the requested format, zoom and coordinates against info,
// which must already have its defaults applied.
func Validate(info Info, k tile.Key) error {
	if tile.NormalizeFormat(info.Format) != tile.NormalizeFormat(k.Format) {
		return &ValidationError{
			Kind:   InvalidFormat,
			Detail: fmt.Sprintf("%q, source provides %q", k.Format, info.Format),
		}
	}

	if k.Z < *info.MinZoom || (info.MaxZoom != nil && k.Z > *info.MaxZoom) {
		return &ValidationError{
			Kind:   InvalidZoom,
			Detail: fmt.Sprintf("%d", k.Z),
		}
	}

	r := tile.GridRange(*info.Bounds, k.Z)
	if !r.Contains(k.X, k.Y) {
		return &ValidationError{
			Kind:   InvalidCoordinates,
			Detail: fmt.Sprintf("%d/%d at zoom %d", k.X, k.Y, k.Z),
		}
	}

	return nil
}

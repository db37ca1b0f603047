package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/openterrain/tilegate/pkg/budget"
	"github.com/openterrain/tilegate/pkg/log"
	"github.com/openterrain/tilegate/pkg/source"
	"github.com/openterrain/tilegate/pkg/state"
	"github.com/openterrain/tilegate/pkg/tile"
	"github.com/openterrain/tilegate/pkg/writer"
)

// Route is one configured tile style: where tiles come from and where they
// are written to.
type Route struct {
	Name   string
	Source source.Descriptor
	Bucket string
	Prefix string
}

// Gateway turns tile requests into redirects to durably stored tiles,
// rendering and writing them first when needed.
type Gateway struct {
	manager *source.Manager
	writer  *writer.Writer
	logger  log.JsonLogger
}

func New(manager *source.Manager, w *writer.Writer, logger log.JsonLogger) *Gateway {
	return &Gateway{
		manager: manager,
		writer:  w,
		logger:  logger,
	}
}

// Tile returns the location of the tile named by the raw path components.
// The outcome of every step is recorded in reqState.
func (g *Gateway) Tile(ctx context.Context, route *Route, z, x, y string, reqState *state.RequestState) (string, error) {
	reqState.Route = route.Name

	start := time.Now()
	k, err := tile.ParseKey(z, x, y)
	reqState.Duration.Parse = time.Since(start)
	if err != nil {
		var pe *tile.ParseError
		if errors.As(err, &pe) && pe.ScaleError != nil {
			reqState.IsScaleError = true
		} else {
			reqState.IsParseError = true
		}
		reqState.ResponseState = state.ResponseState_BadRequest
		return "", err
	}
	reqState.Key = &k

	objectKey, err := g.writer.ObjectKey(k, route.Prefix)
	if err != nil {
		reqState.ResponseState = state.ResponseState_Error
		return "", err
	}
	reqState.ObjectKey = objectKey

	start = time.Now()
	rec, err := g.writer.Cached(ctx, objectKey)
	reqState.Duration.CacheLookup = time.Since(start)
	if err != nil {
		reqState.IsCacheLookupError = true
		g.logger.Warning(log.LogCategory_CacheError, "Cache lookup of %s failed: %s", objectKey, err)
	} else if rec != nil {
		reqState.Cache.TileHit = true
		reqState.FetchState = state.FetchState_Cached
		reqState.ResponseState = state.ResponseState_Success
		return g.writer.Location(rec.Key), nil
	}

	// upstream work stops early so the write keeps the rest of the deadline
	fetchCtx, disarm := budget.Arm(ctx, budget.DefaultMargin)
	t, err := g.manager.Fetch(fetchCtx, route.Source.WithScale(k.Scale), k)
	disarm()
	if err != nil {
		var ve *source.ValidationError
		var ue *source.UpstreamError
		switch {
		case errors.As(err, &ve):
			reqState.FetchState = validationFetchState(ve.Kind)
			reqState.ResponseState = state.ResponseState_NotFound
		case errors.As(err, &ue):
			reqState.FetchState = state.FetchState_UpstreamError
			reqState.Attempts = ue.Attempts
			reqState.ResponseState = state.ResponseState_BadGateway
		default:
			reqState.FetchState = state.FetchState_UpstreamError
			reqState.ResponseState = state.ResponseState_BadGateway
		}
		return "", err
	}

	reqState.FetchState = state.FetchState_Success
	reqState.Attempts = t.Attempts
	reqState.FetchSize = len(t.Data)
	reqState.Duration.Acquire = t.Duration.Acquire
	reqState.Duration.Info = t.Duration.Info
	reqState.Duration.Render = t.Duration.Tile

	start = time.Now()
	result, err := g.writer.Persist(ctx, k, t.Data, t.Header, route.Bucket, route.Prefix)
	reqState.Duration.Write = time.Since(start)
	if err != nil {
		reqState.WriteState = state.WriteState_StorageError
		reqState.ResponseState = state.ResponseState_Error
		return "", err
	}

	if result.Stale {
		reqState.WriteState = state.WriteState_Stale
	} else {
		reqState.WriteState = state.WriteState_Success
	}
	reqState.Enqueued = result.Enqueued
	reqState.IsEnqueueError = result.IsEnqueueError
	reqState.IsCacheSetError = result.IsCacheSetError
	reqState.ResponseState = state.ResponseState_Success

	return result.Location, nil
}

// Info reads the metadata of the source of route, with defaults applied.
func (g *Gateway) Info(ctx context.Context, route *Route) (source.Info, error) {
	return g.manager.Info(ctx, route.Source)
}

func validationFetchState(kind source.ValidationKind) state.ReqFetchState {
	switch kind {
	case source.InvalidFormat:
		return state.FetchState_InvalidFormat
	case source.InvalidZoom:
		return state.FetchState_InvalidZoom
	default:
		return state.FetchState_InvalidCoordinates
	}
}

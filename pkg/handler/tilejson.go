package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/openterrain/tilegate/pkg/gateway"
	"github.com/openterrain/tilegate/pkg/log"
	"github.com/openterrain/tilegate/pkg/metrics"
	"github.com/openterrain/tilegate/pkg/source"
	"github.com/openterrain/tilegate/pkg/state"
)

const TileJsonVersion = "2.2.0"

// TileJson is the subset of the TileJSON document that the source metadata
// can fill in.
type TileJson struct {
	TileJson string     `json:"tilejson"`
	Name     string     `json:"name,omitempty"`
	Scheme   string     `json:"scheme"`
	Format   string     `json:"format"`
	Tiles    []string   `json:"tiles"`
	MinZoom  int        `json:"minzoom"`
	MaxZoom  *int       `json:"maxzoom,omitempty"`
	Bounds   [4]float64 `json:"bounds"`
}

func NewTileJson(name string, tileUrls []string, info source.Info) *TileJson {
	info = info.WithDefaults()
	return &TileJson{
		TileJson: TileJsonVersion,
		Name:     name,
		Scheme:   "xyz",
		Format:   info.Format,
		Tiles:    tileUrls,
		MinZoom:  *info.MinZoom,
		MaxZoom:  info.MaxZoom,
		Bounds:   *info.Bounds,
	}
}

// TileJsonHandler describes the source behind route. tileUrls are the public
// tile URL templates advertised to clients.
func TileJsonHandler(gw *gateway.Gateway, route *gateway.Route, tileUrls []string, timeout time.Duration, mw metrics.MetricsWriter, logger log.JsonLogger) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		tileJsonReqState := state.TileJsonRequestState{Route: route.Name}

		startTime := time.Now()

		defer func() {
			tileJsonReqState.Duration.Total = time.Since(startTime)

			logger.TileJson(tileJsonReqState.AsJsonMap())

			mw.WriteTileJsonState(&tileJsonReqState)
		}()

		tileJsonReqState.HttpData = ParseHttpData(req)

		ctx := req.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		infoStart := time.Now()
		info, err := gw.Info(ctx, route)
		tileJsonReqState.Duration.Info = time.Since(infoStart)
		if err != nil {
			logger.Error(log.LogCategory_UpstreamError, "Source info for %s failed: %s", route.Name, err)
			tileJsonReqState.FetchState = state.FetchState_UpstreamError
			tileJsonReqState.ResponseState = state.ResponseState_BadGateway
			if werr := writeJson(rw, http.StatusBadGateway, &errorResponse{Error: err.Error()}); werr != nil {
				tileJsonReqState.IsResponseWriteError = true
			}
			return
		}
		tileJsonReqState.FetchState = state.FetchState_Success
		tileJsonReqState.ResponseState = state.ResponseState_Success

		respWriteStart := time.Now()
		err = writeJson(rw, http.StatusOK, NewTileJson(route.Name, tileUrls, info))
		tileJsonReqState.Duration.RespWrite = time.Since(respWriteStart)
		if err != nil {
			logger.Error(log.LogCategory_ResponseError, "Failed to write response body: %s", err)
			tileJsonReqState.IsResponseWriteError = true
		}
	})
}

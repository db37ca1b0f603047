package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/openterrain/tilegate/pkg/gateway"
	"github.com/openterrain/tilegate/pkg/log"
	"github.com/openterrain/tilegate/pkg/metrics"
	"github.com/openterrain/tilegate/pkg/state"
)

type locationResponse struct {
	Location string `json:"location"`
}

// TileHandler redirects tile requests on route to the stored tile, rendering
// and storing it first when it is not known to exist. A zero timeout leaves
// the request context untouched.
func TileHandler(gw *gateway.Gateway, route *gateway.Route, timeout time.Duration, mw metrics.MetricsWriter, logger log.JsonLogger) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		reqState := &state.RequestState{Route: route.Name}

		startTime := time.Now()

		defer func() {
			reqState.Duration.Total = time.Since(startTime)

			if reqState.ResponseState == state.ResponseState_Nil {
				logger.Error(log.LogCategory_InvalidCodeState, "handler did not set response state for tile %+v", reqState.Key)
			}

			logger.Metrics(reqState.AsJsonMap())
			mw.WriteTileState(reqState)
		}()

		reqState.HttpData = ParseHttpData(req)

		vars, err := ParseTileVars(req)
		if err != nil {
			reqState.IsParseError = true
			reqState.ResponseState = state.ResponseState_BadRequest
			logger.Warning(log.LogCategory_ParseError, err.Error())
			respondError(rw, reqState, err, logger)
			return
		}

		ctx := req.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		location, err := gw.Tile(ctx, route, vars.Z, vars.X, vars.Y, reqState)
		if err != nil {
			logError(logger, reqState, err)
			respondError(rw, reqState, err, logger)
			return
		}

		respWriteStart := time.Now()
		rw.Header().Set("Location", location)
		err = writeJson(rw, http.StatusFound, &locationResponse{Location: location})
		reqState.Duration.RespWrite = time.Since(respWriteStart)
		if err != nil {
			logger.Error(log.LogCategory_ResponseError, "Failed to write response body: %s", err)
			reqState.IsResponseWriteError = true
		}
	})
}

func logError(logger log.JsonLogger, reqState *state.RequestState, err error) {
	switch reqState.ResponseState {
	case state.ResponseState_BadRequest:
		logger.Warning(log.LogCategory_ParseError, err.Error())
	case state.ResponseState_NotFound:
		logger.Warning(log.LogCategory_ValidationError, err.Error())
	case state.ResponseState_BadGateway:
		logger.Error(log.LogCategory_UpstreamError, err.Error())
	default:
		logger.Error(log.LogCategory_StorageError, err.Error())
	}
}

func respondError(rw http.ResponseWriter, reqState *state.RequestState, err error, logger log.JsonLogger) {
	status := reqState.ResponseState.AsStatusCode()
	if status <= 0 {
		reqState.ResponseState = state.ResponseState_Error
		status = http.StatusInternalServerError
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	if werr := writeJson(rw, status, &errorResponse{Error: msg}); werr != nil {
		logger.Error(log.LogCategory_ResponseError, "Failed to write error response: %s", werr)
		reqState.IsResponseWriteError = true
	}
}

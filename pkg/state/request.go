package state

import (
	"time"

	"github.com/openterrain/tilegate/pkg/tile"
)

type ReqResponseState int32

const (
	ResponseState_Nil ReqResponseState = iota
	ResponseState_Success
	ResponseState_NotFound
	ResponseState_BadRequest
	ResponseState_BadGateway
	ResponseState_Error
	ResponseState_Count
)

func (rrs ReqResponseState) String() string {
	switch rrs {
	case ResponseState_Nil:
		return "nil"
	case ResponseState_Success:
		return "ok"
	case ResponseState_NotFound:
		return "notfound"
	case ResponseState_BadRequest:
		return "badreq"
	case ResponseState_BadGateway:
		return "badgateway"
	case ResponseState_Error:
		return "err"
	default:
		return "unknown"
	}
}

// AsStatusCode is the status of the tile response. A successful tile
// request is answered with a redirect.
func (rrs ReqResponseState) AsStatusCode() int {
	switch rrs {
	case ResponseState_Nil:
		return 0
	case ResponseState_Success:
		return 302
	case ResponseState_NotFound:
		return 404
	case ResponseState_BadRequest:
		return 400
	case ResponseState_BadGateway:
		return 502
	case ResponseState_Error:
		return 500
	default:
		return -1
	}
}

type ReqFetchState int32

const (
	FetchState_Nil ReqFetchState = iota
	FetchState_Success
	FetchState_Cached
	FetchState_InvalidFormat
	FetchState_InvalidZoom
	FetchState_InvalidCoordinates
	FetchState_UpstreamError
	FetchState_Count
)

func (rfs ReqFetchState) String() string {
	switch rfs {
	case FetchState_Nil:
		return "nil"
	case FetchState_Success:
		return "ok"
	case FetchState_Cached:
		return "cached"
	case FetchState_InvalidFormat:
		return "invalid_format"
	case FetchState_InvalidZoom:
		return "invalid_zoom"
	case FetchState_InvalidCoordinates:
		return "invalid_coords"
	case FetchState_UpstreamError:
		return "upstreamerr"
	default:
		return "unknown"
	}
}

type ReqWriteState int32

const (
	WriteState_Nil ReqWriteState = iota
	WriteState_Success
	WriteState_Stale
	WriteState_StorageError
	WriteState_Count
)

func (rws ReqWriteState) String() string {
	switch rws {
	case WriteState_Nil:
		return "nil"
	case WriteState_Success:
		return "ok"
	case WriteState_Stale:
		return "stale"
	case WriteState_StorageError:
		return "storageerr"
	default:
		return "unknown"
	}
}

type HttpRequestData struct {
	Path      string
	UserAgent string
	Referrer  string
}

type ReqCacheData struct {
	TileHit bool
}

type ReqDuration struct {
	Parse       time.Duration
	CacheLookup time.Duration
	Acquire     time.Duration
	Info        time.Duration
	Render      time.Duration
	Write       time.Duration
	RespWrite   time.Duration
	Total       time.Duration
}

type RequestState struct {
	Route                string
	ResponseState        ReqResponseState
	FetchState           ReqFetchState
	WriteState           ReqWriteState
	Cache                ReqCacheData
	Attempts             int
	FetchSize            int
	IsParseError         bool
	IsScaleError         bool
	IsCacheLookupError   bool
	IsCacheSetError      bool
	IsEnqueueError       bool
	IsResponseWriteError bool
	Enqueued             bool
	Duration             ReqDuration
	Key                  *tile.Key
	ObjectKey            string
	HttpData             HttpRequestData
}

func (reqState *RequestState) AsJsonMap() map[string]interface{} {

	result := make(map[string]interface{})

	if reqState.Route != "" {
		result["route"] = reqState.Route
	}

	if reqState.FetchState > FetchState_Nil {
		fetchResult := make(map[string]interface{})

		fetchResult["state"] = reqState.FetchState.String()
		if reqState.Attempts > 0 {
			fetchResult["attempts"] = reqState.Attempts
		}
		if reqState.FetchSize > 0 {
			fetchResult["size"] = reqState.FetchSize
		}

		result["fetch"] = fetchResult
	}

	if reqState.WriteState > WriteState_Nil {
		writeResult := make(map[string]interface{})

		writeResult["state"] = reqState.WriteState.String()
		if reqState.ObjectKey != "" {
			writeResult["key"] = reqState.ObjectKey
		}
		writeResult["enqueued"] = reqState.Enqueued

		result["write"] = writeResult
	}

	reqStateErrs := make(map[string]bool)
	if reqState.IsParseError {
		reqStateErrs["parse"] = true
	}
	if reqState.IsScaleError {
		reqStateErrs["scale"] = true
	}
	if reqState.IsCacheLookupError {
		reqStateErrs["cache_lookup"] = true
	}
	if reqState.IsCacheSetError {
		reqStateErrs["cache_set"] = true
	}
	if reqState.IsEnqueueError {
		reqStateErrs["enqueue"] = true
	}
	if reqState.IsResponseWriteError {
		reqStateErrs["response_write"] = true
	}
	if len(reqStateErrs) > 0 {
		result["error"] = reqStateErrs
	}

	result["timing"] = map[string]int64{
		"parse":        reqState.Duration.Parse.Milliseconds(),
		"cache_lookup": reqState.Duration.CacheLookup.Milliseconds(),
		"acquire":      reqState.Duration.Acquire.Milliseconds(),
		"info":         reqState.Duration.Info.Milliseconds(),
		"render":       reqState.Duration.Render.Milliseconds(),
		"write":        reqState.Duration.Write.Milliseconds(),
		"resp_write":   reqState.Duration.RespWrite.Milliseconds(),
		"total":        reqState.Duration.Total.Milliseconds(),
	}

	httpJsonData := make(map[string]interface{})
	httpJsonData["path"] = reqState.HttpData.Path
	if userAgent := reqState.HttpData.UserAgent; userAgent != "" {
		httpJsonData["user_agent"] = userAgent
	}
	if referrer := reqState.HttpData.Referrer; referrer != "" {
		httpJsonData["referer"] = referrer
	}
	if reqState.Key != nil {
		result["coord"] = map[string]int{
			"x":     reqState.Key.X,
			"y":     reqState.Key.Y,
			"z":     reqState.Key.Z,
			"scale": reqState.Key.Scale,
		}
		httpJsonData["format"] = reqState.Key.Format
	}
	httpJsonData["status"] = reqState.ResponseState.AsStatusCode()
	result["http"] = httpJsonData

	cacheJsonData := make(map[string]interface{})
	cacheJsonData["tile_hit"] = reqState.Cache.TileHit
	result["cache"] = cacheJsonData

	return result
}

type TileJsonDuration struct {
	Total, Info, RespWrite time.Duration
}

type TileJsonRequestState struct {
	Route                string
	Duration             TileJsonDuration
	ResponseState        ReqResponseState
	FetchState           ReqFetchState
	IsResponseWriteError bool
	HttpData             HttpRequestData
}

func (tileJsonReqState *TileJsonRequestState) AsJsonMap() map[string]interface{} {
	result := make(map[string]interface{})

	result["route"] = tileJsonReqState.Route

	if tileJsonReqState.FetchState > FetchState_Nil {
		result["fetch"] = map[string]interface{}{
			"state": tileJsonReqState.FetchState.String(),
		}
	}

	if tileJsonReqState.IsResponseWriteError {
		result["error"] = map[string]bool{"response_write": true}
	}

	result["timing"] = map[string]int64{
		"info":       tileJsonReqState.Duration.Info.Milliseconds(),
		"resp_write": tileJsonReqState.Duration.RespWrite.Milliseconds(),
		"total":      tileJsonReqState.Duration.Total.Milliseconds(),
	}

	httpJsonData := make(map[string]interface{})
	httpJsonData["path"] = tileJsonReqState.HttpData.Path
	if userAgent := tileJsonReqState.HttpData.UserAgent; userAgent != "" {
		httpJsonData["user_agent"] = userAgent
	}
	if referrer := tileJsonReqState.HttpData.Referrer; referrer != "" {
		httpJsonData["referer"] = referrer
	}
	if tileJsonReqState.ResponseState == ResponseState_Success {
		// tilejson documents are served directly
		httpJsonData["status"] = 200
	} else {
		httpJsonData["status"] = tileJsonReqState.ResponseState.AsStatusCode()
	}
	result["http"] = httpJsonData

	return result
}

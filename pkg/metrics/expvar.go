package metrics

import (
	"expvar"
	"sync/atomic"

	"github.com/openterrain/tilegate/pkg/state"
)

var (
	numRequests      *expvar.Int
	redirects        *expvar.Int
	cacheHits        *expvar.Int
	parseErrors      *expvar.Int
	validationErrors *expvar.Int
	upstreamErrors   *expvar.Int
	storageErrors    *expvar.Int
	invalidations    *expvar.Int

	drainRuns      *expvar.Int
	drainProcessed *expvar.Int

	avgTotalTime *expvar.Float

	totalRequestTime int64
)

func init() {
	numRequests = expvar.NewInt("numRequests")
	redirects = expvar.NewInt("redirects")
	cacheHits = expvar.NewInt("cacheHits")
	parseErrors = expvar.NewInt("parseErrors")
	validationErrors = expvar.NewInt("validationErrors")
	upstreamErrors = expvar.NewInt("upstreamErrors")
	storageErrors = expvar.NewInt("storageErrors")
	invalidations = expvar.NewInt("invalidations")

	drainRuns = expvar.NewInt("drainRuns")
	drainProcessed = expvar.NewInt("drainProcessed")

	avgTotalTime = expvar.NewFloat("avgTotalTime")
}

// ExpvarMetricsWriter keeps process wide counters, served at /debug/vars
// and logged periodically.
type ExpvarMetricsWriter struct{}

func (_ *ExpvarMetricsWriter) WriteTileState(reqState *state.RequestState) {
	numRequests.Add(1)
	n := numRequests.Value()

	switch reqState.ResponseState {
	case state.ResponseState_Success:
		redirects.Add(1)
	case state.ResponseState_BadRequest:
		parseErrors.Add(1)
	case state.ResponseState_NotFound:
		validationErrors.Add(1)
	case state.ResponseState_BadGateway:
		upstreamErrors.Add(1)
	}
	if reqState.WriteState == state.WriteState_StorageError {
		storageErrors.Add(1)
	}
	if reqState.Cache.TileHit {
		cacheHits.Add(1)
	}
	if reqState.Enqueued {
		invalidations.Add(1)
	}

	total := atomic.AddInt64(&totalRequestTime, reqState.Duration.Total.Milliseconds())
	avgTotalTime.Set(float64(total) / float64(n))
}

func (_ *ExpvarMetricsWriter) WriteTileJsonState(jsonReqState *state.TileJsonRequestState) {}

func (_ *ExpvarMetricsWriter) WriteDrainState(drainState *state.DrainState) {
	drainRuns.Add(1)
	drainProcessed.Add(int64(drainState.Processed))
}

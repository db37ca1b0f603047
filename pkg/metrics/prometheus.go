package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openterrain/tilegate/pkg/state"
)

var stageBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

// PrometheusMetricsWriter keeps its collectors in its own registry, served
// by Handler.
type PrometheusMetricsWriter struct {
	registry *prometheus.Registry

	tileRequests     *prometheus.CounterVec
	tileStages       *prometheus.HistogramVec
	upstreamAttempts prometheus.Histogram
	invalidations    prometheus.Counter
	tileErrors       *prometheus.CounterVec

	tileJsonRequests *prometheus.CounterVec
	tileJsonDuration prometheus.Histogram

	drainRuns      *prometheus.CounterVec
	drainReceives  prometheus.Counter
	drainProcessed prometheus.Counter
	drainErrors    *prometheus.CounterVec
	drainDuration  prometheus.Histogram
}

func NewPrometheusMetricsWriter(namespace string) *PrometheusMetricsWriter {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &PrometheusMetricsWriter{
		registry: registry,

		tileRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tile_requests_total",
			Help:      "Total number of tile requests",
		}, []string{"route", "response", "fetch"}),
		tileStages: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tile_stage_duration_seconds",
			Help:      "Duration of the stages of a tile request in seconds",
			Buckets:   stageBuckets,
		}, []string{"stage"}),
		upstreamAttempts: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_attempts",
			Help:      "Number of upstream attempts per rendered tile",
			Buckets:   []float64{1, 2, 3},
		}),
		invalidations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalidations_enqueued_total",
			Help:      "Total number of enqueued invalidation jobs",
		}),
		tileErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tile_errors_total",
			Help:      "Total number of non fatal tile request errors",
		}, []string{"kind"}),

		tileJsonRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tilejson_requests_total",
			Help:      "Total number of tilejson requests",
		}, []string{"route", "response"}),
		tileJsonDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tilejson_duration_seconds",
			Help:      "Duration of tilejson requests in seconds",
			Buckets:   stageBuckets,
		}),

		drainRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drain_runs_total",
			Help:      "Total number of drain invocations",
		}, []string{"trigger"}),
		drainReceives: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drain_receives_total",
			Help:      "Total number of queue receive calls",
		}),
		drainProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drain_processed_total",
			Help:      "Total number of processed invalidation messages",
		}),
		drainErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drain_errors_total",
			Help:      "Total number of drain errors",
		}, []string{"kind"}),
		drainDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "drain_duration_seconds",
			Help:      "Duration of drain invocations in seconds",
			Buckets:   stageBuckets,
		}),
	}
}

func (p *PrometheusMetricsWriter) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *PrometheusMetricsWriter) Registry() *prometheus.Registry {
	return p.registry
}

func (p *PrometheusMetricsWriter) WriteTileState(reqState *state.RequestState) {
	p.tileRequests.WithLabelValues(reqState.Route, reqState.ResponseState.String(), reqState.FetchState.String()).Inc()

	stages := map[string]float64{
		"cache_lookup": reqState.Duration.CacheLookup.Seconds(),
		"acquire":      reqState.Duration.Acquire.Seconds(),
		"info":         reqState.Duration.Info.Seconds(),
		"render":       reqState.Duration.Render.Seconds(),
		"write":        reqState.Duration.Write.Seconds(),
		"total":        reqState.Duration.Total.Seconds(),
	}
	for stage, seconds := range stages {
		if seconds > 0 {
			p.tileStages.WithLabelValues(stage).Observe(seconds)
		}
	}

	if reqState.Attempts > 0 {
		p.upstreamAttempts.Observe(float64(reqState.Attempts))
	}
	if reqState.Enqueued {
		p.invalidations.Inc()
	}

	for kind, isErr := range map[string]bool{
		"cache_lookup":   reqState.IsCacheLookupError,
		"cache_set":      reqState.IsCacheSetError,
		"enqueue":        reqState.IsEnqueueError,
		"response_write": reqState.IsResponseWriteError,
	} {
		if isErr {
			p.tileErrors.WithLabelValues(kind).Inc()
		}
	}
}

func (p *PrometheusMetricsWriter) WriteTileJsonState(jsonReqState *state.TileJsonRequestState) {
	p.tileJsonRequests.WithLabelValues(jsonReqState.Route, jsonReqState.ResponseState.String()).Inc()
	p.tileJsonDuration.Observe(jsonReqState.Duration.Total.Seconds())
}

func (p *PrometheusMetricsWriter) WriteDrainState(drainState *state.DrainState) {
	p.drainRuns.WithLabelValues(drainState.Trigger.String()).Inc()
	p.drainReceives.Add(float64(drainState.Receives))
	p.drainProcessed.Add(float64(drainState.Processed))
	p.drainDuration.Observe(drainState.Duration.Seconds())

	for kind, n := range map[string]int{
		"invalid_job":    drainState.InvalidJobs,
		"object_delete":  drainState.ObjectDeleteErrors,
		"cache_delete":   drainState.CacheDeleteErrors,
		"message_delete": drainState.MessageDeleteErrors,
	} {
		if n > 0 {
			p.drainErrors.WithLabelValues(kind).Add(float64(n))
		}
	}
	if drainState.IsReceiveError {
		p.drainErrors.WithLabelValues("receive").Inc()
	}
}

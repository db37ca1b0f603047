package metrics

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/openterrain/tilegate/pkg/log"
	"github.com/openterrain/tilegate/pkg/state"
)

type StatsdMetricsWriter struct {
	addr   *net.UDPAddr
	prefix string
	logger log.JsonLogger
	queue  chan stateContainer
}

type stateContainer struct {
	// one of these will be set
	tileReqState     *state.RequestState
	tileJsonReqState *state.TileJsonRequestState
	drainState       *state.DrainState
}

func (smw *StatsdMetricsWriter) Process(container stateContainer) {
	conn, err := net.DialUDP("udp", nil, smw.addr)
	if err != nil {
		smw.logger.Error(log.LogCategory_Metrics, "Metrics Writer failed to connect to %s: %s\n", smw.addr, err)
		return
	}
	defer conn.Close()

	w := bufio.NewWriter(conn)
	defer w.Flush()

	psw := prefixedStatsdWriter{
		prefix: smw.prefix,
		w:      w,
	}

	smw.write(&psw, container)
}

func (smw *StatsdMetricsWriter) write(psw *prefixedStatsdWriter, container stateContainer) {
	// variables to handle writing of common elements
	var respState *state.ReqResponseState
	var fetchState *state.ReqFetchState
	var isResponseWriteError *bool

	switch {
	case container.tileReqState != nil:
		reqState := container.tileReqState

		psw.WriteCount("count", 1)
		psw.WriteCount("tile", 1)

		respState = &reqState.ResponseState
		fetchState = &reqState.FetchState
		isResponseWriteError = &reqState.IsResponseWriteError

		if reqState.WriteState > state.WriteState_Nil && reqState.WriteState < state.WriteState_Count {
			psw.WriteCount(fmt.Sprintf("writestate.%s", reqState.WriteState.String()), 1)
		}
		if reqState.Attempts > 0 {
			psw.WriteGauge("upstream.attempts", reqState.Attempts)
		}
		if reqState.FetchSize > 0 {
			psw.WriteGauge("fetchsize.body-size", reqState.FetchSize)
		}

		psw.WriteBool("counts.cache-hit", reqState.Cache.TileHit)
		psw.WriteBool("counts.enqueued", reqState.Enqueued)
		psw.WriteBool("errors.parse-error", reqState.IsParseError)
		psw.WriteBool("errors.scale-error", reqState.IsScaleError)
		psw.WriteBool("errors.cache-lookup-error", reqState.IsCacheLookupError)
		psw.WriteBool("errors.cache-set-error", reqState.IsCacheSetError)
		psw.WriteBool("errors.enqueue-error", reqState.IsEnqueueError)

		psw.WriteTimer("timers.parse", reqState.Duration.Parse)
		psw.WriteTimer("timers.cache-lookup", reqState.Duration.CacheLookup)
		psw.WriteTimer("timers.acquire", reqState.Duration.Acquire)
		psw.WriteTimer("timers.info", reqState.Duration.Info)
		psw.WriteTimer("timers.render", reqState.Duration.Render)
		psw.WriteTimer("timers.write", reqState.Duration.Write)
		psw.WriteTimer("timers.response-write", reqState.Duration.RespWrite)
		psw.WriteTimer("timers.total", reqState.Duration.Total)

		if reqState.Key != nil && reqState.Key.Format != "" {
			psw.WriteCount(fmt.Sprintf("formats.%s", reqState.Key.Format), 1)
		}

	case container.tileJsonReqState != nil:
		tileJsonReqState := container.tileJsonReqState

		psw.WriteCount("count", 1)
		psw.WriteCount("tilejson", 1)

		respState = &tileJsonReqState.ResponseState
		fetchState = &tileJsonReqState.FetchState
		isResponseWriteError = &tileJsonReqState.IsResponseWriteError

		psw.WriteTimer("tilejson.timers.info", tileJsonReqState.Duration.Info)
		psw.WriteTimer("tilejson.timers.response-write", tileJsonReqState.Duration.RespWrite)
		psw.WriteTimer("tilejson.timers.total", tileJsonReqState.Duration.Total)

	case container.drainState != nil:
		drainState := container.drainState

		psw.WriteCount("drain.count", 1)
		psw.WriteCount(fmt.Sprintf("drain.trigger.%s", drainState.Trigger.String()), 1)
		psw.WriteCount("drain.receives", drainState.Receives)
		psw.WriteCount("drain.processed", drainState.Processed)
		psw.WriteCount("drain.errors.invalid-job", drainState.InvalidJobs)
		psw.WriteCount("drain.errors.object-delete", drainState.ObjectDeleteErrors)
		psw.WriteCount("drain.errors.cache-delete", drainState.CacheDeleteErrors)
		psw.WriteCount("drain.errors.message-delete", drainState.MessageDeleteErrors)
		psw.WriteBool("drain.errors.receive", drainState.IsReceiveError)
		psw.WriteTimer("drain.timers.total", drainState.Duration)

	default:
		smw.logger.Warning(log.LogCategory_InvalidCodeState, "Metric processing: no state")
	}

	if respState != nil {
		if *respState > state.ResponseState_Nil && *respState < state.ResponseState_Count {
			respStateName := respState.String()
			respMetricName := fmt.Sprintf("responsestate.%s", respStateName)
			psw.WriteCount(respMetricName, 1)
		} else {
			smw.logger.Error(log.LogCategory_InvalidCodeState, "Invalid response state: %d", int32(*respState))
		}
	}
	if fetchState != nil {
		if *fetchState > state.FetchState_Nil && *fetchState < state.FetchState_Count {
			fetchStateName := fetchState.String()
			fetchMetricName := fmt.Sprintf("fetchstate.%s", fetchStateName)
			psw.WriteCount(fetchMetricName, 1)
		} else if *fetchState != state.FetchState_Nil {
			smw.logger.Error(log.LogCategory_InvalidCodeState, "Invalid fetch state: %d", int32(*fetchState))
		}
	}
	if isResponseWriteError != nil {
		psw.WriteBool("errors.response-write-error", *isResponseWriteError)
	}
}

func (smw *StatsdMetricsWriter) enqueue(container stateContainer) {
	select {
	case smw.queue <- container:
	default:
		smw.logger.Warning(log.LogCategory_Metrics, "Metrics Writer queue full\n")
	}
}

func (smw *StatsdMetricsWriter) WriteTileState(reqState *state.RequestState) {
	smw.enqueue(stateContainer{tileReqState: reqState})
}

func (smw *StatsdMetricsWriter) WriteTileJsonState(tileJsonReqState *state.TileJsonRequestState) {
	smw.enqueue(stateContainer{tileJsonReqState: tileJsonReqState})
}

func (smw *StatsdMetricsWriter) WriteDrainState(drainState *state.DrainState) {
	smw.enqueue(stateContainer{drainState: drainState})
}

func NewStatsdMetricsWriter(addr *net.UDPAddr, metricsPrefix string, logger log.JsonLogger) MetricsWriter {
	maxQueueSize := 4096
	queue := make(chan stateContainer, maxQueueSize)

	smw := &StatsdMetricsWriter{
		addr:   addr,
		prefix: metricsPrefix,
		logger: logger,
		queue:  queue,
	}

	go func(smw *StatsdMetricsWriter) {
		for container := range smw.queue {
			smw.Process(container)
		}
	}(smw)

	return smw
}

func makeMetricPrefix(prefix string, metric string) string {
	if prefix == "" {
		return metric
	} else {
		return fmt.Sprintf("%s.%s", prefix, metric)
	}
}

func makeStatsdLineCount(prefix string, metric string, value int) string {
	return fmt.Sprintf("%s:%d|c\n", makeMetricPrefix(prefix, metric), value)
}

func makeStatsdLineGauge(prefix string, metric string, value int) string {
	return fmt.Sprintf("%s:%d|g\n", makeMetricPrefix(prefix, metric), value)
}

func makeStatsdLineTimer(prefix string, metric string, value time.Duration) string {
	millis := value.Milliseconds()
	return fmt.Sprintf("%s:%d|ms\n", makeMetricPrefix(prefix, metric), millis)
}

type prefixedStatsdWriter struct {
	prefix string
	w      io.Writer
}

func (psw *prefixedStatsdWriter) WriteCount(metric string, value int) {
	io.WriteString(psw.w, makeStatsdLineCount(psw.prefix, metric, value))
}

func (psw *prefixedStatsdWriter) WriteGauge(metric string, value int) {
	io.WriteString(psw.w, makeStatsdLineGauge(psw.prefix, metric, value))
}

func (psw *prefixedStatsdWriter) WriteBool(metric string, value bool) {
	if value {
		psw.WriteCount(metric, 1)
	}
}

func (psw *prefixedStatsdWriter) WriteTimer(metric string, value time.Duration) {
	io.WriteString(psw.w, makeStatsdLineTimer(psw.prefix, metric, value))
}

package metrics

import "github.com/openterrain/tilegate/pkg/state"

type MetricsWriter interface {
	WriteTileState(*state.RequestState)
	WriteTileJsonState(*state.TileJsonRequestState)
	WriteDrainState(*state.DrainState)
}

type NilMetricsWriter struct{}

func (_ *NilMetricsWriter) WriteTileState(reqState *state.RequestState)                 {}
func (_ *NilMetricsWriter) WriteTileJsonState(jsonReqState *state.TileJsonRequestState) {}
func (_ *NilMetricsWriter) WriteDrainState(drainState *state.DrainState)                {}

// MultiMetricsWriter fans every state out to all of its writers.
type MultiMetricsWriter []MetricsWriter

func (m MultiMetricsWriter) WriteTileState(reqState *state.RequestState) {
	for _, w := range m {
		w.WriteTileState(reqState)
	}
}

func (m MultiMetricsWriter) WriteTileJsonState(jsonReqState *state.TileJsonRequestState) {
	for _, w := range m {
		w.WriteTileJsonState(jsonReqState)
	}
}

func (m MultiMetricsWriter) WriteDrainState(drainState *state.DrainState) {
	for _, w := range m {
		w.WriteDrainState(drainState)
	}
}

// Combine drops nil writers and avoids the fan out for a single writer.
func Combine(writers ...MetricsWriter) MetricsWriter {
	var m MultiMetricsWriter
	for _, w := range writers {
		if w != nil {
			m = append(m, w)
		}
	}
	switch len(m) {
	case 0:
		return &NilMetricsWriter{}
	case 1:
		return m[0]
	}
	return m
}

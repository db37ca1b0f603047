package log

import (
	"bytes"
	"encoding/json"
	"expvar"
	"fmt"
	"log"
)

// utilities for json logging

// all messages are logged as json lines so that they can be filtered and
// turned into metrics downstream. Every line carries a type, and warnings
// and errors also carry a category.

type LogCategory int32

const (
	LogCategory_Nil LogCategory = iota
	LogCategory_InvalidCodeState
	LogCategory_ParseError
	LogCategory_ValidationError
	LogCategory_UpstreamError
	LogCategory_StorageError
	LogCategory_QueueError
	LogCategory_CacheError
	LogCategory_ResponseError
	LogCategory_ConfigError
	LogCategory_Metrics
	LogCategory_ExpVars
	LogCategory_TileJson
	LogCategory_Drain
)

func (lc LogCategory) String() string {
	switch lc {
	case LogCategory_Nil:
		return "nil"
	case LogCategory_InvalidCodeState:
		return "invalid_code_state"
	case LogCategory_ParseError:
		return "parse"
	case LogCategory_ValidationError:
		return "validation"
	case LogCategory_UpstreamError:
		return "upstream"
	case LogCategory_StorageError:
		return "storage"
	case LogCategory_QueueError:
		return "queue"
	case LogCategory_CacheError:
		return "cache"
	case LogCategory_ResponseError:
		return "response"
	case LogCategory_ConfigError:
		return "config"
	case LogCategory_Metrics:
		return "metrics"
	case LogCategory_ExpVars:
		return "expvars"
	case LogCategory_TileJson:
		return "tilejson"
	case LogCategory_Drain:
		return "drain"
	}
	panic(fmt.Sprintf("Unknown json category: %d\n", int32(lc)))
}

type JsonLogger interface {
	// helpful for basic one liners
	Info(string, ...interface{})
	Warning(LogCategory, string, ...interface{})
	Error(LogCategory, string, ...interface{})

	// for logging per request metrics
	Metrics(map[string]interface{})
	// for logging tilejson request metrics
	TileJson(map[string]interface{})
	// for logging the outcome of a single drain invocation
	Drain(map[string]interface{})

	// for logging expvars specifically
	ExpVars()

	// allows adding more metadata, and will remain *mostly*
	// unperturbed, will add minimal supplemental metadata before logging
	Log(map[string]interface{}, ...interface{})
}

type JsonLoggerImpl struct {
	Hostname string
	Logger   *log.Logger
}

func (l *JsonLoggerImpl) Log(jsonMap map[string]interface{}, xs ...interface{}) {
	if _, ok := jsonMap["hostname"]; !ok {
		jsonMap["hostname"] = l.Hostname
	}
	// if there are args, interpolate into the "message"
	// that key is assumed to be the string that gets interpolated
	if len(xs) > 0 {
		if msgValue, ok := jsonMap["message"]; ok {
			if msgStr, ok := msgValue.(string); ok {
				jsonMap["message"] = fmt.Sprintf(msgStr, xs...)
			}
		}
	}
	jsonBytes, err := json.Marshal(jsonMap)
	if err != nil {
		panic("ERROR creating json")
	}
	l.Logger.Print(string(jsonBytes))
}

func (l *JsonLoggerImpl) Info(msg string, xs ...interface{}) {
	l.Log(map[string]interface{}{
		"type":    "info",
		"message": msg,
	}, xs...)
}

func (l *JsonLoggerImpl) Warning(category LogCategory, msg string, xs ...interface{}) {
	l.Log(map[string]interface{}{
		"type":     "warning",
		"category": category.String(),
		"message":  msg,
	}, xs...)
}

func (l *JsonLoggerImpl) Error(category LogCategory, msg string, xs ...interface{}) {
	l.Log(map[string]interface{}{
		"type":     "error",
		"category": category.String(),
		"message":  msg,
	}, xs...)
}

func (l *JsonLoggerImpl) Metrics(metricsData map[string]interface{}) {
	metricsData["type"] = "info"
	metricsData["category"] = LogCategory_Metrics.String()
	l.Log(metricsData)
}

func (l *JsonLoggerImpl) TileJson(metricsData map[string]interface{}) {
	metricsData["type"] = "info"
	metricsData["category"] = LogCategory_TileJson.String()
	l.Log(metricsData)
}

func (l *JsonLoggerImpl) Drain(drainData map[string]interface{}) {
	drainData["type"] = "info"
	drainData["category"] = LogCategory_Drain.String()
	l.Log(drainData)
}

func (l *JsonLoggerImpl) ExpVars() {

	// The values of expvars are already json encoded (eg strings have ""
	// around them), so marshaling them again through a map would escape
	// them. The object is assembled by hand instead.

	var buffer bytes.Buffer
	buffer.WriteString("{")
	first := true
	expvar.Do(func(kv expvar.KeyValue) {
		if first {
			first = false
		} else {
			buffer.WriteString(",")
		}
		fmt.Fprintf(&buffer, "\"%s\":%s", kv.Key, kv.Value.String())
	})
	buffer.WriteString("}")
	l.Logger.Printf("{\"type\":\"info\",\"category\":\"%s\",\"hostname\":\"%s\",\"expvars\":%s}\n", LogCategory_ExpVars.String(), l.Hostname, buffer.String())
}

func NewJsonLogger(logger *log.Logger, hostname string) JsonLogger {
	return &JsonLoggerImpl{
		Logger:   logger,
		Hostname: hostname,
	}
}

type NilJsonLogger struct{}

func (_ *NilJsonLogger) Log(_ map[string]interface{}, _ ...interface{})    {}
func (_ *NilJsonLogger) Info(_ string, _ ...interface{})                   {}
func (_ *NilJsonLogger) Warning(_ LogCategory, _ string, _ ...interface{}) {}
func (_ *NilJsonLogger) Error(_ LogCategory, _ string, _ ...interface{})   {}
func (_ *NilJsonLogger) Metrics(_ map[string]interface{})                  {}
func (_ *NilJsonLogger) TileJson(_ map[string]interface{})                 {}
func (_ *NilJsonLogger) Drain(_ map[string]interface{})                    {}
func (_ *NilJsonLogger) ExpVars()                                          {}

package state

import "time"

type DrainTrigger int32

const (
	DrainTrigger_Nil DrainTrigger = iota
	DrainTrigger_Tick
	DrainTrigger_Notify
	DrainTrigger_Once
)

func (dt DrainTrigger) String() string {
	switch dt {
	case DrainTrigger_Nil:
		return "nil"
	case DrainTrigger_Tick:
		return "tick"
	case DrainTrigger_Notify:
		return "notify"
	case DrainTrigger_Once:
		return "once"
	default:
		return "unknown"
	}
}

// DrainState is the outcome of one drain invocation.
type DrainState struct {
	Trigger   DrainTrigger
	Receives  int
	Processed int

	InvalidJobs         int
	ObjectDeleteErrors  int
	CacheDeleteErrors   int
	MessageDeleteErrors int

	IsReceiveError bool
	// remaining budget when the loop stopped
	RemainingMillis int64
	Duration        time.Duration
}

func (ds *DrainState) AsJsonMap() map[string]interface{} {
	result := make(map[string]interface{})

	result["trigger"] = ds.Trigger.String()
	result["receives"] = ds.Receives
	result["processed"] = ds.Processed

	errs := make(map[string]int)
	if ds.InvalidJobs > 0 {
		errs["invalid_job"] = ds.InvalidJobs
	}
	if ds.ObjectDeleteErrors > 0 {
		errs["object_delete"] = ds.ObjectDeleteErrors
	}
	if ds.CacheDeleteErrors > 0 {
		errs["cache_delete"] = ds.CacheDeleteErrors
	}
	if ds.MessageDeleteErrors > 0 {
		errs["message_delete"] = ds.MessageDeleteErrors
	}
	if ds.IsReceiveError {
		errs["receive"] = 1
	}
	if len(errs) > 0 {
		result["error"] = errs
	}

	result["timing"] = map[string]int64{
		"total":     ds.Duration.Milliseconds(),
		"remaining": ds.RemainingMillis,
	}

	return result
}

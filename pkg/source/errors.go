package source

import "fmt"

type ValidationKind int

const (
	InvalidFormat ValidationKind = iota + 1
	InvalidZoom
	InvalidCoordinates
)

func (vk ValidationKind) String() string {
	switch vk {
	case InvalidFormat:
		return "format"
	case InvalidZoom:
		return "zoom"
	case InvalidCoordinates:
		return "coordinates"
	default:
		return "unknown"
	}
}

// ValidationError is a deterministic mismatch between the request and the
// metadata of the source. It is never retried.
type ValidationError struct {
	Kind   ValidationKind
	Detail string
}

func (ve *ValidationError) Error() string {
	if ve.Detail == "" {
		return fmt.Sprintf("Invalid %s", ve.Kind)
	}
	return fmt.Sprintf("Invalid %s: %s", ve.Kind, ve.Detail)
}

type Stage int

const (
	StageNil Stage = iota
	StageAcquire
	StageInfo
	StageTile
)

func (s Stage) String() string {
	switch s {
	case StageAcquire:
		return "acquire"
	case StageInfo:
		return "info"
	case StageTile:
		return "tile"
	default:
		return "nil"
	}
}

// UpstreamError is returned once the retry budget is spent. It carries the
// error of the last attempt.
type UpstreamError struct {
	Stage    Stage
	Attempts int
	Err      error
}

func (ue *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s failed after %d attempts: %s", ue.Stage, ue.Attempts, ue.Err)
}

func (ue *UpstreamError) Unwrap() error {
	return ue.Err
}

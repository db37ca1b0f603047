package budget

import (
	"context"
	"math"
	"time"
)

// Budget reports how much wall-clock time the current invocation has left.
type Budget interface {
	RemainingMillis() int64
}

// Func adapts a plain function to the Budget interface.
type Func func() int64

func (f Func) RemainingMillis() int64 {
	return f()
}

type deadlineBudget struct {
	deadline    time.Time
	hasDeadline bool
	now         func() time.Time
}

// FromContext returns a Budget tracking the deadline of ctx. A context without
// a deadline has an unlimited budget.
func FromContext(ctx context.Context) Budget {
	deadline, ok := ctx.Deadline()
	return &deadlineBudget{deadline: deadline, hasDeadline: ok, now: time.Now}
}

func (b *deadlineBudget) RemainingMillis() int64 {
	if !b.hasDeadline {
		return math.MaxInt64
	}
	remaining := b.deadline.Sub(b.now()).Milliseconds()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// DefaultMargin is how long before a deadline armed work is cancelled.
const DefaultMargin = 500 * time.Millisecond

// Arm derives a context which is cancelled margin before the deadline of
// parent, so that in-flight writes can wind down before the hard deadline.
// The returned func disarms the timer and must always be called.
func Arm(parent context.Context, margin time.Duration) (context.Context, context.CancelFunc) {
	deadline, ok := parent.Deadline()
	if !ok {
		return context.WithCancel(parent)
	}
	return context.WithDeadline(parent, deadline.Add(-margin))
}

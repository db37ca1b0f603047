package drain

import (
	"context"
	"time"

	"github.com/openterrain/tilegate/pkg/budget"
	"github.com/openterrain/tilegate/pkg/log"
	"github.com/openterrain/tilegate/pkg/metrics"
	"github.com/openterrain/tilegate/pkg/state"
)

// ArmMargin is how long before its deadline a drain invocation is
// cancelled.
const ArmMargin = budget.DefaultMargin

// Scheduler runs the drainer on every tick and whenever it is notified of
// a new invalidation. Notifications that arrive during a drain are folded
// into a single follow-up run.
type Scheduler struct {
	drainer       *Drainer
	interval      time.Duration
	budget        time.Duration
	metricsWriter metrics.MetricsWriter
	logger        log.JsonLogger
	notify        chan struct{}
}

// NewScheduler gives every drain invocation its own deadline of budget.
func NewScheduler(d *Drainer, interval, budget time.Duration, metricsWriter metrics.MetricsWriter, logger log.JsonLogger) *Scheduler {
	return &Scheduler{
		drainer:       d,
		interval:      interval,
		budget:        budget,
		metricsWriter: metricsWriter,
		logger:        logger,
		notify:        make(chan struct{}, 1),
	}
}

// Notify never blocks.
func (s *Scheduler) Notify() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is done. A drain in progress when ctx is cancelled
// runs to the end of its own budget, so that received messages are not
// left invisible, and Run returns after it.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	runCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(runCtx, state.DrainTrigger_Tick)
		case <-s.notify:
			s.RunOnce(runCtx, state.DrainTrigger_Notify)
		}
	}
}

// RunOnce performs a single drain invocation under a fresh deadline, and
// logs and records its outcome.
func (s *Scheduler) RunOnce(ctx context.Context, trigger state.DrainTrigger) *state.DrainState {
	ctx, cancel := context.WithTimeout(ctx, s.budget)
	defer cancel()

	armed, disarm := budget.Arm(ctx, ArmMargin)
	defer disarm()

	ds := &state.DrainState{Trigger: trigger}
	start := time.Now()
	err := s.drainer.Run(armed, budget.FromContext(ctx), ds)
	ds.Duration = time.Since(start)

	if err != nil {
		s.logger.Error(log.LogCategory_QueueError, "Drain failed: %s", err)
	}
	s.logger.Drain(ds.AsJsonMap())
	s.metricsWriter.WriteDrainState(ds)

	return ds
}

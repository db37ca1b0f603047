package drain

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/openterrain/tilegate/pkg/budget"
	"github.com/openterrain/tilegate/pkg/cache"
	"github.com/openterrain/tilegate/pkg/log"
	"github.com/openterrain/tilegate/pkg/queue"
	"github.com/openterrain/tilegate/pkg/state"
	"github.com/openterrain/tilegate/pkg/storage"
)

const (
	// no new batch is received with this little budget left
	ThresholdMillis = 1000
	BatchSize       = 10
	Visibility      = 10 * time.Second
)

// Drainer deletes the stored tiles named by queued invalidation jobs.
// Deletes are idempotent, so a message that is redelivered after a failed
// acknowledgement only repeats work.
type Drainer struct {
	queue   queue.Queue
	queueID string
	storage storage.Storage
	cache   cache.Cache
	logger  log.JsonLogger
	tracer  trace.Tracer
}

func New(q queue.Queue, queueID string, store storage.Storage, c cache.Cache, logger log.JsonLogger) *Drainer {
	if c == nil {
		c = cache.NilCache{}
	}
	return &Drainer{
		queue:   q,
		queueID: queueID,
		storage: store,
		cache:   c,
		logger:  logger,
		tracer:  otel.Tracer("github.com/openterrain/tilegate/pkg/drain"),
	}
}

// Drain receives and processes batches until a batch comes back empty or
// the budget drops to the threshold. It returns the number of processed
// messages. Only a failed receive is an error.
func (d *Drainer) Drain(ctx context.Context, b budget.Budget) (int, error) {
	ds := &state.DrainState{}
	err := d.Run(ctx, b, ds)
	return ds.Processed, err
}

// Run is Drain recording its progress in ds.
func (d *Drainer) Run(ctx context.Context, b budget.Budget, ds *state.DrainState) (err error) {
	ctx, span := d.tracer.Start(ctx, "drain", trace.WithAttributes(
		attribute.String("trigger", ds.Trigger.String()),
	))
	defer func() {
		span.SetAttributes(
			attribute.Int("receives", ds.Receives),
			attribute.Int("processed", ds.Processed),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "receive failed")
		}
		span.End()
	}()

	for {
		ds.RemainingMillis = b.RemainingMillis()
		if ds.RemainingMillis <= ThresholdMillis {
			return nil
		}

		messages, err := d.queue.Receive(ctx, d.queueID, BatchSize, Visibility)
		ds.Receives++
		if err != nil {
			ds.IsReceiveError = true
			return fmt.Errorf("receive from %s: %w", d.queueID, err)
		}

		for _, m := range messages {
			d.process(ctx, m, ds)
			ds.Processed++
		}

		if len(messages) == 0 {
			return nil
		}
	}
}

func (d *Drainer) process(ctx context.Context, m queue.Message, ds *state.DrainState) {
	job, err := queue.DecodeJob(m.Body)
	if err != nil {
		// it will never parse, so it is acknowledged anyway
		ds.InvalidJobs++
		d.logger.Warning(log.LogCategory_QueueError, "Dropping invalid invalidation job: %s", err)
	} else {
		if err := d.storage.Delete(ctx, job.Bucket, job.Key); err != nil {
			ds.ObjectDeleteErrors++
			d.logger.Warning(log.LogCategory_StorageError, "Failed to delete %s/%s: %s", job.Bucket, job.Key, err)
		}
		if err := d.cache.DeleteTile(ctx, job.Key); err != nil {
			ds.CacheDeleteErrors++
			d.logger.Warning(log.LogCategory_CacheError, "Failed to evict %s from cache: %s", job.Key, err)
		}
	}

	if err := d.queue.Delete(ctx, d.queueID, m.ReceiptToken); err != nil {
		ds.MessageDeleteErrors++
		d.logger.Warning(log.LogCategory_QueueError, "Failed to delete message from %s: %s", d.queueID, err)
	}
}

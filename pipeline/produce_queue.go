package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/trailmark-labs/ppm/buffer"
	"github.com/trailmark-labs/ppm/busclient"
	"github.com/trailmark-labs/ppm/errors"
	"github.com/trailmark-labs/ppm/metric"
	"github.com/trailmark-labs/ppm/retry"
)

// retryBuffer is the narrow slice of buffer.Buffer this queue actually
// depends on: enqueue one job, drain one job. Mirrors busclient's
// Consumer/Producer pattern of depending on the smallest interface a
// component needs rather than a generic library's full surface (Peek,
// ReadBatch, Stats, Close, ... none of which the produce-retry queue uses).
type retryBuffer interface {
	Write(produceJob) error
	Read() (produceJob, bool)
}

// produceJob is one payload that failed a produce attempt and is queued for
// a background retry rather than blocking the consume loop.
type produceJob struct {
	topic     string
	partition int32
	payload   []byte
	size      int
}

// produceQueue wraps a bounded buffer.Buffer[produceJob] and a background
// drain goroutine that retries queued jobs with exponential backoff. It only
// ever removes items the engine already decided to produce; it never
// influences filter decisions, so it cannot affect per-partition ordering of
// what gets suppressed versus retained.
type produceQueue struct {
	buf      retryBuffer
	producer busclient.Producer
	counters *Counters
	logger   *slog.Logger
	retryCfg retry.Config
}

// newProduceQueue builds the 256-slot buffer backing a produceQueue with
// buffer.ProduceRetryOptions, which installs a drop callback ahead of any
// caller-supplied option. The buffer always evicts the oldest queued job
// when full and returns a nil error from Write, which would
// otherwise leave that job invisible to every counter and break
// recv_msgs == sent_msgs + filt_msgs + produce_errors.
func newProduceQueue(producer busclient.Producer, counters *Counters, logger *slog.Logger, metrics *metric.Registry, opts ...buffer.Option[produceJob]) (*produceQueue, error) {
	onDrop := func(job produceJob) {
		counters.ProduceErrors.Add(1)
		if metrics != nil {
			metrics.ProduceErrorsTotal.Inc()
		}
		logger.Warn("produce queue overflow, dropped queued job", "topic", job.topic, "size", job.size)
	}
	allOpts := append(buffer.ProduceRetryOptions[produceJob](metrics, "produce_retry", onDrop), opts...)

	buf, err := buffer.NewCircularBuffer[produceJob](256, allOpts...)
	if err != nil {
		return nil, err
	}
	return &produceQueue{
		buf:      buf,
		producer: producer,
		counters: counters,
		logger:   logger,
		retryCfg: retry.ProduceRetryConfig(),
	}, nil
}

// Enqueue buffers a failed produce attempt for later retry. A Write error
// (the buffer has been closed) is counted here; an eviction of the oldest
// queued job is counted by the drop callback installed in
// newProduceQueue instead, since Write itself returns nil in that case.
func (q *produceQueue) Enqueue(job produceJob) {
	if err := q.buf.Write(job); err != nil {
		q.counters.ProduceErrors.Add(1)
		q.logger.Warn("produce queue full, dropping job", "topic", job.topic, "error", err)
	}
}

// Drain runs until ctx is done, retrying buffered jobs one at a time. It is
// started in RUNNING and stopped in DRAINING.
func (q *produceQueue) Drain(ctx context.Context) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, ok := q.buf.Read()
			if !ok {
				continue
			}
			err := retry.Do(ctx, q.retryCfg, func() error {
				produceErr := q.producer.Produce(ctx, job.topic, job.partition, job.payload)
				if errors.IsFatal(produceErr) {
					// A Fatal-class produce error (e.g. an invalid topic
					// name) will not resolve itself between attempts; mark
					// it non-retryable so Do stops immediately instead of
					// burning every configured attempt on a doomed job.
					return retry.NonRetryable(produceErr)
				}
				return produceErr
			})
			if err != nil {
				q.counters.ProduceErrors.Add(1)
				q.logger.Warn("dropped buffered produce job after retries", "topic", job.topic, "error", err)
				continue
			}
			q.counters.recordSent(job.size)
		}
	}
}

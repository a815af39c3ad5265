// Package pipeline implements the consume/filter/produce loop: the run-state
// machine, per-message dispatch, and counted, signal-aware shutdown.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/trailmark-labs/ppm/bsm"
	"github.com/trailmark-labs/ppm/busclient"
	"github.com/trailmark-labs/ppm/config"
	"github.com/trailmark-labs/ppm/errors"
	"github.com/trailmark-labs/ppm/filter"
	"github.com/trailmark-labs/ppm/health"
	"github.com/trailmark-labs/ppm/metric"
	"github.com/trailmark-labs/ppm/quadtree"
)

// reconnectBackoff is the fixed sleep between consumer-wait polls
// (waitForTopic). Deliberately not exponential: a topic that hasn't
// appeared yet is not expected to appear sooner the longer we wait.
const reconnectBackoff = 1500 * time.Millisecond

// Engine runs one instance of the consume/filter/produce loop.
type Engine struct {
	policy config.Policy
	tree   *quadtree.Tree
	filter *filter.Policy

	consumer busclient.Consumer
	producer busclient.Producer

	counters Counters
	metrics  *metric.Registry
	health   *health.Monitor
	logger   *slog.Logger

	produceQ *produceQueue

	// bootstrap and streamAvailable are the two atomic flags a terminate
	// signal flips; the signal handler only ever writes to them.
	bootstrap       atomic.Bool
	streamAvailable atomic.Bool
}

// New constructs an Engine ready to Run. tree must already be built over
// policy's mapfile entities; consumer/producer are already subscribed/ready
// to publish per CONFIGURING's resource-acquisition rule.
func New(policy config.Policy, tree *quadtree.Tree, filterPolicy *filter.Policy, consumer busclient.Consumer, producer busclient.Producer, metrics *metric.Registry, monitor *health.Monitor, logger *slog.Logger) (*Engine, error) {
	e := &Engine{
		policy:   policy,
		tree:     tree,
		filter:   filterPolicy,
		consumer: consumer,
		producer: producer,
		metrics:  metrics,
		health:   monitor,
		logger:   logger,
	}
	e.bootstrap.Store(true)
	e.streamAvailable.Store(true)

	q, err := newProduceQueue(producer, &e.counters, logger, metrics)
	if err != nil {
		return nil, errors.WrapFatal(err, "pipeline", "New", "produce queue")
	}
	e.produceQ = q

	return e, nil
}

// Stop flips both flags a terminate-class signal sets: streamAvailable
// breaks the inner loop, bootstrap breaks the outer one. No other work
// happens in signal context; the state machine observes the flags on its
// own goroutine.
func (e *Engine) Stop() {
	e.streamAvailable.Store(false)
	e.bootstrap.Store(false)
}

// Run drives the state machine until EXITED and returns the terminal error,
// if any (nil on a clean shutdown).
func (e *Engine) Run(ctx context.Context) error {
	state := StateInit
	drainCtx, cancelDrain := context.WithCancel(ctx)
	defer cancelDrain()

	for {
		if e.metrics != nil {
			e.metrics.SetState(state.String())
		}

		switch state {
		case StateInit:
			state = StateConfiguring

		case StateConfiguring:
			e.health.UpdateHealthy("pipeline", "configuring")
			state = StateConsumerWait

		case StateConsumerWait:
			if !e.bootstrap.Load() {
				state = StateExited
				continue
			}
			if err := e.waitForTopic(ctx); err != nil {
				return err
			}
			e.health.UpdateHealthy("pipeline", "running")
			go e.produceQ.Drain(drainCtx)
			state = StateRunning

		case StateRunning:
			if !e.streamAvailable.Load() || !e.bootstrap.Load() {
				state = StateDraining
				continue
			}
			done, err := e.runOnce(ctx)
			if err != nil {
				e.logger.Error("run iteration failed", "error", err)
				e.streamAvailable.Store(false)
			}
			if done {
				state = StateDraining
			}

		case StateDraining:
			cancelDrain()
			e.health.UpdateDegraded("pipeline", "draining")
			if e.bootstrap.Load() {
				drainCtx, cancelDrain = context.WithCancel(ctx)
				state = StateConsumerWait
				continue
			}
			state = StateExited

		case StateExited:
			e.reportExit()
			return nil
		}
	}
}

// waitForTopic polls at the fixed reconnectBackoff cadence, not the
// produce queue's exponential one, retrying only on KindUnknownTopic until
// the topic is advertised or the outer bootstrap flag drops. Poll is the
// only probe available, so any other outcome it turns up — a real message,
// a partition EOF — is dispatched through the same handling runOnce uses
// rather than discarded.
func (e *Engine) waitForTopic(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for e.bootstrap.Load() {
		outcome, err := e.consumer.Poll(ctx, e.policy.ConsumerPollTimeout)
		if err != nil {
			return err
		}

		if outcome.Kind == busclient.KindUnknownTopic {
			timer.Reset(reconnectBackoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
			continue
		}

		_, err = e.handleOutcome(ctx, outcome)
		return err
	}
	return nil
}

// runOnce polls once and dispatches on outcome kind. It returns done=true
// when the inner loop should transition to draining.
func (e *Engine) runOnce(ctx context.Context) (bool, error) {
	outcome, err := e.consumer.Poll(ctx, e.policy.ConsumerPollTimeout)
	if err != nil {
		return true, err
	}
	return e.handleOutcome(ctx, outcome)
}

// handleOutcome dispatches a single poll outcome and reports whether the
// caller should transition toward draining.
func (e *Engine) handleOutcome(ctx context.Context, outcome busclient.Outcome) (bool, error) {
	switch outcome.Kind {
	case busclient.KindTimeout:
		return false, nil

	case busclient.KindMessage:
		e.handleMessage(ctx, outcome)
		return false, nil

	case busclient.KindPartitionEOF:
		e.counters.PartitionEOFs.Add(1)
		if e.policy.ExitOnEOF {
			// -x/--exit means stop the process, not just drain and
			// reconnect: flip bootstrap so draining leads to EXITED.
			e.bootstrap.Store(false)
			return true, nil
		}
		return false, nil

	case busclient.KindUnknownTopic, busclient.KindUnknownPartition:
		return true, nil

	case busclient.KindErr:
		if outcome.Err != nil {
			return true, outcome.Err
		}
		return true, fmt.Errorf("pipeline: consumer reported an error")

	default:
		return true, fmt.Errorf("pipeline: unexpected poll outcome %s", outcome.Kind)
	}
}

func (e *Engine) handleMessage(ctx context.Context, outcome busclient.Outcome) {
	e.counters.recordReceived(len(outcome.Payload))
	if e.metrics != nil {
		e.metrics.BSMReceivedTotal.Inc()
		e.metrics.BSMReceivedBytesTotal.Add(float64(len(outcome.Payload)))
	}

	doc, err := bsm.Parse(outcome.Payload)
	if err != nil {
		e.recordFiltered(len(outcome.Payload), "parse")
		return
	}

	start := time.Now()
	decision, err := e.filter.Apply(doc, e.policy.GeofenceBBox(), e.tree)
	if e.metrics != nil {
		e.metrics.RecordFilterEval(time.Since(start))
	}
	if err != nil {
		e.recordFiltered(len(outcome.Payload), "redact-error")
		return
	}

	if decision.Outcome == filter.Suppress {
		e.recordFiltered(len(outcome.Payload), decision.Reason)
		return
	}

	payload, err := doc.Serialize()
	if err != nil {
		e.recordFiltered(len(outcome.Payload), "serialize-error")
		return
	}

	if err := e.producer.Produce(ctx, e.policy.ProducerTopic, e.policy.Partition, payload); err != nil {
		e.produceQ.Enqueue(produceJob{
			topic:     e.policy.ProducerTopic,
			partition: e.policy.Partition,
			payload:   payload,
			size:      len(payload),
		})
		return
	}

	e.counters.recordSent(len(payload))
	if e.metrics != nil {
		e.metrics.BSMSentTotal.Inc()
		e.metrics.BSMSentBytesTotal.Add(float64(len(payload)))
	}
}

func (e *Engine) recordFiltered(size int, reason string) {
	e.counters.recordFiltered(size)
	if e.metrics != nil {
		e.metrics.RecordFiltered(reason, size)
	}
}

// reportExit emits the three counter lines on shutdown. Partition is logged
// as a structured int field, never string-concatenated.
func (e *Engine) reportExit() {
	snap := e.counters.Snapshot()
	e.logger.Info("consumed", "messages", snap.RecvMsgs, "bytes", snap.RecvBytes)
	e.logger.Info("published", "messages", snap.SentMsgs, "bytes", snap.SentBytes)
	e.logger.Info("suppressed", "messages", snap.FiltMsgs, "bytes", snap.FiltBytes)
	e.logger.Info("shutdown complete",
		"partition", e.policy.Partition,
		"produce_errors", snap.ProduceErrors,
		"partition_eofs", snap.PartitionEOFs,
	)
}

// Counters exposes a read-only snapshot for the admin HTTP server.
func (e *Engine) Counters() Snapshot {
	return e.counters.Snapshot()
}

package busclient

import (
	"context"
	"sync"
	"time"
)

// Fake is an in-memory Consumer and Producer, letting pipeline tests drive
// the engine's state machine without a real broker.
type Fake struct {
	mu        sync.Mutex
	inbox     []Outcome
	produced  []FakeProduced
	partition int32
	offset    int64
	closed    bool
}

// FakeProduced records one call to Produce.
type FakeProduced struct {
	Topic     string
	Partition int32
	Payload   []byte
}

// NewFake returns a ready-to-use Fake bound to partition.
func NewFake(partition int32) *Fake {
	return &Fake{partition: partition}
}

// Enqueue appends a message the next Poll calls will deliver, in order.
func (f *Fake) Enqueue(payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offset++
	f.inbox = append(f.inbox, Outcome{
		Kind:      KindMessage,
		Payload:   payload,
		Partition: f.partition,
		Offset:    f.offset,
	})
}

// EnqueueOutcome appends an arbitrary outcome (PartitionEOF, UnknownTopic,
// Err, ...) for exercising the pipeline's dispatch table directly.
func (f *Fake) EnqueueOutcome(o Outcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbox = append(f.inbox, o)
}

// Poll implements Consumer. It never blocks for timeout: an empty inbox
// yields KindTimeout immediately, which is sufficient for deterministic
// pipeline tests that drive the loop one Poll at a time.
func (f *Fake) Poll(ctx context.Context, timeout time.Duration) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return Outcome{Kind: KindErr}, nil
	}
	if len(f.inbox) == 0 {
		return Outcome{Kind: KindTimeout}, nil
	}
	next := f.inbox[0]
	f.inbox = f.inbox[1:]
	return next, nil
}

// Position implements Consumer.
func (f *Fake) Position() []PartitionOffset {
	f.mu.Lock()
	defer f.mu.Unlock()
	return []PartitionOffset{{Partition: f.partition, Offset: f.offset}}
}

// Produce implements Producer, recording every call for assertions.
func (f *Fake) Produce(ctx context.Context, topic string, partition int32, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.produced = append(f.produced, FakeProduced{Topic: topic, Partition: partition, Payload: payload})
	return nil
}

// Produced returns every payload recorded by Produce, in call order.
func (f *Fake) Produced() []FakeProduced {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeProduced, len(f.produced))
	copy(out, f.produced)
	return out
}

// Close implements Consumer and Producer.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

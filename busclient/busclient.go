// Package busclient defines the narrow Consumer/Producer capability
// interfaces the pipeline engine consumes, and the concrete adapters behind
// them (a NATS-backed adapter for production, an in-memory fake for tests).
package busclient

import (
	"context"
	"time"
)

// OutcomeKind tags the result of a single Poll call.
type OutcomeKind int

const (
	KindMessage OutcomeKind = iota
	KindTimeout
	KindPartitionEOF
	KindUnknownTopic
	KindUnknownPartition
	KindErr
)

func (k OutcomeKind) String() string {
	switch k {
	case KindMessage:
		return "message"
	case KindTimeout:
		return "timeout"
	case KindPartitionEOF:
		return "partition_eof"
	case KindUnknownTopic:
		return "unknown_topic"
	case KindUnknownPartition:
		return "unknown_partition"
	case KindErr:
		return "error"
	default:
		return "unknown"
	}
}

// PartitionOffset names a consumer's current read position on one partition.
type PartitionOffset struct {
	Partition int32
	Offset    int64
}

// Outcome is the tagged result of a Poll call, mirroring the dispatch table
// the pipeline engine's state machine switches on.
type Outcome struct {
	Kind      OutcomeKind
	Payload   []byte
	Partition int32
	Offset    int64
	Err       error
}

// Consumer polls a single topic for BSM payloads.
type Consumer interface {
	Poll(ctx context.Context, timeout time.Duration) (Outcome, error)
	Position() []PartitionOffset
	Close() error
}

// Producer publishes payloads to a topic/partition.
type Producer interface {
	Produce(ctx context.Context, topic string, partition int32, payload []byte) error
	Close() error
}

// Package buffer provides a bounded, thread-safe drop-oldest ring buffer.
//
// The only consumer is pipeline.produceQueue: a fixed-size queue of produce
// jobs that failed on the first attempt and are waiting for Drain's retry
// loop to pick them up. That queue needs exactly one overflow behavior
// (evict the oldest waiting job to make room for a fresher one) and exactly
// two operations (Write, Read) — see its own retryBuffer interface — so this
// package carries no configurable overflow policy and no blocking-write
// path; both were dead weight once DropOldest turned out to be the only
// policy anything in this repository ever selects.
//
// buffer.ProduceRetryOptions bundles the option set that queue needs
// (metrics under a prefix, a drop callback) so the call site doesn't have to
// assemble them by hand:
//
//	buf, err := buffer.NewCircularBuffer[produceJob](256,
//		buffer.ProduceRetryOptions[produceJob](registry, "produce_retry", onDrop)...,
//	)
//
// Statistics are always collected via atomic counters and available through
// Stats() regardless of whether Prometheus metrics are enabled; Prometheus
// export is opt-in via WithMetrics and duplicates the same counts under a
// component label, since a pipeline running without a Prometheus registry
// wired up should not lose Stats() entirely.
package buffer

// Package retry provides exponential backoff for the two retry loops this
// repository runs, at opposite ends of the pipeline:
//
//   - busclient.NATSClient.subscribeDurable uses JetStreamSetupConfig() (10
//     attempts, 50ms-1s delay) around the JetStream stream/consumer creation
//     calls issued right after a connection reaches CONNECTED, when the
//     broker's JetStream metadata layer can still be settling.
//   - pipeline.produceQueue.Drain uses ProduceRetryConfig() (3 attempts,
//     100ms-5s delay) around each buffered produce retry, wrapping the
//     result in NonRetryable when errors.IsFatal reports the underlying
//     error is not going to succeed on a later attempt (a malformed payload
//     doesn't get less malformed after backing off).
//
//	err := retry.Do(ctx, retry.JetStreamSetupConfig(), func() error {
//	    return jsSetupCall()
//	})
//
// # Context Cancellation
//
// All retry operations respect context cancellation and stop immediately,
// either during operation execution or during a backoff delay.
//
// # Thread Safety
//
// All functions are safe for concurrent use. The jitter mechanism uses a
// thread-safe random source to avoid contention.
package retry

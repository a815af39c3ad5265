package buffer

import (
	"github.com/trailmark-labs/ppm/metric"
)

// Option configures buffer behavior using the functional options pattern.
// This provides a clean, extensible API for configuring buffers.
type Option[T any] func(*bufferOptions[T])

// bufferOptions holds internal configuration for buffer instances.
// Stats are ALWAYS collected - they are not optional.
// Metrics are optional and exposed via WithMetrics().
type bufferOptions[T any] struct {
	dropCallback DropCallback[T]

	// metricsReg is optional - if provided, buffer stats are also exposed as Prometheus metrics
	metricsReg *metric.Registry

	// metricsPrefix is used as the component label for Prometheus metrics
	metricsPrefix string
}

// WithMetrics enables Prometheus metrics export for buffer statistics.
// If registry is nil, this option is ignored.
// Registry should not be nil in normal usage - this handles edge cases gracefully.
func WithMetrics[T any](registry *metric.Registry, prefix string) Option[T] {
	return func(opts *bufferOptions[T]) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

// WithDropCallback sets a callback function that is called when items are dropped.
// The callback receives the item that was dropped.
func WithDropCallback[T any](callback DropCallback[T]) Option[T] {
	return func(opts *bufferOptions[T]) {
		opts.dropCallback = callback
	}
}

// ProduceRetryOptions bundles the option set the privacy pipeline's
// produce-retry queue always wants: Prometheus metrics under prefix, and a
// drop callback so an eviction on overflow — which otherwise returns a nil
// error from Write — is never silently left uncounted.
func ProduceRetryOptions[T any](metrics *metric.Registry, prefix string, onDrop DropCallback[T]) []Option[T] {
	return []Option[T]{
		WithMetrics[T](metrics, prefix),
		WithDropCallback[T](onDrop),
	}
}

// applyOptions applies functional options to create final buffer configuration.
// This is an internal helper used by buffer constructors.
func applyOptions[T any](options ...Option[T]) *bufferOptions[T] {
	opts := &bufferOptions[T]{}

	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}

	return opts
}

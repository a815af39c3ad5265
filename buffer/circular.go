package buffer

import (
	"sync"

	"github.com/trailmark-labs/ppm/errors"
)

// circularBuffer is a thread-safe ring buffer that evicts the oldest item on
// overflow. The only instance in this repository backs pipeline.produceQueue,
// sized 256 — a queued produce job superseded by 256 fresher ones was going
// to be redundant with whatever's now current on the topic anyway.
type circularBuffer[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	size     int
	head     int // next write position
	tail     int // next read position
	stats    *Statistics
	metrics  *bufferMetrics
	opts     *bufferOptions[T]
	closed   bool
}

// newCircularBuffer creates a new circular buffer instance.
// Returns an error if metrics registration fails when requested.
func newCircularBuffer[T any](capacity int, opts *bufferOptions[T]) (*circularBuffer[T], error) {
	if capacity <= 0 {
		capacity = 1
	}

	stats := NewStatistics()

	var metrics *bufferMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newBufferMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "buffer", "newCircularBuffer", "metrics registration")
		}
	}

	return &circularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		stats:    stats,
		metrics:  metrics,
		opts:     opts,
	}, nil
}

// Write adds an item to the buffer, evicting the oldest item first if full.
func (cb *circularBuffer[T]) Write(item T) error {
	// Deferred before the unlock below, so it runs after it: the drop
	// callback is invoked outside the lock.
	var onDrop func()
	defer func() {
		if onDrop != nil {
			onDrop()
		}
	}()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.closed {
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "Buffer", "Write", "buffer closed")
	}

	if cb.size == cb.capacity {
		droppedItem := cb.items[cb.tail]
		cb.tail = (cb.tail + 1) % cb.capacity
		cb.size--

		cb.stats.Overflow()
		cb.stats.Drop()
		if cb.metrics != nil {
			cb.metrics.recordOverflow()
			cb.metrics.recordDrop()
		}
		if cb.opts.dropCallback != nil {
			onDrop = func() { cb.opts.dropCallback(droppedItem) }
		}
	}

	cb.items[cb.head] = item
	cb.head = (cb.head + 1) % cb.capacity
	cb.size++

	cb.stats.Write()
	cb.stats.UpdateSize(int64(cb.size))
	if cb.metrics != nil {
		cb.metrics.recordWrite(cb.size, cb.capacity)
	}

	return nil
}

// Read retrieves and removes the oldest item in the buffer.
func (cb *circularBuffer[T]) Read() (T, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var zero T
	if cb.size == 0 {
		return zero, false
	}

	item := cb.items[cb.tail]
	cb.items[cb.tail] = zero // clear for GC
	cb.tail = (cb.tail + 1) % cb.capacity
	cb.size--

	cb.stats.Read()
	cb.stats.UpdateSize(int64(cb.size))
	if cb.metrics != nil {
		cb.metrics.recordRead(cb.size, cb.capacity)
	}

	return item, true
}

// Size returns the current number of items in the buffer.
func (cb *circularBuffer[T]) Size() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.size
}

// Capacity returns the maximum number of items the buffer can hold.
func (cb *circularBuffer[T]) Capacity() int {
	return cb.capacity // immutable, no lock needed
}

// Stats returns buffer statistics (always available for observability).
func (cb *circularBuffer[T]) Stats() *Statistics {
	return cb.stats
}

// Close shuts down the buffer. Further Write calls return an error; Read
// still drains whatever is left in the buffer.
func (cb *circularBuffer[T]) Close() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.closed = true
	return nil
}

package buffer

// Buffer is the operation set pipeline.produceQueue's retryBuffer interface
// narrows down to Write/Read. Size, Capacity, Stats, and Close remain on the
// interface because buffer_test.go and the metrics wiring in metrics.go both
// need them to observe queue depth.
type Buffer[T any] interface {
	// Write adds an item to the buffer, evicting the oldest queued item if
	// the buffer is already at capacity.
	Write(item T) error

	// Read retrieves and removes the oldest item in the buffer.
	// Returns the item and true if successful, zero value and false if empty.
	Read() (T, bool)

	// Size returns the current number of items in the buffer.
	Size() int

	// Capacity returns the maximum number of items the buffer can hold.
	Capacity() int

	// Stats returns buffer statistics (always available for observability).
	Stats() *Statistics

	// Close shuts down the buffer; further Write calls return an error.
	Close() error
}

// DropCallback is called, outside the buffer's lock, when an item is evicted
// to make room for a new write. It receives the evicted item.
type DropCallback[T any] func(item T)

// NewCircularBuffer creates a bounded drop-oldest ring buffer of the given
// capacity. Stats are always collected; Prometheus export and a drop
// callback are opt-in via Option.
func NewCircularBuffer[T any](capacity int, options ...Option[T]) (Buffer[T], error) {
	opts := applyOptions(options...)
	return newCircularBuffer(capacity, opts)
}

package pipeline

import "sync/atomic"

// Counters tracks the three exit-report lines (consumed/published/
// suppressed) plus produce errors and partition EOFs, each as an atomic pair
// of message count and byte count so the admin HTTP server can read a
// consistent snapshot from another goroutine.
type Counters struct {
	RecvMsgs  atomic.Int64
	RecvBytes atomic.Int64

	SentMsgs  atomic.Int64
	SentBytes atomic.Int64

	FiltMsgs  atomic.Int64
	FiltBytes atomic.Int64

	ProduceErrors atomic.Int64
	PartitionEOFs atomic.Int64
}

// Snapshot is a point-in-time, non-atomic copy of Counters for reporting.
type Snapshot struct {
	RecvMsgs      int64
	RecvBytes     int64
	SentMsgs      int64
	SentBytes     int64
	FiltMsgs      int64
	FiltBytes     int64
	ProduceErrors int64
	PartitionEOFs int64
}

// Snapshot reads every counter atomically and returns the aggregate.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		RecvMsgs:      c.RecvMsgs.Load(),
		RecvBytes:     c.RecvBytes.Load(),
		SentMsgs:      c.SentMsgs.Load(),
		SentBytes:     c.SentBytes.Load(),
		FiltMsgs:      c.FiltMsgs.Load(),
		FiltBytes:     c.FiltBytes.Load(),
		ProduceErrors: c.ProduceErrors.Load(),
		PartitionEOFs: c.PartitionEOFs.Load(),
	}
}

func (c *Counters) recordReceived(size int) {
	c.RecvMsgs.Add(1)
	c.RecvBytes.Add(int64(size))
}

func (c *Counters) recordSent(size int) {
	c.SentMsgs.Add(1)
	c.SentBytes.Add(int64(size))
}

func (c *Counters) recordFiltered(size int) {
	c.FiltMsgs.Add(1)
	c.FiltBytes.Add(int64(size))
}

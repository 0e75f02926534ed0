package stream

import "sync/atomic"

// Counters holds byte totals. Reads never block senders or receivers and are
// consistent with the last completed operation.
type Counters struct {
	pending  atomic.Int64
	sent     atomic.Int64
	received atomic.Int64
}

// BytesPending returns the bytes queued or in flight but not yet written.
func (c *Counters) BytesPending() int64 { return c.pending.Load() }

// BytesSent returns the bytes written to the socket.
func (c *Counters) BytesSent() int64 { return c.sent.Load() }

// BytesReceived returns the bytes read from the socket.
func (c *Counters) BytesReceived() int64 { return c.received.Load() }

func (c *Counters) reset() {
	c.pending.Store(0)
	c.sent.Store(0)
	c.received.Store(0)
}

package service

import (
	"sync"

	"github.com/eapache/queue"
)

// strandBatch is the number of items a strand runs before yielding its worker.
const strandBatch = 64

// Strand serializes the work posted to it on top of a Service: items run one
// at a time in post order, never concurrently with each other, on whichever
// worker picks the strand up. Every connection and timer owns one.
type Strand struct {
	svc *Service

	mu      sync.Mutex
	items   *queue.Queue
	running bool
}

// Service returns the Service the strand runs on.
func (st *Strand) Service() *Service {
	return st.svc
}

// Post enqueues fn on the strand.
//
// Parameters:
//   - fn: The work item
//
// Returns:
//   - false if the Service is stopped and fn was dropped
func (st *Strand) Post(fn func()) bool {
	st.mu.Lock()
	st.items.Add(fn)
	if st.running {
		st.mu.Unlock()
		return true
	}

	st.running = true
	st.mu.Unlock()

	if st.svc.Post(st.run) {
		return true
	}

	st.mu.Lock()
	st.items = queue.New()
	st.running = false
	st.mu.Unlock()
	return false
}

func (st *Strand) run() {
	n := 0
	for {
		st.mu.Lock()
		if st.items.Length() == 0 {
			st.running = false
			st.mu.Unlock()
			return
		}

		if n == strandBatch {
			st.mu.Unlock()
			if st.svc.Post(st.run) {
				return
			}

			// The service is draining; finish inline.
			n = 0
			continue
		}

		fn := st.items.Remove().(func())
		st.mu.Unlock()

		st.svc.run(fn)
		n++
	}
}

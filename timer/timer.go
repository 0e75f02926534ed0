// Package timer schedules a single callback at an absolute time or after a
// delay, delivered on a Service worker. A canceled wait still invokes the
// callback, flagged as canceled, so the owner can always release what the
// timer guards.
package timer

import (
	"sync"
	"time"

	"github.com/cyberinferno/go-netengine/service"
)

// Func is the timer callback. canceled is true when the wait was canceled
// explicitly, by re-arming, or by the Service stopping.
type Func func(canceled bool)

// Timer is a re-armable one-shot timer. Each successful WaitAsync produces
// exactly one callback. It is safe for concurrent use.
type Timer struct {
	svc    *service.Service
	strand *service.Strand
	fn     Func

	mu      sync.Mutex
	expires time.Time
	armed   bool
	gen     uint64
	timer   *time.Timer
}

// New creates an unarmed timer expiring now.
//
// Parameters:
//   - svc: The Service delivering callbacks
//   - fn: The callback; nil is allowed
//
// Returns:
//   - A new *Timer
func New(svc *service.Service, fn Func) *Timer {
	if fn == nil {
		fn = func(bool) {}
	}

	return &Timer{svc: svc, strand: svc.NewStrand(), fn: fn, expires: time.Now()}
}

// NewAt creates an unarmed timer expiring at t.
func NewAt(svc *service.Service, t time.Time, fn Func) *Timer {
	tm := New(svc, fn)
	tm.expires = t
	return tm
}

// NewAfter creates an unarmed timer expiring d from now.
func NewAfter(svc *service.Service, d time.Duration, fn Func) *Timer {
	return NewAt(svc, time.Now().Add(d), fn)
}

// Expires returns the configured expiry time.
func (t *Timer) Expires() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expires
}

// IsArmed reports whether an asynchronous wait is pending.
func (t *Timer) IsArmed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

// Setup sets a new absolute expiry. A pending wait is canceled and its
// callback runs with canceled=true; call WaitAsync again to arm the new time.
//
// Parameters:
//   - at: The new expiry time
func (t *Timer) Setup(at time.Time) {
	t.mu.Lock()
	canceled := t.disarm()
	t.expires = at
	t.mu.Unlock()

	if canceled {
		t.complete(true)
	}
}

// SetupAfter sets the expiry to d from now. See Setup.
func (t *Timer) SetupAfter(d time.Duration) {
	t.Setup(time.Now().Add(d))
}

// WaitAsync arms the timer. The callback runs once on the timer's strand,
// with canceled=false at expiry or canceled=true if the wait is canceled.
//
// Returns:
//   - false if the timer is already armed or the Service is not started
func (t *Timer) WaitAsync() bool {
	if !t.svc.IsStarted() {
		return false
	}

	t.mu.Lock()
	if t.armed {
		t.mu.Unlock()
		return false
	}

	t.armed = true
	t.gen++
	gen := t.gen
	t.svc.Track(t)
	t.timer = time.AfterFunc(time.Until(t.expires), func() { t.fire(gen) })
	t.mu.Unlock()

	return true
}

// WaitSync blocks the caller until the expiry time, then runs the callback on
// the calling goroutine with canceled=false.
//
// Returns:
//   - Always true
func (t *Timer) WaitSync() bool {
	if d := time.Until(t.Expires()); d > 0 {
		time.Sleep(d)
	}

	t.fn(false)
	return true
}

// Cancel cancels a pending wait; its callback runs with canceled=true.
//
// Returns:
//   - false if no wait was pending
func (t *Timer) Cancel() bool {
	t.mu.Lock()
	canceled := t.disarm()
	t.mu.Unlock()

	if canceled {
		t.complete(true)
	}

	return canceled
}

// disarm must be called with t.mu held.
func (t *Timer) disarm() bool {
	if !t.armed {
		return false
	}

	t.armed = false
	t.gen++
	t.timer.Stop()
	return true
}

func (t *Timer) fire(gen uint64) {
	t.mu.Lock()
	if !t.armed || gen != t.gen {
		t.mu.Unlock()
		return
	}

	t.armed = false
	t.mu.Unlock()

	t.complete(false)
}

func (t *Timer) complete(canceled bool) {
	t.svc.Untrack(t)
	t.strand.Post(func() { t.fn(canceled) })
}

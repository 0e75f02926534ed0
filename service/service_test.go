package service

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	NopHandler
	started  atomic.Int32
	stopped  atomic.Int32
	inits    atomic.Int32
	cleanups atomic.Int32
	errs     chan error
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{errs: make(chan error, 8)}
}

func (h *recordingHandler) OnStarted()             { h.started.Add(1) }
func (h *recordingHandler) OnStopped()             { h.stopped.Add(1) }
func (h *recordingHandler) OnThreadInitialize(int) { h.inits.Add(1) }
func (h *recordingHandler) OnThreadCleanup(int)    { h.cleanups.Add(1) }
func (h *recordingHandler) OnError(err error)      { h.errs <- err }

type fakeCanceler struct {
	canceled atomic.Int32
}

func (f *fakeCanceler) Cancel() bool {
	f.canceled.Add(1)
	return true
}

func TestNew(t *testing.T) {
	t.Run("defaults threads to GOMAXPROCS", func(t *testing.T) {
		svc := New(Config{})
		assert.Equal(t, DefaultConfig().Threads, svc.Threads())
		assert.False(t, svc.IsStarted())
	})

	t.Run("honours explicit threads", func(t *testing.T) {
		assert.Equal(t, 3, New(Config{Threads: 3}).Threads())
	})
}

func TestService_StartStop(t *testing.T) {
	h := newRecordingHandler()
	svc := New(Config{Threads: 4, Handler: h})

	t.Run("start", func(t *testing.T) {
		require.True(t, svc.Start())
		assert.True(t, svc.IsStarted())
		assert.Equal(t, int32(1), h.started.Load())
	})

	t.Run("second start fails", func(t *testing.T) {
		assert.False(t, svc.Start())
		assert.Equal(t, int32(1), h.started.Load())
	})

	t.Run("stop joins workers", func(t *testing.T) {
		require.True(t, svc.Stop())
		assert.False(t, svc.IsStarted())
		assert.Equal(t, int32(1), h.stopped.Load())
		assert.Equal(t, int32(4), h.inits.Load())
		assert.Equal(t, int32(4), h.cleanups.Load())
	})

	t.Run("second stop fails", func(t *testing.T) {
		assert.False(t, svc.Stop())
		assert.Equal(t, int32(1), h.stopped.Load())
	})

	t.Run("restart requires started service", func(t *testing.T) {
		assert.False(t, svc.Restart())
		require.True(t, svc.Start())
		assert.True(t, svc.Restart())
		assert.True(t, svc.IsStarted())
		require.True(t, svc.Stop())
	})
}

func TestService_Post(t *testing.T) {
	svc := New(Config{Threads: 2})

	t.Run("rejected when stopped", func(t *testing.T) {
		assert.False(t, svc.Post(func() {}))
	})

	t.Run("runs posted work", func(t *testing.T) {
		require.True(t, svc.Start())
		defer svc.Stop()

		var wg sync.WaitGroup
		var n atomic.Int32
		for range 100 {
			wg.Add(1)
			require.True(t, svc.Post(func() {
				defer wg.Done()
				n.Add(1)
			}))
		}
		wg.Wait()
		assert.Equal(t, int32(100), n.Load())
	})
}

func TestService_StopDrainsQueuedWork(t *testing.T) {
	svc := New(Config{Threads: 1})
	require.True(t, svc.Start())

	gate := make(chan struct{})
	var n atomic.Int32
	require.True(t, svc.Post(func() { <-gate }))
	for range 10 {
		require.True(t, svc.Post(func() { n.Add(1) }))
	}

	done := make(chan struct{})
	go func() {
		svc.Stop()
		close(done)
	}()

	close(gate)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stop did not return")
	}

	assert.Equal(t, int32(10), n.Load())
}

func TestService_RecoversPanics(t *testing.T) {
	h := newRecordingHandler()
	svc := New(Config{Threads: 1, Handler: h})
	require.True(t, svc.Start())
	defer svc.Stop()

	require.True(t, svc.Post(func() { panic("boom") }))

	select {
	case err := <-h.errs:
		assert.Contains(t, err.Error(), "boom")
	case <-time.After(5 * time.Second):
		t.Fatal("panic was not reported")
	}

	ran := make(chan struct{})
	require.True(t, svc.Post(func() { close(ran) }))
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not survive panic")
	}
}

func TestService_StopCancelsTrackedTimers(t *testing.T) {
	svc := New(Config{Threads: 1})
	require.True(t, svc.Start())

	a, b, c := &fakeCanceler{}, &fakeCanceler{}, &fakeCanceler{}
	svc.Track(a)
	svc.Track(b)
	svc.Track(c)
	svc.Untrack(c)

	require.True(t, svc.Stop())
	assert.Equal(t, int32(1), a.canceled.Load())
	assert.Equal(t, int32(1), b.canceled.Load())
	assert.Equal(t, int32(0), c.canceled.Load())
}

func TestService_Ready(t *testing.T) {
	svc := New(Config{Threads: 1})

	stopped := svc.Ready()
	select {
	case <-stopped:
		t.Fatal("ready before start")
	default:
	}

	require.True(t, svc.Start())
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("start did not signal ready")
	}

	require.True(t, svc.Stop())
	again := svc.Ready()
	select {
	case <-again:
		t.Fatal("ready after stop")
	default:
	}

	require.True(t, svc.Start())
	<-again
	require.True(t, svc.Stop())
}

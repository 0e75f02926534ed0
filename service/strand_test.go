package service

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrand_SerializesInOrder(t *testing.T) {
	svc := New(Config{Threads: 8})
	require.True(t, svc.Start())
	defer svc.Stop()

	st := svc.NewStrand()
	assert.Same(t, svc, st.Service())

	const n = 1000
	var (
		active  atomic.Int32
		overlap atomic.Bool
		mu      sync.Mutex
		order   []int
		wg      sync.WaitGroup
	)

	wg.Add(n)
	for i := range n {
		require.True(t, st.Post(func() {
			defer wg.Done()
			if active.Add(1) > 1 {
				overlap.Store(true)
			}

			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			active.Add(-1)
		}))
	}
	wg.Wait()

	assert.False(t, overlap.Load(), "strand items ran concurrently")
	require.Len(t, order, n)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestStrand_IndependentStrandsRunConcurrently(t *testing.T) {
	svc := New(Config{Threads: 2})
	require.True(t, svc.Start())
	defer svc.Stop()

	a, b := svc.NewStrand(), svc.NewStrand()
	release := make(chan struct{})
	bRan := make(chan struct{})

	require.True(t, a.Post(func() { <-release }))
	require.True(t, b.Post(func() { close(bRan) }))

	select {
	case <-bRan:
	case <-time.After(5 * time.Second):
		t.Fatal("second strand blocked by first")
	}
	close(release)
}

func TestStrand_PostOnStoppedService(t *testing.T) {
	svc := New(Config{Threads: 1})
	st := svc.NewStrand()
	assert.False(t, st.Post(func() {}))

	require.True(t, svc.Start())
	defer svc.Stop()

	ran := make(chan struct{})
	require.True(t, st.Post(func() { close(ran) }))
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("strand did not recover after service start")
	}
}

package safemap

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSafeMap(t *testing.T) {
	m := NewSafeMap[string, int]()
	require.NotNil(t, m)
	assert.Equal(t, 0, m.Len())
	_, ok := m.Load("x")
	assert.False(t, ok)
}

func TestSafeMap_Store_Load(t *testing.T) {
	m := NewSafeMap[string, int]()

	t.Run("store and load returns value", func(t *testing.T) {
		m.Store("a", 1)
		v, ok := m.Load("a")
		assert.True(t, ok)
		assert.Equal(t, 1, v)
		assert.Equal(t, 1, m.Len())
	})

	t.Run("overwrite keeps count", func(t *testing.T) {
		m.Store("a", 2)
		v, ok := m.Load("a")
		assert.True(t, ok)
		assert.Equal(t, 2, v)
		assert.Equal(t, 1, m.Len())
	})

	t.Run("load missing key returns zero value and false", func(t *testing.T) {
		v, ok := m.Load("nonexistent")
		assert.False(t, ok)
		assert.Equal(t, 0, v)
	})
}

func TestSafeMap_LoadOrStore(t *testing.T) {
	m := NewSafeMap[string, int]()

	v, loaded := m.LoadOrStore("k", 1)
	assert.False(t, loaded)
	assert.Equal(t, 1, v)

	v, loaded = m.LoadOrStore("k", 2)
	assert.True(t, loaded)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, m.Len())
}

func TestSafeMap_Delete(t *testing.T) {
	m := NewSafeMap[string, int]()
	m.Store("a", 1)
	m.Store("b", 2)

	t.Run("delete removes key", func(t *testing.T) {
		m.Delete("a")
		_, ok := m.Load("a")
		assert.False(t, ok)
		_, ok = m.Load("b")
		assert.True(t, ok)
		assert.Equal(t, 1, m.Len())
	})

	t.Run("delete missing key is no-op", func(t *testing.T) {
		m.Delete("nonexistent")
		assert.Equal(t, 1, m.Len())
	})

	t.Run("load and delete reports removal once", func(t *testing.T) {
		v, ok := m.LoadAndDelete("b")
		assert.True(t, ok)
		assert.Equal(t, 2, v)

		_, ok = m.LoadAndDelete("b")
		assert.False(t, ok)
		assert.Equal(t, 0, m.Len())
	})
}

func TestSafeMap_RangeAndValues(t *testing.T) {
	m := NewSafeMap[string, int]()
	m.Store("a", 1)
	m.Store("b", 2)
	m.Store("c", 3)

	t.Run("iterates all entries", func(t *testing.T) {
		seen := make(map[string]int)
		m.Range(func(k string, v int) bool {
			seen[k] = v
			return true
		})
		assert.Equal(t, map[string]int{"a": 1, "b": 2, "c": 3}, seen)
	})

	t.Run("stops when f returns false", func(t *testing.T) {
		count := 0
		m.Range(func(k string, v int) bool {
			count++
			return count < 2
		})
		assert.Equal(t, 2, count)
	})

	t.Run("values snapshot", func(t *testing.T) {
		assert.ElementsMatch(t, []int{1, 2, 3}, m.Values())
	})
}

func TestSafeMap_ConcurrentLoadAndDelete(t *testing.T) {
	m := NewSafeMap[int, int]()
	for i := range 100 {
		m.Store(i, i)
	}

	var removed atomic.Int64
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				if _, ok := m.LoadAndDelete(i); ok {
					removed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100), removed.Load())
	assert.Equal(t, 0, m.Len())
}

func TestSafeMap_Concurrent(t *testing.T) {
	m := NewSafeMap[int, int]()
	const goroutines = 50
	const opsPerGoroutine = 200

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := range goroutines {
		go func(id int) {
			defer wg.Done()
			for i := range opsPerGoroutine {
				key := id*opsPerGoroutine + i
				m.Store(key, key*2)
				m.Load(key)
			}
		}(g)
	}
	wg.Wait()
	assert.Equal(t, goroutines*opsPerGoroutine, m.Len())

	wg.Add(goroutines)
	for g := range goroutines {
		go func(id int) {
			defer wg.Done()
			for i := range opsPerGoroutine {
				m.Delete(id*opsPerGoroutine + i)
			}
		}(g)
	}
	wg.Wait()
	assert.Equal(t, 0, m.Len())
}

// Package perfmonitor measures elapsed wall time and transfer throughput for
// the benchmark commands.
package perfmonitor

import (
	"sync"
	"sync/atomic"
	"time"
)

// PerformanceMonitor records a start and end instant plus running byte and
// message totals. Start, Stop and Reset are safe for concurrent use with the
// Add* methods.
type PerformanceMonitor struct {
	now func() time.Time

	mu        sync.Mutex
	startTime time.Time
	endTime   time.Time

	bytes    atomic.Int64
	messages atomic.Int64
	errors   atomic.Int64
}

// NewPerformanceMonitor creates a monitor with no recorded interval.
func NewPerformanceMonitor() *PerformanceMonitor {
	return &PerformanceMonitor{now: time.Now}
}

// Start records the current time as the beginning of the interval. Calling it
// again overwrites the previous start time.
func (pm *PerformanceMonitor) Start() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.startTime = pm.now()
}

// Stop records the current time as the end of the interval. It does nothing if
// Start has not been called since the last Reset.
func (pm *PerformanceMonitor) Stop() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.startTime.IsZero() {
		return
	}

	pm.endTime = pm.now()
}

// Reset clears the interval and the counters.
func (pm *PerformanceMonitor) Reset() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.startTime = time.Time{}
	pm.endTime = time.Time{}
	pm.bytes.Store(0)
	pm.messages.Store(0)
	pm.errors.Store(0)
}

// ElapsedMilliseconds returns the length of the recorded interval.
//
// Returns:
//   - Milliseconds between Start and Stop, or 0 if either is missing
func (pm *PerformanceMonitor) ElapsedMilliseconds() float64 {
	return float64(pm.Elapsed()) / float64(time.Millisecond)
}

// Elapsed returns the recorded interval as a duration, or 0 if either end is
// missing.
func (pm *PerformanceMonitor) Elapsed() time.Duration {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.startTime.IsZero() || pm.endTime.IsZero() {
		return 0
	}

	return pm.endTime.Sub(pm.startTime)
}

// AddBytes adds n transferred bytes to the running total.
func (pm *PerformanceMonitor) AddBytes(n int64) {
	pm.bytes.Add(n)
}

// AddMessages adds n completed messages to the running total.
func (pm *PerformanceMonitor) AddMessages(n int64) {
	pm.messages.Add(n)
}

// AddErrors adds n errors to the running total.
func (pm *PerformanceMonitor) AddErrors(n int64) {
	pm.errors.Add(n)
}

// Bytes returns the total recorded bytes.
func (pm *PerformanceMonitor) Bytes() int64 { return pm.bytes.Load() }

// Messages returns the total recorded messages.
func (pm *PerformanceMonitor) Messages() int64 { return pm.messages.Load() }

// Errors returns the total recorded errors.
func (pm *PerformanceMonitor) Errors() int64 { return pm.errors.Load() }

// Throughput returns bytes and messages per second over the recorded interval.
//
// Returns:
//   - Bytes per second, or 0 if no interval is recorded
//   - Messages per second, or 0 if no interval is recorded
func (pm *PerformanceMonitor) Throughput() (bytesPerSecond, messagesPerSecond float64) {
	elapsed := pm.Elapsed().Seconds()
	if elapsed <= 0 {
		return 0, 0
	}

	return float64(pm.bytes.Load()) / elapsed, float64(pm.messages.Load()) / elapsed
}

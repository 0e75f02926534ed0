// Package service provides the worker pool that drives every asynchronous
// operation of the engine. A Service owns a fixed number of worker goroutines
// draining one shared FIFO work queue; clients, servers, sessions, timers and
// resolvers post their completions to it, usually through a Strand so that the
// callbacks of one connection never run concurrently.
package service

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/eapache/queue"

	"github.com/cyberinferno/go-netengine/logger"
	"github.com/cyberinferno/go-netengine/safeset"
)

// Handler receives Service lifecycle notifications. Embed NopHandler to
// implement only the methods you need.
type Handler interface {
	// OnStarted is called after the workers have been launched.
	OnStarted()

	// OnStopped is called after every worker has exited.
	OnStopped()

	// OnThreadInitialize is called on each worker goroutine before it starts
	// draining the queue.
	//
	// Parameters:
	//   - worker: Zero-based worker index
	OnThreadInitialize(worker int)

	// OnThreadCleanup is called on each worker goroutine just before it exits.
	//
	// Parameters:
	//   - worker: Zero-based worker index
	OnThreadCleanup(worker int)

	// OnError is called with panics recovered from work items.
	//
	// Parameters:
	//   - err: The recovered panic wrapped as an error
	OnError(err error)
}

// NopHandler implements Handler with empty methods.
type NopHandler struct{}

func (NopHandler) OnStarted()             {}
func (NopHandler) OnStopped()             {}
func (NopHandler) OnThreadInitialize(int) {}
func (NopHandler) OnThreadCleanup(int)    {}
func (NopHandler) OnError(error)          {}

// Canceler is implemented by armed operations (timers) that must be canceled
// when the Service stops.
type Canceler interface {
	Cancel() bool
}

// Config holds configuration for a Service.
type Config struct {
	// Threads is the number of worker goroutines. Zero means GOMAXPROCS.
	Threads int
	// Handler receives lifecycle notifications. Nil means NopHandler.
	Handler Handler
	// Logger receives lifecycle and recovered-panic entries. Nil disables logging.
	Logger logger.Logger
}

// DefaultConfig returns a Config with one worker per available CPU.
//
// Returns:
//   - A Config with Threads set to runtime.GOMAXPROCS(0)
func DefaultConfig() Config {
	return Config{Threads: runtime.GOMAXPROCS(0)}
}

// Service is a pool of worker goroutines draining a shared work queue. It is
// safe for concurrent use. A Service must outlive every component built on it.
type Service struct {
	threads int
	handler Handler
	log     logger.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	work     *queue.Queue
	started  bool
	stopping bool
	ready    chan struct{}
	workers  sync.WaitGroup

	timers *safeset.SafeSet[Canceler]
}

// New creates a stopped Service. Call Start before posting work.
//
// Parameters:
//   - cfg: Worker count, handler and logger
//
// Returns:
//   - A new *Service
func New(cfg Config) *Service {
	if cfg.Threads <= 0 {
		cfg.Threads = runtime.GOMAXPROCS(0)
	}

	if cfg.Handler == nil {
		cfg.Handler = NopHandler{}
	}

	s := &Service{
		threads: cfg.Threads,
		handler: cfg.Handler,
		log:     logger.OrNop(cfg.Logger).With(logger.Field{Key: "component", Value: "service"}),
		work:    queue.New(),
		ready:   make(chan struct{}),
		timers:  safeset.NewSafeSet[Canceler](),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Threads returns the number of worker goroutines.
func (s *Service) Threads() int {
	return s.threads
}

// IsStarted reports whether the Service accepts work.
func (s *Service) IsStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Ready returns a channel that is closed while the Service accepts work. A
// channel obtained while the Service is stopped is closed by the next Start.
func (s *Service) Ready() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Start launches the worker goroutines and fires OnStarted.
//
// Returns:
//   - false if the Service is already started or is stopping
func (s *Service) Start() bool {
	s.mu.Lock()
	if s.started || s.stopping {
		s.mu.Unlock()
		return false
	}

	s.started = true
	close(s.ready)
	s.mu.Unlock()

	s.workers.Add(s.threads)
	for i := range s.threads {
		go s.worker(i)
	}

	s.log.Info("service started", logger.Field{Key: "threads", Value: s.threads})
	s.handler.OnStarted()
	return true
}

// Stop cancels every armed timer, lets the workers drain the work already
// queued (including the canceled timer callbacks), waits for them to exit and
// fires OnStopped. It must not be called from a work item.
//
// Returns:
//   - false if the Service is not started
func (s *Service) Stop() bool {
	s.mu.Lock()
	if !s.started || s.stopping {
		s.mu.Unlock()
		return false
	}

	s.stopping = true
	s.mu.Unlock()

	for _, t := range s.timers.Drain() {
		t.Cancel()
	}

	s.mu.Lock()
	s.started = false
	s.ready = make(chan struct{})
	s.cond.Broadcast()
	s.mu.Unlock()

	s.workers.Wait()

	s.mu.Lock()
	s.stopping = false
	s.mu.Unlock()

	s.log.Info("service stopped")
	s.handler.OnStopped()
	return true
}

// Restart stops and starts the Service.
//
// Returns:
//   - false if the Service was not started or could not be started again
func (s *Service) Restart() bool {
	if !s.Stop() {
		return false
	}

	return s.Start()
}

// Post enqueues fn to run on a worker goroutine. Work items run in FIFO order
// but concurrently across workers; use a Strand to serialize related items.
//
// Parameters:
//   - fn: The work item
//
// Returns:
//   - false if the Service is not started and fn was dropped
func (s *Service) Post(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return false
	}

	s.work.Add(fn)
	s.cond.Signal()
	return true
}

// Track registers an armed operation to be canceled on Stop.
func (s *Service) Track(c Canceler) {
	s.timers.Add(c)
}

// Untrack removes an operation registered with Track.
func (s *Service) Untrack(c Canceler) {
	s.timers.Remove(c)
}

// NewStrand creates a Strand bound to this Service.
func (s *Service) NewStrand() *Strand {
	return &Strand{svc: s, items: queue.New()}
}

func (s *Service) worker(id int) {
	defer s.workers.Done()

	s.handler.OnThreadInitialize(id)
	defer s.handler.OnThreadCleanup(id)

	for {
		s.mu.Lock()
		for s.work.Length() == 0 && s.started {
			s.cond.Wait()
		}

		if s.work.Length() == 0 {
			s.mu.Unlock()
			return
		}

		fn := s.work.Remove().(func())
		s.mu.Unlock()

		s.run(fn)
	}
}

// run executes fn, converting a panic into an OnError notification.
func (s *Service) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("service: recovered panic in work item: %v", r)
			s.log.Error("work item panicked", logger.Field{Key: "error", Value: err})
			s.handler.OnError(err)
		}
	}()

	fn()
}

// Package tcpserver provides an asynchronous TCP server. It accepts
// connections into Sessions built through a pluggable factory, keeps a
// registry of live sessions addressable by identifier, and multicasts data to
// all of them.
package tcpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cyberinferno/go-netengine/endpoint"
	"github.com/cyberinferno/go-netengine/idgenerator"
	"github.com/cyberinferno/go-netengine/logger"
	"github.com/cyberinferno/go-netengine/safemap"
	"github.com/cyberinferno/go-netengine/service"
	"github.com/cyberinferno/go-netengine/socket"
	"github.com/cyberinferno/go-netengine/stream"
)

var ids = idgenerator.NewIdGenerator()

const maxAcceptBackoff = time.Second

// Config holds configuration for a Server.
type Config struct {
	// Name labels log entries.
	Name string
	// Endpoint is the listening address; see endpoint.Any for wildcards.
	Endpoint endpoint.Endpoint
	// Handler receives server events; nil means NopHandler.
	Handler Handler
	// NewSession creates the handler of each accepted session; nil gives
	// every session a NopSessionHandler.
	NewSession NewSessionFunc
	// Socket holds the listener reuse options and the defaults applied to
	// every accepted session.
	Socket socket.Options
	// Logger receives lifecycle and I/O entries; nil disables logging.
	Logger logger.Logger
}

// DefaultConfig returns a Config listening on every interface at port.
func DefaultConfig(name string, port int) Config {
	return Config{
		Name:     name,
		Endpoint: endpoint.Any(port, endpoint.ProtocolAny),
		Socket:   socket.Options{ReuseAddress: true},
	}
}

// Server is a TCP server. It is safe for concurrent use. The embedded
// Counters aggregate the byte counts of every session.
type Server struct {
	stream.Counters

	id         uuid.UUID
	name       string
	svc        *service.Service
	strand     *service.Strand
	handler    Handler
	newSession NewSessionFunc
	log        logger.Logger
	sessions   *safemap.SafeMap[uuid.UUID, *Session]

	mu         sync.Mutex
	endpoint   endpoint.Endpoint
	opts       socket.Options
	listener   net.Listener
	started    bool
	acceptDone chan struct{}
}

// New creates a stopped Server.
//
// Parameters:
//   - svc: The Service delivering events; must outlive the server
//   - cfg: Endpoint, handlers, options and logger
//
// Returns:
//   - A new *Server
func New(svc *service.Service, cfg Config) *Server {
	if cfg.Handler == nil {
		cfg.Handler = NopHandler{}
	}

	if cfg.NewSession == nil {
		cfg.NewSession = defaultNewSession
	}

	if cfg.Name == "" {
		cfg.Name = "tcp"
	}

	id := ids.Id()
	return &Server{
		id:         id,
		name:       cfg.Name,
		svc:        svc,
		strand:     svc.NewStrand(),
		handler:    cfg.Handler,
		newSession: cfg.NewSession,
		sessions:   safemap.NewSafeMap[uuid.UUID, *Session](),
		endpoint:   cfg.Endpoint,
		opts:       cfg.Socket,
		log: logger.OrNop(cfg.Logger).With(
			logger.Field{Key: "component", Value: "tcpserver"},
			logger.Field{Key: "server", Value: cfg.Name},
		),
	}
}

// ID returns the server identifier.
func (s *Server) ID() uuid.UUID { return s.id }

// Name returns the configured name.
func (s *Server) Name() string { return s.name }

// Service returns the Service the server runs on.
func (s *Server) Service() *service.Service { return s.svc }

// Endpoint returns the listening endpoint. While started it reflects the
// bound address, so a configured port 0 reads back as the chosen port.
func (s *Server) Endpoint() endpoint.Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint
}

// IsStarted reports whether the server is listening.
func (s *Server) IsStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Start binds the listening socket, starts accepting and delivers OnStarted.
//
// Returns:
//   - false if the server is already started or the bind failed (reported
//     through OnError)
func (s *Server) Start() bool {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		s.log.Warn(fmt.Sprintf("%s server already running", s.name))
		return false
	}

	lc := socket.ListenConfig(s.opts)
	ln, err := lc.Listen(context.Background(), s.endpoint.Network(), s.endpoint.String())
	if err != nil {
		s.mu.Unlock()
		s.log.Error(fmt.Sprintf("%s server failed to start", s.name), logger.Field{Key: "error", Value: err})
		s.reportError(err)
		return false
	}

	s.listener = ln
	s.endpoint = endpoint.FromNetAddr(ln.Addr())
	s.started = true
	s.acceptDone = make(chan struct{})
	done := s.acceptDone
	s.mu.Unlock()

	s.log.Info(fmt.Sprintf("%s server started", s.name), logger.Field{Key: "addr", Value: ln.Addr().String()})
	go s.acceptLoop(ln, done)

	s.strand.Post(func() { s.handler.OnStarted(s) })
	return true
}

// Stop closes the listener, waits for the accept loop to exit, disconnects
// every session and delivers OnStopped.
//
// Returns:
//   - false if the server is not started
func (s *Server) Stop() bool {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return false
	}

	s.started = false
	ln, done := s.listener, s.acceptDone
	s.listener = nil
	s.mu.Unlock()

	_ = ln.Close()
	<-done

	s.disconnectAll()

	s.log.Info(fmt.Sprintf("%s server stopped", s.name))
	s.strand.Post(func() { s.handler.OnStopped(s) })
	return true
}

// Restart stops and starts the server on the same endpoint.
//
// Returns:
//   - false if the server was not started or could not start again
func (s *Server) Restart() bool {
	if !s.Stop() {
		return false
	}

	return s.Start()
}

// DisconnectAll disconnects every registered session.
//
// Returns:
//   - false if the server is not started
func (s *Server) DisconnectAll() bool {
	if !s.IsStarted() {
		return false
	}

	s.disconnectAll()
	return true
}

func (s *Server) disconnectAll() {
	for _, session := range s.sessions.Values() {
		session.Disconnect()
	}
}

// FindSession looks a live session up by identifier.
//
// Parameters:
//   - id: The session identifier
//
// Returns:
//   - The session and true, or nil and false if it is not connected
func (s *Server) FindSession(id uuid.UUID) (*Session, bool) {
	return s.sessions.Load(id)
}

// ConnectedSessions returns the number of registered sessions.
func (s *Server) ConnectedSessions() int {
	return s.sessions.Len()
}

// Sessions returns a snapshot of the registered sessions in no defined order.
func (s *Server) Sessions() []*Session {
	return s.sessions.Values()
}

// Multicast queues b as an asynchronous send to every registered session.
// A session refusing or failing the send does not fail the multicast.
//
// Parameters:
//   - b: The bytes to send
//
// Returns:
//   - false only if the server is not started
func (s *Server) Multicast(b []byte) bool {
	if !s.IsStarted() {
		return false
	}

	s.sessions.Range(func(_ uuid.UUID, session *Session) bool {
		session.SendAsync(b)
		return true
	})

	return true
}

// MulticastText is Multicast for text.
func (s *Server) MulticastText(text string) bool {
	return s.Multicast([]byte(text))
}

func (s *Server) acceptLoop(ln net.Listener, done chan struct{}) {
	defer close(done)

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}

			s.log.Error(fmt.Sprintf("%s server accept error", s.name), logger.Field{Key: "error", Value: err})
			s.reportError(err)

			backoff = min(max(2*backoff, 5*time.Millisecond), maxAcceptBackoff)
			time.Sleep(backoff)
			continue
		}

		backoff = 0
		tcp, ok := conn.(*net.TCPConn)
		if !ok {
			_ = conn.Close()
			continue
		}

		s.accept(tcp)
	}
}

func (s *Server) accept(conn *net.TCPConn) {
	s.mu.Lock()
	opts := s.opts
	s.mu.Unlock()

	session := newSession(s, opts)
	session.handler = s.newSession(session)
	if session.handler == nil {
		session.handler = NopSessionHandler{}
	}

	session.connect(conn)
	s.log.Debug("session connected",
		logger.Field{Key: "session", Value: session.ID().String()},
		logger.Field{Key: "remote", Value: conn.RemoteAddr().String()})
}

func (s *Server) reportError(err error) {
	serr := socket.NewError(err)
	s.strand.Post(func() { s.handler.OnError(s, serr) })
}

package tcpserver

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/cyberinferno/go-netengine/logger"
	"github.com/cyberinferno/go-netengine/service"
	"github.com/cyberinferno/go-netengine/socket"
	"github.com/cyberinferno/go-netengine/stream"
)

// Session is one accepted connection, owned by its Server. The embedded
// stream.Conn provides Send, Receive, ReceiveAsync, the Setup and Option
// methods and the byte counters. Once disconnected a Session is no longer
// discoverable through the Server, and its operations report failure.
type Session struct {
	*stream.Conn

	ctl       *stream.Control
	server    *Server
	strand    *service.Strand
	handler   SessionHandler
	log       logger.Logger
	connected atomic.Bool

	mu       sync.Mutex
	userData any
}

func newSession(srv *Server, opts socket.Options) *Session {
	id := ids.Id()
	s := &Session{
		server: srv,
		strand: srv.svc.NewStrand(),
		log:    srv.log.With(logger.Field{Key: "session", Value: id.String()}),
	}

	s.Conn, s.ctl = stream.New(stream.Config{
		ID:      id,
		Strand:  s.strand,
		Hooks:   sessionHooks{s: s},
		Options: opts,
		Parent:  &srv.Counters,
		Logger:  s.log,
	})

	return s
}

// Server returns the server that accepted the session.
func (s *Session) Server() *Server {
	return s.server
}

// IsConnected reports whether the session is registered and its socket open.
func (s *Session) IsConnected() bool {
	return s.connected.Load()
}

// UserData returns the value stored with SetUserData.
func (s *Session) UserData() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userData
}

// SetUserData attaches an opaque application value to the session.
func (s *Session) SetUserData(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userData = v
}

// SendAsync asks OnSending for permission, then queues b. See
// stream.Conn.SendAsync.
//
// Parameters:
//   - b: The bytes to send
//
// Returns:
//   - false if the session is disconnected, OnSending refused, or the send
//     buffer limit was exceeded
func (s *Session) SendAsync(b []byte) bool {
	if !s.IsConnected() {
		return false
	}

	if !s.handler.OnSending(s, len(b)) {
		return false
	}

	return s.Conn.SendAsync(b)
}

// SendTextAsync is SendAsync for text.
func (s *Session) SendTextAsync(text string) bool {
	return s.SendAsync([]byte(text))
}

// Disconnect removes the session from the registry, closes its socket and
// delivers OnDisconnected to the session handler and then to the server
// handler.
//
// Returns:
//   - false if the session is already disconnected
func (s *Session) Disconnect() bool {
	if !s.connected.CompareAndSwap(true, false) {
		return false
	}

	if _, ok := s.server.sessions.LoadAndDelete(s.ID()); !ok {
		s.log.Warn("disconnected session was not registered")
	}

	s.ctl.Detach()

	s.log.Debug("session disconnected")
	s.strand.Post(func() {
		s.handler.OnDisconnected(s)
		s.server.handler.OnDisconnected(s)
	})

	return true
}

// DisconnectAsync schedules Disconnect on the session's strand.
//
// Returns:
//   - false if the session is already disconnected
func (s *Session) DisconnectAsync() bool {
	if !s.IsConnected() {
		return false
	}

	return s.strand.Post(func() { s.Disconnect() })
}

// connect attaches conn, registers the session and starts receiving.
func (s *Session) connect(conn *net.TCPConn) {
	if err := s.ctl.Attach(conn); err != nil {
		s.log.Warn("failed to apply socket options", logger.Field{Key: "error", Value: err})
	}

	if _, loaded := s.server.sessions.LoadOrStore(s.ID(), s); loaded {
		s.log.Error("session id already registered")
		s.ctl.Detach()
		return
	}

	s.connected.Store(true)

	s.strand.Post(func() {
		s.handler.OnConnected(s)
		s.server.handler.OnConnected(s)
	})

	s.ReceiveAsync()
}

type sessionHooks struct {
	s *Session
}

func (h sessionHooks) OnReceived(data []byte)     { h.s.handler.OnReceived(h.s, data) }
func (h sessionHooks) OnSent(sent, pending int64) { h.s.handler.OnSent(h.s, sent, pending) }
func (h sessionHooks) OnEmpty()                   { h.s.handler.OnEmpty(h.s) }
func (h sessionHooks) OnError(err *socket.Error)  { h.s.handler.OnError(h.s, err) }
func (h sessionHooks) OnDrop()                    { h.s.Disconnect() }

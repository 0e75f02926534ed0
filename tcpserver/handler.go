package tcpserver

import "github.com/cyberinferno/go-netengine/socket"

// Handler receives server-level events. OnStarted, OnStopped and OnError run
// on the server's strand; OnConnected and OnDisconnected run on the session's
// strand, after the session handler's method of the same name.
type Handler interface {
	// OnStarted is called after the server starts listening.
	OnStarted(s *Server)

	// OnStopped is called after the server stops and disconnects its sessions.
	OnStopped(s *Server)

	// OnConnected is called for every accepted session.
	OnConnected(session *Session)

	// OnDisconnected is called for every disconnected session, after it has
	// been removed from the registry.
	OnDisconnected(session *Session)

	// OnError reports listen and accept failures.
	OnError(s *Server, err *socket.Error)
}

// SessionHandler receives the events of one session. All methods except
// OnSending run on the session's strand.
type SessionHandler interface {
	// OnConnected is called once when the session is accepted.
	OnConnected(session *Session)

	// OnDisconnected is called once when the session disconnects.
	OnDisconnected(session *Session)

	// OnReceived delivers received bytes. data is only valid during the call.
	OnReceived(session *Session, data []byte)

	// OnSent reports a completed write and the bytes still pending.
	OnSent(session *Session, sent, pending int64)

	// OnEmpty reports that the asynchronous send queue drained.
	OnEmpty(session *Session)

	// OnError reports socket failures that are not ordinary disconnects.
	OnError(session *Session, err *socket.Error)

	// OnSending is called synchronously on the caller's goroutine before an
	// asynchronous send is queued. Returning false suppresses the send.
	OnSending(session *Session, size int) bool
}

// NewSessionFunc creates the handler of a newly accepted session. It runs on
// the accept goroutine before the session is registered.
type NewSessionFunc func(session *Session) SessionHandler

// NopHandler implements Handler with empty methods.
type NopHandler struct{}

func (NopHandler) OnStarted(*Server)              {}
func (NopHandler) OnStopped(*Server)              {}
func (NopHandler) OnConnected(*Session)           {}
func (NopHandler) OnDisconnected(*Session)        {}
func (NopHandler) OnError(*Server, *socket.Error) {}

// NopSessionHandler implements SessionHandler with empty methods; OnSending
// allows every send.
type NopSessionHandler struct{}

func (NopSessionHandler) OnConnected(*Session)            {}
func (NopSessionHandler) OnDisconnected(*Session)         {}
func (NopSessionHandler) OnReceived(*Session, []byte)     {}
func (NopSessionHandler) OnSent(*Session, int64, int64)   {}
func (NopSessionHandler) OnEmpty(*Session)                {}
func (NopSessionHandler) OnError(*Session, *socket.Error) {}
func (NopSessionHandler) OnSending(*Session, int) bool    { return true }

func defaultNewSession(*Session) SessionHandler {
	return NopSessionHandler{}
}

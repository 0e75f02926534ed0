package tcpserver

import "github.com/cyberinferno/go-netengine/socket"

// Options returns a copy of the server option set.
func (s *Server) Options() socket.Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts
}

func (s *Server) update(fn func(o *socket.Options)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.opts)
}

// SetupKeepAlive sets SO_KEEPALIVE for sessions accepted from now on.
func (s *Server) SetupKeepAlive(enable bool) {
	s.update(func(o *socket.Options) { o.KeepAlive = enable })
}

// SetupNoDelay sets TCP_NODELAY for sessions accepted from now on.
func (s *Server) SetupNoDelay(enable bool) {
	s.update(func(o *socket.Options) { o.NoDelay = enable })
}

// SetupReuseAddress sets SO_REUSEADDR on the listener; it takes effect at
// the next Start.
func (s *Server) SetupReuseAddress(enable bool) {
	s.update(func(o *socket.Options) { o.ReuseAddress = enable })
}

// SetupReusePort sets SO_REUSEPORT on the listener where supported; it takes
// effect at the next Start.
func (s *Server) SetupReusePort(enable bool) {
	s.update(func(o *socket.Options) { o.ReusePort = enable })
}

// SetupReceiveBufferSize sets SO_RCVBUF for new sessions.
func (s *Server) SetupReceiveBufferSize(size int) {
	s.update(func(o *socket.Options) { o.ReceiveBufferSize = size })
}

// SetupSendBufferSize sets SO_SNDBUF for new sessions.
func (s *Server) SetupSendBufferSize(size int) {
	s.update(func(o *socket.Options) { o.SendBufferSize = size })
}

// SetupReceiveBufferLimit sets the receive buffer ceiling of new sessions.
func (s *Server) SetupReceiveBufferLimit(limit int) {
	s.update(func(o *socket.Options) { o.ReceiveBufferLimit = limit })
}

// SetupSendBufferLimit sets the send queue ceiling of new sessions.
func (s *Server) SetupSendBufferLimit(limit int) {
	s.update(func(o *socket.Options) { o.SendBufferLimit = limit })
}

// OptionKeepAlive reports the session SO_KEEPALIVE default.
func (s *Server) OptionKeepAlive() bool { return s.Options().KeepAlive }

// OptionNoDelay reports the session TCP_NODELAY default.
func (s *Server) OptionNoDelay() bool { return s.Options().NoDelay }

// OptionReuseAddress reports the listener SO_REUSEADDR setting.
func (s *Server) OptionReuseAddress() bool { return s.Options().ReuseAddress }

// OptionReusePort reports the listener SO_REUSEPORT setting.
func (s *Server) OptionReusePort() bool { return s.Options().ReusePort }

// OptionReceiveBufferLimit reports the session receive buffer ceiling.
func (s *Server) OptionReceiveBufferLimit() int { return s.Options().ReceiveBufferLimit }

// OptionSendBufferLimit reports the session send queue ceiling.
func (s *Server) OptionSendBufferLimit() int { return s.Options().SendBufferLimit }

// Package socket holds the TCP socket option set shared by clients, servers
// and sessions, the helpers that apply it to live connections and listeners,
// and the error type reported through OnError callbacks.
package socket

import (
	"net"
)

// Default buffer figures used when an Options field is left zero.
const (
	DefaultReceiveBufferSize = 8192
	DefaultSendBufferSize    = 8192
)

// Options is the socket option set of a connection or listener.
//
// Buffer *size* is the kernel socket buffer (SO_RCVBUF/SO_SNDBUF), applied only
// when positive. Buffer *limit* is an engine-side ceiling: exceeding it forces
// a disconnect. A zero limit means unlimited.
type Options struct {
	// KeepAlive enables SO_KEEPALIVE.
	KeepAlive bool
	// NoDelay disables Nagle's algorithm (TCP_NODELAY).
	NoDelay bool
	// ReceiveBufferSize is the SO_RCVBUF size in bytes; zero keeps the OS default.
	ReceiveBufferSize int
	// SendBufferSize is the SO_SNDBUF size in bytes; zero keeps the OS default.
	SendBufferSize int
	// ReceiveBufferLimit caps the engine receive buffer; zero is unlimited.
	ReceiveBufferLimit int
	// SendBufferLimit caps queued unsent bytes; zero is unlimited.
	SendBufferLimit int
	// ReuseAddress sets SO_REUSEADDR on listeners.
	ReuseAddress bool
	// ReusePort sets SO_REUSEPORT on listeners where supported.
	ReusePort bool
}

// DefaultOptions returns the option set used when none is configured:
// Nagle enabled, keep-alive off, OS buffer sizes, unlimited buffers.
func DefaultOptions() Options {
	return Options{}
}

// Apply sets the per-connection options on conn.
//
// Parameters:
//   - conn: The connected socket
//   - o: The options to apply
//
// Returns:
//   - The first error reported by the socket, if any
func Apply(conn *net.TCPConn, o Options) error {
	if err := conn.SetKeepAlive(o.KeepAlive); err != nil {
		return err
	}

	if err := conn.SetNoDelay(o.NoDelay); err != nil {
		return err
	}

	if o.ReceiveBufferSize > 0 {
		if err := conn.SetReadBuffer(o.ReceiveBufferSize); err != nil {
			return err
		}
	}

	if o.SendBufferSize > 0 {
		if err := conn.SetWriteBuffer(o.SendBufferSize); err != nil {
			return err
		}
	}

	return nil
}

// ListenConfig returns a net.ListenConfig whose Control hook applies the
// listener options of o.
func ListenConfig(o Options) net.ListenConfig {
	return net.ListenConfig{Control: listenControl(o.ReuseAddress, o.ReusePort)}
}

// ReceiveBufferSize reads SO_RCVBUF back from conn, falling back to the
// configured size when the platform cannot report it.
func ReceiveBufferSize(conn *net.TCPConn, configured int) int {
	if n, err := getReceiveBuffer(conn); err == nil {
		return n
	}

	return configured
}

// SendBufferSize reads SO_SNDBUF back from conn, falling back to the
// configured size when the platform cannot report it.
func SendBufferSize(conn *net.TCPConn, configured int) int {
	if n, err := getSendBuffer(conn); err == nil {
		return n
	}

	return configured
}

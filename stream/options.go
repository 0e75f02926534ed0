package stream

import (
	"net"

	"github.com/cyberinferno/go-netengine/logger"
	"github.com/cyberinferno/go-netengine/socket"
)

// Options returns a copy of the current option set.
func (c *Conn) Options() socket.Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts
}

// SetupKeepAlive enables or disables SO_KEEPALIVE, immediately when connected
// and otherwise at the next connect.
func (c *Conn) SetupKeepAlive(enable bool) {
	if conn := c.update(func(o *socket.Options) { o.KeepAlive = enable }); conn != nil {
		c.warnOption("keep-alive", conn.SetKeepAlive(enable))
	}
}

// SetupNoDelay enables or disables TCP_NODELAY, immediately when connected and
// otherwise at the next connect.
func (c *Conn) SetupNoDelay(enable bool) {
	if conn := c.update(func(o *socket.Options) { o.NoDelay = enable }); conn != nil {
		c.warnOption("no-delay", conn.SetNoDelay(enable))
	}
}

// SetupReceiveBufferSize sets SO_RCVBUF and the initial size of the receive
// buffer of the next receive loop.
func (c *Conn) SetupReceiveBufferSize(size int) {
	if conn := c.update(func(o *socket.Options) { o.ReceiveBufferSize = size }); conn != nil && size > 0 {
		c.warnOption("receive buffer size", conn.SetReadBuffer(size))
	}
}

// SetupSendBufferSize sets SO_SNDBUF.
func (c *Conn) SetupSendBufferSize(size int) {
	if conn := c.update(func(o *socket.Options) { o.SendBufferSize = size }); conn != nil && size > 0 {
		c.warnOption("send buffer size", conn.SetWriteBuffer(size))
	}
}

// SetupReceiveBufferLimit sets the receive buffer ceiling; zero is unlimited.
func (c *Conn) SetupReceiveBufferLimit(limit int) {
	c.update(func(o *socket.Options) { o.ReceiveBufferLimit = limit })
}

// SetupSendBufferLimit sets the ceiling on queued unsent bytes; zero is
// unlimited.
func (c *Conn) SetupSendBufferLimit(limit int) {
	c.update(func(o *socket.Options) { o.SendBufferLimit = limit })
}

// OptionKeepAlive reports the configured SO_KEEPALIVE setting.
func (c *Conn) OptionKeepAlive() bool { return c.Options().KeepAlive }

// OptionNoDelay reports the configured TCP_NODELAY setting.
func (c *Conn) OptionNoDelay() bool { return c.Options().NoDelay }

// OptionReceiveBufferLimit reports the receive buffer ceiling.
func (c *Conn) OptionReceiveBufferLimit() int { return c.Options().ReceiveBufferLimit }

// OptionSendBufferLimit reports the send queue ceiling.
func (c *Conn) OptionSendBufferLimit() int { return c.Options().SendBufferLimit }

// OptionReceiveBufferSize reports SO_RCVBUF as read back from the socket when
// connected, or the configured size otherwise.
func (c *Conn) OptionReceiveBufferSize() int {
	c.mu.Lock()
	conn, size := c.conn, c.opts.ReceiveBufferSize
	c.mu.Unlock()
	if conn == nil {
		return size
	}

	return socket.ReceiveBufferSize(conn, size)
}

// OptionSendBufferSize reports SO_SNDBUF as read back from the socket when
// connected, or the configured size otherwise.
func (c *Conn) OptionSendBufferSize() int {
	c.mu.Lock()
	conn, size := c.conn, c.opts.SendBufferSize
	c.mu.Unlock()
	if conn == nil {
		return size
	}

	return socket.SendBufferSize(conn, size)
}

// update mutates the option set and returns the attached socket, if any.
func (c *Conn) update(fn func(o *socket.Options)) *net.TCPConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.opts)
	return c.conn
}

func (c *Conn) warnOption(name string, err error) {
	if err != nil {
		c.log.Warn("failed to apply socket option", logger.Field{Key: "option", Value: name}, logger.Field{Key: "error", Value: err})
	}
}

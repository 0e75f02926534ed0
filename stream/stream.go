// Package stream implements the buffered connection core shared by TCP
// clients and server sessions: an ordered asynchronous send queue with a byte
// limit, a continuous receive loop with a growing buffer and a byte limit,
// synchronous send and receive with timeouts, socket options and byte
// counters. Every notification is delivered through Hooks on the
// connection's strand.
package stream

import (
	"net"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/google/uuid"

	"github.com/cyberinferno/go-netengine/endpoint"
	"github.com/cyberinferno/go-netengine/logger"
	"github.com/cyberinferno/go-netengine/service"
	"github.com/cyberinferno/go-netengine/socket"
	"github.com/cyberinferno/go-netengine/utils"
)

// Hooks receives the data events of a Conn. Every method runs on the
// connection's strand, so two hooks of one connection never run concurrently.
type Hooks interface {
	// OnReceived delivers bytes read from the socket. data is only valid for
	// the duration of the call.
	OnReceived(data []byte)

	// OnSent reports a completed write and the bytes still pending.
	OnSent(sent, pending int64)

	// OnEmpty reports that the asynchronous send queue drained.
	OnEmpty()

	// OnError reports a socket failure that is not an ordinary disconnect.
	OnError(err *socket.Error)

	// OnDrop asks the owner to disconnect after a socket failure, a peer
	// close or a buffer limit breach. It is called at most once per attached
	// socket.
	OnDrop()
}

// Config holds the construction parameters of a Conn.
type Config struct {
	// ID identifies the connection for its whole lifetime.
	ID uuid.UUID
	// Strand serializes the hooks.
	Strand *service.Strand
	// Hooks receives data events.
	Hooks Hooks
	// Options is the initial socket option set.
	Options socket.Options
	// Parent, when set, also accumulates this connection's byte counts.
	Parent *Counters
	// Logger receives I/O diagnostics; nil disables logging.
	Logger logger.Logger
}

// Conn is one TCP connection's I/O state. Exported methods are safe for
// concurrent use, except that synchronous Receive must not be mixed with an
// armed ReceiveAsync loop.
type Conn struct {
	Counters

	id     uuid.UUID
	strand *service.Strand
	hooks  Hooks
	parent *Counters
	log    logger.Logger

	mu        sync.Mutex
	conn      *net.TCPConn
	gen       uint64
	opts      socket.Options
	sendQueue *queue.Queue
	queued    int64
	flushing  bool
	receiving bool
	dropping  bool
	detached  chan struct{}

	writeMu sync.Mutex
}

// Control exposes the attach and detach operations to the owner of a Conn.
type Control struct {
	c *Conn
}

// New creates a detached Conn and the Control its owner uses to attach
// sockets.
//
// Parameters:
//   - cfg: Identity, strand, hooks, options and logger
//
// Returns:
//   - The Conn
//   - Its Control
func New(cfg Config) (*Conn, *Control) {
	c := &Conn{
		id:        cfg.ID,
		strand:    cfg.Strand,
		hooks:     cfg.Hooks,
		parent:    cfg.Parent,
		opts:      cfg.Options,
		sendQueue: queue.New(),
		log:       logger.OrNop(cfg.Logger).With(logger.Field{Key: "id", Value: cfg.ID.String()}),
	}

	return c, &Control{c: c}
}

// Attach makes conn the active socket: it applies the option set, resets the
// connection counters and starts a new generation. A previously attached
// socket is closed.
//
// Parameters:
//   - conn: The connected socket
//
// Returns:
//   - An error if the socket options could not be applied; conn is still attached
func (ctl *Control) Attach(conn *net.TCPConn) error {
	c := ctl.c
	ctl.Detach()

	c.mu.Lock()
	c.conn = conn
	c.gen++
	c.sendQueue = queue.New()
	c.queued = 0
	c.flushing = false
	c.receiving = false
	c.dropping = false
	c.detached = make(chan struct{})
	opts := c.opts
	c.mu.Unlock()

	c.Counters.reset()
	return socket.Apply(conn, opts)
}

// Detach closes the active socket, discards unsent data and invalidates every
// in-flight completion.
//
// Returns:
//   - false if no socket was attached
func (ctl *Control) Detach() bool {
	c := ctl.c

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return false
	}

	c.conn = nil
	c.gen++
	c.sendQueue = queue.New()
	c.queued = 0
	c.flushing = false
	c.receiving = false
	close(c.detached)
	c.mu.Unlock()

	p := c.pending.Swap(0)
	if c.parent != nil {
		c.parent.pending.Add(-p)
	}

	_ = conn.Close()
	return true
}

// ID returns the connection identifier.
func (c *Conn) ID() uuid.UUID {
	return c.id
}

// IsConnected reports whether a socket is attached.
func (c *Conn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// LocalEndpoint returns the local address of the attached socket, or the
// zero Endpoint when detached.
func (c *Conn) LocalEndpoint() endpoint.Endpoint {
	conn, _ := c.current()
	if conn == nil {
		return endpoint.Endpoint{}
	}

	return endpoint.FromNetAddr(conn.LocalAddr())
}

// RemoteEndpoint returns the peer address of the attached socket, or the
// zero Endpoint when detached.
func (c *Conn) RemoteEndpoint() endpoint.Endpoint {
	conn, _ := c.current()
	if conn == nil {
		return endpoint.Endpoint{}
	}

	return endpoint.FromNetAddr(conn.RemoteAddr())
}

func (c *Conn) current() (*net.TCPConn, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn, c.gen
}

// post runs fn on the strand if gen is still the active generation when fn
// executes. Completions of a detached socket are discarded.
func (c *Conn) post(gen uint64, fn func()) {
	c.strand.Post(func() {
		c.mu.Lock()
		live := c.gen == gen
		c.mu.Unlock()
		if live {
			fn()
		}
	})
}

// drop asks the owner to disconnect gen, once.
func (c *Conn) drop(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.conn == nil || c.dropping {
		c.mu.Unlock()
		return
	}

	c.dropping = true
	c.mu.Unlock()

	c.hooks.OnDrop()
}

func (c *Conn) fail(gen uint64, err error) {
	if !socket.IsDisconnect(err) {
		serr := socket.NewError(err)
		c.log.Error("socket error", logger.Field{Key: "error", Value: err})
		c.strand.Post(func() { c.hooks.OnError(serr) })
	}

	c.drop(gen)
}

func (c *Conn) addSent(n int64) {
	c.sent.Add(n)
	if c.parent != nil {
		c.parent.sent.Add(n)
	}
}

func (c *Conn) addReceived(n int64) {
	c.received.Add(n)
	if c.parent != nil {
		c.parent.received.Add(n)
	}
}

func (c *Conn) addPending(n int64) {
	c.pending.Add(n)
	if c.parent != nil {
		c.parent.pending.Add(n)
	}
}

// SendAsync queues b for asynchronous transmission. Data is written in queue
// order; each write is reported through OnSent and a drained queue through
// OnEmpty. Exceeding the send buffer limit drops the connection.
//
// Parameters:
//   - b: The bytes to send; copied before return
//
// Returns:
//   - false if no socket is attached or the limit was exceeded
func (c *Conn) SendAsync(b []byte) bool {
	if len(b) == 0 {
		return c.IsConnected()
	}

	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return false
	}

	gen := c.gen
	if limit := int64(c.opts.SendBufferLimit); limit > 0 && c.queued+int64(len(b)) > limit {
		queued := c.queued
		c.mu.Unlock()
		c.log.Warn("send buffer limit exceeded",
			logger.Field{Key: "queued", Value: queued},
			logger.Field{Key: "size", Value: len(b)},
			logger.Field{Key: "limit", Value: limit})
		c.drop(gen)
		return false
	}

	c.sendQueue.Add(append([]byte(nil), b...))
	c.queued += int64(len(b))
	c.addPending(int64(len(b)))

	start := !c.flushing
	c.flushing = true
	conn := c.conn
	c.mu.Unlock()

	if start {
		go c.flush(conn, gen)
	}

	return true
}

// SendTextAsync queues s for asynchronous transmission. See SendAsync.
func (c *Conn) SendTextAsync(s string) bool {
	return c.SendAsync([]byte(s))
}

// flush writes queued chunks, coalescing everything queued at each round,
// until the queue is empty or gen is detached.
func (c *Conn) flush(conn *net.TCPConn, gen uint64) {
	for {
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}

		if c.sendQueue.Length() == 0 {
			c.flushing = false
			c.mu.Unlock()
			c.post(gen, c.hooks.OnEmpty)
			return
		}

		chunks := make([][]byte, 0, c.sendQueue.Length())
		for c.sendQueue.Length() > 0 {
			chunks = append(chunks, c.sendQueue.Remove().([]byte))
		}

		data := utils.JoinBytes(chunks...)
		c.queued -= int64(len(data))
		c.mu.Unlock()

		c.writeMu.Lock()
		n, err := conn.Write(data)
		c.writeMu.Unlock()

		c.mu.Lock()
		live := c.gen == gen
		c.mu.Unlock()
		if !live {
			return
		}

		if n > 0 {
			c.addSent(int64(n))
			c.addPending(-int64(n))
			sent, pending := int64(n), c.pending.Load()
			c.post(gen, func() { c.hooks.OnSent(sent, pending) })
		}

		if err != nil {
			c.fail(gen, err)
			return
		}
	}
}

// Send writes b synchronously, blocking until every byte is accepted by the
// socket. See SendWithTimeout.
func (c *Conn) Send(b []byte) int {
	return c.SendWithTimeout(b, 0)
}

// SendWithTimeout writes b synchronously, giving up after d. A timeout is not
// an error: the bytes written so far are reported and the connection stays
// up. Other failures drop the connection.
//
// Parameters:
//   - b: The bytes to send
//   - d: Maximum time to block; zero waits indefinitely
//
// Returns:
//   - The number of bytes written
func (c *Conn) SendWithTimeout(b []byte, d time.Duration) int {
	conn, gen := c.current()
	if conn == nil || len(b) == 0 {
		return 0
	}

	c.writeMu.Lock()
	n, err := deadlined(conn.SetWriteDeadline, d, func() (int, error) { return conn.Write(b) })
	c.writeMu.Unlock()

	if n > 0 {
		c.addSent(int64(n))
		sent, pending := int64(n), c.pending.Load()
		c.post(gen, func() { c.hooks.OnSent(sent, pending) })
	}

	if err != nil && !socket.IsTimeout(err) {
		c.fail(gen, err)
	}

	return n
}

// SendText writes s synchronously. See Send.
func (c *Conn) SendText(s string) int {
	return c.Send([]byte(s))
}

// SendTextWithTimeout writes s synchronously. See SendWithTimeout.
func (c *Conn) SendTextWithTimeout(s string, d time.Duration) int {
	return c.SendWithTimeout([]byte(s), d)
}

// Receive reads into b synchronously, blocking until at least one byte
// arrives. See ReceiveWithTimeout.
func (c *Conn) Receive(b []byte) int {
	return c.ReceiveWithTimeout(b, 0)
}

// ReceiveWithTimeout reads into b synchronously, giving up after d. The read
// bytes are also delivered through OnReceived. A timeout returns 0 and keeps
// the connection up; other failures drop it.
//
// Parameters:
//   - b: Destination buffer
//   - d: Maximum time to block; zero waits indefinitely
//
// Returns:
//   - The number of bytes read
func (c *Conn) ReceiveWithTimeout(b []byte, d time.Duration) int {
	conn, gen := c.current()
	if conn == nil || len(b) == 0 {
		return 0
	}

	n, err := deadlined(conn.SetReadDeadline, d, func() (int, error) { return conn.Read(b) })
	if n > 0 {
		c.addReceived(int64(n))
		data := append([]byte(nil), b[:n]...)
		c.post(gen, func() { c.hooks.OnReceived(data) })
	}

	if err != nil && !socket.IsTimeout(err) {
		c.fail(gen, err)
	}

	return n
}

// ReceiveText reads up to n bytes synchronously and returns them as text.
func (c *Conn) ReceiveText(n int) string {
	return c.ReceiveTextWithTimeout(n, 0)
}

// ReceiveTextWithTimeout reads up to n bytes synchronously, giving up after d.
func (c *Conn) ReceiveTextWithTimeout(n int, d time.Duration) string {
	buf := make([]byte, n)
	got := c.ReceiveWithTimeout(buf, d)
	return string(buf[:got])
}

// ReceiveAsync arms continuous asynchronous receiving: every read is
// delivered through OnReceived and the next read is armed while the socket
// stays attached. Arming an already receiving connection is a no-op.
//
// Returns:
//   - false if no socket is attached
func (c *Conn) ReceiveAsync() bool {
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return false
	}

	if c.receiving {
		c.mu.Unlock()
		return true
	}

	c.receiving = true
	conn, gen, detached := c.conn, c.gen, c.detached
	size := c.opts.ReceiveBufferSize
	limit := c.opts.ReceiveBufferLimit
	c.mu.Unlock()

	if size <= 0 {
		size = socket.DefaultReceiveBufferSize
	}

	go c.receive(conn, gen, detached, make([]byte, capReceive(size, limit)))
	return true
}

// capReceive bounds a receive buffer to one byte past the limit, so a full
// read tells that more than limit bytes were pending.
func capReceive(size, limit int) int {
	if limit > 0 && size > limit+1 {
		return limit + 1
	}

	return size
}

// receive is the read loop of one generation. Each completion is handed to
// the strand and the loop waits for it before reading again, so buf is never
// shared. While the Service is stopped the completion is held and handed over
// once it runs again.
func (c *Conn) receive(conn *net.TCPConn, gen uint64, detached <-chan struct{}, buf []byte) {
	for {
		n, err := conn.Read(buf)

		next, more := buf, false
		for {
			done := make(chan struct{})
			posted := c.strand.Post(func() {
				defer close(done)
				next, more = c.completeRead(gen, buf, n, err)
			})
			if posted {
				<-done
				break
			}

			select {
			case <-c.strand.Service().Ready():
			case <-detached:
				return
			}
		}

		if !more {
			return
		}

		buf = next
	}
}

func (c *Conn) completeRead(gen uint64, buf []byte, n int, err error) ([]byte, bool) {
	c.mu.Lock()
	live := c.gen == gen && c.receiving
	limit := c.opts.ReceiveBufferLimit
	c.mu.Unlock()
	if !live {
		return nil, false
	}

	if n > 0 {
		c.addReceived(int64(n))
		if limit > 0 && n > limit {
			c.log.Warn("receive buffer limit exceeded",
				logger.Field{Key: "size", Value: n},
				logger.Field{Key: "limit", Value: limit})
			c.stopReceiving(gen)
			c.drop(gen)
			return nil, false
		}

		c.hooks.OnReceived(buf[:n])
	}

	if err != nil {
		c.stopReceiving(gen)
		c.fail(gen, err)
		return nil, false
	}

	if n < len(buf) {
		return buf, c.stillReceiving(gen)
	}

	return make([]byte, capReceive(2*len(buf), limit)), c.stillReceiving(gen)
}

func (c *Conn) stillReceiving(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen && c.conn != nil && c.receiving
}

func (c *Conn) stopReceiving(gen uint64) {
	c.mu.Lock()
	if c.gen == gen {
		c.receiving = false
	}
	c.mu.Unlock()
}

func deadlined(set func(time.Time) error, d time.Duration, op func() (int, error)) (int, error) {
	if d > 0 {
		if err := set(time.Now().Add(d)); err != nil {
			return 0, err
		}

		defer func() { _ = set(time.Time{}) }()
	}

	return op()
}

// Package tcpclient provides an asynchronous TCP client: a connection state
// machine with synchronous and asynchronous connect, disconnect and
// reconnect, buffered sends with backpressure, and continuous receiving.
// Events are delivered to a Handler on the client's strand.
package tcpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/cyberinferno/go-netengine/endpoint"
	"github.com/cyberinferno/go-netengine/idgenerator"
	"github.com/cyberinferno/go-netengine/logger"
	"github.com/cyberinferno/go-netengine/resolver"
	"github.com/cyberinferno/go-netengine/service"
	"github.com/cyberinferno/go-netengine/socket"
	"github.com/cyberinferno/go-netengine/stream"
)

var ids = idgenerator.NewIdGenerator()

var (
	errNoEndpoint = errors.New("tcpclient: no endpoint to connect to")
	errNotTCP     = errors.New("tcpclient: dialed connection is not TCP")
)

// Config holds configuration for a Client.
type Config struct {
	// Address is the host name or IP literal to connect to. Host names need a
	// resolver (ConnectWithResolver, ConnectAsyncWithResolver).
	Address string
	// Port is the remote port.
	Port int
	// ConnectTimeout bounds each connect attempt; zero means the OS default.
	ConnectTimeout time.Duration
	// Socket is the option set applied at every connect.
	Socket socket.Options
	// Handler receives events; nil means NopHandler.
	Handler Handler
	// Logger receives lifecycle and I/O entries; nil disables logging.
	Logger logger.Logger
	// UserData is an opaque application handle returned by UserData.
	UserData any
}

// DefaultConfig returns a Config with default values for the given target.
//
// Parameters:
//   - address: Host name or IP literal
//   - port: Remote port
//
// Returns:
//   - A Config with ConnectTimeout 10s and default socket options
func DefaultConfig(address string, port int) Config {
	return Config{
		Address:        address,
		Port:           port,
		ConnectTimeout: 10 * time.Second,
		Socket:         socket.DefaultOptions(),
	}
}

// Client is one outbound TCP connection. It is safe for concurrent use.
// The embedded stream.Conn provides Send, SendAsync, Receive, ReceiveAsync,
// the Setup and Option methods and the byte counters.
type Client struct {
	*stream.Conn

	ctl      *stream.Control
	svc      *service.Service
	strand   *service.Strand
	handler  Handler
	log      logger.Logger
	address  string
	port     int
	timeout  time.Duration
	userData any

	mu       sync.Mutex
	state    ConnectionState
	endpoint endpoint.Endpoint
}

// New creates a disconnected Client for cfg.Address and cfg.Port. When the
// address is an IP literal it becomes the client's endpoint immediately.
//
// Parameters:
//   - svc: The Service delivering events; must outlive the client
//   - cfg: Target, options, handler and logger
//
// Returns:
//   - A new *Client
func New(svc *service.Service, cfg Config) *Client {
	ep, err := endpoint.New(cfg.Address, cfg.Port)
	if err != nil {
		ep = endpoint.Endpoint{}
	}

	return newClient(svc, cfg, ep)
}

// NewWithEndpoint creates a disconnected Client targeting ep. cfg.Address and
// cfg.Port are replaced by the endpoint's.
func NewWithEndpoint(svc *service.Service, ep endpoint.Endpoint, cfg Config) *Client {
	cfg.Address = ep.Address()
	cfg.Port = ep.Port()
	return newClient(svc, cfg, ep)
}

func newClient(svc *service.Service, cfg Config, ep endpoint.Endpoint) *Client {
	if cfg.Handler == nil {
		cfg.Handler = NopHandler{}
	}

	id := ids.Id()
	c := &Client{
		svc:      svc,
		strand:   svc.NewStrand(),
		handler:  cfg.Handler,
		address:  cfg.Address,
		port:     cfg.Port,
		timeout:  cfg.ConnectTimeout,
		userData: cfg.UserData,
		endpoint: ep,
		log: logger.OrNop(cfg.Logger).With(
			logger.Field{Key: "component", Value: "tcpclient"},
			logger.Field{Key: "id", Value: id.String()},
		),
	}

	c.Conn, c.ctl = stream.New(stream.Config{
		ID:      id,
		Strand:  c.strand,
		Hooks:   hooks{c: c},
		Options: cfg.Socket,
		Logger:  c.log,
	})

	return c
}

// Service returns the Service the client runs on.
func (c *Client) Service() *service.Service { return c.svc }

// Address returns the configured host name or address.
func (c *Client) Address() string { return c.address }

// Port returns the configured port.
func (c *Client) Port() int { return c.port }

// UserData returns the opaque handle supplied in Config.
func (c *Client) UserData() any { return c.userData }

// Endpoint returns the last endpoint used or configured, or the zero
// Endpoint if none is known yet.
func (c *Client) Endpoint() endpoint.Endpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoint
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the client is in the Connected state.
func (c *Client) IsConnected() bool {
	return c.State() == Connected
}

// Connect connects synchronously to the client's endpoint. On success
// OnConnected is delivered, but no receive loop is armed: call ReceiveAsync
// or use Receive.
//
// Returns:
//   - false if the client is not disconnected, has no endpoint, or the
//     connect failed (reported through OnError)
func (c *Client) Connect() bool {
	if !c.begin() {
		return false
	}

	return c.connectEndpoint(c.Endpoint())
}

// ConnectWithResolver resolves the configured address, then connects
// synchronously to the first candidate that accepts. See Connect.
//
// Parameters:
//   - r: The resolver to use
//
// Returns:
//   - false if resolution or every connect attempt failed
func (c *Client) ConnectWithResolver(r *resolver.Resolver) bool {
	if !c.begin() {
		return false
	}

	return c.connectResolved(r)
}

// ConnectAsync connects in the background. On success OnConnected is
// delivered and continuous receiving is armed; failures are reported through
// OnError.
//
// Returns:
//   - false if the client is not disconnected or the Service is not started
func (c *Client) ConnectAsync() bool {
	if !c.begin() {
		return false
	}

	ep := c.Endpoint()
	return c.schedule(func() bool { return c.connectEndpoint(ep) })
}

// ConnectAsyncWithResolver resolves and connects in the background. See
// ConnectAsync.
func (c *Client) ConnectAsyncWithResolver(r *resolver.Resolver) bool {
	if !c.begin() {
		return false
	}

	return c.schedule(func() bool { return c.connectResolved(r) })
}

// schedule posts connect to the client strand, which hands the blocking dial
// to an I/O goroutine so no worker waits on the network. A stopped Service
// rejects the connect and the client returns to Disconnected.
func (c *Client) schedule(connect func() bool) bool {
	posted := c.strand.Post(func() {
		go func() {
			if connect() {
				c.ReceiveAsync()
			}
		}()
	})
	if !posted {
		c.mu.Lock()
		c.state = Disconnected
		c.mu.Unlock()
	}

	return posted
}

// Disconnect closes the connection, discarding unsent data and canceling
// pending operations, and delivers OnDisconnected.
//
// Returns:
//   - false if the client is not connected
func (c *Client) Disconnect() bool {
	c.mu.Lock()
	if c.state != Connected {
		c.mu.Unlock()
		return false
	}

	c.state = Disconnecting
	c.mu.Unlock()

	c.ctl.Detach()

	c.mu.Lock()
	c.state = Disconnected
	c.mu.Unlock()

	c.log.Info("disconnected")
	c.strand.Post(func() { c.handler.OnDisconnected(c) })
	return true
}

// DisconnectAsync schedules Disconnect on the client's strand.
//
// Returns:
//   - false if the client is not connected
func (c *Client) DisconnectAsync() bool {
	if !c.IsConnected() {
		return false
	}

	return c.strand.Post(func() { c.Disconnect() })
}

// Reconnect disconnects if connected, then connects synchronously to the last
// used endpoint.
//
// Returns:
//   - false if no endpoint was ever known or the connect failed
func (c *Client) Reconnect() bool {
	if c.Endpoint().IsZero() {
		return false
	}

	c.Disconnect()
	return c.Connect()
}

// ReconnectAsync disconnects if connected, then connects asynchronously to
// the last used endpoint.
//
// Returns:
//   - false if no endpoint was ever known or the Service is not started
func (c *Client) ReconnectAsync() bool {
	if c.Endpoint().IsZero() {
		return false
	}

	return c.strand.Post(func() {
		c.Disconnect()
		c.ConnectAsync()
	})
}

// begin moves Disconnected to Connecting.
func (c *Client) begin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Disconnected {
		return false
	}

	c.state = Connecting
	return true
}

func (c *Client) connectEndpoint(ep endpoint.Endpoint) bool {
	if ep.IsZero() {
		c.failed(fmt.Errorf("%w: %q is not an address", errNoEndpoint, c.address))
		return false
	}

	conn, err := c.dial(ep)
	if err != nil {
		c.failed(err)
		return false
	}

	c.established(conn, ep)
	return true
}

func (c *Client) connectResolved(r *resolver.Resolver) bool {
	ctx := context.Background()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	port := strconv.Itoa(c.port)
	res, err := r.Resolve(ctx, c.address, port)
	if err != nil {
		c.failed(err)
		return false
	}

	lastErr := error(errNoEndpoint)
	for ep := range res.All() {
		conn, err := c.dial(ep)
		if err != nil {
			c.log.Debug("candidate failed", logger.Field{Key: "endpoint", Value: ep.String()}, logger.Field{Key: "error", Value: err})
			lastErr = err
			continue
		}

		c.established(conn, ep)
		return true
	}

	r.Invalidate(c.address, port)
	c.failed(lastErr)
	return false
}

func (c *Client) dial(ep endpoint.Endpoint) (*net.TCPConn, error) {
	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.Dial(ep.Network(), ep.String())
	if err != nil {
		return nil, err
	}

	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		_ = conn.Close()
		return nil, errNotTCP
	}

	return tcp, nil
}

func (c *Client) established(conn *net.TCPConn, ep endpoint.Endpoint) {
	if err := c.ctl.Attach(conn); err != nil {
		c.log.Warn("failed to apply socket options", logger.Field{Key: "error", Value: err})
	}

	c.mu.Lock()
	c.state = Connected
	c.endpoint = ep
	c.mu.Unlock()

	c.log.Info("connected", logger.Field{Key: "endpoint", Value: ep.String()})
	c.strand.Post(func() { c.handler.OnConnected(c) })
}

func (c *Client) failed(err error) {
	c.mu.Lock()
	c.state = Disconnected
	c.mu.Unlock()

	c.log.Error("connect failed", logger.Field{Key: "address", Value: c.address}, logger.Field{Key: "error", Value: err})
	serr := socket.NewError(err)
	c.strand.Post(func() { c.handler.OnError(c, serr) })
}

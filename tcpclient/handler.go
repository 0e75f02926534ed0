package tcpclient

import "github.com/cyberinferno/go-netengine/socket"

// Handler receives the lifecycle and data events of a Client. All methods
// run on the client's strand: never concurrently for one client, possibly
// concurrently across clients sharing a Service. Embed NopHandler to override
// only what you need.
type Handler interface {
	// OnConnected is called once per successful connect.
	OnConnected(c *Client)

	// OnDisconnected is called once per completed connect/disconnect cycle.
	OnDisconnected(c *Client)

	// OnReceived delivers received bytes. data is only valid during the call.
	OnReceived(c *Client, data []byte)

	// OnSent reports a completed write and the bytes still pending.
	OnSent(c *Client, sent, pending int64)

	// OnEmpty reports that the asynchronous send queue drained.
	OnEmpty(c *Client)

	// OnError reports connect and socket failures.
	OnError(c *Client, err *socket.Error)
}

// NopHandler implements Handler with empty methods.
type NopHandler struct{}

func (NopHandler) OnConnected(*Client)            {}
func (NopHandler) OnDisconnected(*Client)         {}
func (NopHandler) OnReceived(*Client, []byte)     {}
func (NopHandler) OnSent(*Client, int64, int64)   {}
func (NopHandler) OnEmpty(*Client)                {}
func (NopHandler) OnError(*Client, *socket.Error) {}

// hooks adapts a Client's Handler to the stream hooks.
type hooks struct {
	c *Client
}

func (h hooks) OnReceived(data []byte)     { h.c.handler.OnReceived(h.c, data) }
func (h hooks) OnSent(sent, pending int64) { h.c.handler.OnSent(h.c, sent, pending) }
func (h hooks) OnEmpty()                   { h.c.handler.OnEmpty(h.c) }
func (h hooks) OnError(err *socket.Error)  { h.c.handler.OnError(h.c, err) }
func (h hooks) OnDrop()                    { h.c.Disconnect() }

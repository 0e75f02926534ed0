package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/scott-cotton/cli"
	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/go-netengine/perfmonitor"
	"github.com/cyberinferno/go-netengine/socket"
	"github.com/cyberinferno/go-netengine/tcpclient"
	"github.com/cyberinferno/go-netengine/utils"
)

type echoClientConfig struct {
	*cli.Command

	ConfigPath string `cli:"name=config desc='configuration file'"`
	LogLevel   string `cli:"name=log desc='log level'"`
	Threads    int    `cli:"name=threads aliases=t desc='service worker threads'"`
	Address    string `cli:"name=address aliases=a desc='server address or host name'"`
	Port       int    `cli:"name=port aliases=p desc='server port'"`
	Clients    int    `cli:"name=clients aliases=c desc='number of concurrent clients'"`
	Messages   int    `cli:"name=messages aliases=m desc='total messages to send'"`
	Size       int    `cli:"name=size aliases=s desc='message size in bytes'"`
}

func echoClientCommand() *cli.Command {
	cfg := &echoClientConfig{Clients: 100, Messages: 100000, Size: 32}
	opts, _ := cli.StructOpts(cfg)
	return cli.NewCommandAt(&cfg.Command, "echo-client").
		WithSynopsis("echo-client [-address host] [-port n] [-clients n] [-messages n] [-size n]").
		WithDescription("measure round-trip throughput against an echo server").
		WithOpts(opts...).
		WithRun(cfg.run)
}

// echoClient sends its share of messages one at a time and disconnects once
// every echo has come back. Its counters are only touched on the client's
// strand.
type echoClient struct {
	tcpclient.NopHandler

	e       *env
	pm      *perfmonitor.PerformanceMonitor
	message []byte

	toSend    int
	toReceive int
	sent      int64
	received  int64

	done     chan struct{}
	doneOnce sync.Once
}

func (h *echoClient) OnConnected(c *tcpclient.Client) {
	if h.toReceive == 0 {
		c.DisconnectAsync()
		return
	}

	h.send(c)
}

func (h *echoClient) OnSent(c *tcpclient.Client, sent, _ int64) {
	h.sent += sent
	for h.sent >= int64(len(h.message)) {
		h.send(c)
		h.sent -= int64(len(h.message))
	}
}

func (h *echoClient) OnReceived(c *tcpclient.Client, data []byte) {
	h.pm.AddBytes(int64(len(data)))
	h.received += int64(len(data))
	for h.received >= int64(len(h.message)) {
		h.pm.AddMessages(1)
		h.received -= int64(len(h.message))
		if h.toReceive--; h.toReceive == 0 {
			c.DisconnectAsync()
		}
	}
}

func (h *echoClient) OnDisconnected(*tcpclient.Client) {
	h.finish()
}

func (h *echoClient) OnError(c *tcpclient.Client, err *socket.Error) {
	h.pm.AddErrors(1)
	h.e.reportError("Client", err)
	if c.State() == tcpclient.Disconnected {
		h.finish()
	}
}

func (h *echoClient) send(c *tcpclient.Client) {
	if h.toSend > 0 {
		h.toSend--
		c.SendAsync(h.message)
	}
}

func (h *echoClient) finish() {
	h.doneOnce.Do(func() { close(h.done) })
}

func (cfg *echoClientConfig) run(cc *cli.Context, args []string) error {
	if _, err := cfg.Parse(cc, args); err != nil {
		return err
	}

	e, err := newEnv("echo-client", cc.Out, commonOpts{ConfigPath: cfg.ConfigPath, LogLevel: cfg.LogLevel, Threads: cfg.Threads})
	if err != nil {
		return err
	}

	address, port := e.cfg.Client.Address, e.cfg.Client.Port
	if cfg.Address != "" {
		address = cfg.Address
	}
	if cfg.Port > 0 {
		port = cfg.Port
	}

	clients := max(cfg.Clients, 1)
	size := max(cfg.Size, 1)

	e.println("Server address:", address)
	e.println("Server port:", port)
	e.println("Working threads:", e.svc.Threads())
	e.println("Working clients:", clients)
	e.println("Messages to send:", cfg.Messages)
	e.println("Message size:", size)
	e.println()

	if err := e.startService(); err != nil {
		return err
	}

	message := utils.RepeatToLength([]byte("netengine"), size)
	pm := perfmonitor.NewPerformanceMonitor()
	r := e.resolver()

	handlers := make([]*echoClient, clients)
	conns := make([]*tcpclient.Client, clients)
	for i := range clients {
		share := cfg.Messages / clients
		handlers[i] = &echoClient{e: e, pm: pm, message: message, toSend: share, toReceive: share, done: make(chan struct{})}

		ccfg := tcpclient.DefaultConfig(address, port)
		ccfg.ConnectTimeout = e.cfg.Client.ConnectTimeout
		ccfg.Socket = e.cfg.Client.Socket.Options()
		ccfg.Handler = handlers[i]
		ccfg.Logger = e.log
		conns[i] = tcpclient.New(e.svc, ccfg)
	}

	pm.Start()

	e.printf("Clients connecting...")
	for _, c := range conns {
		c.ConnectAsyncWithResolver(r)
	}
	e.println(color.GreenString("Done!"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e.printf("Processing...")
	g, ctx := errgroup.WithContext(ctx)
	for _, h := range handlers {
		g.Go(func() error {
			select {
			case <-h.done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}

	waitErr := g.Wait()
	pm.Stop()
	if waitErr != nil {
		e.println(color.YellowString("Interrupted"))
		for _, c := range conns {
			c.Disconnect()
		}
	} else {
		e.println(color.GreenString("Done!"))
	}

	e.stopService()
	e.println()
	printReport(e, pm, size)
	return nil
}

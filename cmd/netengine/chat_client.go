package main

import (
	"bufio"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/scott-cotton/cli"

	"github.com/cyberinferno/go-netengine/socket"
	"github.com/cyberinferno/go-netengine/tcpclient"
	"github.com/cyberinferno/go-netengine/timer"
)

type chatClientConfig struct {
	*cli.Command

	ConfigPath string `cli:"name=config desc='configuration file'"`
	LogLevel   string `cli:"name=log desc='log level'"`
	Threads    int    `cli:"name=threads aliases=t desc='service worker threads'"`
	Address    string `cli:"name=address aliases=a desc='server address or host name'"`
	Port       int    `cli:"name=port aliases=p desc='server port'"`
}

func chatClientCommand() *cli.Command {
	cfg := &chatClientConfig{}
	opts, _ := cli.StructOpts(cfg)
	return cli.NewCommandAt(&cfg.Command, "chat-client").
		WithSynopsis("chat-client [-address host] [-port n]").
		WithDescription("send stdin lines to a chat server and print what it multicasts; '!' reconnects").
		WithOpts(opts...).
		WithRun(cfg.run)
}

// chatClient reconnects one second after every disconnect until stopped.
type chatClient struct {
	tcpclient.NopHandler

	e        *env
	retry    *timer.Timer
	stopping atomic.Bool
}

func (h *chatClient) OnConnected(c *tcpclient.Client) {
	h.e.println(color.GreenString("Chat TCP client connected a new session with Id %s", c.ID()))
}

func (h *chatClient) OnDisconnected(c *tcpclient.Client) {
	h.e.println(color.YellowString("Chat TCP client disconnected a session with Id %s", c.ID()))
	h.reconnectLater()
}

func (h *chatClient) OnReceived(_ *tcpclient.Client, data []byte) {
	h.e.println(color.CyanString(string(data)))
}

func (h *chatClient) OnError(c *tcpclient.Client, err *socket.Error) {
	h.e.reportError("Chat TCP client", err)
	if c.State() == tcpclient.Disconnected {
		h.reconnectLater()
	}
}

func (h *chatClient) reconnectLater() {
	if h.stopping.Load() {
		return
	}

	h.retry.SetupAfter(time.Second)
	h.retry.WaitAsync()
}

func (cfg *chatClientConfig) run(cc *cli.Context, args []string) error {
	if _, err := cfg.Parse(cc, args); err != nil {
		return err
	}

	e, err := newEnv("chat-client", cc.Out, commonOpts{ConfigPath: cfg.ConfigPath, LogLevel: cfg.LogLevel, Threads: cfg.Threads})
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

	e.println("Server address:", address)
	e.println("Server port:", port)
	e.println()

	if err := e.startService(); err != nil {
		return err
	}
	defer e.stopService()

	r := e.resolver()
	h := &chatClient{e: e}

	ccfg := tcpclient.DefaultConfig(address, port)
	ccfg.ConnectTimeout = e.cfg.Client.ConnectTimeout
	ccfg.Socket = e.cfg.Client.Socket.Options()
	ccfg.Handler = h
	ccfg.Logger = e.log
	client := tcpclient.New(e.svc, ccfg)

	h.retry = timer.New(e.svc, func(canceled bool) {
		if !canceled {
			client.ConnectAsyncWithResolver(r)
		}
	})

	e.printf("Client connecting...")
	client.ConnectAsyncWithResolver(r)
	e.println(color.GreenString("Done!"))

	e.println("Press Enter to stop the client or '!' to reconnect the client...")
	scanner := bufio.NewScanner(cc.In)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			break
		}

		if line == "!" {
			e.printf("Client disconnecting...")
			client.DisconnectAsync()
			e.println(color.GreenString("Done!"))
			continue
		}

		client.SendTextAsync(line)
	}

	e.printf("Client disconnecting...")
	h.stopping.Store(true)
	h.retry.Cancel()
	client.Disconnect()
	e.println(color.GreenString("Done!"))
	return nil
}

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/scott-cotton/cli"

	"github.com/cyberinferno/go-netengine/config"
	"github.com/cyberinferno/go-netengine/logger"
	"github.com/cyberinferno/go-netengine/socket"
	"github.com/cyberinferno/go-netengine/tcpserver"
)

type echoServerConfig struct {
	*cli.Command

	ConfigPath string `cli:"name=config desc='configuration file'"`
	LogLevel   string `cli:"name=log desc='log level'"`
	Threads    int    `cli:"name=threads aliases=t desc='service worker threads'"`
	Port       int    `cli:"name=port aliases=p desc='listening port'"`
}

func echoServerCommand() *cli.Command {
	cfg := &echoServerConfig{}
	opts, _ := cli.StructOpts(cfg)
	return cli.NewCommandAt(&cfg.Command, "echo-server").
		WithSynopsis("echo-server [-port n] [-threads n] [-config file]").
		WithDescription("echo every received chunk back to its session").
		WithOpts(opts...).
		WithRun(cfg.run)
}

type echoSession struct {
	tcpserver.NopSessionHandler
}

func (echoSession) OnReceived(s *tcpserver.Session, data []byte) {
	s.SendAsync(data)
}

// serverEvents prints server errors.
type serverEvents struct {
	tcpserver.NopHandler
	e    *env
	name string
}

func (h serverEvents) OnError(_ *tcpserver.Server, err *socket.Error) {
	h.e.reportError(h.name+" server", err)
}

func (cfg *echoServerConfig) run(cc *cli.Context, args []string) error {
	if _, err := cfg.Parse(cc, args); err != nil {
		return err
	}

	e, err := newEnv("echo-server", cc.Out, commonOpts{ConfigPath: cfg.ConfigPath, LogLevel: cfg.LogLevel, Threads: cfg.Threads})
	if err != nil {
		return err
	}

	srv, err := newServer(e, "Echo", cfg.Port, func(*tcpserver.Session) tcpserver.SessionHandler { return echoSession{} })
	if err != nil {
		return err
	}

	return serve(e, srv, nil)
}

// newServer builds a server from the loaded configuration; a positive port
// overrides the configured one.
func newServer(e *env, name string, port int, newSession tcpserver.NewSessionFunc) (*tcpserver.Server, error) {
	sc := e.cfg.Server
	if port > 0 {
		sc.Port = port
	}

	ep, err := sc.Endpoint()
	if err != nil {
		return nil, err
	}

	e.println("Server port:", ep.Port())
	e.println("Working threads:", e.svc.Threads())
	e.println()

	return tcpserver.New(e.svc, tcpserver.Config{
		Name:       name,
		Endpoint:   ep,
		Handler:    serverEvents{e: e, name: name},
		NewSession: newSession,
		Socket:     sc.Options(),
		Logger:     e.log,
	}), nil
}

// serve runs srv until a signal arrives or done is closed. Session socket
// options follow edits of the configuration file while it runs.
func serve(e *env, srv *tcpserver.Server, done <-chan struct{}) error {
	if err := e.startService(); err != nil {
		return err
	}
	defer e.stopService()

	e.printf("Server starting...")
	if !srv.Start() {
		return fmt.Errorf("%s server failed to start on %s", srv.Name(), srv.Endpoint())
	}
	e.println(color.GreenString("Done!"))

	if _, err := os.Stat(e.path); err == nil {
		w, err := config.Watch(e.path, time.Second, e.log, func(c *config.Config) {
			applyServerOptions(srv, c.Server.Options())
			e.log.Info("session socket options reloaded", logger.Field{Key: "server", Value: srv.Name()})
		})
		if err != nil {
			e.log.Warn("config hot reload disabled", logger.Field{Key: "error", Value: err})
		} else {
			defer w.Close()
		}
	}

	e.println("Press Ctrl+C to stop the server...")
	waitSignal(done)

	e.printf("Server stopping...")
	srv.Stop()
	e.println(color.GreenString("Done!"))
	return nil
}

func applyServerOptions(srv *tcpserver.Server, o socket.Options) {
	srv.SetupKeepAlive(o.KeepAlive)
	srv.SetupNoDelay(o.NoDelay)
	srv.SetupReceiveBufferSize(o.ReceiveBufferSize)
	srv.SetupSendBufferSize(o.SendBufferSize)
	srv.SetupReceiveBufferLimit(o.ReceiveBufferLimit)
	srv.SetupSendBufferLimit(o.SendBufferLimit)
}

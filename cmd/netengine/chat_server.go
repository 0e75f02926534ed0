package main

import (
	"bufio"
	"fmt"

	"github.com/fatih/color"
	"github.com/scott-cotton/cli"

	"github.com/cyberinferno/go-netengine/socket"
	"github.com/cyberinferno/go-netengine/tcpserver"
)

type chatServerConfig struct {
	*cli.Command

	ConfigPath string `cli:"name=config desc='configuration file'"`
	LogLevel   string `cli:"name=log desc='log level'"`
	Threads    int    `cli:"name=threads aliases=t desc='service worker threads'"`
	Port       int    `cli:"name=port aliases=p desc='listening port'"`
}

func chatServerCommand() *cli.Command {
	cfg := &chatServerConfig{}
	opts, _ := cli.StructOpts(cfg)
	return cli.NewCommandAt(&cfg.Command, "chat-server").
		WithSynopsis("chat-server [-port n]").
		WithDescription("multicast every received message to all sessions; stdin lines are sent as (admin), '!' restarts the server").
		WithOpts(opts...).
		WithRun(cfg.run)
}

type chatSession struct {
	tcpserver.NopSessionHandler
	e *env
}

func (h chatSession) OnConnected(s *tcpserver.Session) {
	h.e.println(color.GreenString("Chat TCP session with Id %s connected!", s.ID()))
	s.SendTextAsync("Hello from TCP chat! Please send a message or '!' to disconnect the client!")
}

func (h chatSession) OnDisconnected(s *tcpserver.Session) {
	h.e.println(color.YellowString("Chat TCP session with Id %s disconnected!", s.ID()))
}

func (h chatSession) OnReceived(s *tcpserver.Session, data []byte) {
	message := string(data)
	h.e.println("Incoming:", message)

	s.Server().MulticastText(message)
	if message == "!" {
		s.DisconnectAsync()
	}
}

func (h chatSession) OnError(_ *tcpserver.Session, err *socket.Error) {
	h.e.reportError("Chat TCP session", err)
}

func (cfg *chatServerConfig) run(cc *cli.Context, args []string) error {
	if _, err := cfg.Parse(cc, args); err != nil {
		return err
	}

	e, err := newEnv("chat-server", cc.Out, commonOpts{ConfigPath: cfg.ConfigPath, LogLevel: cfg.LogLevel, Threads: cfg.Threads})
	if err != nil {
		return err
	}

	srv, err := newServer(e, "Chat", cfg.Port, func(*tcpserver.Session) tcpserver.SessionHandler {
		return chatSession{e: e}
	})
	if err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)

		scanner := bufio.NewScanner(cc.In)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				return
			}

			if line == "!" {
				e.printf("Server restarting...")
				srv.Restart()
				e.println(color.GreenString("Done!"))
				continue
			}

			srv.MulticastText(fmt.Sprintf("(admin) %s", line))
		}
	}()

	e.println("Enter a message to multicast it as (admin), an empty line to stop, '!' to restart the server")
	return serve(e, srv, done)
}

package main

import (
	"time"

	"github.com/scott-cotton/cli"

	"github.com/cyberinferno/go-netengine/perfmonitor"
	"github.com/cyberinferno/go-netengine/tcpserver"
	"github.com/cyberinferno/go-netengine/timer"
	"github.com/cyberinferno/go-netengine/utils"
)

type multicastServerConfig struct {
	*cli.Command

	ConfigPath string `cli:"name=config desc='configuration file'"`
	LogLevel   string `cli:"name=log desc='log level'"`
	Threads    int    `cli:"name=threads aliases=t desc='service worker threads'"`
	Port       int    `cli:"name=port aliases=p desc='listening port'"`
	Size       int    `cli:"name=size aliases=s desc='multicast payload size in bytes'"`
	Interval   int    `cli:"name=interval aliases=i desc='milliseconds between multicasts'"`
}

// maxMulticastPending bounds the bytes a slow session may have queued before
// further multicasts to it are skipped.
const maxMulticastPending = 1 << 20

// multicastSession skips multicasts to sessions that cannot keep up instead
// of letting their send buffer grow.
type multicastSession struct {
	tcpserver.NopSessionHandler
}

func (multicastSession) OnSending(s *tcpserver.Session, size int) bool {
	return allowMulticast(s.BytesPending(), size)
}

func allowMulticast(pending int64, size int) bool {
	return pending+int64(size) <= maxMulticastPending
}

func multicastServerCommand() *cli.Command {
	cfg := &multicastServerConfig{Size: 32, Interval: 10}
	opts, _ := cli.StructOpts(cfg)
	return cli.NewCommandAt(&cfg.Command, "multicast-server").
		WithSynopsis("multicast-server [-port n] [-size n] [-interval ms]").
		WithDescription("periodically multicast a payload to every connected session").
		WithOpts(opts...).
		WithRun(cfg.run)
}

func (cfg *multicastServerConfig) run(cc *cli.Context, args []string) error {
	if _, err := cfg.Parse(cc, args); err != nil {
		return err
	}

	e, err := newEnv("multicast-server", cc.Out, commonOpts{ConfigPath: cfg.ConfigPath, LogLevel: cfg.LogLevel, Threads: cfg.Threads})
	if err != nil {
		return err
	}

	srv, err := newServer(e, "Multicast", cfg.Port, func(*tcpserver.Session) tcpserver.SessionHandler {
		return multicastSession{}
	})
	if err != nil {
		return err
	}

	size := max(cfg.Size, 1)
	interval := time.Duration(max(cfg.Interval, 1)) * time.Millisecond
	payload := utils.RepeatToLength([]byte("multicast"), size)
	pm := perfmonitor.NewPerformanceMonitor()

	e.println("Message size:", size)
	e.println("Interval:", interval)

	var tick *timer.Timer
	tick = timer.NewAfter(e.svc, interval, func(canceled bool) {
		if canceled {
			return
		}

		if n := srv.ConnectedSessions(); n > 0 && srv.Multicast(payload) {
			pm.AddMessages(int64(n))
		}

		tick.SetupAfter(interval)
		tick.WaitAsync()
	})

	srv.Service().Post(func() {
		pm.Start()
		tick.WaitAsync()
	})

	err = serve(e, srv, nil)
	tick.Cancel()
	pm.AddBytes(srv.BytesSent())
	pm.Stop()

	e.println()
	printReport(e, pm, size)
	return err
}

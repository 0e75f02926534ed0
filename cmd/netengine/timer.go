package main

import (
	"time"

	"github.com/fatih/color"
	"github.com/scott-cotton/cli"

	"github.com/cyberinferno/go-netengine/timer"
)

type timerConfig struct {
	*cli.Command

	ConfigPath string `cli:"name=config desc='configuration file'"`
	LogLevel   string `cli:"name=log desc='log level'"`
	Delay      int    `cli:"name=delay aliases=d desc='timer delay in milliseconds'"`
}

func timerCommand() *cli.Command {
	cfg := &timerConfig{Delay: 1000}
	opts, _ := cli.StructOpts(cfg)
	return cli.NewCommandAt(&cfg.Command, "timer").
		WithSynopsis("timer [-delay ms]").
		WithDescription("demonstrate synchronous waits, asynchronous waits and cancellation").
		WithOpts(opts...).
		WithRun(cfg.run)
}

func (cfg *timerConfig) run(cc *cli.Context, args []string) error {
	if _, err := cfg.Parse(cc, args); err != nil {
		return err
	}

	e, err := newEnv("timer", cc.Out, commonOpts{ConfigPath: cfg.ConfigPath, LogLevel: cfg.LogLevel})
	if err != nil {
		return err
	}

	if err := e.startService(); err != nil {
		return err
	}
	defer e.stopService()

	delay := time.Duration(max(cfg.Delay, 0)) * time.Millisecond
	fired := make(chan bool, 1)
	report := func(canceled bool) {
		if canceled {
			e.println(color.YellowString("Timer was canceled"))
		} else {
			e.println(color.GreenString("Timer expired at %s", time.Now().Format(time.StampMilli)))
		}
		fired <- canceled
	}

	t := timer.NewAfter(e.svc, delay, report)

	e.println("Timer wait synchronously...")
	t.WaitSync()
	<-fired

	e.println("Timer wait asynchronously...")
	t.SetupAfter(delay)
	t.WaitAsync()
	<-fired

	e.println("Timer wait asynchronously and cancel...")
	t.SetupAfter(delay)
	t.WaitAsync()
	t.Cancel()
	<-fired

	return nil
}

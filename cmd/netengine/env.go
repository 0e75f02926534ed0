package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/cyberinferno/go-netengine/config"
	"github.com/cyberinferno/go-netengine/logger"
	"github.com/cyberinferno/go-netengine/resolver"
	"github.com/cyberinferno/go-netengine/service"
	"github.com/cyberinferno/go-netengine/socket"
)

// env holds what every command builds before doing its work.
type env struct {
	name string
	path string
	cfg  *config.Config
	log  logger.Logger
	svc  *service.Service
	out  io.Writer
}

// commonOpts are the options shared by all commands.
type commonOpts struct {
	ConfigPath string
	LogLevel   string
	Threads    int
}

func newEnv(name string, out io.Writer, opts commonOpts) (*env, error) {
	path := config.Path(opts.ConfigPath)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	level := cfg.Logger.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}

	log := logger.NewConsoleLogger(os.Stderr, name, logger.ParseLevel(level))
	if cfg.Logger.Dir != "" {
		if log, err = logger.NewZerologFileLogger(name, cfg.Logger.Dir, logger.ParseLevel(level)); err != nil {
			return nil, err
		}
	}

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		log.Debug(fmt.Sprintf(format, args...))
	})); err != nil {
		log.Warn("failed to set GOMAXPROCS", logger.Field{Key: "error", Value: err})
	}

	threads := cfg.Service.Threads
	if opts.Threads > 0 {
		threads = opts.Threads
	}

	e := &env{
		name: name,
		path: path,
		cfg:  cfg,
		log:  log,
		out:  out,
	}
	e.svc = service.New(service.Config{Threads: threads, Handler: serviceEvents{e: e}, Logger: log})
	return e, nil
}

func (e *env) startService() error {
	e.printf("Service starting...")
	if !e.svc.Start() {
		return errors.New("service failed to start")
	}

	e.println(color.GreenString("Done!"))
	return nil
}

func (e *env) stopService() {
	e.printf("Service stopping...")
	e.svc.Stop()
	e.println(color.GreenString("Done!"))
}

// resolver builds the name resolver, sharing its cache through Redis when
// the configuration names a Redis address.
func (e *env) resolver() *resolver.Resolver {
	rc := resolver.DefaultConfig()
	rc.TTL = e.cfg.Resolver.TTL
	rc.Logger = e.log
	if addr := e.cfg.Resolver.RedisAddr; addr != "" {
		rc.Cache = resolver.NewRedisCache(redis.NewClient(&redis.Options{Addr: addr}))
	}

	return resolver.New(e.svc, rc)
}

func (e *env) printf(format string, args ...any) {
	fmt.Fprintf(e.out, format, args...)
}

func (e *env) println(args ...any) {
	fmt.Fprintln(e.out, args...)
}

func (e *env) reportError(who string, err *socket.Error) {
	e.println(color.RedString("%s caught an error with code %d and category '%s': %s", who, err.Code, err.Category, err.Message))
}

// waitSignal blocks until SIGINT or SIGTERM, or until done is closed.
func waitSignal(done <-chan struct{}) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
	case <-done:
	}
}

type serviceEvents struct {
	service.NopHandler
	e *env
}

func (h serviceEvents) OnError(err error) {
	h.e.println(color.RedString("Service caught an error: %v", err))
}

package config

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/radovskyb/watcher"

	"github.com/cyberinferno/go-netengine/logger"
)

// Watcher reloads a config file when it is written and hands every valid
// result to its observer. Invalid edits are logged and skipped.
type Watcher struct {
	path     string
	w        *watcher.Watcher
	log      logger.Logger
	observer func(*Config)
	done     chan struct{}
	once     sync.Once
}

// Watch starts polling path every interval.
//
// Parameters:
//   - path: The config file to watch; must exist
//   - interval: Polling interval
//   - log: Logger for reload failures; nil disables logging
//   - observer: Called with each successfully reloaded configuration
//
// Returns:
//   - A running *Watcher; call Close to stop it
//   - An error if the file cannot be watched
func Watch(path string, interval time.Duration, log logger.Logger, observer func(*Config)) (*Watcher, error) {
	w := watcher.New()
	w.SetMaxEvents(1)
	w.FilterOps(watcher.Write, watcher.Create)
	if err := w.Add(path); err != nil {
		return nil, errors.Wrapf(err, "failed to watch config file %s", path)
	}

	cw := &Watcher{
		path:     path,
		w:        w,
		log:      logger.OrNop(log).With(logger.Field{Key: "component", Value: "config"}),
		observer: observer,
		done:     make(chan struct{}),
	}

	go func() {
		if err := w.Start(interval); err != nil {
			cw.log.Error("failed to start watching config file", logger.Field{Key: "error", Value: err})
		}
	}()

	go cw.loop()
	w.Wait()
	return cw, nil
}

func (cw *Watcher) loop() {
	defer close(cw.done)

	for {
		select {
		case <-cw.w.Event:
			cw.log.Info("config file changed", logger.Field{Key: "path", Value: cw.path})
			c, err := load(cw.path)
			if err != nil {
				cw.log.Error("failed to reload config file", logger.Field{Key: "error", Value: err})
				continue
			}

			cw.observer(c)
		case err := <-cw.w.Error:
			cw.log.Error("error on watching config file", logger.Field{Key: "error", Value: err})
		case <-cw.w.Closed:
			return
		}
	}
}

// Close stops watching and waits for a running observer call to return.
func (cw *Watcher) Close() {
	cw.once.Do(func() {
		cw.w.Close()
		<-cw.done
	})
}

package config

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jstrnad/pwmled-go/internal/logger"
)

var log = logger.New("config")

// Watcher reloads the config file when it changes on disk. The config is
// parsed fresh on every change; a file that no longer parses is reported
// through the error handler and the last good config stays in effect.
type Watcher struct {
	path     string
	debounce time.Duration
	onReload func(*Config)
	onError  func(error)

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewWatcher creates a watcher for path. onReload receives every
// successfully parsed config; onError may be nil.
func NewWatcher(path string, onReload func(*Config), onError func(error)) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		path:     path,
		debounce: 1500 * time.Millisecond,
		onReload: onReload,
		onError:  onError,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins watching. Editors that replace the file show up as create
// events, so both writes and creates schedule a reload.
func (w *Watcher) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.path); err != nil {
		fw.Close()
		return err
	}
	w.mu.Lock()
	w.watcher = fw
	w.mu.Unlock()

	log.Infof("watching %s for changes", w.path)
	go w.watch(fw)
	return nil
}

// Stop stops watching and releases the inotify handle.
func (w *Watcher) Stop() error {
	w.cancel()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}

func (w *Watcher) watch(fw *fsnotify.Watcher) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			timerC = timer.C

		case <-timerC:
			timerC = nil
			cfg, err := Load(w.path)
			if err != nil {
				log.Errorf("reload %s: %v", w.path, err)
				if w.onError != nil {
					w.onError(err)
				}
				continue
			}
			log.Infof("config %s reloaded, %d leds", w.path, len(cfg.LEDs))
			w.onReload(cfg)

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			log.Warningf("watch %s: %v", w.path, err)
		}
	}
}

// SetDebounce overrides the coalescing window, mainly for tests.
func (w *Watcher) SetDebounce(d time.Duration) { w.debounce = d }

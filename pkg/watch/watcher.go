package watch

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/core-tools/hsu-ecosystem-go/pkg/ecosystem"
	"github.com/core-tools/hsu-ecosystem-go/pkg/errors"
	"github.com/core-tools/hsu-ecosystem-go/pkg/logging"

	"github.com/fsnotify/fsnotify"
)

const DefaultDebounce = 500 * time.Millisecond

// LoadFunc loads and validates the watched file
type LoadFunc func(path string) (*ecosystem.Ecosystem, error)

// Result is delivered to listeners after every reload attempt
type Result struct {
	Ecosystem *ecosystem.Ecosystem // nil when Err is set
	Err       error
	At        time.Time
}

// Watcher re-validates an ecosystem file whenever it changes on disk.
// The last valid ecosystem stays current when a reload fails.
type Watcher struct {
	path     string
	load     LoadFunc
	logger   logging.Logger
	debounce time.Duration

	mu      sync.RWMutex
	current *ecosystem.Ecosystem
	lastErr error

	listenersMu sync.RWMutex
	listeners   []chan<- Result

	watcher *fsnotify.Watcher
	done    chan struct{}
	stopMu  sync.Mutex
	stopped bool
}

func NewWatcher(path string, load LoadFunc, logger logging.Logger) *Watcher {
	if logger == nil {
		logger = logging.NewNullLogger()
	}
	return &Watcher{
		path:     path,
		load:     load,
		logger:   logger,
		debounce: DefaultDebounce,
		done:     make(chan struct{}),
	}
}

// SetDebounce changes the quiet period before a reload; call before Start
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Current returns the last valid ecosystem, or nil if none loaded yet
func (w *Watcher) Current() *ecosystem.Ecosystem {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// LastError returns the error of the most recent reload, nil after a success
func (w *Watcher) LastError() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastErr
}

// RegisterListener adds a channel that receives every reload result.
// Sends are non-blocking; a full channel misses results.
func (w *Watcher) RegisterListener(ch chan<- Result) {
	w.listenersMu.Lock()
	defer w.listenersMu.Unlock()
	w.listeners = append(w.listeners, ch)
}

// Reload loads the file now and notifies listeners
func (w *Watcher) Reload() error {
	eco, err := w.load(w.path)

	w.mu.Lock()
	if err == nil {
		w.current = eco
	}
	w.lastErr = err
	w.mu.Unlock()

	if err != nil {
		w.logger.Errorf("Ecosystem reload failed, path: %s, error: %v", w.path, err)
	} else {
		w.logger.Infof("Ecosystem reloaded, path: %s, apps: %d", w.path, len(eco.Apps))
	}

	w.notify(Result{Ecosystem: eco, Err: err, At: time.Now()})
	return err
}

func (w *Watcher) notify(result Result) {
	w.listenersMu.RLock()
	defer w.listenersMu.RUnlock()
	for _, ch := range w.listeners {
		select {
		case ch <- result:
		default:
			w.logger.Warnf("Listener channel full, dropping reload result")
		}
	}
}

// Start performs an initial load, then watches until ctx is done or Stop is called.
// The directory is watched rather than the file so that editors which replace
// the file by rename keep being observed.
func (w *Watcher) Start(ctx context.Context) error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.NewInternalError("failed to create file watcher", err)
	}

	dir := filepath.Dir(w.path)
	if err := fsWatcher.Add(dir); err != nil {
		_ = fsWatcher.Close()
		return errors.NewIOError("failed to watch directory", err).WithContext("directory", dir)
	}
	w.watcher = fsWatcher

	_ = w.Reload()

	w.logger.Infof("Watching ecosystem file, path: %s", w.path)
	go w.loop(ctx)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	defer w.watcher.Close()

	target := filepath.Clean(w.path)

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debugf("Ecosystem watcher stopped, path: %s", w.path)
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debugf("Ecosystem file changed, op: %s", event.Op.String())

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			_ = w.Reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("Ecosystem watcher error: %v", err)
		}
	}
}

// Stop closes the file watcher and waits for the loop to exit
func (w *Watcher) Stop() {
	w.stopMu.Lock()
	defer w.stopMu.Unlock()
	if w.stopped || w.watcher == nil {
		return
	}
	w.stopped = true
	_ = w.watcher.Close()
	<-w.done
}

// Done is closed when the watch loop exits
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

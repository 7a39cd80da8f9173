package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const DefaultDebounce = 500 * time.Millisecond

// Watcher calls onChange after any of the watched files is written, created or renamed into
// place. Bursts of events within the debounce window collapse into one call.
//
// Directories are watched rather than files so editors that replace the file (and our own
// renameio writes) keep being observed.
type Watcher struct {
	files    map[string]struct{}
	dirs     []string
	onChange func()
	debounce time.Duration
	log      zerolog.Logger

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	timer   *time.Timer
	stopped bool
	done    chan struct{}
}

func NewWatcher(logger zerolog.Logger, onChange func(), paths ...string) *Watcher {
	w := &Watcher{
		files:    map[string]struct{}{},
		onChange: onChange,
		debounce: DefaultDebounce,
		log:      logger,
		done:     make(chan struct{}),
	}
	seen := map[string]bool{}
	for _, p := range paths {
		p = filepath.Clean(p)
		w.files[p] = struct{}{}
		d := filepath.Dir(p)
		if !seen[d] {
			seen[d] = true
			w.dirs = append(w.dirs, d)
		}
	}
	return w
}

// SetDebounce must be called before Start.
func (w *Watcher) SetDebounce(d time.Duration) { w.debounce = d }

func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	for _, d := range w.dirs {
		if err := fsw.Add(d); err != nil {
			_ = fsw.Close()
			return fmt.Errorf("watch %s: %w", d, err)
		}
	}
	w.mu.Lock()
	w.fsw = fsw
	w.mu.Unlock()

	w.log.Info().Str("event", "config.watcher_started").Strs("dirs", w.dirs).Msg("watching config files")
	go w.loop(ctx)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			_ = w.Close()
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if _, watched := w.files[filepath.Clean(ev.Name)]; !watched {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			w.log.Debug().Str("event", "config.file_changed").Str("file", ev.Name).Str("op", ev.Op.String()).Msg("config file changed")
			w.schedule()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Str("event", "config.watcher_error").Msg("config watcher error")
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.onChange)
}

// Close stops watching. Pending debounced calls are cancelled.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	if w.fsw == nil {
		return nil
	}
	return w.fsw.Close()
}

// Done is closed once the event loop has exited.
func (w *Watcher) Done() <-chan struct{} { return w.done }

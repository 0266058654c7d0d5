// Package watcher reports changes to the database file backing a tree so
// the browser can reload what is on screen. It prefers fsnotify and falls
// back to polling on remote filesystems or when asked to.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultPollInterval is the default polling interval for fallback mode.
const DefaultPollInterval = 2 * time.Second

// ForcePollEnv forces polling mode when set to a truthy value.
const ForcePollEnv = "UIKIT_FORCE_POLL"

var (
	ErrFileRemoved    = errors.New("watched file was removed")
	ErrPermission     = errors.New("permission denied")
	ErrAlreadyStarted = errors.New("watcher already started")
)

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

func WithDebounceDuration(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounceDuration = d }
}

func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.pollInterval = d }
}

// WithOnChange sets the callback invoked after a debounced change.
func WithOnChange(fn func()) WatcherOption {
	return func(w *Watcher) { w.onChange = fn }
}

func WithOnError(fn func(error)) WatcherOption {
	return func(w *Watcher) { w.onError = fn }
}

// WithForcePoll forces polling mode even if fsnotify is available.
func WithForcePoll(force bool) WatcherOption {
	return func(w *Watcher) { w.forcePoll = force }
}

// WithCompanions adds sibling suffixes whose changes count as changes to the
// watched file. SQLite in WAL mode writes to "-wal" until a checkpoint.
func WithCompanions(suffixes ...string) WatcherOption {
	return func(w *Watcher) { w.companions = append(w.companions, suffixes...) }
}

func WithLogger(l zerolog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// Watcher monitors a file, and optionally its companions, for changes.
type Watcher struct {
	path             string
	companions       []string
	debounceDuration time.Duration
	pollInterval     time.Duration
	onChange         func()
	onError          func(error)
	forcePoll        bool
	logger           zerolog.Logger

	fsType      FilesystemType
	fsWatcher   *fsnotify.Watcher
	debouncer   *Debouncer
	useFallback bool
	last        map[string]fileStamp

	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
	mu       sync.RWMutex
	changeCh chan struct{}
}

type fileStamp struct {
	mtime time.Time
	size  int64
}

func (s fileStamp) exists() bool { return !s.mtime.IsZero() }

// NewWatcher creates a watcher for path. Nothing is watched until Start.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:             absPath,
		debounceDuration: DefaultDebounceDuration,
		pollInterval:     DefaultPollInterval,
		onChange:         func() {},
		onError:          func(error) {},
		logger:           zerolog.Nop(),
		changeCh:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.debouncer = NewDebouncer(w.debounceDuration)
	return w, nil
}

// files lists the watched path followed by its companions.
func (w *Watcher) files() []string {
	out := []string{w.path}
	for _, s := range w.companions {
		out = append(out, w.path+s)
	}
	return out
}

// Start begins watching.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return ErrAlreadyStarted
	}

	w.last = make(map[string]fileStamp)
	for _, f := range w.files() {
		info, err := os.Stat(f)
		switch {
		case err == nil:
			w.last[f] = fileStamp{mtime: info.ModTime(), size: info.Size()}
		case os.IsPermission(err):
			return ErrPermission
		}
	}

	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.fsType = DetectFilesystemType(w.path)
	w.useFallback = w.forcePoll || envBool(ForcePollEnv) || isRemoteFilesystem(w.fsType)

	if !w.useFallback {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			// The directory survives atomic renames of the file.
			if err := fsw.Add(filepath.Dir(w.path)); err != nil {
				fsw.Close()
				w.useFallback = true
			} else {
				w.fsWatcher = fsw
				go w.watchFsnotify(fsw)
			}
		} else {
			w.useFallback = true
		}
	}
	if w.useFallback {
		go w.watchPolling(w.ctx)
	}

	w.logger.Debug().
		Str("path", w.path).
		Stringer("fs", w.fsType).
		Bool("polling", w.useFallback).
		Msg("watcher started")
	w.started = true
	return nil
}

// Stop stops watching. The Changed channel stays open so a goroutine blocked
// on it does not spin; it is released at process exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return
	}
	if w.cancel != nil {
		w.cancel()
	}
	if w.fsWatcher != nil {
		w.fsWatcher.Close()
		w.fsWatcher = nil
	}
	w.debouncer.Cancel()
	w.started = false
}

// IsPolling reports whether the watcher fell back to polling.
func (w *Watcher) IsPolling() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.useFallback
}

func (w *Watcher) IsStarted() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.started
}

// Changed receives after each debounced change.
func (w *Watcher) Changed() <-chan struct{} {
	return w.changeCh
}

// Path returns the absolute watched path.
func (w *Watcher) Path() string {
	return w.path
}

func (w *Watcher) FilesystemType() FilesystemType {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.fsType
}

func (w *Watcher) PollInterval() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.pollInterval
}

func envBool(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func (w *Watcher) watchFsnotify(fsw *fsnotify.Watcher) {
	targets := make(map[string]bool)
	for _, f := range w.files() {
		targets[filepath.Base(f)] = true
	}
	primary := filepath.Base(w.path)

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			name := filepath.Base(event.Name)
			if !targets[name] {
				continue
			}
			switch {
			case event.Op&fsnotify.Remove != 0:
				// A checkpoint may delete the WAL; only the main file matters.
				if name == primary {
					w.reportError(ErrFileRemoved)
				}
			case event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0:
				w.debouncer.Trigger(w.notifyChange)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.reportError(err)
		}
	}
}

func (w *Watcher) watchPolling(ctx context.Context) {
	ticker := time.NewTicker(w.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.poll() {
				w.debouncer.Trigger(w.notifyChange)
			}
		}
	}
}

// poll stats every watched file and reports whether any of them changed.
func (w *Watcher) poll() bool {
	changed := false
	for i, f := range w.files() {
		info, err := os.Stat(f)

		w.mu.Lock()
		prev := w.last[f]
		switch {
		case err == nil:
			cur := fileStamp{mtime: info.ModTime(), size: info.Size()}
			if cur.mtime.After(prev.mtime) || cur.size != prev.size {
				w.last[f] = cur
				changed = true
			}
		case os.IsNotExist(err):
			delete(w.last, f)
		}
		w.mu.Unlock()

		if err == nil || i > 0 {
			continue
		}
		switch {
		case os.IsNotExist(err):
			if prev.exists() {
				w.reportError(ErrFileRemoved)
			}
		case os.IsPermission(err):
			w.reportError(ErrPermission)
		default:
			w.reportError(err)
		}
	}
	return changed
}

func (w *Watcher) reportError(err error) {
	w.logger.Warn().Err(err).Str("path", w.path).Msg("watch error")
	w.onError(err)
}

// notifyChange runs the callback and signals Changed unless the watcher has
// been stopped in the meantime.
func (w *Watcher) notifyChange() {
	if !w.IsStarted() {
		return
	}
	w.logger.Debug().Str("path", w.path).Msg("change detected")
	w.onChange()

	select {
	case w.changeCh <- struct{}{}:
	default:
	}
}

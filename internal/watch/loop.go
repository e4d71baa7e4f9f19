// Package watch drives a tail reader from filesystem change notifications.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/you/poe-chatwatch/internal/parser"
)

// Reader is the incremental file reader driven by the loop.
type Reader interface {
	Path() string
	ReadExisting() error
	ReadNew() error
}

type State int32

const (
	StateIdle State = iota
	StateWatching
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWatching:
		return "watching"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

var (
	ErrAlreadyStarted = errors.New("watch: loop already started")
	ErrNotWatching    = errors.New("watch: loop is not watching")
	ErrStopped        = errors.New("watch: loop stopped during start")
)

// dropFlusher is implemented by readers that buffer drop summaries.
type dropFlusher interface {
	FlushDrops()
}

const readErrorLogInterval = 5 * time.Second

type Options struct {
	// Debounce coalesces notifications into one read at most Debounce after
	// the first of them, even while writes keep arriving. Zero reads on every
	// notification.
	Debounce time.Duration
	// PollInterval additionally triggers a read on a fixed schedule. Zero
	// disables polling.
	PollInterval time.Duration
}

// Loop subscribes to the directory holding the reader's file and calls
// ReadNew whenever that file changes. State moves Idle -> Watching -> Stopped.
type Loop struct {
	reader Reader
	path   string
	opts   Options

	mu       sync.Mutex
	state    State
	starting bool
	cancel   context.CancelFunc
	err      error
	done     chan struct{}

	rescan chan struct{}
	errLog rate.Sometimes
}

func New(r Reader, opts Options) *Loop {
	path := filepath.Clean(r.Path())
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &Loop{
		reader: r,
		path:   path,
		opts:   opts,
		done:   make(chan struct{}),
		rescan: make(chan struct{}, 1),
		errLog: rate.Sometimes{Interval: readErrorLogInterval},
	}
}

// Path returns the absolute path being watched.
func (l *Loop) Path() string { return l.path }

// Start subscribes to the file's directory, reads the existing content
// synchronously and then processes notifications on a new goroutine until
// ctx is cancelled or Stop is called. If the initial read fails the loop
// stays Idle and the error is returned. The loop lock is not held during the
// initial read; a Stop issued meanwhile wins and Start returns ErrStopped.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.state != StateIdle || l.starting {
		l.mu.Unlock()
		return ErrAlreadyStarted
	}
	l.starting = true
	l.mu.Unlock()

	w, dir, err := l.subscribe()
	if err == nil {
		// subscribed first so appends racing the initial read still notify
		if rerr := l.reader.ReadExisting(); rerr != nil {
			w.Close()
			err = errors.Wrap(rerr, "watch: initial read")
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.starting = false
	if err != nil {
		return err
	}
	if l.state == StateStopped {
		w.Close()
		return ErrStopped
	}

	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.state = StateWatching
	go l.run(runCtx, w)

	slog.Info("watch: watching log file", "path", l.path, "dir", dir)
	return nil
}

func (l *Loop) subscribe() (*fsnotify.Watcher, string, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, "", errors.Wrap(err, "watch: create watcher")
	}
	dir := filepath.Dir(l.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, "", errors.Wrapf(err, "watch: add %s", dir)
	}
	return w, dir, nil
}

// Stop ends the loop and waits for it to release the subscription. It is
// safe to call at any time and more than once.
func (l *Loop) Stop() {
	l.mu.Lock()
	switch l.state {
	case StateIdle:
		l.state = StateStopped
		close(l.done)
		l.mu.Unlock()
		return
	case StateStopped:
		l.mu.Unlock()
		<-l.done
		return
	}
	cancel := l.cancel
	l.mu.Unlock()

	cancel()
	<-l.done
}

// Rescan asks the running loop to read new content now.
func (l *Loop) Rescan() error {
	if l.State() != StateWatching {
		return ErrNotWatching
	}
	select {
	case l.rescan <- struct{}{}:
	default:
	}
	return nil
}

func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Done is closed once the loop has stopped.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Err reports the fatal error that ended the loop, if any.
func (l *Loop) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *Loop) run(ctx context.Context, w *fsnotify.Watcher) {
	defer func() {
		w.Close()
		if f, ok := l.reader.(dropFlusher); ok {
			f.FlushDrops()
		}
		l.mu.Lock()
		l.state = StateStopped
		l.mu.Unlock()
		close(l.done)
		slog.Info("watch: stopped", "path", l.path)
	}()

	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()
	pending := false

	var poll <-chan time.Time
	if l.opts.PollInterval > 0 {
		ticker := time.NewTicker(l.opts.PollInterval)
		defer ticker.Stop()
		poll = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != l.path {
				continue
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				slog.Info("watch: log file moved or removed; waiting for it to return", "path", l.path, "op", ev.Op.String())
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Chmod) == 0 {
				continue
			}
			if l.opts.Debounce <= 0 {
				if l.read() {
					return
				}
				continue
			}
			// the window opens on the first event and is not extended
			if !pending {
				pending = true
				debounce.Reset(l.opts.Debounce)
			}
		case <-debounce.C:
			pending = false
			if l.read() {
				return
			}
		case <-poll:
			if l.read() {
				return
			}
		case <-l.rescan:
			if l.read() {
				return
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			slog.Error("watch error", "path", l.path, "err", err)
		}
	}
}

// read runs one incremental read and reports whether the loop must exit.
func (l *Loop) read() bool {
	err := l.reader.ReadNew()
	if err == nil {
		return false
	}
	if errors.Is(err, parser.ErrPatternContract) {
		slog.Error("watch: extraction pattern violated its contract; stopping", "path", l.path, "err", err)
		l.mu.Lock()
		l.err = err
		l.mu.Unlock()
		return true
	}
	l.errLog.Do(func() {
		slog.Warn("watch: read failed; will retry on next change", "path", l.path, "err", err)
	})
	return false
}

package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/obsidianstack/confwatch/internal/config"
)

// Options configures a Watcher.
type Options struct {
	// Interval is the poll period. Must be positive.
	Interval time.Duration

	// LoadTimeout bounds a single load. Zero disables the bound. A load that
	// exceeds it is reported as a config.KindTimeout failure; the load itself
	// is left to finish in the background.
	LoadTimeout time.Duration

	// Loader reads and validates the file. The zero value uses
	// config.DefaultMaxSize.
	Loader config.Loader

	// OnEvent receives every non-silent cycle outcome. May be nil.
	OnEvent Handler
}

// Watcher polls one configuration file and retains the last configuration
// that loaded and validated successfully.
//
// Only the Run goroutine mutates the state; Status and Current may be called
// concurrently from any goroutine.
type Watcher struct {
	path        string
	interval    time.Duration
	loadTimeout time.Duration
	onEvent     Handler

	// Injectable for tests.
	load  func(path string) (*config.Config, error)
	probe func(path string) (time.Time, error)
	now   func() time.Time

	mu           sync.RWMutex
	state        State
	lastModified *time.Time
	lastChecked  time.Time
}

// New creates a Watcher for path. It rejects an empty path and a
// non-positive interval.
func New(path string, opts Options) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("watcher: path is required")
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("watcher: interval must be positive, got %v", opts.Interval)
	}
	if opts.LoadTimeout < 0 {
		return nil, fmt.Errorf("watcher: load timeout must not be negative, got %v", opts.LoadTimeout)
	}
	return &Watcher{
		path:        path,
		interval:    opts.Interval,
		loadTimeout: opts.LoadTimeout,
		onEvent:     opts.OnEvent,
		load:        opts.Loader.Load,
		probe:       ModTime,
		now:         time.Now,
	}, nil
}

// Run performs the initial load, then checks the file once per interval
// until ctx is cancelled. A cycle already in progress when ctx is cancelled
// completes; no new cycle starts afterwards.
func (w *Watcher) Run(ctx context.Context) {
	if stopped(ctx) {
		return
	}
	slog.Info("watcher: watching for changes", "path", w.path, "interval", w.interval)

	w.initial()

	t := time.NewTicker(w.interval)
	defer t.Stop()

	for next(ctx, t.C) {
		w.check()
	}
	slog.Info("watcher: stopped", "path", w.path)
}

// Status returns a snapshot of the watcher state. The config it carries is a
// copy.
func (w *Watcher) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()

	st := w.state
	st.config = st.config.Clone()
	s := Status{
		Path:        w.path,
		Interval:    w.interval,
		State:       st,
		LastChecked: w.lastChecked,
	}
	if w.lastModified != nil {
		s.LastModified = *w.lastModified
	}
	return s
}

// Current returns a copy of the last valid configuration, or nil if none has
// loaded yet.
func (w *Watcher) Current() *config.Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state.config.Clone()
}

// initial loads the file once before polling starts. The probe result only
// seeds the timestamp; the load runs even if the probe fails so that the
// first event reports why nothing could be loaded.
func (w *Watcher) initial() Event {
	mod, err := w.probe(w.path)
	w.mu.Lock()
	// Unlike check, a failed probe here is not reported as ProbeError; the
	// load below reports the failure instead.
	if err == nil {
		w.lastModified = &mod
	}
	w.lastChecked = w.now()
	w.mu.Unlock()

	return w.reload()
}

// check runs one poll cycle. It reports false when the cycle was a silent
// no-op (file not modified).
func (w *Watcher) check() (Event, bool) {
	mod, err := w.probe(w.path)

	w.mu.Lock()
	w.lastChecked = w.now()
	if err != nil {
		st := w.state
		w.mu.Unlock()

		ev := Event{
			Kind:   EventProbeError,
			Path:   w.path,
			At:     w.now(),
			Phase:  st.Phase(),
			Config: st.Config().Clone(),
			Err:    err,
		}
		w.emit(ev)
		return ev, true
	}
	prev := w.lastModified
	w.lastModified = &mod
	w.mu.Unlock()

	if !Changed(prev, mod) {
		return Event{}, false
	}
	return w.reload(), true
}

// reload loads the file and applies the outcome to the retained state.
func (w *Watcher) reload() Event {
	start := w.now()
	cfg, err := w.loadBounded()
	took := w.now().Sub(start)

	w.mu.Lock()
	prev := w.state
	ev := Event{Path: w.path, Took: took}
	switch {
	case err != nil:
		w.state = prev.failed(err)
		ev.Kind = EventReloadFailed
		ev.Err = err
	case prev.Config() != nil && prev.Config().Equal(cfg):
		w.state = loadedState(cfg)
		ev.Kind = EventUnchanged
	default:
		w.state = loadedState(cfg)
		ev.Kind = EventReloaded
	}
	ev.Phase = w.state.Phase()
	ev.Config = w.state.Config().Clone()
	ev.At = w.now()
	w.mu.Unlock()

	w.emit(ev)
	return ev
}

// loadBounded runs the loader, giving up after loadTimeout when one is set.
func (w *Watcher) loadBounded() (*config.Config, error) {
	if w.loadTimeout <= 0 {
		return w.load(w.path)
	}

	type result struct {
		cfg *config.Config
		err error
	}
	done := make(chan result, 1)
	go func() {
		cfg, err := w.load(w.path)
		done <- result{cfg, err}
	}()

	timer := time.NewTimer(w.loadTimeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.cfg, r.err
	case <-timer.C:
		return nil, &config.Error{
			Kind:   config.KindTimeout,
			Path:   w.path,
			Reason: fmt.Sprintf("load did not finish within %v", w.loadTimeout),
		}
	}
}

func (w *Watcher) emit(ev Event) {
	if w.onEvent != nil {
		w.onEvent(ev)
	}
}

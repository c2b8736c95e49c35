package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidianstack/confwatch/internal/config"
)

// fakeFile drives a Watcher without touching the filesystem.
type fakeFile struct {
	mu       sync.Mutex
	mod      time.Time
	probeErr error
	cfg      *config.Config
	loadErr  error
	probes   int
	loads    int
}

func (f *fakeFile) probe(string) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	return f.mod, f.probeErr
}

func (f *fakeFile) load(string) (*config.Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.cfg.Clone(), nil
}

func (f *fakeFile) set(mod time.Time, cfg *config.Config, loadErr error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mod, f.cfg, f.loadErr = mod, cfg, loadErr
}

func (f *fakeFile) counts() (probes, loads int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probes, f.loads
}

// recorder collects emitted events.
type recorder struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newRecorder() *recorder { return &recorder{ch: make(chan Event, 64)} }

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.ch <- ev
}

func (r *recorder) wait(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-r.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func cfg(app, version string) *config.Config {
	return &config.Config{
		AppName:     app,
		Version:     version,
		Environment: config.DefaultEnvironment,
		Features:    map[string]bool{},
	}
}

func validationErr(reason string) error {
	return &config.Error{Kind: config.KindValidationFailure, Path: "test.json", Reason: reason}
}

func newFakeWatcher(t *testing.T, f *fakeFile, rec *recorder) *Watcher {
	t.Helper()
	opts := Options{Interval: time.Hour}
	if rec != nil {
		opts.OnEvent = rec.handle
	}
	w, err := New("test.json", opts)
	require.NoError(t, err)
	w.probe = f.probe
	w.load = f.load
	return w
}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestChanged(t *testing.T) {
	later := t0.Add(time.Second)
	earlier := t0.Add(-time.Second)

	assert.True(t, Changed(nil, t0), "first observation must trigger a load")
	assert.True(t, Changed(&t0, later))
	assert.False(t, Changed(&t0, t0), "equal timestamps are unchanged")
	assert.False(t, Changed(&t0, earlier))
}

func TestNext_CancellationWinsOverReadyTick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 100; i++ {
		ticks := make(chan time.Time, 1)
		ticks <- t0
		require.False(t, next(ctx, ticks), "iteration %d: a ready tick must not beat cancellation", i)
	}
}

func TestNext_Tick(t *testing.T) {
	ticks := make(chan time.Time, 1)
	ticks <- t0
	assert.True(t, next(context.Background(), ticks))
}

func TestModTime(t *testing.T) {
	p := filepath.Join(t.TempDir(), "c.json")
	require.NoError(t, os.WriteFile(p, []byte("{}"), 0o600))
	require.NoError(t, os.Chtimes(p, t0, t0))

	got, err := ModTime(p)
	require.NoError(t, err)
	assert.True(t, got.Equal(t0), "got %v, want %v", got, t0)

	_, err = ModTime(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMetadataUnavailable)
}

func TestNew_Validation(t *testing.T) {
	_, err := New("", Options{Interval: time.Second})
	assert.Error(t, err)

	_, err = New("c.json", Options{Interval: 0})
	assert.Error(t, err)

	_, err = New("c.json", Options{Interval: -time.Second})
	assert.Error(t, err)

	_, err = New("c.json", Options{Interval: time.Second, LoadTimeout: -1})
	assert.Error(t, err)

	w, err := New("c.json", Options{Interval: time.Second})
	require.NoError(t, err)
	assert.Equal(t, Uninitialized, w.Status().State.Phase())
	assert.Nil(t, w.Current())
}

func TestInitialLoad_Reloaded(t *testing.T) {
	f := &fakeFile{mod: t0, cfg: cfg("A", "1.0.0")}
	w := newFakeWatcher(t, f, nil)

	ev := w.initial()
	assert.Equal(t, EventReloaded, ev.Kind)
	assert.Equal(t, Loaded, ev.Phase)
	assert.True(t, ev.Config.Equal(cfg("A", "1.0.0")))

	st := w.Status()
	assert.Equal(t, Loaded, st.State.Phase())
	assert.True(t, st.LastModified.Equal(t0))
	assert.NoError(t, st.State.Err())

	// Same timestamp on the next tick: silent.
	_, emitted := w.check()
	assert.False(t, emitted)
	_, loads := f.counts()
	assert.Equal(t, 1, loads)
}

func TestFirstTickWithoutInitial_TriggersLoad(t *testing.T) {
	f := &fakeFile{mod: t0, cfg: cfg("A", "1.0.0")}
	w := newFakeWatcher(t, f, nil)

	ev, emitted := w.check()
	require.True(t, emitted)
	assert.Equal(t, EventReloaded, ev.Kind)
}

func TestTimestampBump_SameContent_Unchanged(t *testing.T) {
	f := &fakeFile{mod: t0, cfg: cfg("A", "1.0.0")}
	w := newFakeWatcher(t, f, nil)
	w.initial()

	f.set(t0.Add(time.Second), cfg("A", "1.0.0"), nil)
	ev, emitted := w.check()
	require.True(t, emitted)
	assert.Equal(t, EventUnchanged, ev.Kind)
	assert.Equal(t, Loaded, ev.Phase)
}

func TestInvalidEdit_RetainsLastGood(t *testing.T) {
	f := &fakeFile{mod: t0, cfg: cfg("A", "1.0.0")}
	w := newFakeWatcher(t, f, nil)
	w.initial()
	before := w.Current()

	reason := "environment must be one of: development, staging, production"
	f.set(t0.Add(time.Second), nil, validationErr(reason))
	ev, emitted := w.check()
	require.True(t, emitted)

	assert.Equal(t, EventReloadFailed, ev.Kind)
	assert.Equal(t, Degraded, ev.Phase)
	assert.Equal(t, reason, ev.Reason())
	assert.True(t, ev.Config.Equal(before), "event should carry the retained config")

	st := w.Status()
	assert.Equal(t, Degraded, st.State.Phase())
	assert.True(t, st.State.Config().Equal(before))
	assert.ErrorIs(t, st.State.Err(), config.ErrValidationFailure)
	assert.True(t, st.LastModified.Equal(t0.Add(time.Second)), "timestamp advances even when the load fails")

	// No retry until the file changes again.
	_, emitted = w.check()
	assert.False(t, emitted)

	// Fixing the file recovers to Loaded.
	f.set(t0.Add(2*time.Second), cfg("A", "2.0.0"), nil)
	ev, _ = w.check()
	assert.Equal(t, EventReloaded, ev.Kind)
	assert.Equal(t, Loaded, w.Status().State.Phase())
	assert.NoError(t, w.Status().State.Err())
}

func TestFailureBeforeAnySuccess_StaysUninitialized(t *testing.T) {
	f := &fakeFile{mod: t0, loadErr: &config.Error{Kind: config.KindParseFailure, Path: "test.json", Err: errors.New("bad json")}}
	w := newFakeWatcher(t, f, nil)

	ev := w.initial()
	assert.Equal(t, EventReloadFailed, ev.Kind)
	assert.Equal(t, Uninitialized, ev.Phase)
	assert.Nil(t, ev.Config)

	st := w.Status()
	assert.Equal(t, Uninitialized, st.State.Phase())
	assert.Nil(t, st.State.Config())
	assert.ErrorIs(t, st.State.Err(), config.ErrParseFailure)
}

func TestProbeError_LeavesStateAlone(t *testing.T) {
	f := &fakeFile{mod: t0, cfg: cfg("A", "1.0.0")}
	w := newFakeWatcher(t, f, nil)
	w.initial()

	f.mu.Lock()
	f.probeErr = &config.Error{Kind: config.KindMetadataUnavailable, Path: "test.json", Err: os.ErrNotExist}
	f.mu.Unlock()

	ev, emitted := w.check()
	require.True(t, emitted)
	assert.Equal(t, EventProbeError, ev.Kind)
	assert.Equal(t, Loaded, ev.Phase)
	assert.ErrorIs(t, ev.Err, config.ErrMetadataUnavailable)

	st := w.Status()
	assert.Equal(t, Loaded, st.State.Phase())
	assert.True(t, st.LastModified.Equal(t0))
	_, loads := f.counts()
	assert.Equal(t, 1, loads, "a probe failure must not trigger a load")
}

func TestInitial_ProbeFails_StillLoads(t *testing.T) {
	f := &fakeFile{
		probeErr: errors.New("stat failed"),
		loadErr:  &config.Error{Kind: config.KindFileNotFound, Path: "test.json"},
	}
	w := newFakeWatcher(t, f, nil)

	ev := w.initial()
	assert.Equal(t, EventReloadFailed, ev.Kind)
	assert.ErrorIs(t, ev.Err, config.ErrFileNotFound)
	assert.True(t, w.Status().LastModified.IsZero())
}

func TestLoadTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	w, err := New("slow.json", Options{Interval: time.Hour, LoadTimeout: 20 * time.Millisecond})
	require.NoError(t, err)
	w.probe = func(string) (time.Time, error) { return t0, nil }
	w.load = func(string) (*config.Config, error) {
		<-release
		return cfg("A", "1.0.0"), nil
	}

	ev := w.initial()
	assert.Equal(t, EventReloadFailed, ev.Kind)
	assert.ErrorIs(t, ev.Err, config.ErrTimeout)
	assert.Equal(t, Uninitialized, w.Status().State.Phase())
}

func TestReturnedConfigsAreCopies(t *testing.T) {
	f := &fakeFile{mod: t0, cfg: cfg("A", "1.0.0")}
	w := newFakeWatcher(t, f, nil)
	ev := w.initial()

	ev.Config.AppName = "mutated"
	c := w.Current()
	c.Features["x"] = true

	assert.Equal(t, "A", w.Current().AppName)
	assert.Empty(t, w.Current().Features)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	f := &fakeFile{mod: t0, cfg: cfg("A", "1.0.0")}
	w := newFakeWatcher(t, f, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Run(ctx)

	probes, loads := f.counts()
	assert.Zero(t, probes)
	assert.Zero(t, loads)
}

func TestRun_CancelDuringWait(t *testing.T) {
	f := &fakeFile{mod: t0, cfg: cfg("A", "1.0.0")}
	rec := newRecorder()
	w := newFakeWatcher(t, f, rec)
	w.interval = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	// Initial load has happened; the loop is now waiting for the first tick.
	assert.Equal(t, EventReloaded, rec.wait(t).Kind)
	probesAtCancel, _ := f.counts()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	// At most the cycle in flight at cancel time may have run.
	probes, loads := f.counts()
	assert.LessOrEqual(t, probes, probesAtCancel+1)
	assert.Equal(t, 1, loads)

	time.Sleep(120 * time.Millisecond)
	probesLater, _ := f.counts()
	assert.Equal(t, probes, probesLater, "no probe may run after Run returns")
}

func TestRun_DetectsEdits(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "app.json")
	// Write via rename so the loop never observes a half-written file.
	write := func(body string, mod time.Time) {
		tmp := filepath.Join(dir, "app.json.tmp")
		require.NoError(t, os.WriteFile(tmp, []byte(body), 0o600))
		require.NoError(t, os.Chtimes(tmp, mod, mod))
		require.NoError(t, os.Rename(tmp, p))
	}
	write(`{"app_name":"A","version":"1.0.0"}`, t0)

	rec := newRecorder()
	w, err := New(p, Options{Interval: 10 * time.Millisecond, OnEvent: rec.handle})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	first := rec.wait(t)
	require.Equal(t, EventReloaded, first.Kind)
	assert.Equal(t, "development", first.Config.Environment)

	write(`{"app_name":"A","version":"1.1.0"}`, t0.Add(time.Minute))
	ev := rec.wait(t)
	assert.Equal(t, EventReloaded, ev.Kind)
	assert.Equal(t, "1.1.0", ev.Config.Version)
}

// TestScenario walks the documented edit sequence end to end against real
// files, driving one cycle per edit.
func TestScenario(t *testing.T) {
	p := filepath.Join(t.TempDir(), "app.json")
	mod := t0
	write := func(body string) {
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
		mod = mod.Add(time.Second)
		require.NoError(t, os.Chtimes(p, mod, mod))
	}

	w, err := New(p, Options{Interval: time.Hour})
	require.NoError(t, err)

	write(`{"app_name":"A","version":"1.0.0"}`)
	ev := w.initial()
	require.Equal(t, EventReloaded, ev.Kind)
	assert.Equal(t, "development", ev.Config.Environment)
	assert.Empty(t, ev.Config.Features)
	first := w.Current()

	write(`{"app_name":"A","version":"1.0.0","environment":"bogus"}`)
	ev, _ = w.check()
	assert.Equal(t, EventReloadFailed, ev.Kind)
	assert.Equal(t, "environment must be one of: development, staging, production", ev.Reason())
	assert.True(t, w.Current().Equal(first))

	write(`{"app_name":"","version":"2.0.0"}`)
	ev, _ = w.check()
	assert.Equal(t, EventReloadFailed, ev.Kind)
	assert.Equal(t, "app_name cannot be empty", ev.Reason())
	assert.True(t, w.Current().Equal(first))

	write(`{"app_name":"A","version":"2.0.0"}`)
	ev, _ = w.check()
	assert.Equal(t, EventReloaded, ev.Kind)
	assert.Equal(t, "2.0.0", w.Current().Version)
	assert.Equal(t, Loaded, w.Status().State.Phase())
}

func TestEvent_JSON(t *testing.T) {
	ev := Event{
		Kind:  EventReloadFailed,
		Path:  "app.json",
		At:    t0,
		Phase: Degraded,
		Err:   validationErr("app_name cannot be empty"),
		Took:  1500 * time.Microsecond,
	}
	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "reload_failed", m["kind"])
	assert.Equal(t, "degraded", m["phase"])
	assert.Equal(t, "validation_failure", m["error_kind"])
	assert.Equal(t, "app_name cannot be empty", m["reason"])
	assert.Equal(t, 1.5, m["took_ms"])
	assert.Equal(t, "2024-05-01T12:00:00Z", m["at"])
	assert.NotContains(t, m, "config")
}

func TestFanout(t *testing.T) {
	var got []string
	h := Fanout(
		func(Event) { got = append(got, "a") },
		nil,
		func(Event) { got = append(got, "b") },
	)
	h(Event{Kind: EventUnchanged})
	assert.Equal(t, []string{"a", "b"}, got)
}

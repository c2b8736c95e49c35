package watcher

import (
	"time"

	"github.com/obsidianstack/confwatch/internal/config"
)

// Phase is the tag of State.
type Phase int

const (
	// Uninitialized: no configuration has loaded successfully yet.
	Uninitialized Phase = iota
	// Loaded: the most recent load succeeded.
	Loaded
	// Degraded: the most recent load failed; the last good config is retained.
	Degraded
)

func (p Phase) String() string {
	switch p {
	case Uninitialized:
		return "uninitialized"
	case Loaded:
		return "loaded"
	case Degraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// State is the retained watcher state. The zero value is Uninitialized.
//
// Loaded and Degraded always carry a config; only a successful load
// produces a new one, and a failure keeps whatever was retained.
type State struct {
	phase  Phase
	config *config.Config
	err    error
}

// loadedState is the state after a successful load of cfg.
func loadedState(cfg *config.Config) State {
	return State{phase: Loaded, config: cfg}
}

// failed returns the state after a failed load. A retained config moves the
// watcher to Degraded; without one it stays Uninitialized and records err.
func (s State) failed(err error) State {
	if s.config == nil {
		return State{phase: Uninitialized, err: err}
	}
	return State{phase: Degraded, config: s.config, err: err}
}

// Phase returns the state tag.
func (s State) Phase() Phase { return s.phase }

// Config returns the last validated configuration, or nil while Uninitialized.
func (s State) Config() *config.Config { return s.config }

// Err returns the most recent load failure, nil in the Loaded phase.
func (s State) Err() error { return s.err }

// Status is a point-in-time view of a Watcher for readers outside the loop.
type Status struct {
	Path     string
	Interval time.Duration
	State    State

	// LastModified is the last successfully probed modification time; zero
	// before the first successful probe.
	LastModified time.Time

	// LastChecked is when the most recent cycle ran; zero before the first.
	LastChecked time.Time
}

package watcher

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/obsidianstack/confwatch/internal/config"
)

// EventKind identifies what a watch cycle observed.
type EventKind int

const (
	// EventReloaded: a new, different configuration was loaded (or the first one).
	EventReloaded EventKind = iota + 1
	// EventUnchanged: the file was modified but its validated content is identical.
	EventUnchanged
	// EventReloadFailed: a detected change could not be loaded or validated.
	EventReloadFailed
	// EventProbeError: the modification time could not be read.
	EventProbeError
)

func (k EventKind) String() string {
	switch k {
	case EventReloaded:
		return "reloaded"
	case EventUnchanged:
		return "unchanged"
	case EventReloadFailed:
		return "reload_failed"
	case EventProbeError:
		return "probe_error"
	default:
		return "unknown"
	}
}

// Event is emitted by the watch loop for every cycle that is not a silent
// no-op.
type Event struct {
	Kind EventKind
	Path string
	At   time.Time

	// Phase is the watcher phase after the event was applied.
	Phase Phase

	// Config is the newly loaded config for Reloaded and Unchanged, and the
	// retained config (possibly nil) for ReloadFailed and ProbeError.
	Config *config.Config

	// Err is set for ReloadFailed and ProbeError.
	Err error

	// Took is how long the load took; zero for ProbeError.
	Took time.Duration
}

// Reason returns a short description of Err suitable for display: the
// validation message for validation failures, the cause otherwise.
func (e Event) Reason() string {
	if e.Err == nil {
		return ""
	}
	var ce *config.Error
	if errors.As(e.Err, &ce) {
		if d := ce.Detail(); d != "" {
			return d
		}
	}
	return e.Err.Error()
}

type eventJSON struct {
	Kind      string         `json:"kind"`
	Path      string         `json:"path"`
	At        string         `json:"at"` // RFC3339Nano
	Phase     string         `json:"phase"`
	ErrorKind string         `json:"error_kind,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	TookMs    float64        `json:"took_ms,omitempty"`
	Config    *config.Config `json:"config,omitempty"`
}

// MarshalJSON renders the event in the shape served by the HTTP API and the
// WebSocket stream.
func (e Event) MarshalJSON() ([]byte, error) {
	out := eventJSON{
		Kind:   e.Kind.String(),
		Path:   e.Path,
		At:     e.At.UTC().Format(time.RFC3339Nano),
		Phase:  e.Phase.String(),
		Reason: e.Reason(),
		TookMs: float64(e.Took) / float64(time.Millisecond),
		Config: e.Config,
	}
	if k := config.KindOf(e.Err); k != 0 {
		out.ErrorKind = k.String()
	}
	return json.Marshal(out)
}

// Handler receives events synchronously from the watch loop. It must not
// block for long: the next cycle waits for it to return.
type Handler func(Event)

// Fanout returns a Handler that calls each non-nil handler in order.
func Fanout(handlers ...Handler) Handler {
	return func(ev Event) {
		for _, h := range handlers {
			if h != nil {
				h(ev)
			}
		}
	}
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/obsidianstack/confwatch/internal/watcher"
)

// Webhook types accepted by New.
const (
	TypeSlack = "slack"
	TypeTeams = "teams"
	TypeHTTP  = "http"
)

// DefaultQueueSize is the number of undelivered events buffered before the
// oldest is dropped.
const DefaultQueueSize = 64

// Notifier posts reload outcomes to a webhook. Notify only enqueues; delivery
// happens on the Run goroutine so the watch loop is never held up by the
// network.
type Notifier struct {
	typ    string
	url    string
	client *http.Client
	queue  chan watcher.Event

	dropped atomic.Uint64
}

// New creates a Notifier for the given webhook type and URL.
func New(typ, url string) (*Notifier, error) {
	switch typ {
	case TypeSlack, TypeTeams, TypeHTTP:
	default:
		return nil, fmt.Errorf("notify: unknown webhook type %q (want slack, teams or http)", typ)
	}
	if url == "" {
		return nil, fmt.Errorf("notify: webhook url is required")
	}
	return &Notifier{
		typ:    typ,
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		queue:  make(chan watcher.Event, DefaultQueueSize),
	}, nil
}

// Notify queues ev for delivery if it is a Reloaded or ReloadFailed event.
// When the queue is full the oldest queued event is discarded. It is meant to
// be passed to watcher.Options.OnEvent.
func (n *Notifier) Notify(ev watcher.Event) {
	if ev.Kind != watcher.EventReloaded && ev.Kind != watcher.EventReloadFailed {
		return
	}
	for {
		select {
		case n.queue <- ev:
			return
		default:
		}
		select {
		case <-n.queue:
			n.dropped.Add(1)
		default:
		}
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (n *Notifier) Dropped() uint64 { return n.dropped.Load() }

// Run delivers queued events until ctx is cancelled. Events still queued at
// that point are discarded.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-n.queue:
			if err := n.deliver(ctx, ev); err != nil {
				slog.Error("notify: webhook delivery failed",
					"type", n.typ,
					"kind", ev.Kind.String(),
					"err", err,
				)
			} else {
				slog.Debug("notify: webhook delivered", "type", n.typ, "kind", ev.Kind.String())
			}
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, ev watcher.Event) error {
	var payload interface{}
	switch n.typ {
	case TypeSlack:
		payload = map[string]string{
			"text": fmt.Sprintf("*%s* %s", label(ev), summary(ev)),
		}
	case TypeTeams:
		payload = map[string]interface{}{
			"@type":      "MessageCard",
			"@context":   "http://schema.org/extensions",
			"themeColor": color(ev),
			"summary":    ev.Kind.String(),
			"title":      fmt.Sprintf("confwatch: %s", ev.Path),
			"text":       summary(ev),
		}
	default:
		payload = map[string]interface{}{"event": ev}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return n.post(ctx, body)
}

func (n *Notifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// summary is the one-line human description of ev.
func summary(ev watcher.Event) string {
	switch ev.Kind {
	case watcher.EventReloaded:
		if ev.Config != nil {
			return fmt.Sprintf("%s reloaded: %s %s (%s)",
				ev.Path, ev.Config.AppName, ev.Config.Version, ev.Config.Environment)
		}
		return fmt.Sprintf("%s reloaded", ev.Path)
	case watcher.EventReloadFailed:
		if ev.Config != nil {
			return fmt.Sprintf("%s reload failed, keeping %s %s: %s",
				ev.Path, ev.Config.AppName, ev.Config.Version, ev.Reason())
		}
		return fmt.Sprintf("%s reload failed, no valid configuration loaded: %s", ev.Path, ev.Reason())
	default:
		return fmt.Sprintf("%s %s", ev.Path, ev.Kind)
	}
}

func label(ev watcher.Event) string {
	if ev.Kind == watcher.EventReloadFailed {
		return "[FAILED]"
	}
	return "[RELOADED]"
}

func color(ev watcher.Event) string {
	if ev.Kind == watcher.EventReloadFailed {
		return "FF4F6A"
	}
	return "00D4FF"
}

package api

import (
	"github.com/obsidianstack/confwatch/internal/config"
	"github.com/obsidianstack/confwatch/internal/history"
)

// StatusResponse is the payload for GET /api/v1/health and the WebSocket
// "status" message.
type StatusResponse struct {
	Phase        string  `json:"phase"` // uninitialized | loaded | degraded
	Path         string  `json:"path"`
	IntervalSec  float64 `json:"interval_seconds"`
	LastModified string  `json:"last_modified,omitempty"` // RFC3339Nano
	LastChecked  string  `json:"last_checked,omitempty"`  // RFC3339Nano
	HasConfig    bool    `json:"has_config"`
	AppName      string  `json:"app_name,omitempty"`
	Version      string  `json:"version,omitempty"`
	Environment  string  `json:"environment,omitempty"`
	LastError    string  `json:"last_error,omitempty"`
	ErrorKind    string  `json:"error_kind,omitempty"`
	GeneratedAt  string  `json:"generated_at"` // RFC3339
}

// ConfigResponse is the payload for GET /api/v1/config.
type ConfigResponse struct {
	Phase  string         `json:"phase"`
	Config *config.Config `json:"config"`
}

// EventsResponse is the payload for GET /api/v1/events.
type EventsResponse struct {
	Events []history.Entry `json:"events"`
	Count  int             `json:"count"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}

package config

import (
	"errors"
	"fmt"
)

// Kind classifies a load or probe failure. Every kind is recoverable: the
// watcher reports it and keeps the last valid configuration.
type Kind int

const (
	KindFileNotFound Kind = iota + 1
	KindMetadataUnavailable
	KindReadFailure
	KindParseFailure
	KindValidationFailure
	KindTimeout
)

// Sentinels matched by errors.Is against an *Error of the same Kind.
var (
	ErrFileNotFound        = errors.New("file not found")
	ErrMetadataUnavailable = errors.New("metadata unavailable")
	ErrReadFailure         = errors.New("read failure")
	ErrParseFailure        = errors.New("parse failure")
	ErrValidationFailure   = errors.New("validation failure")
	ErrTimeout             = errors.New("load timed out")
)

var kindSentinels = map[Kind]error{
	KindFileNotFound:        ErrFileNotFound,
	KindMetadataUnavailable: ErrMetadataUnavailable,
	KindReadFailure:         ErrReadFailure,
	KindParseFailure:        ErrParseFailure,
	KindValidationFailure:   ErrValidationFailure,
	KindTimeout:             ErrTimeout,
}

// String returns the snake_case name used in logs, metrics labels and JSON.
func (k Kind) String() string {
	switch k {
	case KindFileNotFound:
		return "file_not_found"
	case KindMetadataUnavailable:
		return "metadata_unavailable"
	case KindReadFailure:
		return "read_failure"
	case KindParseFailure:
		return "parse_failure"
	case KindValidationFailure:
		return "validation_failure"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is the typed failure returned by Load and by the modification probe.
// It carries the file path and either the underlying cause (Err) or a
// human-readable Reason, or both.
type Error struct {
	Kind   Kind
	Path   string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	var what string
	switch e.Kind {
	case KindFileNotFound:
		what = "configuration file not found"
	case KindMetadataUnavailable:
		what = "cannot access file metadata"
	case KindReadFailure:
		what = "failed to read configuration file"
	case KindParseFailure:
		what = "invalid configuration syntax"
	case KindValidationFailure:
		what = "configuration validation failed"
	case KindTimeout:
		what = "configuration load timed out"
	default:
		what = "configuration error"
	}
	if d := e.Detail(); d != "" {
		return fmt.Sprintf("config %s: %s: %s", e.Path, what, d)
	}
	return fmt.Sprintf("config %s: %s", e.Path, what)
}

// Detail returns Reason when set, otherwise the cause's message.
func (e *Error) Detail() string {
	if e.Reason != "" {
		return e.Reason
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	s, ok := kindSentinels[e.Kind]
	return ok && target == s
}

// KindOf returns the Kind of the first *Error in err's chain, or zero.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return 0
}

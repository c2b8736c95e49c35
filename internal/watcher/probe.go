package watcher

import (
	"os"
	"time"

	"github.com/obsidianstack/confwatch/internal/config"
)

// ModTime returns the last-modification time of path. A missing file or
// unreadable metadata is reported as a config.KindMetadataUnavailable error.
func ModTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, &config.Error{Kind: config.KindMetadataUnavailable, Path: path, Err: err}
	}
	return info.ModTime(), nil
}

// Changed reports whether a reload is warranted. The first observation
// (previous == nil) always is; afterwards only a strictly later timestamp
// counts. Equal timestamps on coarse-resolution filesystems read as unchanged.
func Changed(previous *time.Time, current time.Time) bool {
	if previous == nil {
		return true
	}
	return current.After(*previous)
}

//go:build unix

package config

import (
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"
)

func TestLoad_NotRegularFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.json")
	if err := syscall.Mkfifo(p, 0o600); err != nil {
		t.Skipf("mkfifo unsupported: %v", err)
	}

	// Opening a FIFO with no writer blocks; Load must refuse before that.
	done := make(chan error, 1)
	go func() {
		_, err := Load(p)
		done <- err
	}()

	select {
	case err := <-done:
		if KindOf(err) != KindReadFailure {
			t.Fatalf("kind: got %v, want read_failure (err %v)", KindOf(err), err)
		}
		if !strings.Contains(err.Error(), "not a regular file") {
			t.Errorf("error %q should say the path is not a regular file", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Load blocked on a FIFO")
	}
}

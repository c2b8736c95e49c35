package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/obsidianstack/confwatch/internal/watcher"
)

// DefaultSize is the number of events kept when New is given a non-positive size.
const DefaultSize = 100

// Entry is an event together with the time it was recorded.
type Entry struct {
	Event      watcher.Event `json:"event"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// Store is a thread-safe, bounded, in-memory log of recent watcher events.
// When full, the oldest entry is dropped. A background goroutine (Run)
// evicts entries older than the TTL.
type Store struct {
	mu   sync.RWMutex
	data []Entry // oldest first
	size int
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// New creates a Store holding at most size entries for at most ttl.
// A zero ttl keeps entries until they are pushed out by newer ones.
func New(size int, ttl time.Duration) *Store {
	if size <= 0 {
		size = DefaultSize
	}
	return &Store{
		data: make([]Entry, 0, size),
		size: size,
		ttl:  ttl,
		now:  time.Now,
	}
}

// Put records ev. It is meant to be passed to watcher.Options.OnEvent.
func (s *Store) Put(ev watcher.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.data) == s.size {
		copy(s.data, s.data[1:])
		s.data = s.data[:len(s.data)-1]
	}
	s.data = append(s.data, Entry{Event: ev, RecordedAt: s.now()})
}

// List returns live entries, oldest first. Entries past the TTL that have
// not yet been evicted are excluded.
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.data))
	for _, e := range s.data {
		if s.live(e, s.now()) {
			out = append(out, e)
		}
	}
	return out
}

// Last returns the most recent entry, if any.
func (s *Store) Last() (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.data) == 0 {
		return Entry{}, false
	}
	return s.data[len(s.data)-1], true
}

// Count returns the number of entries currently held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}


// Evict removes entries older than now minus TTL and returns how many were
// removed.
func (s *Store) Evict(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.data[:0]
	for _, e := range s.data {
		if s.live(e, now) {
			kept = append(kept, e)
		}
	}
	removed := len(s.data) - len(kept)
	clear(s.data[len(kept):])
	s.data = kept
	return removed
}

func (s *Store) live(e Entry, now time.Time) bool {
	return s.ttl <= 0 || e.RecordedAt.After(now.Add(-s.ttl))
}

// Run starts the background TTL eviction loop. It ticks at half the TTL
// (minimum 1 second). Run blocks until ctx is cancelled; with no TTL it
// just waits for cancellation.
func (s *Store) Run(ctx context.Context) {
	if s.ttl <= 0 {
		<-ctx.Done()
		return
	}
	interval := max(s.ttl/2, time.Second)
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("history: evicted stale events", "count", n)
			}
		}
	}
}

// Package history keeps a bounded, in-memory log of recent watcher events
// for the status API. Entries are dropped oldest-first when the log is full
// and evicted by Run once they outlive the TTL.
package history

package userstate

import (
	"bytes"
	"encoding/json"
	"log"
	"sync"
)

// Buffer collects unsent local state mutations keyed by state name. It is an
// explicit per-engine object rather than a package-level singleton so engines
// stay independently testable.
type Buffer struct {
	mu      sync.Mutex
	changes map[string]json.RawMessage
}

func NewBuffer() *Buffer {
	return &Buffer{changes: make(map[string]json.RawMessage)}
}

// Add records the latest value for key, replacing any earlier unsent value.
// Last write wins per key, matching the server's apply semantics.
func (b *Buffer) Add(key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		log.Printf("[ERROR] failed to buffer state change for %q: %v", key, err)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.changes[key] = raw
}

// Snapshot returns a copy of the current unsent changes.
func (b *Buffer) Snapshot() map[string]json.RawMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]json.RawMessage, len(b.changes))
	for k, v := range b.changes {
		out[k] = v
	}
	return out
}

// Ack drops the sent changes from the buffer. A key whose value changed
// again while the push was in flight is kept for the next push.
func (b *Buffer) Ack(sent map[string]json.RawMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, v := range sent {
		if cur, ok := b.changes[k]; ok && bytes.Equal(cur, v) {
			delete(b.changes, k)
		}
	}
}

// Len reports the number of unsent changes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.changes)
}

package reporter

import (
	"log/slog"
	"sync"
)

// Reporter holds the latest user-visible sync advisory for the UI shell to
// display. It is nil-safe: a nil receiver drops notifications.
type Reporter struct {
	mu   sync.Mutex
	last string
}

func New() *Reporter {
	return &Reporter{}
}

// Notify records an advisory message ("could not refresh"). An empty message
// clears the advisory.
func (r *Reporter) Notify(msg string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.last = msg
	r.mu.Unlock()
	if msg != "" {
		slog.Warn("sync advisory", "msg", msg)
	}
}

// Last returns the most recent advisory, empty when the last sync succeeded.
func (r *Reporter) Last() string {
	if r == nil {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

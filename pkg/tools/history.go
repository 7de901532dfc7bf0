package tools

import "sync"

// DefaultHistorySize bounds the retained tool results.
const DefaultHistorySize = 10

// History is a bounded FIFO record of recent tool results. When full, the
// oldest entry is dropped.
type History struct {
	mu      sync.Mutex
	entries []Result
	max     int
}

// NewHistory creates a history retaining at most max entries. A max of
// zero or less uses DefaultHistorySize.
func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultHistorySize
	}
	return &History{max: max}
}

// Append records a result, evicting the oldest entry when at capacity.
func (h *History) Append(r Result) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, r)
	if len(h.entries) > h.max {
		h.entries = h.entries[len(h.entries)-h.max:]
	}
}

// All returns a copy of the retained results, oldest first.
func (h *History) All() []Result {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Result, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of retained results.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

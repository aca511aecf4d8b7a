package collab

import (
	"sync"
	"time"
)

// DefaultMaxVersions bounds per-cell history when no limit is configured.
const DefaultMaxVersions = 10

// Version is one entry in a cell's edit history.
type Version struct {
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	User      User      `json:"user"`
	// Restored marks entries created by restoring an older version;
	// a restore is itself a new version, not a rollback.
	Restored bool `json:"restored,omitempty"`
}

// History stores bounded per-cell version sequences keyed by
// "{rowID}:{field}". Eviction is FIFO: the oldest entry goes first.
type History struct {
	mu      sync.Mutex
	max     int
	entries map[string][]Version
}

// NewHistory creates a history bounded to max entries per cell.
// Non-positive max uses DefaultMaxVersions.
func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultMaxVersions
	}
	return &History{max: max, entries: make(map[string][]Version)}
}

// Key derives the storage key for a cell.
func Key(rowID, field string) string {
	return rowID + ":" + field
}

// Add appends a version, evicting the oldest entries beyond the bound.
func (h *History) Add(key string, v Version) {
	h.mu.Lock()
	defer h.mu.Unlock()

	seq := append(h.entries[key], v)
	if len(seq) > h.max {
		seq = seq[len(seq)-h.max:]
	}
	h.entries[key] = seq
}

// Get returns a copy of the cell's versions in chronological order.
func (h *History) Get(key string) []Version {
	h.mu.Lock()
	defer h.mu.Unlock()

	seq := h.entries[key]
	if len(seq) == 0 {
		return nil
	}
	out := make([]Version, len(seq))
	copy(out, seq)
	return out
}

// At returns the version at index, false if out of range.
func (h *History) At(key string, index int) (Version, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	seq := h.entries[key]
	if index < 0 || index >= len(seq) {
		return Version{}, false
	}
	return seq[index], true
}

// Len returns the number of stored versions for a cell.
func (h *History) Len(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries[key])
}

// Max returns the per-cell bound.
func (h *History) Max() int { return h.max }

// Clear drops all history. Called on table teardown.
func (h *History) Clear() {
	h.mu.Lock()
	h.entries = make(map[string][]Version)
	h.mu.Unlock()
}

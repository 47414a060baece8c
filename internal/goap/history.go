package goap

import (
	"sync"
	"time"
)

// EntryKind classifies a history entry.
type EntryKind string

const (
	EntryStep        EntryKind = "step"
	EntryPlanUpdated EntryKind = "plan_updated"
	EntryCompleted   EntryKind = "completed"
	EntryAborted     EntryKind = "aborted"
	EntryStopped     EntryKind = "stopped"
)

// HistoryEntry records one event of an execution loop.
//
// Step indexes refer to the plan that was current when the entry was
// written. After a plan_updated entry indexes restart at 0.
type HistoryEntry struct {
	Kind   EntryKind `json:"kind"`
	Step   int       `json:"step"`
	Action string    `json:"action,omitempty"`
	// Output holds the executor result of a successful step.
	Output *Result `json:"output,omitempty"`
	Error  string  `json:"error,omitempty"`
	// Plan holds the new action names of a plan_updated entry.
	Plan      []string  `json:"plan,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Failed reports whether the entry recorded an error.
func (e HistoryEntry) Failed() bool {
	return e.Error != ""
}

// History is an append-only log of entries.
type History struct {
	mu      sync.RWMutex
	entries []HistoryEntry
}

func (h *History) append(entry HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, entry)
}

// Entries returns a copy of all entries in order.
func (h *History) Entries() []HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Last returns the most recent entry.
func (h *History) Last() (HistoryEntry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.entries) == 0 {
		return HistoryEntry{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

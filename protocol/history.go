package protocol

import (
	"sync"
	"time"

	"github.com/xbill82/kuzzle-sdk-go/types"
)

// DefaultHistorySize bounds the request history kept by a protocol instance.
const DefaultHistorySize = 100

// History is a bounded record of transmitted requests, kept for diagnostics.
// Safe for concurrent use.
type History struct {
	mu      sync.Mutex
	entries []HistoryEntry
	size    int
}

// NewHistory creates a history holding at most size entries; size <= 0 falls
// back to DefaultHistorySize.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{size: size}
}

// Add records a transmitted request, evicting the oldest entry when full.
func (h *History) Add(req *types.KuzzleRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, HistoryEntry{
		RequestID:  req.RequestID,
		Controller: req.Controller,
		Action:     req.Action,
		SentAt:     time.Now(),
	})
	if len(h.entries) > h.size {
		h.entries = h.entries[len(h.entries)-h.size:]
	}
}

// Entries returns a copy of the history, most recent first.
func (h *History) Entries() []HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]HistoryEntry, len(h.entries))
	for i, e := range h.entries {
		out[len(h.entries)-1-i] = e
	}
	return out
}

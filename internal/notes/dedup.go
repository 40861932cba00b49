// Package notes implements the message-to-note pipeline: classification,
// synthesis, relatedness linking, persistence, and reply formatting.
package notes

import (
	"log/slog"
	"sync"
)

// DefaultDedupCapacity bounds the processed-id set when no capacity is
// configured.
const DefaultDedupCapacity = 50

// Deduplicator tracks which message IDs are in flight or recently completed.
// It is a bounded FIFO set: when an insertion pushes the size past capacity,
// the oldest-inserted ID is evicted. Re-checking an ID does not refresh its
// position (FIFO, not LRU). State is process-local; duplicates delivered
// across a restart are not suppressed.
type Deduplicator struct {
	mu       sync.Mutex
	capacity int
	seen     map[string]struct{}
	order    []string // insertion order, oldest first
	logger   *slog.Logger
}

func NewDeduplicator(capacity int, logger *slog.Logger) *Deduplicator {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Deduplicator{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
		logger:   logger,
	}
}

// ShouldProcess records id and returns true if it has not been seen;
// returns false for an already-recorded id. Check and record happen under
// one lock so overlapping handlers cannot both claim the same message.
func (d *Deduplicator) ShouldProcess(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		d.logger.Info("message already processed, skipping", "message_id", id)
		return false
	}

	d.seen[id] = struct{}{}
	d.order = append(d.order, id)

	if len(d.order) > d.capacity {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.seen, oldest)
	}
	return true
}

// Release forgets id so a redelivery can be processed again. Called after a
// failed pipeline pass.
func (d *Deduplicator) Release(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; !ok {
		return
	}
	delete(d.seen, id)
	for i, v := range d.order {
		if v == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// Len reports how many IDs are currently recorded.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

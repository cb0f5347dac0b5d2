// Package dedupe remembers delivered ids so retries and republished alert
// events reach a sink at most once.
package dedupe

import (
	"context"
	"sync"
	"time"
)

const defaultMaxSize = 50000

// Deduper records seen ids.
type Deduper interface {
	// SeenAndRecord reports whether id was already recorded and records it
	// if not. The check and the write are atomic.
	SeenAndRecord(ctx context.Context, id string) bool
	// Unrecord forgets id so a failed delivery can be retried.
	Unrecord(ctx context.Context, id string)
	Size() int64
}

type entry struct {
	id string
	at time.Time
}

// ringDeduper keeps ids in insertion order in a ring buffer, evicting the
// oldest when full. Forgotten slots are tombstoned and skipped on eviction.
type ringDeduper struct {
	mu      sync.Mutex
	seen    map[string]int // id -> ring slot
	ring    []entry
	head    int // next slot to write
	count   int // occupied slots, tombstones included
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

// NewInMemoryDeduper creates a deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &ringDeduper{
		maxSize: defaultMaxSize,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]int)
	if d.maxSize > 0 {
		d.ring = make([]entry, d.maxSize)
	}
	return d
}

func (d *ringDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if slot, ok := d.seen[id]; ok {
		if d.ttl == 0 || now.Sub(d.at(slot)) < d.ttl {
			return true
		}
		d.forget(id, slot)
	}

	if d.maxSize <= 0 {
		d.ring = append(d.ring, entry{id: id, at: now})
		d.seen[id] = len(d.ring) - 1
		return false
	}

	if d.count == d.maxSize {
		old := d.ring[d.head]
		if old.id != "" {
			delete(d.seen, old.id)
		}
		d.count--
	}
	d.ring[d.head] = entry{id: id, at: now}
	d.seen[id] = d.head
	d.head = (d.head + 1) % d.maxSize
	d.count++
	return false
}

func (d *ringDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if slot, ok := d.seen[id]; ok {
		d.forget(id, slot)
	}
}

func (d *ringDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}

func (d *ringDeduper) at(slot int) time.Time { return d.ring[slot].at }

// forget drops id from the index and tombstones its slot.
func (d *ringDeduper) forget(id string, slot int) {
	delete(d.seen, id)
	d.ring[slot] = entry{}
}

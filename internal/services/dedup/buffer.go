package dedup

import (
	"sync"
	"time"

	"cattle-worker-go/internal/vision"
)

type bufferEntry struct {
	embedding []float32
	at        time.Time
}

// Buffer remembers the embeddings one camera registered recently. It is
// bounded by capacity (oldest evicted first); entries older than ttl are
// ignored on lookup but stay until evicted.
type Buffer struct {
	capacity int
	ttl      time.Duration

	mu      sync.Mutex
	entries []bufferEntry
}

func NewBuffer(capacity int, ttl time.Duration) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		capacity: capacity,
		ttl:      ttl,
		entries:  make([]bufferEntry, 0, capacity),
	}
}

// Append records an embedding registered at the given time.
func (b *Buffer) Append(embedding []float32, at time.Time) {
	e := bufferEntry{embedding: append([]float32(nil), embedding...), at: at}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) >= b.capacity {
		n := copy(b.entries, b.entries[len(b.entries)-b.capacity+1:])
		b.entries = b.entries[:n]
	}
	b.entries = append(b.entries, e)
}

// Match returns the best similarity among live entries reaching threshold.
// An entry is live while now - at <= ttl.
func (b *Buffer) Match(query []float32, now time.Time, threshold float32) (float32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var (
		best  float32
		found bool
	)
	for _, e := range b.entries {
		if now.Sub(e.at) > b.ttl {
			continue
		}
		sim := vision.Dot(e.embedding, query)
		if sim >= threshold && (!found || sim > best) {
			best, found = sim, true
		}
	}
	return best, found
}

// Contains reports whether a live entry is at least threshold-similar to query.
func (b *Buffer) Contains(query []float32, now time.Time, threshold float32) bool {
	_, ok := b.Match(query, now, threshold)
	return ok
}

// Len counts stored entries, expired ones included.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Live counts entries still inside the TTL window.
func (b *Buffer) Live(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, e := range b.entries {
		if now.Sub(e.at) <= b.ttl {
			n++
		}
	}
	return n
}

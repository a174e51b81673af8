package identity

import (
	"sort"
	"sync"

	"cattle-worker-go/internal/models"
	"cattle-worker-go/internal/vision"
)

type entry struct {
	id          int64
	embedding   []float32
	description string
}

// Bank is the in-memory name -> record map for one {tenant, category}.
// Every stored embedding is unit-norm, so similarity is a dot product.
//
// Ties on the best similarity resolve to the lexicographically smallest name,
// which keeps Identify independent of map iteration order.
type Bank struct {
	category     models.Category
	threshold    float32
	unknownLabel string

	mu      sync.RWMutex
	entries map[string]entry
}

func NewBank(category models.Category, threshold float32, unknownLabel string) *Bank {
	return &Bank{
		category:     category,
		threshold:    threshold,
		unknownLabel: unknownLabel,
		entries:      make(map[string]entry),
	}
}

func (b *Bank) Category() models.Category {
	return b.category
}

// Load replaces the whole mapping. The new map is built before the lock is
// taken, so readers see either the old or the new mapping.
func (b *Bank) Load(records []models.EntityRecord) {
	next := make(map[string]entry, len(records))
	for _, r := range records {
		next[r.Name] = entry{
			id:          r.ID,
			embedding:   copyVector(r.Embedding),
			description: r.Description,
		}
	}

	b.mu.Lock()
	b.entries = next
	b.mu.Unlock()
}

// Add inserts or overwrites one entry. The embedding is copied.
func (b *Bank) Add(id int64, name string, embedding []float32, description string) {
	e := entry{id: id, embedding: copyVector(embedding), description: description}

	b.mu.Lock()
	b.entries[name] = e
	b.mu.Unlock()
}

// Remove deletes name if present.
func (b *Bank) Remove(name string) {
	b.mu.Lock()
	delete(b.entries, name)
	b.mu.Unlock()
}

func (b *Bank) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Identify returns the best match when it reaches the threshold, otherwise the
// unknown sentinel carrying the best similarity (0 for an empty bank).
func (b *Bank) Identify(query []float32) models.IdentityMatch {
	b.mu.RLock()
	defer b.mu.RUnlock()

	name, best, ok := b.bestLocked(query)
	if !ok {
		return models.UnknownMatch(b.unknownLabel, 0)
	}
	if best < b.threshold {
		return models.UnknownMatch(b.unknownLabel, best)
	}

	e := b.entries[name]
	return models.IdentityMatch{
		Name:        name,
		EntityID:    e.id,
		Similarity:  best,
		IsKnown:     true,
		Description: e.description,
	}
}

// MaxSimilarity is the best score against the whole bank; ok is false when empty.
func (b *Bank) MaxSimilarity(query []float32) (float32, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, best, ok := b.bestLocked(query)
	return best, ok
}

// Records returns a snapshot sorted by name.
func (b *Bank) Records() []models.EntityRecord {
	b.mu.RLock()
	out := make([]models.EntityRecord, 0, len(b.entries))
	for name, e := range b.entries {
		out = append(out, models.EntityRecord{
			ID:          e.id,
			Name:        name,
			Embedding:   copyVector(e.embedding),
			Description: e.description,
			Category:    b.category,
		})
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (b *Bank) bestLocked(query []float32) (string, float32, bool) {
	var (
		bestName string
		bestSim  float32
		found    bool
	)
	for name, e := range b.entries {
		sim := vision.Dot(e.embedding, query)
		if !found || sim > bestSim || (sim == bestSim && name < bestName) {
			bestName, bestSim, found = name, sim, true
		}
	}
	return bestName, bestSim, found
}

func copyVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

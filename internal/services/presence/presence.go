package presence

import (
	"sync"
	"time"

	"cattle-worker-go/internal/models"
)

// Key identifies one entity across tenants.
type Key = models.EntityRef

const dayLayout = "2006-01-02"

// SeenToday keeps the last calendar day (local time) an entry movement was
// logged for each entity.
type SeenToday struct {
	now func() time.Time

	mu   sync.Mutex
	days map[Key]string
}

func NewSeenToday(now func() time.Time) *SeenToday {
	if now == nil {
		now = time.Now
	}
	return &SeenToday{now: now, days: make(map[Key]string)}
}

func (s *SeenToday) today() string {
	return s.now().Local().Format(dayLayout)
}

// Observe calls record when key has not been logged today and marks it on
// success. The lock is held across record so two cameras sighting the same
// entity log at most one movement. Returns whether record ran and succeeded.
func (s *SeenToday) Observe(key Key, record func() error) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := s.today()
	if s.days[key] == day {
		return false, nil
	}
	if err := record(); err != nil {
		return false, err
	}
	s.days[key] = day
	return true, nil
}

// Mark sets key as logged today without recording anything.
func (s *SeenToday) Mark(key Key) {
	s.mu.Lock()
	s.days[key] = s.today()
	s.mu.Unlock()
}

func (s *SeenToday) Seen(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.days[key] == s.today()
}

// Prune forgets every entity not seen today.
func (s *SeenToday) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := s.today()
	n := 0
	for k, d := range s.days {
		if d != day {
			delete(s.days, k)
			n++
		}
	}
	return n
}

// NoPhoto is the set of entities that still need a photo.
type NoPhoto struct {
	mu  sync.Mutex
	set map[Key]struct{}
}

func NewNoPhoto() *NoPhoto {
	return &NoPhoto{set: make(map[Key]struct{})}
}

// Load replaces the set.
func (n *NoPhoto) Load(keys []Key) {
	next := make(map[Key]struct{}, len(keys))
	for _, k := range keys {
		next[k] = struct{}{}
	}
	n.mu.Lock()
	n.set = next
	n.mu.Unlock()
}

func (n *NoPhoto) Needs(key Key) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.set[key]
	return ok
}

func (n *NoPhoto) Add(key Key) {
	n.mu.Lock()
	n.set[key] = struct{}{}
	n.mu.Unlock()
}

func (n *NoPhoto) Remove(key Key) {
	n.mu.Lock()
	delete(n.set, key)
	n.mu.Unlock()
}

func (n *NoPhoto) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.set)
}

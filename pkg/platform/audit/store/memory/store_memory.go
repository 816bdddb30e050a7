// Package memory keeps a bounded per-user audit trail in process memory.
package memory

import (
	"context"
	"sort"
	"sync"

	audit "verethfier/pkg/platform/audit"
)

// DefaultPerUserLimit bounds how many events are retained for one user.
const DefaultPerUserLimit = 500

type InMemoryStore struct {
	mu      sync.RWMutex
	events  map[string][]entry
	seq     uint64
	perUser int
}

type entry struct {
	seq   uint64
	event audit.Event
}

type Option func(*InMemoryStore)

// WithPerUserLimit keeps only the newest n events per user. n <= 0 keeps everything.
func WithPerUserLimit(n int) Option {
	return func(s *InMemoryStore) {
		s.perUser = n
	}
}

func NewInMemoryStore(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{events: make(map[string][]entry), perUser: DefaultPerUserLimit}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	trail := append(s.events[event.UserID], entry{seq: s.seq, event: event})
	if s.perUser > 0 && len(trail) > s.perUser {
		trail = append([]entry(nil), trail[len(trail)-s.perUser:]...)
	}
	s.events[event.UserID] = trail
	return nil
}

// ListByUser returns the user's events oldest first.
func (s *InMemoryStore) ListByUser(_ context.Context, userID string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	trail := s.events[userID]
	out := make([]audit.Event, 0, len(trail))
	for _, e := range trail {
		out = append(out, e.event)
	}
	return out, nil
}

// ListAll returns every retained event in append order.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []entry
	for _, trail := range s.events {
		all = append(all, trail...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })
	out := make([]audit.Event, 0, len(all))
	for _, e := range all {
		out = append(out, e.event)
	}
	return out, nil
}

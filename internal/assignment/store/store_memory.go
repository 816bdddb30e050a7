package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"verethfier/internal/assignment"
	"verethfier/pkg/platform/sentinel"
)

// InMemoryAssignmentStore keeps assignments in memory for tests and dev runs.
type InMemoryAssignmentStore struct {
	mu          sync.RWMutex
	assignments map[uuid.UUID]assignment.Assignment
}

func NewInMemory() *InMemoryAssignmentStore {
	return &InMemoryAssignmentStore{assignments: make(map[uuid.UUID]assignment.Assignment)}
}

func (s *InMemoryAssignmentStore) Create(_ context.Context, a *assignment.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assignments[a.ID]; ok {
		return fmt.Errorf("assignment %s exists: %w", a.ID, sentinel.ErrConflict)
	}
	s.assignments[a.ID] = *a
	return nil
}

func (s *InMemoryAssignmentStore) Update(_ context.Context, a *assignment.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.assignments[a.ID]
	if !ok {
		return fmt.Errorf("assignment not found: %w", sentinel.ErrNotFound)
	}
	if current.IsTerminal() {
		return fmt.Errorf("assignment is %s: %w", current.Status, sentinel.ErrInvalidState)
	}
	s.assignments[a.ID] = *a
	return nil
}

func (s *InMemoryAssignmentStore) FindByID(_ context.Context, id uuid.UUID) (*assignment.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assignments[id]
	if !ok {
		return nil, fmt.Errorf("assignment not found: %w", sentinel.ErrNotFound)
	}
	return &a, nil
}

func (s *InMemoryAssignmentStore) FindActive(_ context.Context, userID, guildID, roleID, ruleID string) (*assignment.Assignment, error) {
	matches := s.filter(func(a assignment.Assignment) bool {
		return a.Status == assignment.StatusActive &&
			a.UserID == userID && a.GuildID == guildID && a.RoleID == roleID && a.RuleID == ruleID
	})
	if len(matches) == 0 {
		return nil, fmt.Errorf("assignment not found: %w", sentinel.ErrNotFound)
	}
	return &matches[0], nil
}

func (s *InMemoryAssignmentStore) ListDue(_ context.Context, now time.Time, staleness time.Duration) ([]assignment.Assignment, error) {
	return s.filter(func(a assignment.Assignment) bool { return a.IsDue(now, staleness) }), nil
}

func (s *InMemoryAssignmentStore) ListActiveByUser(_ context.Context, userID string) ([]assignment.Assignment, error) {
	return s.filter(func(a assignment.Assignment) bool {
		return a.UserID == userID && a.Status == assignment.StatusActive
	}), nil
}

func (s *InMemoryAssignmentStore) ListActiveByRule(_ context.Context, ruleID string) ([]assignment.Assignment, error) {
	return s.filter(func(a assignment.Assignment) bool {
		return a.RuleID == ruleID && a.Status == assignment.StatusActive
	}), nil
}

func (s *InMemoryAssignmentStore) ListExpiredSince(_ context.Context, since time.Time) ([]assignment.Assignment, error) {
	return s.filter(func(a assignment.Assignment) bool {
		return a.Status == assignment.StatusExpired && !a.LastCheckedAt.Before(since)
	}), nil
}

func (s *InMemoryAssignmentStore) ListByUser(_ context.Context, userID string) ([]assignment.Assignment, error) {
	return s.filter(func(a assignment.Assignment) bool { return a.UserID == userID }), nil
}

// filter returns matches ordered by last check, oldest first.
func (s *InMemoryAssignmentStore) filter(keep func(assignment.Assignment) bool) []assignment.Assignment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]assignment.Assignment, 0)
	for _, a := range s.assignments {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastCheckedAt.Equal(out[j].LastCheckedAt) {
			return out[i].LastCheckedAt.Before(out[j].LastCheckedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"verethfier/internal/assignment"
	"verethfier/pkg/platform/sentinel"
)

type InMemoryAssignmentStoreSuite struct {
	suite.Suite
	store *InMemoryAssignmentStore
	ctx   context.Context
	now   time.Time
}

func TestInMemoryAssignmentStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryAssignmentStoreSuite))
}

func (s *InMemoryAssignmentStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.now = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
}

func (s *InMemoryAssignmentStoreSuite) seed(userID, ruleID string, lastChecked time.Time) *assignment.Assignment {
	a, err := assignment.NewActive(uuid.New(), userID, "guild-1", "role-"+ruleID, ruleID, "0xabc", lastChecked)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, a))
	return a
}

func (s *InMemoryAssignmentStoreSuite) TestCreateAndFind() {
	a := s.seed("user-1", "rule-1", s.now)

	got, err := s.store.FindByID(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(*a, *got)

	active, err := s.store.FindActive(s.ctx, "user-1", "guild-1", "role-rule-1", "rule-1")
	s.Require().NoError(err)
	s.Equal(a.ID, active.ID)

	s.ErrorIs(s.store.Create(s.ctx, a), sentinel.ErrConflict)

	_, err = s.store.FindByID(s.ctx, uuid.New())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryAssignmentStoreSuite) TestUpdateRefusesTerminalRows() {
	a := s.seed("user-1", "rule-1", s.now)
	s.Require().NoError(a.Revoke(s.now))
	s.Require().NoError(s.store.Update(s.ctx, a))

	// a stale copy still thinks the row is active
	stale := *a
	stale.Status = assignment.StatusActive
	s.ErrorIs(s.store.Update(s.ctx, &stale), sentinel.ErrInvalidState)

	got, err := s.store.FindByID(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(assignment.StatusRevoked, got.Status)

	_, err = s.store.FindActive(s.ctx, "user-1", "guild-1", "role-rule-1", "rule-1")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryAssignmentStoreSuite) TestListDue() {
	staleness := 6 * time.Hour
	old := s.seed("user-1", "rule-1", s.now.Add(-7*time.Hour))
	s.seed("user-2", "rule-1", s.now.Add(-time.Hour))
	expiring := s.seed("user-3", "rule-2", s.now.Add(-time.Hour))
	expiresAt := s.now.Add(-time.Minute)
	expiring.ExpiresAt = &expiresAt
	s.Require().NoError(s.store.Update(s.ctx, expiring))

	revoked := s.seed("user-4", "rule-1", s.now.Add(-10*time.Hour))
	s.Require().NoError(revoked.Revoke(s.now.Add(-10 * time.Hour)))
	s.Require().NoError(s.store.Update(s.ctx, revoked))

	due, err := s.store.ListDue(s.ctx, s.now, staleness)
	s.Require().NoError(err)
	s.Require().Len(due, 2)
	s.Equal(old.ID, due[0].ID)
	s.Equal(expiring.ID, due[1].ID)
}

func (s *InMemoryAssignmentStoreSuite) TestListings() {
	s.seed("user-1", "rule-1", s.now)
	s.seed("user-1", "rule-2", s.now.Add(time.Minute))
	s.seed("user-2", "rule-1", s.now)
	expired := s.seed("user-1", "rule-3", s.now)
	s.Require().NoError(expired.Expire(s.now.Add(-time.Hour)))
	s.Require().NoError(s.store.Update(s.ctx, expired))

	s.Run("active by user", func() {
		got, err := s.store.ListActiveByUser(s.ctx, "user-1")
		s.Require().NoError(err)
		s.Len(got, 2)
	})

	s.Run("active by rule", func() {
		got, err := s.store.ListActiveByRule(s.ctx, "rule-1")
		s.Require().NoError(err)
		s.Len(got, 2)
	})

	s.Run("all by user", func() {
		got, err := s.store.ListByUser(s.ctx, "user-1")
		s.Require().NoError(err)
		s.Len(got, 3)
	})

	s.Run("expired within window", func() {
		got, err := s.store.ListExpiredSince(s.ctx, s.now.Add(-2*time.Hour))
		s.Require().NoError(err)
		s.Require().Len(got, 1)
		s.Equal(expired.ID, got[0].ID)

		got, err = s.store.ListExpiredSince(s.ctx, s.now)
		s.Require().NoError(err)
		s.Empty(got)
	})
}

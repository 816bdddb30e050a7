package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"verethfier/internal/rules"
	"verethfier/pkg/platform/sentinel"
)

// InMemoryRuleStore keeps rules in memory for tests and single-node dev runs.
type InMemoryRuleStore struct {
	mu    sync.RWMutex
	rules map[string]rules.Rule
}

func NewInMemory() *InMemoryRuleStore {
	return &InMemoryRuleStore{rules: make(map[string]rules.Rule)}
}

func (s *InMemoryRuleStore) Create(_ context.Context, rule rules.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[rule.ID]; ok {
		return fmt.Errorf("rule id %s exists: %w", rule.ID, sentinel.ErrConflict)
	}
	key := rule.DuplicateKey()
	for _, existing := range s.rules {
		if existing.DuplicateKey() == key {
			return fmt.Errorf("rule duplicates %s: %w", existing.ID, sentinel.ErrConflict)
		}
	}
	s.rules[rule.ID] = rule
	return nil
}

func (s *InMemoryRuleStore) FindByID(_ context.Context, id string) (*rules.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[id]
	if !ok {
		return nil, fmt.Errorf("rule not found: %w", sentinel.ErrNotFound)
	}
	return &rule, nil
}

func (s *InMemoryRuleStore) ListByGuild(_ context.Context, guildID string) ([]rules.Rule, error) {
	return s.filter(func(r rules.Rule) bool { return r.GuildID == guildID }), nil
}

func (s *InMemoryRuleStore) ListByChannel(_ context.Context, guildID, channelID string) ([]rules.Rule, error) {
	return s.filter(func(r rules.Rule) bool {
		return r.GuildID == guildID && r.ChannelID == channelID
	}), nil
}

func (s *InMemoryRuleStore) ListByMessage(_ context.Context, guildID, messageID string) ([]rules.Rule, error) {
	if messageID == "" {
		return nil, nil
	}
	return s.filter(func(r rules.Rule) bool {
		return r.GuildID == guildID && r.MessageID == messageID
	}), nil
}

func (s *InMemoryRuleStore) ListByRole(_ context.Context, guildID, channelID, roleID string) ([]rules.Rule, error) {
	return s.filter(func(r rules.Rule) bool {
		return r.GuildID == guildID && r.ChannelID == channelID && r.RoleID == roleID
	}), nil
}

func (s *InMemoryRuleStore) SetMessageID(_ context.Context, id, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[id]
	if !ok {
		return fmt.Errorf("rule not found: %w", sentinel.ErrNotFound)
	}
	rule.MessageID = messageID
	s.rules[id] = rule
	return nil
}

func (s *InMemoryRuleStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return fmt.Errorf("rule not found: %w", sentinel.ErrNotFound)
	}
	delete(s.rules, id)
	return nil
}

// filter returns matches in creation order.
func (s *InMemoryRuleStore) filter(keep func(rules.Rule) bool) []rules.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]rules.Rule, 0)
	for _, r := range s.rules {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

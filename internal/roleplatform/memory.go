package roleplatform

import (
	"context"
	"sync"

	dErrors "verethfier/pkg/domain-errors"
)

type grantKey struct {
	guildID string
	userID  string
	roleID  string
}

// InMemoryPlatform records role holdings locally. Used in tests and when no
// bot token is configured.
type InMemoryPlatform struct {
	mu        sync.Mutex
	holdings  map[grantKey]struct{}
	addErr    error
	removeErr error
	hasErr    error
	removals  int
}

func NewInMemory() *InMemoryPlatform {
	return &InMemoryPlatform{holdings: make(map[grantKey]struct{})}
}

func (p *InMemoryPlatform) AddRole(_ context.Context, guildID, userID, roleID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.addErr != nil {
		return dErrors.Wrap(p.addErr, dErrors.CodeRolePlatform, "failed to add role")
	}
	p.holdings[grantKey{guildID, userID, roleID}] = struct{}{}
	return nil
}

func (p *InMemoryPlatform) RemoveRole(_ context.Context, guildID, userID, roleID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removals++
	if p.removeErr != nil {
		return dErrors.Wrap(p.removeErr, dErrors.CodeRolePlatform, "failed to remove role")
	}
	delete(p.holdings, grantKey{guildID, userID, roleID})
	return nil
}

func (p *InMemoryPlatform) HasRole(_ context.Context, guildID, userID, roleID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hasErr != nil {
		return false, dErrors.Wrap(p.hasErr, dErrors.CodeRolePlatform, "failed to load member")
	}
	_, ok := p.holdings[grantKey{guildID, userID, roleID}]
	return ok, nil
}

// FailAdd makes subsequent AddRole calls fail with err; nil clears it.
func (p *InMemoryPlatform) FailAdd(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.addErr = err
}

func (p *InMemoryPlatform) FailRemove(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeErr = err
}

func (p *InMemoryPlatform) FailHas(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hasErr = err
}

// Holds reports a holding without going through the error hooks.
func (p *InMemoryPlatform) Holds(guildID, userID, roleID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.holdings[grantKey{guildID, userID, roleID}]
	return ok
}

// Removals counts RemoveRole calls, failed ones included.
func (p *InMemoryPlatform) Removals() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removals
}

// Package memory is an in-process asset index for tests and local runs.
package memory

import (
	"context"
	"sync"

	"verethfier/internal/ownership"
	"verethfier/internal/verification/matcher"
)

// Oracle counts holdings seeded with SetHoldings. SetError simulates an outage.
type Oracle struct {
	mu       sync.RWMutex
	holdings map[string][]ownership.Asset
	err      error
	calls    int
}

func New() *Oracle {
	return &Oracle{holdings: make(map[string][]ownership.Asset)}
}

// SetHoldings replaces the assets held by address.
func (o *Oracle) SetHoldings(address string, assets ...ownership.Asset) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.holdings[ownership.NormalizeAddress(address)] = append([]ownership.Asset(nil), assets...)
}

// SetError makes every query fail with err until cleared with nil.
func (o *Oracle) SetError(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

// Calls returns how many queries were made.
func (o *Oracle) Calls() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.calls
}

func (o *Oracle) CountOwned(ctx context.Context, address string, criteria ownership.Criteria) (int, error) {
	o.mu.Lock()
	o.calls++
	err := o.err
	assets := o.holdings[ownership.NormalizeAddress(address)]
	o.mu.Unlock()

	if err != nil {
		return 0, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return 0, ownership.NewError(ownership.ErrorTimeout, "query cancelled", ctxErr)
	}
	return len(matcher.MatchingAssets(criteria, assets)), nil
}

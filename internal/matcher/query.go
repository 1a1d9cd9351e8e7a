package matcher

import (
	"fmt"

	"p2pswap/internal/types"
)

// GetIntent returns a copy of the intent.
func (e *Engine) GetIntent(id types.Hash) (*types.Intent, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	in, ok := e.reg.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIntentNotFound, id.Hex())
	}
	return in, nil
}

// IntentsByPair returns every intent ever filed under the pair, open or not,
// in insertion order.
func (e *Engine) IntentsByPair(tokenIn, tokenOut types.Address) []*types.Intent {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reg.ByPair(types.Pair{TokenIn: tokenIn, TokenOut: tokenOut})
}

func (e *Engine) UserIntents(owner types.Address) []*types.Intent {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reg.ByOwner(owner)
}

func (e *Engine) ActiveIntentCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reg.ActiveCount()
}

func (e *Engine) ActiveIntents() []*types.Intent {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reg.Active()
}

// ExpiredIntents lists open intents whose deadline is before now. A zero now
// uses the engine clock.
func (e *Engine) ExpiredIntents(now uint64) []*types.Intent {
	if now == 0 {
		now = e.now()
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reg.Expired(now)
}

func (e *Engine) MatchCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reg.MatchCount()
}

func (e *Engine) MatchedPairs(offset, limit int) []*types.MatchedPair {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reg.MatchedPairs(offset, limit)
}

func (e *Engine) Stats() types.Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reg.Stats()
}

func (e *Engine) IsRelayer(account types.Address) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.relayers[account]
}

// Relayers lists authorized relayers in address order.
func (e *Engine) Relayers() []types.Address {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return sortedRelayers(e.relayers)
}

func (e *Engine) Configuration() types.Configuration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.conf
}

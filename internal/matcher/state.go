package matcher

import (
	"fmt"

	"p2pswap/internal/registry"
	"p2pswap/internal/types"
)

// Export returns a deep copy of the full engine state.
func (e *Engine) Export() *types.EngineState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	intents, pairs, stats := e.reg.Export()
	relayers := make(map[types.Address]bool, len(e.relayers))
	for a := range e.relayers {
		relayers[a] = true
	}
	return &types.EngineState{
		Owner:         e.owner,
		Intents:       intents,
		MatchedPairs:  pairs,
		Stats:         stats,
		Relayers:      relayers,
		Configuration: e.conf,
		Sequences:     e.ids.Export(),
		Height:        e.height,
	}
}

// Restore replaces the engine state. A zero owner keeps the current one.
func (e *Engine) Restore(st *types.EngineState) error {
	if st == nil {
		return fmt.Errorf("state cannot be nil")
	}
	if err := st.Configuration.Validate(); err != nil {
		return fmt.Errorf("restore configuration: %w", err)
	}
	reg := registry.New()
	if err := reg.Load(st.Intents, st.MatchedPairs, st.Stats); err != nil {
		return fmt.Errorf("restore registry: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.reg = reg
	e.ids.Load(st.Sequences)
	e.relayers = make(map[types.Address]bool, len(st.Relayers))
	for a, ok := range st.Relayers {
		if ok {
			e.relayers[a] = true
		}
	}
	e.conf = st.Configuration
	if st.Owner != (types.Address{}) {
		e.owner = st.Owner
	}
	e.height = st.Height
	e.logger.Infof("Engine restored at height %d: %d intents (%d active), %d matches",
		e.height, len(st.Intents), reg.ActiveCount(), reg.MatchCount())
	return nil
}

// Recover loads state from the configured store. It reports whether any
// state was found.
func (e *Engine) Recover() (bool, error) {
	if e.store == nil {
		return false, nil
	}
	st, err := e.store.LoadState()
	if err != nil {
		return false, fmt.Errorf("load state: %w", err)
	}
	if st == nil {
		return false, nil
	}
	return true, e.Restore(st)
}

package storage

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"p2pswap/internal/types"
)

var ErrNotFound = errors.New("storage: not found")

// Batch carries the records one engine operation changed. It is written
// atomically; nil fields are left untouched.
type Batch struct {
	Owner         *types.Address
	Intents       []*types.Intent
	MatchedPairs  []*types.MatchedPair
	Stats         *types.Stats
	Relayers      map[types.Address]bool
	Configuration *types.Configuration
	Sequences     map[types.Address]uint64
	Height        *uint64
	// Records are raw key-value pairs written in the same batch, for state
	// that must not drift from the engine records (custody balances).
	Records map[string][]byte
}

func (b *Batch) Empty() bool {
	return b == nil || (b.Owner == nil && len(b.Intents) == 0 && len(b.MatchedPairs) == 0 &&
		b.Stats == nil && len(b.Relayers) == 0 && b.Configuration == nil &&
		len(b.Sequences) == 0 && b.Height == nil && len(b.Records) == 0)
}

func sortedKeys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Store persists engine records. The engine treats it as a write-behind
// mirror of its in-memory state.
type Store interface {
	// Generic key-value operations
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error

	Commit(b *Batch) error
	GetIntent(id types.Hash) (*types.Intent, error)
	ListMatchedPairs(offset, limit int) ([]*types.MatchedPair, error)
	// LoadState returns nil when nothing has been persisted yet.
	LoadState() (*types.EngineState, error)

	// Close closes the storage and releases resources
	Close() error
}

// InMemory is a map-backed Store for tests and single-process runs.
type InMemory struct {
	mu       sync.RWMutex
	kvStore  map[string][]byte
	owner    *types.Address
	intents  map[types.Hash]*types.Intent
	pairs    []*types.MatchedPair
	stats    *types.Stats
	relayers map[types.Address]bool
	config   *types.Configuration
	seqs     map[types.Address]uint64
	height   uint64
}

func NewInMemory() *InMemory {
	return &InMemory{
		kvStore:  map[string][]byte{},
		intents:  map[types.Hash]*types.Intent{},
		relayers: map[types.Address]bool{},
		seqs:     map[types.Address]uint64{},
	}
}

// Get retrieves a value by key from memory
func (s *InMemory) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.kvStore[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	// Return a copy to prevent modifications
	result := make([]byte, len(val))
	copy(result, val)
	return result, nil
}

// Put stores a key-value pair in memory
func (s *InMemory) Put(key, value []byte) error {
	val := make([]byte, len(value))
	copy(val, value)
	s.mu.Lock()
	s.kvStore[string(key)] = val
	s.mu.Unlock()
	return nil
}

func (s *InMemory) Commit(b *Batch) error {
	if b.Empty() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, mp := range b.MatchedPairs {
		if mp.Index != uint64(len(s.pairs)) {
			return fmt.Errorf("storage: matched pair %d out of order, have %d", mp.Index, len(s.pairs))
		}
		s.pairs = append(s.pairs, mp.Clone())
	}
	if b.Owner != nil {
		o := *b.Owner
		s.owner = &o
	}
	for _, in := range b.Intents {
		s.intents[in.ID] = in.Clone()
	}
	if b.Stats != nil {
		st := b.Stats.Clone()
		s.stats = &st
	}
	for addr, ok := range b.Relayers {
		if ok {
			s.relayers[addr] = true
		} else {
			delete(s.relayers, addr)
		}
	}
	if b.Configuration != nil {
		c := *b.Configuration
		s.config = &c
	}
	for addr, seq := range b.Sequences {
		s.seqs[addr] = seq
	}
	if b.Height != nil {
		s.height = *b.Height
	}
	for k, v := range b.Records {
		s.kvStore[k] = append([]byte(nil), v...)
	}
	return nil
}

func (s *InMemory) GetIntent(id types.Hash) (*types.Intent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.intents[id]
	if !ok {
		return nil, fmt.Errorf("%w: intent %s", ErrNotFound, id.Hex())
	}
	return in.Clone(), nil
}

func (s *InMemory) ListMatchedPairs(offset, limit int) ([]*types.MatchedPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return pageMatchedPairs(s.pairs, offset, limit), nil
}

func (s *InMemory) LoadState() (*types.EngineState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.owner == nil && len(s.intents) == 0 && s.stats == nil {
		return nil, nil
	}
	st := &types.EngineState{
		Stats:         types.NewStats(),
		Relayers:      make(map[types.Address]bool, len(s.relayers)),
		Configuration: types.DefaultConfiguration(),
		Sequences:     make(map[types.Address]uint64, len(s.seqs)),
		Height:        s.height,
	}
	if s.owner != nil {
		st.Owner = *s.owner
	}
	for _, in := range s.intents {
		st.Intents = append(st.Intents, in.Clone())
	}
	types.SortIntents(st.Intents)
	st.MatchedPairs = pageMatchedPairs(s.pairs, 0, 0)
	if s.stats != nil {
		st.Stats = s.stats.Clone()
	}
	for a := range s.relayers {
		st.Relayers[a] = true
	}
	if s.config != nil {
		st.Configuration = *s.config
	}
	for a, n := range s.seqs {
		st.Sequences[a] = n
	}
	return st, nil
}

// Close implements Store interface - no resources to release for in-memory store
func (s *InMemory) Close() error { return nil }

// pageMatchedPairs copies pairs[offset:offset+limit]; limit<=0 means no limit.
func pageMatchedPairs(pairs []*types.MatchedPair, offset, limit int) []*types.MatchedPair {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(pairs) {
		return []*types.MatchedPair{}
	}
	end := len(pairs)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]*types.MatchedPair, 0, end-offset)
	for _, mp := range pairs[offset:end] {
		out = append(out, mp.Clone())
	}
	return out
}

func sortedAddresses[V any](m map[types.Address]V) []types.Address {
	out := make([]types.Address, 0, len(m))
	for a := range m {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

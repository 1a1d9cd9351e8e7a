package registry

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"p2pswap/internal/types"
)

var (
	ErrDuplicateIntent = errors.New("registry: duplicate intent id")
	ErrUnknownIntent   = errors.New("registry: unknown intent")
)

// Registry owns every intent, the active-intent set, the pair index, the
// matched-pair log and the aggregate stats.
//
// It is not safe for concurrent use. The matching engine holds its own lock
// around every call, so the registry stays lock-free.
type Registry struct {
	intents map[types.Hash]*types.Intent
	// active holds open intents; activePos maps id to slice position so
	// removal is O(1) via swap-remove.
	active    []types.Hash
	activePos map[types.Hash]int
	// byPair is append-only and preserves insertion order for first-fit scans.
	// Closed intents stay in the slice and are skipped by readers.
	byPair  map[types.Pair][]types.Hash
	byOwner map[types.Address][]types.Hash
	pairs   []*types.MatchedPair
	stats   types.Stats
	ordinal uint64
}

func New() *Registry {
	return &Registry{
		intents:   make(map[types.Hash]*types.Intent),
		activePos: make(map[types.Hash]int),
		byPair:    make(map[types.Pair][]types.Hash),
		byOwner:   make(map[types.Address][]types.Hash),
		stats:     types.NewStats(),
	}
}

// Insert stores a new intent, assigns its ordinal and indexes it. The stored
// record is the one passed in; callers must not retain it.
func (r *Registry) Insert(in *types.Intent) error {
	if in == nil {
		return fmt.Errorf("intent cannot be nil")
	}
	if _, ok := r.intents[in.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateIntent, in.ID.Hex())
	}
	in.Ordinal = r.ordinal
	r.ordinal++
	r.intents[in.ID] = in
	r.byPair[in.Pair()] = append(r.byPair[in.Pair()], in.ID)
	r.byOwner[in.Owner] = append(r.byOwner[in.Owner], in.ID)
	if in.Open() {
		r.addActive(in.ID)
	}
	return nil
}

// Discard undoes the most recent Insert. It is used when the operation that
// inserted id fails afterwards.
func (r *Registry) Discard(id types.Hash) error {
	in, ok := r.intents[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownIntent, id.Hex())
	}
	if in.Ordinal+1 != r.ordinal {
		return fmt.Errorf("registry: %s is not the latest insert", id.Hex())
	}
	r.removeActive(id)
	r.byPair[in.Pair()] = dropLast(r.byPair[in.Pair()], id)
	r.byOwner[in.Owner] = dropLast(r.byOwner[in.Owner], id)
	delete(r.intents, id)
	r.ordinal--
	return nil
}

func dropLast(ids []types.Hash, id types.Hash) []types.Hash {
	if n := len(ids); n > 0 && ids[n-1] == id {
		return ids[:n-1]
	}
	return ids
}

// Get returns the live record. Only the engine mutates it.
func (r *Registry) Get(id types.Hash) (*types.Intent, bool) {
	in, ok := r.intents[id]
	return in, ok
}

// Lookup returns a copy of the intent.
func (r *Registry) Lookup(id types.Hash) (*types.Intent, bool) {
	in, ok := r.intents[id]
	if !ok {
		return nil, false
	}
	return in.Clone(), true
}

// Close marks the intent inactive and processed and drops it from the
// active set. Closing twice is a no-op.
func (r *Registry) Close(id types.Hash) error {
	in, ok := r.intents[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownIntent, id.Hex())
	}
	in.Active = false
	in.Processed = true
	r.removeActive(id)
	return nil
}

// Fill decrements the remaining amount by matched. A fill that consumes the
// remainder closes the intent. It reports whether the intent was closed.
func (r *Registry) Fill(id types.Hash, matched *uint256.Int) (bool, error) {
	in, ok := r.intents[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownIntent, id.Hex())
	}
	if in.AmountIn.Gt(matched) {
		in.AmountIn = new(uint256.Int).Sub(in.AmountIn, matched)
		return false, nil
	}
	in.AmountIn = new(uint256.Int)
	return true, r.Close(id)
}

// Candidates returns the ids filed under pair in insertion order. The slice
// is shared; callers must not modify it and must not hold it across inserts.
func (r *Registry) Candidates(pair types.Pair) []types.Hash {
	return r.byPair[pair]
}

// ByPair returns copies of every intent ever filed under pair.
func (r *Registry) ByPair(pair types.Pair) []*types.Intent {
	ids := r.byPair[pair]
	out := make([]*types.Intent, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.intents[id].Clone())
	}
	return out
}

// ByOwner returns copies of the owner's intents in submission order.
func (r *Registry) ByOwner(owner types.Address) []*types.Intent {
	ids := r.byOwner[owner]
	out := make([]*types.Intent, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.intents[id].Clone())
	}
	return out
}

func (r *Registry) ActiveCount() int { return len(r.active) }

// Active returns copies of the open intents ordered by insertion.
func (r *Registry) Active() []*types.Intent {
	out := make([]*types.Intent, 0, len(r.active))
	for _, id := range r.active {
		out = append(out, r.intents[id].Clone())
	}
	types.SortIntents(out)
	return out
}

// Expired returns copies of open intents whose deadline is strictly before now.
func (r *Registry) Expired(now uint64) []*types.Intent {
	out := make([]*types.Intent, 0)
	for _, id := range r.active {
		if in := r.intents[id]; in.Expired(now) {
			out = append(out, in.Clone())
		}
	}
	types.SortIntents(out)
	return out
}

// RecordMatch appends a settlement and folds it into the stats.
func (r *Registry) RecordMatch(mp *types.MatchedPair, gasSaved uint64) *types.MatchedPair {
	mp.Index = uint64(len(r.pairs))
	r.pairs = append(r.pairs, mp)
	r.stats.SuccessfulMatches++
	r.stats.TotalVolumeMatched = new(uint256.Int).Add(r.stats.TotalVolumeMatched, mp.MatchedAmount)
	r.stats.GasSaved += gasSaved
	return mp
}

// CountSubmission bumps TotalIntents.
func (r *Registry) CountSubmission() { r.stats.TotalIntents++ }

func (r *Registry) MatchCount() int { return len(r.pairs) }

// MatchedPairs returns copies of pairs[offset:offset+limit]; limit<=0 means all.
func (r *Registry) MatchedPairs(offset, limit int) []*types.MatchedPair {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(r.pairs) {
		return []*types.MatchedPair{}
	}
	end := len(r.pairs)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]*types.MatchedPair, 0, end-offset)
	for _, mp := range r.pairs[offset:end] {
		out = append(out, mp.Clone())
	}
	return out
}

func (r *Registry) Stats() types.Stats { return r.stats.Clone() }

// Export returns deep copies of all records in insertion order.
func (r *Registry) Export() ([]*types.Intent, []*types.MatchedPair, types.Stats) {
	intents := make([]*types.Intent, 0, len(r.intents))
	for _, in := range r.intents {
		intents = append(intents, in.Clone())
	}
	types.SortIntents(intents)
	return intents, r.MatchedPairs(0, 0), r.Stats()
}

// Load replaces the registry contents. Intents are re-indexed in ordinal
// order so first-fit scans behave as before the export.
func (r *Registry) Load(intents []*types.Intent, pairs []*types.MatchedPair, stats types.Stats) error {
	fresh := New()
	sorted := make([]*types.Intent, 0, len(intents))
	for _, in := range intents {
		sorted = append(sorted, in.Clone())
	}
	types.SortIntents(sorted)
	for _, in := range sorted {
		if _, ok := fresh.intents[in.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateIntent, in.ID.Hex())
		}
		fresh.intents[in.ID] = in
		fresh.byPair[in.Pair()] = append(fresh.byPair[in.Pair()], in.ID)
		fresh.byOwner[in.Owner] = append(fresh.byOwner[in.Owner], in.ID)
		if in.Open() {
			fresh.addActive(in.ID)
		}
		if in.Ordinal >= fresh.ordinal {
			fresh.ordinal = in.Ordinal + 1
		}
	}
	for i, mp := range pairs {
		if mp.Index != uint64(i) {
			return fmt.Errorf("matched pair %d found at position %d", mp.Index, i)
		}
		fresh.pairs = append(fresh.pairs, mp.Clone())
	}
	fresh.stats = stats.Clone()
	if fresh.stats.TotalVolumeMatched == nil {
		fresh.stats.TotalVolumeMatched = new(uint256.Int)
	}
	*r = *fresh
	return nil
}

func (r *Registry) addActive(id types.Hash) {
	r.activePos[id] = len(r.active)
	r.active = append(r.active, id)
}

func (r *Registry) removeActive(id types.Hash) {
	pos, ok := r.activePos[id]
	if !ok {
		return
	}
	last := len(r.active) - 1
	if pos != last {
		moved := r.active[last]
		r.active[pos] = moved
		r.activePos[moved] = pos
	}
	r.active = r.active[:last]
	delete(r.activePos, id)
}

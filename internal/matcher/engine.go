package matcher

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"p2pswap/internal/custody"
	"p2pswap/internal/events"
	"p2pswap/internal/logging"
	"p2pswap/internal/metrics"
	"p2pswap/internal/registry"
	"p2pswap/internal/storage"
	"p2pswap/internal/types"
	"p2pswap/internal/venue"
)

// Options wires the engine's collaborators. Custody and Venue are required.
type Options struct {
	Owner   types.Address
	Custody custody.Custody
	Venue   venue.Venue
	Store   storage.Store
	Emitter events.Emitter
	Metrics metrics.Provider
	Logger  logging.Logger
	// Now returns the current time in seconds.
	Now func() uint64
	// Height returns the block height recorded in new intent ids. When nil
	// the engine counts committed operations.
	Height func() uint64
	// Checkpoint returns raw records, typically a custody snapshot, that are
	// written in the same store batch as every committed operation.
	Checkpoint func() (map[string][]byte, error)
}

// Engine is the swap-intent matching engine: registry, matcher, settlement,
// fallback and access control behind one lock.
type Engine struct {
	// busy is held by the running command. A command arriving while it is
	// set is rejected rather than queued.
	busy atomic.Bool

	mu       sync.RWMutex
	cfg      *Config
	strategy CompatibilityStrategy

	owner    types.Address
	reg      *registry.Registry
	ids      *registry.Identifiers
	relayers map[types.Address]bool
	conf     types.Configuration
	height   uint64

	custody    custody.Custody
	venue      venue.Venue
	store      storage.Store
	emitter    events.Emitter
	metrics    metrics.Provider
	logger     logging.Logger
	now        func() uint64
	heightFn   func() uint64
	checkpoint func() (map[string][]byte, error)
}

// NewEngine creates a new matching engine
func NewEngine(cfg *Config, opts Options) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if opts.Custody == nil {
		return nil, fmt.Errorf("custody is required")
	}
	if opts.Venue == nil {
		return nil, fmt.Errorf("venue is required")
	}
	if opts.Owner == (types.Address{}) {
		return nil, fmt.Errorf("owner is required")
	}
	strategy, err := cfg.CreateStrategy()
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewDefaultLogger()
	}
	if opts.Emitter == nil {
		opts.Emitter = events.NoopEmitter{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}
	if opts.Now == nil {
		opts.Now = func() uint64 { return uint64(time.Now().Unix()) }
	}

	e := &Engine{
		cfg:      cfg,
		strategy: strategy,
		owner:    opts.Owner,
		reg:      registry.New(),
		ids:      registry.NewIdentifiers(),
		relayers: make(map[types.Address]bool),
		conf:     types.Configuration{RewardBps: cfg.RewardBps, FeeBps: cfg.FeeBps},
		custody:  opts.Custody,
		venue:    opts.Venue,
		store:    opts.Store,
		emitter:  opts.Emitter,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		now:      opts.Now,
		heightFn: opts.Height,

		checkpoint: opts.Checkpoint,
	}
	e.logger.Infof("Matching engine ready: owner=%s strategy=%s window=%ds",
		e.owner.Hex(), cfg.MatchingStrategy, cfg.MatchingWindow)
	return e, nil
}

type inFlightKey struct{}

// inFlight reports whether ctx was handed out by a running operation of e.
func (e *Engine) inFlight(ctx context.Context) bool {
	v, ok := ctx.Value(inFlightKey{}).(*Engine)
	return ok && v == e
}

// enter claims the in-flight flag. The caller must call e.leave on every
// path once enter succeeded.
func (e *Engine) enter(ctx context.Context, op string) error {
	if e.inFlight(ctx) || !e.busy.CompareAndSwap(false, true) {
		e.metrics.IncCounter(metrics.OperationErrors, 1)
		return fmt.Errorf("%s: %w", op, ErrReentrantCall)
	}
	return nil
}

func (e *Engine) leave() { e.busy.Store(false) }

// unit buffers everything an operation changes that leaves the engine:
// store writes, audit events and metrics. Nothing is flushed unless the
// operation succeeds.
type unit struct {
	ctx    context.Context
	now    uint64
	height uint64

	touched    []types.Hash
	touchedSet map[types.Hash]struct{}
	pairs      []*types.MatchedPair
	statsDirty bool
	relayers   map[types.Address]bool
	conf       *types.Configuration
	seqs       map[types.Address]uint64
	owner      *types.Address

	events   []events.Event
	counters map[string]float64
}

func (u *unit) touch(ids ...types.Hash) {
	for _, id := range ids {
		if _, ok := u.touchedSet[id]; ok {
			continue
		}
		u.touchedSet[id] = struct{}{}
		u.touched = append(u.touched, id)
	}
}

func (u *unit) emit(ev events.Event) { u.events = append(u.events, ev) }

func (u *unit) count(name string, delta float64) { u.counters[name] += delta }

func (e *Engine) newUnit(ctx context.Context) *unit {
	u := &unit{
		ctx:        context.WithValue(ctx, inFlightKey{}, e),
		now:        e.now(),
		touchedSet: make(map[types.Hash]struct{}),
		relayers:   make(map[types.Address]bool),
		seqs:       make(map[types.Address]uint64),
		counters:   make(map[string]float64),
	}
	if e.heightFn != nil {
		u.height = e.heightFn()
	} else {
		u.height = e.height + 1
	}
	return u
}

// run executes fn as one serialised unit. Commands that overlap a running
// one, including calls made back into the engine by custody or the venue,
// fail with ErrReentrantCall. fn must not mutate engine state before its
// last fallible collaborator call.
func (e *Engine) run(ctx context.Context, op string, fn func(u *unit) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := e.enter(ctx, op); err != nil {
		return err
	}
	defer e.leave()
	start := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	u := e.newUnit(ctx)
	if err := fn(u); err != nil {
		e.metrics.IncCounter(metrics.OperationErrors, 1)
		e.logger.Debugf("%s rejected: %v", op, err)
		return err
	}
	e.commit(u)
	e.metrics.Observe(metrics.OperationLatency, float64(time.Since(start).Microseconds())/1000)
	return nil
}

func (e *Engine) commit(u *unit) {
	e.height = u.height

	if e.store != nil {
		b := &storage.Batch{
			MatchedPairs:  u.pairs,
			Height:        &u.height,
			Owner:         u.owner,
			Configuration: u.conf,
		}
		for _, id := range u.touched {
			if in, ok := e.reg.Lookup(id); ok {
				b.Intents = append(b.Intents, in)
			}
		}
		if u.statsDirty {
			st := e.reg.Stats()
			b.Stats = &st
		}
		if len(u.relayers) > 0 {
			b.Relayers = u.relayers
		}
		if len(u.seqs) > 0 {
			b.Sequences = u.seqs
		}
		e.persist(b)
	}

	for name, delta := range u.counters {
		e.metrics.IncCounter(name, delta)
	}
	e.metrics.SetGauge(metrics.ActiveIntents, float64(e.reg.ActiveCount()))

	for _, ev := range u.events {
		e.emitter.Emit(ev)
	}
}

// persist adds the checkpoint records to b and commits it.
func (e *Engine) persist(b *storage.Batch) {
	if e.checkpoint != nil {
		recs, err := e.checkpoint()
		if err != nil {
			e.metrics.IncCounter(metrics.StoreErrors, 1)
			e.logger.Errorf("Failed to take checkpoint at height %d: %v", e.height, err)
		} else {
			b.Records = recs
		}
	}
	if err := e.store.Commit(b); err != nil {
		e.metrics.IncCounter(metrics.StoreErrors, 1)
		e.logger.Errorf("Failed to persist engine changes at height %d: %v", e.height, err)
	}
}

// Checkpoint writes the checkpoint records outside any command, for example
// after an allowance change. Like a command it is rejected while another one
// is running.
func (e *Engine) Checkpoint(ctx context.Context) error {
	if e.store == nil || e.checkpoint == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := e.enter(ctx, "checkpoint"); err != nil {
		return err
	}
	defer e.leave()
	e.mu.Lock()
	defer e.mu.Unlock()
	recs, err := e.checkpoint()
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return e.store.Commit(&storage.Batch{Records: recs})
}

// Owner returns the current engine owner.
func (e *Engine) Owner() types.Address {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.owner
}

// Height returns the height of the last committed operation.
func (e *Engine) Height() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.height
}

func sortedRelayers(m map[types.Address]bool) []types.Address {
	out := make([]types.Address, 0, len(m))
	for a, ok := range m {
		if ok {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

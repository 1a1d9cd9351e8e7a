package matcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"p2pswap/internal/logging"
	"p2pswap/internal/types"
)

// CompatibilityStrategy decides whether two intents may settle against each
// other. Token and chain reversal are checked by the engine before it asks.
type CompatibilityStrategy interface {
	Name() string
	Compatible(a, b *types.Intent) bool
}

// PermissiveStrategy accepts every reversed pair regardless of price.
type PermissiveStrategy struct{}

func (PermissiveStrategy) Name() string                       { return StrategyPermissive }
func (PermissiveStrategy) Compatible(_, _ *types.Intent) bool { return true }

// PriceBoundStrategy requires the implied prices of both sides to overlap
// once each side's slippage allowance is applied:
//
//	minOutA * minOutB * (1 - slipA) * (1 - slipB) <= submittedA * submittedB
//
// Prices come from the submitted amounts since minAmountOut is never rescaled.
type PriceBoundStrategy struct{}

func (PriceBoundStrategy) Name() string { return StrategyPriceBound }

func (PriceBoundStrategy) Compatible(a, b *types.Intent) bool {
	bps := big.NewInt(types.BasisPoints)
	lhs := new(big.Int).Mul(a.MinAmountOut.ToBig(), b.MinAmountOut.ToBig())
	lhs.Mul(lhs, big.NewInt(int64(types.BasisPoints)-int64(a.MaxSlippage)))
	lhs.Mul(lhs, big.NewInt(int64(types.BasisPoints)-int64(b.MaxSlippage)))

	rhs := new(big.Int).Mul(a.SubmittedAmountIn.ToBig(), b.SubmittedAmountIn.ToBig())
	rhs.Mul(rhs, bps)
	rhs.Mul(rhs, bps)
	return lhs.Cmp(rhs) <= 0
}

// reversed reports whether b is filed under a's reverse pair on the reverse
// chain route.
func reversed(a, b *types.Intent) bool {
	return a.TokenIn == b.TokenOut && a.TokenOut == b.TokenIn &&
		a.SourceChain == b.DestChain && a.DestChain == b.SourceChain
}

// tryMatch settles id against the first compatible counter-intent in
// insertion order. It reports whether a settlement happened.
func (e *Engine) tryMatch(u *unit, id types.Hash, executor types.Address) (bool, error) {
	a, ok := e.reg.Get(id)
	if !ok || !a.Open() {
		return false, nil
	}
	for _, cid := range e.reg.Candidates(a.Pair().Reverse()) {
		if cid == id {
			continue
		}
		b, ok := e.reg.Get(cid)
		if !ok || !b.Open() || b.Expired(u.now) {
			continue
		}
		if !reversed(a, b) || !e.strategy.Compatible(a, b) {
			continue
		}
		if err := e.executeMatch(u, a, b, executor); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// BatchMatch runs tryMatch for each listed intent. Each attempt is its own
// unit and checks the caller's authorization again, so a relayer revoked
// mid-batch stops there. Unknown, closed and failing entries are skipped. It
// returns the number of settlements made.
func (e *Engine) BatchMatch(ctx context.Context, caller types.Address, ids []types.Hash) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if e.inFlight(ctx) {
		return 0, fmt.Errorf("batch match: %w", ErrReentrantCall)
	}
	e.mu.RLock()
	allowed := e.mayMatch(caller)
	e.mu.RUnlock()
	if !allowed {
		return 0, ErrNotRelayer
	}

	matched := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return matched, err
		}
		var hit bool
		err := e.run(ctx, "batch match", func(u *unit) error {
			if !e.mayMatch(caller) {
				return ErrNotRelayer
			}
			in, ok := e.reg.Get(id)
			if !ok || !in.Open() {
				return nil
			}
			var err error
			hit, err = e.tryMatch(u, id, caller)
			return err
		})
		if errors.Is(err, ErrNotRelayer) || errors.Is(err, ErrReentrantCall) {
			e.logger.Warnf("Batch match by %s stopped after %d settlements: %v", caller.Hex(), matched, err)
			return matched, err
		}
		if err != nil {
			logging.WithFields(e.logger, logging.Fields{"intent": id.Hex()}).
				Warnf("Batch match attempt failed: %v", err)
			continue
		}
		if hit {
			matched++
		}
	}
	e.logger.Infof("Batch match by %s: %d candidates, %d settlements", caller.Hex(), len(ids), matched)
	return matched, nil
}

// mayMatch reports whether caller may run batch matching. Callers hold e.mu.
func (e *Engine) mayMatch(caller types.Address) bool {
	return caller == e.owner || e.relayers[caller]
}

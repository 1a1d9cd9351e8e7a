package matcher

import (
	"fmt"

	"github.com/holiman/uint256"

	"p2pswap/internal/custody"
	"p2pswap/internal/events"
	"p2pswap/internal/metrics"
	"p2pswap/internal/types"
)

// executeMatch swaps min(a.AmountIn, b.AmountIn) of each side's input token
// to the other side's owner. Both legs move in one custody call; the
// registry is only touched once they have landed.
func (e *Engine) executeMatch(u *unit, a, b *types.Intent, executor types.Address) error {
	matched := a.AmountIn
	if b.AmountIn.Lt(matched) {
		matched = b.AmountIn
	}
	matched = new(uint256.Int).Set(matched)

	price, err := executionPrice(a, b)
	if err != nil {
		return err
	}

	holding := e.custody.HoldingAccount()
	err = e.custody.Apply(u.ctx,
		custody.Transfer{From: holding, To: b.Owner, Token: a.TokenIn, Amount: matched},
		custody.Transfer{From: holding, To: a.Owner, Token: b.TokenIn, Amount: matched},
	)
	if err != nil {
		return fmt.Errorf("settle %s against %s: %w", a.ID.Hex(), b.ID.Hex(), err)
	}

	if _, err := e.reg.Fill(a.ID, matched); err != nil {
		return err
	}
	if _, err := e.reg.Fill(b.ID, matched); err != nil {
		return err
	}
	mp := e.reg.RecordMatch(&types.MatchedPair{
		IntentA:        a.ID,
		IntentB:        b.ID,
		MatchedAmount:  matched,
		ExecutionPrice: price,
		Timestamp:      u.now,
		Executor:       executor,
	}, e.cfg.GasSavedPerMatch)

	u.touch(a.ID, b.ID)
	u.pairs = append(u.pairs, mp.Clone())
	u.statsDirty = true
	u.count(metrics.Matches, 1)
	u.count(metrics.MatchVolume, matched.Float64())
	u.emit(events.IntentsMatched{
		Index:          mp.Index,
		IntentA:        a.ID,
		IntentB:        b.ID,
		MatchedAmount:  new(uint256.Int).Set(matched),
		ExecutionPrice: new(uint256.Int).Set(price),
		Executor:       executor,
	})
	e.logger.Infof("Matched %s with %s: amount=%s price=%s",
		a.ID.Hex(), b.ID.Hex(), matched.Dec(), price.Dec())
	return nil
}

// executionPrice averages both sides' implied prices, scaled by 1e18:
// (a.minOut/a.amountIn + b.amountIn/b.minOut) / 2.
func executionPrice(a, b *types.Intent) (*uint256.Int, error) {
	pa, overflow := new(uint256.Int).MulDivOverflow(a.MinAmountOut, types.PricePrecision, a.AmountIn)
	if overflow {
		return nil, ErrPriceOverflow
	}
	pb, overflow := new(uint256.Int).MulDivOverflow(b.AmountIn, types.PricePrecision, b.MinAmountOut)
	if overflow {
		return nil, ErrPriceOverflow
	}
	sum, overflow := new(uint256.Int).AddOverflow(pa, pb)
	if overflow {
		return nil, ErrPriceOverflow
	}
	return sum.Rsh(sum, 1), nil
}

// fallbackPrice is amountOut/amountIn scaled by 1e18, saturating on overflow.
func fallbackPrice(amountIn, amountOut *uint256.Int) *uint256.Int {
	if amountIn.IsZero() {
		return new(uint256.Int)
	}
	p, overflow := new(uint256.Int).MulDivOverflow(amountOut, types.PricePrecision, amountIn)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return p
}

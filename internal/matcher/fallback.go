package matcher

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"p2pswap/internal/events"
	"p2pswap/internal/metrics"
	"p2pswap/internal/types"
	"p2pswap/internal/venue"
)

// FallbackResult reports a venue execution.
type FallbackResult struct {
	IntentID       types.Hash   `json:"intent_id"`
	AmountIn       *uint256.Int `json:"amount_in"`
	AmountOut      *uint256.Int `json:"amount_out"`
	ExecutionPrice *uint256.Int `json:"execution_price"`
}

// ExecuteViaAMM routes the intent's remaining amount through the venue.
// Anyone may call it once the deadline has passed; the owner may call it at
// any time. The venue pays the owner directly.
func (e *Engine) ExecuteViaAMM(ctx context.Context, caller types.Address, id types.Hash) (*FallbackResult, error) {
	var res *FallbackResult
	err := e.run(ctx, "execute via amm", func(u *unit) error {
		in, ok := e.reg.Get(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrIntentNotFound, id.Hex())
		}
		if in.Processed {
			return ErrIntentProcessed
		}
		if !in.Active {
			return ErrIntentInactive
		}
		if !in.Expired(u.now) && caller != in.Owner {
			return fmt.Errorf("%w: deadline %d, now %d", ErrDeadlineNotReached, in.Deadline, u.now)
		}

		deadline := types.MaxTimestamp
		if u.now <= types.MaxTimestamp-e.cfg.FallbackDeadlineGrace {
			deadline = u.now + e.cfg.FallbackDeadlineGrace
		}
		amountIn := new(uint256.Int).Set(in.AmountIn)
		out, err := e.venue.ExactInputSingle(u.ctx, venue.SwapParams{
			TokenIn:          in.TokenIn,
			TokenOut:         in.TokenOut,
			Fee:              e.cfg.FallbackFeeTier,
			Payer:            e.custody.HoldingAccount(),
			Recipient:        in.Owner,
			Deadline:         deadline,
			AmountIn:         amountIn,
			AmountOutMinimum: new(uint256.Int).Set(in.MinAmountOut),
		})
		if err != nil {
			return fmt.Errorf("venue swap: %w", err)
		}
		if err := e.reg.Close(id); err != nil {
			return err
		}

		res = &FallbackResult{
			IntentID:       id,
			AmountIn:       amountIn,
			AmountOut:      new(uint256.Int).Set(out),
			ExecutionPrice: fallbackPrice(amountIn, out),
		}
		u.touch(id)
		u.count(metrics.Fallbacks, 1)
		u.emit(events.IntentExecutedViaAMM{
			IntentID:       id,
			Executor:       caller,
			AmountIn:       new(uint256.Int).Set(res.AmountIn),
			AmountOut:      new(uint256.Int).Set(res.AmountOut),
			ExecutionPrice: new(uint256.Int).Set(res.ExecutionPrice),
		})
		e.logger.Infof("Intent %s executed via AMM by %s: in=%s out=%s",
			id.Hex(), caller.Hex(), amountIn.Dec(), out.Dec())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

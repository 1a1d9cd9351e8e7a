package matcher

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"p2pswap/internal/events"
	"p2pswap/internal/logging"
	"p2pswap/internal/metrics"
	"p2pswap/internal/registry"
	"p2pswap/internal/types"
)

// SubmitRequest describes a new intent.
type SubmitRequest struct {
	TokenIn      types.Address `json:"token_in"`
	TokenOut     types.Address `json:"token_out"`
	AmountIn     *uint256.Int  `json:"amount_in"`
	MinAmountOut *uint256.Int  `json:"min_amount_out"`
	SourceChain  types.ChainID `json:"source_chain"`
	DestChain    types.ChainID `json:"dest_chain"`
	MaxSlippage  uint16        `json:"max_slippage"`
}

// Validate applies the checks that need no engine state.
func (r SubmitRequest) Validate() error {
	if r.TokenIn == r.TokenOut {
		return ErrSameToken
	}
	if r.AmountIn == nil || r.AmountIn.IsZero() {
		return ErrZeroAmount
	}
	if r.MinAmountOut == nil || r.MinAmountOut.IsZero() {
		return ErrZeroMinAmountOut
	}
	if r.MaxSlippage > types.MaxSlippageTolerance {
		return fmt.Errorf("%w: %d > %d bps", ErrSlippageTooHigh, r.MaxSlippage, types.MaxSlippageTolerance)
	}
	return nil
}

// Submit pulls AmountIn of TokenIn from owner into custody, records the
// intent and attempts an immediate match. If that settlement fails the
// whole submission is undone: the deposit is returned and nothing is
// recorded.
func (e *Engine) Submit(ctx context.Context, owner types.Address, req SubmitRequest) (types.Hash, error) {
	if err := req.Validate(); err != nil {
		e.metrics.IncCounter(metrics.OperationErrors, 1)
		return types.Hash{}, err
	}
	var id types.Hash
	err := e.run(ctx, "submit", func(u *unit) error {
		if u.now > types.MaxTimestamp-e.cfg.MatchingWindow {
			return ErrDeadlineOverflow
		}
		seq := e.ids.Peek(owner)
		id = registry.DeriveID(registry.IdentifierInput{
			Owner:        owner,
			TokenIn:      req.TokenIn,
			TokenOut:     req.TokenOut,
			AmountIn:     req.AmountIn,
			MinAmountOut: req.MinAmountOut,
			SourceChain:  req.SourceChain,
			DestChain:    req.DestChain,
			Sequence:     seq,
			Timestamp:    u.now,
			BlockHeight:  u.height,
		})
		if _, exists := e.reg.Get(id); exists {
			return fmt.Errorf("%w: %s", registry.ErrDuplicateIntent, id.Hex())
		}

		if err := e.custody.TransferIn(u.ctx, owner, req.TokenIn, req.AmountIn); err != nil {
			return fmt.Errorf("transfer in: %w", err)
		}

		in := &types.Intent{
			ID:                id,
			Owner:             owner,
			TokenIn:           req.TokenIn,
			TokenOut:          req.TokenOut,
			AmountIn:          new(uint256.Int).Set(req.AmountIn),
			SubmittedAmountIn: new(uint256.Int).Set(req.AmountIn),
			MinAmountOut:      new(uint256.Int).Set(req.MinAmountOut),
			SourceChain:       req.SourceChain,
			DestChain:         req.DestChain,
			Deadline:          u.now + e.cfg.MatchingWindow,
			MaxSlippage:       req.MaxSlippage,
			Active:            true,
			Timestamp:         u.now,
			BlockHeight:       u.height,
			SequenceNumber:    seq,
		}
		if err := e.reg.Insert(in); err != nil {
			// Unreachable after the existence check above.
			return err
		}
		u.touch(id)
		u.count(metrics.IntentsSubmitted, 1)
		u.emit(events.IntentSubmitted{
			IntentID:       id,
			Owner:          owner,
			TokenIn:        in.TokenIn,
			TokenOut:       in.TokenOut,
			AmountIn:       new(uint256.Int).Set(in.AmountIn),
			MinAmountOut:   new(uint256.Int).Set(in.MinAmountOut),
			SourceChain:    in.SourceChain,
			DestChain:      in.DestChain,
			Deadline:       in.Deadline,
			SequenceNumber: seq,
		})

		if _, err := e.tryMatch(u, id, owner); err != nil {
			return e.undoSubmit(u, in, err)
		}
		u.seqs[owner] = e.ids.Advance(owner, seq)
		e.reg.CountSubmission()
		u.statsDirty = true
		logging.WithFields(e.logger, logging.Fields{"intent": id.Hex(), "owner": owner.Hex()}).Infof("Intent submitted: %s %s -> %s", req.AmountIn.Dec(), in.TokenIn.Hex(), in.TokenOut.Hex())
		return nil
	})
	if err != nil {
		return types.Hash{}, err
	}
	return id, nil
}

// undoSubmit drops a just-inserted intent and reverses its deposit after the
// immediate match failed. tryMatch moves nothing before it fails, so the
// full amount is still held.
func (e *Engine) undoSubmit(u *unit, in *types.Intent, cause error) error {
	if err := e.reg.Discard(in.ID); err != nil {
		return fmt.Errorf("immediate match: %w (discard: %v)", cause, err)
	}
	if err := e.custody.ReverseIn(u.ctx, in.Owner, in.TokenIn, in.SubmittedAmountIn); err != nil {
		e.logger.Errorf("Deposit of %s for failed intent %s could not be returned: %v",
			in.SubmittedAmountIn.Dec(), in.ID.Hex(), err)
		return fmt.Errorf("immediate match: %w (refund: %v)", cause, err)
	}
	return fmt.Errorf("immediate match: %w", cause)
}

// Cancel refunds the remaining amount to the owner and closes the intent.
func (e *Engine) Cancel(ctx context.Context, caller types.Address, id types.Hash) error {
	return e.run(ctx, "cancel", func(u *unit) error {
		in, ok := e.reg.Get(id)
		if !ok {
			return fmt.Errorf("%w: %s", ErrIntentNotFound, id.Hex())
		}
		if in.Owner != caller {
			return ErrNotIntentOwner
		}
		if !in.Active {
			return ErrIntentInactive
		}
		if in.Processed {
			return ErrIntentProcessed
		}
		refund := new(uint256.Int).Set(in.AmountIn)
		if err := e.custody.TransferOut(u.ctx, in.TokenIn, in.Owner, refund); err != nil {
			return fmt.Errorf("refund: %w", err)
		}
		if err := e.reg.Close(id); err != nil {
			return err
		}
		u.touch(id)
		u.count(metrics.Cancels, 1)
		u.emit(events.IntentCancelled{IntentID: id, Owner: in.Owner, Refunded: refund})
		e.logger.Infof("Intent %s cancelled, refunded %s", id.Hex(), refund.Dec())
		return nil
	})
}

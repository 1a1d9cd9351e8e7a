package matcher

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"p2pswap/internal/events"
	"p2pswap/internal/types"
)

// AuthorizeRelayer grants or revokes batch-matching rights. Owner only.
// Repeating the current value still succeeds and emits an event.
func (e *Engine) AuthorizeRelayer(ctx context.Context, caller, account types.Address, authorized bool) error {
	return e.run(ctx, "authorize relayer", func(u *unit) error {
		if caller != e.owner {
			return ErrNotOwner
		}
		if account == (types.Address{}) {
			return ErrZeroAddress
		}
		if authorized {
			e.relayers[account] = true
		} else {
			delete(e.relayers, account)
		}
		u.relayers[account] = authorized
		u.emit(events.RelayerAuthorized{Relayer: account, Authorized: authorized})
		e.logger.Infof("Relayer %s authorized=%t", account.Hex(), authorized)
		return nil
	})
}

// UpdateConfiguration replaces reward and fee. Either value out of range
// rejects the whole update.
func (e *Engine) UpdateConfiguration(ctx context.Context, caller types.Address, rewardBps, feeBps uint16) error {
	return e.run(ctx, "update configuration", func(u *unit) error {
		if caller != e.owner {
			return ErrNotOwner
		}
		next := types.Configuration{RewardBps: rewardBps, FeeBps: feeBps}
		if err := next.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrConfigOutOfRange, err)
		}
		e.conf = next
		u.conf = &next
		u.emit(events.ConfigurationUpdated{RewardBps: rewardBps, FeeBps: feeBps})
		e.logger.Infof("Configuration updated: reward=%dbps fee=%dbps", rewardBps, feeBps)
		return nil
	})
}

// EmergencyWithdraw moves held tokens out of custody without touching any
// intent record. Owner only.
func (e *Engine) EmergencyWithdraw(ctx context.Context, caller, token, to types.Address, amount *uint256.Int) error {
	return e.run(ctx, "emergency withdraw", func(u *unit) error {
		if caller != e.owner {
			return ErrNotOwner
		}
		if to == (types.Address{}) {
			return ErrZeroAddress
		}
		if amount == nil || amount.IsZero() {
			return ErrZeroAmount
		}
		amt := new(uint256.Int).Set(amount)
		if err := e.custody.TransferOut(u.ctx, token, to, amt); err != nil {
			return fmt.Errorf("emergency withdraw: %w", err)
		}
		u.emit(events.EmergencyWithdrawal{Token: token, To: to, Amount: amt})
		e.logger.Warnf("Emergency withdrawal of %s %s to %s", amt.Dec(), token.Hex(), to.Hex())
		return nil
	})
}

// TransferOwnership hands the owner role to next. Owner only.
func (e *Engine) TransferOwnership(ctx context.Context, caller, next types.Address) error {
	return e.run(ctx, "transfer ownership", func(u *unit) error {
		if caller != e.owner {
			return ErrNotOwner
		}
		if next == (types.Address{}) {
			return ErrZeroAddress
		}
		prev := e.owner
		e.owner = next
		u.owner = &next
		e.logger.Warnf("Ownership transferred from %s to %s", prev.Hex(), next.Hex())
		return nil
	})
}

package matcher

import (
	"context"

	"github.com/holiman/uint256"

	"p2pswap/internal/types"
)

// Commands are the state-changing operations. The engine implements them
// directly; a replicated deployment routes them through the log first.
type Commands interface {
	Submit(ctx context.Context, owner types.Address, req SubmitRequest) (types.Hash, error)
	Cancel(ctx context.Context, caller types.Address, id types.Hash) error
	BatchMatch(ctx context.Context, caller types.Address, ids []types.Hash) (int, error)
	ExecuteViaAMM(ctx context.Context, caller types.Address, id types.Hash) (*FallbackResult, error)
	AuthorizeRelayer(ctx context.Context, caller, account types.Address, authorized bool) error
	UpdateConfiguration(ctx context.Context, caller types.Address, rewardBps, feeBps uint16) error
	EmergencyWithdraw(ctx context.Context, caller, token, to types.Address, amount *uint256.Int) error
	TransferOwnership(ctx context.Context, caller, next types.Address) error
}

// Queries are read-only views over engine state.
type Queries interface {
	GetIntent(id types.Hash) (*types.Intent, error)
	IntentsByPair(tokenIn, tokenOut types.Address) []*types.Intent
	UserIntents(owner types.Address) []*types.Intent
	ActiveIntentCount() int
	ActiveIntents() []*types.Intent
	ExpiredIntents(now uint64) []*types.Intent
	MatchCount() int
	MatchedPairs(offset, limit int) []*types.MatchedPair
	Stats() types.Stats
	IsRelayer(account types.Address) bool
	Relayers() []types.Address
	Configuration() types.Configuration
	Owner() types.Address
}

type Service interface {
	Commands
	Queries
}

var _ Service = (*Engine)(nil)

package replication

import (
	"context"
	"time"

	"github.com/holiman/uint256"

	"p2pswap/internal/custody"
	"p2pswap/internal/matcher"
	"p2pswap/internal/types"
)

// Client routes engine commands through the Raft log and answers queries
// from the local replica.
type Client struct {
	matcher.Queries
	node   *Node
	ledger *custody.Ledger
	now    func() uint64
}

var _ matcher.Service = (*Client)(nil)

func NewClient(node *Node, engine *matcher.Engine, ledger *custody.Ledger) *Client {
	return &Client{
		Queries: engine,
		node:    node,
		ledger:  ledger,
		now:     func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetNowFunc overrides the clock used to stamp proposals.
func (c *Client) SetNowFunc(now func() uint64) {
	if now != nil {
		c.now = now
	}
}

func (c *Client) propose(ctx context.Context, typ CommandType, caller types.Address, payload interface{}) (*Result, error) {
	cmd, err := NewCommand(typ, caller, c.now(), payload)
	if err != nil {
		return nil, err
	}
	res, err := c.node.Apply(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return res, res.Err
}

func (c *Client) Submit(ctx context.Context, owner types.Address, req matcher.SubmitRequest) (types.Hash, error) {
	// Reject locally so malformed requests never reach the log.
	if err := req.Validate(); err != nil {
		return types.Hash{}, err
	}
	res, err := c.propose(ctx, CommandSubmit, owner, req)
	if err != nil {
		return types.Hash{}, err
	}
	return res.ID, nil
}

func (c *Client) Cancel(ctx context.Context, caller types.Address, id types.Hash) error {
	_, err := c.propose(ctx, CommandCancel, caller, IntentPayload{ID: id})
	return err
}

func (c *Client) BatchMatch(ctx context.Context, caller types.Address, ids []types.Hash) (int, error) {
	res, err := c.propose(ctx, CommandBatchMatch, caller, BatchPayload{IDs: ids})
	if err != nil {
		return 0, err
	}
	return res.Matched, nil
}

func (c *Client) ExecuteViaAMM(ctx context.Context, caller types.Address, id types.Hash) (*matcher.FallbackResult, error) {
	res, err := c.propose(ctx, CommandExecuteViaAMM, caller, IntentPayload{ID: id})
	if err != nil {
		return nil, err
	}
	return res.Fallback, nil
}

func (c *Client) AuthorizeRelayer(ctx context.Context, caller, account types.Address, authorized bool) error {
	_, err := c.propose(ctx, CommandAuthorizeRelayer, caller, RelayerPayload{Account: account, Authorized: authorized})
	return err
}

func (c *Client) UpdateConfiguration(ctx context.Context, caller types.Address, rewardBps, feeBps uint16) error {
	_, err := c.propose(ctx, CommandUpdateConfiguration, caller, ConfigurationPayload{RewardBps: rewardBps, FeeBps: feeBps})
	return err
}

func (c *Client) EmergencyWithdraw(ctx context.Context, caller, token, to types.Address, amount *uint256.Int) error {
	_, err := c.propose(ctx, CommandEmergencyWithdraw, caller, WithdrawPayload{Token: token, To: to, Amount: amount})
	return err
}

func (c *Client) TransferOwnership(ctx context.Context, caller, next types.Address) error {
	_, err := c.propose(ctx, CommandTransferOwnership, caller, OwnershipPayload{Next: next})
	return err
}

// Approve replicates an allowance toward the holding account.
func (c *Client) Approve(ctx context.Context, owner, token types.Address, amount *uint256.Int) error {
	_, err := c.propose(ctx, CommandApprove, owner, ApprovePayload{Token: token, Amount: amount})
	return err
}

func (c *Client) BalanceOf(account, token types.Address) *uint256.Int {
	return c.ledger.BalanceOf(account, token)
}

func (c *Client) Allowance(owner, token types.Address) *uint256.Int {
	return c.ledger.Allowance(owner, token)
}

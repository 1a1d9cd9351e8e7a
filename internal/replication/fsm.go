package replication

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/hashicorp/raft"

	"p2pswap/internal/custody"
	"p2pswap/internal/logging"
	"p2pswap/internal/matcher"
	"p2pswap/internal/types"
	"p2pswap/internal/venue"
)

// Clock is the replicated time source. The engine and venue read it; the
// FSM advances it from each committed command so every replica sees the
// same time and height.
type Clock struct {
	now    atomic.Uint64
	height atomic.Uint64
}

func NewClock() *Clock { return &Clock{} }

func (c *Clock) Now() uint64    { return c.now.Load() }
func (c *Clock) Height() uint64 { return c.height.Load() }

// advance moves the clock forward; a command stamped earlier than the last
// applied one does not move time backwards.
func (c *Clock) advance(ts, height uint64) {
	for {
		cur := c.now.Load()
		if ts <= cur || c.now.CompareAndSwap(cur, ts) {
			break
		}
	}
	c.height.Store(height)
}

// Result is what Apply hands back to the proposer. Err is the engine's
// verdict on the command, not a replication failure.
type Result struct {
	ID       types.Hash
	Matched  int
	Fallback *matcher.FallbackResult
	Err      error
}

// FSM implements raft.FSM over a local engine, its custody ledger and its
// venue.
type FSM struct {
	engine *matcher.Engine
	ledger *custody.Ledger
	amm    *venue.AMM
	clock  *Clock
	logger logging.Logger
}

// NewFSM wires the state machine. The engine and AMM must read time from
// clock.
func NewFSM(engine *matcher.Engine, ledger *custody.Ledger, amm *venue.AMM, clock *Clock, logger logging.Logger) *FSM {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &FSM{engine: engine, ledger: ledger, amm: amm, clock: clock, logger: logger}
}

// Apply is invoked once a Raft log entry is committed.
func (f *FSM) Apply(l *raft.Log) interface{} {
	cmd, err := UnmarshalCommand(l.Data)
	if err != nil {
		f.logger.Errorf("raft fsm: failed to decode log entry %d: %v", l.Index, err)
		return &Result{Err: err}
	}
	f.clock.advance(cmd.Timestamp, l.Index)
	res := f.apply(context.Background(), cmd)
	if res.Err != nil {
		f.logger.Debugf("raft fsm: %s by %s at index %d rejected: %v", cmd.Type, cmd.Caller.Hex(), l.Index, res.Err)
	}
	return res
}

func (f *FSM) apply(ctx context.Context, cmd *Command) *Result {
	res := &Result{}
	switch cmd.Type {
	case CommandSubmit:
		var req matcher.SubmitRequest
		if res.Err = cmd.Decode(&req); res.Err == nil {
			res.ID, res.Err = f.engine.Submit(ctx, cmd.Caller, req)
		}
	case CommandCancel:
		var p IntentPayload
		if res.Err = cmd.Decode(&p); res.Err == nil {
			res.Err = f.engine.Cancel(ctx, cmd.Caller, p.ID)
		}
	case CommandBatchMatch:
		var p BatchPayload
		if res.Err = cmd.Decode(&p); res.Err == nil {
			res.Matched, res.Err = f.engine.BatchMatch(ctx, cmd.Caller, p.IDs)
		}
	case CommandExecuteViaAMM:
		var p IntentPayload
		if res.Err = cmd.Decode(&p); res.Err == nil {
			res.Fallback, res.Err = f.engine.ExecuteViaAMM(ctx, cmd.Caller, p.ID)
		}
	case CommandAuthorizeRelayer:
		var p RelayerPayload
		if res.Err = cmd.Decode(&p); res.Err == nil {
			res.Err = f.engine.AuthorizeRelayer(ctx, cmd.Caller, p.Account, p.Authorized)
		}
	case CommandUpdateConfiguration:
		var p ConfigurationPayload
		if res.Err = cmd.Decode(&p); res.Err == nil {
			res.Err = f.engine.UpdateConfiguration(ctx, cmd.Caller, p.RewardBps, p.FeeBps)
		}
	case CommandEmergencyWithdraw:
		var p WithdrawPayload
		if res.Err = cmd.Decode(&p); res.Err == nil {
			res.Err = f.engine.EmergencyWithdraw(ctx, cmd.Caller, p.Token, p.To, p.Amount)
		}
	case CommandTransferOwnership:
		var p OwnershipPayload
		if res.Err = cmd.Decode(&p); res.Err == nil {
			res.Err = f.engine.TransferOwnership(ctx, cmd.Caller, p.Next)
		}
	case CommandApprove:
		var p ApprovePayload
		if res.Err = cmd.Decode(&p); res.Err == nil {
			if p.Amount == nil {
				res.Err = fmt.Errorf("approve: amount is required")
			} else {
				f.ledger.Approve(cmd.Caller, p.Token, p.Amount)
			}
		}
	default:
		res.Err = fmt.Errorf("%w: %d", ErrUnknownCommand, cmd.Type)
	}
	return res
}

// Snapshot captures engine, ledger and pool state. Raft never calls it
// concurrently with Apply.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	return &fsmSnapshot{
		Engine:     f.engine.Export(),
		Balances:   f.ledger.Export(),
		Allowances: f.ledger.Allowances(),
		Pools:      f.amm.Pools(),
		Now:        f.clock.Now(),
		Height:     f.clock.Height(),
	}, nil
}

// Restore restores FSM state from snapshot.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap fsmSnapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	if snap.Engine == nil {
		return fmt.Errorf("restore snapshot: missing engine state")
	}
	for _, p := range snap.Pools {
		if _, err := f.amm.CreatePool(p.Token0, p.Token1, p.Fee); err != nil && !errors.Is(err, venue.ErrPoolExists) {
			return fmt.Errorf("restore pool %s: %w", p.Account.Hex(), err)
		}
	}
	f.ledger.Restore(snap.Balances)
	f.ledger.RestoreAllowances(snap.Allowances)
	if err := f.engine.Restore(snap.Engine); err != nil {
		return fmt.Errorf("restore engine: %w", err)
	}
	f.clock.now.Store(snap.Now)
	f.clock.height.Store(snap.Height)
	f.logger.Infof("raft fsm: restored snapshot at height %d", snap.Height)
	return nil
}

type fsmSnapshot struct {
	Engine     *types.EngineState `json:"engine"`
	Balances   []custody.Balance  `json:"balances"`
	Allowances []custody.Balance  `json:"allowances"`
	Pools      []venue.Pool       `json:"pools"`
	Now        uint64             `json:"now"`
	Height     uint64             `json:"height"`
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if err := json.NewEncoder(sink).Encode(s); err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}

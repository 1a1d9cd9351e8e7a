package replication

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"p2pswap/internal/types"
)

var (
	ErrNotLeader      = errors.New("replication: not the raft leader")
	ErrUnknownCommand = errors.New("replication: unknown command type")
)

// CommandType enumerates the engine operations replicated through Raft.
type CommandType uint8

const (
	CommandSubmit CommandType = iota + 1
	CommandCancel
	CommandBatchMatch
	CommandExecuteViaAMM
	CommandAuthorizeRelayer
	CommandUpdateConfiguration
	CommandEmergencyWithdraw
	CommandTransferOwnership
	CommandApprove
)

func (t CommandType) String() string {
	switch t {
	case CommandSubmit:
		return "submit"
	case CommandCancel:
		return "cancel"
	case CommandBatchMatch:
		return "batch_match"
	case CommandExecuteViaAMM:
		return "execute_via_amm"
	case CommandAuthorizeRelayer:
		return "authorize_relayer"
	case CommandUpdateConfiguration:
		return "update_configuration"
	case CommandEmergencyWithdraw:
		return "emergency_withdraw"
	case CommandTransferOwnership:
		return "transfer_ownership"
	case CommandApprove:
		return "approve"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Command is the canonical payload replicated via the Raft log. Timestamp
// is stamped by the proposing node and becomes the engine clock on every
// replica.
type Command struct {
	Type      CommandType     `json:"type"`
	Caller    types.Address   `json:"caller"`
	Timestamp uint64          `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Payloads carried in Command.Data.
type (
	IntentPayload struct {
		ID types.Hash `json:"id"`
	}
	BatchPayload struct {
		IDs []types.Hash `json:"ids"`
	}
	RelayerPayload struct {
		Account    types.Address `json:"account"`
		Authorized bool          `json:"authorized"`
	}
	ConfigurationPayload struct {
		RewardBps uint16 `json:"reward_bps"`
		FeeBps    uint16 `json:"fee_bps"`
	}
	WithdrawPayload struct {
		Token  types.Address `json:"token"`
		To     types.Address `json:"to"`
		Amount *uint256.Int  `json:"amount"`
	}
	OwnershipPayload struct {
		Next types.Address `json:"next"`
	}
	ApprovePayload struct {
		Token  types.Address `json:"token"`
		Amount *uint256.Int  `json:"amount"`
	}
)

// NewCommand encodes payload into a command.
func NewCommand(typ CommandType, caller types.Address, timestamp uint64, payload interface{}) (*Command, error) {
	cmd := &Command{Type: typ, Caller: caller, Timestamp: timestamp}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", typ, err)
		}
		cmd.Data = raw
	}
	return cmd, nil
}

// Marshal marshals the command to JSON.
func (c *Command) Marshal() ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("command is nil")
	}
	return json.Marshal(c)
}

// Decode unpacks Data into v.
func (c *Command) Decode(v interface{}) error {
	if len(c.Data) == 0 {
		return fmt.Errorf("%s command has no payload", c.Type)
	}
	if err := json.Unmarshal(c.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", c.Type, err)
	}
	return nil
}

// UnmarshalCommand decodes a JSON encoded Command.
func UnmarshalCommand(data []byte) (*Command, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("invalid raft log payload: empty")
	}
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}
	return &cmd, nil
}

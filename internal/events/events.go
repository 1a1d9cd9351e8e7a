package events

import (
	"github.com/holiman/uint256"

	"p2pswap/internal/types"
)

const (
	TypeIntentSubmitted      = "IntentSubmitted"
	TypeIntentsMatched       = "IntentsMatched"
	TypeIntentExecutedViaAMM = "IntentExecutedViaAMM"
	TypeIntentCancelled      = "IntentCancelled"
	TypeRelayerAuthorized    = "RelayerAuthorized"
	TypeConfigurationUpdated = "ConfigurationUpdated"
	TypeEmergencyWithdrawal  = "EmergencyWithdrawal"
)

// Event is implemented by every audit record the engine emits.
type Event interface {
	EventType() string
}

// Emitter receives audit events after the producing operation has committed.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards every event.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}

type IntentSubmitted struct {
	IntentID       types.Hash    `json:"intent_id"`
	Owner          types.Address `json:"owner"`
	TokenIn        types.Address `json:"token_in"`
	TokenOut       types.Address `json:"token_out"`
	AmountIn       *uint256.Int  `json:"amount_in"`
	MinAmountOut   *uint256.Int  `json:"min_amount_out"`
	SourceChain    types.ChainID `json:"source_chain"`
	DestChain      types.ChainID `json:"dest_chain"`
	Deadline       uint64        `json:"deadline"`
	SequenceNumber uint64        `json:"sequence_number"`
}

func (IntentSubmitted) EventType() string { return TypeIntentSubmitted }

type IntentsMatched struct {
	Index          uint64        `json:"index"`
	IntentA        types.Hash    `json:"intent_a"`
	IntentB        types.Hash    `json:"intent_b"`
	MatchedAmount  *uint256.Int  `json:"matched_amount"`
	ExecutionPrice *uint256.Int  `json:"execution_price"`
	Executor       types.Address `json:"executor"`
}

func (IntentsMatched) EventType() string { return TypeIntentsMatched }

type IntentExecutedViaAMM struct {
	IntentID       types.Hash    `json:"intent_id"`
	Executor       types.Address `json:"executor"`
	AmountIn       *uint256.Int  `json:"amount_in"`
	AmountOut      *uint256.Int  `json:"amount_out"`
	ExecutionPrice *uint256.Int  `json:"execution_price"`
}

func (IntentExecutedViaAMM) EventType() string { return TypeIntentExecutedViaAMM }

type IntentCancelled struct {
	IntentID types.Hash    `json:"intent_id"`
	Owner    types.Address `json:"owner"`
	Refunded *uint256.Int  `json:"refunded"`
}

func (IntentCancelled) EventType() string { return TypeIntentCancelled }

type RelayerAuthorized struct {
	Relayer    types.Address `json:"relayer"`
	Authorized bool          `json:"authorized"`
}

func (RelayerAuthorized) EventType() string { return TypeRelayerAuthorized }

type ConfigurationUpdated struct {
	RewardBps uint16 `json:"reward_bps"`
	FeeBps    uint16 `json:"fee_bps"`
}

func (ConfigurationUpdated) EventType() string { return TypeConfigurationUpdated }

type EmergencyWithdrawal struct {
	Token  types.Address `json:"token"`
	To     types.Address `json:"to"`
	Amount *uint256.Int  `json:"amount"`
}

func (EmergencyWithdrawal) EventType() string { return TypeEmergencyWithdrawal }

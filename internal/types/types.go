package types

import (
	"fmt"
	"math"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Accounts and tokens share the 20-byte address space.
type Address = common.Address

// Hash identifies intents.
type Hash = common.Hash

const (
	// BasisPoints is the denominator for all bps-denominated values.
	BasisPoints = 10_000

	// MaxSlippageTolerance bounds Intent.MaxSlippage (10%).
	MaxSlippageTolerance = 1_000

	// MaxConfigBps bounds both reward and fee configuration values.
	MaxConfigBps = 1_000

	// DefaultMatchingWindow is the number of seconds an intent waits for a
	// peer before fallback becomes eligible for non-owners.
	DefaultMatchingWindow uint64 = 300

	// MaxTimestamp is the largest representable timestamp.
	MaxTimestamp uint64 = math.MaxUint64
)

// PricePrecision is the fixed-point scale of execution prices (1e18).
var PricePrecision = uint256.NewInt(1_000_000_000_000_000_000)

// ChainID identifies the chain a token lives on.
type ChainID uint64

// Pair keys the registry index: intents selling TokenIn for TokenOut.
type Pair struct {
	TokenIn  Address `json:"token_in"`
	TokenOut Address `json:"token_out"`
}

// Reverse returns the pair a counter-intent would be filed under.
func (p Pair) Reverse() Pair {
	return Pair{TokenIn: p.TokenOut, TokenOut: p.TokenIn}
}

func (p Pair) String() string {
	return fmt.Sprintf("%s/%s", p.TokenIn.Hex(), p.TokenOut.Hex())
}

// Intent is a standing request to exchange AmountIn of TokenIn for at least
// MinAmountOut of TokenOut.
type Intent struct {
	ID    Hash    `json:"id"`
	Owner Address `json:"owner"`

	TokenIn  Address `json:"token_in"`
	TokenOut Address `json:"token_out"`

	// AmountIn is the remaining unfilled input; it only decreases.
	AmountIn          *uint256.Int `json:"amount_in"`
	SubmittedAmountIn *uint256.Int `json:"submitted_amount_in"`
	// MinAmountOut applies to the submitted amount and is never rescaled.
	MinAmountOut *uint256.Int `json:"min_amount_out"`

	SourceChain ChainID `json:"source_chain"`
	DestChain   ChainID `json:"dest_chain"`

	Deadline    uint64 `json:"deadline"`
	MaxSlippage uint16 `json:"max_slippage"`

	Active    bool `json:"active"`
	Processed bool `json:"processed"`

	Timestamp      uint64 `json:"timestamp"`
	BlockHeight    uint64 `json:"block_height"`
	SequenceNumber uint64 `json:"sequence_number"`

	// Ordinal is the global insertion position, used to rebuild the pair
	// index in first-fit order after a restore.
	Ordinal uint64 `json:"ordinal"`
}

// Pair returns the index key of the intent.
func (i *Intent) Pair() Pair {
	return Pair{TokenIn: i.TokenIn, TokenOut: i.TokenOut}
}

// Expired reports whether now is strictly past the deadline.
func (i *Intent) Expired(now uint64) bool {
	return now > i.Deadline
}

// Open reports whether the intent can still be matched or executed.
func (i *Intent) Open() bool {
	return i.Active && !i.Processed
}

// Clone returns a deep copy so callers never share amount pointers with the
// registry.
func (i *Intent) Clone() *Intent {
	if i == nil {
		return nil
	}
	c := *i
	c.AmountIn = cloneAmount(i.AmountIn)
	c.SubmittedAmountIn = cloneAmount(i.SubmittedAmountIn)
	c.MinAmountOut = cloneAmount(i.MinAmountOut)
	return &c
}

// MatchedPair records one settlement between two intents. Immutable.
type MatchedPair struct {
	Index          uint64       `json:"index"`
	IntentA        Hash         `json:"intent_a"`
	IntentB        Hash         `json:"intent_b"`
	MatchedAmount  *uint256.Int `json:"matched_amount"`
	ExecutionPrice *uint256.Int `json:"execution_price"`
	Timestamp      uint64       `json:"timestamp"`
	Executor       Address      `json:"executor"`
}

func (m *MatchedPair) Clone() *MatchedPair {
	if m == nil {
		return nil
	}
	c := *m
	c.MatchedAmount = cloneAmount(m.MatchedAmount)
	c.ExecutionPrice = cloneAmount(m.ExecutionPrice)
	return &c
}

// Stats are process-wide monotonic counters.
type Stats struct {
	TotalIntents       uint64       `json:"total_intents"`
	SuccessfulMatches  uint64       `json:"successful_matches"`
	TotalVolumeMatched *uint256.Int `json:"total_volume_matched"`
	GasSaved           uint64       `json:"gas_saved"`
}

func NewStats() Stats {
	return Stats{TotalVolumeMatched: new(uint256.Int)}
}

func (s Stats) Clone() Stats {
	s.TotalVolumeMatched = cloneAmount(s.TotalVolumeMatched)
	return s
}

// Configuration holds the owner-tunable reward and fee parameters.
type Configuration struct {
	RewardBps uint16 `json:"reward_bps"`
	FeeBps    uint16 `json:"fee_bps"`
}

// DefaultConfiguration mirrors the deployment defaults.
func DefaultConfiguration() Configuration {
	return Configuration{RewardBps: 10, FeeBps: 30}
}

// Validate enforces the MaxConfigBps bound on both values.
func (c Configuration) Validate() error {
	if c.RewardBps > MaxConfigBps {
		return fmt.Errorf("reward %d bps exceeds %d", c.RewardBps, MaxConfigBps)
	}
	if c.FeeBps > MaxConfigBps {
		return fmt.Errorf("fee %d bps exceeds %d", c.FeeBps, MaxConfigBps)
	}
	return nil
}

// EngineState is the full serialisable state of the matching engine. It is
// used for raft snapshots and for recovery from the durable store.
type EngineState struct {
	Owner         Address            `json:"owner"`
	Intents       []*Intent          `json:"intents"`
	MatchedPairs  []*MatchedPair     `json:"matched_pairs"`
	Stats         Stats              `json:"stats"`
	Relayers      map[Address]bool   `json:"relayers"`
	Configuration Configuration      `json:"configuration"`
	Sequences     map[Address]uint64 `json:"sequences"`
	Height        uint64             `json:"height"`
}

// SortIntents orders intents by insertion ordinal.
func SortIntents(intents []*Intent) {
	sort.Slice(intents, func(i, j int) bool {
		return intents[i].Ordinal < intents[j].Ordinal
	})
}

// ParseAmount parses a decimal or 0x-prefixed hex amount.
func ParseAmount(s string) (*uint256.Int, error) {
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return uint256.FromHex(s)
	}
	return uint256.FromDecimal(s)
}

func cloneAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return nil
	}
	return new(uint256.Int).Set(v)
}

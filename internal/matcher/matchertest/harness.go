// Package matchertest provides an engine wired to in-memory collaborators
// for tests in other packages.
package matchertest

import (
	"context"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"p2pswap/internal/custody"
	"p2pswap/internal/events"
	"p2pswap/internal/logging"
	"p2pswap/internal/matcher"
	"p2pswap/internal/storage"
	"p2pswap/internal/types"
	"p2pswap/internal/venue"
)

// Fixed accounts and tokens.
var (
	Owner   = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	Holding = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	LP      = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	TokenA  = common.HexToAddress("0x000000000000000000000000000000000000a000")
	TokenB  = common.HexToAddress("0x000000000000000000000000000000000000b000")

	StartTime uint64 = 1_700_000_000
)

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now uint64
}

func NewClock(start uint64) *Clock { return &Clock{now: start} }

func (c *Clock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(sec uint64) {
	c.mu.Lock()
	c.now += sec
	c.mu.Unlock()
}

// Harness bundles an engine with in-memory collaborators.
type Harness struct {
	Engine *matcher.Engine
	Ledger *custody.Ledger
	AMM    *venue.AMM
	Store  *storage.InMemory
	Events *events.Recorder
	Clock  *Clock
}

// NewHarness builds an engine over a fresh ledger with a seeded
// TokenA/TokenB pool at the fallback fee tier.
func NewHarness(t testing.TB, cfg *matcher.Config) *Harness {
	t.Helper()
	if cfg == nil {
		cfg = matcher.DefaultConfig()
	}
	logger := logging.NewNopLogger()
	clock := NewClock(StartTime)
	ledger := custody.NewLedger(Holding, logger)

	amm := venue.NewAMM(ledger, logger)
	amm.SetNowFunc(clock.Now)
	fee := cfg.FallbackFeeTier
	if fee == 0 {
		fee = venue.FeeTierMedium
	}
	_, err := amm.CreatePool(TokenA, TokenB, fee)
	require.NoError(t, err)
	require.NoError(t, ledger.Mint(LP, TokenA, uint256.NewInt(1_000_000)))
	require.NoError(t, ledger.Mint(LP, TokenB, uint256.NewInt(1_000_000)))
	require.NoError(t, amm.AddLiquidity(context.Background(), LP, TokenA, TokenB, fee,
		uint256.NewInt(1_000_000), uint256.NewInt(1_000_000)))

	rec := &events.Recorder{}
	store := storage.NewInMemory()
	engine, err := matcher.NewEngine(cfg, matcher.Options{
		Owner:   Owner,
		Custody: ledger,
		Venue:   amm,
		Store:   store,
		Emitter: rec,
		Logger:  logger,
		Now:     clock.Now,
	})
	require.NoError(t, err)

	return &Harness{Engine: engine, Ledger: ledger, AMM: amm, Store: store, Events: rec, Clock: clock}
}

// Fund mints amount of token to account and approves custody for it.
func (h *Harness) Fund(t testing.TB, account, token types.Address, amount uint64) {
	t.Helper()
	require.NoError(t, h.Ledger.Mint(account, token, uint256.NewInt(amount)))
	h.Ledger.Approve(account, token, new(uint256.Int).Add(h.Ledger.Allowance(account, token), uint256.NewInt(amount)))
}

// Request builds a submit request with minAmountOut equal to amountIn.
func Request(tokenIn, tokenOut types.Address, amountIn uint64, src, dst types.ChainID) matcher.SubmitRequest {
	return matcher.SubmitRequest{
		TokenIn:      tokenIn,
		TokenOut:     tokenOut,
		AmountIn:     uint256.NewInt(amountIn),
		MinAmountOut: uint256.NewInt(amountIn),
		SourceChain:  src,
		DestChain:    dst,
		MaxSlippage:  50,
	}
}

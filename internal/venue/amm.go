package venue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"p2pswap/internal/custody"
	"p2pswap/internal/logging"
	"p2pswap/internal/types"
)

// Fee tiers in hundredths of a basis point.
const (
	FeeTierLow    uint32 = 500
	FeeTierMedium uint32 = 3000
	FeeTierHigh   uint32 = 10000

	feeDenominator = 1_000_000
)

var (
	ErrPoolNotFound          = errors.New("venue: pool not found")
	ErrPoolExists            = errors.New("venue: pool already exists")
	ErrUnsupportedFee        = errors.New("venue: unsupported fee tier")
	ErrTransactionExpired    = errors.New("venue: transaction too old")
	ErrInsufficientOutput    = errors.New("venue: too little received")
	ErrInsufficientLiquidity = errors.New("venue: insufficient liquidity")
	ErrIdenticalTokens       = errors.New("venue: identical tokens")
	ErrMathOverflow          = errors.New("venue: math overflow")
)

// SwapParams mirrors an exact-input single-pool swap.
type SwapParams struct {
	TokenIn          types.Address
	TokenOut         types.Address
	Fee              uint32
	Payer            types.Address
	Recipient        types.Address
	Deadline         uint64
	AmountIn         *uint256.Int
	AmountOutMinimum *uint256.Int
}

// Venue is the external execution venue used for fallback settlement.
type Venue interface {
	ExactInputSingle(ctx context.Context, p SwapParams) (*uint256.Int, error)
}

type ledger interface {
	Apply(ctx context.Context, transfers ...custody.Transfer) error
	BalanceOf(account, token types.Address) *uint256.Int
}

type poolKey struct {
	token0 types.Address
	token1 types.Address
	fee    uint32
}

// Pool is a constant-product pool whose reserves are the ledger balances of
// its own account.
type Pool struct {
	Token0  types.Address `json:"token0"`
	Token1  types.Address `json:"token1"`
	Fee     uint32        `json:"fee"`
	Account types.Address `json:"account"`
}

// AMM routes swaps through constant-product pools settled on a custody ledger.
type AMM struct {
	mu     sync.Mutex
	ledger ledger
	pools  map[poolKey]*Pool
	nowFn  func() uint64
	logger logging.Logger
}

func NewAMM(l ledger, logger logging.Logger) *AMM {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &AMM{
		ledger: l,
		pools:  make(map[poolKey]*Pool),
		nowFn:  func() uint64 { return uint64(time.Now().Unix()) },
		logger: logger,
	}
}

// SetNowFunc overrides the clock used for deadline checks.
func (a *AMM) SetNowFunc(now func() uint64) {
	if now == nil {
		now = func() uint64 { return uint64(time.Now().Unix()) }
	}
	a.mu.Lock()
	a.nowFn = now
	a.mu.Unlock()
}

func sortTokens(a, b types.Address) (types.Address, types.Address) {
	if a.Cmp(b) < 0 {
		return a, b
	}
	return b, a
}

func validFee(fee uint32) bool {
	return fee == FeeTierLow || fee == FeeTierMedium || fee == FeeTierHigh
}

// PoolAddress derives the account holding a pool's reserves.
func PoolAddress(tokenA, tokenB types.Address, fee uint32) types.Address {
	t0, t1 := sortTokens(tokenA, tokenB)
	h := crypto.Keccak256([]byte("p2pswap/pool"), t0.Bytes(), t1.Bytes(), uint256.NewInt(uint64(fee)).PaddedBytes(32))
	return common.BytesToAddress(h[12:])
}

// CreatePool registers an empty pool.
func (a *AMM) CreatePool(tokenA, tokenB types.Address, fee uint32) (*Pool, error) {
	if tokenA == tokenB {
		return nil, ErrIdenticalTokens
	}
	if !validFee(fee) {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFee, fee)
	}
	t0, t1 := sortTokens(tokenA, tokenB)
	key := poolKey{t0, t1, fee}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.pools[key]; ok {
		return nil, ErrPoolExists
	}
	p := &Pool{Token0: t0, Token1: t1, Fee: fee, Account: PoolAddress(t0, t1, fee)}
	a.pools[key] = p
	a.logger.Infof("Created pool %s/%s fee=%d account=%s", t0.Hex(), t1.Hex(), fee, p.Account.Hex())
	cp := *p
	return &cp, nil
}

// AddLiquidity moves reserves from provider into the pool account.
func (a *AMM) AddLiquidity(ctx context.Context, provider, tokenA, tokenB types.Address, fee uint32, amountA, amountB *uint256.Int) error {
	pool, err := a.pool(tokenA, tokenB, fee)
	if err != nil {
		return err
	}
	return a.ledger.Apply(ctx,
		custody.Transfer{From: provider, To: pool.Account, Token: tokenA, Amount: amountA},
		custody.Transfer{From: provider, To: pool.Account, Token: tokenB, Amount: amountB},
	)
}

// Reserves returns the pool's reserves of tokenIn and tokenOut.
func (a *AMM) Reserves(tokenIn, tokenOut types.Address, fee uint32) (*uint256.Int, *uint256.Int, error) {
	pool, err := a.pool(tokenIn, tokenOut, fee)
	if err != nil {
		return nil, nil, err
	}
	return a.ledger.BalanceOf(pool.Account, tokenIn), a.ledger.BalanceOf(pool.Account, tokenOut), nil
}

// Pools lists registered pools in token order.
func (a *AMM) Pools() []Pool {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Pool, 0, len(a.pools))
	for _, p := range a.pools {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Token0 != out[j].Token0 {
			return out[i].Token0.Cmp(out[j].Token0) < 0
		}
		if out[i].Token1 != out[j].Token1 {
			return out[i].Token1.Cmp(out[j].Token1) < 0
		}
		return out[i].Fee < out[j].Fee
	})
	return out
}

// Quote returns the output of swapping amountIn without executing it.
func (a *AMM) Quote(tokenIn, tokenOut types.Address, fee uint32, amountIn *uint256.Int) (*uint256.Int, error) {
	reserveIn, reserveOut, err := a.Reserves(tokenIn, tokenOut, fee)
	if err != nil {
		return nil, err
	}
	return getAmountOut(amountIn, reserveIn, reserveOut, fee)
}

func (a *AMM) ExactInputSingle(ctx context.Context, p SwapParams) (*uint256.Int, error) {
	a.mu.Lock()
	now := a.nowFn()
	a.mu.Unlock()
	if now > p.Deadline {
		return nil, ErrTransactionExpired
	}
	pool, err := a.pool(p.TokenIn, p.TokenOut, p.Fee)
	if err != nil {
		return nil, err
	}
	out, err := a.Quote(p.TokenIn, p.TokenOut, p.Fee, p.AmountIn)
	if err != nil {
		return nil, err
	}
	if p.AmountOutMinimum != nil && out.Lt(p.AmountOutMinimum) {
		return nil, fmt.Errorf("%w: got %s, want at least %s", ErrInsufficientOutput, out.Dec(), p.AmountOutMinimum.Dec())
	}
	err = a.ledger.Apply(ctx,
		custody.Transfer{From: p.Payer, To: pool.Account, Token: p.TokenIn, Amount: p.AmountIn},
		custody.Transfer{From: pool.Account, To: p.Recipient, Token: p.TokenOut, Amount: out},
	)
	if err != nil {
		return nil, fmt.Errorf("venue: settle swap: %w", err)
	}
	a.logger.Debugf("Swapped %s %s for %s %s via pool %s",
		p.AmountIn.Dec(), p.TokenIn.Hex(), out.Dec(), p.TokenOut.Hex(), pool.Account.Hex())
	return out, nil
}

func (a *AMM) pool(tokenA, tokenB types.Address, fee uint32) (*Pool, error) {
	t0, t1 := sortTokens(tokenA, tokenB)
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.pools[poolKey{t0, t1, fee}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s fee=%d", ErrPoolNotFound, t0.Hex(), t1.Hex(), fee)
	}
	return p, nil
}

// getAmountOut applies x*y=k after taking the fee from the input.
func getAmountOut(amountIn, reserveIn, reserveOut *uint256.Int, fee uint32) (*uint256.Int, error) {
	if amountIn == nil || amountIn.IsZero() {
		return new(uint256.Int), nil
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	inWithFee, overflow := new(uint256.Int).MulOverflow(amountIn, uint256.NewInt(uint64(feeDenominator-fee)))
	if overflow {
		return nil, ErrMathOverflow
	}
	scaledReserve, overflow := new(uint256.Int).MulOverflow(reserveIn, uint256.NewInt(feeDenominator))
	if overflow {
		return nil, ErrMathOverflow
	}
	denominator, overflow := new(uint256.Int).AddOverflow(scaledReserve, inWithFee)
	if overflow {
		return nil, ErrMathOverflow
	}
	out, overflow := new(uint256.Int).MulDivOverflow(inWithFee, reserveOut, denominator)
	if overflow {
		return nil, ErrMathOverflow
	}
	if out.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	return out, nil
}

package venue

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p2pswap/internal/custody"
	"p2pswap/internal/logging"
)

var (
	holding  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	provider = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	user     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	tokenX   = common.HexToAddress("0x0000000000000000000000000000000000001111")
	tokenY   = common.HexToAddress("0x0000000000000000000000000000000000002222")
)

func newTestAMM(t *testing.T, reserve uint64) (*AMM, *custody.Ledger) {
	t.Helper()
	l := custody.NewLedger(holding, logging.NewNopLogger())
	require.NoError(t, l.Mint(provider, tokenX, uint256.NewInt(reserve)))
	require.NoError(t, l.Mint(provider, tokenY, uint256.NewInt(reserve)))
	require.NoError(t, l.Mint(holding, tokenX, uint256.NewInt(10_000)))

	amm := NewAMM(l, logging.NewNopLogger())
	amm.SetNowFunc(func() uint64 { return 1_000 })
	_, err := amm.CreatePool(tokenX, tokenY, FeeTierMedium)
	require.NoError(t, err)
	require.NoError(t, amm.AddLiquidity(context.Background(), provider, tokenX, tokenY, FeeTierMedium,
		uint256.NewInt(reserve), uint256.NewInt(reserve)))
	return amm, l
}

func TestGetAmountOut(t *testing.T) {
	// 1000 in against 1_000_000/1_000_000 with 0.3% fee:
	// 997000*1e6 / (1e6*1e6 + 997000) = 996.00...
	out, err := getAmountOut(uint256.NewInt(1_000), uint256.NewInt(1_000_000), uint256.NewInt(1_000_000), FeeTierMedium)
	require.NoError(t, err)
	assert.Equal(t, uint64(996), out.Uint64())

	_, err = getAmountOut(uint256.NewInt(1), new(uint256.Int), uint256.NewInt(5), FeeTierMedium)
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestExactInputSingleSettlesThroughLedger(t *testing.T) {
	amm, l := newTestAMM(t, 1_000_000)

	out, err := amm.ExactInputSingle(context.Background(), SwapParams{
		TokenIn: tokenX, TokenOut: tokenY, Fee: FeeTierMedium,
		Payer: holding, Recipient: user, Deadline: 1_300,
		AmountIn: uint256.NewInt(1_000), AmountOutMinimum: uint256.NewInt(990),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(996), out.Uint64())
	assert.Equal(t, uint64(996), l.BalanceOf(user, tokenY).Uint64())
	assert.Equal(t, uint64(9_000), l.BalanceOf(holding, tokenX).Uint64())

	rin, rout, err := amm.Reserves(tokenX, tokenY, FeeTierMedium)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_001_000), rin.Uint64())
	assert.Equal(t, uint64(1_000_000-996), rout.Uint64())
}

func TestExactInputSingleFloorAndDeadline(t *testing.T) {
	amm, l := newTestAMM(t, 1_000_000)
	ctx := context.Background()
	params := SwapParams{
		TokenIn: tokenX, TokenOut: tokenY, Fee: FeeTierMedium,
		Payer: holding, Recipient: user, Deadline: 1_300,
		AmountIn: uint256.NewInt(1_000), AmountOutMinimum: uint256.NewInt(1_000),
	}

	_, err := amm.ExactInputSingle(ctx, params)
	require.ErrorIs(t, err, ErrInsufficientOutput)
	assert.Equal(t, uint64(10_000), l.BalanceOf(holding, tokenX).Uint64())

	params.AmountOutMinimum = uint256.NewInt(1)
	params.Deadline = 999
	_, err = amm.ExactInputSingle(ctx, params)
	require.ErrorIs(t, err, ErrTransactionExpired)

	params.Deadline = 1_300
	params.Fee = FeeTierLow
	_, err = amm.ExactInputSingle(ctx, params)
	require.ErrorIs(t, err, ErrPoolNotFound)
}

func TestCreatePoolValidation(t *testing.T) {
	amm, _ := newTestAMM(t, 10)

	_, err := amm.CreatePool(tokenX, tokenX, FeeTierLow)
	assert.ErrorIs(t, err, ErrIdenticalTokens)
	_, err = amm.CreatePool(tokenX, tokenY, 42)
	assert.ErrorIs(t, err, ErrUnsupportedFee)
	_, err = amm.CreatePool(tokenY, tokenX, FeeTierMedium)
	assert.ErrorIs(t, err, ErrPoolExists)

	pools := amm.Pools()
	require.Len(t, pools, 1)
	assert.Equal(t, PoolAddress(tokenY, tokenX, FeeTierMedium), pools[0].Account)
}

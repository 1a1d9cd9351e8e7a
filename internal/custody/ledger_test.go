package custody

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p2pswap/internal/logging"
)

var (
	holding = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob     = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	tokenX  = common.HexToAddress("0x0000000000000000000000000000000000001111")
	tokenY  = common.HexToAddress("0x0000000000000000000000000000000000002222")
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l := NewLedger(holding, logging.NewNopLogger())
	require.NoError(t, l.Mint(alice, tokenX, uint256.NewInt(1_000)))
	require.NoError(t, l.Mint(bob, tokenY, uint256.NewInt(1_000)))
	return l
}

func TestTransferInRequiresAllowance(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	err := l.TransferIn(ctx, alice, tokenX, uint256.NewInt(100))
	require.ErrorIs(t, err, ErrInsufficientAllowance)
	assert.True(t, l.BalanceOf(holding, tokenX).IsZero())

	l.Approve(alice, tokenX, uint256.NewInt(150))
	require.NoError(t, l.TransferIn(ctx, alice, tokenX, uint256.NewInt(100)))
	assert.Equal(t, uint64(100), l.BalanceOf(holding, tokenX).Uint64())
	assert.Equal(t, uint64(900), l.BalanceOf(alice, tokenX).Uint64())
	assert.Equal(t, uint64(50), l.Allowance(alice, tokenX).Uint64())
}

func TestTransferInInsufficientBalanceKeepsAllowance(t *testing.T) {
	l := newTestLedger(t)
	l.Approve(alice, tokenX, uint256.NewInt(5_000))

	err := l.TransferIn(context.Background(), alice, tokenX, uint256.NewInt(2_000))
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, uint64(5_000), l.Allowance(alice, tokenX).Uint64())
	assert.Equal(t, uint64(1_000), l.BalanceOf(alice, tokenX).Uint64())
}

func TestReverseInRestoresAllowance(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	l.Approve(alice, tokenX, uint256.NewInt(150))
	require.NoError(t, l.TransferIn(ctx, alice, tokenX, uint256.NewInt(100)))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	require.NoError(t, l.ReverseIn(cancelled, alice, tokenX, uint256.NewInt(100)))
	assert.True(t, l.BalanceOf(holding, tokenX).IsZero())
	assert.Equal(t, uint64(1_000), l.BalanceOf(alice, tokenX).Uint64())
	assert.Equal(t, uint64(150), l.Allowance(alice, tokenX).Uint64())

	err := l.ReverseIn(ctx, alice, tokenX, uint256.NewInt(1))
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, uint64(150), l.Allowance(alice, tokenX).Uint64())
}

func TestApplyIsAllOrNothing(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	l.Approve(alice, tokenX, uint256.NewInt(100))
	require.NoError(t, l.TransferIn(ctx, alice, tokenX, uint256.NewInt(100)))

	// Second leg has no backing balance; the first leg must not land.
	err := l.Apply(ctx,
		Transfer{From: holding, To: bob, Token: tokenX, Amount: uint256.NewInt(100)},
		Transfer{From: holding, To: alice, Token: tokenY, Amount: uint256.NewInt(100)},
	)
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, uint64(100), l.BalanceOf(holding, tokenX).Uint64())
	assert.True(t, l.BalanceOf(bob, tokenX).IsZero())
}

func TestApplyCountsEarlierLegs(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	// Two debits of 600 from a balance of 1000 must fail together.
	err := l.Apply(ctx,
		Transfer{From: alice, To: bob, Token: tokenX, Amount: uint256.NewInt(600)},
		Transfer{From: alice, To: bob, Token: tokenX, Amount: uint256.NewInt(600)},
	)
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, uint64(1_000), l.BalanceOf(alice, tokenX).Uint64())
}

func TestTransferOutAndZeroAddress(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, l.Mint(holding, tokenY, uint256.NewInt(10)))

	require.ErrorIs(t, l.TransferOut(ctx, tokenY, common.Address{}, uint256.NewInt(1)), ErrZeroAddress)
	require.NoError(t, l.TransferOut(ctx, tokenY, alice, uint256.NewInt(10)))
	assert.Equal(t, uint64(10), l.BalanceOf(alice, tokenY).Uint64())
	require.ErrorIs(t, l.TransferOut(ctx, tokenY, alice, uint256.NewInt(1)), ErrInsufficientBalance)
}

func TestCancelledContextAborts(t *testing.T) {
	l := newTestLedger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.Apply(ctx, Transfer{From: alice, To: bob, Token: tokenX, Amount: uint256.NewInt(1)})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(1_000), l.BalanceOf(alice, tokenX).Uint64())
}

func TestExportRestore(t *testing.T) {
	l := newTestLedger(t)
	snap := l.Export()
	require.Len(t, snap, 2)

	other := NewLedger(holding, logging.NewNopLogger())
	other.Restore(snap)
	assert.Equal(t, uint64(1_000), other.BalanceOf(alice, tokenX).Uint64())
	assert.Equal(t, uint64(1_000), other.BalanceOf(bob, tokenY).Uint64())
	assert.Equal(t, snap, other.Export())
}

func TestAllowancesRoundTrip(t *testing.T) {
	l := newTestLedger(t)
	l.Approve(alice, tokenX, uint256.NewInt(250))
	allowances := l.Allowances()
	require.Len(t, allowances, 1)

	other := NewLedger(holding, logging.NewNopLogger())
	other.Restore(l.Export())
	assert.True(t, other.Allowance(alice, tokenX).IsZero())
	other.RestoreAllowances(allowances)
	assert.Equal(t, uint64(250), other.Allowance(alice, tokenX).Uint64())
	require.NoError(t, other.TransferIn(context.Background(), alice, tokenX, uint256.NewInt(250)))
	assert.Empty(t, other.Allowances())
}

package matcher

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p2pswap/internal/types"
)

func TestExecutionPrice(t *testing.T) {
	a := &types.Intent{AmountIn: uint256.NewInt(100), MinAmountOut: uint256.NewInt(200)}
	b := &types.Intent{AmountIn: uint256.NewInt(300), MinAmountOut: uint256.NewInt(100)}
	// (2e18 + 3e18) / 2
	p, err := executionPrice(a, b)
	require.NoError(t, err)
	assert.Equal(t, "2500000000000000000", p.Dec())

	huge := new(uint256.Int).SetAllOne()
	_, err = executionPrice(&types.Intent{AmountIn: uint256.NewInt(1), MinAmountOut: huge}, b)
	require.ErrorIs(t, err, ErrPriceOverflow)
}

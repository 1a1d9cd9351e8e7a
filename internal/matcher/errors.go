package matcher

import "errors"

// Validation errors. Returned before any custody movement.
var (
	ErrSameToken        = errors.New("matcher: tokenIn equals tokenOut")
	ErrZeroAmount       = errors.New("matcher: amountIn is zero")
	ErrZeroMinAmountOut = errors.New("matcher: minAmountOut is zero")
	ErrSlippageTooHigh  = errors.New("matcher: maxSlippage exceeds tolerance")
	ErrDeadlineOverflow = errors.New("matcher: deadline overflows timestamp")
	ErrConfigOutOfRange = errors.New("matcher: configuration value out of range")
	ErrZeroAddress      = errors.New("matcher: zero address")
)

// Authorization errors.
var (
	ErrNotIntentOwner = errors.New("matcher: caller is not the intent owner")
	ErrNotRelayer     = errors.New("matcher: caller is not an authorized relayer")
	ErrNotOwner       = errors.New("matcher: caller is not the engine owner")
)

// State errors.
var (
	ErrIntentNotFound     = errors.New("matcher: intent not found")
	ErrIntentInactive     = errors.New("matcher: intent is not active")
	ErrIntentProcessed    = errors.New("matcher: intent already processed")
	ErrDeadlineNotReached = errors.New("matcher: deadline not reached")
	ErrReentrantCall      = errors.New("matcher: reentrant call")
	ErrPriceOverflow      = errors.New("matcher: execution price overflow")
)

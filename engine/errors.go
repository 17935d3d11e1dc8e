package engine

import (
	"errors"

	"github.com/defiswap/defiswap-core-go/amm/calculator"
)

var (
	// ErrDeadlineExpired is returned when the clock has passed the caller's deadline.
	ErrDeadlineExpired = errors.New("deadline expired")
	// ErrInvalidAmount is returned for zero, negative or missing amounts.
	// Shared with the calculator so errors.Is matches either source.
	ErrInvalidAmount = calculator.ErrInvalidAmount
	// ErrInvalidReserves is returned when pricing against non-positive reserves.
	ErrInvalidReserves = calculator.ErrInvalidReserves
	// ErrSlippageExceeded is returned when a computed amount falls below the caller's minimum.
	ErrSlippageExceeded = errors.New("slippage exceeded")
	// ErrInsufficientShares is returned when a caller burns more shares than it holds.
	ErrInsufficientShares = errors.New("insufficient shares")
	// ErrUnsupportedPath is returned for anything but a direct two-asset pair.
	ErrUnsupportedPath = errors.New("unsupported path")
	// ErrEmptyPool is returned by price queries against a pool with zero reserves.
	ErrEmptyPool = errors.New("empty pool")
	// ErrTransferFailed wraps a failure reported by the asset ledger collaborator.
	ErrTransferFailed = errors.New("transfer failed")
)

package engine

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// AssetLedger is the custody boundary every mutating operation calls out to.
// Both calls must be atomic: either the full amount moves or nothing does.
// The engine never retries; a failure aborts the enclosing operation.
type AssetLedger interface {
	// Pull moves amount of asset from one account into another.
	Pull(ctx context.Context, asset common.Address, from, to common.Address, amount *big.Int) error
	// Push releases amount of asset from custody to an account.
	Push(ctx context.Context, asset common.Address, to common.Address, amount *big.Int) error
}

// Clock supplies the current time for deadline checks. Injectable so tests
// run deterministically.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a plain function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SwapEvent describes an executed swap for downstream consumers.
type SwapEvent struct {
	Initiator common.Address `json:"initiator"`
	AssetIn   common.Address `json:"assetIn"`
	AssetOut  common.Address `json:"assetOut"`
	AmountIn  *big.Int       `json:"amountIn"`
	AmountOut *big.Int       `json:"amountOut"`
}

// EventSink receives swap notifications. Fire-and-forget: the engine ignores
// everything about the delivery, including whether anyone listens.
type EventSink interface {
	NotifySwap(event SwapEvent)
}

// nopSink discards every event.
type nopSink struct{}

func (nopSink) NotifySwap(SwapEvent) {}

// AddLiquidityParams are the inputs for AddLiquidity. Assets may be given in
// either order; amounts follow the order of the assets as written here.
type AddLiquidityParams struct {
	AssetA         common.Address
	AssetB         common.Address
	AmountADesired *big.Int
	AmountBDesired *big.Int
	AmountAMin     *big.Int
	AmountBMin     *big.Int
	Recipient      common.Address
	Deadline       time.Time
}

// RemoveLiquidityParams are the inputs for RemoveLiquidity.
type RemoveLiquidityParams struct {
	AssetA     common.Address
	AssetB     common.Address
	Shares     *big.Int
	AmountAMin *big.Int
	AmountBMin *big.Int
	Recipient  common.Address
	Deadline   time.Time
}

// SwapParams are the inputs for Swap. Exactly one direct pair; no routing.
type SwapParams struct {
	AssetIn      common.Address
	AssetOut     common.Address
	AmountIn     *big.Int
	AmountOutMin *big.Int
	Recipient    common.Address
	Deadline     time.Time
}

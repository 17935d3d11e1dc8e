package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/defiswap/defiswap-core-go/amm"
	"github.com/defiswap/defiswap-core-go/amm/calculator"
	"github.com/defiswap/defiswap-core-go/registry"
)

// Operation labels used in metrics.
const (
	opAddLiquidity    = "add_liquidity"
	opRemoveLiquidity = "remove_liquidity"
	opSwap            = "swap"
)

// Config holds the configuration for the engine.
type Config struct {
	Registry *registry.Registry
	Ledger   AssetLedger
	// Custodian is the account that holds pooled reserves on the ledger.
	Custodian          common.Address
	Clock              Clock     // optional; defaults to the wall clock
	Events             EventSink // optional; defaults to a discarding sink
	Logger             Logger
	PrometheusRegistry prometheus.Registerer
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	if c.Ledger == nil {
		return errors.New("config: Ledger is required")
	}
	if c.Custodian == (common.Address{}) {
		return errors.New("config: Custodian is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.PrometheusRegistry == nil {
		return errors.New("config: PrometheusRegistry is required")
	}
	return nil
}

// Engine executes liquidity and swap operations against the pool registry.
// Every mutating operation runs as an indivisible unit against its pool:
// changes are staged on a clone and committed only after every ledger call
// succeeded, so no caller ever observes a partially updated pool.
type Engine struct {
	registry  *registry.Registry
	ledger    AssetLedger
	custodian common.Address
	clock     Clock
	events    EventSink
	logger    Logger
	metrics   *Metrics
}

// New constructs an engine from a configuration, returning an error if the
// configuration is invalid.
func New(cfg *Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	clock := cfg.Clock
	if clock == nil {
		clock = ClockFunc(time.Now)
	}
	events := cfg.Events
	if events == nil {
		events = nopSink{}
	}

	reg := cfg.Registry
	return &Engine{
		registry:  reg,
		ledger:    cfg.Ledger,
		custodian: cfg.Custodian,
		clock:     clock,
		events:    events,
		logger:    cfg.Logger,
		metrics: NewMetrics(cfg.PrometheusRegistry, func() float64 {
			return float64(reg.Len())
		}),
	}, nil
}

// AddLiquidity pulls paired assets from sender into custody and mints shares
// to the recipient. On an empty pool the minted amount is
// IntegerSqrt(amountA*amountB), fixing the share-unit scale for the pool's
// lifetime; afterwards deposits are clamped to the pool ratio and minted
// proportionally to the more constrained side. Returns the amounts actually
// taken (in the caller's asset order) and the shares minted.
func (e *Engine) AddLiquidity(ctx context.Context, sender common.Address, p AddLiquidityParams) (amountA, amountB, minted *big.Int, err error) {
	timer := prometheus.NewTimer(e.metrics.opDuration.WithLabelValues(opAddLiquidity))
	defer func() { e.metrics.observe(opAddLiquidity, err, timer) }()

	if err = e.checkDeadline(p.Deadline); err != nil {
		return nil, nil, nil, err
	}
	if p.AssetA == p.AssetB {
		return nil, nil, nil, fmt.Errorf("%w: identical assets %s", ErrUnsupportedPath, p.AssetA.Hex())
	}
	if err = requirePositive("amountAMin", p.AmountAMin); err != nil {
		return nil, nil, nil, err
	}
	if err = requirePositive("amountBMin", p.AmountBMin); err != nil {
		return nil, nil, nil, err
	}
	if err = requireAtLeast("amountADesired", p.AmountADesired, p.AmountAMin); err != nil {
		return nil, nil, nil, err
	}
	if err = requireAtLeast("amountBDesired", p.AmountBDesired, p.AmountBMin); err != nil {
		return nil, nil, nil, err
	}

	key := registry.ResolvePair(p.AssetA, p.AssetB)
	flipped := key.AssetA != p.AssetA
	desiredA, desiredB := p.AmountADesired, p.AmountBDesired
	minA, minB := p.AmountAMin, p.AmountBMin
	if flipped {
		desiredA, desiredB = desiredB, desiredA
		minA, minB = minB, minA
	}

	var takeA, takeB, mintedShares *big.Int
	err = e.registry.Update(key, func(pool *amm.Pool) error {
		var planErr error
		takeA, takeB, mintedShares, planErr = planDeposit(pool, desiredA, desiredB, minA, minB)
		if planErr != nil {
			return planErr
		}

		if err := e.ledger.Pull(ctx, key.AssetA, sender, e.custodian, takeA); err != nil {
			return fmt.Errorf("%w: pulling %s of %s: %w", ErrTransferFailed, takeA, key.AssetA.Hex(), err)
		}
		if err := e.ledger.Pull(ctx, key.AssetB, sender, e.custodian, takeB); err != nil {
			e.compensatePush(ctx, key.AssetA, sender, takeA)
			return fmt.Errorf("%w: pulling %s of %s: %w", ErrTransferFailed, takeB, key.AssetB.Hex(), err)
		}

		pool.ReserveA.Add(pool.ReserveA, takeA)
		pool.ReserveB.Add(pool.ReserveB, takeB)
		pool.TotalShares.Add(pool.TotalShares, mintedShares)
		creditShares(pool, p.Recipient, mintedShares)
		return nil
	})
	if err != nil {
		// A persist failure means both pulls already succeeded but the
		// staged pool was discarded; return the funds.
		if errors.Is(err, registry.ErrPersistFailed) {
			e.compensatePush(ctx, key.AssetA, sender, takeA)
			e.compensatePush(ctx, key.AssetB, sender, takeB)
		}
		return nil, nil, nil, err
	}

	e.logger.Debug("liquidity added",
		"pair", key.String(), "sender", sender.Hex(),
		"amountA", takeA.String(), "amountB", takeB.String(), "minted", mintedShares.String())

	if flipped {
		takeA, takeB = takeB, takeA
	}
	return takeA, takeB, mintedShares, nil
}

// RemoveLiquidity burns sender's shares and releases the proportional slice
// of reserves to the recipient. Floor division rounds in the pool's favor;
// the withdrawer can receive slightly less than the exact proportion, never
// more. Returns the released amounts in the caller's asset order.
func (e *Engine) RemoveLiquidity(ctx context.Context, sender common.Address, p RemoveLiquidityParams) (amountA, amountB *big.Int, err error) {
	timer := prometheus.NewTimer(e.metrics.opDuration.WithLabelValues(opRemoveLiquidity))
	defer func() { e.metrics.observe(opRemoveLiquidity, err, timer) }()

	if err = e.checkDeadline(p.Deadline); err != nil {
		return nil, nil, err
	}
	if p.AssetA == p.AssetB {
		return nil, nil, fmt.Errorf("%w: identical assets %s", ErrUnsupportedPath, p.AssetA.Hex())
	}
	if err = requirePositive("shares", p.Shares); err != nil {
		return nil, nil, err
	}
	if err = requirePositive("amountAMin", p.AmountAMin); err != nil {
		return nil, nil, err
	}
	if err = requirePositive("amountBMin", p.AmountBMin); err != nil {
		return nil, nil, err
	}

	key := registry.ResolvePair(p.AssetA, p.AssetB)
	flipped := key.AssetA != p.AssetA
	minA, minB := p.AmountAMin, p.AmountBMin
	if flipped {
		minA, minB = minB, minA
	}

	var outA, outB *big.Int
	err = e.registry.Update(key, func(pool *amm.Pool) error {
		balance := pool.SharesOf(sender)
		if balance.Cmp(p.Shares) < 0 {
			return fmt.Errorf("%w: holding %s, burning %s", ErrInsufficientShares, balance, p.Shares)
		}

		outA = new(big.Int).Div(new(big.Int).Mul(p.Shares, pool.ReserveA), pool.TotalShares)
		outB = new(big.Int).Div(new(big.Int).Mul(p.Shares, pool.ReserveB), pool.TotalShares)
		if outA.Cmp(minA) < 0 || outB.Cmp(minB) < 0 {
			return fmt.Errorf("%w: amounts (%s, %s) below minimums (%s, %s)",
				ErrSlippageExceeded, outA, outB, minA, minB)
		}

		debitShares(pool, sender, p.Shares)
		pool.TotalShares.Sub(pool.TotalShares, p.Shares)
		pool.ReserveA.Sub(pool.ReserveA, outA)
		pool.ReserveB.Sub(pool.ReserveB, outB)

		if outA.Sign() > 0 {
			if err := e.ledger.Push(ctx, key.AssetA, p.Recipient, outA); err != nil {
				return fmt.Errorf("%w: releasing %s of %s: %w", ErrTransferFailed, outA, key.AssetA.Hex(), err)
			}
		}
		if outB.Sign() > 0 {
			if err := e.ledger.Push(ctx, key.AssetB, p.Recipient, outB); err != nil {
				e.compensatePull(ctx, key.AssetA, p.Recipient, outA)
				return fmt.Errorf("%w: releasing %s of %s: %w", ErrTransferFailed, outB, key.AssetB.Hex(), err)
			}
		}
		return nil
	})
	if err != nil {
		// A persist failure discarded the staged burn after both pushes
		// succeeded; claw the released funds back into custody.
		if errors.Is(err, registry.ErrPersistFailed) {
			e.compensatePull(ctx, key.AssetA, p.Recipient, outA)
			e.compensatePull(ctx, key.AssetB, p.Recipient, outB)
		}
		return nil, nil, err
	}

	e.logger.Debug("liquidity removed",
		"pair", key.String(), "sender", sender.Hex(),
		"amountA", outA.String(), "amountB", outB.String(), "burned", p.Shares.String())

	if flipped {
		outA, outB = outB, outA
	}
	return outA, outB, nil
}

// Swap trades amountIn of assetIn for assetOut against the direct pair's
// pool. The invariant product never decreases across the reserve update.
func (e *Engine) Swap(ctx context.Context, sender common.Address, p SwapParams) (amountOut *big.Int, err error) {
	timer := prometheus.NewTimer(e.metrics.opDuration.WithLabelValues(opSwap))
	defer func() { e.metrics.observe(opSwap, err, timer) }()

	if err = e.checkDeadline(p.Deadline); err != nil {
		return nil, err
	}
	if p.AssetIn == p.AssetOut {
		return nil, fmt.Errorf("%w: identical assets %s", ErrUnsupportedPath, p.AssetIn.Hex())
	}
	if err = requirePositive("amountIn", p.AmountIn); err != nil {
		return nil, err
	}

	key := registry.ResolvePair(p.AssetIn, p.AssetOut)

	var out *big.Int
	err = e.registry.Update(key, func(pool *amm.Pool) error {
		reserveIn, reserveOut, err := pool.Reserves(p.AssetIn, p.AssetOut)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrUnsupportedPath, err)
		}

		out, err = calculator.GetAmountOut(p.AmountIn, reserveIn, reserveOut)
		if err != nil {
			return err
		}
		if p.AmountOutMin != nil && out.Cmp(p.AmountOutMin) < 0 {
			return fmt.Errorf("%w: amountOut %s below minimum %s", ErrSlippageExceeded, out, p.AmountOutMin)
		}

		if err := e.ledger.Pull(ctx, p.AssetIn, sender, e.custodian, p.AmountIn); err != nil {
			return fmt.Errorf("%w: pulling %s of %s: %w", ErrTransferFailed, p.AmountIn, p.AssetIn.Hex(), err)
		}
		if err := e.ledger.Push(ctx, p.AssetOut, p.Recipient, out); err != nil {
			e.compensatePush(ctx, p.AssetIn, sender, p.AmountIn)
			return fmt.Errorf("%w: releasing %s of %s: %w", ErrTransferFailed, out, p.AssetOut.Hex(), err)
		}

		reserveIn.Add(reserveIn, p.AmountIn)
		reserveOut.Sub(reserveOut, out)
		return nil
	})
	if err != nil {
		// A persist failure discarded the staged reserves after custody
		// already moved both legs; unwind them.
		if errors.Is(err, registry.ErrPersistFailed) {
			e.compensatePush(ctx, p.AssetIn, sender, p.AmountIn)
			e.compensatePull(ctx, p.AssetOut, p.Recipient, out)
		}
		return nil, err
	}

	e.events.NotifySwap(SwapEvent{
		Initiator: sender,
		AssetIn:   p.AssetIn,
		AssetOut:  p.AssetOut,
		AmountIn:  new(big.Int).Set(p.AmountIn),
		AmountOut: new(big.Int).Set(out),
	})
	e.logger.Debug("swap executed",
		"pair", key.String(), "sender", sender.Hex(),
		"amountIn", p.AmountIn.String(), "amountOut", out.String())

	return out, nil
}

// SpotPrice returns the fixed-point quantity of assetB equivalent to one
// unit of assetA at current reserves (scaled by calculator.PriceScale).
// A pure read: it never creates pool state.
func (e *Engine) SpotPrice(assetA, assetB common.Address) (*big.Int, error) {
	if assetA == assetB {
		return nil, fmt.Errorf("%w: identical assets %s", ErrUnsupportedPath, assetA.Hex())
	}

	key := registry.ResolvePair(assetA, assetB)
	var price *big.Int
	err := e.registry.View(key, func(pool *amm.Pool) error {
		reserveA, reserveB, err := pool.Reserves(assetA, assetB)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrUnsupportedPath, err)
		}
		price, err = calculator.SpotPrice(reserveA, reserveB)
		if errors.Is(err, calculator.ErrEmptyReserves) {
			return fmt.Errorf("%w: pair %s", ErrEmptyPool, key.String())
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return price, nil
}

// QuoteOut prices a prospective swap against explicit reserves without
// touching any pool. The quote is transient; callers consume it immediately.
func (e *Engine) QuoteOut(amountIn, reserveIn, reserveOut *big.Int) (amm.Quote, error) {
	out, err := calculator.GetAmountOut(amountIn, reserveIn, reserveOut)
	if err != nil {
		return amm.Quote{}, err
	}
	return amm.Quote{AmountIn: new(big.Int).Set(amountIn), AmountOut: out}, nil
}

// checkDeadline enforces the caller-driven timeout once at entry to each
// mutating operation. It is not re-checked mid-operation: nothing suspends
// between this check and completion apart from the ledger calls.
func (e *Engine) checkDeadline(deadline time.Time) error {
	if now := e.clock.Now(); now.After(deadline) {
		return fmt.Errorf("%w: deadline %s, now %s", ErrDeadlineExpired,
			deadline.UTC().Format(time.RFC3339), now.UTC().Format(time.RFC3339))
	}
	return nil
}

// compensatePush returns previously pulled funds to an account after a later
// ledger call failed. Best effort: the in-memory state is already discarded,
// so a failure here only leaves funds parked with the custodian.
func (e *Engine) compensatePush(ctx context.Context, asset, to common.Address, amount *big.Int) {
	if amount.Sign() == 0 {
		return
	}
	if err := e.ledger.Push(ctx, asset, to, amount); err != nil {
		e.logger.Error("compensating push failed",
			"asset", asset.Hex(), "to", to.Hex(), "amount", amount.String(), "error", err)
	}
}

// compensatePull claws back a previously pushed amount after a later ledger
// call failed. Best effort, same caveat as compensatePush.
func (e *Engine) compensatePull(ctx context.Context, asset, from common.Address, amount *big.Int) {
	if amount.Sign() == 0 {
		return
	}
	if err := e.ledger.Pull(ctx, asset, from, e.custodian, amount); err != nil {
		e.logger.Error("compensating pull failed",
			"asset", asset.Hex(), "from", from.Hex(), "amount", amount.String(), "error", err)
	}
}

// planDeposit computes the amounts to take and shares to mint for a deposit.
// Pure: it reads the pool and allocates fresh results.
func planDeposit(pool *amm.Pool, desiredA, desiredB, minA, minB *big.Int) (takeA, takeB, minted *big.Int, err error) {
	if pool.TotalShares.Sign() == 0 {
		// Bootstrap: the geometric mean fixes the share-unit scale.
		takeA = new(big.Int).Set(desiredA)
		takeB = new(big.Int).Set(desiredB)
		minted, err = calculator.IntegerSqrt(new(big.Int).Mul(takeA, takeB))
		if err != nil {
			return nil, nil, nil, err
		}
	} else {
		// Clamp to the current ratio so an unbalanced deposit cannot skew
		// the pool price; the excess simply stays with the caller.
		optimalB := new(big.Int).Mul(desiredA, pool.ReserveB)
		optimalB.Div(optimalB, pool.ReserveA)
		if optimalB.Cmp(desiredB) <= 0 {
			takeA = new(big.Int).Set(desiredA)
			takeB = optimalB
		} else {
			takeA = new(big.Int).Mul(desiredB, pool.ReserveA)
			takeA.Div(takeA, pool.ReserveB)
			takeB = new(big.Int).Set(desiredB)
		}
		if takeA.Cmp(minA) < 0 || takeB.Cmp(minB) < 0 {
			return nil, nil, nil, fmt.Errorf("%w: proportional amounts (%s, %s) below minimums (%s, %s)",
				ErrSlippageExceeded, takeA, takeB, minA, minB)
		}

		sharesA := new(big.Int).Mul(takeA, pool.TotalShares)
		sharesA.Div(sharesA, pool.ReserveA)
		sharesB := new(big.Int).Mul(takeB, pool.TotalShares)
		sharesB.Div(sharesB, pool.ReserveB)
		minted = new(big.Int).Set(calculator.MinBig(sharesA, sharesB))
	}

	if minted.Sign() == 0 {
		return nil, nil, nil, fmt.Errorf("%w: contribution too small to mint shares", ErrInvalidAmount)
	}
	return takeA, takeB, minted, nil
}

// creditShares adds minted shares to a provider's balance.
func creditShares(pool *amm.Pool, provider common.Address, shares *big.Int) {
	if current, ok := pool.ShareBalance[provider]; ok {
		current.Add(current, shares)
		return
	}
	pool.ShareBalance[provider] = new(big.Int).Set(shares)
}

// debitShares removes burned shares from a provider's balance, dropping the
// entry entirely when it reaches zero.
func debitShares(pool *amm.Pool, provider common.Address, shares *big.Int) {
	current := pool.ShareBalance[provider]
	current.Sub(current, shares)
	if current.Sign() == 0 {
		delete(pool.ShareBalance, provider)
	}
}

// requirePositive validates a strictly positive amount.
func requirePositive(name string, v *big.Int) error {
	if v == nil {
		return fmt.Errorf("%w: %s is required", ErrInvalidAmount, name)
	}
	if v.Sign() <= 0 {
		return fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidAmount, name, v)
	}
	return nil
}

// requireAtLeast validates that a desired amount is present and not below
// its minimum.
func requireAtLeast(name string, v, min *big.Int) error {
	if v == nil {
		return fmt.Errorf("%w: %s is required", ErrInvalidAmount, name)
	}
	if v.Cmp(min) < 0 {
		return fmt.Errorf("%w: %s (%s) below its minimum (%s)", ErrInvalidAmount, name, v, min)
	}
	return nil
}

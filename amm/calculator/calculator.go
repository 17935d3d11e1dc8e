package calculator

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
)

var (
	// PriceScale is the fixed-point scale applied to spot prices (10^18).
	PriceScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	one   = big.NewInt(1)
	three = big.NewInt(3)

	// ErrNilAmount is returned when a nil pointer is passed for an amount.
	ErrNilAmount = errors.New("nil pointer passed as amount")
	// ErrInvalidAmount is returned when an input amount is zero or negative.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrInvalidReserves is returned when a reserve is nil, zero or negative.
	ErrInvalidReserves = errors.New("reserves must be positive")
	// ErrEmptyReserves is returned by SpotPrice when either reserve is zero.
	ErrEmptyReserves = errors.New("empty reserves")
)

// Calculator holds reusable big.Int objects to avoid memory allocations
// during calculations. Instances of this struct are NOT safe for concurrent
// use by themselves. They are intended to be managed by the sync.Pool below.
type Calculator struct {
	// Reusable objects for GetAmountOut
	numerator   *big.Int
	denominator *big.Int

	// Reusable objects for IntegerSqrt
	guess *big.Int
	term  *big.Int
}

// calculatorPool manages a pool of Calculator objects, allowing for safe
// concurrent use and drastically reducing memory allocations.
var calculatorPool = sync.Pool{
	New: func() any {
		return &Calculator{
			numerator:   new(big.Int),
			denominator: new(big.Int),
			guess:       new(big.Int),
			term:        new(big.Int),
		}
	},
}

// GetAmountOut calculates the output amount for a fee-less constant-product
// swap: floor(amountIn * reserveOut / (reserveIn + amountIn)).
//
// The floor division guarantees
// reserveIn*reserveOut <= (reserveIn+amountIn)*(reserveOut-amountOut),
// so the invariant product never decreases.
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.getAmountOut(amountIn, reserveIn, reserveOut)
}

// IntegerSqrt returns floor(sqrt(y)) for a non-negative y.
// It returns 0 for y == 0 and 1 for 1 <= y <= 3; larger inputs are computed
// with a Newton iteration seeded at y/2 + 1, which decreases monotonically
// and terminates for any bounded input.
func IntegerSqrt(y *big.Int) (*big.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.integerSqrt(y)
}

// SpotPrice returns reserveB * PriceScale / reserveA: the quantity of asset B
// equivalent to one unit of asset A at current reserves, as a fixed-point
// value. Pure read, no rounding guarantees beyond floor division.
func SpotPrice(reserveA, reserveB *big.Int) (*big.Int, error) {
	if reserveA == nil || reserveB == nil {
		return nil, ErrNilAmount
	}
	if reserveA.Sign() <= 0 || reserveB.Sign() <= 0 {
		return nil, fmt.Errorf("%w: reserves (%s, %s)", ErrEmptyReserves, reserveA, reserveB)
	}
	price := new(big.Int).Mul(reserveB, PriceScale)
	return price.Div(price, reserveA), nil
}

// MinBig returns the smaller of a and b. The result aliases one of the
// arguments and MUST NOT be modified by the caller.
func MinBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// getAmountOut is the internal calculation method that uses the
// pre-allocated fields.
func (c *Calculator) getAmountOut(amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	if amountIn == nil {
		return nil, ErrNilAmount
	}
	if amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amountIn %s", ErrInvalidAmount, amountIn)
	}
	if reserveIn == nil || reserveOut == nil {
		return nil, ErrInvalidReserves
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, fmt.Errorf("%w: reserves (%s, %s)", ErrInvalidReserves, reserveIn, reserveOut)
	}

	c.numerator.Mul(amountIn, reserveOut)
	c.denominator.Add(reserveIn, amountIn)

	return new(big.Int).Div(c.numerator, c.denominator), nil
}

// integerSqrt is the internal Newton iteration using pre-allocated fields.
func (c *Calculator) integerSqrt(y *big.Int) (*big.Int, error) {
	if y == nil {
		return nil, ErrNilAmount
	}
	if y.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, y)
	}

	z := new(big.Int)
	switch {
	case y.Cmp(three) > 0:
		z.Set(y)
		c.guess.Rsh(y, 1)
		c.guess.Add(c.guess, one)
		for c.guess.Cmp(z) < 0 {
			z.Set(c.guess)
			// guess = (y/guess + guess) / 2
			c.term.Div(y, c.guess)
			c.term.Add(c.term, c.guess)
			c.guess.Rsh(c.term, 1)
		}
	case y.Sign() > 0:
		z.SetInt64(1)
	}
	return z, nil
}

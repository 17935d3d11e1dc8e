// Package ledger provides an in-memory asset ledger implementing the
// engine's custody boundary. It backs the daemon's demo mode and the test
// suites; production deployments substitute their own implementation.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInsufficientFunds is returned when an account cannot cover a transfer.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvalidAmount is returned for nil or negative transfer amounts.
	ErrInvalidAmount = errors.New("amount must be non-negative")
)

// Ledger is a mutex-guarded balance map keyed by asset, then account.
// Each call is atomic: a transfer either fully applies or fails untouched.
type Ledger struct {
	mu        sync.Mutex
	custodian common.Address
	balances  map[common.Address]map[common.Address]*big.Int
}

// NewLedger constructs a ledger whose Push calls release funds held by
// custodian.
func NewLedger(custodian common.Address) *Ledger {
	return &Ledger{
		custodian: custodian,
		balances:  make(map[common.Address]map[common.Address]*big.Int),
	}
}

// Mint credits freshly created funds to an account. Test and demo helper.
func (l *Ledger) Mint(asset, account common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance := l.balanceRef(asset, account)
	balance.Add(balance, amount)
}

// BalanceOf returns a copy of the account's balance for asset.
func (l *Ledger) BalanceOf(asset, account common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balanceRef(asset, account))
}

// Pull moves amount of asset from one account to another.
func (l *Ledger) Pull(ctx context.Context, asset common.Address, from, to common.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validAmount(amount); err != nil {
		return err
	}
	if amount.Sign() == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	source := l.balanceRef(asset, from)
	if source.Cmp(amount) < 0 {
		return fmt.Errorf("%w: account %s holds %s of %s, needs %s",
			ErrInsufficientFunds, from.Hex(), source, asset.Hex(), amount)
	}
	source.Sub(source, amount)
	dest := l.balanceRef(asset, to)
	dest.Add(dest, amount)
	return nil
}

// Push releases amount of asset from the custodian to an account.
func (l *Ledger) Push(ctx context.Context, asset common.Address, to common.Address, amount *big.Int) error {
	return l.Pull(ctx, asset, l.custodian, to, amount)
}

// balanceRef returns the mutable balance cell, creating it lazily.
// Caller must hold l.mu.
func (l *Ledger) balanceRef(asset, account common.Address) *big.Int {
	accounts, ok := l.balances[asset]
	if !ok {
		accounts = make(map[common.Address]*big.Int)
		l.balances[asset] = accounts
	}
	balance, ok := accounts[account]
	if !ok {
		balance = new(big.Int)
		accounts[account] = balance
	}
	return balance
}

func validAmount(amount *big.Int) error {
	if amount == nil {
		return fmt.Errorf("%w: nil amount", ErrInvalidAmount)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	return nil
}

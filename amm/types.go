package amm

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Schema is the decode contract for serialized pool views.
const Schema = "defiswap/amm/poolView@v1"

// ErrAssetMismatch is returned when a requested asset pair does not match the pool's assets.
var ErrAssetMismatch = errors.New("asset mismatch")

// PairKey identifies a pool by its two assets in canonical order
// (AssetA < AssetB byte-wise). Keys are comparable and usable as map keys.
type PairKey struct {
	AssetA common.Address `json:"assetA"`
	AssetB common.Address `json:"assetB"`
}

// String renders the key in a stable, human-readable form, also used as the
// persistent store key.
func (k PairKey) String() string {
	return k.AssetA.Hex() + ":" + k.AssetB.Hex()
}

// Pool represents the data for a single pool. Reserves and shares are only
// ever mutated by the engine; everyone else receives copies.
type Pool struct {
	Key          PairKey                     `json:"key"`
	ReserveA     *big.Int                    `json:"reserveA"`
	ReserveB     *big.Int                    `json:"reserveB"`
	TotalShares  *big.Int                    `json:"totalShares"`
	ShareBalance map[common.Address]*big.Int `json:"shareBalance"`
}

// NewPool returns a zero-initialized pool for the given key.
func NewPool(key PairKey) *Pool {
	return &Pool{
		Key:          key,
		ReserveA:     new(big.Int),
		ReserveB:     new(big.Int),
		TotalShares:  new(big.Int),
		ShareBalance: make(map[common.Address]*big.Int),
	}
}

// Clone returns a deep copy of the pool. Mutating operations stage their
// changes on a clone and commit it only once every external call succeeded.
func (p *Pool) Clone() *Pool {
	balances := make(map[common.Address]*big.Int, len(p.ShareBalance))
	for provider, shares := range p.ShareBalance {
		balances[provider] = new(big.Int).Set(shares)
	}
	return &Pool{
		Key:          p.Key,
		ReserveA:     new(big.Int).Set(p.ReserveA),
		ReserveB:     new(big.Int).Set(p.ReserveB),
		TotalShares:  new(big.Int).Set(p.TotalShares),
		ShareBalance: balances,
	}
}

// SharesOf returns the share balance for a provider, zero if none is recorded.
// The returned value MUST NOT be modified.
func (p *Pool) SharesOf(provider common.Address) *big.Int {
	if shares, ok := p.ShareBalance[provider]; ok {
		return shares
	}
	return new(big.Int)
}

// Reserves returns the pool's reserves oriented for a swap from assetIn to
// assetOut. The returned values alias the pool's own fields, so updating them
// updates the pool. The orientation is always re-derived from the canonical
// pair order; stored slot order is never trusted.
func (p *Pool) Reserves(assetIn, assetOut common.Address) (reserveIn, reserveOut *big.Int, err error) {
	switch {
	case assetIn == p.Key.AssetA && assetOut == p.Key.AssetB:
		return p.ReserveA, p.ReserveB, nil
	case assetIn == p.Key.AssetB && assetOut == p.Key.AssetA:
		return p.ReserveB, p.ReserveA, nil
	default:
		return nil, nil, fmt.Errorf("%w: pool %s does not contain the pair %s -> %s",
			ErrAssetMismatch, p.Key, assetIn.Hex(), assetOut.Hex())
	}
}

// Quote is the transient result of a swap pricing computation. It is produced
// by the engine, consumed immediately by the caller, and never stored.
type Quote struct {
	AmountIn  *big.Int `json:"amountIn"`
	AmountOut *big.Int `json:"amountOut"`
}

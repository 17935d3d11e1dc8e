package server

import (
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defiswap/defiswap-core-go/engine"
	"github.com/defiswap/defiswap-core-go/ledger"
	"github.com/defiswap/defiswap-core-go/registry"
)

var (
	tokenA    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenB    = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	custodian = common.HexToAddress("0x00000000000000000000000000000000000000fe")
	alice     = common.HexToAddress("0x0000000000000000000000000000000000000001")
	bob       = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

func newTestClient(t *testing.T) (*rpc.Client, *ledger.Ledger) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg, err := registry.NewRegistry(&registry.Config{Logger: logger})
	require.NoError(t, err)

	led := ledger.NewLedger(custodian)
	eng, err := engine.New(&engine.Config{
		Registry:           reg,
		Ledger:             led,
		Custodian:          custodian,
		Logger:             logger,
		PrometheusRegistry: prometheus.NewRegistry(),
	})
	require.NoError(t, err)

	srv, err := New(&Config{
		Engine:     eng,
		Registry:   reg,
		ListenAddr: "127.0.0.1:0",
		Logger:     logger,
	})
	require.NoError(t, err)

	client := rpc.DialInProc(srv.rpc)
	t.Cleanup(client.Close)
	return client, led
}

func deadline() int64 {
	return time.Now().Add(time.Hour).Unix()
}

func seed(t *testing.T, client *rpc.Client, led *ledger.Ledger) {
	t.Helper()
	led.Mint(tokenA, alice, big.NewInt(100))
	led.Mint(tokenB, alice, big.NewInt(400))

	var result AddLiquidityResult
	err := client.Call(&result, "amm_addLiquidity", AddLiquidityRequest{
		Sender:         alice,
		AssetA:         tokenA,
		AssetB:         tokenB,
		AmountADesired: "100",
		AmountBDesired: "400",
		AmountAMin:     "1",
		AmountBMin:     "1",
		Recipient:      alice,
		Deadline:       deadline(),
	})
	require.NoError(t, err)
	require.Equal(t, "200", result.Minted)
}

func TestAddLiquidityOverRPC(t *testing.T) {
	client, led := newTestClient(t)
	seed(t, client, led)

	var view PoolView
	err := client.Call(&view, "amm_pool", tokenA, tokenB)
	require.NoError(t, err)
	assert.Equal(t, "100", view.ReserveA)
	assert.Equal(t, "400", view.ReserveB)
	assert.Equal(t, "200", view.TotalShares)
	assert.Equal(t, "200", view.ShareBalance[alice.Hex()])
}

func TestSwapOverRPC(t *testing.T) {
	client, led := newTestClient(t)
	seed(t, client, led)
	led.Mint(tokenA, bob, big.NewInt(10))

	var result SwapResult
	err := client.Call(&result, "amm_swap", SwapRequest{
		Sender:    bob,
		AssetIn:   tokenA,
		AssetOut:  tokenB,
		AmountIn:  "10",
		Recipient: bob,
		Deadline:  deadline(),
	})
	require.NoError(t, err)
	assert.Equal(t, "36", result.AmountOut)

	var price string
	err = client.Call(&price, "amm_spotPrice", tokenA, tokenB)
	require.NoError(t, err)
	// 364 * 10^18 / 110
	assert.Equal(t, "3309090909090909090", price)
}

func TestRemoveLiquidityOverRPC(t *testing.T) {
	client, led := newTestClient(t)
	seed(t, client, led)

	var result RemoveLiquidityResult
	err := client.Call(&result, "amm_removeLiquidity", RemoveLiquidityRequest{
		Sender:     alice,
		AssetA:     tokenA,
		AssetB:     tokenB,
		Shares:     "200",
		AmountAMin: "1",
		AmountBMin: "1",
		Recipient:  alice,
		Deadline:   deadline(),
	})
	require.NoError(t, err)
	assert.Equal(t, "100", result.AmountA)
	assert.Equal(t, "400", result.AmountB)
}

func TestQuoteOutOverRPC(t *testing.T) {
	client, _ := newTestClient(t)

	var quote QuoteResult
	err := client.Call(&quote, "amm_quoteOut", "10", "100", "400")
	require.NoError(t, err)
	assert.Equal(t, "36", quote.AmountOut)
}

func TestResolvePairOverRPC(t *testing.T) {
	client, _ := newTestClient(t)

	var key struct {
		AssetA common.Address `json:"assetA"`
		AssetB common.Address `json:"assetB"`
	}
	err := client.Call(&key, "amm_resolvePair", tokenB, tokenA)
	require.NoError(t, err)
	assert.Equal(t, tokenA, key.AssetA, "the byte-wise smaller address is canonical")
	assert.Equal(t, tokenB, key.AssetB)
}

func TestErrorsPropagateOverRPC(t *testing.T) {
	client, _ := newTestClient(t)

	var result SwapResult
	err := client.Call(&result, "amm_swap", SwapRequest{
		Sender:    bob,
		AssetIn:   tokenA,
		AssetOut:  tokenB,
		AmountIn:  "10",
		Recipient: bob,
		Deadline:  time.Now().Add(-time.Minute).Unix(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadline")

	var price string
	err = client.Call(&price, "amm_spotPrice", tokenA, common.HexToAddress("0xcc"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	var bad SwapResult
	err = client.Call(&bad, "amm_swap", SwapRequest{
		Sender:    bob,
		AssetIn:   tokenA,
		AssetOut:  tokenB,
		AmountIn:  "ten",
		Recipient: bob,
		Deadline:  deadline(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid decimal amount")
}

func TestNewValidation(t *testing.T) {
	_, err := New(&Config{})
	assert.Error(t, err)
}

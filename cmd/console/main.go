// Command console is a one-shot client for a running ammd daemon. It speaks
// the amm_* JSON-RPC namespace and renders results for a terminal.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/defiswap/defiswap-core-go/streams/jsonrpc/server"
)

// --- VISUAL CONSTANTS ---
const (
	Reset = "\033[0m"
	Bold  = "\033[1m"
	Red   = "\033[31m"
	Green = "\033[32m"
	Cyan  = "\033[36m"
)

// header prints a styled section header
func header(title string) {
	fmt.Println("\n" + Bold + Cyan + ":: " + title + " ::" + Reset)
}

func fatal(format string, args ...any) {
	fmt.Fprintln(os.Stderr, Red+fmt.Sprintf(format, args...)+Reset)
	os.Exit(1)
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: console [flags] <command> [args]

Commands:
  pools                                                          list every pool
  pool   <assetA> <assetB>                                       show one pool
  pair   <assetA> <assetB>                                       canonical pair key
  price  <assetA> <assetB>                                       spot price (10^18 fixed point)
  quote  <amountIn> <reserveIn> <reserveOut>                     price a hypothetical swap
  add    <sender> <assetA> <assetB> <desA> <desB> <minA> <minB>  deposit liquidity
  remove <sender> <assetA> <assetB> <shares> <minA> <minB>       burn shares
  swap   <sender> <assetIn> <assetOut> <amountIn> <minOut>       execute a swap

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	url := flag.String("url", "http://127.0.0.1:8645", "ammd JSON-RPC endpoint")
	deadline := flag.Duration("deadline", time.Minute, "validity window for mutating commands")
	recipient := flag.String("recipient", "", "recipient account (defaults to sender)")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := rpc.DialContext(ctx, *url)
	if err != nil {
		fatal("Failed to connect to %s: %v", *url, err)
	}
	defer client.Close()

	cmd, args := args[0], args[1:]
	expiry := time.Now().Add(*deadline).Unix()

	switch cmd {
	case "pools":
		runPools(ctx, client)
	case "pool":
		requireArgs(args, 2)
		runPool(ctx, client, address(args[0]), address(args[1]))
	case "pair":
		requireArgs(args, 2)
		var key struct {
			AssetA common.Address `json:"assetA"`
			AssetB common.Address `json:"assetB"`
		}
		call(ctx, client, &key, "amm_resolvePair", address(args[0]), address(args[1]))
		fmt.Printf("%s:%s\n", key.AssetA.Hex(), key.AssetB.Hex())
	case "price":
		requireArgs(args, 2)
		var price string
		call(ctx, client, &price, "amm_spotPrice", address(args[0]), address(args[1]))
		fmt.Println(price)
	case "quote":
		requireArgs(args, 3)
		var quote server.QuoteResult
		call(ctx, client, &quote, "amm_quoteOut", amount(args[0]), amount(args[1]), amount(args[2]))
		fmt.Println(quote.AmountOut)
	case "add":
		requireArgs(args, 7)
		sender := address(args[0])
		var result server.AddLiquidityResult
		call(ctx, client, &result, "amm_addLiquidity", server.AddLiquidityRequest{
			Sender:         sender,
			AssetA:         address(args[1]),
			AssetB:         address(args[2]),
			AmountADesired: amount(args[3]),
			AmountBDesired: amount(args[4]),
			AmountAMin:     amount(args[5]),
			AmountBMin:     amount(args[6]),
			Recipient:      recipientOr(*recipient, sender),
			Deadline:       expiry,
		})
		fmt.Printf("%sdeposited%s %s / %s, minted %s shares\n", Green, Reset, result.AmountA, result.AmountB, result.Minted)
	case "remove":
		requireArgs(args, 6)
		sender := address(args[0])
		var result server.RemoveLiquidityResult
		call(ctx, client, &result, "amm_removeLiquidity", server.RemoveLiquidityRequest{
			Sender:     sender,
			AssetA:     address(args[1]),
			AssetB:     address(args[2]),
			Shares:     amount(args[3]),
			AmountAMin: amount(args[4]),
			AmountBMin: amount(args[5]),
			Recipient:  recipientOr(*recipient, sender),
			Deadline:   expiry,
		})
		fmt.Printf("%sreleased%s %s / %s\n", Green, Reset, result.AmountA, result.AmountB)
	case "swap":
		requireArgs(args, 5)
		sender := address(args[0])
		var result server.SwapResult
		call(ctx, client, &result, "amm_swap", server.SwapRequest{
			Sender:       sender,
			AssetIn:      address(args[1]),
			AssetOut:     address(args[2]),
			AmountIn:     amount(args[3]),
			AmountOutMin: amount(args[4]),
			Recipient:    recipientOr(*recipient, sender),
			Deadline:     expiry,
		})
		fmt.Printf("%sreceived%s %s\n", Green, Reset, result.AmountOut)
	default:
		usage()
		os.Exit(2)
	}
}

func runPools(ctx context.Context, client *rpc.Client) {
	var views []*server.PoolView
	call(ctx, client, &views, "amm_pools")

	header("POOLS")
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PAIR\tRESERVE A\tRESERVE B\tTOTAL SHARES\tPROVIDERS")
	for _, view := range views {
		fmt.Fprintf(w, "%s:%s\t%s\t%s\t%s\t%d\n",
			view.Key.AssetA.Hex(), view.Key.AssetB.Hex(),
			view.ReserveA, view.ReserveB, view.TotalShares, len(view.ShareBalance))
	}
	w.Flush()
}

func runPool(ctx context.Context, client *rpc.Client, assetA, assetB common.Address) {
	var view server.PoolView
	call(ctx, client, &view, "amm_pool", assetA, assetB)

	header("POOL " + view.Key.AssetA.Hex() + ":" + view.Key.AssetB.Hex())
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "reserveA\t%s\n", view.ReserveA)
	fmt.Fprintf(w, "reserveB\t%s\n", view.ReserveB)
	fmt.Fprintf(w, "totalShares\t%s\n", view.TotalShares)
	for provider, shares := range view.ShareBalance {
		fmt.Fprintf(w, "  %s\t%s\n", provider, shares)
	}
	w.Flush()
}

func call(ctx context.Context, client *rpc.Client, result any, method string, args ...any) {
	if err := client.CallContext(ctx, result, method, args...); err != nil {
		fatal("%s failed: %v", method, err)
	}
}

func requireArgs(args []string, n int) {
	if len(args) != n {
		usage()
		os.Exit(2)
	}
}

func address(s string) common.Address {
	if !common.IsHexAddress(s) {
		fatal("invalid address: %s", s)
	}
	return common.HexToAddress(s)
}

func amount(s string) string {
	if _, ok := new(big.Int).SetString(s, 10); !ok {
		fatal("invalid decimal amount: %s", s)
	}
	return s
}

func recipientOr(flagValue string, sender common.Address) common.Address {
	if flagValue == "" {
		return sender
	}
	return address(flagValue)
}

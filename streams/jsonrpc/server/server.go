// Package server exposes the pool engine over JSON-RPC. The transport is
// trusted: the request names the initiating account and the server performs
// no authentication of its own.
package server

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/defiswap/defiswap-core-go/amm"
	"github.com/defiswap/defiswap-core-go/engine"
	"github.com/defiswap/defiswap-core-go/registry"
)

// RPCNamespace is the namespace under which the pool API is registered, so a
// method like AddLiquidity is called as amm_addLiquidity.
const RPCNamespace = "amm"

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the configuration for the server.
type Config struct {
	Engine     *engine.Engine
	Registry   *registry.Registry
	ListenAddr string
	Logger     Logger
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.Engine == nil {
		return errors.New("config: Engine is required")
	}
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	if c.ListenAddr == "" {
		return errors.New("config: ListenAddr is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// Server hosts the pool API over HTTP JSON-RPC.
type Server struct {
	cfg    *Config
	rpc    *rpc.Server
	http   *http.Server
	logger Logger
}

// New constructs a server from a configuration, returning an error if the
// configuration is invalid.
func New(cfg *Config) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	rpcServer := rpc.NewServer()
	api := &API{engine: cfg.Engine, registry: cfg.Registry}
	if err := rpcServer.RegisterName(RPCNamespace, api); err != nil {
		return nil, fmt.Errorf("registering %s namespace: %w", RPCNamespace, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/", rpcServer)
	mux.Handle("/ws", rpcServer.WebsocketHandler([]string{"*"}))

	return &Server{
		cfg:    cfg,
		rpc:    rpcServer,
		http:   &http.Server{Addr: cfg.ListenAddr, Handler: mux},
		logger: cfg.Logger,
	}, nil
}

// Start begins serving and blocks until the listener fails or Stop is called.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.ListenAddr, err)
	}
	s.logger.Info("rpc server listening", "addr", listener.Addr().String())

	if err := s.http.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down, waiting for in-flight requests up to the
// context deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.rpc.Stop()
	return s.http.Shutdown(ctx)
}

// API implements the amm_* JSON-RPC methods. Amounts cross the wire as
// decimal strings to stay exact at any magnitude.
type API struct {
	engine   *engine.Engine
	registry *registry.Registry
}

// AddLiquidityRequest is the wire form of an add-liquidity call.
type AddLiquidityRequest struct {
	Sender         common.Address `json:"sender"`
	AssetA         common.Address `json:"assetA"`
	AssetB         common.Address `json:"assetB"`
	AmountADesired string         `json:"amountADesired"`
	AmountBDesired string         `json:"amountBDesired"`
	AmountAMin     string         `json:"amountAMin"`
	AmountBMin     string         `json:"amountBMin"`
	Recipient      common.Address `json:"recipient"`
	Deadline       int64          `json:"deadline"` // unix seconds
}

// AddLiquidityResult reports the amounts actually deposited and the shares
// minted.
type AddLiquidityResult struct {
	AmountA string `json:"amountA"`
	AmountB string `json:"amountB"`
	Minted  string `json:"minted"`
}

// AddLiquidity deposits paired assets and mints pool shares.
func (a *API) AddLiquidity(ctx context.Context, req AddLiquidityRequest) (*AddLiquidityResult, error) {
	amountADesired, err := parseAmount("amountADesired", req.AmountADesired)
	if err != nil {
		return nil, err
	}
	amountBDesired, err := parseAmount("amountBDesired", req.AmountBDesired)
	if err != nil {
		return nil, err
	}
	amountAMin, err := parseAmount("amountAMin", req.AmountAMin)
	if err != nil {
		return nil, err
	}
	amountBMin, err := parseAmount("amountBMin", req.AmountBMin)
	if err != nil {
		return nil, err
	}

	amountA, amountB, minted, err := a.engine.AddLiquidity(ctx, req.Sender, engine.AddLiquidityParams{
		AssetA:         req.AssetA,
		AssetB:         req.AssetB,
		AmountADesired: amountADesired,
		AmountBDesired: amountBDesired,
		AmountAMin:     amountAMin,
		AmountBMin:     amountBMin,
		Recipient:      req.Recipient,
		Deadline:       time.Unix(req.Deadline, 0),
	})
	if err != nil {
		return nil, err
	}
	return &AddLiquidityResult{
		AmountA: amountA.String(),
		AmountB: amountB.String(),
		Minted:  minted.String(),
	}, nil
}

// RemoveLiquidityRequest is the wire form of a remove-liquidity call.
type RemoveLiquidityRequest struct {
	Sender     common.Address `json:"sender"`
	AssetA     common.Address `json:"assetA"`
	AssetB     common.Address `json:"assetB"`
	Shares     string         `json:"shares"`
	AmountAMin string         `json:"amountAMin"`
	AmountBMin string         `json:"amountBMin"`
	Recipient  common.Address `json:"recipient"`
	Deadline   int64          `json:"deadline"` // unix seconds
}

// RemoveLiquidityResult reports the amounts released by the burn.
type RemoveLiquidityResult struct {
	AmountA string `json:"amountA"`
	AmountB string `json:"amountB"`
}

// RemoveLiquidity burns pool shares and releases the proportional reserves.
func (a *API) RemoveLiquidity(ctx context.Context, req RemoveLiquidityRequest) (*RemoveLiquidityResult, error) {
	shares, err := parseAmount("shares", req.Shares)
	if err != nil {
		return nil, err
	}
	amountAMin, err := parseAmount("amountAMin", req.AmountAMin)
	if err != nil {
		return nil, err
	}
	amountBMin, err := parseAmount("amountBMin", req.AmountBMin)
	if err != nil {
		return nil, err
	}

	amountA, amountB, err := a.engine.RemoveLiquidity(ctx, req.Sender, engine.RemoveLiquidityParams{
		AssetA:     req.AssetA,
		AssetB:     req.AssetB,
		Shares:     shares,
		AmountAMin: amountAMin,
		AmountBMin: amountBMin,
		Recipient:  req.Recipient,
		Deadline:   time.Unix(req.Deadline, 0),
	})
	if err != nil {
		return nil, err
	}
	return &RemoveLiquidityResult{AmountA: amountA.String(), AmountB: amountB.String()}, nil
}

// SwapRequest is the wire form of a swap call.
type SwapRequest struct {
	Sender       common.Address `json:"sender"`
	AssetIn      common.Address `json:"assetIn"`
	AssetOut     common.Address `json:"assetOut"`
	AmountIn     string         `json:"amountIn"`
	AmountOutMin string         `json:"amountOutMin,omitempty"` // optional
	Recipient    common.Address `json:"recipient"`
	Deadline     int64          `json:"deadline"` // unix seconds
}

// SwapResult reports the output amount of an executed swap.
type SwapResult struct {
	AmountOut string `json:"amountOut"`
}

// Swap trades an exact input amount against the direct pair's pool.
func (a *API) Swap(ctx context.Context, req SwapRequest) (*SwapResult, error) {
	amountIn, err := parseAmount("amountIn", req.AmountIn)
	if err != nil {
		return nil, err
	}
	var amountOutMin *big.Int
	if req.AmountOutMin != "" {
		amountOutMin, err = parseAmount("amountOutMin", req.AmountOutMin)
		if err != nil {
			return nil, err
		}
	}

	amountOut, err := a.engine.Swap(ctx, req.Sender, engine.SwapParams{
		AssetIn:      req.AssetIn,
		AssetOut:     req.AssetOut,
		AmountIn:     amountIn,
		AmountOutMin: amountOutMin,
		Recipient:    req.Recipient,
		Deadline:     time.Unix(req.Deadline, 0),
	})
	if err != nil {
		return nil, err
	}
	return &SwapResult{AmountOut: amountOut.String()}, nil
}

// SpotPrice returns the instantaneous price of assetA in units of assetB,
// scaled by 10^18.
func (a *API) SpotPrice(assetA, assetB common.Address) (string, error) {
	price, err := a.engine.SpotPrice(assetA, assetB)
	if err != nil {
		return "", err
	}
	return price.String(), nil
}

// QuoteResult is the wire form of a swap quote.
type QuoteResult struct {
	AmountIn  string `json:"amountIn"`
	AmountOut string `json:"amountOut"`
}

// QuoteOut prices a prospective swap against explicit reserves without
// touching pool state.
func (a *API) QuoteOut(amountIn, reserveIn, reserveOut string) (*QuoteResult, error) {
	in, err := parseAmount("amountIn", amountIn)
	if err != nil {
		return nil, err
	}
	rIn, err := parseAmount("reserveIn", reserveIn)
	if err != nil {
		return nil, err
	}
	rOut, err := parseAmount("reserveOut", reserveOut)
	if err != nil {
		return nil, err
	}

	quote, err := a.engine.QuoteOut(in, rIn, rOut)
	if err != nil {
		return nil, err
	}
	return &QuoteResult{AmountIn: quote.AmountIn.String(), AmountOut: quote.AmountOut.String()}, nil
}

// ResolvePair returns the canonical pair key for two assets.
func (a *API) ResolvePair(assetA, assetB common.Address) (amm.PairKey, error) {
	if assetA == assetB {
		return amm.PairKey{}, fmt.Errorf("identical assets %s", assetA.Hex())
	}
	return registry.ResolvePair(assetA, assetB), nil
}

// PoolView is the wire form of a pool record.
type PoolView struct {
	Schema       string            `json:"schema"`
	Key          amm.PairKey       `json:"key"`
	ReserveA     string            `json:"reserveA"`
	ReserveB     string            `json:"reserveB"`
	TotalShares  string            `json:"totalShares"`
	ShareBalance map[string]string `json:"shareBalance"`
}

// Pool returns the pool record for a pair, in caller-insensitive order.
func (a *API) Pool(assetA, assetB common.Address) (*PoolView, error) {
	pool, err := a.registry.Get(registry.ResolvePair(assetA, assetB))
	if err != nil {
		return nil, err
	}
	return viewOf(pool), nil
}

// Pools returns every pool record, ordered by pair key.
func (a *API) Pools() ([]*PoolView, error) {
	pools := a.registry.Snapshot()
	views := make([]*PoolView, 0, len(pools))
	for _, pool := range pools {
		views = append(views, viewOf(pool))
	}
	return views, nil
}

func viewOf(pool *amm.Pool) *PoolView {
	balances := make(map[string]string, len(pool.ShareBalance))
	for provider, shares := range pool.ShareBalance {
		balances[provider.Hex()] = shares.String()
	}
	return &PoolView{
		Schema:       amm.Schema,
		Key:          pool.Key,
		ReserveA:     pool.ReserveA.String(),
		ReserveB:     pool.ReserveB.String(),
		TotalShares:  pool.TotalShares.String(),
		ShareBalance: balances,
	}
}

// parseAmount decodes a decimal-string amount. Sign and magnitude checks are
// the engine's job; this only rejects unparseable input.
func parseAmount(name, s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("%s is required", name)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%s: invalid decimal amount %q", name, s)
	}
	return v, nil
}

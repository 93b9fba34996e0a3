package dex

import (
	"context"
	"math/big"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gjermundgaraba/libzaap/ledger"
	"github.com/gjermundgaraba/libzaap/route"
	"github.com/gjermundgaraba/libzaap/swapper"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var _ swapper.Router = &Router{}

// SwapEvent is the log data emitted for every pool crossed by a swap.
type SwapEvent struct {
	Pool      ethcommon.Address
	AssetIn   ethcommon.Address
	AssetOut  ethcommon.Address
	AmountIn  *big.Int
	AmountOut *big.Int
	Recipient ethcommon.Address
}

// Router executes swaps against pools whose reserves live on the ledger.
type Router struct {
	logger  *zap.Logger
	address ethcommon.Address

	poolsMutex sync.RWMutex
	pools      map[PoolKey]bool
}

func NewRouter(logger *zap.Logger, address ethcommon.Address) *Router {
	return &Router{
		logger:  logger,
		address: address,
		pools:   make(map[PoolKey]bool),
	}
}

func (r *Router) Address() ethcommon.Address {
	return r.address
}

// AddLiquidity moves both amounts from provider into the pool, creating the pool if needed.
func (r *Router) AddLiquidity(st ledger.State, provider ethcommon.Address, assetA ethcommon.Address, assetB ethcommon.Address, fee uint32, amountA *big.Int, amountB *big.Int) (PoolKey, error) {
	key, err := NewPoolKey(assetA, assetB, fee)
	if err != nil {
		return PoolKey{}, err
	}

	if err := st.Transfer(assetA, provider, key.Address(), amountA); err != nil {
		return PoolKey{}, errors.Wrapf(err, "failed to deposit %s", assetA)
	}
	if err := st.Transfer(assetB, provider, key.Address(), amountB); err != nil {
		return PoolKey{}, errors.Wrapf(err, "failed to deposit %s", assetB)
	}

	r.poolsMutex.Lock()
	r.pools[key] = true
	r.poolsMutex.Unlock()

	r.logger.Debug("Added liquidity",
		zap.String("pool", key.Address().Hex()),
		zap.String("asset_a", assetA.Hex()),
		zap.String("asset_b", assetB.Hex()),
		zap.Uint32("fee", fee),
		zap.String("amount_a", amountA.String()),
		zap.String("amount_b", amountB.String()))

	return key, nil
}

func (r *Router) Pools() []PoolKey {
	r.poolsMutex.RLock()
	defer r.poolsMutex.RUnlock()

	keys := make([]PoolKey, 0, len(r.pools))
	for key := range r.pools {
		keys = append(keys, key)
	}
	return keys
}

// SwapExactTokensForTokens implements swapper.Router.
func (r *Router) SwapExactTokensForTokens(ctx context.Context, st ledger.State, payer ethcommon.Address, amountIn *big.Int, amountOutMin *big.Int, path []ethcommon.Address, to ethcommon.Address) (*big.Int, error) {
	if len(path) < 2 {
		return nil, errors.Wrapf(ErrInvalidPath, "path length %d", len(path))
	}

	hops := make([]route.Hop, len(path))
	for i, asset := range path {
		hops[i] = route.Hop{Asset: asset, PoolFee: LegacyPoolFee}
	}

	return r.swap(ctx, st, payer, hops, amountIn, amountOutMin, to)
}

// ExactInput implements swapper.Router.
func (r *Router) ExactInput(ctx context.Context, st ledger.State, params swapper.ExactInputParams) (*big.Int, error) {
	hops, err := route.DecodePackedPath(params.Path)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidPath, err.Error())
	}
	for _, hop := range hops[1:] {
		if hop.PoolFee == LegacyPoolFee {
			return nil, errors.Wrap(ErrUnsupportedFeeTier, "fee tiered hop without a fee tier")
		}
	}

	return r.swap(ctx, st, params.Payer, hops, params.AmountIn, params.AmountOutMinimum, params.Recipient)
}

func (r *Router) swap(ctx context.Context, st ledger.State, payer ethcommon.Address, hops []route.Hop, amountIn *big.Int, amountOutMin *big.Int, to ethcommon.Address) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keys := make([]PoolKey, len(hops)-1)
	amounts := make([]*big.Int, len(hops))
	amounts[0] = amountIn
	for i := 1; i < len(hops); i++ {
		key, err := r.getPool(hops[i-1].Asset, hops[i].Asset, hops[i].PoolFee)
		if err != nil {
			return nil, err
		}
		keys[i-1] = key

		reserveIn := st.BalanceOf(hops[i-1].Asset, key.Address())
		reserveOut := st.BalanceOf(hops[i].Asset, key.Address())
		amountOut, err := getAmountOut(amounts[i-1], reserveIn, reserveOut, key.feePips())
		if err != nil {
			return nil, errors.Wrapf(err, "hop %d", i)
		}
		amounts[i] = amountOut
	}

	amountOut := amounts[len(amounts)-1]
	if amountOut.Cmp(amountOutMin) < 0 {
		return nil, errors.Wrapf(ErrInsufficientOutput, "%s < %s", amountOut, amountOutMin)
	}

	if err := st.Transfer(hops[0].Asset, payer, keys[0].Address(), amountIn); err != nil {
		return nil, errors.Wrap(err, "failed to pay input")
	}
	for i, key := range keys {
		recipient := to
		if i < len(keys)-1 {
			recipient = keys[i+1].Address()
		}
		if err := st.Transfer(hops[i+1].Asset, key.Address(), recipient, amounts[i+1]); err != nil {
			return nil, errors.Wrapf(err, "failed to pay output of hop %d", i+1)
		}

		st.AddLog(ledger.Log{
			Address: r.address,
			Name:    "Swap",
			Data: SwapEvent{
				Pool:      key.Address(),
				AssetIn:   hops[i].Asset,
				AssetOut:  hops[i+1].Asset,
				AmountIn:  amounts[i],
				AmountOut: amounts[i+1],
				Recipient: recipient,
			},
		})
	}

	return amountOut, nil
}

func (r *Router) getPool(assetIn ethcommon.Address, assetOut ethcommon.Address, fee uint32) (PoolKey, error) {
	key, err := NewPoolKey(assetIn, assetOut, fee)
	if err != nil {
		return PoolKey{}, err
	}

	r.poolsMutex.RLock()
	defer r.poolsMutex.RUnlock()
	if !r.pools[key] {
		return PoolKey{}, errors.Wrapf(ErrPoolNotFound, "%s/%s fee %d", assetIn, assetOut, fee)
	}

	return key, nil
}

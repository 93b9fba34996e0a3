package swapper

import (
	"context"
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gjermundgaraba/libzaap/ledger"
	"github.com/gjermundgaraba/libzaap/route"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	usdc    = ethcommon.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	weth    = ethcommon.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	account = ethcommon.HexToAddress("0x0000000000000000000000000000000000002aa9")
	pool    = ethcommon.HexToAddress("0x0000000000000000000000000000000000000001")
)

// fixedRateRouter pays amountIn / rate of the last path asset from its own reserves.
type fixedRateRouter struct {
	rate int64

	legacyPaths [][]ethcommon.Address
	packedPaths [][]byte
}

var _ Router = &fixedRateRouter{}

func (r *fixedRateRouter) SwapExactTokensForTokens(_ context.Context, st ledger.State, payer ethcommon.Address, amountIn *big.Int, amountOutMin *big.Int, path []ethcommon.Address, to ethcommon.Address) (*big.Int, error) {
	r.legacyPaths = append(r.legacyPaths, path)
	return r.swap(st, payer, path[0], path[len(path)-1], amountIn, amountOutMin, to)
}

func (r *fixedRateRouter) ExactInput(_ context.Context, st ledger.State, params ExactInputParams) (*big.Int, error) {
	r.packedPaths = append(r.packedPaths, params.Path)
	hops, err := route.DecodePackedPath(params.Path)
	if err != nil {
		return nil, err
	}
	return r.swap(st, params.Payer, hops[0].Asset, hops[len(hops)-1].Asset, params.AmountIn, params.AmountOutMinimum, params.Recipient)
}

func (r *fixedRateRouter) swap(st ledger.State, payer, assetIn, assetOut ethcommon.Address, amountIn, amountOutMin *big.Int, to ethcommon.Address) (*big.Int, error) {
	amountOut := new(big.Int).Div(amountIn, big.NewInt(r.rate))
	if amountOut.Cmp(amountOutMin) < 0 {
		return nil, errors.New("too little received")
	}
	if err := st.Transfer(assetIn, payer, pool, amountIn); err != nil {
		return nil, err
	}
	if err := st.Transfer(assetOut, pool, to, amountOut); err != nil {
		return nil, err
	}
	return amountOut, nil
}

func setup(t *testing.T) (*Engine, *fixedRateRouter, *ledger.Ledger) {
	t.Helper()

	l := ledger.NewLedger()
	require.NoError(t, l.Mint(usdc, account, big.NewInt(2000)))
	require.NoError(t, l.Mint(weth, pool, big.NewInt(1_000_000)))

	router := &fixedRateRouter{rate: 2}
	return NewEngine(zap.NewNop(), router), router, l
}

func usdcToWeth(kind route.RouterKind, amountIn, amountOutMin int64) route.Leg {
	return route.Leg{
		Kind:         kind,
		Hops:         []route.Hop{{Asset: usdc}, {Asset: weth, PoolFee: 500}},
		AmountIn:     big.NewInt(amountIn),
		AmountOutMin: big.NewInt(amountOutMin),
	}
}

func TestExecuteEmptyPlanPassthrough(t *testing.T) {
	engine, router, l := setup(t)

	amountOut, err := engine.Execute(context.Background(), l, account, usdc, big.NewInt(1234), nil, usdc)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1234), amountOut)
	require.Empty(t, router.legacyPaths)
	require.Empty(t, router.packedPaths)
	require.Equal(t, big.NewInt(2000), l.BalanceOf(usdc, account))
}

func TestExecuteSumsLegs(t *testing.T) {
	engine, router, l := setup(t)
	plan := route.Plan{
		usdcToWeth(route.LegacyConstantProduct, 1000, 400),
		usdcToWeth(route.FeeTieredConcentrated, 1000, 500),
	}

	amountOut, err := engine.Execute(context.Background(), l, account, usdc, big.NewInt(2000), plan, weth)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1000), amountOut)
	require.Equal(t, big.NewInt(1000), l.BalanceOf(weth, account))
	require.Equal(t, big.NewInt(0), l.BalanceOf(usdc, account))

	require.Equal(t, [][]ethcommon.Address{{usdc, weth}}, router.legacyPaths)
	require.Len(t, router.packedPaths, 1)
	hops, err := route.DecodePackedPath(router.packedPaths[0])
	require.NoError(t, err)
	require.Equal(t, uint32(500), hops[1].PoolFee)
}

func TestExecuteFailurePropagates(t *testing.T) {
	engine, _, l := setup(t)
	plan := route.Plan{
		usdcToWeth(route.LegacyConstantProduct, 1000, 400),
		usdcToWeth(route.FeeTieredConcentrated, 1000, 501),
	}

	_, err := engine.Execute(context.Background(), l, account, usdc, big.NewInt(2000), plan, weth)
	require.ErrorIs(t, err, ErrRouterExecutionFailed)
	require.Contains(t, err.Error(), "leg 1")

	unsupported := route.Plan{usdcToWeth(route.RouterKind(9), 1000, 0)}
	_, err = engine.Execute(context.Background(), l, account, usdc, big.NewInt(1000), unsupported, weth)
	require.ErrorIs(t, err, route.ErrUnsupportedRouter)
}

func TestExecuteKeepsRouterCause(t *testing.T) {
	engine, _, l := setup(t)
	plan := route.Plan{usdcToWeth(route.LegacyConstantProduct, 3000, 0)}

	_, err := engine.Execute(context.Background(), l, account, usdc, big.NewInt(3000), plan, weth)
	require.ErrorIs(t, err, ErrRouterExecutionFailed)
	require.ErrorIs(t, err, ledger.ErrTransferFailed)
	require.Contains(t, err.Error(), "insufficient balance")
}

func TestTryExecuteRevertsWholePlan(t *testing.T) {
	engine, _, l := setup(t)
	plan := route.Plan{
		usdcToWeth(route.LegacyConstantProduct, 1000, 400),
		usdcToWeth(route.FeeTieredConcentrated, 1000, 501),
	}

	result := engine.TryExecute(context.Background(), l, account, usdc, big.NewInt(2000), plan, weth)
	require.False(t, result.Ok())
	require.ErrorIs(t, result.Err, ErrRouterExecutionFailed)
	require.Equal(t, big.NewInt(2000), l.BalanceOf(usdc, account))
	require.Equal(t, big.NewInt(0), l.BalanceOf(weth, account))

	result = engine.TryExecute(context.Background(), l, account, usdc, big.NewInt(2000), plan[:1], weth)
	require.True(t, result.Ok())
	require.Equal(t, big.NewInt(500), result.AmountOut)
}

func TestExecuteLegsIsolatesFailures(t *testing.T) {
	engine, _, l := setup(t)
	plan := route.Plan{
		usdcToWeth(route.LegacyConstantProduct, 1000, 400),
		usdcToWeth(route.FeeTieredConcentrated, 1000, 501),
	}

	results := engine.ExecuteLegs(context.Background(), l, account, plan)
	require.Len(t, results, 2)
	require.NoError(t, results[0].Err)
	require.Equal(t, big.NewInt(500), results[0].AmountOut)
	require.ErrorIs(t, results[1].Err, ErrRouterExecutionFailed)
	require.Nil(t, results[1].AmountOut)

	require.Equal(t, big.NewInt(1000), l.BalanceOf(usdc, account))
	require.Equal(t, big.NewInt(500), l.BalanceOf(weth, account))
}

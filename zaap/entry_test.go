package zaap

import (
	"context"
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gjermundgaraba/libzaap/bridge"
	"github.com/gjermundgaraba/libzaap/fees"
	"github.com/gjermundgaraba/libzaap/ledger"
	"github.com/gjermundgaraba/libzaap/permit"
	"github.com/gjermundgaraba/libzaap/route"
	"github.com/stretchr/testify/require"
)

// usdcToDaiEntry swaps 1000 USDC into DAI (996 out of the legacy pool) and
// bridges it through the DAI pool.
func usdcToDaiEntry(env *testEnv, t *testing.T) EntryRequest {
	return EntryRequest{
		Sender:         env.sender,
		Value:          big.NewInt(150),
		SourceAsset:    usdc,
		SourceAmountIn: big.NewInt(1_000),
		SourcePlan: route.Plan{
			testLeg(route.LegacyConstantProduct, 1_000, 990, route.Hop{Asset: usdc}, route.Hop{Asset: dai}),
		},
		BridgePoolID:       daiPoolID,
		BridgeAsset:        dai,
		DestinationChainID: destinationChainID,
		DestinationPoolID:  daiPoolID,
		DestinationPlan: route.Plan{
			testLeg(route.FeeTieredConcentrated, 900, 850, route.Hop{Asset: dai}, route.Hop{Asset: usdc, PoolFee: 500}),
		},
		DestinationAsset: usdc,
		Recipient:        recipient,
		Permit:           env.signPermit(t, usdc, 1_000, 0),
		Deadline:         1_000,
		PartnerID:        []byte("partner-1"),
	}
}

func TestEnterWithPermit(t *testing.T) {
	env := newTestEnv(t, WholePlan)
	env.setFees(t, fees.Inbound, 50)
	req := usdcToDaiEntry(env, t)

	receipt, err := env.zaap.Enter(context.Background(), env.ledger, req)
	require.NoError(t, err)
	require.Equal(t, int64(996), receipt.BridgeAmountGross.Int64())
	require.Equal(t, int64(992), receipt.BridgeAmountNet.Int64())
	require.Equal(t, int64(4), receipt.Fees.Treasury.Int64())
	require.Equal(t, uint64(1), receipt.Nonce)
	require.NotEmpty(t, receipt.SettlementID)

	require.Equal(t, int64(1_000_000-1_000), env.balance(usdc, env.sender))
	require.Equal(t, int64(1_000_000-messagingFee), env.balance(ledger.NativeAsset, env.sender))
	require.Equal(t, int64(4), env.balance(dai, treasury))
	require.Equal(t, int64(992), env.balance(dai, env.endpoint.PoolLiquidityAddress(daiPoolID)))
	require.Equal(t, int64(messagingFee), env.balance(ledger.NativeAsset, sourceEndpoint))
	for _, asset := range []ethcommon.Address{usdc, dai, weth, ledger.NativeAsset} {
		require.Zero(t, env.balance(asset, zaapAddress), "zaap keeps no %s", asset)
	}

	logs := env.ledger.Finalise()
	require.Len(t, logsNamed(logs, "Permit"), 1)

	zaapedIn := logsNamed(logs, EventZaapedIn)
	require.Len(t, zaapedIn, 1)
	event := zaapedIn[0].Data.(ZaapedIn)
	require.Equal(t, receipt.SettlementID, event.SettlementID)
	require.Equal(t, int64(992), event.BridgeAmountNet.Int64())
	require.Equal(t, recipient, event.Recipient)
	require.Equal(t, destinationChainID, event.DestinationChainID)

	messages := bridge.MessagesFromLogs(logs)
	require.Len(t, messages, 1)
	require.Equal(t, zaapAddress, messages[0].To)
	require.Equal(t, int64(992), messages[0].Amount.Int64())

	payload, err := bridge.DecodePayload(messages[0].Payload)
	require.NoError(t, err)
	require.Equal(t, recipient, payload.Recipient)
	require.Equal(t, usdc, payload.DestinationAsset)
	require.Equal(t, []byte("partner-1"), payload.PartnerID)
	require.Len(t, payload.Plan, 1)
	require.Equal(t, uint32(500), payload.Plan[0].Hops[1].PoolFee)
}

func TestEnterNativeSource(t *testing.T) {
	env := newTestEnv(t, WholePlan)

	receipt, err := env.zaap.Enter(context.Background(), env.ledger, EntryRequest{
		Sender:         env.sender,
		Value:          big.NewInt(1_100),
		SourceAsset:    ledger.NativeAsset,
		SourceAmountIn: big.NewInt(1_000),
		SourcePlan: route.Plan{
			testLeg(route.LegacyConstantProduct, 1_000, 990, route.Hop{Asset: weth}, route.Hop{Asset: usdc}),
		},
		BridgePoolID:       usdcPoolID,
		BridgeAsset:        usdc,
		DestinationChainID: destinationChainID,
		DestinationPoolID:  usdcPoolID,
		DestinationAsset:   usdc,
		Recipient:          recipient,
		Deadline:           1_000,
	})
	require.NoError(t, err)
	require.Equal(t, int64(996), receipt.BridgeAmountNet.Int64())

	require.Equal(t, int64(1_000_000-1_100), env.balance(ledger.NativeAsset, env.sender))
	require.Equal(t, int64(996), env.balance(usdc, env.endpoint.PoolLiquidityAddress(usdcPoolID)))
	require.Zero(t, env.balance(weth, zaapAddress))
	require.Zero(t, env.balance(ledger.NativeAsset, zaapAddress))
}

func TestEnterEmptyRoute(t *testing.T) {
	env := newTestEnv(t, WholePlan)
	req := usdcToDaiEntry(env, t)
	req.SourcePlan = nil
	req.BridgeAsset = usdc
	req.BridgePoolID = usdcPoolID

	receipt, err := env.zaap.Enter(context.Background(), env.ledger, req)
	require.NoError(t, err)
	require.Equal(t, int64(1_000), receipt.BridgeAmountGross.Int64())
	require.Equal(t, int64(1_000), receipt.BridgeAmountNet.Int64())
	require.Equal(t, int64(1_000), env.balance(usdc, env.endpoint.PoolLiquidityAddress(usdcPoolID)))
}

func TestEnterFailures(t *testing.T) {
	tests := []struct {
		name        string
		malleate    func(env *testEnv, req *EntryRequest)
		expectedErr error
	}{
		{
			name: "zero amount",
			malleate: func(_ *testEnv, req *EntryRequest) {
				req.SourceAmountIn = big.NewInt(0)
			},
			expectedErr: ErrInvalidAmount,
		},
		{
			name: "paused is checked first",
			malleate: func(env *testEnv, req *EntryRequest) {
				require.NoError(t, env.zaap.PauseIn(owner))
				req.SourceAmountIn = big.NewInt(0)
			},
			expectedErr: ErrPaused,
		},
		{
			name: "deadline expired",
			malleate: func(_ *testEnv, req *EntryRequest) {
				req.Deadline = 999
			},
			expectedErr: ErrDeadlineExpired,
		},
		{
			name: "empty route with different bridge asset",
			malleate: func(_ *testEnv, req *EntryRequest) {
				req.SourcePlan = nil
			},
			expectedErr: ErrEmptyRouteAssetMismatch,
		},
		{
			name: "bridge pool carries another asset",
			malleate: func(_ *testEnv, req *EntryRequest) {
				req.BridgePoolID = usdcPoolID
			},
			expectedErr: ErrRouteMismatch,
		},
		{
			name: "native value below source amount",
			malleate: func(_ *testEnv, req *EntryRequest) {
				req.SourceAsset = ledger.NativeAsset
				req.Value = big.NewInt(999)
				req.SourcePlan = route.Plan{
					testLeg(route.LegacyConstantProduct, 1_000, 1, route.Hop{Asset: weth}, route.Hop{Asset: usdc}),
				}
			},
			expectedErr: ErrInsufficientValue,
		},
		{
			name: "permit for another token",
			malleate: func(env *testEnv, req *EntryRequest) {
				req.Permit = env.signPermit(t, dai, 1_000, 0)
			},
			expectedErr: ErrInvalidPermit,
		},
		{
			name: "permit below source amount",
			malleate: func(env *testEnv, req *EntryRequest) {
				req.Permit = env.signPermit(t, usdc, 999, 0)
			},
			expectedErr: permit.ErrInsufficientAllowance,
		},
		{
			name: "source route starts elsewhere",
			malleate: func(_ *testEnv, req *EntryRequest) {
				req.SourcePlan[0].Hops[0].Asset = dai
			},
			expectedErr: ErrRouteMismatch,
		},
		{
			name: "source route spends less than the source amount",
			malleate: func(_ *testEnv, req *EntryRequest) {
				req.SourcePlan[0].AmountIn = big.NewInt(900)
			},
			expectedErr: ErrInvalidAmount,
		},
		{
			name: "unsupported router",
			malleate: func(_ *testEnv, req *EntryRequest) {
				req.SourcePlan[0].Kind = route.RouterKind(7)
			},
			expectedErr: ErrUnsupportedRouter,
		},
		{
			name: "router fails",
			malleate: func(_ *testEnv, req *EntryRequest) {
				req.SourcePlan[0].AmountOutMin = big.NewInt(2_000)
			},
			expectedErr: ErrRouterExecutionFailed,
		},
		{
			name: "messaging fee not covered",
			malleate: func(_ *testEnv, req *EntryRequest) {
				req.Value = big.NewInt(messagingFee - 1)
			},
			expectedErr: bridge.ErrInsufficientFee,
		},
		{
			name: "bridge minimum not met",
			malleate: func(_ *testEnv, req *EntryRequest) {
				req.BridgeAmountMin = big.NewInt(997)
			},
			expectedErr: bridge.ErrSlippage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, WholePlan)
			req := usdcToDaiEntry(env, t)
			tt.malleate(env, &req)

			_, err := env.zaap.Enter(context.Background(), env.ledger, req)
			require.ErrorIs(t, err, tt.expectedErr)

			// nothing moved and nothing was emitted
			require.Equal(t, int64(1_000_000), env.balance(usdc, env.sender))
			require.Equal(t, int64(1_000_000), env.balance(ledger.NativeAsset, env.sender))
			require.Zero(t, env.balance(dai, env.endpoint.PoolLiquidityAddress(daiPoolID)))
			require.Empty(t, env.ledger.Finalise())
		})
	}
}

func TestEnterFailureRestoresPermit(t *testing.T) {
	env := newTestEnv(t, WholePlan)
	req := usdcToDaiEntry(env, t)
	req.SourcePlan[0].AmountOutMin = big.NewInt(2_000)

	_, err := env.zaap.Enter(context.Background(), env.ledger, req)
	require.ErrorIs(t, err, ErrRouterExecutionFailed)
	require.Equal(t, uint64(0), env.permit2.Allowance(env.ledger, env.sender, usdc, zaapAddress).Nonce)

	// the same signature is still redeemable
	req.SourcePlan[0].AmountOutMin = big.NewInt(990)
	_, err = env.zaap.Enter(context.Background(), env.ledger, req)
	require.NoError(t, err)
	require.Equal(t, uint64(1), env.permit2.Allowance(env.ledger, env.sender, usdc, zaapAddress).Nonce)

	// and only once
	_, err = env.zaap.Enter(context.Background(), env.ledger, req)
	require.ErrorIs(t, err, permit.ErrInvalidNonce)
}

func TestEnterPartnerFeeTransferFailure(t *testing.T) {
	env := newTestEnv(t, WholePlan)
	env.setFees(t, fees.Inbound, 50)
	require.NoError(t, env.zaap.SetPartner(context.Background(), owner, fees.Inbound, []byte("partner-1"), fees.Partner{Address: partnerAddress, PercentShare: 50}))
	env.ledger.Block(partnerAddress)

	receipt, err := env.zaap.Enter(context.Background(), env.ledger, usdcToDaiEntry(env, t))
	require.NoError(t, err)

	// fee 4: partner 2 could not be paid and stays in the bridged amount
	require.Equal(t, int64(2), receipt.Fees.Treasury.Int64())
	require.Zero(t, receipt.Fees.Partner.Int64())
	require.Equal(t, int64(994), receipt.BridgeAmountNet.Int64())
	require.Equal(t, int64(2), env.balance(dai, treasury))
	require.Equal(t, int64(994), env.balance(dai, env.endpoint.PoolLiquidityAddress(daiPoolID)))
	require.Zero(t, env.balance(dai, zaapAddress))

	failures := logsNamed(env.ledger.Finalise(), EventFeeTransferFailed)
	require.Len(t, failures, 1)
	failure := failures[0].Data.(FeeTransferFailed)
	require.Equal(t, partnerAddress, failure.To)
	require.Equal(t, int64(2), failure.Amount.Int64())
	require.Equal(t, fees.Inbound, failure.Direction)
}

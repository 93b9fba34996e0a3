package zaap

import (
	"context"
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gjermundgaraba/libzaap/bridge"
	"github.com/gjermundgaraba/libzaap/fees"
	"github.com/gjermundgaraba/libzaap/ledger"
	"github.com/gjermundgaraba/libzaap/route"
	"github.com/stretchr/testify/require"
)

// bridged credits amount of asset to the orchestrator the way the transport
// does before invoking it, and builds the matching receive request.
func bridged(t *testing.T, env *testEnv, asset ethcommon.Address, amount int64, payload bridge.Payload) bridge.ReceiveRequest {
	t.Helper()

	require.NoError(t, env.ledger.Mint(asset, zaapAddress, big.NewInt(amount)))
	data, err := bridge.EncodePayload(payload)
	require.NoError(t, err)
	env.ledger.Finalise()

	return bridge.ReceiveRequest{
		SourceChainID: sourceChainID,
		SourceAddress: zaapAddress,
		Nonce:         7,
		Asset:         asset,
		Amount:        big.NewInt(amount),
		Payload:       data,
	}
}

func usdcToDai(amountIn, amountOutMin int64) route.Leg {
	return testLeg(route.LegacyConstantProduct, amountIn, amountOutMin, route.Hop{Asset: usdc}, route.Hop{Asset: dai})
}

func usdcToDaiTiered(amountIn, amountOutMin int64) route.Leg {
	return testLeg(route.FeeTieredConcentrated, amountIn, amountOutMin, route.Hop{Asset: usdc}, route.Hop{Asset: dai, PoolFee: 500})
}

func TestReceive(t *testing.T) {
	tests := []struct {
		name        string
		containment Containment
		amount      int64
		payload     bridge.Payload

		expOutcome   Outcome
		expFailure   FailureKind
		expUSDC      int64
		expDAI       int64
		expDelivered ethcommon.Address
	}{
		{
			name:         "empty plan, same asset",
			amount:       1_000,
			payload:      bridge.Payload{DestinationAsset: usdc},
			expOutcome:   DeliveredUnswapped,
			expUSDC:      1_000,
			expDelivered: usdc,
		},
		{
			name:         "empty plan, different asset",
			amount:       1_000,
			payload:      bridge.Payload{DestinationAsset: dai},
			expOutcome:   DeliveredWithErrorFallback,
			expFailure:   FailureRouteMismatch,
			expUSDC:      1_000,
			expDelivered: usdc,
		},
		{
			name:   "plan ends in another asset",
			amount: 1_000,
			payload: bridge.Payload{
				Plan:             route.Plan{usdcToDai(1_000, 1)},
				DestinationAsset: weth,
			},
			expOutcome:   DeliveredWithErrorFallback,
			expFailure:   FailureInvalidRoute,
			expUSDC:      1_000,
			expDelivered: usdc,
		},
		{
			name:   "unknown router kind",
			amount: 1_000,
			payload: bridge.Payload{
				Plan: route.Plan{
					testLeg(route.RouterKind(9), 1_000, 1, route.Hop{Asset: usdc}, route.Hop{Asset: dai}),
				},
				DestinationAsset: dai,
			},
			expOutcome:   DeliveredWithErrorFallback,
			expFailure:   FailureInvalidRoute,
			expUSDC:      1_000,
			expDelivered: usdc,
		},
		{
			name:   "plan spends more than was bridged",
			amount: 1_000,
			payload: bridge.Payload{
				Plan:             route.Plan{usdcToDai(1_001, 1)},
				DestinationAsset: dai,
			},
			expOutcome:   DeliveredWithErrorFallback,
			expFailure:   FailureInvalidRoute,
			expUSDC:      1_000,
			expDelivered: usdc,
		},
		{
			name:   "single leg below minimum",
			amount: 1_000,
			payload: bridge.Payload{
				Plan:             route.Plan{usdcToDaiTiered(1_000, 1_100)},
				DestinationAsset: dai,
			},
			expOutcome:   DeliveredWithErrorFallback,
			expFailure:   FailureSwapExecutionFailed,
			expUSDC:      1_000,
			expDelivered: usdc,
		},
		{
			name:   "one of two legs below minimum",
			amount: 2_000,
			payload: bridge.Payload{
				Plan:             route.Plan{usdcToDai(1_000, 990), usdcToDaiTiered(1_000, 1_100)},
				DestinationAsset: dai,
			},
			expOutcome:   DeliveredWithErrorFallback,
			expFailure:   FailureSwapExecutionFailed,
			expUSDC:      2_000,
			expDelivered: usdc,
		},
		{
			name:        "one of two legs below minimum, per leg",
			containment: PerLeg,
			amount:      2_000,
			payload: bridge.Payload{
				Plan:             route.Plan{usdcToDai(1_000, 990), usdcToDaiTiered(1_000, 1_100)},
				DestinationAsset: dai,
			},
			expOutcome:   DeliveredWithErrorFallback,
			expFailure:   FailureSwapExecutionFailed,
			expUSDC:      1_000,
			expDAI:       996,
			expDelivered: dai,
		},
		{
			name:        "every leg below minimum, per leg",
			containment: PerLeg,
			amount:      2_000,
			payload: bridge.Payload{
				Plan:             route.Plan{usdcToDai(1_000, 1_100), usdcToDaiTiered(1_000, 1_100)},
				DestinationAsset: dai,
			},
			expOutcome:   DeliveredWithErrorFallback,
			expFailure:   FailureSwapExecutionFailed,
			expUSDC:      2_000,
			expDelivered: usdc,
		},
		{
			name:   "two legs over both router kinds",
			amount: 2_000,
			payload: bridge.Payload{
				Plan:             route.Plan{usdcToDai(1_000, 990), usdcToDaiTiered(1_000, 990)},
				DestinationAsset: dai,
			},
			expOutcome:   DeliveredSwapped,
			expDAI:       996 + 999,
			expDelivered: dai,
		},
		{
			name:        "two legs, per leg",
			containment: PerLeg,
			amount:      2_000,
			payload: bridge.Payload{
				Plan:             route.Plan{usdcToDai(1_000, 990), usdcToDaiTiered(1_000, 990)},
				DestinationAsset: dai,
			},
			expOutcome:   DeliveredSwapped,
			expDAI:       996 + 999,
			expDelivered: dai,
		},
		{
			name:   "plan spends less than was bridged",
			amount: 1_500,
			payload: bridge.Payload{
				Plan:             route.Plan{usdcToDai(1_000, 990)},
				DestinationAsset: dai,
			},
			expOutcome:   DeliveredSwapped,
			expUSDC:      500,
			expDAI:       996,
			expDelivered: dai,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.containment)
			tt.payload.Recipient = recipient
			req := bridged(t, env, usdc, tt.amount, tt.payload)

			result, err := env.zaap.Receive(context.Background(), env.ledger, env.endpoint.Address(), req)
			require.NoError(t, err)
			require.Equal(t, tt.expOutcome, result.Outcome)
			require.Equal(t, tt.expDelivered, result.DeliveredAsset)

			require.Equal(t, tt.expUSDC, env.balance(usdc, recipient))
			require.Equal(t, tt.expDAI, env.balance(dai, recipient))
			require.Zero(t, env.balance(usdc, zaapAddress), "bridged funds stranded")
			require.Zero(t, env.balance(dai, zaapAddress), "swapped funds stranded")

			logs := env.ledger.Finalise()
			errored := logsNamed(logs, EventZaapErrored)
			if tt.expFailure == "" {
				require.Empty(t, errored)
				require.Empty(t, result.Failures)
			} else {
				require.Len(t, errored, 1)
				require.Equal(t, tt.expFailure, errored[0].Data.(ZaapErrored).Kind)
				require.NotEmpty(t, errored[0].Data.(ZaapErrored).Reason)
			}

			zaapedOut := logsNamed(logs, EventZaapedOut)
			require.Len(t, zaapedOut, 1)
			event := zaapedOut[0].Data.(ZaapedOut)
			require.Equal(t, tt.expOutcome, event.Outcome)
			require.Equal(t, sourceChainID, event.SourceChainID)
			require.Equal(t, uint64(7), event.Nonce)
			require.Equal(t, usdc, event.BridgedAsset)
			require.Equal(t, tt.amount, event.BridgedAmountIn.Int64())
			require.Equal(t, recipient, event.Recipient)

			// exactly what was bridged or swapped reaches the recipient
			delivered := new(big.Int).Add(event.DeliveredAmount, event.Remainder)
			require.True(t, delivered.Sign() > 0)
			require.Equal(t, tt.expUSDC+tt.expDAI, delivered.Int64())
		})
	}
}

func TestReceiveAborts(t *testing.T) {
	payload := bridge.Payload{DestinationAsset: usdc, Recipient: recipient}

	t.Run("unauthorized caller", func(t *testing.T) {
		env := newTestEnv(t, WholePlan)
		req := bridged(t, env, usdc, 1_000, payload)

		_, err := env.zaap.Receive(context.Background(), env.ledger, recipient, req)
		require.ErrorIs(t, err, ErrUnauthorizedCaller)
	})

	t.Run("zero amount", func(t *testing.T) {
		env := newTestEnv(t, WholePlan)
		req := bridged(t, env, usdc, 1_000, payload)
		req.Amount = big.NewInt(0)

		_, err := env.zaap.Receive(context.Background(), env.ledger, env.endpoint.Address(), req)
		require.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("paused", func(t *testing.T) {
		env := newTestEnv(t, WholePlan)
		req := bridged(t, env, usdc, 1_000, payload)
		require.NoError(t, env.zaap.PauseOut(owner))

		_, err := env.zaap.Receive(context.Background(), env.ledger, env.endpoint.Address(), req)
		require.ErrorIs(t, err, ErrPaused)

		// entries stay open
		require.False(t, env.zaap.PausedIn())

		require.NoError(t, env.zaap.UnpauseOut(owner))
		_, err = env.zaap.Receive(context.Background(), env.ledger, env.endpoint.Address(), req)
		require.NoError(t, err)
	})

	t.Run("paused before caller check", func(t *testing.T) {
		env := newTestEnv(t, WholePlan)
		req := bridged(t, env, usdc, 1_000, payload)
		require.NoError(t, env.zaap.PauseOut(owner))

		_, err := env.zaap.Receive(context.Background(), env.ledger, recipient, req)
		require.ErrorIs(t, err, ErrPaused)
		require.NotErrorIs(t, err, ErrUnauthorizedCaller)

		req.Amount = big.NewInt(0)
		_, err = env.zaap.Receive(context.Background(), env.ledger, env.endpoint.Address(), req)
		require.ErrorIs(t, err, ErrPaused)
	})

	t.Run("undecodable payload", func(t *testing.T) {
		env := newTestEnv(t, WholePlan)
		req := bridged(t, env, usdc, 1_000, payload)
		req.Payload = []byte{0x01, 0x02}

		_, err := env.zaap.Receive(context.Background(), env.ledger, env.endpoint.Address(), req)
		require.ErrorIs(t, err, ErrInvalidPayload)
	})

	t.Run("recipient cannot receive", func(t *testing.T) {
		env := newTestEnv(t, WholePlan)
		req := bridged(t, env, usdc, 1_000, payload)
		env.ledger.Block(recipient)

		_, err := env.zaap.Receive(context.Background(), env.ledger, env.endpoint.Address(), req)
		require.ErrorIs(t, err, ErrTransferFailed)
	})
}

func TestReceiveOutboundFees(t *testing.T) {
	env := newTestEnv(t, WholePlan)
	env.setFees(t, fees.Outbound, 50)
	require.NoError(t, env.zaap.SetPartner(context.Background(), owner, fees.Outbound, []byte{0xaa}, fees.Partner{Address: partnerAddress, PercentShare: 50}))

	req := bridged(t, env, usdc, 2_000, bridge.Payload{
		Plan:             route.Plan{usdcToDai(1_000, 990), usdcToDaiTiered(1_000, 990)},
		DestinationAsset: dai,
		Recipient:        recipient,
		PartnerID:        []byte{0xaa},
	})

	result, err := env.zaap.Receive(context.Background(), env.ledger, env.endpoint.Address(), req)
	require.NoError(t, err)

	// 1995 swapped, fee floor(1995 * 50 / 10000) = 9, partner floor(9 / 2) = 4
	require.Equal(t, int64(1_986), result.DeliveredAmount.Int64())
	require.Equal(t, int64(1_986), env.balance(dai, recipient))
	require.Equal(t, int64(5), env.balance(dai, treasury))
	require.Equal(t, int64(4), env.balance(dai, partnerAddress))
}

func TestReceiveUnswappedSkipsFees(t *testing.T) {
	env := newTestEnv(t, WholePlan)
	env.setFees(t, fees.Outbound, 50)

	req := bridged(t, env, usdc, 1_000, bridge.Payload{DestinationAsset: usdc, Recipient: recipient})
	_, err := env.zaap.Receive(context.Background(), env.ledger, env.endpoint.Address(), req)
	require.NoError(t, err)

	require.Equal(t, int64(1_000), env.balance(usdc, recipient))
	require.Zero(t, env.balance(usdc, treasury))
}

func TestReceiveNativeDestination(t *testing.T) {
	env := newTestEnv(t, WholePlan)
	recipientNativeBefore := env.balance(ledger.NativeAsset, recipient)

	req := bridged(t, env, usdc, 1_000, bridge.Payload{
		Plan: route.Plan{
			testLeg(route.LegacyConstantProduct, 1_000, 990, route.Hop{Asset: usdc}, route.Hop{Asset: weth}),
		},
		DestinationAsset: ledger.NativeAsset,
		Recipient:        recipient,
	})

	result, err := env.zaap.Receive(context.Background(), env.ledger, env.endpoint.Address(), req)
	require.NoError(t, err)
	require.Equal(t, DeliveredSwapped, result.Outcome)
	require.Equal(t, ledger.NativeAsset, result.DeliveredAsset)
	require.Equal(t, recipientNativeBefore+996, env.balance(ledger.NativeAsset, recipient))
	require.Zero(t, env.balance(weth, recipient))
	require.Zero(t, env.balance(weth, zaapAddress))
}

func TestReceiveWrappedNativeUnswapped(t *testing.T) {
	env := newTestEnv(t, WholePlan)

	req := bridged(t, env, weth, 1_000, bridge.Payload{DestinationAsset: ledger.NativeAsset, Recipient: recipient})
	result, err := env.zaap.Receive(context.Background(), env.ledger, env.endpoint.Address(), req)
	require.NoError(t, err)
	require.Equal(t, DeliveredUnswapped, result.Outcome)
	require.Equal(t, ledger.NativeAsset, result.DeliveredAsset)
	require.Equal(t, int64(1_000), env.balance(ledger.NativeAsset, recipient))
	require.Zero(t, env.balance(weth, zaapAddress))
}

func TestReceiveFeeTransferFailureStillDelivers(t *testing.T) {
	env := newTestEnv(t, WholePlan)
	env.setFees(t, fees.Outbound, 50)
	env.ledger.Block(treasury)

	req := bridged(t, env, usdc, 1_000, bridge.Payload{
		Plan:             route.Plan{usdcToDai(1_000, 990)},
		DestinationAsset: dai,
		Recipient:        recipient,
	})
	result, err := env.zaap.Receive(context.Background(), env.ledger, env.endpoint.Address(), req)
	require.NoError(t, err)
	require.Equal(t, int64(996), result.DeliveredAmount.Int64())
	require.Equal(t, int64(996), env.balance(dai, recipient))

	require.Len(t, logsNamed(env.ledger.Finalise(), EventFeeTransferFailed), 1)
}

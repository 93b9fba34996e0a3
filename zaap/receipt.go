package zaap

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gjermundgaraba/libzaap/bridge"
	"github.com/gjermundgaraba/libzaap/fees"
	"github.com/gjermundgaraba/libzaap/ledger"
	"github.com/gjermundgaraba/libzaap/route"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type ReceiptResult struct {
	SettlementID    string
	Outcome         Outcome
	DeliveredAsset  ethcommon.Address
	DeliveredAmount *big.Int
	// Remainder is delivered in the bridged asset.
	Remainder *big.Int
	Fees      fees.Split
	Failures  []ZaapErrored
}

// receipt collects the state of one settlement while it is being resolved.
type receipt struct {
	id      string
	req     bridge.ReceiveRequest
	payload bridge.Payload
	// target is the tokenized destination asset the plan must end in
	target ethcommon.Address
	unwrap bool

	swapped   *big.Int
	remainder *big.Int
	outcome   Outcome
	failures  []ZaapErrored
}

// Receive settles a bridged transfer on the destination chain. Only the
// registered transport may call it. Route and swap failures never abort the
// receipt: they are reported with ZaapErrored and the bridged asset is
// delivered instead.
func (z *Zaap) Receive(ctx context.Context, st ledger.State, caller ethcommon.Address, req bridge.ReceiveRequest) (*ReceiptResult, error) {
	if z.pausedOut.Load() {
		return nil, errors.Wrap(ErrPaused, "receipts are paused")
	}
	if caller != z.transport.Address() {
		return nil, errors.Wrapf(ErrUnauthorizedCaller, "caller %s is not the bridge transport", caller)
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, errors.Wrapf(ErrInvalidAmount, "bridged amount %v", req.Amount)
	}

	payload, err := bridge.DecodePayload(req.Payload)
	if err != nil {
		return nil, err
	}
	if payload.Recipient == (ethcommon.Address{}) {
		return nil, errors.Wrap(ErrInvalidPayload, "recipient is the zero address")
	}

	r := &receipt{
		id:        uuid.NewString(),
		req:       req,
		payload:   payload,
		target:    z.tokenized(payload.DestinationAsset),
		unwrap:    ledger.IsNative(payload.DestinationAsset),
		swapped:   new(big.Int),
		remainder: new(big.Int),
	}
	z.resolve(ctx, st, r)

	for _, failure := range r.failures {
		st.AddLog(ledger.Log{Address: z.address, Name: EventZaapErrored, Data: failure})
	}

	split := fees.Split{Net: new(big.Int), Treasury: new(big.Int), Partner: new(big.Int)}
	if r.swapped.Sign() > 0 {
		split, err = z.chargeFees(ctx, st, r.id, fees.Outbound, r.target, r.swapped, payload.PartnerID)
		if err != nil {
			return nil, err
		}
	}

	swappedAsset, err := z.deliver(st, r.target, payload.Recipient, split.Net, r.unwrap)
	if err != nil {
		return nil, err
	}
	remainderAsset, err := z.deliver(st, req.Asset, payload.Recipient, r.remainder, r.unwrap)
	if err != nil {
		return nil, err
	}

	deliveredAsset, deliveredAmount, remainder := swappedAsset, split.Net, r.remainder
	if r.swapped.Sign() == 0 {
		// nothing was swapped, the bridged asset is the delivery
		deliveredAsset, deliveredAmount, remainder = remainderAsset, r.remainder, new(big.Int)
	}

	st.AddLog(ledger.Log{
		Address: z.address,
		Name:    EventZaapedOut,
		Data: ZaapedOut{
			SettlementID:    r.id,
			SourceChainID:   req.SourceChainID,
			SourceAddress:   req.SourceAddress,
			Nonce:           req.Nonce,
			BridgedAsset:    req.Asset,
			BridgedAmountIn: new(big.Int).Set(req.Amount),
			DeliveredAsset:  deliveredAsset,
			DeliveredAmount: new(big.Int).Set(deliveredAmount),
			Remainder:       new(big.Int).Set(remainder),
			TreasuryFee:     new(big.Int).Set(split.Treasury),
			PartnerFee:      new(big.Int).Set(split.Partner),
			Recipient:       payload.Recipient,
			Outcome:         r.outcome,
		},
	})

	z.logger.Info("Receipt settled",
		zap.String("settlement_id", r.id),
		zap.Uint16("source_chain_id", req.SourceChainID),
		zap.Uint64("nonce", req.Nonce),
		zap.Stringer("outcome", r.outcome),
		zap.String("delivered_asset", deliveredAsset.Hex()),
		zap.Stringer("delivered_amount", deliveredAmount),
		zap.Stringer("remainder", remainder),
	)

	return &ReceiptResult{
		SettlementID:    r.id,
		Outcome:         r.outcome,
		DeliveredAsset:  deliveredAsset,
		DeliveredAmount: deliveredAmount,
		Remainder:       remainder,
		Fees:            split,
		Failures:        r.failures,
	}, nil
}

// resolve decides how the bridged amount is split between swapped output and
// unswapped remainder. It runs the swaps but does not deliver anything.
func (z *Zaap) resolve(ctx context.Context, st ledger.State, r *receipt) {
	bridged := r.req.Asset
	plan := r.payload.Plan

	if plan.IsEmpty() {
		if bridged == r.target {
			r.outcome = DeliveredUnswapped
			r.remainder.Set(r.req.Amount)
			return
		}
		z.fallback(r, FailureRouteMismatch, fmt.Sprintf("empty destination route requires bridged asset %s == destination asset %s", bridged.Hex(), r.target.Hex()))
		return
	}

	if err := route.Validate(plan, bridged, r.target); err != nil {
		z.fallback(r, FailureInvalidRoute, err.Error())
		return
	}
	totalIn := plan.TotalAmountIn()
	if totalIn.Cmp(r.req.Amount) > 0 {
		z.fallback(r, FailureInvalidRoute, fmt.Sprintf("destination route spends %s, bridged amount is %s", totalIn, r.req.Amount))
		return
	}
	unspent := new(big.Int).Sub(r.req.Amount, totalIn)

	switch z.containment {
	case PerLeg:
		var reasons []string
		for i, result := range z.engine.ExecuteLegs(ctx, st, z.address, plan) {
			if result.Err != nil {
				unspent.Add(unspent, result.Leg.AmountIn)
				reasons = append(reasons, fmt.Sprintf("leg %d: %s", i, result.Err))
				continue
			}
			r.swapped.Add(r.swapped, result.AmountOut)
		}
		if len(reasons) == len(plan) {
			z.fallback(r, FailureSwapExecutionFailed, strings.Join(reasons, "; "))
			return
		}
		r.outcome = DeliveredSwapped
		if len(reasons) > 0 {
			r.outcome = DeliveredWithErrorFallback
			r.failures = append(r.failures, ZaapErrored{SettlementID: r.id, Kind: FailureSwapExecutionFailed, Reason: strings.Join(reasons, "; ")})
		}
	default:
		result := z.engine.TryExecute(ctx, st, z.address, bridged, totalIn, plan, r.target)
		if !result.Ok() {
			z.fallback(r, FailureSwapExecutionFailed, errors.Wrap(ErrSwapExecutionFailed, result.Err.Error()).Error())
			return
		}
		r.swapped.Set(result.AmountOut)
		r.outcome = DeliveredSwapped
	}

	r.remainder.Set(unspent)
}

// fallback delivers the full bridged amount unswapped.
func (z *Zaap) fallback(r *receipt, kind FailureKind, reason string) {
	r.outcome = DeliveredWithErrorFallback
	r.swapped.SetInt64(0)
	r.remainder.Set(r.req.Amount)
	r.failures = append(r.failures, ZaapErrored{SettlementID: r.id, Kind: kind, Reason: reason})
}

// deliver sends amount of asset to recipient. Wrapped native is unwrapped
// first when the recipient asked for native. It returns the asset the
// recipient actually received.
func (z *Zaap) deliver(st ledger.State, asset ethcommon.Address, recipient ethcommon.Address, amount *big.Int, toNative bool) (ethcommon.Address, error) {
	if toNative && asset == z.wrappedNative {
		if amount.Sign() > 0 {
			if err := ledger.Unwrap(st, z.wrappedNative, z.address, amount); err != nil {
				return ethcommon.Address{}, errors.Wrap(err, "failed to unwrap delivery")
			}
		}
		asset = ledger.NativeAsset
	}
	if amount.Sign() == 0 {
		return asset, nil
	}

	if err := st.Transfer(asset, z.address, recipient, amount); err != nil {
		return ethcommon.Address{}, errors.Wrapf(err, "failed to deliver %s %s to %s", amount, asset, recipient)
	}

	return asset, nil
}

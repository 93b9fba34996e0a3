package zaap

import (
	"context"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gjermundgaraba/libzaap/bridge"
	"github.com/gjermundgaraba/libzaap/fees"
	"github.com/gjermundgaraba/libzaap/ledger"
	"github.com/gjermundgaraba/libzaap/permit"
	"github.com/gjermundgaraba/libzaap/route"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type EntryRequest struct {
	Sender ethcommon.Address
	// Value is the native value attached to the call. Whatever is not used as
	// the source amount pays the bridge messaging fee.
	Value *big.Int

	SourceAsset    ethcommon.Address
	SourceAmountIn *big.Int
	SourcePlan     route.Plan

	BridgePoolID    uint64
	BridgeAsset     ethcommon.Address
	BridgeAmountMin *big.Int

	DestinationChainID uint16
	DestinationPoolID  uint64
	RefundAddress      ethcommon.Address
	AdapterParams      []byte
	DestinationPlan    route.Plan
	DestinationAsset   ethcommon.Address
	Recipient          ethcommon.Address

	// Permit authorizes pulling SourceAmountIn from Sender. It may be nil if
	// an unused allowance from an earlier permit covers the amount.
	Permit *permit.Signed

	Deadline  uint64
	PartnerID []byte
}

type EntryReceipt struct {
	SettlementID      string
	Nonce             uint64
	BridgeAmountGross *big.Int
	BridgeAmountNet   *big.Int
	Fees              fees.Split
}

// Enter acquires the source funds, swaps them into the bridge asset, charges
// the inbound fee and hands the net amount plus the destination instruction
// to the bridge transport. Any failure reverts every effect of the entry.
func (z *Zaap) Enter(ctx context.Context, st ledger.State, req EntryRequest) (*EntryReceipt, error) {
	settlementID := uuid.NewString()

	snapshot := st.Snapshot()
	receipt, err := z.enter(ctx, st, settlementID, req)
	if err != nil {
		st.RevertToSnapshot(snapshot)
		z.logger.Info("Entry aborted", zap.String("settlement_id", settlementID), zap.String("sender", req.Sender.Hex()), zap.Error(err))
		return nil, err
	}

	return receipt, nil
}

func (z *Zaap) enter(ctx context.Context, st ledger.State, settlementID string, req EntryRequest) (*EntryReceipt, error) {
	if z.pausedIn.Load() {
		return nil, errors.Wrap(ErrPaused, "entries are paused")
	}
	if req.SourceAmountIn == nil || req.SourceAmountIn.Sign() <= 0 {
		return nil, errors.Wrapf(ErrInvalidAmount, "source amount %v", req.SourceAmountIn)
	}
	if st.Timestamp() > req.Deadline {
		return nil, errors.Wrapf(ErrDeadlineExpired, "now %d > deadline %d", st.Timestamp(), req.Deadline)
	}

	source := z.tokenized(req.SourceAsset)
	if req.SourcePlan.IsEmpty() && source != req.BridgeAsset {
		return nil, errors.Wrapf(ErrEmptyRouteAssetMismatch, "source %s, bridge %s", req.SourceAsset, req.BridgeAsset)
	}
	if req.Recipient == (ethcommon.Address{}) {
		return nil, ErrInvalidRecipient
	}
	poolAsset, err := z.transport.PoolAsset(req.BridgePoolID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve bridge pool")
	}
	if poolAsset != req.BridgeAsset {
		return nil, errors.Wrapf(ErrRouteMismatch, "bridge pool %d carries %s, not %s", req.BridgePoolID, poolAsset, req.BridgeAsset)
	}

	value := new(big.Int)
	if req.Value != nil {
		value.Set(req.Value)
	}
	if value.Sign() < 0 {
		return nil, errors.Wrapf(ErrInvalidAmount, "value %s", value)
	}
	if value.Sign() > 0 {
		if err := st.Transfer(ledger.NativeAsset, req.Sender, z.address, value); err != nil {
			return nil, errors.Wrap(err, "failed to attach value")
		}
	}

	messagingFee, err := z.acquireFunds(st, req, value)
	if err != nil {
		return nil, err
	}

	if err := route.Validate(req.SourcePlan, source, req.BridgeAsset); err != nil {
		return nil, errors.Wrap(err, "invalid source route")
	}
	if !req.SourcePlan.IsEmpty() {
		if total := req.SourcePlan.TotalAmountIn(); total.Cmp(req.SourceAmountIn) != 0 {
			return nil, errors.Wrapf(ErrInvalidAmount, "source plan spends %s, source amount is %s", total, req.SourceAmountIn)
		}
	}

	gross, err := z.engine.Execute(ctx, st, z.address, source, req.SourceAmountIn, req.SourcePlan, req.BridgeAsset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute source route")
	}

	split, err := z.chargeFees(ctx, st, settlementID, fees.Inbound, req.BridgeAsset, gross, req.PartnerID)
	if err != nil {
		return nil, err
	}

	instruction := bridge.Instruction{
		DestinationChainID: req.DestinationChainID,
		DestinationPoolID:  req.DestinationPoolID,
		SourcePoolID:       req.BridgePoolID,
		RefundAddress:      req.RefundAddress,
		AdapterParams:      req.AdapterParams,
		Recipient:          req.Recipient,
		DestinationPlan:    req.DestinationPlan,
		DestinationAsset:   req.DestinationAsset,
		PartnerID:          req.PartnerID,
	}
	payload, err := bridge.EncodePayload(instruction.Payload())
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode bridge instruction")
	}

	refundAddress := req.RefundAddress
	if refundAddress == (ethcommon.Address{}) {
		refundAddress = req.Sender
	}
	nonce, err := z.transport.Send(ctx, st, z.address, bridge.SendRequest{
		DestinationChainID: instruction.DestinationChainID,
		DestinationPoolID:  instruction.DestinationPoolID,
		SourcePoolID:       instruction.SourcePoolID,
		Amount:             split.Net,
		MinAmount:          req.BridgeAmountMin,
		RefundAddress:      refundAddress,
		To:                 z.address,
		AdapterParams:      instruction.AdapterParams,
		Payload:            payload,
	}, messagingFee)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send to bridge")
	}

	st.AddLog(ledger.Log{
		Address: z.address,
		Name:    EventZaapedIn,
		Data: ZaapedIn{
			SettlementID:       settlementID,
			Nonce:              nonce,
			Sender:             req.Sender,
			SourceAsset:        req.SourceAsset,
			SourceAmountIn:     new(big.Int).Set(req.SourceAmountIn),
			BridgePoolID:       req.BridgePoolID,
			BridgeAsset:        req.BridgeAsset,
			BridgeAmountMin:    req.BridgeAmountMin,
			BridgeAmountGross:  new(big.Int).Set(gross),
			BridgeAmountNet:    new(big.Int).Set(split.Net),
			TreasuryFee:        new(big.Int).Set(split.Treasury),
			PartnerFee:         new(big.Int).Set(split.Partner),
			DestinationChainID: req.DestinationChainID,
			DestinationPoolID:  req.DestinationPoolID,
			RefundAddress:      req.RefundAddress,
			Recipient:          req.Recipient,
			DestinationPlan:    req.DestinationPlan,
			DestinationAsset:   req.DestinationAsset,
			PartnerID:          req.PartnerID,
		},
	})

	z.logger.Info("Entry dispatched",
		zap.String("settlement_id", settlementID),
		zap.Uint64("nonce", nonce),
		zap.String("sender", req.Sender.Hex()),
		zap.Stringer("bridge_amount_gross", gross),
		zap.Stringer("bridge_amount_net", split.Net),
		zap.Uint16("destination_chain_id", req.DestinationChainID),
	)

	return &EntryReceipt{
		SettlementID:      settlementID,
		Nonce:             nonce,
		BridgeAmountGross: gross,
		BridgeAmountNet:   split.Net,
		Fees:              split,
	}, nil
}

// acquireFunds moves SourceAmountIn into the orchestrator's account in its
// tokenized form and returns the native value left to pay the messaging fee.
func (z *Zaap) acquireFunds(st ledger.State, req EntryRequest, value *big.Int) (*big.Int, error) {
	if ledger.IsNative(req.SourceAsset) {
		if value.Cmp(req.SourceAmountIn) < 0 {
			return nil, errors.Wrapf(ErrInsufficientValue, "value %s < source amount %s", value, req.SourceAmountIn)
		}
		if err := ledger.Wrap(st, z.wrappedNative, z.address, req.SourceAmountIn); err != nil {
			return nil, errors.Wrap(err, "failed to wrap native source")
		}
		return new(big.Int).Sub(value, req.SourceAmountIn), nil
	}

	if req.Permit != nil {
		single := req.Permit.Single
		switch {
		case req.Permit.Owner != req.Sender:
			return nil, errors.Wrapf(ErrInvalidPermit, "permit owner %s is not the sender %s", req.Permit.Owner, req.Sender)
		case single.Spender != z.address:
			return nil, errors.Wrapf(ErrInvalidPermit, "permit spender %s", single.Spender)
		case single.Details.Token != req.SourceAsset:
			return nil, errors.Wrapf(ErrInvalidPermit, "permit token %s is not the source asset %s", single.Details.Token, req.SourceAsset)
		}
		if err := z.permit2.Permit(st, req.Permit); err != nil {
			return nil, errors.Wrap(err, "failed to redeem permit")
		}
	}

	if err := z.permit2.TransferFrom(st, z.address, req.Sender, z.address, req.SourceAsset, req.SourceAmountIn); err != nil {
		return nil, errors.Wrap(err, "failed to pull source funds")
	}

	return value, nil
}

package settlement

import (
	"context"
	"math/big"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gjermundgaraba/libzaap/bridge"
	"github.com/gjermundgaraba/libzaap/chains/network"
	"github.com/gjermundgaraba/libzaap/ledger"
	"github.com/gjermundgaraba/libzaap/permit"
	"github.com/gjermundgaraba/libzaap/relayer"
	"github.com/gjermundgaraba/libzaap/route"
	"github.com/gjermundgaraba/libzaap/utils"
	"github.com/gjermundgaraba/libzaap/zaap"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	DefaultDeadline      = 20 * time.Minute
	defaultSettleTimeout = 30 * time.Second
	settlePollInterval   = 50 * time.Millisecond
)

// EnterParams describes one settlement the way a user writes it on the command
// line: symbols (or hex addresses) for assets, a human amount for the source
// and base units inside the legs.
type EnterParams struct {
	FromChainID string `json:"from_chain_id"`
	ToChainID   string `json:"to_chain_id"`
	WalletID    string `json:"wallet_id"`

	SourceAsset string   `json:"source_asset"`
	Amount      string   `json:"amount"`
	SourceLegs  []string `json:"source_legs,omitempty"`

	BridgeAsset string `json:"bridge_asset"`
	// MinBridgeAmount is a human amount of the bridge asset.
	MinBridgeAmount string `json:"min_bridge_amount,omitempty"`

	DestinationAsset string   `json:"destination_asset"`
	DestinationLegs  []string `json:"destination_legs,omitempty"`
	// Recipient is a hex address or the id of a wallet on the destination chain.
	Recipient     string `json:"recipient"`
	RefundAddress string `json:"refund_address,omitempty"`

	PartnerID string        `json:"partner_id,omitempty"`
	Deadline  time.Duration `json:"deadline,omitempty"`
}

// Result is what became of one settlement. Exactly one of Out and Cached is
// set once the settlement has reached the destination chain.
type Result struct {
	Entry  *zaap.EntryReceipt
	Out    *zaap.ZaapedOut
	Cached *bridge.CachedReceipt
}

// Progress is called as the settlement moves along.
type Progress func(status string, percent int)

// BuildEntry turns params into an entry request signed by the wallet.
func BuildEntry(ctx context.Context, n *network.Network, params EnterParams) (zaap.EntryRequest, error) {
	fromChain, err := n.GetChain(params.FromChainID)
	if err != nil {
		return zaap.EntryRequest{}, err
	}
	toChain, err := n.GetChain(params.ToChainID)
	if err != nil {
		return zaap.EntryRequest{}, err
	}
	src, err := n.GetDeployment(params.FromChainID)
	if err != nil {
		return zaap.EntryRequest{}, err
	}
	dst, err := n.GetDeployment(params.ToChainID)
	if err != nil {
		return zaap.EntryRequest{}, err
	}

	wallet, err := fromChain.GetWallet(params.WalletID)
	if err != nil {
		return zaap.EntryRequest{}, errors.Wrapf(err, "failed to get wallet %s", params.WalletID)
	}

	sourceAsset, sourceAmount, err := resolveAmount(src, params.SourceAsset, params.Amount)
	if err != nil {
		return zaap.EntryRequest{}, errors.Wrap(err, "invalid source amount")
	}

	bridgeAsset, err := src.ResolveAsset(params.BridgeAsset)
	if err != nil {
		return zaap.EntryRequest{}, err
	}
	bridgePoolID, err := src.Endpoint.PoolFor(bridgeAsset)
	if err != nil {
		return zaap.EntryRequest{}, errors.Wrapf(err, "no bridge pool for %s on %s", params.BridgeAsset, params.FromChainID)
	}
	destinationBridgeAsset, err := dst.ResolveAsset(params.BridgeAsset)
	if err != nil {
		return zaap.EntryRequest{}, err
	}
	destinationPoolID, err := dst.Endpoint.PoolFor(destinationBridgeAsset)
	if err != nil {
		return zaap.EntryRequest{}, errors.Wrapf(err, "no bridge pool for %s on %s", params.BridgeAsset, params.ToChainID)
	}

	var bridgeAmountMin *big.Int
	if params.MinBridgeAmount != "" {
		if _, bridgeAmountMin, err = resolveAmount(src, params.BridgeAsset, params.MinBridgeAmount); err != nil {
			return zaap.EntryRequest{}, errors.Wrap(err, "invalid min bridge amount")
		}
	}

	destinationAsset, err := dst.ResolveAsset(params.DestinationAsset)
	if err != nil {
		return zaap.EntryRequest{}, err
	}
	recipient, err := resolveAddress(toChain, params.Recipient)
	if err != nil {
		return zaap.EntryRequest{}, errors.Wrap(err, "invalid recipient")
	}
	var refundAddress ethcommon.Address
	if params.RefundAddress != "" {
		if refundAddress, err = resolveAddress(fromChain, params.RefundAddress); err != nil {
			return zaap.EntryRequest{}, errors.Wrap(err, "invalid refund address")
		}
	}

	sourcePlan, err := route.ParsePlan(params.SourceLegs, src.ResolveAsset)
	if err != nil {
		return zaap.EntryRequest{}, errors.Wrap(err, "failed to parse source legs")
	}
	destinationPlan, err := route.ParsePlan(params.DestinationLegs, dst.ResolveAsset)
	if err != nil {
		return zaap.EntryRequest{}, errors.Wrap(err, "failed to parse destination legs")
	}

	deadlineAfter := params.Deadline
	if deadlineAfter <= 0 {
		deadlineAfter = DefaultDeadline
	}
	deadline := uint64(time.Now().Add(deadlineAfter).Unix())

	var partnerID []byte
	if params.PartnerID != "" {
		partnerID = []byte(params.PartnerID)
	}

	req := zaap.EntryRequest{
		Sender:             wallet.Address(),
		SourceAsset:        sourceAsset,
		SourceAmountIn:     sourceAmount,
		SourcePlan:         sourcePlan,
		BridgePoolID:       bridgePoolID,
		BridgeAsset:        bridgeAsset,
		BridgeAmountMin:    bridgeAmountMin,
		DestinationChainID: toChain.GetBridgeChainID(),
		DestinationPoolID:  destinationPoolID,
		RefundAddress:      refundAddress,
		DestinationPlan:    destinationPlan,
		DestinationAsset:   destinationAsset,
		Recipient:          recipient,
		Deadline:           deadline,
		PartnerID:          partnerID,
	}

	payload, err := bridge.EncodePayload(bridge.Payload{
		Plan:             destinationPlan,
		DestinationAsset: destinationAsset,
		Recipient:        recipient,
		PartnerID:        partnerID,
	})
	if err != nil {
		return zaap.EntryRequest{}, errors.Wrap(err, "failed to encode destination instruction")
	}
	messagingFee, err := src.Endpoint.QuoteFee(req.DestinationChainID, payload)
	if err != nil {
		return zaap.EntryRequest{}, errors.Wrap(err, "failed to quote messaging fee")
	}
	req.Value = messagingFee
	if ledger.IsNative(sourceAsset) {
		req.Value = new(big.Int).Add(messagingFee, sourceAmount)
		return req, nil
	}

	allowance, err := n.Allowance(ctx, params.FromChainID, wallet.Address(), sourceAsset)
	if err != nil {
		return zaap.EntryRequest{}, errors.Wrap(err, "failed to read allowance")
	}
	if allowance.Amount.Cmp(sourceAmount) >= 0 && allowance.Expiration >= uint64(time.Now().Unix()) {
		return req, nil
	}

	req.Permit, err = permit.Sign(src.Permit2.ChainID(), src.Permit2.Address(), NewPermit(src, sourceAsset, sourceAmount, allowance.Nonce, deadline), wallet.PrivateKey())
	if err != nil {
		return zaap.EntryRequest{}, err
	}

	return req, nil
}

// NewPermit builds a permit letting the orchestrator pull amount of token once.
func NewPermit(deployment *network.Deployment, token ethcommon.Address, amount *big.Int, nonce uint64, deadline uint64) permit.Single {
	return permit.Single{
		Details: permit.Details{
			Token:      token,
			Amount:     new(big.Int).Set(amount),
			Expiration: deadline,
			Nonce:      nonce,
		},
		Spender:     deployment.Zaap.Address(),
		SigDeadline: new(big.Int).SetUint64(deadline),
	}
}

// Run enters the settlement on the source chain, relays it and waits until
// the destination chain has either delivered or cached it.
func Run(ctx context.Context, logger *zap.Logger, n *network.Network, queue *relayer.Queue, tracker *Tracker, params EnterParams, progress Progress) (*Result, error) {
	if progress == nil {
		progress = func(string, int) {}
	}

	progress("Preparing entry...", 10)
	req, err := BuildEntry(ctx, n, params)
	if err != nil {
		return nil, errors.Wrap(err, "failed to prepare entry")
	}

	fromChain, err := n.GetChain(params.FromChainID)
	if err != nil {
		return nil, err
	}

	logger.Info("Entering",
		zap.String("from_chain", params.FromChainID),
		zap.String("to_chain", params.ToChainID),
		zap.String("wallet_id", params.WalletID),
		zap.Stringer("amount", req.SourceAmountIn),
		zap.String("source_asset", req.SourceAsset.Hex()),
		zap.String("destination_asset", req.DestinationAsset.Hex()),
		zap.Stringer("value", req.Value),
	)
	progress("Zaaping in...", 30)

	entry, err := n.Enter(ctx, params.FromChainID, req)
	if err != nil {
		return nil, err
	}
	result := &Result{Entry: entry}

	logger.Info("Zaaped in", zap.String("settlement_id", entry.SettlementID), zap.Uint64("nonce", entry.Nonce), zap.Stringer("bridge_amount_net", entry.BridgeAmountNet))
	progress("Relaying...", 60)

	if err := queue.Flush(); err != nil {
		return result, errors.Wrap(err, "failed to flush relayer")
	}

	progress("Waiting for settlement...", 80)
	sourceChainID := fromChain.GetBridgeChainID()
	if err := utils.WaitForCondition(ctx, defaultSettleTimeout, settlePollInterval, func() (bool, error) {
		if out, ok := tracker.Get(sourceChainID, entry.Nonce); ok {
			result.Out = &out
			return true, nil
		}
		for _, cached := range n.Transport().Cached() {
			if cached.Request.SourceChainID == sourceChainID && cached.Request.Nonce == entry.Nonce {
				result.Cached = &cached
				return true, nil
			}
		}
		return false, nil
	}); err != nil {
		return result, errors.Wrapf(err, "settlement %s did not reach the destination", entry.SettlementID)
	}

	if result.Cached != nil {
		logger.Warn("Settlement cached on destination", zap.String("settlement_id", entry.SettlementID), zap.String("reason", result.Cached.Reason))
		progress("Settlement cached on destination: "+result.Cached.Reason, 100)
		return result, nil
	}

	logger.Info("Settled",
		zap.String("settlement_id", entry.SettlementID),
		zap.Stringer("outcome", result.Out.Outcome),
		zap.String("delivered_asset", result.Out.DeliveredAsset.Hex()),
		zap.Stringer("delivered_amount", result.Out.DeliveredAmount),
	)
	progress("Settled: "+result.Out.Outcome.String(), 100)

	return result, nil
}

func resolveAmount(deployment *network.Deployment, symbol string, amount string) (ethcommon.Address, *big.Int, error) {
	address, err := deployment.ResolveAsset(symbol)
	if err != nil {
		return ethcommon.Address{}, nil, err
	}
	asset, ok := deployment.Asset(address)
	if !ok {
		return ethcommon.Address{}, nil, errors.Errorf("unknown decimals for asset %s", symbol)
	}
	parsed, err := utils.ParseAmount(amount, asset.Decimals)
	if err != nil {
		return ethcommon.Address{}, nil, err
	}
	return address, parsed, nil
}

func resolveAddress(chain network.Chain, s string) (ethcommon.Address, error) {
	if ethcommon.IsHexAddress(s) {
		return ethcommon.HexToAddress(s), nil
	}
	wallet, err := chain.GetWallet(s)
	if err != nil {
		return ethcommon.Address{}, err
	}
	return wallet.Address(), nil
}

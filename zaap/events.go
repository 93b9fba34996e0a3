package zaap

import (
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gjermundgaraba/libzaap/fees"
	"github.com/gjermundgaraba/libzaap/ledger"
	"github.com/gjermundgaraba/libzaap/route"
	"go.uber.org/zap"
)

const (
	EventZaapedIn          = "ZaapedIn"
	EventZaapedOut         = "ZaapedOut"
	EventZaapErrored       = "ZaapErrored"
	EventFeeTransferFailed = "FeeTransferFailed"
)

// Outcome is the terminal state of a receipt. Every receipt ends in one of
// them; there is no outcome that keeps the bridged funds.
type Outcome uint8

const (
	DeliveredUnswapped Outcome = iota
	DeliveredSwapped
	DeliveredWithErrorFallback
)

func (o Outcome) String() string {
	switch o {
	case DeliveredUnswapped:
		return "delivered_unswapped"
	case DeliveredSwapped:
		return "delivered_swapped"
	case DeliveredWithErrorFallback:
		return "delivered_with_error_fallback"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(o))
	}
}

// FailureKind classifies a contained receipt failure.
type FailureKind string

const (
	FailureRouteMismatch       FailureKind = "route_mismatch"
	FailureInvalidRoute        FailureKind = "invalid_route"
	FailureSwapExecutionFailed FailureKind = "swap_execution_failed"
)

type ZaapedIn struct {
	SettlementID string
	Nonce        uint64

	Sender         ethcommon.Address
	SourceAsset    ethcommon.Address
	SourceAmountIn *big.Int

	BridgePoolID      uint64
	BridgeAsset       ethcommon.Address
	BridgeAmountMin   *big.Int
	BridgeAmountGross *big.Int
	BridgeAmountNet   *big.Int
	TreasuryFee       *big.Int
	PartnerFee        *big.Int

	DestinationChainID uint16
	DestinationPoolID  uint64
	RefundAddress      ethcommon.Address
	Recipient          ethcommon.Address
	DestinationPlan    route.Plan
	DestinationAsset   ethcommon.Address
	PartnerID          []byte
}

type ZaapedOut struct {
	SettlementID  string
	SourceChainID uint16
	SourceAddress ethcommon.Address
	Nonce         uint64

	BridgedAsset    ethcommon.Address
	BridgedAmountIn *big.Int

	DeliveredAsset  ethcommon.Address
	DeliveredAmount *big.Int
	// Remainder is delivered in the bridged asset next to DeliveredAmount.
	Remainder *big.Int

	TreasuryFee *big.Int
	PartnerFee  *big.Int

	Recipient ethcommon.Address
	Outcome   Outcome
}

type ZaapErrored struct {
	SettlementID string
	Kind         FailureKind
	Reason       string
}

type FeeTransferFailed struct {
	SettlementID string
	Direction    fees.Direction
	Asset        ethcommon.Address
	To           ethcommon.Address
	Amount       *big.Int
	Reason       string
}

// LogEvents returns a log subscriber that writes every settlement event to logger.
func LogEvents(logger *zap.Logger) func(logs []ledger.Log) {
	return func(logs []ledger.Log) {
		for _, log := range logs {
			switch event := log.Data.(type) {
			case ZaapedIn:
				logger.Info("Zaaped in",
					zap.String("settlement_id", event.SettlementID),
					zap.Uint64("nonce", event.Nonce),
					zap.String("sender", event.Sender.Hex()),
					zap.String("source_asset", event.SourceAsset.Hex()),
					zap.Stringer("source_amount_in", event.SourceAmountIn),
					zap.String("bridge_asset", event.BridgeAsset.Hex()),
					zap.Stringer("bridge_amount_net", event.BridgeAmountNet),
					zap.Uint16("destination_chain_id", event.DestinationChainID),
					zap.String("recipient", event.Recipient.Hex()),
				)
			case ZaapedOut:
				logger.Info("Zaaped out",
					zap.String("settlement_id", event.SettlementID),
					zap.Uint16("source_chain_id", event.SourceChainID),
					zap.Uint64("nonce", event.Nonce),
					zap.String("bridged_asset", event.BridgedAsset.Hex()),
					zap.Stringer("bridged_amount_in", event.BridgedAmountIn),
					zap.String("delivered_asset", event.DeliveredAsset.Hex()),
					zap.Stringer("delivered_amount", event.DeliveredAmount),
					zap.Stringer("remainder", event.Remainder),
					zap.String("recipient", event.Recipient.Hex()),
					zap.Stringer("outcome", event.Outcome),
				)
			case ZaapErrored:
				logger.Warn("Zaap errored",
					zap.String("settlement_id", event.SettlementID),
					zap.String("kind", string(event.Kind)),
					zap.String("reason", event.Reason),
				)
			case FeeTransferFailed:
				logger.Warn("Fee transfer failed",
					zap.String("settlement_id", event.SettlementID),
					zap.String("direction", string(event.Direction)),
					zap.String("to", event.To.Hex()),
					zap.Stringer("amount", event.Amount),
					zap.String("reason", event.Reason),
				)
			}
		}
	}
}

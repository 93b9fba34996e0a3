package bridge

import (
	"context"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gjermundgaraba/libzaap/ledger"
	"github.com/pkg/errors"
)

const MessageLogName = "Message"

var (
	ErrUnknownChain     = errors.New("unknown bridge chain")
	ErrUnknownPool      = errors.New("unknown bridge pool")
	ErrSlippage         = errors.New("bridge amount below minimum")
	ErrInsufficientFee  = errors.New("insufficient messaging fee")
	ErrAlreadyDelivered = errors.New("message already delivered")
	ErrNotCached        = errors.New("no cached receipt")
)

type SendRequest struct {
	DestinationChainID uint16
	DestinationPoolID  uint64
	SourcePoolID       uint64
	Amount             *big.Int
	MinAmount          *big.Int
	RefundAddress      ethcommon.Address
	// To is the receiving contract on the destination chain.
	To            ethcommon.Address
	AdapterParams []byte
	Payload       []byte
}

// Transport is the source side of the bridge, as seen from a contract on one chain.
type Transport interface {
	Address() ethcommon.Address
	ChainID() uint16
	PoolAsset(poolID uint64) (ethcommon.Address, error)
	QuoteFee(destinationChainID uint16, payload []byte) (*big.Int, error)
	// Send pulls Amount of the source pool asset and fee of the native asset
	// from from, refunding any fee above the quote, and returns the message nonce.
	Send(ctx context.Context, st ledger.State, from ethcommon.Address, req SendRequest, fee *big.Int) (uint64, error)
}

type ReceiveRequest struct {
	SourceChainID uint16
	SourceAddress ethcommon.Address
	Nonce         uint64
	Asset         ethcommon.Address
	Amount        *big.Int
	Payload       []byte
}

// Receiver is implemented by contracts that accept bridged value plus payload.
// The funds have already been credited to the receiver when ReceiveBridged is
// called. Returning an error aborts the receipt; the transport keeps it for retry.
type Receiver interface {
	ReceiveBridged(ctx context.Context, st ledger.State, caller ethcommon.Address, req ReceiveRequest) error
}

// Message is the log a transport records for every send.
type Message struct {
	SourceChainID      uint16
	DestinationChainID uint16
	SourcePoolID       uint64
	DestinationPoolID  uint64
	Nonce              uint64
	From               ethcommon.Address
	To                 ethcommon.Address
	Amount             *big.Int
	Fee                *big.Int
	AdapterParams      []byte
	Payload            []byte
}

// MessagesFromLogs returns the bridge messages among committed logs.
func MessagesFromLogs(logs []ledger.Log) []Message {
	var messages []Message
	for _, log := range logs {
		if log.Name != MessageLogName {
			continue
		}
		if msg, ok := log.Data.(Message); ok {
			messages = append(messages, msg)
		}
	}
	return messages
}

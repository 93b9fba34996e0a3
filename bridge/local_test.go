package bridge_test

import (
	"context"
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gjermundgaraba/libzaap/bridge"
	"github.com/gjermundgaraba/libzaap/chains/local"
	"github.com/gjermundgaraba/libzaap/ledger"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	sourceChainID      uint16 = 110
	destinationChainID uint16 = 101
	poolID             uint64 = 1
)

var (
	usdc           = ethcommon.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	sender         = ethcommon.HexToAddress("0x000000000000000000000000000000000000a0a0")
	refund         = ethcommon.HexToAddress("0x000000000000000000000000000000000000a1a1")
	receiverAddr   = ethcommon.HexToAddress("0x000000000000000000000000000000000000c3c3")
	sourceEndpoint = ethcommon.HexToAddress("0x000000000000000000000000000000000000e5e5")
	destEndpoint   = ethcommon.HexToAddress("0x000000000000000000000000000000000000e6e6")
)

type recordingReceiver struct {
	fail     error
	received []bridge.ReceiveRequest
	callers  []ethcommon.Address
	balances []*big.Int
}

func (r *recordingReceiver) ReceiveBridged(_ context.Context, st ledger.State, caller ethcommon.Address, req bridge.ReceiveRequest) error {
	if r.fail != nil {
		return r.fail
	}
	r.received = append(r.received, req)
	r.callers = append(r.callers, caller)
	r.balances = append(r.balances, st.BalanceOf(req.Asset, receiverAddr))
	return nil
}

type transportEnv struct {
	transport *bridge.LocalTransport
	src, dst  *bridge.Endpoint
	srcChain  *local.Chain
	dstChain  *local.Chain
	messages  []bridge.Message
}

func newTransportEnv(t *testing.T) *transportEnv {
	t.Helper()
	ctx := context.Background()

	env := &transportEnv{
		transport: bridge.NewLocalTransport(zap.NewNop(), bridge.FeeSchedule{Base: big.NewInt(100), PerByte: big.NewInt(1)}),
		srcChain:  local.NewChain(zap.NewNop(), "source", sourceChainID),
		dstChain:  local.NewChain(zap.NewNop(), "destination", destinationChainID),
	}
	env.srcChain.Subscribe(func(logs []ledger.Log) {
		env.messages = append(env.messages, bridge.MessagesFromLogs(logs)...)
	})

	var err error
	env.src, err = env.transport.AddEndpoint(sourceChainID, sourceEndpoint, env.srcChain)
	require.NoError(t, err)
	env.dst, err = env.transport.AddEndpoint(destinationChainID, destEndpoint, env.dstChain)
	require.NoError(t, err)
	env.src.AddPool(poolID, usdc)
	env.dst.AddPool(poolID, usdc)

	require.NoError(t, env.srcChain.Mint(ctx, usdc, sender, big.NewInt(10_000)))
	require.NoError(t, env.srcChain.Mint(ctx, ledger.NativeAsset, sender, big.NewInt(10_000)))
	require.NoError(t, env.dstChain.Mint(ctx, usdc, env.dst.PoolLiquidityAddress(poolID), big.NewInt(1_000_000)))

	return env
}

func (env *transportEnv) send(ctx context.Context, req bridge.SendRequest, fee int64) (uint64, error) {
	var nonce uint64
	err := env.srcChain.Execute(ctx, func(st ledger.State) error {
		var err error
		nonce, err = env.src.Send(ctx, st, sender, req, big.NewInt(fee))
		return err
	})
	return nonce, err
}

func validSend() bridge.SendRequest {
	return bridge.SendRequest{
		DestinationChainID: destinationChainID,
		DestinationPoolID:  poolID,
		SourcePoolID:       poolID,
		Amount:             big.NewInt(1_000),
		MinAmount:          big.NewInt(1_000),
		RefundAddress:      refund,
		To:                 receiverAddr,
		Payload:            []byte{1, 2, 3, 4},
	}
}

func balance(t *testing.T, chain *local.Chain, asset, holder ethcommon.Address) int64 {
	t.Helper()
	b, err := chain.GetBalance(context.Background(), holder, asset)
	require.NoError(t, err)
	return b.Int64()
}

func TestSend(t *testing.T) {
	ctx := context.Background()
	env := newTransportEnv(t)

	quote, err := env.src.QuoteFee(destinationChainID, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	require.Equal(t, int64(104), quote.Int64())

	nonce, err := env.send(ctx, validSend(), 150)
	require.NoError(t, err)
	require.Equal(t, uint64(1), nonce)

	require.Equal(t, int64(9_000), balance(t, env.srcChain, usdc, sender))
	require.Equal(t, int64(1_000), balance(t, env.srcChain, usdc, env.src.PoolLiquidityAddress(poolID)))
	require.Equal(t, int64(10_000-150), balance(t, env.srcChain, ledger.NativeAsset, sender))
	require.Equal(t, int64(104), balance(t, env.srcChain, ledger.NativeAsset, sourceEndpoint))
	require.Equal(t, int64(46), balance(t, env.srcChain, ledger.NativeAsset, refund))

	require.Len(t, env.messages, 1)
	msg := env.messages[0]
	require.Equal(t, sourceChainID, msg.SourceChainID)
	require.Equal(t, destinationChainID, msg.DestinationChainID)
	require.Equal(t, sender, msg.From)
	require.Equal(t, receiverAddr, msg.To)
	require.Equal(t, int64(104), msg.Fee.Int64())
	require.Equal(t, []byte{1, 2, 3, 4}, msg.Payload)

	nonce, err = env.send(ctx, validSend(), 104)
	require.NoError(t, err)
	require.Equal(t, uint64(2), nonce)
}

func TestSendFailures(t *testing.T) {
	tests := []struct {
		name     string
		malleate func(req *bridge.SendRequest)
		fee      int64
		expErr   error
	}{
		{"zero amount", func(req *bridge.SendRequest) { req.Amount = big.NewInt(0) }, 104, nil},
		{"below minimum", func(req *bridge.SendRequest) { req.MinAmount = big.NewInt(1_001) }, 104, bridge.ErrSlippage},
		{"zero destination", func(req *bridge.SendRequest) { req.To = ethcommon.Address{} }, 104, nil},
		{"unknown source pool", func(req *bridge.SendRequest) { req.SourcePoolID = 9 }, 104, bridge.ErrUnknownPool},
		{"unknown destination pool", func(req *bridge.SendRequest) { req.DestinationPoolID = 9 }, 104, bridge.ErrUnknownPool},
		{"unknown destination chain", func(req *bridge.SendRequest) { req.DestinationChainID = 7 }, 104, bridge.ErrUnknownChain},
		{"fee below quote", func(req *bridge.SendRequest) {}, 103, bridge.ErrInsufficientFee},
		{"amount above balance", func(req *bridge.SendRequest) { req.Amount = big.NewInt(20_000) }, 104, ledger.ErrTransferFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			env := newTransportEnv(t)

			req := validSend()
			tt.malleate(&req)
			_, err := env.send(ctx, req, tt.fee)
			require.Error(t, err)
			if tt.expErr != nil {
				require.ErrorIs(t, err, tt.expErr)
			}
			require.Empty(t, env.messages)
			require.Equal(t, int64(10_000), balance(t, env.srcChain, usdc, sender))
			require.Equal(t, int64(10_000), balance(t, env.srcChain, ledger.NativeAsset, sender))

			// a failed send does not consume a nonce
			nonce, err := env.send(ctx, validSend(), 104)
			require.NoError(t, err)
			require.Equal(t, uint64(1), nonce)
		})
	}
}

func TestDeliver(t *testing.T) {
	ctx := context.Background()
	env := newTransportEnv(t)
	receiver := &recordingReceiver{}
	env.dst.RegisterReceiver(receiverAddr, receiver)

	_, err := env.send(ctx, validSend(), 104)
	require.NoError(t, err)
	require.Len(t, env.messages, 1)

	require.NoError(t, env.transport.Deliver(ctx, env.messages[0]))
	require.Equal(t, int64(1_000), balance(t, env.dstChain, usdc, receiverAddr))

	require.Len(t, receiver.received, 1)
	require.Equal(t, destEndpoint, receiver.callers[0])
	// credited before the receiver runs
	require.Equal(t, int64(1_000), receiver.balances[0].Int64())
	req := receiver.received[0]
	require.Equal(t, sourceChainID, req.SourceChainID)
	require.Equal(t, sender, req.SourceAddress)
	require.Equal(t, uint64(1), req.Nonce)
	require.Equal(t, usdc, req.Asset)
	require.Equal(t, int64(1_000), req.Amount.Int64())

	err = env.transport.Deliver(ctx, env.messages[0])
	require.ErrorIs(t, err, bridge.ErrAlreadyDelivered)
	require.Len(t, receiver.received, 1)
}

func TestDeliverWithoutReceiver(t *testing.T) {
	ctx := context.Background()
	env := newTransportEnv(t)

	_, err := env.send(ctx, validSend(), 104)
	require.NoError(t, err)
	require.NoError(t, env.transport.Deliver(ctx, env.messages[0]))
	require.Equal(t, int64(1_000), balance(t, env.dstChain, usdc, receiverAddr))
	require.Empty(t, env.transport.Cached())
}

func TestDeliverCreditFailureCanBeRetried(t *testing.T) {
	ctx := context.Background()
	env := newTransportEnv(t)

	_, err := env.send(ctx, validSend(), 104)
	require.NoError(t, err)

	env.dstChain.Block(receiverAddr)
	require.ErrorIs(t, env.transport.Deliver(ctx, env.messages[0]), ledger.ErrTransferFailed)
	require.Zero(t, balance(t, env.dstChain, usdc, receiverAddr))

	env.dstChain.Unblock(receiverAddr)
	require.NoError(t, env.transport.Deliver(ctx, env.messages[0]))
	require.Equal(t, int64(1_000), balance(t, env.dstChain, usdc, receiverAddr))
}

func TestDeliverCachesAbortedReceipt(t *testing.T) {
	ctx := context.Background()
	env := newTransportEnv(t)
	receiver := &recordingReceiver{fail: errors.New("receiver paused")}
	env.dst.RegisterReceiver(receiverAddr, receiver)

	_, err := env.send(ctx, validSend(), 104)
	require.NoError(t, err)
	require.NoError(t, env.transport.Deliver(ctx, env.messages[0]))

	// the funds stay with the receiver while the receipt waits
	require.Equal(t, int64(1_000), balance(t, env.dstChain, usdc, receiverAddr))
	cached := env.transport.Cached()
	require.Len(t, cached, 1)
	require.Equal(t, receiverAddr, cached[0].Receiver)
	require.Contains(t, cached[0].Reason, "receiver paused")

	err = env.transport.RetryCached(ctx, sourceChainID, destinationChainID, 1)
	require.Error(t, err)
	require.Len(t, env.transport.Cached(), 1)

	receiver.fail = nil
	require.NoError(t, env.transport.RetryCached(ctx, sourceChainID, destinationChainID, 1))
	require.Len(t, receiver.received, 1)
	require.Empty(t, env.transport.Cached())

	err = env.transport.RetryCached(ctx, sourceChainID, destinationChainID, 1)
	require.ErrorIs(t, err, bridge.ErrNotCached)
}

type payingReceiver struct {
	fail    error
	payee   ethcommon.Address
	entered chan struct{}
	release chan struct{}
}

func (r *payingReceiver) ReceiveBridged(_ context.Context, st ledger.State, _ ethcommon.Address, req bridge.ReceiveRequest) error {
	if r.fail != nil {
		return r.fail
	}
	select {
	case r.entered <- struct{}{}:
	default:
	}
	<-r.release
	return st.Transfer(req.Asset, receiverAddr, r.payee, req.Amount)
}

func TestRetryCachedConcurrently(t *testing.T) {
	ctx := context.Background()
	env := newTransportEnv(t)
	payee := ethcommon.HexToAddress("0x000000000000000000000000000000000000d4d4")
	receiver := &payingReceiver{
		fail:    errors.New("receiver paused"),
		payee:   payee,
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	env.dst.RegisterReceiver(receiverAddr, receiver)

	for i := 0; i < 2; i++ {
		_, err := env.send(ctx, validSend(), 104)
		require.NoError(t, err)
	}
	require.Len(t, env.messages, 2)
	for _, msg := range env.messages {
		require.NoError(t, env.transport.Deliver(ctx, msg))
	}
	require.Len(t, env.transport.Cached(), 2)
	require.Equal(t, int64(2_000), balance(t, env.dstChain, usdc, receiverAddr))

	receiver.fail = nil
	firstErr := make(chan error, 1)
	go func() {
		firstErr <- env.transport.RetryCached(ctx, sourceChainID, destinationChainID, 1)
	}()
	<-receiver.entered

	// the first retry is still inside the receiver
	err := env.transport.RetryCached(ctx, sourceChainID, destinationChainID, 1)
	require.ErrorIs(t, err, bridge.ErrNotCached)

	close(receiver.release)
	require.NoError(t, <-firstErr)

	require.Equal(t, int64(1_000), balance(t, env.dstChain, usdc, payee))
	require.Equal(t, int64(1_000), balance(t, env.dstChain, usdc, receiverAddr))
	cached := env.transport.Cached()
	require.Len(t, cached, 1)
	require.Equal(t, uint64(2), cached[0].Request.Nonce)
}

func TestRetryCachedKeepsReceiptWhenReceiverAbortsAgain(t *testing.T) {
	ctx := context.Background()
	env := newTransportEnv(t)
	receiver := &recordingReceiver{fail: errors.New("receiver paused")}
	env.dst.RegisterReceiver(receiverAddr, receiver)

	_, err := env.send(ctx, validSend(), 104)
	require.NoError(t, err)
	require.NoError(t, env.transport.Deliver(ctx, env.messages[0]))

	receiver.fail = errors.New("still paused")
	err = env.transport.RetryCached(ctx, sourceChainID, destinationChainID, 1)
	require.Error(t, err)

	cached := env.transport.Cached()
	require.Len(t, cached, 1)
	require.Contains(t, cached[0].Reason, "still paused")
}

func TestPoolFor(t *testing.T) {
	env := newTransportEnv(t)
	env.src.AddPool(7, usdc)

	poolID, err := env.src.PoolFor(usdc)
	require.NoError(t, err)
	require.Equal(t, uint64(1), poolID)

	_, err = env.src.PoolFor(sender)
	require.ErrorIs(t, err, bridge.ErrUnknownPool)
}

package bridge

import (
	"context"
	"encoding/binary"
	"math/big"
	"sort"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gjermundgaraba/libzaap/ledger"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Executor runs fn as a single transaction on a chain. State changes and logs
// are committed only if fn returns nil.
type Executor interface {
	Execute(ctx context.Context, fn func(st ledger.State) error) error
}

// FeeSchedule prices a message as Base + PerByte * len(payload) in the
// native asset of the source chain.
type FeeSchedule struct {
	Base    *big.Int
	PerByte *big.Int
}

type messageKey struct {
	sourceChainID      uint16
	destinationChainID uint16
	nonce              uint64
}

// CachedReceipt is a delivered message whose receiver aborted. The funds sit
// with the receiver until the receipt is retried.
type CachedReceipt struct {
	DestinationChainID uint16
	Receiver           ethcommon.Address
	Request            ReceiveRequest
	Reason             string
}

// LocalTransport connects endpoints on in-process chains. Sends are recorded
// as Message logs; Deliver moves them to the destination chain.
type LocalTransport struct {
	logger *zap.Logger
	fees   FeeSchedule

	mutex     sync.Mutex
	endpoints map[uint16]*Endpoint
	delivered map[messageKey]bool
	cached    map[messageKey]CachedReceipt
}

func NewLocalTransport(logger *zap.Logger, fees FeeSchedule) *LocalTransport {
	if fees.Base == nil {
		fees.Base = new(big.Int)
	}
	if fees.PerByte == nil {
		fees.PerByte = new(big.Int)
	}

	return &LocalTransport{
		logger:    logger,
		fees:      fees,
		endpoints: make(map[uint16]*Endpoint),
		delivered: make(map[messageKey]bool),
		cached:    make(map[messageKey]CachedReceipt),
	}
}

func (t *LocalTransport) AddEndpoint(chainID uint16, address ethcommon.Address, chain Executor) (*Endpoint, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if _, ok := t.endpoints[chainID]; ok {
		return nil, errors.Errorf("endpoint for chain %d already exists", chainID)
	}

	endpoint := &Endpoint{
		transport: t,
		chainID:   chainID,
		address:   address,
		chain:     chain,
		pools:     make(map[uint64]ethcommon.Address),
		receivers: make(map[ethcommon.Address]Receiver),
	}
	t.endpoints[chainID] = endpoint

	return endpoint, nil
}

func (t *LocalTransport) Endpoint(chainID uint16) (*Endpoint, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	endpoint, ok := t.endpoints[chainID]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownChain, "chain %d", chainID)
	}
	return endpoint, nil
}

// Deliver credits the message amount to its destination and then invokes the
// receiver, each in its own transaction. A receiver that aborts leaves the
// receipt cached for RetryCached. A message is delivered at most once.
func (t *LocalTransport) Deliver(ctx context.Context, msg Message) error {
	key := messageKey{sourceChainID: msg.SourceChainID, destinationChainID: msg.DestinationChainID, nonce: msg.Nonce}

	t.mutex.Lock()
	if t.delivered[key] {
		t.mutex.Unlock()
		return errors.Wrapf(ErrAlreadyDelivered, "nonce %d from chain %d", msg.Nonce, msg.SourceChainID)
	}
	t.delivered[key] = true
	t.mutex.Unlock()

	dst, err := t.Endpoint(msg.DestinationChainID)
	if err != nil {
		t.undeliver(key)
		return err
	}
	asset, err := dst.PoolAsset(msg.DestinationPoolID)
	if err != nil {
		t.undeliver(key)
		return err
	}

	if err := dst.chain.Execute(ctx, func(st ledger.State) error {
		return st.Transfer(asset, dst.PoolLiquidityAddress(msg.DestinationPoolID), msg.To, msg.Amount)
	}); err != nil {
		t.undeliver(key)
		return errors.Wrapf(err, "failed to credit %s on chain %d", msg.To, msg.DestinationChainID)
	}

	t.logger.Info("Delivered bridge message",
		zap.Uint16("source_chain_id", msg.SourceChainID),
		zap.Uint16("destination_chain_id", msg.DestinationChainID),
		zap.Uint64("nonce", msg.Nonce),
		zap.String("to", msg.To.Hex()),
		zap.String("asset", asset.Hex()),
		zap.Stringer("amount", msg.Amount),
	)

	receiver, ok := dst.receiver(msg.To)
	if !ok {
		return nil
	}

	req := ReceiveRequest{
		SourceChainID: msg.SourceChainID,
		SourceAddress: msg.From,
		Nonce:         msg.Nonce,
		Asset:         asset,
		Amount:        new(big.Int).Set(msg.Amount),
		Payload:       msg.Payload,
	}
	if err := t.receive(ctx, dst, receiver, req); err != nil {
		t.mutex.Lock()
		t.cached[key] = CachedReceipt{
			DestinationChainID: msg.DestinationChainID,
			Receiver:           msg.To,
			Request:            req,
			Reason:             err.Error(),
		}
		t.mutex.Unlock()

		t.logger.Warn("Receipt aborted, cached for retry",
			zap.Uint16("source_chain_id", msg.SourceChainID),
			zap.Uint16("destination_chain_id", msg.DestinationChainID),
			zap.Uint64("nonce", msg.Nonce),
			zap.Error(err),
		)
	}

	return nil
}

// RetryCached invokes the receiver of a cached receipt again. The receipt is
// taken out of the cache while it is retried and put back if the receiver
// aborts again, so concurrent retries of the same receipt deliver at most once.
func (t *LocalTransport) RetryCached(ctx context.Context, sourceChainID, destinationChainID uint16, nonce uint64) error {
	key := messageKey{sourceChainID: sourceChainID, destinationChainID: destinationChainID, nonce: nonce}

	t.mutex.Lock()
	cached, ok := t.cached[key]
	delete(t.cached, key)
	t.mutex.Unlock()
	if !ok {
		return errors.Wrapf(ErrNotCached, "nonce %d from chain %d to chain %d", nonce, sourceChainID, destinationChainID)
	}

	dst, err := t.Endpoint(destinationChainID)
	if err != nil {
		t.recache(key, cached)
		return err
	}
	receiver, ok := dst.receiver(cached.Receiver)
	if !ok {
		t.recache(key, cached)
		return errors.Errorf("receiver %s is no longer registered", cached.Receiver)
	}

	if err := t.receive(ctx, dst, receiver, cached.Request); err != nil {
		cached.Reason = err.Error()
		t.recache(key, cached)
		return errors.Wrap(err, "failed to retry cached receipt")
	}

	return nil
}

func (t *LocalTransport) recache(key messageKey, cached CachedReceipt) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.cached[key] = cached
}

// Cached lists the receipts waiting for a retry, ordered by source chain and nonce.
func (t *LocalTransport) Cached() []CachedReceipt {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	receipts := make([]CachedReceipt, 0, len(t.cached))
	for _, receipt := range t.cached {
		receipts = append(receipts, receipt)
	}
	sort.Slice(receipts, func(i, j int) bool {
		if receipts[i].Request.SourceChainID != receipts[j].Request.SourceChainID {
			return receipts[i].Request.SourceChainID < receipts[j].Request.SourceChainID
		}
		return receipts[i].Request.Nonce < receipts[j].Request.Nonce
	})

	return receipts
}

func (t *LocalTransport) receive(ctx context.Context, dst *Endpoint, receiver Receiver, req ReceiveRequest) error {
	return dst.chain.Execute(ctx, func(st ledger.State) error {
		return receiver.ReceiveBridged(ctx, st, dst.address, req)
	})
}

func (t *LocalTransport) undeliver(key messageKey) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	delete(t.delivered, key)
}

var _ Transport = &Endpoint{}

// Endpoint is the transport as deployed on one chain.
type Endpoint struct {
	transport *LocalTransport
	chainID   uint16
	address   ethcommon.Address
	chain     Executor

	mutex     sync.RWMutex
	pools     map[uint64]ethcommon.Address
	receivers map[ethcommon.Address]Receiver
}

// Address implements Transport.
func (e *Endpoint) Address() ethcommon.Address {
	return e.address
}

// ChainID implements Transport.
func (e *Endpoint) ChainID() uint16 {
	return e.chainID
}

func (e *Endpoint) AddPool(poolID uint64, asset ethcommon.Address) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.pools[poolID] = asset
}

// PoolAsset implements Transport.
func (e *Endpoint) PoolAsset(poolID uint64) (ethcommon.Address, error) {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	asset, ok := e.pools[poolID]
	if !ok {
		return ethcommon.Address{}, errors.Wrapf(ErrUnknownPool, "pool %d on chain %d", poolID, e.chainID)
	}
	return asset, nil
}

// PoolFor returns the lowest pool id carrying asset.
func (e *Endpoint) PoolFor(asset ethcommon.Address) (uint64, error) {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	var (
		poolID uint64
		found  bool
	)
	for id, poolAsset := range e.pools {
		if poolAsset == asset && (!found || id < poolID) {
			poolID, found = id, true
		}
	}
	if !found {
		return 0, errors.Wrapf(ErrUnknownPool, "no pool for %s on chain %d", asset, e.chainID)
	}
	return poolID, nil
}

// PoolLiquidityAddress is the holder of a pool's liquidity on this chain.
func (e *Endpoint) PoolLiquidityAddress(poolID uint64) ethcommon.Address {
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], poolID)
	return ethcommon.BytesToAddress(crypto.Keccak256(e.address.Bytes(), id[:])[12:])
}

func (e *Endpoint) RegisterReceiver(address ethcommon.Address, receiver Receiver) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.receivers[address] = receiver
}

func (e *Endpoint) receiver(address ethcommon.Address) (Receiver, bool) {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	receiver, ok := e.receivers[address]
	return receiver, ok
}

// QuoteFee implements Transport.
func (e *Endpoint) QuoteFee(destinationChainID uint16, payload []byte) (*big.Int, error) {
	if _, err := e.transport.Endpoint(destinationChainID); err != nil {
		return nil, err
	}

	fee := new(big.Int).Mul(e.transport.fees.PerByte, big.NewInt(int64(len(payload))))
	return fee.Add(fee, e.transport.fees.Base), nil
}

// Send implements Transport.
func (e *Endpoint) Send(_ context.Context, st ledger.State, from ethcommon.Address, req SendRequest, fee *big.Int) (uint64, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return 0, errors.Errorf("invalid bridge amount %v", req.Amount)
	}
	if req.MinAmount != nil && req.Amount.Cmp(req.MinAmount) < 0 {
		return 0, errors.Wrapf(ErrSlippage, "%s < %s", req.Amount, req.MinAmount)
	}
	if req.To == (ethcommon.Address{}) {
		return 0, errors.New("bridge destination must not be the zero address")
	}

	asset, err := e.PoolAsset(req.SourcePoolID)
	if err != nil {
		return 0, err
	}
	dst, err := e.transport.Endpoint(req.DestinationChainID)
	if err != nil {
		return 0, err
	}
	if _, err := dst.PoolAsset(req.DestinationPoolID); err != nil {
		return 0, err
	}

	quote, err := e.QuoteFee(req.DestinationChainID, req.Payload)
	if err != nil {
		return 0, err
	}
	if fee == nil {
		fee = new(big.Int)
	}
	if fee.Cmp(quote) < 0 {
		return 0, errors.Wrapf(ErrInsufficientFee, "%s < %s", fee, quote)
	}

	if err := st.Transfer(asset, from, e.PoolLiquidityAddress(req.SourcePoolID), req.Amount); err != nil {
		return 0, errors.Wrap(err, "failed to transfer bridge amount to pool")
	}
	if err := st.Transfer(ledger.NativeAsset, from, e.address, quote); err != nil {
		return 0, errors.Wrap(err, "failed to pay messaging fee")
	}
	if excess := new(big.Int).Sub(fee, quote); excess.Sign() > 0 {
		refundAddress := req.RefundAddress
		if refundAddress == (ethcommon.Address{}) {
			refundAddress = from
		}
		if err := st.Transfer(ledger.NativeAsset, from, refundAddress, excess); err != nil {
			return 0, errors.Wrap(err, "failed to refund messaging fee")
		}
	}

	nonce := e.nextNonce(st, req.DestinationChainID)
	st.AddLog(ledger.Log{
		Address: e.address,
		Name:    MessageLogName,
		Data: Message{
			SourceChainID:      e.chainID,
			DestinationChainID: req.DestinationChainID,
			SourcePoolID:       req.SourcePoolID,
			DestinationPoolID:  req.DestinationPoolID,
			Nonce:              nonce,
			From:               from,
			To:                 req.To,
			Amount:             new(big.Int).Set(req.Amount),
			Fee:                quote,
			AdapterParams:      req.AdapterParams,
			Payload:            req.Payload,
		},
	})

	return nonce, nil
}

// nextNonce keeps the outbound nonce per destination in endpoint storage so a
// reverted send does not consume one.
func (e *Endpoint) nextNonce(st ledger.State, destinationChainID uint16) uint64 {
	var dst [2]byte
	binary.BigEndian.PutUint16(dst[:], destinationChainID)
	key := crypto.Keccak256Hash([]byte("outbound-nonce"), dst[:])

	nonce := st.GetState(e.address, key).Big().Uint64() + 1
	st.SetState(e.address, key, ethcommon.BigToHash(new(big.Int).SetUint64(nonce)))

	return nonce
}

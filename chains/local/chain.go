package local

import (
	"context"
	"math/big"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gjermundgaraba/libzaap/chains/network"
	"github.com/gjermundgaraba/libzaap/ledger"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var _ network.Chain = &Chain{}

// Chain is an in-process chain. Transactions run one at a time against a
// single ledger and their logs are published to subscribers after commit.
type Chain struct {
	logger        *zap.Logger
	chainID       string
	bridgeChainID uint16

	txMutex sync.Mutex
	ledger  *ledger.Ledger
	clock   func() time.Time
	txCount uint64

	walletsMutex sync.RWMutex
	wallets      map[string]*Wallet

	subscribersMutex sync.RWMutex
	subscribers      []func(logs []ledger.Log)
}

func NewChain(logger *zap.Logger, chainID string, bridgeChainID uint16) *Chain {
	return &Chain{
		logger:        logger,
		chainID:       chainID,
		bridgeChainID: bridgeChainID,
		ledger:        ledger.NewLedger(),
		clock:         time.Now,
		wallets:       make(map[string]*Wallet),
	}
}

// GetChainID implements network.Chain.
func (c *Chain) GetChainID() string {
	return c.chainID
}

// GetBridgeChainID implements network.Chain.
func (c *Chain) GetBridgeChainID() uint16 {
	return c.bridgeChainID
}

// SetClock replaces the source of block timestamps.
func (c *Chain) SetClock(clock func() time.Time) {
	c.txMutex.Lock()
	defer c.txMutex.Unlock()
	c.clock = clock
}

// Execute implements network.Chain.
func (c *Chain) Execute(ctx context.Context, fn func(st ledger.State) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	logs, txCount, err := c.commit(fn)
	if err != nil {
		return err
	}

	c.logger.Debug("Committed transaction", zap.String("chain_id", c.chainID), zap.Uint64("tx", txCount), zap.Int("logs", len(logs)))
	c.publish(logs)

	return nil
}

// commit runs fn against the ledger under the transaction lock. Anything short
// of a nil return, a panic included, reverts fn's changes.
func (c *Chain) commit(fn func(st ledger.State) error) (logs []ledger.Log, txCount uint64, err error) {
	c.txMutex.Lock()
	defer c.txMutex.Unlock()

	c.ledger.SetTimestamp(uint64(c.clock().Unix()))
	snapshot := c.ledger.Snapshot()
	committed := false
	defer func() {
		if !committed {
			c.ledger.RevertToSnapshot(snapshot)
			c.ledger.Finalise()
		}
	}()

	if err := fn(c.ledger); err != nil {
		return nil, 0, err
	}
	committed = true

	c.txCount++
	return c.ledger.Finalise(), c.txCount, nil
}

// Subscribe implements network.Chain.
func (c *Chain) Subscribe(fn func(logs []ledger.Log)) {
	c.subscribersMutex.Lock()
	defer c.subscribersMutex.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

// GetBalance implements network.Chain.
func (c *Chain) GetBalance(ctx context.Context, holder ethcommon.Address, asset ethcommon.Address) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.txMutex.Lock()
	defer c.txMutex.Unlock()
	return c.ledger.BalanceOf(asset, holder), nil
}

// Mint implements network.Chain.
func (c *Chain) Mint(ctx context.Context, asset ethcommon.Address, to ethcommon.Address, amount *big.Int) error {
	return c.Execute(ctx, func(st ledger.State) error {
		if err := st.Mint(asset, to, amount); err != nil {
			return errors.Wrapf(err, "failed to mint %s to %s", asset, to)
		}
		return nil
	})
}

// Block makes every transfer from or to holder fail, the way a token blocklist does.
func (c *Chain) Block(holder ethcommon.Address) {
	c.txMutex.Lock()
	defer c.txMutex.Unlock()
	c.ledger.Block(holder)
}

func (c *Chain) Unblock(holder ethcommon.Address) {
	c.txMutex.Lock()
	defer c.txMutex.Unlock()
	c.ledger.Unblock(holder)
}

func (c *Chain) publish(logs []ledger.Log) {
	if len(logs) == 0 {
		return
	}

	c.subscribersMutex.RLock()
	subscribers := make([]func(logs []ledger.Log), len(c.subscribers))
	copy(subscribers, c.subscribers)
	c.subscribersMutex.RUnlock()

	for _, subscriber := range subscribers {
		subscriber(logs)
	}
}

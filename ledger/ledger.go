package ledger

import (
	"fmt"
	"math/big"
	"sort"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

var ErrTransferFailed = errors.New("transfer failed")

var _ State = &Ledger{}

type revision struct {
	id           int
	journalIndex int
}

// Ledger holds balances, contract storage and pending logs for a single chain.
// It is not safe for concurrent use.
type Ledger struct {
	balances map[ethcommon.Address]map[ethcommon.Address]*big.Int
	storage  map[ethcommon.Address]map[ethcommon.Hash]ethcommon.Hash
	blocked  map[ethcommon.Address]bool

	logs      []Log
	timestamp uint64

	journal        *journal
	validRevisions []revision
	nextRevisionID int
}

func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[ethcommon.Address]map[ethcommon.Address]*big.Int),
		storage:  make(map[ethcommon.Address]map[ethcommon.Hash]ethcommon.Hash),
		blocked:  make(map[ethcommon.Address]bool),
		journal:  &journal{},
	}
}

// BalanceOf implements State.
func (l *Ledger) BalanceOf(asset ethcommon.Address, holder ethcommon.Address) *big.Int {
	return new(big.Int).Set(l.balance(asset, holder))
}

// Transfer implements State.
func (l *Ledger) Transfer(asset ethcommon.Address, from ethcommon.Address, to ethcommon.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errors.Wrapf(ErrTransferFailed, "invalid amount %v", amount)
	}
	if to == (ethcommon.Address{}) {
		return errors.Wrap(ErrTransferFailed, "transfer to the zero address")
	}
	if l.blocked[from] {
		return errors.Wrapf(ErrTransferFailed, "sender %s is blocked", from)
	}
	if l.blocked[to] {
		return errors.Wrapf(ErrTransferFailed, "recipient %s is blocked", to)
	}

	fromBalance := l.balance(asset, from)
	if fromBalance.Cmp(amount) < 0 {
		return errors.Wrapf(ErrTransferFailed, "insufficient balance of %s for %s: %s < %s", asset, from, fromBalance, amount)
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}

	l.changeBalance(asset, from, new(big.Int).Sub(fromBalance, amount))
	l.changeBalance(asset, to, new(big.Int).Add(l.balance(asset, to), amount))

	return nil
}

// Mint implements State.
func (l *Ledger) Mint(asset ethcommon.Address, to ethcommon.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errors.Errorf("invalid mint amount %v", amount)
	}
	if to == (ethcommon.Address{}) {
		return errors.New("mint to the zero address")
	}

	l.changeBalance(asset, to, new(big.Int).Add(l.balance(asset, to), amount))
	return nil
}

// Burn implements State.
func (l *Ledger) Burn(asset ethcommon.Address, from ethcommon.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errors.Errorf("invalid burn amount %v", amount)
	}

	balance := l.balance(asset, from)
	if balance.Cmp(amount) < 0 {
		return errors.Errorf("burn amount exceeds balance of %s: %s < %s", from, balance, amount)
	}

	l.changeBalance(asset, from, new(big.Int).Sub(balance, amount))
	return nil
}

// GetState implements State.
func (l *Ledger) GetState(contract ethcommon.Address, key ethcommon.Hash) ethcommon.Hash {
	return l.storage[contract][key]
}

// SetState implements State.
func (l *Ledger) SetState(contract ethcommon.Address, key ethcommon.Hash, value ethcommon.Hash) {
	l.journal.append(storageChange{contract: contract, key: key, prev: l.GetState(contract, key)})
	l.setStorage(contract, key, value)
}

// AddLog implements State.
func (l *Ledger) AddLog(log Log) {
	l.journal.append(addLogChange{})
	l.logs = append(l.logs, log)
}

// Timestamp implements State.
func (l *Ledger) Timestamp() uint64 {
	return l.timestamp
}

func (l *Ledger) SetTimestamp(timestamp uint64) {
	l.timestamp = timestamp
}

// Snapshot implements State.
func (l *Ledger) Snapshot() int {
	id := l.nextRevisionID
	l.nextRevisionID++
	l.validRevisions = append(l.validRevisions, revision{id, l.journal.length()})
	return id
}

// RevertToSnapshot implements State.
func (l *Ledger) RevertToSnapshot(revid int) {
	idx := sort.Search(len(l.validRevisions), func(i int) bool {
		return l.validRevisions[i].id >= revid
	})
	if idx == len(l.validRevisions) || l.validRevisions[idx].id != revid {
		panic(fmt.Errorf("revision id %v cannot be reverted", revid))
	}
	snapshot := l.validRevisions[idx].journalIndex

	l.journal.revert(l, snapshot)
	l.validRevisions = l.validRevisions[:idx]
}

// Finalise drops the journal and returns the logs emitted since the last call.
// Snapshots taken before Finalise can no longer be reverted.
func (l *Ledger) Finalise() []Log {
	logs := l.logs
	l.logs = nil
	l.journal = &journal{}
	l.validRevisions = l.validRevisions[:0]
	return logs
}

// Block makes every transfer from or to the holder fail.
func (l *Ledger) Block(holder ethcommon.Address) {
	l.blocked[holder] = true
}

func (l *Ledger) Unblock(holder ethcommon.Address) {
	delete(l.blocked, holder)
}

func (l *Ledger) balance(asset ethcommon.Address, holder ethcommon.Address) *big.Int {
	balance, ok := l.balances[asset][holder]
	if !ok {
		return new(big.Int)
	}
	return balance
}

func (l *Ledger) changeBalance(asset ethcommon.Address, holder ethcommon.Address, amount *big.Int) {
	l.journal.append(balanceChange{asset: asset, holder: holder, prev: new(big.Int).Set(l.balance(asset, holder))})
	l.setBalance(asset, holder, amount)
}

func (l *Ledger) setBalance(asset ethcommon.Address, holder ethcommon.Address, amount *big.Int) {
	holders, ok := l.balances[asset]
	if !ok {
		holders = make(map[ethcommon.Address]*big.Int)
		l.balances[asset] = holders
	}
	holders[holder] = amount
}

func (l *Ledger) setStorage(contract ethcommon.Address, key ethcommon.Hash, value ethcommon.Hash) {
	slots, ok := l.storage[contract]
	if !ok {
		slots = make(map[ethcommon.Hash]ethcommon.Hash)
		l.storage[contract] = slots
	}
	slots[key] = value
}

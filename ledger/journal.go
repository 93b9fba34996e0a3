package ledger

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

type journalEntry interface {
	revert(l *Ledger)
}

type journal struct {
	entries []journalEntry
}

func (j *journal) append(entry journalEntry) {
	j.entries = append(j.entries, entry)
}

func (j *journal) length() int {
	return len(j.entries)
}

func (j *journal) revert(l *Ledger, snapshot int) {
	for i := len(j.entries) - 1; i >= snapshot; i-- {
		j.entries[i].revert(l)
	}
	j.entries = j.entries[:snapshot]
}

type (
	balanceChange struct {
		asset  ethcommon.Address
		holder ethcommon.Address
		prev   *big.Int
	}
	storageChange struct {
		contract ethcommon.Address
		key      ethcommon.Hash
		prev     ethcommon.Hash
	}
	addLogChange struct{}
)

func (ch balanceChange) revert(l *Ledger) {
	l.setBalance(ch.asset, ch.holder, ch.prev)
}

func (ch storageChange) revert(l *Ledger) {
	l.setStorage(ch.contract, ch.key, ch.prev)
}

func (ch addLogChange) revert(l *Ledger) {
	l.logs = l.logs[:len(l.logs)-1]
}

package settlement

import (
	"sync"

	"github.com/gjermundgaraba/libzaap/chains/network"
	"github.com/gjermundgaraba/libzaap/ledger"
	"github.com/gjermundgaraba/libzaap/zaap"
)

type settlementKey struct {
	sourceChainID uint16
	nonce         uint64
}

// Tracker remembers every ZaapedOut committed on the network.
type Tracker struct {
	mutex sync.RWMutex
	outs  map[settlementKey]zaap.ZaapedOut
}

func NewTracker(n *network.Network) *Tracker {
	t := &Tracker{outs: make(map[settlementKey]zaap.ZaapedOut)}
	n.Subscribe(t.HandleLogs)
	return t
}

func (t *Tracker) HandleLogs(logs []ledger.Log) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	for _, log := range logs {
		if out, ok := log.Data.(zaap.ZaapedOut); ok {
			t.outs[settlementKey{sourceChainID: out.SourceChainID, nonce: out.Nonce}] = out
		}
	}
}

func (t *Tracker) Get(sourceChainID uint16, nonce uint64) (zaap.ZaapedOut, bool) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	out, ok := t.outs[settlementKey{sourceChainID: sourceChainID, nonce: nonce}]
	return out, ok
}

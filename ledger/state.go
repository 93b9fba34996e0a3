package ledger

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// NativeAsset is the sentinel used for a chain's native (gas) asset.
var NativeAsset = ethcommon.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// State is the execution context every value-moving component operates on.
type State interface {
	BalanceOf(asset ethcommon.Address, holder ethcommon.Address) *big.Int
	Transfer(asset ethcommon.Address, from ethcommon.Address, to ethcommon.Address, amount *big.Int) error
	Mint(asset ethcommon.Address, to ethcommon.Address, amount *big.Int) error
	Burn(asset ethcommon.Address, from ethcommon.Address, amount *big.Int) error

	GetState(contract ethcommon.Address, key ethcommon.Hash) ethcommon.Hash
	SetState(contract ethcommon.Address, key ethcommon.Hash, value ethcommon.Hash)

	AddLog(log Log)
	Timestamp() uint64

	Snapshot() int
	RevertToSnapshot(revid int)
}

// Log is an event emitted by a contract during a transaction. Logs are only
// published once the transaction that emitted them commits.
type Log struct {
	Address ethcommon.Address
	Name    string
	Data    any
}

func IsNative(asset ethcommon.Address) bool {
	return asset == NativeAsset
}

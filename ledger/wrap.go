package ledger

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Wrap moves native value from holder into the wrapped-native contract and
// mints the same amount of the wrapped asset to holder.
func Wrap(st State, wrapped ethcommon.Address, holder ethcommon.Address, amount *big.Int) error {
	if err := st.Transfer(NativeAsset, holder, wrapped, amount); err != nil {
		return errors.Wrap(err, "failed to deposit native asset")
	}
	if err := st.Mint(wrapped, holder, amount); err != nil {
		return errors.Wrap(err, "failed to mint wrapped native asset")
	}

	return nil
}

// Unwrap burns wrapped native from holder and releases the native value to it.
func Unwrap(st State, wrapped ethcommon.Address, holder ethcommon.Address, amount *big.Int) error {
	if err := st.Burn(wrapped, holder, amount); err != nil {
		return errors.Wrap(err, "failed to burn wrapped native asset")
	}
	if err := st.Transfer(NativeAsset, wrapped, holder, amount); err != nil {
		return errors.Wrap(err, "failed to withdraw native asset")
	}

	return nil
}

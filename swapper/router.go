package swapper

import (
	"context"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gjermundgaraba/libzaap/ledger"
)

// Router is the external liquidity router. Both calls pull AmountIn from the
// payer and pay the output to the recipient, or fail as a unit when the output
// would be below the minimum or the route is unavailable.
type Router interface {
	// SwapExactTokensForTokens routes through constant product pools along path.
	SwapExactTokensForTokens(ctx context.Context, st ledger.State, payer ethcommon.Address, amountIn *big.Int, amountOutMin *big.Int, path []ethcommon.Address, to ethcommon.Address) (*big.Int, error)
	// ExactInput routes through fee tiered pools along a packed path.
	ExactInput(ctx context.Context, st ledger.State, params ExactInputParams) (*big.Int, error)
}

type ExactInputParams struct {
	Path             []byte
	Payer            ethcommon.Address
	Recipient        ethcommon.Address
	AmountIn         *big.Int
	AmountOutMinimum *big.Int
}

package dex

import (
	"bytes"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

const (
	// LegacyPoolFee is the fee tier key used for constant product pools.
	LegacyPoolFee uint32 = 0
	// legacyFeePips is the 0.3% fee charged by constant product pools.
	legacyFeePips uint32 = 3000

	pipsDenominator = 1_000_000
)

var (
	ErrPoolNotFound           = errors.New("pool not found")
	ErrInsufficientLiquidity  = errors.New("insufficient liquidity")
	ErrInsufficientOutput     = errors.New("insufficient output amount")
	ErrInvalidPath            = errors.New("invalid path")
	ErrIdenticalAssets        = errors.New("identical assets")
	ErrUnsupportedFeeTier     = errors.New("unsupported fee tier")
	supportedConcentratedFees = map[uint32]bool{100: true, 500: true, 3000: true, 10000: true}
)

// PoolKey identifies a pool by its sorted asset pair and fee tier.
type PoolKey struct {
	Asset0 ethcommon.Address
	Asset1 ethcommon.Address
	Fee    uint32
}

func NewPoolKey(assetA ethcommon.Address, assetB ethcommon.Address, fee uint32) (PoolKey, error) {
	if assetA == assetB {
		return PoolKey{}, errors.Wrapf(ErrIdenticalAssets, "%s", assetA)
	}
	if fee != LegacyPoolFee && !supportedConcentratedFees[fee] {
		return PoolKey{}, errors.Wrapf(ErrUnsupportedFeeTier, "%d", fee)
	}
	if bytes.Compare(assetA.Bytes(), assetB.Bytes()) > 0 {
		assetA, assetB = assetB, assetA
	}
	return PoolKey{Asset0: assetA, Asset1: assetB, Fee: fee}, nil
}

// Address is the deterministic account that holds the pool reserves.
func (k PoolKey) Address() ethcommon.Address {
	fee := []byte{byte(k.Fee >> 16), byte(k.Fee >> 8), byte(k.Fee)}
	return ethcommon.BytesToAddress(crypto.Keccak256(k.Asset0.Bytes(), k.Asset1.Bytes(), fee)[12:])
}

func (k PoolKey) feePips() uint32 {
	if k.Fee == LegacyPoolFee {
		return legacyFeePips
	}
	return k.Fee
}

// getAmountOut applies the pool fee to amountIn and prices it against the
// constant product of the reserves, rounding down.
func getAmountOut(amountIn *big.Int, reserveIn *big.Int, reserveOut *big.Int, feePips uint32) (*big.Int, error) {
	if amountIn.Sign() <= 0 {
		return nil, errors.New("insufficient input amount")
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}

	amountInWithFee := new(big.Int).Mul(amountIn, big.NewInt(int64(pipsDenominator-feePips)))
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, big.NewInt(pipsDenominator))
	denominator.Add(denominator, amountInWithFee)

	return numerator.Div(numerator, denominator), nil
}

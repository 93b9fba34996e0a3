package utils

import (
	"math/big"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ParseAmount converts a human amount such as "12.5" into base units of an
// asset with the given decimals. Amounts finer than one base unit are rejected.
func ParseAmount(s string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid amount %q", s)
	}
	if d.IsNegative() {
		return nil, errors.Errorf("amount must not be negative: %s", s)
	}

	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, errors.Errorf("amount %s has more than %d decimals", s, decimals)
	}

	return scaled.BigInt(), nil
}

// FormatAmount renders base units as a human amount without trailing zeros.
func FormatAmount(amount *big.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -decimals).String()
}

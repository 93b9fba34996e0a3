package route

import (
	"math/big"
	"strconv"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// AssetResolver maps an asset symbol (or hex address) to its address.
type AssetResolver func(symbol string) (ethcommon.Address, error)

// ParseLeg parses a leg written as kind:amountIn:amountOutMin:hops, where kind
// is v2 or v3 and hops is a comma separated list of ASSET or ASSET/FEE, e.g.
// "v3:1000000:990000:WETH,USDC/500".
func ParseLeg(s string, resolve AssetResolver) (Leg, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 {
		return Leg{}, errors.Errorf("invalid leg %q: expected kind:amountIn:amountOutMin:hops", s)
	}

	var kind RouterKind
	switch strings.ToLower(parts[0]) {
	case "v2", "0":
		kind = LegacyConstantProduct
	case "v3", "1":
		kind = FeeTieredConcentrated
	default:
		return Leg{}, errors.Wrapf(ErrUnsupportedRouter, "router kind %q", parts[0])
	}

	amountIn, ok := new(big.Int).SetString(parts[1], 10)
	if !ok {
		return Leg{}, errors.Errorf("failed to parse amountIn %s", parts[1])
	}
	amountOutMin, ok := new(big.Int).SetString(parts[2], 10)
	if !ok {
		return Leg{}, errors.Errorf("failed to parse amountOutMin %s", parts[2])
	}

	var hops []Hop
	for _, hopStr := range strings.Split(parts[3], ",") {
		symbol, feeStr, hasFee := strings.Cut(strings.TrimSpace(hopStr), "/")
		asset, err := resolve(symbol)
		if err != nil {
			return Leg{}, errors.Wrapf(err, "failed to resolve asset %s", symbol)
		}

		hop := Hop{Asset: asset}
		if hasFee {
			fee, err := strconv.ParseUint(feeStr, 10, 24)
			if err != nil {
				return Leg{}, errors.Wrapf(err, "failed to parse pool fee %s", feeStr)
			}
			hop.PoolFee = uint32(fee)
		}
		hops = append(hops, hop)
	}

	return Leg{
		Kind:         kind,
		Hops:         hops,
		AmountIn:     amountIn,
		AmountOutMin: amountOutMin,
	}, nil
}

func ParsePlan(legs []string, resolve AssetResolver) (Plan, error) {
	plan := make(Plan, 0, len(legs))
	for _, s := range legs {
		leg, err := ParseLeg(s, resolve)
		if err != nil {
			return nil, err
		}
		plan = append(plan, leg)
	}
	return plan, nil
}

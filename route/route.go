package route

import (
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// RouterKind selects the router family a leg is executed against.
type RouterKind uint8

const (
	// LegacyConstantProduct routes through constant product pools. Hop fee tiers are ignored.
	LegacyConstantProduct RouterKind = 0
	// FeeTieredConcentrated routes through pools selected by the fee tier of every hop after the first.
	FeeTieredConcentrated RouterKind = 1
)

func (k RouterKind) IsKnown() bool {
	return k == LegacyConstantProduct || k == FeeTieredConcentrated
}

func (k RouterKind) String() string {
	switch k {
	case LegacyConstantProduct:
		return "v2"
	case FeeTieredConcentrated:
		return "v3"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

type Hop struct {
	Asset   ethcommon.Address
	PoolFee uint32
}

type Leg struct {
	Kind         RouterKind
	Hops         []Hop
	AmountIn     *big.Int
	AmountOutMin *big.Int
}

// Plan is an ordered set of legs. Every leg consumes from the same input and
// produces the same output; legs are not chained into each other.
type Plan []Leg

func (l Leg) Input() ethcommon.Address {
	if len(l.Hops) == 0 {
		return ethcommon.Address{}
	}
	return l.Hops[0].Asset
}

func (l Leg) Output() ethcommon.Address {
	if len(l.Hops) == 0 {
		return ethcommon.Address{}
	}
	return l.Hops[len(l.Hops)-1].Asset
}

// Assets returns the hop assets in order.
func (l Leg) Assets() []ethcommon.Address {
	assets := make([]ethcommon.Address, len(l.Hops))
	for i, hop := range l.Hops {
		assets[i] = hop.Asset
	}
	return assets
}

func (p Plan) IsEmpty() bool {
	return len(p) == 0
}

// TotalAmountIn sums AmountIn across every leg.
func (p Plan) TotalAmountIn() *big.Int {
	total := new(big.Int)
	for _, leg := range p {
		if leg.AmountIn != nil {
			total.Add(total, leg.AmountIn)
		}
	}
	return total
}

// TotalAmountOutMin sums AmountOutMin across every leg.
func (p Plan) TotalAmountOutMin() *big.Int {
	total := new(big.Int)
	for _, leg := range p {
		if leg.AmountOutMin != nil {
			total.Add(total, leg.AmountOutMin)
		}
	}
	return total
}

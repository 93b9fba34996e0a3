package bridge

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gjermundgaraba/libzaap/route"
	"github.com/pkg/errors"
)

var ErrInvalidPayload = errors.New("invalid payload")

// Instruction is everything the source side hands to the transport for one
// settlement. Only the Payload part travels as opaque bytes.
type Instruction struct {
	DestinationChainID uint16
	DestinationPoolID  uint64
	SourcePoolID       uint64
	RefundAddress      ethcommon.Address
	AdapterParams      []byte
	Recipient          ethcommon.Address
	DestinationPlan    route.Plan
	DestinationAsset   ethcommon.Address
	PartnerID          []byte
}

// Payload is the destination side tail of an Instruction.
type Payload struct {
	Plan             route.Plan
	DestinationAsset ethcommon.Address
	Recipient        ethcommon.Address
	PartnerID        []byte
}

func (i Instruction) Payload() Payload {
	return Payload{
		Plan:             i.DestinationPlan,
		DestinationAsset: i.DestinationAsset,
		Recipient:        i.Recipient,
		PartnerID:        i.PartnerID,
	}
}

type hopABI struct {
	Asset   ethcommon.Address `abi:"asset"`
	PoolFee *big.Int          `abi:"poolFee"`
}

type legABI struct {
	RouterKind   uint8    `abi:"routerKind"`
	AmountIn     *big.Int `abi:"amountIn"`
	Hops         []hopABI `abi:"hops"`
	AmountOutMin *big.Int `abi:"amountOutMin"`
}

var payloadArguments = mustPayloadArguments()

func mustPayloadArguments() abi.Arguments {
	legsType, err := abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "routerKind", Type: "uint8"},
		{Name: "amountIn", Type: "uint256"},
		{Name: "hops", Type: "tuple[]", Components: []abi.ArgumentMarshaling{
			{Name: "asset", Type: "address"},
			{Name: "poolFee", Type: "uint24"},
		}},
		{Name: "amountOutMin", Type: "uint256"},
	})
	if err != nil {
		panic(err)
	}
	addressType, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	bytesType, err := abi.NewType("bytes", "", nil)
	if err != nil {
		panic(err)
	}

	return abi.Arguments{
		{Name: "legs", Type: legsType},
		{Name: "destinationAsset", Type: addressType},
		{Name: "recipient", Type: addressType},
		{Name: "partnerId", Type: bytesType},
	}
}

// EncodePayload ABI encodes the payload as
// (tuple(uint8,uint256,tuple(address,uint24)[],uint256)[], address, address, bytes).
func EncodePayload(payload Payload) ([]byte, error) {
	legs := make([]legABI, len(payload.Plan))
	for i, leg := range payload.Plan {
		if leg.AmountIn == nil || leg.AmountOutMin == nil {
			return nil, errors.Errorf("leg %d: amounts must be set", i)
		}

		hops := make([]hopABI, len(leg.Hops))
		for j, hop := range leg.Hops {
			if hop.PoolFee >= 1<<24 {
				return nil, errors.Errorf("leg %d hop %d: pool fee %d does not fit in uint24", i, j, hop.PoolFee)
			}
			hops[j] = hopABI{Asset: hop.Asset, PoolFee: new(big.Int).SetUint64(uint64(hop.PoolFee))}
		}

		legs[i] = legABI{
			RouterKind:   uint8(leg.Kind),
			AmountIn:     leg.AmountIn,
			Hops:         hops,
			AmountOutMin: leg.AmountOutMin,
		}
	}

	partnerID := payload.PartnerID
	if partnerID == nil {
		partnerID = []byte{}
	}

	data, err := payloadArguments.Pack(legs, payload.DestinationAsset, payload.Recipient, partnerID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack payload")
	}

	return data, nil
}

func DecodePayload(data []byte) (payload Payload, err error) {
	// ConvertType panics on a shape mismatch
	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(ErrInvalidPayload, "%v", r)
		}
	}()

	out, err := payloadArguments.Unpack(data)
	if err != nil {
		return Payload{}, errors.Wrap(ErrInvalidPayload, err.Error())
	}
	if len(out) != len(payloadArguments) {
		return Payload{}, errors.Wrapf(ErrInvalidPayload, "expected %d values, got %d", len(payloadArguments), len(out))
	}

	legs := *abi.ConvertType(out[0], new([]legABI)).(*[]legABI)
	destinationAsset, ok := out[1].(ethcommon.Address)
	if !ok {
		return Payload{}, errors.Wrap(ErrInvalidPayload, "destination asset")
	}
	recipient, ok := out[2].(ethcommon.Address)
	if !ok {
		return Payload{}, errors.Wrap(ErrInvalidPayload, "recipient")
	}
	partnerID, ok := out[3].([]byte)
	if !ok {
		return Payload{}, errors.Wrap(ErrInvalidPayload, "partner id")
	}

	plan := make(route.Plan, len(legs))
	for i, leg := range legs {
		hops := make([]route.Hop, len(leg.Hops))
		for j, hop := range leg.Hops {
			hops[j] = route.Hop{Asset: hop.Asset, PoolFee: uint32(hop.PoolFee.Uint64())}
		}
		plan[i] = route.Leg{
			Kind:         route.RouterKind(leg.RouterKind),
			Hops:         hops,
			AmountIn:     leg.AmountIn,
			AmountOutMin: leg.AmountOutMin,
		}
	}

	return Payload{
		Plan:             plan,
		DestinationAsset: destinationAsset,
		Recipient:        recipient,
		PartnerID:        partnerID,
	}, nil
}

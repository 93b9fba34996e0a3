package route

import (
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

const (
	addrSize = ethcommon.AddressLength
	feeSize  = 3
	maxFee   = 1<<24 - 1
)

// EncodePackedPath encodes hops as asset0 | fee1 | asset1 | fee2 | asset2 ...
// where the fee of hop i selects the pool between hop i-1 and hop i.
func EncodePackedPath(hops []Hop) ([]byte, error) {
	if len(hops) < 2 {
		return nil, errors.Errorf("path needs at least 2 hops, got %d", len(hops))
	}

	path := make([]byte, 0, addrSize+(len(hops)-1)*(feeSize+addrSize))
	path = append(path, hops[0].Asset.Bytes()...)
	for _, hop := range hops[1:] {
		if hop.PoolFee > maxFee {
			return nil, errors.Errorf("pool fee %d does not fit in 24 bits", hop.PoolFee)
		}
		path = append(path, byte(hop.PoolFee>>16), byte(hop.PoolFee>>8), byte(hop.PoolFee))
		path = append(path, hop.Asset.Bytes()...)
	}

	return path, nil
}

// DecodePackedPath reverses EncodePackedPath. The first hop's fee is always 0.
func DecodePackedPath(path []byte) ([]Hop, error) {
	if len(path) < 2*addrSize+feeSize || (len(path)-addrSize)%(addrSize+feeSize) != 0 {
		return nil, errors.Errorf("invalid packed path length %d", len(path))
	}

	hops := []Hop{{Asset: ethcommon.BytesToAddress(path[:addrSize])}}
	for offset := addrSize; offset < len(path); offset += feeSize + addrSize {
		fee := uint32(path[offset])<<16 | uint32(path[offset+1])<<8 | uint32(path[offset+2])
		asset := ethcommon.BytesToAddress(path[offset+feeSize : offset+feeSize+addrSize])
		hops = append(hops, Hop{Asset: asset, PoolFee: fee})
	}

	return hops, nil
}

package fees

import (
	"encoding/hex"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

const (
	MaxFeeBps          = 50
	MaxPartnerShare    = 100
	bpsDenominator     = 10_000
	percentDenominator = 100
)

var (
	ErrInvalidFeeBps       = errors.New("fee bps must be <= 50")
	ErrInvalidPartnerShare = errors.New("partner share must be <= 100")
	ErrInvalidAddress      = errors.New("address must not be the zero address")
)

// Direction selects which side of a settlement a configuration applies to.
type Direction string

const (
	Inbound  Direction = "in"
	Outbound Direction = "out"
)

func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Inbound, Outbound:
		return Direction(s), nil
	default:
		return "", errors.Errorf("invalid direction %q, expected %q or %q", s, Inbound, Outbound)
	}
}

type Partner struct {
	Address      ethcommon.Address
	PercentShare uint8
}

// Config is a consistent view of the fee configuration for one direction.
type Config struct {
	FeeBps   uint16
	Treasury *ethcommon.Address
	// Partners is keyed by PartnerKey(partnerID).
	Partners map[string]Partner
}

// Active reports whether a fee is charged at all.
func (c Config) Active() bool {
	return c.FeeBps > 0 && c.Treasury != nil
}

func (c Config) Partner(partnerID []byte) (Partner, bool) {
	if len(partnerID) == 0 {
		return Partner{}, false
	}
	partner, ok := c.Partners[PartnerKey(partnerID)]
	return partner, ok
}

func (c Config) Clone() Config {
	clone := Config{FeeBps: c.FeeBps, Partners: make(map[string]Partner, len(c.Partners))}
	if c.Treasury != nil {
		treasury := *c.Treasury
		clone.Treasury = &treasury
	}
	for id, partner := range c.Partners {
		clone.Partners[id] = partner
	}
	return clone
}

// PartnerKey is the canonical map key for a partner id.
func PartnerKey(partnerID []byte) string {
	return hex.EncodeToString(partnerID)
}

// Split is the result of applying a fee configuration to a gross amount.
type Split struct {
	Net      *big.Int
	Treasury *big.Int
	Partner  *big.Int

	TreasuryAddress ethcommon.Address
	PartnerAddress  ethcommon.Address
}

func (s Split) Fee() *big.Int {
	return new(big.Int).Add(s.Treasury, s.Partner)
}

// Apply computes the protocol fee and partner split for gross. It performs no
// transfers. Net + Treasury + Partner always equals gross.
func Apply(gross *big.Int, cfg Config, partnerID []byte) Split {
	split := Split{
		Net:      new(big.Int).Set(gross),
		Treasury: new(big.Int),
		Partner:  new(big.Int),
	}
	if !cfg.Active() || gross.Sign() <= 0 {
		return split
	}

	feeTotal := new(big.Int).Mul(gross, big.NewInt(int64(cfg.FeeBps)))
	feeTotal.Div(feeTotal, big.NewInt(bpsDenominator))
	if feeTotal.Sign() == 0 {
		return split
	}

	split.TreasuryAddress = *cfg.Treasury
	split.Treasury.Set(feeTotal)
	if partner, ok := cfg.Partner(partnerID); ok {
		split.PartnerAddress = partner.Address
		split.Partner.Mul(feeTotal, big.NewInt(int64(partner.PercentShare)))
		split.Partner.Div(split.Partner, big.NewInt(percentDenominator))
		split.Treasury.Sub(feeTotal, split.Partner)
	}
	split.Net.Sub(gross, feeTotal)

	return split
}

func validateFeeBps(feeBps uint16) error {
	if feeBps > MaxFeeBps {
		return errors.Wrapf(ErrInvalidFeeBps, "got %d", feeBps)
	}
	return nil
}

func validatePartner(partner Partner) error {
	if partner.PercentShare > MaxPartnerShare {
		return errors.Wrapf(ErrInvalidPartnerShare, "got %d", partner.PercentShare)
	}
	if partner.Address == (ethcommon.Address{}) {
		return errors.Wrap(ErrInvalidAddress, "partner")
	}
	return nil
}

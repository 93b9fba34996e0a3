package fees

import (
	"context"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Store holds the fee configuration for both directions. Load always returns
// a consistent snapshot; writes are applied one field at a time.
type Store interface {
	Load(ctx context.Context, dir Direction) (Config, error)

	SetFeeBps(ctx context.Context, dir Direction, feeBps uint16) error
	SetTreasury(ctx context.Context, dir Direction, treasury ethcommon.Address) error
	ClearTreasury(ctx context.Context, dir Direction) error
	SetPartner(ctx context.Context, dir Direction, partnerID []byte, partner Partner) error
	DeletePartner(ctx context.Context, dir Direction, partnerID []byte) error
}

var _ Store = &MemoryStore{}

type MemoryStore struct {
	mutex   sync.RWMutex
	configs map[Direction]Config
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		configs: map[Direction]Config{
			Inbound:  {Partners: make(map[string]Partner)},
			Outbound: {Partners: make(map[string]Partner)},
		},
	}
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, dir Direction) (Config, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	cfg, ok := s.configs[dir]
	if !ok {
		return Config{}, errors.Errorf("unknown direction %q", dir)
	}
	return cfg.Clone(), nil
}

// SetFeeBps implements Store.
func (s *MemoryStore) SetFeeBps(_ context.Context, dir Direction, feeBps uint16) error {
	if err := validateFeeBps(feeBps); err != nil {
		return err
	}

	return s.update(dir, func(cfg *Config) {
		cfg.FeeBps = feeBps
	})
}

// SetTreasury implements Store.
func (s *MemoryStore) SetTreasury(_ context.Context, dir Direction, treasury ethcommon.Address) error {
	if treasury == (ethcommon.Address{}) {
		return errors.Wrap(ErrInvalidAddress, "treasury")
	}

	return s.update(dir, func(cfg *Config) {
		cfg.Treasury = &treasury
	})
}

// ClearTreasury implements Store.
func (s *MemoryStore) ClearTreasury(_ context.Context, dir Direction) error {
	return s.update(dir, func(cfg *Config) {
		cfg.Treasury = nil
	})
}

// SetPartner implements Store.
func (s *MemoryStore) SetPartner(_ context.Context, dir Direction, partnerID []byte, partner Partner) error {
	if len(partnerID) == 0 {
		return errors.New("partner id must not be empty")
	}
	if err := validatePartner(partner); err != nil {
		return err
	}

	return s.update(dir, func(cfg *Config) {
		cfg.Partners[PartnerKey(partnerID)] = partner
	})
}

// DeletePartner implements Store.
func (s *MemoryStore) DeletePartner(_ context.Context, dir Direction, partnerID []byte) error {
	return s.update(dir, func(cfg *Config) {
		delete(cfg.Partners, PartnerKey(partnerID))
	})
}

func (s *MemoryStore) update(dir Direction, fn func(cfg *Config)) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	cfg, ok := s.configs[dir]
	if !ok {
		return errors.Errorf("unknown direction %q", dir)
	}

	updated := cfg.Clone()
	fn(&updated)
	s.configs[dir] = updated

	return nil
}

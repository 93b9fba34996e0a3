package fees

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "zaap:fees"

	fieldFeeBps   = "fee-bps"
	fieldTreasury = "treasury"
)

var _ Store = &RedisStore{}

type RedisStoreConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

// RedisStore keeps one hash per direction for the scalar fields and one hash
// of partners per direction.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(ctx context.Context, cfg RedisStoreConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address must not be empty")
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to connect to redis at %s", cfg.Address)
	}

	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, dir Direction) (Config, error) {
	var (
		configCmd   *redis.MapStringStringCmd
		partnersCmd *redis.MapStringStringCmd
	)
	if _, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		configCmd = pipe.HGetAll(ctx, s.configKey(dir))
		partnersCmd = pipe.HGetAll(ctx, s.partnersKey(dir))
		return nil
	}); err != nil {
		return Config{}, errors.Wrapf(err, "failed to load %s fee config", dir)
	}

	cfg, err := decodeConfig(configCmd.Val(), partnersCmd.Val())
	if err != nil {
		return Config{}, errors.Wrapf(err, "invalid stored %s fee config", dir)
	}
	return cfg, nil
}

// decodeConfig applies the same limits as the setters, since the hashes can
// be written by anything with access to Redis.
func decodeConfig(fields map[string]string, partners map[string]string) (Config, error) {
	cfg := Config{Partners: make(map[string]Partner)}
	if feeBpsStr, ok := fields[fieldFeeBps]; ok {
		feeBps, err := strconv.ParseUint(feeBpsStr, 10, 16)
		if err != nil {
			return Config{}, errors.Wrapf(err, "invalid stored fee bps %q", feeBpsStr)
		}
		if err := validateFeeBps(uint16(feeBps)); err != nil {
			return Config{}, err
		}
		cfg.FeeBps = uint16(feeBps)
	}
	if treasuryStr, ok := fields[fieldTreasury]; ok && treasuryStr != "" {
		if !ethcommon.IsHexAddress(treasuryStr) {
			return Config{}, errors.Errorf("invalid stored treasury %q", treasuryStr)
		}
		treasury := ethcommon.HexToAddress(treasuryStr)
		if treasury == (ethcommon.Address{}) {
			return Config{}, errors.Wrap(ErrInvalidAddress, "treasury")
		}
		cfg.Treasury = &treasury
	}

	for id, value := range partners {
		partner, err := decodePartner(value)
		if err != nil {
			return Config{}, errors.Wrapf(err, "invalid stored partner %s", id)
		}
		if err := validatePartner(partner); err != nil {
			return Config{}, errors.Wrapf(err, "stored partner %s", id)
		}
		cfg.Partners[id] = partner
	}

	return cfg, nil
}

// SetFeeBps implements Store.
func (s *RedisStore) SetFeeBps(ctx context.Context, dir Direction, feeBps uint16) error {
	if err := validateFeeBps(feeBps); err != nil {
		return err
	}
	if err := s.client.HSet(ctx, s.configKey(dir), fieldFeeBps, strconv.FormatUint(uint64(feeBps), 10)).Err(); err != nil {
		return errors.Wrap(err, "failed to store fee bps")
	}
	return nil
}

// SetTreasury implements Store.
func (s *RedisStore) SetTreasury(ctx context.Context, dir Direction, treasury ethcommon.Address) error {
	if treasury == (ethcommon.Address{}) {
		return errors.Wrap(ErrInvalidAddress, "treasury")
	}
	if err := s.client.HSet(ctx, s.configKey(dir), fieldTreasury, treasury.Hex()).Err(); err != nil {
		return errors.Wrap(err, "failed to store treasury")
	}
	return nil
}

// ClearTreasury implements Store.
func (s *RedisStore) ClearTreasury(ctx context.Context, dir Direction) error {
	if err := s.client.HDel(ctx, s.configKey(dir), fieldTreasury).Err(); err != nil {
		return errors.Wrap(err, "failed to clear treasury")
	}
	return nil
}

// SetPartner implements Store.
func (s *RedisStore) SetPartner(ctx context.Context, dir Direction, partnerID []byte, partner Partner) error {
	if len(partnerID) == 0 {
		return errors.New("partner id must not be empty")
	}
	if err := validatePartner(partner); err != nil {
		return err
	}
	if err := s.client.HSet(ctx, s.partnersKey(dir), PartnerKey(partnerID), encodePartner(partner)).Err(); err != nil {
		return errors.Wrap(err, "failed to store partner")
	}
	return nil
}

// DeletePartner implements Store.
func (s *RedisStore) DeletePartner(ctx context.Context, dir Direction, partnerID []byte) error {
	if err := s.client.HDel(ctx, s.partnersKey(dir), PartnerKey(partnerID)).Err(); err != nil {
		return errors.Wrapf(err, "failed to delete partner %s", hex.EncodeToString(partnerID))
	}
	return nil
}

func (s *RedisStore) configKey(dir Direction) string {
	return fmt.Sprintf("%s:%s", s.prefix, dir)
}

func (s *RedisStore) partnersKey(dir Direction) string {
	return fmt.Sprintf("%s:%s:partners", s.prefix, dir)
}

func encodePartner(partner Partner) string {
	return fmt.Sprintf("%s:%d", partner.Address.Hex(), partner.PercentShare)
}

func decodePartner(value string) (Partner, error) {
	addressStr, shareStr, ok := strings.Cut(value, ":")
	if !ok || !ethcommon.IsHexAddress(addressStr) {
		return Partner{}, errors.Errorf("malformed partner value %q", value)
	}
	share, err := strconv.ParseUint(shareStr, 10, 8)
	if err != nil {
		return Partner{}, errors.Wrapf(err, "malformed partner share %q", shareStr)
	}

	return Partner{Address: ethcommon.HexToAddress(addressStr), PercentShare: uint8(share)}, nil
}

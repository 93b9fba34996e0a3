package config

import (
	"context"
	"math/big"
	"os"
	"sort"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gjermundgaraba/libzaap/bridge"
	"github.com/gjermundgaraba/libzaap/chains/local"
	"github.com/gjermundgaraba/libzaap/chains/network"
	"github.com/gjermundgaraba/libzaap/dex"
	"github.com/gjermundgaraba/libzaap/fees"
	"github.com/gjermundgaraba/libzaap/ledger"
	"github.com/gjermundgaraba/libzaap/permit"
	"github.com/gjermundgaraba/libzaap/utils"
	"github.com/gjermundgaraba/libzaap/zaap"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	defaultRedisPrefix = "zaap:fees"
	nativeDecimals     = 18
)

// Config represents the application configuration
type Config struct {
	ZaapAddress    string `toml:"zaap-address"`
	OwnerWalletID  string `toml:"owner-wallet-id"`
	Containment    string `toml:"containment"`
	RelayBatchSize int    `toml:"relay-batch-size"`
	// RedisAddr switches fee configuration from this file to Redis.
	RedisAddr   string `toml:"redis-addr"`
	RedisPrefix string `toml:"redis-prefix"`

	MessagingFee MessagingFeeConfig `toml:"messaging-fee"`
	Chains       []ChainConfig      `toml:"chains"`
	Wallets      []WalletConfig     `toml:"wallets"`
}

// MessagingFeeConfig prices bridge messages in base units of the source chain's native asset.
type MessagingFeeConfig struct {
	Base    string `toml:"base"`
	PerByte string `toml:"per-byte"`
}

// ChainConfig represents the configuration for a single chain
type ChainConfig struct {
	ChainID         string `toml:"chain-id"`
	BridgeChainID   uint16 `toml:"bridge-chain-id"`
	WrappedNative   string `toml:"wrapped-native"`
	EndpointAddress string `toml:"endpoint-address"`
	RouterAddress   string `toml:"router-address"`
	Permit2Address  string `toml:"permit2-address"`
	PausedIn        bool   `toml:"paused-in"`
	PausedOut       bool   `toml:"paused-out"`

	Assets      []AssetConfig      `toml:"assets"`
	Pools       []PoolConfig       `toml:"pools"`
	BridgePools []BridgePoolConfig `toml:"bridge-pools"`
	Balances    []BalanceConfig    `toml:"balances"`
	Fees        FeesConfig         `toml:"fees"`
	WalletIDs   []string           `toml:"wallet-ids"`
}

type AssetConfig struct {
	Symbol   string `toml:"symbol"`
	Address  string `toml:"address"`
	Decimals int32  `toml:"decimals"`
}

// PoolConfig is a dex pool seeded at startup. Amounts are human amounts.
type PoolConfig struct {
	AssetA  string `toml:"asset-a"`
	AssetB  string `toml:"asset-b"`
	Fee     uint32 `toml:"fee"`
	AmountA string `toml:"amount-a"`
	AmountB string `toml:"amount-b"`
}

type BridgePoolConfig struct {
	PoolID    uint64 `toml:"pool-id"`
	Asset     string `toml:"asset"`
	Liquidity string `toml:"liquidity"`
}

type BalanceConfig struct {
	WalletID string `toml:"wallet-id"`
	Asset    string `toml:"asset"`
	Amount   string `toml:"amount"`
}

type FeesConfig struct {
	In  DirectionFeesConfig `toml:"in"`
	Out DirectionFeesConfig `toml:"out"`
}

type DirectionFeesConfig struct {
	FeeBps   uint16          `toml:"fee-bps"`
	Treasury string          `toml:"treasury"`
	Partners []PartnerConfig `toml:"partners"`
}

type PartnerConfig struct {
	PartnerID    string `toml:"partner-id"`
	Address      string `toml:"address"`
	PercentShare uint8  `toml:"percent-share"`
}

// WalletConfig represents the configuration for a wallet
type WalletConfig struct {
	WalletID   string `toml:"wallet-id"`
	PrivateKey string `toml:"private-key"`
}

// LoadConfig reads and parses the config file
func LoadConfig(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open config file")
	}
	defer file.Close()

	var config Config
	if err := toml.NewDecoder(file).Decode(&config); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}

	return &config, nil
}

// SaveConfig writes the config to file using go-toml directly
func (c *Config) SaveConfig(configPath string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	// Write to a new temporary file for atomic write
	tempFile, err := os.CreateTemp("", "config-*.toml")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	defer os.Remove(tempFile.Name())

	if _, err := tempFile.Write(data); err != nil {
		return errors.Wrap(err, "failed to write to temp file")
	}
	if err := tempFile.Close(); err != nil {
		return errors.Wrap(err, "failed to close temp file")
	}

	if err := os.Rename(tempFile.Name(), configPath); err != nil {
		// If rename fails (e.g., across filesystems), try copy
		input, err := os.ReadFile(tempFile.Name())
		if err != nil {
			return errors.Wrap(err, "failed to read temp file")
		}

		if err := os.WriteFile(configPath, input, 0o644); err != nil {
			return errors.Wrap(err, "failed to write config file")
		}
	}

	return nil
}

func (c *Config) GetChain(chainID string) (*ChainConfig, error) {
	for i := range c.Chains {
		if c.Chains[i].ChainID == chainID {
			return &c.Chains[i], nil
		}
	}
	return nil, errors.Errorf("chain config not found: %s", chainID)
}

func (c *Config) GetWallet(walletID string) (WalletConfig, error) {
	for _, wallet := range c.Wallets {
		if wallet.WalletID == walletID {
			return wallet, nil
		}
	}
	return WalletConfig{}, errors.Errorf("wallet config not found: %s", walletID)
}

// UsesRedis reports whether fee configuration lives in Redis instead of this file.
func (c *Config) UsesRedis() bool {
	return c.RedisAddr != ""
}

func (c *Config) OwnerAddress() (ethcommon.Address, error) {
	if c.OwnerWalletID == "" {
		return ethcommon.Address{}, errors.New("owner-wallet-id must be set")
	}
	wallet, err := c.GetWallet(c.OwnerWalletID)
	if err != nil {
		return ethcommon.Address{}, err
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(wallet.PrivateKey, "0x"))
	if err != nil {
		return ethcommon.Address{}, errors.Wrapf(err, "invalid private key for owner wallet %s", c.OwnerWalletID)
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

// DirectionFees returns the configured fees for one direction.
func (c *ChainConfig) DirectionFees(dir fees.Direction) *DirectionFeesConfig {
	if dir == fees.Inbound {
		return &c.Fees.In
	}
	return &c.Fees.Out
}

// SetDirectionFees replaces the configured fees for dir with cfg.
func (c *ChainConfig) SetDirectionFees(dir fees.Direction, cfg fees.Config, partnerIDs map[string][]byte) {
	directionFees := DirectionFeesConfig{FeeBps: cfg.FeeBps}
	if cfg.Treasury != nil {
		directionFees.Treasury = cfg.Treasury.Hex()
	}
	for key, partner := range cfg.Partners {
		id, ok := partnerIDs[key]
		if !ok {
			continue
		}
		directionFees.Partners = append(directionFees.Partners, PartnerConfig{
			PartnerID:    string(id),
			Address:      partner.Address.Hex(),
			PercentShare: partner.PercentShare,
		})
	}
	sort.Slice(directionFees.Partners, func(i, j int) bool {
		return directionFees.Partners[i].PartnerID < directionFees.Partners[j].PartnerID
	})

	*c.DirectionFees(dir) = directionFees
}

// PartnerIDs maps fee store partner keys back to the ids written in the config.
func (c *ChainConfig) PartnerIDs(extra ...[]byte) map[string][]byte {
	ids := make(map[string][]byte)
	for _, directionFees := range []DirectionFeesConfig{c.Fees.In, c.Fees.Out} {
		for _, partner := range directionFees.Partners {
			ids[fees.PartnerKey([]byte(partner.PartnerID))] = []byte(partner.PartnerID)
		}
	}
	for _, id := range extra {
		ids[fees.PartnerKey(id)] = id
	}
	return ids
}

func (c *Config) ToNetwork(ctx context.Context, logger *zap.Logger) (*network.Network, error) {
	owner, err := c.OwnerAddress()
	if err != nil {
		return nil, err
	}
	containment, err := zaap.ParseContainment(c.Containment)
	if err != nil {
		return nil, err
	}
	zaapAddress := contractAddress(c.ZaapAddress, "zaap")

	feeSchedule, err := c.MessagingFee.schedule()
	if err != nil {
		return nil, err
	}
	transport := bridge.NewLocalTransport(logger, feeSchedule)
	n := network.BuildNetwork(logger, transport)

	walletConfigs := make(map[string]WalletConfig)
	for _, walletConfig := range c.Wallets {
		walletConfigs[walletConfig.WalletID] = walletConfig
	}

	for _, chainConfig := range c.Chains {
		chain := local.NewChain(logger, chainConfig.ChainID, chainConfig.BridgeChainID)

		walletIDs := append([]string{c.OwnerWalletID}, chainConfig.WalletIDs...)
		for _, walletID := range walletIDs {
			walletConfig, ok := walletConfigs[walletID]
			if !ok {
				return nil, errors.Errorf("wallet config not found for wallet ID: %s for chain %s", walletID, chainConfig.ChainID)
			}
			if err := chain.AddWallet(walletID, walletConfig.PrivateKey); err != nil {
				return nil, errors.Wrap(err, "failed to add wallet to chain")
			}
		}

		store, err := c.feeStore(ctx, chainConfig)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create fee store for %s", chainConfig.ChainID)
		}

		deployment, err := chainConfig.deploy(ctx, logger, chain, transport, zaap.Config{
			Address:     zaapAddress,
			Owner:       owner,
			Fees:        store,
			Containment: containment,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to deploy to %s", chainConfig.ChainID)
		}

		if err := n.AddChain(chain, deployment); err != nil {
			return nil, err
		}
	}

	return n, nil
}

func (c *Config) feeStore(ctx context.Context, chainConfig ChainConfig) (fees.Store, error) {
	if c.UsesRedis() {
		prefix := c.RedisPrefix
		if prefix == "" {
			prefix = defaultRedisPrefix
		}
		return fees.NewRedisStore(ctx, fees.RedisStoreConfig{
			Address: c.RedisAddr,
			Prefix:  prefix + ":" + chainConfig.ChainID,
		})
	}

	store := fees.NewMemoryStore()
	for _, dir := range []fees.Direction{fees.Inbound, fees.Outbound} {
		directionFees := chainConfig.DirectionFees(dir)
		if err := store.SetFeeBps(ctx, dir, directionFees.FeeBps); err != nil {
			return nil, err
		}
		if directionFees.Treasury != "" {
			if !ethcommon.IsHexAddress(directionFees.Treasury) {
				return nil, errors.Errorf("invalid treasury address %s", directionFees.Treasury)
			}
			if err := store.SetTreasury(ctx, dir, ethcommon.HexToAddress(directionFees.Treasury)); err != nil {
				return nil, err
			}
		}
		for _, partner := range directionFees.Partners {
			if !ethcommon.IsHexAddress(partner.Address) {
				return nil, errors.Errorf("invalid address %s for partner %s", partner.Address, partner.PartnerID)
			}
			if err := store.SetPartner(ctx, dir, []byte(partner.PartnerID), fees.Partner{
				Address:      ethcommon.HexToAddress(partner.Address),
				PercentShare: partner.PercentShare,
			}); err != nil {
				return nil, errors.Wrapf(err, "invalid partner %s", partner.PartnerID)
			}
		}
	}

	return store, nil
}

// deploy creates the contracts of one chain and seeds its genesis state.
func (c ChainConfig) deploy(ctx context.Context, logger *zap.Logger, chain *local.Chain, transport *bridge.LocalTransport, zaapConfig zaap.Config) (*network.Deployment, error) {
	assets := make([]network.Asset, 0, len(c.Assets))
	for _, asset := range c.Assets {
		if !ethcommon.IsHexAddress(asset.Address) {
			return nil, errors.Errorf("invalid address %s for asset %s", asset.Address, asset.Symbol)
		}
		assets = append(assets, network.Asset{
			Symbol:   asset.Symbol,
			Address:  ethcommon.HexToAddress(asset.Address),
			Decimals: asset.Decimals,
		})
	}
	deployment := &network.Deployment{Assets: assets}

	wrappedNative, err := deployment.ResolveAsset(c.WrappedNative)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve wrapped native asset")
	}

	endpoint, err := transport.AddEndpoint(c.BridgeChainID, contractAddress(c.EndpointAddress, "endpoint", c.ChainID), chain)
	if err != nil {
		return nil, err
	}
	router := dex.NewRouter(logger.With(zap.String("chain_id", c.ChainID)), contractAddress(c.RouterAddress, "router", c.ChainID))
	permit2 := permit.NewPermit2(contractAddress(c.Permit2Address, "permit2", c.ChainID), new(big.Int).SetUint64(uint64(c.BridgeChainID)))

	amount := func(symbol string, human string) (ethcommon.Address, *big.Int, error) {
		address, err := deployment.ResolveAsset(symbol)
		if err != nil {
			return ethcommon.Address{}, nil, err
		}
		decimals := int32(nativeDecimals)
		if asset, ok := deployment.Asset(address); ok {
			decimals = asset.Decimals
		}
		parsed, err := utils.ParseAmount(human, decimals)
		if err != nil {
			return ethcommon.Address{}, nil, err
		}
		return address, parsed, nil
	}

	genesis := contractAddress("", "genesis", c.ChainID)
	mint := func(st ledger.State, asset ethcommon.Address, to ethcommon.Address, value *big.Int) error {
		if err := st.Mint(asset, to, value); err != nil {
			return err
		}
		// wrapped native is always fully backed
		if asset == wrappedNative {
			return st.Mint(ledger.NativeAsset, wrappedNative, value)
		}
		return nil
	}

	if err := chain.Execute(ctx, func(st ledger.State) error {
		for _, pool := range c.Pools {
			assetA, amountA, err := amount(pool.AssetA, pool.AmountA)
			if err != nil {
				return errors.Wrapf(err, "pool %s/%s", pool.AssetA, pool.AssetB)
			}
			assetB, amountB, err := amount(pool.AssetB, pool.AmountB)
			if err != nil {
				return errors.Wrapf(err, "pool %s/%s", pool.AssetA, pool.AssetB)
			}
			if err := mint(st, assetA, genesis, amountA); err != nil {
				return err
			}
			if err := mint(st, assetB, genesis, amountB); err != nil {
				return err
			}
			if _, err := router.AddLiquidity(st, genesis, assetA, assetB, pool.Fee, amountA, amountB); err != nil {
				return errors.Wrapf(err, "failed to seed pool %s/%s", pool.AssetA, pool.AssetB)
			}
		}

		for _, bridgePool := range c.BridgePools {
			asset, liquidity, err := amount(bridgePool.Asset, bridgePool.Liquidity)
			if err != nil {
				return errors.Wrapf(err, "bridge pool %d", bridgePool.PoolID)
			}
			endpoint.AddPool(bridgePool.PoolID, asset)
			if err := mint(st, asset, endpoint.PoolLiquidityAddress(bridgePool.PoolID), liquidity); err != nil {
				return err
			}
		}

		for _, balance := range c.Balances {
			wallet, err := chain.GetWallet(balance.WalletID)
			if err != nil {
				return errors.Wrapf(err, "balance for %s", balance.WalletID)
			}
			asset, value, err := amount(balance.Asset, balance.Amount)
			if err != nil {
				return errors.Wrapf(err, "balance for %s", balance.WalletID)
			}
			if err := mint(st, asset, wallet.Address(), value); err != nil {
				return err
			}
		}

		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "failed to seed genesis state")
	}

	zaapConfig.WrappedNative = wrappedNative
	zaapConfig.Transport = endpoint
	zaapConfig.Router = router
	zaapConfig.Permit2 = permit2
	z, err := zaap.New(logger.With(zap.String("chain_id", c.ChainID)), zaapConfig)
	if err != nil {
		return nil, err
	}
	if c.PausedIn {
		if err := z.PauseIn(zaapConfig.Owner); err != nil {
			return nil, err
		}
	}
	if c.PausedOut {
		if err := z.PauseOut(zaapConfig.Owner); err != nil {
			return nil, err
		}
	}

	deployment.Zaap = z
	deployment.Router = router
	deployment.Permit2 = permit2
	deployment.Endpoint = endpoint

	return deployment, nil
}

func (m MessagingFeeConfig) schedule() (bridge.FeeSchedule, error) {
	var schedule bridge.FeeSchedule
	for _, field := range []struct {
		name  string
		value string
		dst   **big.Int
	}{
		{"base", m.Base, &schedule.Base},
		{"per-byte", m.PerByte, &schedule.PerByte},
	} {
		if field.value == "" {
			continue
		}
		value, ok := new(big.Int).SetString(field.value, 10)
		if !ok || value.Sign() < 0 {
			return bridge.FeeSchedule{}, errors.Errorf("invalid messaging fee %s: %s", field.name, field.value)
		}
		*field.dst = value
	}
	return schedule, nil
}

// contractAddress returns the configured address, or one derived from the
// contract name and scope when none is configured.
func contractAddress(configured string, name string, scope ...string) ethcommon.Address {
	if configured != "" {
		return ethcommon.HexToAddress(configured)
	}
	return ethcommon.BytesToAddress(crypto.Keccak256([]byte(strings.Join(append([]string{name}, scope...), ":")))[12:])
}

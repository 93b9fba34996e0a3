package network

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sort"
	"strings"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/gjermundgaraba/libzaap/bridge"
	"github.com/gjermundgaraba/libzaap/dex"
	"github.com/gjermundgaraba/libzaap/ledger"
	"github.com/gjermundgaraba/libzaap/permit"
	"github.com/gjermundgaraba/libzaap/relayer"
	"github.com/gjermundgaraba/libzaap/zaap"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// NativeSymbol resolves to the native asset sentinel on every chain.
const NativeSymbol = "NATIVE"

type Chain interface {
	GetChainID() string
	GetBridgeChainID() uint16

	AddWallet(walletID string, privateKeyHex string) error
	GetWallet(walletID string) (Wallet, error)
	GetWallets() []Wallet
	GenerateWallet(walletID string) (Wallet, error)

	// Execute runs fn as one transaction. Nothing fn did is kept if it returns an error.
	Execute(ctx context.Context, fn func(st ledger.State) error) error
	// Subscribe registers fn for the logs of every committed transaction.
	Subscribe(fn func(logs []ledger.Log))
	GetBalance(ctx context.Context, holder ethcommon.Address, asset ethcommon.Address) (*big.Int, error)
	Mint(ctx context.Context, asset ethcommon.Address, to ethcommon.Address, amount *big.Int) error
}

type Wallet interface {
	ID() string
	Address() ethcommon.Address
	PrivateKey() *ecdsa.PrivateKey
	PrivateKeyHex() string
}

type Asset struct {
	Symbol   string
	Address  ethcommon.Address
	Decimals int32
}

// Deployment is the set of contracts the settlement flow needs on one chain.
type Deployment struct {
	Zaap     *zaap.Zaap
	Router   *dex.Router
	Permit2  *permit.Permit2
	Endpoint *bridge.Endpoint
	Assets   []Asset
}

// ResolveAsset accepts a configured symbol (case insensitive), NATIVE or a hex address.
func (d *Deployment) ResolveAsset(symbol string) (ethcommon.Address, error) {
	if strings.EqualFold(symbol, NativeSymbol) {
		return ledger.NativeAsset, nil
	}
	for _, asset := range d.Assets {
		if strings.EqualFold(asset.Symbol, symbol) {
			return asset.Address, nil
		}
	}
	if ethcommon.IsHexAddress(symbol) {
		return ethcommon.HexToAddress(symbol), nil
	}
	return ethcommon.Address{}, errors.Errorf("asset not found: %s", symbol)
}

// Asset looks up a configured asset by address. The native asset has 18 decimals.
func (d *Deployment) Asset(address ethcommon.Address) (Asset, bool) {
	if ledger.IsNative(address) {
		return Asset{Symbol: NativeSymbol, Address: address, Decimals: 18}, true
	}
	for _, asset := range d.Assets {
		if asset.Address == address {
			return asset, true
		}
	}
	return Asset{}, false
}

type Network struct {
	logger    *zap.Logger
	transport *bridge.LocalTransport

	mutex       sync.RWMutex
	chains      map[string]Chain
	deployments map[string]*Deployment
}

func BuildNetwork(logger *zap.Logger, transport *bridge.LocalTransport) *Network {
	return &Network{
		logger:      logger,
		transport:   transport,
		chains:      make(map[string]Chain),
		deployments: make(map[string]*Deployment),
	}
}

// AddChain registers a chain and its deployment and hooks the orchestrator up
// as the receiver of bridge deliveries on that chain.
func (n *Network) AddChain(chain Chain, deployment *Deployment) error {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	chainID := chain.GetChainID()
	if _, ok := n.chains[chainID]; ok {
		return errors.Errorf("chain already added: %s", chainID)
	}
	for _, existing := range n.chains {
		if existing.GetBridgeChainID() == chain.GetBridgeChainID() {
			return errors.Errorf("bridge chain id %d is used by both %s and %s", chain.GetBridgeChainID(), existing.GetChainID(), chainID)
		}
	}
	if deployment.Endpoint.ChainID() != chain.GetBridgeChainID() {
		return errors.Errorf("endpoint of %s is on bridge chain %d, expected %d", chainID, deployment.Endpoint.ChainID(), chain.GetBridgeChainID())
	}

	deployment.Endpoint.RegisterReceiver(deployment.Zaap.Address(), deployment.Zaap)
	n.chains[chainID] = chain
	n.deployments[chainID] = deployment

	n.logger.Debug("Added chain", zap.String("chain_id", chainID), zap.Uint16("bridge_chain_id", chain.GetBridgeChainID()))
	return nil
}

func (n *Network) GetChain(chainID string) (Chain, error) {
	n.mutex.RLock()
	defer n.mutex.RUnlock()

	chain, ok := n.chains[chainID]
	if !ok || chain == nil {
		return nil, errors.Errorf("chain not found: %s", chainID)
	}

	return chain, nil
}

func (n *Network) GetDeployment(chainID string) (*Deployment, error) {
	n.mutex.RLock()
	defer n.mutex.RUnlock()

	deployment, ok := n.deployments[chainID]
	if !ok {
		return nil, errors.Errorf("deployment not found: %s", chainID)
	}

	return deployment, nil
}

// GetChains returns every chain ordered by chain id.
func (n *Network) GetChains() []Chain {
	n.mutex.RLock()
	defer n.mutex.RUnlock()

	chains := make([]Chain, 0, len(n.chains))
	for _, chain := range n.chains {
		chains = append(chains, chain)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i].GetChainID() < chains[j].GetChainID() })

	return chains
}

func (n *Network) Transport() *bridge.LocalTransport {
	return n.transport
}

// Subscribe registers fn for the committed logs of every chain.
func (n *Network) Subscribe(fn func(logs []ledger.Log)) {
	for _, chain := range n.GetChains() {
		chain.Subscribe(fn)
	}
}

// StartRelaying returns a queue that delivers every bridge message committed
// on any chain from now on.
func (n *Network) StartRelaying(ctx context.Context, batchSize int) *relayer.Queue {
	queue := relayer.NewQueue(ctx, n.logger, n.transport, batchSize)
	n.Subscribe(queue.HandleLogs)
	return queue
}

// Enter runs an inbound settlement on chainID as a single transaction.
func (n *Network) Enter(ctx context.Context, chainID string, req zaap.EntryRequest) (*zaap.EntryReceipt, error) {
	chain, err := n.GetChain(chainID)
	if err != nil {
		return nil, err
	}
	deployment, err := n.GetDeployment(chainID)
	if err != nil {
		return nil, err
	}

	var receipt *zaap.EntryReceipt
	if err := chain.Execute(ctx, func(st ledger.State) error {
		var err error
		receipt, err = deployment.Zaap.Enter(ctx, st, req)
		return err
	}); err != nil {
		return nil, errors.Wrapf(err, "failed to enter on %s", chainID)
	}

	return receipt, nil
}

// Allowance reads the permit allowance owner granted the orchestrator on chainID.
func (n *Network) Allowance(ctx context.Context, chainID string, owner ethcommon.Address, token ethcommon.Address) (permit.Allowance, error) {
	chain, err := n.GetChain(chainID)
	if err != nil {
		return permit.Allowance{}, err
	}
	deployment, err := n.GetDeployment(chainID)
	if err != nil {
		return permit.Allowance{}, err
	}

	var allowance permit.Allowance
	err = chain.Execute(ctx, func(st ledger.State) error {
		allowance = deployment.Permit2.Allowance(st, owner, token, deployment.Zaap.Address())
		return nil
	})
	return allowance, err
}

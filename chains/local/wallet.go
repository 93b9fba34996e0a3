package local

import (
	"crypto/ecdsa"
	"encoding/hex"
	"sort"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gjermundgaraba/libzaap/chains/network"
	"github.com/pkg/errors"
)

var _ network.Wallet = &Wallet{}

type Wallet struct {
	id         string
	address    ethcommon.Address
	privateKey *ecdsa.PrivateKey
}

// AddWallet implements network.Chain.
func (c *Chain) AddWallet(walletID string, privateKeyHex string) error {
	keyBytes, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return errors.Wrap(err, "private key failed to decode")
	}
	privKey, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		return errors.Wrap(err, "private key failed to convert to ECDSA")
	}

	c.storeWallet(newWallet(walletID, privKey))
	return nil
}

// GetWallet implements network.Chain.
func (c *Chain) GetWallet(walletID string) (network.Wallet, error) {
	c.walletsMutex.RLock()
	defer c.walletsMutex.RUnlock()

	wallet, ok := c.wallets[walletID]
	if !ok {
		return nil, errors.Errorf("wallet not found: %s", walletID)
	}
	return wallet, nil
}

// GenerateWallet implements network.Chain.
func (c *Chain) GenerateWallet(walletID string) (network.Wallet, error) {
	privKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate private key")
	}

	wallet := newWallet(walletID, privKey)
	c.storeWallet(wallet)

	return wallet, nil
}

// GetWallets implements network.Chain.
func (c *Chain) GetWallets() []network.Wallet {
	c.walletsMutex.RLock()
	defer c.walletsMutex.RUnlock()

	wallets := make([]network.Wallet, 0, len(c.wallets))
	for _, wallet := range c.wallets {
		wallets = append(wallets, wallet)
	}
	sort.Slice(wallets, func(i, j int) bool { return wallets[i].ID() < wallets[j].ID() })

	return wallets
}

func (c *Chain) storeWallet(wallet *Wallet) {
	c.walletsMutex.Lock()
	defer c.walletsMutex.Unlock()
	c.wallets[wallet.id] = wallet
}

func newWallet(walletID string, privKey *ecdsa.PrivateKey) *Wallet {
	return &Wallet{
		id:         walletID,
		address:    crypto.PubkeyToAddress(privKey.PublicKey),
		privateKey: privKey,
	}
}

// ID implements network.Wallet.
func (w *Wallet) ID() string {
	return w.id
}

// Address implements network.Wallet.
func (w *Wallet) Address() ethcommon.Address {
	return w.address
}

// PrivateKey implements network.Wallet.
func (w *Wallet) PrivateKey() *ecdsa.PrivateKey {
	return w.privateKey
}

// PrivateKeyHex implements network.Wallet.
func (w *Wallet) PrivateKeyHex() string {
	return hex.EncodeToString(crypto.FromECDSA(w.privateKey))
}

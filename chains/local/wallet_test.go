package local_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gjermundgaraba/libzaap/chains/local"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWallets(t *testing.T) {
	chain := local.NewChain(zap.NewNop(), "testnet", 7)

	generated, err := chain.GenerateWallet("bob")
	require.NoError(t, err)
	require.Equal(t, crypto.PubkeyToAddress(generated.PrivateKey().PublicKey), generated.Address())

	// the exported key imports back into the same address
	require.NoError(t, chain.AddWallet("alice", "0x"+generated.PrivateKeyHex()))
	alice, err := chain.GetWallet("alice")
	require.NoError(t, err)
	require.Equal(t, generated.Address(), alice.Address())

	wallets := chain.GetWallets()
	require.Len(t, wallets, 2)
	require.Equal(t, "alice", wallets[0].ID())
	require.Equal(t, "bob", wallets[1].ID())

	_, err = chain.GetWallet("carol")
	require.Error(t, err)
	require.Error(t, chain.AddWallet("carol", "not-hex"))
	require.Error(t, chain.AddWallet("carol", "abcd"))
}

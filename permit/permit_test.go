package permit_test

import (
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gjermundgaraba/libzaap/ledger"
	"github.com/gjermundgaraba/libzaap/permit"
	"github.com/stretchr/testify/require"
)

var (
	chainID        = big.NewInt(42161)
	permit2Address = ethcommon.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3")
	token          = ethcommon.HexToAddress("0x00000000000000000000000000000000000000c1")
	spender        = ethcommon.HexToAddress("0x00000000000000000000000000000000000000d1")
	receiver       = ethcommon.HexToAddress("0x00000000000000000000000000000000000000e1")
)

func newSingle(amount int64, expiration, nonce uint64, sigDeadline int64) permit.Single {
	return permit.Single{
		Details: permit.Details{
			Token:      token,
			Amount:     big.NewInt(amount),
			Expiration: expiration,
			Nonce:      nonce,
		},
		Spender:     spender,
		SigDeadline: big.NewInt(sigDeadline),
	}
}

func TestSignAndRecover(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	owner := crypto.PubkeyToAddress(key.PublicKey)

	single := newSingle(1_000, 2_000, 0, 1_500)
	signed, err := permit.Sign(chainID, permit2Address, single, key)
	require.NoError(t, err)
	require.Equal(t, owner, signed.Owner)
	require.Len(t, signed.Signature, 65)
	require.Contains(t, []byte{27, 28}, signed.Signature[64])

	signer, err := permit.Recover(chainID, permit2Address, single, signed.Signature)
	require.NoError(t, err)
	require.Equal(t, owner, signer)

	// any change to the signed content changes the signer
	tampered := single
	tampered.Details.Amount = big.NewInt(1_001)
	signer, err = permit.Recover(chainID, permit2Address, tampered, signed.Signature)
	require.NoError(t, err)
	require.NotEqual(t, owner, signer)

	signer, err = permit.Recover(big.NewInt(1), permit2Address, single, signed.Signature)
	require.NoError(t, err)
	require.NotEqual(t, owner, signer)

	_, err = permit.Recover(chainID, permit2Address, single, signed.Signature[:64])
	require.ErrorIs(t, err, permit.ErrBadPermit)
}

func TestHashRejectsOutOfRangeValues(t *testing.T) {
	single := newSingle(1, 1, 0, 1)
	single.Details.Amount = new(big.Int).Lsh(big.NewInt(1), 160)
	_, err := permit.Hash(chainID, permit2Address, single)
	require.ErrorIs(t, err, permit.ErrBadPermit)

	single = newSingle(1, 1<<48, 0, 1)
	_, err = permit.Hash(chainID, permit2Address, single)
	require.ErrorIs(t, err, permit.ErrBadPermit)
}

func TestPermit2(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	owner := crypto.PubkeyToAddress(key.PublicKey)

	setup := func(t *testing.T) (*ledger.Ledger, *permit.Permit2) {
		l := ledger.NewLedger()
		l.SetTimestamp(1_000)
		require.NoError(t, l.Mint(token, owner, big.NewInt(10_000)))
		return l, permit.NewPermit2(permit2Address, chainID)
	}

	t.Run("permit then transfer", func(t *testing.T) {
		l, p := setup(t)
		signed, err := permit.Sign(chainID, permit2Address, newSingle(1_000, 2_000, 0, 1_000), key)
		require.NoError(t, err)

		require.NoError(t, p.Permit(l, signed))
		allowance := p.Allowance(l, owner, token, spender)
		require.Equal(t, int64(1_000), allowance.Amount.Int64())
		require.Equal(t, uint64(2_000), allowance.Expiration)
		require.Equal(t, uint64(1), allowance.Nonce)

		require.NoError(t, p.TransferFrom(l, spender, owner, receiver, token, big.NewInt(600)))
		require.Equal(t, int64(600), l.BalanceOf(token, receiver).Int64())
		require.Equal(t, int64(400), p.Allowance(l, owner, token, spender).Amount.Int64())

		err = p.TransferFrom(l, spender, owner, receiver, token, big.NewInt(401))
		require.ErrorIs(t, err, permit.ErrInsufficientAllowance)
	})

	t.Run("signature is single use", func(t *testing.T) {
		l, p := setup(t)
		signed, err := permit.Sign(chainID, permit2Address, newSingle(1_000, 2_000, 0, 1_000), key)
		require.NoError(t, err)

		require.NoError(t, p.Permit(l, signed))
		require.ErrorIs(t, p.Permit(l, signed), permit.ErrInvalidNonce)
	})

	t.Run("expired signature", func(t *testing.T) {
		l, p := setup(t)
		signed, err := permit.Sign(chainID, permit2Address, newSingle(1_000, 2_000, 0, 999), key)
		require.NoError(t, err)

		require.ErrorIs(t, p.Permit(l, signed), permit.ErrSignatureExpired)
	})

	t.Run("wrong owner", func(t *testing.T) {
		l, p := setup(t)
		signed, err := permit.Sign(chainID, permit2Address, newSingle(1_000, 2_000, 0, 1_000), key)
		require.NoError(t, err)
		signed.Owner = receiver

		require.ErrorIs(t, p.Permit(l, signed), permit.ErrInvalidSigner)
	})

	t.Run("expired allowance", func(t *testing.T) {
		l, p := setup(t)
		signed, err := permit.Sign(chainID, permit2Address, newSingle(1_000, 1_500, 0, 1_000), key)
		require.NoError(t, err)
		require.NoError(t, p.Permit(l, signed))

		l.SetTimestamp(1_501)
		err = p.TransferFrom(l, spender, owner, receiver, token, big.NewInt(1))
		require.ErrorIs(t, err, permit.ErrAllowanceExpired)
	})

	t.Run("revert restores nonce", func(t *testing.T) {
		l, p := setup(t)
		signed, err := permit.Sign(chainID, permit2Address, newSingle(1_000, 2_000, 0, 1_000), key)
		require.NoError(t, err)

		snapshot := l.Snapshot()
		require.NoError(t, p.Permit(l, signed))
		l.RevertToSnapshot(snapshot)

		require.Equal(t, uint64(0), p.Allowance(l, owner, token, spender).Nonce)
		require.NoError(t, p.Permit(l, signed))
	})
}

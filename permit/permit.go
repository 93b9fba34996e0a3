package permit

import (
	"crypto/ecdsa"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"
)

const (
	domainName = "Permit2"

	signatureLength = 65
	// v is 27 or 28 on the wire
	legacyV = 27

	maxUint48 = uint64(1)<<48 - 1
)

var ErrBadPermit = errors.New("malformed permit")

var (
	maxAmount   = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 160), big.NewInt(1))
	permitTypes = apitypes.Types{
		"EIP712Domain": {
			{Name: "name", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		},
		"PermitSingle": {
			{Name: "details", Type: "PermitDetails"},
			{Name: "spender", Type: "address"},
			{Name: "sigDeadline", Type: "uint256"},
		},
		"PermitDetails": {
			{Name: "token", Type: "address"},
			{Name: "amount", Type: "uint160"},
			{Name: "expiration", Type: "uint48"},
			{Name: "nonce", Type: "uint48"},
		},
	}
)

// Details bounds what a single permit allows: at most Amount of Token until
// Expiration, usable once (Nonce).
type Details struct {
	Token      ethcommon.Address `json:"token"`
	Amount     *big.Int          `json:"amount"`
	Expiration uint64            `json:"expiration"`
	Nonce      uint64            `json:"nonce"`
}

type Single struct {
	Details     Details           `json:"details"`
	Spender     ethcommon.Address `json:"spender"`
	SigDeadline *big.Int          `json:"sig_deadline"`
}

// Signed is a permit together with the owner's signature over its typed data hash.
type Signed struct {
	Single    Single            `json:"permit"`
	Owner     ethcommon.Address `json:"owner"`
	Signature []byte            `json:"signature"`
}

func (s Single) validate() error {
	if s.Details.Amount == nil || s.Details.Amount.Sign() < 0 || s.Details.Amount.Cmp(maxAmount) > 0 {
		return errors.Wrapf(ErrBadPermit, "amount %v out of range", s.Details.Amount)
	}
	if s.Details.Expiration > maxUint48 {
		return errors.Wrapf(ErrBadPermit, "expiration %d out of range", s.Details.Expiration)
	}
	if s.Details.Nonce > maxUint48 {
		return errors.Wrapf(ErrBadPermit, "nonce %d out of range", s.Details.Nonce)
	}
	if s.SigDeadline == nil || s.SigDeadline.Sign() < 0 {
		return errors.Wrapf(ErrBadPermit, "signature deadline %v out of range", s.SigDeadline)
	}
	return nil
}

// TypedData returns the EIP-712 representation of a permit for the Permit2
// contract at verifyingContract on chainID.
func TypedData(chainID *big.Int, verifyingContract ethcommon.Address, single Single) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       permitTypes,
		PrimaryType: "PermitSingle",
		Domain: apitypes.TypedDataDomain{
			Name:              domainName,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(chainID)),
			VerifyingContract: verifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"details": map[string]interface{}{
				"token":      single.Details.Token.Hex(),
				"amount":     (*math.HexOrDecimal256)(new(big.Int).Set(single.Details.Amount)),
				"expiration": math.NewHexOrDecimal256(int64(single.Details.Expiration)),
				"nonce":      math.NewHexOrDecimal256(int64(single.Details.Nonce)),
			},
			"spender":     single.Spender.Hex(),
			"sigDeadline": (*math.HexOrDecimal256)(new(big.Int).Set(single.SigDeadline)),
		},
	}
}

func Hash(chainID *big.Int, verifyingContract ethcommon.Address, single Single) (ethcommon.Hash, error) {
	if err := single.validate(); err != nil {
		return ethcommon.Hash{}, err
	}

	hash, _, err := apitypes.TypedDataAndHash(TypedData(chainID, verifyingContract, single))
	if err != nil {
		return ethcommon.Hash{}, errors.Wrap(err, "failed to hash permit typed data")
	}

	return ethcommon.BytesToHash(hash), nil
}

func Sign(chainID *big.Int, verifyingContract ethcommon.Address, single Single, key *ecdsa.PrivateKey) (*Signed, error) {
	hash, err := Hash(chainID, verifyingContract, single)
	if err != nil {
		return nil, err
	}

	signature, err := crypto.Sign(hash.Bytes(), key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign permit")
	}
	signature[crypto.RecoveryIDOffset] += legacyV

	return &Signed{
		Single:    single,
		Owner:     crypto.PubkeyToAddress(key.PublicKey),
		Signature: signature,
	}, nil
}

// Recover returns the address that signed the permit.
func Recover(chainID *big.Int, verifyingContract ethcommon.Address, single Single, signature []byte) (ethcommon.Address, error) {
	if len(signature) != signatureLength {
		return ethcommon.Address{}, errors.Wrapf(ErrBadPermit, "signature length %d", len(signature))
	}

	hash, err := Hash(chainID, verifyingContract, single)
	if err != nil {
		return ethcommon.Address{}, err
	}

	sig := make([]byte, signatureLength)
	copy(sig, signature)
	if sig[crypto.RecoveryIDOffset] >= legacyV {
		sig[crypto.RecoveryIDOffset] -= legacyV
	}

	pubKey, err := crypto.SigToPub(hash.Bytes(), sig)
	if err != nil {
		return ethcommon.Address{}, errors.Wrap(err, "failed to recover permit signer")
	}

	return crypto.PubkeyToAddress(*pubKey), nil
}

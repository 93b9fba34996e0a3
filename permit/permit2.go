package permit

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gjermundgaraba/libzaap/ledger"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

const (
	expirationOffset = 160
	nonceOffset      = 208
)

var (
	ErrSignatureExpired      = errors.New("permit signature expired")
	ErrInvalidNonce          = errors.New("invalid permit nonce")
	ErrInvalidSigner         = errors.New("invalid permit signer")
	ErrAllowanceExpired      = errors.New("allowance expired")
	ErrInsufficientAllowance = errors.New("insufficient allowance")

	mask160 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 160), uint256.NewInt(1))
	mask48  = uint256.NewInt(maxUint48)
)

// Allowance is the unpacked content of one (owner, token, spender) slot.
type Allowance struct {
	Amount     *big.Int
	Expiration uint64
	Nonce      uint64
}

type PermitEvent struct {
	Owner      ethcommon.Address
	Token      ethcommon.Address
	Spender    ethcommon.Address
	Amount     *big.Int
	Expiration uint64
	Nonce      uint64
}

// Permit2 is a signature based allowance contract living on a ledger. An
// allowance is granted by redeeming a signed permit and is consumed by
// TransferFrom.
type Permit2 struct {
	address ethcommon.Address
	chainID *big.Int
}

func NewPermit2(address ethcommon.Address, chainID *big.Int) *Permit2 {
	return &Permit2{
		address: address,
		chainID: new(big.Int).Set(chainID),
	}
}

func (p *Permit2) Address() ethcommon.Address {
	return p.address
}

func (p *Permit2) ChainID() *big.Int {
	return new(big.Int).Set(p.chainID)
}

func (p *Permit2) Allowance(st ledger.State, owner, token, spender ethcommon.Address) Allowance {
	return unpackAllowance(st.GetState(p.address, allowanceKey(owner, token, spender)))
}

// Permit verifies the signed permit and stores the allowance it grants. The
// stored nonce is bumped so the same signature can never be redeemed twice.
func (p *Permit2) Permit(st ledger.State, signed *Signed) error {
	single := signed.Single
	if err := single.validate(); err != nil {
		return err
	}
	if new(big.Int).SetUint64(st.Timestamp()).Cmp(single.SigDeadline) > 0 {
		return errors.Wrapf(ErrSignatureExpired, "deadline %s", single.SigDeadline)
	}

	key := allowanceKey(signed.Owner, single.Details.Token, single.Spender)
	current := unpackAllowance(st.GetState(p.address, key))
	if current.Nonce != single.Details.Nonce {
		return errors.Wrapf(ErrInvalidNonce, "expected %d, got %d", current.Nonce, single.Details.Nonce)
	}

	signer, err := Recover(p.chainID, p.address, single, signed.Signature)
	if err != nil {
		return errors.Wrap(ErrInvalidSigner, err.Error())
	}
	if signer != signed.Owner {
		return errors.Wrapf(ErrInvalidSigner, "recovered %s, expected %s", signer, signed.Owner)
	}

	expiration := single.Details.Expiration
	if expiration == 0 {
		expiration = st.Timestamp()
	}
	st.SetState(p.address, key, packAllowance(Allowance{
		Amount:     single.Details.Amount,
		Expiration: expiration,
		Nonce:      current.Nonce + 1,
	}))
	st.AddLog(ledger.Log{
		Address: p.address,
		Name:    "Permit",
		Data: PermitEvent{
			Owner:      signed.Owner,
			Token:      single.Details.Token,
			Spender:    single.Spender,
			Amount:     new(big.Int).Set(single.Details.Amount),
			Expiration: expiration,
			Nonce:      single.Details.Nonce,
		},
	})

	return nil
}

// TransferFrom moves amount of token from owner to to on behalf of spender,
// spending the allowance granted by an earlier permit.
func (p *Permit2) TransferFrom(st ledger.State, spender, owner, to ethcommon.Address, token ethcommon.Address, amount *big.Int) error {
	key := allowanceKey(owner, token, spender)
	allowance := unpackAllowance(st.GetState(p.address, key))
	if st.Timestamp() > allowance.Expiration {
		return errors.Wrapf(ErrAllowanceExpired, "expired at %d", allowance.Expiration)
	}

	if allowance.Amount.Cmp(maxAmount) != 0 {
		if allowance.Amount.Cmp(amount) < 0 {
			return errors.Wrapf(ErrInsufficientAllowance, "allowance %s < %s", allowance.Amount, amount)
		}
		allowance.Amount.Sub(allowance.Amount, amount)
		st.SetState(p.address, key, packAllowance(allowance))
	}

	if err := st.Transfer(token, owner, to, amount); err != nil {
		return errors.Wrap(err, "failed to transfer permitted amount")
	}

	return nil
}

func allowanceKey(owner, token, spender ethcommon.Address) ethcommon.Hash {
	return crypto.Keccak256Hash(owner.Bytes(), token.Bytes(), spender.Bytes())
}

// packAllowance lays the allowance out as amount | expiration << 160 | nonce << 208.
func packAllowance(allowance Allowance) ethcommon.Hash {
	word := uint256.MustFromBig(allowance.Amount)
	word.Or(word, new(uint256.Int).Lsh(uint256.NewInt(allowance.Expiration), expirationOffset))
	word.Or(word, new(uint256.Int).Lsh(uint256.NewInt(allowance.Nonce), nonceOffset))
	return word.Bytes32()
}

func unpackAllowance(slot ethcommon.Hash) Allowance {
	word := new(uint256.Int).SetBytes32(slot.Bytes())

	amount := new(uint256.Int).And(word, mask160)
	expiration := new(uint256.Int).Rsh(word, expirationOffset)
	expiration.And(expiration, mask48)
	nonce := new(uint256.Int).Rsh(word, nonceOffset)
	nonce.And(nonce, mask48)

	return Allowance{
		Amount:     amount.ToBig(),
		Expiration: expiration.Uint64(),
		Nonce:      nonce.Uint64(),
	}
}

package ledger

import (
	"encoding/binary"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Permit is a signature-based allowance grant: the owner signs over the
// spender, amount, nonce and deadline instead of sending a separate
// approval call.
type Permit struct {
	Amount    decimal.Decimal
	Nonce     uint64
	Deadline  time.Time
	Signature []byte // 65-byte [R || S || V] ECDSA signature
}

// PermitDigest is the message the owner signs.
func PermitDigest(owner, spender common.Address, amount decimal.Decimal, nonce uint64, deadline time.Time) common.Hash {
	var nonceBuf, deadlineBuf [8]byte
	binary.BigEndian.PutUint64(nonceBuf[:], nonce)
	binary.BigEndian.PutUint64(deadlineBuf[:], uint64(deadline.Unix()))

	return crypto.Keccak256Hash(
		owner.Bytes(),
		spender.Bytes(),
		[]byte(amount.String()),
		nonceBuf[:],
		deadlineBuf[:],
	)
}

// recoverPermitSigner recovers the address that signed the permit for
// the given owner and spender.
func recoverPermitSigner(owner, spender common.Address, p Permit) (common.Address, error) {
	if len(p.Signature) != crypto.SignatureLength {
		return common.Address{}, errors.Errorf("permit signature must be %d bytes", crypto.SignatureLength)
	}

	sig := make([]byte, crypto.SignatureLength)
	copy(sig, p.Signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	digest := PermitDigest(owner, spender, p.Amount, p.Nonce, p.Deadline)
	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "recover permit signer")
	}
	return crypto.PubkeyToAddress(*pub), nil
}

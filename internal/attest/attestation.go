// Package attest holds the attestation and claim data model shared by the
// providers, the verifier and the circuit programs, together with the
// canonical message layout that attestation signatures cover.
package attest

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// SignatureLength is the size of a compact (EIP-2098) attestation signature.
	SignatureLength = 64

	// MessageLength is the size of the canonical attestation message.
	MessageLength = len(MessageDomain) + common.AddressLength + common.HashLength + 3*8
)

// MessageDomain separates attestation digests from any other keccak digest
// a provider key might sign.
const MessageDomain = "zkredit/attestation/v1"

// Attestation is a provider's signed statement that Subject holds Quantity
// of ResourceID until Expiry. It is never persisted by the proof run.
type Attestation struct {
	Subject    common.Address
	ResourceID common.Hash
	Quantity   uint64
	Expiry     uint64 // unix seconds
	Signature  [SignatureLength]byte
}

// Claim is the public statement a proof asserts.
type Claim struct {
	Subject            common.Address
	ResourceID         common.Hash
	DeclaredThreshold  uint64
	DestinationContext uint64 // target chain id
}

// Commitment is the 32-byte nullifier derived from a claim.
type Commitment = common.Hash

// Message returns the canonical byte string signed for an attestation:
// domain || subject || resource || quantity || expiry || destination,
// integers big-endian.
func Message(subject common.Address, resourceID common.Hash, quantity, expiry, destination uint64) []byte {
	buf := make([]byte, 0, MessageLength)
	buf = append(buf, MessageDomain...)
	buf = append(buf, subject.Bytes()...)
	buf = append(buf, resourceID.Bytes()...)
	buf = binary.BigEndian.AppendUint64(buf, quantity)
	buf = binary.BigEndian.AppendUint64(buf, expiry)
	buf = binary.BigEndian.AppendUint64(buf, destination)
	return buf
}

// Digest is keccak256 of Message.
func Digest(subject common.Address, resourceID common.Hash, quantity, expiry, destination uint64) common.Hash {
	return crypto.Keccak256Hash(Message(subject, resourceID, quantity, expiry, destination))
}

// Digest returns the digest the attestation signature must cover when the
// attestation is used towards destination.
func (a Attestation) Digest(destination uint64) common.Hash {
	return Digest(a.Subject, a.ResourceID, a.Quantity, a.Expiry, destination)
}

// SignatureFromBytes copies a 64-byte signature into the fixed-size form.
func SignatureFromBytes(b []byte) ([SignatureLength]byte, error) {
	var sig [SignatureLength]byte
	if len(b) != SignatureLength {
		return sig, fmt.Errorf("attestation signature must be %d bytes, got %d", SignatureLength, len(b))
	}
	copy(sig[:], b)
	return sig, nil
}

func (c Claim) String() string {
	return fmt.Sprintf("claim{subject=%s resource=%s threshold=%d destination=%d}",
		c.Subject.Hex(), c.ResourceID.Hex(), c.DeclaredThreshold, c.DestinationContext)
}

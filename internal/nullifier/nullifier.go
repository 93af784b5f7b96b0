// Package nullifier derives the anti-replay commitment bound to a claim.
//
// The commitment is keccak256 over a domain tag and the canonical
// concatenation of subject, resource, declared threshold and destination.
// Registries that consume it reject a commitment they have seen before; this
// package only derives it.
package nullifier

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mikelxc/zkredit/internal/attest"
)

// Domain prefixes every preimage.
const Domain = "zkredit/nullifier/v1"

// PreimageLength is the size of the canonical preimage.
const PreimageLength = len(Domain) + common.AddressLength + common.HashLength + 8 + 8

// Preimage returns domain || subject || resource || threshold || destination.
func Preimage(subject common.Address, resourceID common.Hash, threshold, destination uint64) []byte {
	buf := make([]byte, 0, PreimageLength)
	buf = append(buf, Domain...)
	buf = append(buf, subject.Bytes()...)
	buf = append(buf, resourceID.Bytes()...)
	buf = binary.BigEndian.AppendUint64(buf, threshold)
	buf = binary.BigEndian.AppendUint64(buf, destination)
	return buf
}

// Derive returns the commitment for the four binding fields.
func Derive(subject common.Address, resourceID common.Hash, threshold, destination uint64) attest.Commitment {
	return crypto.Keccak256Hash(Preimage(subject, resourceID, threshold, destination))
}

// ForClaim derives the commitment of c.
func ForClaim(c attest.Claim) attest.Commitment {
	return Derive(c.Subject, c.ResourceID, c.DeclaredThreshold, c.DestinationContext)
}

package zk

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark/frontend"
	"github.com/ethereum/go-ethereum/common"

	"github.com/mikelxc/zkredit/internal/attest"
	"github.com/mikelxc/zkredit/internal/nullifier"
)

var ErrClaimMismatch = errors.New("attestation does not cover claim")

// Statement is the public side of a proof: the claim, the variant's source
// chain (asset claims only), the expected signer and the last second the
// proof may be accepted at.
type Statement struct {
	Claim         attest.Claim
	SourceChainID uint64
	Issuer        common.Address
	ValidUntil    uint64
}

func to32FrontendVariable(b []byte) [32]frontend.Variable {
	var arr [32]frontend.Variable
	for i := 0; i < 32; i++ {
		arr[i] = 0
		if i < len(b) {
			arr[i] = b[i]
		}
	}
	return arr
}

func splitWord(x *big.Int) (hi, lo *big.Int) {
	word := make([]byte, 32)
	x.FillBytes(word)
	return new(big.Int).SetBytes(word[:16]), new(big.Int).SetBytes(word[16:])
}

func signatureWitness(compact [attest.SignatureLength]byte) SignatureWitness {
	r, s, v := attest.Components(compact)
	rHi, rLo := splitWord(r)
	sHi, sLo := splitWord(s)
	return SignatureWitness{R_Hi: rHi, R_Lo: rLo, S_Hi: sHi, S_Lo: sLo, V: int64(v)}
}

// NewAssignment builds the full witness proving st from att.
func NewAssignment(st Statement, att attest.Attestation) (*AttestationCircuit, error) {
	if att.Subject != st.Claim.Subject || att.ResourceID != st.Claim.ResourceID {
		return nil, fmt.Errorf("%w: %s", ErrClaimMismatch, st.Claim)
	}
	a := PublicAssignment(st)
	a.Quantity = att.Quantity
	a.Expiry = att.Expiry
	a.Signature = signatureWitness(att.Signature)
	return a, nil
}

// PublicAssignment fills only the public inputs, for verification.
func PublicAssignment(st Statement) *AttestationCircuit {
	null := nullifier.ForClaim(st.Claim)
	return &AttestationCircuit{
		Subject:       st.Claim.Subject.Big(),
		ResourceID:    to32FrontendVariable(st.Claim.ResourceID.Bytes()),
		Threshold:     st.Claim.DeclaredThreshold,
		Destination:   st.Claim.DestinationContext,
		SourceChainID: st.SourceChainID,
		ValidUntil:    st.ValidUntil,
		Issuer:        st.Issuer.Big(),
		Nullifier:     to32FrontendVariable(null.Bytes()),
		Quantity:      0,
		Expiry:        0,
		Signature:     SignatureWitness{R_Hi: 0, R_Lo: 0, S_Hi: 0, S_Lo: 0, V: 0},
	}
}

// Package verifier checks a provider attestation against a claim.
package verifier

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mikelxc/zkredit/internal/attest"
)

var (
	ErrInsufficientQuantity = errors.New("attested quantity below declared threshold")
	ErrExpired              = errors.New("attestation expired")
	ErrSubjectMismatch      = errors.New("attestation does not match claim")
	ErrInvalidSignature     = errors.New("invalid attestation signature")
	ErrUntrustedIssuer      = errors.New("attestation signed by untrusted issuer")
)

// KeyRing is the set of issuer addresses whose attestations are accepted.
type KeyRing map[common.Address]struct{}

// NewKeyRing builds a KeyRing from issuers.
func NewKeyRing(issuers ...common.Address) KeyRing {
	kr := make(KeyRing, len(issuers))
	for _, a := range issuers {
		kr[a] = struct{}{}
	}
	return kr
}

func (k KeyRing) Contains(a common.Address) bool {
	_, ok := k[a]
	return ok
}

// Verifier is stateless apart from its trusted keys and clock. Now returns
// the verification time in unix seconds; a nil Now uses the wall clock.
type Verifier struct {
	Trusted KeyRing
	Now     func() uint64
}

// New returns a Verifier trusting issuers.
func New(now func() uint64, issuers ...common.Address) *Verifier {
	return &Verifier{Trusted: NewKeyRing(issuers...), Now: now}
}

// FixedClock returns a clock that always reports ts.
func FixedClock(ts uint64) func() uint64 {
	return func() uint64 { return ts }
}

// Time is the verification time used by Verify.
func (v *Verifier) Time() uint64 {
	if v.Now == nil {
		return uint64(time.Now().Unix())
	}
	return v.Now()
}

// CheckThreshold enforces quantity >= threshold.
func CheckThreshold(quantity, threshold uint64) error {
	if quantity < threshold {
		return ErrInsufficientQuantity
	}
	return nil
}

// Verify returns nil when att backs claim: the quantity meets the declared
// threshold, the attestation has not expired, it names the same subject and
// resource, and its signature over
// {subject, resource, quantity, expiry, destination} recovers to a trusted
// issuer.
func (v *Verifier) Verify(att attest.Attestation, claim attest.Claim) error {
	if err := CheckThreshold(att.Quantity, claim.DeclaredThreshold); err != nil {
		return err
	}
	if att.Expiry < v.Time() {
		return ErrExpired
	}
	if att.Subject != claim.Subject || att.ResourceID != claim.ResourceID {
		return ErrSubjectMismatch
	}
	signer, err := attest.Recover(att.Digest(claim.DestinationContext), att.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !v.Trusted.Contains(signer) {
		return fmt.Errorf("%w: %s", ErrUntrustedIssuer, signer.Hex())
	}
	return nil
}

// Valid reports whether Verify succeeds.
func (v *Verifier) Valid(att attest.Attestation, claim attest.Claim) bool {
	return v.Verify(att, claim) == nil
}

// Package provider connects external fact sources (exchanges, banks, ...)
// to zkredit. A provider confirms that a subject controls an external
// account, reads the quantity available on it and signs attestations the
// proof programs consume. Providers only run before a proof run, never
// during one.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mikelxc/zkredit/internal/attest"
)

// Type selects a provider implementation in the Registry.
type Type string

const (
	TypeExchange Type = "exchange"
	TypeBank     Type = "bank"
)

var (
	ErrUnsupportedProvider = errors.New("unsupported provider type")
	ErrInvalidConfig       = errors.New("invalid provider config")
	ErrOwnership           = errors.New("account ownership not verified")
	ErrInsufficientFunds   = errors.New("requested amount exceeds available quantity")
	ErrUnavailable         = errors.New("provider unavailable")
)

// QuantityResponse reports an available quantity signed by the provider.
// When Success is false only Error is meaningful.
type QuantityResponse struct {
	Success   bool   `json:"success"`
	Quantity  uint64 `json:"quantity,omitempty"`
	Expiry    uint64 `json:"expiry,omitempty"`
	Signature []byte `json:"signature,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Request asks a provider to attest Amount of ResourceID held by Subject,
// scoped to the Destination chain.
type Request struct {
	Subject     common.Address
	ResourceID  common.Hash
	Destination uint64
	Amount      uint64
	AuthData    []byte
}

// Signed is a provider's attestation signature and the expiry it covers.
type Signed struct {
	Quantity  uint64
	Expiry    uint64
	Signature [attest.SignatureLength]byte
}

// Provider is the contract every fact source implements. Implementations
// hold only immutable configuration and are safe for concurrent use.
type Provider interface {
	Type() Type
	// Issuer is the address attestation signatures recover to.
	Issuer() common.Address
	VerifyOwnership(ctx context.Context, subject common.Address, resourceID common.Hash, authData []byte) bool
	GetAvailableQuantity(ctx context.Context, subject common.Address, resourceID common.Hash, authData []byte) QuantityResponse
	// GenerateAttestation signs {subject, resource, amount, expiry,
	// destination}. It fails when ownership cannot be verified or the
	// amount exceeds what is available.
	GenerateAttestation(ctx context.Context, req Request) (Signed, error)
}

// Attest asks p for a signed attestation and assembles it for a proof run.
func Attest(ctx context.Context, p Provider, req Request) (attest.Attestation, error) {
	signed, err := p.GenerateAttestation(ctx, req)
	if err != nil {
		return attest.Attestation{}, fmt.Errorf("%s attestation: %w", p.Type(), err)
	}
	return attest.Attestation{
		Subject:    req.Subject,
		ResourceID: req.ResourceID,
		Quantity:   signed.Quantity,
		Expiry:     signed.Expiry,
		Signature:  signed.Signature,
	}, nil
}

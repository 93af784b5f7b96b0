package circuit

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/mikelxc/zkredit/internal/attest"
	"github.com/mikelxc/zkredit/internal/publicvalues"
)

// Run is what a program reads for one proof: the public claim, the private
// attestation, and the one variant-only public field.
type Run struct {
	Claim       attest.Claim
	Attestation attest.Attestation

	// SourceChainID is only read by the asset claim program.
	SourceChainID uint64
}

// Diagnostics are the per-variant abort reasons.
type Diagnostics struct {
	Insufficient string
	Expired      string
	Invalid      string
}

// Program maps a variant's inputs onto the shared verify-then-commit steps.
type Program interface {
	Variant() publicvalues.Variant
	Diagnostics() Diagnostics
	// ReadInputs reads public fields first, then private fields.
	ReadInputs(in Input) (*Run, error)
	// WriteInputs is the host-side mirror of ReadInputs.
	WriteInputs(s *Stdin, run *Run)
	Values(run *Run, nullifier attest.Commitment) publicvalues.Values
}

// Programs returns the three built-in programs keyed by variant.
func Programs() map[publicvalues.Variant]Program {
	return map[publicvalues.Variant]Program{
		publicvalues.AssetClaim:     AssetClaimProgram{},
		publicvalues.CreditLine:     CreditLineProgram{},
		publicvalues.AgentAuthority: AgentAuthorityProgram{},
	}
}

// reader threads the first read error through a sequence of reads.
type reader struct {
	in  Input
	err error
}

func (r *reader) uint64() uint64 {
	if r.err != nil {
		return 0
	}
	var v uint64
	v, r.err = r.in.ReadUint64()
	return v
}

func (r *reader) address() (a common.Address) {
	if r.err != nil {
		return a
	}
	a, r.err = r.in.ReadAddress()
	return a
}

func (r *reader) hash() (h common.Hash) {
	if r.err != nil {
		return h
	}
	h, r.err = r.in.ReadHash()
	return h
}

func (r *reader) signature() (s [attest.SignatureLength]byte) {
	if r.err != nil {
		return s
	}
	s, r.err = r.in.ReadSignature()
	return s
}

func writePrivate(s *Stdin, att attest.Attestation) {
	s.WriteUint64(att.Quantity).
		WriteUint64(att.Expiry).
		WriteSignature(att.Signature)
}

// AssetClaimProgram proves a balance of an asset on a source chain.
//
// public:  sourceChainId, assetAddress, minBalanceThreshold, userAddress, targetChainId
// private: actualBalance, expiry, balanceProof
type AssetClaimProgram struct{}

func (AssetClaimProgram) Variant() publicvalues.Variant { return publicvalues.AssetClaim }

func (AssetClaimProgram) Diagnostics() Diagnostics {
	return Diagnostics{
		Insufficient: "insufficient balance",
		Expired:      "balance proof expired",
		Invalid:      "invalid balance proof",
	}
}

func (AssetClaimProgram) ReadInputs(in Input) (*Run, error) {
	r := &reader{in: in}
	run := &Run{}
	run.SourceChainID = r.uint64()
	run.Claim.ResourceID = r.hash()
	run.Claim.DeclaredThreshold = r.uint64()
	run.Claim.Subject = r.address()
	run.Claim.DestinationContext = r.uint64()

	run.Attestation.Quantity = r.uint64()
	run.Attestation.Expiry = r.uint64()
	run.Attestation.Signature = r.signature()
	if r.err != nil {
		return nil, r.err
	}
	run.Attestation.Subject = run.Claim.Subject
	run.Attestation.ResourceID = run.Claim.ResourceID
	return run, nil
}

func (AssetClaimProgram) WriteInputs(s *Stdin, run *Run) {
	s.WriteUint64(run.SourceChainID).
		WriteHash(run.Claim.ResourceID).
		WriteUint64(run.Claim.DeclaredThreshold).
		WriteAddress(run.Claim.Subject).
		WriteUint64(run.Claim.DestinationContext)
	writePrivate(s, run.Attestation)
}

func (AssetClaimProgram) Values(run *Run, nullifier attest.Commitment) publicvalues.Values {
	return publicvalues.AssetClaimValues{
		SourceChainID:       run.SourceChainID,
		AssetAddress:        run.Claim.ResourceID,
		MinBalanceThreshold: run.Claim.DeclaredThreshold,
		UserAddress:         run.Claim.Subject,
		TargetChainID:       run.Claim.DestinationContext,
		NullifierHash:       nullifier,
	}
}

// CreditLineProgram proves an approved credit line of at least a minimum.
//
// public:  creditProvider, minCreditAmount, userAddress, targetChainId
// private: actualCreditLimit, expiry, creditApproval
type CreditLineProgram struct{}

func (CreditLineProgram) Variant() publicvalues.Variant { return publicvalues.CreditLine }

func (CreditLineProgram) Diagnostics() Diagnostics {
	return Diagnostics{
		Insufficient: "insufficient credit",
		Expired:      "credit approval expired",
		Invalid:      "invalid credit approval",
	}
}

func (CreditLineProgram) ReadInputs(in Input) (*Run, error) {
	r := &reader{in: in}
	run := &Run{}
	run.Claim.ResourceID = r.hash()
	run.Claim.DeclaredThreshold = r.uint64()
	run.Claim.Subject = r.address()
	run.Claim.DestinationContext = r.uint64()

	run.Attestation.Quantity = r.uint64()
	run.Attestation.Expiry = r.uint64()
	run.Attestation.Signature = r.signature()
	if r.err != nil {
		return nil, r.err
	}
	run.Attestation.Subject = run.Claim.Subject
	run.Attestation.ResourceID = run.Claim.ResourceID
	return run, nil
}

func (CreditLineProgram) WriteInputs(s *Stdin, run *Run) {
	s.WriteHash(run.Claim.ResourceID).
		WriteUint64(run.Claim.DeclaredThreshold).
		WriteAddress(run.Claim.Subject).
		WriteUint64(run.Claim.DestinationContext)
	writePrivate(s, run.Attestation)
}

func (CreditLineProgram) Values(run *Run, nullifier attest.Commitment) publicvalues.Values {
	return publicvalues.CreditLineValues{
		CreditProvider:  run.Claim.ResourceID,
		MinCreditAmount: run.Claim.DeclaredThreshold,
		UserAddress:     run.Claim.Subject,
		TargetChainID:   run.Claim.DestinationContext,
		NullifierHash:   nullifier,
	}
}

// AgentAuthorityProgram proves a user delegated at least a spending limit
// to an agent.
//
// public:  agentId, userAddress, maxSpendingLimit, targetChainId
// private: authorizedLimit, expirationTime, authSignature
type AgentAuthorityProgram struct{}

func (AgentAuthorityProgram) Variant() publicvalues.Variant { return publicvalues.AgentAuthority }

func (AgentAuthorityProgram) Diagnostics() Diagnostics {
	return Diagnostics{
		Insufficient: "insufficient spending limit",
		Expired:      "authorization expired",
		Invalid:      "invalid agent authorization",
	}
}

func (AgentAuthorityProgram) ReadInputs(in Input) (*Run, error) {
	r := &reader{in: in}
	run := &Run{}
	run.Claim.ResourceID = r.hash()
	run.Claim.Subject = r.address()
	run.Claim.DeclaredThreshold = r.uint64()
	run.Claim.DestinationContext = r.uint64()

	run.Attestation.Quantity = r.uint64()
	run.Attestation.Expiry = r.uint64()
	run.Attestation.Signature = r.signature()
	if r.err != nil {
		return nil, r.err
	}
	run.Attestation.Subject = run.Claim.Subject
	run.Attestation.ResourceID = run.Claim.ResourceID
	return run, nil
}

func (AgentAuthorityProgram) WriteInputs(s *Stdin, run *Run) {
	s.WriteHash(run.Claim.ResourceID).
		WriteAddress(run.Claim.Subject).
		WriteUint64(run.Claim.DeclaredThreshold).
		WriteUint64(run.Claim.DestinationContext)
	writePrivate(s, run.Attestation)
}

func (AgentAuthorityProgram) Values(run *Run, nullifier attest.Commitment) publicvalues.Values {
	return publicvalues.AgentAuthorityValues{
		AgentID:          run.Claim.ResourceID,
		UserAddress:      run.Claim.Subject,
		MaxSpendingLimit: run.Claim.DeclaredThreshold,
		TargetChainID:    run.Claim.DestinationContext,
		NullifierHash:    nullifier,
	}
}

// Package host drives proof runs from the prover side: it frames a request
// as program input, executes the program and, when keys are loaded,
// produces the Groth16 proof of the same statement.
package host

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"github.com/mikelxc/zkredit/internal/attest"
	"github.com/mikelxc/zkredit/internal/circuit"
	"github.com/mikelxc/zkredit/internal/logger"
	"github.com/mikelxc/zkredit/internal/publicvalues"
	"github.com/mikelxc/zkredit/internal/verifier"
	"github.com/mikelxc/zkredit/internal/zk"
)

// Request is one proving request.
type Request struct {
	Variant       string         `json:"variant"`
	Subject       common.Address `json:"subject"`
	ResourceID    common.Hash    `json:"resource_id"`
	Threshold     uint64         `json:"threshold"`
	Destination   uint64         `json:"destination"`
	SourceChainID uint64         `json:"source_chain_id,omitempty"`
	Attestation   Attestation    `json:"attestation"`
}

// Attestation is the private part of a Request.
type Attestation struct {
	Quantity  uint64        `json:"quantity"`
	Expiry    uint64        `json:"expiry"`
	Signature hexutil.Bytes `json:"signature"`
}

// ProofBundle is what a successful run hands to the consumer.
type ProofBundle struct {
	Variant      string          `json:"variant"`
	PublicValues hexutil.Bytes   `json:"public_values"`
	Nullifier    common.Hash     `json:"nullifier"`
	Issuer       *common.Address `json:"issuer,omitempty"`
	ValidUntil   uint64          `json:"valid_until,omitempty"`
	Proof        hexutil.Bytes   `json:"proof,omitempty"`
}

// Run converts the request into a program run.
func (r Request) Run() (*circuit.Run, error) {
	sig, err := attest.SignatureFromBytes(r.Attestation.Signature)
	if err != nil {
		return nil, err
	}
	claim := attest.Claim{
		Subject:            r.Subject,
		ResourceID:         r.ResourceID,
		DeclaredThreshold:  r.Threshold,
		DestinationContext: r.Destination,
	}
	return &circuit.Run{
		Claim: claim,
		Attestation: attest.Attestation{
			Subject:    r.Subject,
			ResourceID: r.ResourceID,
			Quantity:   r.Attestation.Quantity,
			Expiry:     r.Attestation.Expiry,
			Signature:  sig,
		},
		SourceChainID: r.SourceChainID,
	}, nil
}

// NewRequest builds a request for variant from a claim and its attestation.
func NewRequest(variant publicvalues.Variant, claim attest.Claim, att attest.Attestation, sourceChainID uint64) Request {
	return Request{
		Variant:       variant.String(),
		Subject:       claim.Subject,
		ResourceID:    claim.ResourceID,
		Threshold:     claim.DeclaredThreshold,
		Destination:   claim.DestinationContext,
		SourceChainID: sourceChainID,
		Attestation: Attestation{
			Quantity:  att.Quantity,
			Expiry:    att.Expiry,
			Signature: att.Signature[:],
		},
	}
}

// DefaultProofTTL bounds how long a Groth16 proof is accepted after it was
// produced. A proof never outlives the attestation expiry.
const DefaultProofTTL = 10 * time.Minute

type Host struct {
	verifier *verifier.Verifier
	orch     *circuit.Orchestrator
	programs map[publicvalues.Variant]circuit.Program
	prover   *zk.Prover
	proofTTL time.Duration
	metrics  *Metrics
	log      zerolog.Logger
}

// New returns a host verifying with v. metrics may be nil.
func New(v *verifier.Verifier, metrics *Metrics, log zerolog.Logger) *Host {
	return &Host{
		verifier: v,
		orch:     circuit.NewOrchestrator(v, log),
		programs: circuit.Programs(),
		proofTTL: DefaultProofTTL,
		metrics:  metrics,
		log:      logger.Component(log, "host"),
	}
}

// WithProver enables Groth16 proofs for successful runs.
func (h *Host) WithProver(p *zk.Prover) *Host {
	h.prover = p
	return h
}

// WithProofTTL sets how long produced proofs stay acceptable.
func (h *Host) WithProofTTL(ttl time.Duration) *Host {
	h.proofTTL = ttl
	return h
}

// variantLabel keeps the metrics label set closed.
func variantLabel(name string) string {
	if _, err := publicvalues.ParseVariant(name); err != nil {
		return "unknown"
	}
	return name
}

// Stdin frames req as input for its variant's program.
func (h *Host) Stdin(req Request) (circuit.Program, *circuit.Stdin, *circuit.Run, error) {
	variant, err := publicvalues.ParseVariant(req.Variant)
	if err != nil {
		return nil, nil, nil, err
	}
	p, ok := h.programs[variant]
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: %s", publicvalues.ErrUnknownVariant, req.Variant)
	}
	run, err := req.Run()
	if err != nil {
		return nil, nil, nil, err
	}
	var stdin circuit.Stdin
	p.WriteInputs(&stdin, run)
	return p, &stdin, run, nil
}

// Prove executes req. Aborted runs return the *circuit.AbortError from the
// program and no bundle.
func (h *Host) Prove(req Request) (*ProofBundle, error) {
	p, stdin, run, err := h.Stdin(req)
	if err != nil {
		h.metrics.run(variantLabel(req.Variant), OutcomeError)
		return nil, err
	}
	in, err := stdin.Reader()
	if err != nil {
		h.metrics.run(variantLabel(req.Variant), OutcomeError)
		return nil, err
	}

	variant := p.Variant().String()
	out := &circuit.Stdout{}
	receipt, err := h.orch.Execute(p, in, out)
	if err != nil {
		var abortErr *circuit.AbortError
		if errors.As(err, &abortErr) {
			h.metrics.run(variant, OutcomeAborted)
		} else {
			h.metrics.run(variant, OutcomeError)
		}
		return nil, err
	}

	bundle := &ProofBundle{
		Variant:      variant,
		PublicValues: receipt.PublicValues,
		Nullifier:    receipt.Nullifier,
	}
	if h.prover != nil {
		if err := h.groth16(bundle, run.Attestation); err != nil {
			h.metrics.run(variant, OutcomeError)
			return nil, err
		}
	}
	h.metrics.run(variant, OutcomeCommitted)
	return bundle, nil
}

func (h *Host) groth16(bundle *ProofBundle, att attest.Attestation) error {
	variant, err := publicvalues.ParseVariant(bundle.Variant)
	if err != nil {
		return err
	}
	values, err := publicvalues.Decode(variant, bundle.PublicValues)
	if err != nil {
		return err
	}
	claim := ClaimOf(values)
	issuer, err := attest.Recover(att.Digest(claim.DestinationContext), att.Signature)
	if err != nil {
		return fmt.Errorf("recover issuer: %w", err)
	}

	// the proof is valid for proofTTL, capped at the attestation expiry
	validUntil := h.verifier.Time() + uint64(h.proofTTL/time.Second)
	if validUntil > att.Expiry {
		validUntil = att.Expiry
	}
	assignment, err := zk.NewAssignment(statementOf(values, issuer, validUntil), att)
	if err != nil {
		return err
	}

	start := time.Now()
	proof, err := h.prover.Prove(assignment)
	if err != nil {
		return err
	}
	h.metrics.proved(bundle.Variant, time.Since(start).Seconds())
	h.log.Info().
		Str("variant", bundle.Variant).
		Dur("elapsed", time.Since(start)).
		Uint64("valid_until", validUntil).
		Msg("groth16 proof generated")

	bundle.Issuer = &issuer
	bundle.ValidUntil = validUntil
	bundle.Proof = proof
	return nil
}

// VerifyBundle checks the Groth16 proof in b against every field of its
// public values record. Bundles are rejected once ValidUntil has passed;
// the proof shows the attestation had not expired by then.
func (h *Host) VerifyBundle(b *ProofBundle) error {
	if h.prover == nil {
		return errors.New("no verifying key loaded")
	}
	if b.Issuer == nil || len(b.Proof) == 0 {
		return fmt.Errorf("%w: bundle carries no proof", zk.ErrProofRejected)
	}
	if now := h.verifier.Time(); b.ValidUntil < now {
		return fmt.Errorf("%w: proof valid until %d, now %d", verifier.ErrExpired, b.ValidUntil, now)
	}
	if !h.verifier.Trusted.Contains(*b.Issuer) {
		return fmt.Errorf("%w: %s", verifier.ErrUntrustedIssuer, b.Issuer.Hex())
	}
	variant, err := publicvalues.ParseVariant(b.Variant)
	if err != nil {
		return err
	}
	values, err := publicvalues.Decode(variant, b.PublicValues)
	if err != nil {
		return err
	}
	if values.Nullifier() != b.Nullifier {
		return fmt.Errorf("%w: nullifier does not match public values", zk.ErrProofRejected)
	}
	return h.prover.Verify(b.Proof, zk.PublicAssignment(statementOf(values, *b.Issuer, b.ValidUntil)))
}

func statementOf(v publicvalues.Values, issuer common.Address, validUntil uint64) zk.Statement {
	return zk.Statement{
		Claim:         ClaimOf(v),
		SourceChainID: SourceChainOf(v),
		Issuer:        issuer,
		ValidUntil:    validUntil,
	}
}

// ClaimOf recovers the claim a public values record commits to.
func ClaimOf(v publicvalues.Values) attest.Claim {
	switch v := v.(type) {
	case publicvalues.AssetClaimValues:
		return attest.Claim{Subject: v.UserAddress, ResourceID: v.AssetAddress, DeclaredThreshold: v.MinBalanceThreshold, DestinationContext: v.TargetChainID}
	case publicvalues.CreditLineValues:
		return attest.Claim{Subject: v.UserAddress, ResourceID: v.CreditProvider, DeclaredThreshold: v.MinCreditAmount, DestinationContext: v.TargetChainID}
	case publicvalues.AgentAuthorityValues:
		return attest.Claim{Subject: v.UserAddress, ResourceID: v.AgentID, DeclaredThreshold: v.MaxSpendingLimit, DestinationContext: v.TargetChainID}
	}
	return attest.Claim{}
}

// SourceChainOf is the source chain an asset claim record commits to, 0 for
// the other variants.
func SourceChainOf(v publicvalues.Values) uint64 {
	if a, ok := v.(publicvalues.AssetClaimValues); ok {
		return a.SourceChainID
	}
	return 0
}

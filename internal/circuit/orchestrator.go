// Package circuit runs the verify-then-commit proof programs.
//
// Every variant goes through the same sequence:
//
//	ReadingInputs -> Verifying -> Committing -> Encoding -> Done
//
// with Aborted reachable from any non-terminal state. A run either commits
// exactly one public values record or commits nothing.
package circuit

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/mikelxc/zkredit/internal/attest"
	"github.com/mikelxc/zkredit/internal/logger"
	"github.com/mikelxc/zkredit/internal/nullifier"
	"github.com/mikelxc/zkredit/internal/publicvalues"
	"github.com/mikelxc/zkredit/internal/verifier"
)

// Receipt describes a successful run.
type Receipt struct {
	Variant      publicvalues.Variant
	State        State
	Nullifier    attest.Commitment
	PublicValues []byte
	Transitions  []State
}

// Orchestrator executes programs. It holds no per-run state and may be
// shared, but each Execute call is a single sequential pass.
type Orchestrator struct {
	verifier *verifier.Verifier
	log      zerolog.Logger
}

func NewOrchestrator(v *verifier.Verifier, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{verifier: v, log: logger.Component(log, "orchestrator")}
}

type execution struct {
	program     Program
	state       State
	transitions []State
	log         zerolog.Logger
}

func (e *execution) enter(s State) {
	e.state = s
	e.transitions = append(e.transitions, s)
	e.log.Debug().Stringer("state", s).Msg("transition")
}

func (e *execution) abort(check Check, reason string, err error) *AbortError {
	abortErr := &AbortError{
		Variant: e.program.Variant(),
		State:   e.state,
		Check:   check,
		Reason:  reason,
		Err:     err,
	}
	e.log.Warn().
		Stringer("state", e.state).
		Str("check", string(check)).
		Str("reason", reason).
		Msg("run aborted")
	e.enter(Aborted)
	return abortErr
}

// Execute runs p against in and commits the encoded public values to out.
// The returned error is always an *AbortError.
func (o *Orchestrator) Execute(p Program, in Input, out Output) (*Receipt, error) {
	e := &execution{
		program: p,
		log:     o.log.With().Stringer("variant", p.Variant()).Logger(),
	}
	diag := p.Diagnostics()

	// --- 1. Read public then private inputs ---
	e.enter(ReadingInputs)
	run, err := p.ReadInputs(in)
	if err != nil {
		return nil, e.abort(CheckInput, "malformed input", err)
	}

	// --- 2. Threshold check, then attestation verification ---
	e.enter(Verifying)
	if err := verifier.CheckThreshold(run.Attestation.Quantity, run.Claim.DeclaredThreshold); err != nil {
		return nil, e.abort(CheckThreshold, diag.Insufficient, err)
	}
	if err := o.verifier.Verify(run.Attestation, run.Claim); err != nil {
		if errors.Is(err, verifier.ErrExpired) {
			return nil, e.abort(CheckExpiry, diag.Expired, err)
		}
		return nil, e.abort(CheckSignature, diag.Invalid, err)
	}

	// --- 3. Nullifier over the claim's binding fields ---
	e.enter(Committing)
	commitment := nullifier.ForClaim(run.Claim)

	// --- 4. Encode and commit ---
	e.enter(Encoding)
	encoded, err := publicvalues.Encode(p.Values(run, commitment))
	if err != nil {
		return nil, e.abort(CheckEncoding, "public values encoding failed", err)
	}
	if err := out.Commit(encoded); err != nil {
		return nil, e.abort(CheckEncoding, "commit failed", err)
	}

	e.enter(Done)
	e.log.Info().Str("nullifier", commitment.Hex()).Msg("public values committed")

	return &Receipt{
		Variant:      p.Variant(),
		State:        Done,
		Nullifier:    commitment,
		PublicValues: encoded,
		Transitions:  e.transitions,
	}, nil
}

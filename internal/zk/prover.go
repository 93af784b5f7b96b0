package zk

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/rs/zerolog"
)

const (
	ProvingKeyFile   = "attestation.pk"
	VerifyingKeyFile = "attestation.vk"
)

var ErrProofRejected = errors.New("proof rejected")

// Prover holds a compiled AttestationCircuit and its Groth16 keys.
type Prover struct {
	cs  constraint.ConstraintSystem
	pk  groth16.ProvingKey
	vk  groth16.VerifyingKey
	log zerolog.Logger
}

// Compile builds the R1CS of AttestationCircuit.
func Compile() (constraint.ConstraintSystem, error) {
	var circuit AttestationCircuit
	cs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &circuit)
	if err != nil {
		return nil, fmt.Errorf("compile circuit: %w", err)
	}
	return cs, nil
}

// Setup compiles the circuit and runs a fresh (single-party) Groth16 setup.
func Setup(log zerolog.Logger) (*Prover, error) {
	start := time.Now()
	cs, err := Compile()
	if err != nil {
		return nil, err
	}
	pk, vk, err := groth16.Setup(cs)
	if err != nil {
		return nil, fmt.Errorf("groth16 setup: %w", err)
	}
	log.Info().
		Int("constraints", cs.GetNbConstraints()).
		Dur("elapsed", time.Since(start)).
		Msg("circuit setup done")
	return &Prover{cs: cs, pk: pk, vk: vk, log: log}, nil
}

// Load compiles the circuit and reads the keys written by Save from dir.
func Load(dir string, log zerolog.Logger) (*Prover, error) {
	cs, err := Compile()
	if err != nil {
		return nil, err
	}
	p := &Prover{cs: cs, pk: groth16.NewProvingKey(ecc.BN254), vk: groth16.NewVerifyingKey(ecc.BN254), log: log}
	if err := readFile(filepath.Join(dir, ProvingKeyFile), p.pk); err != nil {
		return nil, err
	}
	if err := readFile(filepath.Join(dir, VerifyingKeyFile), p.vk); err != nil {
		return nil, err
	}
	return p, nil
}

// Save writes the proving and verifying keys into dir.
func (p *Prover) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("keys dir: %w", err)
	}
	if err := writeFile(filepath.Join(dir, ProvingKeyFile), p.pk); err != nil {
		return err
	}
	return writeFile(filepath.Join(dir, VerifyingKeyFile), p.vk)
}

func readFile(path string, r io.ReaderFrom) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := r.ReadFrom(f); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

func writeFile(path string, w io.WriterTo) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := w.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// Prove produces a serialized Groth16 proof for a full assignment.
func (p *Prover) Prove(assignment *AttestationCircuit) ([]byte, error) {
	witness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("build witness: %w", err)
	}
	start := time.Now()
	proof, err := groth16.Prove(p.cs, p.pk, witness)
	if err != nil {
		return nil, fmt.Errorf("groth16 prove: %w", err)
	}
	p.log.Debug().Dur("elapsed", time.Since(start)).Msg("proof generated")

	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("serialize proof: %w", err)
	}
	return buf.Bytes(), nil
}

// Verify checks a serialized proof against the public inputs of assignment.
func (p *Prover) Verify(proofBytes []byte, public *AttestationCircuit) error {
	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrProofRejected, err)
	}
	witness, err := frontend.NewWitness(public, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("build public witness: %w", err)
	}
	if err := groth16.Verify(proof, p.vk, witness); err != nil {
		return fmt.Errorf("%w: %v", ErrProofRejected, err)
	}
	return nil
}

// ExportSolidity writes a Solidity verifier contract for the verifying key.
func (p *Prover) ExportSolidity(w io.Writer) error {
	return p.vk.ExportSolidity(w)
}

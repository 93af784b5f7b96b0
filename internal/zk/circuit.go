// Package zk is the succinct form of the threshold-attestation contract: a
// Groth16 circuit over BN254 that accepts exactly the runs the reference
// verifier accepts, plus the prover pipeline around it.
//
// The circuit proves, without revealing quantity, expiry or signature:
//  1. Threshold <= Quantity, both 64-bit.
//  2. ValidUntil <= Expiry, so the proof stays sound until ValidUntil
//     without revealing the expiry.
//  3. The provider signature over the canonical attestation message
//     recovers to the public Issuer.
//  4. Nullifier is keccak256 of the canonical nullifier preimage.
package zk

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/evmprecompiles"
	keccak "github.com/consensys/gnark/std/hash/sha3"
	"github.com/consensys/gnark/std/math/bitslice"
	"github.com/consensys/gnark/std/math/cmp"
	"github.com/consensys/gnark/std/math/emulated"
	"github.com/consensys/gnark/std/math/uints"

	"github.com/mikelxc/zkredit/internal/attest"
	"github.com/mikelxc/zkredit/internal/nullifier"
)

// SignatureWitness holds an ECDSA signature split into 128-bit halves.
type SignatureWitness struct {
	R_Hi frontend.Variable
	R_Lo frontend.Variable
	S_Hi frontend.Variable
	S_Lo frontend.Variable
	V    frontend.Variable // recovery id (0 or 1)
}

type AttestationCircuit struct {
	// Public claim
	Subject       frontend.Variable     `gnark:",public"`
	ResourceID    [32]frontend.Variable `gnark:",public"`
	Threshold     frontend.Variable     `gnark:",public"`
	Destination   frontend.Variable     `gnark:",public"`
	SourceChainID frontend.Variable     `gnark:",public"` // asset claims only, 0 otherwise
	ValidUntil    frontend.Variable     `gnark:",public"`
	Issuer        frontend.Variable     `gnark:",public"`
	Nullifier     [32]frontend.Variable `gnark:",public"`

	// Attestation witness
	Quantity  frontend.Variable
	Expiry    frontend.Variable
	Signature SignatureWitness
}

// bytesBE decomposes v into n big-endian bytes. The decomposition also
// range-checks v to 8n bits.
func bytesBE(api frontend.API, uapi *uints.BinaryField[uints.U32], v frontend.Variable, n int) []uints.U8 {
	bits := api.ToBinary(v, 8*n)
	out := make([]uints.U8, n)
	for i := 0; i < n; i++ {
		out[i] = uapi.ByteValueOf(api.FromBinary(bits[(n-1-i)*8 : (n-i)*8]...))
	}
	return out
}

func byteVars(uapi *uints.BinaryField[uints.U32], vs [32]frontend.Variable) []uints.U8 {
	out := make([]uints.U8, len(vs))
	for i, v := range vs {
		out[i] = uapi.ByteValueOf(v)
	}
	return out
}

func (c *AttestationCircuit) Define(api frontend.API) error {
	uapi, err := uints.New[uints.U32](api)
	if err != nil {
		return err
	}
	frField, err := emulated.NewField[emulated.Secp256k1Fr](api)
	if err != nil {
		return err
	}
	fpField, err := emulated.NewField[emulated.Secp256k1Fp](api)
	if err != nil {
		return err
	}

	subject := bytesBE(api, uapi, c.Subject, 20)
	resource := byteVars(uapi, c.ResourceID)
	quantity := bytesBE(api, uapi, c.Quantity, 8)
	expiry := bytesBE(api, uapi, c.Expiry, 8)
	threshold := bytesBE(api, uapi, c.Threshold, 8)
	destination := bytesBE(api, uapi, c.Destination, 8)
	api.ToBinary(c.ValidUntil, 64)
	api.ToBinary(c.SourceChainID, 64)

	// --- 1. threshold and expiry ---
	api.AssertIsEqual(cmp.IsLessOrEqual(api, c.Threshold, c.Quantity), 1)
	api.AssertIsEqual(cmp.IsLessOrEqual(api, c.ValidUntil, c.Expiry), 1)

	// --- 2. attestation digest ---
	hMsg, err := keccak.NewLegacyKeccak256(api)
	if err != nil {
		return err
	}
	hMsg.Write(uints.NewU8Array([]byte(attest.MessageDomain)))
	hMsg.Write(subject)
	hMsg.Write(resource)
	hMsg.Write(quantity)
	hMsg.Write(expiry)
	hMsg.Write(destination)
	msgHash := hMsg.Sum()

	// --- 3. issuer signature ---
	digestBits := make([]frontend.Variable, 256)
	for i := 0; i < 32; i++ {
		bits := api.ToBinary(msgHash[31-i].Val, 8)
		copy(digestBits[i*8:], bits)
	}
	msgEmu := frField.FromBits(digestBits...)

	sig := c.Signature
	rLimbs := make([]frontend.Variable, 4)
	rLimbs[2], rLimbs[3] = bitslice.Partition(api, sig.R_Hi, 64, bitslice.WithNbDigits(128))
	rLimbs[0], rLimbs[1] = bitslice.Partition(api, sig.R_Lo, 64, bitslice.WithNbDigits(128))
	rEmu := frField.NewElement(rLimbs)
	sLimbs := make([]frontend.Variable, 4)
	sLimbs[2], sLimbs[3] = bitslice.Partition(api, sig.S_Hi, 64, bitslice.WithNbDigits(128))
	sLimbs[0], sLimbs[1] = bitslice.Partition(api, sig.S_Lo, 64, bitslice.WithNbDigits(128))
	sEmu := frField.NewElement(sLimbs)
	api.AssertIsBoolean(sig.V)

	pk := evmprecompiles.ECRecover(api, *msgEmu, api.Add(sig.V, 27), *rEmu, *sEmu, 1, 0)

	pkBytes := make([]uints.U8, 64)
	pxBits := fpField.ToBits(&pk.X)
	pyBits := fpField.ToBits(&pk.Y)
	for j := 0; j < 32; j++ {
		pkBytes[j] = uapi.ByteValueOf(api.FromBinary(pxBits[(31-j)*8 : (32-j)*8]...))
		pkBytes[32+j] = uapi.ByteValueOf(api.FromBinary(pyBits[(31-j)*8 : (32-j)*8]...))
	}
	pkHasher, err := keccak.NewLegacyKeccak256(api)
	if err != nil {
		return err
	}
	pkHasher.Write(pkBytes)
	pkHash := pkHasher.Sum()
	var recovered frontend.Variable = 0
	for j := 0; j < 20; j++ {
		recovered = api.Add(api.Mul(recovered, 256), pkHash[12+j].Val)
	}
	api.AssertIsEqual(recovered, c.Issuer)

	// --- 4. nullifier ---
	hNull, err := keccak.NewLegacyKeccak256(api)
	if err != nil {
		return err
	}
	hNull.Write(uints.NewU8Array([]byte(nullifier.Domain)))
	hNull.Write(subject)
	hNull.Write(resource)
	hNull.Write(threshold)
	hNull.Write(destination)
	nullHash := hNull.Sum()
	for i := 0; i < 32; i++ {
		api.AssertIsEqual(nullHash[i].Val, c.Nullifier[i])
	}

	return nil
}

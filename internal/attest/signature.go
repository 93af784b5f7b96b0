package attest

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrMalformedSignature = errors.New("malformed attestation signature")

	secp256k1N     = crypto.S256().Params().N
	secp256k1HalfN = new(big.Int).Div(secp256k1N, big.NewInt(2))
)

// Sign signs digest with key and returns the 64-byte compact signature.
// S is normalised to the lower half of the curve order.
func Sign(key *ecdsa.PrivateKey, digest common.Hash) ([SignatureLength]byte, error) {
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return [SignatureLength]byte{}, fmt.Errorf("sign attestation: %w", err)
	}
	return CompactSignature(sig)
}

// CompactSignature folds a 65-byte [R || S || V] signature into the EIP-2098
// form [R || yParity<<255 | S].
func CompactSignature(sig []byte) ([SignatureLength]byte, error) {
	var out [SignatureLength]byte
	if len(sig) != crypto.SignatureLength {
		return out, fmt.Errorf("%w: want %d bytes, got %d", ErrMalformedSignature, crypto.SignatureLength, len(sig))
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	v := sig[64]
	if v > 1 {
		return out, fmt.Errorf("%w: recovery id %d", ErrMalformedSignature, v)
	}
	if s.Cmp(secp256k1HalfN) > 0 {
		s.Sub(secp256k1N, s)
		v = 1 - v
	}
	r.FillBytes(out[:32])
	s.FillBytes(out[32:])
	out[32] |= v << 7
	return out, nil
}

// ExpandSignature is the inverse of CompactSignature.
func ExpandSignature(compact [SignatureLength]byte) []byte {
	sig := make([]byte, crypto.SignatureLength)
	copy(sig, compact[:])
	sig[64] = sig[32] >> 7
	sig[32] &= 0x7f
	return sig
}

// Components splits a compact signature into r, s and the recovery id.
func Components(compact [SignatureLength]byte) (r, s *big.Int, v byte) {
	sig := ExpandSignature(compact)
	return new(big.Int).SetBytes(sig[:32]), new(big.Int).SetBytes(sig[32:64]), sig[64]
}

// Recover returns the address that produced compact over digest. High-S and
// out-of-range values are rejected.
func Recover(digest common.Hash, compact [SignatureLength]byte) (common.Address, error) {
	r, s, v := Components(compact)
	if !crypto.ValidateSignatureValues(v, r, s, true) {
		return common.Address{}, ErrMalformedSignature
	}
	pub, err := crypto.SigToPub(digest.Bytes(), ExpandSignature(compact))
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

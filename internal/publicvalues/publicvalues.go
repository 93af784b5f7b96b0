// Package publicvalues encodes the per-variant public output record in the
// Solidity ABI layout the on-chain verifier decodes. Field order and widths
// are a fixed contract with that verifier.
package publicvalues

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Variant selects one of the three circuit programs.
type Variant uint8

const (
	AssetClaim Variant = iota + 1
	CreditLine
	AgentAuthority
)

var variantNames = map[Variant]string{
	AssetClaim:     "asset-claim",
	CreditLine:     "credit-line",
	AgentAuthority: "agent-authority",
}

func (v Variant) String() string {
	if n, ok := variantNames[v]; ok {
		return n
	}
	return fmt.Sprintf("variant(%d)", uint8(v))
}

// ParseVariant maps a variant name back to its value.
func ParseVariant(name string) (Variant, error) {
	for v, n := range variantNames {
		if n == name {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownVariant, name)
}

var (
	ErrUnknownVariant = errors.New("unknown public values variant")
	ErrMalformed      = errors.New("malformed public values")
)

// Values is implemented by the three record types.
type Values interface {
	Variant() Variant
	Nullifier() common.Hash
	args() []any
}

// AssetClaimValues mirrors (uint64 sourceChainId, bytes32 assetAddress,
// uint64 minBalanceThreshold, address userAddress, uint64 targetChainId,
// bytes32 nullifier).
type AssetClaimValues struct {
	SourceChainID       uint64         `json:"sourceChainId"`
	AssetAddress        common.Hash    `json:"assetAddress"`
	MinBalanceThreshold uint64         `json:"minBalanceThreshold"`
	UserAddress         common.Address `json:"userAddress"`
	TargetChainID       uint64         `json:"targetChainId"`
	NullifierHash       common.Hash    `json:"nullifier"`
}

// CreditLineValues mirrors (bytes32 creditProvider, uint64 minCreditAmount,
// address userAddress, uint64 targetChainId, bytes32 nullifier).
type CreditLineValues struct {
	CreditProvider  common.Hash    `json:"creditProvider"`
	MinCreditAmount uint64         `json:"minCreditAmount"`
	UserAddress     common.Address `json:"userAddress"`
	TargetChainID   uint64         `json:"targetChainId"`
	NullifierHash   common.Hash    `json:"nullifier"`
}

// AgentAuthorityValues mirrors (bytes32 agentId, address userAddress,
// uint64 maxSpendingLimit, uint64 targetChainId, bytes32 nullifier).
type AgentAuthorityValues struct {
	AgentID          common.Hash    `json:"agentId"`
	UserAddress      common.Address `json:"userAddress"`
	MaxSpendingLimit uint64         `json:"maxSpendingLimit"`
	TargetChainID    uint64         `json:"targetChainId"`
	NullifierHash    common.Hash    `json:"nullifier"`
}

func (AssetClaimValues) Variant() Variant { return AssetClaim }
func (v AssetClaimValues) Nullifier() common.Hash { return v.NullifierHash }
func (v AssetClaimValues) args() []any {
	return []any{v.SourceChainID, [32]byte(v.AssetAddress), v.MinBalanceThreshold, v.UserAddress, v.TargetChainID, [32]byte(v.NullifierHash)}
}

func (CreditLineValues) Variant() Variant { return CreditLine }
func (v CreditLineValues) Nullifier() common.Hash { return v.NullifierHash }
func (v CreditLineValues) args() []any {
	return []any{[32]byte(v.CreditProvider), v.MinCreditAmount, v.UserAddress, v.TargetChainID, [32]byte(v.NullifierHash)}
}

func (AgentAuthorityValues) Variant() Variant { return AgentAuthority }
func (v AgentAuthorityValues) Nullifier() common.Hash { return v.NullifierHash }
func (v AgentAuthorityValues) args() []any {
	return []any{[32]byte(v.AgentID), v.UserAddress, v.MaxSpendingLimit, v.TargetChainID, [32]byte(v.NullifierHash)}
}

var (
	uint64Ty  = mustType("uint64")
	bytes32Ty = mustType("bytes32")
	addressTy = mustType("address")

	layouts = map[Variant]abi.Arguments{
		AssetClaim: {
			{Name: "sourceChainId", Type: uint64Ty},
			{Name: "assetAddress", Type: bytes32Ty},
			{Name: "minBalanceThreshold", Type: uint64Ty},
			{Name: "userAddress", Type: addressTy},
			{Name: "targetChainId", Type: uint64Ty},
			{Name: "nullifier", Type: bytes32Ty},
		},
		CreditLine: {
			{Name: "creditProvider", Type: bytes32Ty},
			{Name: "minCreditAmount", Type: uint64Ty},
			{Name: "userAddress", Type: addressTy},
			{Name: "targetChainId", Type: uint64Ty},
			{Name: "nullifier", Type: bytes32Ty},
		},
		AgentAuthority: {
			{Name: "agentId", Type: bytes32Ty},
			{Name: "userAddress", Type: addressTy},
			{Name: "maxSpendingLimit", Type: uint64Ty},
			{Name: "targetChainId", Type: uint64Ty},
			{Name: "nullifier", Type: bytes32Ty},
		},
	}
)

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(fmt.Sprintf("publicvalues: abi type %s: %v", name, err))
	}
	return t
}

// Size returns the encoded length of a variant's record.
func Size(v Variant) int {
	return 32 * len(layouts[v])
}

// Encode packs v in its variant's layout. Every field is a static ABI type,
// so the output is the plain concatenation of 32-byte words.
func Encode(v Values) ([]byte, error) {
	args, ok := layouts[v.Variant()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVariant, v.Variant())
	}
	out, err := args.Pack(v.args()...)
	if err != nil {
		return nil, fmt.Errorf("encode %s public values: %w", v.Variant(), err)
	}
	return out, nil
}

// Decode is the inverse of Encode. It stands in for the on-chain decoder
// and only accepts the canonical encoding, so padding bytes in narrow words
// must be zero.
func Decode(variant Variant, data []byte) (Values, error) {
	args, ok := layouts[variant]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVariant, variant)
	}
	if len(data) != Size(variant) {
		return nil, fmt.Errorf("%w: %s record is %d bytes, got %d", ErrMalformed, variant, Size(variant), len(data))
	}
	fields, err := args.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var v Values
	switch variant {
	case AssetClaim:
		v = AssetClaimValues{
			SourceChainID:       fields[0].(uint64),
			AssetAddress:        common.Hash(fields[1].([32]byte)),
			MinBalanceThreshold: fields[2].(uint64),
			UserAddress:         fields[3].(common.Address),
			TargetChainID:       fields[4].(uint64),
			NullifierHash:       common.Hash(fields[5].([32]byte)),
		}
	case CreditLine:
		v = CreditLineValues{
			CreditProvider:  common.Hash(fields[0].([32]byte)),
			MinCreditAmount: fields[1].(uint64),
			UserAddress:     fields[2].(common.Address),
			TargetChainID:   fields[3].(uint64),
			NullifierHash:   common.Hash(fields[4].([32]byte)),
		}
	default:
		v = AgentAuthorityValues{
			AgentID:          common.Hash(fields[0].([32]byte)),
			UserAddress:      fields[1].(common.Address),
			MaxSpendingLimit: fields[2].(uint64),
			TargetChainID:    fields[3].(uint64),
			NullifierHash:    common.Hash(fields[4].([32]byte)),
		}
	}
	canonical, err := Encode(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !bytes.Equal(canonical, data) {
		return nil, fmt.Errorf("%w: %s record is not canonically encoded", ErrMalformed, variant)
	}
	return v, nil
}

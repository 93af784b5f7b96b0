package host

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikelxc/zkredit/internal/attest"
	"github.com/mikelxc/zkredit/internal/circuit"
	"github.com/mikelxc/zkredit/internal/logger"
	"github.com/mikelxc/zkredit/internal/nullifier"
	"github.com/mikelxc/zkredit/internal/publicvalues"
	"github.com/mikelxc/zkredit/internal/verifier"
	"github.com/mikelxc/zkredit/internal/zk"
)

const now = uint64(1_700_000_000)

var (
	subject  = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	resource = crypto.Keccak256Hash([]byte("credit-line"))
)

type fixture struct {
	host    *Host
	metrics *Metrics
	issuer  common.Address
	sign    func(claim attest.Claim, quantity, expiry uint64) attest.Attestation
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	m := NewMetrics(prometheus.NewRegistry())
	issuer := crypto.PubkeyToAddress(key.PublicKey)
	v := verifier.New(verifier.FixedClock(now), issuer)
	return &fixture{
		host:    New(v, m, logger.Nop()),
		metrics: m,
		issuer:  issuer,
		sign: func(claim attest.Claim, quantity, expiry uint64) attest.Attestation {
			att := attest.Attestation{Subject: claim.Subject, ResourceID: claim.ResourceID, Quantity: quantity, Expiry: expiry}
			att.Signature, err = attest.Sign(key, att.Digest(claim.DestinationContext))
			require.NoError(t, err)
			return att
		},
	}
}

// at is a host trusting the same issuer with its clock at ts.
func (f *fixture) at(ts uint64) *Host {
	h := New(verifier.New(verifier.FixedClock(ts), f.issuer), nil, logger.Nop())
	h.prover = f.host.prover
	return h
}

func (f *fixture) runs(variant, outcome string) float64 {
	return testutil.ToFloat64(f.metrics.runs.WithLabelValues(variant, outcome))
}

func TestProveCommitsPublicValues(t *testing.T) {
	f := newFixture(t)
	claim := attest.Claim{Subject: subject, ResourceID: resource, DeclaredThreshold: 500, DestinationContext: 10}
	req := NewRequest(publicvalues.CreditLine, claim, f.sign(claim, 800, now+60), 0)

	bundle, err := f.host.Prove(req)
	require.NoError(t, err)
	assert.Equal(t, "credit-line", bundle.Variant)
	assert.Equal(t, nullifier.ForClaim(claim), bundle.Nullifier)
	assert.Nil(t, bundle.Proof)

	values, err := publicvalues.Decode(publicvalues.CreditLine, bundle.PublicValues)
	require.NoError(t, err)
	assert.Equal(t, claim, ClaimOf(values))
	assert.Equal(t, 1.0, f.runs("credit-line", OutcomeCommitted))
}

func TestProveAbortCountsAndReturnsDiagnostic(t *testing.T) {
	f := newFixture(t)
	claim := attest.Claim{Subject: subject, ResourceID: resource, DeclaredThreshold: 500, DestinationContext: 10}
	req := NewRequest(publicvalues.CreditLine, claim, f.sign(claim, 400, now+60), 0)

	bundle, err := f.host.Prove(req)
	assert.Nil(t, bundle)
	var abortErr *circuit.AbortError
	require.ErrorAs(t, err, &abortErr)
	assert.Equal(t, "insufficient credit", abortErr.Reason)
	assert.Equal(t, 1.0, f.runs("credit-line", OutcomeAborted))
	assert.Equal(t, 0.0, f.runs("credit-line", OutcomeCommitted))
}

func TestProveRejectsBadRequests(t *testing.T) {
	f := newFixture(t)
	claim := attest.Claim{Subject: subject, ResourceID: resource, DeclaredThreshold: 1, DestinationContext: 1}
	good := NewRequest(publicvalues.AssetClaim, claim, f.sign(claim, 1, now), 1)

	unknown := good
	unknown.Variant = "loan"
	_, err := f.host.Prove(unknown)
	assert.ErrorIs(t, err, publicvalues.ErrUnknownVariant)
	assert.Equal(t, 1.0, f.runs("unknown", OutcomeError))
	assert.Equal(t, 0.0, f.runs("loan", OutcomeError))

	short := good
	short.Attestation.Signature = short.Attestation.Signature[:63]
	_, err = f.host.Prove(short)
	assert.Error(t, err)
	assert.Equal(t, 1.0, f.runs("asset-claim", OutcomeError))
}

func TestRequestJSON(t *testing.T) {
	f := newFixture(t)
	claim := attest.Claim{Subject: subject, ResourceID: resource, DeclaredThreshold: 7, DestinationContext: 8453}
	req := NewRequest(publicvalues.AgentAuthority, claim, f.sign(claim, 9, now+1), 0)

	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"variant":"agent-authority"`)
	assert.NotContains(t, string(data), "source_chain_id")

	var back Request
	require.NoError(t, json.Unmarshal(data, &back))
	run, err := back.Run()
	require.NoError(t, err)
	assert.Equal(t, claim, run.Claim)
	assert.Equal(t, uint64(9), run.Attestation.Quantity)
}

func TestProveWithGroth16(t *testing.T) {
	if testing.Short() {
		t.Skip("groth16 setup is slow")
	}
	f := newFixture(t)
	prover, err := zk.Setup(logger.Nop())
	require.NoError(t, err)
	f.host.WithProver(prover)

	claim := attest.Claim{Subject: subject, ResourceID: resource, DeclaredThreshold: 100, DestinationContext: 2}
	bundle, err := f.host.Prove(NewRequest(publicvalues.AssetClaim, claim, f.sign(claim, 150, now+3600), 1))
	require.NoError(t, err)
	require.NotEmpty(t, bundle.Proof)
	require.NoError(t, f.host.VerifyBundle(bundle))

	tampered := *bundle
	values, err := publicvalues.Decode(publicvalues.AssetClaim, bundle.PublicValues)
	require.NoError(t, err)
	raised := values.(publicvalues.AssetClaimValues)
	raised.MinBalanceThreshold = 140
	tampered.PublicValues, err = publicvalues.Encode(raised)
	require.NoError(t, err)
	assert.ErrorIs(t, f.host.VerifyBundle(&tampered), zk.ErrProofRejected)

	otherChain := values.(publicvalues.AssetClaimValues)
	otherChain.SourceChainID = 999
	tampered.PublicValues, err = publicvalues.Encode(otherChain)
	require.NoError(t, err)
	assert.ErrorIs(t, f.host.VerifyBundle(&tampered), zk.ErrProofRejected)

	assert.Equal(t, uint64(1), SourceChainOf(values))
	assert.Equal(t, now+uint64(DefaultProofTTL.Seconds()), bundle.ValidUntil)
	assert.NoError(t, f.at(bundle.ValidUntil).VerifyBundle(bundle))
	assert.ErrorIs(t, f.at(bundle.ValidUntil+1).VerifyBundle(bundle), verifier.ErrExpired)

	extended := *bundle
	extended.ValidUntil = now + 3600
	assert.ErrorIs(t, f.at(bundle.ValidUntil+1).VerifyBundle(&extended), zk.ErrProofRejected)

	// a short-lived attestation caps the proof lifetime
	brief, err := f.host.Prove(NewRequest(publicvalues.AssetClaim, claim, f.sign(claim, 150, now+60), 1))
	require.NoError(t, err)
	assert.Equal(t, now+60, brief.ValidUntil)
	require.NoError(t, f.host.VerifyBundle(brief))
	assert.ErrorIs(t, f.at(now+61).VerifyBundle(brief), verifier.ErrExpired)
	// expiry + 1 is still inside the default window, the circuit refuses it
	stretched := *brief
	stretched.ValidUntil = now + 61
	assert.ErrorIs(t, f.at(now+61).VerifyBundle(&stretched), zk.ErrProofRejected)
}

func TestProveWithGroth16OldClock(t *testing.T) {
	if testing.Short() {
		t.Skip("groth16 setup is slow")
	}
	f := newFixture(t)
	prover, err := zk.Setup(logger.Nop())
	require.NoError(t, err)
	f.host.WithProver(prover)

	// proved against a clock far in the past, checked at the current time
	const then = uint64(1_648_176_000)
	old := f.at(then)
	claim := attest.Claim{Subject: subject, ResourceID: resource, DeclaredThreshold: 100, DestinationContext: 2}
	bundle, err := old.Prove(NewRequest(publicvalues.AssetClaim, claim, f.sign(claim, 150, then+60), 1))
	require.NoError(t, err)
	require.NoError(t, old.VerifyBundle(bundle))
	assert.LessOrEqual(t, bundle.ValidUntil, then+60)

	assert.ErrorIs(t, f.host.VerifyBundle(bundle), verifier.ErrExpired)
}

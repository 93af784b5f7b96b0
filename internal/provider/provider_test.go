package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikelxc/zkredit/internal/attest"
)

const testKeyHex = "4c0883a69102937d6231471b5decb208b6ba1a2f5a0b1b2f6c3d7e8f9a0b1c2d"

var (
	testSubject  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testResource = crypto.Keccak256Hash([]byte("USDC"))
	fixedNow     = time.Unix(1_700_000_000, 0)
)

func accountsServer(t *testing.T, available uint64, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		if r.Header.Get("X-Request-ID") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch {
		case strings.HasPrefix(r.URL.Path, "/v1/balances/"):
			if r.Header.Get("X-API-KEY") != "ex-key" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
		case strings.HasPrefix(r.URL.Path, "/v1/credit-lines/"):
			if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") || r.Header.Get("X-Client-ID") != "client-1" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
		default:
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]uint64{"available": available})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func exchangeConfig(url string) Config {
	return Config{
		"api_key":         "ex-key",
		"api_secret":      "ex-secret",
		"base_url":        url,
		"signing_key":     "0x" + testKeyHex,
		"attestation_ttl": "5m",
	}
}

func bankConfig(url string) Config {
	return Config{
		"api_key":     "bank-api-key-0123456789abcdef0123456789",
		"client_id":   "client-1",
		"base_url":    url,
		"signing_key": testKeyHex,
	}
}

func newTestExchange(t *testing.T, available uint64) *Exchange {
	t.Helper()
	srv := accountsServer(t, available, nil)
	cfg, err := ExchangeConfigFrom(exchangeConfig(srv.URL))
	require.NoError(t, err)
	return NewExchange(cfg, WithClock(func() time.Time { return fixedNow }))
}

func TestExchangeGenerateAttestation(t *testing.T) {
	ex := newTestExchange(t, 10_000)
	auth := ExchangeAuthData("ex-secret", testSubject, testResource)

	signed, err := ex.GenerateAttestation(context.Background(), Request{
		Subject: testSubject, ResourceID: testResource, Destination: 10, Amount: 5_000, AuthData: auth,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000), signed.Quantity)
	assert.Equal(t, uint64(fixedNow.Add(5*time.Minute).Unix()), signed.Expiry)

	digest := attest.Digest(testSubject, testResource, 5_000, signed.Expiry, 10)
	issuer, err := attest.Recover(digest, signed.Signature)
	require.NoError(t, err)
	assert.Equal(t, ex.Issuer(), issuer)
	assert.Equal(t, TypeExchange, ex.Type())
}

func TestExchangeRejectsExcessAmount(t *testing.T) {
	ex := newTestExchange(t, 100)
	auth := ExchangeAuthData("ex-secret", testSubject, testResource)

	_, err := ex.GenerateAttestation(context.Background(), Request{
		Subject: testSubject, ResourceID: testResource, Amount: 101, AuthData: auth,
	})
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestExchangeOwnership(t *testing.T) {
	ex := newTestExchange(t, 100)
	ctx := context.Background()

	assert.True(t, ex.VerifyOwnership(ctx, testSubject, testResource, ExchangeAuthData("ex-secret", testSubject, testResource)))
	assert.False(t, ex.VerifyOwnership(ctx, testSubject, testResource, ExchangeAuthData("other", testSubject, testResource)))
	assert.False(t, ex.VerifyOwnership(ctx, testSubject, testResource, []byte("not-hex")))

	other := common.HexToAddress("0x2222222222222222222222222222222222222222")
	assert.False(t, ex.VerifyOwnership(ctx, other, testResource, ExchangeAuthData("ex-secret", testSubject, testResource)))

	_, err := ex.GenerateAttestation(ctx, Request{Subject: other, ResourceID: testResource, Amount: 1,
		AuthData: ExchangeAuthData("ex-secret", testSubject, testResource)})
	assert.ErrorIs(t, err, ErrOwnership)
}

func TestExchangeAvailableQuantity(t *testing.T) {
	ex := newTestExchange(t, 777)
	resp := ex.GetAvailableQuantity(context.Background(), testSubject, testResource,
		ExchangeAuthData("ex-secret", testSubject, testResource))
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, uint64(777), resp.Quantity)
	require.Len(t, resp.Signature, attest.SignatureLength)

	sig, err := attest.SignatureFromBytes(resp.Signature)
	require.NoError(t, err)
	issuer, err := attest.Recover(attest.Digest(testSubject, testResource, 777, resp.Expiry, 0), sig)
	require.NoError(t, err)
	assert.Equal(t, ex.Issuer(), issuer)

	bad := ex.GetAvailableQuantity(context.Background(), testSubject, testResource, []byte("00"))
	assert.False(t, bad.Success)
	assert.NotEmpty(t, bad.Error)
}

func TestBankGenerateAttestation(t *testing.T) {
	srv := accountsServer(t, 2_000, nil)
	cfg, err := BankConfigFrom(bankConfig(srv.URL))
	require.NoError(t, err)
	bank := NewBank(cfg, WithClock(func() time.Time { return fixedNow }))

	token, err := BankAuthToken(cfg, testSubject, testResource, fixedNow, time.Minute)
	require.NoError(t, err)
	assert.True(t, bank.VerifyOwnership(context.Background(), testSubject, testResource, token))

	signed, err := bank.GenerateAttestation(context.Background(), Request{
		Subject: testSubject, ResourceID: testResource, Destination: 1, Amount: 2_000, AuthData: token,
	})
	require.NoError(t, err)
	issuer, err := attest.Recover(attest.Digest(testSubject, testResource, 2_000, signed.Expiry, 1), signed.Signature)
	require.NoError(t, err)
	assert.Equal(t, bank.Issuer(), issuer)
}

func TestBankRejectsForeignTokens(t *testing.T) {
	srv := accountsServer(t, 2_000, nil)
	cfg, err := BankConfigFrom(bankConfig(srv.URL))
	require.NoError(t, err)
	bank := NewBank(cfg, WithClock(func() time.Time { return fixedNow }))
	ctx := context.Background()

	otherResource := crypto.Keccak256Hash([]byte("credit-line-2"))
	wrongResource, err := BankAuthToken(cfg, testSubject, otherResource, fixedNow, time.Minute)
	require.NoError(t, err)
	assert.False(t, bank.VerifyOwnership(ctx, testSubject, testResource, wrongResource))

	otherClient := cfg
	otherClient.ClientID = "client-2"
	wrongAudience, err := BankAuthToken(otherClient, testSubject, testResource, fixedNow, time.Minute)
	require.NoError(t, err)
	assert.False(t, bank.VerifyOwnership(ctx, testSubject, testResource, wrongAudience))

	otherKey := cfg
	otherKey.APIKey = "forged-api-key-0123456789abcdef01234567"
	forged, err := BankAuthToken(otherKey, testSubject, testResource, fixedNow, time.Minute)
	require.NoError(t, err)
	assert.False(t, bank.VerifyOwnership(ctx, testSubject, testResource, forged))

	expired, err := BankAuthToken(cfg, testSubject, testResource, fixedNow, -time.Minute)
	require.NoError(t, err)
	assert.False(t, bank.VerifyOwnership(ctx, testSubject, testResource, expired))
}

func TestBankTokenExpiryFollowsClock(t *testing.T) {
	srv := accountsServer(t, 2_000, nil)
	cfg, err := BankConfigFrom(bankConfig(srv.URL))
	require.NoError(t, err)
	token, err := BankAuthToken(cfg, testSubject, testResource, fixedNow, time.Minute)
	require.NoError(t, err)

	at := func(d time.Duration) *Bank {
		return NewBank(cfg, WithClock(func() time.Time { return fixedNow.Add(d) }))
	}
	ctx := context.Background()
	assert.True(t, at(30*time.Second).VerifyOwnership(ctx, testSubject, testResource, token))
	assert.False(t, at(2*time.Minute).VerifyOwnership(ctx, testSubject, testResource, token))

	_, err = at(2*time.Minute).GenerateAttestation(ctx, Request{
		Subject: testSubject, ResourceID: testResource, Amount: 1, AuthData: token,
	})
	assert.ErrorIs(t, err, ErrOwnership)
}

func TestUpstreamStatusMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "balances") {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewHTTPClient(Common{BaseURL: srv.URL, Timeout: time.Second, RateLimit: 100}, zerolog.Nop())
	_, err := client.FetchQuantity(context.Background(), "/v1/balances/x/y", nil)
	assert.ErrorIs(t, err, ErrOwnership)
	_, err = client.FetchQuantity(context.Background(), "/v1/credit-lines/x/y", nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRegistry(t *testing.T) {
	srv := accountsServer(t, 1, nil)
	reg := DefaultRegistry()

	for _, typ := range []Type{"exchange", "CEX", "cex"} {
		p, err := reg.New(typ, exchangeConfig(srv.URL))
		require.NoError(t, err, typ)
		assert.Equal(t, TypeExchange, p.Type())
	}
	p, err := reg.New(TypeBank, bankConfig(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, TypeBank, p.Type())

	_, err = reg.New("defi", Config{})
	assert.ErrorIs(t, err, ErrUnsupportedProvider)

	_, err = reg.New(TypeBank, Config{"api_key": "k", "signing_key": testKeyHex})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	assert.Equal(t, []Type{TypeBank, "cex", TypeExchange}, reg.Types())
	assert.Panics(t, func() { reg.MustNew("defi", Config{}) })
}

func TestConfigValidation(t *testing.T) {
	cases := map[string]Config{
		"missing secret": {"api_key": "k", "signing_key": testKeyHex},
		"bad key":        {"api_key": "k", "api_secret": "s", "signing_key": "zz"},
		"bad ttl":        {"api_key": "k", "api_secret": "s", "signing_key": testKeyHex, "attestation_ttl": "soon"},
		"negative ttl":   {"api_key": "k", "api_secret": "s", "signing_key": testKeyHex, "attestation_ttl": "-1m"},
		"bad url":        {"api_key": "k", "api_secret": "s", "signing_key": testKeyHex, "base_url": "not a url"},
		"bad rate":       {"api_key": "k", "api_secret": "s", "signing_key": testKeyHex, "rate_limit": "0"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ExchangeConfigFrom(c)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	cfg, err := ExchangeConfigFrom(Config{"api_key": "k", "api_secret": "s", "signing_key": testKeyHex})
	require.NoError(t, err)
	assert.Equal(t, defaultExchangeURL, cfg.BaseURL)
	assert.Equal(t, defaultTTL, cfg.TTL)
}

func TestFetchAll(t *testing.T) {
	var hits int32
	srv := accountsServer(t, 1_000, &hits)
	cfg, err := ExchangeConfigFrom(exchangeConfig(srv.URL))
	require.NoError(t, err)
	ex := NewExchange(cfg)
	auth := ExchangeAuthData("ex-secret", testSubject, testResource)

	reqs := []Request{
		{Subject: testSubject, ResourceID: testResource, Destination: 1, Amount: 500, AuthData: auth},
		{Subject: testSubject, ResourceID: testResource, Destination: 2, Amount: 5_000, AuthData: auth},
		{Subject: testSubject, ResourceID: testResource, Destination: 3, Amount: 1_000, AuthData: []byte("bad")},
	}
	results, err := FetchAll(context.Background(), ex, reqs, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)

	require.NoError(t, results[0].Err)
	assert.Equal(t, uint64(500), results[0].Attestation.Quantity)
	assert.Equal(t, testSubject, results[0].Attestation.Subject)
	assert.True(t, errors.Is(results[1].Err, ErrInsufficientFunds))
	assert.True(t, errors.Is(results[2].Err, ErrOwnership))
	// ownership is rejected before any upstream call
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestFetchAllCancelled(t *testing.T) {
	ex := newTestExchange(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := FetchAll(ctx, ex, []Request{{Subject: testSubject, ResourceID: testResource}}, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Error(t, results[0].Err)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikelxc/zkredit/internal/provider"
)

const exchangeKey = "4c0883a69102937d6231471b5decb208b6ba1a2f5a0b1b2f6c3d7e8f9a0b1c2d"

const sample = `
log:
  level: debug
  format: console
trusted_issuers:
  - "0x00000000000000000000000000000000000000aa"
providers:
  - name: binance
    type: exchange
    settings:
      api_key: ${ZKREDIT_TEST_API_KEY}
      api_secret: secret
      signing_key: ${ZKREDIT_TEST_SIGNING_KEY}
  - name: acme-bank
    type: bank
    settings:
      api_key: bank-api-key-0123456789abcdef0123456789
      client_id: client-1
      signing_key: "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadExpandsEnvFromDotenv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "zkredit.yaml", sample)
	env := writeFile(t, dir, ".env", "ZKREDIT_TEST_API_KEY=from-dotenv\nZKREDIT_TEST_SIGNING_KEY="+exchangeKey+"\n")
	t.Cleanup(func() {
		os.Unsetenv("ZKREDIT_TEST_API_KEY")
		os.Unsetenv("ZKREDIT_TEST_SIGNING_KEY")
	})

	cfg, err := Load(path, env, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, filepath.Join(dir, DefaultKeysDir), cfg.KeysDir)
	assert.Equal(t, DefaultProofTTL, cfg.ProofTTL)
	require.Len(t, cfg.Providers, 2)

	ex, ok := cfg.Provider("BINANCE")
	require.True(t, ok)
	assert.Equal(t, provider.TypeExchange, ex.Type)
	assert.Equal(t, "from-dotenv", ex.Settings["api_key"])
	assert.Equal(t, exchangeKey, ex.Settings["signing_key"])

	_, ok = cfg.Provider("kraken")
	assert.False(t, ok)
}

func TestBuildProvidersAndKeyRing(t *testing.T) {
	t.Setenv("ZKREDIT_TEST_API_KEY", "k")
	t.Setenv("ZKREDIT_TEST_SIGNING_KEY", exchangeKey)

	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	providers, err := cfg.BuildProviders(provider.DefaultRegistry())
	require.NoError(t, err)
	require.Len(t, providers, 2)

	key, err := crypto.HexToECDSA(exchangeKey)
	require.NoError(t, err)
	exchangeIssuer := crypto.PubkeyToAddress(key.PublicKey)
	assert.Equal(t, exchangeIssuer, providers["binance"].Issuer())

	ring := cfg.KeyRing(providers)
	assert.True(t, ring.Contains(exchangeIssuer))
	assert.True(t, ring.Contains(providers["acme-bank"].Issuer()))
	assert.True(t, ring.Contains(common.HexToAddress("0xaa")))
	assert.False(t, ring.Contains(common.HexToAddress("0xbb")))
}

func TestBuildProvidersUnknownType(t *testing.T) {
	cfg, err := Parse([]byte(`
providers:
  - name: chain
    type: defi
`))
	require.NoError(t, err)
	_, err = cfg.BuildProviders(provider.DefaultRegistry())
	assert.ErrorIs(t, err, provider.ErrUnsupportedProvider)
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"no name":    "providers:\n  - type: bank\n",
		"no type":    "providers:\n  - name: x\n",
		"duplicate":  "providers:\n  - {name: x, type: bank}\n  - {name: x, type: exchange}\n",
		"bad issuer": "trusted_issuers: [\"nope\"]\n",
		"not yaml":   "providers: [",
		"short ttl":  "proof_ttl: 500ms\n",
		"negative":   "proof_ttl: -1m\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestParseProofTTL(t *testing.T) {
	cfg, err := Parse([]byte("proof_ttl: 90s\n"))
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.ProofTTL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

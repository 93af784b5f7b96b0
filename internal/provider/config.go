package provider

import (
	"crypto/ecdsa"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
)

// Config is the named key/value mapping a provider is built from. It is
// decoded into a typed config once, at construction.
type Config map[string]string

const (
	defaultExchangeURL = "https://api.example.com"
	defaultBankURL     = "https://api.bank.com"
	defaultTTL         = 10 * time.Minute
	defaultTimeout     = 10 * time.Second
	defaultRateLimit   = 10.0
)

// Common settings shared by every connector.
type Common struct {
	BaseURL    string
	SigningKey *ecdsa.PrivateKey
	TTL        time.Duration
	Timeout    time.Duration
	RateLimit  float64 // requests per second
}

// ExchangeConfig configures the custodial-exchange connector.
type ExchangeConfig struct {
	Common
	APIKey    string
	APISecret string
}

// BankConfig configures the bank connector.
type BankConfig struct {
	Common
	APIKey   string
	ClientID string
}

func (c Config) required(key string) (string, error) {
	v := strings.TrimSpace(c[key])
	if v == "" {
		return "", fmt.Errorf("%w: missing %q", ErrInvalidConfig, key)
	}
	return v, nil
}

func (c Config) common(defaultURL string) (Common, error) {
	out := Common{
		BaseURL:   defaultURL,
		TTL:       defaultTTL,
		Timeout:   defaultTimeout,
		RateLimit: defaultRateLimit,
	}
	if v := strings.TrimSpace(c["base_url"]); v != "" {
		out.BaseURL = strings.TrimRight(v, "/")
	}
	if u, err := url.Parse(out.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return out, fmt.Errorf("%w: base_url %q", ErrInvalidConfig, out.BaseURL)
	}

	keyHex, err := c.required("signing_key")
	if err != nil {
		return out, err
	}
	out.SigningKey, err = crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return out, fmt.Errorf("%w: signing_key: %v", ErrInvalidConfig, err)
	}

	if v := c["attestation_ttl"]; v != "" {
		if out.TTL, err = time.ParseDuration(v); err != nil || out.TTL <= 0 {
			return out, fmt.Errorf("%w: attestation_ttl %q", ErrInvalidConfig, v)
		}
	}
	if v := c["timeout"]; v != "" {
		if out.Timeout, err = time.ParseDuration(v); err != nil || out.Timeout <= 0 {
			return out, fmt.Errorf("%w: timeout %q", ErrInvalidConfig, v)
		}
	}
	if v := c["rate_limit"]; v != "" {
		if out.RateLimit, err = strconv.ParseFloat(v, 64); err != nil || out.RateLimit <= 0 {
			return out, fmt.Errorf("%w: rate_limit %q", ErrInvalidConfig, v)
		}
	}
	return out, nil
}

// ExchangeConfigFrom decodes and validates an exchange config.
func ExchangeConfigFrom(c Config) (ExchangeConfig, error) {
	var (
		cfg ExchangeConfig
		err error
	)
	if cfg.Common, err = c.common(defaultExchangeURL); err != nil {
		return cfg, err
	}
	if cfg.APIKey, err = c.required("api_key"); err != nil {
		return cfg, err
	}
	if cfg.APISecret, err = c.required("api_secret"); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// BankConfigFrom decodes and validates a bank config.
func BankConfigFrom(c Config) (BankConfig, error) {
	var (
		cfg BankConfig
		err error
	)
	if cfg.Common, err = c.common(defaultBankURL); err != nil {
		return cfg, err
	}
	if cfg.APIKey, err = c.required("api_key"); err != nil {
		return cfg, err
	}
	if cfg.ClientID, err = c.required("client_id"); err != nil {
		return cfg, err
	}
	return cfg, nil
}

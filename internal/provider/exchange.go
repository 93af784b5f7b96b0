package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// Exchange attests balances held at a custodial exchange. Auth data is the
// hex HMAC-SHA256 of subject||resource under the account's API secret.
type Exchange struct {
	connector
	cfg ExchangeConfig
}

func NewExchange(cfg ExchangeConfig, opts ...Option) *Exchange {
	o := applyOptions(opts)
	return &Exchange{connector: newConnector(TypeExchange, cfg.Common, o), cfg: cfg}
}

func newExchange(c Config, opts ...Option) (Provider, error) {
	cfg, err := ExchangeConfigFrom(c)
	if err != nil {
		return nil, err
	}
	return NewExchange(cfg, opts...), nil
}

// ExchangeAuthData computes the auth data an account holder presents.
func ExchangeAuthData(apiSecret string, subject common.Address, resourceID common.Hash) []byte {
	mac := hmac.New(sha256.New, []byte(apiSecret))
	mac.Write(subject.Bytes())
	mac.Write(resourceID.Bytes())
	return []byte(hex.EncodeToString(mac.Sum(nil)))
}

func (e *Exchange) authorize(subject common.Address, resourceID common.Hash, authData []byte) error {
	got, err := hex.DecodeString(string(authData))
	if err != nil {
		return fmt.Errorf("auth data is not hex: %w", err)
	}
	want, _ := hex.DecodeString(string(ExchangeAuthData(e.cfg.APISecret, subject, resourceID)))
	if !hmac.Equal(got, want) {
		return errors.New("api signature mismatch")
	}
	return nil
}

func (e *Exchange) route(subject common.Address, resourceID common.Hash, authData []byte) (string, http.Header) {
	h := http.Header{}
	h.Set("X-API-KEY", e.cfg.APIKey)
	h.Set("X-API-SIGNATURE", string(authData))
	return fmt.Sprintf("/v1/balances/%s/%s", subject.Hex(), resourceID.Hex()), h
}

func (e *Exchange) VerifyOwnership(_ context.Context, subject common.Address, resourceID common.Hash, authData []byte) bool {
	return e.authorize(subject, resourceID, authData) == nil
}

func (e *Exchange) GetAvailableQuantity(ctx context.Context, subject common.Address, resourceID common.Hash, authData []byte) QuantityResponse {
	return e.quantity(ctx, e, subject, resourceID, authData)
}

func (e *Exchange) GenerateAttestation(ctx context.Context, req Request) (Signed, error) {
	return e.generate(ctx, e, req)
}

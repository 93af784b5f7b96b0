package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
)

// Bank attests approved credit lines. Auth data is an HS256 token issued
// under the API key for the configured client, naming the subject and the
// credit resource.
type Bank struct {
	connector
	cfg BankConfig
}

// BankClaims is the token body a bank customer presents.
type BankClaims struct {
	ResourceID string `json:"rid"`
	jwt.RegisteredClaims
}

func NewBank(cfg BankConfig, opts ...Option) *Bank {
	o := applyOptions(opts)
	return &Bank{connector: newConnector(TypeBank, cfg.Common, o), cfg: cfg}
}

func newBank(c Config, opts ...Option) (Provider, error) {
	cfg, err := BankConfigFrom(c)
	if err != nil {
		return nil, err
	}
	return NewBank(cfg, opts...), nil
}

// BankAuthToken issues the auth data for subject's resource, valid for ttl
// from issuedAt.
func BankAuthToken(cfg BankConfig, subject common.Address, resourceID common.Hash, issuedAt time.Time, ttl time.Duration) ([]byte, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, BankClaims{
		ResourceID: resourceID.Hex(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.Hex(),
			Audience:  jwt.ClaimStrings{cfg.ClientID},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	})
	signed, err := token.SignedString([]byte(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("sign bank token: %w", err)
	}
	return []byte(signed), nil
}

func (b *Bank) authorize(subject common.Address, resourceID common.Hash, authData []byte) error {
	claims := &BankClaims{}
	_, err := jwt.ParseWithClaims(string(authData), claims, func(*jwt.Token) (any, error) {
		return []byte(b.cfg.APIKey), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(b.cfg.ClientID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(b.now),
	)
	if err != nil {
		return err
	}
	if !strings.EqualFold(claims.Subject, subject.Hex()) {
		return errors.New("token subject does not match")
	}
	if !strings.EqualFold(claims.ResourceID, resourceID.Hex()) {
		return errors.New("token resource does not match")
	}
	return nil
}

func (b *Bank) route(subject common.Address, resourceID common.Hash, authData []byte) (string, http.Header) {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+string(authData))
	h.Set("X-Client-ID", b.cfg.ClientID)
	h.Set("X-API-KEY", b.cfg.APIKey)
	return fmt.Sprintf("/v1/credit-lines/%s/%s", subject.Hex(), resourceID.Hex()), h
}

func (b *Bank) VerifyOwnership(_ context.Context, subject common.Address, resourceID common.Hash, authData []byte) bool {
	return b.authorize(subject, resourceID, authData) == nil
}

func (b *Bank) GetAvailableQuantity(ctx context.Context, subject common.Address, resourceID common.Hash, authData []byte) QuantityResponse {
	return b.quantity(ctx, b, subject, resourceID, authData)
}

func (b *Bank) GenerateAttestation(ctx context.Context, req Request) (Signed, error) {
	return b.generate(ctx, b, req)
}

package provider

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"github.com/mikelxc/zkredit/internal/attest"
)

// account is what differs between connectors: how auth data proves control
// of an account and where its quantity is read from.
type account interface {
	authorize(subject common.Address, resourceID common.Hash, authData []byte) error
	route(subject common.Address, resourceID common.Hash, authData []byte) (string, http.Header)
}

// connector carries the signing and fetching steps every provider shares.
type connector struct {
	typ    Type
	key    *ecdsa.PrivateKey
	issuer common.Address
	ttl    time.Duration
	client AccountsClient
	now    func() time.Time
	log    zerolog.Logger
}

func newConnector(typ Type, c Common, o options) connector {
	log := o.log.With().Str("provider", string(typ)).Logger()
	client := o.client
	if client == nil {
		client = NewHTTPClient(c, log)
	}
	now := o.now
	if now == nil {
		now = time.Now
	}
	return connector{
		typ:    typ,
		key:    c.SigningKey,
		issuer: crypto.PubkeyToAddress(c.SigningKey.PublicKey),
		ttl:    c.TTL,
		client: client,
		now:    now,
		log:    log,
	}
}

func (c *connector) Type() Type { return c.typ }
func (c *connector) Issuer() common.Address { return c.issuer }

func (c *connector) expiry() uint64 {
	return uint64(c.now().Add(c.ttl).Unix())
}

func (c *connector) available(ctx context.Context, acct account, subject common.Address, resourceID common.Hash, authData []byte) (uint64, error) {
	if err := acct.authorize(subject, resourceID, authData); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrOwnership, err)
	}
	path, header := acct.route(subject, resourceID, authData)
	return c.client.FetchQuantity(ctx, path, header)
}

func (c *connector) quantity(ctx context.Context, acct account, subject common.Address, resourceID common.Hash, authData []byte) QuantityResponse {
	qty, err := c.available(ctx, acct, subject, resourceID, authData)
	if err != nil {
		return QuantityResponse{Error: err.Error()}
	}
	// a balance statement is not scoped to any destination
	expiry := c.expiry()
	sig, err := attest.Sign(c.key, attest.Digest(subject, resourceID, qty, expiry, 0))
	if err != nil {
		return QuantityResponse{Error: err.Error()}
	}
	return QuantityResponse{
		Success:   true,
		Quantity:  qty,
		Expiry:    expiry,
		Signature: sig[:],
	}
}

func (c *connector) generate(ctx context.Context, acct account, req Request) (Signed, error) {
	qty, err := c.available(ctx, acct, req.Subject, req.ResourceID, req.AuthData)
	if err != nil {
		return Signed{}, err
	}
	if req.Amount > qty {
		return Signed{}, ErrInsufficientFunds
	}
	expiry := c.expiry()
	sig, err := attest.Sign(c.key, attest.Digest(req.Subject, req.ResourceID, req.Amount, expiry, req.Destination))
	if err != nil {
		return Signed{}, err
	}
	c.log.Info().
		Str("subject", req.Subject.Hex()).
		Str("resource", req.ResourceID.Hex()).
		Uint64("destination", req.Destination).
		Msg("attestation issued")
	return Signed{Quantity: req.Amount, Expiry: expiry, Signature: sig}, nil
}

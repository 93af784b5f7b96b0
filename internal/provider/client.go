package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// AccountsClient reads the available quantity of an external account.
type AccountsClient interface {
	FetchQuantity(ctx context.Context, path string, header http.Header) (uint64, error)
}

type quantityBody struct {
	Available uint64 `json:"available"`
}

// HTTPClient is the REST transport shared by the built-in connectors. Calls
// are throttled per connector and bounded by a timeout.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

func NewHTTPClient(c Common, log zerolog.Logger) *HTTPClient {
	burst := int(c.RateLimit)
	if burst < 1 {
		burst = 1
	}
	return &HTTPClient{
		baseURL: c.BaseURL,
		http:    &http.Client{Timeout: c.Timeout},
		limiter: rate.NewLimiter(rate.Limit(c.RateLimit), burst),
		log:     log,
	}
}

func (c *HTTPClient) FetchQuantity(ctx context.Context, path string, header http.Header) (uint64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	requestID := uuid.NewString()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("request_id", requestID).Msg("quantity fetch failed")
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("request_id", requestID).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("quantity fetched")

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return 0, fmt.Errorf("%w: status %d", ErrOwnership, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return 0, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var body quantityBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err != nil {
		return 0, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return body.Available, nil
}

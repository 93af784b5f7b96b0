package provider

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/mikelxc/zkredit/internal/attest"
)

// FetchResult is the outcome of one request in a FetchAll batch.
type FetchResult struct {
	Request     Request
	Attestation attest.Attestation
	Err         error
}

// FetchAll requests attestations for every request in parallel, at most
// limit at a time. Per-request failures land in their result slot; the
// returned error is only set when ctx is cancelled.
func FetchAll(ctx context.Context, p Provider, requests []Request, limit int) ([]FetchResult, error) {
	results := make([]FetchResult, len(requests))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, req := range requests {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = FetchResult{Request: req, Err: err}
				return nil
			}
			att, err := Attest(gctx, p, req)
			results[i] = FetchResult{Request: req, Attestation: att, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, ctx.Err()
}

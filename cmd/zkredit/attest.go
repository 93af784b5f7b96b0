package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mikelxc/zkredit/internal/attest"
	"github.com/mikelxc/zkredit/internal/host"
	"github.com/mikelxc/zkredit/internal/provider"
	"github.com/mikelxc/zkredit/internal/publicvalues"
)

type attestFlags struct {
	provider    string
	variant     string
	subject     string
	resource    string
	threshold   uint64
	amount      uint64
	destination uint64
	sourceChain uint64
	auth        string
	timeout     time.Duration
}

func newAttestCmd(a *app) *cobra.Command {
	var f attestFlags
	cmd := &cobra.Command{
		Use:   "attest",
		Short: "Request a signed attestation and print it as a proving request",
		RunE: func(cmd *cobra.Command, args []string) error {
			variant, err := publicvalues.ParseVariant(f.variant)
			if err != nil {
				return err
			}
			subject, err := parseAddress(f.subject)
			if err != nil {
				return err
			}
			resource, err := parseHash(f.resource)
			if err != nil {
				return err
			}

			_, providers, err := a.loadConfig()
			if err != nil {
				return err
			}
			p, ok := providers[f.provider]
			if !ok {
				return fmt.Errorf("no provider named %q in config", f.provider)
			}

			amount := f.amount
			if amount == 0 {
				amount = f.threshold
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), f.timeout)
			defer cancel()
			att, err := provider.Attest(ctx, p, provider.Request{
				Subject:     subject,
				ResourceID:  resource,
				Destination: f.destination,
				Amount:      amount,
				AuthData:    []byte(f.auth),
			})
			if err != nil {
				return err
			}
			a.log.Info().
				Str("provider", f.provider).
				Str("issuer", p.Issuer().Hex()).
				Uint64("expiry", att.Expiry).
				Msg("attestation received")

			claim := attest.Claim{
				Subject:            subject,
				ResourceID:         resource,
				DeclaredThreshold:  f.threshold,
				DestinationContext: f.destination,
			}
			return writeJSON(cmd.OutOrStdout(), host.NewRequest(variant, claim, att, f.sourceChain))
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.provider, "provider", "", "provider name from the config")
	fl.StringVar(&f.variant, "variant", publicvalues.AssetClaim.String(), "asset-claim|credit-line|agent-authority")
	fl.StringVar(&f.subject, "subject", "", "subject address")
	fl.StringVar(&f.resource, "resource", "", "resource id (32-byte hex)")
	fl.Uint64Var(&f.threshold, "threshold", 0, "declared threshold")
	fl.Uint64Var(&f.amount, "amount", 0, "amount to attest (defaults to the threshold)")
	fl.Uint64Var(&f.destination, "destination", 0, "destination chain id")
	fl.Uint64Var(&f.sourceChain, "source-chain", 0, "source chain id (asset-claim only)")
	fl.StringVar(&f.auth, "auth", "", "provider auth data")
	fl.DurationVar(&f.timeout, "timeout", 30*time.Second, "provider request timeout")
	for _, name := range []string{"provider", "subject", "resource", "threshold", "destination", "auth"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

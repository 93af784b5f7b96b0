package main

import (
	"io"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/mikelxc/zkredit/internal/host"
	"github.com/mikelxc/zkredit/internal/verifier"
	"github.com/mikelxc/zkredit/internal/zk"
)

// hostMetrics registers the host collectors once per process.
var hostMetrics = sync.OnceValue(func() *host.Metrics {
	return host.NewMetrics(prometheus.DefaultRegisterer)
})

func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	return os.Open(path)
}

// newHost builds a host trusting the configured issuers and providers.
func (a *app) newHost(withKeys bool, keysDir string) (*host.Host, error) {
	cfg, providers, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	v := &verifier.Verifier{Trusted: cfg.KeyRing(providers)}
	h := host.New(v, hostMetrics(), a.log).WithProofTTL(cfg.ProofTTL)
	if withKeys {
		if keysDir == "" {
			keysDir = cfg.KeysDir
		}
		prover, err := zk.Load(keysDir, a.log)
		if err != nil {
			return nil, err
		}
		h.WithProver(prover)
	}
	return h, nil
}

func newProveCmd(a *app) *cobra.Command {
	var (
		requestPath string
		groth16     bool
		keysDir     string
	)
	cmd := &cobra.Command{
		Use:   "prove",
		Short: "Run the proof program for a request and print the proof bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openInput(cmd, requestPath)
			if err != nil {
				return err
			}
			defer in.Close()
			var req host.Request
			if err := readJSON(in, &req); err != nil {
				return err
			}

			h, err := a.newHost(groth16, keysDir)
			if err != nil {
				return err
			}
			bundle, err := h.Prove(req)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), bundle)
		},
	}
	cmd.Flags().StringVarP(&requestPath, "request", "r", "-", "request JSON file, - for stdin")
	cmd.Flags().BoolVar(&groth16, "groth16", false, "also produce a Groth16 proof")
	cmd.Flags().StringVar(&keysDir, "keys", "", "proving key directory (defaults to keys_dir from the config)")
	return cmd
}

func newVerifyCmd(a *app) *cobra.Command {
	var (
		bundlePath string
		keysDir    string
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify the Groth16 proof in a proof bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openInput(cmd, bundlePath)
			if err != nil {
				return err
			}
			defer in.Close()
			var bundle host.ProofBundle
			if err := readJSON(in, &bundle); err != nil {
				return err
			}
			h, err := a.newHost(true, keysDir)
			if err != nil {
				return err
			}
			if err := h.VerifyBundle(&bundle); err != nil {
				return err
			}
			a.log.Info().Str("nullifier", bundle.Nullifier.Hex()).Uint64("valid_until", bundle.ValidUntil).Msg("proof verified")
			return nil
		},
	}
	cmd.Flags().StringVarP(&bundlePath, "bundle", "b", "-", "bundle JSON file, - for stdin")
	cmd.Flags().StringVar(&keysDir, "keys", "", "key directory (defaults to keys_dir from the config)")
	return cmd
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mikelxc/zkredit/internal/zk"
)

func newSetupCmd(a *app) *cobra.Command {
	var (
		keysDir  string
		solidity string
	)
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Compile the attestation circuit and generate Groth16 keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			prover, err := zk.Setup(a.log)
			if err != nil {
				return err
			}
			if err := prover.Save(keysDir); err != nil {
				return err
			}
			a.log.Info().Str("dir", keysDir).Msg("keys written")

			if solidity == "" {
				return nil
			}
			f, err := os.Create(solidity)
			if err != nil {
				return fmt.Errorf("create %s: %w", solidity, err)
			}
			if err := prover.ExportSolidity(f); err != nil {
				f.Close()
				return fmt.Errorf("export verifier: %w", err)
			}
			return f.Close()
		},
	}
	cmd.Flags().StringVar(&keysDir, "keys", "keys", "output directory for the proving and verifying keys")
	cmd.Flags().StringVar(&solidity, "solidity", "", "also write a Solidity verifier to this file")
	return cmd
}

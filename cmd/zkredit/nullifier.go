package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mikelxc/zkredit/internal/nullifier"
)

func newNullifierCmd() *cobra.Command {
	var (
		subject, resource      string
		threshold, destination uint64
	)
	cmd := &cobra.Command{
		Use:   "nullifier",
		Short: "Print the nullifier a claim commits to",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := parseAddress(subject)
			if err != nil {
				return err
			}
			r, err := parseHash(resource)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), nullifier.Derive(s, r, threshold, destination).Hex())
			return err
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&subject, "subject", "", "subject address")
	fl.StringVar(&resource, "resource", "", "resource id (32-byte hex)")
	fl.Uint64Var(&threshold, "threshold", 0, "declared threshold")
	fl.Uint64Var(&destination, "destination", 0, "destination chain id")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("resource")
	return cmd
}

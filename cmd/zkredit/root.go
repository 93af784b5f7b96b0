package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mikelxc/zkredit/internal/config"
	"github.com/mikelxc/zkredit/internal/logger"
	"github.com/mikelxc/zkredit/internal/provider"
)

type globalFlags struct {
	configPath string
	envFile    string
	logLevel   string
	logFormat  string
}

type app struct {
	flags  globalFlags
	log    zerolog.Logger
	stderr io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "zkredit",
		Short:         "Threshold attestation proofs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.stderr = cmd.ErrOrStderr()
			return a.setupLogger(logger.Config{})
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.flags.configPath, "config", "c", "zkredit.yaml", "config file")
	pf.StringVar(&a.flags.envFile, "env", ".env", "dotenv file loaded before the config")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level (overrides the config file)")
	pf.StringVar(&a.flags.logFormat, "log-format", "", "log format: json|console (overrides the config file)")

	root.AddCommand(
		newAttestCmd(a),
		newProveCmd(a),
		newVerifyCmd(a),
		newSetupCmd(a),
		newNullifierCmd(),
	)
	return root
}

// setupLogger builds the logger from base with command-line overrides.
func (a *app) setupLogger(base logger.Config) error {
	if a.flags.logLevel != "" {
		base.Level = a.flags.logLevel
	}
	if a.flags.logFormat != "" {
		base.Format = logger.Format(a.flags.logFormat)
	}
	if base.Format == "" {
		base.Format = logger.FormatConsole
	}
	base.Output = a.stderr
	log, err := logger.New(base)
	if err != nil {
		return err
	}
	a.log = log
	return nil
}

// loadConfig reads the config file and builds every configured provider.
func (a *app) loadConfig() (*config.Config, map[string]provider.Provider, error) {
	cfg, err := config.Load(a.flags.configPath, a.flags.envFile)
	if err != nil {
		return nil, nil, err
	}
	if err := a.setupLogger(cfg.Log); err != nil {
		return nil, nil, err
	}
	providers, err := cfg.BuildProviders(provider.DefaultRegistry(), provider.WithLogger(a.log))
	if err != nil {
		return nil, nil, err
	}
	return cfg, providers, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("not an address: %q", s)
	}
	return common.HexToAddress(s), nil
}

func parseHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) > common.HashLength {
		return common.Hash{}, fmt.Errorf("not a 32-byte hex value: %q", s)
	}
	return common.BytesToHash(b), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}

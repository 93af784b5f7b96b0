// Package config loads the zkredit runtime configuration: which providers
// to connect, which issuers the verifier trusts and where proving keys live.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mikelxc/zkredit/internal/logger"
	"github.com/mikelxc/zkredit/internal/provider"
	"github.com/mikelxc/zkredit/internal/verifier"
)

const (
	DefaultKeysDir  = "keys"
	DefaultProofTTL = 10 * time.Minute
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Log            logger.Config    `yaml:"log"`
	KeysDir        string           `yaml:"keys_dir"`
	ProofTTL       time.Duration    `yaml:"proof_ttl"`
	TrustedIssuers []string         `yaml:"trusted_issuers"`
	Providers      []ProviderConfig `yaml:"providers"`
}

// ProviderConfig names one provider instance. Settings values may reference
// environment variables as ${VAR}.
type ProviderConfig struct {
	Name     string            `yaml:"name"`
	Type     provider.Type     `yaml:"type"`
	Settings map[string]string `yaml:"settings"`
}

// Load reads .env files (missing ones are skipped), then the YAML file at
// path, expanding ${VAR} references in provider settings.
func Load(path string, envFiles ...string) (*Config, error) {
	if err := LoadEnv(envFiles...); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if !filepath.IsAbs(cfg.KeysDir) {
		cfg.KeysDir = filepath.Join(filepath.Dir(path), cfg.KeysDir)
	}
	return cfg, nil
}

// LoadEnv populates the process environment from dotenv files. Variables
// already set win over file values.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env %s: %w", f, err)
		}
	}
	return nil
}

func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.KeysDir == "" {
		cfg.KeysDir = DefaultKeysDir
	}
	if cfg.ProofTTL == 0 {
		cfg.ProofTTL = DefaultProofTTL
	}
	for i := range cfg.Providers {
		for k, v := range cfg.Providers[i].Settings {
			cfg.Providers[i].Settings[k] = os.ExpandEnv(v)
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("%w: providers[%d] has no name", ErrInvalid, i)
		}
		if p.Type == "" {
			return fmt.Errorf("%w: provider %q has no type", ErrInvalid, p.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: duplicate provider %q", ErrInvalid, p.Name)
		}
		seen[p.Name] = true
	}
	if c.ProofTTL < time.Second {
		return fmt.Errorf("%w: proof_ttl %s is under a second", ErrInvalid, c.ProofTTL)
	}
	for _, a := range c.TrustedIssuers {
		if !common.IsHexAddress(a) {
			return fmt.Errorf("%w: trusted issuer %q is not an address", ErrInvalid, a)
		}
	}
	return nil
}

// Provider returns the named provider entry.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// BuildProviders constructs every configured provider through reg.
func (c *Config) BuildProviders(reg *provider.Registry, opts ...provider.Option) (map[string]provider.Provider, error) {
	out := make(map[string]provider.Provider, len(c.Providers))
	for _, p := range c.Providers {
		built, err := reg.New(p.Type, provider.Config(p.Settings), opts...)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", p.Name, err)
		}
		out[p.Name] = built
	}
	return out, nil
}

// KeyRing is the set of issuers the verifier accepts: the configured
// trusted issuers plus the signing address of every given provider.
func (c *Config) KeyRing(providers map[string]provider.Provider) verifier.KeyRing {
	issuers := make([]common.Address, 0, len(c.TrustedIssuers)+len(providers))
	for _, a := range c.TrustedIssuers {
		issuers = append(issuers, common.HexToAddress(a))
	}
	for _, p := range providers {
		issuers = append(issuers, p.Issuer())
	}
	return verifier.NewKeyRing(issuers...)
}

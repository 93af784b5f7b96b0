package provider

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Option adjusts how a provider is built.
type Option func(*options)

type options struct {
	client AccountsClient
	log    zerolog.Logger
	now    func() time.Time
}

func applyOptions(opts []Option) options {
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClient replaces the HTTP transport.
func WithClient(c AccountsClient) Option { return func(o *options) { o.client = c } }

func WithLogger(l zerolog.Logger) Option { return func(o *options) { o.log = l } }

// WithClock sets the clock attestation expiries are computed from.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// Constructor builds a provider from its config.
type Constructor func(cfg Config, opts ...Option) (Provider, error)

// Registry maps provider types to constructors.
type Registry struct {
	mu    sync.RWMutex
	ctors map[Type]Constructor
}

func NewRegistry() *Registry {
	return &Registry{ctors: make(map[Type]Constructor)}
}

// DefaultRegistry knows the exchange (alias "cex") and bank connectors.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(TypeExchange, newExchange)
	r.Register("cex", newExchange)
	r.Register(TypeBank, newBank)
	return r
}

func (r *Registry) Register(t Type, c Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[Type(strings.ToLower(string(t)))] = c
}

// Types lists the registered type tags.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Type, 0, len(r.ctors))
	for t := range r.ctors {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// New builds a provider of type t. Unknown types fail with
// ErrUnsupportedProvider before any config is read.
func (r *Registry) New(t Type, cfg Config, opts ...Option) (Provider, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[Type(strings.ToLower(string(t)))]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, t)
	}
	p, err := ctor(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s provider: %w", t, err)
	}
	return p, nil
}

// MustNew is New for init-time wiring; it panics on error.
func (r *Registry) MustNew(t Type, cfg Config, opts ...Option) Provider {
	p, err := r.New(t, cfg, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

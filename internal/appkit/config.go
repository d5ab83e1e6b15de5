package appkit

import (
	"sync"

	"github.com/go-playground/validator/v10"
	"moff.io/wallet-bridge/internal/chains"
	"moff.io/wallet-bridge/internal/storage"
	"moff.io/wallet-bridge/internal/transport"
	"moff.io/wallet-bridge/pkg/errors"
	"moff.io/wallet-bridge/pkg/log"
)

const DefaultConfigKey = "default"

var validate = validator.New()

type Metadata struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	URL         string   `json:"url" validate:"omitempty,url"`
	Icons       []string `json:"icons" validate:"dive,url"`
}

// Options are the arguments of Init and CreateConfig.
type Options struct {
	ProjectID         string                   `json:"projectId" validate:"required"`
	ChainIDs          []int64                  `json:"chains" validate:"required,min=1"`
	EnableAnalytics   bool                     `json:"enableAnalytics"`
	EnableOnRamp      bool                     `json:"enableOnramp"`
	Metadata          Metadata                 `json:"metadata"`
	Email             bool                     `json:"email"`
	Socials           []string                 `json:"socials"`
	ShowWallets       bool                     `json:"showWallets"`
	WalletFeatures    bool                     `json:"walletFeatures"`
	Transports        map[int64]transport.Spec `json:"transports"`
	IncludeWalletIDs  []string                 `json:"includeWalletIds"`
	FeaturedWalletIDs []string                 `json:"featuredWalletIds"`
	ExcludeWalletIDs  []string                 `json:"excludeWalletIds"`

	// TransportBuilder takes precedence over Transports.
	TransportBuilder transport.Builder `json:"-"`
	Storage          storage.Storage   `json:"-"`
}

// ValidationError reports Options rejected before any side effect.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return "invalid appkit options: " + e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

func (o *Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}

type Features struct {
	Analytics      bool     `json:"analytics"`
	OnRamp         bool     `json:"onramp"`
	Email          bool     `json:"email"`
	Socials        []string `json:"socials"`
	ShowWallets    bool     `json:"showWallets"`
	WalletFeatures bool     `json:"walletFeatures"`
}

// Config is the adapter configuration built from Options.
type Config struct {
	Key       string
	ProjectID string
	Chains    []chains.Chain
	Metadata  Metadata
	Features  Features
	Storage   storage.Storage
	// Clients is nil unless a transport builder or transports were given.
	Clients map[int64]*transport.ChainClient
}

// Client returns the client of chain id.
func (c *Config) Client(id int64) (*transport.ChainClient, bool) {
	client, ok := c.Clients[id]
	return client, ok
}

// Close releases every chain transport.
func (c *Config) Close() {
	for _, client := range c.Clients {
		client.Close()
	}
}

func (k *AppKit) buildConfig(key string, opts Options) (*Config, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	list, err := chains.FromIDs(opts.ChainIDs)
	if err != nil {
		return nil, &ValidationError{Err: err}
	}
	cfg := &Config{
		Key:       key,
		ProjectID: opts.ProjectID,
		Chains:    list,
		Metadata:  opts.Metadata,
		Storage:   opts.Storage,
		Features: Features{
			Analytics:      opts.EnableAnalytics,
			OnRamp:         opts.EnableOnRamp,
			Email:          opts.Email,
			Socials:        opts.Socials,
			ShowWallets:    opts.ShowWallets,
			WalletFeatures: opts.WalletFeatures,
		},
	}
	if cfg.Storage == nil {
		cfg.Storage = k.storage
	}

	builder := opts.TransportBuilder
	if builder == nil && len(opts.Transports) > 0 {
		if builder, err = transport.BuilderFromSpecs(opts.Transports); err != nil {
			return nil, &ValidationError{Err: err}
		}
	}
	if builder == nil {
		return cfg, nil
	}
	newClient := k.selector.ClientBuilder(builder)
	cfg.Clients = make(map[int64]*transport.ChainClient, len(list))
	for _, c := range list {
		client, err := newClient(c)
		if err != nil {
			cfg.Close()
			return nil, err
		}
		cfg.Clients[c.ID] = client
	}
	return cfg, nil
}

// Registry keeps configs by key. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]*Config
}

func NewRegistry() *Registry {
	return &Registry{configs: make(map[string]*Config)}
}

// Set stores cfg under key, closing the config it replaces.
func (r *Registry) Set(key string, cfg *Config) {
	r.mu.Lock()
	old := r.configs[key]
	r.configs[key] = cfg
	r.mu.Unlock()
	if old != nil && old != cfg {
		log.Debugf("appkit - replacing config %s", key)
		old.Close()
	}
}

func (r *Registry) Get(key string) (*Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[key]
	return cfg, ok
}

// Default returns the config registered by Init.
func (r *Registry) Default() (*Config, error) {
	cfg, ok := r.Get(DefaultConfigKey)
	if !ok {
		return nil, errors.WithStack(ErrNotInitialized)
	}
	return cfg, nil
}

func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.configs))
	for k := range r.configs {
		keys = append(keys, k)
	}
	return keys
}

func (r *Registry) Close() {
	r.mu.Lock()
	configs := r.configs
	r.configs = make(map[string]*Config)
	r.mu.Unlock()
	for _, cfg := range configs {
		cfg.Close()
	}
}

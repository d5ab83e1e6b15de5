// Package appkit drives a wallet modal living in a browser page: it configures
// the modal, opens its views and runs the on-ramp purchase flow.
package appkit

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"moff.io/wallet-bridge/internal/databus"
	"moff.io/wallet-bridge/internal/onramp"
	"moff.io/wallet-bridge/internal/storage"
	"moff.io/wallet-bridge/internal/transport"
	"moff.io/wallet-bridge/pkg/errors"
	"moff.io/wallet-bridge/pkg/log"
)

// ErrNotInitialized is returned when no modal handle was supplied.
var ErrNotInitialized = errors.New("appkit is not initialized: no modal instance supplied")

type View string

const (
	ViewConnect         View = ""
	ViewTransactions    View = "Transactions"
	ViewOnRampProviders View = "OnRampProviders"
	ViewBuyInProgress   View = "BuyInProgress"
)

const (
	DefaultOpenDelay  = 300 * time.Millisecond
	DefaultPopupDelay = 300 * time.Millisecond

	// storeKey holds the latest modal state snapshot.
	storeKey = "store"
)

// Modal is the external modal instance.
type Modal interface {
	Init(ctx context.Context, payload *InitPayload) error
	Open(ctx context.Context, view View) error
	Close(ctx context.Context) error
	SubscribeState(fn func(state json.RawMessage)) (unsubscribe func())
}

// ProviderRegistrar is the extension point through which the selected
// on-ramp provider is handed to the modal.
type ProviderRegistrar interface {
	SetSelectedProvider(ctx context.Context, provider onramp.ProviderDescriptor) error
}

// PopupOpener opens a url in a new browser window. opened is false when the
// browser blocked the popup.
type PopupOpener interface {
	OpenWindow(ctx context.Context, url string) (opened bool, err error)
}

// SessionProvider exposes the current wallet session.
type SessionProvider interface {
	Session() onramp.SessionState
}

type AppKit struct {
	modal     Modal
	focus     FocusWaiter
	selector  *transport.Selector
	onramp    onramp.Builder
	publisher databus.Publisher
	storage   storage.Storage
	registry  *Registry

	openDelay  time.Duration
	popupDelay time.Duration

	mu          sync.Mutex
	unsubscribe func()
}

type Option func(*AppKit)

func WithFocusWaiter(w FocusWaiter) Option {
	return func(k *AppKit) { k.focus = w }
}

func WithSelector(s *transport.Selector) Option {
	return func(k *AppKit) { k.selector = s }
}

func WithOnRamp(b onramp.Builder) Option {
	return func(k *AppKit) { k.onramp = b }
}

func WithPublisher(p databus.Publisher) Option {
	return func(k *AppKit) { k.publisher = p }
}

// WithStorage sets the storage used by configs that do not bring their own.
func WithStorage(s storage.Storage) Option {
	return func(k *AppKit) { k.storage = s }
}

func WithDelays(open, popup time.Duration) Option {
	return func(k *AppKit) {
		k.openDelay = open
		k.popupDelay = popup
	}
}

// New wraps modal. A nil modal yields ErrNotInitialized.
func New(modal Modal, opts ...Option) (*AppKit, error) {
	if modal == nil {
		return nil, ErrNotInitialized
	}
	k := &AppKit{
		modal:      modal,
		selector:   transport.NewSelector(nil),
		publisher:  databus.Discard{},
		registry:   NewRegistry(),
		openDelay:  DefaultOpenDelay,
		popupDelay: DefaultPopupDelay,
	}
	for _, opt := range opts {
		opt(k)
	}
	if k.focus == nil {
		if src, ok := modal.(FocusSource); ok {
			k.focus = NewPollingFocusWaiter(src, 0)
		} else {
			k.focus = noFocusWait{}
		}
	}
	if k.storage == nil {
		k.storage = storage.NewMemory(storage.DefaultKeyPrefix)
	}
	return k, nil
}

func (k *AppKit) Registry() *Registry {
	if k == nil {
		return nil
	}
	return k.registry
}

// Init configures the modal and registers the resulting config as the
// default one.
func (k *AppKit) Init(ctx context.Context, opts Options) (*Config, error) {
	if k == nil {
		return nil, ErrNotInitialized
	}
	cfg, err := k.buildConfig(DefaultConfigKey, opts)
	if err != nil {
		return nil, err
	}
	if err := k.modal.Init(ctx, newInitPayload(opts, cfg)); err != nil {
		cfg.Close()
		return nil, errors.Wrap(err, "init modal")
	}
	k.registry.Set(DefaultConfigKey, cfg)
	k.watchState(cfg.Storage)
	log.Infof("appkit - initialized project %s with %d chains", cfg.ProjectID, len(cfg.Chains))
	return cfg, nil
}

// CreateConfig builds a config without touching the modal and stores it
// under key.
func (k *AppKit) CreateConfig(key string, opts Options) (*Config, error) {
	if k == nil {
		return nil, ErrNotInitialized
	}
	if key == "" {
		return nil, errors.New("config key is empty")
	}
	cfg, err := k.buildConfig(key, opts)
	if err != nil {
		return nil, err
	}
	k.registry.Set(key, cfg)
	return cfg, nil
}

// watchState persists and publishes every state snapshot the modal emits.
func (k *AppKit) watchState(s storage.Storage) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.unsubscribe != nil {
		k.unsubscribe()
	}
	k.unsubscribe = k.modal.SubscribeState(func(state json.RawMessage) {
		if err := s.SetItem(context.Background(), storeKey, string(state)); err != nil {
			log.Warnf("appkit - persist modal state:%v", err)
		}
		if err := k.publisher.Publish(databus.StateChanged(state)); err != nil {
			log.Warnf("appkit - publish state:%v", err)
		}
	})
}

// SubscribeState forwards every modal state change to fn until the returned
// function is called.
func (k *AppKit) SubscribeState(fn func(state json.RawMessage)) (func(), error) {
	if k == nil {
		return nil, ErrNotInitialized
	}
	return k.modal.SubscribeState(fn), nil
}

func (k *AppKit) Open(ctx context.Context) error {
	return k.openView(ctx, ViewConnect)
}

func (k *AppKit) OpenActivity(ctx context.Context) error {
	return k.openView(ctx, ViewTransactions)
}

func (k *AppKit) OpenBuyCrypto(ctx context.Context) error {
	return k.openView(ctx, ViewOnRampProviders)
}

func (k *AppKit) openView(ctx context.Context, view View) error {
	if k == nil {
		return ErrNotInitialized
	}
	if err := k.focus.WaitForFocus(ctx); err != nil {
		return err
	}
	if err := sleep(ctx, k.openDelay); err != nil {
		return err
	}
	if err := k.modal.Open(ctx, view); err != nil {
		return errors.Wrapf(err, "open view %q", view)
	}
	return nil
}

func (k *AppKit) Close(ctx context.Context) error {
	if k == nil {
		return ErrNotInitialized
	}
	if err := k.focus.WaitForFocus(ctx); err != nil {
		return err
	}
	if err := k.modal.Close(ctx); err != nil {
		return errors.Wrap(err, "close modal")
	}
	return nil
}

// Session returns the wallet session known to the modal, empty when the modal
// does not expose one.
func (k *AppKit) Session() onramp.SessionState {
	if k == nil {
		return onramp.SessionState{}
	}
	if sp, ok := k.modal.(SessionProvider); ok {
		return sp.Session()
	}
	return onramp.SessionState{}
}

// OnRampLink builds the purchase link for the current session without
// touching the modal.
func (k *AppKit) OnRampLink(params onramp.PurchaseParameters) (onramp.ProviderDescriptor, *url.URL, error) {
	if k == nil {
		return onramp.ProviderDescriptor{}, nil, ErrNotInitialized
	}
	provider, link := k.onramp.Build(params, k.Session())
	return provider, link, nil
}

// OpenOnRamp builds the purchase link, hands the provider to the modal,
// switches it to the purchase view and opens the link in a popup. Provider
// registration and the popup are best-effort.
func (k *AppKit) OpenOnRamp(ctx context.Context, params onramp.PurchaseParameters) (onramp.ProviderDescriptor, *url.URL, error) {
	if k == nil {
		return onramp.ProviderDescriptor{}, nil, ErrNotInitialized
	}
	if err := k.focus.WaitForFocus(ctx); err != nil {
		return onramp.ProviderDescriptor{}, nil, err
	}
	provider, link := k.onramp.Build(params, k.Session())

	if registrar, ok := k.modal.(ProviderRegistrar); ok {
		if err := registrar.SetSelectedProvider(ctx, provider); err != nil {
			log.Warnf("appkit - could not register on-ramp provider %s:%v", provider.Name, err)
		}
	} else {
		log.Warnf("appkit - modal does not accept on-ramp providers, skipping registration")
	}
	if err := k.publisher.Publish(databus.ProviderSelected(provider, link.String())); err != nil {
		log.Warnf("appkit - publish provider selection:%v", err)
	}

	if err := sleep(ctx, k.openDelay); err != nil {
		return provider, link, err
	}
	if err := k.modal.Open(ctx, ViewBuyInProgress); err != nil {
		return provider, link, errors.Wrapf(err, "open view %q", ViewBuyInProgress)
	}
	if err := sleep(ctx, k.popupDelay); err != nil {
		return provider, link, err
	}
	popup, ok := k.modal.(PopupOpener)
	if !ok {
		log.Debugf("appkit - no popup opener, on-ramp link %s", link)
		return provider, link, nil
	}
	opened, err := popup.OpenWindow(ctx, link.String())
	if err != nil || !opened {
		log.Debugf("appkit - popup blocked (err:%v), on-ramp link %s", err, link)
	}
	return provider, link, nil
}

// Stop stops watching the modal and closes every registered config.
func (k *AppKit) Stop() {
	if k == nil {
		return
	}
	k.mu.Lock()
	if k.unsubscribe != nil {
		k.unsubscribe()
		k.unsubscribe = nil
	}
	k.mu.Unlock()
	k.registry.Close()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package appkit

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"moff.io/wallet-bridge/internal/databus"
	"moff.io/wallet-bridge/internal/onramp"
	"moff.io/wallet-bridge/internal/storage"
	"moff.io/wallet-bridge/internal/transport"
	"moff.io/wallet-bridge/pkg/errors"
)

type fakeModal struct {
	mu        sync.Mutex
	calls     []string
	payload   *InitPayload
	listeners []func(json.RawMessage)
	openErr   error
}

func (m *fakeModal) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *fakeModal) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *fakeModal) Init(_ context.Context, payload *InitPayload) error {
	m.mu.Lock()
	m.payload = payload
	m.mu.Unlock()
	m.record("init")
	return nil
}

func (m *fakeModal) Open(_ context.Context, view View) error {
	m.record("open:" + string(view))
	return m.openErr
}

func (m *fakeModal) Close(context.Context) error {
	m.record("close")
	return nil
}

func (m *fakeModal) SubscribeState(fn func(json.RawMessage)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
	idx := len(m.listeners) - 1
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.listeners[idx] = nil
	}
}

func (m *fakeModal) emit(state string) {
	m.mu.Lock()
	listeners := append([]func(json.RawMessage){}, m.listeners...)
	m.mu.Unlock()
	for _, fn := range listeners {
		if fn != nil {
			fn(json.RawMessage(state))
		}
	}
}

// richModal also implements every optional collaborator.
type richModal struct {
	fakeModal
	focused     atomic.Bool
	session     onramp.SessionState
	registerErr error
	popupOpened bool
	provider    onramp.ProviderDescriptor
	popupURL    string
}

func (m *richModal) Focused() bool { return m.focused.Load() }

func (m *richModal) Session() onramp.SessionState { return m.session }

func (m *richModal) SetSelectedProvider(_ context.Context, p onramp.ProviderDescriptor) error {
	m.record("provider:" + p.Name)
	m.provider = p
	return m.registerErr
}

func (m *richModal) OpenWindow(_ context.Context, u string) (bool, error) {
	m.record("window")
	m.popupURL = u
	return m.popupOpened, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (p *recordingPublisher) Publish(e databus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, e.Topic())
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

func validOptions() Options {
	return Options{
		ProjectID: "project",
		ChainIDs:  []int64{1, 137},
		Metadata:  Metadata{Name: "demo", URL: "https://example.com"},
	}
}

func TestNewWithoutModal(t *testing.T) {
	k, err := New(nil)
	assert.Nil(t, k)
	assert.True(t, errors.Is(err, ErrNotInitialized))

	var nilKit *AppKit
	assert.True(t, errors.Is(nilKit.Open(context.Background()), ErrNotInitialized))
	assert.True(t, errors.Is(nilKit.Close(context.Background()), ErrNotInitialized))
	_, _, err = nilKit.OpenOnRamp(context.Background(), onramp.PurchaseParameters{})
	assert.True(t, errors.Is(err, ErrNotInitialized))
	_, err = nilKit.Init(context.Background(), validOptions())
	assert.True(t, errors.Is(err, ErrNotInitialized))
}

func TestInitSendsPayloadAndRegistersDefault(t *testing.T) {
	modal := &fakeModal{}
	k, err := New(modal)
	require.NoError(t, err)

	opts := validOptions()
	opts.Transports = map[int64]transport.Spec{1: {Type: "websocket", URL: "wss://node.example"}}
	cfg, err := k.Init(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, []string{"init"}, modal.Calls())
	require.Len(t, modal.payload.Networks, 2)
	assert.Equal(t, "eip155:1", modal.payload.Networks[0].CAIPNetworkID)
	assert.Equal(t, "websocket", modal.payload.Networks[0].Transport)
	assert.Equal(t, "http", modal.payload.Networks[1].Transport)
	assert.Equal(t, storage.DefaultKeyPrefix, modal.payload.StorageKeyPrefix)

	def, err := k.Registry().Default()
	require.NoError(t, err)
	assert.Same(t, cfg, def)
	client, ok := cfg.Client(1)
	require.True(t, ok)
	assert.Equal(t, "wss://node.example", client.Transport.Endpoint())
}

func TestInitRejectsInvalidOptions(t *testing.T) {
	modal := &fakeModal{}
	k, err := New(modal)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"missing project", func(o *Options) { o.ProjectID = "" }},
		{"no chains", func(o *Options) { o.ChainIDs = nil }},
		{"unknown chains", func(o *Options) { o.ChainIDs = []int64{999999} }},
		{"bad metadata url", func(o *Options) { o.Metadata.URL = "not a url" }},
		{"bad transport", func(o *Options) { o.Transports = map[int64]transport.Spec{1: {Type: "grpc", URL: "x"}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := validOptions()
			tt.mutate(&opts)
			_, err := k.Init(context.Background(), opts)
			var verr *ValidationError
			assert.True(t, errors.As(err, &verr), "got %v", err)
		})
	}
	assert.Empty(t, modal.Calls())
	_, err = k.Registry().Default()
	assert.True(t, errors.Is(err, ErrNotInitialized))
}

func TestCreateConfigLeavesModalAlone(t *testing.T) {
	modal := &fakeModal{}
	k, err := New(modal)
	require.NoError(t, err)

	mem := storage.NewMemory("custom")
	opts := validOptions()
	opts.Storage = mem
	cfg, err := k.CreateConfig("secondary", opts)
	require.NoError(t, err)
	assert.Empty(t, modal.Calls())
	assert.Nil(t, cfg.Clients)
	assert.Same(t, mem, cfg.Storage)

	got, ok := k.Registry().Get("secondary")
	require.True(t, ok)
	assert.Same(t, cfg, got)

	_, err = k.CreateConfig("", opts)
	assert.Error(t, err)
}

func TestOpenViewsApplyDelay(t *testing.T) {
	modal := &fakeModal{}
	k, err := New(modal, WithDelays(20*time.Millisecond, 0))
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, k.Open(context.Background()))
	assert.True(t, time.Since(start) >= 20*time.Millisecond)
	require.NoError(t, k.OpenActivity(context.Background()))
	require.NoError(t, k.OpenBuyCrypto(context.Background()))
	require.NoError(t, k.Close(context.Background()))

	assert.Equal(t, []string{"open:", "open:Transactions", "open:OnRampProviders", "close"}, modal.Calls())
}

func TestOpenWaitsForFocus(t *testing.T) {
	modal := &richModal{}
	k, err := New(modal, WithDelays(0, 0), WithFocusWaiter(NewPollingFocusWaiter(modal, 5*time.Millisecond)))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- k.Open(context.Background()) }()

	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, modal.Calls())
	modal.focused.Store(true)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("open did not resume after focus")
	}
	assert.Equal(t, []string{"open:"}, modal.Calls())
}

func TestOpenHonoursCancellation(t *testing.T) {
	modal := &richModal{}
	k, err := New(modal, WithDelays(0, 0), WithFocusWaiter(NewPollingFocusWaiter(modal, 5*time.Millisecond)))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = k.Open(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Empty(t, modal.Calls())
}

func TestOpenOnRampFlow(t *testing.T) {
	modal := &richModal{
		session: onramp.SessionState{
			ActiveNamespace:   "eip155",
			ConnectedAddress:  "0xabc",
			SelectedNetworkID: "eip155:137",
		},
	}
	modal.focused.Store(true)
	pub := &recordingPublisher{}
	k, err := New(modal, WithDelays(time.Millisecond, time.Millisecond), WithPublisher(pub))
	require.NoError(t, err)

	provider, link, err := k.OpenOnRamp(context.Background(), onramp.PurchaseParameters{Amount: "50"})
	require.NoError(t, err)

	assert.Equal(t, "meld", provider.Name)
	assert.Equal(t, "0xabc", link.Query().Get("walletAddress"))
	assert.Equal(t, "USDC", link.Query().Get("destinationCurrencyCode"))
	assert.Equal(t, []string{"provider:meld", "open:BuyInProgress", "window"}, modal.Calls())
	assert.Equal(t, link.String(), modal.popupURL)
	assert.Equal(t, link.String(), modal.provider.URL)
	assert.Equal(t, []string{databus.TopicProviderSelected}, pub.Topics())
}

func TestOpenOnRampToleratesRegistrationFailure(t *testing.T) {
	modal := &richModal{registerErr: errors.New("no controller")}
	modal.focused.Store(true)
	k, err := New(modal, WithDelays(0, 0))
	require.NoError(t, err)

	_, link, err := k.OpenOnRamp(context.Background(), onramp.PurchaseParameters{})
	require.NoError(t, err)
	u, err := url.Parse(modal.popupURL)
	require.NoError(t, err)
	assert.Equal(t, link.Query(), u.Query())
}

func TestOpenOnRampWithoutOptionalCollaborators(t *testing.T) {
	modal := &fakeModal{}
	k, err := New(modal, WithDelays(0, 0))
	require.NoError(t, err)

	provider, link, err := k.OpenOnRamp(context.Background(), onramp.PurchaseParameters{WalletAddress: "0xdef"})
	require.NoError(t, err)
	assert.Equal(t, "Meld.io", provider.Label)
	assert.Equal(t, "0xdef", link.Query().Get("walletAddress"))
	assert.Equal(t, []string{"open:BuyInProgress"}, modal.Calls())
}

func TestOpenOnRampFailsWhenViewCannotOpen(t *testing.T) {
	modal := &fakeModal{openErr: errors.New("socket gone")}
	k, err := New(modal, WithDelays(0, 0))
	require.NoError(t, err)

	_, _, err = k.OpenOnRamp(context.Background(), onramp.PurchaseParameters{})
	assert.Error(t, err)
}

func TestStateIsPersistedAndPublished(t *testing.T) {
	modal := &fakeModal{}
	pub := &recordingPublisher{}
	mem := storage.NewMemory("wagmi")
	k, err := New(modal, WithPublisher(pub), WithStorage(mem))
	require.NoError(t, err)
	_, err = k.Init(context.Background(), validOptions())
	require.NoError(t, err)

	var seen []string
	unsubscribe, err := k.SubscribeState(func(state json.RawMessage) { seen = append(seen, string(state)) })
	require.NoError(t, err)

	modal.emit(`{"open":true}`)
	unsubscribe()
	modal.emit(`{"open":false}`)

	assert.Equal(t, []string{`{"open":true}`}, seen)
	v, ok, err := mem.GetItem(context.Background(), "store")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"open":false}`, v)
	assert.Equal(t, []string{databus.TopicStateChanged, databus.TopicStateChanged}, pub.Topics())

	k.Stop()
	modal.emit(`{"open":true}`)
	assert.Len(t, pub.Topics(), 2)
}

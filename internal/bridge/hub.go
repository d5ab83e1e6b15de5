package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"moff.io/wallet-bridge/internal/appkit"
	"moff.io/wallet-bridge/internal/config"
	"moff.io/wallet-bridge/internal/databus"
	"moff.io/wallet-bridge/internal/onramp"
	"moff.io/wallet-bridge/pkg/errors"
	"moff.io/wallet-bridge/pkg/log"
)

// Hub holds the browser page currently attached. A newly attached page
// replaces the previous one. Hub forwards modal calls to that page, so it can
// be handed to appkit.New once for the lifetime of the process.
type Hub struct {
	upgrader  websocket.Upgrader
	timeout   time.Duration
	publisher databus.Publisher

	mu        sync.RWMutex
	link      *Link
	lastInit  *appkit.InitPayload
	listeners map[string]func(json.RawMessage)
}

func NewHub(conf config.Bridge, publisher databus.Publisher) *Hub {
	if publisher == nil {
		publisher = databus.Discard{}
	}
	h := &Hub{
		timeout:   conf.RequestTimeout,
		publisher: publisher,
		listeners: make(map[string]func(json.RawMessage)),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(conf.AllowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		return set[r.Header.Get("Origin")]
	}
}

// ServeHTTP upgrades the request and serves the page until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("bridge - upgrade from %s failed:%v", r.RemoteAddr, err)
		return
	}
	link := NewLink(conn, h.timeout)
	h.attach(link)
	log.Infof("bridge - browser attached from %s origin %s", r.RemoteAddr, r.Header.Get("Origin"))
	if err := h.publisher.Publish(databus.BridgeReady(r.RemoteAddr, r.Header.Get("Origin"))); err != nil {
		log.Warnf("bridge - publish ready:%v", err)
	}
	go h.replayInit(link)

	if err := link.Serve(); err != nil {
		log.Warnf("bridge - browser link from %s ended:%v", r.RemoteAddr, err)
	}
	h.detach(link)
	log.Infof("bridge - browser detached from %s", r.RemoteAddr)
}

func (h *Hub) attach(link *Link) {
	link.SubscribeState(h.dispatchState)
	h.mu.Lock()
	old := h.link
	h.link = link
	h.mu.Unlock()
	if old != nil {
		old.Shutdown()
	}
}

func (h *Hub) detach(link *Link) {
	h.mu.Lock()
	if h.link == link {
		h.link = nil
	}
	h.mu.Unlock()
}

// replayInit configures a page that attached after Init was called.
func (h *Hub) replayInit(link *Link) {
	h.mu.RLock()
	payload := h.lastInit
	h.mu.RUnlock()
	if payload == nil {
		return
	}
	if err := link.Init(context.Background(), payload); err != nil {
		log.Warnf("bridge - replay init:%v", err)
	}
}

func (h *Hub) dispatchState(state json.RawMessage) {
	h.mu.RLock()
	listeners := make([]func(json.RawMessage), 0, len(h.listeners))
	for _, fn := range h.listeners {
		listeners = append(listeners, fn)
	}
	h.mu.RUnlock()
	for _, fn := range listeners {
		fn(state)
	}
}

func (h *Hub) current() (*Link, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.link == nil {
		return nil, errors.WithStack(ErrNoBrowser)
	}
	return h.link, nil
}

func (h *Hub) Connected() bool {
	_, err := h.current()
	return err == nil
}

// Init remembers payload so that pages attaching later get it too. Without
// an attached page it only remembers. A payload the page rejects is not
// remembered.
func (h *Hub) Init(ctx context.Context, payload *appkit.InitPayload) error {
	link, err := h.current()
	if err != nil {
		h.rememberInit(payload)
		log.Debugf("bridge - no browser yet, init deferred until one attaches")
		return nil
	}
	if err := link.Init(ctx, payload); err != nil {
		return err
	}
	h.rememberInit(payload)
	return nil
}

func (h *Hub) rememberInit(payload *appkit.InitPayload) {
	h.mu.Lock()
	h.lastInit = payload
	h.mu.Unlock()
}

func (h *Hub) Open(ctx context.Context, view appkit.View) error {
	link, err := h.current()
	if err != nil {
		return err
	}
	return link.Open(ctx, view)
}

func (h *Hub) Close(ctx context.Context) error {
	link, err := h.current()
	if err != nil {
		return err
	}
	return link.Close(ctx)
}

func (h *Hub) SetSelectedProvider(ctx context.Context, provider onramp.ProviderDescriptor) error {
	link, err := h.current()
	if err != nil {
		return err
	}
	return link.SetSelectedProvider(ctx, provider)
}

func (h *Hub) OpenWindow(ctx context.Context, url string) (bool, error) {
	link, err := h.current()
	if err != nil {
		return false, err
	}
	return link.OpenWindow(ctx, url)
}

// Focused is true while no page is attached so that callers waiting for
// focus go on and fail with ErrNoBrowser.
func (h *Hub) Focused() bool {
	link, err := h.current()
	if err != nil {
		return true
	}
	return link.Focused()
}

func (h *Hub) Session() onramp.SessionState {
	link, err := h.current()
	if err != nil {
		return onramp.SessionState{}
	}
	return link.Session()
}

// SubscribeState listens to every page attached now or later.
func (h *Hub) SubscribeState(fn func(json.RawMessage)) func() {
	key := uuid.NewString()
	h.mu.Lock()
	h.listeners[key] = fn
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		delete(h.listeners, key)
		h.mu.Unlock()
	}
}

// Start closes the attached page when ctx ends.
func (h *Hub) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		h.Stop()
	}()
}

// Stop closes the attached page, if any.
func (h *Hub) Stop() {
	h.mu.Lock()
	link := h.link
	h.link = nil
	h.mu.Unlock()
	if link != nil {
		link.Shutdown()
	}
}

// Package bridge connects the host to the browser page running the wallet
// modal. Commands travel as JSON-RPC 2.0 requests over a websocket and the page
// streams modal state and window focus back as notifications.
package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"go.uber.org/atomic"
	"moff.io/wallet-bridge/internal/appkit"
	"moff.io/wallet-bridge/internal/onramp"
	"moff.io/wallet-bridge/pkg/errors"
	"moff.io/wallet-bridge/pkg/log"
)

var (
	ErrLinkClosed = errors.New("browser link closed")
	ErrNoBrowser  = errors.New("no browser attached")
)

const (
	DefaultRequestTimeout = 10 * time.Second
	writeTimeout          = 5 * time.Second
	stateBacklog          = 16
)

type reply struct {
	result gjson.Result
	err    error
}

// Link is one attached browser page.
type Link struct {
	conn    *websocket.Conn
	timeout time.Duration

	writeMu sync.Mutex
	nextID  atomic.Int64
	focused *atomic.Bool
	closed  atomic.Bool
	done    chan struct{}

	mu        sync.Mutex
	pending   map[int64]chan reply
	listeners map[string]func(json.RawMessage)
	state     json.RawMessage

	// states feeds the listeners outside the read loop.
	states chan json.RawMessage
}

// NewLink wraps conn. The page is assumed focused until it reports otherwise.
func NewLink(conn *websocket.Conn, timeout time.Duration) *Link {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Link{
		conn:      conn,
		timeout:   timeout,
		focused:   atomic.NewBool(true),
		done:      make(chan struct{}),
		pending:   make(map[int64]chan reply),
		listeners: make(map[string]func(json.RawMessage)),
		states:    make(chan json.RawMessage, stateBacklog),
	}
}

// Serve reads messages until the connection fails or the link is closed.
func (l *Link) Serve() error {
	defer l.shutdown()
	go l.deliverStates()
	for {
		msgType, data, err := l.conn.ReadMessage()
		if err != nil {
			if l.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return errors.Wrap(err, "read browser message")
		}
		if msgType != websocket.TextMessage {
			log.Debugf("bridge - ignoring message type %d", msgType)
			continue
		}
		l.dispatch(data)
	}
}

func (l *Link) dispatch(data []byte) {
	if !gjson.ValidBytes(data) {
		log.Warnf("bridge - invalid message from browser: %s", string(data))
		return
	}
	msg := gjson.ParseBytes(data)
	if method := msg.Get("method"); method.Exists() {
		l.notify(method.String(), msg.Get("params"))
		return
	}
	id := msg.Get("id")
	if !id.Exists() {
		log.Warnf("bridge - message without id or method: %s", string(data))
		return
	}
	l.mu.Lock()
	ch, ok := l.pending[id.Int()]
	l.mu.Unlock()
	if !ok {
		log.Debugf("bridge - late response %d dropped", id.Int())
		return
	}
	r := reply{result: msg.Get("result")}
	if rpcErr := rpcErrorFrom(msg.Get("error")); rpcErr != nil {
		r.err = rpcErr
	}
	select {
	case ch <- r:
	default:
		log.Debugf("bridge - duplicate response %d dropped", id.Int())
	}
}

func (l *Link) notify(method string, params gjson.Result) {
	switch method {
	case notifyState:
		state := json.RawMessage(params.Raw)
		l.mu.Lock()
		l.state = state
		l.mu.Unlock()
		l.queueState(state)
	case notifyFocus:
		l.focused.Store(params.Get("focused").Bool())
	default:
		log.Debugf("bridge - unknown notification %s", method)
	}
}

// queueState never blocks the read loop. When listeners fall behind the
// oldest queued snapshot is dropped.
func (l *Link) queueState(state json.RawMessage) {
	for {
		select {
		case l.states <- state:
			return
		default:
		}
		select {
		case <-l.states:
			log.Debugf("bridge - state listeners behind, dropping oldest snapshot")
		default:
		}
	}
}

func (l *Link) deliverStates() {
	for {
		select {
		case <-l.done:
			return
		case state := <-l.states:
			l.mu.Lock()
			listeners := make([]func(json.RawMessage), 0, len(l.listeners))
			for _, fn := range l.listeners {
				listeners = append(listeners, fn)
			}
			l.mu.Unlock()
			for _, fn := range listeners {
				fn(state)
			}
		}
	}
}

func (l *Link) write(req *jsonRpcRequest) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if err := l.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return l.conn.WriteMessage(websocket.TextMessage, req.Marshal())
}

func (l *Link) call(ctx context.Context, method string, params ...interface{}) (gjson.Result, error) {
	if l.closed.Load() {
		return gjson.Result{}, ErrLinkClosed
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	req := newJSONRpcRequest(l.nextID.Inc(), method, params...)
	ch := make(chan reply, 1)
	l.mu.Lock()
	l.pending[req.Id] = ch
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.pending, req.Id)
		l.mu.Unlock()
	}()

	if err := l.write(req); err != nil {
		return gjson.Result{}, errors.Wrapf(err, "send %s", method)
	}
	select {
	case r := <-ch:
		if r.err != nil {
			return r.result, errors.Wrapf(r.err, "%s", method)
		}
		return r.result, nil
	case <-l.done:
		return gjson.Result{}, ErrLinkClosed
	case <-ctx.Done():
		return gjson.Result{}, errors.Wrapf(ctx.Err(), "await %s", method)
	}
}

func (l *Link) Init(ctx context.Context, payload *appkit.InitPayload) error {
	_, err := l.call(ctx, methodInit, payload)
	return err
}

func (l *Link) Open(ctx context.Context, view appkit.View) error {
	_, err := l.call(ctx, methodOpen, openParams{View: string(view)})
	return err
}

func (l *Link) Close(ctx context.Context) error {
	_, err := l.call(ctx, methodClose)
	return err
}

func (l *Link) SetSelectedProvider(ctx context.Context, provider onramp.ProviderDescriptor) error {
	_, err := l.call(ctx, methodSetProvider, provider)
	return err
}

// OpenWindow asks the page to open url in a new tab. The page answers false
// when the popup was blocked.
func (l *Link) OpenWindow(ctx context.Context, url string) (bool, error) {
	result, err := l.call(ctx, methodOpenWindow, openWindowParams{URL: url, Target: "_blank"})
	if err != nil {
		return false, err
	}
	return result.Bool(), nil
}

func (l *Link) Focused() bool {
	return l.focused.Load()
}

// State returns the last modal state reported by the page, nil before the
// first report.
func (l *Link) State() json.RawMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Link) Session() onramp.SessionState {
	state := l.State()
	if len(state) == 0 {
		return onramp.SessionState{}
	}
	v := gjson.ParseBytes(state)
	return onramp.SessionState{
		ActiveNamespace:   v.Get("activeChain").String(),
		ConnectedAddress:  v.Get("address").String(),
		SelectedNetworkID: v.Get("selectedNetworkId").String(),
	}
}

func (l *Link) SubscribeState(fn func(json.RawMessage)) func() {
	key := uuid.NewString()
	l.mu.Lock()
	l.listeners[key] = fn
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		delete(l.listeners, key)
		l.mu.Unlock()
	}
}

// Done is closed once the link is closed.
func (l *Link) Done() <-chan struct{} {
	return l.done
}

// Shutdown sends a close frame and releases the connection. Pending calls
// fail with ErrLinkClosed.
func (l *Link) Shutdown() {
	l.writeMu.Lock()
	_ = l.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(writeTimeout))
	l.writeMu.Unlock()
	l.shutdown()
}

func (l *Link) shutdown() {
	if !l.closed.CAS(false, true) {
		return
	}
	close(l.done)
	l.conn.Close()
}

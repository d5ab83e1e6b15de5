package transport

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"moff.io/wallet-bridge/internal/chains"
	"moff.io/wallet-bridge/pkg/errors"
	"moff.io/wallet-bridge/pkg/log"
)

// Dialer opens the underlying connection for a handle. It is only invoked on
// first use of the handle, never by Select.
type Dialer interface {
	Dial(ctx context.Context, kind Kind, endpoint string) (*rpc.Client, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, kind Kind, endpoint string) (*rpc.Client, error)

func (f DialerFunc) Dial(ctx context.Context, kind Kind, endpoint string) (*rpc.Client, error) {
	return f(ctx, kind, endpoint)
}

// EthDialer dials with go-ethereum's rpc package. Reconnection and request
// retries are left to the rpc client.
var EthDialer Dialer = DialerFunc(func(ctx context.Context, kind Kind, endpoint string) (*rpc.Client, error) {
	switch kind {
	case KindHTTP:
		return rpc.DialHTTP(endpoint)
	case KindWebSocket:
		return rpc.DialWebsocket(ctx, endpoint, "")
	default:
		return nil, errors.WithStack(&UnsupportedTransportKindError{Type: "Kind(" + string(kind) + ")"})
	}
})

// Handle is a transport bound to one endpoint. It is owned by the client that
// requested it.
type Handle struct {
	kind     Kind
	endpoint string
	dialer   Dialer

	mu     sync.Mutex
	client *rpc.Client
	closed bool
}

func (h *Handle) Kind() Kind       { return h.kind }
func (h *Handle) Endpoint() string { return h.endpoint }

// Client returns the connected rpc client, dialing on the first call.
// A failed dial is not cached; the next call tries again.
func (h *Handle) Client(ctx context.Context) (*rpc.Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, errors.Errorf("transport %s %s is closed", h.kind, h.endpoint)
	}
	if h.client != nil {
		return h.client, nil
	}
	client, err := h.dialer.Dial(ctx, h.kind, h.endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s transport %s", h.kind, h.endpoint)
	}
	log.Debugf("transport - connected %s %s", h.kind, h.endpoint)
	h.client = client
	return client, nil
}

// Close releases the connection if one was made. It is safe to call twice.
func (h *Handle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	if h.client != nil {
		h.client.Close()
		h.client = nil
	}
}

// Selector turns descriptors into handles. It holds no mutable state and is
// safe for concurrent use.
type Selector struct {
	dialer Dialer
}

// NewSelector returns a selector using d, or EthDialer when d is nil.
func NewSelector(d Dialer) *Selector {
	if d == nil {
		d = EthDialer
	}
	return &Selector{dialer: d}
}

var defaultSelector = NewSelector(nil)

// Select uses the default selector.
func Select(d Descriptor) (*Handle, error) {
	return defaultSelector.Select(d)
}

func (s *Selector) Select(d Descriptor) (*Handle, error) {
	switch d := d.(type) {
	case HTTP:
		return s.handle(KindHTTP, d.URL), nil
	case WebSocket:
		return s.handle(KindWebSocket, d.URL), nil
	case *HTTP:
		if d != nil {
			return s.handle(KindHTTP, d.URL), nil
		}
	case *WebSocket:
		if d != nil {
			return s.handle(KindWebSocket, d.URL), nil
		}
	}
	return nil, unsupported(d)
}

func (s *Selector) handle(kind Kind, endpoint string) *Handle {
	return &Handle{kind: kind, endpoint: endpoint, dialer: s.dialer}
}

// Builder yields the descriptor to use for a chain id.
type Builder func(chainID int64) Descriptor

// BuilderFromSpecs returns a Builder backed by specs. Chains without a spec
// fall back to HTTP on their first well-known RPC url. All specs are decoded
// upfront so that a bad entry fails at configuration time.
func BuilderFromSpecs(specs map[int64]Spec) (Builder, error) {
	decoded := make(map[int64]Descriptor, len(specs))
	for id, spec := range specs {
		d, err := spec.Descriptor()
		if err != nil {
			return nil, errors.Wrapf(err, "transport for chain %d", id)
		}
		decoded[id] = d
	}
	return func(chainID int64) Descriptor {
		if d, ok := decoded[chainID]; ok {
			return d
		}
		if c, ok := chains.Lookup(chainID); ok && len(c.RPCURLs) > 0 {
			return HTTP{URL: c.RPCURLs[0]}
		}
		return nil
	}, nil
}

// ChainClient pairs a chain with the transport chosen for it.
type ChainClient struct {
	Chain     chains.Chain
	Transport *Handle
}

// Eth returns an ethclient over the chain transport, connecting if needed.
func (c *ChainClient) Eth(ctx context.Context) (*ethclient.Client, error) {
	rc, err := c.Transport.Client(ctx)
	if err != nil {
		return nil, err
	}
	return ethclient.NewClient(rc), nil
}

func (c *ChainClient) Close() {
	c.Transport.Close()
}

// ClientBuilder returns the per-chain factory handed to the wallet adapter.
func (s *Selector) ClientBuilder(b Builder) func(chain chains.Chain) (*ChainClient, error) {
	return func(chain chains.Chain) (*ChainClient, error) {
		h, err := s.Select(b(chain.ID))
		if err != nil {
			return nil, errors.Wrapf(err, "chain %d", chain.ID)
		}
		return &ChainClient{Chain: chain, Transport: h}, nil
	}
}

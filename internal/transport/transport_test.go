package transport

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"moff.io/wallet-bridge/internal/chains"
	"moff.io/wallet-bridge/pkg/errors"
)

type countingDialer struct {
	calls int32
	fail  bool
	inner Dialer
}

func (d *countingDialer) Dial(ctx context.Context, kind Kind, endpoint string) (*rpc.Client, error) {
	atomic.AddInt32(&d.calls, 1)
	if d.fail {
		return nil, errors.New("refused")
	}
	if d.inner != nil {
		return d.inner.Dial(ctx, kind, endpoint)
	}
	return rpc.DialInProc(rpc.NewServer()), nil
}

func (d *countingDialer) count() int {
	return int(atomic.LoadInt32(&d.calls))
}

// foreign pretends to be a third variant.
type foreign struct{}

func (foreign) Kind() Kind       { return "grpc" }
func (foreign) Endpoint() string { return "" }
func (foreign) isDescriptor()    {}

func TestSelectBindsEndpointWithoutDialing(t *testing.T) {
	dialer := &countingDialer{}
	s := NewSelector(dialer)

	for _, d := range []Descriptor{
		HTTP{URL: "https://rpc.example/1"},
		WebSocket{URL: "wss://rpc.example/1"},
		&HTTP{URL: "https://rpc.example/2"},
		&WebSocket{URL: "wss://rpc.example/2"},
	} {
		h, err := s.Select(d)
		require.NoError(t, err)
		assert.Equal(t, d.Endpoint(), h.Endpoint())
		assert.Equal(t, d.Kind(), h.Kind())
	}
	assert.Equal(t, 0, dialer.count())
}

func TestSelectUnsupportedKind(t *testing.T) {
	dialer := &countingDialer{}
	s := NewSelector(dialer)

	cases := map[string]Descriptor{
		"<nil>":             nil,
		"transport.foreign": foreign{},
		"*transport.HTTP":   (*HTTP)(nil),
	}
	for want, d := range cases {
		h, err := s.Select(d)
		require.Error(t, err)
		assert.Nil(t, h)
		assert.True(t, errors.Is(err, ErrUnsupportedTransportKind))

		var kindErr *UnsupportedTransportKindError
		require.True(t, errors.As(err, &kindErr))
		assert.Equal(t, want, kindErr.Type)
	}
	assert.Equal(t, 0, dialer.count())
}

func TestParseDescriptor(t *testing.T) {
	d, err := ParseDescriptor("HTTP", "https://a")
	require.NoError(t, err)
	assert.Equal(t, HTTP{URL: "https://a"}, d)

	d, err = ParseDescriptor("ws", "wss://a")
	require.NoError(t, err)
	assert.Equal(t, WebSocket{URL: "wss://a"}, d)

	_, err = Spec{Type: "grpc", URL: "x"}.Descriptor()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedTransportKind))
	assert.Contains(t, err.Error(), "string(grpc)")
}

func TestHandleDialsOnceConcurrently(t *testing.T) {
	dialer := &countingDialer{}
	h, err := NewSelector(dialer).Select(WebSocket{URL: "wss://rpc.example"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.Client(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, dialer.count())

	h.Close()
	h.Close()
	_, err = h.Client(context.Background())
	assert.Error(t, err)
}

func TestHandleDoesNotCacheDialFailure(t *testing.T) {
	dialer := &countingDialer{fail: true}
	h, err := NewSelector(dialer).Select(HTTP{URL: "https://down.example"})
	require.NoError(t, err)

	_, err = h.Client(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")

	dialer.fail = false
	_, err = h.Client(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, dialer.count())
}

type ethService struct{}

func (ethService) ChainId() *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(137))
}

func newNodeServer(t *testing.T) (*httptest.Server, *int32) {
	srv := rpc.NewServer()
	require.NoError(t, srv.RegisterName("eth", ethService{}))
	var hits int32
	ws := srv.WebsocketHandler([]string{"*"})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			ws.ServeHTTP(w, r)
			return
		}
		srv.ServeHTTP(w, r)
	}))
	t.Cleanup(func() {
		ts.Close()
		srv.Stop()
	})
	return ts, &hits
}

func TestClientBuilderAgainstNode(t *testing.T) {
	ts, hits := newNodeServer(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")

	builder, err := BuilderFromSpecs(map[int64]Spec{
		137: {Type: "http", URL: ts.URL},
		1:   {Type: "websocket", URL: wsURL},
	})
	require.NoError(t, err)

	build := NewSelector(nil).ClientBuilder(builder)
	for _, id := range []int64{137, 1} {
		chain, ok := chains.Lookup(id)
		require.True(t, ok)

		cc, err := build(chain)
		require.NoError(t, err)
		assert.Equal(t, int32(0), atomic.LoadInt32(hits), "no I/O before first use")

		eth, err := cc.Eth(context.Background())
		require.NoError(t, err)
		got, err := eth.ChainID(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(137), got.Int64())
		cc.Close()
		atomic.StoreInt32(hits, 0)
	}
}

func TestBuilderFromSpecs(t *testing.T) {
	_, err := BuilderFromSpecs(map[int64]Spec{1: {Type: "carrier-pigeon", URL: "x"}})
	require.Error(t, err)

	b, err := BuilderFromSpecs(nil)
	require.NoError(t, err)
	assert.Equal(t, HTTP{URL: "https://polygon-rpc.com"}, b(137))
	assert.Nil(t, b(123456789))

	_, err = NewSelector(nil).ClientBuilder(b)(chains.Chain{ID: 123456789})
	assert.True(t, errors.Is(err, ErrUnsupportedTransportKind))
}

// Package transport maps transport descriptors onto lazily connected
// JSON-RPC handles bound to a single chain.
//
// Descriptor is a closed sum type: only HTTP and WebSocket implement it.
// Select never performs I/O; the first call to Handle.Client dials.
package transport

import (
	"fmt"
	"strings"

	"moff.io/wallet-bridge/pkg/errors"
)

// Kind is the wire tag of a descriptor.
type Kind string

const (
	KindHTTP      Kind = "http"
	KindWebSocket Kind = "websocket"
)

// Descriptor is implemented by HTTP and WebSocket only.
type Descriptor interface {
	Kind() Kind
	Endpoint() string
	isDescriptor()
}

// HTTP selects an HTTP-polling transport.
type HTTP struct {
	URL string
}

func (HTTP) Kind() Kind         { return KindHTTP }
func (d HTTP) Endpoint() string { return d.URL }
func (HTTP) isDescriptor()      {}
func (d HTTP) String() string   { return "http(" + d.URL + ")" }

// WebSocket selects a persistent-socket transport.
type WebSocket struct {
	URL string
}

func (WebSocket) Kind() Kind         { return KindWebSocket }
func (d WebSocket) Endpoint() string { return d.URL }
func (WebSocket) isDescriptor()      {}
func (d WebSocket) String() string   { return "websocket(" + d.URL + ")" }

// UnsupportedTransportKindError is returned for descriptors outside the
// closed set, and for unknown wire tags.
type UnsupportedTransportKindError struct {
	// Type describes the offending value, e.g. "<nil>" or "string(grpc)".
	Type string
}

func (e *UnsupportedTransportKindError) Error() string {
	return "unsupported transport kind " + e.Type
}

// Is makes every UnsupportedTransportKindError match ErrUnsupportedTransportKind.
func (e *UnsupportedTransportKindError) Is(target error) bool {
	_, ok := target.(*UnsupportedTransportKindError)
	return ok
}

// ErrUnsupportedTransportKind is a sentinel usable with errors.Is.
var ErrUnsupportedTransportKind error = &UnsupportedTransportKindError{}

func unsupported(v interface{}) error {
	return errors.WithStack(&UnsupportedTransportKindError{Type: fmt.Sprintf("%T", v)})
}

// Spec is the serialized form of a descriptor found in config files and
// HTTP payloads.
type Spec struct {
	Type string `json:"type" yaml:"type" binding:"required"`
	URL  string `json:"url" yaml:"url" binding:"required"`
}

// Descriptor decodes s. An unknown type yields UnsupportedTransportKindError.
func (s Spec) Descriptor() (Descriptor, error) {
	return ParseDescriptor(s.Type, s.URL)
}

// ParseDescriptor builds a descriptor from its wire tag. "ws" and "webSocket"
// are accepted as aliases of "websocket".
func ParseDescriptor(kind, url string) (Descriptor, error) {
	switch Kind(strings.ToLower(kind)) {
	case KindHTTP:
		return HTTP{URL: url}, nil
	case KindWebSocket, "ws":
		return WebSocket{URL: url}, nil
	default:
		return nil, errors.WithStack(&UnsupportedTransportKindError{Type: fmt.Sprintf("string(%s)", kind)})
	}
}

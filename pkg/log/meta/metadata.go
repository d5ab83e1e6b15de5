// Package meta attaches a mutable, request-scoped bag of values to a context.
//
// Begin should be called as close to the root context as possible (an HTTP
// request or a bridge link). Calling it again on a context that already
// carries a bag returns the context unchanged, so nested handlers share one bag.
package meta

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// RequestIDKey is where the HTTP middleware stores the x-request-id header.
const RequestIDKey = "x-request-id"

type metadata struct {
	mu      sync.RWMutex
	carrier map[interface{}]interface{}
}

func (m *metadata) get(key interface{}) interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.carrier[key]
}

func (m *metadata) set(key, value interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carrier[key] = value
}

type contextKey struct{}

func Begin(parent context.Context) context.Context {
	if parent.Value(contextKey{}) != nil {
		return parent
	}
	return context.WithValue(parent, contextKey{}, &metadata{
		carrier: make(map[interface{}]interface{}),
	})
}

func from(ctx context.Context) *metadata {
	m, ok := ctx.Value(contextKey{}).(*metadata)
	if !ok {
		logrus.Debug("meta not found from context, should call meta.Begin() first?")
		return nil
	}
	return m
}

// WithValue stores key/val in the bag; it is a no-op without Begin.
func WithValue(ctx context.Context, key, val interface{}) {
	if m := from(ctx); m != nil {
		m.set(key, val)
	}
}

func Value(ctx context.Context, key interface{}) interface{} {
	if m := from(ctx); m != nil {
		return m.get(key)
	}
	return nil
}

// RequestID returns the request id recorded for ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := Value(ctx, RequestIDKey).(string)
	return id
}

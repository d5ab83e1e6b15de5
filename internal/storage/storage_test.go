package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"moff.io/wallet-bridge/internal/config"
)

func TestMemoryItems(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(DefaultKeyPrefix)

	_, ok, err := s.GetItem(ctx, "recentConnectorId")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetItem(ctx, "recentConnectorId", "walletConnect"))
	v, ok, err := s.GetItem(ctx, "recentConnectorId")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "walletConnect", v)
	assert.Contains(t, s.items, "wagmi.recentConnectorId")

	require.NoError(t, s.RemoveItem(ctx, "recentConnectorId"))
	_, ok, _ = s.GetItem(ctx, "recentConnectorId")
	assert.False(t, ok)

	require.NoError(t, s.SetItem(ctx, "store", "{}"))
	require.NoError(t, s.SetItem(ctx, "injected.connected", "true"))
	assert.Equal(t, 2, s.Len())
	require.NoError(t, s.Clear(ctx))
	assert.Equal(t, 0, s.Len())
}

func TestPrefixed(t *testing.T) {
	assert.Equal(t, "wagmi.store", prefixed("wagmi", "store"))
	assert.Equal(t, "wagmi.store", prefixed("wagmi.", "store"))
	assert.Equal(t, "store", prefixed("", "store"))
}

func TestNewSelectsDriver(t *testing.T) {
	s, err := New(context.Background(), config.Storage{Driver: config.DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)
	assert.Equal(t, DefaultKeyPrefix, s.KeyPrefix())

	s, err = New(context.Background(), config.Storage{KeyPrefix: "bridge"})
	require.NoError(t, err)
	assert.Equal(t, "bridge", s.KeyPrefix())

	_, err = New(context.Background(), config.Storage{Driver: "etcd"})
	assert.Error(t, err)
}

func TestScanPatternEscapesGlob(t *testing.T) {
	assert.Equal(t, "wagmi.*", scanPattern("wagmi"))
	assert.Equal(t, `app\*\?\[1\].*`, scanPattern("app*?[1]"))
	assert.Equal(t, `a\\b.*`, scanPattern(`a\b`))
	assert.Equal(t, "*", scanPattern(""))
}

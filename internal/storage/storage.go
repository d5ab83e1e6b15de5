// Package storage is the key/value store wallet connectors persist their
// state in (last used connector, recent connections, store snapshot).
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	"moff.io/wallet-bridge/internal/config"
	"moff.io/wallet-bridge/pkg/errors"
	"moff.io/wallet-bridge/pkg/log"
)

const DefaultKeyPrefix = "wagmi"

// Storage mirrors the browser storage contract used by the wallet adapter.
// Keys passed in are unprefixed; implementations apply their prefix.
type Storage interface {
	GetItem(ctx context.Context, key string) (value string, ok bool, err error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
	// Clear drops every item under the prefix.
	Clear(ctx context.Context) error
	KeyPrefix() string
}

// New builds the storage selected by conf. Redis is pinged before use.
func New(ctx context.Context, conf config.Storage) (Storage, error) {
	prefix := conf.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	switch conf.Driver {
	case "", config.DriverMemory:
		return NewMemory(prefix), nil
	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Addr(),
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB(),
		})
		if _, err := client.Ping(ctx).Result(); err != nil {
			client.Close()
			return nil, errors.Wrap(err, "ping to redis")
		}
		log.Infof("storage - redis %s connected, prefix %s", conf.Redis.Addr(), prefix)
		return NewRedis(client, prefix, conf.TTL), nil
	case config.DriverPostgres:
		pg, err := OpenPostgres(&conf.Postgres, prefix, conf.TTL)
		if err != nil {
			return nil, err
		}
		return pg, nil
	default:
		return nil, errors.Errorf("unknown storage driver %q", conf.Driver)
	}
}

func prefixed(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return fmt.Sprintf("%s.%s", strings.TrimSuffix(prefix, "."), key)
}

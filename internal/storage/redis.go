package storage

import (
	"context"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"moff.io/wallet-bridge/pkg/errors"
	"moff.io/wallet-bridge/pkg/log"
)

// Redis keeps connector state in redis so several bridge processes can share
// wallet sessions.
type Redis struct {
	prefix string
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedis wraps client. A zero ttl keeps items until removed.
func NewRedis(client redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	return &Redis{prefix: prefix, client: client, ttl: ttl}
}

func (r *Redis) KeyPrefix() string { return r.prefix }

func (r *Redis) Client() redis.UniversalClient { return r.client }

func (r *Redis) GetItem(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, prefixed(r.prefix, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.WrapAndReport(err, "get storage item")
	}
	return v, true, nil
}

func (r *Redis) SetItem(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, prefixed(r.prefix, key), value, r.ttl).Err(); err != nil {
		return errors.WrapAndReport(err, "set storage item")
	}
	return nil
}

func (r *Redis) RemoveItem(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, prefixed(r.prefix, key)).Err(); err != nil {
		return errors.WrapAndReport(err, "remove storage item")
	}
	return nil
}

// Clear scans the prefix and deletes matching keys in batches.
func (r *Redis) Clear(ctx context.Context) error {
	var (
		cursor uint64
		match        = scanPattern(r.prefix)
		count  int64 = 200
	)
	log.Debugf("deleting storage pattern %v", match)
	for {
		keys, c, err := r.client.Scan(ctx, cursor, match, count).Result()
		if err != nil {
			return errors.WrapAndReport(err, "scan storage items")
		}
		cursor = c
		if len(keys) > 0 {
			if err = r.client.Del(ctx, keys...).Err(); err != nil {
				return errors.WrapAndReport(err, "delete storage items")
			}
		}
		if c == 0 {
			return nil
		}
	}
}

// scanPattern matches every key under prefix. Glob characters in the prefix
// are escaped so they match literally.
func scanPattern(prefix string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`).Replace(prefixed(prefix, ""))
	return escaped + "*"
}

// Close releases the redis connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

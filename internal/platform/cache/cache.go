// Package cache wraps Redis as a versioned JSON read-through cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	loadTimeout       = 30 * time.Second
	entryVersionGrace = time.Hour
)

// Cache stores JSON payloads under versioned keys. A nil Cache, or one built
// without a client, always calls the loader.
type Cache struct {
	client     *redis.Client
	ttl        time.Duration
	namespace  string
	versionKey string
	group      singleflight.Group
}

// NewCache instantiates the cache helper for one key namespace.
func NewCache(client *redis.Client, namespace string, ttl time.Duration) *Cache {
	return &Cache{
		client:     client,
		ttl:        ttl,
		namespace:  namespace,
		versionKey: namespace + ":version",
	}
}

// Version returns the current namespace version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, c.versionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, c.versionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, c.versionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// Key composes an unversioned key inside the namespace.
func (c *Cache) Key(parts ...string) string {
	ns := ""
	if c != nil {
		ns = c.namespace
	}
	return strings.Join(append([]string{ns}, parts...), ":")
}

// VersionedKey composes a key that changes whenever Bump is called.
func (c *Cache) VersionedKey(ctx context.Context, parts ...string) (string, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:v%d", c.Key(parts...), ver), nil
}

// FetchJSON loads a cached value or populates it using the loader. Concurrent
// misses on the same key share one loader call.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	return c.fetch(ctx, key, dest, loader, func(ctx context.Context, raw []byte) error {
		return c.client.Set(ctx, key, raw, c.ttl).Err()
	})
}

// FetchEntryJSON is FetchJSON for a single entity whose key carries its own
// version. BumpEntry moves readers to a fresh key, and a load that overlaps a
// bump is returned to its callers but not stored.
func (c *Cache) FetchEntryJSON(ctx context.Context, dest any, loader func(context.Context) (any, error), parts ...string) error {
	if c == nil || c.client == nil {
		return c.fetch(ctx, "", dest, loader, nil)
	}
	ver, err := c.entryVersion(ctx, parts...)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s:e%d", c.Key(parts...), ver)
	verKey := c.entryVersionKey(parts...)
	return c.fetch(ctx, key, dest, loader, func(ctx context.Context, raw []byte) error {
		err := c.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := tx.Get(ctx, verKey).Int64()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if current != ver {
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, raw, c.ttl)
				return nil
			})
			return err
		}, verKey)
		if errors.Is(err, redis.TxFailedErr) {
			return nil
		}
		return err
	})
}

// BumpEntry retires every cached copy of one entity.
func (c *Cache) BumpEntry(ctx context.Context, parts ...string) error {
	if c == nil || c.client == nil {
		return nil
	}
	key := c.entryVersionKey(parts...)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, c.ttl+entryVersionGrace)
		return nil
	})
	return err
}

func (c *Cache) entryVersionKey(parts ...string) string {
	return c.Key(append([]string{"ver"}, parts...)...)
}

func (c *Cache) entryVersion(ctx context.Context, parts ...string) (int64, error) {
	ver, err := c.client.Get(ctx, c.entryVersionKey(parts...)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return ver, err
}

func (c *Cache) fetch(ctx context.Context, key string, dest any, loader func(context.Context) (any, error), store func(context.Context, []byte) error) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		return roundTrip(value, dest)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if !errors.Is(err, redis.Nil) {
		return err
	}
	// The shared load outlives any single caller.
	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(loadCtx, loadTimeout)
		defer cancel()
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if err := store(ctx, raw); err != nil {
			return nil, err
		}
		return raw, nil
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		return json.Unmarshal(res.Val.([]byte), dest)
	}
}

// Bump invalidates every versioned key in the namespace.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, c.versionKey).Err()
}

func roundTrip(value, dest any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

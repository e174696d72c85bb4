package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, "wms", time.Minute), mr
}

func TestFetchJSONCachesLoaderResult(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return payload{Name: "ACME_0000001", Count: calls}, nil
	}

	var first payload
	require.NoError(t, c.FetchJSON(ctx, c.Key("line", "ACME_0000001"), &first, loader))
	var second payload
	require.NoError(t, c.FetchJSON(ctx, c.Key("line", "ACME_0000001"), &second, loader))

	require.Equal(t, 1, calls)
	require.Equal(t, first, second)
	require.True(t, mr.Exists("wms:line:ACME_0000001"))
}

func TestFetchEntryJSONMovesToNewKeyAfterBump(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return payload{Name: "ACME_0000001", Count: calls}, nil
	}

	var out payload
	require.NoError(t, c.FetchEntryJSON(ctx, &out, loader, "line", "ACME_0000001"))
	require.NoError(t, c.FetchEntryJSON(ctx, &out, loader, "line", "ACME_0000001"))
	require.Equal(t, 1, calls)
	require.True(t, mr.Exists("wms:line:ACME_0000001:e0"))

	require.NoError(t, c.BumpEntry(ctx, "line", "ACME_0000001"))
	require.NoError(t, c.FetchEntryJSON(ctx, &out, loader, "line", "ACME_0000001"))
	require.Equal(t, 2, calls)
	require.Equal(t, 2, out.Count)
	require.True(t, mr.Exists("wms:line:ACME_0000001:e1"))
	require.Greater(t, mr.TTL("wms:ver:line:ACME_0000001"), time.Minute)
}

func TestFetchEntryJSONDropsLoadOverlappingBump(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	calls := 0
	loader := func(ctx context.Context) (any, error) {
		calls++
		if calls == 1 {
			// A writer commits and bumps while this read is in flight.
			if err := c.BumpEntry(ctx, "line", "ACME_0000001"); err != nil {
				return nil, err
			}
		}
		return payload{Name: "ACME_0000001", Count: calls}, nil
	}

	var stale payload
	require.NoError(t, c.FetchEntryJSON(ctx, &stale, loader, "line", "ACME_0000001"))
	require.Equal(t, 1, stale.Count)
	require.False(t, mr.Exists("wms:line:ACME_0000001:e0"))
	require.False(t, mr.Exists("wms:line:ACME_0000001:e1"))

	var fresh payload
	require.NoError(t, c.FetchEntryJSON(ctx, &fresh, loader, "line", "ACME_0000001"))
	require.Equal(t, 2, fresh.Count)
	require.True(t, mr.Exists("wms:line:ACME_0000001:e1"))
}

func TestFetchJSONSharedLoadSurvivesLeaderCancel(t *testing.T) {
	c, mr := newTestCache(t)
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	loader := func(ctx context.Context) (any, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return payload{Name: "shared"}, nil
	}

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		var out payload
		leaderErr <- c.FetchJSON(leaderCtx, c.Key("summary"), &out, loader)
	}()
	<-started

	followerErr := make(chan error, 1)
	var follower payload
	go func() {
		followerErr <- c.FetchJSON(context.Background(), c.Key("summary"), &follower, loader)
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	require.ErrorIs(t, <-leaderErr, context.Canceled)
	close(release)

	require.NoError(t, <-followerErr)
	require.Equal(t, "shared", follower.Name)
	require.EqualValues(t, 1, calls.Load())
	require.True(t, mr.Exists("wms:summary"))
}

func TestFetchJSONLoaderErrorIsNotCached(t *testing.T) {
	c, mr := newTestCache(t)
	boom := errors.New("boom")
	var out payload
	err := c.FetchJSON(context.Background(), c.Key("x"), &out, func(context.Context) (any, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	require.False(t, mr.Exists("wms:x"))
}

func TestBumpChangesVersionedKey(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	before, err := c.VersionedKey(ctx, "summary", "ACME")
	require.NoError(t, err)
	require.Equal(t, "wms:summary:ACME:v1", before)

	require.NoError(t, c.Bump(ctx))
	after, err := c.VersionedKey(ctx, "summary", "ACME")
	require.NoError(t, err)
	require.Equal(t, "wms:summary:ACME:v2", after)
}

func TestNilCacheCallsLoader(t *testing.T) {
	var c *Cache
	var out payload
	err := c.FetchJSON(context.Background(), "k", &out, func(context.Context) (any, error) {
		return payload{Name: "direct"}, nil
	})
	require.NoError(t, err)
	require.Equal(t, "direct", out.Name)
	require.NoError(t, c.Bump(context.Background()))
	require.NoError(t, c.BumpEntry(context.Background(), "line", "ACME_0000001"))
	require.NoError(t, c.FetchEntryJSON(context.Background(), &out, func(context.Context) (any, error) {
		return payload{Name: "entry"}, nil
	}, "line", "ACME_0000001"))
	require.Equal(t, "entry", out.Name)
}

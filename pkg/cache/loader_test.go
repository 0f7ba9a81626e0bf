package cache_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/omeyang/racecache/pkg/cache"
	"github.com/omeyang/racecache/pkg/keystore"
	"github.com/omeyang/racecache/pkg/racelock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type harness struct {
	store keystore.Store
	lock  *racelock.Lock
	mr    *miniredis.Miniredis
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store, err := keystore.NewRedis(client)
	require.NoError(t, err)
	lock, err := racelock.NewRedis(store, racelock.WithCheckLockDelay(5*time.Millisecond))
	require.NoError(t, err)
	return &harness{store: store, lock: lock, mr: mr}
}

func TestLoader_MissInvokesLoaderOnce(t *testing.T) {
	h := newHarness(t)
	var calls int64
	l, err := cache.New[string]("users", h.store, h.lock, func(_ context.Context, args ...any) (string, error) {
		atomic.AddInt64(&calls, 1)
		return fmt.Sprintf("user-%v", args[0]), nil
	}, cache.WithTTL(2*time.Second))
	require.NoError(t, err)

	v, err := l.Load(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, "user-u1", v)
	require.EqualValues(t, 1, atomic.LoadInt64(&calls))

	v, err = l.Load(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, "user-u1", v)
	require.EqualValues(t, 1, atomic.LoadInt64(&calls), "second load should hit the fresh cache entry")
}

func TestLoader_ConcurrentColdCallersInvokeLoaderOnce(t *testing.T) {
	h := newHarness(t)
	var calls int64
	block := make(chan struct{})
	l, err := cache.New[int]("slow", h.store, h.lock, func(_ context.Context, _ ...any) (int, error) {
		atomic.AddInt64(&calls, 1)
		<-block
		return 7, nil
	}, cache.WithTTL(5*time.Second))
	require.NoError(t, err)

	const n = 8
	results := make(chan int, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			v, err := l.Load(context.Background(), "shared-key")
			results <- v
			errs <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(block)

	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
		require.Equal(t, 7, <-results)
	}
	require.EqualValues(t, 1, atomic.LoadInt64(&calls))
}

func TestLoader_StaleHitServesCachedAndRefreshesInBackground(t *testing.T) {
	h := newHarness(t)
	var calls int64
	l, err := cache.New[int]("counter", h.store, h.lock, func(_ context.Context, _ ...any) (int, error) {
		n := atomic.AddInt64(&calls, 1)
		return int(n), nil
	}, cache.WithTTL(2*time.Second))
	require.NoError(t, err)

	ctx := context.Background()
	v, err := l.Load(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, 1, v)

	// the data key was stored with 2T = 4s; advancing 2.5s leaves 1.5s,
	// at or below T but not expired, so the entry is stale-but-valid.
	h.mr.FastForward(2500 * time.Millisecond)

	v, err = l.Load(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, 1, v, "a stale hit must return the cached value immediately")

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&calls) == 2
	}, time.Second, 5*time.Millisecond, "background refresh should invoke the loader a second time")

	v, err = l.Load(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, 2, v, "once refreshed, subsequent loads see the new value")
}

func TestLoader_LoaderFailurePropagatesOnMiss(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("upstream unavailable")
	l, err := cache.New[int]("broken", h.store, h.lock, func(_ context.Context, _ ...any) (int, error) {
		return 0, boom
	}, cache.WithTTL(2*time.Second))
	require.NoError(t, err)

	_, err = l.Load(context.Background(), "k")
	require.Error(t, err)
	require.ErrorIs(t, err, boom)
}

func TestLoader_PrimeThenLoadSkipsLoader(t *testing.T) {
	h := newHarness(t)
	var calls int64
	l, err := cache.New[string]("primed", h.store, h.lock, func(_ context.Context, _ ...any) (string, error) {
		atomic.AddInt64(&calls, 1)
		return "from-loader", nil
	}, cache.WithTTL(2*time.Second))
	require.NoError(t, err)

	require.NoError(t, l.Prime(context.Background(), "k", "from-prime"))
	v, err := l.Load(context.Background(), "k")
	require.NoError(t, err)
	require.Equal(t, "from-prime", v)
	require.EqualValues(t, 0, atomic.LoadInt64(&calls))
}

func TestLoader_ClearRemovesEntry(t *testing.T) {
	h := newHarness(t)
	var calls int64
	l, err := cache.New[int]("clearable", h.store, h.lock, func(_ context.Context, _ ...any) (int, error) {
		n := atomic.AddInt64(&calls, 1)
		return int(n), nil
	}, cache.WithTTL(2*time.Second))
	require.NoError(t, err)

	_, err = l.Load(context.Background(), "k")
	require.NoError(t, err)

	removed, err := l.Clear(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, removed)

	removed, err = l.Clear(context.Background(), "k")
	require.NoError(t, err)
	require.False(t, removed)

	v, err := l.Load(context.Background(), "k")
	require.NoError(t, err)
	require.Equal(t, 2, v)
}

func TestLoader_RejectsInvalidConstruction(t *testing.T) {
	h := newHarness(t)
	fn := func(context.Context, ...any) (int, error) { return 0, nil }

	_, err := cache.New[int]("", h.store, h.lock, fn)
	require.ErrorIs(t, err, cache.ErrInvalidName)

	_, err = cache.New[int]("bad name!", h.store, h.lock, fn)
	require.ErrorIs(t, err, cache.ErrInvalidName)

	_, err = cache.New[int]("ok", nil, h.lock, fn)
	require.ErrorIs(t, err, cache.ErrNilStore)

	_, err = cache.New[int]("ok", h.store, nil, fn)
	require.ErrorIs(t, err, cache.ErrNilLock)

	_, err = cache.New[int]("ok", h.store, h.lock, nil)
	require.ErrorIs(t, err, cache.ErrNilLoadFunc)

	_, err = cache.New[int]("ok", h.store, h.lock, fn, cache.WithTTL(time.Second))
	require.ErrorIs(t, err, cache.ErrInvalidTTL)
}

func TestCacheable_WrapsLoaderAsFunction(t *testing.T) {
	h := newHarness(t)
	var calls int64
	fn, err := cache.Cacheable[string]("wrapped", h.store, h.lock, func(_ context.Context, args ...any) (string, error) {
		atomic.AddInt64(&calls, 1)
		return fmt.Sprintf("v-%v", args[0]), nil
	}, cache.WithTTL(2*time.Second))
	require.NoError(t, err)

	v, err := fn(context.Background(), "x")
	require.NoError(t, err)
	require.Equal(t, "v-x", v)
	v, err = fn(context.Background(), "x")
	require.NoError(t, err)
	require.Equal(t, "v-x", v)
	require.EqualValues(t, 1, atomic.LoadInt64(&calls))
}

package racelock_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/omeyang/racecache/pkg/keystore"
	"github.com/omeyang/racecache/pkg/racelock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestLock(t *testing.T, opts ...racelock.Option) *racelock.Lock {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store, err := keystore.NewRedis(client)
	require.NoError(t, err)
	lock, err := racelock.NewRedis(store, opts...)
	require.NoError(t, err)
	return lock
}

func TestLock_AllRunsTaskExactlyOnce(t *testing.T) {
	lock := newTestLock(t, racelock.WithCheckLockDelay(5*time.Millisecond))
	ctx := context.Background()

	var calls int64
	v, err := lock.All(ctx, "widget", time.Second, func(_ context.Context, delayed bool) (any, error) {
		require.False(t, delayed)
		atomic.AddInt64(&calls, 1)
		return "done", nil
	})
	require.NoError(t, err)
	require.Equal(t, "done", v)
	require.EqualValues(t, 1, atomic.LoadInt64(&calls))
}

func TestLock_AllSerializesConcurrentCallers(t *testing.T) {
	lock := newTestLock(t, racelock.WithCheckLockDelay(5*time.Millisecond))
	ctx := context.Background()

	var active, maxActive int64
	const n = 8
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := lock.All(ctx, "shared", time.Second, func(_ context.Context, _ bool) (any, error) {
				cur := atomic.AddInt64(&active, 1)
				for {
					m := atomic.LoadInt64(&maxActive)
					if cur <= m || atomic.CompareAndSwapInt64(&maxActive, m, cur) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt64(&active, -1)
				return nil, nil
			})
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}
	require.EqualValues(t, 1, atomic.LoadInt64(&maxActive))
}

func TestLock_RaceWinnerExecutes(t *testing.T) {
	lock := newTestLock(t)
	ctx := context.Background()

	executed, result, err := lock.Race(ctx, "refresh", time.Second, func(_ context.Context) (any, error) {
		return 42, nil
	}, true)
	require.NoError(t, err)
	require.True(t, executed)
	require.Equal(t, 42, result)
}

func TestLock_RaceLoserIgnoreReturnsImmediately(t *testing.T) {
	lock := newTestLock(t, racelock.WithCheckLockDelay(5*time.Millisecond))
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_, _, _ = lock.Race(ctx, "busy", time.Second, func(_ context.Context) (any, error) {
			close(started)
			<-release
			return nil, nil
		}, true)
	}()
	<-started

	executed, result, err := lock.Race(ctx, "busy", time.Second, func(_ context.Context) (any, error) {
		t.Fatal("task must not run for a contended ignore=true call")
		return nil, nil
	}, true)
	require.NoError(t, err)
	require.False(t, executed)
	require.Nil(t, result)

	close(release)
}

func TestLock_RaceLoserWaitsForRelease(t *testing.T) {
	lock := newTestLock(t, racelock.WithCheckLockDelay(5*time.Millisecond))
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_, _, _ = lock.Race(ctx, "busy2", time.Second, func(_ context.Context) (any, error) {
			close(started)
			<-release
			return nil, nil
		}, true)
		close(done)
	}()
	<-started

	waitDone := make(chan struct{})
	go func() {
		executed, _, err := lock.Race(ctx, "busy2", time.Second, func(_ context.Context) (any, error) {
			t.Error("task must not run on the waiting branch")
			return nil, nil
		}, false)
		require.NoError(t, err)
		require.False(t, executed)
		close(waitDone)
	}()

	select {
	case <-waitDone:
		t.Fatal("waiting Race call returned before the winner released the lock")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	<-done
	<-waitDone
}

func TestLock_TaskErrorStillReleases(t *testing.T) {
	lock := newTestLock(t)
	ctx := context.Background()
	boom := errors.New("boom")

	_, _, err := lock.Race(ctx, "failing", time.Second, func(_ context.Context) (any, error) {
		return nil, boom
	}, true)
	require.ErrorIs(t, err, boom)

	executed, _, err := lock.Race(ctx, "failing", time.Second, func(_ context.Context) (any, error) {
		return "second", nil
	}, true)
	require.NoError(t, err)
	require.True(t, executed)
}

func TestLock_ValidatesInputs(t *testing.T) {
	lock := newTestLock(t)

	_, err := lock.All(nil, "x", time.Second, func(context.Context, bool) (any, error) { return nil, nil })
	require.ErrorIs(t, err, racelock.ErrNilContext)

	_, err = lock.All(context.Background(), "", time.Second, func(context.Context, bool) (any, error) { return nil, nil })
	require.ErrorIs(t, err, racelock.ErrEmptyName)

	_, _, err = lock.Race(context.Background(), "x", time.Second, nil, true)
	require.ErrorIs(t, err, racelock.ErrNilTask)
}

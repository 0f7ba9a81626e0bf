package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/omeyang/racecache/pkg/keystore"
	"github.com/omeyang/racecache/pkg/racelock"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9:_.\-\[\]]+$`)

// LoadFunc produces the value for a cache miss or refresh. args are the
// same values Load was called with — they are never re-derived, so the
// function always sees the caller's original arguments even when Load
// falls back to recursing on an already-derived base key.
type LoadFunc[T any] func(ctx context.Context, args ...any) (T, error)

// entry is the on-wire envelope stored for every cached value.
type entry[T any] struct {
	CreateTime int64 `json:"createTime"`
	Value      T     `json:"value"`
}

// Loader is a read-through cache in front of a keystore.Store, with
// single-flight loading and stale-while-revalidate refresh coordinated
// through a racelock.Lock. Create one per logical data source with New.
type Loader[T any] struct {
	name  string
	store keystore.Store
	lock  *racelock.Lock
	fn    LoadFunc[T]
	cfg   *config
	sf    singleflight.Group
}

// New builds a Loader. name must be non-empty and match
// [A-Za-z0-9:_.\-\[\]]+; it namespaces this loader's keys from every other
// loader sharing the same store.
func New[T any](name string, store keystore.Store, lock *racelock.Lock, fn LoadFunc[T], opts ...Option) (*Loader[T], error) {
	if !namePattern.MatchString(name) {
		return nil, ErrInvalidName
	}
	if store == nil {
		return nil, ErrNilStore
	}
	if lock == nil {
		return nil, ErrNilLock
	}
	if fn == nil {
		return nil, ErrNilLoadFunc
	}
	cfg := defaultConfig()
	for _, o := range opts {
		o(cfg)
	}
	if cfg.ttl < 2*time.Second {
		return nil, ErrInvalidTTL
	}
	return &Loader[T]{name: name, store: store, lock: lock, fn: fn, cfg: cfg}, nil
}

// Cacheable builds a Loader and returns it bound as a plain function,
// matching the decorator style of wrapping an existing loader function in
// caching behavior without changing its call signature.
func Cacheable[T any](name string, store keystore.Store, lock *racelock.Lock, fn LoadFunc[T], opts ...Option) (func(ctx context.Context, args ...any) (T, error), error) {
	l, err := New[T](name, store, lock, fn, opts...)
	if err != nil {
		return nil, err
	}
	return l.Load, nil
}

func (l *Loader[T]) dataKey(baseKey string) string {
	return l.cfg.keyPrefix + ":" + l.name + ":" + baseKey
}

func (l *Loader[T]) metrics() MetricsRecorder {
	if l.cfg.metrics != nil {
		return l.cfg.metrics
	}
	return noopMetrics{}
}

// Load resolves args to a value, reading through the cache and — on a miss
// or stale entry — invoking the configured load function exactly once
// across every concurrent caller sharing the same derived key, whether
// they're in this process or another.
//
// On a fresh hit, Load returns the cached value without touching the lock.
// On a stale hit, Load returns the cached value immediately and kicks off a
// background refresh; a failure there is logged and never surfaces to the
// caller. On a miss, Load blocks until the value has been loaded (by this
// call, a concurrent in-process caller, or a concurrent caller in another
// process) and returns it, surfacing any failure directly.
func (l *Loader[T]) Load(ctx context.Context, args ...any) (T, error) {
	var zero T
	if ctx == nil {
		return zero, ErrNilContext
	}
	baseKey, err := derive(args)
	if err != nil {
		return zero, err
	}
	return l.loadByBaseKey(ctx, baseKey, args)
}

// loadByBaseKey runs the read/freshness/refresh sequence for an
// already-derived key. args are forwarded to the user loader only — the
// key itself is never re-derived from them.
func (l *Loader[T]) loadByBaseKey(ctx context.Context, baseKey string, args []any) (T, error) {
	var zero T
	dataKey := l.dataKey(baseKey)

	hit, raw := l.getRaw(ctx, dataKey)
	var cached T
	if hit {
		var e entry[T]
		if err := json.Unmarshal(raw, &e); err == nil {
			cached = e.Value
		} else {
			l.cfg.logger.Warn(ctx, "cache: stored entry failed to decode, treating as miss", "key", dataKey, "error", err)
			hit = false
		}
	}

	if hit {
		if !l.isStale(ctx, dataKey) {
			l.metrics().IncCacheHit(ctx, l.name)
			return cached, nil
		}
		l.metrics().IncCacheStale(ctx, l.name)
		l.refreshInBackground(baseKey, dataKey, args)
		return cached, nil
	}

	l.metrics().IncCacheMiss(ctx, l.name)

	outcome, err := l.refreshSync(ctx, baseKey, dataKey, args)
	if err != nil {
		return zero, err
	}
	if !outcome.executed {
		// lost the single-flight race and the winner's lock is gone: the
		// data is presumably primed now, re-read it through the normal
		// path. The key is reused as-is and the caller's original args are
		// passed on in case this re-read has to load again.
		return l.loadByBaseKey(ctx, baseKey, args)
	}
	return outcome.value, nil
}

type refreshOutcome[T any] struct {
	executed bool
	value    T
}

// refreshSync runs the refresh under the distributed lock and blocks the
// caller until it completes — used on a cache miss, where there is no
// value yet to return early. Concurrent in-process callers for the same
// baseKey are collapsed onto a single racelock.Race attempt via
// singleflight, a strict in-process refinement layered in front of the
// distributed lock.
func (l *Loader[T]) refreshSync(ctx context.Context, baseKey, dataKey string, args []any) (refreshOutcome[T], error) {
	ch := l.sf.DoChan(baseKey, func() (any, error) {
		sfCtx, cancel := context.WithTimeout(detach(ctx), 3*l.cfg.lockTimeout)
		defer cancel()
		executed, v, err := l.lock.Race(sfCtx, baseKey, l.cfg.lockTimeout, l.refreshTask(baseKey, dataKey, args), false)
		if err != nil {
			return nil, err
		}
		tv, _ := v.(T)
		return refreshOutcome[T]{executed: executed, value: tv}, nil
	})

	select {
	case <-ctx.Done():
		return refreshOutcome[T]{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return refreshOutcome[T]{}, res.Err
		}
		return res.Val.(refreshOutcome[T]), nil
	}
}

// refreshInBackground fires the refresh off detached from ctx so it
// survives the caller returning, matching stale-while-revalidate: the
// caller already has cached, so only the caller's own ctx going away must
// not cancel the refresh itself.
func (l *Loader[T]) refreshInBackground(baseKey, dataKey string, args []any) {
	go func() {
		bgCtx, cancel := context.WithTimeout(detach(context.Background()), 3*l.cfg.lockTimeout)
		defer cancel()
		_, _, err := l.lock.Race(bgCtx, baseKey, l.cfg.lockTimeout, l.refreshTask(baseKey, dataKey, args), true)
		if err != nil {
			l.cfg.logger.Warn(bgCtx, "cache: background refresh failed", "key", dataKey, "error", err)
		}
	}()
}

func (l *Loader[T]) refreshTask(baseKey, dataKey string, args []any) racelock.RaceTask {
	return func(taskCtx context.Context) (any, error) {
		l.metrics().IncLoaderInvocation(taskCtx, l.name)
		v, err := l.fn(taskCtx, args...)
		if err != nil {
			return nil, fmt.Errorf("%w: loader %q: %w", ErrLoaderFailed, l.name, err)
		}
		if primeErr := l.primeValue(taskCtx, baseKey, v); primeErr != nil {
			l.cfg.logger.Warn(taskCtx, "cache: prime after refresh failed", "key", dataKey, "error", primeErr)
		}
		return v, nil
	}
}

func (l *Loader[T]) getRaw(ctx context.Context, dataKey string) (bool, []byte) {
	if l.cfg.localCache != nil {
		if v, ok := l.cfg.localCache.Get(dataKey); ok {
			return true, v
		}
	}
	raw, err := l.store.Get(ctx, dataKey)
	if err != nil {
		if !errors.Is(err, keystore.ErrNotFound) {
			l.cfg.logger.Warn(ctx, "cache: read failed, treating as miss", "key", dataKey, "error", err)
		}
		return false, nil
	}
	if l.cfg.localCache != nil {
		l.cfg.localCache.SetWithTTL(dataKey, raw, int64(len(raw)), l.cfg.ttl)
	}
	return true, raw
}

// isStale infers freshness from the data key's remaining TTL: above the
// configured window it is fresh, at or below it (including the TTLAbsent
// edge, which shouldn't occur right after a successful Get but is handled
// defensively) it needs a refresh. A key with no expiry at all (TTLNoExpire)
// is also treated as stale rather than trusted forever, since this loader
// never writes an entry without an expiry itself.
func (l *Loader[T]) isStale(ctx context.Context, dataKey string) bool {
	ttl, err := l.store.TTL(ctx, dataKey)
	if err != nil {
		l.cfg.logger.Warn(ctx, "cache: ttl probe failed, treating as stale", "key", dataKey, "error", err)
		return true
	}
	return !(ttl > l.cfg.ttl)
}

func (l *Loader[T]) primeValue(ctx context.Context, baseKey string, v T) error {
	e := entry[T]{CreateTime: time.Now().UnixMilli(), Value: v}
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncode, err)
	}
	dataKey := l.dataKey(baseKey)
	if err := l.store.Set(ctx, dataKey, raw, 2*l.cfg.ttl, false); err != nil {
		return err
	}
	if l.cfg.localCache != nil {
		l.cfg.localCache.SetWithTTL(dataKey, raw, int64(len(raw)), l.cfg.ttl)
	}
	return nil
}

// Prime writes value directly into the cache under key's derived data key,
// with the same 2T expiry a normal refresh would use, skipping the load
// function entirely.
func (l *Loader[T]) Prime(ctx context.Context, key any, value T) error {
	if ctx == nil {
		return ErrNilContext
	}
	baseKey, err := derive([]any{key})
	if err != nil {
		return err
	}
	return l.primeValue(ctx, baseKey, value)
}

// Clear removes key's entry from the cache, returning true if something
// was actually removed.
func (l *Loader[T]) Clear(ctx context.Context, key any) (bool, error) {
	if ctx == nil {
		return false, ErrNilContext
	}
	baseKey, err := derive([]any{key})
	if err != nil {
		return false, err
	}
	dataKey := l.dataKey(baseKey)
	if l.cfg.localCache != nil {
		l.cfg.localCache.Del(dataKey)
	}
	n, err := l.store.Del(ctx, dataKey)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// detach strips cancellation and deadline from ctx while preserving its
// values, so a shared single-flight execution or background refresh
// outlives any single caller that goes away.
func detach(ctx context.Context) context.Context {
	return detachedContext{ctx}
}

type detachedContext struct{ parent context.Context }

func (detachedContext) Deadline() (time.Time, bool) { return time.Time{}, false }
func (detachedContext) Done() <-chan struct{}       { return nil }
func (detachedContext) Err() error                  { return nil }
func (d detachedContext) Value(key any) any         { return d.parent.Value(key) }

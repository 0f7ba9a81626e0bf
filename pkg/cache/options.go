package cache

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/omeyang/racecache/internal/xlog"
)

type config struct {
	ttl         time.Duration
	keyPrefix   string
	lockTimeout time.Duration
	logger      *xlog.Logger
	localCache  *ristretto.Cache[string, []byte]
	metrics     MetricsRecorder
}

func defaultConfig() *config {
	return &config{
		ttl:         30 * time.Second,
		keyPrefix:   "nwloader",
		lockTimeout: 10 * time.Second,
		logger:      xlog.New(nil),
		metrics:     noopMetrics{},
	}
}

// Option configures a Loader.
type Option func(*config)

// WithTTL sets the user-facing freshness window T. Data is stored with an
// actual expiry of 2T; a remaining TTL above T is fresh, at or below it is
// stale-but-usable. Must be at least 2 seconds.
func WithTTL(d time.Duration) Option {
	return func(c *config) { c.ttl = d }
}

// WithKeyPrefix overrides the default "nwloader" prefix used to build the
// data key {keyPrefix}:{name}:{derivedKey}.
func WithKeyPrefix(prefix string) Option {
	return func(c *config) {
		if prefix != "" {
			c.keyPrefix = prefix
		}
	}
}

// WithLockTimeout sets the timeout passed to the underlying racelock.Race
// call guarding a refresh.
func WithLockTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.lockTimeout = d
		}
	}
}

// WithLogger overrides the logger used for parse failures, prime failures,
// and swallowed background refresh errors.
func WithLogger(l *xlog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithLocalCache adds an in-process L1 in front of the distributed store.
// Entries are cached locally for up to the configured TTL — freshness
// decisions still always consult the distributed store's TTL, so L1 only
// saves the value fetch, never the staleness check.
func WithLocalCache(c *ristretto.Cache[string, []byte]) Option {
	return func(cfg *config) {
		cfg.localCache = c
	}
}

// WithMetrics attaches a MetricsRecorder. Without one, metrics are a no-op.
func WithMetrics(m MetricsRecorder) Option {
	return func(c *config) {
		if m != nil {
			c.metrics = m
		}
	}
}

package racelock

import (
	"time"

	"github.com/omeyang/racecache/internal/xlog"
)

type options struct {
	keyPrefix      string
	checkLockDelay time.Duration
	defaultTimeout time.Duration
	unlockTimeout  time.Duration
	logger         *xlog.Logger
}

func defaultOptions() *options {
	return &options{
		keyPrefix:      "nwlock",
		checkLockDelay: 100 * time.Millisecond,
		defaultTimeout: 10 * time.Second,
		unlockTimeout:  5 * time.Second,
		logger:         xlog.New(nil),
	}
}

// Option configures a Lock.
type Option func(*options)

// WithKeyPrefix overrides the default "nwlock" prefix used to namespace
// every lock key this Lock touches.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.keyPrefix = prefix
		}
	}
}

// WithCheckLockDelay sets the poll interval used by All while waiting for a
// contended lock, and by the Race(ignore=false) wait-for-release path.
func WithCheckLockDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.checkLockDelay = d
		}
	}
}

// WithDefaultTimeout sets the lock TTL used when All or Race is called with
// timeout <= 0.
func WithDefaultTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.defaultTimeout = d
		}
	}
}

// WithUnlockTimeout bounds how long a deferred Release may run for, detached
// from the caller's context, once the guarded task has returned.
func WithUnlockTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.unlockTimeout = d
		}
	}
}

// WithLogger overrides the logger used to report release failures, which
// are swallowed (the task's own result already took priority).
func WithLogger(l *xlog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

package racelock

import (
	"context"
	"time"
)

// Locker is the pluggable backend Lock builds All and Race on top of. A
// single non-blocking acquisition attempt is all that is required — All and
// Race supply their own polling and single-flight semantics above it.
//
// Implementations: the default KeyStore-backed locker (NewRedis), a Redlock
// adapter over multiple independent Redis nodes (NewRedsyncLocker), and an
// etcd session-lease adapter (NewEtcdLocker).
type Locker interface {
	// TryAcquire makes a single attempt to acquire key for ttl. It returns
	// a non-nil Handle on success, (nil, nil) if the lock is currently
	// held by someone else, and (nil, err) on a transport failure.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (Handle, error)
}

// Handle represents a held lock and is the only way to release it.
type Handle interface {
	// Release gives up the lock. It returns ErrNotHeld if the lock had
	// already expired or been stolen by a later acquirer.
	Release(ctx context.Context) error
}

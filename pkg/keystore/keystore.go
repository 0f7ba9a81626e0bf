// Package keystore defines the capability interface racelock and cache are
// built on: get/set/del/ttl/eval against a Redis-compatible backend.
//
// The adapter performs no serialization of its own — it moves opaque byte
// blobs. Everything above this package (key derivation, TTL-based freshness
// inference, lock tokens) is store-agnostic beyond these five operations.
package keystore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent. TTL reports an
// absent key as TTLAbsent instead.
var ErrNotFound = errors.New("keystore: key not found")

// ErrNotSet is returned by Set when a create-only write loses a race to an
// existing key.
var ErrNotSet = errors.New("keystore: create-only write found existing key")

// TTL sentinel values, mirroring Redis TTL semantics.
const (
	// TTLNoExpire is returned when the key exists but carries no expiry.
	TTLNoExpire = -1 * time.Second
	// TTLAbsent is returned when the key does not exist.
	TTLAbsent = -2 * time.Second
)

// Store is the capability contract every component above this package
// depends on. All operations are atomic at the store level and may fail
// with a transport error.
type Store interface {
	// Get returns the raw blob stored under k, or ErrNotFound if absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores v under key with the given expiry. expire <= 0 means no
	// expiry. When createOnly is true, the write only succeeds if key is
	// currently absent (Redis SET NX); on conflict it returns ErrNotSet.
	Set(ctx context.Context, key string, value []byte, expire time.Duration, createOnly bool) error

	// Del unconditionally removes key, returning the number of keys
	// removed (0 or 1).
	Del(ctx context.Context, key string) (int64, error)

	// TTL returns the remaining time to live for key: TTLNoExpire if the
	// key exists without an expiry, TTLAbsent if it does not exist.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Eval runs script atomically on the store, with the given keys and
	// arguments, and returns its result. Used by racelock's token-guarded
	// release script.
	Eval(ctx context.Context, script string, keys []string, args ...any) (any, error)
}

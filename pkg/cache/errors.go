package cache

import "errors"

// Predefined errors, matched with errors.Is. They map onto the failure
// taxonomy a caller needs to distinguish: validation happened at
// construction, the store misbehaved, the user loader itself failed, a
// stored entry failed to decode, or a background refresh failed after the
// caller already had a value to use.
var (
	// ErrNilContext is returned by Load, Prime, and Clear when called with
	// a nil context.Context.
	ErrNilContext = errors.New("cache: context must not be nil")

	// ErrInvalidName is returned by New when name fails the loader name
	// pattern (non-empty, [A-Za-z0-9:_.\-\[\]]+).
	ErrInvalidName = errors.New("cache: invalid loader name")

	// ErrNilStore is returned by New when store is nil.
	ErrNilStore = errors.New("cache: store must not be nil")

	// ErrNilLock is returned by New when lock is nil.
	ErrNilLock = errors.New("cache: lock must not be nil")

	// ErrNilLoadFunc is returned by New when fn is nil.
	ErrNilLoadFunc = errors.New("cache: load function must not be nil")

	// ErrInvalidTTL is returned by New when the configured TTL is below
	// the 2-second floor.
	ErrInvalidTTL = errors.New("cache: ttl must be at least 2 seconds")

	// ErrDeriveKey wraps a failure to canonicalize non-scalar Load
	// arguments into a cache key.
	ErrDeriveKey = errors.New("cache: failed to derive key from arguments")

	// ErrEncode wraps a failure to marshal a value for storage.
	ErrEncode = errors.New("cache: failed to encode value for storage")

	// ErrLoaderFailed wraps an error returned by the caller-supplied load
	// function.
	ErrLoaderFailed = errors.New("cache: load function failed")
)

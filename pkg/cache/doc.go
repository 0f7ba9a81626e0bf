// Package cache implements a read-through cache with single-flight loading
// and stale-while-revalidate refresh, backed by a keystore.Store and
// coordinated across processes with a racelock.Lock.
//
// # Key derivation
//
// Load's arguments are turned into a base key by derive: a single string or
// number argument passes through unchanged, anything else is canonicalized
// to JSON and MD5-hashed. The data key actually stored is
// {keyPrefix}:{name}:{baseKey}; the same baseKey also names the
// racelock.Lock guarding refreshes for that entry.
//
// # Freshness
//
// A successful refresh stores its value with an expiry of 2T, where T is
// the configured TTL. The remaining TTL on read tells Load what to do:
// above T the entry is fresh and returned as-is; at or below T (including
// the defensive TTLNoExpire/TTLAbsent edges) it is stale — Load still
// returns it immediately, but first kicks off a refresh detached from the
// caller's own context so an early-returning caller doesn't cancel it.
//
// # Single-flight
//
// A cache miss has no value to return early, so Load blocks on the refresh.
// Concurrent callers for the same key, whether in this process or another,
// are collapsed onto exactly one invocation of the configured load
// function: in-process callers share one racelock.Race attempt via
// golang.org/x/sync/singleflight, and that attempt itself is single-flighted
// across processes by the lock. A caller that loses the cross-process race
// re-reads the cache once the lock is free rather than trusting any value
// racelock.Race itself returned for that path.
package cache

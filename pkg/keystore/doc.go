// Package keystore provides the Redis-compatible storage capability that
// racelock and cache are layered on top of: get, set (with expiry and
// create-only mode), del, ttl, and eval of a short server-side script.
//
// # Scope
//
// keystore does not know about cache entries, TTL-freshness policy, or lock
// tokens — those live in the cache and racelock packages. It only moves
// opaque byte blobs atomically.
package keystore

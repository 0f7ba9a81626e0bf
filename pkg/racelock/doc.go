// Package racelock provides a distributed lock with two acquisition modes
// used by cache to serialize and single-flight cache refreshes across
// process boundaries.
//
// All(name, timeout, task) serializes: callers queue up and poll for a
// contended lock with no upper bound beyond ctx, each eventually running
// task exactly once.
//
// Race(name, timeout, task, ignore) single-flights: exactly one acquisition
// attempt is made. The winner runs task once. A loser either returns
// immediately (ignore=true) or waits for the lock to be observed free
// before returning (ignore=false) — in the latter case the caller is
// expected to re-read whatever task would have produced, since nothing
// here guarantees the winner has actually finished.
//
// The default Lock (NewRedis) is built directly on a keystore.Store: a
// create-only Set acquires, a token-guarded Lua script releases only the
// holder that still owns the key, which is what prevents a lock from being
// released out from under a later acquirer after it expired. Locker is
// exported so Redlock (NewRedsyncLocker) or etcd (NewEtcdLocker) can be
// swapped in without changing call sites.
package racelock

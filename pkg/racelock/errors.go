package racelock

import "errors"

// Predefined errors, matched with errors.Is.
var (
	// ErrNilContext is returned by every public entry point when called
	// with a nil context.Context instead of panicking.
	ErrNilContext = errors.New("racelock: context must not be nil")

	// ErrEmptyName is returned when the lock name is empty.
	ErrEmptyName = errors.New("racelock: name must not be empty")

	// ErrNotHeld is returned by Handle.Release when the lock has already
	// expired or was stolen by a later acquirer — the token comparison in
	// the safe-release script came back false.
	ErrNotHeld = errors.New("racelock: lock not held (expired or stolen)")

	// ErrNilLocker is returned by New when locker is nil.
	ErrNilLocker = errors.New("racelock: locker must not be nil")

	// ErrNilStore is returned by NewRedis when store is nil.
	ErrNilStore = errors.New("racelock: store must not be nil")

	// ErrNilTask is returned by All/Race when task is nil.
	ErrNilTask = errors.New("racelock: task must not be nil")
)

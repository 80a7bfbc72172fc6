// Package lock provides per-player locking for concurrent ledger operations.
// Operations on the same player serialize; different players never contend.
package lock

import (
	"sync"
)

// playerMutex wraps a mutex with reference counting for pool reuse.
type playerMutex struct {
	mu       sync.Mutex
	refCount int
}

// PlayerLock provides per-player locking to prevent race conditions
// during balance mutations (the check-then-act window on withdraw and
// stake reservation).
type PlayerLock struct {
	locks sync.Map // map[string]*playerMutex
	pool  sync.Pool
}

// NewPlayerLock creates a new PlayerLock instance.
func NewPlayerLock() *PlayerLock {
	return &PlayerLock{
		pool: sync.Pool{
			New: func() any {
				return &playerMutex{}
			},
		},
	}
}

// getLock retrieves or creates a mutex for the given player ID.
func (pl *PlayerLock) getLock(playerID string) *playerMutex {
	if v, ok := pl.locks.Load(playerID); ok {
		return v.(*playerMutex)
	}

	newLock := pl.pool.Get().(*playerMutex)
	newLock.refCount = 0

	actual, loaded := pl.locks.LoadOrStore(playerID, newLock)
	if loaded {
		// Another goroutine created the lock first, return ours to pool.
		pl.pool.Put(newLock)
	}
	return actual.(*playerMutex)
}

// Lock acquires the lock for a player.
// This must be held across any balance-modifying operation.
func (pl *PlayerLock) Lock(playerID string) {
	lock := pl.getLock(playerID)
	lock.mu.Lock()
	lock.refCount++
}

// Unlock releases the lock for a player.
func (pl *PlayerLock) Unlock(playerID string) {
	if v, ok := pl.locks.Load(playerID); ok {
		lock := v.(*playerMutex)
		lock.refCount--
		lock.mu.Unlock()
	}
}

// TryLock attempts to acquire the lock without blocking.
func (pl *PlayerLock) TryLock(playerID string) bool {
	lock := pl.getLock(playerID)
	if lock.mu.TryLock() {
		lock.refCount++
		return true
	}
	return false
}

// WithLock executes a function while holding the player's lock.
func (pl *PlayerLock) WithLock(playerID string, fn func() error) error {
	pl.Lock(playerID)
	defer pl.Unlock(playerID)
	return fn()
}

// IsLocked checks if a player currently has an active lock.
// Point-in-time check, may change immediately after returning.
func (pl *PlayerLock) IsLocked(playerID string) bool {
	if v, ok := pl.locks.Load(playerID); ok {
		lock := v.(*playerMutex)
		if lock.mu.TryLock() {
			lock.mu.Unlock()
			return false
		}
		return true
	}
	return false
}

package persistence

import "sync"

// LockRegistry hands out one mutex per owner ID. Every mutating
// read-modify-write sequence on an owner holds that owner's lock for
// its full duration; two-owner operations acquire in ascending ID
// order so opposite-direction encounters cannot deadlock.
type LockRegistry struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewLockRegistry creates an empty registry.
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: make(map[int64]*sync.Mutex)}
}

func (r *LockRegistry) mutex(ownerID int64) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.locks[ownerID]
	if !ok {
		m = &sync.Mutex{}
		r.locks[ownerID] = m
	}
	return m
}

// Lock acquires the exclusive lock for one owner and returns the
// release function.
func (r *LockRegistry) Lock(ownerID int64) func() {
	m := r.mutex(ownerID)
	m.Lock()
	return m.Unlock
}

// LockPair acquires both owners' locks in ascending ID order and
// returns a single release function.
func (r *LockRegistry) LockPair(a, b int64) func() {
	if a == b {
		return r.Lock(a)
	}
	first, second := a, b
	if second < first {
		first, second = second, first
	}
	m1 := r.mutex(first)
	m2 := r.mutex(second)
	m1.Lock()
	m2.Lock()
	return func() {
		m2.Unlock()
		m1.Unlock()
	}
}

package trader

import "sync"

// UserLocks serializes state changes per user. Different users never block
// each other.
type UserLocks struct {
	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

func NewUserLocks() *UserLocks {
	return &UserLocks{locks: make(map[uint]*sync.Mutex)}
}

// Lock blocks until the user's lock is held and returns the matching unlock.
func (l *UserLocks) Lock(userID uint) func() {
	l.mu.Lock()
	m, ok := l.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[userID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

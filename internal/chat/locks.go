package chat

import "sync"

// userLocks serializes turn execution per user so that an in-flight turn is
// never interleaved with a second request for the same user. Different users
// never contend. Locks are created on first use and kept for the process
// lifetime; the per-user footprint is one mutex.
type userLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[int64]*sync.Mutex)}
}

// get returns the mutex for the given user, creating it if needed.
func (l *userLocks) get(userID int64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[userID] = lock
	}
	return lock
}

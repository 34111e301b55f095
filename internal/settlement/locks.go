package settlement

import "sync"

// UserLocks serializes settlement per user inside this process.
// Entries are reference counted and dropped once nobody holds or waits on them.
type UserLocks struct {
	mu    sync.Mutex
	locks map[uint]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func NewUserLocks() *UserLocks {
	return &UserLocks{
		locks: make(map[uint]*userLock),
	}
}

// Lock blocks until userID's lock is held and returns its release func
func (l *UserLocks) Lock(userID uint) func() {
	l.mu.Lock()
	entry := l.locks[userID]
	if entry == nil {
		entry = &userLock{}
		l.locks[userID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}

// Len is the number of users currently holding or waiting on a lock
func (l *UserLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

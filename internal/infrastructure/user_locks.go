package infrastructure

import "sync"

type userLock struct {
	mu   sync.Mutex
	refs int
}

// UserLocks hands out one mutex per user id. Entries are dropped once no
// goroutine holds or waits on them.
type UserLocks struct {
	mu    sync.Mutex
	locks map[int64]*userLock
}

func NewUserLocks() *UserLocks {
	return &UserLocks{locks: make(map[int64]*userLock)}
}

// Lock blocks until the caller owns userID and returns the release func.
func (ul *UserLocks) Lock(userID int64) func() {
	ul.mu.Lock()
	l, ok := ul.locks[userID]
	if !ok {
		l = &userLock{}
		ul.locks[userID] = l
	}
	l.refs++
	ul.mu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			ul.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(ul.locks, userID)
			}
			ul.mu.Unlock()
		})
	}
}

// Held reports how many user ids currently have a holder or waiter.
func (ul *UserLocks) Held() int {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	return len(ul.locks)
}

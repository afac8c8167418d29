package service

import "sync"

// DealLocks serialises in-process writers per deal. The database row lock is
// the backstop across processes; this keeps a single instance from queueing
// conflicting transactions against the same deal at all.
type DealLocks struct {
	mu    sync.Mutex
	locks map[string]*dealLock
}

type dealLock struct {
	mu   sync.Mutex
	refs int
}

// NewDealLocks creates an empty lock table.
func NewDealLocks() *DealLocks {
	return &DealLocks{locks: make(map[string]*dealLock)}
}

// Lock acquires the mutex for key, creating it on first use. The returned
// function releases the mutex and drops the entry once no goroutine holds or
// waits on it, so the table does not grow with the number of deals ever seen.
func (d *DealLocks) Lock(key string) (unlock func()) {
	d.mu.Lock()
	l, ok := d.locks[key]
	if !ok {
		l = &dealLock{}
		d.locks[key] = l
	}
	l.refs++
	d.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		d.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(d.locks, key)
		}
		d.mu.Unlock()
	}
}

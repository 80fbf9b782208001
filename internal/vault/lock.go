package vault

import "sync"

// locker serializes writers per absolute path. Entries are reference
// counted and removed once the last holder releases.
type locker struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

func newLocker() *locker {
	return &locker{locks: make(map[string]*pathLock)}
}

func (l *locker) lock(path string) func() {
	l.mu.Lock()
	pl, ok := l.locks[path]
	if !ok {
		pl = &pathLock{}
		l.locks[path] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.mu.Lock()

	return func() {
		pl.mu.Unlock()

		l.mu.Lock()
		pl.refs--
		if pl.refs == 0 {
			delete(l.locks, path)
		}
		l.mu.Unlock()
	}
}

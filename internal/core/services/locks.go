package services

import (
	"sort"
	"sync"
)

// keyLocker hands out one mutex per key. Entries are reference counted and
// removed once nobody holds or waits on them.
type keyLocker struct {
	enabled bool
	mu      sync.Mutex
	locks   map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

func newKeyLocker(enabled bool) *keyLocker {
	return &keyLocker{enabled: enabled, locks: make(map[string]*keyLock)}
}

// lock acquires keys in sorted order and returns the matching unlock.
func (l *keyLocker) lock(keys ...string) func() {
	if !l.enabled || len(keys) == 0 {
		return func() {}
	}
	keys = append([]string(nil), keys...)
	sort.Strings(keys)

	l.mu.Lock()
	acquired := make([]*keyLock, 0, len(keys))
	for _, k := range keys {
		m := l.locks[k]
		if m == nil {
			m = &keyLock{}
			l.locks[k] = m
		}
		m.refs++
		acquired = append(acquired, m)
	}
	l.mu.Unlock()

	for _, m := range acquired {
		m.Lock()
	}
	return func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			acquired[i].Unlock()
		}
		l.mu.Lock()
		for i, k := range keys {
			if acquired[i].refs--; acquired[i].refs == 0 {
				delete(l.locks, k)
			}
		}
		l.mu.Unlock()
	}
}

func (l *keyLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

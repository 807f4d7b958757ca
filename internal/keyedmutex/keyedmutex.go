// Package keyedmutex serialises work per string key inside one process.
package keyedmutex

import "sync"

// Mutex hands out one lock per key and forgets keys nobody holds.
type Mutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

// New returns an empty Mutex.
func New() *Mutex {
	return &Mutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is free and returns the unlock func.
func (k *Mutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refMutex{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()

	return func() {
		l.Unlock()

		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Len returns the number of keys held or waited for.
func (k *Mutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	return len(k.locks)
}

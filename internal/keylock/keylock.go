// Package keylock provides mutual exclusion scoped to string keys.
package keylock

import (
	"sort"
	"sync"
)

// KeyLock hands out one mutex per key. Mutexes are reference counted and
// released from the map once no goroutine holds or waits on them.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New creates an empty KeyLock
func New() *KeyLock {
	return &KeyLock{locks: make(map[string]*entry)}
}

// Lock blocks until the key is held by the caller
func (k *KeyLock) Lock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the key
func (k *KeyLock) Unlock(key string) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		k.mu.Unlock()
		panic("keylock: unlock of unlocked key " + key)
	}
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()

	e.mu.Unlock()
}

// LockAll acquires every distinct key in sorted order and returns a function
// releasing them. Sorting keeps two callers with overlapping key sets from deadlocking.
func (k *KeyLock) LockAll(keys []string) func() {
	unique := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, key)
	}
	sort.Strings(unique)

	for _, key := range unique {
		k.Lock(key)
	}
	return func() {
		for i := len(unique) - 1; i >= 0; i-- {
			k.Unlock(unique[i])
		}
	}
}

// Len returns the number of keys currently held or awaited
func (k *KeyLock) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

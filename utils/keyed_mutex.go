package utils

import "sync"

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

// KeyedMutex serializes work per key. Entries are dropped once no goroutine holds or waits on them.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[uint]*keyedEntry
}

// NewKeyedMutex returns an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: map[uint]*keyedEntry{}}
}

// Lock blocks until the key is free and returns the matching unlock function.
func (k *KeyedMutex) Lock(key uint) func() {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &keyedEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}

// Len reports how many keys are currently tracked.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

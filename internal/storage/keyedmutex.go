package storage

import "sync"

// KeyedMutex provides mutual exclusion scoped to a string key.
// Unrelated keys do not contend with each other. Entries are reference
// counted and removed once the last holder releases the key, so the map
// does not grow with the number of distinct keys ever seen.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

type keyedEntry struct {
	refs int
	mu   sync.Mutex
}

// NewKeyedMutex creates an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*keyedEntry)}
}

// Lock acquires the mutex for key and returns the corresponding unlock
// function. The unlock function must be called exactly once.
func (k *KeyedMutex) Lock(key string) func() {
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

// TryLock attempts to acquire the mutex for key without blocking.
// It returns the unlock function and true on success, or nil and false
// if the key is already held.
func (k *KeyedMutex) TryLock(key string) (func(), bool) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &keyedEntry{}
		k.entries[key] = e
	}
	if !e.mu.TryLock() {
		k.mu.Unlock()
		return nil, false
	}
	e.refs++
	k.mu.Unlock()

	return func() {
		e.mu.Unlock()

		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}, true
}

package infrastructure

import (
	"sync"
)

// keyedLock is one key's mutex plus the number of holders and waiters.
type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// KeyedMutex serializes work per key. Different keys never block each other,
// and a key's entry is dropped once nobody holds or waits on it.
type KeyedMutex struct {
	locks map[string]*keyedLock
	mu    sync.Mutex
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{
		locks: make(map[string]*keyedLock),
	}
}

// Lock blocks until key is free and returns its unlock func.
func (km *KeyedMutex) Lock(key string) (unlock func()) {
	km.mu.Lock()
	l, exists := km.locks[key]
	if !exists {
		l = &keyedLock{}
		km.locks[key] = l
	}
	l.refs++
	km.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		km.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(km.locks, key)
		}
		km.mu.Unlock()
	}
}

// Len returns how many keys are currently held or awaited.
func (km *KeyedMutex) Len() int {
	km.mu.Lock()
	defer km.mu.Unlock()
	return len(km.locks)
}

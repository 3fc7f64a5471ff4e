package sync

import (
	stdsync "sync"
)

// keyedMutex hands out one mutex per key. The engine keys by user id so all
// classify, resolve, and export work for a user runs serialized, while
// distinct users proceed in parallel. Entries live for the lifetime of the
// engine.
type keyedMutex struct {
	mu    stdsync.Mutex
	locks map[string]*stdsync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*stdsync.Mutex)}
}

// lock acquires the mutex for key and returns its unlock function.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &stdsync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

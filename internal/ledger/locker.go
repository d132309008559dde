package ledger

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// KeyedLocker serialises callers per key inside one process. Entries are
// reference counted and dropped once no caller holds or waits on them.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	sem  *semaphore.Weighted
	refs int
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free or ctx is done. The returned func releases
// the key and is safe to call more than once.
func (k *KeyedLocker) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedEntry{sem: semaphore.NewWeighted(1)}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	if err := entry.sem.Acquire(ctx, 1); err != nil {
		k.drop(key, entry)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.sem.Release(1)
			k.drop(key, entry)
		})
	}, nil
}

func (k *KeyedLocker) drop(key string, entry *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(k.locks, key)
	}
}

// Len reports how many keys are currently held or awaited.
func (k *KeyedLocker) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

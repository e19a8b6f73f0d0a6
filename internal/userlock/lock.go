// Package userlock serializes state-mutating work per user key.
//
// A second operation queued for the same key runs only after the current
// holder completes, success or failure. Different keys never block each
// other. Ordering among waiters for one key is not guaranteed beyond
// mutual exclusion and eventual progress.
package userlock

import (
	"context"
	"sync"
)

type entry struct {
	sem     chan struct{} // capacity 1
	waiters int
}

// Keyed provides mutual exclusion per string key.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty keyed lock.
func New() *Keyed {
	return &Keyed{
		entries: make(map[string]*entry),
	}
}

// Do runs fn while holding the lock for key. The lock is released on every
// exit path; fn's error is returned unchanged. If ctx is cancelled before
// the lock is acquired, fn never runs and the context error is returned.
func (k *Keyed) Do(ctx context.Context, key string, fn func() error) error {
	e := k.ref(key)

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		k.unref(key, e)
		return ctx.Err()
	}

	defer func() {
		<-e.sem
		k.unref(key, e)
	}()

	return fn()
}

// ref returns the entry for key, creating it if needed, and counts the caller
// as a waiter so the entry survives until everyone interested is done.
func (k *Keyed) ref(key string) *entry {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.waiters++
	return e
}

func (k *Keyed) unref(key string, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e.waiters--
	if e.waiters == 0 {
		delete(k.entries, key)
	}
}

// Len reports how many keys currently have a live entry. Intended for
// introspection and tests.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

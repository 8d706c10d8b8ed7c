// Package syncx provides the mutual-exclusion primitives used by the
// artifact pipelines: a per-key lock serializing metadata read-modify-write
// cycles, and a process-wide single-flight guard for long-running jobs.
package syncx

import "sync"

// PathLocker serializes work per key (typically a filesystem path). Tasks
// for the same key run one at a time; tasks for different keys proceed
// independently. A task's error releases the lock and is returned to its
// caller without affecting queued tasks.
type PathLocker struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

func NewPathLocker() *PathLocker {
	return &PathLocker{locks: make(map[string]*pathLock)}
}

// WithLock runs fn while holding the exclusive lock for key.
func (l *PathLocker) WithLock(key string, fn func() error) error {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &pathLock{}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	defer func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}()

	return fn()
}

package syncx

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithLockSerializesSameKey(t *testing.T) {
	l := NewPathLocker()

	var mu sync.Mutex
	var inside, maxInside int

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock("store.json", func() error {
				mu.Lock()
				inside++
				if inside > maxInside {
					maxInside = inside
				}
				mu.Unlock()

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside, "at most one task per key may run at a time")
}

func TestWithLockIndependentKeys(t *testing.T) {
	l := NewPathLocker()

	started := make(chan struct{})
	releaseA := make(chan struct{})

	go func() {
		_ = l.WithLock("a", func() error {
			close(started)
			<-releaseA
			return nil
		})
	}()

	<-started
	// a different key must not be blocked by the held lock for "a"
	done := make(chan struct{})
	go func() {
		_ = l.WithLock("b", func() error { return nil })
		close(done)
	}()

	<-done
	close(releaseA)
}

func TestWithLockErrorReleasesLock(t *testing.T) {
	l := NewPathLocker()
	boom := errors.New("boom")

	err := l.WithLock("k", func() error { return boom })
	assert.ErrorIs(t, err, boom)

	// the failed task must not wedge the key
	err = l.WithLock("k", func() error { return nil })
	assert.NoError(t, err)
}

func TestWithLockCleansUpEntries(t *testing.T) {
	l := NewPathLocker()
	_ = l.WithLock("k", func() error { return nil })

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Empty(t, l.locks)
}

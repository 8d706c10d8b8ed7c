package syncx

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobGuardSingleFlight(t *testing.T) {
	g := NewJobGuard()

	var started, rejected atomic.Int32
	var releases []func()
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if release, ok := g.Begin(); ok {
				started.Add(1)
				mu.Lock()
				releases = append(releases, release)
				mu.Unlock()
			} else {
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), started.Load(), "exactly one caller may start")
	assert.Equal(t, int32(9), rejected.Load())

	require.Len(t, releases, 1)
	releases[0]()

	// slot is reusable after release
	release, ok := g.Begin()
	require.True(t, ok)
	release()
}

func TestJobGuardReleaseIdempotent(t *testing.T) {
	g := NewJobGuard()

	release, ok := g.Begin()
	require.True(t, ok)
	assert.True(t, g.Running())

	release()
	release() // double release must not free someone else's slot

	r2, ok := g.Begin()
	require.True(t, ok)
	assert.True(t, g.Running())

	release() // stale release from the first job
	assert.True(t, g.Running(), "stale release must not clear the active job")

	r2()
	assert.False(t, g.Running())
}

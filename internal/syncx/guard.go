package syncx

import "sync"

// JobGuard admits at most one in-flight job process-wide. There is no
// queueing: a caller that loses the race gets ok=false and must re-poll
// or retry later.
type JobGuard struct {
	mu      sync.Mutex
	running bool
}

func NewJobGuard() *JobGuard {
	return &JobGuard{}
}

// Begin claims the single job slot. On success it returns a release
// function to call when the job reaches a terminal state, success or
// failure. Release is idempotent: only the first call frees the slot.
func (g *JobGuard) Begin() (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running {
		return nil, false
	}
	g.running = true

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.running = false
			g.mu.Unlock()
		})
	}, true
}

// Running reports whether a job currently holds the slot.
func (g *JobGuard) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

package session

import (
	"sync"
	"sync/atomic"
)

// Guard runs the session bootstrap at most once. Concurrent callers block until
// the single run has completed.
type Guard struct {
	once sync.Once
	done atomic.Bool
}

// ProcessGuard is the guard shared by every controller in the process
var ProcessGuard = &Guard{}

// Do runs fn if no previous call did and reports whether this call ran it
func (g *Guard) Do(fn func()) bool {
	ran := false
	g.once.Do(func() {
		ran = true
		defer g.done.Store(true)
		fn()
	})
	return ran
}

// Initialized reports whether the guarded function has completed
func (g *Guard) Initialized() bool {
	return g.done.Load()
}

package camera

import "sync/atomic"

// dispatchGate is the single-slot inference dispatcher. Decision cycles
// are slower than capture; while one is in flight every further frame
// is dropped. There is deliberately no queue: a stale classroom frame
// has no value by the time the worker frees up.
type dispatchGate struct {
	busy atomic.Bool
}

// tryDispatch runs fn on its own goroutine if the slot is free and
// reports whether it was taken. The slot frees when fn returns.
func (g *dispatchGate) tryDispatch(fn func()) bool {
	if !g.busy.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		defer g.busy.Store(false)
		fn()
	}()
	return true
}

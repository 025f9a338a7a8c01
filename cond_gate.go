package syncore

import "sync"

// CondGate is a [Signal] made of a mutex, a condition variable and a
// boolean predicate. It trades the speed of [Gate] for relying only on
// package sync, which keeps it visible to the race detector.
//
// It is zero-value usable (starts closed).
type CondGate struct {
	_    noCopy
	mu   sync.Mutex
	cond sync.Cond
	open bool
	// gen advances on every Open so a waiter released by an Open is not
	// re-blocked by a Close that lands before it is rescheduled.
	gen uint64
}

// Wait blocks until the gate is opened.
func (g *CondGate) Wait() {
	g.mu.Lock()
	if g.cond.L == nil {
		g.cond.L = &g.mu
	}
	gen := g.gen
	for !g.open && g.gen == gen {
		g.cond.Wait()
	}
	g.mu.Unlock()
}

// Set opens or closes the gate. Opening wakes every waiter.
func (g *CondGate) Set(open bool) {
	g.mu.Lock()
	if g.cond.L == nil {
		g.cond.L = &g.mu
	}
	if open && !g.open {
		g.gen++
		g.cond.Broadcast()
	}
	g.open = open
	g.mu.Unlock()
}

// IsOpen reports whether the gate is open.
func (g *CondGate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

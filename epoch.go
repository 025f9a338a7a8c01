package syncore

import (
	"sync/atomic"

	"github.com/llxisdsh/syncore/internal/opt"
)

// Epoch is a monotonically increasing counter that supports "wait for target" semantics.
//
// Features:
//   - Add(n): Advances the epoch by n.
//   - WaitAtLeast(n): Blocks until the epoch reaches at least n.
//
// Waiters are kept in a list and only those whose target is met are woken.
// Reading Current before checking a condition and then waiting for
// Current()+1 never misses an Add that happens in between.
//
// Example:
//
//	var e Epoch
//	go func() { e.WaitAtLeast(5); print("Reached 5!") }()
//	e.Add(5) // Wakes the waiter
type Epoch struct {
	_     noCopy
	value atomic.Uint64
	// waiting lets Add skip the lock when nobody is parked.
	waiting atomic.Int32
	mu      TicketLock
	head    *epochWaiter
	tail    *epochWaiter
}

type epochWaiter struct {
	target uint64
	sema   opt.Sema
	// next is protected by Epoch.mu
	next *epochWaiter
}

// Current returns the current epoch value.
func (e *Epoch) Current() uint64 {
	return e.value.Load()
}

// Add advances the epoch by delta, wakes waiters whose targets are met and
// returns the new value.
func (e *Epoch) Add(delta uint64) uint64 {
	if delta == 0 {
		return e.Current()
	}
	v := e.value.Add(delta)
	if e.waiting.Load() == 0 {
		return v
	}

	e.mu.Lock()
	var prev *epochWaiter
	for w := e.head; w != nil; w = w.next {
		if w.target > v {
			prev = w
			continue
		}
		if prev == nil {
			e.head = w.next
		} else {
			prev.next = w.next
		}
		if w == e.tail {
			e.tail = prev
		}
		e.waiting.Add(-1)
		w.sema.Release()
	}
	e.mu.Unlock()
	return v
}

// WaitAtLeast blocks until the epoch reaches at least the target value.
func (e *Epoch) WaitAtLeast(target uint64) {
	if e.value.Load() >= target {
		return
	}

	e.mu.Lock()
	e.waiting.Add(1)
	if e.value.Load() >= target {
		e.waiting.Add(-1)
		e.mu.Unlock()
		return
	}
	// Queue in arrival order so equal targets wake FIFO.
	w := &epochWaiter{target: target}
	if e.tail == nil {
		e.head = w
	} else {
		e.tail.next = w
	}
	e.tail = w
	e.mu.Unlock()

	w.sema.Acquire()
}

package syncore

import (
	"sync/atomic"
)

// TicketLock is a fair, FIFO (First-In-First-Out) spin-lock.
//
// Unlike sync.Mutex, which allows "barging" (newcomers can steal the lock),
// TicketLock guarantees that goroutines acquire the lock in the exact order they called Lock().
//
// It is the default [AtomicSection] of [FairRWLock]: the bookkeeping it guards
// is a handful of field updates, so waiting is a spin with adaptive delay.
// Enter returns the caller's ticket as the section token.
type TicketLock struct {
	_       noCopy
	next    atomic.Uint32
	serving atomic.Uint32
}

// Lock acquires the lock. Blocks until the lock is available.
func (m *TicketLock) Lock() {
	m.Enter()
}

// Unlock releases the lock.
func (m *TicketLock) Unlock() {
	m.serving.Add(1)
}

// TryLock acquires the lock only if nobody holds or waits for it.
func (m *TicketLock) TryLock() bool {
	s := m.serving.Load()
	return m.next.CompareAndSwap(s, s+1)
}

// Enter takes a ticket and waits until it is served.
func (m *TicketLock) Enter() SectionToken {
	my := m.next.Add(1) - 1
	var spins int
	for m.serving.Load() != my {
		delay(&spins)
	}
	return SectionToken(my)
}

// Leave serves the next ticket. The token must be the one returned by the
// matching Enter.
func (m *TicketLock) Leave(tok SectionToken) {
	if uint32(tok) != m.serving.Load() {
		panic("syncore: TicketLock left with a ticket that is not being served")
	}
	m.serving.Add(1)
}

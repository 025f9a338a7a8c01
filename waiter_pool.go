package syncore

import (
	"sync/atomic"
	"unsafe"

	"github.com/eapache/queue"
	"github.com/valyala/fastrand"
)

// LockWaiter is a queued [FairRWLock] request.
//
// A writer waiter always stands for exactly one goroutine. A reader waiter
// is shared by every reader that coalesced into it while it was the queue
// tail, and all of them are released by a single Set(true) on its signal.
type LockWaiter struct {
	writer bool
	// pending counts goroutines sharing this waiter. It only grows while
	// the waiter is queued (inside the section) and only shrinks after
	// the signal opens; whoever takes it to zero returns the waiter.
	pending atomic.Int32
	signal  Signal
	next    *LockWaiter
}

// NewLockWaiter returns a waiter parked on s, or on a new [Gate] if s is nil.
func NewLockWaiter(s Signal) *LockWaiter {
	if s == nil {
		s = new(Gate)
	}
	return &LockWaiter{signal: s}
}

// IsWriter reports whether the waiter is a writer request.
func (w *LockWaiter) IsWriter() bool {
	return w.writer
}

// Pending returns the number of goroutines sharing the waiter.
func (w *LockWaiter) Pending() int {
	return int(w.pending.Load())
}

// reset prepares a waiter for reuse.
func (w *LockWaiter) reset() {
	if w.pending.Load() != 0 {
		panic("syncore: LockWaiter released while goroutines still share it")
	}
	w.signal.Set(false)
	w.writer = false
	w.next = nil
}

// WaiterPool supplies and recycles [LockWaiter] values.
//
// Acquire returns a waiter with a closed signal, zero pending count and no
// queue link. Release takes back a waiter whose pending count is zero.
type WaiterPool interface {
	Acquire() *LockWaiter
	Release(w *LockWaiter)
}

var (
	_ WaiterPool = (*SlotPool)(nil)
	_ WaiterPool = (*QueuePool)(nil)
)

// defaultSlots is the slot count of the pool shared by FairRWLocks
// configured without one.
const defaultSlots = 64

var defaultWaiterPool = NewSlotPool(defaultSlots, nil)

// SlotPool is a lock-free cache of waiters.
//
// Slots are cache-line padded and probed with CAS from a random start, so
// concurrent Acquire/Release calls rarely touch the same line. An empty
// cache falls back to allocating a waiter together with a fresh signal; a
// Release into a full cache leaves the waiter to the garbage collector.
type SlotPool struct {
	_         noCopy
	slots     []waiterSlot
	newSignal func() Signal
}

type waiterSlot struct {
	w atomic.Pointer[LockWaiter]
	_ [(cacheLineSize - unsafe.Sizeof(atomic.Pointer[LockWaiter]{})%cacheLineSize) % cacheLineSize]byte
}

// NewSlotPool creates a pool with n slots. newSignal creates the signal of
// freshly allocated waiters; nil means [Gate].
func NewSlotPool(n int, newSignal func() Signal) *SlotPool {
	if n <= 0 {
		panic("syncore: slot count must be positive")
	}
	if newSignal == nil {
		newSignal = func() Signal { return new(Gate) }
	}
	return &SlotPool{
		slots:     make([]waiterSlot, n),
		newSignal: newSignal,
	}
}

// Acquire takes a cached waiter or allocates a new one.
func (p *SlotPool) Acquire() *LockWaiter {
	n := uint32(len(p.slots))
	start := fastrand.Uint32n(n)
	for i := range n {
		slot := &p.slots[(start+i)%n]
		if w := slot.w.Load(); w != nil && slot.w.CompareAndSwap(w, nil) {
			return w
		}
	}
	return NewLockWaiter(p.newSignal())
}

// Release resets w and caches it in the first free slot found.
func (p *SlotPool) Release(w *LockWaiter) {
	w.reset()
	n := uint32(len(p.slots))
	start := fastrand.Uint32n(n)
	for i := range n {
		slot := &p.slots[(start+i)%n]
		if slot.w.Load() == nil && slot.w.CompareAndSwap(nil, w) {
			return
		}
	}
}

// Cached returns the number of waiters currently held in the slots.
func (p *SlotPool) Cached() int {
	var c int
	for i := range p.slots {
		if p.slots[i].w.Load() != nil {
			c++
		}
	}
	return c
}

// QueuePool is a bounded FIFO free-list of waiters guarded by a [TicketLock].
// Reusing the least recently released waiter first spreads signal reuse
// evenly across the list.
type QueuePool struct {
	_         noCopy
	mu        TicketLock
	free      *queue.Queue
	limit     int
	newSignal func() Signal
}

// NewQueuePool creates a pool that keeps at most limit idle waiters.
// newSignal creates the signal of freshly allocated waiters; nil means [Gate].
func NewQueuePool(limit int, newSignal func() Signal) *QueuePool {
	if limit <= 0 {
		panic("syncore: queue pool limit must be positive")
	}
	if newSignal == nil {
		newSignal = func() Signal { return new(Gate) }
	}
	return &QueuePool{
		free:      queue.New(),
		limit:     limit,
		newSignal: newSignal,
	}
}

// Acquire pops the oldest idle waiter or allocates a new one.
func (p *QueuePool) Acquire() *LockWaiter {
	p.mu.Lock()
	if p.free.Length() > 0 {
		w := p.free.Remove().(*LockWaiter)
		p.mu.Unlock()
		return w
	}
	p.mu.Unlock()
	return NewLockWaiter(p.newSignal())
}

// Release resets w and appends it to the free-list unless the list is full.
func (p *QueuePool) Release(w *LockWaiter) {
	w.reset()
	p.mu.Lock()
	if p.free.Length() < p.limit {
		p.free.Add(w)
	}
	p.mu.Unlock()
}

// Idle returns the number of waiters on the free-list.
func (p *QueuePool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.free.Length()
}

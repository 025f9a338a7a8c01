package syncore

import "sync"

// LockHolder is the role currently owning a [FairRWLock].
type LockHolder uint8

const (
	// HolderNobody means the lock is free.
	HolderNobody LockHolder = iota
	// HolderReader means one or more readers share the lock.
	HolderReader
	// HolderWriter means a single writer owns the lock.
	HolderWriter
)

func (h LockHolder) String() string {
	switch h {
	case HolderNobody:
		return "nobody"
	case HolderReader:
		return "reader"
	case HolderWriter:
		return "writer"
	}
	return "invalid"
}

// FairRWLock is a fair, upgradable reader/writer lock.
//
// Requests that cannot be granted immediately wait in a FIFO queue of
// [LockWaiter] entries. A writer entry holds one goroutine. Readers that
// arrive while the queue tail is a reader entry join that entry, so a whole
// batch of readers is released by one signal when the writer ahead of them
// unlocks.
//
// Guarantees:
//   - At most one writer, and never a writer together with readers.
//   - Readers share the lock without blocking while nobody is queued.
//   - A queued writer is served before any reader that queued after it.
//   - Upgrade turns a read hold into a write hold, ahead of every queued request.
//
// Bookkeeping is guarded by an [AtomicSection]; waiters park on the
// [Signal] of their entry, which is always set outside the section.
//
// It is zero-value usable: the section defaults to an embedded [TicketLock]
// and waiters come from a package-wide [SlotPool].
type FairRWLock struct {
	_       noCopy
	mu      TicketLock
	section AtomicSection
	pool    WaiterPool

	holder LockHolder
	held   int32
	queued int32
	head   *LockWaiter
	tail   *LockWaiter
}

// FairRWLockConfig defines configurable options for FairRWLock initialization.
type FairRWLockConfig struct {
	// section guards the lock bookkeeping. If nil, an embedded TicketLock is used.
	section AtomicSection

	// pool supplies waiters. If nil, the package default SlotPool is used.
	pool WaiterPool
}

// WithSection configures the AtomicSection that guards the lock bookkeeping.
func WithSection(s AtomicSection) func(*FairRWLockConfig) {
	return func(c *FairRWLockConfig) {
		c.section = s
	}
}

// WithWaiterPool configures where the lock obtains and returns its waiters.
func WithWaiterPool(p WaiterPool) func(*FairRWLockConfig) {
	return func(c *FairRWLockConfig) {
		c.pool = p
	}
}

// NewFairRWLock creates a FairRWLock with the given options.
func NewFairRWLock(options ...func(*FairRWLockConfig)) *FairRWLock {
	var c FairRWLockConfig
	for _, o := range options {
		o(&c)
	}
	return &FairRWLock{section: c.section, pool: c.pool}
}

func (l *FairRWLock) enter() SectionToken {
	if l.section != nil {
		return l.section.Enter()
	}
	return l.mu.Enter()
}

func (l *FairRWLock) leave(tok SectionToken) {
	if l.section != nil {
		l.section.Leave(tok)
		return
	}
	l.mu.Leave(tok)
}

func (l *FairRWLock) waiters() WaiterPool {
	if l.pool != nil {
		return l.pool
	}
	return defaultWaiterPool
}

// pushBack appends w to the queue. Caller is inside the section.
func (l *FairRWLock) pushBack(w *LockWaiter) {
	if l.tail == nil {
		l.head = w
	} else {
		l.tail.next = w
	}
	l.tail = w
	l.queued++
}

// pushFront puts w ahead of every queued waiter. Caller is inside the section.
func (l *FairRWLock) pushFront(w *LockWaiter) {
	w.next = l.head
	l.head = w
	if l.tail == nil {
		l.tail = w
	}
	l.queued++
}

// popFront removes and returns the queue head, or nil. Caller is inside the section.
func (l *FairRWLock) popFront() *LockWaiter {
	w := l.head
	if w == nil {
		return nil
	}
	l.head = w.next
	if l.head == nil {
		l.tail = nil
	}
	w.next = nil
	l.queued--
	return w
}

// park blocks on w until it is granted, then drops this goroutine's share.
func (l *FairRWLock) park(w *LockWaiter) {
	w.signal.Wait()
	if w.pending.Add(-1) == 0 {
		l.waiters().Release(w)
	}
}

// RLock locks l for reading.
//
// It returns at once when the lock is free, or held by readers with nobody
// queued. Otherwise it joins the reader waiter at the queue tail, or queues
// a new one behind the tail writer, and blocks until that waiter is granted.
func (l *FairRWLock) RLock() {
	pool := l.waiters()
	w := pool.Acquire()

	tok := l.enter()
	switch {
	case l.holder == HolderNobody:
		l.holder, l.held = HolderReader, 1
		l.leave(tok)
		pool.Release(w)
		return
	case l.head == nil && l.holder == HolderReader:
		l.held++
		l.leave(tok)
		pool.Release(w)
		return
	}

	if t := l.tail; t != nil && !t.writer {
		t.pending.Add(1)
		l.leave(tok)
		pool.Release(w)
		w = t
	} else {
		w.writer = false
		w.pending.Store(1)
		l.pushBack(w)
		l.leave(tok)
	}
	l.park(w)
}

// TryRLock tries to lock l for reading without queuing and reports
// whether it succeeded.
func (l *FairRWLock) TryRLock() bool {
	tok := l.enter()
	defer l.leave(tok)
	switch {
	case l.holder == HolderNobody:
		l.holder, l.held = HolderReader, 1
		return true
	case l.head == nil && l.holder == HolderReader:
		l.held++
		return true
	}
	return false
}

// RUnlock undoes a single RLock call.
//
// The last reader out hands the lock to the queue head, which can only be
// a writer: readers never queue behind a reader hold unless a writer is
// already waiting ahead of them.
func (l *FairRWLock) RUnlock() {
	tok := l.enter()
	if l.holder != HolderReader || l.held <= 0 {
		l.leave(tok)
		panic("syncore: RUnlock of unlocked FairRWLock")
	}
	l.held--
	var next *LockWaiter
	if l.held == 0 {
		next = l.popFront()
		switch {
		case next == nil:
			l.holder = HolderNobody
		case !next.writer:
			l.leave(tok)
			panic("syncore: FairRWLock reader waiter at queue head while readers hold")
		default:
			l.holder, l.held = HolderWriter, 1
		}
	}
	l.leave(tok)
	if next != nil {
		next.signal.Set(true)
	}
}

// Lock locks l for writing. It returns at once when the lock is free and
// otherwise queues behind every earlier request.
func (l *FairRWLock) Lock() {
	pool := l.waiters()
	w := pool.Acquire()

	tok := l.enter()
	if l.holder == HolderNobody {
		l.holder, l.held = HolderWriter, 1
		l.leave(tok)
		pool.Release(w)
		return
	}
	w.writer = true
	w.pending.Store(1)
	l.pushBack(w)
	l.leave(tok)
	l.park(w)
}

// TryLock tries to lock l for writing without queuing and reports
// whether it succeeded.
func (l *FairRWLock) TryLock() bool {
	tok := l.enter()
	defer l.leave(tok)
	if l.holder != HolderNobody {
		return false
	}
	l.holder, l.held = HolderWriter, 1
	return true
}

// Unlock releases a write hold and grants the queue head: the next writer,
// or a whole reader waiter whose goroutines all become holders at once.
func (l *FairRWLock) Unlock() {
	tok := l.enter()
	if l.holder != HolderWriter {
		l.leave(tok)
		panic("syncore: Unlock of unlocked FairRWLock")
	}
	next := l.popFront()
	switch {
	case next == nil:
		l.holder, l.held = HolderNobody, 0
	case next.writer:
		l.held = 1
	default:
		l.holder, l.held = HolderReader, next.pending.Load()
	}
	l.leave(tok)
	if next != nil {
		next.signal.Set(true)
	}
}

// Upgrade converts the caller's read hold into a write hold.
//
// The last remaining reader upgrades without blocking. Otherwise the
// request is queued ahead of every waiter and granted by the RUnlock of the
// last other reader. Upgrades never fail; two readers upgrading at once are
// served one after the other.
func (l *FairRWLock) Upgrade() {
	pool := l.waiters()
	w := pool.Acquire()

	tok := l.enter()
	if l.holder != HolderReader || l.held <= 0 {
		l.leave(tok)
		pool.Release(w)
		panic("syncore: Upgrade of FairRWLock without a read hold")
	}
	l.held--
	if l.held == 0 {
		l.holder, l.held = HolderWriter, 1
		l.leave(tok)
		pool.Release(w)
		return
	}
	w.writer = true
	w.pending.Store(1)
	l.pushFront(w)
	l.leave(tok)
	l.park(w)
}

// Holder returns the role that currently owns l.
func (l *FairRWLock) Holder() LockHolder {
	tok := l.enter()
	defer l.leave(tok)
	return l.holder
}

// Held returns the number of goroutines holding l.
func (l *FairRWLock) Held() int {
	tok := l.enter()
	defer l.leave(tok)
	return int(l.held)
}

// Queued returns the number of waiters in the queue. Coalesced readers
// count once.
func (l *FairRWLock) Queued() int {
	tok := l.enter()
	defer l.leave(tok)
	return int(l.queued)
}

// Done asserts that l is idle: nobody holds it and nobody waits for it.
// Call it before discarding a lock that was built with custom collaborators.
func (l *FairRWLock) Done() {
	tok := l.enter()
	idle := l.holder == HolderNobody && l.held == 0 && l.head == nil
	l.leave(tok)
	if !idle {
		panic("syncore: FairRWLock discarded while held or awaited")
	}
}

// RLocker returns a sync.Locker that calls RLock and RUnlock.
func (l *FairRWLock) RLocker() sync.Locker {
	return (*fairRLocker)(l)
}

type fairRLocker FairRWLock

func (r *fairRLocker) Lock()   { (*FairRWLock)(r).RLock() }
func (r *fairRLocker) Unlock() { (*FairRWLock)(r).RUnlock() }

var _ sync.Locker = (*FairRWLock)(nil)

package syncore

// SectionToken is returned by [AtomicSection.Enter] and handed back to
// the matching Leave.
type SectionToken uintptr

// AtomicSection provides mutual exclusion around short bookkeeping.
//
// Implementations may spin, disable preemption or map to a kernel critical
// section. Callers never block on a [Signal] or call back into user code
// while inside a section.
//
// [TicketLock] and [SpinSection] implement it.
type AtomicSection interface {
	Enter() SectionToken
	Leave(tok SectionToken)
}

var (
	_ AtomicSection = (*TicketLock)(nil)
	_ AtomicSection = (*SpinSection)(nil)
)

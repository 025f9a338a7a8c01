package syncore

import "sync/atomic"

// BitLockUint32 acquires a bit-lock on the given address using the specified bit mask.
// It assumes the lock is held if (value & mask) != 0.
// It spins until the lock can be acquired.
//
// This allows embedding a lock bit into an existing uint32 field
// to save memory and avoid false sharing.
func BitLockUint32(addr *uint32, mask uint32) {
	cur := atomic.LoadUint32(addr)
	if atomic.CompareAndSwapUint32(addr, cur&^mask, cur|mask) {
		return
	}
	slowLockUint32(addr, mask)
}

func slowLockUint32(addr *uint32, mask uint32) {
	var spins int
	for !TryBitLockUint32(addr, mask) {
		delay(&spins)
	}
}

// TryBitLockUint32 acquires the bit-lock if it is free and reports whether it did.
//
//go:nosplit
func TryBitLockUint32(addr *uint32, mask uint32) bool {
	for {
		cur := atomic.LoadUint32(addr)
		if cur&mask != 0 {
			return false
		}
		if atomic.CompareAndSwapUint32(addr, cur, cur|mask) {
			return true
		}
	}
}

// BitUnlockUint32 releases the bit-lock by clearing the specified bit mask.
// It preserves other bits in the value.
func BitUnlockUint32(addr *uint32, mask uint32) {
	for {
		cur := atomic.LoadUint32(addr)
		if cur&mask == 0 {
			panic("syncore: BitUnlockUint32 of unlocked bit")
		}
		if atomic.CompareAndSwapUint32(addr, cur, cur&^mask) {
			return
		}
	}
}

// SpinSection is an unfair [AtomicSection] packed into a single word.
// Bit 31 is the lock; the low bits count completed sections and are handed
// out as the token, so a Leave with a stale token is detected.
//
// It is zero-value usable.
type SpinSection struct {
	_     noCopy
	state uint32
}

const (
	spinSectionLock = 1 << 31
	spinSectionMask = spinSectionLock - 1
)

// Enter spins until the lock bit is acquired.
func (s *SpinSection) Enter() SectionToken {
	BitLockUint32(&s.state, spinSectionLock)
	return SectionToken(atomic.LoadUint32(&s.state) & spinSectionMask)
}

// Leave releases the lock bit and advances the section counter.
func (s *SpinSection) Leave(tok SectionToken) {
	cur := atomic.LoadUint32(&s.state)
	if cur&spinSectionLock == 0 || SectionToken(cur&spinSectionMask) != tok {
		panic("syncore: SpinSection left without a matching Enter")
	}
	// Only the holder writes the word while the lock bit is set.
	atomic.StoreUint32(&s.state, (cur+1)&spinSectionMask)
}

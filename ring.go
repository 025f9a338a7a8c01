package syncore

import (
	"sync/atomic"
	"unsafe"
)

// MaxRingCapacity is the largest buffer a [Ring] can index in its state word.
const MaxRingCapacity = 1 << ringIndexBits

// Ring is a single-producer/single-consumer queue of variable-length byte
// runs over a fixed circular buffer.
//
// Every reservation is contiguous. When a run does not fit between the
// write cursor and the end of the buffer but fits before the read cursor,
// it is placed at offset 0 and the unused tail becomes a gap that the
// consumer skips.
//
// All coordination goes through one atomic state word updated by CAS:
//
//	bits  0-29: read index
//	bits 30-59: write index
//	bit     62: empty
//	bit     63: gap present
//
// Neither side ever blocks. A full buffer makes TryReserveWrite report
// false; an empty one makes PeekReadable return a zero length.
//
// Exactly one goroutine may act as producer (TryReserveWrite, CommitWrite,
// TryWrite, Free) and one as consumer (PeekReadable, CommitRead, Read).
// Several producers or consumers must be serialized by the caller, for
// example with a [FairRWLock].
type Ring struct {
	_     noCopy
	state atomic.Uint64
	_     [(cacheLineSize - unsafe.Sizeof(atomic.Uint64{})%cacheLineSize) % cacheLineSize]byte

	// Producer side.
	reserveOff int
	reserveLen int
	// gapLen is written by the producer only while no gap is published,
	// and read by the consumer only while one is.
	gapLen int
	_      [(cacheLineSize - 3*unsafe.Sizeof(int(0))%cacheLineSize) % cacheLineSize]byte

	// Consumer side.
	peekLen int
	_       [(cacheLineSize - unsafe.Sizeof(int(0))%cacheLineSize) % cacheLineSize]byte

	buf []byte
}

const (
	ringIndexBits  = 30
	ringIndexMask  = 1<<ringIndexBits - 1
	ringWriteShift = ringIndexBits
	ringEmptyBit   = 1 << 62
	ringGapBit     = 1 << 63
)

// ringState is the unpacked state word.
type ringState struct {
	read, write int
	empty, gap  bool
}

func unpackRing(v uint64) ringState {
	return ringState{
		read:  int(v & ringIndexMask),
		write: int((v >> ringWriteShift) & ringIndexMask),
		empty: v&ringEmptyBit != 0,
		gap:   v&ringGapBit != 0,
	}
}

func (s ringState) pack() uint64 {
	v := uint64(s.read) | uint64(s.write)<<ringWriteShift
	if s.empty {
		v |= ringEmptyBit
	}
	if s.gap {
		v |= ringGapBit
	}
	return v
}

// NewRing creates an empty ring over a buffer of the given capacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 || capacity > MaxRingCapacity {
		panic("syncore: ring capacity out of range")
	}
	r := &Ring{buf: make([]byte, capacity), reserveOff: -1}
	r.state.Store(ringState{empty: true}.pack())
	return r
}

// Cap returns the buffer size in bytes.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Buffer returns the backing buffer. Offsets returned by TryReserveWrite
// and PeekReadable index into it.
func (r *Ring) Buffer() []byte {
	return r.buf
}

// IsEmpty reports whether no bytes are buffered.
func (r *Ring) IsEmpty() bool {
	return r.state.Load()&ringEmptyBit != 0
}

// place returns where a run of n bytes fits in state s, and whether
// placing it there opens a gap at the buffer tail.
func (r *Ring) place(s ringState, n int) (off int, gap, ok bool) {
	c := len(r.buf)
	switch {
	case s.empty:
		return 0, false, n <= c
	case s.read < s.write:
		if n <= c-s.write {
			return s.write, false, true
		}
		if n <= s.read {
			return 0, true, true
		}
		return 0, false, false
	default:
		// Wrapped, or full when read == write: only [write, read) is free.
		if n <= s.read-s.write {
			return s.write, false, true
		}
		return 0, false, false
	}
}

// Free returns the largest n for which TryReserveWrite would currently
// succeed. Producer only; the result can only grow until the next commit.
func (r *Ring) Free() int {
	s := unpackRing(r.state.Load())
	c := len(r.buf)
	switch {
	case s.empty:
		return c
	case s.read < s.write:
		return max(c-s.write, s.read)
	default:
		return s.read - s.write
	}
}

// TryReserveWrite reserves n contiguous bytes and returns their offset in
// Buffer. It reports false when no placement fits n bytes right now. A
// successful reservation must be published with CommitWrite before the
// next one. Producer only.
func (r *Ring) TryReserveWrite(n int) (offset int, ok bool) {
	if n <= 0 {
		panic("syncore: ring reservation must be positive")
	}
	if r.reserveOff >= 0 {
		panic("syncore: ring reservation pending commit")
	}
	off, _, ok := r.place(unpackRing(r.state.Load()), n)
	if !ok {
		return 0, false
	}
	r.reserveOff, r.reserveLen = off, n
	return off, true
}

// CommitWrite publishes the reserved bytes to the consumer. Producer only.
func (r *Ring) CommitWrite() {
	off, n := r.reserveOff, r.reserveLen
	if off < 0 {
		panic("syncore: ring commit without reservation")
	}
	c := len(r.buf)
	end := off + n
	if end == c {
		end = 0
	}
	for {
		old := r.state.Load()
		s := unpackRing(old)
		next := ringState{read: s.read, write: end, gap: s.gap}
		if s.empty {
			// The consumer drained everything: the run is all that is live,
			// and no gap planned against an older snapshot survives.
			next.read, next.gap = off, false
		} else if off != s.write {
			// Placed at 0 ahead of live data: skip [write, cap).
			next.gap = true
		}
		if !s.gap {
			// No gap is published, so the consumer cannot be reading gapLen.
			r.gapLen = 0
			if next.gap {
				r.gapLen = c - s.write
			}
		}
		if r.state.CompareAndSwap(old, next.pack()) {
			break
		}
	}
	r.reserveOff, r.reserveLen = -1, 0
}

// TryWrite copies p into the ring as one contiguous run and reports false,
// writing nothing, when it does not fit. Producer only.
func (r *Ring) TryWrite(p []byte) bool {
	if len(p) == 0 {
		return true
	}
	off, ok := r.TryReserveWrite(len(p))
	if !ok {
		return false
	}
	copy(r.buf[off:off+len(p)], p)
	r.CommitWrite()
	return true
}

// readable returns the next contiguous run for state s.
func (r *Ring) readable(s ringState) (off, n int) {
	if s.empty {
		return 0, 0
	}
	if s.read < s.write {
		return s.read, s.write - s.read
	}
	end := len(r.buf)
	if s.gap {
		end -= r.gapLen
		if s.read == end {
			// Sitting on the gap boundary: the next run starts at 0.
			return 0, s.write
		}
	}
	return s.read, end - s.read
}

// PeekReadable returns the next contiguous readable run as an offset into
// Buffer and a length. A zero length means the ring is empty. The run may
// be shorter than everything buffered when a gap or the buffer end
// intervenes. Consumer only.
func (r *Ring) PeekReadable() (offset, n int) {
	offset, n = r.readable(unpackRing(r.state.Load()))
	r.peekLen = n
	return offset, n
}

// CommitRead releases the first n bytes of the last peeked run.
// Consumer only.
func (r *Ring) CommitRead(n int) {
	if n < 0 || n > r.peekLen {
		panic("syncore: ring commit beyond peeked run")
	}
	if n == 0 {
		return
	}
	c := len(r.buf)
	for {
		old := r.state.Load()
		s := unpackRing(old)
		if s.gap && s.read == c-r.gapLen {
			// Resume after the gap before consuming.
			s.read, s.gap = 0, false
		}
		next := s
		if s.read < s.write {
			next.read = s.read + n
			next.empty = next.read == s.write
		} else {
			end := c
			if s.gap {
				end -= r.gapLen
			}
			next.read = s.read + n
			if next.read == end {
				// Reached the gap or the buffer end: continue at 0.
				next.read, next.gap = 0, false
				next.empty = s.write == 0
			}
		}
		if r.state.CompareAndSwap(old, next.pack()) {
			break
		}
	}
	r.peekLen -= n
}

// Read copies buffered bytes into p, following the data across a gap or
// the buffer end, and returns the number of bytes copied. Consumer only.
func (r *Ring) Read(p []byte) int {
	var total int
	for len(p) > 0 {
		off, n := r.PeekReadable()
		if n == 0 {
			break
		}
		n = copy(p, r.buf[off:off+n])
		r.CommitRead(n)
		p = p[n:]
		total += n
	}
	return total
}

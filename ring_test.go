package syncore

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"runtime"
	"sync"
	"testing"
)

// setRingState forces r into the given layout for table-driven checks.
func setRingState(r *Ring, s ringState, gapLen int) {
	r.gapLen = gapLen
	r.reserveOff, r.reserveLen = -1, 0
	r.state.Store(s.pack())
}

func ringSnapshot(r *Ring) ringState {
	return unpackRing(r.state.Load())
}

func TestRing_StatePacking(t *testing.T) {
	cases := []ringState{
		{},
		{empty: true},
		{read: 1, write: 2},
		{read: MaxRingCapacity - 1, write: MaxRingCapacity - 1, gap: true},
		{read: 12345, write: 678, empty: true, gap: true},
	}
	for _, s := range cases {
		if got := unpackRing(s.pack()); got != s {
			t.Fatalf("unpack(pack(%+v)) = %+v", s, got)
		}
	}
}

func TestRing_NewRingBounds(t *testing.T) {
	mustPanic(t, "zero capacity", func() { NewRing(0) })
	mustPanic(t, "oversized capacity", func() { NewRing(MaxRingCapacity + 1) })
	r := NewRing(16)
	if r.Cap() != 16 || !r.IsEmpty() || r.Free() != 16 {
		t.Fatalf("new ring: cap=%d empty=%v free=%d", r.Cap(), r.IsEmpty(), r.Free())
	}
	if _, n := r.PeekReadable(); n != 0 {
		t.Fatalf("new ring readable = %d", n)
	}
}

func TestRing_Misuse(t *testing.T) {
	r := NewRing(8)
	mustPanic(t, "zero reservation", func() { r.TryReserveWrite(0) })
	mustPanic(t, "commit without reservation", r.CommitWrite)
	if _, ok := r.TryReserveWrite(4); !ok {
		t.Fatal("reserve failed")
	}
	mustPanic(t, "double reservation", func() { r.TryReserveWrite(1) })
	r.CommitWrite()
	mustPanic(t, "commit read without peek", func() { r.CommitRead(1) })
	if _, n := r.PeekReadable(); n != 4 {
		t.Fatalf("readable = %d, want 4", n)
	}
	mustPanic(t, "commit beyond peek", func() { r.CommitRead(5) })
	r.CommitRead(4)
	if !r.IsEmpty() {
		t.Fatal("ring not empty after consuming everything")
	}
}

func TestRing_RefusesOverlappingWrite(t *testing.T) {
	r := NewRing(16)
	if !r.TryWrite(bytes.Repeat([]byte{1}, 10)) {
		t.Fatal("first write failed")
	}
	if _, n := r.PeekReadable(); n != 10 {
		t.Fatalf("readable = %d, want 10", n)
	}
	r.CommitRead(4)

	// Six bytes are still live in [4,10): neither [10,16) nor [0,4) holds ten.
	if _, ok := r.TryReserveWrite(10); ok {
		t.Fatal("reserved 10 bytes over live data")
	}
	if got := r.Free(); got != 6 {
		t.Fatalf("free = %d, want 6", got)
	}
	off, ok := r.TryReserveWrite(6)
	if !ok || off != 10 {
		t.Fatalf("reserve 6 = %d, %v; want 10, true", off, ok)
	}
	r.CommitWrite()
	if s := ringSnapshot(r); s.gap || s.write != 0 || s.read != 4 {
		t.Fatalf("state after filling the tail = %+v", s)
	}
}

func TestRing_GapScenario(t *testing.T) {
	r := NewRing(16)
	first := []byte("ABCDEFGHIJ") // [0,10)
	if !r.TryWrite(first) {
		t.Fatal("first write failed")
	}
	off, n := r.PeekReadable()
	if off != 0 || n != 10 {
		t.Fatalf("peek = %d,%d; want 0,10", off, n)
	}
	r.CommitRead(8) // read cursor -> 8

	second := []byte("klmnopqr")
	off, ok := r.TryReserveWrite(len(second))
	if !ok || off != 0 {
		t.Fatalf("reserve = %d, %v; want 0, true", off, ok)
	}
	copy(r.Buffer()[off:], second)
	r.CommitWrite()

	s := ringSnapshot(r)
	if !s.gap || r.gapLen != 6 || s.read != 8 || s.write != 8 || s.empty {
		t.Fatalf("state = %+v gapLen = %d; want gap of 6 at [10,16)", s, r.gapLen)
	}
	if r.Free() != 0 {
		t.Fatalf("free = %d, want 0 (full)", r.Free())
	}

	off, n = r.PeekReadable()
	if off != 8 || n != 2 {
		t.Fatalf("first run = %d,%d; want 8,2", off, n)
	}
	got := append([]byte(nil), r.Buffer()[off:off+n]...)
	r.CommitRead(n)
	if s := ringSnapshot(r); s.gap || s.read != 0 {
		t.Fatalf("gap not cleared at boundary: %+v", s)
	}

	off, n = r.PeekReadable()
	if off != 0 || n != 8 {
		t.Fatalf("second run = %d,%d; want 0,8", off, n)
	}
	got = append(got, r.Buffer()[off:off+n]...)
	r.CommitRead(n)

	if want := "IJklmnopqr"; string(got) != want {
		t.Fatalf("read %q, want %q", got, want)
	}
	if !r.IsEmpty() {
		t.Fatal("ring not empty")
	}
}

func TestRing_WrapExactlyAtEnd(t *testing.T) {
	r := NewRing(8)
	if !r.TryWrite([]byte("abcdef")) {
		t.Fatal("write failed")
	}
	var p [4]byte
	if n := r.Read(p[:]); n != 4 {
		t.Fatalf("read %d", n)
	}
	if !r.TryWrite([]byte("gh")) { // fills [6,8), write index wraps to 0
		t.Fatal("tail write failed")
	}
	if s := ringSnapshot(r); s.write != 0 || s.gap {
		t.Fatalf("state = %+v, want write index 0 without gap", s)
	}
	if !r.TryWrite([]byte("ijkl")) { // [0,4)
		t.Fatal("wrapped write failed")
	}
	var out [16]byte
	n := r.Read(out[:])
	if string(out[:n]) != "efghijkl" {
		t.Fatalf("read %q", out[:n])
	}
	if !r.IsEmpty() {
		t.Fatal("ring not empty")
	}
}

// largestFreeRun computes the longest linear run of bytes that are neither
// live nor part of the gap.
func largestFreeRun(c int, s ringState, gapLen int) int {
	used := make([]bool, c)
	if !s.empty {
		if s.read < s.write {
			for i := s.read; i < s.write; i++ {
				used[i] = true
			}
		} else {
			for i := s.read; i < c; i++ {
				used[i] = true
			}
			for i := 0; i < s.write; i++ {
				used[i] = true
			}
		}
	}
	best, run := 0, 0
	for _, u := range used {
		if u {
			run = 0
			continue
		}
		run++
		best = max(best, run)
	}
	return best
}

func TestRing_BackpressureExhaustive(t *testing.T) {
	for c := 1; c <= 9; c++ {
		r := NewRing(c)
		check := func(s ringState, gapLen int) {
			want := largestFreeRun(c, s, gapLen)
			setRingState(r, s, gapLen)
			if got := r.Free(); got != want {
				t.Fatalf("cap=%d state=%+v gap=%d: free = %d, want %d", c, s, gapLen, got, want)
			}
			for n := 1; n <= c+1; n++ {
				setRingState(r, s, gapLen)
				off, ok := r.TryReserveWrite(n)
				if ok != (n <= want) {
					t.Fatalf("cap=%d state=%+v gap=%d n=%d: ok = %v, want %v", c, s, gapLen, n, ok, n <= want)
				}
				if ok && (off < 0 || off+n > c) {
					t.Fatalf("cap=%d state=%+v n=%d: offset %d out of range", c, s, n, off)
				}
			}
		}

		check(ringState{empty: true}, 0)
		for rd := 0; rd < c; rd++ {
			for wr := 0; wr < c; wr++ {
				if rd < wr {
					check(ringState{read: rd, write: wr}, 0)
					continue
				}
				check(ringState{read: rd, write: wr}, 0)
				for g := 1; g < c; g++ {
					if wr >= 1 && rd < c-g {
						check(ringState{read: rd, write: wr, gap: true}, g)
					}
				}
			}
		}
	}
}

func TestRing_GapNeverReadable(t *testing.T) {
	const c = 32
	r := NewRing(c)
	rng := rand.New(rand.NewPCG(7, 11))
	var model []byte
	var next byte
	gaps := 0

	for step := range stressLoops(50000) {
		if rng.IntN(2) == 0 {
			n := 1 + rng.IntN(c/2)
			hadGap := ringSnapshot(r).gap
			off, ok := r.TryReserveWrite(n)
			if !ok {
				continue
			}
			for i := range n {
				r.Buffer()[off+i] = next
				model = append(model, next)
				next++
			}
			r.CommitWrite()
			if s := ringSnapshot(r); s.gap && !hadGap {
				gaps++
				if r.gapLen <= 0 || r.gapLen >= c {
					t.Fatalf("step %d: gap length %d", step, r.gapLen)
				}
			}
			continue
		}

		s := ringSnapshot(r)
		off, n := r.PeekReadable()
		if n == 0 {
			if len(model) != 0 {
				t.Fatalf("step %d: empty peek with %d bytes buffered", step, len(model))
			}
			continue
		}
		if s.gap && off+n > c-r.gapLen {
			t.Fatalf("step %d: run [%d,%d) overlaps gap [%d,%d)", step, off, off+n, c-r.gapLen, c)
		}
		k := 1 + rng.IntN(n)
		if !bytes.Equal(r.Buffer()[off:off+k], model[:k]) {
			t.Fatalf("step %d: read bytes out of order", step)
		}
		model = model[k:]
		r.CommitRead(k)

		after := ringSnapshot(r)
		if s.gap && off+k == c-r.gapLen && after.gap {
			t.Fatalf("step %d: gap kept after reaching its boundary", step)
		}
		if s.gap && off+k < c-r.gapLen && off >= s.read && !after.gap {
			t.Fatalf("step %d: gap cleared before its boundary", step)
		}
		if after.empty != (len(model) == 0) {
			t.Fatalf("step %d: empty = %v with %d bytes buffered", step, after.empty, len(model))
		}
	}
	if gaps == 0 {
		t.Fatal("random schedule never created a gap")
	}
}

func TestRing_ConcurrentRoundTrip(t *testing.T) {
	const c = 1024
	total := stressLoops(1 << 21)
	r := NewRing(c)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		rng := rand.New(rand.NewPCG(1, 2))
		var seq byte
		for sent := 0; sent < total; {
			n := min(1+rng.IntN(300), total-sent)
			off, ok := r.TryReserveWrite(n)
			if !ok {
				runtime.Gosched()
				continue
			}
			buf := r.Buffer()[off : off+n]
			for i := range buf {
				buf[i] = seq
				seq++
			}
			r.CommitWrite()
			sent += n
		}
	}()

	var failed error
	go func() {
		defer wg.Done()
		var seq byte
		p := make([]byte, 257)
		for got := 0; got < total; {
			n := r.Read(p)
			if n == 0 {
				runtime.Gosched()
				continue
			}
			for _, b := range p[:n] {
				if b != seq && failed == nil {
					failed = errOutOfOrder
				}
				seq++
			}
			got += n
		}
	}()
	wg.Wait()
	if failed != nil {
		t.Fatal(failed)
	}
	if !r.IsEmpty() {
		t.Fatal("ring not empty after transfer")
	}
}

var errOutOfOrder = errors.New("bytes received out of order")
